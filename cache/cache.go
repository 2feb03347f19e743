package cache

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/coordkit/errors"
	"github.com/kbukum/coordkit/redis"
)

const (
	// DefaultCounterTTL is applied to counters that Increment creates.
	DefaultCounterTTL = time.Hour

	codecName = "JSON"
)

// Store is a typed key-value cache where every entry expires.
type Store[T any] interface {
	// Get returns the value and true, or the zero value and false on a miss.
	Get(ctx context.Context, key string) (T, bool, error)
	// Set writes value with the given ttl, which must be positive.
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// TTL returns the remaining lifetime, or false if the key is absent.
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
	Increment(ctx context.Context, key string, amount int64) (int64, error)
	// GetMany returns one entry per key, nil for misses.
	GetMany(ctx context.Context, keys []string) ([]*T, error)
	DeleteMany(ctx context.Context, keys []string) (int64, error)
}

// Option configures a RedisCache.
type Option func(*options)

type options struct {
	namespace  string
	counterTTL time.Duration
}

// WithNamespace replaces the "cache" key domain, so other subsystems can
// share the implementation without sharing keys.
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithCounterTTL sets the expiry given to counters created by Increment.
func WithCounterTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.counterTTL = d
		}
	}
}

// incrementScript adds to a counter and gives a fresh counter an expiry in
// the same round trip.
var incrementScript = goredis.NewScript(`
local v = redis.call('INCRBY', KEYS[1], ARGV[1])
if redis.call('TTL', KEYS[1]) == -1 then
  redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return v
`)

// RedisCache implements Store on Redis with JSON values.
type RedisCache[T any] struct {
	client *redis.Client
	opts   options
}

var _ Store[struct{}] = (*RedisCache[struct{}])(nil)

// New creates a cache whose keys live under {prefix}:cache.
func New[T any](client *redis.Client, opts ...Option) *RedisCache[T] {
	o := options{namespace: redis.DomainCache, counterTTL: DefaultCounterTTL}
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisCache[T]{client: client, opts: o}
}

// Key returns the fully namespaced store key for key.
func (c *RedisCache[T]) Key(key string) string {
	return redis.Key(c.client.Prefix(), c.opts.namespace, key)
}

func (c *RedisCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	full := c.Key(key)

	raw, found, err := c.client.Get(ctx, full)
	if err != nil || !found {
		return zero, false, err
	}

	val, err := decode[T](full, raw)
	if err != nil {
		return zero, false, err
	}
	return val, true, nil
}

func (c *RedisCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.Configuration("ttl", "cache entries require a positive ttl")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Serialization(codecName, err)
	}
	return c.client.Set(ctx, c.Key(key), data, redis.WholeSeconds(ttl))
}

func (c *RedisCache[T]) Delete(ctx context.Context, key string) error {
	_, err := c.client.Del(ctx, c.Key(key))
	return err
}

func (c *RedisCache[T]) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.Key(key))
	return n > 0, err
}

// TTL reports redis.TTLPersistent for an entry without expiry, which only
// happens when something outside this cache wrote the key.
func (c *RedisCache[T]) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	d, err := c.client.TTL(ctx, c.Key(key))
	if err != nil {
		return 0, false, err
	}
	if d == redis.TTLMissing {
		return 0, false, nil
	}
	return d, true, nil
}

func (c *RedisCache[T]) Increment(ctx context.Context, key string, amount int64) (int64, error) {
	ttl := int64(redis.WholeSeconds(c.opts.counterTTL) / time.Second)
	res, err := c.client.RunScript(ctx, incrementScript, []string{c.Key(key)}, amount, ttl)
	if err != nil {
		return 0, err
	}
	n, ok := res.(int64)
	if !ok {
		return 0, errors.Deserialization("integer", c.Key(key), nil)
	}
	return n, nil
}

// GetMany fetches keys in one MGET. A single undecodable entry fails the batch.
func (c *RedisCache[T]) GetMany(ctx context.Context, keys []string) ([]*T, error) {
	if len(keys) == 0 {
		return []*T{}, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.Key(k)
	}

	vals, err := c.client.MGet(ctx, full...)
	if err != nil {
		return nil, err
	}

	out := make([]*T, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		val, err := decode[T](full[i], raw)
		if err != nil {
			return nil, err
		}
		out[i] = &val
	}
	return out, nil
}

func (c *RedisCache[T]) DeleteMany(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.Key(k)
	}
	return c.client.Del(ctx, full...)
}

func decode[T any](key, raw string) (T, error) {
	var val T
	if err := json.Unmarshal([]byte(raw), &val); err != nil {
		return val, errors.Deserialization(codecName, key, err)
	}
	return val, nil
}
