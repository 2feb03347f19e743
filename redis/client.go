package redis

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/coordkit/logger"
)

// TTL sentinels returned by Client.TTL.
const (
	// TTLMissing means the key does not exist.
	TTLMissing = time.Duration(-2)
	// TTLPersistent means the key exists without an expiry.
	TTLPersistent = time.Duration(-1)
)

// Client wraps a go-redis client with coordkit logging and error classification.
// Every method acquires and releases its own pooled connection.
type Client struct {
	rdb    goredis.UniversalClient
	log    *logger.Logger
	cfg    Config
	closed bool
	mu     sync.Mutex
}

// New creates a new Redis client with the given configuration and logger.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("redis config: %w", err)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is disabled")
	}

	dialTimeout, _ := time.ParseDuration(cfg.DialTimeout)
	readTimeout, _ := time.ParseDuration(cfg.ReadTimeout)
	writeTimeout, _ := time.ParseDuration(cfg.WriteTimeout)
	poolTimeout, _ := time.ParseDuration(cfg.PoolTimeout)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		PoolTimeout:  poolTimeout,
	})

	log = logger.OrDefault(log, "redis")
	if cfg.Tracing {
		rdb.AddHook(newTracingHook(cfg.Name, cfg.DB))
	}

	log.Info("Redis client created", logger.Fields(
		"addr", cfg.Addr,
		"db", cfg.DB,
		"pool_size", cfg.PoolSize,
		"key_prefix", cfg.KeyPrefix,
	))

	return &Client{rdb: rdb, log: log, cfg: cfg}, nil
}

// NewFromUniversal wraps an existing go-redis client. Tests use this to point
// primitives at miniredis without going through Config.
func NewFromUniversal(rdb goredis.UniversalClient, keyPrefix string, log *logger.Logger) *Client {
	cfg := Config{Enabled: true, KeyPrefix: keyPrefix}
	cfg.ApplyDefaults()
	return &Client{rdb: rdb, log: logger.OrDefault(log, "redis"), cfg: cfg}
}

// Prefix returns the namespace prefix configured for this client.
func (c *Client) Prefix() string { return c.cfg.KeyPrefix }

// Logger returns the client's logger.
func (c *Client) Logger() *logger.Logger { return c.log }

// Ping verifies the Redis connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	pong, err := c.rdb.Ping(ctx).Result()
	if err != nil {
		return c.fail("PING", err)
	}
	if pong != "PONG" {
		return fmt.Errorf("unexpected redis ping response: %s", pong)
	}
	return nil
}

// Get retrieves a string value. found is false when the key does not exist.
func (c *Client) Get(ctx context.Context, key string) (value string, found bool, err error) {
	value, err = c.rdb.Get(ctx, key).Result()
	if stderrors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, c.fail("GET", err)
	}
	return value, true, nil
}

// Set stores a value under key with the given expiration.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.fail("SET", c.rdb.Set(ctx, key, value, ttl).Err())
}

// SetNX stores value only if key is absent. The write and the expiry are one command.
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, c.fail("SET NX", err)
	}
	return ok, nil
}

// Del deletes keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	return n, c.fail("DEL", err)
}

// Exists returns how many of the keys exist.
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	n, err := c.rdb.Exists(ctx, keys...).Result()
	return n, c.fail("EXISTS", err)
}

// IncrBy atomically adds delta to the integer stored at key.
func (c *Client) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := c.rdb.IncrBy(ctx, key, delta).Result()
	return n, c.fail("INCRBY", err)
}

// Expire sets a new expiry on key. It returns false if the key does not exist.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.Expire(ctx, key, ttl).Result()
	return ok, c.fail("EXPIRE", err)
}

// TTL returns the remaining time to live of key, or TTLMissing / TTLPersistent.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, c.fail("TTL", err)
	}
	return d, nil
}

// MGet returns the values for keys in order; missing keys are nil.
func (c *Client) MGet(ctx context.Context, keys ...string) ([]interface{}, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	return vals, c.fail("MGET", err)
}

// SAdd adds members to the set at key.
func (c *Client) SAdd(ctx context.Context, key string, members ...interface{}) (int64, error) {
	n, err := c.rdb.SAdd(ctx, key, members...).Result()
	return n, c.fail("SADD", err)
}

// SRem removes members from the set at key.
func (c *Client) SRem(ctx context.Context, key string, members ...interface{}) (int64, error) {
	n, err := c.rdb.SRem(ctx, key, members...).Result()
	return n, c.fail("SREM", err)
}

// SMembers returns every member of the set at key.
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, key).Result()
	return members, c.fail("SMEMBERS", err)
}

// ZCard returns the cardinality of the sorted set at key.
func (c *Client) ZCard(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.ZCard(ctx, key).Result()
	return n, c.fail("ZCARD", err)
}

// ZCount counts sorted-set members with scores in [minScore, maxScore].
func (c *Client) ZCount(ctx context.Context, key, minScore, maxScore string) (int64, error) {
	n, err := c.rdb.ZCount(ctx, key, minScore, maxScore).Result()
	return n, c.fail("ZCOUNT", err)
}

// Scan returns every key matching pattern. Intended for administrative
// paths (resets, sweeps), not hot paths.
func (c *Client) Scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, c.fail("SCAN", err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// RunScript executes a Lua script atomically, preferring EVALSHA and
// falling back to EVAL when the script is not cached server-side.
func (c *Client) RunScript(ctx context.Context, script *goredis.Script, keys []string, args ...interface{}) (interface{}, error) {
	res, err := script.Run(ctx, c.rdb, keys, args...).Result()
	if stderrors.Is(err, goredis.Nil) {
		return nil, nil
	}
	return res, c.fail("EVALSHA", err)
}

// Close closes the Redis connection. Safe to call multiple times.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.log.Info("Closing Redis connection")
	c.closed = true
	return c.rdb.Close()
}

// Unwrap returns the underlying go-redis client for advanced operations.
func (c *Client) Unwrap() goredis.UniversalClient {
	return c.rdb
}

func (c *Client) fail(command string, err error) error {
	if err == nil {
		return nil
	}
	classified := classify(c.cfg.Name, command, err)
	c.log.Debug("redis command failed", logger.Fields(
		logger.FieldOperation, command,
		logger.FieldError, err.Error(),
	))
	return classified
}
