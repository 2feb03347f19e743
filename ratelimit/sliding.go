package ratelimit

import (
	"context"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/coordkit/errors"
	"github.com/kbukum/coordkit/redis"
)

// slidingScript prunes expired entries, counts the rest, and records the new
// event if there is room. ARGV: limit, window ms, now ms, member, expiry secs.
var slidingScript = goredis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('EXPIRE', key, ARGV[5])
  return {1, limit - count - 1}
end
return {0, 0}
`)

// SlidingWindow is an exact sliding-window limiter backed by a sorted set per key.
type SlidingWindow struct {
	client *redis.Client
	opts   options
}

var _ Limiter = (*SlidingWindow)(nil)

// NewSlidingWindow creates a limiter whose keys live under {prefix}:rate_limit.
func NewSlidingWindow(client *redis.Client, opts ...Option) *SlidingWindow {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &SlidingWindow{client: client, opts: o}
}

func (s *SlidingWindow) key(key string) string {
	return redis.RateLimitKey(s.client.Prefix(), key)
}

func (s *SlidingWindow) IsAllowed(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	if err := checkArgs(limit, window); err != nil {
		return false, 0, err
	}
	nowMs := s.opts.now().UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + ":" + s.opts.nonce()
	expiry := int64(redis.WholeSeconds(window) / time.Second)

	res, err := s.client.RunScript(ctx, slidingScript, []string{s.key(key)},
		limit, window.Milliseconds(), nowMs, member, expiry)
	if err != nil {
		return false, 0, err
	}

	reply, ok := res.([]interface{})
	if !ok || len(reply) != 2 {
		return false, 0, errors.Deserialization("script reply", s.key(key), nil)
	}
	admitted, ok1 := toInt64(reply[0])
	remaining, ok2 := toInt64(reply[1])
	if !ok1 || !ok2 {
		return false, 0, errors.Deserialization("script reply", s.key(key), nil)
	}

	allowed := admitted == 1
	s.opts.metrics.RecordRateLimitDecision(ctx, string(AlgorithmSlidingWindow), allowed)
	return allowed, remaining, nil
}

// Remaining counts live entries with ZCOUNT and never mutates the set.
func (s *SlidingWindow) Remaining(ctx context.Context, key string, limit int64, window time.Duration) (int64, error) {
	if err := checkArgs(limit, window); err != nil {
		return 0, err
	}
	floor := s.opts.now().UnixMilli() - window.Milliseconds()
	count, err := s.client.ZCount(ctx, s.key(key), "("+strconv.FormatInt(floor, 10), "+inf")
	if err != nil {
		return 0, err
	}
	return max(limit-count, 0), nil
}

func (s *SlidingWindow) Reset(ctx context.Context, key string) error {
	_, err := s.client.Del(ctx, s.key(key))
	return err
}

// Current returns the set's cardinality, which may include entries not yet pruned.
func (s *SlidingWindow) Current(ctx context.Context, key string) (int64, error) {
	return s.client.ZCard(ctx, s.key(key))
}

func (s *SlidingWindow) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.client.TTL(ctx, s.key(key))
}
