package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/coordkit/errors"
	"github.com/kbukum/coordkit/redis"
)

// fixedScript counts an event in the current slot, starting the slot's expiry
// on its first event. ARGV: expiry secs.
var fixedScript = goredis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('EXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// FixedWindow counts events per calendar-aligned slot of window length.
// Keys are {prefix}:rate_limit:{key}:{slot} with slot = unix seconds / window seconds.
type FixedWindow struct {
	client *redis.Client
	opts   options
}

var _ Limiter = (*FixedWindow)(nil)

// NewFixedWindow creates a fixed-window limiter.
func NewFixedWindow(client *redis.Client, opts ...Option) *FixedWindow {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &FixedWindow{client: client, opts: o}
}

func (f *FixedWindow) base(key string) string {
	return redis.RateLimitKey(f.client.Prefix(), key)
}

func (f *FixedWindow) slotKey(key string, window time.Duration) (string, int64) {
	secs := int64(redis.WholeSeconds(window) / time.Second)
	slot := f.opts.now().Unix() / secs
	return redis.Key(f.base(key), strconv.FormatInt(slot, 10)), secs
}

func (f *FixedWindow) IsAllowed(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	if err := checkArgs(limit, window); err != nil {
		return false, 0, err
	}
	k, secs := f.slotKey(key, window)

	res, err := f.client.RunScript(ctx, fixedScript, []string{k}, secs)
	if err != nil {
		return false, 0, err
	}
	count, ok := toInt64(res)
	if !ok {
		return false, 0, errors.Deserialization("script reply", k, nil)
	}

	allowed := count <= limit
	f.opts.metrics.RecordRateLimitDecision(ctx, string(AlgorithmFixedWindow), allowed)
	return allowed, max(limit-count, 0), nil
}

func (f *FixedWindow) Remaining(ctx context.Context, key string, limit int64, window time.Duration) (int64, error) {
	if err := checkArgs(limit, window); err != nil {
		return 0, err
	}
	k, _ := f.slotKey(key, window)
	count, err := f.counter(ctx, k)
	if err != nil {
		return 0, err
	}
	return max(limit-count, 0), nil
}

// Reset deletes every slot recorded for key.
func (f *FixedWindow) Reset(ctx context.Context, key string) error {
	slots, err := f.slots(ctx, key)
	if err != nil || len(slots) == 0 {
		return err
	}
	_, err = f.client.Del(ctx, slots...)
	return err
}

// Current returns the count in the newest live slot for key.
func (f *FixedWindow) Current(ctx context.Context, key string) (int64, error) {
	k, err := f.latest(ctx, key)
	if err != nil || k == "" {
		return 0, err
	}
	return f.counter(ctx, k)
}

// TTL returns the lifetime of the newest live slot for key.
func (f *FixedWindow) TTL(ctx context.Context, key string) (time.Duration, error) {
	k, err := f.latest(ctx, key)
	if err != nil {
		return 0, err
	}
	if k == "" {
		return redis.TTLMissing, nil
	}
	return f.client.TTL(ctx, k)
}

func (f *FixedWindow) counter(ctx context.Context, k string) (int64, error) {
	raw, found, err := f.client.Get(ctx, k)
	if err != nil || !found {
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Deserialization("integer", k, err)
	}
	return n, nil
}

// slots lists the slot keys of key. Keys under a longer key that merely
// shares the prefix are excluded by requiring a numeric final segment.
func (f *FixedWindow) slots(ctx context.Context, key string) ([]string, error) {
	base := f.base(key) + redis.KeySeparator
	candidates, err := f.client.Scan(ctx, escapeGlob(base)+"*")
	if err != nil {
		return nil, err
	}
	out := candidates[:0]
	for _, c := range candidates {
		if _, err := strconv.ParseInt(strings.TrimPrefix(c, base), 10, 64); err == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *FixedWindow) latest(ctx context.Context, key string) (string, error) {
	slots, err := f.slots(ctx, key)
	if err != nil {
		return "", err
	}
	base := f.base(key) + redis.KeySeparator
	var (
		best     string
		bestSlot int64 = -1
	)
	for _, s := range slots {
		n, _ := strconv.ParseInt(strings.TrimPrefix(s, base), 10, 64)
		if n > bestSlot {
			best, bestSlot = s, n
		}
	}
	return best, nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string { return globEscaper.Replace(s) }
