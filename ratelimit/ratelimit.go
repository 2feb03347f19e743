package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/coordkit/errors"
	"github.com/kbukum/coordkit/observability"
	"github.com/kbukum/coordkit/redis"
)

// Algorithm names a Limiter implementation.
type Algorithm string

const (
	AlgorithmSlidingWindow Algorithm = "sliding_window"
	AlgorithmFixedWindow   Algorithm = "fixed_window"
)

// Limiter decides whether an event for key is admitted.
type Limiter interface {
	// IsAllowed admits or denies one event and reports how many more events
	// the window will admit.
	IsAllowed(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
	// Remaining reports how many events would be admitted now, without
	// admitting one.
	Remaining(ctx context.Context, key string, limit int64, window time.Duration) (int64, error)
	// Reset clears all state for key.
	Reset(ctx context.Context, key string) error
	// Current returns the number of recorded events for key.
	Current(ctx context.Context, key string) (int64, error)
	// TTL returns how long the key's state will live, or redis.TTLMissing.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Option configures a limiter.
type Option func(*options)

type options struct {
	now     func() time.Time
	nonce   func() string
	metrics *observability.CoordMetrics
}

func defaultOptions() options {
	return options{now: time.Now, nonce: uuid.NewString}
}

// WithClock replaces time.Now. The store still expires keys on its own clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithMetrics records admission decisions.
func WithMetrics(m *observability.CoordMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// New returns the limiter for algorithm.
func New(client *redis.Client, algorithm Algorithm, opts ...Option) (Limiter, error) {
	switch algorithm {
	case AlgorithmSlidingWindow, "":
		return NewSlidingWindow(client, opts...), nil
	case AlgorithmFixedWindow:
		return NewFixedWindow(client, opts...), nil
	default:
		return nil, errors.Configuration("ratelimit.algorithm", fmt.Sprintf("unknown algorithm %q", algorithm))
	}
}

func checkArgs(limit int64, window time.Duration) error {
	if limit <= 0 {
		return errors.Configuration("limit", "must be positive")
	}
	if window <= 0 {
		return errors.Configuration("window", "must be positive")
	}
	return nil
}

func toInt64(v interface{}) (int64, bool) {
	n, ok := v.(int64)
	return n, ok
}
