package resilience

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/kbukum/coordkit/errors"
	"github.com/kbukum/coordkit/logger"
	"github.com/kbukum/coordkit/observability"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt. Zero disables retrying.
	MaxRetries int
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration
	// MaxBackoff caps the delay between retries.
	MaxBackoff time.Duration
	// Multiplier grows the delay after each retry.
	Multiplier float64
	// Jitter adds randomness to backoff (0.0 to 1.0).
	Jitter float64
	// RetryIf determines if an error should be retried.
	RetryIf func(error) bool
	// OnRetry is called before each retry sleep with the 1-based retry number.
	OnRetry func(retry int, err error, backoff time.Duration)
	// Metrics records attempt outcomes. Optional.
	Metrics *observability.CoordMetrics
	// Logger defaults to the "resilience" component logger.
	Logger *logger.Logger
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		RetryIf:        DefaultRetryIf,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2.0
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	if c.Jitter > 1 {
		c.Jitter = 1
	}
	if c.RetryIf == nil {
		c.RetryIf = DefaultRetryIf
	}
	return c
}

// DefaultRetryIf retries everything except context cancellation, an open
// circuit, and AppErrors marked non-retryable. An open breaker rejects every
// attempt until its timeout, so retrying it only burns the budget.
func DefaultRetryIf(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if stderrors.Is(err, ErrCircuitOpen) {
		return false
	}
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.Retryable
	}
	return true
}

// RetryStats describes how a retried call went.
type RetryStats struct {
	// Attempts counts every call of fn, including the first.
	Attempts int
	// Retries counts the calls after the first.
	Retries int
	// Elapsed is the wall time spent, sleeps included.
	Elapsed time.Duration
}

// Retry executes fn, retrying failures with exponential backoff.
// The last error is returned unchanged once retries run out.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	result, _, err := RetryWithStats(ctx, cfg, fn)
	return result, err
}

// RetryWithStats is Retry that also reports attempts and elapsed time.
func RetryWithStats[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, RetryStats, error) {
	var zero T
	cfg = cfg.withDefaults()
	log := logger.OrDefault(cfg.Logger, "resilience")

	start := time.Now()
	stats := RetryStats{}
	finish := func() RetryStats {
		stats.Elapsed = time.Since(start)
		return stats
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			cfg.Metrics.RecordRetryAttempt(ctx, "aborted")
			return zero, finish(), err
		}

		stats.Attempts++
		result, err := fn()
		if err == nil {
			cfg.Metrics.RecordRetryAttempt(ctx, "success")
			return result, finish(), nil
		}

		if !cfg.RetryIf(err) {
			cfg.Metrics.RecordRetryAttempt(ctx, "aborted")
			return zero, finish(), err
		}
		if attempt >= cfg.MaxRetries {
			cfg.Metrics.RecordRetryAttempt(ctx, "exhausted")
			log.Warn("retries exhausted", logger.Fields(
				logger.FieldAttempt, stats.Attempts,
				logger.FieldError, err.Error(),
			))
			return zero, finish(), err
		}

		backoff := calculateBackoff(attempt, cfg)
		cfg.Metrics.RecordRetryAttempt(ctx, "retry")
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, backoff)
		}
		log.Warn("retrying after failure", logger.Fields(
			logger.FieldAttempt, stats.Attempts,
			logger.FieldBackoff, backoff.String(),
			logger.FieldError, err.Error(),
		))

		if err := sleep(ctx, backoff); err != nil {
			cfg.Metrics.RecordRetryAttempt(ctx, "aborted")
			return zero, finish(), err
		}
		stats.Retries++
	}
}

// RetryFunc executes a function that returns only an error.
func RetryFunc(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := Retry(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryPolicy is a reusable retry configuration.
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy.
func NewRetryPolicy(cfg RetryConfig) *RetryPolicy {
	return &RetryPolicy{config: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (p *RetryPolicy) Config() RetryConfig { return p.config }

// Execute runs fn under the policy, passing ctx to every attempt.
func (p *RetryPolicy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return RetryFunc(ctx, p.config, func() error { return fn(ctx) })
}

// calculateBackoff returns min(initial * multiplier^n, max) for the nth
// retry (0-based). Jitter spreads the capped value and the cap is applied again.
func calculateBackoff(n int, cfg RetryConfig) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(n))
	// Large n overflows to +Inf, and Inf plus negative jitter is NaN.
	if math.IsInf(backoff, 0) || math.IsNaN(backoff) || backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}

	if cfg.Jitter > 0 {
		spread := backoff * cfg.Jitter
		backoff += (rand.Float64()*2 - 1) * spread
	}

	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	if backoff < 0 {
		backoff = 0
	}
	return time.Duration(backoff)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
