package resilience

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kbukum/coordkit/logger"
	"github.com/kbukum/coordkit/observability"
)

// ErrBulkheadFull matches every bulkhead rejection.
var ErrBulkheadFull = stderrors.New("bulkhead is full")

// BulkheadRejectedError reports a call turned away at capacity.
type BulkheadRejectedError struct {
	Name    string
	Max     int64
	Current int64
}

func (e *BulkheadRejectedError) Error() string {
	return fmt.Sprintf("bulkhead %q is full (%d/%d in use)", e.Name, e.Current, e.Max)
}

// Is makes errors.Is(err, ErrBulkheadFull) hold.
func (e *BulkheadRejectedError) Is(target error) bool {
	return target == ErrBulkheadFull
}

// BulkheadConfig configures a bulkhead.
type BulkheadConfig struct {
	// Name identifies this bulkhead for metrics/logging.
	Name string
	// MaxConcurrent is the maximum number of concurrent calls.
	MaxConcurrent int
	// MaxWait bounds how long Call waits for a slot. 0 waits until ctx is done.
	MaxWait time.Duration
	// OnReject is called when a request is rejected.
	OnReject func(name string)
	// Metrics records rejections and slots in use. Optional.
	Metrics *observability.CoordMetrics
	// Logger defaults to the "resilience" component logger.
	Logger *logger.Logger
}

// DefaultBulkheadConfig returns sensible defaults.
func DefaultBulkheadConfig(name string) BulkheadConfig {
	return BulkheadConfig{
		Name:          name,
		MaxConcurrent: 10,
	}
}

// Bulkhead implements the bulkhead pattern for concurrency limiting.
// It isolates components to prevent cascading failures.
type Bulkhead struct {
	config BulkheadConfig
	log    *logger.Logger
	sem    *semaphore.Weighted
	inUse  atomic.Int64
}

// NewBulkhead creates a new bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}
	return &Bulkhead{
		config: config,
		log:    logger.OrDefault(config.Logger, "resilience"),
		sem:    semaphore.NewWeighted(int64(config.MaxConcurrent)),
	}
}

// Call runs fn once a slot is free. It waits up to MaxWait (or until ctx is
// done) and returns *BulkheadRejectedError if the wait runs out.
func (b *Bulkhead) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	waitCtx := ctx
	if b.config.MaxWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, b.config.MaxWait)
		defer cancel()
	}

	if err := b.sem.Acquire(waitCtx, 1); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return b.reject(ctx)
	}
	return b.run(ctx, fn)
}

// TryCall runs fn only if a slot is free right now.
func (b *Bulkhead) TryCall(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.sem.TryAcquire(1) {
		return b.reject(ctx)
	}
	return b.run(ctx, fn)
}

// CallBulkhead runs fn inside b and returns its value.
func CallBulkhead[T any](ctx context.Context, b *Bulkhead, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := b.Call(ctx, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}

// Name returns the bulkhead's name.
func (b *Bulkhead) Name() string { return b.config.Name }

// MaxConcurrent returns the slot count.
func (b *Bulkhead) MaxConcurrent() int { return b.config.MaxConcurrent }

// InUse returns the number of calls currently running.
func (b *Bulkhead) InUse() int { return int(b.inUse.Load()) }

// Available returns the number of free slots.
func (b *Bulkhead) Available() int { return b.config.MaxConcurrent - b.InUse() }

func (b *Bulkhead) run(ctx context.Context, fn func(ctx context.Context) error) error {
	b.inUse.Add(1)
	b.config.Metrics.AddBulkheadInUse(ctx, b.config.Name, 1)
	defer func() {
		b.inUse.Add(-1)
		b.sem.Release(1)
		b.config.Metrics.AddBulkheadInUse(ctx, b.config.Name, -1)
	}()
	return fn(ctx)
}

func (b *Bulkhead) reject(ctx context.Context) error {
	err := &BulkheadRejectedError{
		Name:    b.config.Name,
		Max:     int64(b.config.MaxConcurrent),
		Current: b.inUse.Load(),
	}
	b.log.Warn("bulkhead rejected call", logger.Fields(
		logger.FieldName, err.Name,
		logger.FieldMax, err.Max,
		logger.FieldCurrent, err.Current,
	))
	b.config.Metrics.RecordBulkheadRejection(ctx, b.config.Name)
	if b.config.OnReject != nil {
		b.config.OnReject(b.config.Name)
	}
	return err
}
