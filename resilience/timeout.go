package resilience

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"
)

// ErrTimeout matches every *TimeoutError.
var ErrTimeout = stderrors.New("operation timed out")

// TimeoutError reports that an operation outlived its deadline.
type TimeoutError struct {
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation timed out after %s", e.Duration)
}

// Is makes errors.Is(err, ErrTimeout) hold.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

type timeoutOutcome[T any] struct {
	value    T
	panicked any
}

// WithTimeout runs fn with a context that is cancelled after d and returns
// *TimeoutError if fn has not finished by then. fn keeps running in the
// background until it observes the cancellation. If the parent ctx is
// cancelled first, its error is returned instead. A panic in fn is re-raised
// in the caller when it happens before the deadline.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) T) (T, error) {
	var zero T
	runCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan timeoutOutcome[T], 1)
	go func() {
		var out timeoutOutcome[T]
		defer func() {
			if r := recover(); r != nil {
				out.panicked = r
			}
			done <- out
		}()
		out.value = fn(runCtx)
	}()

	select {
	case out := <-done:
		if out.panicked != nil {
			panic(out.panicked)
		}
		return out.value, nil
	case <-runCtx.Done():
		if err := ctx.Err(); err != nil && !stderrors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		return zero, &TimeoutError{Duration: d}
	}
}

// WithTimeoutOrDefault returns def instead of an error when fn does not finish in time.
func WithTimeoutOrDefault[T any](ctx context.Context, d time.Duration, def T, fn func(ctx context.Context) T) T {
	v, err := WithTimeout(ctx, d, fn)
	if err != nil {
		return def
	}
	return v
}

type resultPair[T any] struct {
	value T
	err   error
}

// WithTimeoutResult is WithTimeout for functions that return an error. The
// function's own error is passed through unchanged.
func WithTimeoutResult[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	pair, err := WithTimeout(ctx, d, func(ctx context.Context) resultPair[T] {
		v, fnErr := fn(ctx)
		return resultPair[T]{value: v, err: fnErr}
	})
	if err != nil {
		return pair.value, err
	}
	return pair.value, pair.err
}
