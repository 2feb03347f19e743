package resilience

import (
	"context"
	"time"

	"github.com/kbukum/coordkit/observability"
)

// Policy composes the resilience wrappers around one call. Nil members and a
// zero Timeout are skipped. Nesting, outermost first: retry, breaker,
// bulkhead, timeout. Breaker failures therefore include bulkhead rejections
// and timeouts of the inner call.
type Policy struct {
	// Name labels the operation span and duration metric.
	Name     string
	Retry    *RetryPolicy
	Breaker  *CircuitBreaker
	Bulkhead *Bulkhead
	Timeout  time.Duration
	// Metrics records the whole call's duration. Optional.
	Metrics *observability.CoordMetrics
}

// Execute runs fn under every configured wrapper.
func (p *Policy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Run(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Run executes fn under p and returns its value. Each attempt's value is
// carried out through the wrappers' return values, so an attempt abandoned
// by the timeout can never overwrite the one that is returned.
func Run[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (result T, err error) {
	name := p.Name
	if name == "" {
		name = "call"
	}
	ctx, op := observability.StartOperation(ctx, "resilience", name, p.Metrics)
	defer func() { op.End(ctx, err) }()

	call := fn
	if p.Timeout > 0 {
		inner, d := call, p.Timeout
		call = func(ctx context.Context) (T, error) {
			return WithTimeoutResult(ctx, d, inner)
		}
	}
	if p.Bulkhead != nil {
		inner := call
		call = func(ctx context.Context) (T, error) {
			return CallBulkhead(ctx, p.Bulkhead, inner)
		}
	}
	if p.Breaker != nil {
		inner := call
		call = func(ctx context.Context) (T, error) {
			return CallBreaker(p.Breaker, func() (T, error) { return inner(ctx) })
		}
	}
	if p.Retry != nil {
		return Retry(ctx, p.Retry.Config(), func() (T, error) { return call(ctx) })
	}
	return call(ctx)
}
