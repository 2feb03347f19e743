package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Operation tracks a single traced coordination call: a span plus a duration sample.
type Operation struct {
	component string
	name      string
	start     time.Time
	span      trace.Span
	metrics   *CoordMetrics
}

// StartOperation opens a span named "<component>.<operation>". metrics may be nil.
func StartOperation(ctx context.Context, component, operation string, metrics *CoordMetrics) (context.Context, *Operation) {
	ctx, span := StartSpan(ctx, component+"."+operation,
		trace.WithAttributes(
			attribute.String(AttrComponent, component),
			attribute.String(AttrOperation, operation),
		),
	)
	return ctx, &Operation{
		component: component,
		name:      operation,
		start:     time.Now(),
		span:      span,
		metrics:   metrics,
	}
}

// End closes the span, recording err when non-nil, and emits the duration sample.
func (o *Operation) End(ctx context.Context, err error) {
	if err != nil {
		SetSpanError(trace.ContextWithSpan(ctx, o.span), err)
	}
	o.span.End()
	o.metrics.RecordOperation(ctx, o.component, o.name, o.Duration(), err)
}

// Duration returns the elapsed time since the operation started.
func (o *Operation) Duration() time.Duration {
	return time.Since(o.start)
}
