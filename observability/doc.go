// Package observability wires OpenTelemetry tracing and metrics into the
// coordination primitives.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("my-service"))
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, "lock.acquire")
//	defer span.End()
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, observability.DefaultMeterConfig("my-service"))
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewCoordMetrics(observability.Meter("my-service"))
//	metrics.RecordRateLimitDecision(ctx, "sliding_window", true)
//
// A nil *CoordMetrics is accepted everywhere and records nothing, so primitives
// built without metrics pay no cost.
package observability
