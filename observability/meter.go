package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/coordkit/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) *MeterConfig {
	return &MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider and installs it globally.
// The caller owns the returned provider and must shut it down on exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Get("observability").Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// CoordMetrics holds the instruments recorded by the coordination primitives.
// A nil *CoordMetrics is valid and records nothing.
type CoordMetrics struct {
	breakerTransitions metric.Int64Counter
	bulkheadRejections metric.Int64Counter
	bulkheadInUse      metric.Int64UpDownCounter
	rateLimitDecisions metric.Int64Counter
	retryAttempts      metric.Int64Counter
	lockAcquisitions   metric.Int64Counter
	otpVerifications   metric.Int64Counter
	operationDuration  metric.Float64Histogram
}

// NewCoordMetrics creates the coordination instruments on the given meter.
func NewCoordMetrics(meter metric.Meter) (*CoordMetrics, error) {
	var (
		m   CoordMetrics
		err error
	)

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.breakerTransitions, "coord.breaker.transitions", "Circuit breaker state transitions"},
		{&m.bulkheadRejections, "coord.bulkhead.rejections", "Calls rejected by a full bulkhead"},
		{&m.rateLimitDecisions, "coord.ratelimit.decisions", "Rate limiter admission decisions"},
		{&m.retryAttempts, "coord.retry.attempts", "Attempts made by retry policies"},
		{&m.lockAcquisitions, "coord.lock.acquisitions", "Distributed lock acquisition attempts"},
		{&m.otpVerifications, "coord.otp.verifications", "OTP verification outcomes"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}

	m.bulkheadInUse, err = meter.Int64UpDownCounter("coord.bulkhead.in_use",
		metric.WithDescription("Bulkhead slots currently held"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating coord.bulkhead.in_use gauge: %w", err)
	}

	m.operationDuration, err = meter.Float64Histogram("coord.operation.duration",
		metric.WithDescription("Duration of coordination operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating coord.operation.duration histogram: %w", err)
	}

	return &m, nil
}

// RecordBreakerTransition records a circuit breaker moving between states.
func (m *CoordMetrics) RecordBreakerTransition(ctx context.Context, name, from, to string) {
	if m == nil {
		return
	}
	m.breakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrName, name),
		attribute.String(AttrFrom, from),
		attribute.String(AttrTo, to),
	))
}

// RecordBulkheadRejection records a call turned away by a full bulkhead.
func (m *CoordMetrics) RecordBulkheadRejection(ctx context.Context, name string) {
	if m == nil {
		return
	}
	m.bulkheadRejections.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrName, name)))
}

// AddBulkheadInUse adjusts the held-slot gauge by delta.
func (m *CoordMetrics) AddBulkheadInUse(ctx context.Context, name string, delta int64) {
	if m == nil {
		return
	}
	m.bulkheadInUse.Add(ctx, delta, metric.WithAttributes(attribute.String(AttrName, name)))
}

// RecordRateLimitDecision records one admission decision.
func (m *CoordMetrics) RecordRateLimitDecision(ctx context.Context, algorithm string, allowed bool) {
	if m == nil {
		return
	}
	m.rateLimitDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrAlgorithm, algorithm),
		attribute.Bool(AttrAllowed, allowed),
	))
}

// RecordRetryAttempt records one attempt and its outcome ("success", "retry", "exhausted", "aborted").
func (m *CoordMetrics) RecordRetryAttempt(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.retryAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrOutcome, outcome)))
}

// RecordLockAcquisition records an acquisition attempt.
func (m *CoordMetrics) RecordLockAcquisition(ctx context.Context, acquired bool) {
	if m == nil {
		return
	}
	m.lockAcquisitions.Add(ctx, 1, metric.WithAttributes(attribute.Bool(AttrAcquired, acquired)))
}

// RecordOTPVerification records a verification outcome for a purpose.
func (m *CoordMetrics) RecordOTPVerification(ctx context.Context, purpose, outcome string) {
	if m == nil {
		return
	}
	m.otpVerifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrPurpose, purpose),
		attribute.String(AttrOutcome, outcome),
	))
}

// RecordOperation records the duration of a coordination operation.
func (m *CoordMetrics) RecordOperation(ctx context.Context, component, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrComponent, component),
		attribute.String(AttrOperation, operation),
		attribute.String(AttrOutcome, status),
	))
}
