package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	apperrors "github.com/kbukum/coordkit/errors"
	"github.com/kbukum/coordkit/logger"
)

func TestPolicy_Empty(t *testing.T) {
	p := &Policy{}
	v, err := Run(context.Background(), p, func(ctx context.Context) (int, error) { return 3, nil })
	if err != nil || v != 3 {
		t.Errorf("expected 3, got %d (%v)", v, err)
	}
}

func TestPolicy_RetriesThroughBreaker(t *testing.T) {
	clock := newManualClock()
	p := &Policy{
		Name:    "orders",
		Retry:   NewRetryPolicy(fastRetry(5)),
		Breaker: newTestBreaker(clock, 2, 1),
	}

	calls := 0
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errBoom
	})

	// Two failures open the breaker; later attempts are rejected without a call.
	if calls != 2 {
		t.Errorf("expected 2 underlying calls, got %d", calls)
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected last error to be the open circuit, got %v", err)
	}
}

func TestPolicy_TimeoutPerAttempt(t *testing.T) {
	p := &Policy{
		Retry:   NewRetryPolicy(fastRetry(2)),
		Timeout: 10 * time.Millisecond,
	}

	var calls atomic.Int32
	v, err := Run(context.Background(), p, func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return "", ctx.Err()
		}
		return "ok", nil
	})

	if err != nil || v != "ok" {
		t.Fatalf("expected ok on the second attempt, got %q (%v)", v, err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 calls, got %d", n)
	}
}

func TestPolicy_AbandonedAttemptDoesNotLeakValue(t *testing.T) {
	p := &Policy{Timeout: 5 * time.Millisecond}

	done := make(chan struct{})
	v, err := Run(context.Background(), p, func(ctx context.Context) (string, error) {
		defer close(done)
		time.Sleep(20 * time.Millisecond)
		return "late", nil
	})
	<-done

	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if v != "" {
		t.Errorf("expected zero value from a timed out call, got %q", v)
	}
}

func TestPolicy_LateAttemptDoesNotOverwriteRetry(t *testing.T) {
	p := &Policy{
		Retry:   NewRetryPolicy(fastRetry(2)),
		Timeout: 10 * time.Millisecond,
	}

	var calls atomic.Int32
	stale := make(chan struct{})
	v, err := Run(context.Background(), p, func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			defer close(stale)
			time.Sleep(30 * time.Millisecond)
			return "stale", nil
		}
		return "fresh", nil
	})
	<-stale

	if err != nil || v != "fresh" {
		t.Errorf("expected fresh from the second attempt, got %q (%v)", v, err)
	}
}

func TestPolicy_BulkheadRejection(t *testing.T) {
	b := newTestBulkhead(1, time.Millisecond)
	release := fill(t, b)
	defer release()

	p := &Policy{Bulkhead: b}
	err := p.Execute(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("expected ErrBulkheadFull, got %v", err)
	}
}

func TestPolicy_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	p := &Policy{Name: "checkout", Breaker: NewCircuitBreaker(CircuitBreakerConfig{Name: "checkout", Logger: logger.Nop()})}
	_ = p.Execute(context.Background(), func(context.Context) error { return fail() })

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if len(spans[0].Events()) == 0 {
		t.Error("expected the failure to be recorded on the span")
	}
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code apperrors.ErrorCode
	}{
		{"circuit open", &CircuitOpenError{Name: "pay"}, apperrors.ErrCodeCircuitOpen},
		{"bulkhead", &BulkheadRejectedError{Name: "db", Max: 2, Current: 2}, apperrors.ErrCodeBulkheadFull},
		{"timeout", &TimeoutError{Duration: time.Second}, apperrors.ErrCodeTimeout},
		{"app error", apperrors.LockHeld("job"), apperrors.ErrCodeLockHeld},
		{"plain", errBoom, apperrors.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToAppError(tt.err)
			if got.Code != tt.code {
				t.Errorf("expected %s, got %s", tt.code, got.Code)
			}
			if !errors.Is(got, tt.err) {
				t.Error("expected the original error to stay reachable")
			}
		})
	}

	if ToAppError(nil) != nil {
		t.Error("expected nil for nil")
	}
	if got := ToAppError(&CircuitOpenError{Name: "pay"}); got.Details["circuit"] != "pay" {
		t.Errorf("expected circuit detail, got %v", got.Details)
	}
}
