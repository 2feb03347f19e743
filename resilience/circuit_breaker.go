package resilience

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kbukum/coordkit/logger"
	"github.com/kbukum/coordkit/observability"
)

// State represents the circuit breaker state.
type State int32

const (
	// StateClosed allows requests to pass through.
	StateClosed State = iota
	// StateOpen blocks all requests.
	StateOpen
	// StateHalfOpen lets requests through to probe recovery.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen matches every *CircuitOpenError.
var ErrCircuitOpen = stderrors.New("circuit breaker is open")

// CircuitOpenError is returned, without invoking the wrapped call, while the breaker is open.
type CircuitOpenError struct {
	Name string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open", e.Name)
}

// Is makes errors.Is(err, ErrCircuitOpen) hold.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// CircuitBreakerConfig configures a circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies this circuit breaker in logs and metrics.
	Name string
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that closes the circuit.
	SuccessThreshold int
	// Timeout is how long the circuit stays open before the next call probes.
	Timeout time.Duration
	// OnStateChange is called after every transition, by the caller that made it.
	OnStateChange func(name string, from, to State)
	// Metrics records transitions. Optional.
	Metrics *observability.CoordMetrics
	// Logger defaults to the "resilience" component logger.
	Logger *logger.Logger
	// Now replaces time.Now. Used by tests.
	Now func() time.Time
}

// DefaultCircuitBreakerConfig returns sensible defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern.
// It prevents cascading failures by failing fast when a dependency is unhealthy.
//
// State lives in atomics shared by every caller. Each transition is a
// compare-and-swap, so exactly one caller performs it and fires OnStateChange.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	log    *logger.Logger

	phase     atomic.Pointer[phase]
	failures  atomic.Int64
	successes atomic.Int64
}

// phase is swapped as a whole so a state and the time it was entered are
// always observed together.
type phase struct {
	state    State
	openedAt time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	cb := &CircuitBreaker{
		config: config,
		log:    logger.OrDefault(config.Logger, "resilience"),
	}
	cb.phase.Store(&phase{state: StateClosed})
	return cb
}

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string { return cb.config.Name }

// Execute runs fn through the circuit breaker. It returns *CircuitOpenError
// without calling fn while open; otherwise it returns fn's error unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return &CircuitOpenError{Name: cb.config.Name}
	}
	err := fn()
	cb.record(err)
	return err
}

// CallBreaker runs fn through cb and returns its value.
func CallBreaker[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var result T
	err := cb.Execute(func() error {
		var fnErr error
		result, fnErr = fn()
		return fnErr
	})
	return result, err
}

// State returns the current state. An open breaker whose timeout has elapsed
// still reports open until a call probes it.
func (cb *CircuitBreaker) State() State {
	return cb.phase.Load().state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	return int(cb.failures.Load())
}

// Successes returns the half-open success count.
func (cb *CircuitBreaker) Successes() int {
	return int(cb.successes.Load())
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	from := cb.phase.Swap(&phase{state: StateClosed}).state
	cb.failures.Store(0)
	cb.successes.Store(0)
	if from != StateClosed {
		cb.notify(from, StateClosed)
	}
}

func (cb *CircuitBreaker) allow() bool {
	for {
		current := cb.phase.Load()
		switch current.state {
		case StateClosed, StateHalfOpen:
			return true
		case StateOpen:
			if cb.config.Now().Sub(current.openedAt) < cb.config.Timeout {
				return false
			}
			if cb.transition(StateOpen, StateHalfOpen) {
				return true
			}
			// Another caller moved the state; re-read it.
		default:
			return false
		}
	}
}

func (cb *CircuitBreaker) record(err error) {
	state := cb.State()

	if err == nil {
		switch state {
		case StateClosed:
			cb.failures.Store(0)
		case StateHalfOpen:
			if cb.successes.Add(1) >= int64(cb.config.SuccessThreshold) {
				cb.transition(StateHalfOpen, StateClosed)
			}
		}
		return
	}

	switch state {
	case StateClosed:
		if cb.failures.Add(1) >= int64(cb.config.FailureThreshold) {
			cb.transition(StateClosed, StateOpen)
		}
	case StateHalfOpen:
		cb.transition(StateHalfOpen, StateOpen)
	}
}

// transition moves from -> to if the breaker is still in from, resetting counters.
// The open timestamp is only published by the caller whose swap succeeds.
func (cb *CircuitBreaker) transition(from, to State) bool {
	current := cb.phase.Load()
	if current.state != from {
		return false
	}
	next := &phase{state: to}
	if to == StateOpen {
		next.openedAt = cb.config.Now()
	}
	if !cb.phase.CompareAndSwap(current, next) {
		return false
	}
	cb.failures.Store(0)
	cb.successes.Store(0)
	cb.notify(from, to)
	return true
}

func (cb *CircuitBreaker) notify(from, to State) {
	fields := logger.Fields(
		logger.FieldName, cb.config.Name,
		logger.FieldFrom, from.String(),
		logger.FieldTo, to.String(),
	)
	if to == StateOpen {
		cb.log.Warn("circuit breaker opened", fields)
	} else {
		cb.log.Info("circuit breaker state changed", fields)
	}
	cb.config.Metrics.RecordBreakerTransition(context.Background(), cb.config.Name, from.String(), to.String())
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.config.Name, from, to)
	}
}
