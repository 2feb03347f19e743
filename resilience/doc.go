// Package resilience provides in-process fault-tolerance wrappers: circuit
// breaker, retry with exponential backoff, bulkhead and timeout, plus a Policy
// that composes them.
//
// Composition order, outermost first, is retry, breaker, bulkhead, timeout:
//
//	p := &resilience.Policy{
//		Name:     "payments",
//		Retry:    resilience.NewRetryPolicy(resilience.DefaultRetryConfig()),
//		Breaker:  resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("payments")),
//		Bulkhead: resilience.NewBulkhead(resilience.DefaultBulkheadConfig("payments")),
//		Timeout:  2 * time.Second,
//	}
//	receipt, err := resilience.Run(ctx, p, charge)
//
// Retry therefore never sleeps while holding a bulkhead slot, and each attempt
// gets its own timeout.
//
// Rejections are small typed errors matched by sentinels: *CircuitOpenError
// (ErrCircuitOpen), *BulkheadRejectedError (ErrBulkheadFull) and *TimeoutError
// (ErrTimeout). ToAppError lifts them into the shared error taxonomy.
package resilience
