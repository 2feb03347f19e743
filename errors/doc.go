// Package errors provides the error taxonomy shared by the coordination
// primitives. Store, codec and configuration failures are reported as
// *AppError values carrying a machine-readable code and a retryable hint;
// expected control-flow outcomes (breaker open, bulkhead full, limit
// exceeded) stay as cheap sentinels in their own packages and can be lifted
// into an AppError at the edge (see resilience.ToAppError).
package errors
