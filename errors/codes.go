package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Store errors
const (
	// ErrCodeConnectionFailed indicates the store could not be reached.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeStoreCommand indicates the store rejected a well-formed command.
	ErrCodeStoreCommand ErrorCode = "STORE_COMMAND_FAILED"
	// ErrCodeTimeout indicates a deadline elapsed before the operation finished.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// Codec errors (never retryable)
const (
	// ErrCodeSerialization indicates a value could not be encoded.
	ErrCodeSerialization ErrorCode = "SERIALIZATION_FAILED"
	// ErrCodeDeserialization indicates a stored payload could not be decoded.
	ErrCodeDeserialization ErrorCode = "DESERIALIZATION_FAILED"
)

// Rejections
const (
	// ErrCodeRateLimited indicates the caller exceeded an admission limit.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeCircuitOpen indicates a circuit breaker refused the call.
	ErrCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	// ErrCodeBulkheadFull indicates no concurrency slot was available.
	ErrCodeBulkheadFull ErrorCode = "BULKHEAD_FULL"
	// ErrCodeLockHeld indicates a distributed lock is owned by someone else.
	ErrCodeLockHeld ErrorCode = "LOCK_HELD"
)

// Caller errors
const (
	// ErrCodeConfiguration indicates a primitive was used with invalid settings.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	// ErrCodeInvalidInput indicates an argument failed validation.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeInternal indicates an unexpected failure.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeConnectionFailed: true,
	ErrCodeTimeout:          true,
	ErrCodeRateLimited:      true,
	ErrCodeCircuitOpen:      true,
	ErrCodeBulkheadFull:     true,
	ErrCodeLockHeld:         true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
