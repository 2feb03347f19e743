package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the status an outer HTTP layer should map this error to.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Store ---

// ConnectionFailed reports a transport failure talking to the store.
// Callers may retry; primitives never retry internally.
func ConnectionFailed(service string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeConnectionFailed, Message: fmt.Sprintf("unable to reach %s", service),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"service": service}, Cause: cause,
	}
}

// StoreCommand reports a command the store rejected or failed to execute.
func StoreCommand(command string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeStoreCommand, Message: fmt.Sprintf("store command %s failed", command),
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"command": command}, Cause: cause,
	}
}

// Timeout reports a deadline that elapsed before the operation completed.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: fmt.Sprintf("%s timed out", operation),
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"operation": operation},
	}
}

// --- Codec ---

// Serialization reports a value that could not be encoded for storage.
func Serialization(format string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeSerialization, Message: fmt.Sprintf("failed to encode %s payload", format),
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"format": format}, Cause: cause,
	}
}

// Deserialization reports a stored payload that could not be decoded.
func Deserialization(format, key string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeDeserialization, Message: fmt.Sprintf("failed to decode %s payload", format),
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"format": format, "key": key}, Cause: cause,
	}
}

// --- Rejections ---

// RateLimited reports a denied admission decision.
func RateLimited(key string, limit int64) *AppError {
	return &AppError{
		Code: ErrCodeRateLimited, Message: "rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests, Retryable: true,
		Details: map[string]any{"key": key, "limit": limit},
	}
}

// CircuitOpen reports a call refused by an open circuit breaker.
func CircuitOpen(name string) *AppError {
	return &AppError{
		Code: ErrCodeCircuitOpen, Message: fmt.Sprintf("circuit %s is open", name),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"circuit": name},
	}
}

// BulkheadFull reports a call refused because every slot was taken.
func BulkheadFull(name string, maxConcurrent, current int64) *AppError {
	return &AppError{
		Code: ErrCodeBulkheadFull, Message: fmt.Sprintf("bulkhead %s is at capacity", name),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"bulkhead": name, "max": maxConcurrent, "current": current},
	}
}

// LockHeld reports a lock that could not be acquired.
func LockHeld(key string) *AppError {
	return &AppError{
		Code: ErrCodeLockHeld, Message: fmt.Sprintf("lock %s is held", key),
		HTTPStatus: http.StatusConflict, Retryable: true,
		Details: map[string]any{"key": key},
	}
}

// --- Caller ---

// Configuration reports a primitive invoked with unusable settings.
func Configuration(field, reason string) *AppError {
	return &AppError{
		Code: ErrCodeConfiguration, Message: fmt.Sprintf("invalid %s: %s", field, reason),
		HTTPStatus: http.StatusInternalServerError, Retryable: false,
		Details: map[string]any{"field": field},
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// Internal creates a new AppError for an unexpected failure.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "an unexpected error occurred",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// --- Inspection ---

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err wraps an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// IsRetryable reports whether err wraps an AppError marked retryable.
func IsRetryable(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Retryable
}
