package resilience

import (
	stderrors "errors"

	"github.com/kbukum/coordkit/errors"
)

// ToAppError converts a resilience rejection into the shared AppError
// taxonomy. AppErrors pass through; unknown errors become Internal.
func ToAppError(err error) *errors.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr
	}

	var (
		open     *CircuitOpenError
		rejected *BulkheadRejectedError
		timeout  *TimeoutError
	)
	switch {
	case stderrors.As(err, &open):
		return errors.CircuitOpen(open.Name).WithCause(err)
	case stderrors.As(err, &rejected):
		return errors.BulkheadFull(rejected.Name, rejected.Max, rejected.Current).WithCause(err)
	case stderrors.As(err, &timeout):
		return errors.Timeout("operation").WithCause(err).WithDetail("duration", timeout.Duration.String())
	case stderrors.Is(err, ErrTimeout):
		return errors.Timeout("operation").WithCause(err)
	case stderrors.Is(err, ErrCircuitOpen):
		return errors.CircuitOpen("").WithCause(err)
	default:
		return errors.Internal(err)
	}
}
