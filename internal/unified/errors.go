package unified

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "bubbles/pkg/errors"
)

// ErrNotInitialized is the panic value of ProcessRequest when Initialize
// has not completed.
var ErrNotInitialized = errors.New("unified processor used before Initialize")

// ErrNoStrategy is recorded when a path decision names a backend that was
// never registered.
var ErrNoStrategy = errors.New("no strategy registered")

type Attempt struct {
	Method Method
	Err    error
}

// AllStrategiesFailedError is the terminal failure of a request whose
// primary and fallback backends both failed.
type AllStrategiesFailedError struct {
	Attempts []Attempt
}

func (e *AllStrategiesFailedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Method, a.Err))
	}
	return "all strategies failed (" + strings.Join(parts, "; ") + ")"
}

func (e *AllStrategiesFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// Classify maps a processing error onto the transport-facing error codes.
func Classify(err error) *apperrors.Error {
	var ve *ValidationError
	var af *AllStrategiesFailedError
	var appErr *apperrors.Error
	switch {
	case errors.As(err, &ve):
		return apperrors.Wrap(err, apperrors.ErrValidation).WithDetail("field", ve.Field)
	case errors.As(err, &af):
		return apperrors.Wrap(err, apperrors.ErrExecutionFailed)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.ErrTimeout)
	case errors.As(err, &appErr):
		return appErr
	default:
		return apperrors.Wrap(err, apperrors.ErrServiceUnavailable)
	}
}
