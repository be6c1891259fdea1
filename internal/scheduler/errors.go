package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned by the registration API before any state changes.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrHandlerFailure matches every *HandlerError.
	ErrHandlerFailure = errors.New("handler failure")
)

// HandlerError wraps an error returned by an event handler during a sweep.
type HandlerError struct {
	Name       string
	TimesFired int
	Err        error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("event %q handler failed (times_fired=%d): %v", e.Name, e.TimesFired, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func (e *HandlerError) Is(target error) bool { return target == ErrHandlerFailure }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}
