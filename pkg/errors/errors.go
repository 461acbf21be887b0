package errors

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNilOperation indicates that a nil per-item operation was supplied
	ErrNilOperation = errors.New("operation cannot be nil")

	// ErrNegativeConcurrency indicates that a negative concurrency limit was requested
	ErrNegativeConcurrency = errors.New("concurrency limit cannot be negative")

	// ErrSchedulerClosed indicates that work was submitted to a closed scheduler
	ErrSchedulerClosed = errors.New("scheduler is closed")

	// ErrStreamConsumed indicates that a single-use result stream was iterated twice
	ErrStreamConsumed = errors.New("result stream already consumed")
)

// Error represents a structured engine error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured engine error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCancellation reports whether err represents a cancelled outcome rather
// than an operation fault. Cancellation is carried through context errors so
// callers can branch on "was this merely cancelled" end to end.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsInvalidArgument reports whether err was raised by boundary validation
// before any dispatch occurred.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrNilOperation) ||
		errors.Is(err, ErrNegativeConcurrency)
}
