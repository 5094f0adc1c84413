package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrValidation is matched by every ValidationError through errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError describes input that does not have the shape an
// operation requires. Field is empty for whole-value problems.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a new ValidationError for a field.
//
// Parameters:
//   - field: The offending field, or "" when the value as a whole is invalid.
//   - message: The validation error message.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewValidationErrorf creates a new ValidationError with a formatted message.
func NewValidationErrorf(field, format string, args ...interface{}) error {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// MissingFieldsError reports every required field that was absent at once,
// so one diagnostic names all problems of a record.
func MissingFieldsError(fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{
		Message: "missing required fields: " + strings.Join(fields, ", "),
	}
}

// ErrTransient marks failures that are likely to succeed on retry.
var ErrTransient = errors.New("transient failure")

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() []error { return []error{e.err, ErrTransient} }

// Transient wraps err so that IsTransient reports true. The original error
// stays reachable through errors.Is and errors.As.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient classifies err as retryable: explicitly marked errors,
// timeouts reported by net.Error and deadline expiry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
