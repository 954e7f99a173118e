package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
)

// Sentinel errors. Use errors.Is; repositories and handlers wrap these with context.
var (
	// ErrValidation marks bad or missing input. Always recoverable by the user.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks an unknown user, client or invoice reference (or one owned by another user).
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a state conflict such as paying an invoice twice.
	ErrConflict = errors.New("conflict")

	// ErrAlreadyPaid is returned by mark-paid on an invoice that is already PAID.
	ErrAlreadyPaid = fmt.Errorf("%w: invoice already paid", ErrConflict)

	// ErrDuplicateInvoiceNumber is returned when a number allocation races with another writer.
	// Callers retry allocation; it never reaches a user.
	ErrDuplicateInvoiceNumber = fmt.Errorf("%w: duplicate invoice number", ErrConflict)

	// ErrInvalidTransition is returned when an invoice status change is not allowed.
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrConflict)

	// ErrTransient marks infrastructure failures that may succeed on retry.
	ErrTransient = errors.New("temporary failure")

	// ErrInternal marks invariant violations and unexpected shapes.
	ErrInternal = errors.New("internal error")
)

// ValidationError names the offending field and carries a message safe to show a user.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// transientSignals matches whole phrases that indicate a network, timeout or
// throttling failure in errors that carry no typed cause (for example, errors
// from HTTP SDKs).
var transientSignals = regexp.MustCompile(`(?i)\b(timeout|timed out|connection (refused|reset|closed|aborted)|network is unreachable|rate limit(ed)?|too many requests|temporarily unavailable|try again|broken pipe)\b`)

// IsTransient reports whether err looks like a failure that may succeed on retry.
// Validation, not-found, conflict and internal errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsValidation(err) || IsNotFound(err) || IsConflict(err) || errors.Is(err, ErrInternal) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return transientSignals.MatchString(err.Error())
}
