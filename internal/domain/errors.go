package domain

import (
	"errors"
	"fmt"
)

var (
	ErrBookUnavailable    = errors.New("book unavailable: no copies left")
	ErrMemberIneligible   = errors.New("member ineligible: inactive or at borrowing limit")
	ErrDuplicateLoan      = errors.New("duplicate loan for book, member and loan date")
	ErrLoanNotActive      = errors.New("loan is not active")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrDuplicateISBN      = errors.New("a book with this ISBN already exists")
	ErrDuplicateEmail     = errors.New("a member with this email already exists")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrTooManyRequests    = errors.New("too many requests")
)

// InvariantError describes a counter that left its allowed range. It is a
// programming error, never a user input problem.
type InvariantError struct {
	Entity string
	Field  string
	Value  int
	Min    int
	Max    int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation: %s.%s = %d outside [%d, %d]", e.Entity, e.Field, e.Value, e.Min, e.Max)
}

func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariantViolation
}

// InputError is a request the caller can fix. Reason is safe to show to
// clients; Cause, when set, carries detail for logs only.
type InputError struct {
	Reason string
	Cause  error
}

func (e *InputError) Error() string {
	if e.Cause != nil {
		return "invalid input: " + e.Reason + ": " + e.Cause.Error()
	}
	return "invalid input: " + e.Reason
}

func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func (e *InputError) Unwrap() error { return e.Cause }

// Invalid returns an *InputError with a field-level reason.
func Invalid(format string, args ...any) error {
	return &InputError{Reason: fmt.Sprintf(format, args...)}
}
