/*
errors.go - Centralized error types for billing

PURPOSE:
  All billing error types in one place. The HTTP layer maps them to status
  codes through IsClientError, IsNotFound and IsConflict.

ERROR CATEGORIES:
  1. Ledger errors - Payment persistence failures
  2. Validation errors - Bad user input (amounts, dates, months)
  3. Lookup errors - Missing students

Note that the overdue engine itself never returns errors: missing fees or
enrollment dates are skipped, not reported.
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when a payment with the same
	// idempotency key was already recorded (double submit of the form).
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrStudentNotFound is returned when a referenced student doesn't exist.
	ErrStudentNotFound = errors.New("student not found")

	// ErrInvalidAmount is returned for unparseable or out-of-range amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidMonth is returned for months outside 1-12.
	ErrInvalidMonth = errors.New("invalid month: must be 1-12")

	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = errors.New("invalid range: end before start")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// FieldError names the input field a validation failure belongs to.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidMonth) ||
		errors.Is(err, ErrInvalidRange)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStudentNotFound)
}

// IsConflict returns true if the write collides with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateIdempotencyKey)
}
