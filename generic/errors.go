/*
errors.go - Centralized error taxonomy for the HR engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every component returns these (or structured errors wrapping them) so
  callers can branch with errors.Is / errors.As regardless of which
  component failed.

ERROR CATEGORIES:
  1. Input errors      - InvalidInput, InvalidDateRange (caller can correct)
  2. Reference errors  - UnknownEmployee, NotFound (referenced entity absent)
  3. Workflow errors   - InvalidTransition (approval out of sequence)
  4. Access errors     - Forbidden (authorization denial)

All are locally recoverable. None is fatal to the process.

USAGE:
  req, err := ledger.DecideAsHR(ctx, id, generic.DecisionApproved, "")
  if errors.Is(err, generic.ErrInvalidTransition) {
      var te *generic.TransitionError
      errors.As(err, &te) // te.From, te.Stage
  }

SEE ALSO:
  - api/handlers.go: Maps the taxonomy to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for malformed or missing required fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidDateRange is returned when a leave ends before it starts.
	ErrInvalidDateRange = errors.New("invalid date range: end before start")

	// ErrUnknownEmployee is returned when a leave application names an
	// identity the directory does not know.
	ErrUnknownEmployee = errors.New("unknown employee")

	// ErrNotFound is returned when a referenced identity or request doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a decision is attempted from a
	// state that does not allow it.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrForbidden is returned when a principal may not perform an action.
	// It is also returned for resources the principal cannot see, so that a
	// denial never reveals whether the resource exists.
	ErrForbidden = errors.New("forbidden")

	// ErrDuplicateEmail is returned when an identity email is already taken.
	// It wraps ErrInvalidInput.
	ErrDuplicateEmail = fmt.Errorf("%w: email already registered", ErrInvalidInput)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError names the input field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidInput
}

// TransitionError provides details about a rejected state machine step.
type TransitionError struct {
	RequestID RequestID
	From      LeaveStatus
	Stage     Stage
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot record %s decision on request %s in status %s",
		e.Stage, e.RequestID, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// NotFoundError names the missing resource.
type NotFoundError struct {
	Kind string // "identity" or "leave_request"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to input the caller can correct.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnknownEmployee)
}
