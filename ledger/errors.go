/*
errors.go - Centralized error types for the ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Store adapters and the HTTP layer match on these with errors.Is/As.

ERROR CATEGORIES:
  1. Validation errors - Malformed mutation input, rejected before any write
  2. Not-found errors  - Mutation targets an unknown case id
  3. Persistence errors - The document store failed a read, write or feed

  Date parse failures are NOT errors. They are a DateUnparsed status on the
  Date value, and read paths skip the record (see date.go, period.go).

PROPAGATION:
  Validation and not-found errors are returned at the mutation boundary.
  Persistence errors are always surfaced, never retried here.

SEE ALSO:
  - service.go: Produces these errors
  - api/handlers.go: Maps them to HTTP statuses
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed or missing mutation input.
	ErrValidation = errors.New("validation failed")

	// ErrCaseNotFound is returned when a case id is absent from the store.
	ErrCaseNotFound = errors.New("case not found")

	// ErrPersistence is returned when the document store fails.
	ErrPersistence = errors.New("persistence failure")

	// ErrUnknownWindow is returned when a window name can't be parsed.
	ErrUnknownWindow = errors.New("unknown time window")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError carries the missing case id.
type NotFoundError struct {
	CaseID CaseID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("case not found: %s", e.CaseID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrCaseNotFound
}

// PersistenceError wraps a store failure with the operation that failed.
type PersistenceError struct {
	Op     string
	CaseID CaseID
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.CaseID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.CaseID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrUnknownWindow)
}

// IsNotFound returns true if the error indicates a missing case.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCaseNotFound)
}

// IsPersistence returns true if the store failed.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}
