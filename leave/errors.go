/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All recoverable error conditions in one place. The API layer maps these
  to HTTP statuses; none of them corrupt ledger state because every
  mutation is all-or-nothing.

ERROR CATEGORIES:
  1. Validation errors  - bad date spans, overlapping leaves
  2. Balance errors     - deduction would go negative
  3. Conflict errors    - lost a race (state transition, job lock)
  4. Lookup errors      - unknown request, claim or account

USAGE:
  Check with errors.Is against the sentinels, or errors.As against the
  structured types for details:

    var ibe *leave.InsufficientBalanceError
    if errors.As(err, &ibe) {
        fmt.Println(ibe.Available, ibe.Requested)
    }
*/
package leave

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned for a bad date span: start after end, a
	// missing end date where one is required, an end date on an open-ended
	// type, or a span that resolves to zero chargeable days.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrInsufficientBalance is returned when a deduction would take an
	// account below zero. The account is left untouched.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAlreadyProcessed is returned when a state transition raced and
	// lost: the request is no longer in the status the caller observed.
	ErrAlreadyProcessed = errors.New("request already processed")

	// ErrAlreadyLocked is returned when a periodic job has already run for
	// the period. The period's JobRun row is the lock.
	ErrAlreadyLocked = errors.New("job already ran for this period")

	// ErrNotFound is returned for an unknown request, claim, account or user.
	ErrNotFound = errors.New("not found")

	// ErrOverlappingLeave is returned when a new request overlaps an
	// existing pending or approved leave for the same applicant.
	ErrOverlappingLeave = errors.New("overlaps an existing leave")

	// ErrRejectionNoteRequired is returned when a rejection carries no note.
	ErrRejectionNoteRequired = errors.New("rejection note is required")

	// ErrHistoryInconsistent is returned by Replay when an account's
	// history does not reproduce its balance. This indicates corruption
	// and is never expected in normal operation.
	ErrHistoryInconsistent = errors.New("balance history is inconsistent")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports the shortfall for a failed deduction.
// For casual leave, Available is the combined casual+earned pool.
type InsufficientBalanceError struct {
	UserID    string
	LeaveType LeaveType
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: available %s, requested %s",
		e.LeaveType, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InvalidRangeError explains why a date span was rejected.
type InvalidRangeError struct {
	Detail string
}

func (e *InvalidRangeError) Error() string {
	return "invalid date range: " + e.Detail
}

func (e *InvalidRangeError) Unwrap() error { return ErrInvalidRange }

// OverlapError identifies the existing leave a new request collides with.
type OverlapError struct {
	ExistingID    string
	ExistingStart Date
	ExistingEnd   *Date // nil for open-ended sabbaticals
}

func (e *OverlapError) Error() string {
	if e.ExistingEnd == nil {
		return fmt.Sprintf("overlaps ongoing open-ended leave %s (from %s)", e.ExistingID, e.ExistingStart)
	}
	return fmt.Sprintf("overlaps existing leave %s (%s to %s)", e.ExistingID, e.ExistingStart, *e.ExistingEnd)
}

func (e *OverlapError) Unwrap() error { return ErrOverlappingLeave }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrOverlappingLeave) ||
		errors.Is(err, ErrRejectionNoteRequired)
}

// IsConflict reports whether the error means a concurrent caller won.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyProcessed) || errors.Is(err, ErrAlreadyLocked)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
