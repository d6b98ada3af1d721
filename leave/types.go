/*
Package leave implements the leave & balance ledger engine.

PURPOSE:
  This package contains the core domain for employee leave accounting:
  per-user leave accounts, an append-only balance history, the leave
  request state machine, the deductible-day calculator, and the
  idempotent periodic jobs (monthly accrual, yearly reset).

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: A per-user, per-leave-type decimal balance (never negative)
  - HistoryEntry: An immutable record of one balance change
  - Request: A leave request moving through the approval state machine
  - CompOffClaim: A claim for a compensatory day off (balance-increasing)
  - JobRun: The persisted lock row for a periodic job period

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere; no floats in the ledger
  2. Auditability: every balance change yields exactly one HistoryEntry
     with previous + delta == new
  3. Immutability: history is append-only; corrections are refunds or
     manual adjustments, never edits

SEE ALSO:
  - ledger.go: Atomic balance mutations
  - request.go: Request lifecycle and state machine
  - jobs.go: Monthly accrual and yearly reset
  - store.go: Persistence interfaces
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEAVE TYPES
// =============================================================================

type LeaveType string

const (
	TypeCasual     LeaveType = "CASUAL"
	TypeSick       LeaveType = "SICK"
	TypeEarned     LeaveType = "EARNED"
	TypeWFH        LeaveType = "WFH"
	TypeCompOff    LeaveType = "COMP_OFF"
	TypeMaternity  LeaveType = "MATERNITY"
	TypeSabbatical LeaveType = "SABBATICAL"
)

// BalanceTypes are the leave types that carry a numeric account.
// Maternity and sabbatical are tracked as requests only and are never
// charged against a balance.
var BalanceTypes = []LeaveType{TypeCasual, TypeEarned, TypeSick, TypeWFH, TypeCompOff}

// HasBalance reports whether this leave type draws from an account.
func (t LeaveType) HasBalance() bool {
	switch t {
	case TypeCasual, TypeEarned, TypeSick, TypeWFH, TypeCompOff:
		return true
	}
	return false
}

// Valid reports whether t is a known leave type.
func (t LeaveType) Valid() bool {
	switch t {
	case TypeCasual, TypeSick, TypeEarned, TypeWFH, TypeCompOff, TypeMaternity, TypeSabbatical:
		return true
	}
	return false
}

// =============================================================================
// REQUEST STATUS
// =============================================================================

type Status string

const (
	StatusPending               Status = "PENDING"
	StatusApproved              Status = "APPROVED"
	StatusRejected              Status = "REJECTED"
	StatusCancelled             Status = "CANCELLED"
	StatusCancellationRequested Status = "CANCELLATION_REQUESTED"
)

// Terminal reports whether no transition may leave this status.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCancelled
}

// =============================================================================
// BALANCE CHANGE TYPES
// =============================================================================

type ChangeType string

const (
	ChangeDeduction        ChangeType = "DEDUCTION"
	ChangeRefund           ChangeType = "REFUND"
	ChangeAccrual          ChangeType = "ACCRUAL"
	ChangeYearlyReset      ChangeType = "YEARLY_RESET"
	ChangeManualAdjustment ChangeType = "MANUAL_ADJUSTMENT"
	ChangeInitial          ChangeType = "INITIAL"
)

// =============================================================================
// ACCOUNT - Per-user, per-leave-type balance
// =============================================================================

// Account holds the current balance for one (user, leave type) pair.
// The balance is never persisted negative; every mutation goes through
// the Ledger which enforces that invariant.
type Account struct {
	UserID    string
	LeaveType LeaveType
	Balance   decimal.Decimal
	UpdatedAt time.Time
}

// =============================================================================
// HISTORY ENTRY - Immutable record of one balance change
// =============================================================================

// HistoryEntry records a single balance mutation. Entries are append-only:
// for every entry, PreviousBalance + Delta == NewBalance, and replaying all
// entries for an account in order reproduces its current balance.
type HistoryEntry struct {
	ID              string
	UserID          string
	LeaveType       LeaveType
	ChangeType      ChangeType
	Delta           decimal.Decimal
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
	Reason          string
	RequestID       string // related leave request, empty for job/manual changes
	ActorID         string // empty for system jobs
	CreatedAt       time.Time
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

// Request is a leave request. DeductibleDays is computed once at apply
// time and frozen; the balance is only touched on approval.
type Request struct {
	ID             string
	ApplicantID    string
	ApproverID     string // empty until an approver is assigned/acts
	Type           LeaveType
	StartDate      Date
	EndDate        *Date // nil = open-ended (sabbatical only)
	DeductibleDays decimal.Decimal
	Status         Status
	Reason         string
	RejectionNote  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OpenEnded reports whether the request has no end date.
func (r *Request) OpenEnded() bool { return r.EndDate == nil }

// =============================================================================
// COMP-OFF CLAIM
// =============================================================================

// CompOffClaim is a claim for a compensatory day off earned by working a
// non-working day. Approval credits one day to the claimant's COMP_OFF
// account; the claim itself never deducts anything.
type CompOffClaim struct {
	ID         string
	ClaimantID string
	ApproverID string
	WorkDate   Date
	Reason     string
	Status     Status // PENDING, APPROVED or REJECTED only
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// =============================================================================
// JOB RUN - Persisted lock row for periodic jobs
// =============================================================================

// JobRun records one successful execution of a periodic job. Its unique
// JobKey is the lock: at most one row per period ever exists, and its
// presence prevents re-execution.
type JobRun struct {
	JobKey      string // e.g. "monthly_accrual_2025_06", "yearly_reset_2025"
	ExecutedAt  time.Time
	TriggeredBy string // "scheduler" or the actor id of a manual trigger
	Summary     string
}

// JobStatus is the answer to "did the periodic jobs run for this period".
type JobStatus struct {
	MonthlyAccrualRanThisMonth bool `json:"monthly_accrual_ran_this_month"`
	YearlyResetRanThisYear     bool `json:"yearly_reset_ran_this_year"`
}

// =============================================================================
// USER - Directory record (owned by an external collaborator)
// =============================================================================

// User is the slice of the user directory this engine needs: identity,
// manager for approver routing, and the active flag for bulk jobs.
type User struct {
	ID         string
	EmployeeID string
	FullName   string
	Email      string
	ManagerID  string // empty if none
	Active     bool
	CreatedAt  time.Time
}

// =============================================================================
// POLICY QUOTAS
// =============================================================================

// Quotas are the yearly entitlements consumed as configuration.
// The engine never decides quota values itself.
type Quotas struct {
	CasualYearly decimal.Decimal
	SickYearly   decimal.Decimal
	WFHYearly    decimal.Decimal
}

// MonthlyCasualRate is the per-month casual accrual: quota/12, rounded to
// two decimal places to match balance storage precision.
func (q Quotas) MonthlyCasualRate() decimal.Decimal {
	return q.CasualYearly.Div(decimal.NewFromInt(12)).Round(2)
}
