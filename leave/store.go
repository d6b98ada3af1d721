/*
store.go - Persistence interfaces for the leave engine

PURPOSE:
  Defines the boundary between domain logic and the database. All writes
  happen inside WithTx: the store must guarantee that the callback's
  mutations commit together or not at all. That single rule is what makes
  ledger operations, state transitions and job batches all-or-nothing.

CONCURRENCY CONTRACT:
  - TransitionRequest / TransitionClaim are compare-and-swap updates on the
    status column. When the row is no longer in the expected status the
    store returns ErrAlreadyProcessed; of two racing approvers exactly one
    succeeds.
  - InsertJobRun is a conditional insert on the unique job key. The second
    caller for a period gets ErrAlreadyLocked. No held locks, no deadlock.

IMPLEMENTATIONS:
  - store/sqlite: production store (sqlx over mattn/go-sqlite3)
  - leave/store:  in-memory store for engine tests

SEE ALSO:
  - ledger.go, request.go, jobs.go: the only writers
*/
package leave

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Reads plus transactional writes
// =============================================================================

type Store interface {
	// WithTx executes fn inside one unit of work. If fn returns an error
	// every mutation it made is rolled back.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// Request returns a leave request, ErrNotFound if unknown.
	Request(ctx context.Context, id string) (*Request, error)

	// RequestsByApplicant returns all requests for a user, newest first.
	RequestsByApplicant(ctx context.Context, applicantID string) ([]Request, error)

	// PendingRequests returns PENDING and CANCELLATION_REQUESTED requests,
	// optionally filtered to one approver (empty string = all).
	PendingRequests(ctx context.Context, approverID string) ([]Request, error)

	// Claim returns a comp-off claim, ErrNotFound if unknown.
	Claim(ctx context.Context, id string) (*CompOffClaim, error)

	// PendingClaims returns PENDING comp-off claims, optionally filtered
	// to one approver (empty string = all).
	PendingClaims(ctx context.Context, approverID string) ([]CompOffClaim, error)

	// Accounts returns all leave accounts for a user.
	Accounts(ctx context.Context, userID string) ([]Account, error)

	// History returns balance history for a user in chronological order,
	// optionally filtered to one leave type (empty string = all).
	History(ctx context.Context, userID string, leaveType LeaveType) ([]HistoryEntry, error)

	// JobRun returns the lock row for a period key, ErrNotFound if the
	// period has never completed.
	JobRun(ctx context.Context, jobKey string) (*JobRun, error)
}

// =============================================================================
// TX - One serializable unit of work
// =============================================================================

type Tx interface {
	// Account returns the account for (user, leave type). A user with no
	// row yet reads as a zero balance; SaveBalance creates the row.
	Account(userID string, leaveType LeaveType) (Account, error)

	// SaveBalance writes the new balance for (user, leave type).
	SaveBalance(userID string, leaveType LeaveType, balance decimal.Decimal) error

	// AppendHistory appends one immutable history entry.
	AppendHistory(entry HistoryEntry) error

	// DeductionsForRequest returns the DEDUCTION entries recorded for a
	// request, in the order they were written. Used to build refunds.
	DeductionsForRequest(requestID string) ([]HistoryEntry, error)

	// Request returns a leave request, ErrNotFound if unknown.
	Request(id string) (*Request, error)

	// InsertRequest persists a new request.
	InsertRequest(r *Request) error

	// TransitionRequest moves a request from one status to another as a
	// compare-and-swap. approverID and note are written when non-empty.
	// Returns ErrAlreadyProcessed when the request left `from` already.
	TransitionRequest(id string, from, to Status, approverID, note string) error

	// ActiveRequests returns the applicant's PENDING, APPROVED and
	// CANCELLATION_REQUESTED requests, for overlap validation.
	ActiveRequests(applicantID string) ([]Request, error)

	// Claim returns a comp-off claim, ErrNotFound if unknown.
	Claim(id string) (*CompOffClaim, error)

	// InsertClaim persists a new comp-off claim.
	InsertClaim(c *CompOffClaim) error

	// TransitionClaim is the comp-off counterpart of TransitionRequest.
	TransitionClaim(id string, from, to Status, approverID string) error

	// InsertJobRun writes the lock row for a completed job period.
	// Returns ErrAlreadyLocked when the period key already exists.
	InsertJobRun(run JobRun) error

	// InsertUser persists a new user record.
	InsertUser(u *User) error

	// ActiveUsers returns every active user, for bulk jobs.
	ActiveUsers() ([]User, error)

	// AppendAudit appends one audit trail entry.
	AppendAudit(entry AuditEntry) error
}

// =============================================================================
// DIRECTORY - User lookups (external collaborator)
// =============================================================================

// Directory is the slice of the user service the engine consumes. The
// sqlite store implements it over its users table.
type Directory interface {
	User(ctx context.Context, id string) (*User, error)
	ActiveUsers(ctx context.Context) ([]User, error)
}
