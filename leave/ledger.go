/*
ledger.go - Atomic balance mutations with append-only history

PURPOSE:
  The Ledger is the single entry point for every balance change. Each
  operation is one read-modify-write that (a) rejects any write that would
  take a balance negative, (b) stores the new balance, and (c) appends
  exactly one history entry - inside one store transaction, so balance and
  history can never disagree.

WHY ONE ENTRY POINT?
  The system this replaces spread "read balance, compute, write balance"
  across call sites. A crash between read and write silently lost
  deductions. Funnelling every mutation through these methods removes that
  class of bug: there is no code path that touches a balance without also
  writing its history entry.

CASUAL-FIRST CONSUMPTION:
  Casual leave draws from the CASUAL account first, then from EARNED,
  never exceeding either pool. The split produces one DEDUCTION entry per
  account touched, so each account's history still replays exactly.

CORRECTIONS:
  History is never edited. A cancellation refunds by mirroring the
  request's DEDUCTION entries with equal-magnitude REFUND entries.

SEE ALSO:
  - store.go: the Tx contract these methods rely on
  - request.go: drives deductions/refunds from state transitions
  - jobs.go: drives accruals and resets in bulk
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger performs atomic balance mutations. Methods taking a Tx compose
// into larger units of work (approvals, job batches); the context-taking
// methods open their own transaction.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// =============================================================================
// IN-TRANSACTION PRIMITIVES
// =============================================================================

// Deduct removes amount from one account. Fails with
// InsufficientBalanceError if the account would go negative.
func (l *Ledger) Deduct(tx Tx, userID string, lt LeaveType, amount decimal.Decimal, reason, requestID, actorID string) error {
	acct, err := tx.Account(userID, lt)
	if err != nil {
		return err
	}
	if acct.Balance.LessThan(amount) {
		return &InsufficientBalanceError{
			UserID:    userID,
			LeaveType: lt,
			Available: acct.Balance,
			Requested: amount,
		}
	}
	return l.write(tx, acct, ChangeDeduction, amount.Neg(), reason, requestID, actorID)
}

// DeductCasual removes amount from the combined casual+earned pool:
// casual first, then earned. If the combined pool is insufficient nothing
// is touched.
func (l *Ledger) DeductCasual(tx Tx, userID string, amount decimal.Decimal, reason, requestID, actorID string) error {
	casual, err := tx.Account(userID, TypeCasual)
	if err != nil {
		return err
	}
	earned, err := tx.Account(userID, TypeEarned)
	if err != nil {
		return err
	}

	combined := casual.Balance.Add(earned.Balance)
	if combined.LessThan(amount) {
		return &InsufficientBalanceError{
			UserID:    userID,
			LeaveType: TypeCasual,
			Available: combined,
			Requested: amount,
		}
	}

	fromCasual := decimal.Min(casual.Balance, amount)
	remainder := amount.Sub(fromCasual)

	if fromCasual.IsPositive() {
		if err := l.write(tx, casual, ChangeDeduction, fromCasual.Neg(), reason, requestID, actorID); err != nil {
			return err
		}
	}
	if remainder.IsPositive() {
		if err := l.write(tx, earned, ChangeDeduction, remainder.Neg(), reason, requestID, actorID); err != nil {
			return err
		}
	}
	return nil
}

// Refund returns amount to one account.
func (l *Ledger) Refund(tx Tx, userID string, lt LeaveType, amount decimal.Decimal, reason, requestID, actorID string) error {
	acct, err := tx.Account(userID, lt)
	if err != nil {
		return err
	}
	return l.write(tx, acct, ChangeRefund, amount, reason, requestID, actorID)
}

// RefundForRequest mirrors every DEDUCTION recorded for a request with an
// equal-magnitude REFUND into the same account. A request that never
// deducted (maternity, sabbatical) refunds nothing.
func (l *Ledger) RefundForRequest(tx Tx, requestID, reason, actorID string) error {
	deductions, err := tx.DeductionsForRequest(requestID)
	if err != nil {
		return err
	}
	for _, d := range deductions {
		if err := l.Refund(tx, d.UserID, d.LeaveType, d.Delta.Neg(), reason, requestID, actorID); err != nil {
			return err
		}
	}
	return nil
}

// Accrue credits amount to one account.
func (l *Ledger) Accrue(tx Tx, userID string, lt LeaveType, amount decimal.Decimal, reason, actorID string) error {
	acct, err := tx.Account(userID, lt)
	if err != nil {
		return err
	}
	return l.write(tx, acct, ChangeAccrual, amount, reason, "", actorID)
}

// Reset sets an account to an absolute balance as part of a yearly reset.
// A no-op reset (balance unchanged) writes no history entry.
func (l *Ledger) Reset(tx Tx, userID string, lt LeaveType, newBalance decimal.Decimal, reason string) error {
	acct, err := tx.Account(userID, lt)
	if err != nil {
		return err
	}
	delta := newBalance.Sub(acct.Balance)
	if delta.IsZero() {
		return nil
	}
	return l.write(tx, acct, ChangeYearlyReset, delta, reason, "", "")
}

// Initialize seeds a fresh account with an INITIAL entry. Used at user
// creation; a zero seed still writes the entry so history starts at a
// known point.
func (l *Ledger) Initialize(tx Tx, userID string, lt LeaveType, seed decimal.Decimal, actorID string) error {
	acct, err := tx.Account(userID, lt)
	if err != nil {
		return err
	}
	entry := l.entry(acct, ChangeInitial, seed, "account created", "", actorID)
	if err := tx.SaveBalance(userID, lt, entry.NewBalance); err != nil {
		return err
	}
	return tx.AppendHistory(entry)
}

// write is the single balance-mutation path: guard, save, append.
func (l *Ledger) write(tx Tx, acct Account, change ChangeType, delta decimal.Decimal, reason, requestID, actorID string) error {
	entry := l.entry(acct, change, delta, reason, requestID, actorID)
	if entry.NewBalance.IsNegative() {
		return &InsufficientBalanceError{
			UserID:    acct.UserID,
			LeaveType: acct.LeaveType,
			Available: acct.Balance,
			Requested: delta.Neg(),
		}
	}
	if err := tx.SaveBalance(acct.UserID, acct.LeaveType, entry.NewBalance); err != nil {
		return err
	}
	return tx.AppendHistory(entry)
}

func (l *Ledger) entry(acct Account, change ChangeType, delta decimal.Decimal, reason, requestID, actorID string) HistoryEntry {
	return HistoryEntry{
		ID:              uuid.NewString(),
		UserID:          acct.UserID,
		LeaveType:       acct.LeaveType,
		ChangeType:      change,
		Delta:           delta,
		PreviousBalance: acct.Balance,
		NewBalance:      acct.Balance.Add(delta),
		Reason:          reason,
		RequestID:       requestID,
		ActorID:         actorID,
		CreatedAt:       time.Now().UTC(),
	}
}

// =============================================================================
// STANDALONE OPERATIONS
// =============================================================================

// Adjust applies a signed manual correction in its own transaction and
// records both the history entry and an audit entry.
func (l *Ledger) Adjust(ctx context.Context, userID string, lt LeaveType, delta decimal.Decimal, reason, actorID string) error {
	if !lt.HasBalance() {
		return &InvalidRangeError{Detail: string(lt) + " has no balance account"}
	}
	return l.store.WithTx(ctx, func(tx Tx) error {
		acct, err := tx.Account(userID, lt)
		if err != nil {
			return err
		}
		if err := l.write(tx, acct, ChangeManualAdjustment, delta, reason, "", actorID); err != nil {
			return err
		}
		return tx.AppendAudit(AuditEntry{
			ID:       uuid.NewString(),
			ActorID:  actorID,
			Action:   AuditBalanceAdjusted,
			Entity:   "BALANCE",
			EntityID: userID,
			OldValues: map[string]any{
				"leave_type": lt, "balance": acct.Balance,
			},
			NewValues: map[string]any{
				"leave_type": lt, "balance": acct.Balance.Add(delta),
			},
			Summary:   "manual balance adjustment: " + reason,
			CreatedAt: time.Now().UTC(),
		})
	})
}

// Balances returns a user's accounts.
func (l *Ledger) Balances(ctx context.Context, userID string) ([]Account, error) {
	return l.store.Accounts(ctx, userID)
}

// History returns a user's balance history in chronological order.
func (l *Ledger) History(ctx context.Context, userID string, lt LeaveType) ([]HistoryEntry, error) {
	return l.store.History(ctx, userID, lt)
}

// =============================================================================
// REPLAY - History validation
// =============================================================================

// Replay walks an account's history in order and returns the final
// balance. It fails if any entry's arithmetic is inconsistent or if the
// chain does not link (an entry's previous balance must equal its
// predecessor's new balance).
func Replay(entries []HistoryEntry) (decimal.Decimal, error) {
	balance := decimal.Zero
	for i, e := range entries {
		if !e.PreviousBalance.Add(e.Delta).Equal(e.NewBalance) {
			return decimal.Zero, fmt.Errorf("%w: entry %s arithmetic does not hold", ErrHistoryInconsistent, e.ID)
		}
		if i > 0 && !e.PreviousBalance.Equal(entries[i-1].NewBalance) {
			return decimal.Zero, fmt.Errorf("%w: chain broken at entry %s", ErrHistoryInconsistent, e.ID)
		}
		balance = e.NewBalance
	}
	return balance, nil
}
