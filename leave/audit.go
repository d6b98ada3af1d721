package leave

import (
	"context"
	"time"
)

// =============================================================================
// AUDIT TRAIL - Who did what, with before/after state
// =============================================================================

// AuditEntry records one state-changing action. Entries are written inside
// the same transaction as the change they describe, so the trail can never
// show an action whose effect was rolled back.
type AuditEntry struct {
	ID        string
	ActorID   string // empty for system jobs
	Action    AuditAction
	Entity    string // "LEAVE", "COMP_OFF", "BALANCE", "JOB"
	EntityID  string
	OldValues map[string]any
	NewValues map[string]any
	Summary   string
	CreatedAt time.Time
}

type AuditAction string

const (
	AuditLeaveApplied          AuditAction = "leave_applied"
	AuditLeaveApproved         AuditAction = "leave_approved"
	AuditLeaveRejected         AuditAction = "leave_rejected"
	AuditLeaveCancelled        AuditAction = "leave_cancelled"
	AuditCancellationRequested AuditAction = "cancellation_requested"
	AuditCompOffClaimed        AuditAction = "comp_off_claimed"
	AuditCompOffApproved       AuditAction = "comp_off_approved"
	AuditCompOffRejected       AuditAction = "comp_off_rejected"
	AuditBalanceAdjusted       AuditAction = "balance_adjusted"
	AuditJobCompleted          AuditAction = "job_completed"
)

// AuditLog is the read side of the trail. Writes go through Tx.AppendAudit
// so they share the mutation's transaction.
type AuditLog interface {
	AuditByEntity(ctx context.Context, entity, entityID string) ([]AuditEntry, error)
}
