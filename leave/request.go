/*
request.go - Leave request lifecycle and state machine

PURPOSE:
  Orchestrates the full lifecycle of leave requests and comp-off claims:

    PENDING ──APPROVE──▶ APPROVED ──cancel──────────────▶ CANCELLED
       │                    │                                 ▲
       │                    └──request cancellation──▶        │
       │                        CANCELLATION_REQUESTED ──APPROVE
       │                                │
       │                                └──REJECT──▶ back to APPROVED
       ├──REJECT──▶ REJECTED (terminal)
       └──withdraw─▶ CANCELLED (terminal)

  Applying never touches a balance. The deduction happens on approval,
  inside the same transaction as the status transition, so two racing
  approvers resolve to one success and one ErrAlreadyProcessed with
  exactly one deduction on the books.

CANCELLATION:
  Cancelling an APPROVED leave always refunds, immediately and in full:
  every DEDUCTION the approval wrote is mirrored by an equal REFUND.
  CANCELLATION_REQUESTED exists for manager visibility only - it never
  blocks the refund, and a manager rejecting the cancellation simply
  restores APPROVED with no balance effect.

COMP-OFF:
  A comp-off claim is balance-increasing: approval credits one day to the
  claimant's COMP_OFF account. Spending comp-off is an ordinary COMP_OFF
  leave request that deducts on approval.

SEE ALSO:
  - deductible.go: day calculation at apply time
  - ledger.go: the balance mutations transitions drive
*/
package leave

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Action is an approver's decision on a request or claim.
type Action string

const (
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
)

// Service drives the request state machine. All mutating methods return
// the updated entity or a typed error; the caller's authorization is
// assumed to have happened upstream.
type Service struct {
	store    Store
	ledger   *Ledger
	dir      Directory
	calendar HolidayCalendar
	weekend  Weekend
	notifier Notifier
	log      *zap.Logger
}

func NewService(store Store, ledger *Ledger, dir Directory, calendar HolidayCalendar, notifier Notifier, log *zap.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		ledger:   ledger,
		dir:      dir,
		calendar: calendar,
		weekend:  DefaultWeekend(),
		notifier: notifier,
		log:      log,
	}
}

// =============================================================================
// APPLY
// =============================================================================

type ApplyInput struct {
	ApplicantID string
	Type        LeaveType
	StartDate   Date
	EndDate     *Date
	Reason      string
}

// Apply validates the request, computes and freezes its deductible days,
// and creates it PENDING. No balance is touched.
func (s *Service) Apply(ctx context.Context, in ApplyInput) (*Request, error) {
	if !in.Type.Valid() {
		return nil, &InvalidRangeError{Detail: "unknown leave type " + string(in.Type)}
	}
	// Earned leave is consumed through the casual pool, never applied for
	// directly.
	if in.Type == TypeEarned {
		return nil, &InvalidRangeError{Detail: "earned leave is drawn via CASUAL requests"}
	}

	applicant, err := s.dir.User(ctx, in.ApplicantID)
	if err != nil {
		return nil, err
	}

	start := in.StartDate
	end := in.EndDate
	if in.Type == TypeMaternity {
		// The stored end date always matches the fixed 180-day span,
		// whatever the caller sent.
		e := MaternityEnd(start)
		end = &e
	}

	holidays, err := s.holidaysFor(ctx, in.Type, start, end)
	if err != nil {
		return nil, err
	}

	days, err := DeductibleDays(in.Type, start, end, holidays, s.weekend)
	if err != nil {
		return nil, err
	}

	req := &Request{
		ID:             uuid.NewString(),
		ApplicantID:    applicant.ID,
		ApproverID:     applicant.ManagerID,
		Type:           in.Type,
		StartDate:      start,
		EndDate:        end,
		DeductibleDays: days,
		Status:         StatusPending,
		Reason:         in.Reason,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	err = s.store.WithTx(ctx, func(tx Tx) error {
		if err := s.checkOverlap(tx, applicant.ID, start, end); err != nil {
			return err
		}
		// Advisory pre-check so applicants learn about a shortfall now
		// rather than at approval. The approval re-checks inside its own
		// transaction; this one holds no reservation.
		if err := s.checkBalance(tx, applicant.ID, in.Type, days); err != nil {
			return err
		}
		if err := tx.InsertRequest(req); err != nil {
			return err
		}
		return tx.AppendAudit(AuditEntry{
			ID:       uuid.NewString(),
			ActorID:  applicant.ID,
			Action:   AuditLeaveApplied,
			Entity:   "LEAVE",
			EntityID: req.ID,
			NewValues: map[string]any{
				"type": req.Type, "start_date": start.String(),
				"end_date": dateString(end), "deductible_days": days,
				"status": StatusPending,
			},
			Summary:   applicant.FullName + " applied for " + string(in.Type) + " leave",
			CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.LeaveApplied(req)
	return req, nil
}

// holidaysFor loads the holiday set for working-day leave types. Maternity
// and sabbatical ignore holidays entirely.
func (s *Service) holidaysFor(ctx context.Context, typ LeaveType, start Date, end *Date) (HolidaySet, error) {
	if typ == TypeMaternity || typ == TypeSabbatical || end == nil {
		return nil, nil
	}
	holidays, err := s.calendar.HolidaysInRange(ctx, start, *end)
	if err != nil {
		return nil, err
	}
	return NewHolidaySet(holidays), nil
}

// checkOverlap rejects spans colliding with the applicant's pending or
// approved leaves, including open-ended sabbaticals on either side.
func (s *Service) checkOverlap(tx Tx, applicantID string, start Date, end *Date) error {
	active, err := tx.ActiveRequests(applicantID)
	if err != nil {
		return err
	}
	for _, existing := range active {
		if spansOverlap(start, end, existing.StartDate, existing.EndDate) {
			return &OverlapError{
				ExistingID:    existing.ID,
				ExistingStart: existing.StartDate,
				ExistingEnd:   existing.EndDate,
			}
		}
	}
	return nil
}

func spansOverlap(aStart Date, aEnd *Date, bStart Date, bEnd *Date) bool {
	switch {
	case aEnd != nil && bEnd != nil:
		return bStart.BeforeOrEqual(*aEnd) && bEnd.AfterOrEqual(aStart)
	case bEnd == nil && aEnd != nil:
		// Existing open-ended leave blocks everything from its start on.
		return aEnd.AfterOrEqual(bStart)
	case aEnd == nil && bEnd != nil:
		return bEnd.AfterOrEqual(aStart)
	default:
		// Both open-ended.
		return true
	}
}

func (s *Service) checkBalance(tx Tx, userID string, typ LeaveType, days decimal.Decimal) error {
	if !typ.HasBalance() {
		return nil
	}
	if typ == TypeCasual {
		casual, err := tx.Account(userID, TypeCasual)
		if err != nil {
			return err
		}
		earned, err := tx.Account(userID, TypeEarned)
		if err != nil {
			return err
		}
		combined := casual.Balance.Add(earned.Balance)
		if combined.LessThan(days) {
			return &InsufficientBalanceError{UserID: userID, LeaveType: TypeCasual, Available: combined, Requested: days}
		}
		return nil
	}
	acct, err := tx.Account(userID, typ)
	if err != nil {
		return err
	}
	if acct.Balance.LessThan(days) {
		return &InsufficientBalanceError{UserID: userID, LeaveType: typ, Available: acct.Balance, Requested: days}
	}
	return nil
}

// =============================================================================
// ACT - Approve or reject
// =============================================================================

// Act applies an approver's decision. On a PENDING request, APPROVE
// transitions to APPROVED and deducts atomically; REJECT requires a note.
// On a CANCELLATION_REQUESTED request, APPROVE cancels and refunds,
// REJECT restores APPROVED. A raced decision returns ErrAlreadyProcessed.
func (s *Service) Act(ctx context.Context, id string, action Action, note, actorID string) (*Request, error) {
	if action != ActionApprove && action != ActionReject {
		return nil, &InvalidRangeError{Detail: "unknown action " + string(action)}
	}

	var result *Request
	err := s.store.WithTx(ctx, func(tx Tx) error {
		req, err := tx.Request(id)
		if err != nil {
			return err
		}

		switch req.Status {
		case StatusPending:
			if action == ActionApprove {
				return s.approvePending(tx, req, note, actorID)
			}
			return s.rejectPending(tx, req, note, actorID)

		case StatusCancellationRequested:
			if action == ActionApprove {
				return s.completeCancellation(tx, req, actorID)
			}
			// Rejecting the cancellation restores the approved leave.
			if err := tx.TransitionRequest(req.ID, StatusCancellationRequested, StatusApproved, actorID, note); err != nil {
				return err
			}
			req.Status = StatusApproved
			return s.auditDecision(tx, req, AuditLeaveApproved, StatusCancellationRequested, actorID, "cancellation rejected")

		default:
			return ErrAlreadyProcessed
		}
	})
	if err != nil {
		return nil, err
	}

	result, err = s.store.Request(ctx, id)
	if err != nil {
		return nil, err
	}
	s.notifier.LeaveDecided(result)
	return result, nil
}

func (s *Service) approvePending(tx Tx, req *Request, note, actorID string) error {
	// The CAS transition is the race arbiter; the deduction below shares
	// its transaction, so a loser rolls back without touching balances.
	if err := tx.TransitionRequest(req.ID, StatusPending, StatusApproved, actorID, note); err != nil {
		return err
	}

	switch {
	case req.Type == TypeCasual:
		if err := s.ledger.DeductCasual(tx, req.ApplicantID, req.DeductibleDays, "leave approved", req.ID, actorID); err != nil {
			return err
		}
	case req.Type.HasBalance():
		if err := s.ledger.Deduct(tx, req.ApplicantID, req.Type, req.DeductibleDays, "leave approved", req.ID, actorID); err != nil {
			return err
		}
	default:
		// Maternity and sabbatical are tracked, not charged.
	}

	req.Status = StatusApproved
	return s.auditDecision(tx, req, AuditLeaveApproved, StatusPending, actorID, "")
}

func (s *Service) rejectPending(tx Tx, req *Request, note, actorID string) error {
	if strings.TrimSpace(note) == "" {
		return ErrRejectionNoteRequired
	}
	if err := tx.TransitionRequest(req.ID, StatusPending, StatusRejected, actorID, note); err != nil {
		return err
	}
	req.Status = StatusRejected
	return s.auditDecision(tx, req, AuditLeaveRejected, StatusPending, actorID, note)
}

func (s *Service) completeCancellation(tx Tx, req *Request, actorID string) error {
	if err := tx.TransitionRequest(req.ID, req.Status, StatusCancelled, actorID, ""); err != nil {
		return err
	}
	if err := s.ledger.RefundForRequest(tx, req.ID, "leave cancelled", actorID); err != nil {
		return err
	}
	from := req.Status
	req.Status = StatusCancelled
	return s.auditDecision(tx, req, AuditLeaveCancelled, from, actorID, "")
}

func (s *Service) auditDecision(tx Tx, req *Request, action AuditAction, from Status, actorID, note string) error {
	return tx.AppendAudit(AuditEntry{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Action:    action,
		Entity:    "LEAVE",
		EntityID:  req.ID,
		OldValues: map[string]any{"status": from},
		NewValues: map[string]any{"status": req.Status, "note": note},
		Summary:   string(action) + " for request " + req.ID,
		CreatedAt: time.Now().UTC(),
	})
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel is the applicant-side cancellation. A PENDING request is simply
// withdrawn. An APPROVED (or CANCELLATION_REQUESTED) request is cancelled
// with an immediate, full refund of what its approval deducted - no
// manager action gates the refund.
func (s *Service) Cancel(ctx context.Context, id, actorID string) (*Request, error) {
	err := s.store.WithTx(ctx, func(tx Tx) error {
		req, err := tx.Request(id)
		if err != nil {
			return err
		}

		switch req.Status {
		case StatusPending:
			if err := tx.TransitionRequest(req.ID, StatusPending, StatusCancelled, "", ""); err != nil {
				return err
			}
			req.Status = StatusCancelled
			return s.auditDecision(tx, req, AuditLeaveCancelled, StatusPending, actorID, "withdrawn before decision")

		case StatusApproved, StatusCancellationRequested:
			return s.completeCancellation(tx, req, actorID)

		default:
			return ErrAlreadyProcessed
		}
	})
	if err != nil {
		return nil, err
	}
	return s.store.Request(ctx, id)
}

// RequestCancellation marks an APPROVED leave for manager visibility
// before cancelling. Purely informational: the applicant can still cancel
// outright, and the eventual refund is unconditional.
func (s *Service) RequestCancellation(ctx context.Context, id, actorID string) (*Request, error) {
	err := s.store.WithTx(ctx, func(tx Tx) error {
		req, err := tx.Request(id)
		if err != nil {
			return err
		}
		if req.Status != StatusApproved {
			return ErrAlreadyProcessed
		}
		if err := tx.TransitionRequest(req.ID, StatusApproved, StatusCancellationRequested, "", ""); err != nil {
			return err
		}
		req.Status = StatusCancellationRequested
		return s.auditDecision(tx, req, AuditCancellationRequested, StatusApproved, actorID, "")
	})
	if err != nil {
		return nil, err
	}
	return s.store.Request(ctx, id)
}

// =============================================================================
// COMP-OFF CLAIMS
// =============================================================================

type ClaimInput struct {
	ClaimantID string
	WorkDate   Date
	Reason     string
}

// ClaimCompOff records that the claimant worked a non-working day. The
// work date may not be in the future and a reason is required.
func (s *Service) ClaimCompOff(ctx context.Context, in ClaimInput) (*CompOffClaim, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, &InvalidRangeError{Detail: "comp-off claims require a reason"}
	}
	if in.WorkDate.After(DateOf(time.Now().UTC())) {
		return nil, &InvalidRangeError{Detail: "cannot claim comp-off for a future date"}
	}

	claimant, err := s.dir.User(ctx, in.ClaimantID)
	if err != nil {
		return nil, err
	}

	claim := &CompOffClaim{
		ID:         uuid.NewString(),
		ClaimantID: claimant.ID,
		ApproverID: claimant.ManagerID,
		WorkDate:   in.WorkDate,
		Reason:     in.Reason,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	err = s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertClaim(claim); err != nil {
			return err
		}
		return tx.AppendAudit(AuditEntry{
			ID:        uuid.NewString(),
			ActorID:   claimant.ID,
			Action:    AuditCompOffClaimed,
			Entity:    "COMP_OFF",
			EntityID:  claim.ID,
			NewValues: map[string]any{"work_date": in.WorkDate.String(), "status": StatusPending},
			Summary:   claimant.FullName + " claimed comp-off for " + in.WorkDate.String(),
			CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// ActOnClaim approves or rejects a comp-off claim. Approval credits
// exactly one day to the claimant's COMP_OFF account in the same
// transaction as the status transition.
func (s *Service) ActOnClaim(ctx context.Context, id string, action Action, actorID string) (*CompOffClaim, error) {
	if action != ActionApprove && action != ActionReject {
		return nil, &InvalidRangeError{Detail: "unknown action " + string(action)}
	}

	err := s.store.WithTx(ctx, func(tx Tx) error {
		claim, err := tx.Claim(id)
		if err != nil {
			return err
		}
		if claim.Status != StatusPending {
			return ErrAlreadyProcessed
		}

		to := StatusApproved
		auditAction := AuditCompOffApproved
		if action == ActionReject {
			to = StatusRejected
			auditAction = AuditCompOffRejected
		}
		if err := tx.TransitionClaim(claim.ID, StatusPending, to, actorID); err != nil {
			return err
		}

		if action == ActionApprove {
			if err := s.ledger.Accrue(tx, claim.ClaimantID, TypeCompOff, decimal.NewFromInt(1),
				"comp-off claim approved for "+claim.WorkDate.String(), actorID); err != nil {
				return err
			}
		}

		return tx.AppendAudit(AuditEntry{
			ID:        uuid.NewString(),
			ActorID:   actorID,
			Action:    auditAction,
			Entity:    "COMP_OFF",
			EntityID:  claim.ID,
			OldValues: map[string]any{"status": StatusPending},
			NewValues: map[string]any{"status": to},
			Summary:   string(auditAction) + " for claim " + claim.ID,
			CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.store.Claim(ctx, id)
}

// =============================================================================
// READS
// =============================================================================

// Get returns one request.
func (s *Service) Get(ctx context.Context, id string) (*Request, error) {
	return s.store.Request(ctx, id)
}

// ListByApplicant returns a user's requests, newest first.
func (s *Service) ListByApplicant(ctx context.Context, applicantID string) ([]Request, error) {
	return s.store.RequestsByApplicant(ctx, applicantID)
}

// ListPending returns requests awaiting a decision, optionally scoped to
// one approver.
func (s *Service) ListPending(ctx context.Context, approverID string) ([]Request, error) {
	return s.store.PendingRequests(ctx, approverID)
}

// ListPendingClaims returns comp-off claims awaiting a decision.
func (s *Service) ListPendingClaims(ctx context.Context, approverID string) ([]CompOffClaim, error) {
	return s.store.PendingClaims(ctx, approverID)
}

func dateString(d *Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
