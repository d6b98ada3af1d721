package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/leave/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) (*store.Memory, *leave.Ledger, *leave.Service) {
	t.Helper()
	mem := store.NewMemory()
	mem.AddUser(leave.User{
		ID: "mgr-1", EmployeeID: "E100", FullName: "Priya Nair",
		Email: "priya@example.com", Active: true,
	})
	mem.AddUser(leave.User{
		ID: "emp-1", EmployeeID: "E101", FullName: "Asha Rao",
		Email: "asha@example.com", ManagerID: "mgr-1", Active: true,
	})
	ledger := leave.NewLedger(mem)
	svc := leave.NewService(mem, ledger, mem, mem, nil, nil)
	return mem, ledger, svc
}

func mustApply(t *testing.T, svc *leave.Service, in leave.ApplyInput) *leave.Request {
	t.Helper()
	req, err := svc.Apply(context.Background(), in)
	require.NoError(t, err)
	return req
}

func weekLeave(typ leave.LeaveType) leave.ApplyInput {
	end := leave.NewDate(2025, time.June, 6) // Friday
	return leave.ApplyInput{
		ApplicantID: "emp-1",
		Type:        typ,
		StartDate:   leave.NewDate(2025, time.June, 2), // Monday
		EndDate:     &end,
		Reason:      "family visit",
	}
}

// =============================================================================
// APPLY
// =============================================================================

func TestApply_CreatesPendingWithFrozenDays(t *testing.T) {
	// GIVEN: A holiday inside the requested span
	mem, _, svc := newTestService(t)
	seedBalance(t, mem, leave.NewLedger(mem), "emp-1", leave.TypeCasual, "10")
	mem.AddHoliday(leave.Holiday{
		ID: "h1", Date: leave.NewDate(2025, time.June, 4), Name: "Founders Day", Year: 2025,
	})

	// WHEN: Applying for a Monday-to-Friday casual leave
	req := mustApply(t, svc, weekLeave(leave.TypeCasual))

	// THEN: The request is pending, routed to the manager, with the holiday
	// excluded from the frozen day count
	assert.Equal(t, leave.StatusPending, req.Status)
	assert.Equal(t, "mgr-1", req.ApproverID)
	assert.Equal(t, "4", req.DeductibleDays.String())

	// AND: No balance was touched
	history, err := mem.History(context.Background(), "emp-1", leave.TypeCasual)
	require.NoError(t, err)
	assert.Len(t, history, 1, "only the seed entry should exist")
}

func TestApply_EarnedLeave_Rejected(t *testing.T) {
	_, _, svc := newTestService(t)

	_, err := svc.Apply(context.Background(), weekLeave(leave.TypeEarned))
	assert.ErrorIs(t, err, leave.ErrInvalidRange)
}

func TestApply_UnknownType_Rejected(t *testing.T) {
	_, _, svc := newTestService(t)

	in := weekLeave("BEREAVEMENT")
	_, err := svc.Apply(context.Background(), in)
	assert.ErrorIs(t, err, leave.ErrInvalidRange)
}

func TestApply_UnknownApplicant_NotFound(t *testing.T) {
	_, _, svc := newTestService(t)

	in := weekLeave(leave.TypeCasual)
	in.ApplicantID = "ghost"
	_, err := svc.Apply(context.Background(), in)
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestApply_Maternity_EndDatePinned(t *testing.T) {
	// GIVEN: A maternity application with a wrong end date
	_, _, svc := newTestService(t)
	wrongEnd := leave.NewDate(2025, time.June, 10)

	// WHEN: Applying
	req := mustApply(t, svc, leave.ApplyInput{
		ApplicantID: "emp-1",
		Type:        leave.TypeMaternity,
		StartDate:   leave.NewDate(2025, time.June, 2),
		EndDate:     &wrongEnd,
		Reason:      "maternity",
	})

	// THEN: The stored end date is forced to the fixed 180-day span
	require.NotNil(t, req.EndDate)
	assert.Equal(t, leave.MaternityEnd(req.StartDate).String(), req.EndDate.String())
	assert.Equal(t, "180", req.DeductibleDays.String())
}

func TestApply_InsufficientCombinedPool_Rejected(t *testing.T) {
	// GIVEN: 1 casual + 1 earned day against a 5 day request
	mem, ledger, svc := newTestService(t)
	seedBalance(t, mem, ledger, "emp-1", leave.TypeCasual, "1")
	seedBalance(t, mem, ledger, "emp-1", leave.TypeEarned, "1")

	// WHEN: Applying for a full week
	_, err := svc.Apply(context.Background(), weekLeave(leave.TypeCasual))

	// THEN: The advisory balance check fails at apply time
	require.Error(t, err)
	var balErr *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &balErr)
	assert.Equal(t, "2", balErr.Available.String())
}

// =============================================================================
// OVERLAPS
// =============================================================================

func TestApply_OverlappingSpan_Rejected(t *testing.T) {
	// GIVEN: A pending leave for the first week of June
	mem, ledger, svc := newTestService(t)
	seedBalance(t, mem, ledger, "emp-1", leave.TypeCasual, "20")
	existing := mustApply(t, svc, weekLeave(leave.TypeCasual))

	// WHEN: Applying for a span that intersects it
	end := leave.NewDate(2025, time.June, 9)
	_, err := svc.Apply(context.Background(), leave.ApplyInput{
		ApplicantID: "emp-1",
		Type:        leave.TypeCasual,
		StartDate:   leave.NewDate(2025, time.June, 5),
		EndDate:     &end,
		Reason:      "second trip",
	})

	// THEN: The collision names the existing leave
	require.Error(t, err)
	var overlap *leave.OverlapError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, existing.ID, overlap.ExistingID)
	assert.ErrorIs(t, err, leave.ErrOverlappingLeave)
}

func TestApply_AdjacentSpan_Allowed(t *testing.T) {
	mem, ledger, svc := newTestService(t)
	seedBalance(t, mem, ledger, "emp-1", leave.TypeCasual, "20")
	mustApply(t, svc, weekLeave(leave.TypeCasual))

	// The following Monday touches nothing.
	end := leave.NewDate(2025, time.June, 9)
	_, err := svc.Apply(context.Background(), leave.ApplyInput{
		ApplicantID: "emp-1",
		Type:        leave.TypeCasual,
		StartDate:   leave.NewDate(2025, time.June, 9),
		EndDate:     &end,
		Reason:      "one more day",
	})
	assert.NoError(t, err)
}

func TestApply_OpenEndedSabbaticalBlocksLaterLeave(t *testing.T) {
	// GIVEN: An open-ended sabbatical starting July 1st
	mem, ledger, svc := newTestService(t)
	seedBalance(t, mem, ledger, "emp-1", leave.TypeCasual, "20")
	mustApply(t, svc, leave.ApplyInput{
		ApplicantID: "emp-1",
		Type:        leave.TypeSabbatical,
		StartDate:   leave.NewDate(2025, time.July, 1),
		Reason:      "research year",
	})

	// WHEN: Applying for leave after the sabbatical begins
	end := leave.NewDate(2025, time.September, 5)
	_, err := svc.Apply(context.Background(), leave.ApplyInput{
		ApplicantID: "emp-1",
		Type:        leave.TypeCasual,
		StartDate:   leave.NewDate(2025, time.September, 1),
		EndDate:     &end,
		Reason:      "trip",
	})

	// THEN: The open-ended span blocks it
	assert.ErrorIs(t, err, leave.ErrOverlappingLeave)

	// AND: Leave that ends before the sabbatical starts is fine
	end = leave.NewDate(2025, time.June, 6)
	_, err = svc.Apply(context.Background(), leave.ApplyInput{
		ApplicantID: "emp-1",
		Type:        leave.TypeCasual,
		StartDate:   leave.NewDate(2025, time.June, 2),
		EndDate:     &end,
		Reason:      "before it starts",
	})
	assert.NoError(t, err)
}

// =============================================================================
// APPROVE / REJECT
// =============================================================================

func TestAct_ApproveDeductsAtomically(t *testing.T) {
	// GIVEN: A pending 5 day casual leave with 3 casual + 4 earned
	mem, ledger, svc := newTestService(t)
	seedBalance(t, mem, ledger, "emp-1", leave.TypeCasual, "3")
	seedBalance(t, mem, ledger, "emp-1", leave.TypeEarned, "4")
	req := mustApply(t, svc, weekLeave(leave.TypeCasual))

	// WHEN: The manager approves
	updated, err := svc.Act(context.Background(), req.ID, leave.ActionApprove, "", "mgr-1")
	require.NoError(t, err)

	// THEN: The request is approved and the split deduction landed
	assert.Equal(t, leave.StatusApproved, updated.Status)
	assert.Equal(t, "0", balanceOf(t, mem, "emp-1", leave.TypeCasual).String())
	assert.Equal(t, "2", balanceOf(t, mem, "emp-1", leave.TypeEarned).String())
}

func TestAct_SecondApproval_AlreadyProcessed(t *testing.T) {
	// GIVEN: An already approved request
	mem, ledger, svc := newTestService(t)
	seedBalance(t, mem, ledger, "emp-1", leave.TypeCasual, "10")
	req := mustApply(t, svc, weekLeave(leave.TypeCasual))
	_, err := svc.Act(context.Background(), req.ID, leave.ActionApprove, "", "mgr-1")
	require.NoError(t, err)

	// WHEN: A second approver races in
	_, err = svc.Act(context.Background(), req.ID, leave.ActionApprove, "", "mgr-2")

	// THEN: The loser gets a conflict and no second deduction exists
	assert.ErrorIs(t, err, leave.ErrAlreadyProcessed)
	assert.Equal(t, "5", balanceOf(t, mem, "emp-1", leave.TypeCasual).String())
}

func TestAct_RejectWithoutNote_Rejected(t *testing.T) {
	mem, ledger, svc := newTestService(t)
	seedBalance(t, mem, ledger, "emp-1", leave.TypeCasual, "10")
	req := mustApply(t, svc, weekLeave(leave.TypeCasual))

	_, err := svc.Act(context.Background(), req.ID, leave.ActionReject, "   ", "mgr-1")
	assert.ErrorIs(t, err, leave.ErrRejectionNoteRequired)

	// The request is still pending.
	got, err := svc.Get(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, got.Status)
}

func TestAct_RejectWithNote(t *testing.T) {
	mem, ledger, svc := newTestService(t)
	seedBalance(t, mem, ledger, "emp-1", leave.TypeCasual, "10")
	req := mustApply(t, svc, weekLeave(leave.TypeCasual))

	updated, err := svc.Act(context.Background(), req.ID, leave.ActionReject, "team is at capacity", "mgr-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, updated.Status)
	assert.Equal(t, "team is at capacity", updated.RejectionNote)
	assert.Equal(t, "10", balanceOf(t, mem, "emp-1", leave.TypeCasual).String(), "rejection never deducts")
}

func TestAct_ApproveMaternity_NoDeduction(t *testing.T) {
	// GIVEN: A pending maternity leave
	mem, _, svc := newTestService(t)
	req := mustApply(t, svc, leave.ApplyInput{
		ApplicantID: "emp-1",
		Type:        leave.TypeMaternity,
		StartDate:   leave.NewDate(2025, time.June, 2),
		Reason:      "maternity",
	})

	// WHEN: The manager approves
	updated, err := svc.Act(context.Background(), req.ID, leave.ActionApprove, "", "mgr-1")
	require.NoError(t, err)

	// THEN: No balance account was ever created or charged
	assert.Equal(t, leave.StatusApproved, updated.Status)
	accounts, err := mem.Accounts(context.Background(), "emp-1")
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestCancel_Pending_NoBalanceEffect(t *testing.T) {
	// GIVEN: A pending request
	mem, ledger, svc := newTestService(t)
	seedBalance(t, mem, ledger, "emp-1", leave.TypeCasual, "10")
	req := mustApply(t, svc, weekLeave(leave.TypeCasual))

	// WHEN: The applicant withdraws it
	updated, err := svc.Cancel(context.Background(), req.ID, "emp-1")
	require.NoError(t, err)

	// THEN: It is cancelled with no ledger activity
	assert.Equal(t, leave.StatusCancelled, updated.Status)
	history, err := ledger.History(context.Background(), "emp-1", leave.TypeCasual)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCancel_Approved_RefundsInFull(t *testing.T) {
	// GIVEN: An approved leave whose deduction split across two pools
	mem, ledger, svc := newTestService(t)
	seedBalance(t, mem, ledger, "emp-1", leave.TypeCasual, "3")
	seedBalance(t, mem, ledger, "emp-1", leave.TypeEarned, "4")
	req := mustApply(t, svc, weekLeave(leave.TypeCasual))
	_, err := svc.Act(context.Background(), req.ID, leave.ActionApprove, "", "mgr-1")
	require.NoError(t, err)

	// WHEN: The applicant cancels outright
	updated, err := svc.Cancel(context.Background(), req.ID, "emp-1")
	require.NoError(t, err)

	// THEN: Both pools are restored exactly
	assert.Equal(t, leave.StatusCancelled, updated.Status)
	assert.Equal(t, "3", balanceOf(t, mem, "emp-1", leave.TypeCasual).String())
	assert.Equal(t, "4", balanceOf(t, mem, "emp-1", leave.TypeEarned).String())
}

func TestCancel_Rejected_AlreadyProcessed(t *testing.T) {
	mem, ledger, svc := newTestService(t)
	seedBalance(t, mem, ledger, "emp-1", leave.TypeCasual, "10")
	req := mustApply(t, svc, weekLeave(leave.TypeCasual))
	_, err := svc.Act(context.Background(), req.ID, leave.ActionReject, "no", "mgr-1")
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), req.ID, "emp-1")
	assert.ErrorIs(t, err, leave.ErrAlreadyProcessed)
}

func TestRequestCancellation_ManagerApproves_Refunds(t *testing.T) {
	// GIVEN: An approved leave with a cancellation request on it
	mem, ledger, svc := newTestService(t)
	seedBalance(t, mem, ledger, "emp-1", leave.TypeCasual, "10")
	req := mustApply(t, svc, weekLeave(leave.TypeCasual))
	_, err := svc.Act(context.Background(), req.ID, leave.ActionApprove, "", "mgr-1")
	require.NoError(t, err)

	marked, err := svc.RequestCancellation(context.Background(), req.ID, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancellationRequested, marked.Status)

	// WHEN: The manager approves the cancellation
	updated, err := svc.Act(context.Background(), req.ID, leave.ActionApprove, "", "mgr-1")
	require.NoError(t, err)

	// THEN: The leave is cancelled and the deduction refunded
	assert.Equal(t, leave.StatusCancelled, updated.Status)
	assert.Equal(t, "10", balanceOf(t, mem, "emp-1", leave.TypeCasual).String())
}

func TestRequestCancellation_ManagerRejects_RestoresApproved(t *testing.T) {
	// GIVEN: A cancellation request on an approved leave
	mem, ledger, svc := newTestService(t)
	seedBalance(t, mem, ledger, "emp-1", leave.TypeCasual, "10")
	req := mustApply(t, svc, weekLeave(leave.TypeCasual))
	_, err := svc.Act(context.Background(), req.ID, leave.ActionApprove, "", "mgr-1")
	require.NoError(t, err)
	_, err = svc.RequestCancellation(context.Background(), req.ID, "emp-1")
	require.NoError(t, err)

	// WHEN: The manager rejects the cancellation
	updated, err := svc.Act(context.Background(), req.ID, leave.ActionReject, "coverage needed", "mgr-1")
	require.NoError(t, err)

	// THEN: The leave stays approved, balance untouched
	assert.Equal(t, leave.StatusApproved, updated.Status)
	assert.Equal(t, "5", balanceOf(t, mem, "emp-1", leave.TypeCasual).String())
}

func TestRequestCancellation_OnPending_Rejected(t *testing.T) {
	mem, ledger, svc := newTestService(t)
	seedBalance(t, mem, ledger, "emp-1", leave.TypeCasual, "10")
	req := mustApply(t, svc, weekLeave(leave.TypeCasual))

	_, err := svc.RequestCancellation(context.Background(), req.ID, "emp-1")
	assert.ErrorIs(t, err, leave.ErrAlreadyProcessed)
}

// =============================================================================
// COMP-OFF CLAIMS
// =============================================================================

func TestClaimCompOff_ApprovalCreditsOneDay(t *testing.T) {
	// GIVEN: A claim for a worked Saturday
	mem, _, svc := newTestService(t)
	claim, err := svc.ClaimCompOff(context.Background(), leave.ClaimInput{
		ClaimantID: "emp-1",
		WorkDate:   leave.NewDate(2025, time.June, 7),
		Reason:     "release weekend",
	})
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, claim.Status)
	assert.Equal(t, "mgr-1", claim.ApproverID)

	// WHEN: The manager approves
	updated, err := svc.ActOnClaim(context.Background(), claim.ID, leave.ActionApprove, "mgr-1")
	require.NoError(t, err)

	// THEN: Exactly one comp-off day is credited
	assert.Equal(t, leave.StatusApproved, updated.Status)
	assert.Equal(t, "1", balanceOf(t, mem, "emp-1", leave.TypeCompOff).String())

	history, err := mem.History(context.Background(), "emp-1", leave.TypeCompOff)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, leave.ChangeAccrual, history[0].ChangeType)
}

func TestClaimCompOff_ReasonRequired(t *testing.T) {
	_, _, svc := newTestService(t)

	_, err := svc.ClaimCompOff(context.Background(), leave.ClaimInput{
		ClaimantID: "emp-1",
		WorkDate:   leave.NewDate(2025, time.June, 7),
		Reason:     "  ",
	})
	assert.ErrorIs(t, err, leave.ErrInvalidRange)
}

func TestClaimCompOff_FutureWorkDate_Rejected(t *testing.T) {
	_, _, svc := newTestService(t)

	future := leave.DateOf(time.Now().UTC()).AddDays(7)
	_, err := svc.ClaimCompOff(context.Background(), leave.ClaimInput{
		ClaimantID: "emp-1",
		WorkDate:   future,
		Reason:     "not yet worked",
	})
	assert.ErrorIs(t, err, leave.ErrInvalidRange)
}

func TestActOnClaim_SecondDecision_AlreadyProcessed(t *testing.T) {
	// GIVEN: An approved claim
	mem, _, svc := newTestService(t)
	claim, err := svc.ClaimCompOff(context.Background(), leave.ClaimInput{
		ClaimantID: "emp-1",
		WorkDate:   leave.NewDate(2025, time.June, 7),
		Reason:     "release weekend",
	})
	require.NoError(t, err)
	_, err = svc.ActOnClaim(context.Background(), claim.ID, leave.ActionApprove, "mgr-1")
	require.NoError(t, err)

	// WHEN: A second decision arrives
	_, err = svc.ActOnClaim(context.Background(), claim.ID, leave.ActionReject, "mgr-1")

	// THEN: It conflicts and the credit stands at exactly one day
	assert.ErrorIs(t, err, leave.ErrAlreadyProcessed)
	assert.Equal(t, "1", balanceOf(t, mem, "emp-1", leave.TypeCompOff).String())
}

func TestActOnClaim_Reject_NoCredit(t *testing.T) {
	mem, _, svc := newTestService(t)
	claim, err := svc.ClaimCompOff(context.Background(), leave.ClaimInput{
		ClaimantID: "emp-1",
		WorkDate:   leave.NewDate(2025, time.June, 7),
		Reason:     "release weekend",
	})
	require.NoError(t, err)

	updated, err := svc.ActOnClaim(context.Background(), claim.ID, leave.ActionReject, "mgr-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, updated.Status)

	accounts, err := mem.Accounts(context.Background(), "emp-1")
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

// =============================================================================
// ONBOARDING
// =============================================================================

func TestCreateUser_SeedsAllBalanceAccounts(t *testing.T) {
	// GIVEN: Seed balances for some types
	mem, _, svc := newTestService(t)
	seeds := map[leave.LeaveType]decimal.Decimal{
		leave.TypeCasual: decimal.NewFromInt(8),
		leave.TypeSick:   decimal.NewFromInt(3),
	}

	// WHEN: Creating a user
	created, err := svc.CreateUser(context.Background(), leave.User{
		EmployeeID: "E200", FullName: "Dev Mehta", Email: "dev@example.com",
		ManagerID: "mgr-1", Active: true,
	}, seeds, "admin-1")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	// THEN: Every balance-carrying type has an account, unseeded ones at zero
	accounts, err := mem.Accounts(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, accounts, len(leave.BalanceTypes))

	assert.Equal(t, "8", balanceOf(t, mem, created.ID, leave.TypeCasual).String())
	assert.Equal(t, "3", balanceOf(t, mem, created.ID, leave.TypeSick).String())
	assert.Equal(t, "0", balanceOf(t, mem, created.ID, leave.TypeEarned).String())

	// AND: Each account history starts with an INITIAL entry
	history, err := mem.History(context.Background(), created.ID, leave.TypeEarned)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, leave.ChangeInitial, history[0].ChangeType)
}
