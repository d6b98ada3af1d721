/*
dto.go - Request and response payloads

PURPOSE:
  Wire-level structures for the REST API. Domain types never cross the
  HTTP boundary directly: dates travel as YYYY-MM-DD strings, decimals
  as strings, and timestamps as RFC3339.

SEE ALSO:
  - handlers.go: where these are populated and parsed
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUESTS
// =============================================================================

type ApplyLeaveRequest struct {
	Type      string `json:"type"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type DecisionRequest struct {
	Note string `json:"note,omitempty"`
}

type ClaimCompOffRequest struct {
	WorkDate string `json:"work_date"`
	Reason   string `json:"reason"`
}

type CreateUserRequest struct {
	EmployeeID string            `json:"employee_id"`
	FullName   string            `json:"full_name"`
	Email      string            `json:"email"`
	ManagerID  string            `json:"manager_id,omitempty"`
	Seeds      map[string]string `json:"seeds,omitempty"`
}

type AdjustmentRequest struct {
	UserID    string `json:"user_id"`
	LeaveType string `json:"leave_type"`
	Delta     string `json:"delta"`
	Reason    string `json:"reason"`
}

type CreateHolidayRequest struct {
	Date     string `json:"date"`
	Name     string `json:"name"`
	Optional bool   `json:"optional,omitempty"`
}

type SavePolicyRequest struct {
	Year         int    `json:"year"`
	CasualYearly string `json:"casual_yearly"`
	SickYearly   string `json:"sick_yearly"`
	WFHYearly    string `json:"wfh_yearly"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type LeaveRequestDTO struct {
	ID             string `json:"id"`
	ApplicantID    string `json:"applicant_id"`
	ApproverID     string `json:"approver_id,omitempty"`
	Type           string `json:"type"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date,omitempty"`
	DeductibleDays string `json:"deductible_days"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
	RejectionNote  string `json:"rejection_note,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func toLeaveRequestDTO(r *leave.Request) LeaveRequestDTO {
	dto := LeaveRequestDTO{
		ID:             r.ID,
		ApplicantID:    r.ApplicantID,
		ApproverID:     r.ApproverID,
		Type:           string(r.Type),
		StartDate:      r.StartDate.String(),
		DeductibleDays: r.DeductibleDays.String(),
		Status:         string(r.Status),
		Reason:         r.Reason,
		RejectionNote:  r.RejectionNote,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      r.UpdatedAt.Format(time.RFC3339),
	}
	if r.EndDate != nil {
		dto.EndDate = r.EndDate.String()
	}
	return dto
}

type CompOffClaimDTO struct {
	ID         string `json:"id"`
	ClaimantID string `json:"claimant_id"`
	ApproverID string `json:"approver_id,omitempty"`
	WorkDate   string `json:"work_date"`
	Reason     string `json:"reason"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func toClaimDTO(c *leave.CompOffClaim) CompOffClaimDTO {
	return CompOffClaimDTO{
		ID:         c.ID,
		ClaimantID: c.ClaimantID,
		ApproverID: c.ApproverID,
		WorkDate:   c.WorkDate.String(),
		Reason:     c.Reason,
		Status:     string(c.Status),
		CreatedAt:  c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  c.UpdatedAt.Format(time.RFC3339),
	}
}

type BalanceDTO struct {
	LeaveType string `json:"leave_type"`
	Balance   string `json:"balance"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type HistoryEntryDTO struct {
	ID              string `json:"id"`
	LeaveType       string `json:"leave_type"`
	ChangeType      string `json:"change_type"`
	Delta           string `json:"delta"`
	PreviousBalance string `json:"previous_balance"`
	NewBalance      string `json:"new_balance"`
	Reason          string `json:"reason,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
	ActorID         string `json:"actor_id,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func toHistoryDTO(e leave.HistoryEntry) HistoryEntryDTO {
	return HistoryEntryDTO{
		ID:              e.ID,
		LeaveType:       string(e.LeaveType),
		ChangeType:      string(e.ChangeType),
		Delta:           e.Delta.String(),
		PreviousBalance: e.PreviousBalance.String(),
		NewBalance:      e.NewBalance.String(),
		Reason:          e.Reason,
		RequestID:       e.RequestID,
		ActorID:         e.ActorID,
		CreatedAt:       e.CreatedAt.Format(time.RFC3339),
	}
}

type UserDTO struct {
	ID         string `json:"id"`
	EmployeeID string `json:"employee_id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	ManagerID  string `json:"manager_id,omitempty"`
	Active     bool   `json:"active"`
	CreatedAt  string `json:"created_at"`
}

func toUserDTO(u leave.User) UserDTO {
	return UserDTO{
		ID:         u.ID,
		EmployeeID: u.EmployeeID,
		FullName:   u.FullName,
		Email:      u.Email,
		ManagerID:  u.ManagerID,
		Active:     u.Active,
		CreatedAt:  u.CreatedAt.Format(time.RFC3339),
	}
}

type HolidayDTO struct {
	ID       string `json:"id"`
	Date     string `json:"date"`
	Name     string `json:"name"`
	Year     int    `json:"year"`
	Optional bool   `json:"optional"`
}

type AuditEntryDTO struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actor_id,omitempty"`
	Action    string         `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entity_id"`
	OldValues map[string]any `json:"old_values,omitempty"`
	NewValues map[string]any `json:"new_values,omitempty"`
	Summary   string         `json:"summary,omitempty"`
	CreatedAt string         `json:"created_at"`
}

type PolicyDTO struct {
	Year         int    `json:"year"`
	CasualYearly string `json:"casual_yearly"`
	SickYearly   string `json:"sick_yearly"`
	WFHYearly    string `json:"wfh_yearly"`
	MonthlyRate  string `json:"monthly_casual_rate"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
