/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave engine via REST. Handlers parse HTTP, delegate to
  the domain layer and serialize responses; no business rules live here.

ENDPOINTS:
  Users:
    GET    /api/users                     List users
    POST   /api/users                     Register user (opens accounts)
    GET    /api/users/{id}                Get user
    GET    /api/users/{id}/balances       Current balances
    GET    /api/users/{id}/history        Balance history
    GET    /api/users/{id}/leaves         User's leave requests

  Leaves:
    POST   /api/leaves                    Apply for leave
    GET    /api/leaves/pending            Pending requests (per approver)
    GET    /api/leaves/{id}               Get request
    POST   /api/leaves/{id}/approve       Approve
    POST   /api/leaves/{id}/reject        Reject (note required)
    POST   /api/leaves/{id}/cancel        Cancel (refunds if approved)
    POST   /api/leaves/{id}/request-cancellation
    GET    /api/leaves/{id}/audit         Audit trail

  Comp-off:
    POST   /api/comp-off                  Claim a worked day
    GET    /api/comp-off/pending          Pending claims
    POST   /api/comp-off/{id}/approve     Approve (credits one day)
    POST   /api/comp-off/{id}/reject      Reject

  Admin:
    POST   /api/admin/adjustments         Manual balance adjustment
    POST   /api/admin/jobs/accrual        Trigger monthly accrual
    POST   /api/admin/jobs/reset          Trigger yearly reset
    GET    /api/admin/jobs/status         Current period's job status

  Calendar and policy:
    GET    /api/holidays?year=            Holiday calendar
    POST   /api/holidays                  Add a holiday
    GET    /api/policies?year=            Effective quotas
    PUT    /api/policies                  Upsert a year's quotas

ACTOR:
  The acting user is taken from the X-Actor-ID header. Authentication
  is expected to live in front of this service; the header is trusted.

ERROR HANDLING:
  Domain errors map to HTTP statuses:
  - 400: validation, insufficient balance, overlap, missing note
  - 404: unknown user, request, claim
  - 409: lost race (already processed, job already ran)
  - 500: everything else

SEE ALSO:
  - dto.go: payload shapes
  - server.go: routing and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// Handler holds the dependencies HTTP handlers need.
type Handler struct {
	Store   *sqlite.Store
	Service *leave.Service
	Ledger  *leave.Ledger
	Jobs    *leave.JobRunner
	Log     *zap.Logger
}

func NewHandler(store *sqlite.Store, svc *leave.Service, ledger *leave.Ledger, jobs *leave.JobRunner, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Store: store, Service: svc, Ledger: ledger, Jobs: jobs, Log: log}
}

func actorID(r *http.Request) string {
	return r.Header.Get("X-Actor-ID")
}

// =============================================================================
// USER HANDLERS
// =============================================================================

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.Users(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EmployeeID == "" || req.FullName == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "employee_id, full_name and email are required", nil)
		return
	}

	seeds := make(map[leave.LeaveType]decimal.Decimal, len(req.Seeds))
	for lt, raw := range req.Seeds {
		seed, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid seed balance for "+lt, err)
			return
		}
		seeds[leave.LeaveType(lt)] = seed
	}

	user, err := h.Service.CreateUser(r.Context(), leave.User{
		EmployeeID: req.EmployeeID,
		FullName:   req.FullName,
		Email:      req.Email,
		ManagerID:  req.ManagerID,
		Active:     true,
	}, seeds, actorID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(*user))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.User(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*user))
}

func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Ledger.Balances(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]BalanceDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = BalanceDTO{
			LeaveType: string(a.LeaveType),
			Balance:   a.Balance.String(),
			UpdatedAt: a.UpdatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	lt := leave.LeaveType(r.URL.Query().Get("leave_type"))
	if lt != "" && !lt.Valid() {
		writeError(w, http.StatusBadRequest, "Unknown leave type "+string(lt), nil)
		return
	}

	entries, err := h.Ledger.History(r.Context(), chi.URLParam(r, "id"), lt)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]HistoryEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toHistoryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ListUserLeaves(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Service.ListByApplicant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]LeaveRequestDTO, len(requests))
	for i := range requests {
		dtos[i] = toLeaveRequestDTO(&requests[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

func (h *Handler) ApplyLeave(w http.ResponseWriter, r *http.Request) {
	var req ApplyLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := leave.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date (use YYYY-MM-DD)", err)
		return
	}
	var end *leave.Date
	if req.EndDate != "" {
		e, err := leave.ParseDate(req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_date (use YYYY-MM-DD)", err)
			return
		}
		end = &e
	}

	created, err := h.Service.Apply(r.Context(), leave.ApplyInput{
		ApplicantID: actorID(r),
		Type:        leave.LeaveType(req.Type),
		StartDate:   start,
		EndDate:     end,
		Reason:      req.Reason,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveRequestDTO(created))
}

func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	req, err := h.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(req))
}

func (h *Handler) ListPendingLeaves(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Service.ListPending(r.Context(), r.URL.Query().Get("approver_id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]LeaveRequestDTO, len(requests))
	for i := range requests {
		dtos[i] = toLeaveRequestDTO(&requests[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	h.decideLeave(w, r, leave.ActionApprove)
}

func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	h.decideLeave(w, r, leave.ActionReject)
}

func (h *Handler) decideLeave(w http.ResponseWriter, r *http.Request, action leave.Action) {
	var req DecisionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	updated, err := h.Service.Act(r.Context(), chi.URLParam(r, "id"), action, req.Note, actorID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(updated))
}

func (h *Handler) CancelLeave(w http.ResponseWriter, r *http.Request) {
	updated, err := h.Service.Cancel(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(updated))
}

func (h *Handler) RequestLeaveCancellation(w http.ResponseWriter, r *http.Request) {
	updated, err := h.Service.RequestCancellation(r.Context(), chi.URLParam(r, "id"), actorID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(updated))
}

func (h *Handler) GetLeaveAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.AuditByEntity(r.Context(), "LEAVE", chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:        e.ID,
			ActorID:   e.ActorID,
			Action:    string(e.Action),
			Entity:    e.Entity,
			EntityID:  e.EntityID,
			OldValues: e.OldValues,
			NewValues: e.NewValues,
			Summary:   e.Summary,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// COMP-OFF HANDLERS
// =============================================================================

func (h *Handler) ClaimCompOff(w http.ResponseWriter, r *http.Request) {
	var req ClaimCompOffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	workDate, err := leave.ParseDate(req.WorkDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid work_date (use YYYY-MM-DD)", err)
		return
	}

	claim, err := h.Service.ClaimCompOff(r.Context(), leave.ClaimInput{
		ClaimantID: actorID(r),
		WorkDate:   workDate,
		Reason:     req.Reason,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClaimDTO(claim))
}

func (h *Handler) ListPendingClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := h.Service.ListPendingClaims(r.Context(), r.URL.Query().Get("approver_id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]CompOffClaimDTO, len(claims))
	for i := range claims {
		dtos[i] = toClaimDTO(&claims[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ApproveClaim(w http.ResponseWriter, r *http.Request) {
	h.decideClaim(w, r, leave.ActionApprove)
}

func (h *Handler) RejectClaim(w http.ResponseWriter, r *http.Request) {
	h.decideClaim(w, r, leave.ActionReject)
}

func (h *Handler) decideClaim(w http.ResponseWriter, r *http.Request, action leave.Action) {
	claim, err := h.Service.ActOnClaim(r.Context(), chi.URLParam(r, "id"), action, actorID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(claim))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	lt := leave.LeaveType(req.LeaveType)
	if !lt.HasBalance() {
		writeError(w, http.StatusBadRequest, "Leave type does not carry a balance: "+req.LeaveType, nil)
		return
	}
	delta, err := decimal.NewFromString(req.Delta)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid delta", err)
		return
	}

	if err := h.Ledger.Adjust(r.Context(), req.UserID, lt, delta, req.Reason, actorID(r)); err != nil {
		h.writeDomainError(w, err)
		return
	}

	accounts, err := h.Ledger.Balances(r.Context(), req.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	for _, a := range accounts {
		if a.LeaveType == lt {
			writeJSON(w, http.StatusOK, BalanceDTO{
				LeaveType: string(a.LeaveType),
				Balance:   a.Balance.String(),
				UpdatedAt: a.UpdatedAt.Format(time.RFC3339),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, BalanceDTO{LeaveType: string(lt), Balance: "0"})
}

func (h *Handler) TriggerAccrual(w http.ResponseWriter, r *http.Request) {
	if err := h.Jobs.RunMonthlyAccrual(r.Context(), time.Now().UTC(), actorID(r)); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (h *Handler) TriggerReset(w http.ResponseWriter, r *http.Request) {
	if err := h.Jobs.RunYearlyReset(r.Context(), time.Now().UTC(), actorID(r)); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Jobs.Status(r.Context(), time.Now().UTC())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// =============================================================================
// HOLIDAY AND POLICY HANDLERS
// =============================================================================

func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year := time.Now().UTC().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = parsed
	}

	holidays, err := h.Store.HolidaysForYear(r.Context(), year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = HolidayDTO{
			ID:       hol.ID,
			Date:     hol.Date.String(),
			Name:     hol.Name,
			Year:     hol.Year,
			Optional: hol.Optional,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := leave.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	holiday := leave.Holiday{
		ID:       newID(),
		Date:     date,
		Name:     req.Name,
		Year:     date.Year(),
		Optional: req.Optional,
	}
	if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, HolidayDTO{
		ID:       holiday.ID,
		Date:     holiday.Date.String(),
		Name:     holiday.Name,
		Year:     holiday.Year,
		Optional: holiday.Optional,
	})
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	year := time.Now().UTC().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = parsed
	}

	quotas, err := h.Store.QuotasFor(r.Context(), year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PolicyDTO{
		Year:         year,
		CasualYearly: quotas.CasualYearly.String(),
		SickYearly:   quotas.SickYearly.String(),
		WFHYearly:    quotas.WFHYearly.String(),
		MonthlyRate:  quotas.MonthlyCasualRate().String(),
	})
}

func (h *Handler) SavePolicy(w http.ResponseWriter, r *http.Request) {
	var req SavePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Year == 0 {
		writeError(w, http.StatusBadRequest, "year is required", nil)
		return
	}

	casual, err := decimal.NewFromString(req.CasualYearly)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid casual_yearly", err)
		return
	}
	sick, err := decimal.NewFromString(req.SickYearly)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid sick_yearly", err)
		return
	}
	wfh, err := decimal.NewFromString(req.WFHYearly)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid wfh_yearly", err)
		return
	}

	quotas := leave.Quotas{CasualYearly: casual, SickYearly: sick, WFHYearly: wfh}
	if err := h.Store.SavePolicy(r.Context(), req.Year, quotas); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PolicyDTO{
		Year:         req.Year,
		CasualYearly: quotas.CasualYearly.String(),
		SickYearly:   quotas.SickYearly.String(),
		WFHYearly:    quotas.WFHYearly.String(),
		MonthlyRate:  quotas.MonthlyCasualRate().String(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case leave.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case leave.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case leave.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		h.Log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func newID() string {
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
