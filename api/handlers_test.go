package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ledger := leave.NewLedger(s)
	svc := leave.NewService(s, ledger, s, s, nil, nil)
	jobs := leave.NewJobRunner(s, ledger, s, s, nil)
	h := api.NewHandler(s, svc, ledger, jobs, nil)
	return api.NewRouter(h, nil)
}

func doJSON(t *testing.T, router http.Handler, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func createUser(t *testing.T, router http.Handler, req api.CreateUserRequest) api.UserDTO {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/users", "admin-1", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[api.UserDTO](t, rec)
}

func newEmployee(t *testing.T, router http.Handler, seeds map[string]string) (manager, employee api.UserDTO) {
	t.Helper()
	manager = createUser(t, router, api.CreateUserRequest{
		EmployeeID: "E100", FullName: "Priya Nair", Email: "priya@example.com",
	})
	employee = createUser(t, router, api.CreateUserRequest{
		EmployeeID: "E101", FullName: "Asha Rao", Email: "asha@example.com",
		ManagerID: manager.ID, Seeds: seeds,
	})
	return manager, employee
}

func balances(t *testing.T, router http.Handler, userID string) map[string]string {
	t.Helper()
	rec := doJSON(t, router, http.MethodGet, "/api/users/"+userID+"/balances", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := map[string]string{}
	for _, b := range decode[[]api.BalanceDTO](t, rec) {
		out[b.LeaveType] = b.Balance
	}
	return out
}

// =============================================================================
// USERS
// =============================================================================

func TestAPI_CreateUser_SeedsBalances(t *testing.T) {
	router := newTestAPI(t)

	_, employee := newEmployee(t, router, map[string]string{"CASUAL": "8", "SICK": "3"})

	got := balances(t, router, employee.ID)
	assert.Equal(t, "8", got["CASUAL"])
	assert.Equal(t, "3", got["SICK"])
	assert.Equal(t, "0", got["EARNED"])
}

func TestAPI_GetUser_NotFound(t *testing.T) {
	router := newTestAPI(t)

	rec := doJSON(t, router, http.MethodGet, "/api/users/nobody", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// LEAVE LIFECYCLE OVER HTTP
// =============================================================================

func TestAPI_ApplyApproveCancel_FullFlow(t *testing.T) {
	// GIVEN: An employee with 10 casual days
	router := newTestAPI(t)
	manager, employee := newEmployee(t, router, map[string]string{"CASUAL": "10"})

	// WHEN: The employee applies for a working week
	rec := doJSON(t, router, http.MethodPost, "/api/leaves", employee.ID, api.ApplyLeaveRequest{
		Type: "CASUAL", StartDate: "2025-06-02", EndDate: "2025-06-06", Reason: "family visit",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[api.LeaveRequestDTO](t, rec)
	assert.Equal(t, "PENDING", created.Status)
	assert.Equal(t, manager.ID, created.ApproverID)
	assert.Equal(t, "5", created.DeductibleDays)

	// AND: The manager sees it pending and approves
	rec = doJSON(t, router, http.MethodGet, "/api/leaves/pending?approver_id="+manager.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[[]api.LeaveRequestDTO](t, rec)
	require.Len(t, pending, 1)

	rec = doJSON(t, router, http.MethodPost, "/api/leaves/"+created.ID+"/approve", manager.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "APPROVED", decode[api.LeaveRequestDTO](t, rec).Status)

	// THEN: The balance dropped by the frozen day count
	assert.Equal(t, "5", balances(t, router, employee.ID)["CASUAL"])

	// AND: A second approval conflicts
	rec = doJSON(t, router, http.MethodPost, "/api/leaves/"+created.ID+"/approve", manager.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: Cancelling refunds in full
	rec = doJSON(t, router, http.MethodPost, "/api/leaves/"+created.ID+"/cancel", employee.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CANCELLED", decode[api.LeaveRequestDTO](t, rec).Status)
	assert.Equal(t, "10", balances(t, router, employee.ID)["CASUAL"])
}

func TestAPI_RejectWithoutNote_BadRequest(t *testing.T) {
	router := newTestAPI(t)
	manager, employee := newEmployee(t, router, map[string]string{"CASUAL": "10"})

	rec := doJSON(t, router, http.MethodPost, "/api/leaves", employee.ID, api.ApplyLeaveRequest{
		Type: "CASUAL", StartDate: "2025-06-02", EndDate: "2025-06-06",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[api.LeaveRequestDTO](t, rec)

	rec = doJSON(t, router, http.MethodPost, "/api/leaves/"+created.ID+"/reject", manager.ID, api.DecisionRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/leaves/"+created.ID+"/reject", manager.ID,
		api.DecisionRequest{Note: "team at capacity"})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[api.LeaveRequestDTO](t, rec)
	assert.Equal(t, "REJECTED", got.Status)
	assert.Equal(t, "team at capacity", got.RejectionNote)
}

func TestAPI_InsufficientBalance_BadRequest(t *testing.T) {
	router := newTestAPI(t)
	_, employee := newEmployee(t, router, map[string]string{"CASUAL": "1"})

	rec := doJSON(t, router, http.MethodPost, "/api/leaves", employee.ID, api.ApplyLeaveRequest{
		Type: "CASUAL", StartDate: "2025-06-02", EndDate: "2025-06-06",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	errResp := decode[api.ErrorResponse](t, rec)
	assert.NotEmpty(t, errResp.Error)
}

func TestAPI_UnknownLeave_NotFound(t *testing.T) {
	router := newTestAPI(t)

	rec := doJSON(t, router, http.MethodGet, "/api/leaves/no-such-id", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_LeaveAuditTrail(t *testing.T) {
	router := newTestAPI(t)
	manager, employee := newEmployee(t, router, map[string]string{"CASUAL": "10"})

	rec := doJSON(t, router, http.MethodPost, "/api/leaves", employee.ID, api.ApplyLeaveRequest{
		Type: "CASUAL", StartDate: "2025-06-02", EndDate: "2025-06-06",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[api.LeaveRequestDTO](t, rec)

	rec = doJSON(t, router, http.MethodPost, "/api/leaves/"+created.ID+"/approve", manager.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/leaves/"+created.ID+"/audit", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]api.AuditEntryDTO](t, rec)
	require.Len(t, entries, 2)
	assert.Equal(t, string(leave.AuditLeaveApplied), entries[0].Action)
	assert.Equal(t, string(leave.AuditLeaveApproved), entries[1].Action)
}

// =============================================================================
// COMP-OFF
// =============================================================================

func TestAPI_CompOffClaim_ApprovalCreditsOneDay(t *testing.T) {
	router := newTestAPI(t)
	manager, employee := newEmployee(t, router, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/comp-off", employee.ID, api.ClaimCompOffRequest{
		WorkDate: "2025-06-07", Reason: "release weekend",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	claim := decode[api.CompOffClaimDTO](t, rec)
	assert.Equal(t, "PENDING", claim.Status)

	rec = doJSON(t, router, http.MethodPost, "/api/comp-off/"+claim.ID+"/approve", manager.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "1", balances(t, router, employee.ID)["COMP_OFF"])
}

func TestAPI_CompOffClaim_MissingReason_BadRequest(t *testing.T) {
	router := newTestAPI(t)
	_, employee := newEmployee(t, router, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/comp-off", employee.ID, api.ClaimCompOffRequest{
		WorkDate: "2025-06-07",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestAPI_Adjustment_ReturnsUpdatedBalance(t *testing.T) {
	router := newTestAPI(t)
	_, employee := newEmployee(t, router, map[string]string{"CASUAL": "4"})

	rec := doJSON(t, router, http.MethodPost, "/api/admin/adjustments", "admin-1", api.AdjustmentRequest{
		UserID: employee.ID, LeaveType: "CASUAL", Delta: "1.5", Reason: "payroll correction",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	balance := decode[api.BalanceDTO](t, rec)
	assert.Equal(t, "CASUAL", balance.LeaveType)
	assert.Equal(t, "5.5", balance.Balance)
}

func TestAPI_JobTriggers_LockOnSecondRun(t *testing.T) {
	router := newTestAPI(t)
	newEmployee(t, router, nil)

	rec := doJSON(t, router, http.MethodPost, "/api/admin/jobs/accrual", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/api/admin/jobs/accrual", "admin-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/admin/jobs/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[leave.JobStatus](t, rec)
	assert.True(t, status.MonthlyAccrualRanThisMonth)
}

// =============================================================================
// HOLIDAYS AND POLICIES
// =============================================================================

func TestAPI_Holidays_CreateAndList(t *testing.T) {
	router := newTestAPI(t)

	rec := doJSON(t, router, http.MethodPost, "/api/holidays", "admin-1", api.CreateHolidayRequest{
		Date: "2025-08-15", Name: "Independence Day",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/holidays?year=2025", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	holidays := decode[[]api.HolidayDTO](t, rec)
	require.Len(t, holidays, 1)
	assert.Equal(t, "Independence Day", holidays[0].Name)
	assert.Equal(t, 2025, holidays[0].Year)
}

func TestAPI_Policies_SaveAndGet(t *testing.T) {
	router := newTestAPI(t)

	rec := doJSON(t, router, http.MethodPut, "/api/policies", "admin-1", api.SavePolicyRequest{
		Year: 2025, CasualYearly: "12", SickYearly: "5", WFHYearly: "2",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/policies?year=2025", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	policy := decode[api.PolicyDTO](t, rec)
	assert.Equal(t, "12", policy.CasualYearly)
	assert.Equal(t, "1", policy.MonthlyRate)
}
