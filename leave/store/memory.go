/*
memory.go - In-memory store (tests and development)

PURPOSE:
  Full implementation of the persistence interfaces backed by maps under
  one mutex. Transactions are simulated with a snapshot taken before the
  callback runs and restored when it fails, which preserves the
  all-or-nothing contract the domain layer depends on.

  Also implements Directory, HolidayCalendar, PolicyProvider and
  AuditLog so a complete engine can run with no database at all.
*/
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

type acctKey struct {
	UserID    string
	LeaveType leave.LeaveType
}

type Memory struct {
	mu       sync.RWMutex
	users    map[string]leave.User
	accounts map[acctKey]leave.Account
	history  []leave.HistoryEntry
	requests map[string]leave.Request
	claims   map[string]leave.CompOffClaim
	jobRuns  map[string]leave.JobRun
	holidays []leave.Holiday
	audit    []leave.AuditEntry
	policies map[int]leave.Quotas
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]leave.User),
		accounts: make(map[acctKey]leave.Account),
		requests: make(map[string]leave.Request),
		claims:   make(map[string]leave.CompOffClaim),
		jobRuns:  make(map[string]leave.JobRun),
		policies: make(map[int]leave.Quotas),
	}
}

// =============================================================================
// SEEDING - test and development setup
// =============================================================================

func (m *Memory) AddUser(u leave.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *Memory) AddHoliday(h leave.Holiday) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays = append(m.holidays, h)
}

func (m *Memory) SetQuotas(year int, q leave.Quotas) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[year] = q
}

// =============================================================================
// STORE
// =============================================================================

// WithTx runs fn against a view of the store and restores the
// pre-callback snapshot when fn fails.
func (m *Memory) WithTx(_ context.Context, fn func(leave.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *Memory) Request(_ context.Context, id string) (*leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestLocked(id)
}

func (m *Memory) RequestsByApplicant(_ context.Context, applicantID string) ([]leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []leave.Request
	for _, r := range m.requests {
		if r.ApplicantID == applicantID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) PendingRequests(_ context.Context, approverID string) ([]leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []leave.Request
	for _, r := range m.requests {
		if r.Status != leave.StatusPending && r.Status != leave.StatusCancellationRequested {
			continue
		}
		if approverID != "" && r.ApproverID != approverID {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) Claim(_ context.Context, id string) (*leave.CompOffClaim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.claimLocked(id)
}

func (m *Memory) PendingClaims(_ context.Context, approverID string) ([]leave.CompOffClaim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []leave.CompOffClaim
	for _, c := range m.claims {
		if c.Status != leave.StatusPending {
			continue
		}
		if approverID != "" && c.ApproverID != approverID {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) Accounts(_ context.Context, userID string) ([]leave.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []leave.Account
	for _, lt := range leave.BalanceTypes {
		if acct, ok := m.accounts[acctKey{userID, lt}]; ok {
			result = append(result, acct)
		}
	}
	return result, nil
}

func (m *Memory) History(_ context.Context, userID string, leaveType leave.LeaveType) ([]leave.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []leave.HistoryEntry
	for _, e := range m.history {
		if e.UserID != userID {
			continue
		}
		if leaveType != "" && e.LeaveType != leaveType {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

func (m *Memory) JobRun(_ context.Context, jobKey string) (*leave.JobRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.jobRuns[jobKey]
	if !ok {
		return nil, leave.ErrNotFound
	}
	return &run, nil
}

// =============================================================================
// DIRECTORY / CALENDAR / POLICY / AUDIT
// =============================================================================

func (m *Memory) User(_ context.Context, id string) (*leave.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, leave.ErrNotFound
	}
	return &u, nil
}

func (m *Memory) ActiveUsers(_ context.Context) ([]leave.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeUsersLocked(), nil
}

func (m *Memory) activeUsersLocked() []leave.User {
	var result []leave.User
	for _, u := range m.users {
		if u.Active {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (m *Memory) HolidaysInRange(_ context.Context, from, to leave.Date) ([]leave.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []leave.Holiday
	for _, h := range m.holidays {
		if h.Date.AfterOrEqual(from) && h.Date.BeforeOrEqual(to) {
			result = append(result, h)
		}
	}
	return result, nil
}

func (m *Memory) QuotasFor(_ context.Context, year int) (leave.Quotas, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if q, ok := m.policies[year]; ok {
		return q, nil
	}
	best, found := 0, false
	for y := range m.policies {
		if y < year && (!found || y > best) {
			best, found = y, true
		}
	}
	if found {
		return m.policies[best], nil
	}
	return leave.DefaultQuotas(), nil
}

func (m *Memory) AuditByEntity(_ context.Context, entity, entityID string) ([]leave.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []leave.AuditEntry
	for _, e := range m.audit {
		if e.Entity == entity && e.EntityID == entityID {
			result = append(result, e)
		}
	}
	return result, nil
}

// =============================================================================
// SNAPSHOT / RESTORE
// =============================================================================

type memorySnapshot struct {
	users    map[string]leave.User
	accounts map[acctKey]leave.Account
	history  []leave.HistoryEntry
	requests map[string]leave.Request
	claims   map[string]leave.CompOffClaim
	jobRuns  map[string]leave.JobRun
	audit    []leave.AuditEntry
}

func (m *Memory) snapshot() memorySnapshot {
	users := make(map[string]leave.User, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	accounts := make(map[acctKey]leave.Account, len(m.accounts))
	for k, v := range m.accounts {
		accounts[k] = v
	}
	requests := make(map[string]leave.Request, len(m.requests))
	for k, v := range m.requests {
		requests[k] = v
	}
	claims := make(map[string]leave.CompOffClaim, len(m.claims))
	for k, v := range m.claims {
		claims[k] = v
	}
	jobRuns := make(map[string]leave.JobRun, len(m.jobRuns))
	for k, v := range m.jobRuns {
		jobRuns[k] = v
	}
	return memorySnapshot{
		users:    users,
		accounts: accounts,
		history:  append([]leave.HistoryEntry{}, m.history...),
		requests: requests,
		claims:   claims,
		jobRuns:  jobRuns,
		audit:    append([]leave.AuditEntry{}, m.audit...),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.users = s.users
	m.accounts = s.accounts
	m.history = s.history
	m.requests = s.requests
	m.claims = s.claims
	m.jobRuns = s.jobRuns
	m.audit = s.audit
}

func (m *Memory) requestLocked(id string) (*leave.Request, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, leave.ErrNotFound
	}
	return &r, nil
}

func (m *Memory) claimLocked(id string) (*leave.CompOffClaim, error) {
	c, ok := m.claims[id]
	if !ok {
		return nil, leave.ErrNotFound
	}
	return &c, nil
}

// =============================================================================
// TX VIEW
// =============================================================================

// txView operates on the parent's maps directly; WithTx already holds
// the lock and handles rollback.
type txView struct {
	m *Memory
}

func (tv *txView) Account(userID string, leaveType leave.LeaveType) (leave.Account, error) {
	if acct, ok := tv.m.accounts[acctKey{userID, leaveType}]; ok {
		return acct, nil
	}
	return leave.Account{
		UserID:    userID,
		LeaveType: leaveType,
		Balance:   decimal.Zero,
	}, nil
}

func (tv *txView) SaveBalance(userID string, leaveType leave.LeaveType, balance decimal.Decimal) error {
	tv.m.accounts[acctKey{userID, leaveType}] = leave.Account{
		UserID:    userID,
		LeaveType: leaveType,
		Balance:   balance,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (tv *txView) AppendHistory(entry leave.HistoryEntry) error {
	tv.m.history = append(tv.m.history, entry)
	return nil
}

func (tv *txView) DeductionsForRequest(requestID string) ([]leave.HistoryEntry, error) {
	var result []leave.HistoryEntry
	for _, e := range tv.m.history {
		if e.RequestID == requestID && e.ChangeType == leave.ChangeDeduction {
			result = append(result, e)
		}
	}
	return result, nil
}

func (tv *txView) Request(id string) (*leave.Request, error) {
	return tv.m.requestLocked(id)
}

func (tv *txView) InsertRequest(r *leave.Request) error {
	tv.m.requests[r.ID] = *r
	return nil
}

func (tv *txView) TransitionRequest(id string, from, to leave.Status, approverID, note string) error {
	r, ok := tv.m.requests[id]
	if !ok {
		return leave.ErrNotFound
	}
	if r.Status != from {
		return leave.ErrAlreadyProcessed
	}
	r.Status = to
	if approverID != "" {
		r.ApproverID = approverID
	}
	if note != "" {
		r.RejectionNote = note
	}
	r.UpdatedAt = time.Now().UTC()
	tv.m.requests[id] = r
	return nil
}

func (tv *txView) ActiveRequests(applicantID string) ([]leave.Request, error) {
	var result []leave.Request
	for _, r := range tv.m.requests {
		if r.ApplicantID != applicantID {
			continue
		}
		switch r.Status {
		case leave.StatusPending, leave.StatusApproved, leave.StatusCancellationRequested:
			result = append(result, r)
		}
	}
	return result, nil
}

func (tv *txView) Claim(id string) (*leave.CompOffClaim, error) {
	return tv.m.claimLocked(id)
}

func (tv *txView) InsertClaim(c *leave.CompOffClaim) error {
	tv.m.claims[c.ID] = *c
	return nil
}

func (tv *txView) TransitionClaim(id string, from, to leave.Status, approverID string) error {
	c, ok := tv.m.claims[id]
	if !ok {
		return leave.ErrNotFound
	}
	if c.Status != from {
		return leave.ErrAlreadyProcessed
	}
	c.Status = to
	if approverID != "" {
		c.ApproverID = approverID
	}
	c.UpdatedAt = time.Now().UTC()
	tv.m.claims[id] = c
	return nil
}

func (tv *txView) InsertJobRun(run leave.JobRun) error {
	if _, exists := tv.m.jobRuns[run.JobKey]; exists {
		return leave.ErrAlreadyLocked
	}
	tv.m.jobRuns[run.JobKey] = run
	return nil
}

func (tv *txView) InsertUser(u *leave.User) error {
	tv.m.users[u.ID] = *u
	return nil
}

func (tv *txView) ActiveUsers() ([]leave.User, error) {
	return tv.m.activeUsersLocked(), nil
}

func (tv *txView) AppendAudit(entry leave.AuditEntry) error {
	tv.m.audit = append(tv.m.audit, entry)
	return nil
}
