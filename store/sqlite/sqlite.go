/*
Package sqlite is the production store for the leave engine.

PURPOSE:
  Implements every persistence interface the domain layer consumes
  (leave.Store, leave.Directory, leave.HolidayCalendar,
  leave.PolicyProvider, leave.AuditLog) over one SQLite file via sqlx.
  The same SQL ports to PostgreSQL with minor dialect changes.

KEY TABLES:
  users:            employee directory slice the engine needs
  leave_accounts:   current balance per (user, leave type)
  balance_history:  immutable ledger of every balance change
  leave_requests:   request state machine rows
  comp_off_claims:  comp-off claim rows
  job_runs:         one row per completed job period (the job lock)
  holidays:         company holiday calendar
  policies:         yearly quota rows
  audit_log:        append-only audit trail

CONCURRENCY:
  - balance_history and audit_log are append-only: no UPDATE or DELETE
    statements exist for them.
  - Status transitions are compare-and-swap UPDATEs on the status
    column; zero rows affected maps to leave.ErrAlreadyProcessed.
  - job_runs.job_key is the primary key; a duplicate insert maps to
    leave.ErrAlreadyLocked. No held locks, no deadlock.

WAL MODE:
  The database is opened with WAL and foreign keys on. Readers do not
  block; a mutex serializes writers within this process, matching
  SQLite's single-writer model.

MIGRATION:
  Schema is auto-migrated on Open(). For production use a versioned
  migration tool (golang-migrate, goose).

SEE ALSO:
  - leave/store.go: interface contracts
  - leave/store/memory.go: in-memory counterpart for engine tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

// Store implements the persistence interfaces over SQLite.
type Store struct {
	db *sqlx.DB
	mu sync.RWMutex
}

// Open connects to the database at path (":memory:" works) and migrates
// the schema.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		manager_id TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_manager ON users(manager_id);

	-- Current balance per (user, leave type). Authoritative value; the
	-- history table must replay to it.
	CREATE TABLE IF NOT EXISTS leave_accounts (
		user_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		balance TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, leave_type)
	);

	-- Balance history (append-only ledger)
	CREATE TABLE IF NOT EXISTS balance_history (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		change_type TEXT NOT NULL,
		delta TEXT NOT NULL,
		previous_balance TEXT NOT NULL,
		new_balance TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		actor_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_user_type
		ON balance_history(user_id, leave_type, created_at);
	-- Hot path for refunds: every DEDUCTION for a request
	CREATE INDEX IF NOT EXISTS idx_history_request
		ON balance_history(request_id, change_type) WHERE request_id != '';

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		applicant_id TEXT NOT NULL,
		approver_id TEXT NOT NULL DEFAULT '',
		leave_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		deductible_days TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		rejection_note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_applicant
		ON leave_requests(applicant_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON leave_requests(status);
	-- Overlap validation scans only live rows
	CREATE INDEX IF NOT EXISTS idx_requests_active
		ON leave_requests(applicant_id, status)
		WHERE status IN ('PENDING', 'APPROVED', 'CANCELLATION_REQUESTED');

	CREATE TABLE IF NOT EXISTS comp_off_claims (
		id TEXT PRIMARY KEY,
		claimant_id TEXT NOT NULL,
		approver_id TEXT NOT NULL DEFAULT '',
		work_date TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_claims_claimant
		ON comp_off_claims(claimant_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_claims_status
		ON comp_off_claims(status);

	-- Job lock: the primary key IS the once-per-period guarantee
	CREATE TABLE IF NOT EXISTS job_runs (
		job_key TEXT PRIMARY KEY,
		executed_at TEXT NOT NULL,
		triggered_by TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		year INTEGER NOT NULL,
		optional INTEGER NOT NULL DEFAULT 0
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(date, name);
	CREATE INDEX IF NOT EXISTS idx_holidays_year ON holidays(year);

	CREATE TABLE IF NOT EXISTS policies (
		year INTEGER PRIMARY KEY,
		casual_yearly TEXT NOT NULL,
		sick_yearly TEXT NOT NULL,
		wfh_yearly TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		old_values_json TEXT NOT NULL DEFAULT '',
		new_values_json TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity
		ON audit_log(entity, entity_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ROW TYPES - sqlx struct scanning
// =============================================================================

type userRow struct {
	ID         string `db:"id"`
	EmployeeID string `db:"employee_id"`
	FullName   string `db:"full_name"`
	Email      string `db:"email"`
	ManagerID  string `db:"manager_id"`
	Active     bool   `db:"active"`
	CreatedAt  string `db:"created_at"`
}

func (r userRow) toDomain() leave.User {
	createdAt, _ := time.Parse(time.RFC3339, r.CreatedAt)
	return leave.User{
		ID:         r.ID,
		EmployeeID: r.EmployeeID,
		FullName:   r.FullName,
		Email:      r.Email,
		ManagerID:  r.ManagerID,
		Active:     r.Active,
		CreatedAt:  createdAt,
	}
}

type accountRow struct {
	UserID    string `db:"user_id"`
	LeaveType string `db:"leave_type"`
	Balance   string `db:"balance"`
	UpdatedAt string `db:"updated_at"`
}

func (r accountRow) toDomain() (leave.Account, error) {
	balance, err := decimal.NewFromString(r.Balance)
	if err != nil {
		return leave.Account{}, fmt.Errorf("corrupt balance for %s/%s: %w", r.UserID, r.LeaveType, err)
	}
	updatedAt, _ := time.Parse(time.RFC3339, r.UpdatedAt)
	return leave.Account{
		UserID:    r.UserID,
		LeaveType: leave.LeaveType(r.LeaveType),
		Balance:   balance,
		UpdatedAt: updatedAt,
	}, nil
}

type historyRow struct {
	ID              string `db:"id"`
	UserID          string `db:"user_id"`
	LeaveType       string `db:"leave_type"`
	ChangeType      string `db:"change_type"`
	Delta           string `db:"delta"`
	PreviousBalance string `db:"previous_balance"`
	NewBalance      string `db:"new_balance"`
	Reason          string `db:"reason"`
	RequestID       string `db:"request_id"`
	ActorID         string `db:"actor_id"`
	CreatedAt       string `db:"created_at"`
}

func (r historyRow) toDomain() (leave.HistoryEntry, error) {
	delta, err := decimal.NewFromString(r.Delta)
	if err != nil {
		return leave.HistoryEntry{}, fmt.Errorf("corrupt delta in history %s: %w", r.ID, err)
	}
	prev, err := decimal.NewFromString(r.PreviousBalance)
	if err != nil {
		return leave.HistoryEntry{}, fmt.Errorf("corrupt previous balance in history %s: %w", r.ID, err)
	}
	next, err := decimal.NewFromString(r.NewBalance)
	if err != nil {
		return leave.HistoryEntry{}, fmt.Errorf("corrupt new balance in history %s: %w", r.ID, err)
	}
	createdAt, _ := time.Parse(time.RFC3339, r.CreatedAt)
	return leave.HistoryEntry{
		ID:              r.ID,
		UserID:          r.UserID,
		LeaveType:       leave.LeaveType(r.LeaveType),
		ChangeType:      leave.ChangeType(r.ChangeType),
		Delta:           delta,
		PreviousBalance: prev,
		NewBalance:      next,
		Reason:          r.Reason,
		RequestID:       r.RequestID,
		ActorID:         r.ActorID,
		CreatedAt:       createdAt,
	}, nil
}

type requestRow struct {
	ID             string         `db:"id"`
	ApplicantID    string         `db:"applicant_id"`
	ApproverID     string         `db:"approver_id"`
	LeaveType      string         `db:"leave_type"`
	StartDate      string         `db:"start_date"`
	EndDate        sql.NullString `db:"end_date"`
	DeductibleDays string         `db:"deductible_days"`
	Status         string         `db:"status"`
	Reason         string         `db:"reason"`
	RejectionNote  string         `db:"rejection_note"`
	CreatedAt      string         `db:"created_at"`
	UpdatedAt      string         `db:"updated_at"`
}

func (r requestRow) toDomain() (leave.Request, error) {
	start, err := leave.ParseDate(r.StartDate)
	if err != nil {
		return leave.Request{}, fmt.Errorf("corrupt start date in request %s: %w", r.ID, err)
	}
	var end *leave.Date
	if r.EndDate.Valid && r.EndDate.String != "" {
		e, err := leave.ParseDate(r.EndDate.String)
		if err != nil {
			return leave.Request{}, fmt.Errorf("corrupt end date in request %s: %w", r.ID, err)
		}
		end = &e
	}
	days, err := decimal.NewFromString(r.DeductibleDays)
	if err != nil {
		return leave.Request{}, fmt.Errorf("corrupt deductible days in request %s: %w", r.ID, err)
	}
	createdAt, _ := time.Parse(time.RFC3339, r.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, r.UpdatedAt)
	return leave.Request{
		ID:             r.ID,
		ApplicantID:    r.ApplicantID,
		ApproverID:     r.ApproverID,
		Type:           leave.LeaveType(r.LeaveType),
		StartDate:      start,
		EndDate:        end,
		DeductibleDays: days,
		Status:         leave.Status(r.Status),
		Reason:         r.Reason,
		RejectionNote:  r.RejectionNote,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

type claimRow struct {
	ID         string `db:"id"`
	ClaimantID string `db:"claimant_id"`
	ApproverID string `db:"approver_id"`
	WorkDate   string `db:"work_date"`
	Reason     string `db:"reason"`
	Status     string `db:"status"`
	CreatedAt  string `db:"created_at"`
	UpdatedAt  string `db:"updated_at"`
}

func (r claimRow) toDomain() (leave.CompOffClaim, error) {
	workDate, err := leave.ParseDate(r.WorkDate)
	if err != nil {
		return leave.CompOffClaim{}, fmt.Errorf("corrupt work date in claim %s: %w", r.ID, err)
	}
	createdAt, _ := time.Parse(time.RFC3339, r.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, r.UpdatedAt)
	return leave.CompOffClaim{
		ID:         r.ID,
		ClaimantID: r.ClaimantID,
		ApproverID: r.ApproverID,
		WorkDate:   workDate,
		Reason:     r.Reason,
		Status:     leave.Status(r.Status),
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

const requestColumns = `id, applicant_id, approver_id, leave_type, start_date, end_date,
	deductible_days, status, reason, rejection_note, created_at, updated_at`

const historyColumns = `id, user_id, leave_type, change_type, delta, previous_balance,
	new_balance, reason, request_id, actor_id, created_at`

const claimColumns = `id, claimant_id, approver_id, work_date, reason, status, created_at, updated_at`

// =============================================================================
// STORE - leave.Store
// =============================================================================

// WithTx runs fn inside one SQL transaction. Any error from fn rolls
// everything back.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&storeTx{ctx: ctx, tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) Request(ctx context.Context, id string) (*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRequest(ctx, s.db, id)
}

func (s *Store) RequestsByApplicant(ctx context.Context, applicantID string) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + requestColumns + ` FROM leave_requests
		WHERE applicant_id = ? ORDER BY created_at DESC`
	return selectRequests(ctx, s.db, query, applicantID)
}

func (s *Store) PendingRequests(ctx context.Context, approverID string) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + requestColumns + ` FROM leave_requests
		WHERE status IN ('PENDING', 'CANCELLATION_REQUESTED')`
	args := []any{}
	if approverID != "" {
		query += ` AND approver_id = ?`
		args = append(args, approverID)
	}
	query += ` ORDER BY created_at ASC`
	return selectRequests(ctx, s.db, query, args...)
}

func (s *Store) Claim(ctx context.Context, id string) (*leave.CompOffClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getClaim(ctx, s.db, id)
}

func (s *Store) PendingClaims(ctx context.Context, approverID string) ([]leave.CompOffClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + claimColumns + ` FROM comp_off_claims WHERE status = 'PENDING'`
	args := []any{}
	if approverID != "" {
		query += ` AND approver_id = ?`
		args = append(args, approverID)
	}
	query += ` ORDER BY created_at ASC`

	var rows []claimRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	claims := make([]leave.CompOffClaim, 0, len(rows))
	for _, r := range rows {
		c, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, nil
}

func (s *Store) Accounts(ctx context.Context, userID string) ([]leave.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []accountRow
	err := sqlx.SelectContext(ctx, s.db, &rows,
		`SELECT user_id, leave_type, balance, updated_at FROM leave_accounts
		 WHERE user_id = ? ORDER BY leave_type`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}

	accounts := make([]leave.Account, 0, len(rows))
	for _, r := range rows {
		acct, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

func (s *Store) History(ctx context.Context, userID string, leaveType leave.LeaveType) ([]leave.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + historyColumns + ` FROM balance_history WHERE user_id = ?`
	args := []any{userID}
	if leaveType != "" {
		query += ` AND leave_type = ?`
		args = append(args, string(leaveType))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	var rows []historyRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	entries := make([]leave.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) JobRun(ctx context.Context, jobKey string) (*leave.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row struct {
		JobKey      string `db:"job_key"`
		ExecutedAt  string `db:"executed_at"`
		TriggeredBy string `db:"triggered_by"`
		Summary     string `db:"summary"`
	}
	err := sqlx.GetContext(ctx, s.db, &row,
		`SELECT job_key, executed_at, triggered_by, summary FROM job_runs WHERE job_key = ?`, jobKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leave.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	executedAt, _ := time.Parse(time.RFC3339, row.ExecutedAt)
	return &leave.JobRun{
		JobKey:      row.JobKey,
		ExecutedAt:  executedAt,
		TriggeredBy: row.TriggeredBy,
		Summary:     row.Summary,
	}, nil
}

// =============================================================================
// DIRECTORY - leave.Directory
// =============================================================================

func (s *Store) User(ctx context.Context, id string) (*leave.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row userRow
	err := sqlx.GetContext(ctx, s.db, &row,
		`SELECT id, employee_id, full_name, email, manager_id, active, created_at
		 FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leave.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u := row.toDomain()
	return &u, nil
}

func (s *Store) ActiveUsers(ctx context.Context) ([]leave.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return selectActiveUsers(ctx, s.db)
}

// Users returns every user, active or not.
func (s *Store) Users(ctx context.Context) ([]leave.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []userRow
	err := sqlx.SelectContext(ctx, s.db, &rows,
		`SELECT id, employee_id, full_name, email, manager_id, active, created_at
		 FROM users ORDER BY employee_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	users := make([]leave.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toDomain())
	}
	return users, nil
}

func selectActiveUsers(ctx context.Context, q sqlx.QueryerContext) ([]leave.User, error) {
	var rows []userRow
	err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT id, employee_id, full_name, email, manager_id, active, created_at
		 FROM users WHERE active = 1 ORDER BY employee_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	users := make([]leave.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toDomain())
	}
	return users, nil
}

// =============================================================================
// HOLIDAY CALENDAR - leave.HolidayCalendar
// =============================================================================

func (s *Store) HolidaysInRange(ctx context.Context, from, to leave.Date) ([]leave.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []struct {
		ID       string `db:"id"`
		Date     string `db:"date"`
		Name     string `db:"name"`
		Year     int    `db:"year"`
		Optional bool   `db:"optional"`
	}
	err := sqlx.SelectContext(ctx, s.db, &rows,
		`SELECT id, date, name, year, optional FROM holidays
		 WHERE date >= ? AND date <= ? ORDER BY date ASC`,
		from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}

	holidays := make([]leave.Holiday, 0, len(rows))
	for _, r := range rows {
		d, err := leave.ParseDate(r.Date)
		if err != nil {
			return nil, fmt.Errorf("corrupt holiday date %s: %w", r.ID, err)
		}
		holidays = append(holidays, leave.Holiday{
			ID:       r.ID,
			Date:     d,
			Name:     r.Name,
			Year:     r.Year,
			Optional: r.Optional,
		})
	}
	return holidays, nil
}

// SaveHoliday upserts one calendar entry.
func (s *Store) SaveHoliday(ctx context.Context, h leave.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO holidays (id, date, name, year, optional)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(date, name) DO UPDATE SET optional = excluded.optional`,
		h.ID, h.Date.String(), h.Name, h.Year, h.Optional)
	return err
}

// HolidaysForYear lists a year's calendar.
func (s *Store) HolidaysForYear(ctx context.Context, year int) ([]leave.Holiday, error) {
	return s.HolidaysInRange(ctx,
		leave.NewDate(year, time.January, 1),
		leave.NewDate(year, time.December, 31))
}

// =============================================================================
// POLICY PROVIDER - leave.PolicyProvider
// =============================================================================

// QuotasFor resolves the quotas for year, falling back to the most
// recent earlier year and then to the compiled-in defaults.
func (s *Store) QuotasFor(ctx context.Context, year int) (leave.Quotas, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row struct {
		CasualYearly string `db:"casual_yearly"`
		SickYearly   string `db:"sick_yearly"`
		WFHYearly    string `db:"wfh_yearly"`
	}
	err := sqlx.GetContext(ctx, s.db, &row,
		`SELECT casual_yearly, sick_yearly, wfh_yearly FROM policies
		 WHERE year <= ? ORDER BY year DESC LIMIT 1`, year)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.DefaultQuotas(), nil
	}
	if err != nil {
		return leave.Quotas{}, err
	}

	casual, err := decimal.NewFromString(row.CasualYearly)
	if err != nil {
		return leave.Quotas{}, fmt.Errorf("corrupt casual quota: %w", err)
	}
	sick, err := decimal.NewFromString(row.SickYearly)
	if err != nil {
		return leave.Quotas{}, fmt.Errorf("corrupt sick quota: %w", err)
	}
	wfh, err := decimal.NewFromString(row.WFHYearly)
	if err != nil {
		return leave.Quotas{}, fmt.Errorf("corrupt wfh quota: %w", err)
	}
	return leave.Quotas{CasualYearly: casual, SickYearly: sick, WFHYearly: wfh}, nil
}

// SavePolicy upserts the quota row for a year.
func (s *Store) SavePolicy(ctx context.Context, year int, q leave.Quotas) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO policies (year, casual_yearly, sick_yearly, wfh_yearly, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(year) DO UPDATE SET
			casual_yearly = excluded.casual_yearly,
			sick_yearly = excluded.sick_yearly,
			wfh_yearly = excluded.wfh_yearly,
			updated_at = excluded.updated_at`,
		year, q.CasualYearly.String(), q.SickYearly.String(), q.WFHYearly.String(),
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// =============================================================================
// AUDIT LOG - leave.AuditLog
// =============================================================================

func (s *Store) AuditByEntity(ctx context.Context, entity, entityID string) ([]leave.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []struct {
		ID            string `db:"id"`
		ActorID       string `db:"actor_id"`
		Action        string `db:"action"`
		Entity        string `db:"entity"`
		EntityID      string `db:"entity_id"`
		OldValuesJSON string `db:"old_values_json"`
		NewValuesJSON string `db:"new_values_json"`
		Summary       string `db:"summary"`
		CreatedAt     string `db:"created_at"`
	}
	err := sqlx.SelectContext(ctx, s.db, &rows,
		`SELECT id, actor_id, action, entity, entity_id, old_values_json,
			new_values_json, summary, created_at
		 FROM audit_log WHERE entity = ? AND entity_id = ?
		 ORDER BY created_at ASC`, entity, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}

	entries := make([]leave.AuditEntry, 0, len(rows))
	for _, r := range rows {
		e := leave.AuditEntry{
			ID:       r.ID,
			ActorID:  r.ActorID,
			Action:   leave.AuditAction(r.Action),
			Entity:   r.Entity,
			EntityID: r.EntityID,
			Summary:  r.Summary,
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, r.CreatedAt)
		if r.OldValuesJSON != "" {
			json.Unmarshal([]byte(r.OldValuesJSON), &e.OldValues)
		}
		if r.NewValuesJSON != "" {
			json.Unmarshal([]byte(r.NewValuesJSON), &e.NewValues)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// =============================================================================
// TX - leave.Tx on one *sqlx.Tx
// =============================================================================

type storeTx struct {
	ctx context.Context
	tx  *sqlx.Tx
}

func (t *storeTx) Account(userID string, leaveType leave.LeaveType) (leave.Account, error) {
	var row accountRow
	err := sqlx.GetContext(t.ctx, t.tx, &row,
		`SELECT user_id, leave_type, balance, updated_at FROM leave_accounts
		 WHERE user_id = ? AND leave_type = ?`, userID, string(leaveType))
	if errors.Is(err, sql.ErrNoRows) {
		// No row yet reads as a zero balance; SaveBalance creates it.
		return leave.Account{UserID: userID, LeaveType: leaveType, Balance: decimal.Zero}, nil
	}
	if err != nil {
		return leave.Account{}, err
	}
	return row.toDomain()
}

func (t *storeTx) SaveBalance(userID string, leaveType leave.LeaveType, balance decimal.Decimal) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO leave_accounts (user_id, leave_type, balance, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, leave_type) DO UPDATE SET
			balance = excluded.balance,
			updated_at = excluded.updated_at`,
		userID, string(leaveType), balance.String(),
		time.Now().UTC().Format(time.RFC3339))
	return err
}

func (t *storeTx) AppendHistory(entry leave.HistoryEntry) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO balance_history (`+historyColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, string(entry.LeaveType), string(entry.ChangeType),
		entry.Delta.String(), entry.PreviousBalance.String(), entry.NewBalance.String(),
		entry.Reason, entry.RequestID, entry.ActorID,
		entry.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (t *storeTx) DeductionsForRequest(requestID string) ([]leave.HistoryEntry, error) {
	var rows []historyRow
	err := sqlx.SelectContext(t.ctx, t.tx, &rows,
		`SELECT `+historyColumns+` FROM balance_history
		 WHERE request_id = ? AND change_type = ?
		 ORDER BY created_at ASC, id ASC`,
		requestID, string(leave.ChangeDeduction))
	if err != nil {
		return nil, fmt.Errorf("failed to query deductions: %w", err)
	}
	entries := make([]leave.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		e, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (t *storeTx) Request(id string) (*leave.Request, error) {
	return getRequest(t.ctx, t.tx, id)
}

func (t *storeTx) InsertRequest(r *leave.Request) error {
	var end any
	if r.EndDate != nil {
		end = r.EndDate.String()
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO leave_requests (`+requestColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ApplicantID, r.ApproverID, string(r.Type),
		r.StartDate.String(), end, r.DeductibleDays.String(), string(r.Status),
		r.Reason, r.RejectionNote,
		r.CreatedAt.Format(time.RFC3339), r.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert request: %w", err)
	}
	return nil
}

// TransitionRequest is the compare-and-swap at the heart of the
// concurrency model: the WHERE clause only matches the expected status,
// so of two racing updates exactly one affects a row.
func (t *storeTx) TransitionRequest(id string, from, to leave.Status, approverID, note string) error {
	query := `UPDATE leave_requests SET status = ?, updated_at = ?`
	args := []any{string(to), time.Now().UTC().Format(time.RFC3339)}
	if approverID != "" {
		query += `, approver_id = ?`
		args = append(args, approverID)
	}
	if note != "" {
		query += `, rejection_note = ?`
		args = append(args, note)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, string(from))

	res, err := t.tx.ExecContext(t.ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to transition request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return leave.ErrAlreadyProcessed
	}
	return nil
}

func (t *storeTx) ActiveRequests(applicantID string) ([]leave.Request, error) {
	return selectRequests(t.ctx, t.tx,
		`SELECT `+requestColumns+` FROM leave_requests
		 WHERE applicant_id = ?
		   AND status IN ('PENDING', 'APPROVED', 'CANCELLATION_REQUESTED')
		 ORDER BY start_date ASC`, applicantID)
}

func (t *storeTx) Claim(id string) (*leave.CompOffClaim, error) {
	return getClaim(t.ctx, t.tx, id)
}

func (t *storeTx) InsertClaim(c *leave.CompOffClaim) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO comp_off_claims (`+claimColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ClaimantID, c.ApproverID, c.WorkDate.String(),
		c.Reason, string(c.Status),
		c.CreatedAt.Format(time.RFC3339), c.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

func (t *storeTx) TransitionClaim(id string, from, to leave.Status, approverID string) error {
	query := `UPDATE comp_off_claims SET status = ?, updated_at = ?`
	args := []any{string(to), time.Now().UTC().Format(time.RFC3339)}
	if approverID != "" {
		query += `, approver_id = ?`
		args = append(args, approverID)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, string(from))

	res, err := t.tx.ExecContext(t.ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to transition claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return leave.ErrAlreadyProcessed
	}
	return nil
}

func (t *storeTx) InsertJobRun(run leave.JobRun) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO job_runs (job_key, executed_at, triggered_by, summary)
		 VALUES (?, ?, ?, ?)`,
		run.JobKey, run.ExecutedAt.Format(time.RFC3339), run.TriggeredBy, run.Summary)
	if err != nil {
		if isUniqueConstraintError(err) {
			return leave.ErrAlreadyLocked
		}
		return fmt.Errorf("failed to insert job run: %w", err)
	}
	return nil
}

func (t *storeTx) InsertUser(u *leave.User) error {
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO users (id, employee_id, full_name, email, manager_id, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.EmployeeID, u.FullName, u.Email, u.ManagerID, u.Active,
		u.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (t *storeTx) ActiveUsers() ([]leave.User, error) {
	return selectActiveUsers(t.ctx, t.tx)
}

func (t *storeTx) AppendAudit(entry leave.AuditEntry) error {
	oldJSON, _ := json.Marshal(entry.OldValues)
	newJSON, _ := json.Marshal(entry.NewValues)

	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO audit_log (id, actor_id, action, entity, entity_id,
			old_values_json, new_values_json, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ActorID, string(entry.Action), entry.Entity, entry.EntityID,
		string(oldJSON), string(newJSON), entry.Summary,
		entry.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// =============================================================================
// SHARED QUERIES
// =============================================================================

func getRequest(ctx context.Context, q sqlx.QueryerContext, id string) (*leave.Request, error) {
	var row requestRow
	err := sqlx.GetContext(ctx, q, &row,
		`SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leave.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func selectRequests(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) ([]leave.Request, error) {
	var rows []requestRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	requests := make([]leave.Request, 0, len(rows))
	for _, row := range rows {
		r, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, nil
}

func getClaim(ctx context.Context, q sqlx.QueryerContext, id string) (*leave.CompOffClaim, error) {
	var row claimRow
	err := sqlx.GetContext(ctx, q, &row,
		`SELECT `+claimColumns+` FROM comp_off_claims WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leave.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
