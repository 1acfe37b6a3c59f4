/*
Package sqlite provides the durable copy of the HR tables.

PURPOSE:
  Implements generic.Persister on SQLite. The in-memory store stays the
  source of truth while the process runs; this package receives its
  committed writes (through store.AsyncPersister) and hands the tables back
  as a generic.Snapshot on startup.

KEY TABLES:
  employees:      Identity directory records
  leave_requests: Leave ledger with both stage decisions inlined

ORDER:
  Both tables are read back in rowid order. An upsert keeps the original
  rowid, so Load returns records in first-insert order, the same order the
  in-memory store lists them.

CONCURRENCY:
  One connection and a sync.RWMutex. Writes arrive from a single
  write-behind goroutine; reads happen at startup.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  db, err := sqlite.New("./data/hr.db")
  if err != nil {
      log.Fatal(err)
  }
  defer db.Close()

  snap, err := db.Load(ctx)
  mem := store.NewMemoryFrom(snap)
  persister := store.NewAsyncPersister(mem, db)

SEE ALSO:
  - generic/store.go: Persister and Snapshot
  - generic/store/async.go: Write-behind driver
  - generic/store/memory.go: Source of truth
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/hr-engine/generic"
)

var _ generic.Persister = (*Store)(nil)

// Store persists identities and leave requests in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates it.
// Use ":memory:" for a throwaway database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		employee_code TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		role TEXT NOT NULL,
		department TEXT,
		position TEXT,
		manager_id TEXT,
		join_date TEXT,
		phone TEXT,
		address TEXT,
		status TEXT NOT NULL,
		total_leave TEXT NOT NULL,
		used_leave TEXT NOT NULL,
		created_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_employees_manager
		ON employees(manager_id) WHERE manager_id IS NOT NULL;

	-- Requests outlive their owners: no foreign key to employees.
	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		applied_date TEXT NOT NULL,
		applied_at TEXT NOT NULL,
		manager_id TEXT,
		employee_name TEXT,
		employee_email TEXT,
		department TEXT,

		manager_decision TEXT,
		manager_decision_date TEXT,
		manager_comments TEXT,
		manager_actor TEXT,
		manager_actor_synthesized INTEGER NOT NULL DEFAULT 0,

		hr_decision TEXT,
		hr_decision_date TEXT,
		hr_comments TEXT,
		hr_actor TEXT,
		hr_actor_synthesized INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_employee
		ON leave_requests(employee_id);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status
		ON leave_requests(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// SaveIdentity upserts an identity.
func (s *Store) SaveIdentity(ctx context.Context, i generic.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (id, employee_code, name, email, role, department, position,
			manager_id, join_date, phone, address, status, total_leave, used_leave, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			employee_code = excluded.employee_code,
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			department = excluded.department,
			position = excluded.position,
			manager_id = excluded.manager_id,
			join_date = excluded.join_date,
			phone = excluded.phone,
			address = excluded.address,
			status = excluded.status,
			total_leave = excluded.total_leave,
			used_leave = excluded.used_leave
	`

	_, err := s.db.ExecContext(ctx, query,
		string(i.ID), i.EmployeeCode, i.Name, i.Email, string(i.Role),
		nullString(i.Department), nullString(i.Position), nullID(i.ManagerID),
		nullDate(i.JoinDate), nullString(i.Phone), nullString(i.Address),
		string(i.Status), i.TotalLeaveEntitlement.String(), i.UsedLeaveDays.String(),
		nullDate(i.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save identity %s: %w", i.ID, err)
	}
	return nil
}

// DeleteIdentity removes an identity. Deleting a missing id is not an error.
func (s *Store) DeleteIdentity(ctx context.Context, id generic.IdentityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM employees WHERE id = ?", string(id))
	return err
}

func (s *Store) loadIdentities(ctx context.Context) ([]generic.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_code, name, email, role, department, position, manager_id,
			join_date, phone, address, status, total_leave, used_leave, created_at
		FROM employees ORDER BY rowid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	identities := []generic.Identity{}
	for rows.Next() {
		var (
			i                                    generic.Identity
			id, role, status, total, used        string
			department, position, phone, address sql.NullString
			managerID, joinDate, createdAt       sql.NullString
		)
		if err := rows.Scan(&id, &i.EmployeeCode, &i.Name, &i.Email, &role,
			&department, &position, &managerID, &joinDate, &phone, &address,
			&status, &total, &used, &createdAt,
		); err != nil {
			return nil, err
		}

		i.ID = generic.IdentityID(id)
		i.Role = generic.Role(role)
		i.Status = generic.IdentityStatus(status)
		i.Department = department.String
		i.Position = position.String
		i.Phone = phone.String
		i.Address = address.String
		i.ManagerID = parseID(managerID)
		if i.JoinDate, err = parseDate(joinDate); err != nil {
			return nil, fmt.Errorf("identity %s join_date: %w", id, err)
		}
		if i.CreatedAt, err = parseDate(createdAt); err != nil {
			return nil, fmt.Errorf("identity %s created_at: %w", id, err)
		}
		if i.TotalLeaveEntitlement, err = generic.ParseDays(total); err != nil {
			return nil, fmt.Errorf("identity %s total_leave: %w", id, err)
		}
		if i.UsedLeaveDays, err = generic.ParseDays(used); err != nil {
			return nil, fmt.Errorf("identity %s used_leave: %w", id, err)
		}
		identities = append(identities, i)
	}
	return identities, rows.Err()
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

// SaveRequest upserts a leave request with its decision trail.
func (s *Store) SaveRequest(ctx context.Context, r generic.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO leave_requests (id, employee_id, leave_type, start_date, end_date, reason,
			status, applied_date, applied_at, manager_id, employee_name, employee_email, department,
			manager_decision, manager_decision_date, manager_comments, manager_actor, manager_actor_synthesized,
			hr_decision, hr_decision_date, hr_comments, hr_actor, hr_actor_synthesized)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			manager_decision = excluded.manager_decision,
			manager_decision_date = excluded.manager_decision_date,
			manager_comments = excluded.manager_comments,
			manager_actor = excluded.manager_actor,
			manager_actor_synthesized = excluded.manager_actor_synthesized,
			hr_decision = excluded.hr_decision,
			hr_decision_date = excluded.hr_decision_date,
			hr_comments = excluded.hr_comments,
			hr_actor = excluded.hr_actor,
			hr_actor_synthesized = excluded.hr_actor_synthesized
	`

	args := []any{
		string(r.ID), string(r.EmployeeID), string(r.LeaveType),
		r.StartDate.String(), r.EndDate.String(), r.Reason, string(r.Status),
		r.AppliedDate.String(), r.AppliedAt.UTC().Format(time.RFC3339Nano),
		nullID(r.ManagerID), nullString(r.EmployeeName), nullString(r.EmployeeEmail), nullString(r.Department),
	}
	args = append(args, decisionColumns(r.ManagerDecision)...)
	args = append(args, decisionColumns(r.HRDecision)...)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save leave request %s: %w", r.ID, err)
	}
	return nil
}

// ClearRequests empties the leave ledger.
func (s *Store) ClearRequests(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM leave_requests")
	return err
}

func (s *Store) loadRequests(ctx context.Context) ([]generic.LeaveRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, leave_type, start_date, end_date, reason, status,
			applied_date, applied_at, manager_id, employee_name, employee_email, department,
			manager_decision, manager_decision_date, manager_comments, manager_actor, manager_actor_synthesized,
			hr_decision, hr_decision_date, hr_comments, hr_actor, hr_actor_synthesized
		FROM leave_requests ORDER BY rowid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []generic.LeaveRequest{}
	for rows.Next() {
		var (
			r                                  generic.LeaveRequest
			id, employeeID, leaveType, status  string
			start, end, appliedDate, appliedAt string
			managerID, name, email, department sql.NullString
			mgr, hr                            decisionRow
		)
		if err := rows.Scan(&id, &employeeID, &leaveType, &start, &end, &r.Reason, &status,
			&appliedDate, &appliedAt, &managerID, &name, &email, &department,
			&mgr.decision, &mgr.date, &mgr.comments, &mgr.actor, &mgr.synthesized,
			&hr.decision, &hr.date, &hr.comments, &hr.actor, &hr.synthesized,
		); err != nil {
			return nil, err
		}

		r.ID = generic.RequestID(id)
		r.EmployeeID = generic.IdentityID(employeeID)
		r.LeaveType = generic.LeaveType(leaveType)
		r.Status = generic.LeaveStatus(status)
		r.ManagerID = parseID(managerID)
		r.EmployeeName = name.String
		r.EmployeeEmail = email.String
		r.Department = department.String

		if r.StartDate, err = generic.ParseDate(start); err != nil {
			return nil, fmt.Errorf("leave request %s start_date: %w", id, err)
		}
		if r.EndDate, err = generic.ParseDate(end); err != nil {
			return nil, fmt.Errorf("leave request %s end_date: %w", id, err)
		}
		if r.AppliedDate, err = generic.ParseDate(appliedDate); err != nil {
			return nil, fmt.Errorf("leave request %s applied_date: %w", id, err)
		}
		if r.AppliedAt, err = time.Parse(time.RFC3339Nano, appliedAt); err != nil {
			return nil, fmt.Errorf("leave request %s applied_at: %w", id, err)
		}
		if r.ManagerDecision, err = mgr.toDecision(); err != nil {
			return nil, fmt.Errorf("leave request %s manager decision: %w", id, err)
		}
		if r.HRDecision, err = hr.toDecision(); err != nil {
			return nil, fmt.Errorf("leave request %s hr decision: %w", id, err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

type decisionRow struct {
	decision, date, comments, actor sql.NullString
	synthesized                     bool
}

func (d decisionRow) toDecision() (*generic.StageDecision, error) {
	if !d.decision.Valid {
		return nil, nil
	}
	date, err := parseDate(d.date)
	if err != nil {
		return nil, err
	}
	return &generic.StageDecision{
		Decision:         generic.Decision(d.decision.String),
		Date:             date,
		Comments:         d.comments.String,
		ActorID:          generic.IdentityID(d.actor.String),
		ActorSynthesized: d.synthesized,
	}, nil
}

func decisionColumns(d *generic.StageDecision) []any {
	if d == nil {
		return []any{nil, nil, nil, nil, false}
	}
	return []any{
		string(d.Decision), nullDate(d.Date), nullString(d.Comments),
		nullString(string(d.ActorID)), d.ActorSynthesized,
	}
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Load reads both tables in insertion order.
func (s *Store) Load(ctx context.Context) (generic.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identities, err := s.loadIdentities(ctx)
	if err != nil {
		return generic.Snapshot{}, fmt.Errorf("load employees: %w", err)
	}
	requests, err := s.loadRequests(ctx)
	if err != nil {
		return generic.Snapshot{}, fmt.Errorf("load leave requests: %w", err)
	}
	return generic.Snapshot{Identities: identities, Requests: requests}, nil
}

// ClearAll empties both tables.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"leave_requests", "employees"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// IsEmpty reports whether the employees table has no rows.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM employees").Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullID(id *generic.IdentityID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return nullString(string(*id))
}

func nullDate(d generic.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseID(s sql.NullString) *generic.IdentityID {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return nil
	}
	return generic.IdentityPtr(generic.IdentityID(s.String))
}

func parseDate(s sql.NullString) (generic.Date, error) {
	if !s.Valid || s.String == "" {
		return generic.Date{}, nil
	}
	return generic.ParseDate(s.String)
}
