/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements engine.TxStore plus the CRUD surface the API serves (groups,
  participants, dependents, plans, options, rates, renewals) using SQLite.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  The rate_history table is append-and-close only:
  - INSERT for new entries
  - UPDATE touches nothing but end_date, and only on open entries
  - No DELETE; corrections append new entries

KEY TABLES:
  plans:        Coverage products (group and Medicare)
  plan_options: Age-band and tier buckets under a plan
  rates:        Time-bounded prices attached to options (or plans directly)
  enrollments:  Per-person coverage bindings
  rate_history: Immutable record of which rate applied when

INDEXES:
  - idx_rates_plan_option: rate resolution (hot path)
  - idx_enrollments_plan: renewal batch loading
  - idx_history_enrollment_open: single-open-entry lookups

CONCURRENCY:
  Uses sync.RWMutex for thread-safety; WithPlanTx serializes writers so two
  overlapping renewal runs cannot leave two history entries open. In
  production with PostgreSQL, database-level concurrency control handles
  this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/benefits.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  mat := engine.NewMaterializer(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/coverline/benefits-engine/engine"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS participants (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		name TEXT NOT NULL,
		dob TEXT,
		class INTEGER DEFAULT 0,
		termination_date TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_participants_group
		ON participants(group_id);

	CREATE TABLE IF NOT EXISTS dependents (
		id TEXT PRIMARY KEY,
		participant_id TEXT NOT NULL,
		relationship TEXT NOT NULL,
		name TEXT NOT NULL,
		dob TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_dependents_participant
		ON dependents(participant_id);

	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		family TEXT NOT NULL,
		plan_type TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		termination_date TEXT,
		contribution_type TEXT NOT NULL,
		contribution_value TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_plans_group
		ON plans(group_id);
	CREATE INDEX IF NOT EXISTS idx_plans_family
		ON plans(family);

	CREATE TABLE IF NOT EXISTS plan_options (
		id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL,
		label TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_options_plan
		ON plan_options(plan_id);

	-- option_id is '' for plan-level (Medicare) rates
	CREATE TABLE IF NOT EXISTS rates (
		id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL,
		option_id TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL,
		end_date TEXT,
		amount TEXT NOT NULL,
		class_contributions_json TEXT,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: rate resolution scans exactly this pair (hot path)
	CREATE INDEX IF NOT EXISTS idx_rates_plan_option
		ON rates(plan_id, option_id, start_date);

	CREATE TABLE IF NOT EXISTS enrollments (
		id TEXT PRIMARY KEY,
		participant_id TEXT NOT NULL,
		dependent_id TEXT NOT NULL DEFAULT '',
		plan_id TEXT NOT NULL,
		option_id TEXT NOT NULL DEFAULT '',
		coverage TEXT NOT NULL DEFAULT '',
		effective_date TEXT NOT NULL,
		termination_date TEXT,
		rate_override TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_enrollments_plan
		ON enrollments(plan_id);
	CREATE INDEX IF NOT EXISTS idx_enrollments_participant
		ON enrollments(participant_id);

	-- Append-and-close only; see package comment
	CREATE TABLE IF NOT EXISTS rate_history (
		id TEXT PRIMARY KEY,
		enrollment_id TEXT NOT NULL,
		rate_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		rate_amount TEXT NOT NULL,
		contribution_type TEXT NOT NULL DEFAULT '',
		employer_amount TEXT NOT NULL,
		employee_amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_enrollment
		ON rate_history(enrollment_id, start_date);
	CREATE INDEX IF NOT EXISTS idx_history_enrollment_open
		ON rate_history(enrollment_id) WHERE end_date IS NULL;

	CREATE TABLE IF NOT EXISTS renewals (
		id TEXT PRIMARY KEY,
		renewal_date TEXT NOT NULL,
		plan_ids_json TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		report_json TEXT,
		created_at TEXT NOT NULL,
		processed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_renewals_status
		ON renewals(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query helper works
// inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// ENGINE STORE (engine.Store interface)
// =============================================================================

func (s *Store) Plan(ctx context.Context, id engine.PlanID) (*engine.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPlan(ctx, s.db, id)
}

func getPlan(ctx context.Context, db dbtx, id engine.PlanID) (*engine.Plan, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, group_id, name, family, plan_type, effective_date,
		       termination_date, contribution_type, contribution_value
		FROM plans WHERE id = ?
	`, id)

	p, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*engine.Plan, error) {
	var p engine.Plan
	var effective string
	var termination sql.NullString
	var contribValue string

	err := row.Scan(&p.ID, &p.GroupID, &p.Name, &p.Family, &p.Type,
		&effective, &termination, &p.Contribution.Type, &contribValue)
	if err != nil {
		return nil, err
	}

	if p.EffectiveDate, err = engine.ParseDate(effective); err != nil {
		return nil, fmt.Errorf("plan %s: bad effective date: %w", p.ID, err)
	}
	if p.TerminationDate, err = parseDatePtr(termination); err != nil {
		return nil, fmt.Errorf("plan %s: bad termination date: %w", p.ID, err)
	}
	if p.Contribution.Value, err = decimal.NewFromString(contribValue); err != nil {
		return nil, fmt.Errorf("plan %s: bad contribution value: %w", p.ID, err)
	}
	return &p, nil
}

func (s *Store) PlanOptions(ctx context.Context, planID engine.PlanID) ([]engine.PlanOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listOptions(ctx, s.db, planID)
}

func listOptions(ctx context.Context, db dbtx, planID engine.PlanID) ([]engine.PlanOption, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, plan_id, label FROM plan_options WHERE plan_id = ? ORDER BY created_at, id",
		planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var options []engine.PlanOption
	for rows.Next() {
		var o engine.PlanOption
		if err := rows.Scan(&o.ID, &o.PlanID, &o.Label); err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

func (s *Store) CandidateRates(ctx context.Context, planID engine.PlanID, optionID engine.OptionID) ([]engine.Rate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRates(ctx, s.db, `
		SELECT id, plan_id, option_id, start_date, end_date, amount, class_contributions_json
		FROM rates WHERE plan_id = ? AND option_id = ?
		ORDER BY start_date, id
	`, planID, optionID)
}

// RatesForPlan returns every rate under a plan across all options, for the
// rate-table and display endpoints.
func (s *Store) RatesForPlan(ctx context.Context, planID engine.PlanID) ([]engine.Rate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRates(ctx, s.db, `
		SELECT id, plan_id, option_id, start_date, end_date, amount, class_contributions_json
		FROM rates WHERE plan_id = ?
		ORDER BY option_id, start_date, id
	`, planID)
}

func listRates(ctx context.Context, db dbtx, query string, args ...any) ([]engine.Rate, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []engine.Rate
	for rows.Next() {
		var r engine.Rate
		var start, amount string
		var end, overrides sql.NullString

		if err := rows.Scan(&r.ID, &r.PlanID, &r.OptionID, &start, &end, &amount, &overrides); err != nil {
			return nil, err
		}
		if r.Start, err = engine.ParseDate(start); err != nil {
			return nil, fmt.Errorf("rate %s: bad start date: %w", r.ID, err)
		}
		if r.End, err = parseDatePtr(end); err != nil {
			return nil, fmt.Errorf("rate %s: bad end date: %w", r.ID, err)
		}
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("rate %s: bad amount: %w", r.ID, err)
		}
		if overrides.Valid && overrides.String != "" {
			if err := json.Unmarshal([]byte(overrides.String), &r.ClassContributions); err != nil {
				return nil, fmt.Errorf("rate %s: bad class contributions: %w", r.ID, err)
			}
		}
		rates = append(rates, r)
	}
	return rates, rows.Err()
}

func (s *Store) Participant(ctx context.Context, id engine.ParticipantID) (*engine.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getParticipant(ctx, s.db, id)
}

func getParticipant(ctx context.Context, db dbtx, id engine.ParticipantID) (*engine.Participant, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, group_id, name, dob, class, termination_date
		FROM participants WHERE id = ?
	`, id)

	p, err := scanParticipant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanParticipant(row rowScanner) (*engine.Participant, error) {
	var p engine.Participant
	var dob, termination sql.NullString

	err := row.Scan(&p.ID, &p.GroupID, &p.Name, &dob, &p.Class, &termination)
	if err != nil {
		return nil, err
	}
	if p.DOB, err = parseDatePtr(dob); err != nil {
		return nil, fmt.Errorf("participant %s: bad dob: %w", p.ID, err)
	}
	if p.TerminationDate, err = parseDatePtr(termination); err != nil {
		return nil, fmt.Errorf("participant %s: bad termination date: %w", p.ID, err)
	}
	return &p, nil
}

func (s *Store) Dependents(ctx context.Context, participantID engine.ParticipantID) ([]engine.Dependent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listDependents(ctx, s.db, participantID)
}

func listDependents(ctx context.Context, db dbtx, participantID engine.ParticipantID) ([]engine.Dependent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, participant_id, relationship, name, dob
		FROM dependents WHERE participant_id = ?
		ORDER BY created_at, id
	`, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dependents []engine.Dependent
	for rows.Next() {
		var d engine.Dependent
		var dob sql.NullString
		if err := rows.Scan(&d.ID, &d.ParticipantID, &d.Relationship, &d.Name, &dob); err != nil {
			return nil, err
		}
		if d.DOB, err = parseDatePtr(dob); err != nil {
			return nil, fmt.Errorf("dependent %s: bad dob: %w", d.ID, err)
		}
		dependents = append(dependents, d)
	}
	return dependents, rows.Err()
}

func (s *Store) ActiveEnrollments(ctx context.Context, planID engine.PlanID, asOf engine.Date) ([]engine.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeEnrollments(ctx, s.db, planID, asOf)
}

func activeEnrollments(ctx context.Context, db dbtx, planID engine.PlanID, asOf engine.Date) ([]engine.Enrollment, error) {
	// Effective-period containment and terminated-participant exclusion both
	// happen in SQL; date strings compare correctly because the format is
	// lexicographically ordered.
	return queryEnrollments(ctx, db, `
		SELECT e.id, e.participant_id, e.dependent_id, e.plan_id, e.option_id,
		       e.coverage, e.effective_date, e.termination_date, e.rate_override
		FROM enrollments e
		JOIN participants p ON p.id = e.participant_id
		WHERE e.plan_id = ?
		  AND e.effective_date <= ?
		  AND (e.termination_date IS NULL OR e.termination_date >= ?)
		  AND (p.termination_date IS NULL OR p.termination_date >= ?)
		ORDER BY e.created_at, e.id
	`, planID, asOf.String(), asOf.String(), asOf.String())
}

func (s *Store) ParticipantEnrollments(ctx context.Context, participantID engine.ParticipantID) ([]engine.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryEnrollments(ctx, s.db, `
		SELECT id, participant_id, dependent_id, plan_id, option_id,
		       coverage, effective_date, termination_date, rate_override
		FROM enrollments WHERE participant_id = ?
		ORDER BY created_at, id
	`, participantID)
}

func queryEnrollments(ctx context.Context, db dbtx, query string, args ...any) ([]engine.Enrollment, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enrollments []engine.Enrollment
	for rows.Next() {
		var e engine.Enrollment
		var effective string
		var termination, override sql.NullString

		if err := rows.Scan(&e.ID, &e.ParticipantID, &e.DependentID, &e.PlanID,
			&e.OptionID, &e.Coverage, &effective, &termination, &override); err != nil {
			return nil, err
		}
		if e.EffectiveDate, err = engine.ParseDate(effective); err != nil {
			return nil, fmt.Errorf("enrollment %s: bad effective date: %w", e.ID, err)
		}
		if e.TerminationDate, err = parseDatePtr(termination); err != nil {
			return nil, fmt.Errorf("enrollment %s: bad termination date: %w", e.ID, err)
		}
		if override.Valid && override.String != "" {
			v, err := decimal.NewFromString(override.String)
			if err != nil {
				return nil, fmt.Errorf("enrollment %s: bad rate override: %w", e.ID, err)
			}
			e.RateOverride = &v
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

func (s *Store) OpenRateHistory(ctx context.Context, enrollmentID engine.EnrollmentID) ([]engine.RateHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryHistory(ctx, s.db, `
		SELECT id, enrollment_id, rate_id, start_date, end_date,
		       rate_amount, contribution_type, employer_amount, employee_amount
		FROM rate_history
		WHERE enrollment_id = ? AND end_date IS NULL
		ORDER BY start_date, id
	`, enrollmentID)
}

// RateHistory returns the full history of an enrollment, oldest first.
func (s *Store) RateHistory(ctx context.Context, enrollmentID engine.EnrollmentID) ([]engine.RateHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryHistory(ctx, s.db, `
		SELECT id, enrollment_id, rate_id, start_date, end_date,
		       rate_amount, contribution_type, employer_amount, employee_amount
		FROM rate_history
		WHERE enrollment_id = ?
		ORDER BY start_date, created_at, id
	`, enrollmentID)
}

func queryHistory(ctx context.Context, db dbtx, query string, args ...any) ([]engine.RateHistoryEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []engine.RateHistoryEntry
	for rows.Next() {
		var h engine.RateHistoryEntry
		var start, rateAmount, employer, employee string
		var end sql.NullString

		if err := rows.Scan(&h.ID, &h.EnrollmentID, &h.RateID, &start, &end,
			&rateAmount, &h.ContributionType, &employer, &employee); err != nil {
			return nil, err
		}
		if h.Start, err = engine.ParseDate(start); err != nil {
			return nil, fmt.Errorf("history %s: bad start date: %w", h.ID, err)
		}
		if h.End, err = parseDatePtr(end); err != nil {
			return nil, fmt.Errorf("history %s: bad end date: %w", h.ID, err)
		}
		if h.RateAmount, err = decimal.NewFromString(rateAmount); err != nil {
			return nil, fmt.Errorf("history %s: bad rate amount: %w", h.ID, err)
		}
		if h.EmployerAmount, err = decimal.NewFromString(employer); err != nil {
			return nil, fmt.Errorf("history %s: bad employer amount: %w", h.ID, err)
		}
		if h.EmployeeAmount, err = decimal.NewFromString(employee); err != nil {
			return nil, fmt.Errorf("history %s: bad employee amount: %w", h.ID, err)
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

func (s *Store) CreateEnrollments(ctx context.Context, enrollments []engine.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createEnrollments(ctx, s.db, enrollments)
}

func createEnrollments(ctx context.Context, db dbtx, enrollments []engine.Enrollment) error {
	for _, e := range enrollments {
		var override *string
		if e.RateOverride != nil {
			v := e.RateOverride.String()
			override = &v
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO enrollments
			(id, participant_id, dependent_id, plan_id, option_id, coverage,
			 effective_date, termination_date, rate_override, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			e.ID, e.ParticipantID, e.DependentID, e.PlanID, e.OptionID, e.Coverage,
			e.EffectiveDate.String(), dateOrNull(e.TerminationDate), override,
			time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to insert enrollment %s: %w", e.ID, err)
		}
	}
	return nil
}

func (s *Store) AppendRateHistory(ctx context.Context, entries []engine.RateHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendHistory(ctx, s.db, entries)
}

func appendHistory(ctx context.Context, db dbtx, entries []engine.RateHistoryEntry) error {
	for _, h := range entries {
		_, err := db.ExecContext(ctx, `
			INSERT INTO rate_history
			(id, enrollment_id, rate_id, start_date, end_date, rate_amount,
			 contribution_type, employer_amount, employee_amount, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			h.ID, h.EnrollmentID, h.RateID, h.Start.String(), dateOrNull(h.End),
			h.RateAmount.String(), h.ContributionType,
			h.EmployerAmount.String(), h.EmployeeAmount.String(),
			time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to append history entry %s: %w", h.ID, err)
		}
	}
	return nil
}

func (s *Store) CloseRateHistory(ctx context.Context, entryID engine.HistoryID, end engine.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return closeHistory(ctx, s.db, entryID, end)
}

func closeHistory(ctx context.Context, db dbtx, entryID engine.HistoryID, end engine.Date) error {
	res, err := db.ExecContext(ctx,
		"UPDATE rate_history SET end_date = ? WHERE id = ? AND end_date IS NULL",
		end.String(), entryID)
	if err != nil {
		return fmt.Errorf("failed to close history entry %s: %w", entryID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("history entry %s: not found or already closed", entryID)
	}
	return nil
}

// =============================================================================
// TRANSACTIONS (engine.TxStore interface)
// =============================================================================

// WithPlanTx executes fn within a database transaction. The store-wide write
// lock serializes writers, which covers the per-plan requirement.
func (s *Store) WithPlanTx(ctx context.Context, _ engine.PlanID, fn func(engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

var _ engine.TxStore = (*Store)(nil)

// txStore routes every engine.Store call through the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Plan(ctx context.Context, id engine.PlanID) (*engine.Plan, error) {
	return getPlan(ctx, ts.tx, id)
}
func (ts *txStore) PlanOptions(ctx context.Context, planID engine.PlanID) ([]engine.PlanOption, error) {
	return listOptions(ctx, ts.tx, planID)
}
func (ts *txStore) CandidateRates(ctx context.Context, planID engine.PlanID, optionID engine.OptionID) ([]engine.Rate, error) {
	return listRates(ctx, ts.tx, `
		SELECT id, plan_id, option_id, start_date, end_date, amount, class_contributions_json
		FROM rates WHERE plan_id = ? AND option_id = ?
		ORDER BY start_date, id
	`, planID, optionID)
}
func (ts *txStore) Participant(ctx context.Context, id engine.ParticipantID) (*engine.Participant, error) {
	return getParticipant(ctx, ts.tx, id)
}
func (ts *txStore) Dependents(ctx context.Context, participantID engine.ParticipantID) ([]engine.Dependent, error) {
	return listDependents(ctx, ts.tx, participantID)
}
func (ts *txStore) ActiveEnrollments(ctx context.Context, planID engine.PlanID, asOf engine.Date) ([]engine.Enrollment, error) {
	return activeEnrollments(ctx, ts.tx, planID, asOf)
}
func (ts *txStore) ParticipantEnrollments(ctx context.Context, participantID engine.ParticipantID) ([]engine.Enrollment, error) {
	return queryEnrollments(ctx, ts.tx, `
		SELECT id, participant_id, dependent_id, plan_id, option_id,
		       coverage, effective_date, termination_date, rate_override
		FROM enrollments WHERE participant_id = ?
		ORDER BY created_at, id
	`, participantID)
}
func (ts *txStore) OpenRateHistory(ctx context.Context, enrollmentID engine.EnrollmentID) ([]engine.RateHistoryEntry, error) {
	return queryHistory(ctx, ts.tx, `
		SELECT id, enrollment_id, rate_id, start_date, end_date,
		       rate_amount, contribution_type, employer_amount, employee_amount
		FROM rate_history
		WHERE enrollment_id = ? AND end_date IS NULL
		ORDER BY start_date, id
	`, enrollmentID)
}
func (ts *txStore) CreateEnrollments(ctx context.Context, enrollments []engine.Enrollment) error {
	return createEnrollments(ctx, ts.tx, enrollments)
}
func (ts *txStore) AppendRateHistory(ctx context.Context, entries []engine.RateHistoryEntry) error {
	return appendHistory(ctx, ts.tx, entries)
}
func (ts *txStore) CloseRateHistory(ctx context.Context, entryID engine.HistoryID, end engine.Date) error {
	return closeHistory(ctx, ts.tx, entryID, end)
}

// =============================================================================
// GROUP STORE
// =============================================================================

// SaveGroup inserts or updates a group.
func (s *Store) SaveGroup(ctx context.Context, g engine.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO groups (id, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, g.ID, g.Name, time.Now().UTC().Format(time.RFC3339))
	return err
}

// GetGroup retrieves a group by ID, (nil, nil) when missing.
func (s *Store) GetGroup(ctx context.Context, id engine.GroupID) (*engine.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var g engine.Group
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name FROM groups WHERE id = ?", id,
	).Scan(&g.ID, &g.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGroups returns all groups.
func (s *Store) ListGroups(ctx context.Context) ([]engine.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM groups ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []engine.Group
	for rows.Next() {
		var g engine.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// =============================================================================
// PARTICIPANT / DEPENDENT STORE
// =============================================================================

// SaveParticipant inserts or updates a participant.
func (s *Store) SaveParticipant(ctx context.Context, p engine.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (id, group_id, name, dob, class, termination_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			group_id = excluded.group_id,
			name = excluded.name,
			dob = excluded.dob,
			class = excluded.class,
			termination_date = excluded.termination_date
	`,
		p.ID, p.GroupID, p.Name, dateOrNull(p.DOB), p.Class,
		dateOrNull(p.TerminationDate), time.Now().UTC().Format(time.RFC3339))
	return err
}

// ListParticipants returns all participants in a group.
func (s *Store) ListParticipants(ctx context.Context, groupID engine.GroupID) ([]engine.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, name, dob, class, termination_date
		FROM participants WHERE group_id = ?
		ORDER BY name, id
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []engine.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, *p)
	}
	return participants, rows.Err()
}

// SaveDependent inserts or updates a dependent.
func (s *Store) SaveDependent(ctx context.Context, d engine.Dependent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dependents (id, participant_id, relationship, name, dob, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			relationship = excluded.relationship,
			name = excluded.name,
			dob = excluded.dob
	`,
		d.ID, d.ParticipantID, d.Relationship, d.Name, dateOrNull(d.DOB),
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// DeleteDependent removes a dependent record.
func (s *Store) DeleteDependent(ctx context.Context, id engine.DependentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM dependents WHERE id = ?", id)
	return err
}

// =============================================================================
// PLAN / OPTION / RATE STORE
// =============================================================================

// SavePlan inserts or updates a plan.
func (s *Store) SavePlan(ctx context.Context, p engine.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plans
		(id, group_id, name, family, plan_type, effective_date, termination_date,
		 contribution_type, contribution_value, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			effective_date = excluded.effective_date,
			termination_date = excluded.termination_date,
			contribution_type = excluded.contribution_type,
			contribution_value = excluded.contribution_value
	`,
		p.ID, p.GroupID, p.Name, p.Family, p.Type,
		p.EffectiveDate.String(), dateOrNull(p.TerminationDate),
		p.Contribution.Type, p.Contribution.Value.String(),
		time.Now().UTC().Format(time.RFC3339))
	return err
}

// ListPlans returns plans, optionally filtered by group (empty = all).
func (s *Store) ListPlans(ctx context.Context, groupID engine.GroupID) ([]engine.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, group_id, name, family, plan_type, effective_date,
		       termination_date, contribution_type, contribution_value
		FROM plans
	`
	var args []any
	if groupID != "" {
		query += " WHERE group_id = ?"
		args = append(args, groupID)
	}
	query += " ORDER BY name, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []engine.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

// EnrollmentCount returns the number of enrollments referencing a plan,
// used to block plan deletion.
func (s *Store) EnrollmentCount(ctx context.Context, planID engine.PlanID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM enrollments WHERE plan_id = ?", planID,
	).Scan(&count)
	return count, err
}

// DeletePlan removes a plan with its options and rates. The caller must
// verify no enrollments reference it first (see EnrollmentCount).
func (s *Store) DeletePlan(ctx context.Context, id engine.PlanID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM rates WHERE plan_id = ?",
		"DELETE FROM plan_options WHERE plan_id = ?",
		"DELETE FROM plans WHERE id = ?",
	} {
		if _, err := sqlTx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// SaveOption inserts or updates a plan option.
func (s *Store) SaveOption(ctx context.Context, o engine.PlanOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plan_options (id, plan_id, label, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET label = excluded.label
	`, o.ID, o.PlanID, o.Label, time.Now().UTC().Format(time.RFC3339))
	return err
}

// SaveRate inserts a rate. Rates are immutable once written, so there is no
// update path; price changes are new rate rows with new intervals.
func (s *Store) SaveRate(ctx context.Context, r engine.Rate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var overrides *string
	if len(r.ClassContributions) > 0 {
		raw, err := json.Marshal(r.ClassContributions)
		if err != nil {
			return fmt.Errorf("failed to encode class contributions: %w", err)
		}
		v := string(raw)
		overrides = &v
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rates
		(id, plan_id, option_id, start_date, end_date, amount, class_contributions_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.PlanID, r.OptionID, r.Start.String(), dateOrNull(r.End),
		r.Amount.String(), overrides, time.Now().UTC().Format(time.RFC3339))
	return err
}

// =============================================================================
// RENEWAL STORE
// =============================================================================

// SaveRenewal inserts or updates a renewal record.
func (s *Store) SaveRenewal(ctx context.Context, r engine.Renewal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	planIDs, err := json.Marshal(r.PlanIDs)
	if err != nil {
		return err
	}
	var report *string
	var processedAt *string
	if r.Report != nil {
		raw, err := json.Marshal(r.Report)
		if err != nil {
			return err
		}
		v := string(raw)
		report = &v
		now := time.Now().UTC().Format(time.RFC3339)
		processedAt = &now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO renewals (id, renewal_date, plan_ids_json, status, report_json, created_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			report_json = excluded.report_json,
			processed_at = excluded.processed_at
	`,
		r.ID, r.Date.String(), string(planIDs), r.Status, report,
		time.Now().UTC().Format(time.RFC3339), processedAt)
	return err
}

// GetRenewal retrieves a renewal by ID, (nil, nil) when missing.
func (s *Store) GetRenewal(ctx context.Context, id engine.RenewalID) (*engine.Renewal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, renewal_date, plan_ids_json, status, report_json FROM renewals WHERE id = ?", id)
	r, err := scanRenewal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRenewals returns renewals, optionally filtered by status (empty = all).
func (s *Store) ListRenewals(ctx context.Context, status engine.RenewalStatus) ([]engine.Renewal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, renewal_date, plan_ids_json, status, report_json FROM renewals"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY renewal_date, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var renewals []engine.Renewal
	for rows.Next() {
		r, err := scanRenewal(rows)
		if err != nil {
			return nil, err
		}
		renewals = append(renewals, *r)
	}
	return renewals, rows.Err()
}

// DueRenewals returns pending renewals whose date is on or before asOf,
// for the scheduler.
func (s *Store) DueRenewals(ctx context.Context, asOf engine.Date) ([]engine.Renewal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, renewal_date, plan_ids_json, status, report_json
		FROM renewals
		WHERE status = ? AND renewal_date <= ?
		ORDER BY renewal_date, id
	`, engine.RenewalPending, asOf.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var renewals []engine.Renewal
	for rows.Next() {
		r, err := scanRenewal(rows)
		if err != nil {
			return nil, err
		}
		renewals = append(renewals, *r)
	}
	return renewals, rows.Err()
}

func scanRenewal(row rowScanner) (*engine.Renewal, error) {
	var r engine.Renewal
	var date, planIDs string
	var report sql.NullString

	err := row.Scan(&r.ID, &date, &planIDs, &r.Status, &report)
	if err != nil {
		return nil, err
	}
	if r.Date, err = engine.ParseDate(date); err != nil {
		return nil, fmt.Errorf("renewal %s: bad date: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(planIDs), &r.PlanIDs); err != nil {
		return nil, fmt.Errorf("renewal %s: bad plan list: %w", r.ID, err)
	}
	if report.Valid && report.String != "" {
		r.Report = &engine.RenewalReport{}
		if err := json.Unmarshal([]byte(report.String), r.Report); err != nil {
			return nil, fmt.Errorf("renewal %s: bad report: %w", r.ID, err)
		}
	}
	return &r, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// TerminateEnrollment sets an enrollment's termination date.
func (s *Store) TerminateEnrollment(ctx context.Context, id engine.EnrollmentID, end engine.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE enrollments SET termination_date = ? WHERE id = ?",
		end.String(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrEnrollmentNotFound
	}
	return nil
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"rate_history", "enrollments", "renewals", "rates",
		"plan_options", "plans", "dependents", "participants", "groups",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func parseDatePtr(s sql.NullString) (*engine.Date, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := engine.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func dateOrNull(d *engine.Date) *string {
	if d == nil {
		return nil
	}
	v := d.String()
	return &v
}
