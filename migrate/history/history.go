// Package history manages the ledger of applied migrations.
package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/satishbabariya/schema-engine/internal/debug"
	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/flavour"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// MigrationRecord is one row of the ledger. A record is created when a
// migration starts and finished only when every statement succeeded.
type MigrationRecord struct {
	ID                string     `json:"id"`
	Checksum          string     `json:"checksum"`
	FinishedAt        *time.Time `json:"finishedAt,omitempty"`
	MigrationName     string     `json:"migrationName"`
	Logs              string     `json:"logs,omitempty"`
	RolledBackAt      *time.Time `json:"rolledBackAt,omitempty"`
	StartedAt         time.Time  `json:"startedAt"`
	AppliedStepsCount int        `json:"appliedStepsCount"`
}

// IsFinished reports whether the migration completed.
func (r MigrationRecord) IsFinished() bool { return r.FinishedAt != nil }

// IsRolledBack reports whether the migration was marked as rolled back.
func (r MigrationRecord) IsRolledBack() bool { return r.RolledBackAt != nil }

// IsFailed reports whether the migration started, did not finish and was not
// resolved since.
func (r MigrationRecord) IsFailed() bool { return !r.IsFinished() && !r.IsRolledBack() }

// DB is what the manager reads and writes through; both *sql.DB wrappers and
// *sql.Tx satisfy it.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Manager manages the migrations ledger table.
type Manager struct {
	db     DB
	flavor flavour.Flavour
	table  string
}

// NewManager creates a ledger manager for the connection's flavour.
func NewManager(db DB, f flavour.Flavour) *Manager {
	return &Manager{db: db, flavor: f, table: f.Quote(flavour.LedgerTable)}
}

// WithDB returns a manager that writes through db, typically a transaction.
func (m *Manager) WithDB(db DB) *Manager {
	c := *m
	c.db = db
	return &c
}

func persistenceError(err error, format string, args ...any) error {
	return enginerr.Wrap(enginerr.PersistenceError, err, format, args...)
}

// InitTable creates the ledger table when it does not exist.
func (m *Manager) InitTable(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, m.createTableSQL()); err != nil {
		return persistenceError(err, "failed to create migration table")
	}
	return nil
}

// Exists reports whether the ledger table can be read.
func (m *Manager) Exists(ctx context.Context) bool {
	rows, err := m.db.QueryContext(ctx, "SELECT id FROM "+m.table+" WHERE 1 = 0")
	if err != nil {
		return false
	}
	rows.Close()
	return true
}

// StartMigration inserts an unfinished record and returns its id.
func (m *Manager) StartMigration(ctx context.Context, name, checksum string) (string, error) {
	id := uuid.NewString()
	query := fmt.Sprintf("INSERT INTO %s (id, checksum, migration_name, started_at, applied_steps_count) VALUES (%s, 0)",
		m.table, m.placeholders(4))
	if _, err := m.db.ExecContext(ctx, query, id, checksum, name, now()); err != nil {
		return "", persistenceError(err, "failed to record start of migration %s", name)
	}
	debug.Debug("Started migration", "component", "history", "migration", name, "id", id)
	return id, nil
}

// IncrementAppliedSteps counts one more successfully applied statement.
func (m *Manager) IncrementAppliedSteps(ctx context.Context, id string) error {
	query := fmt.Sprintf("UPDATE %s SET applied_steps_count = applied_steps_count + 1 WHERE id = %s", m.table, m.flavor.Placeholder(1))
	if _, err := m.db.ExecContext(ctx, query, id); err != nil {
		return persistenceError(err, "failed to update applied steps of migration %s", id)
	}
	return nil
}

// SetAppliedSteps records the number of applied statements at once, for
// migrations that ran in a single transaction.
func (m *Manager) SetAppliedSteps(ctx context.Context, id string, n int) error {
	query := fmt.Sprintf("UPDATE %s SET applied_steps_count = %s WHERE id = %s", m.table, m.flavor.Placeholder(1), m.flavor.Placeholder(2))
	if _, err := m.db.ExecContext(ctx, query, n, id); err != nil {
		return persistenceError(err, "failed to update applied steps of migration %s", id)
	}
	return nil
}

// RecordFailure appends an error message to the logs of a record. The record
// stays unfinished.
func (m *Manager) RecordFailure(ctx context.Context, id, logs string) error {
	var current sql.NullString
	query := fmt.Sprintf("SELECT logs FROM %s WHERE id = %s", m.table, m.flavor.Placeholder(1))
	if err := m.db.QueryRowContext(ctx, query, id).Scan(&current); err != nil {
		return persistenceError(err, "failed to read logs of migration %s", id)
	}
	if current.String != "" {
		logs = current.String + "\n" + logs
	}

	update := fmt.Sprintf("UPDATE %s SET logs = %s WHERE id = %s", m.table, m.flavor.Placeholder(1), m.flavor.Placeholder(2))
	if _, err := m.db.ExecContext(ctx, update, logs, id); err != nil {
		return persistenceError(err, "failed to record failure of migration %s", id)
	}
	debug.Warn("Recorded migration failure", "component", "history", "id", id)
	return nil
}

// FinishMigration sets finished_at on a record.
func (m *Manager) FinishMigration(ctx context.Context, id string) error {
	query := fmt.Sprintf("UPDATE %s SET finished_at = %s WHERE id = %s", m.table, m.flavor.Placeholder(1), m.flavor.Placeholder(2))
	if _, err := m.db.ExecContext(ctx, query, now(), id); err != nil {
		return persistenceError(err, "failed to finish migration %s", id)
	}
	debug.Debug("Finished migration", "component", "history", "id", id)
	return nil
}

// MarkRolledBack resolves the failed records of a migration so that it can be
// applied again.
func (m *Manager) MarkRolledBack(ctx context.Context, name string) error {
	records, err := m.ListMigrations(ctx)
	if err != nil {
		return err
	}
	var failed []string
	for _, r := range records {
		if r.MigrationName == name && r.IsFailed() {
			failed = append(failed, r.ID)
		}
	}
	if len(failed) == 0 {
		return enginerr.New(enginerr.PersistenceError, "migration %s cannot be rolled back because it is not in a failed state", name).
			With("migration", name)
	}

	query := fmt.Sprintf("UPDATE %s SET rolled_back_at = %s WHERE id = %s", m.table, m.flavor.Placeholder(1), m.flavor.Placeholder(2))
	for _, id := range failed {
		if _, err := m.db.ExecContext(ctx, query, now(), id); err != nil {
			return persistenceError(err, "failed to mark migration %s as rolled back", name)
		}
	}
	return nil
}

// MarkApplied records a migration as applied without running it. Failed
// records of the same migration are rolled back first.
func (m *Manager) MarkApplied(ctx context.Context, name, checksum string) error {
	records, err := m.ListMigrations(ctx)
	if err != nil {
		return err
	}
	failed := false
	for _, r := range records {
		if r.MigrationName != name {
			continue
		}
		if r.IsFinished() && !r.IsRolledBack() {
			return enginerr.New(enginerr.PersistenceError, "migration %s is already recorded as applied", name).
				With("migration", name)
		}
		failed = failed || r.IsFailed()
	}
	if failed {
		if err := m.MarkRolledBack(ctx, name); err != nil {
			return err
		}
	}

	ts := now()
	query := fmt.Sprintf("INSERT INTO %s (id, checksum, migration_name, started_at, finished_at, applied_steps_count) VALUES (%s, 0)",
		m.table, m.placeholders(5))
	if _, err := m.db.ExecContext(ctx, query, uuid.NewString(), checksum, name, ts, ts); err != nil {
		return persistenceError(err, "failed to mark migration %s as applied", name)
	}
	return nil
}

// ListMigrations returns every record in the order migrations were started.
func (m *Manager) ListMigrations(ctx context.Context) ([]MigrationRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, checksum, finished_at, migration_name, logs, rolled_back_at, started_at, applied_steps_count
		FROM %s
		ORDER BY started_at ASC, migration_name ASC
	`, m.table)
	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, persistenceError(err, "failed to query migrations")
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var (
			r                               MigrationRecord
			logs                            sql.NullString
			finishedAt, rolledBackAt, start any
		)
		if err := rows.Scan(&r.ID, &r.Checksum, &finishedAt, &r.MigrationName, &logs, &rolledBackAt, &start, &r.AppliedStepsCount); err != nil {
			return nil, persistenceError(err, "failed to scan migration")
		}
		r.Logs = logs.String
		if r.FinishedAt, err = scanTime(finishedAt); err != nil {
			return nil, persistenceError(err, "invalid finished_at of migration %s", r.MigrationName)
		}
		if r.RolledBackAt, err = scanTime(rolledBackAt); err != nil {
			return nil, persistenceError(err, "invalid rolled_back_at of migration %s", r.MigrationName)
		}
		started, err := scanTime(start)
		if err != nil || started == nil {
			return nil, persistenceError(errors.Join(err, errors.New("missing started_at")), "invalid started_at of migration %s", r.MigrationName)
		}
		r.StartedAt = *started
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError(err, "failed to read migrations")
	}
	return records, nil
}

// CalculateChecksum returns the hex sha256 of a migration script.
func CalculateChecksum(script string) string {
	hash := sha256.Sum256([]byte(script))
	return hex.EncodeToString(hash[:])
}

func now() time.Time { return time.Now().UTC() }

func (m *Manager) placeholders(n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = m.flavor.Placeholder(i + 1)
	}
	return strings.Join(p, ", ")
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// scanTime converts a timestamp column. SQLite drivers return text when the
// declared type does not mark the column as a timestamp.
func scanTime(v any) (*time.Time, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &t, nil
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return nil, fmt.Errorf("unexpected timestamp type %T", v)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", s)
}

// createTableSQL returns the ledger DDL for the dialect.
func (m *Manager) createTableSQL() string {
	switch m.flavor.Dialect() {
	case schema.Postgres, schema.CockroachDB:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR(36) PRIMARY KEY NOT NULL,
				checksum VARCHAR(64) NOT NULL,
				finished_at TIMESTAMPTZ,
				migration_name VARCHAR(255) NOT NULL,
				logs TEXT,
				rolled_back_at TIMESTAMPTZ,
				started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				applied_steps_count INTEGER NOT NULL DEFAULT 0
			)
		`, m.table)
	case schema.MySQL:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR(36) PRIMARY KEY NOT NULL,
				checksum VARCHAR(64) NOT NULL,
				finished_at DATETIME(3),
				migration_name VARCHAR(255) NOT NULL,
				logs TEXT,
				rolled_back_at DATETIME(3),
				started_at DATETIME(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
				applied_steps_count INTEGER UNSIGNED NOT NULL DEFAULT 0
			) DEFAULT CHARACTER SET utf8mb4
		`, m.table)
	case schema.MSSQL:
		return fmt.Sprintf(`
			IF OBJECT_ID(N'%s', N'U') IS NULL
			CREATE TABLE %s (
				id VARCHAR(36) PRIMARY KEY NOT NULL,
				checksum VARCHAR(64) NOT NULL,
				finished_at DATETIMEOFFSET,
				migration_name NVARCHAR(250) NOT NULL,
				logs NVARCHAR(MAX),
				rolled_back_at DATETIMEOFFSET,
				started_at DATETIMEOFFSET NOT NULL DEFAULT CURRENT_TIMESTAMP,
				applied_steps_count INT NOT NULL DEFAULT 0
			)
		`, flavour.LedgerTable, m.table)
	default:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY NOT NULL,
				checksum TEXT NOT NULL,
				finished_at DATETIME,
				migration_name TEXT NOT NULL,
				logs TEXT,
				rolled_back_at DATETIME,
				started_at DATETIME NOT NULL DEFAULT current_timestamp,
				applied_steps_count INTEGER UNSIGNED NOT NULL DEFAULT 0
			)
		`, m.table)
	}
}
