// Package executor applies rendered migration scripts to databases.
package executor

import (
	"context"
	"database/sql"
	"time"

	"github.com/satishbabariya/schema-engine/internal/debug"
	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/flavour"
	"github.com/satishbabariya/schema-engine/migrate/history"
	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/sqlgen"
)

// Conn is the connection scripts are applied through.
type Conn interface {
	history.DB
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	// Session pins one connection of the pool.
	Session(ctx context.Context) (*sql.Conn, error)
}

// txBeginner is satisfied by both the pool and a pinned session.
type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Option configures an Executor.
type Option func(*Executor)

// WithStatementTimeout bounds the time a whole script may take. Zero means
// unbounded.
func WithStatementTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// Executor runs scripts statement by statement.
type Executor struct {
	conn    Conn
	flavour flavour.Flavour
	timeout time.Duration
}

// NewExecutor creates an executor for the connection.
func NewExecutor(conn Conn, f flavour.Flavour, opts ...Option) *Executor {
	e := &Executor{conn: conn, flavour: f}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyScript runs every statement of script. The script runs in one
// transaction where the database can roll DDL back; elsewhere statements run
// one after another and a failure leaves the earlier ones applied.
func (e *Executor) ApplyScript(ctx context.Context, script string) error {
	stmts, err := sqlgen.SplitStatements(script)
	if err != nil {
		return enginerr.Wrap(enginerr.ApplyError, err, "failed to split script")
	}
	_, err = e.run(ctx, stmts, nil)
	return err
}

// ApplySteps renders and applies a migration without recording it.
func (e *Executor) ApplySteps(ctx context.Context, m *migration.Migration) error {
	return e.ApplyScript(ctx, e.flavour.RenderScript(m))
}

// run executes stmts and returns how many succeeded. onApplied, when set, is
// called after each statement outside of a transaction.
func (e *Executor) run(ctx context.Context, stmts []string, onApplied func(context.Context) error) (applied int, err error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	log := debug.With("component", "executor")
	start := time.Now()

	if !e.flavour.SupportsTransactionalDDL() {
		for i, stmt := range stmts {
			log.Debug("Applying statement", "index", i)
			if _, err := e.conn.ExecContext(ctx, stmt); err != nil {
				return applied, statementError(err, i, stmt)
			}
			applied++
			if onApplied != nil {
				if err := onApplied(ctx); err != nil {
					return applied, err
				}
			}
		}
		log.Debug("Applied script", "statements", applied, "duration", time.Since(start))
		return applied, nil
	}

	stmts, guard := e.flavour.PrepareScript(stmts)
	if guard == nil {
		return e.runInTx(ctx, e.conn, stmts, "")
	}

	session, err := e.conn.Session(ctx)
	if err != nil {
		return 0, enginerr.Wrap(enginerr.ApplyError, err, "failed to acquire connection")
	}
	defer session.Close()

	for _, stmt := range guard.Before {
		if _, err := session.ExecContext(ctx, stmt); err != nil {
			return 0, enginerr.Wrap(enginerr.ApplyError, err, "failed to prepare session").WithSQL(stmt)
		}
	}
	defer func() {
		// The session goes back to the pool, so it is restored even when ctx expired.
		restoreCtx := context.WithoutCancel(ctx)
		for _, stmt := range guard.After {
			if _, rerr := session.ExecContext(restoreCtx, stmt); rerr != nil {
				log.Warn("Failed to restore session", "statement", stmt, "error", rerr)
				if err == nil {
					err = enginerr.Wrap(enginerr.ApplyError, rerr, "failed to restore session").WithSQL(stmt)
				}
			}
		}
	}()
	return e.runInTx(ctx, session, stmts, guard.Verify)
}

// runInTx runs stmts in one transaction on db. verify, when set, is queried
// before commit and any row it returns rolls the transaction back.
func (e *Executor) runInTx(ctx context.Context, db txBeginner, stmts []string, verify string) (int, error) {
	log := debug.With("component", "executor")
	start := time.Now()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, enginerr.Wrap(enginerr.ApplyError, err, "failed to begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	for i, stmt := range stmts {
		log.Debug("Applying statement", "index", i)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return 0, statementError(err, i, stmt)
		}
	}
	if verify != "" {
		if err := verifyNoRows(ctx, tx, verify); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, enginerr.Wrap(enginerr.ApplyError, err, "failed to commit migration")
	}
	log.Debug("Applied script", "statements", len(stmts), "duration", time.Since(start), "transactional", true)
	return len(stmts), nil
}

func verifyNoRows(ctx context.Context, tx *sql.Tx, query string) error {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return enginerr.Wrap(enginerr.ApplyError, err, "failed to verify migration").WithSQL(query)
	}
	defer rows.Close()
	if rows.Next() {
		return enginerr.New(enginerr.ApplyError, "migration leaves rows violating constraints").WithSQL(query)
	}
	if err := rows.Err(); err != nil {
		return enginerr.Wrap(enginerr.ApplyError, err, "failed to verify migration").WithSQL(query)
	}
	return nil
}

func statementError(err error, index int, stmt string) error {
	return enginerr.Wrap(enginerr.ApplyError, err, "failed to execute statement %d", index+1).
		With("statement_index", index).
		WithSQL(stmt)
}
