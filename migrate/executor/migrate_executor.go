package executor

import (
	"context"
	"errors"

	"github.com/satishbabariya/schema-engine/internal/debug"
	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/flavour"
	"github.com/satishbabariya/schema-engine/migrate/history"
	"github.com/satishbabariya/schema-engine/migrate/sqlgen"
)

// MigrationExecutor applies migration scripts and records them in the ledger.
type MigrationExecutor struct {
	*Executor
	history *history.Manager
}

// NewMigrationExecutor creates a migration executor for the connection.
func NewMigrationExecutor(conn Conn, f flavour.Flavour, opts ...Option) *MigrationExecutor {
	return &MigrationExecutor{
		Executor: NewExecutor(conn, f, opts...),
		history:  history.NewManager(conn, f),
	}
}

// History returns the ledger the executor records into.
func (e *MigrationExecutor) History() *history.Manager {
	return e.history
}

// EnsureMigrationTable ensures the ledger table exists.
func (e *MigrationExecutor) EnsureMigrationTable(ctx context.Context) error {
	return e.history.InitTable(ctx)
}

// ApplyMigration applies one migration script and records it. The record is
// inserted before the first statement runs and finished only when every
// statement succeeded; on failure the error is appended to its logs and it
// stays unfinished.
func (e *MigrationExecutor) ApplyMigration(ctx context.Context, name, script string) error {
	stmts, err := sqlgen.SplitStatements(script)
	if err != nil {
		return enginerr.Wrap(enginerr.ApplyError, err, "failed to split migration %s", name).With("migration", name)
	}

	id, err := e.history.StartMigration(ctx, name, history.CalculateChecksum(script))
	if err != nil {
		return err
	}

	transactional := e.flavour.SupportsTransactionalDDL()
	var onApplied func(context.Context) error
	if !transactional {
		onApplied = func(ctx context.Context) error { return e.history.IncrementAppliedSteps(ctx, id) }
	}

	applied, runErr := e.run(ctx, stmts, onApplied)
	// The ledger is written even when ctx expired during the script.
	ledgerCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		if err := e.history.RecordFailure(ledgerCtx, id, runErr.Error()); err != nil {
			return errors.Join(runErr, err)
		}
		debug.Warn("Migration failed", "component", "executor", "migration", name, "applied", applied)
		var ee *enginerr.Error
		if errors.As(runErr, &ee) {
			return ee.With("migration", name)
		}
		return enginerr.Wrap(enginerr.ApplyError, runErr, "failed to apply migration %s", name).With("migration", name)
	}

	if transactional {
		if err := e.history.SetAppliedSteps(ledgerCtx, id, applied); err != nil {
			return err
		}
	}
	if err := e.history.FinishMigration(ledgerCtx, id); err != nil {
		return err
	}
	debug.Info("Applied migration", "migration", name, "statements", applied)
	return nil
}
