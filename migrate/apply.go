package migrate

import (
	"context"
	"errors"
	"os"

	"github.com/satishbabariya/schema-engine/internal/debug"
	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/history"
	"github.com/satishbabariya/schema-engine/migrate/migrations"
)

// ApplyResult is the outcome of ApplyMigrations.
type ApplyResult struct {
	AppliedMigrationNames []string
}

// ApplyMigrations applies every migration of the directory that is not yet
// recorded as finished, in order. A finished record with another checksum is a
// ChecksumMismatch. An unfinished record blocks everything until it is
// resolved.
func (e *Engine) ApplyMigrations(ctx context.Context) (*ApplyResult, error) {
	if err := e.dir.CheckProvider(e.Dialect()); err != nil {
		return nil, err
	}
	list, err := e.dir.List()
	if err != nil {
		return nil, enginerr.Wrap(enginerr.ValidationError, err, "failed to read migrations directory")
	}

	ex := e.migrationExecutor()
	if err := ex.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}
	records, err := ex.History().ListMigrations(ctx)
	if err != nil {
		return nil, err
	}

	for _, r := range records {
		if r.IsFailed() {
			return nil, enginerr.New(enginerr.ApplyError,
				"migration %s failed to apply; resolve it before applying new migrations", r.MigrationName).
				With("migration", r.MigrationName).
				With("logs", r.Logs)
		}
	}

	finished := finishedRecords(records)
	out := &ApplyResult{AppliedMigrationNames: []string{}}
	for _, m := range list {
		if r, ok := finished[m.Name]; ok {
			if r.Checksum != m.Checksum() {
				return out, enginerr.New(enginerr.ChecksumMismatch,
					"migration %s was modified after it was applied", m.Name).
					With("migration", m.Name).
					With("recorded_checksum", r.Checksum).
					With("checksum", m.Checksum())
			}
			continue
		}
		if err := ex.ApplyMigration(ctx, m.Name, m.Script); err != nil {
			return out, err
		}
		out.AppliedMigrationNames = append(out.AppliedMigrationNames, m.Name)
	}
	debug.Info("Applied migrations", "count", len(out.AppliedMigrationNames))
	return out, nil
}

// finishedRecords indexes the finished, not rolled back records by name.
func finishedRecords(records []history.MigrationRecord) map[string]history.MigrationRecord {
	out := make(map[string]history.MigrationRecord)
	for _, r := range records {
		if r.IsFinished() && !r.IsRolledBack() {
			out[r.MigrationName] = r
		}
	}
	return out
}

// MarkMigrationApplied records a migration of the directory as applied
// without running it.
func (e *Engine) MarkMigrationApplied(ctx context.Context, name string) error {
	script, err := e.dir.ReadScript(name)
	if errors.Is(err, os.ErrNotExist) {
		return enginerr.New(enginerr.ValidationError, "migration %s was not found in the migrations directory", name).
			With("migration", name)
	}
	if err != nil {
		return enginerr.Wrap(enginerr.ValidationError, err, "failed to read migration %s", name)
	}

	h := e.history()
	if err := h.InitTable(ctx); err != nil {
		return err
	}
	return h.MarkApplied(ctx, name, migrations.Migration{Name: name, Script: script}.Checksum())
}

// MarkMigrationRolledBack marks the failed record of a migration as rolled
// back so it no longer blocks ApplyMigrations.
func (e *Engine) MarkMigrationRolledBack(ctx context.Context, name string) error {
	h := e.history()
	if err := h.InitTable(ctx); err != nil {
		return err
	}
	return h.MarkRolledBack(ctx, name)
}
