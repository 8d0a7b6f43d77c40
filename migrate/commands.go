package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/satishbabariya/schema-engine/internal/debug"
	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/checker"
	"github.com/satishbabariya/schema-engine/migrate/diff"
	"github.com/satishbabariya/schema-engine/migrate/executor"
	"github.com/satishbabariya/schema-engine/migrate/flavour"
	"github.com/satishbabariya/schema-engine/migrate/introspect"
	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// Source is one side of a Diff.
type Source interface {
	resolve(ctx context.Context, e *Engine) (*schema.Schema, error)
}

// FromEmpty is a database without any table.
type FromEmpty struct{}

// FromSchema is an in-memory schema.
type FromSchema struct{ Schema *schema.Schema }

// FromSchemaFile is a schema document on the engine's filesystem.
type FromSchemaFile struct{ Path string }

// FromDatabase is the live target database.
type FromDatabase struct{}

// FromMigrations is the schema the migrations directory produces.
type FromMigrations struct{}

func (FromEmpty) resolve(_ context.Context, e *Engine) (*schema.Schema, error) {
	return schema.Empty(e.Dialect()), nil
}

func (s FromSchema) resolve(_ context.Context, e *Engine) (*schema.Schema, error) {
	if err := e.prepareDesired(s.Schema); err != nil {
		return nil, err
	}
	return s.Schema, nil
}

func (s FromSchemaFile) resolve(ctx context.Context, e *Engine) (*schema.Schema, error) {
	loaded, err := e.LoadSchema(s.Path)
	if err != nil {
		return nil, err
	}
	return FromSchema{Schema: loaded}.resolve(ctx, e)
}

func (FromDatabase) resolve(ctx context.Context, e *Engine) (*schema.Schema, error) {
	return e.describe(ctx)
}

func (FromMigrations) resolve(ctx context.Context, e *Engine) (*schema.Schema, error) {
	if err := e.dir.CheckProvider(e.Dialect()); err != nil {
		return nil, err
	}
	list, err := e.dir.List()
	if err != nil {
		return nil, enginerr.Wrap(enginerr.ValidationError, err, "failed to read migrations directory")
	}
	return e.migrationsSchema(ctx, list)
}

// DiffResult is the outcome of Diff.
type DiffResult struct {
	Migration *migration.Migration
	// Script is the rendered SQL.
	Script string
	// Summary is the human readable drift summary.
	Summary string
}

// Diff computes the steps turning from into to.
func (e *Engine) Diff(ctx context.Context, from, to Source) (*DiffResult, error) {
	prev, err := from.resolve(ctx, e)
	if err != nil {
		return nil, err
	}
	next, err := to.resolve(ctx, e)
	if err != nil {
		return nil, err
	}
	m := diff.Diff(prev, next, e.flavour)
	return &DiffResult{
		Migration: m,
		Script:    e.flavour.RenderScript(m),
		Summary:   migration.Summary(m),
	}, nil
}

// CreateMigrationResult is the outcome of CreateMigration.
type CreateMigrationResult struct {
	// Name is the folder of the new migration, empty when nothing was written.
	Name    string
	Script  string
	Summary string
	// Diagnostics are the offline findings, also written as a comment on top
	// of the script.
	Diagnostics *checker.DestructiveChangeDiagnostics
}

const emptyMigrationComment = "-- This is an empty migration."

// CreateMigration writes a migration from the schema the migrations
// directory produces to desired. Nothing is written when there is no change,
// unless draft is set.
func (e *Engine) CreateMigration(ctx context.Context, name string, desired *schema.Schema, draft bool) (*CreateMigrationResult, error) {
	res, err := e.Diff(ctx, FromMigrations{}, FromSchema{Schema: desired})
	if err != nil {
		return nil, err
	}

	diagnostics, err := checker.CheckMigration(ctx, res.Migration, e.flavour, nil)
	if err != nil {
		return nil, err
	}
	out := &CreateMigrationResult{Summary: res.Summary, Diagnostics: diagnostics}
	if res.Migration.IsEmpty() && !draft {
		debug.Debug("No changes, no migration created")
		return out, nil
	}

	script := res.Script
	if res.Migration.IsEmpty() {
		script = emptyMigrationComment + "\n"
	}
	if comment := diagnostics.Comment(); comment != "" {
		script = comment + "\n" + script
	}

	if lock, err := e.dir.ReadLock(); err == nil && lock == nil {
		if err := e.dir.WriteLock(e.Dialect()); err != nil {
			return nil, err
		}
	}
	created, err := e.dir.Create(name, script, e.now())
	if err != nil {
		return nil, enginerr.Wrap(enginerr.ValidationError, err, "failed to write migration")
	}
	out.Name, out.Script = created.Name, created.Script
	debug.Info("Created migration", "migration", created.Name, "steps", len(res.Migration.Steps))
	return out, nil
}

// DataLossResult is the outcome of EvaluateDataLoss.
type DataLossResult struct {
	StepsCount  int
	Diagnostics *checker.DestructiveChangeDiagnostics
}

// EvaluateDataLoss reports what the next migration towards desired would
// lose, judged against the data in the target database.
func (e *Engine) EvaluateDataLoss(ctx context.Context, desired *schema.Schema) (*DataLossResult, error) {
	res, err := e.Diff(ctx, FromMigrations{}, FromSchema{Schema: desired})
	if err != nil {
		return nil, err
	}
	diagnostics, err := checker.CheckMigration(ctx, res.Migration, e.flavour, e.inspector())
	if err != nil {
		return nil, err
	}
	return &DataLossResult{StepsCount: len(res.Migration.Steps), Diagnostics: diagnostics}, nil
}

// PushResult is the outcome of SchemaPush.
type PushResult struct {
	ExecutedSteps int
	Diagnostics   *checker.DestructiveChangeDiagnostics
}

// SchemaPush makes the target match desired without a migration. Unexecutable
// steps always stop it; warnings stop it unless force is set. The findings are
// returned with the error.
func (e *Engine) SchemaPush(ctx context.Context, desired *schema.Schema, force bool) (*PushResult, error) {
	res, err := e.Diff(ctx, FromDatabase{}, FromSchema{Schema: desired})
	if err != nil {
		return nil, err
	}
	m := res.Migration

	diagnostics, err := checker.CheckMigration(ctx, m, e.flavour, e.inspector())
	if err != nil {
		return nil, err
	}
	out := &PushResult{Diagnostics: diagnostics}
	if err := diagnostics.Err(force); err != nil {
		return out, err
	}
	if m.IsEmpty() {
		return out, nil
	}

	ex := executor.NewExecutor(e.conn, e.flavour, executor.WithStatementTimeout(e.cfg.StatementTimeout))
	if err := ex.ApplySteps(ctx, m); err != nil {
		return out, err
	}
	out.ExecutedSteps = len(m.Steps)
	debug.Info("Pushed schema", "steps", out.ExecutedSteps, "forced", force && diagnostics.HasWarnings())
	return out, nil
}

// Introspect describes the target and renders it as a data model.
func (e *Engine) Introspect(ctx context.Context) (*introspect.IntrospectionResult, error) {
	return introspect.Introspect(ctx, e.conn, e.namespaces())
}

// Reset drops every table, view and enum of the target, the ledger included.
func (e *Engine) Reset(ctx context.Context) error {
	current, err := e.describe(ctx)
	if err != nil {
		return err
	}
	m := diff.Diff(current, schema.Empty(e.Dialect()), e.flavour)
	ex := executor.NewExecutor(e.conn, e.flavour, executor.WithStatementTimeout(e.cfg.StatementTimeout))
	if err := ex.ApplySteps(ctx, m); err != nil {
		return err
	}
	if e.history().Exists(ctx) {
		drop := fmt.Sprintf("DROP TABLE %s", e.flavour.Quote(flavour.LedgerTable))
		if err := ex.ApplyScript(ctx, drop); err != nil {
			return fmt.Errorf("failed to drop the migrations table: %w", err)
		}
	}
	debug.Info("Reset database", "dropped_tables", len(current.Tables))
	return nil
}

// formatNames quotes names for messages.
func formatNames(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "`" + n + "`"
	}
	return strings.Join(quoted, ", ")
}
