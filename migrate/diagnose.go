package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/diff"
	"github.com/satishbabariya/schema-engine/migrate/history"
	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/migrations"
)

// HistoryKind classifies how the ledger and the migrations directory relate.
type HistoryKind int

const (
	// DatabaseIsBehind means the directory has migrations the database lacks.
	DatabaseIsBehind HistoryKind = iota + 1
	// MigrationsDirectoryIsBehind means the database has migrations the
	// directory lacks.
	MigrationsDirectoryIsBehind
	// HistoriesDiverge means both have migrations the other lacks.
	HistoriesDiverge
)

func (k HistoryKind) String() string {
	switch k {
	case DatabaseIsBehind:
		return "DatabaseIsBehind"
	case MigrationsDirectoryIsBehind:
		return "MigrationsDirectoryIsBehind"
	case HistoriesDiverge:
		return "HistoriesDiverge"
	default:
		return "InSync"
	}
}

// HistoryDiagnostic describes a difference between the ledger and the
// directory.
type HistoryDiagnostic struct {
	Kind                      HistoryKind
	LastCommonMigrationName   string
	UnappliedMigrationNames   []string
	UnpersistedMigrationNames []string
}

// DriftKind classifies a DriftDiagnostic.
type DriftKind int

const (
	// DriftDetected means the database differs from what its applied
	// migrations produce.
	DriftDetected DriftKind = iota + 1
	// MigrationFailedToApply means an applied migration does not replay on
	// the shadow database.
	MigrationFailedToApply
)

// DriftDiagnostic reports drift of the database schema.
type DriftDiagnostic struct {
	Kind DriftKind
	// Summary is the drift summary for DriftDetected.
	Summary string
	// MigrationName and Err are set for MigrationFailedToApply.
	MigrationName string
	Err           error
}

// DiagnoseResult is the outcome of DiagnoseMigrationHistory.
type DiagnoseResult struct {
	History                   *HistoryDiagnostic
	Drift                     *DriftDiagnostic
	FailedMigrationNames      []string
	EditedMigrationNames      []string
	HasMigrationsTable        bool
	ErrorInUnappliedMigration error
}

// DiagnoseMigrationHistory compares the ledger with the migrations directory.
// With withShadow it also replays the directory on the shadow database to
// detect drift and migrations that do not apply.
func (e *Engine) DiagnoseMigrationHistory(ctx context.Context, withShadow bool) (*DiagnoseResult, error) {
	if err := e.dir.CheckProvider(e.Dialect()); err != nil {
		return nil, err
	}
	list, err := e.dir.List()
	if err != nil {
		return nil, enginerr.Wrap(enginerr.ValidationError, err, "failed to read migrations directory")
	}

	out := &DiagnoseResult{FailedMigrationNames: []string{}, EditedMigrationNames: []string{}}
	h := e.history()
	var records []history.MigrationRecord
	if out.HasMigrationsTable = h.Exists(ctx); out.HasMigrationsTable {
		if records, err = h.ListMigrations(ctx); err != nil {
			return nil, err
		}
	}

	checksums := make(map[string]string, len(list))
	for _, m := range list {
		checksums[m.Name] = m.Checksum()
	}
	var applied []string
	seen := make(map[string]bool)
	for _, r := range records {
		if r.IsRolledBack() {
			continue
		}
		if r.IsFailed() {
			out.FailedMigrationNames = append(out.FailedMigrationNames, r.MigrationName)
		}
		if sum, ok := checksums[r.MigrationName]; ok && r.IsFinished() && sum != r.Checksum {
			out.EditedMigrationNames = append(out.EditedMigrationNames, r.MigrationName)
		}
		if !seen[r.MigrationName] {
			seen[r.MigrationName] = true
			applied = append(applied, r.MigrationName)
		}
	}
	out.History = diagnoseHistory(list, applied)

	if !withShadow {
		return out, nil
	}

	finished := finishedRecords(records)
	var appliedList []migrations.Migration
	unapplied := false
	for _, m := range list {
		if _, ok := finished[m.Name]; ok {
			appliedList = append(appliedList, m)
		} else {
			unapplied = true
		}
	}

	if out.Drift, err = e.detectDrift(ctx, appliedList); err != nil {
		return nil, err
	}
	if unapplied && out.Drift == nil {
		if _, err := e.migrationsSchema(ctx, list); err != nil {
			if !enginerr.IsKind(err, enginerr.ApplyError) {
				return nil, err
			}
			out.ErrorInUnappliedMigration = err
		}
	}
	return out, nil
}

func (e *Engine) detectDrift(ctx context.Context, applied []migrations.Migration) (*DriftDiagnostic, error) {
	expected, err := e.migrationsSchema(ctx, applied)
	if err != nil {
		if !enginerr.IsKind(err, enginerr.ApplyError) {
			return nil, err
		}
		return &DriftDiagnostic{Kind: MigrationFailedToApply, MigrationName: failedMigrationName(err), Err: err}, nil
	}
	live, err := e.describe(ctx)
	if err != nil {
		return nil, err
	}
	m := diff.Diff(expected, live, e.flavour)
	if m.IsEmpty() {
		return nil, nil
	}
	return &DriftDiagnostic{Kind: DriftDetected, Summary: migration.Summary(m)}, nil
}

func failedMigrationName(err error) string {
	var ee *enginerr.Error
	if errors.As(err, &ee) {
		if name, ok := ee.Context()["migration"].(string); ok {
			return name
		}
	}
	return ""
}

// diagnoseHistory walks the directory and the applied names side by side
// until they disagree.
func diagnoseHistory(list []migrations.Migration, applied []string) *HistoryDiagnostic {
	i := 0
	for i < len(list) && i < len(applied) && list[i].Name == applied[i] {
		i++
	}
	var unapplied []string
	for _, m := range list[i:] {
		unapplied = append(unapplied, m.Name)
	}
	unpersisted := applied[i:]

	switch {
	case len(unapplied) == 0 && len(unpersisted) == 0:
		return nil
	case len(unpersisted) == 0:
		return &HistoryDiagnostic{Kind: DatabaseIsBehind, UnappliedMigrationNames: unapplied}
	case len(unapplied) == 0:
		return &HistoryDiagnostic{Kind: MigrationsDirectoryIsBehind, UnpersistedMigrationNames: unpersisted}
	}
	d := &HistoryDiagnostic{Kind: HistoriesDiverge, UnappliedMigrationNames: unapplied, UnpersistedMigrationNames: unpersisted}
	if i > 0 {
		d.LastCommonMigrationName = applied[i-1]
	}
	return d
}

// DevActionKind is what the development workflow should do next.
type DevActionKind int

const (
	// ActionCreateMigration means the database can be migrated forward.
	ActionCreateMigration DevActionKind = iota
	// ActionReset means the database must be reset first.
	ActionReset
)

// DevAction is the outcome of DevDiagnostic.
type DevAction struct {
	Kind DevActionKind
	// Reason explains a reset.
	Reason string
}

// DriftDetectedMessage starts the reset reason given for drift.
const DriftDetectedMessage = "Drift detected: Your database schema is not in sync with your migration history."

// DevDiagnostic decides whether the development database can take a new
// migration or has to be reset. A migration that does not replay cleanly is
// an error.
func (e *Engine) DevDiagnostic(ctx context.Context) (*DevAction, error) {
	d, err := e.DiagnoseMigrationHistory(ctx, true)
	if err != nil {
		return nil, err
	}

	if d.Drift != nil && d.Drift.Kind == MigrationFailedToApply {
		return nil, enginerr.Wrap(enginerr.ApplyError, d.Drift.Err,
			"migration %s failed to apply cleanly to the shadow database", d.Drift.MigrationName)
	}
	if d.ErrorInUnappliedMigration != nil {
		return nil, d.ErrorInUnappliedMigration
	}

	var reasons []string
	if d.Drift != nil {
		reasons = append(reasons, DriftDetectedMessage+"\n\n"+d.Drift.Summary)
	}
	if d.History != nil {
		switch d.History.Kind {
		case HistoriesDiverge:
			reasons = append(reasons, fmt.Sprintf(
				"The migrations recorded in the database diverge from the local migrations directory. Last common migration: %s. Migrations applied to the database but absent from the migrations directory are: %s",
				orNone(d.History.LastCommonMigrationName), formatNames(d.History.UnpersistedMigrationNames)))
		case MigrationsDirectoryIsBehind:
			reasons = append(reasons, fmt.Sprintf(
				"The following migration(s) are applied to the database but missing from the local migrations directory: %s",
				formatNames(d.History.UnpersistedMigrationNames)))
		}
	}
	if len(d.EditedMigrationNames) > 0 {
		reasons = append(reasons, fmt.Sprintf("The following migration(s) were modified after they were applied: %s",
			formatNames(d.EditedMigrationNames)))
	}
	if len(d.FailedMigrationNames) > 0 {
		reasons = append(reasons, fmt.Sprintf("The following migration(s) failed to apply: %s",
			formatNames(d.FailedMigrationNames)))
	}

	if len(reasons) == 0 {
		return &DevAction{Kind: ActionCreateMigration}, nil
	}
	return &DevAction{Kind: ActionReset, Reason: strings.Join(reasons, "\n\n")}, nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
