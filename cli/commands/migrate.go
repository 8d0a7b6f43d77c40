package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/schema-engine/cli/internal/ui"
	"github.com/satishbabariya/schema-engine/migrate"
)

// newMigrateCommand creates the migrate command with subcommands.
func newMigrateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the migrations directory and apply it",
	}

	cmd.AddCommand(newMigrateCreateCommand(a))
	cmd.AddCommand(newMigrateDevCommand(a))
	cmd.AddCommand(newMigrateDeployCommand(a))
	cmd.AddCommand(newMigrateStatusCommand(a))
	cmd.AddCommand(newMigrateDiagnoseCommand(a))
	cmd.AddCommand(newMigrateEvaluateCommand(a))
	cmd.AddCommand(newMigrateResolveCommand(a))
	return cmd
}

func newMigrateCreateCommand(a *app) *cobra.Command {
	var name string
	var draft bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Write a migration from the migrations directory to the schema file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *migrate.Engine) error {
				return createMigration(cmd.Context(), a, e, name, draft)
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Name for the migration")
	cmd.Flags().BoolVar(&draft, "draft", false, "Write an empty migration when there is no change")
	return cmd
}

func createMigration(ctx context.Context, a *app, e *migrate.Engine, name string, draft bool) error {
	desired, err := a.loadDesired(e)
	if err != nil {
		return err
	}
	res, err := e.CreateMigration(ctx, name, desired, draft)
	if err != nil {
		return err
	}
	if res.Name == "" {
		ui.PrintInfo("Already in sync, no migration created")
		return nil
	}
	printDiagnostics(res.Diagnostics)
	if err := ui.PrintSummary(res.Summary); err != nil {
		return err
	}
	ui.PrintSuccess("Created migration %s", res.Name)
	return nil
}

func newMigrateDevCommand(a *app) *cobra.Command {
	var name string
	var force bool

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Create a migration from schema changes and apply it",
		Long: `Check the development database against the migrations directory, reset it when
it drifted, then create a migration for pending schema changes and apply it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withEngine(ctx, func(e *migrate.Engine) error {
				action, err := e.DevDiagnostic(ctx)
				if err != nil {
					return err
				}
				if action.Kind == migrate.ActionReset {
					ui.PrintWarning("The database needs to be reset")
					fmt.Fprintln(cmd.ErrOrStderr(), action.Reason)
					if !force {
						ok, err := ui.Confirm("Reset the database? All data will be lost.")
						if err != nil {
							return err
						}
						if !ok {
							return fmt.Errorf("reset declined; rerun with --force to reset without asking")
						}
					}
					if err := e.Reset(ctx); err != nil {
						return err
					}
					ui.PrintSuccess("Database reset")
				}

				if err := applyMigrations(ctx, e); err != nil {
					return err
				}
				if err := createMigration(ctx, a, e, name, false); err != nil {
					return err
				}
				return applyMigrations(ctx, e)
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Name for the migration")
	cmd.Flags().BoolVar(&force, "force", false, "Reset without asking")
	return cmd
}

func newMigrateDeployCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *migrate.Engine) error {
				return applyMigrations(cmd.Context(), e)
			})
		},
	}
}

func applyMigrations(ctx context.Context, e *migrate.Engine) error {
	spinner := ui.PrintSpinner("Applying migrations...")
	res, err := e.ApplyMigrations(ctx)
	ui.StopSpinner(spinner)
	if err != nil {
		return err
	}
	if len(res.AppliedMigrationNames) == 0 {
		ui.PrintInfo("No pending migrations")
		return nil
	}
	ui.PrintSuccess("Applied %d migration(s)", len(res.AppliedMigrationNames))
	ui.PrintList(res.AppliedMigrationNames)
	return nil
}

func newMigrateStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Compare the migrations table with the migrations directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *migrate.Engine) error {
				d, err := e.DiagnoseMigrationHistory(cmd.Context(), false)
				if err != nil {
					return err
				}
				printHistory(d)
				return nil
			})
		},
	}
}

func newMigrateDiagnoseCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Check migration history and schema drift using the shadow database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *migrate.Engine) error {
				d, err := e.DiagnoseMigrationHistory(cmd.Context(), true)
				if err != nil {
					return err
				}
				printHistory(d)
				if d.Drift != nil {
					ui.PrintSection("Drift")
					switch d.Drift.Kind {
					case migrate.DriftDetected:
						ui.PrintWarning(migrate.DriftDetectedMessage)
						if err := ui.PrintSummary(d.Drift.Summary); err != nil {
							return err
						}
					case migrate.MigrationFailedToApply:
						ui.PrintError("Migration %s failed to apply to the shadow database: %v", d.Drift.MigrationName, d.Drift.Err)
					}
				}
				if d.ErrorInUnappliedMigration != nil {
					ui.PrintError("A pending migration does not apply: %v", d.ErrorInUnappliedMigration)
				}
				return nil
			})
		},
	}
}

func printHistory(d *migrate.DiagnoseResult) {
	if !d.HasMigrationsTable {
		ui.PrintInfo("The database has no migrations table")
	}

	rows := [][]string{}
	if d.History != nil {
		for _, name := range d.History.UnappliedMigrationNames {
			rows = append(rows, []string{name, "not applied"})
		}
		for _, name := range d.History.UnpersistedMigrationNames {
			rows = append(rows, []string{name, "missing locally"})
		}
	}
	for _, name := range d.FailedMigrationNames {
		rows = append(rows, []string{name, "failed"})
	}
	for _, name := range d.EditedMigrationNames {
		rows = append(rows, []string{name, "edited after apply"})
	}

	if d.History == nil && len(rows) == 0 {
		ui.PrintSuccess("Database schema is up to date")
		return
	}
	if d.History != nil {
		ui.PrintWarning("%s (last common migration: %s)", describeHistory(d.History.Kind), orNone(d.History.LastCommonMigrationName))
	}
	if len(rows) > 0 {
		if err := ui.PrintTable([]string{"Migration", "Status"}, rows); err != nil {
			ui.PrintError("%v", err)
		}
	}
}

func describeHistory(k migrate.HistoryKind) string {
	switch k {
	case migrate.DatabaseIsBehind:
		return "The database is behind the migrations directory"
	case migrate.MigrationsDirectoryIsBehind:
		return "The migrations directory is behind the database"
	case migrate.HistoriesDiverge:
		return "The migrations directory and the database diverge"
	}
	return k.String()
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func newMigrateEvaluateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate-data-loss",
		Short: "Report what the next migration would lose",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *migrate.Engine) error {
				desired, err := a.loadDesired(e)
				if err != nil {
					return err
				}
				res, err := e.EvaluateDataLoss(cmd.Context(), desired)
				if err != nil {
					return err
				}
				ui.PrintInfo("%d step(s) pending", res.StepsCount)
				if !res.Diagnostics.HasWarnings() && !res.Diagnostics.HasUnexecutable() {
					ui.PrintSuccess("No data loss expected")
					return nil
				}
				printDiagnostics(res.Diagnostics)
				return nil
			})
		},
	}
}

func newMigrateResolveCommand(a *app) *cobra.Command {
	var applied, rolledBack string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Mark a migration as applied or rolled back",
		Example: `  schema-engine migrate resolve --applied 20240101000000_init
  schema-engine migrate resolve --rolled-back 20240101000000_init`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (applied == "") == (rolledBack == "") {
				return fmt.Errorf("pass exactly one of --applied or --rolled-back")
			}
			return a.withEngine(cmd.Context(), func(e *migrate.Engine) error {
				if applied != "" {
					if err := e.MarkMigrationApplied(cmd.Context(), strings.TrimSpace(applied)); err != nil {
						return err
					}
					ui.PrintSuccess("Migration %s marked as applied", applied)
					return nil
				}
				if err := e.MarkMigrationRolledBack(cmd.Context(), strings.TrimSpace(rolledBack)); err != nil {
					return err
				}
				ui.PrintSuccess("Migration %s marked as rolled back", rolledBack)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&applied, "applied", "", "Migration to mark as applied")
	cmd.Flags().StringVar(&rolledBack, "rolled-back", "", "Migration to mark as rolled back")
	return cmd
}
