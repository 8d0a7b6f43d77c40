package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/schema-engine/cli/internal/config"
	"github.com/satishbabariya/schema-engine/cli/internal/ui"
	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// newDBCommand creates the db command with subcommands.
func newDBCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Work on the database schema without migrations",
	}

	cmd.AddCommand(newDBPushCommand(a))
	cmd.AddCommand(newDBPullCommand(a))
	cmd.AddCommand(newDBResetCommand(a))
	return cmd
}

func newDBPushCommand(a *app) *cobra.Command {
	var acceptDataLoss bool

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Make the database match the schema file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withEngine(ctx, func(e *migrate.Engine) error {
				desired, err := a.loadDesired(e)
				if err != nil {
					return err
				}

				res, err := e.SchemaPush(ctx, desired, acceptDataLoss)
				if enginerr.IsKind(err, enginerr.DestructiveChangeWarning) {
					printDiagnostics(res.Diagnostics)
					ok, confirmErr := ui.Confirm("Apply these changes anyway?")
					if confirmErr != nil {
						return confirmErr
					}
					if !ok {
						return fmt.Errorf("push cancelled; rerun with --accept-data-loss to apply")
					}
					res, err = e.SchemaPush(ctx, desired, true)
				}
				if err != nil {
					if res != nil {
						printDiagnostics(res.Diagnostics)
					}
					return err
				}

				if res.ExecutedSteps == 0 {
					ui.PrintSuccess("The database is already in sync with the schema")
					return nil
				}
				ui.PrintSuccess("Applied %d step(s)", res.ExecutedSteps)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&acceptDataLoss, "accept-data-loss", false, "Apply changes that may lose data")
	return cmd
}

func newDBPullCommand(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:     "pull",
		Aliases: []string{"introspect"},
		Short:   "Describe the database",
		Long: `Describe the database. Without --out the data model is printed. An --out path
ending in .yaml, .yml or .json receives the schema document, any other path the data model.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *migrate.Engine) error {
				res, err := e.Introspect(cmd.Context())
				if err != nil {
					return err
				}
				if res.IsEmpty {
					return enginerr.New(enginerr.DescribeError, "the database is empty")
				}
				for _, w := range res.Warnings {
					ui.PrintWarning("%s", w.Message)
					ui.PrintList(w.Affected)
				}

				switch {
				case out == "":
					fmt.Fprint(cmd.OutOrStdout(), res.DataModelText)
					return nil
				case isDocumentPath(out):
					if err := schema.SaveFile(config.AppFs, out, res.Schema); err != nil {
						return err
					}
				default:
					if err := afero.WriteFile(config.AppFs, out, []byte(res.DataModelText), 0o644); err != nil {
						return fmt.Errorf("failed to write %s: %w", out, err)
					}
				}
				ui.PrintSuccess("Wrote %d table(s) to %s", len(res.Schema.Tables), out)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to this file instead of stdout")
	return cmd
}

func isDocumentPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

func newDBResetCommand(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop every table, view and enum",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				ok, err := ui.Confirm("Drop everything in the database? All data will be lost.")
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("reset cancelled; rerun with --force to reset without asking")
				}
			}
			return a.withEngine(cmd.Context(), func(e *migrate.Engine) error {
				if err := e.Reset(cmd.Context()); err != nil {
					return err
				}
				ui.PrintSuccess("Database reset")
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Reset without asking")
	return cmd
}
