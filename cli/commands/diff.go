package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/schema-engine/cli/internal/ui"
	"github.com/satishbabariya/schema-engine/migrate"
)

func newDiffCommand(a *app) *cobra.Command {
	var from, to string
	var script, exitCode bool

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare two schemas",
		Long: `Compare two schema sources and print the difference.

A source is one of:
  empty        an empty database
  database     the database behind --url
  migrations   the schema the migrations directory produces
  schema       the file named by --schema
  <path>       a schema file`,
		Example: `  schema-engine diff --from migrations --to schema --script
  schema-engine diff --from database --to ./next.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fromSource, err := a.source(from)
			if err != nil {
				return err
			}
			toSource, err := a.source(to)
			if err != nil {
				return err
			}
			return a.withEngine(cmd.Context(), func(e *migrate.Engine) error {
				res, err := e.Diff(cmd.Context(), fromSource, toSource)
				if err != nil {
					return err
				}
				if script {
					if res.Migration.IsEmpty() {
						fmt.Fprintln(cmd.OutOrStdout(), "-- This is an empty migration.")
					} else {
						ui.PrintSQL(res.Script)
					}
				} else if err := ui.PrintSummary(res.Summary); err != nil {
					return err
				}
				if exitCode && !res.Migration.IsEmpty() {
					return errChangesDetected
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "migrations", "Source to diff from")
	cmd.Flags().StringVar(&to, "to", "schema", "Source to diff to")
	cmd.Flags().BoolVar(&script, "script", false, "Print the SQL script instead of a summary")
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "Fail when the sources differ")
	return cmd
}

var errChangesDetected = errors.New("changes detected")
