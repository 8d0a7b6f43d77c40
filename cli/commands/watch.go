package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/schema-engine/cli/internal/ui"
	"github.com/satishbabariya/schema-engine/cli/internal/watch"
	"github.com/satishbabariya/schema-engine/migrate"
)

func newWatchCommand(a *app) *cobra.Command {
	var push bool
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show pending changes whenever the schema file or migrations change",
		Long: `Watch the schema file and the migrations directory. On every change the diff from
the migrations directory to the schema is printed, or with --push the schema is
pushed to the database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			e, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			w, err := watch.NewWatcher([]string{a.cfg.SchemaPath, a.cfg.MigrationsDir}, debounce,
				func(ctx context.Context) error { return onChange(ctx, a, e, push) })
			if err != nil {
				return err
			}
			ui.PrintInfo("Watching %s and %s (Ctrl+C to stop)", a.cfg.SchemaPath, a.cfg.MigrationsDir)
			return w.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&push, "push", false, "Push the schema on every change")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before reacting to changes")
	return cmd
}

func onChange(ctx context.Context, a *app, e *migrate.Engine, push bool) error {
	ui.PrintSection(time.Now().Format("15:04:05"))
	if push {
		desired, err := a.loadDesired(e)
		if err != nil {
			printError(err)
			return nil
		}
		res, err := e.SchemaPush(ctx, desired, false)
		if err != nil {
			if res != nil {
				printDiagnostics(res.Diagnostics)
			}
			printError(err)
			return nil
		}
		ui.PrintSuccess("Pushed %d step(s)", res.ExecutedSteps)
		return nil
	}

	res, err := e.Diff(ctx, migrate.FromMigrations{}, migrate.FromSchemaFile{Path: a.cfg.SchemaPath})
	if err != nil {
		printError(err)
		return nil
	}
	return ui.PrintSummary(res.Summary)
}
