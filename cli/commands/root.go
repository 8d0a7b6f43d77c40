// Package commands implements the schema-engine CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/satishbabariya/schema-engine/cli/internal/config"
	"github.com/satishbabariya/schema-engine/cli/internal/version"
	"github.com/satishbabariya/schema-engine/internal/debug"
)

// NewRootCommand creates the root command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	cmd := &cobra.Command{
		Use:           "schema-engine",
		Short:         "Diff, migrate and introspect SQL database schemas",
		Long:          "schema-engine computes migrations between schemas, keeps a migrations directory and applies it to PostgreSQL, MySQL, SQLite, SQL Server and CockroachDB.",
		Version:       version.Get().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(a.v)
			if err != nil {
				return err
			}
			a.cfg = cfg
			debug.Init(cfg.Debug)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("url", "", "Database connection url")
	flags.String("shadow-url", "", "Shadow database connection url")
	flags.String("migrations-dir", "", "Migrations directory")
	flags.String("schema", "", "Schema file (.yaml or .json)")
	flags.StringSlice("namespaces", nil, "Namespaces to describe")
	flags.Duration("statement-timeout", 0, "Timeout for each applied script")
	flags.Bool("debug", false, "Enable debug logging")

	for key, flag := range map[string]string{
		"database_url":        "url",
		"shadow_database_url": "shadow-url",
		"migrations_dir":      "migrations-dir",
		"schema_path":         "schema",
		"namespaces":          "namespaces",
		"statement_timeout":   "statement-timeout",
		"debug":               "debug",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	cmd.AddCommand(newDiffCommand(a))
	cmd.AddCommand(newMigrateCommand(a))
	cmd.AddCommand(newDBCommand(a))
	cmd.AddCommand(newWatchCommand(a))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

// Execute runs the CLI and prints the error of a failed command.
func Execute() error {
	ctx := context.Background()
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		printError(err)
		return err
	}
	return nil
}

func newVersionCommand() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			if full {
				fmt.Fprintln(cmd.OutOrStdout(), info.FullString())
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Print build details")
	return cmd
}
