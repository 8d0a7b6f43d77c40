package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/satishbabariya/schema-engine/cli/internal/config"
	"github.com/satishbabariya/schema-engine/cli/internal/ui"
	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate"
	"github.com/satishbabariya/schema-engine/migrate/checker"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// app is the state shared by the commands of one invocation.
type app struct {
	v   *viper.Viper
	cfg *config.Config
}

// openEngine validates the configuration and connects to the database.
func (a *app) openEngine(ctx context.Context) (*migrate.Engine, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	spinner := ui.PrintSpinner("Connecting to the database...")
	e, err := migrate.NewEngine(ctx, a.cfg.Engine())
	ui.StopSpinner(spinner)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// withEngine runs fn with an open engine and closes it afterwards.
func (a *app) withEngine(ctx context.Context, fn func(e *migrate.Engine) error) error {
	e, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(e)
}

// loadDesired reads the schema file named by --schema or the configuration.
func (a *app) loadDesired(e *migrate.Engine) (*schema.Schema, error) {
	return e.LoadSchema(a.cfg.SchemaPath)
}

// source parses a --from/--to argument.
func (a *app) source(arg string) (migrate.Source, error) {
	switch arg {
	case "empty":
		return migrate.FromEmpty{}, nil
	case "database", "db":
		return migrate.FromDatabase{}, nil
	case "migrations":
		return migrate.FromMigrations{}, nil
	case "schema":
		return migrate.FromSchemaFile{Path: a.cfg.SchemaPath}, nil
	case "":
		return nil, fmt.Errorf("missing source: use empty, database, migrations, schema or a schema file path")
	default:
		return migrate.FromSchemaFile{Path: arg}, nil
	}
}

func printDiagnostics(d *checker.DestructiveChangeDiagnostics) {
	if d == nil {
		return
	}
	if d.HasWarnings() {
		ui.PrintWarning("The following changes may cause data loss:")
		ui.PrintList(d.WarningMessages())
	}
	if d.HasUnexecutable() {
		ui.PrintError("The following steps cannot be executed:")
		ui.PrintList(d.UnexecutableMessages())
	}
}

// printError prints err, with the kind and context of engine errors.
func printError(err error) {
	var ee *enginerr.Error
	if !errors.As(err, &ee) {
		ui.PrintError("%v", err)
		return
	}
	ui.PrintError("%s", ee.Message())
	ctx := ee.Context()
	keys := make([]string, 0, len(ctx))
	for key := range ctx {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", key, indent(fmt.Sprint(ctx[key])))
	}
	if cause := errors.Unwrap(ee); cause != nil {
		fmt.Fprintf(os.Stderr, "  cause: %v\n", cause)
	}
	fmt.Fprintf(os.Stderr, "  code: %s\n", ee.Kind())
}

func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n    ")
}
