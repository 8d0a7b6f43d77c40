// Package migrate is the schema engine: it wires the describer, the differ,
// the checker, the applier and the migrations directory of one target
// database into the commands the CLI exposes.
package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/satishbabariya/schema-engine/internal/debug"
	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/cache"
	"github.com/satishbabariya/schema-engine/migrate/checker"
	"github.com/satishbabariya/schema-engine/migrate/connector"
	"github.com/satishbabariya/schema-engine/migrate/executor"
	"github.com/satishbabariya/schema-engine/migrate/flavour"
	"github.com/satishbabariya/schema-engine/migrate/history"
	"github.com/satishbabariya/schema-engine/migrate/introspect"
	"github.com/satishbabariya/schema-engine/migrate/migrations"
	"github.com/satishbabariya/schema-engine/migrate/schema"
	"github.com/satishbabariya/schema-engine/migrate/shadow"
)

// Config describes the target of an Engine.
type Config struct {
	// URL is the connection url of the target database.
	URL string
	// ShadowDatabaseURL is the scratch database migrations are replayed on.
	// Optional for SQLite.
	ShadowDatabaseURL string
	// MigrationsDir is the path of the migrations directory on FS.
	MigrationsDir string
	// Namespaces to describe. Empty means the default of the connection.
	Namespaces []string
	// PostgresDriver is "pq" (default) or "pgx".
	PostgresDriver string
	// SQLiteDriver is "sqlite3" (default) or "sqlite".
	SQLiteDriver string
	// StatementTimeout bounds each applied script. Zero is unbounded.
	StatementTimeout time.Duration
	// FS holds the migrations directory and schema files. Defaults to the OS
	// filesystem.
	FS afero.Fs
	// Cache memoizes migrations directory replays. Defaults to the
	// process-wide cache.
	Cache *cache.Cache
}

// Engine runs schema engine commands against one database.
type Engine struct {
	cfg     Config
	conn    *connector.Conn
	flavour flavour.Flavour
	dir     *migrations.Dir
	cache   *cache.Cache
	now     func() time.Time
}

// NewEngine connects to the target and detects its flavour.
func NewEngine(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.FS == nil {
		cfg.FS = afero.NewOsFs()
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.Default()
	}
	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = "migrations"
	}

	conn, err := connector.Open(ctx, cfg.URL, cfg.connectorOptions()...)
	if err != nil {
		return nil, err
	}

	serverVersion, err := conn.ServerVersion(ctx)
	if err != nil {
		conn.Close()
		return nil, err
	}
	var opts []flavour.Option
	lower, err := conn.LowerCaseTableNames(ctx)
	if err != nil {
		debug.Warn("Could not read lower_case_table_names", "error", err)
	}
	if lower {
		opts = append(opts, flavour.WithLowerCaseTableNames())
	}
	f, err := flavour.New(conn.Dialect(), serverVersion, opts...)
	if err != nil {
		conn.Close()
		return nil, enginerr.Wrap(enginerr.ConnectionError, err, "unsupported server version %q", serverVersion)
	}
	debug.Debug("Engine ready", "dialect", conn.Dialect(), "version", serverVersion)

	return &Engine{
		cfg:     cfg,
		conn:    conn,
		flavour: f,
		dir:     migrations.Open(cfg.FS, cfg.MigrationsDir),
		cache:   cfg.Cache,
		now:     time.Now,
	}, nil
}

func (c Config) connectorOptions() []connector.Option {
	return []connector.Option{
		connector.WithPostgresDriver(c.PostgresDriver),
		connector.WithSQLiteDriver(c.SQLiteDriver),
	}
}

// Close closes the connection.
func (e *Engine) Close() error {
	return e.conn.Close()
}

// Dialect returns the dialect of the target.
func (e *Engine) Dialect() schema.Dialect { return e.conn.Dialect() }

// Flavour returns the flavour of the target.
func (e *Engine) Flavour() flavour.Flavour { return e.flavour }

// MigrationsDir returns the migrations directory.
func (e *Engine) MigrationsDir() *migrations.Dir { return e.dir }

func (e *Engine) namespaces() []string {
	if len(e.cfg.Namespaces) > 0 {
		return e.cfg.Namespaces
	}
	return e.conn.Namespaces()
}

// shadowNamespaces are the namespaces described on the shadow database. A
// MySQL namespace is the database itself, which differs there.
func (e *Engine) shadowNamespaces() []string {
	if e.Dialect() == schema.MySQL {
		return nil
	}
	return e.namespaces()
}

func (e *Engine) describe(ctx context.Context) (*schema.Schema, error) {
	return introspect.Describe(ctx, e.conn, e.namespaces())
}

func (e *Engine) history() *history.Manager {
	return history.NewManager(e.conn, e.flavour)
}

func (e *Engine) migrationExecutor() *executor.MigrationExecutor {
	return executor.NewMigrationExecutor(e.conn, e.flavour, executor.WithStatementTimeout(e.cfg.StatementTimeout))
}

func (e *Engine) inspector() checker.Inspector {
	return checker.NewDatabaseInspector(e.conn, e.flavour)
}

// prepareDesired checks that a desired schema fits the target and fills in
// dialect defaults.
func (e *Engine) prepareDesired(s *schema.Schema) error {
	if s == nil {
		return enginerr.New(enginerr.ValidationError, "no desired schema given")
	}
	if s.Dialect != e.Dialect() {
		return enginerr.New(enginerr.ValidationError, "the schema is for %s but the database is %s", s.Dialect, e.Dialect())
	}
	if err := s.Validate(); err != nil {
		return enginerr.Wrap(enginerr.ValidationError, err, "invalid schema")
	}
	e.flavour.PushConnectorData(s)
	return nil
}

// LoadSchema reads a schema document from the engine's filesystem.
func (e *Engine) LoadSchema(path string) (*schema.Schema, error) {
	s, err := schema.LoadFile(e.cfg.FS, path)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.ValidationError, err, "failed to load schema %s", path)
	}
	return s, nil
}

// migrationsSchema returns the schema list produces when replayed on the
// shadow database. Results are cached by the hash of list.
func (e *Engine) migrationsSchema(ctx context.Context, list []migrations.Migration) (*schema.Schema, error) {
	if len(list) == 0 {
		return schema.Empty(e.Dialect()), nil
	}
	hash, err := migrations.HashMigrations(list)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s:%s", e.Dialect(), hash)
	return e.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*schema.Schema, error) {
		db := shadow.NewShadowDB(e.Dialect(), e.cfg.URL, e.cfg.ShadowDatabaseURL, e.cfg.connectorOptions()...)
		defer func() {
			if err := db.Close(context.WithoutCancel(ctx)); err != nil {
				debug.Warn("Failed to close shadow database", "error", err)
			}
		}()
		return db.Replay(ctx, list, e.shadowNamespaces())
	})
}
