// Package connector opens database connections from connection URLs and is the
// only package that knows about the SQL drivers.
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"  // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib"  // PostgreSQL driver "pgx"
	_ "github.com/lib/pq"               // PostgreSQL driver "postgres"
	_ "github.com/mattn/go-sqlite3"     // SQLite driver "sqlite3"
	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	_ "modernc.org/sqlite"              // SQLite driver "sqlite", no cgo

	"github.com/satishbabariya/schema-engine/internal/debug"
	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// Options select drivers and pool settings.
type Options struct {
	// PostgresDriver is DriverPQ (default) or DriverPGX.
	PostgresDriver string
	// SQLiteDriver is DriverSQLite3 (default) or DriverSQLite.
	SQLiteDriver string
	MaxOpenConns int
}

// Option configures Open.
type Option func(*Options)

// WithPostgresDriver selects the PostgreSQL driver. Accepts "pq" or "pgx".
func WithPostgresDriver(name string) Option {
	return func(o *Options) {
		if name == DriverPGX {
			o.PostgresDriver = DriverPGX
		}
	}
}

// WithSQLiteDriver selects the SQLite driver. Accepts "sqlite3" or "sqlite".
func WithSQLiteDriver(name string) Option {
	return func(o *Options) {
		if name == DriverSQLite {
			o.SQLiteDriver = DriverSQLite
		}
	}
}

// WithMaxOpenConns limits the pool size.
func WithMaxOpenConns(n int) Option {
	return func(o *Options) { o.MaxOpenConns = n }
}

// Conn is an open connection to the target database.
type Conn struct {
	db     *sql.DB
	target Target
}

// Open parses url, opens the pool and verifies it with a ping. All failures are
// ConnectionErrors.
func Open(ctx context.Context, url string, opts ...Option) (*Conn, error) {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}

	t, err := ParseURL(url, o)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.ConnectionError, err, "invalid connection url")
	}

	db, err := sql.Open(t.Driver, t.DSN)
	if err != nil {
		return nil, enginerr.Wrap(enginerr.ConnectionError, err, "failed to open %s connection", t.Dialect)
	}
	if o.MaxOpenConns > 0 {
		db.SetMaxOpenConns(o.MaxOpenConns)
	}
	// An in-memory SQLite database lives as long as its single connection.
	if t.Dialect == schema.SQLite && isMemory(t.Database) {
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}

	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, enginerr.Wrap(enginerr.ConnectionError, err, "failed to connect to %s database", t.Dialect).
			With("database", t.Database)
	}
	debug.Debug("Connected", "dialect", t.Dialect, "driver", t.Driver, "duration", time.Since(start))

	return &Conn{db: db, target: *t}, nil
}

// FromDB wraps an already open pool.
func FromDB(db *sql.DB, dialect schema.Dialect) *Conn {
	return &Conn{db: db, target: Target{Dialect: dialect}}
}

func isMemory(path string) bool {
	return path == ":memory:" || path == "memory"
}

// Dialect returns the dialect of the database.
func (c *Conn) Dialect() schema.Dialect { return c.target.Dialect }

// Target returns the parsed connection URL.
func (c *Conn) Target() Target { return c.target }

// DB returns the underlying pool.
func (c *Conn) DB() *sql.DB { return c.db }

// Namespaces returns the namespaces to describe when the caller names none.
func (c *Conn) Namespaces() []string {
	switch {
	case c.target.Namespace != "":
		return []string{c.target.Namespace}
	case c.target.Dialect == schema.MySQL && c.target.Database != "":
		return []string{c.target.Database}
	case c.target.Dialect.DefaultNamespace() != "":
		return []string{c.target.Dialect.DefaultNamespace()}
	}
	return nil
}

func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

func (c *Conn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.db.BeginTx(ctx, opts)
}

// Session pins one connection of the pool. The caller closes it.
func (c *Conn) Session(ctx context.Context) (*sql.Conn, error) {
	return c.db.Conn(ctx)
}

// Close closes the pool.
func (c *Conn) Close() error {
	return c.db.Close()
}

var versionQueries = map[schema.Dialect]string{
	schema.Postgres:    "SELECT version()",
	schema.CockroachDB: "SELECT version()",
	schema.MySQL:       "SELECT VERSION()",
	schema.SQLite:      "SELECT sqlite_version()",
	schema.MSSQL:       "SELECT CAST(SERVERPROPERTY('ProductVersion') AS NVARCHAR(128))",
}

// ServerVersion returns the version string the server reports.
func (c *Conn) ServerVersion(ctx context.Context) (string, error) {
	query, ok := versionQueries[c.target.Dialect]
	if !ok {
		return "", fmt.Errorf("unsupported dialect %q", c.target.Dialect)
	}
	var v string
	if err := c.db.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return "", enginerr.Wrap(enginerr.ConnectionError, err, "failed to read server version")
	}
	return v, nil
}

// LowerCaseTableNames reports whether a MySQL server folds table names to
// lower case. It is false for every other dialect.
func (c *Conn) LowerCaseTableNames(ctx context.Context) (bool, error) {
	if c.target.Dialect != schema.MySQL {
		return false, nil
	}
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT @@lower_case_table_names").Scan(&n); err != nil {
		return false, fmt.Errorf("failed to read lower_case_table_names: %w", err)
	}
	return n == 1, nil
}
