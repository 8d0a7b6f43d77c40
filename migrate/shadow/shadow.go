// Package shadow replays a migrations directory on a scratch database and
// describes the result, giving the schema the directory produces.
package shadow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/satishbabariya/schema-engine/internal/debug"
	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/connector"
	"github.com/satishbabariya/schema-engine/migrate/diff"
	"github.com/satishbabariya/schema-engine/migrate/executor"
	"github.com/satishbabariya/schema-engine/migrate/flavour"
	"github.com/satishbabariya/schema-engine/migrate/introspect"
	"github.com/satishbabariya/schema-engine/migrate/migrations"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

const memoryURL = "file::memory:"

// ShadowDB manages the shadow database of one target.
type ShadowDB struct {
	dialect   schema.Dialect
	mainURL   string
	shadowURL string
	connOpts  []connector.Option

	conn    *connector.Conn
	flavour flavour.Flavour
	// created is set when the database was created here and is dropped on Close.
	created string
}

// NewShadowDB creates a shadow database manager. SQLite uses an in-memory
// database when shadowURL is empty. Other dialects derive a {database}_shadow
// database from mainURL when shadowURL is empty, creating it on Connect.
func NewShadowDB(dialect schema.Dialect, mainURL, shadowURL string, opts ...connector.Option) *ShadowDB {
	return &ShadowDB{
		dialect:   dialect,
		mainURL:   mainURL,
		shadowURL: shadowURL,
		connOpts:  opts,
	}
}

// Connect opens the shadow database, creating it first when it is derived
// from the main database.
func (s *ShadowDB) Connect(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}

	target := s.shadowURL
	if target == "" {
		switch {
		case s.dialect == schema.SQLite:
			target = memoryURL
		case s.mainURL == "":
			return enginerr.New(enginerr.ValidationError, "a shadow database url is required for %s", s.dialect)
		default:
			derived, name, err := generateShadowURL(s.dialect, s.mainURL)
			if err != nil {
				return enginerr.Wrap(enginerr.ValidationError, err, "failed to derive shadow database url")
			}
			if err := s.createDatabase(ctx, name); err != nil {
				return err
			}
			target = derived
		}
	}

	conn, err := connector.Open(ctx, target, s.connOpts...)
	if err != nil {
		return err
	}
	if conn.Dialect() != s.dialect {
		conn.Close()
		return enginerr.New(enginerr.ValidationError, "the shadow database is %s but the target is %s", conn.Dialect(), s.dialect)
	}

	serverVersion, err := conn.ServerVersion(ctx)
	if err != nil {
		conn.Close()
		return err
	}
	var opts []flavour.Option
	if lower, err := conn.LowerCaseTableNames(ctx); err == nil && lower {
		opts = append(opts, flavour.WithLowerCaseTableNames())
	}
	f, err := flavour.New(s.dialect, serverVersion, opts...)
	if err != nil {
		conn.Close()
		return enginerr.Wrap(enginerr.ConnectionError, err, "failed to create %s flavour", s.dialect)
	}

	s.conn, s.flavour = conn, f
	debug.Debug("Connected to shadow database", "dialect", s.dialect, "created", s.created)
	return nil
}

// Reset drops everything in the shadow database.
func (s *ShadowDB) Reset(ctx context.Context, namespaces []string) error {
	current, err := introspect.Describe(ctx, s.conn, namespaces)
	if err != nil {
		return err
	}
	if current.IsEmpty() {
		return nil
	}
	m := diff.Diff(current, schema.Empty(s.dialect), s.flavour)
	if err := executor.NewExecutor(s.conn, s.flavour).ApplySteps(ctx, m); err != nil {
		return fmt.Errorf("failed to reset shadow database: %w", err)
	}
	return nil
}

// ApplyMigrations runs every script in order. Nothing is recorded in a ledger.
func (s *ShadowDB) ApplyMigrations(ctx context.Context, list []migrations.Migration) error {
	e := executor.NewExecutor(s.conn, s.flavour)
	for _, m := range list {
		if err := e.ApplyScript(ctx, m.Script); err != nil {
			var ee *enginerr.Error
			if errors.As(err, &ee) {
				return ee.With("migration", m.Name)
			}
			return enginerr.Wrap(enginerr.ApplyError, err, "failed to apply migration %s to the shadow database", m.Name).
				With("migration", m.Name)
		}
		debug.Debug("Replayed migration", "migration", m.Name)
	}
	return nil
}

// Describe reads the shadow database schema.
func (s *ShadowDB) Describe(ctx context.Context, namespaces []string) (*schema.Schema, error) {
	if s.conn == nil {
		return nil, enginerr.New(enginerr.ConnectionError, "shadow database not connected")
	}
	return introspect.Describe(ctx, s.conn, namespaces)
}

// Replay connects, resets the database, applies list and describes the result.
func (s *ShadowDB) Replay(ctx context.Context, list []migrations.Migration, namespaces []string) (*schema.Schema, error) {
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	if err := s.Reset(ctx, namespaces); err != nil {
		return nil, err
	}
	if err := s.ApplyMigrations(ctx, list); err != nil {
		return nil, err
	}
	return s.Describe(ctx, namespaces)
}

// Close closes the connection and drops a database created by Connect.
func (s *ShadowDB) Close(ctx context.Context) error {
	var errs []error
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
		s.conn = nil
	}
	if s.created != "" {
		errs = append(errs, s.dropDatabase(ctx, s.created))
		s.created = ""
	}
	return errors.Join(errs...)
}

// generateShadowURL points mainURL at the {database}_shadow database.
func generateShadowURL(dialect schema.Dialect, mainURL string) (string, string, error) {
	if dialect == schema.MSSQL && strings.Contains(mainURL, ";") {
		return "", "", fmt.Errorf("set a shadow database url for sqlserver connection strings")
	}
	u, err := url.Parse(mainURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse connection url: %w", err)
	}

	if dialect == schema.MSSQL {
		q := u.Query()
		name := q.Get("database")
		if name == "" {
			name = "master"
		}
		name += "_shadow"
		q.Set("database", name)
		u.RawQuery = q.Encode()
		return u.String(), name, nil
	}

	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return "", "", fmt.Errorf("connection url %q names no database", u.Redacted())
	}
	name += "_shadow"
	u.Path = "/" + name
	return u.String(), name, nil
}

func createDatabaseSQL(dialect schema.Dialect, quoted, name string) string {
	switch dialect {
	case schema.MySQL:
		return "CREATE DATABASE IF NOT EXISTS " + quoted
	case schema.MSSQL:
		return fmt.Sprintf("IF DB_ID(N'%s') IS NULL CREATE DATABASE %s", strings.ReplaceAll(name, "'", "''"), quoted)
	default:
		return "CREATE DATABASE " + quoted
	}
}

func (s *ShadowDB) admin(ctx context.Context) (*connector.Conn, flavour.Flavour, error) {
	conn, err := connector.Open(ctx, s.mainURL, s.connOpts...)
	if err != nil {
		return nil, nil, err
	}
	f, err := flavour.New(s.dialect, "")
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, f, nil
}

// createDatabase creates name through the main connection. A database left
// over from an earlier run is reused and reset by Replay.
func (s *ShadowDB) createDatabase(ctx context.Context, name string) error {
	conn, f, err := s.admin(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, createDatabaseSQL(s.dialect, f.Quote(name), name)); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return enginerr.Wrap(enginerr.ConnectionError, err, "failed to create shadow database").With("database", name)
	}
	s.created = name
	return nil
}

func (s *ShadowDB) dropDatabase(ctx context.Context, name string) error {
	conn, f, err := s.admin(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "DROP DATABASE IF EXISTS "+f.Quote(name)); err != nil {
		return fmt.Errorf("failed to drop shadow database %s: %w", name, err)
	}
	return nil
}
