package connector

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// Driver names registered with database/sql.
const (
	DriverPQ      = "postgres"
	DriverPGX     = "pgx"
	DriverMySQL   = "mysql"
	DriverSQLite3 = "sqlite3"
	DriverSQLite  = "sqlite"
	DriverMSSQL   = "sqlserver"
)

// Target is a parsed connection URL.
type Target struct {
	Dialect schema.Dialect
	Driver  string
	DSN     string
	// Database is the database name, or the file path for SQLite.
	Database string
	// Namespace is the schema the engine works in, when the URL names one.
	Namespace string
}

// ParseURL resolves a connection URL to a driver and DSN. o selects between the
// alternative drivers of PostgreSQL and SQLite.
func ParseURL(raw string, o Options) (*Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty connection url")
	}

	switch {
	case strings.HasPrefix(raw, "file:"), strings.HasPrefix(raw, "sqlite:"):
		return parseSQLite(raw, o)
	case strings.HasPrefix(raw, "sqlserver://"):
		return parseMSSQL(raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection url: %w", err)
	}

	switch u.Scheme {
	case "postgres", "postgresql":
		return parsePostgres(u, schema.Postgres, o)
	case "cockroachdb", "cockroach":
		return parsePostgres(u, schema.CockroachDB, o)
	case "mysql", "mariadb":
		return parseMySQL(u)
	default:
		return nil, fmt.Errorf("unsupported connection url scheme %q", u.Scheme)
	}
}

func parsePostgres(u *url.URL, dialect schema.Dialect, o Options) (*Target, error) {
	t := &Target{Dialect: dialect, Driver: DriverPQ, Database: strings.TrimPrefix(u.Path, "/")}
	if o.PostgresDriver == DriverPGX {
		t.Driver = DriverPGX
	}

	// schema is not a server parameter; the drivers would send it as one.
	q := u.Query()
	t.Namespace = q.Get("schema")
	q.Del("schema")

	c := *u
	c.Scheme = "postgres"
	c.RawQuery = q.Encode()
	t.DSN = c.String()
	return t, nil
}

func parseMySQL(u *url.URL) (*Target, error) {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = net.JoinHostPort(u.Hostname(), "3306")
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true

	q := u.Query()
	if v := q.Get("connect_timeout"); v != "" {
		d, err := time.ParseDuration(v + "s")
		if err != nil {
			return nil, fmt.Errorf("invalid connect_timeout %q: %w", v, err)
		}
		cfg.Timeout = d
	}
	if v := q.Get("socket"); v != "" {
		cfg.Net, cfg.Addr = "unix", v
	}

	return &Target{Dialect: schema.MySQL, Driver: DriverMySQL, DSN: cfg.FormatDSN(), Database: cfg.DBName}, nil
}

func parseSQLite(raw string, o Options) (*Target, error) {
	path := strings.TrimPrefix(strings.TrimPrefix(raw, "sqlite:"), "file:")
	path = strings.TrimPrefix(path, "//")
	file, query, _ := strings.Cut(path, "?")
	if file == "" {
		return nil, fmt.Errorf("sqlite url %q has no path", raw)
	}

	t := &Target{Dialect: schema.SQLite, Driver: DriverSQLite3, Database: file}
	if o.SQLiteDriver == DriverSQLite {
		t.Driver = DriverSQLite
	}

	params, err := url.ParseQuery(query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sqlite url parameters: %w", err)
	}
	// Foreign keys are off by default in SQLite.
	if t.Driver == DriverSQLite {
		if len(params["_pragma"]) == 0 {
			params.Add("_pragma", "foreign_keys(1)")
		}
	} else if params.Get("_foreign_keys") == "" && params.Get("_fk") == "" {
		params.Set("_foreign_keys", "1")
	}
	t.DSN = "file:" + file + "?" + params.Encode()
	return t, nil
}

// parseMSSQL accepts both URL form and the JDBC-like form
// sqlserver://host:port;database=db;user=u;password=p.
func parseMSSQL(raw string) (*Target, error) {
	t := &Target{Dialect: schema.MSSQL, Driver: DriverMSSQL}
	if !strings.Contains(raw, ";") {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connection url: %w", err)
		}
		q := u.Query()
		t.Database = q.Get("database")
		t.Namespace = q.Get("schema")
		q.Del("schema")
		u.RawQuery = q.Encode()
		t.DSN = u.String()
		return t, nil
	}

	parts := strings.Split(strings.TrimPrefix(raw, "sqlserver://"), ";")
	u := &url.URL{Scheme: "sqlserver", Host: parts[0]}
	q := url.Values{}
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "user", "username":
			pass := ""
			if u.User != nil {
				pass, _ = u.User.Password()
			}
			u.User = url.UserPassword(v, pass)
		case "password":
			name := ""
			if u.User != nil {
				name = u.User.Username()
			}
			u.User = url.UserPassword(name, v)
		case "database", "initial catalog":
			t.Database = v
			q.Set("database", v)
		case "schema":
			t.Namespace = v
		default:
			q.Set(strings.TrimSpace(k), v)
		}
	}
	u.RawQuery = q.Encode()
	t.DSN = u.String()
	return t, nil
}
