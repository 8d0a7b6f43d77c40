// Package introspect reads the schema of a live database into the schema model.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/satishbabariya/schema-engine/internal/debug"
	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// Queryer is the part of a connection describers read through.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Connection is a Queryer that knows its dialect.
type Connection interface {
	Queryer
	Dialect() schema.Dialect
}

// Describer reads the schema of one database.
type Describer interface {
	// Describe reads the given namespaces. An empty list means the default
	// namespace of the connection.
	Describe(ctx context.Context, namespaces []string) (*schema.Schema, error)
	// Version returns the server version string.
	Version(ctx context.Context) (string, error)
}

// NewDescriber returns the describer for dialect.
func NewDescriber(q Queryer, dialect schema.Dialect) (Describer, error) {
	switch dialect {
	case schema.Postgres:
		return &PostgresDescriber{db: q}, nil
	case schema.CockroachDB:
		return NewCockroachDBDescriber(q), nil
	case schema.MySQL:
		return &MySQLDescriber{db: q}, nil
	case schema.SQLite:
		return &SQLiteDescriber{db: q}, nil
	case schema.MSSQL:
		return &MSSQLDescriber{db: q}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
}

// Describe selects the describer for the connection, reads the schema and
// purges foreign keys that point outside of it. Every failure is returned as a
// DescribeError.
func Describe(ctx context.Context, conn Connection, namespaces []string) (*schema.Schema, error) {
	s, _, err := describe(ctx, conn, namespaces)
	return s, err
}

func describe(ctx context.Context, conn Connection, namespaces []string) (*schema.Schema, int, error) {
	d, err := NewDescriber(conn, conn.Dialect())
	if err != nil {
		return nil, 0, enginerr.Wrap(enginerr.DescribeError, err, "failed to describe database")
	}

	start := time.Now()
	s, err := d.Describe(ctx, namespaces)
	if err != nil {
		return nil, 0, enginerr.Wrap(enginerr.DescribeError, err, "failed to describe %s database", conn.Dialect()).
			With("namespaces", strings.Join(namespaces, ","))
	}
	purged := PurgeDanglingForeignKeys(s)
	if purged > 0 {
		debug.Warn("Purged dangling foreign keys", "count", purged)
	}
	debug.Debug("Described database", "dialect", conn.Dialect(), "tables", len(s.Tables), "duration", time.Since(start))
	return s, purged, nil
}

// PurgeDanglingForeignKeys removes foreign keys whose referenced table is not
// part of the schema and returns how many were removed.
func PurgeDanglingForeignKeys(s *schema.Schema) int {
	removed := 0
	for i := len(s.ForeignKeys) - 1; i >= 0; i-- {
		ref := int(s.ForeignKeys[i].ReferencedTable)
		if ref >= 0 && ref < len(s.Tables) {
			continue
		}
		s.ForeignKeys = append(s.ForeignKeys[:i], s.ForeignKeys[i+1:]...)
		removed++
	}
	return removed
}

// danglingTable marks a foreign key whose referenced table was not described.
const danglingTable = schema.TableID(-1)

// foreignKeyRow is one column of a foreign key as catalogs report it.
type foreignKeyRow struct {
	name             string
	namespace, table string
	column           string
	refNamespace     string
	refTable         string
	refColumn        string
	onDelete         schema.ReferentialAction
	onUpdate         schema.ReferentialAction
}

// addForeignKeys groups per-column catalog rows into foreign keys and adds them.
// Rows must arrive ordered by table, constraint and column position.
func addForeignKeys(b *schema.Builder, rows []foreignKeyRow) {
	for start := 0; start < len(rows); {
		end := start + 1
		for end < len(rows) && rows[end].name == rows[start].name &&
			rows[end].table == rows[start].table && rows[end].namespace == rows[start].namespace {
			end++
		}
		addForeignKey(b, rows[start:end])
		start = end
	}
}

func addForeignKey(b *schema.Builder, rows []foreignKeyRow) {
	first := rows[0]
	from, ok := b.FindTable(first.namespace, first.table)
	if !ok {
		return
	}

	constrained := make([]schema.ColumnID, 0, len(rows))
	for _, r := range rows {
		id, ok := b.FindColumn(from, r.column)
		if !ok {
			return
		}
		constrained = append(constrained, id)
	}

	to, ok := b.FindTable(first.refNamespace, first.refTable)
	if !ok {
		// Kept until PurgeDanglingForeignKeys so the purge can be reported.
		id := b.AddForeignKey(from, nil, to, nil, first.onDelete, first.onUpdate, first.name)
		b.Peek().ForeignKeys[id].ReferencedTable = danglingTable
		return
	}
	referenced := make([]schema.ColumnID, 0, len(rows))
	for _, r := range rows {
		id, ok := b.FindColumn(to, r.refColumn)
		if !ok {
			return
		}
		referenced = append(referenced, id)
	}
	b.AddForeignKey(from, constrained, to, referenced, first.onDelete, first.onUpdate, first.name)
}

// indexRow is one column of an index as catalogs report it.
type indexRow struct {
	table     string
	name      string
	typ       schema.IndexType
	algorithm string
	column    string
	sortOrder schema.SortOrder
	length    int
	opclass   string
	clustered *bool
}

// addIndexes groups per-column catalog rows into indexes. Rows must arrive
// ordered by table, index and column position. Indexes over columns that were
// not described, such as expression indexes or hidden columns, are skipped.
func addIndexes(b *schema.Builder, namespace string, rows []indexRow) {
	for start := 0; start < len(rows); {
		end := start + 1
		for end < len(rows) && rows[end].name == rows[start].name && rows[end].table == rows[start].table {
			end++
		}
		addIndex(b, namespace, rows[start:end])
		start = end
	}
}

func addIndex(b *schema.Builder, namespace string, rows []indexRow) {
	first := rows[0]
	t, ok := b.FindTable(namespace, first.table)
	if !ok {
		return
	}
	cols := make([]schema.IndexColumn, 0, len(rows))
	for _, r := range rows {
		id, ok := b.FindColumn(t, r.column)
		if !ok {
			debug.Debug("Skipping index over undescribed column", "index", first.name, "column", r.column)
			return
		}
		cols = append(cols, schema.IndexColumn{ColumnID: id, SortOrder: r.sortOrder, Length: r.length, OperatorClass: r.opclass})
	}
	id := b.AddIndexColumns(t, first.name, first.typ, cols)
	idx := b.Index(id)
	idx.Algorithm = first.algorithm
	idx.Clustered = first.clustered
}

// closeRows wraps the iteration error of rows.
func closeRows(rows *sql.Rows, what string) error {
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", what, err)
	}
	return nil
}

// unquoteLiteral strips SQL single quotes and unescapes doubled quotes.
func unquoteLiteral(s string) (string, bool) {
	if len(s) < 2 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return s, false
	}
	return strings.ReplaceAll(s[1:len(s)-1], "''", "'"), true
}

// literalDefault interprets a default that the database reports as plain SQL
// text. cast has already been stripped.
func literalDefault(raw string, t schema.ColumnType) *schema.ColumnDefault {
	s := strings.TrimSpace(raw)
	s = stripParens(s)
	if strings.EqualFold(s, "null") {
		return nil
	}

	if text, ok := unquoteLiteral(s); ok {
		switch t.Family {
		case schema.FamilyEnum:
			return schema.ValueDefault(schema.LiteralEnumVariant, text)
		case schema.FamilyJSON:
			return schema.ValueDefault(schema.LiteralJSON, text)
		case schema.FamilyBinary:
			return schema.ValueDefault(schema.LiteralBytes, text)
		case schema.FamilyInt, schema.FamilyBigInt, schema.FamilyFloat, schema.FamilyDecimal:
			if isNumber(text) {
				return schema.ValueDefault(schema.LiteralNumber, text)
			}
		case schema.FamilyBoolean:
			if b, ok := parseBoolean(text); ok {
				return schema.ValueDefault(schema.LiteralBoolean, b)
			}
		}
		return schema.ValueDefault(schema.LiteralString, text)
	}

	if b, ok := parseBoolean(s); ok && t.Family == schema.FamilyBoolean {
		return schema.ValueDefault(schema.LiteralBoolean, b)
	}
	if isNumber(s) {
		return schema.ValueDefault(schema.LiteralNumber, s)
	}
	if isNowFunction(s) {
		return schema.NowDefault()
	}
	return schema.DBGeneratedDefault(s)
}

// stripParens removes parentheses that enclose the whole expression, as in
// SQL Server's ((0)).
func stripParens(s string) string {
	for len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' && enclosed(s) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// enclosed reports whether the opening parenthesis at s[0] closes at the end.
func enclosed(s string) bool {
	depth, quoted := 0, false
	for i, r := range s {
		switch {
		case r == '\'':
			quoted = !quoted
		case quoted:
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}

func parseBoolean(s string) (string, bool) {
	switch strings.ToLower(s) {
	case "true", "1", "b'1'", "t":
		return "true", true
	case "false", "0", "b'0'", "f":
		return "false", true
	}
	return "", false
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	digits, dot := 0, false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '-' && i == 0:
		case r == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return digits > 0
}

func isNowFunction(s string) bool {
	s = strings.ToLower(strings.ReplaceAll(s, " ", ""))
	switch s {
	case "now()", "getdate()", "sysdatetime()", "datetime('now')":
		return true
	}
	return strings.HasPrefix(s, "current_timestamp")
}

var createViewPrefix = regexp.MustCompile(`(?is)^\s*CREATE\s+(?:OR\s+ALTER\s+)?(?:TEMP\w*\s+)?VIEW\s+(?:IF\s+NOT\s+EXISTS\s+)?\S+\s+(?:\([^)]*\)\s*)?AS\s+(.*)$`)

// viewBody returns the query of a CREATE VIEW statement. Catalogs that store
// only the query are passed through.
func viewBody(definition string) string {
	if m := createViewPrefix.FindStringSubmatch(definition); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(definition)
}
