package checker

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/satishbabariya/schema-engine/internal/debug"
)

// Querier is the part of a connection the inspector needs.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Quoter renders identifiers and bind parameters for the target dialect.
type Quoter interface {
	Quote(ident string) string
	Placeholder(n int) string
}

// DatabaseInspector runs the checker's counting queries against a live database.
type DatabaseInspector struct {
	db Querier
	q  Quoter
}

// NewDatabaseInspector creates an inspector over db.
func NewDatabaseInspector(db Querier, q Quoter) *DatabaseInspector {
	return &DatabaseInspector{db: db, q: q}
}

func (i *DatabaseInspector) table(namespace, table string) string {
	if namespace == "" {
		return i.q.Quote(table)
	}
	return i.q.Quote(namespace) + "." + i.q.Quote(table)
}

func (i *DatabaseInspector) count(ctx context.Context, query string, args ...any) (int64, error) {
	debug.Debug("Inspecting database", "query", query)
	var n int64
	if err := i.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountRows counts the rows of a table.
func (i *DatabaseInspector) CountRows(ctx context.Context, t TableRef) (int64, error) {
	n, err := i.count(ctx, "SELECT COUNT(*) FROM "+i.table(t.Namespace, t.Table))
	if err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", t.Table, err)
	}
	return n, nil
}

// CountNonNullValues counts the non-null values of a column.
func (i *DatabaseInspector) CountNonNullValues(ctx context.Context, c ColumnRef) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s IS NOT NULL",
		i.table(c.Namespace, c.Table), i.q.Quote(c.Column))
	n, err := i.count(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count values of %s.%s: %w", c.Table, c.Column, err)
	}
	return n, nil
}

// CountMatchingValues counts the rows whose column holds one of the given values.
func (i *DatabaseInspector) CountMatchingValues(ctx context.Context, m ValueMatch) (int64, error) {
	if len(m.Values) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(m.Values))
	args := make([]any, len(m.Values))
	for n, v := range m.Values {
		placeholders[n] = i.q.Placeholder(n + 1)
		args[n] = v
	}
	// Enum columns are compared as text so Postgres does not reject unknown labels.
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE CAST(%s AS %s) IN (%s)",
		i.table(m.Column.Namespace, m.Column.Table), i.q.Quote(m.Column.Column),
		textType(i.q), strings.Join(placeholders, ", "))
	n, err := i.count(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count matching values of %s.%s: %w", m.Column.Table, m.Column.Column, err)
	}
	return n, nil
}

// textType returns the type name used to compare enum values as strings.
func textType(q Quoter) string {
	if t, ok := q.(interface{ TextCastType() string }); ok {
		return t.TextCastType()
	}
	return "TEXT"
}
