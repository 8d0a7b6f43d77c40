// Package sqlgen renders migration steps as SQL for each supported database.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// Renderer turns migration steps into SQL for one dialect. Rendering is purely
// syntactic: all decisions about what to change were made by the differ.
type Renderer interface {
	Dialect() schema.Dialect
	// Quote quotes an identifier.
	Quote(ident string) string
	// RenderStep returns the statements for one step, without terminators.
	RenderStep(step migration.Step, schemas migration.Schemas) []string
	// RenderScript renders a whole migration as a script.
	RenderScript(m *migration.Migration) string
	// RenderCreateTable renders the CREATE TABLE statement for a table.
	RenderCreateTable(t schema.TableWalker) string
	// ColumnType renders the SQL type of a column. Flavours compare these to
	// detect type changes.
	ColumnType(c schema.ColumnWalker) string
}

// NewRenderer creates the renderer for the given dialect.
func NewRenderer(dialect schema.Dialect) (Renderer, error) {
	switch dialect {
	case schema.Postgres:
		return NewPostgresRenderer(), nil
	case schema.CockroachDB:
		return NewCockroachRenderer(), nil
	case schema.MySQL:
		return NewMySQLRenderer(), nil
	case schema.SQLite:
		return NewSQLiteRenderer(), nil
	case schema.MSSQL:
		return NewMSSQLRenderer(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", dialect)
	}
}

// stepRenderer is the per-dialect half of a Renderer.
type stepRenderer interface {
	RenderStep(step migration.Step, schemas migration.Schemas) []string
}

// renderScript renders every step under a header comment naming it, the way
// migration files are laid out on disk.
func renderScript(r stepRenderer, m *migration.Migration) string {
	var b strings.Builder
	for _, step := range m.Steps {
		stmts := r.RenderStep(step, m.Schemas)
		if len(stmts) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "-- %s\n", step.Kind())
		for _, stmt := range stmts {
			b.WriteString(stmt)
			b.WriteString(";\n")
		}
	}
	return b.String()
}

// base holds the helpers every dialect shares.
type base struct {
	quote func(string) string
}

func (b base) qualified(namespace, name string) string {
	if namespace == "" {
		return b.quote(name)
	}
	return b.quote(namespace) + "." + b.quote(name)
}

func (b base) table(t schema.TableWalker) string {
	return b.qualified(t.Namespace(), t.Name())
}

func (b base) quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = b.quote(n)
	}
	return strings.Join(quoted, ", ")
}

// indexColumns renders the column list of an index with sort orders.
func (b base) indexColumns(idx schema.IndexWalker, withLength bool) string {
	cols := idx.IndexColumns()
	names := idx.ColumnNames()
	parts := make([]string, len(cols))
	for i, c := range cols {
		part := b.quote(names[i])
		if withLength && c.Length > 0 {
			part += fmt.Sprintf("(%d)", c.Length)
		}
		if c.OperatorClass != "" {
			part += " " + c.OperatorClass
		}
		if c.SortOrder == schema.Desc {
			part += " DESC"
		}
		parts[i] = part
	}
	return strings.Join(parts, ", ")
}

func (b base) foreignKeyClause(fk schema.ForeignKeyWalker, restrict string) string {
	ref := fk.ReferencedTable()
	return fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s) ON DELETE %s ON UPDATE %s",
		b.quoteAll(fk.ConstrainedColumnNames()),
		b.table(ref),
		b.quoteAll(fk.ReferencedColumnNames()),
		referentialAction(fk.OnDelete(), restrict),
		referentialAction(fk.OnUpdate(), restrict))
}

func referentialAction(a schema.ReferentialAction, restrict string) string {
	switch a {
	case schema.Cascade:
		return "CASCADE"
	case schema.SetNull:
		return "SET NULL"
	case schema.SetDefault:
		return "SET DEFAULT"
	case schema.NoAction:
		return "NO ACTION"
	default:
		return restrict
	}
}

// quoteString renders a SQL string literal.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// quoteDoubled quotes identifiers between open and close, doubling embedded close characters.
func quoteDoubled(open, close string) func(string) string {
	return func(s string) string {
		return open + strings.ReplaceAll(s, close, close+close) + close
	}
}

// literal renders a literal default value. boolean renders true/false values.
func literal(l *schema.Literal, boolean func(bool) string) string {
	switch l.Kind {
	case schema.LiteralNumber:
		return l.Text
	case schema.LiteralBoolean:
		return boolean(strings.EqualFold(l.Text, "true") || l.Text == "1")
	case schema.LiteralNull:
		return "NULL"
	default:
		return quoteString(l.Text)
	}
}

// nativeSQL renders a native type the way the database spells it.
func nativeSQL(n *schema.NativeType) string {
	name := strings.ToUpper(n.Name)
	switch name {
	case "DOUBLEPRECISION":
		name = "DOUBLE PRECISION"
	case "UNSIGNEDINT", "UNSIGNEDBIGINT", "UNSIGNEDSMALLINT", "UNSIGNEDTINYINT", "UNSIGNEDMEDIUMINT":
		return strings.TrimPrefix(name, "UNSIGNED") + " UNSIGNED"
	}
	if len(n.Args) == 0 {
		return name
	}
	return name + "(" + strings.Join(n.Args, ",") + ")"
}

func columnNames(t schema.TableWalker) []string {
	cols := t.Columns()
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name()
	}
	return out
}

func indent(lines []string) string {
	return "    " + strings.Join(lines, ",\n    ")
}
