package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// SQLiteRenderer renders SQLite DDL. SQLite cannot alter columns, keys or
// constraints in place, so most table changes arrive as RedefineTables.
type SQLiteRenderer struct {
	base
}

// NewSQLiteRenderer creates a SQLite renderer.
func NewSQLiteRenderer() *SQLiteRenderer {
	return &SQLiteRenderer{base: base{quote: quoteDoubled(`"`, `"`)}}
}

// Dialect implements Renderer.
func (r *SQLiteRenderer) Dialect() schema.Dialect { return schema.SQLite }

// Quote implements Renderer.
func (r *SQLiteRenderer) Quote(ident string) string { return r.quote(ident) }

// RenderScript implements Renderer.
func (r *SQLiteRenderer) RenderScript(m *migration.Migration) string { return renderScript(r, m) }

var sqliteTypes = map[schema.ColumnTypeFamily]string{
	schema.FamilyInt:      "INTEGER",
	schema.FamilyBigInt:   "BIGINT",
	schema.FamilyFloat:    "REAL",
	schema.FamilyDecimal:  "DECIMAL",
	schema.FamilyBoolean:  "BOOLEAN",
	schema.FamilyString:   "TEXT",
	schema.FamilyDateTime: "DATETIME",
	schema.FamilyBinary:   "BLOB",
	schema.FamilyJSON:     "JSONB",
	schema.FamilyUUID:     "TEXT",
	schema.FamilyEnum:     "TEXT",
}

// ColumnType implements Renderer.
func (r *SQLiteRenderer) ColumnType(c schema.ColumnWalker) string {
	t := c.Type()
	switch {
	case t.Native != nil:
		return nativeSQL(t.Native)
	case t.Family == schema.FamilyUnsupported:
		return t.FullDataType
	default:
		return sqliteTypes[t.Family]
	}
}

func (r *SQLiteRenderer) boolean(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (r *SQLiteRenderer) renderDefault(c schema.ColumnWalker) string {
	d := c.Default()
	if d == nil {
		return ""
	}
	switch d.Kind {
	case schema.DefaultNow:
		return "CURRENT_TIMESTAMP"
	case schema.DefaultDBGenerated:
		return "(" + d.Expression + ")"
	case schema.DefaultSequence, schema.DefaultUniqueRowID:
		return ""
	}
	if d.Value == nil {
		return ""
	}
	return literal(d.Value, r.boolean)
}

// inlinePrimaryKey reports whether the column carries the table's primary key
// inline, which SQLite requires for AUTOINCREMENT.
func inlinePrimaryKey(c schema.ColumnWalker) bool {
	return c.IsAutoIncrement() && c.IsSinglePrimaryKey()
}

func (r *SQLiteRenderer) columnDefinition(c schema.ColumnWalker) string {
	parts := []string{r.quote(c.Name()), r.ColumnType(c)}
	if c.Arity().IsRequired() {
		parts = append(parts, "NOT NULL")
	}
	if inlinePrimaryKey(c) {
		parts = append(parts, "PRIMARY KEY AUTOINCREMENT")
	}
	if def := r.renderDefault(c); def != "" {
		parts = append(parts, "DEFAULT "+def)
	}
	return strings.Join(parts, " ")
}

// RenderCreateTable implements Renderer. Foreign keys are rendered inline.
func (r *SQLiteRenderer) RenderCreateTable(t schema.TableWalker) string {
	return r.createTable(t, t.Name())
}

func (r *SQLiteRenderer) createTable(t schema.TableWalker, name string) string {
	var lines []string
	inlinePK := false
	for _, c := range t.Columns() {
		lines = append(lines, r.columnDefinition(c))
		inlinePK = inlinePK || inlinePrimaryKey(c)
	}

	var constraints []string
	if pk, ok := t.PrimaryKey(); ok && !inlinePK {
		constraints = append(constraints, fmt.Sprintf("PRIMARY KEY (%s)", r.indexColumns(pk, false)))
	}
	for _, fk := range t.ForeignKeys() {
		c := r.foreignKeyClause(fk, "RESTRICT")
		if name := fk.ConstraintName(); name != "" {
			c = fmt.Sprintf("CONSTRAINT %s %s", r.quote(name), c)
		}
		constraints = append(constraints, c)
	}

	body := indent(lines)
	if len(constraints) > 0 {
		body += ",\n" + indent(constraints)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", r.quote(name), body)
}

func (r *SQLiteRenderer) createIndex(idx schema.IndexWalker) string {
	unique := ""
	if idx.IsUnique() {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s(%s)", unique, r.quote(idx.Name()), r.quote(idx.Table().Name()), r.indexColumns(idx, false))
}

// RenderStep implements Renderer.
func (r *SQLiteRenderer) RenderStep(step migration.Step, schemas migration.Schemas) []string {
	prev, next := schemas.Previous, schemas.Next

	switch st := step.(type) {
	case migration.CreateTable:
		return []string{r.RenderCreateTable(next.Table(st.TableID))}

	case migration.DropTable:
		return []string{"DROP TABLE " + r.quote(prev.Table(st.TableID).Name())}

	case migration.AddColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", r.quote(next.Table(st.TableIDs.Next).Name()), r.columnDefinition(next.Column(st.ColumnID)))}

	case migration.DropColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", r.quote(prev.Table(st.TableIDs.Previous).Name()), r.quote(prev.Column(st.ColumnID).Name()))}

	case migration.CreateIndex:
		return []string{r.createIndex(next.Index(st.IndexID))}

	case migration.DropIndex:
		return []string{"DROP INDEX " + r.quote(prev.Index(st.IndexID).Name())}

	case migration.RedefineTables:
		return r.redefineTables(st, schemas)

	case migration.CreateView:
		v := next.View(st.ViewID)
		return []string{fmt.Sprintf("CREATE VIEW %s AS %s", r.quote(v.Name()), strings.TrimSuffix(strings.TrimSpace(v.Definition()), ";"))}

	case migration.DropView:
		return []string{"DROP VIEW " + r.quote(prev.View(st.ViewID).Name())}
	}
	return nil
}

// redefineTables rebuilds each table under a temporary name, copies the rows
// over and swaps it in. Foreign key enforcement is deferred for the duration.
func (r *SQLiteRenderer) redefineTables(st migration.RedefineTables, schemas migration.Schemas) []string {
	stmts := []string{"PRAGMA defer_foreign_keys=ON", "PRAGMA foreign_keys=OFF"}
	for _, rt := range st.Tables {
		prevTable := schemas.Previous.Table(rt.TableIDs.Previous)
		nextTable := schemas.Next.Table(rt.TableIDs.Next)
		tmp := "new_" + nextTable.Name()

		stmts = append(stmts, r.createTable(nextTable, tmp))
		if cols, exprs := copyColumns(rt, schemas, r.quote, r.renderDefault); len(cols) > 0 {
			stmts = append(stmts, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
				r.quote(tmp), strings.Join(cols, ", "), strings.Join(exprs, ", "), r.quote(prevTable.Name())))
		}
		stmts = append(stmts,
			"DROP TABLE "+r.quote(prevTable.Name()),
			fmt.Sprintf("ALTER TABLE %s RENAME TO %s", r.quote(tmp), r.quote(nextTable.Name())))
		for _, idx := range nextTable.SecondaryIndexes() {
			stmts = append(stmts, r.createIndex(idx))
		}
	}
	return append(stmts, "PRAGMA foreign_keys=ON", "PRAGMA defer_foreign_keys=OFF")
}
