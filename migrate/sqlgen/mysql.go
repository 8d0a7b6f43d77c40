package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// MySQLRenderer renders MySQL and MariaDB DDL.
type MySQLRenderer struct {
	base
}

// NewMySQLRenderer creates a MySQL renderer.
func NewMySQLRenderer() *MySQLRenderer {
	return &MySQLRenderer{base: base{quote: quoteDoubled("`", "`")}}
}

// Dialect implements Renderer.
func (r *MySQLRenderer) Dialect() schema.Dialect { return schema.MySQL }

// Quote implements Renderer.
func (r *MySQLRenderer) Quote(ident string) string { return r.quote(ident) }

// RenderScript implements Renderer.
func (r *MySQLRenderer) RenderScript(m *migration.Migration) string { return renderScript(r, m) }

var mysqlTypes = map[schema.ColumnTypeFamily]string{
	schema.FamilyInt:      "INTEGER",
	schema.FamilyBigInt:   "BIGINT",
	schema.FamilyFloat:    "DOUBLE",
	schema.FamilyDecimal:  "DECIMAL(65,30)",
	schema.FamilyBoolean:  "BOOLEAN",
	schema.FamilyString:   "VARCHAR(191)",
	schema.FamilyDateTime: "DATETIME(3)",
	schema.FamilyBinary:   "LONGBLOB",
	schema.FamilyJSON:     "JSON",
	schema.FamilyUUID:     "CHAR(36)",
}

// ColumnType implements Renderer. Enums are inline column types in MySQL.
func (r *MySQLRenderer) ColumnType(c schema.ColumnWalker) string {
	t := c.Type()
	switch {
	case t.Family == schema.FamilyEnum:
		if e, ok := c.Enum(); ok {
			return "ENUM(" + quoteVariants(e.Variants()) + ")"
		}
		return t.FullDataType
	case t.Native != nil:
		return nativeSQL(t.Native)
	case t.Family == schema.FamilyUnsupported:
		return t.FullDataType
	default:
		return mysqlTypes[t.Family]
	}
}

func (r *MySQLRenderer) boolean(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (r *MySQLRenderer) renderDefault(c schema.ColumnWalker) string {
	d := c.Default()
	if d == nil {
		return ""
	}
	switch d.Kind {
	case schema.DefaultNow:
		if t := c.Type(); t.Native != nil && len(t.Native.Args) > 0 {
			return "CURRENT_TIMESTAMP(" + t.Native.Args[0] + ")"
		}
		if c.Type().Native == nil {
			return "CURRENT_TIMESTAMP(3)"
		}
		return "CURRENT_TIMESTAMP"
	case schema.DefaultDBGenerated:
		return "(" + d.Expression + ")"
	case schema.DefaultSequence, schema.DefaultUniqueRowID:
		return ""
	}
	if d.Value == nil {
		return ""
	}
	// JSON defaults must be written as expressions.
	if c.Type().Family == schema.FamilyJSON && d.Value.Kind != schema.LiteralNull {
		return "(" + quoteString(d.Value.Text) + ")"
	}
	return literal(d.Value, r.boolean)
}

func (r *MySQLRenderer) columnDefinition(c schema.ColumnWalker) string {
	parts := []string{r.quote(c.Name()), r.ColumnType(c)}
	if c.Arity().IsRequired() {
		parts = append(parts, "NOT NULL")
	} else {
		parts = append(parts, "NULL")
	}
	if def := r.renderDefault(c); def != "" {
		parts = append(parts, "DEFAULT "+def)
	}
	if c.IsAutoIncrement() {
		parts = append(parts, "AUTO_INCREMENT")
	}
	if desc := c.Column().Description; desc != "" {
		parts = append(parts, "COMMENT "+quoteString(desc))
	}
	return strings.Join(parts, " ")
}

func (r *MySQLRenderer) indexKeyword(idx schema.IndexWalker) string {
	switch idx.Type() {
	case schema.IndexUnique:
		return "UNIQUE INDEX"
	case schema.IndexFulltext:
		return "FULLTEXT INDEX"
	default:
		return "INDEX"
	}
}

// RenderCreateTable implements Renderer. Secondary indexes are rendered inline.
func (r *MySQLRenderer) RenderCreateTable(t schema.TableWalker) string {
	var lines []string
	for _, c := range t.Columns() {
		lines = append(lines, r.columnDefinition(c))
	}
	body := indent(lines)

	var constraints []string
	for _, idx := range t.SecondaryIndexes() {
		constraints = append(constraints, fmt.Sprintf("%s %s(%s)", r.indexKeyword(idx), r.quote(idx.Name()), r.indexColumns(idx, true)))
	}
	if pk, ok := t.PrimaryKey(); ok {
		constraints = append(constraints, fmt.Sprintf("PRIMARY KEY (%s)", r.indexColumns(pk, true)))
	}
	if len(constraints) > 0 {
		body += ",\n\n" + indent(constraints)
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (\n%s\n) DEFAULT CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", r.quote(t.Name()), body)
	if comment := t.Comment(); comment != "" {
		stmt += " COMMENT " + quoteString(comment)
	}
	return stmt
}

func (r *MySQLRenderer) alterTable(t schema.TableWalker, clauses ...string) string {
	return fmt.Sprintf("ALTER TABLE %s %s", r.quote(t.Name()), strings.Join(clauses, ",\n    "))
}

// RenderStep implements Renderer.
func (r *MySQLRenderer) RenderStep(step migration.Step, schemas migration.Schemas) []string {
	prev, next := schemas.Previous, schemas.Next

	switch st := step.(type) {
	case migration.CreateTable:
		return []string{r.RenderCreateTable(next.Table(st.TableID))}

	case migration.DropTable:
		return []string{"DROP TABLE " + r.quote(prev.Table(st.TableID).Name())}

	case migration.AddColumn:
		return []string{r.alterTable(next.Table(st.TableIDs.Next), "ADD COLUMN "+r.columnDefinition(next.Column(st.ColumnID)))}

	case migration.DropColumn:
		return []string{r.alterTable(prev.Table(st.TableIDs.Previous), "DROP COLUMN "+r.quote(prev.Column(st.ColumnID).Name()))}

	case migration.AlterColumn:
		col := next.Column(st.ColumnIDs.Next)
		if st.Changes.OnlyDefaultChanged() {
			if def := r.renderDefault(col); def != "" {
				return []string{r.alterTable(col.Table(), fmt.Sprintf("ALTER COLUMN %s SET DEFAULT %s", r.quote(col.Name()), def))}
			}
			return []string{r.alterTable(col.Table(), fmt.Sprintf("ALTER COLUMN %s DROP DEFAULT", r.quote(col.Name())))}
		}
		return []string{r.alterTable(col.Table(), "MODIFY "+r.columnDefinition(col))}

	case migration.DropAndRecreateColumn:
		col := next.Column(st.ColumnIDs.Next)
		return []string{r.alterTable(col.Table(),
			"DROP COLUMN "+r.quote(prev.Column(st.ColumnIDs.Previous).Name()),
			"ADD COLUMN "+r.columnDefinition(col))}

	case migration.AddPrimaryKey:
		t := next.Table(st.TableIDs.Next)
		pk, _ := t.PrimaryKey()
		return []string{r.alterTable(t, fmt.Sprintf("ADD PRIMARY KEY (%s)", r.indexColumns(pk, true)))}

	case migration.DropPrimaryKey:
		return []string{r.alterTable(prev.Table(st.TableIDs.Previous), "DROP PRIMARY KEY")}

	case migration.CreateIndex:
		idx := next.Index(st.IndexID)
		return []string{fmt.Sprintf("CREATE %s %s ON %s(%s)", r.indexKeyword(idx),
			r.quote(idx.Name()), r.quote(idx.Table().Name()), r.indexColumns(idx, true))}

	case migration.DropIndex:
		idx := prev.Index(st.IndexID)
		return []string{fmt.Sprintf("DROP INDEX %s ON %s", r.quote(idx.Name()), r.quote(idx.Table().Name()))}

	case migration.RenameIndex:
		p, n := prev.Index(st.IndexIDs.Previous), next.Index(st.IndexIDs.Next)
		return []string{r.alterTable(n.Table(), fmt.Sprintf("RENAME INDEX %s TO %s", r.quote(p.Name()), r.quote(n.Name())))}

	case migration.CreateForeignKey:
		fk := next.ForeignKey(st.ForeignKeyID)
		return []string{r.alterTable(fk.ConstrainedTable(),
			fmt.Sprintf("ADD CONSTRAINT %s %s", r.quote(fk.ConstraintName()), r.foreignKeyClause(fk, "RESTRICT")))}

	case migration.DropForeignKey:
		fk := prev.ForeignKey(st.ForeignKeyID)
		return []string{r.alterTable(fk.ConstrainedTable(), "DROP FOREIGN KEY "+r.quote(fk.ConstraintName()))}

	case migration.CreateView:
		v := next.View(st.ViewID)
		return []string{fmt.Sprintf("CREATE VIEW %s AS %s", r.quote(v.Name()), strings.TrimSuffix(strings.TrimSpace(v.Definition()), ";"))}

	case migration.DropView:
		return []string{"DROP VIEW " + r.quote(prev.View(st.ViewID).Name())}
	}
	return nil
}
