package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// MSSQLRenderer renders SQL Server DDL. Column defaults are named constraints
// that must be dropped before the column they belong to can change.
type MSSQLRenderer struct {
	base
}

// NewMSSQLRenderer creates a SQL Server renderer.
func NewMSSQLRenderer() *MSSQLRenderer {
	return &MSSQLRenderer{base: base{quote: quoteDoubled("[", "]")}}
}

// Dialect implements Renderer.
func (r *MSSQLRenderer) Dialect() schema.Dialect { return schema.MSSQL }

// Quote implements Renderer.
func (r *MSSQLRenderer) Quote(ident string) string { return r.quote(ident) }

// RenderScript implements Renderer.
func (r *MSSQLRenderer) RenderScript(m *migration.Migration) string { return renderScript(r, m) }

// DefaultConstraintName is the name given to the default constraint of a column.
func (r *MSSQLRenderer) DefaultConstraintName(table, column string) string {
	return fmt.Sprintf("DF__%s__%s", table, column)
}

func (r *MSSQLRenderer) defaultConstraint(c schema.ColumnWalker) string {
	if d := c.Default(); d != nil && d.ConstraintName != "" {
		return d.ConstraintName
	}
	return r.DefaultConstraintName(c.Table().Name(), c.Name())
}

var mssqlTypes = map[schema.ColumnTypeFamily]string{
	schema.FamilyInt:      "INT",
	schema.FamilyBigInt:   "BIGINT",
	schema.FamilyFloat:    "FLOAT",
	schema.FamilyDecimal:  "DECIMAL(32,16)",
	schema.FamilyBoolean:  "BIT",
	schema.FamilyString:   "NVARCHAR(1000)",
	schema.FamilyDateTime: "DATETIME2",
	schema.FamilyBinary:   "VARBINARY(max)",
	schema.FamilyJSON:     "NVARCHAR(max)",
	schema.FamilyUUID:     "UNIQUEIDENTIFIER",
}

// ColumnType implements Renderer.
func (r *MSSQLRenderer) ColumnType(c schema.ColumnWalker) string {
	t := c.Type()
	switch {
	case t.Native != nil:
		typ := nativeSQL(t.Native)
		// max is a keyword, not a length.
		return strings.ReplaceAll(typ, "(MAX)", "(max)")
	case t.Family == schema.FamilyUnsupported:
		return t.FullDataType
	default:
		return mssqlTypes[t.Family]
	}
}

// TextCastType is the type values are cast to when compared as text.
func (r *MSSQLRenderer) TextCastType() string { return "NVARCHAR(max)" }

func (r *MSSQLRenderer) boolean(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (r *MSSQLRenderer) renderDefault(c schema.ColumnWalker) string {
	d := c.Default()
	if d == nil {
		return ""
	}
	switch d.Kind {
	case schema.DefaultNow:
		return "CURRENT_TIMESTAMP"
	case schema.DefaultDBGenerated:
		return d.Expression
	case schema.DefaultSequence, schema.DefaultUniqueRowID:
		return ""
	}
	if d.Value == nil {
		return ""
	}
	if d.Value.Kind == schema.LiteralString || d.Value.Kind == schema.LiteralJSON {
		return "N" + quoteString(d.Value.Text)
	}
	return literal(d.Value, r.boolean)
}

func (r *MSSQLRenderer) columnDefinition(c schema.ColumnWalker) string {
	parts := []string{r.quote(c.Name()), r.ColumnType(c)}
	if c.Arity().IsRequired() {
		parts = append(parts, "NOT NULL")
	} else {
		parts = append(parts, "NULL")
	}
	if c.IsAutoIncrement() {
		parts = append(parts, "IDENTITY(1,1)")
	}
	if def := r.renderDefault(c); def != "" {
		parts = append(parts, fmt.Sprintf("CONSTRAINT %s DEFAULT %s", r.quote(r.defaultConstraint(c)), def))
	}
	return strings.Join(parts, " ")
}

// RenderCreateTable implements Renderer.
func (r *MSSQLRenderer) RenderCreateTable(t schema.TableWalker) string {
	return r.createTable(t, r.table(t))
}

func (r *MSSQLRenderer) createTable(t schema.TableWalker, name string) string {
	var lines []string
	for _, c := range t.Columns() {
		lines = append(lines, r.columnDefinition(c))
	}
	if pk, ok := t.PrimaryKey(); ok {
		lines = append(lines, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY CLUSTERED (%s)", r.quote(pk.Name()), r.indexColumns(pk, false)))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", name, indent(lines))
}

func (r *MSSQLRenderer) createIndex(idx schema.IndexWalker) string {
	unique := ""
	if idx.IsUnique() {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sNONCLUSTERED INDEX %s ON %s(%s)", unique, r.quote(idx.Name()), r.table(idx.Table()), r.indexColumns(idx, false))
}

func (r *MSSQLRenderer) alterTable(t schema.TableWalker, clause string) string {
	return fmt.Sprintf("ALTER TABLE %s %s", r.table(t), clause)
}

// rename renders an sp_rename call. object is the dotted name of the object
// being renamed and kind its sp_rename object type, if any.
func (r *MSSQLRenderer) rename(object, to, kind string) string {
	stmt := fmt.Sprintf("EXEC SP_RENAME N%s, N%s", quoteString(object), quoteString(to))
	if kind != "" {
		stmt += ", N" + quoteString(kind)
	}
	return stmt
}

func (r *MSSQLRenderer) dropDefault(c schema.ColumnWalker) []string {
	if c.Default() == nil || r.renderDefault(c) == "" {
		return nil
	}
	return []string{r.alterTable(c.Table(), "DROP CONSTRAINT "+r.quote(r.defaultConstraint(c)))}
}

// RenderStep implements Renderer.
func (r *MSSQLRenderer) RenderStep(step migration.Step, schemas migration.Schemas) []string {
	prev, next := schemas.Previous, schemas.Next

	switch st := step.(type) {
	case migration.CreateTable:
		return []string{r.RenderCreateTable(next.Table(st.TableID))}

	case migration.DropTable:
		return []string{"DROP TABLE " + r.table(prev.Table(st.TableID))}

	case migration.AddColumn:
		return []string{r.alterTable(next.Table(st.TableIDs.Next), "ADD "+r.columnDefinition(next.Column(st.ColumnID)))}

	case migration.DropColumn:
		col := prev.Column(st.ColumnID)
		return append(r.dropDefault(col), r.alterTable(col.Table(), "DROP COLUMN "+r.quote(col.Name())))

	case migration.AlterColumn:
		return r.alterColumn(st, schemas)

	case migration.DropAndRecreateColumn:
		prevCol := prev.Column(st.ColumnIDs.Previous)
		stmts := append(r.dropDefault(prevCol), r.alterTable(prevCol.Table(), "DROP COLUMN "+r.quote(prevCol.Name())))
		return append(stmts, r.alterTable(next.Table(st.TableIDs.Next), "ADD "+r.columnDefinition(next.Column(st.ColumnIDs.Next))))

	case migration.AddPrimaryKey:
		t := next.Table(st.TableIDs.Next)
		pk, _ := t.PrimaryKey()
		return []string{r.alterTable(t, fmt.Sprintf("ADD CONSTRAINT %s PRIMARY KEY CLUSTERED (%s)", r.quote(pk.Name()), r.indexColumns(pk, false)))}

	case migration.DropPrimaryKey:
		t := prev.Table(st.TableIDs.Previous)
		pk, _ := t.PrimaryKey()
		return []string{r.alterTable(t, "DROP CONSTRAINT "+r.quote(pk.Name()))}

	case migration.CreateIndex:
		return []string{r.createIndex(next.Index(st.IndexID))}

	case migration.DropIndex:
		idx := prev.Index(st.IndexID)
		return []string{fmt.Sprintf("DROP INDEX %s ON %s", r.quote(idx.Name()), r.table(idx.Table()))}

	case migration.RenameIndex:
		p, n := prev.Index(st.IndexIDs.Previous), next.Index(st.IndexIDs.Next)
		t := p.Table()
		return []string{r.rename(fmt.Sprintf("%s.%s.%s", t.Namespace(), t.Name(), p.Name()), n.Name(), "INDEX")}

	case migration.CreateForeignKey:
		fk := next.ForeignKey(st.ForeignKeyID)
		return []string{r.alterTable(fk.ConstrainedTable(),
			fmt.Sprintf("ADD CONSTRAINT %s %s", r.quote(fk.ConstraintName()), r.foreignKeyClause(fk, "NO ACTION")))}

	case migration.DropForeignKey:
		fk := prev.ForeignKey(st.ForeignKeyID)
		return []string{r.alterTable(fk.ConstrainedTable(), "DROP CONSTRAINT "+r.quote(fk.ConstraintName()))}

	case migration.RenameForeignKey:
		p, n := prev.ForeignKey(st.ForeignKeyIDs.Previous), next.ForeignKey(st.ForeignKeyIDs.Next)
		return []string{r.rename(fmt.Sprintf("%s.%s", p.ConstrainedTable().Namespace(), p.ConstraintName()), n.ConstraintName(), "OBJECT")}

	case migration.RedefineTables:
		return r.redefineTables(st, schemas)

	case migration.CreateView:
		v := next.View(st.ViewID)
		return []string{fmt.Sprintf("CREATE VIEW %s AS %s", r.qualified(v.Namespace(), v.Name()), strings.TrimSuffix(strings.TrimSpace(v.Definition()), ";"))}

	case migration.DropView:
		v := prev.View(st.ViewID)
		return []string{"DROP VIEW " + r.qualified(v.Namespace(), v.Name())}
	}
	return nil
}

func (r *MSSQLRenderer) alterColumn(st migration.AlterColumn, schemas migration.Schemas) []string {
	prevCol := schemas.Previous.Column(st.ColumnIDs.Previous)
	col := schemas.Next.Column(st.ColumnIDs.Next)
	t := schemas.Next.Table(st.TableIDs.Next)

	var stmts []string
	if st.Changes.DefaultChanged() {
		stmts = append(stmts, r.dropDefault(prevCol)...)
	}
	if st.Changes.TypeChanged() || st.Changes.ArityChanged() {
		null := "NULL"
		if col.Arity().IsRequired() {
			null = "NOT NULL"
		}
		stmts = append(stmts, r.alterTable(t, fmt.Sprintf("ALTER COLUMN %s %s %s", r.quote(col.Name()), r.ColumnType(col), null)))
	}
	if st.Changes.DefaultChanged() {
		if def := r.renderDefault(col); def != "" {
			stmts = append(stmts, r.alterTable(t, fmt.Sprintf("ADD CONSTRAINT %s DEFAULT %s FOR %s",
				r.quote(r.defaultConstraint(col)), def, r.quote(col.Name()))))
		}
	}
	return stmts
}

// redefineTables rebuilds tables whose primary key or identity columns
// changed. Identity values are carried over with IDENTITY_INSERT.
func (r *MSSQLRenderer) redefineTables(st migration.RedefineTables, schemas migration.Schemas) []string {
	redefinedPrev := map[schema.TableID]bool{}
	redefinedNext := map[schema.TableID]bool{}
	for _, rt := range st.Tables {
		redefinedPrev[rt.TableIDs.Previous] = true
		redefinedNext[rt.TableIDs.Next] = true
	}

	var stmts []string
	for _, rt := range st.Tables {
		prevTable := schemas.Previous.Table(rt.TableIDs.Previous)
		nextTable := schemas.Next.Table(rt.TableIDs.Next)
		tmpName := "_new_" + nextTable.Name()
		tmp := r.qualified(nextTable.Namespace(), tmpName)

		for _, fk := range prevTable.ReferencingForeignKeys() {
			if redefinedPrev[fk.ConstrainedTable().ID] {
				continue
			}
			stmts = append(stmts, r.alterTable(fk.ConstrainedTable(), "DROP CONSTRAINT "+r.quote(fk.ConstraintName())))
		}
		for _, fk := range prevTable.ForeignKeys() {
			stmts = append(stmts, r.alterTable(prevTable, "DROP CONSTRAINT "+r.quote(fk.ConstraintName())))
		}
		for _, c := range prevTable.Columns() {
			stmts = append(stmts, r.dropDefault(c)...)
		}
		if pk, ok := prevTable.PrimaryKey(); ok {
			stmts = append(stmts, r.alterTable(prevTable, "DROP CONSTRAINT "+r.quote(pk.Name())))
		}

		stmts = append(stmts, r.createTable(nextTable, tmp))
		if cols, exprs := copyColumns(rt, schemas, r.quote, r.renderDefault); len(cols) > 0 {
			identity := false
			for _, c := range nextTable.Columns() {
				identity = identity || c.IsAutoIncrement()
			}
			insert := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s WITH (holdlock tablockx)",
				tmp, strings.Join(cols, ", "), strings.Join(exprs, ", "), r.table(prevTable))
			if identity {
				stmts = append(stmts, fmt.Sprintf("SET IDENTITY_INSERT %s ON", tmp), insert, fmt.Sprintf("SET IDENTITY_INSERT %s OFF", tmp))
			} else {
				stmts = append(stmts, insert)
			}
		}
		stmts = append(stmts,
			"DROP TABLE "+r.table(prevTable),
			r.rename(fmt.Sprintf("%s.%s", nextTable.Namespace(), tmpName), nextTable.Name(), ""))
		for _, idx := range nextTable.SecondaryIndexes() {
			stmts = append(stmts, r.createIndex(idx))
		}
		for _, fk := range nextTable.ForeignKeys() {
			stmts = append(stmts, r.alterTable(nextTable,
				fmt.Sprintf("ADD CONSTRAINT %s %s", r.quote(fk.ConstraintName()), r.foreignKeyClause(fk, "NO ACTION"))))
		}
		for _, fk := range nextTable.ReferencingForeignKeys() {
			if redefinedNext[fk.ConstrainedTable().ID] {
				continue
			}
			stmts = append(stmts, r.alterTable(fk.ConstrainedTable(),
				fmt.Sprintf("ADD CONSTRAINT %s %s", r.quote(fk.ConstraintName()), r.foreignKeyClause(fk, "NO ACTION"))))
		}
	}
	return stmts
}
