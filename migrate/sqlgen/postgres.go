package sqlgen

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// PostgresRenderer renders PostgreSQL DDL.
type PostgresRenderer struct {
	base
	// cockroach switches the handful of places where CockroachDB spells things differently.
	cockroach bool
}

// NewPostgresRenderer creates a PostgreSQL renderer.
func NewPostgresRenderer() *PostgresRenderer {
	return &PostgresRenderer{base: base{quote: quoteDoubled(`"`, `"`)}}
}

// Dialect implements Renderer.
func (r *PostgresRenderer) Dialect() schema.Dialect {
	if r.cockroach {
		return schema.CockroachDB
	}
	return schema.Postgres
}

// Quote implements Renderer.
func (r *PostgresRenderer) Quote(ident string) string { return r.quote(ident) }

// RenderScript implements Renderer.
func (r *PostgresRenderer) RenderScript(m *migration.Migration) string { return renderScript(r, m) }

// ColumnType implements Renderer.
func (r *PostgresRenderer) ColumnType(c schema.ColumnWalker) string {
	t := c.Type()
	var sql string
	switch {
	case t.Family == schema.FamilyEnum:
		sql = r.enumType(c)
	case t.Native != nil:
		sql = nativeSQL(t.Native)
	case t.Family == schema.FamilyUnsupported:
		sql = t.FullDataType
	case c.IsAutoIncrement() && !r.cockroach:
		switch t.Family {
		case schema.FamilyBigInt:
			sql = "BIGSERIAL"
		default:
			sql = "SERIAL"
		}
	default:
		sql = r.familyType(t.Family)
	}
	if t.Arity.IsList() {
		sql += "[]"
	}
	return sql
}

func (r *PostgresRenderer) enumType(c schema.ColumnWalker) string {
	t := c.Type()
	if e, ok := c.Enum(); ok {
		return r.qualified(e.Namespace(), e.Name())
	}
	return r.quote(t.EnumName)
}

func (r *PostgresRenderer) familyType(f schema.ColumnTypeFamily) string {
	if r.cockroach {
		return cockroachTypes[f]
	}
	return postgresTypes[f]
}

var postgresTypes = map[schema.ColumnTypeFamily]string{
	schema.FamilyInt:      "INTEGER",
	schema.FamilyBigInt:   "BIGINT",
	schema.FamilyFloat:    "DOUBLE PRECISION",
	schema.FamilyDecimal:  "DECIMAL(65,30)",
	schema.FamilyBoolean:  "BOOLEAN",
	schema.FamilyString:   "TEXT",
	schema.FamilyDateTime: "TIMESTAMP(3)",
	schema.FamilyBinary:   "BYTEA",
	schema.FamilyJSON:     "JSONB",
	schema.FamilyUUID:     "UUID",
}

func (r *PostgresRenderer) boolean(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (r *PostgresRenderer) renderDefault(c schema.ColumnWalker) string {
	d := c.Default()
	if d == nil {
		return ""
	}
	switch d.Kind {
	case schema.DefaultNow:
		return "CURRENT_TIMESTAMP"
	case schema.DefaultSequence:
		return fmt.Sprintf("nextval(%s::regclass)", quoteString(r.quote(d.SequenceName)))
	case schema.DefaultUniqueRowID:
		return "unique_rowid()"
	case schema.DefaultDBGenerated:
		return d.Expression
	}
	if d.Value == nil {
		return ""
	}
	if c.Type().Arity.IsList() && d.Value.Kind != schema.LiteralNull {
		return quoteString(d.Value.Text)
	}
	return literal(d.Value, r.boolean)
}

func (r *PostgresRenderer) columnDefinition(c schema.ColumnWalker) string {
	parts := []string{r.quote(c.Name()), r.ColumnType(c)}
	if c.Arity().IsRequired() {
		parts = append(parts, "NOT NULL")
	}
	def := r.renderDefault(c)
	if def == "" && c.IsAutoIncrement() && r.cockroach {
		def = "unique_rowid()"
	}
	if def != "" && !(c.IsAutoIncrement() && !r.cockroach && c.Default().IsSequence()) {
		parts = append(parts, "DEFAULT "+def)
	}
	return strings.Join(parts, " ")
}

// RenderCreateTable implements Renderer.
func (r *PostgresRenderer) RenderCreateTable(t schema.TableWalker) string {
	return r.createTable(t, r.table(t))
}

func (r *PostgresRenderer) createTable(t schema.TableWalker, name string) string {
	var lines []string
	for _, c := range t.Columns() {
		lines = append(lines, r.columnDefinition(c))
	}
	body := indent(lines)
	if pk, ok := t.PrimaryKey(); ok {
		body += ",\n\n    " + fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)", r.quote(pk.Name()), r.quoteAll(pk.ColumnNames()))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", name, body)
}

func (r *PostgresRenderer) createIndex(idx schema.IndexWalker) string {
	unique := ""
	if idx.IsUnique() {
		unique = "UNIQUE "
	}
	using := ""
	if a := idx.Algorithm(); a != "" && !strings.EqualFold(a, "btree") {
		using = " USING " + strings.ToUpper(a)
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s%s(%s)",
		unique, r.quote(idx.Name()), r.table(idx.Table()), using, r.indexColumns(idx, false))
}

func (r *PostgresRenderer) alterTable(t schema.TableWalker, clauses ...string) string {
	return fmt.Sprintf("ALTER TABLE %s %s", r.table(t), strings.Join(clauses, ",\n"))
}

// RenderStep implements Renderer.
func (r *PostgresRenderer) RenderStep(step migration.Step, schemas migration.Schemas) []string {
	prev, next := schemas.Previous, schemas.Next

	switch st := step.(type) {
	case migration.CreateEnum:
		e := next.Enum(st.EnumID)
		return []string{fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", r.qualified(e.Namespace(), e.Name()), quoteVariants(e.Variants()))}

	case migration.DropEnum:
		e := prev.Enum(st.EnumID)
		return []string{"DROP TYPE " + r.qualified(e.Namespace(), e.Name())}

	case migration.AlterEnum:
		return r.alterEnum(st, schemas)

	case migration.CreateTable:
		return []string{r.RenderCreateTable(next.Table(st.TableID))}

	case migration.DropTable:
		return []string{"DROP TABLE " + r.table(prev.Table(st.TableID))}

	case migration.AddColumn:
		return []string{r.alterTable(next.Table(st.TableIDs.Next), "ADD COLUMN "+r.columnDefinition(next.Column(st.ColumnID)))}

	case migration.DropColumn:
		return []string{r.alterTable(prev.Table(st.TableIDs.Previous), "DROP COLUMN "+r.quote(prev.Column(st.ColumnID).Name()))}

	case migration.AlterColumn:
		return r.alterColumn(st, schemas)

	case migration.DropAndRecreateColumn:
		col := next.Column(st.ColumnIDs.Next)
		return []string{r.alterTable(next.Table(st.TableIDs.Next),
			"DROP COLUMN "+r.quote(prev.Column(st.ColumnIDs.Previous).Name()),
			"ADD COLUMN "+r.columnDefinition(col))}

	case migration.AddPrimaryKey:
		t := next.Table(st.TableIDs.Next)
		pk, _ := t.PrimaryKey()
		return []string{r.alterTable(t, fmt.Sprintf("ADD CONSTRAINT %s PRIMARY KEY (%s)", r.quote(pk.Name()), r.quoteAll(pk.ColumnNames())))}

	case migration.DropPrimaryKey:
		t := prev.Table(st.TableIDs.Previous)
		pk, _ := t.PrimaryKey()
		return []string{r.alterTable(t, "DROP CONSTRAINT "+r.quote(pk.Name()))}

	case migration.CreateIndex:
		return []string{r.createIndex(next.Index(st.IndexID))}

	case migration.DropIndex:
		idx := prev.Index(st.IndexID)
		if r.cockroach && idx.IsUnique() {
			return []string{fmt.Sprintf("DROP INDEX %s@%s CASCADE", r.table(idx.Table()), r.quote(idx.Name()))}
		}
		return []string{"DROP INDEX " + r.qualified(idx.Table().Namespace(), idx.Name())}

	case migration.RenameIndex:
		p, n := prev.Index(st.IndexIDs.Previous), next.Index(st.IndexIDs.Next)
		if r.cockroach {
			return []string{fmt.Sprintf("ALTER INDEX %s@%s RENAME TO %s", r.table(p.Table()), r.quote(p.Name()), r.quote(n.Name()))}
		}
		return []string{fmt.Sprintf("ALTER INDEX %s RENAME TO %s", r.qualified(p.Table().Namespace(), p.Name()), r.quote(n.Name()))}

	case migration.CreateForeignKey:
		fk := next.ForeignKey(st.ForeignKeyID)
		return []string{r.alterTable(fk.ConstrainedTable(),
			fmt.Sprintf("ADD CONSTRAINT %s %s", r.quote(fk.ConstraintName()), r.foreignKeyClause(fk, "RESTRICT")))}

	case migration.DropForeignKey:
		fk := prev.ForeignKey(st.ForeignKeyID)
		return []string{r.alterTable(fk.ConstrainedTable(), "DROP CONSTRAINT "+r.quote(fk.ConstraintName()))}

	case migration.RenameForeignKey:
		p, n := prev.ForeignKey(st.ForeignKeyIDs.Previous), next.ForeignKey(st.ForeignKeyIDs.Next)
		return []string{r.alterTable(n.ConstrainedTable(),
			fmt.Sprintf("RENAME CONSTRAINT %s TO %s", r.quote(p.ConstraintName()), r.quote(n.ConstraintName())))}

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

func (r *PostgresRenderer) alterColumn(st migration.AlterColumn, schemas migration.Schemas) []string {
	prevCol := schemas.Previous.Column(st.ColumnIDs.Previous)
	col := schemas.Next.Column(st.ColumnIDs.Next)
	t := schemas.Next.Table(st.TableIDs.Next)
	name := r.quote(col.Name())

	var clauses []string
	var after []string

	if st.Changes.TypeChanged() {
		typ := r.ColumnType(col)
		if col.IsAutoIncrement() && !r.cockroach {
			typ = r.familyType(col.Type().Family)
		}
		if r.cockroach {
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s SET DATA TYPE %s", name, typ))
		} else {
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s SET DATA TYPE %s USING (%s::%s)", name, typ, name, typ))
		}
	}
	if st.Changes.ArityChanged() {
		if col.Arity().IsRequired() {
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s SET NOT NULL", name))
		} else {
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s DROP NOT NULL", name))
		}
	}
	if st.Changes.DefaultChanged() && !st.Changes.AutoIncrementChanged() {
		if def := r.renderDefault(col); def != "" {
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s SET DEFAULT %s", name, def))
		} else {
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s DROP DEFAULT", name))
		}
	}
	if st.Changes.AutoIncrementChanged() {
		switch {
		case col.IsAutoIncrement() && r.cockroach:
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s SET DEFAULT unique_rowid()", name))
		case col.IsAutoIncrement():
			seq := fmt.Sprintf("%s_%s_seq", t.Name(), col.Name())
			before := fmt.Sprintf("CREATE SEQUENCE %s", r.qualified(t.Namespace(), seq))
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s SET DEFAULT nextval(%s)", name, quoteString(r.qualified(t.Namespace(), seq))))
			after = append(after, fmt.Sprintf("ALTER SEQUENCE %s OWNED BY %s.%s", r.qualified(t.Namespace(), seq), r.table(t), name))
			stmts := []string{before, r.alterTable(t, clauses...)}
			return append(stmts, after...)
		case prevCol.IsAutoIncrement():
			clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s DROP DEFAULT", name))
			if def := r.renderDefault(col); def != "" {
				clauses = append(clauses, fmt.Sprintf("ALTER COLUMN %s SET DEFAULT %s", name, def))
			}
		}
	}
	if len(clauses) == 0 {
		return nil
	}
	if r.cockroach {
		// Cockroach refuses several column changes in one ALTER TABLE.
		stmts := make([]string, len(clauses))
		for i, c := range clauses {
			stmts[i] = r.alterTable(t, c)
		}
		return stmts
	}
	return append([]string{r.alterTable(t, clauses...)}, after...)
}

// alterEnum adds variants in place. Removing variants builds a new type, moves
// every column over and swaps the names.
func (r *PostgresRenderer) alterEnum(st migration.AlterEnum, schemas migration.Schemas) []string {
	prevEnum := schemas.Previous.Enum(st.EnumIDs.Previous)
	nextEnum := schemas.Next.Enum(st.EnumIDs.Next)
	enumName := r.qualified(nextEnum.Namespace(), nextEnum.Name())

	if len(st.DroppedVariants) == 0 || r.cockroach {
		var stmts []string
		for _, v := range st.CreatedVariants {
			stmts = append(stmts, fmt.Sprintf("ALTER TYPE %s ADD VALUE %s", enumName, quoteString(v)))
		}
		for _, v := range st.DroppedVariants {
			stmts = append(stmts, fmt.Sprintf("ALTER TYPE %s DROP VALUE %s", enumName, quoteString(v)))
		}
		return r.withDefaultsMoved(st, schemas, stmts)
	}

	tmpName := r.qualified(nextEnum.Namespace(), nextEnum.Name()+"_new")
	oldName := nextEnum.Name() + "_old"
	stmts := []string{fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", tmpName, quoteVariants(nextEnum.Variants()))}
	for _, col := range prevEnum.UsedBy() {
		t := col.Table()
		name := r.quote(col.Name())
		cast := fmt.Sprintf("%s::text::%s", name, tmpName)
		typ := tmpName
		if col.Arity().IsList() {
			cast = fmt.Sprintf("%s::text[]::%s[]", name, tmpName)
			typ += "[]"
		}
		stmts = append(stmts, r.alterTable(t, fmt.Sprintf("ALTER COLUMN %s TYPE %s USING (%s)", name, typ, cast)))
	}
	stmts = append(stmts,
		fmt.Sprintf("ALTER TYPE %s RENAME TO %s", enumName, r.quote(oldName)),
		fmt.Sprintf("ALTER TYPE %s RENAME TO %s", tmpName, r.quote(nextEnum.Name())),
		"DROP TYPE "+r.qualified(nextEnum.Namespace(), oldName),
	)
	return r.withDefaultsMoved(st, schemas, stmts)
}

// withDefaultsMoved drops defaults that use a removed variant before stmts and
// restores the next schema's defaults afterwards.
func (r *PostgresRenderer) withDefaultsMoved(st migration.AlterEnum, schemas migration.Schemas, stmts []string) []string {
	var before, after []string
	for _, usage := range st.PreviousUsagesAsDefault {
		col := schemas.Previous.Column(usage.Previous)
		before = append(before, r.alterTable(col.Table(), fmt.Sprintf("ALTER COLUMN %s DROP DEFAULT", r.quote(col.Name()))))
		if usage.Next == nil {
			continue
		}
		nextCol := schemas.Next.Column(*usage.Next)
		if def := r.renderDefault(nextCol); def != "" {
			after = append(after, r.alterTable(nextCol.Table(), fmt.Sprintf("ALTER COLUMN %s SET DEFAULT %s", r.quote(nextCol.Name()), def)))
		}
	}
	out := append(before, stmts...)
	return append(out, after...)
}

// redefineTables rebuilds tables by copy. Only CockroachDB asks for this, when
// a primary key cannot be changed in place.
func (r *PostgresRenderer) redefineTables(st migration.RedefineTables, schemas migration.Schemas) []string {
	var stmts []string
	for _, rt := range st.Tables {
		prevTable := schemas.Previous.Table(rt.TableIDs.Previous)
		nextTable := schemas.Next.Table(rt.TableIDs.Next)
		tmp := r.qualified(nextTable.Namespace(), "_new_"+nextTable.Name())

		stmts = append(stmts, r.createTable(nextTable, tmp))
		if cols, exprs := copyColumns(rt, schemas, r.quote, r.renderDefault); len(cols) > 0 {
			stmts = append(stmts, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
				tmp, strings.Join(cols, ", "), strings.Join(exprs, ", "), r.table(prevTable)))
		}
		stmts = append(stmts,
			"DROP TABLE "+r.table(prevTable)+" CASCADE",
			fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tmp, r.quote(nextTable.Name())))
		for _, idx := range nextTable.SecondaryIndexes() {
			stmts = append(stmts, r.createIndex(idx))
		}
		for _, fk := range nextTable.ForeignKeys() {
			stmts = append(stmts, r.alterTable(nextTable,
				fmt.Sprintf("ADD CONSTRAINT %s %s", r.quote(fk.ConstraintName()), r.foreignKeyClause(fk, "RESTRICT"))))
		}
	}
	return stmts
}

// copyColumns builds the column list and select expressions that carry data
// from the old table into its rebuilt version. Columns that became required
// fall back to their new default.
func copyColumns(rt migration.RedefineTable, schemas migration.Schemas, quote func(string) string, renderDefault func(schema.ColumnWalker) string) (cols, exprs []string) {
	for _, cp := range rt.ColumnPairs {
		if cp.TypeChange == migration.NotCastable {
			continue
		}
		prevCol := schemas.Previous.Column(cp.ColumnIDs.Previous)
		nextCol := schemas.Next.Column(cp.ColumnIDs.Next)
		cols = append(cols, quote(nextCol.Name()))

		expr := quote(prevCol.Name())
		if prevCol.Arity().IsNullable() && nextCol.Arity().IsRequired() {
			if def := renderDefault(nextCol); def != "" {
				expr = fmt.Sprintf("coalesce(%s, %s) AS %s", quote(prevCol.Name()), def, quote(nextCol.Name()))
			}
		}
		exprs = append(exprs, expr)
	}
	return cols, exprs
}

func quoteVariants(variants []string) string {
	quoted := make([]string, len(variants))
	for i, v := range variants {
		quoted[i] = quoteString(v)
	}
	return strings.Join(quoted, ", ")
}
