package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// SQLiteDescriber describes SQLite databases from sqlite_master and the
// table-valued PRAGMA functions. SQLite has a single, unnamed namespace.
type SQLiteDescriber struct {
	db Queryer
}

// Version implements Describer.
func (d *SQLiteDescriber) Version(ctx context.Context) (string, error) {
	var v string
	if err := d.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&v); err != nil {
		return "", fmt.Errorf("failed to query sqlite version: %w", err)
	}
	return v, nil
}

type sqliteTable struct {
	id   schema.TableID
	name string
	sql  string
}

// Describe implements Describer. Namespaces are ignored.
func (d *SQLiteDescriber) Describe(ctx context.Context, _ []string) (*schema.Schema, error) {
	b := schema.NewBuilder(schema.SQLite)

	tables, err := d.describeTables(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to describe tables: %w", err)
	}
	for _, t := range tables {
		if err := d.describeColumns(ctx, b, t); err != nil {
			return nil, fmt.Errorf("failed to describe columns of %s: %w", t.name, err)
		}
		if err := d.describeIndexes(ctx, b, t); err != nil {
			return nil, fmt.Errorf("failed to describe indexes of %s: %w", t.name, err)
		}
	}
	for _, t := range tables {
		if err := d.describeForeignKeys(ctx, b, t); err != nil {
			return nil, fmt.Errorf("failed to describe foreign keys of %s: %w", t.name, err)
		}
	}
	if err := d.describeViews(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to describe views: %w", err)
	}
	return b.Build(), nil
}

func (d *SQLiteDescriber) describeTables(ctx context.Context, b *schema.Builder) ([]sqliteTable, error) {
	query := `
		SELECT name, COALESCE(sql, '')
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []sqliteTable
	for rows.Next() {
		var t sqliteTable
		if err := rows.Scan(&t.name, &t.sql); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		t.id = b.AddTable("", t.name)
		tables = append(tables, t)
	}
	return tables, closeRows(rows, "tables")
}

var sqliteAutoincrement = regexp.MustCompile(`(?i)\bAUTOINCREMENT\b`)

func (d *SQLiteDescriber) describeColumns(ctx context.Context, b *schema.Builder, t sqliteTable) error {
	rows, err := d.db.QueryContext(ctx, `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, t.name)
	if err != nil {
		return fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	type pkColumn struct {
		id  schema.ColumnID
		pos int
	}
	var pk []pkColumn
	for rows.Next() {
		var (
			name, declared string
			notNull, pkPos int
			dflt           sql.NullString
		)
		if err := rows.Scan(&name, &declared, &notNull, &dflt, &pkPos); err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}

		col := schema.Column{Name: name, Type: sqliteColumnType(declared)}
		if notNull == 0 && pkPos == 0 {
			col.Type.Arity = schema.Nullable
		}
		if dflt.Valid {
			col.Default = literalDefault(dflt.String, col.Type)
		}
		id := b.AddColumn(t.id, col)
		if pkPos > 0 {
			pk = append(pk, pkColumn{id: id, pos: pkPos})
		}
	}
	if err := closeRows(rows, "columns"); err != nil {
		return err
	}

	if len(pk) == 0 {
		return nil
	}
	sort.Slice(pk, func(i, j int) bool { return pk[i].pos < pk[j].pos })
	ids := make([]schema.ColumnID, len(pk))
	for i, c := range pk {
		ids[i] = c.id
	}
	b.SetPrimaryKey(t.id, t.name+"_pkey", ids...)

	// AUTOINCREMENT is only legal on a single INTEGER PRIMARY KEY.
	if len(ids) == 1 && sqliteAutoincrement.MatchString(t.sql) {
		if c := b.Column(ids[0]); strings.EqualFold(c.Type.FullDataType, "integer") {
			c.AutoIncrement = true
		}
	}
	return nil
}

// sqliteColumnType maps a declared type to the schema model, following the
// affinity rules of SQLite for names the model has no family for.
func sqliteColumnType(declared string) schema.ColumnType {
	upper := strings.ToUpper(strings.TrimSpace(declared))
	base := upper
	if i := strings.IndexByte(base, '('); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	t := schema.ColumnType{FullDataType: declared}

	switch {
	case base == "BIGINT" || base == "INT8" || base == "UNSIGNED BIG INT":
		t.Family = schema.FamilyBigInt
	case base == "BOOLEAN" || base == "BOOL":
		t.Family = schema.FamilyBoolean
	case base == "DATETIME" || base == "DATE" || base == "TIMESTAMP":
		t.Family = schema.FamilyDateTime
	case base == "JSON" || base == "JSONB":
		t.Family = schema.FamilyJSON
	case base == "DECIMAL" || base == "NUMERIC":
		t.Family = schema.FamilyDecimal
	case strings.Contains(base, "INT"):
		t.Family = schema.FamilyInt
	case strings.Contains(base, "CHAR"), strings.Contains(base, "CLOB"), strings.Contains(base, "TEXT"):
		t.Family = schema.FamilyString
	case strings.Contains(base, "BLOB"):
		t.Family = schema.FamilyBinary
	case strings.Contains(base, "REAL"), strings.Contains(base, "FLOA"), strings.Contains(base, "DOUB"):
		t.Family = schema.FamilyFloat
	default:
		t.Family = schema.FamilyUnsupported
		return t
	}
	t.Native = &schema.NativeType{Name: strings.ToLower(base), Args: typeArguments(upper)}
	return t
}

func (d *SQLiteDescriber) describeIndexes(ctx context.Context, b *schema.Builder, t sqliteTable) error {
	rows, err := d.db.QueryContext(ctx, `SELECT name, "unique", origin, partial FROM pragma_index_list(?) ORDER BY name`, t.name)
	if err != nil {
		return fmt.Errorf("failed to query indexes: %w", err)
	}
	indexes, err := scanSQLiteIndexList(rows)
	if err != nil {
		return err
	}

	var out []indexRow
	for _, idx := range indexes {
		cols, err := d.indexColumns(ctx, idx.name)
		if err != nil {
			return err
		}
		for _, c := range cols {
			c.table, c.name = t.name, idx.name
			if idx.unique {
				c.typ = schema.IndexUnique
			}
			out = append(out, c)
		}
	}
	addIndexes(b, "", out)
	return nil
}

type sqliteIndex struct {
	name   string
	unique bool
}

// scanSQLiteIndexList drains rows before the per-index queries run; an open
// cursor would pin the single connection of an in-memory database.
func scanSQLiteIndexList(rows *sql.Rows) ([]sqliteIndex, error) {
	defer rows.Close()

	var indexes []sqliteIndex
	for rows.Next() {
		var name, origin string
		var unique, partial int
		if err := rows.Scan(&name, &unique, &origin, &partial); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		// Primary keys come from table_info; partial indexes are not modelled.
		if origin == "pk" || partial == 1 {
			continue
		}
		indexes = append(indexes, sqliteIndex{name: name, unique: unique == 1})
	}
	return indexes, closeRows(rows, "indexes")
}

func (d *SQLiteDescriber) indexColumns(ctx context.Context, index string) ([]indexRow, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT COALESCE(name, ''), "desc" FROM pragma_index_xinfo(?) WHERE "key" = 1 ORDER BY seqno`, index)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of index %s: %w", index, err)
	}
	defer rows.Close()

	var out []indexRow
	for rows.Next() {
		var r indexRow
		var desc int
		if err := rows.Scan(&r.column, &desc); err != nil {
			return nil, fmt.Errorf("failed to scan index column: %w", err)
		}
		if desc == 1 {
			r.sortOrder = schema.Desc
		}
		out = append(out, r)
	}
	return out, closeRows(rows, "index columns")
}

var sqliteNamedForeignKey = regexp.MustCompile(`(?i)CONSTRAINT\s+["` + "`" + `\[]?([^"` + "`" + `\]\s]+)["` + "`" + `\]]?\s+FOREIGN\s+KEY\s*\(([^)]*)\)`)

// sqliteForeignKeyNames recovers constraint names from the CREATE TABLE
// statement, keyed by the comma-joined constrained columns.
func sqliteForeignKeyNames(createSQL string) map[string]string {
	names := map[string]string{}
	for _, m := range sqliteNamedForeignKey.FindAllStringSubmatch(createSQL, -1) {
		var cols []string
		for _, c := range strings.Split(m[2], ",") {
			cols = append(cols, strings.Trim(strings.TrimSpace(c), "\"`[]"))
		}
		names[strings.Join(cols, ",")] = m[1]
	}
	return names
}

func (d *SQLiteDescriber) describeForeignKeys(ctx context.Context, b *schema.Builder, t sqliteTable) error {
	query := `SELECT id, seq, "table", "from", COALESCE("to", ''), on_update, on_delete FROM pragma_foreign_key_list(?) ORDER BY id, seq`
	rows, err := d.db.QueryContext(ctx, query, t.name)
	if err != nil {
		return fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	type fk struct {
		id   int
		rows []foreignKeyRow
	}
	var fks []*fk
	for rows.Next() {
		var id, seq int
		r := foreignKeyRow{table: t.name}
		var onUpdate, onDelete string
		if err := rows.Scan(&id, &seq, &r.refTable, &r.column, &r.refColumn, &onUpdate, &onDelete); err != nil {
			return fmt.Errorf("failed to scan foreign key: %w", err)
		}
		r.onDelete, r.onUpdate = schema.ParseReferentialAction(onDelete), schema.ParseReferentialAction(onUpdate)
		if len(fks) == 0 || fks[len(fks)-1].id != id {
			fks = append(fks, &fk{id: id})
		}
		cur := fks[len(fks)-1]
		cur.rows = append(cur.rows, r)
	}
	if err := closeRows(rows, "foreign keys"); err != nil {
		return err
	}

	names := sqliteForeignKeyNames(t.sql)
	for _, f := range fks {
		cols := make([]string, len(f.rows))
		for i, r := range f.rows {
			cols[i] = r.column
		}
		name := names[strings.Join(cols, ",")]
		for i := range f.rows {
			f.rows[i].name = name
			// An omitted column list references the primary key.
			if f.rows[i].refColumn == "" {
				f.rows[i].refColumn = referencedPrimaryKeyColumn(b, f.rows[i].refTable, i)
			}
		}
		addForeignKey(b, f.rows)
	}
	return nil
}

func referencedPrimaryKeyColumn(b *schema.Builder, table string, i int) string {
	t, ok := b.Peek().FindTable("", table)
	if !ok {
		return ""
	}
	pk, ok := t.PrimaryKey()
	if !ok {
		return ""
	}
	names := pk.ColumnNames()
	if i >= len(names) {
		return ""
	}
	return names[i]
}

func (d *SQLiteDescriber) describeViews(ctx context.Context, b *schema.Builder) error {
	rows, err := d.db.QueryContext(ctx, `SELECT name, COALESCE(sql, '') FROM sqlite_master WHERE type = 'view' ORDER BY name`)
	if err != nil {
		return fmt.Errorf("failed to query views: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, createSQL string
		if err := rows.Scan(&name, &createSQL); err != nil {
			return fmt.Errorf("failed to scan view: %w", err)
		}
		b.AddView("", name, viewBody(createSQL))
	}
	return closeRows(rows, "views")
}
