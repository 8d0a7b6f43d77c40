package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// MySQLDescriber describes MySQL and MariaDB databases from information_schema.
// Namespaces are databases. Enum columns become enums named {table}_{column}.
type MySQLDescriber struct {
	db Queryer
}

// Version implements Describer.
func (d *MySQLDescriber) Version(ctx context.Context) (string, error) {
	var v string
	if err := d.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&v); err != nil {
		return "", fmt.Errorf("failed to query server version: %w", err)
	}
	return v, nil
}

// Describe implements Describer.
func (d *MySQLDescriber) Describe(ctx context.Context, namespaces []string) (*schema.Schema, error) {
	if len(namespaces) == 0 {
		var current sql.NullString
		if err := d.db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&current); err != nil {
			return nil, fmt.Errorf("failed to get database name: %w", err)
		}
		if !current.Valid {
			return nil, fmt.Errorf("no database selected")
		}
		namespaces = []string{current.String}
	}

	// A single database maps to the empty namespace so schemas compare with
	// declared ones, which never name the database.
	qualify := len(namespaces) > 1
	b := schema.NewBuilder(schema.MySQL)
	for _, db := range namespaces {
		ns := ""
		if qualify {
			ns = db
			b.AddNamespace(ns)
		}
		if err := d.describeTables(ctx, b, db, ns); err != nil {
			return nil, fmt.Errorf("failed to describe tables: %w", err)
		}
		if err := d.describeColumns(ctx, b, db, ns); err != nil {
			return nil, fmt.Errorf("failed to describe columns: %w", err)
		}
		if err := d.describeIndexes(ctx, b, db, ns); err != nil {
			return nil, fmt.Errorf("failed to describe indexes: %w", err)
		}
		if err := d.describeViews(ctx, b, db, ns); err != nil {
			return nil, fmt.Errorf("failed to describe views: %w", err)
		}
	}
	for _, db := range namespaces {
		ns := ""
		if qualify {
			ns = db
		}
		if err := d.describeForeignKeys(ctx, b, db, ns, qualify); err != nil {
			return nil, fmt.Errorf("failed to describe foreign keys: %w", err)
		}
	}
	return b.Build(), nil
}

func (d *MySQLDescriber) describeTables(ctx context.Context, b *schema.Builder, db, ns string) error {
	query := `
		SELECT table_name, COALESCE(table_comment, '')
		FROM information_schema.tables
		WHERE table_schema = ?
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	rows, err := d.db.QueryContext(ctx, query, db)
	if err != nil {
		return fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, comment string
		if err := rows.Scan(&name, &comment); err != nil {
			return fmt.Errorf("failed to scan table: %w", err)
		}
		t := b.AddTable(ns, name)
		if comment != "" {
			b.SetTableComment(t, comment)
		}
	}
	return closeRows(rows, "tables")
}

func (d *MySQLDescriber) describeColumns(ctx context.Context, b *schema.Builder, db, ns string) error {
	query := `
		SELECT
			c.table_name,
			c.column_name,
			c.data_type,
			c.column_type,
			c.is_nullable,
			c.column_default,
			c.extra,
			COALESCE(c.column_comment, '')
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = ?
		  AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position
	`
	rows, err := d.db.QueryContext(ctx, query, db)
	if err != nil {
		return fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tableName, name, dataType, columnType, isNullable, extra, comment string
			defaultValue                                                      sql.NullString
		)
		if err := rows.Scan(&tableName, &name, &dataType, &columnType, &isNullable, &defaultValue, &extra, &comment); err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}
		t, ok := b.FindTable(ns, tableName)
		if !ok {
			continue
		}

		col := schema.Column{Name: name, Description: comment}
		col.Type = mysqlColumnType(dataType, columnType)
		if col.Type.Family == schema.FamilyEnum {
			col.Type.EnumName = tableName + "_" + name
			b.AddEnum(ns, col.Type.EnumName, enumVariants(columnType)...)
		}
		if isNullable == "YES" {
			col.Type.Arity = schema.Nullable
		}
		col.AutoIncrement = strings.Contains(strings.ToLower(extra), "auto_increment")
		if defaultValue.Valid {
			col.Default = mysqlDefault(defaultValue.String, extra, col.Type)
		}
		b.AddColumn(t, col)
	}
	return closeRows(rows, "columns")
}

// mysqlColumnType maps information_schema data_type and column_type to the
// schema model.
func mysqlColumnType(dataType, columnType string) schema.ColumnType {
	dataType = strings.ToLower(dataType)
	lower := strings.ToLower(columnType)
	t := schema.ColumnType{FullDataType: columnType}

	name := dataType
	if strings.Contains(lower, "unsigned") {
		name = "unsigned" + dataType
	}
	native := &schema.NativeType{Name: name, Args: typeArguments(lower)}

	switch dataType {
	case "tinyint":
		if lower == "tinyint(1)" {
			t.Family = schema.FamilyBoolean
		} else {
			t.Family = schema.FamilyInt
		}
	case "int", "integer", "smallint", "mediumint", "year":
		t.Family = schema.FamilyInt
	case "bigint":
		t.Family = schema.FamilyBigInt
	case "float", "double", "real":
		t.Family = schema.FamilyFloat
	case "decimal", "numeric":
		t.Family = schema.FamilyDecimal
	case "char", "varchar", "text", "tinytext", "mediumtext", "longtext":
		t.Family = schema.FamilyString
	case "datetime", "timestamp", "date", "time":
		t.Family = schema.FamilyDateTime
	case "json":
		t.Family = schema.FamilyJSON
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob", "bit":
		t.Family = schema.FamilyBinary
	case "enum":
		t.Family = schema.FamilyEnum
		native = nil
	default:
		t.Family = schema.FamilyUnsupported
		native = nil
	}
	t.Native = native
	return t
}

// typeArguments returns the arguments of a type such as decimal(65,30).
func typeArguments(columnType string) []string {
	open := strings.IndexByte(columnType, '(')
	end := strings.IndexByte(columnType, ')')
	if open < 0 || end < open {
		return nil
	}
	var args []string
	for _, a := range strings.Split(columnType[open+1:end], ",") {
		args = append(args, strings.TrimSpace(a))
	}
	return args
}

// enumVariants parses enum('a','b''c') into its variants.
func enumVariants(columnType string) []string {
	open := strings.IndexByte(columnType, '(')
	end := strings.LastIndexByte(columnType, ')')
	if open < 0 || end < open {
		return nil
	}
	body := columnType[open+1 : end]

	var variants []string
	var cur strings.Builder
	quoted := false
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\'' && quoted && i+1 < len(body) && body[i+1] == '\'':
			cur.WriteByte('\'')
			i++
		case c == '\'':
			quoted = !quoted
			if !quoted {
				variants = append(variants, cur.String())
				cur.Reset()
			}
		case quoted:
			cur.WriteByte(c)
		}
	}
	return variants
}

// mysqlDefault interprets column_default. MySQL reports literals unquoted and
// marks expressions with DEFAULT_GENERATED; MariaDB quotes string literals and
// reports expressions verbatim.
func mysqlDefault(raw, extra string, t schema.ColumnType) *schema.ColumnDefault {
	if strings.Contains(strings.ToUpper(extra), "DEFAULT_GENERATED") {
		if isNowFunction(raw) {
			return schema.NowDefault()
		}
		return schema.DBGeneratedDefault(stripParens(raw))
	}
	if strings.HasPrefix(raw, "'") || strings.EqualFold(raw, "NULL") || isNowFunction(raw) {
		return literalDefault(raw, t)
	}

	switch t.Family {
	case schema.FamilyBoolean:
		if b, ok := parseBoolean(raw); ok {
			return schema.ValueDefault(schema.LiteralBoolean, b)
		}
	case schema.FamilyInt, schema.FamilyBigInt, schema.FamilyFloat, schema.FamilyDecimal:
		if isNumber(raw) {
			return schema.ValueDefault(schema.LiteralNumber, raw)
		}
		return schema.DBGeneratedDefault(raw)
	case schema.FamilyEnum:
		return schema.ValueDefault(schema.LiteralEnumVariant, raw)
	case schema.FamilyJSON:
		return schema.ValueDefault(schema.LiteralJSON, raw)
	case schema.FamilyBinary:
		return schema.ValueDefault(schema.LiteralBytes, raw)
	}
	return schema.ValueDefault(schema.LiteralString, raw)
}

func (d *MySQLDescriber) describeIndexes(ctx context.Context, b *schema.Builder, db, ns string) error {
	query := `
		SELECT
			s.table_name,
			s.index_name,
			s.non_unique,
			COALESCE(s.column_name, ''),
			COALESCE(s.sub_part, 0),
			COALESCE(s.collation, 'A'),
			s.index_type
		FROM information_schema.statistics s
		WHERE s.table_schema = ?
		ORDER BY s.table_name, s.index_name, s.seq_in_index
	`
	rows, err := d.db.QueryContext(ctx, query, db)
	if err != nil {
		return fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	var out []indexRow
	for rows.Next() {
		var r indexRow
		var nonUnique int
		var collation string
		if err := rows.Scan(&r.table, &r.name, &nonUnique, &r.column, &r.length, &collation, &r.algorithm); err != nil {
			return fmt.Errorf("failed to scan index: %w", err)
		}
		switch {
		case r.name == "PRIMARY":
			r.typ = schema.IndexPrimaryKey
		case strings.EqualFold(r.algorithm, "FULLTEXT"):
			r.typ = schema.IndexFulltext
		case nonUnique == 0:
			r.typ = schema.IndexUnique
		}
		if collation == "D" {
			r.sortOrder = schema.Desc
		}
		if strings.EqualFold(r.algorithm, "BTREE") || r.typ == schema.IndexFulltext {
			r.algorithm = ""
		}
		out = append(out, r)
	}
	if err := closeRows(rows, "indexes"); err != nil {
		return err
	}
	addIndexes(b, ns, out)
	return nil
}

func (d *MySQLDescriber) describeForeignKeys(ctx context.Context, b *schema.Builder, db, ns string, qualify bool) error {
	query := `
		SELECT
			kcu.constraint_name,
			kcu.table_name,
			kcu.column_name,
			kcu.referenced_table_schema,
			kcu.referenced_table_name,
			kcu.referenced_column_name,
			rc.delete_rule,
			rc.update_rule
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.referential_constraints rc
			ON kcu.constraint_name = rc.constraint_name
			AND kcu.constraint_schema = rc.constraint_schema
			AND kcu.table_name = rc.table_name
		WHERE kcu.table_schema = ?
		  AND kcu.referenced_table_name IS NOT NULL
		ORDER BY kcu.table_name, kcu.constraint_name, kcu.ordinal_position
	`
	rows, err := d.db.QueryContext(ctx, query, db)
	if err != nil {
		return fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	var out []foreignKeyRow
	for rows.Next() {
		r := foreignKeyRow{namespace: ns}
		var refSchema, onDelete, onUpdate string
		if err := rows.Scan(&r.name, &r.table, &r.column, &refSchema, &r.refTable, &r.refColumn, &onDelete, &onUpdate); err != nil {
			return fmt.Errorf("failed to scan foreign key: %w", err)
		}
		if qualify {
			r.refNamespace = refSchema
		} else if refSchema != db {
			// Outside the described database: leave it dangling.
			r.refNamespace, r.refTable = refSchema, refSchema+"."+r.refTable
		}
		r.onDelete, r.onUpdate = schema.ParseReferentialAction(onDelete), schema.ParseReferentialAction(onUpdate)
		out = append(out, r)
	}
	if err := closeRows(rows, "foreign keys"); err != nil {
		return err
	}
	addForeignKeys(b, out)
	return nil
}

func (d *MySQLDescriber) describeViews(ctx context.Context, b *schema.Builder, db, ns string) error {
	query := `
		SELECT table_name, COALESCE(view_definition, '')
		FROM information_schema.views
		WHERE table_schema = ?
		ORDER BY table_name
	`
	rows, err := d.db.QueryContext(ctx, query, db)
	if err != nil {
		return fmt.Errorf("failed to query views: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, definition string
		if err := rows.Scan(&name, &definition); err != nil {
			return fmt.Errorf("failed to scan view: %w", err)
		}
		b.AddView(ns, name, definition)
	}
	return closeRows(rows, "views")
}
