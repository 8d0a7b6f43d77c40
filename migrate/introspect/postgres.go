package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// PostgresDescriber describes PostgreSQL databases from information_schema and
// pg_catalog.
type PostgresDescriber struct {
	db Queryer
	// cockroach hides the implicit rowid column and its primary key.
	cockroach bool
}

// Version implements Describer.
func (d *PostgresDescriber) Version(ctx context.Context) (string, error) {
	var v string
	if err := d.db.QueryRowContext(ctx, "SELECT version()").Scan(&v); err != nil {
		return "", fmt.Errorf("failed to query server version: %w", err)
	}
	return v, nil
}

func (d *PostgresDescriber) dialect() schema.Dialect {
	if d.cockroach {
		return schema.CockroachDB
	}
	return schema.Postgres
}

// Describe implements Describer.
func (d *PostgresDescriber) Describe(ctx context.Context, namespaces []string) (*schema.Schema, error) {
	if len(namespaces) == 0 {
		namespaces = []string{"public"}
	}
	b := schema.NewBuilder(d.dialect())

	// Tables first: foreign keys may cross namespaces.
	for _, ns := range namespaces {
		b.AddNamespace(ns)
		if err := d.describeEnums(ctx, b, ns); err != nil {
			return nil, fmt.Errorf("failed to describe enums: %w", err)
		}
		if err := d.describeTables(ctx, b, ns); err != nil {
			return nil, fmt.Errorf("failed to describe tables: %w", err)
		}
		if err := d.describeColumns(ctx, b, ns); err != nil {
			return nil, fmt.Errorf("failed to describe columns: %w", err)
		}
		if err := d.describeIndexes(ctx, b, ns); err != nil {
			return nil, fmt.Errorf("failed to describe indexes: %w", err)
		}
		if err := d.describeViews(ctx, b, ns); err != nil {
			return nil, fmt.Errorf("failed to describe views: %w", err)
		}
	}
	for _, ns := range namespaces {
		if err := d.describeForeignKeys(ctx, b, ns); err != nil {
			return nil, fmt.Errorf("failed to describe foreign keys: %w", err)
		}
	}
	return b.Build(), nil
}

func (d *PostgresDescriber) describeTables(ctx context.Context, b *schema.Builder, ns string) error {
	query := `
		SELECT c.relname, COALESCE(obj_description(c.oid, 'pg_class'), '')
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND c.relkind IN ('r', 'p')
		  AND NOT c.relispartition
		ORDER BY c.relname
	`
	if d.cockroach {
		// CockroachDB has no partitions in pg_class.
		query = strings.Replace(query, "AND NOT c.relispartition", "", 1)
	}

	rows, err := d.db.QueryContext(ctx, query, ns)
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

func (d *PostgresDescriber) describeEnums(ctx context.Context, b *schema.Builder, ns string) error {
	query := `
		SELECT t.typname, e.enumlabel
		FROM pg_type t
		JOIN pg_enum e ON t.oid = e.enumtypid
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = $1
		ORDER BY t.typname, e.enumsortorder
	`
	rows, err := d.db.QueryContext(ctx, query, ns)
	if err != nil {
		return fmt.Errorf("failed to query enums: %w", err)
	}
	defer rows.Close()

	var current string
	var variants []string
	flush := func() {
		if current != "" {
			b.AddEnum(ns, current, variants...)
		}
	}
	for rows.Next() {
		var name, label string
		if err := rows.Scan(&name, &label); err != nil {
			return fmt.Errorf("failed to scan enum: %w", err)
		}
		if name != current {
			flush()
			current, variants = name, nil
		}
		variants = append(variants, label)
	}
	flush()
	return closeRows(rows, "enums")
}

func (d *PostgresDescriber) describeColumns(ctx context.Context, b *schema.Builder, ns string) error {
	query := `
		SELECT
			c.table_name,
			c.column_name,
			c.data_type,
			c.udt_name,
			c.is_nullable,
			c.column_default,
			c.character_maximum_length,
			c.numeric_precision,
			c.numeric_scale,
			c.datetime_precision,
			c.is_identity,
			COALESCE(col_description(format('%I.%I', c.table_schema, c.table_name)::regclass, c.ordinal_position), '')
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = $1
		  AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position
	`
	rows, err := d.db.QueryContext(ctx, query, ns)
	if err != nil {
		return fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tableName, name, dataType, udtName, isNullable, isIdentity, comment string
			defaultValue                                                        sql.NullString
			maxLength, precision, scale, timePrecision                          sql.NullInt64
		)
		if err := rows.Scan(&tableName, &name, &dataType, &udtName, &isNullable, &defaultValue,
			&maxLength, &precision, &scale, &timePrecision, &isIdentity, &comment); err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}
		t, ok := b.FindTable(ns, tableName)
		if !ok {
			continue
		}

		col := schema.Column{Name: name, Description: comment}
		col.Type = postgresColumnType(b.Peek(), ns, dataType, udtName, maxLength, precision, scale, timePrecision)
		if isNullable == "YES" && !col.Type.Arity.IsList() {
			col.Type.Arity = schema.Nullable
		}
		col.AutoIncrement = isIdentity == "YES"
		if defaultValue.Valid {
			col.Default = postgresDefault(defaultValue.String, col.Type)
			if col.Default != nil && col.Default.Kind == schema.DefaultSequence {
				col.AutoIncrement = true
			}
		}

		if d.cockroach && name == "rowid" && col.Default != nil && col.Default.Kind == schema.DefaultUniqueRowID {
			continue
		}
		b.AddColumn(t, col)
	}
	return closeRows(rows, "columns")
}

// postgresColumnType maps a catalog type to the schema model. The native type
// keeps the catalog's udt name so renderers and comparisons see what the
// database sees.
func postgresColumnType(s *schema.Schema, ns, dataType, udtName string, maxLength, precision, scale, timePrecision sql.NullInt64) schema.ColumnType {
	var t schema.ColumnType
	if dataType == "ARRAY" {
		t.Arity = schema.List
		udtName = strings.TrimPrefix(udtName, "_")
	}
	t.FullDataType = udtName

	native := &schema.NativeType{Name: udtName}
	switch udtName {
	case "int2", "int4":
		t.Family = schema.FamilyInt
	case "int8":
		t.Family = schema.FamilyBigInt
	case "float4", "float8":
		t.Family = schema.FamilyFloat
	case "numeric", "money":
		t.Family = schema.FamilyDecimal
		if precision.Valid && udtName == "numeric" {
			native.Args = []string{strconv.FormatInt(precision.Int64, 10), strconv.FormatInt(scale.Int64, 10)}
		}
	case "bool":
		t.Family = schema.FamilyBoolean
	case "varchar", "bpchar", "bit", "varbit":
		t.Family = schema.FamilyString
		if maxLength.Valid {
			native.Args = []string{strconv.FormatInt(maxLength.Int64, 10)}
		}
	case "text", "citext", "xml", "inet", "name":
		t.Family = schema.FamilyString
	case "timestamp", "timestamptz", "time", "timetz":
		t.Family = schema.FamilyDateTime
		if timePrecision.Valid {
			native.Args = []string{strconv.FormatInt(timePrecision.Int64, 10)}
		}
	case "date":
		t.Family = schema.FamilyDateTime
	case "json", "jsonb":
		t.Family = schema.FamilyJSON
	case "uuid":
		t.Family = schema.FamilyUUID
	case "bytea":
		t.Family = schema.FamilyBinary
	default:
		if _, ok := s.FindEnum(ns, udtName); ok {
			return schema.ColumnType{Family: schema.FamilyEnum, EnumName: udtName, FullDataType: udtName, Arity: t.Arity}
		}
		t.Family = schema.FamilyUnsupported
		native = nil
	}
	t.Native = native
	return t
}

var (
	postgresCast     = regexp.MustCompile(`^(.*?)::[\w\s."\[\]]+(\(\d+(,\s*\d+)?\))?(\[\])?$`)
	postgresSequence = regexp.MustCompile(`^nextval\('(?:"?[\w]+"?\.)?"?([^"']+)"?'::regclass\)$`)
)

// postgresDefault interprets a column_default expression.
func postgresDefault(raw string, t schema.ColumnType) *schema.ColumnDefault {
	s := strings.TrimSpace(raw)
	if m := postgresSequence.FindStringSubmatch(s); m != nil {
		return schema.SequenceDefault(m[1])
	}
	if strings.EqualFold(s, "unique_rowid()") {
		return &schema.ColumnDefault{Kind: schema.DefaultUniqueRowID}
	}
	if isNowFunction(s) {
		return schema.NowDefault()
	}

	value := s
	for {
		m := postgresCast.FindStringSubmatch(value)
		if m == nil {
			break
		}
		value = strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(value, "'") || strings.EqualFold(value, "true") || strings.EqualFold(value, "false") ||
		strings.EqualFold(value, "null") || isNumber(strings.Trim(value, "()")) {
		d := literalDefault(value, t)
		if d != nil && d.Kind == schema.DefaultDBGenerated {
			d.Expression = raw
		}
		return d
	}
	return schema.DBGeneratedDefault(raw)
}

func (d *PostgresDescriber) describeIndexes(ctx context.Context, b *schema.Builder, ns string) error {
	query := `
		SELECT
			t.relname,
			i.relname,
			ix.indisprimary,
			ix.indisunique,
			am.amname,
			a.attname,
			COALESCE((ix.indoption[k.ord - 1] & 1) = 1, false),
			CASE WHEN opc.opcdefault THEN '' ELSE COALESCE(opc.opcname, '') END
		FROM pg_index ix
		JOIN pg_class t ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_am am ON am.oid = i.relam
		JOIN pg_namespace n ON n.oid = t.relnamespace
		CROSS JOIN LATERAL unnest(ix.indkey::int2[], ix.indclass::oid[]) WITH ORDINALITY AS k(attnum, opclass, ord)
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		LEFT JOIN pg_opclass opc ON opc.oid = k.opclass
		WHERE n.nspname = $1
		  AND ix.indexprs IS NULL
		  AND ix.indpred IS NULL
		ORDER BY t.relname, i.relname, k.ord
	`
	rows, err := d.db.QueryContext(ctx, query, ns)
	if err != nil {
		return fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	var out []indexRow
	for rows.Next() {
		var r indexRow
		var primary, unique, desc bool
		if err := rows.Scan(&r.table, &r.name, &primary, &unique, &r.algorithm, &r.column, &desc, &r.opclass); err != nil {
			return fmt.Errorf("failed to scan index: %w", err)
		}
		switch {
		case primary:
			r.typ = schema.IndexPrimaryKey
		case unique:
			r.typ = schema.IndexUnique
		}
		if desc {
			r.sortOrder = schema.Desc
		}
		if strings.EqualFold(r.algorithm, "btree") || (d.cockroach && strings.EqualFold(r.algorithm, "prefix")) {
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

var postgresActions = map[string]schema.ReferentialAction{
	"a": schema.NoAction,
	"r": schema.Restrict,
	"c": schema.Cascade,
	"n": schema.SetNull,
	"d": schema.SetDefault,
}

func (d *PostgresDescriber) describeForeignKeys(ctx context.Context, b *schema.Builder, ns string) error {
	query := `
		SELECT
			con.conname,
			cl.relname,
			a.attname,
			rn.nspname,
			rc.relname,
			ra.attname,
			con.confdeltype::text,
			con.confupdtype::text
		FROM pg_constraint con
		JOIN pg_class cl ON cl.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = cl.relnamespace
		JOIN pg_class rc ON rc.oid = con.confrelid
		JOIN pg_namespace rn ON rn.oid = rc.relnamespace
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, refattnum, ord)
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
		JOIN pg_attribute ra ON ra.attrelid = con.confrelid AND ra.attnum = k.refattnum
		WHERE con.contype = 'f'
		  AND n.nspname = $1
		ORDER BY cl.relname, con.conname, k.ord
	`
	rows, err := d.db.QueryContext(ctx, query, ns)
	if err != nil {
		return fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	var out []foreignKeyRow
	for rows.Next() {
		r := foreignKeyRow{namespace: ns}
		var onDelete, onUpdate string
		if err := rows.Scan(&r.name, &r.table, &r.column, &r.refNamespace, &r.refTable, &r.refColumn, &onDelete, &onUpdate); err != nil {
			return fmt.Errorf("failed to scan foreign key: %w", err)
		}
		r.onDelete, r.onUpdate = postgresActions[onDelete], postgresActions[onUpdate]
		out = append(out, r)
	}
	if err := closeRows(rows, "foreign keys"); err != nil {
		return err
	}
	addForeignKeys(b, out)
	return nil
}

func (d *PostgresDescriber) describeViews(ctx context.Context, b *schema.Builder, ns string) error {
	query := `
		SELECT table_name, COALESCE(view_definition, '')
		FROM information_schema.views
		WHERE table_schema = $1
		ORDER BY table_name
	`
	rows, err := d.db.QueryContext(ctx, query, ns)
	if err != nil {
		return fmt.Errorf("failed to query views: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, definition string
		if err := rows.Scan(&name, &definition); err != nil {
			return fmt.Errorf("failed to scan view: %w", err)
		}
		b.AddView(ns, name, strings.TrimSpace(definition))
	}
	return closeRows(rows, "views")
}
