package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// MSSQLDescriber describes SQL Server databases through the sys catalog views.
type MSSQLDescriber struct {
	db Queryer
}

// Version implements Describer.
func (d *MSSQLDescriber) Version(ctx context.Context) (string, error) {
	var v string
	if err := d.db.QueryRowContext(ctx, "SELECT CAST(SERVERPROPERTY('ProductVersion') AS NVARCHAR(128))").Scan(&v); err != nil {
		return "", fmt.Errorf("failed to query server version: %w", err)
	}
	return v, nil
}

// Describe implements Describer.
func (d *MSSQLDescriber) Describe(ctx context.Context, namespaces []string) (*schema.Schema, error) {
	if len(namespaces) == 0 {
		namespaces = []string{schema.MSSQL.DefaultNamespace()}
	}
	b := schema.NewBuilder(schema.MSSQL)

	var fks []foreignKeyRow
	for _, ns := range namespaces {
		b.AddNamespace(ns)
		if err := d.describeTables(ctx, b, ns); err != nil {
			return nil, fmt.Errorf("failed to describe tables in %s: %w", ns, err)
		}
		if err := d.describeColumns(ctx, b, ns); err != nil {
			return nil, fmt.Errorf("failed to describe columns in %s: %w", ns, err)
		}
		if err := d.describeIndexes(ctx, b, ns); err != nil {
			return nil, fmt.Errorf("failed to describe indexes in %s: %w", ns, err)
		}
		if err := d.describeViews(ctx, b, ns); err != nil {
			return nil, fmt.Errorf("failed to describe views in %s: %w", ns, err)
		}
		rows, err := d.foreignKeys(ctx, ns)
		if err != nil {
			return nil, fmt.Errorf("failed to describe foreign keys in %s: %w", ns, err)
		}
		fks = append(fks, rows...)
	}
	// Foreign keys may cross namespaces, so they go in once every table exists.
	addForeignKeys(b, fks)
	return b.Build(), nil
}

func (d *MSSQLDescriber) describeTables(ctx context.Context, b *schema.Builder, ns string) error {
	query := `
		SELECT t.name
		FROM sys.tables t
		WHERE SCHEMA_NAME(t.schema_id) = @p1
		  AND t.is_ms_shipped = 0
		ORDER BY t.name
	`
	rows, err := d.db.QueryContext(ctx, query, ns)
	if err != nil {
		return fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("failed to scan table: %w", err)
		}
		b.AddTable(ns, name)
	}
	return closeRows(rows, "tables")
}

func (d *MSSQLDescriber) describeColumns(ctx context.Context, b *schema.Builder, ns string) error {
	query := `
		SELECT t.name, c.name, typ.name, c.max_length, c.precision, c.scale,
		       c.is_nullable, c.is_identity, dc.name, dc.definition
		FROM sys.columns c
		JOIN sys.tables t ON t.object_id = c.object_id
		JOIN sys.types typ ON typ.user_type_id = c.user_type_id
		LEFT JOIN sys.default_constraints dc ON dc.object_id = c.default_object_id
		WHERE SCHEMA_NAME(t.schema_id) = @p1
		  AND t.is_ms_shipped = 0
		ORDER BY t.name, c.column_id
	`
	rows, err := d.db.QueryContext(ctx, query, ns)
	if err != nil {
		return fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			table, name, typ          string
			maxLength                 int
			precision, scale          int
			nullable, identity        bool
			defaultName, defaultValue sql.NullString
		)
		if err := rows.Scan(&table, &name, &typ, &maxLength, &precision, &scale,
			&nullable, &identity, &defaultName, &defaultValue); err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}
		t, ok := b.FindTable(ns, table)
		if !ok {
			continue
		}

		col := schema.Column{Name: name, Type: mssqlColumnType(typ, maxLength, precision, scale), AutoIncrement: identity}
		if nullable {
			col.Type.Arity = schema.Nullable
		}
		if defaultValue.Valid {
			col.Default = mssqlDefault(defaultValue.String, col.Type)
			if col.Default != nil {
				col.Default.ConstraintName = defaultName.String
			}
		}
		b.AddColumn(t, col)
	}
	return closeRows(rows, "columns")
}

// mssqlColumnType maps a sys.types name and its size columns to the schema
// model. Lengths of national types are reported in bytes.
func mssqlColumnType(typ string, maxLength, precision, scale int) schema.ColumnType {
	name := strings.ToLower(typ)
	t := schema.ColumnType{FullDataType: name}
	native := &schema.NativeType{Name: name}

	length := func(bytesPerChar int) string {
		if maxLength == -1 {
			return "max"
		}
		return strconv.Itoa(maxLength / bytesPerChar)
	}

	switch name {
	case "int", "smallint", "tinyint":
		t.Family = schema.FamilyInt
	case "bigint":
		t.Family = schema.FamilyBigInt
	case "float", "real":
		t.Family = schema.FamilyFloat
	case "decimal", "numeric":
		t.Family = schema.FamilyDecimal
		native.Args = []string{strconv.Itoa(precision), strconv.Itoa(scale)}
	case "money", "smallmoney":
		t.Family = schema.FamilyDecimal
	case "bit":
		t.Family = schema.FamilyBoolean
	case "nchar", "nvarchar":
		t.Family = schema.FamilyString
		native.Args = []string{length(2)}
	case "char", "varchar":
		t.Family = schema.FamilyString
		native.Args = []string{length(1)}
	case "text", "ntext", "xml":
		t.Family = schema.FamilyString
	case "datetime2", "time", "datetimeoffset":
		t.Family = schema.FamilyDateTime
		if scale != 7 {
			native.Args = []string{strconv.Itoa(scale)}
		}
	case "datetime", "smalldatetime", "date":
		t.Family = schema.FamilyDateTime
	case "binary", "varbinary":
		t.Family = schema.FamilyBinary
		native.Args = []string{length(1)}
	case "image":
		t.Family = schema.FamilyBinary
	case "uniqueidentifier":
		t.Family = schema.FamilyUUID
	default:
		t.Family = schema.FamilyUnsupported
		return t
	}
	t.Native = native
	t.FullDataType = native.String()
	return t
}

// mssqlDefault parses the definition of a default constraint, which SQL
// Server stores wrapped in parentheses, e.g. ((0)) or (N'text').
func mssqlDefault(definition string, t schema.ColumnType) *schema.ColumnDefault {
	s := stripParens(strings.TrimSpace(definition))
	if strings.HasPrefix(s, "N'") {
		s = s[1:]
	}
	return literalDefault(s, t)
}

func (d *MSSQLDescriber) describeIndexes(ctx context.Context, b *schema.Builder, ns string) error {
	query := `
		SELECT t.name, i.name, i.is_primary_key, i.is_unique, i.type_desc,
		       c.name, ic.is_descending_key
		FROM sys.indexes i
		JOIN sys.tables t ON t.object_id = i.object_id
		JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
		JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
		WHERE SCHEMA_NAME(t.schema_id) = @p1
		  AND t.is_ms_shipped = 0
		  AND i.name IS NOT NULL
		  AND i.has_filter = 0
		  AND ic.is_included_column = 0
		ORDER BY t.name, i.name, ic.key_ordinal
	`
	rows, err := d.db.QueryContext(ctx, query, ns)
	if err != nil {
		return fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	var out []indexRow
	for rows.Next() {
		var (
			r               indexRow
			primary, unique bool
			typeDesc        string
			descending      bool
		)
		if err := rows.Scan(&r.table, &r.name, &primary, &unique, &typeDesc, &r.column, &descending); err != nil {
			return fmt.Errorf("failed to scan index: %w", err)
		}
		switch {
		case primary:
			r.typ = schema.IndexPrimaryKey
		case unique:
			r.typ = schema.IndexUnique
		}
		if descending {
			r.sortOrder = schema.Desc
		}
		clustered := typeDesc == "CLUSTERED"
		r.clustered = &clustered
		out = append(out, r)
	}
	if err := closeRows(rows, "indexes"); err != nil {
		return err
	}
	addIndexes(b, ns, out)
	return nil
}

func (d *MSSQLDescriber) foreignKeys(ctx context.Context, ns string) ([]foreignKeyRow, error) {
	query := `
		SELECT fk.name,
		       SCHEMA_NAME(pt.schema_id), pt.name, pc.name,
		       SCHEMA_NAME(rt.schema_id), rt.name, rc.name,
		       fk.delete_referential_action_desc, fk.update_referential_action_desc
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
		JOIN sys.tables pt ON pt.object_id = fkc.parent_object_id
		JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
		JOIN sys.tables rt ON rt.object_id = fkc.referenced_object_id
		JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
		WHERE SCHEMA_NAME(pt.schema_id) = @p1
		ORDER BY pt.name, fk.name, fkc.constraint_column_id
	`
	rows, err := d.db.QueryContext(ctx, query, ns)
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	var out []foreignKeyRow
	for rows.Next() {
		var r foreignKeyRow
		var onDelete, onUpdate string
		if err := rows.Scan(&r.name, &r.namespace, &r.table, &r.column,
			&r.refNamespace, &r.refTable, &r.refColumn, &onDelete, &onUpdate); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}
		r.onDelete, r.onUpdate = schema.ParseReferentialAction(onDelete), schema.ParseReferentialAction(onUpdate)
		out = append(out, r)
	}
	return out, closeRows(rows, "foreign keys")
}

func (d *MSSQLDescriber) describeViews(ctx context.Context, b *schema.Builder, ns string) error {
	query := `
		SELECT v.name, COALESCE(OBJECT_DEFINITION(v.object_id), '')
		FROM sys.views v
		WHERE SCHEMA_NAME(v.schema_id) = @p1
		ORDER BY v.name
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
		b.AddView(ns, name, viewBody(definition))
	}
	return closeRows(rows, "views")
}
