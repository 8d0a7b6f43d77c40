package flavour

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schema-engine/migrate/checker"
	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// columnPair builds two single-column schemas and returns the column pair.
func columnPair(dialect schema.Dialect, prev, next schema.Column) migration.Pair[schema.ColumnWalker] {
	build := func(c schema.Column) *schema.Schema {
		b := schema.NewBuilder(dialect)
		b.AddEnum(dialect.DefaultNamespace(), "Role", "USER", "ADMIN")
		b.AddEnum(dialect.DefaultNamespace(), "Status", "ON", "OFF")
		t := b.AddTable(dialect.DefaultNamespace(), "Test")
		b.AddColumn(t, c)
		return b.Build()
	}
	return migration.MakePair(build(prev).Column(0), build(next).Column(0))
}

func col(family schema.ColumnTypeFamily) schema.Column {
	return schema.Column{Name: "c", Type: schema.ColumnType{Family: family}}
}

func nativeCol(family schema.ColumnTypeFamily, name string, args ...string) schema.Column {
	c := col(family)
	c.Type.Native = &schema.NativeType{Name: name, Args: args}
	return c
}

func TestNew(t *testing.T) {
	for _, d := range []schema.Dialect{schema.Postgres, schema.CockroachDB, schema.MySQL, schema.SQLite, schema.MSSQL} {
		f, err := New(d, "")
		require.NoError(t, err)
		assert.Equal(t, d, f.Dialect())
		assert.Nil(t, f.Version())
	}

	_, err := New("oracle", "")
	assert.Error(t, err)
}

func TestParseVersion(t *testing.T) {
	tests := map[string]string{
		"8.0.32": "8.0.32",
		"10.11.2-MariaDB-1:10.11.2+maria~ubu2204": "10.11.2",
		"PostgreSQL 16.2 on x86_64-pc-linux-gnu":  "16.2.0",
	}
	for raw, want := range tests {
		v, err := parseVersion(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, v.String(), raw)
	}

	_, err := parseVersion("unknown")
	assert.Error(t, err)
}

func TestPostgresColumnTypeChange(t *testing.T) {
	f, err := New(schema.Postgres, "16.2")
	require.NoError(t, err)

	enumCol := func(name string) schema.Column {
		return schema.Column{Name: "c", Type: schema.ColumnType{Family: schema.FamilyEnum, EnumName: name}}
	}
	list := col(schema.FamilyInt)
	list.Type.Arity = schema.List

	tests := []struct {
		name       string
		prev, next schema.Column
		want       migration.ColumnTypeChange
	}{
		{"introspected alias", nativeCol(schema.FamilyInt, "int4"), col(schema.FamilyInt), migration.TypeUnchanged},
		{"timestamp precision", nativeCol(schema.FamilyDateTime, "timestamp", "3"), col(schema.FamilyDateTime), migration.TypeUnchanged},
		{"numeric alias", nativeCol(schema.FamilyDecimal, "numeric", "65", "30"), col(schema.FamilyDecimal), migration.TypeUnchanged},
		{"int to bigint", col(schema.FamilyInt), col(schema.FamilyBigInt), migration.SafeCast},
		{"bigint to int", col(schema.FamilyBigInt), col(schema.FamilyInt), migration.RiskyCast},
		{"int to text", col(schema.FamilyInt), col(schema.FamilyString), migration.SafeCast},
		{"text to int", col(schema.FamilyString), col(schema.FamilyInt), migration.RiskyCast},
		{"varchar widened", nativeCol(schema.FamilyString, "VarChar", "10"), nativeCol(schema.FamilyString, "VarChar", "20"), migration.SafeCast},
		{"varchar narrowed", nativeCol(schema.FamilyString, "VarChar", "20"), nativeCol(schema.FamilyString, "VarChar", "10"), migration.RiskyCast},
		{"datetime to int", col(schema.FamilyDateTime), col(schema.FamilyInt), migration.NotCastable},
		{"scalar to list", col(schema.FamilyInt), list, migration.NotCastable},
		{"same enum", enumCol("Role"), enumCol("Role"), migration.TypeUnchanged},
		{"other enum", enumCol("Role"), enumCol("Status"), migration.NotCastable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.ColumnTypeChange(columnPair(schema.Postgres, tt.prev, tt.next)))
		})
	}
}

func TestMySQLColumnTypeChange(t *testing.T) {
	f, err := New(schema.MySQL, "8.0.32")
	require.NoError(t, err)

	assert.Equal(t, migration.TypeUnchanged,
		f.ColumnTypeChange(columnPair(schema.MySQL, nativeCol(schema.FamilyInt, "int", "11"), col(schema.FamilyInt))))
	assert.Equal(t, migration.TypeUnchanged,
		f.ColumnTypeChange(columnPair(schema.MySQL, nativeCol(schema.FamilyBoolean, "tinyint", "1"), col(schema.FamilyBoolean))))
	assert.Equal(t, migration.RiskyCast,
		f.ColumnTypeChange(columnPair(schema.MySQL, nativeCol(schema.FamilyJSON, "longtext"), col(schema.FamilyJSON))))

	maria, err := New(schema.MySQL, "10.11.2-MariaDB-1:10.11.2+maria~ubu2204")
	require.NoError(t, err)
	assert.Equal(t, migration.TypeUnchanged,
		maria.ColumnTypeChange(columnPair(schema.MySQL, nativeCol(schema.FamilyJSON, "longtext"), col(schema.FamilyJSON))))
}

func TestMySQLRenameIndexGate(t *testing.T) {
	tests := map[string]bool{
		"":                      true,
		"5.7.40":                false,
		"8.0.32":                true,
		"10.4.28-MariaDB":       false,
		"10.6.12-MariaDB-log":   true,
		"11.2.2-MariaDB-1:11.2": true,
	}
	for v, want := range tests {
		f, err := New(schema.MySQL, v)
		require.NoError(t, err)
		assert.Equal(t, want, f.CanRenameIndex(), v)
	}
}

func TestIgnoredTables(t *testing.T) {
	pg, _ := New(schema.Postgres, "")
	sqlite, _ := New(schema.SQLite, "")
	mysql, _ := New(schema.MySQL, "")

	assert.True(t, pg.TableShouldBeIgnored(LedgerTable))
	assert.True(t, pg.TableShouldBeIgnored("spatial_ref_sys"))
	assert.False(t, pg.TableShouldBeIgnored("User"))
	assert.True(t, sqlite.TableShouldBeIgnored("sqlite_sequence"))
	assert.True(t, mysql.TableShouldBeIgnored("_SCHEMA_MIGRATIONS"))
}

func TestConnectorPolicy(t *testing.T) {
	tests := []struct {
		dialect       schema.Dialect
		placeholder   string
		transactional bool
	}{
		{schema.Postgres, "$2", true},
		{schema.CockroachDB, "$2", false},
		{schema.MySQL, "?", false},
		{schema.SQLite, "?", true},
		{schema.MSSQL, "@p2", true},
	}
	for _, tt := range tests {
		f, err := New(tt.dialect, "")
		require.NoError(t, err)
		assert.Equal(t, tt.placeholder, f.Placeholder(2), tt.dialect)
		assert.Equal(t, tt.transactional, f.SupportsTransactionalDDL(), tt.dialect)
	}
}

func TestMSSQLDefaults(t *testing.T) {
	f, err := New(schema.MSSQL, "")
	require.NoError(t, err)
	assert.Equal(t, "DF__User__active", f.DefaultConstraintName("User", "active"))

	b := schema.NewBuilder(schema.MSSQL)
	tbl := b.AddTable("dbo", "User")
	id := b.AddColumn(tbl, col(schema.FamilyInt))
	b.SetPrimaryKey(tbl, "User_pkey", id)
	s := b.Build()

	f.PushConnectorData(s)
	require.NotNil(t, s.Indexes[0].Clustered)
	assert.True(t, *s.Indexes[0].Clustered)

	pg, _ := New(schema.Postgres, "")
	assert.Empty(t, pg.DefaultConstraintName("User", "active"))
}

func TestSQLitePrepareScript(t *testing.T) {
	f := newSQLite(common{})

	plain := []string{`CREATE TABLE "a" ("id" INTEGER)`}
	body, guard := f.PrepareScript(plain)
	assert.Nil(t, guard)
	assert.Equal(t, plain, body)

	body, guard = f.PrepareScript([]string{
		"PRAGMA defer_foreign_keys=ON",
		"PRAGMA foreign_keys=OFF",
		`DROP TABLE "User"`,
		"pragma foreign_keys = on;",
		"PRAGMA defer_foreign_keys=OFF",
	})
	require.NotNil(t, guard)
	assert.Equal(t, []string{"PRAGMA defer_foreign_keys=ON", `DROP TABLE "User"`, "PRAGMA defer_foreign_keys=OFF"}, body)
	assert.Equal(t, []string{"PRAGMA foreign_keys=OFF"}, guard.Before)
	assert.Equal(t, "PRAGMA foreign_key_check", guard.Verify)
	assert.Equal(t, []string{"PRAGMA foreign_keys=ON"}, guard.After)

	pg := newPostgres(common{})
	_, guard = pg.PrepareScript(body)
	assert.Nil(t, guard)
}

// matchingRows answers every value match with n rows.
type matchingRows int64

func (n matchingRows) CountRows(context.Context, checker.TableRef) (int64, error) { return 0, nil }
func (n matchingRows) CountNonNullValues(context.Context, checker.ColumnRef) (int64, error) {
	return 0, nil
}
func (n matchingRows) CountMatchingValues(context.Context, checker.ValueMatch) (int64, error) {
	return int64(n), nil
}

func TestMySQLEnumVariantRemoval(t *testing.T) {
	build := func(variants ...string) *schema.Schema {
		b := schema.NewBuilder(schema.MySQL)
		b.AddEnum("", "User_role", variants...)
		tbl := b.AddTable("", "User")
		b.AddColumn(tbl, schema.Column{Name: "role", Type: schema.ColumnType{Family: schema.FamilyEnum, EnumName: "User_role"}})
		return b.Build()
	}
	f := newMySQL(common{})
	cols := migration.MakePair(build("USER", "ADMIN").Column(0), build("USER").Column(0))
	alter := migration.AlterColumn{Changes: migration.ChangedType, TypeChange: f.ColumnTypeChange(cols)}

	plan := checker.NewPlan()
	f.CheckAlterColumn(alter, cols, plan, 0)
	require.Equal(t, 1, plan.Len())

	blocked, err := plan.Execute(context.Background(), matchingRows(3))
	require.NoError(t, err)
	require.Len(t, blocked.Unexecutable, 1)
	assert.Contains(t, blocked.Unexecutable[0].Description, "`User`.`role` (3 rows)")

	safe, err := plan.Execute(context.Background(), matchingRows(0))
	require.NoError(t, err)
	assert.Empty(t, safe.Warnings)
	assert.Empty(t, safe.Unexecutable)

	diagnostics := plan.PureCheck()
	require.Len(t, diagnostics.Warnings, 1)
	assert.Contains(t, diagnostics.Warnings[0].Description, "The values [ADMIN] on the enum `User_role` will be removed")

	// Added variants are a plain widening and raise nothing.
	grown := migration.MakePair(build("USER").Column(0), build("USER", "ADMIN").Column(0))
	plan = checker.NewPlan()
	f.CheckAlterColumn(migration.AlterColumn{Changes: migration.ChangedType, TypeChange: f.ColumnTypeChange(grown)}, grown, plan, 0)
	assert.Zero(t, plan.Len())
}
