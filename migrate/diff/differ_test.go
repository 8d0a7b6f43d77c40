package diff_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schema-engine/migrate/diff"
	"github.com/satishbabariya/schema-engine/migrate/flavour"
	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

var allDialects = []schema.Dialect{schema.Postgres, schema.CockroachDB, schema.MySQL, schema.SQLite, schema.MSSQL}

func newFlavour(t *testing.T, dialect schema.Dialect) flavour.Flavour {
	t.Helper()
	f, err := flavour.New(dialect, "")
	require.NoError(t, err)
	return f
}

func intCol(name string) schema.Column {
	return schema.Column{Name: name, Type: schema.ColumnType{Family: schema.FamilyInt}}
}

func stringCol(name string) schema.Column {
	return schema.Column{Name: name, Type: schema.ColumnType{Family: schema.FamilyString}}
}

// blog builds User and Post tables with a foreign key between them, plus a
// Role enum where the dialect has named enums.
func blog(dialect schema.Dialect) *schema.Schema {
	ns := dialect.DefaultNamespace()
	b := schema.NewBuilder(dialect)
	b.AddEnum(ns, "Role", "USER", "ADMIN")

	user := b.AddTable(ns, "User")
	userID := b.AddColumn(user, intCol("id"))
	email := b.AddColumn(user, stringCol("email"))
	b.AddColumn(user, schema.Column{Name: "role", Type: schema.ColumnType{Family: schema.FamilyEnum, EnumName: "Role"},
		Default: schema.ValueDefault(schema.LiteralEnumVariant, "USER")})
	b.SetPrimaryKey(user, "User_pkey", userID)
	b.AddIndex(user, "User_email_key", schema.IndexUnique, email)

	post := b.AddTable(ns, "Post")
	postID := b.AddColumn(post, intCol("id"))
	author := b.AddColumn(post, schema.Column{Name: "authorId", Type: schema.ColumnType{Family: schema.FamilyInt, Arity: schema.Nullable}})
	b.SetPrimaryKey(post, "Post_pkey", postID)
	b.AddIndex(post, "Post_authorId_idx", schema.IndexNormal, author)
	b.AddForeignKey(post, []schema.ColumnID{author}, user, []schema.ColumnID{userID}, schema.SetNull, schema.Cascade, "Post_authorId_fkey")
	return b.Build()
}

func kinds(m *migration.Migration) []migration.StepKind {
	out := make([]migration.StepKind, len(m.Steps))
	for i, s := range m.Steps {
		out[i] = s.Kind()
	}
	return out
}

func indexOfKind(m *migration.Migration, kind migration.StepKind) int {
	for i, s := range m.Steps {
		if s.Kind() == kind {
			return i
		}
	}
	return -1
}

func TestDiffIdenticalSchemasIsEmpty(t *testing.T) {
	for _, d := range allDialects {
		t.Run(string(d), func(t *testing.T) {
			m := diff.Diff(blog(d), blog(d), newFlavour(t, d))
			assert.True(t, m.IsEmpty(), "unexpected steps: %v", kinds(m))
		})
	}
}

func TestDiffCreatesTablesBeforeForeignKeys(t *testing.T) {
	m := diff.Diff(schema.Empty(schema.Postgres), blog(schema.Postgres), newFlavour(t, schema.Postgres))

	assert.Equal(t, []migration.StepKind{
		migration.KindCreateEnum,
		migration.KindCreateTable,
		migration.KindCreateTable,
		migration.KindCreateIndex,
		migration.KindCreateIndex,
		migration.KindCreateForeignKey,
	}, kinds(m))

	for _, s := range m.Steps {
		if idx, ok := s.(migration.CreateIndex); ok {
			assert.True(t, idx.TableCreated)
		}
	}
}

func TestDiffCreatedTablesPerDialect(t *testing.T) {
	// MySQL renders indexes inside CREATE TABLE, SQLite renders foreign keys there.
	mysql := diff.Diff(schema.Empty(schema.MySQL), blog(schema.MySQL), newFlavour(t, schema.MySQL))
	assert.Equal(t, -1, indexOfKind(mysql, migration.KindCreateIndex))
	assert.Equal(t, -1, indexOfKind(mysql, migration.KindCreateEnum))
	assert.NotEqual(t, -1, indexOfKind(mysql, migration.KindCreateForeignKey))

	sqlite := diff.Diff(schema.Empty(schema.SQLite), blog(schema.SQLite), newFlavour(t, schema.SQLite))
	assert.Equal(t, -1, indexOfKind(sqlite, migration.KindCreateForeignKey))
	assert.NotEqual(t, -1, indexOfKind(sqlite, migration.KindCreateIndex))
}

func TestDiffDropsForeignKeysBeforeTables(t *testing.T) {
	m := diff.Diff(blog(schema.Postgres), schema.Empty(schema.Postgres), newFlavour(t, schema.Postgres))

	assert.Equal(t, []migration.StepKind{
		migration.KindDropForeignKey,
		migration.KindDropTable,
		migration.KindDropTable,
		migration.KindDropEnum,
	}, kinds(m))
}

func TestSQLiteDroppingDefaultRedefinesTable(t *testing.T) {
	build := func(withDefault bool) *schema.Schema {
		b := schema.NewBuilder(schema.SQLite)
		tbl := b.AddTable("", "Cat")
		id := b.AddColumn(tbl, intCol("id"))
		name := stringCol("name")
		if withDefault {
			name.Default = schema.ValueDefault(schema.LiteralString, "kitty")
		}
		b.AddColumn(tbl, name)
		b.SetPrimaryKey(tbl, "Cat_pkey", id)
		return b.Build()
	}

	m := diff.Diff(build(true), build(false), newFlavour(t, schema.SQLite))
	require.Len(t, m.Steps, 1)
	step, ok := m.Steps[0].(migration.RedefineTables)
	require.True(t, ok)
	require.Len(t, step.Tables, 1)

	var changed []migration.ColumnChanges
	for _, cp := range step.Tables[0].ColumnPairs {
		if cp.Changes.DiffersInSomething() {
			changed = append(changed, cp.Changes)
		}
	}
	assert.Equal(t, []migration.ColumnChanges{migration.ChangedDefault}, changed)

	// The same change is an in-place alter elsewhere.
	pg := newFlavour(t, schema.Postgres)
	m = diff.Diff(withNameDefault(schema.Postgres, true), withNameDefault(schema.Postgres, false), pg)
	require.Len(t, m.Steps, 1)
	alter, ok := m.Steps[0].(migration.AlterColumn)
	require.True(t, ok)
	assert.True(t, alter.Changes.OnlyDefaultChanged())
}

func withNameDefault(dialect schema.Dialect, withDefault bool) *schema.Schema {
	b := schema.NewBuilder(dialect)
	tbl := b.AddTable(dialect.DefaultNamespace(), "Cat")
	id := b.AddColumn(tbl, intCol("id"))
	name := stringCol("name")
	if withDefault {
		name.Default = schema.ValueDefault(schema.LiteralString, "kitty")
	}
	b.AddColumn(tbl, name)
	b.SetPrimaryKey(tbl, "Cat_pkey", id)
	return b.Build()
}

func TestDiffEnumVariants(t *testing.T) {
	build := func(variants ...string) *schema.Schema {
		b := schema.NewBuilder(schema.Postgres)
		b.AddEnum("public", "Role", variants...)
		tbl := b.AddTable("public", "User")
		b.AddColumn(tbl, schema.Column{Name: "role", Type: schema.ColumnType{Family: schema.FamilyEnum, EnumName: "Role"},
			Default: schema.ValueDefault(schema.LiteralEnumVariant, variants[0])})
		return b.Build()
	}

	m := diff.Diff(build("ADMIN", "USER"), build("USER", "GUEST"), newFlavour(t, schema.Postgres))

	var alter migration.AlterEnum
	for _, s := range m.Steps {
		if a, ok := s.(migration.AlterEnum); ok {
			alter = a
		}
	}
	assert.Equal(t, []string{"GUEST"}, alter.CreatedVariants)
	assert.Equal(t, []string{"ADMIN"}, alter.DroppedVariants)
	require.Len(t, alter.PreviousUsagesAsDefault, 1)
	assert.NotNil(t, alter.PreviousUsagesAsDefault[0].Next)
}

func TestDiffEnumShrinkMovesEveryDefault(t *testing.T) {
	build := func(withAudit bool, variants ...string) *schema.Schema {
		b := schema.NewBuilder(schema.Postgres)
		b.AddEnum("public", "Role", variants...)
		role := schema.Column{Name: "role", Type: schema.ColumnType{Family: schema.FamilyEnum, EnumName: "Role"},
			Default: schema.ValueDefault(schema.LiteralEnumVariant, "USER")}
		b.AddColumn(b.AddTable("public", "User"), role)
		if withAudit {
			b.AddColumn(b.AddTable("public", "Audit"), role)
		}
		return b.Build()
	}

	m := diff.Diff(build(true, "USER", "ADMIN"), build(false, "USER"), newFlavour(t, schema.Postgres))

	var alter migration.AlterEnum
	for _, s := range m.Steps {
		if a, ok := s.(migration.AlterEnum); ok {
			alter = a
		}
	}
	assert.Equal(t, []string{"ADMIN"}, alter.DroppedVariants)
	require.Len(t, alter.PreviousUsagesAsDefault, 2, "defaults naming a kept variant move too")
	var restored int
	for _, usage := range alter.PreviousUsagesAsDefault {
		if usage.Next != nil {
			restored++
		}
	}
	assert.Equal(t, 1, restored, "the dropped table's column is not restored")

	script := newFlavour(t, schema.Postgres).RenderScript(m)
	dropDefault := strings.Index(script, `ALTER TABLE "public"."User" ALTER COLUMN "role" DROP DEFAULT`)
	retype := strings.Index(script, `ALTER TABLE "public"."User" ALTER COLUMN "role" TYPE "public"."Role_new"`)
	setDefault := strings.Index(script, `ALTER TABLE "public"."User" ALTER COLUMN "role" SET DEFAULT`)
	require.NotEqual(t, -1, dropDefault)
	require.NotEqual(t, -1, retype)
	require.NotEqual(t, -1, setDefault)
	assert.Less(t, dropDefault, retype)
	assert.Less(t, retype, setDefault)
}

// indexed builds a table with columns a and b and one normal index per entry
// of names, indexing a and b respectively.
func indexed(dialect schema.Dialect, names ...string) *schema.Schema {
	b := schema.NewBuilder(dialect)
	tbl := b.AddTable(dialect.DefaultNamespace(), "T")
	id := b.AddColumn(tbl, intCol("id"))
	cols := []schema.ColumnID{b.AddColumn(tbl, intCol("a")), b.AddColumn(tbl, intCol("b"))}
	b.SetPrimaryKey(tbl, "T_pkey", id)
	for i, name := range names {
		b.AddIndex(tbl, name, schema.IndexNormal, cols[i])
	}
	return b.Build()
}

func TestDiffIndexRename(t *testing.T) {
	m := diff.Diff(indexed(schema.Postgres, "T_a_idx"), indexed(schema.Postgres, "T_a_key"), newFlavour(t, schema.Postgres))
	assert.Equal(t, []migration.StepKind{migration.KindRenameIndex}, kinds(m))

	// Without rename support the index is replaced.
	m = diff.Diff(indexed(schema.SQLite, "T_a_idx"), indexed(schema.SQLite, "T_a_key"), newFlavour(t, schema.SQLite))
	assert.Equal(t, []migration.StepKind{migration.KindDropIndex, migration.KindCreateIndex}, kinds(m))
}

func TestDiffIndexRenameCycleFallsBackToDropAndCreate(t *testing.T) {
	m := diff.Diff(indexed(schema.Postgres, "first", "second"), indexed(schema.Postgres, "second", "first"), newFlavour(t, schema.Postgres))

	assert.Equal(t, []migration.StepKind{
		migration.KindDropIndex,
		migration.KindDropIndex,
		migration.KindCreateIndex,
		migration.KindCreateIndex,
	}, kinds(m))
}

func TestDiffMovesUniqueDropAfterNewPrimaryKey(t *testing.T) {
	build := func(pk bool) *schema.Schema {
		b := schema.NewBuilder(schema.Postgres)
		tbl := b.AddTable("public", "T")
		id := b.AddColumn(tbl, intCol("id"))
		if pk {
			b.SetPrimaryKey(tbl, "T_pkey", id)
		} else {
			b.AddIndex(tbl, "T_id_key", schema.IndexUnique, id)
		}
		return b.Build()
	}

	m := diff.Diff(build(false), build(true), newFlavour(t, schema.Postgres))
	assert.Equal(t, []migration.StepKind{migration.KindAddPrimaryKey, migration.KindDropIndex}, kinds(m))
}

func TestDiffColumnChanges(t *testing.T) {
	build := func(c schema.Column) *schema.Schema {
		b := schema.NewBuilder(schema.Postgres)
		tbl := b.AddTable("public", "T")
		b.AddColumn(tbl, c)
		return b.Build()
	}

	nullable := intCol("n")
	nullable.Type.Arity = schema.Nullable
	m := diff.Diff(build(nullable), build(intCol("n")), newFlavour(t, schema.Postgres))
	require.Len(t, m.Steps, 1)
	alter := m.Steps[0].(migration.AlterColumn)
	assert.True(t, alter.Changes.ArityChanged())
	assert.False(t, alter.Changes.TypeChanged())

	dt := schema.Column{Name: "n", Type: schema.ColumnType{Family: schema.FamilyDateTime}}
	m = diff.Diff(build(intCol("n")), build(dt), newFlavour(t, schema.Postgres))
	assert.Equal(t, []migration.StepKind{migration.KindDropAndRecreateColumn}, kinds(m))
}

func TestDiffIgnoresLedgerTable(t *testing.T) {
	b := schema.NewBuilder(schema.Postgres)
	b.AddTable("public", flavour.LedgerTable)
	withLedger := b.Build()

	m := diff.Diff(withLedger, schema.Empty(schema.Postgres), newFlavour(t, schema.Postgres))
	assert.True(t, m.IsEmpty())
}

func TestDiffReplacesChangedViews(t *testing.T) {
	build := func(def string) *schema.Schema {
		b := schema.NewBuilder(schema.Postgres)
		b.AddView("public", "v", def)
		return b.Build()
	}

	m := diff.Diff(build("SELECT 1"), build("select  1"), newFlavour(t, schema.Postgres))
	assert.True(t, m.IsEmpty())

	m = diff.Diff(build("SELECT 1"), build("SELECT 2"), newFlavour(t, schema.Postgres))
	assert.Equal(t, []migration.StepKind{migration.KindDropView, migration.KindCreateView}, kinds(m))
}
