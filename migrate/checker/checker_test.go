package checker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

type fakeInspector struct {
	rows    map[string]int64
	values  map[string]int64
	matches map[string]int64
	fail    bool
}

func (f *fakeInspector) CountRows(_ context.Context, t TableRef) (int64, error) {
	if f.fail {
		return 0, errors.New("connection reset")
	}
	return f.rows[t.Table], nil
}

func (f *fakeInspector) CountNonNullValues(_ context.Context, c ColumnRef) (int64, error) {
	if f.fail {
		return 0, errors.New("connection reset")
	}
	return f.values[c.Table+"."+c.Column], nil
}

func (f *fakeInspector) CountMatchingValues(_ context.Context, m ValueMatch) (int64, error) {
	if f.fail {
		return 0, errors.New("connection reset")
	}
	return f.matches[m.Column.Table+"."+m.Column.Column], nil
}

type testFlavour struct{}

func (testFlavour) CheckAlterColumn(alter migration.AlterColumn, cols migration.Pair[schema.ColumnWalker], plan *Plan, stepIndex int) {
	CheckColumnChange(cols, alter.Changes, alter.TypeChange, plan, stepIndex)
}

func (testFlavour) CheckDropAndRecreateColumn(cols migration.Pair[schema.ColumnWalker], _ migration.ColumnChanges, plan *Plan, stepIndex int) {
	CheckRecreatedColumn(cols, plan, stepIndex)
}

func intColumn(name string, arity schema.Arity) schema.Column {
	return schema.Column{Name: name, Type: schema.ColumnType{Family: schema.FamilyInt, Arity: arity}}
}

// addAgeMigration adds a required `age` column to `User`.
func addAgeMigration(t *testing.T) *migration.Migration {
	t.Helper()

	pb := schema.NewBuilder(schema.Postgres)
	pt := pb.AddTable("public", "User")
	pid := pb.AddColumn(pt, intColumn("id", schema.Required))
	pb.SetPrimaryKey(pt, "User_pkey", pid)

	nb := schema.NewBuilder(schema.Postgres)
	nt := nb.AddTable("public", "User")
	nid := nb.AddColumn(nt, intColumn("id", schema.Required))
	age := nb.AddColumn(nt, intColumn("age", schema.Required))
	nb.SetPrimaryKey(nt, "User_pkey", nid)

	return &migration.Migration{
		Schemas: migration.MakePair(pb.Build(), nb.Build()),
		Steps: []migration.Step{
			migration.AddColumn{TableIDs: migration.MakePair(pt, nt), ColumnID: age},
		},
	}
}

func TestAddedRequiredColumnOnPopulatedTable(t *testing.T) {
	m := addAgeMigration(t)
	inspector := &fakeInspector{rows: map[string]int64{"User": 3}}

	diagnostics, err := CheckMigration(context.Background(), m, testFlavour{}, inspector)
	require.NoError(t, err)

	require.Len(t, diagnostics.Unexecutable, 1)
	assert.Equal(t,
		"Added the required column `age` to the `User` table without a default value. There are 3 rows in this table, it is not possible to execute this step.",
		diagnostics.Unexecutable[0].Description)
	assert.Equal(t, 0, diagnostics.Unexecutable[0].StepIndex)
	assert.Empty(t, diagnostics.Warnings)

	err = diagnostics.Err(true)
	require.Error(t, err)
	assert.True(t, enginerr.IsKind(err, enginerr.UnexecutableMigration))
}

func TestAddedRequiredColumnOnEmptyTable(t *testing.T) {
	m := addAgeMigration(t)
	inspector := &fakeInspector{rows: map[string]int64{"User": 0}}

	diagnostics, err := CheckMigration(context.Background(), m, testFlavour{}, inspector)
	require.NoError(t, err)
	assert.False(t, diagnostics.HasUnexecutable())
	assert.NoError(t, diagnostics.Err(false))
}

func TestOfflineCheckAssumesTheWorst(t *testing.T) {
	m := addAgeMigration(t)

	diagnostics, err := CheckMigration(context.Background(), m, testFlavour{}, nil)
	require.NoError(t, err)
	require.Len(t, diagnostics.Unexecutable, 1)
	assert.Contains(t, diagnostics.Unexecutable[0].Description, "This is not possible if the table is not empty.")
}

func TestFailedInspectionIsNeverSafe(t *testing.T) {
	pb := schema.NewBuilder(schema.SQLite)
	pt := pb.AddTable("", "Post")
	pb.AddColumn(pt, intColumn("id", schema.Required))
	prev := pb.Build()
	next := schema.NewBuilder(schema.SQLite).Build()

	m := &migration.Migration{
		Schemas: migration.MakePair(prev, next),
		Steps:   []migration.Step{migration.DropTable{TableID: pt}},
	}

	diagnostics, err := CheckMigration(context.Background(), m, testFlavour{}, &fakeInspector{fail: true})
	require.NoError(t, err)
	require.Len(t, diagnostics.Warnings, 1)
	assert.Equal(t,
		"You are about to drop the `Post` table. If the table is not empty, all the data it contains will be lost.",
		diagnostics.Warnings[0].Description)

	diagnostics, err = CheckMigration(context.Background(), m, testFlavour{}, &fakeInspector{rows: map[string]int64{"Post": 2}})
	require.NoError(t, err)
	require.Len(t, diagnostics.Warnings, 1)
	assert.Equal(t, "You are about to drop the `Post` table, which is not empty (2 rows).", diagnostics.Warnings[0].Description)

	diagnostics, err = CheckMigration(context.Background(), m, testFlavour{}, &fakeInspector{rows: map[string]int64{"Post": 0}})
	require.NoError(t, err)
	assert.False(t, diagnostics.HasWarnings())
}

// roleMigration removes the ADMIN variant of the Role enum used by User.role.
func roleMigration(t *testing.T) *migration.Migration {
	t.Helper()

	build := func(variants ...string) (*schema.Schema, schema.EnumID) {
		b := schema.NewBuilder(schema.Postgres)
		e := b.AddEnum("public", "Role", variants...)
		tbl := b.AddTable("public", "User")
		id := b.AddColumn(tbl, intColumn("id", schema.Required))
		b.AddColumn(tbl, schema.Column{
			Name: "role",
			Type: schema.ColumnType{Family: schema.FamilyEnum, EnumName: "Role", Arity: schema.Required},
		})
		b.SetPrimaryKey(tbl, "User_pkey", id)
		return b.Build(), e
	}
	prev, pe := build("USER", "ADMIN")
	next, ne := build("USER")

	return &migration.Migration{
		Schemas: migration.MakePair(prev, next),
		Steps: []migration.Step{
			migration.AlterEnum{EnumIDs: migration.MakePair(pe, ne), DroppedVariants: []string{"ADMIN"}},
		},
	}
}

func TestEnumValueRemoval(t *testing.T) {
	m := roleMigration(t)

	t.Run("unused variant is safe", func(t *testing.T) {
		inspector := &fakeInspector{matches: map[string]int64{"User.role": 0}}
		diagnostics, err := CheckMigration(context.Background(), m, testFlavour{}, inspector)
		require.NoError(t, err)
		assert.False(t, diagnostics.HasWarnings())
		assert.False(t, diagnostics.HasUnexecutable())
	})

	t.Run("used variant blocks", func(t *testing.T) {
		inspector := &fakeInspector{matches: map[string]int64{"User.role": 2}}
		diagnostics, err := CheckMigration(context.Background(), m, testFlavour{}, inspector)
		require.NoError(t, err)
		require.Len(t, diagnostics.Unexecutable, 1)
		assert.Contains(t, diagnostics.Unexecutable[0].Description, "[ADMIN]")
		assert.Contains(t, diagnostics.Unexecutable[0].Description, "`User`.`role` (2 rows)")
	})

	t.Run("offline warns and names usages", func(t *testing.T) {
		diagnostics, err := CheckMigration(context.Background(), m, testFlavour{}, nil)
		require.NoError(t, err)
		require.Len(t, diagnostics.Warnings, 1)
		assert.Equal(t,
			"The values [ADMIN] on the enum `Role` will be removed. If these variants are still used in the database, this will fail. The enum is used by `User`.`role`.",
			diagnostics.Warnings[0].Description)
		assert.Contains(t, diagnostics.Comment(), "Warnings:")
	})
}

func TestMadeOptionalColumnRequired(t *testing.T) {
	pb := schema.NewBuilder(schema.Postgres)
	pt := pb.AddTable("public", "Test")
	pc := pb.AddColumn(pt, intColumn("age", schema.Nullable))
	nb := schema.NewBuilder(schema.Postgres)
	nt := nb.AddTable("public", "Test")
	nc := nb.AddColumn(nt, intColumn("age", schema.Required))

	m := &migration.Migration{
		Schemas: migration.MakePair(pb.Build(), nb.Build()),
		Steps: []migration.Step{migration.AlterColumn{
			TableIDs:  migration.MakePair(pt, nt),
			ColumnIDs: migration.MakePair(pc, nc),
			Changes:   migration.ChangedArity,
		}},
	}

	inspector := &fakeInspector{rows: map[string]int64{"Test": 3}, values: map[string]int64{"Test.age": 2}}
	diagnostics, err := CheckMigration(context.Background(), m, testFlavour{}, inspector)
	require.NoError(t, err)
	require.Len(t, diagnostics.Unexecutable, 1)
	assert.Equal(t, "Made the column `age` on table `Test` required, but there are 1 existing NULL values.", diagnostics.Unexecutable[0].Description)

	inspector = &fakeInspector{rows: map[string]int64{"Test": 3}, values: map[string]int64{"Test.age": 3}}
	diagnostics, err = CheckMigration(context.Background(), m, testFlavour{}, inspector)
	require.NoError(t, err)
	assert.False(t, diagnostics.HasUnexecutable())
}

func TestPlanDeduplicatesInspections(t *testing.T) {
	counting := &countingInspector{}
	plan := NewPlan()
	ref := TableRef{Table: "A"}
	plan.PushWarning(NonEmptyTableDrop{Table: ref}, 0)
	plan.PushWarning(PrimaryKeyChange{Table: ref}, 1)

	diagnostics, err := plan.Execute(context.Background(), counting)
	require.NoError(t, err)
	assert.Equal(t, 1, counting.rowQueries)
	assert.Len(t, diagnostics.Warnings, 2)
}

type countingInspector struct {
	rowQueries int
}

func (c *countingInspector) CountRows(context.Context, TableRef) (int64, error) {
	c.rowQueries++
	return 5, nil
}

func (c *countingInspector) CountNonNullValues(context.Context, ColumnRef) (int64, error) {
	return 0, nil
}

func (c *countingInspector) CountMatchingValues(context.Context, ValueMatch) (int64, error) {
	return 0, nil
}
