package migrate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/cache"
	"github.com/satishbabariya/schema-engine/migrate/connector"
	"github.com/satishbabariya/schema-engine/migrate/migrations"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// blogSchema is a User table with extra columns, plus a Post table when
// withPosts is set.
func blogSchema(withPosts bool, extra ...schema.Column) *schema.Schema {
	b := schema.NewBuilder(schema.SQLite)
	users := b.AddTable("", "User")
	id := b.AddColumn(users, schema.Column{Name: "id", Type: schema.ColumnType{Family: schema.FamilyInt}, AutoIncrement: true})
	email := b.AddColumn(users, schema.Column{Name: "email", Type: schema.ColumnType{Family: schema.FamilyString}})
	for _, c := range extra {
		b.AddColumn(users, c)
	}
	b.SetPrimaryKey(users, "User_pkey", id)
	b.AddIndex(users, "User_email_key", schema.IndexUnique, email)

	if withPosts {
		posts := b.AddTable("", "Post")
		postID := b.AddColumn(posts, schema.Column{Name: "id", Type: schema.ColumnType{Family: schema.FamilyInt}})
		b.AddColumn(posts, schema.Column{Name: "title", Type: schema.ColumnType{Family: schema.FamilyString}})
		b.SetPrimaryKey(posts, "Post_pkey", postID)
	}
	return b.Build()
}

type EngineSuite struct {
	suite.Suite
	ctx    context.Context
	fs     afero.Fs
	engine *Engine
	clock  time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.fs = afero.NewMemMapFs()
	engine, err := NewEngine(s.ctx, Config{
		URL:           "file::memory:",
		SQLiteDriver:  connector.DriverSQLite,
		MigrationsDir: "migrations",
		FS:            s.fs,
		Cache:         cache.New(),
	})
	s.Require().NoError(err)
	s.clock = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	engine.now = func() time.Time {
		s.clock = s.clock.Add(time.Minute)
		return s.clock
	}
	s.engine = engine
}

func (s *EngineSuite) TearDownTest() {
	s.engine.Close()
}

func (s *EngineSuite) exec(query string) {
	_, err := s.engine.conn.ExecContext(s.ctx, query)
	s.Require().NoError(err)
}

func (s *EngineSuite) createAndApply(name string, desired *schema.Schema) string {
	res, err := s.engine.CreateMigration(s.ctx, name, desired, false)
	s.Require().NoError(err)
	s.Require().NotEmpty(res.Name)
	_, err = s.engine.ApplyMigrations(s.ctx)
	s.Require().NoError(err)
	return res.Name
}

func (s *EngineSuite) TestCreateAndApplyMigrations() {
	res, err := s.engine.CreateMigration(s.ctx, "init", blogSchema(false), false)
	s.Require().NoError(err)
	s.Equal("20240101000100_init", res.Name)
	s.Contains(res.Script, `CREATE TABLE "User"`)

	lock, err := s.engine.MigrationsDir().ReadLock()
	s.Require().NoError(err)
	s.Require().NotNil(lock)
	s.Equal("sqlite", lock.Provider)

	applied, err := s.engine.ApplyMigrations(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{res.Name}, applied.AppliedMigrationNames)

	again, err := s.engine.ApplyMigrations(s.ctx)
	s.Require().NoError(err)
	s.Empty(again.AppliedMigrationNames)

	unchanged, err := s.engine.CreateMigration(s.ctx, "noop", blogSchema(false), false)
	s.Require().NoError(err)
	s.Empty(unchanged.Name, "no migration is written without changes")

	action, err := s.engine.DevDiagnostic(s.ctx)
	s.Require().NoError(err)
	s.Equal(ActionCreateMigration, action.Kind)
}

func (s *EngineSuite) TestDraftMigration() {
	s.createAndApply("init", blogSchema(false))

	res, err := s.engine.CreateMigration(s.ctx, "custom", blogSchema(false), true)
	s.Require().NoError(err)
	s.NotEmpty(res.Name)
	s.Contains(res.Script, emptyMigrationComment)
}

func (s *EngineSuite) TestChecksumMismatch() {
	name := s.createAndApply("init", blogSchema(false))

	path := filepath.Join("migrations", name, migrations.ScriptFile)
	s.Require().NoError(afero.WriteFile(s.fs, path, []byte(`CREATE TABLE "Other" ("id" INTEGER);`), 0o644))

	_, err := s.engine.ApplyMigrations(s.ctx)
	s.Require().Error(err)
	s.True(enginerr.IsKind(err, enginerr.ChecksumMismatch))

	d, err := s.engine.DiagnoseMigrationHistory(s.ctx, false)
	s.Require().NoError(err)
	s.Equal([]string{name}, d.EditedMigrationNames)
}

func (s *EngineSuite) TestFailedMigrationBlocksApply() {
	dir := s.engine.MigrationsDir()
	broken, err := dir.Create("broken", `CREATE TABLE "a" ("id" INTEGER); CREATE TABLE "b" ("id" INTEGER;`, s.clock)
	s.Require().NoError(err)

	_, err = s.engine.ApplyMigrations(s.ctx)
	s.Require().Error(err)
	s.True(enginerr.IsKind(err, enginerr.ApplyError))

	_, err = s.engine.ApplyMigrations(s.ctx)
	s.Require().Error(err)
	s.Contains(err.Error(), "resolve it before applying new migrations")

	d, err := s.engine.DiagnoseMigrationHistory(s.ctx, false)
	s.Require().NoError(err)
	s.Equal([]string{broken.Name}, d.FailedMigrationNames)

	s.Require().NoError(s.engine.MarkMigrationRolledBack(s.ctx, broken.Name))
	path := filepath.Join("migrations", broken.Name, migrations.ScriptFile)
	s.Require().NoError(afero.WriteFile(s.fs, path, []byte(`CREATE TABLE "a" ("id" INTEGER);`), 0o644))

	applied, err := s.engine.ApplyMigrations(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{broken.Name}, applied.AppliedMigrationNames)
}

func (s *EngineSuite) TestMarkMigrationApplied() {
	res, err := s.engine.CreateMigration(s.ctx, "init", blogSchema(false), false)
	s.Require().NoError(err)

	s.Require().NoError(s.engine.MarkMigrationApplied(s.ctx, res.Name))
	applied, err := s.engine.ApplyMigrations(s.ctx)
	s.Require().NoError(err)
	s.Empty(applied.AppliedMigrationNames)

	current, err := s.engine.describe(s.ctx)
	s.Require().NoError(err)
	_, ok := current.FindTable("", "User")
	s.False(ok, "marking a migration applied does not run it")

	err = s.engine.MarkMigrationApplied(s.ctx, "missing")
	s.True(enginerr.IsKind(err, enginerr.ValidationError))
}

func (s *EngineSuite) TestProviderMismatch() {
	s.Require().NoError(s.engine.MigrationsDir().WriteLock(schema.Postgres))
	_, err := s.engine.ApplyMigrations(s.ctx)
	s.Require().Error(err)
	s.True(enginerr.IsKind(err, enginerr.ValidationError))
}

func (s *EngineSuite) TestSchemaPush() {
	res, err := s.engine.SchemaPush(s.ctx, blogSchema(true), false)
	s.Require().NoError(err)
	s.Positive(res.ExecutedSteps)

	res, err = s.engine.SchemaPush(s.ctx, blogSchema(true), false)
	s.Require().NoError(err)
	s.Zero(res.ExecutedSteps)

	s.exec(`INSERT INTO "Post" ("id", "title") VALUES (1, 'hello')`)

	res, err = s.engine.SchemaPush(s.ctx, blogSchema(false), false)
	s.Require().Error(err)
	s.True(enginerr.IsKind(err, enginerr.DestructiveChangeWarning))
	s.Require().NotNil(res)
	s.Len(res.Diagnostics.Warnings, 1)
	s.Zero(res.ExecutedSteps)

	res, err = s.engine.SchemaPush(s.ctx, blogSchema(false), true)
	s.Require().NoError(err)
	s.Positive(res.ExecutedSteps)

	current, err := s.engine.describe(s.ctx)
	s.Require().NoError(err)
	_, ok := current.FindTable("", "Post")
	s.False(ok)
}

func (s *EngineSuite) TestSchemaPushUnexecutable() {
	_, err := s.engine.SchemaPush(s.ctx, blogSchema(false), false)
	s.Require().NoError(err)
	s.exec(`INSERT INTO "User" ("email") VALUES ('a@example.com')`)

	age := schema.Column{Name: "age", Type: schema.ColumnType{Family: schema.FamilyInt}}

	res, err := s.engine.SchemaPush(s.ctx, blogSchema(false, age), true)
	s.Require().Error(err)
	s.True(enginerr.IsKind(err, enginerr.UnexecutableMigration), "force does not override unexecutable steps")
	s.Len(res.Diagnostics.Unexecutable, 1)
}

func (s *EngineSuite) TestDevDiagnosticDetectsDrift() {
	s.createAndApply("init", blogSchema(false))

	_, err := s.engine.SchemaPush(s.ctx, blogSchema(true), false)
	s.Require().NoError(err)

	action, err := s.engine.DevDiagnostic(s.ctx)
	s.Require().NoError(err)
	s.Equal(ActionReset, action.Kind)
	s.True(len(action.Reason) > len(DriftDetectedMessage))
	s.Equal(DriftDetectedMessage, action.Reason[:len(DriftDetectedMessage)])
	s.Contains(action.Reason, "Post")
}

func (s *EngineSuite) TestDiagnoseDatabaseIsBehind() {
	s.createAndApply("init", blogSchema(false))
	res, err := s.engine.CreateMigration(s.ctx, "posts", blogSchema(true), false)
	s.Require().NoError(err)

	d, err := s.engine.DiagnoseMigrationHistory(s.ctx, true)
	s.Require().NoError(err)
	s.True(d.HasMigrationsTable)
	s.Require().NotNil(d.History)
	s.Equal(DatabaseIsBehind, d.History.Kind)
	s.Equal([]string{res.Name}, d.History.UnappliedMigrationNames)
	s.Nil(d.Drift)
	s.NoError(d.ErrorInUnappliedMigration)
}

func (s *EngineSuite) TestDevDiagnosticRejectsBrokenMigration() {
	_, err := s.engine.MigrationsDir().Create("broken", `CREATE TABLE "a" ("id" INTEGER;`, s.clock)
	s.Require().NoError(err)

	_, err = s.engine.DevDiagnostic(s.ctx)
	s.Require().Error(err)
	s.True(enginerr.IsKind(err, enginerr.ApplyError))
}

func (s *EngineSuite) TestDiff() {
	res, err := s.engine.Diff(s.ctx, FromEmpty{}, FromSchema{Schema: blogSchema(true)})
	s.Require().NoError(err)
	s.Contains(res.Script, `CREATE TABLE "Post"`)
	s.Contains(res.Summary, "Added tables")

	res, err = s.engine.Diff(s.ctx, FromDatabase{}, FromMigrations{})
	s.Require().NoError(err)
	s.True(res.Migration.IsEmpty())
	s.Equal("No difference detected.", res.Summary)

	_, err = s.engine.Diff(s.ctx, FromEmpty{}, FromSchema{Schema: schema.Empty(schema.Postgres)})
	s.True(enginerr.IsKind(err, enginerr.ValidationError))
}

func (s *EngineSuite) TestDiffFromSchemaFile() {
	s.Require().NoError(schema.SaveFile(s.fs, "schema.yaml", blogSchema(true)))

	res, err := s.engine.Diff(s.ctx, FromEmpty{}, FromSchemaFile{Path: "schema.yaml"})
	s.Require().NoError(err)
	s.Contains(res.Script, `CREATE TABLE "User"`)
}

func (s *EngineSuite) TestEvaluateDataLoss() {
	s.createAndApply("init", blogSchema(true))
	s.exec(`INSERT INTO "Post" ("id", "title") VALUES (1, 'hello')`)

	res, err := s.engine.EvaluateDataLoss(s.ctx, blogSchema(false))
	s.Require().NoError(err)
	s.Positive(res.StepsCount)
	s.Require().Len(res.Diagnostics.Warnings, 1)
	s.Contains(res.Diagnostics.Warnings[0].Description, "Post")
}

func (s *EngineSuite) TestIntrospectAndReset() {
	_, err := s.engine.SchemaPush(s.ctx, blogSchema(true), false)
	s.Require().NoError(err)

	res, err := s.engine.Introspect(s.ctx)
	s.Require().NoError(err)
	s.Contains(res.DataModelText, "model User {")
	s.Contains(res.DataModelText, "model Post {")

	s.Require().NoError(s.engine.Reset(s.ctx))
	current, err := s.engine.describe(s.ctx)
	s.Require().NoError(err)
	s.True(current.IsEmpty())
}

func TestDiagnoseHistory(t *testing.T) {
	dir := func(names ...string) []migrations.Migration {
		out := make([]migrations.Migration, len(names))
		for i, n := range names {
			out[i] = migrations.Migration{Name: n}
		}
		return out
	}

	assert.Nil(t, diagnoseHistory(dir("a", "b"), []string{"a", "b"}))

	d := diagnoseHistory(dir("a", "b"), []string{"a"})
	require.NotNil(t, d)
	assert.Equal(t, DatabaseIsBehind, d.Kind)
	assert.Equal(t, []string{"b"}, d.UnappliedMigrationNames)

	d = diagnoseHistory(dir("a"), []string{"a", "b"})
	require.NotNil(t, d)
	assert.Equal(t, MigrationsDirectoryIsBehind, d.Kind)
	assert.Equal(t, []string{"b"}, d.UnpersistedMigrationNames)

	d = diagnoseHistory(dir("a", "c"), []string{"a", "b"})
	require.NotNil(t, d)
	assert.Equal(t, HistoriesDiverge, d.Kind)
	assert.Equal(t, "a", d.LastCommonMigrationName)
	assert.Equal(t, []string{"c"}, d.UnappliedMigrationNames)
	assert.Equal(t, []string{"b"}, d.UnpersistedMigrationNames)
}
