package introspect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/connector"
	"github.com/satishbabariya/schema-engine/migrate/diff"
	"github.com/satishbabariya/schema-engine/migrate/flavour"
	"github.com/satishbabariya/schema-engine/migrate/schema"
	"github.com/satishbabariya/schema-engine/migrate/sqlgen"
)

func openSQLite(t *testing.T) *connector.Conn {
	t.Helper()
	conn, err := connector.Open(context.Background(), "file::memory:", connector.WithSQLiteDriver(connector.DriverSQLite))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func execScript(t *testing.T, conn *connector.Conn, script string) {
	t.Helper()
	stmts, err := sqlgen.SplitStatements(script)
	require.NoError(t, err)
	for _, stmt := range stmts {
		_, err := conn.ExecContext(context.Background(), stmt)
		require.NoError(t, err, stmt)
	}
}

const blogDDL = `
CREATE TABLE "User" (
	"id" INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
	"email" TEXT NOT NULL,
	"name" VARCHAR(100),
	"active" BOOLEAN NOT NULL DEFAULT false,
	"createdAt" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	"score" REAL DEFAULT 1.5,
	"geometry" GEOMETRY
);
CREATE UNIQUE INDEX "User_email_key" ON "User"("email");
CREATE TABLE "Post" (
	"id" INTEGER NOT NULL,
	"authorId" INTEGER,
	"title" TEXT NOT NULL DEFAULT 'untitled',
	PRIMARY KEY ("id"),
	CONSTRAINT "Post_authorId_fkey" FOREIGN KEY ("authorId") REFERENCES "User"("id") ON DELETE CASCADE ON UPDATE CASCADE
);
CREATE INDEX "Post_title_authorId_idx" ON "Post"("title" DESC, "authorId");
CREATE TABLE "Log" ("message" TEXT);
CREATE VIEW "ActiveUsers" AS SELECT "id", "email" FROM "User" WHERE "active";
`

func TestDescribeSQLite(t *testing.T) {
	conn := openSQLite(t)
	execScript(t, conn, blogDDL)

	s, err := Describe(context.Background(), conn, nil)
	require.NoError(t, err)
	assert.Equal(t, schema.SQLite, s.Dialect)
	require.Len(t, s.Tables, 3)

	user, ok := s.FindTable("", "User")
	require.True(t, ok)

	id, ok := user.Column("id")
	require.True(t, ok)
	assert.True(t, id.IsAutoIncrement())
	assert.True(t, id.IsSinglePrimaryKey())
	assert.Equal(t, schema.FamilyInt, id.Type().Family)

	name, _ := user.Column("name")
	assert.Equal(t, schema.FamilyString, name.Type().Family)
	assert.Equal(t, schema.Nullable, name.Arity())
	assert.Equal(t, &schema.NativeType{Name: "varchar", Args: []string{"100"}}, name.Type().Native)

	active, _ := user.Column("active")
	assert.Equal(t, schema.FamilyBoolean, active.Type().Family)
	assert.Equal(t, schema.ValueDefault(schema.LiteralBoolean, "false"), active.Default())

	createdAt, _ := user.Column("createdAt")
	assert.Equal(t, schema.DefaultNow, createdAt.Default().Kind)

	score, _ := user.Column("score")
	assert.Equal(t, schema.ValueDefault(schema.LiteralNumber, "1.5"), score.Default())

	geometry, _ := user.Column("geometry")
	assert.True(t, geometry.Type().IsUnsupported())
	assert.Equal(t, "GEOMETRY", geometry.Type().FullDataType)

	secondary := user.SecondaryIndexes()
	require.Len(t, secondary, 1)
	assert.Equal(t, "User_email_key", secondary[0].Name())
	assert.True(t, secondary[0].IsUnique())

	post, ok := s.FindTable("", "Post")
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, post.PrimaryKeyColumnNames())
	title, _ := post.Column("title")
	assert.Equal(t, schema.ValueDefault(schema.LiteralString, "untitled"), title.Default())

	idx := post.SecondaryIndexes()
	require.Len(t, idx, 1)
	assert.Equal(t, []string{"title", "authorId"}, idx[0].ColumnNames())
	assert.Equal(t, schema.Desc, idx[0].IndexColumns()[0].SortOrder)

	fks := post.ForeignKeys()
	require.Len(t, fks, 1)
	assert.Equal(t, "Post_authorId_fkey", fks[0].ConstraintName())
	assert.Equal(t, "User", fks[0].ReferencedTable().Name())
	assert.Equal(t, []string{"id"}, fks[0].ReferencedColumnNames())
	assert.Equal(t, schema.Cascade, fks[0].OnDelete())

	views := s.WalkViews()
	require.Len(t, views, 1)
	assert.Equal(t, "ActiveUsers", views[0].Name())
	assert.Equal(t, `SELECT "id", "email" FROM "User" WHERE "active"`, views[0].Definition())
}

func TestDescribeSQLiteRoundTrip(t *testing.T) {
	b := schema.NewBuilder(schema.SQLite)
	users := b.AddTable("", "User")
	userID := b.AddColumn(users, schema.Column{Name: "id", Type: schema.ColumnType{Family: schema.FamilyInt}, AutoIncrement: true})
	email := b.AddColumn(users, schema.Column{Name: "email", Type: schema.ColumnType{Family: schema.FamilyString}})
	b.AddColumn(users, schema.Column{
		Name:    "active",
		Type:    schema.ColumnType{Family: schema.FamilyBoolean},
		Default: schema.ValueDefault(schema.LiteralBoolean, "true"),
	})
	b.SetPrimaryKey(users, "User_pkey", userID)
	b.AddIndex(users, "User_email_key", schema.IndexUnique, email)

	posts := b.AddTable("", "Post")
	postID := b.AddColumn(posts, schema.Column{Name: "id", Type: schema.ColumnType{Family: schema.FamilyInt}})
	author := b.AddColumn(posts, schema.Column{Name: "authorId", Type: schema.ColumnType{Family: schema.FamilyInt, Arity: schema.Nullable}})
	b.SetPrimaryKey(posts, "Post_pkey", postID)
	b.AddForeignKey(posts, []schema.ColumnID{author}, users, []schema.ColumnID{userID}, schema.SetNull, schema.Cascade, "Post_authorId_fkey")
	desired := b.Build()

	f, err := flavour.New(schema.SQLite, "3.45.0")
	require.NoError(t, err)

	conn := openSQLite(t)
	execScript(t, conn, f.RenderScript(diff.Diff(schema.Empty(schema.SQLite), desired, f)))

	described, err := Describe(context.Background(), conn, nil)
	require.NoError(t, err)

	m := diff.Diff(described, desired, f)
	assert.True(t, m.IsEmpty(), "unexpected steps: %v", m.Steps)
}

func TestDescribeUnsupportedDialect(t *testing.T) {
	_, err := Describe(context.Background(), fakeConn{dialect: "oracle"}, nil)
	require.Error(t, err)
	assert.True(t, enginerr.IsKind(err, enginerr.DescribeError))
}

type fakeConn struct {
	Queryer
	dialect schema.Dialect
}

func (c fakeConn) Dialect() schema.Dialect { return c.dialect }

func TestPurgeDanglingForeignKeys(t *testing.T) {
	b := schema.NewBuilder(schema.Postgres)
	a := b.AddTable("public", "a")
	ac := b.AddColumn(a, schema.Column{Name: "id", Type: schema.ColumnType{Family: schema.FamilyInt}})
	c := b.AddTable("public", "c")
	cc := b.AddColumn(c, schema.Column{Name: "a_id", Type: schema.ColumnType{Family: schema.FamilyInt}})
	b.AddForeignKey(c, []schema.ColumnID{cc}, a, []schema.ColumnID{ac}, schema.NoAction, schema.NoAction, "kept")
	b.AddForeignKey(c, []schema.ColumnID{cc}, a, []schema.ColumnID{ac}, schema.NoAction, schema.NoAction, "dangling")
	s := b.Build()
	s.ForeignKeys[1].ReferencedTable = danglingTable

	assert.Equal(t, 1, PurgeDanglingForeignKeys(s))
	require.Len(t, s.ForeignKeys, 1)
	assert.Equal(t, "kept", s.ForeignKeys[0].ConstraintName)
	assert.Equal(t, 0, PurgeDanglingForeignKeys(s))
}

func TestIntrospectSQLite(t *testing.T) {
	conn := openSQLite(t)
	execScript(t, conn, blogDDL)

	res, err := Introspect(context.Background(), conn, nil)
	require.NoError(t, err)
	assert.False(t, res.IsEmpty)

	assert.Contains(t, res.DataModelText, "model User {")
	assert.Contains(t, res.DataModelText, "@id @default(autoincrement())")
	assert.Contains(t, res.DataModelText, "@unique")
	assert.Contains(t, res.DataModelText, `Unsupported("GEOMETRY")`)
	assert.Contains(t, res.DataModelText, "@relation(fields: [authorId], references: [id], onDelete: Cascade, onUpdate: Cascade)")
	assert.Contains(t, res.DataModelText, "@@index([title, authorId])")

	codes := map[string][]string{}
	for _, w := range res.Warnings {
		codes[w.Code] = w.Affected
	}
	assert.Equal(t, []string{"User.geometry (GEOMETRY)"}, codes[WarnUnsupportedType])
	assert.Equal(t, []string{"Log"}, codes[WarnNoUniqueIdentity])

	require.Len(t, res.ViewDefinitions, 1)
	assert.Equal(t, "ActiveUsers", res.ViewDefinitions[0].Name)
}

func TestIntrospectEmptyDatabase(t *testing.T) {
	res, err := Introspect(context.Background(), openSQLite(t), nil)
	require.NoError(t, err)
	assert.True(t, res.IsEmpty)
	assert.Empty(t, res.Warnings)
}
