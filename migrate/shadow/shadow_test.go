package shadow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/connector"
	"github.com/satishbabariya/schema-engine/migrate/migrations"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

var history = []migrations.Migration{
	{Name: "20240101000000_init", Script: `CREATE TABLE "User" ("id" INTEGER NOT NULL PRIMARY KEY, "email" TEXT NOT NULL);`},
	{Name: "20240102000000_posts", Script: `
CREATE TABLE "Post" (
	"id" INTEGER NOT NULL PRIMARY KEY,
	"authorId" INTEGER NOT NULL,
	CONSTRAINT "Post_authorId_fkey" FOREIGN KEY ("authorId") REFERENCES "User"("id") ON DELETE RESTRICT ON UPDATE CASCADE
);
CREATE INDEX "Post_authorId_idx" ON "Post"("authorId");`},
}

func newSQLiteShadow(t *testing.T) *ShadowDB {
	t.Helper()
	s := NewShadowDB(schema.SQLite, "", "", connector.WithSQLiteDriver(connector.DriverSQLite))
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestReplaySQLite(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteShadow(t)

	result, err := s.Replay(ctx, history, nil)
	require.NoError(t, err)
	require.Len(t, result.Tables, 2)

	post, ok := result.FindTable("", "Post")
	require.True(t, ok)
	require.Len(t, post.ForeignKeys(), 1)
	assert.Equal(t, "User", post.ForeignKeys()[0].ReferencedTable().Name())
	assert.Len(t, post.SecondaryIndexes(), 1)
}

func TestReplayResetsBetweenRuns(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteShadow(t)

	_, err := s.Replay(ctx, history, nil)
	require.NoError(t, err)

	result, err := s.Replay(ctx, history[:1], nil)
	require.NoError(t, err)
	require.Len(t, result.Tables, 1)
	assert.Equal(t, "User", result.Tables[0].Name)
}

func TestReplayEmptyDirectory(t *testing.T) {
	result, err := newSQLiteShadow(t).Replay(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.True(t, result.IsEmpty())
}

func TestReplayReportsFailingMigration(t *testing.T) {
	broken := append([]migrations.Migration{}, history[0], migrations.Migration{
		Name:   "20240103000000_broken",
		Script: `ALTER TABLE "Missing" ADD COLUMN "x" INTEGER;`,
	})

	_, err := newSQLiteShadow(t).Replay(context.Background(), broken, nil)
	require.Error(t, err)
	assert.True(t, enginerr.IsKind(err, enginerr.ApplyError))

	var ee *enginerr.Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "20240103000000_broken", ee.Context()["migration"])
}

func TestConnectRequiresURL(t *testing.T) {
	s := NewShadowDB(schema.Postgres, "", "")
	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, enginerr.IsKind(err, enginerr.ValidationError))
}

func TestGenerateShadowURL(t *testing.T) {
	tests := []struct {
		dialect schema.Dialect
		main    string
		want    string
		name    string
	}{
		{schema.Postgres, "postgresql://u:p@localhost:5432/app?schema=public", "postgresql://u:p@localhost:5432/app_shadow?schema=public", "app_shadow"},
		{schema.MySQL, "mysql://root@localhost:3306/app", "mysql://root@localhost:3306/app_shadow", "app_shadow"},
		{schema.MSSQL, "sqlserver://sa:p@localhost:1433?database=app", "sqlserver://sa:p@localhost:1433?database=app_shadow", "app_shadow"},
	}
	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			got, name, err := generateShadowURL(tt.dialect, tt.main)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.name, name)
		})
	}

	_, _, err := generateShadowURL(schema.Postgres, "postgresql://localhost:5432")
	assert.Error(t, err)
}

func TestCreateDatabaseSQL(t *testing.T) {
	assert.Equal(t, `CREATE DATABASE "app_shadow"`, createDatabaseSQL(schema.Postgres, `"app_shadow"`, "app_shadow"))
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS `app_shadow`", createDatabaseSQL(schema.MySQL, "`app_shadow`", "app_shadow"))
	assert.Equal(t, "IF DB_ID(N'app_shadow') IS NULL CREATE DATABASE [app_shadow]", createDatabaseSQL(schema.MSSQL, "[app_shadow]", "app_shadow"))
}
