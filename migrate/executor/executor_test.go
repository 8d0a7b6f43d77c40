package executor

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/connector"
	"github.com/satishbabariya/schema-engine/migrate/flavour"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

func openSQLite(t *testing.T) (*connector.Conn, flavour.Flavour) {
	t.Helper()
	conn, err := connector.Open(context.Background(), "file::memory:", connector.WithSQLiteDriver(connector.DriverSQLite))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	f, err := flavour.New(schema.SQLite, "3.45.0")
	require.NoError(t, err)
	return conn, f
}

// nonTransactional runs the statement-by-statement path on SQLite.
type nonTransactional struct {
	flavour.Flavour
}

func (nonTransactional) SupportsTransactionalDDL() bool { return false }

func tableCount(t *testing.T, conn *connector.Conn) int {
	t.Helper()
	var n int
	err := conn.QueryRowContext(context.Background(),
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name IN ('a', 'b')`).Scan(&n)
	require.NoError(t, err)
	return n
}

const failingScript = `
CREATE TABLE "a" ("id" INTEGER);
-- the next statement is broken
CREATE TABLE "b" ("id" INTEGER;
`

func TestApplyScript(t *testing.T) {
	conn, f := openSQLite(t)
	e := NewExecutor(conn, f)

	require.NoError(t, e.ApplyScript(context.Background(), `CREATE TABLE "a" ("id" INTEGER); CREATE TABLE "b" ("v" TEXT DEFAULT 'x;y');`))
	assert.Equal(t, 2, tableCount(t, conn))
}

func TestApplyScriptRollsBackOnFailure(t *testing.T) {
	conn, f := openSQLite(t)
	e := NewExecutor(conn, f)

	err := e.ApplyScript(context.Background(), failingScript)
	require.Error(t, err)
	assert.True(t, enginerr.IsKind(err, enginerr.ApplyError))

	var ee *enginerr.Error
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.Context()["statement_index"])
	assert.Equal(t, 0, tableCount(t, conn), "the transaction is rolled back")
}

func TestApplyScriptWithoutTransaction(t *testing.T) {
	conn, f := openSQLite(t)
	e := NewExecutor(conn, nonTransactional{f})

	require.Error(t, e.ApplyScript(context.Background(), failingScript))
	assert.Equal(t, 1, tableCount(t, conn), "statements before the failure stay applied")
}

func TestApplyMigrationRecordsSuccess(t *testing.T) {
	ctx := context.Background()
	conn, f := openSQLite(t)
	e := NewMigrationExecutor(conn, f)
	require.NoError(t, e.EnsureMigrationTable(ctx))

	require.NoError(t, e.ApplyMigration(ctx, "20240101000000_init", `CREATE TABLE "a" ("id" INTEGER); CREATE TABLE "b" ("id" INTEGER);`))

	records, err := e.History().ListMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsFinished())
	assert.Equal(t, 2, records[0].AppliedStepsCount)
	assert.Empty(t, records[0].Logs)
}

func TestApplyMigrationRecordsFailure(t *testing.T) {
	ctx := context.Background()
	conn, f := openSQLite(t)
	e := NewMigrationExecutor(conn, nonTransactional{f})
	require.NoError(t, e.EnsureMigrationTable(ctx))

	err := e.ApplyMigration(ctx, "20240101000000_init", failingScript)
	require.Error(t, err)
	assert.True(t, enginerr.IsKind(err, enginerr.ApplyError))

	records, err := e.History().ListMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsFailed())
	assert.Equal(t, 1, records[0].AppliedStepsCount)
	assert.Contains(t, records[0].Logs, "failed to execute statement 2")
}

// cancellingConn cancels the migration context as the transaction begins,
// as a statement timeout expiring mid-migration would.
type cancellingConn struct {
	*connector.Conn
	cancel context.CancelFunc
}

func (c cancellingConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	c.cancel()
	return c.Conn.BeginTx(ctx, opts)
}

func TestApplyMigrationLeavesRecordUnfinishedOnCancel(t *testing.T) {
	conn, f := openSQLite(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := NewMigrationExecutor(cancellingConn{Conn: conn, cancel: cancel}, f)
	require.NoError(t, e.EnsureMigrationTable(ctx))

	err := e.ApplyMigration(ctx, "20240101000000_init", `CREATE TABLE "a" ("id" INTEGER);`)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	records, err := e.History().ListMigrations(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsFailed())
	assert.NotEmpty(t, records[0].Logs)
	assert.Equal(t, 0, tableCount(t, conn))
}

const redefineUserScript = `
PRAGMA defer_foreign_keys=ON;
PRAGMA foreign_keys=OFF;
CREATE TABLE "new_User" ("id" INTEGER NOT NULL PRIMARY KEY);
INSERT INTO "new_User" ("id") SELECT "id" FROM "User" %s;
DROP TABLE "User";
ALTER TABLE "new_User" RENAME TO "User";
PRAGMA foreign_keys=ON;
PRAGMA defer_foreign_keys=OFF;
`

func seedUsersAndPosts(t *testing.T, conn *connector.Conn) {
	t.Helper()
	ctx := context.Background()
	for _, stmt := range []string{
		`CREATE TABLE "User" ("id" INTEGER NOT NULL PRIMARY KEY, "nick" TEXT)`,
		`CREATE TABLE "Post" ("id" INTEGER NOT NULL PRIMARY KEY, "userId" INTEGER NOT NULL REFERENCES "User" ("id") ON DELETE CASCADE)`,
		`INSERT INTO "User" ("id", "nick") VALUES (1, 'ann')`,
		`INSERT INTO "Post" ("id", "userId") VALUES (10, 1)`,
	} {
		_, err := conn.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
}

func countRows(t *testing.T, conn *connector.Conn, table string) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRowContext(context.Background(), `SELECT count(*) FROM "`+table+`"`).Scan(&n))
	return n
}

func foreignKeysEnabled(t *testing.T, conn *connector.Conn) bool {
	t.Helper()
	var on int
	require.NoError(t, conn.QueryRowContext(context.Background(), "PRAGMA foreign_keys").Scan(&on))
	return on == 1
}

func TestApplyScriptRedefinesReferencedTable(t *testing.T) {
	conn, f := openSQLite(t)
	seedUsersAndPosts(t, conn)
	require.True(t, foreignKeysEnabled(t, conn))

	e := NewExecutor(conn, f)
	require.NoError(t, e.ApplyScript(context.Background(), fmt.Sprintf(redefineUserScript, "")))

	assert.Equal(t, 1, countRows(t, conn, "User"))
	assert.Equal(t, 1, countRows(t, conn, "Post"), "dropping the old table does not cascade")
	assert.True(t, foreignKeysEnabled(t, conn))
}

func TestApplyScriptRejectsDanglingReferences(t *testing.T) {
	conn, f := openSQLite(t)
	seedUsersAndPosts(t, conn)

	e := NewExecutor(conn, f)
	err := e.ApplyScript(context.Background(), fmt.Sprintf(redefineUserScript, `WHERE "id" <> 1`))
	require.Error(t, err)
	assert.True(t, enginerr.IsKind(err, enginerr.ApplyError))

	var nick sql.NullString
	require.NoError(t, conn.QueryRowContext(context.Background(), `SELECT "nick" FROM "User" WHERE "id" = 1`).Scan(&nick))
	assert.Equal(t, "ann", nick.String, "the redefinition is rolled back")
	assert.Equal(t, 1, countRows(t, conn, "Post"))
	assert.True(t, foreignKeysEnabled(t, conn))
}
