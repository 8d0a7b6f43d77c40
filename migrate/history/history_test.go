package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/connector"
	"github.com/satishbabariya/schema-engine/migrate/flavour"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	ctx := context.Background()
	conn, err := connector.Open(ctx, "file::memory:", connector.WithSQLiteDriver(connector.DriverSQLite))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	f, err := flavour.New(schema.SQLite, "")
	require.NoError(t, err)
	m := NewManager(conn, f)
	require.False(t, m.Exists(ctx))
	require.NoError(t, m.InitTable(ctx))
	require.NoError(t, m.InitTable(ctx), "creating the table twice is a no-op")
	require.True(t, m.Exists(ctx))
	return m
}

func TestMigrationLifecycle(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	id, err := m.StartMigration(ctx, "20240101000000_init", CalculateChecksum("CREATE TABLE a (id INT);"))
	require.NoError(t, err)
	require.NoError(t, m.IncrementAppliedSteps(ctx, id))
	require.NoError(t, m.IncrementAppliedSteps(ctx, id))

	records, err := m.ListMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsFailed(), "a started migration is unfinished")
	assert.Equal(t, 2, records[0].AppliedStepsCount)

	require.NoError(t, m.FinishMigration(ctx, id))
	records, err = m.ListMigrations(ctx)
	require.NoError(t, err)
	assert.True(t, records[0].IsFinished())
	assert.False(t, records[0].IsRolledBack())
	assert.Equal(t, id, records[0].ID)
	assert.Equal(t, "20240101000000_init", records[0].MigrationName)
	assert.False(t, records[0].StartedAt.IsZero())
}

func TestRecordFailureAppendsLogs(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	id, err := m.StartMigration(ctx, "20240101000000_init", "abc")
	require.NoError(t, err)
	require.NoError(t, m.RecordFailure(ctx, id, "first"))
	require.NoError(t, m.RecordFailure(ctx, id, "second"))
	require.NoError(t, m.SetAppliedSteps(ctx, id, 3))

	records, err := m.ListMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "first\nsecond", records[0].Logs)
	assert.Equal(t, 3, records[0].AppliedStepsCount)
	assert.True(t, records[0].IsFailed())
}

func TestMarkRolledBack(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	err := m.MarkRolledBack(ctx, "20240101000000_init")
	assert.True(t, enginerr.IsKind(err, enginerr.PersistenceError), "nothing to roll back")

	_, err = m.StartMigration(ctx, "20240101000000_init", "abc")
	require.NoError(t, err)
	require.NoError(t, m.MarkRolledBack(ctx, "20240101000000_init"))

	records, err := m.ListMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsRolledBack())
	assert.False(t, records[0].IsFailed())
}

func TestMarkApplied(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	_, err := m.StartMigration(ctx, "20240101000000_init", "abc")
	require.NoError(t, err)
	require.NoError(t, m.MarkApplied(ctx, "20240101000000_init", "abc"))

	records, err := m.ListMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	var finished, rolledBack int
	for _, r := range records {
		if r.IsRolledBack() {
			rolledBack++
		}
		if r.IsFinished() {
			finished++
		}
	}
	assert.Equal(t, 1, rolledBack, "the failed attempt is resolved")
	assert.Equal(t, 1, finished)

	err = m.MarkApplied(ctx, "20240101000000_init", "abc")
	assert.True(t, enginerr.IsKind(err, enginerr.PersistenceError))
}

func TestCalculateChecksum(t *testing.T) {
	sum := CalculateChecksum("SELECT 1;")
	assert.Len(t, sum, 64)
	assert.Equal(t, sum, CalculateChecksum("SELECT 1;"))
	assert.NotEqual(t, sum, CalculateChecksum("SELECT 2;"))
}

func TestScanTime(t *testing.T) {
	got, err := scanTime("2024-03-01 10:20:30.123+00:00")
	require.NoError(t, err)
	assert.Equal(t, 2024, got.Year())

	got, err = scanTime([]byte("2024-03-01 10:20:30"))
	require.NoError(t, err)
	assert.Equal(t, 30, got.Second())

	got, err = scanTime(nil)
	assert.NoError(t, err)
	assert.Nil(t, got)

	_, err = scanTime("yesterday")
	assert.Error(t, err)
}
