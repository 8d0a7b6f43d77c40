package migrations

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

var created = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func TestFolderName(t *testing.T) {
	assert.Equal(t, "20240301123000_add_users", FolderName("Add users", created))
	assert.Equal(t, "20240301123000_init", FolderName("--init--", created))
	assert.Equal(t, "20240301123000", FolderName("", created))
}

func TestListMissingDirectory(t *testing.T) {
	list, err := Open(afero.NewMemMapFs(), "migrations").List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateAndList(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := Open(fs, "migrations")

	second, err := d.Create("posts", "CREATE TABLE b (id INTEGER);", created.Add(time.Hour))
	require.NoError(t, err)
	first, err := d.Create("init", "CREATE TABLE a (id INTEGER);", created)
	require.NoError(t, err)
	require.NoError(t, fs.MkdirAll(filepath.Join("migrations", "20240101000000_empty"), 0o755))

	list, err := d.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.Name, list[0].Name)
	assert.Equal(t, second.Name, list[1].Name)

	script, err := d.ReadScript(first.Name)
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE a (id INTEGER);", script)

	_, err = d.Create("init", "", created)
	assert.Error(t, err, "the folder already exists")
}

func TestLockFile(t *testing.T) {
	d := Open(afero.NewMemMapFs(), "migrations")

	l, err := d.ReadLock()
	require.NoError(t, err)
	assert.Nil(t, l)
	require.NoError(t, d.CheckProvider(schema.Postgres))

	require.NoError(t, d.WriteLock(schema.SQLite))
	l, err = d.ReadLock()
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "sqlite", l.Provider)

	require.NoError(t, d.CheckProvider(schema.SQLite))
	err = d.CheckProvider(schema.Postgres)
	require.Error(t, err)
	assert.True(t, enginerr.IsKind(err, enginerr.ValidationError))
}

func TestLockFileAcceptsProviderAliases(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, filepath.Join("migrations", LockFile), []byte(`provider = "postgres"`), 0o644))
	assert.NoError(t, Open(fs, "migrations").CheckProvider(schema.Postgres))
}

func TestHash(t *testing.T) {
	fs := afero.NewMemMapFs()
	d := Open(fs, "migrations")

	empty, err := d.Hash()
	require.NoError(t, err)

	m, err := d.Create("init", "CREATE TABLE a (id INTEGER);", created)
	require.NoError(t, err)
	one, err := d.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, empty, one)

	again, err := d.Hash()
	require.NoError(t, err)
	assert.Equal(t, one, again)

	require.NoError(t, afero.WriteFile(fs, filepath.Join("migrations", m.Name, ScriptFile), []byte("CREATE TABLE a (id BIGINT);"), 0o644))
	edited, err := d.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, one, edited)
}

func TestChecksum(t *testing.T) {
	a := Migration{Name: "a", Script: "SELECT 1;"}
	b := Migration{Name: "b", Script: "SELECT 1;"}
	assert.Equal(t, a.Checksum(), b.Checksum())
	assert.Len(t, a.Checksum(), 64)
}
