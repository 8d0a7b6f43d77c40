package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/schema-engine/cli/internal/config"
	"github.com/satishbabariya/schema-engine/migrate"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

func setupFs(t *testing.T) afero.Fs {
	t.Helper()
	old := config.AppFs
	config.AppFs = afero.NewMemMapFs()
	t.Cleanup(func() { config.AppFs = old })
	t.Setenv("SCHEMA_ENGINE_SQLITE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "")
	return config.AppFs
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeSchema(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	b := schema.NewBuilder(schema.SQLite)
	users := b.AddTable("", "User")
	id := b.AddColumn(users, schema.Column{Name: "id", Type: schema.ColumnType{Family: schema.FamilyInt}, AutoIncrement: true})
	b.SetPrimaryKey(users, "User_pkey", id)
	require.NoError(t, schema.SaveFile(fs, path, b.Build()))
}

func TestVersionCommand(t *testing.T) {
	setupFs(t)
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "schema-engine version")
}

func TestDiffCommand(t *testing.T) {
	fs := setupFs(t)
	writeSchema(t, fs, "schema.yaml")

	_, err := run(t, "diff", "--url", "file::memory:", "--from", "empty", "--to", "schema", "--exit-code")
	assert.ErrorIs(t, err, errChangesDetected)

	_, err = run(t, "diff", "--url", "file::memory:", "--from", "empty", "--to", "empty", "--exit-code")
	assert.NoError(t, err)
}

func TestDiffCommandRequiresURL(t *testing.T) {
	setupFs(t)
	_, err := run(t, "diff", "--from", "empty", "--to", "empty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database url")
}

func TestResolveRequiresOneFlag(t *testing.T) {
	setupFs(t)
	_, err := run(t, "migrate", "resolve", "--url", "file::memory:")
	require.Error(t, err)
	_, err = run(t, "migrate", "resolve", "--url", "file::memory:", "--applied", "a", "--rolled-back", "b")
	require.Error(t, err)
}

func TestMigrateCreateCommand(t *testing.T) {
	fs := setupFs(t)
	writeSchema(t, fs, "schema.yaml")

	_, err := run(t, "migrate", "create", "--url", "file::memory:", "--name", "init")
	require.NoError(t, err)

	entries, err := afero.ReadDir(fs, "migrations")
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "migration_lock.toml")
	assert.Len(t, names, 2)
}

func TestSource(t *testing.T) {
	a := &app{cfg: &config.Config{SchemaPath: "schema.yaml"}}

	cases := map[string]migrate.Source{
		"empty":      migrate.FromEmpty{},
		"database":   migrate.FromDatabase{},
		"migrations": migrate.FromMigrations{},
		"schema":     migrate.FromSchemaFile{Path: "schema.yaml"},
		"next.json":  migrate.FromSchemaFile{Path: "next.json"},
	}
	for arg, want := range cases {
		got, err := a.source(arg)
		require.NoError(t, err, arg)
		assert.Equal(t, want, got, arg)
	}

	_, err := a.source("")
	assert.Error(t, err)
}

func TestIsDocumentPath(t *testing.T) {
	assert.True(t, isDocumentPath("out/schema.YAML"))
	assert.True(t, isDocumentPath("schema.json"))
	assert.False(t, isDocumentPath("schema.sql"))
}
