package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useMemFs(t *testing.T) afero.Fs {
	t.Helper()
	prev := AppFs
	AppFs = afero.NewMemMapFs()
	t.Cleanup(func() { AppFs = prev })
	return AppFs
}

func writeProjectConfig(t *testing.T, fs afero.Fs, content string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(wd, configName+".yaml"), []byte(content), 0o644))
}

func TestLoadConfigDefaults(t *testing.T) {
	useMemFs(t)
	t.Setenv("DATABASE_URL", "file:dev.db")

	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "file:dev.db", cfg.DatabaseURL)
	assert.Equal(t, "migrations", cfg.MigrationsDir)
	assert.Equal(t, "schema.yaml", cfg.SchemaPath)
	assert.Equal(t, "sqlite3", cfg.SQLiteDriver)
	assert.Zero(t, cfg.StatementTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromFile(t *testing.T) {
	fs := useMemFs(t)
	writeProjectConfig(t, fs, `
database_url: postgresql://localhost:5432/app
migrations_dir: db/migrations
namespaces: [public, audit]
postgres_driver: pgx
statement_timeout: 30s
`)

	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "postgresql://localhost:5432/app", cfg.DatabaseURL)
	assert.Equal(t, "db/migrations", cfg.MigrationsDir)
	assert.Equal(t, []string{"public", "audit"}, cfg.Namespaces)
	assert.Equal(t, "pgx", cfg.PostgresDriver)
	assert.Equal(t, 30*time.Second, cfg.StatementTimeout)

	engine := cfg.Engine()
	assert.Equal(t, cfg.DatabaseURL, engine.URL)
	assert.Equal(t, 30*time.Second, engine.StatementTimeout)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	fs := useMemFs(t)
	writeProjectConfig(t, fs, "migrations_dir: db/migrations\n")
	t.Setenv("SCHEMA_ENGINE_MIGRATIONS_DIR", "env/migrations")

	cfg, err := LoadConfig(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "env/migrations", cfg.MigrationsDir)
}

func TestValidate(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.Error(t, (&Config{DatabaseURL: "file:dev.db", StatementTimeout: -time.Second}).Validate())
}

func TestSaveConfig(t *testing.T) {
	fs := useMemFs(t)
	cfg := &Config{MigrationsDir: "db/migrations", SchemaPath: "schema.json", StatementTimeout: time.Minute}

	path := filepath.Join("project", configName+".yaml")
	require.NoError(t, SaveConfig(viper.New(), cfg, path))

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "migrations_dir: db/migrations")
	assert.Contains(t, string(data), "statement_timeout: 1m0s")
}
