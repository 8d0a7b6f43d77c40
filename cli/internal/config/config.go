// Package config loads the CLI configuration from .schema-engine.yaml, the
// environment and .env files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/satishbabariya/schema-engine/migrate"
)

var AppFs = afero.NewOsFs()

const (
	configName = ".schema-engine"
	envPrefix  = "SCHEMA_ENGINE"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL       string
	ShadowDatabaseURL string
	MigrationsDir     string
	SchemaPath        string
	Namespaces        []string
	PostgresDriver    string
	SQLiteDriver      string
	StatementTimeout  time.Duration
	Debug             bool
}

// SetDefaults registers the default values of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("migrations_dir", "migrations")
	v.SetDefault("schema_path", "schema.yaml")
	v.SetDefault("postgres_driver", "pq")
	v.SetDefault("sqlite_driver", "sqlite3")
	v.SetDefault("statement_timeout", time.Duration(0))
	v.SetDefault("debug", false)
}

// LoadConfig loads configuration from various sources
func LoadConfig(v *viper.Viper) (*Config, error) {
	home, err := homedir.Dir()
	if err != nil {
		return nil, fmt.Errorf("failed to find home directory: %w", err)
	}

	v.SetFs(AppFs)
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(home)
	v.AddConfigPath(filepath.Join(home, ".config", "schema-engine"))

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// .env.local overrides .env; neither overrides the real environment.
	if _, err := AppFs.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}
	if _, err := AppFs.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return nil, fmt.Errorf("failed to load .env.local: %w", err)
		}
	}

	cfg := &Config{
		DatabaseURL:       v.GetString("database_url"),
		ShadowDatabaseURL: v.GetString("shadow_database_url"),
		MigrationsDir:     v.GetString("migrations_dir"),
		SchemaPath:        v.GetString("schema_path"),
		Namespaces:        v.GetStringSlice("namespaces"),
		PostgresDriver:    v.GetString("postgres_driver"),
		SQLiteDriver:      v.GetString("sqlite_driver"),
		StatementTimeout:  v.GetDuration("statement_timeout"),
		Debug:             v.GetBool("debug"),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.ShadowDatabaseURL == "" {
		cfg.ShadowDatabaseURL = os.Getenv("SHADOW_DATABASE_URL")
	}
	return cfg, nil
}

// Validate checks the keys every engine command needs.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("no database url: set database_url, %s_DATABASE_URL or DATABASE_URL", envPrefix)
	}
	if c.StatementTimeout < 0 {
		return fmt.Errorf("statement_timeout must not be negative")
	}
	return nil
}

// Engine returns the engine configuration.
func (c *Config) Engine() migrate.Config {
	return migrate.Config{
		URL:               c.DatabaseURL,
		ShadowDatabaseURL: c.ShadowDatabaseURL,
		MigrationsDir:     c.MigrationsDir,
		Namespaces:        c.Namespaces,
		PostgresDriver:    c.PostgresDriver,
		SQLiteDriver:      c.SQLiteDriver,
		StatementTimeout:  c.StatementTimeout,
		FS:                AppFs,
	}
}

// SaveConfig saves configuration to file
func SaveConfig(v *viper.Viper, cfg *Config, path string) error {
	v.Set("shadow_database_url", cfg.ShadowDatabaseURL)
	v.Set("migrations_dir", cfg.MigrationsDir)
	v.Set("schema_path", cfg.SchemaPath)
	v.Set("namespaces", cfg.Namespaces)
	v.Set("postgres_driver", cfg.PostgresDriver)
	v.Set("sqlite_driver", cfg.SQLiteDriver)
	v.Set("statement_timeout", cfg.StatementTimeout.String())
	v.Set("debug", cfg.Debug)

	if path == "" {
		home, err := homedir.Dir()
		if err != nil {
			return fmt.Errorf("failed to find home directory: %w", err)
		}
		path = filepath.Join(home, ".config", "schema-engine", configName+".yaml")
	}
	if err := AppFs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	v.SetFs(AppFs)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
