// Package migrations reads and writes the migrations directory: one folder per
// migration named {timestamp}_{name} holding a migration.sql script, and a
// migration_lock.toml recording the provider.
package migrations

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cbergoon/merkletree"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"github.com/satishbabariya/schema-engine/internal/enginerr"
	"github.com/satishbabariya/schema-engine/migrate/history"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

const (
	// ScriptFile is the script inside each migration folder.
	ScriptFile = "migration.sql"
	// LockFile records the provider the directory was created for.
	LockFile = "migration_lock.toml"

	timestampLayout = "20060102150405"
	lockHeader      = "# Please do not edit this file manually\n# It should be added in your version-control system (e.g., Git)\n"
)

// Migration is one folder of the directory.
type Migration struct {
	// Name is the folder name, {timestamp}_{name}.
	Name   string
	Script string
}

// Checksum is the checksum recorded in the ledger for this script.
func (m Migration) Checksum() string {
	return history.CalculateChecksum(m.Script)
}

// Dir is a migrations directory on an afero filesystem.
type Dir struct {
	fs   afero.Fs
	path string
}

// Open returns the directory at path. It does not need to exist yet.
func Open(fs afero.Fs, path string) *Dir {
	return &Dir{fs: fs, path: path}
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

// List returns the migrations in name order, which is the order they apply
// in. Folders without a script are skipped.
func (d *Dir) List() ([]Migration, error) {
	entries, err := afero.ReadDir(d.fs, d.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		script, err := afero.ReadFile(d.fs, filepath.Join(d.path, e.Name(), ScriptFile))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Name: e.Name(), Script: string(script)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ReadScript returns the script of the named migration.
func (d *Dir) ReadScript(name string) (string, error) {
	data, err := afero.ReadFile(d.fs, filepath.Join(d.path, name, ScriptFile))
	if err != nil {
		return "", fmt.Errorf("failed to read migration %s: %w", name, err)
	}
	return string(data), nil
}

var nonIdentifier = regexp.MustCompile(`[^a-z0-9_]+`)

// FolderName builds the folder name of a migration created at t.
func FolderName(name string, t time.Time) string {
	slug := strings.Trim(nonIdentifier.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return t.UTC().Format(timestampLayout)
	}
	return t.UTC().Format(timestampLayout) + "_" + slug
}

// Create writes a new migration folder with its script.
func (d *Dir) Create(name, script string, at time.Time) (Migration, error) {
	m := Migration{Name: FolderName(name, at), Script: script}
	folder := filepath.Join(d.path, m.Name)
	if exists, _ := afero.DirExists(d.fs, folder); exists {
		return Migration{}, fmt.Errorf("migration %s already exists", m.Name)
	}
	if err := d.fs.MkdirAll(folder, 0o755); err != nil {
		return Migration{}, fmt.Errorf("failed to create migration folder: %w", err)
	}
	if err := afero.WriteFile(d.fs, filepath.Join(folder, ScriptFile), []byte(script), 0o644); err != nil {
		return Migration{}, fmt.Errorf("failed to write migration script: %w", err)
	}
	return m, nil
}

// Lock is the content of the lock file.
type Lock struct {
	Provider string `toml:"provider"`
}

// ReadLock returns the lock file, or nil when there is none.
func (d *Dir) ReadLock() (*Lock, error) {
	data, err := afero.ReadFile(d.fs, filepath.Join(d.path, LockFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", LockFile, err)
	}
	var l Lock
	if err := toml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", LockFile, err)
	}
	return &l, nil
}

// WriteLock records dialect as the provider of the directory.
func (d *Dir) WriteLock(dialect schema.Dialect) error {
	data, err := toml.Marshal(Lock{Provider: string(dialect)})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", LockFile, err)
	}
	if err := d.fs.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("failed to create migrations directory: %w", err)
	}
	if err := afero.WriteFile(d.fs, filepath.Join(d.path, LockFile), append([]byte(lockHeader), data...), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", LockFile, err)
	}
	return nil
}

// CheckProvider fails when the lock file names another provider than
// dialect. A missing lock file passes.
func (d *Dir) CheckProvider(dialect schema.Dialect) error {
	l, err := d.ReadLock()
	if err != nil {
		return enginerr.Wrap(enginerr.ValidationError, err, "invalid migrations directory")
	}
	if l == nil {
		return nil
	}
	locked, ok := schema.ParseDialect(l.Provider)
	if !ok || locked != dialect {
		return enginerr.New(enginerr.ValidationError,
			"the migrations directory was created for %s and cannot be applied to %s", l.Provider, dialect).
			With("lock_file", filepath.Join(d.path, LockFile))
	}
	return nil
}

// migrationContent is a merkle leaf: the name and script of one migration.
type migrationContent struct {
	name   string
	script string
}

func (c migrationContent) CalculateHash() ([]byte, error) {
	h := sha256.Sum256([]byte(c.name + "\x00" + c.script))
	return h[:], nil
}

func (c migrationContent) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(migrationContent)
	if !ok {
		return false, nil
	}
	return c == o, nil
}

// Hash returns the merkle root over every migration's name and script. Any
// added, removed, renamed or edited migration changes it.
func (d *Dir) Hash() (string, error) {
	list, err := d.List()
	if err != nil {
		return "", err
	}
	return HashMigrations(list)
}

// HashMigrations is Hash over an already listed directory.
func HashMigrations(list []Migration) (string, error) {
	if len(list) == 0 {
		h := sha256.Sum256(nil)
		return hex.EncodeToString(h[:]), nil
	}
	leaves := make([]merkletree.Content, len(list))
	for i, m := range list {
		leaves[i] = migrationContent{name: m.Name, script: m.Script}
	}
	tree, err := merkletree.NewTree(leaves)
	if err != nil {
		return "", fmt.Errorf("failed to build merkle tree: %w", err)
	}
	return hex.EncodeToString(tree.MerkleRoot()), nil
}
