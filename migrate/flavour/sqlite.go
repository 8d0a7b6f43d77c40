package flavour

import (
	"strings"

	"github.com/satishbabariya/schema-engine/migrate/diff"
	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
	"github.com/satishbabariya/schema-engine/migrate/sqlgen"
)

// Declared types fold onto their storage affinity where the distinction is
// only in the declaration.
var sqliteAliases = map[string]string{
	"int":             "integer",
	"bool":            "boolean",
	"double":          "real",
	"doubleprecision": "real",
	"float":           "real",
	"numeric":         "decimal",
	"varchar":         "text",
	"nvarchar":        "text",
	"char":            "text",
	"character":       "text",
	"clob":            "text",
}

var sqliteDroppedArgs = map[string]bool{"text": true, "decimal": true}

// SQLite is the SQLite flavour. SQLite cannot alter columns, keys or foreign
// keys in place, so tables with such changes are redefined.
type SQLite struct {
	*sqlgen.SQLiteRenderer
	common
	types typeComparer
}

func newSQLite(c common) *SQLite {
	f := &SQLite{SQLiteRenderer: sqlgen.NewSQLiteRenderer(), common: c}
	f.types = typeComparer{render: f.ColumnType, aliases: sqliteAliases, dropArgs: sqliteDroppedArgs}
	return f
}

// Placeholder implements Flavour.
func (f *SQLite) Placeholder(int) string { return "?" }

// TextCastType implements Flavour.
func (f *SQLite) TextCastType() string { return "TEXT" }

// SupportsTransactionalDDL implements Flavour.
func (f *SQLite) SupportsTransactionalDDL() bool { return true }

// PrepareScript implements Flavour. Foreign key enforcement cannot be switched
// inside a transaction, so the pragmas of a redefinition are lifted onto the
// session and the result is verified with foreign_key_check before commit.
func (f *SQLite) PrepareScript(stmts []string) ([]string, *SessionGuard) {
	body := make([]string, 0, len(stmts))
	var guarded bool
	for _, stmt := range stmts {
		switch normalizePragma(stmt) {
		case "pragmaforeign_keys=off":
			guarded = true
		case "pragmaforeign_keys=on", "pragmaforeign_key_check":
		default:
			body = append(body, stmt)
		}
	}
	if !guarded {
		return stmts, nil
	}
	return body, &SessionGuard{
		Before: []string{"PRAGMA foreign_keys=OFF"},
		Verify: "PRAGMA foreign_key_check",
		After:  []string{"PRAGMA foreign_keys=ON"},
	}
}

func normalizePragma(stmt string) string {
	stmt = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
	if !strings.HasPrefix(stmt, "pragma") {
		return ""
	}
	return strings.Join(strings.Fields(stmt), "")
}

// ColumnTypeChange implements diff.Flavour.
func (f *SQLite) ColumnTypeChange(cols migration.Pair[schema.ColumnWalker]) migration.ColumnTypeChange {
	return f.types.change(cols)
}

// TablesToRedefine implements diff.Flavour.
func (f *SQLite) TablesToRedefine(db *diff.DifferDatabase) []migration.Pair[schema.TableID] {
	var out []migration.Pair[schema.TableID]
	for _, td := range db.TablePairs() {
		if sqliteNeedsRedefine(td) {
			out = append(out, td.IDs)
		}
	}
	return out
}

func sqliteNeedsRedefine(td *diff.TableDiffer) bool {
	if td.PrimaryKeyChanged() || td.AnyColumnChanged() || len(td.DroppedColumns()) > 0 {
		return true
	}
	for _, col := range td.AddedColumns() {
		if col.Arity().IsRequired() && col.Default() == nil {
			return true
		}
	}
	return len(td.CreatedForeignKeys()) > 0 || len(td.DroppedForeignKeys()) > 0
}

func (f *SQLite) SupportsEnums() bool       { return false }
func (f *SQLite) CanRenameIndex() bool      { return false }
func (f *SQLite) CanRenameForeignKey() bool { return false }

// TableShouldBeIgnored implements diff.Flavour. sqlite_ tables are internal.
func (f *SQLite) TableShouldBeIgnored(name string) bool {
	return ignoredTable(name) || strings.HasPrefix(name, "sqlite_")
}

// ShouldPushForeignKeysFromCreatedTables implements diff.Flavour. Foreign keys
// are part of CREATE TABLE.
func (f *SQLite) ShouldPushForeignKeysFromCreatedTables() bool { return false }

// ShouldDropForeignKeysFromDroppedTables implements diff.Flavour. Foreign keys
// go with their table.
func (f *SQLite) ShouldDropForeignKeysFromDroppedTables() bool { return false }

func (f *SQLite) ShouldCreateIndexesFromCreatedTables() bool { return true }
