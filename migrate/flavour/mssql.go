package flavour

import (
	"github.com/satishbabariya/schema-engine/migrate/diff"
	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
	"github.com/satishbabariya/schema-engine/migrate/sqlgen"
)

var mssqlAliases = map[string]string{
	"integer":         "int",
	"numeric":         "decimal",
	"doubleprecision": "float",
	"rowversion":      "timestamp",
}

var mssqlDroppedArgs = map[string]bool{"float": true}

// MSSQL is the SQL Server flavour.
type MSSQL struct {
	*sqlgen.MSSQLRenderer
	common
	types typeComparer
}

func newMSSQL(c common) *MSSQL {
	f := &MSSQL{MSSQLRenderer: sqlgen.NewMSSQLRenderer(), common: c}
	f.types = typeComparer{render: f.ColumnType, aliases: mssqlAliases, dropArgs: mssqlDroppedArgs}
	return f
}

// Placeholder implements Flavour.
func (f *MSSQL) Placeholder(n int) string { return numberedPlaceholder("@p", n) }

// SupportsTransactionalDDL implements Flavour.
func (f *MSSQL) SupportsTransactionalDDL() bool { return true }

// DefaultConstraintName implements Flavour.
func (f *MSSQL) DefaultConstraintName(table, column string) string {
	return f.MSSQLRenderer.DefaultConstraintName(table, column)
}

// PushConnectorData implements Flavour. Primary keys are clustered unless
// declared otherwise.
func (f *MSSQL) PushConnectorData(s *schema.Schema) {
	clustered := true
	for i := range s.Indexes {
		if s.Indexes[i].Type == schema.IndexPrimaryKey && s.Indexes[i].Clustered == nil {
			s.Indexes[i].Clustered = &clustered
		}
	}
}

// ColumnTypeChange implements diff.Flavour.
func (f *MSSQL) ColumnTypeChange(cols migration.Pair[schema.ColumnWalker]) migration.ColumnTypeChange {
	return f.types.change(cols)
}

// TablesToRedefine implements diff.Flavour. IDENTITY cannot be added to or
// removed from an existing column.
func (f *MSSQL) TablesToRedefine(db *diff.DifferDatabase) []migration.Pair[schema.TableID] {
	var out []migration.Pair[schema.TableID]
	for _, td := range db.TablePairs() {
		for _, cp := range td.ColumnPairs() {
			if cp.Changes.AutoIncrementChanged() {
				out = append(out, td.IDs)
				break
			}
		}
	}
	return out
}

// IndexesMatch implements diff.Flavour.
func (f *MSSQL) IndexesMatch(a, b schema.IndexWalker) bool {
	return diff.IndexesMatchDefault(a, b) && clustered(a) == clustered(b)
}

func clustered(idx schema.IndexWalker) bool {
	if c := idx.Index().Clustered; c != nil {
		return *c
	}
	return idx.IsPrimaryKey()
}

func (f *MSSQL) SupportsEnums() bool       { return false }
func (f *MSSQL) CanRenameIndex() bool      { return true }
func (f *MSSQL) CanRenameForeignKey() bool { return true }

// TableShouldBeIgnored implements diff.Flavour.
func (f *MSSQL) TableShouldBeIgnored(name string) bool { return ignoredTable(name) }

func (f *MSSQL) ShouldPushForeignKeysFromCreatedTables() bool { return true }
func (f *MSSQL) ShouldDropForeignKeysFromDroppedTables() bool { return true }
func (f *MSSQL) ShouldCreateIndexesFromCreatedTables() bool   { return true }
