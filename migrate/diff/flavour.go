package diff

import (
	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// Flavour is the dialect policy the differ consults. The differ itself never
// branches on the dialect.
type Flavour interface {
	// ColumnTypeChange classifies the type difference between two column versions.
	ColumnTypeChange(cols migration.Pair[schema.ColumnWalker]) migration.ColumnTypeChange

	// ColumnAutoIncrementChanged reports whether autoincrement differs in a way
	// that needs a migration.
	ColumnAutoIncrementChanged(cols migration.Pair[schema.ColumnWalker]) bool

	// TablesToRedefine returns the table pairs that must be rebuilt by copy instead
	// of altered in place.
	TablesToRedefine(db *DifferDatabase) []migration.Pair[schema.TableID]

	// IndexesMatch reports whether two indexes are structurally identical, names aside.
	IndexesMatch(a, b schema.IndexWalker) bool

	SupportsEnums() bool
	CanRenameIndex() bool
	CanRenameForeignKey() bool
	LowerCasesTableNames() bool
	TableShouldBeIgnored(name string) bool

	// ShouldPushForeignKeysFromCreatedTables is false when CREATE TABLE renders
	// foreign keys inline.
	ShouldPushForeignKeysFromCreatedTables() bool
	// ShouldDropForeignKeysFromDroppedTables is false when dropping a table is
	// enough to get rid of its foreign keys.
	ShouldDropForeignKeysFromDroppedTables() bool
	// ShouldCreateIndexesFromCreatedTables is false when CREATE TABLE renders
	// secondary indexes inline.
	ShouldCreateIndexesFromCreatedTables() bool
}
