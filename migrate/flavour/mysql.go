package flavour

import (
	"strings"

	"github.com/satishbabariya/schema-engine/migrate/checker"
	"github.com/satishbabariya/schema-engine/migrate/diff"
	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
	"github.com/satishbabariya/schema-engine/migrate/sqlgen"
)

var mysqlAliases = map[string]string{
	"integer":         "int",
	"doubleprecision": "double",
	"real":            "double",
	"numeric":         "decimal",
	"boolean":         "tinyint(1)",
	"bool":            "tinyint(1)",
	"character":       "char",
}

// Integer display widths such as int(11) are cosmetic.
var mysqlDisplayWidths = map[string]bool{"int": true, "bigint": true, "smallint": true, "mediumint": true}

// MySQL is the MySQL and MariaDB flavour.
type MySQL struct {
	*sqlgen.MySQLRenderer
	common
	mariadb bool
	types   typeComparer
}

func newMySQL(c common) *MySQL {
	f := &MySQL{MySQLRenderer: sqlgen.NewMySQLRenderer(), common: c}
	f.mariadb = strings.Contains(strings.ToLower(c.rawVersion), "mariadb")

	aliases := mysqlAliases
	if f.mariadb {
		// MariaDB stores JSON as LONGTEXT and reports it that way.
		aliases = make(map[string]string, len(mysqlAliases)+1)
		for k, v := range mysqlAliases {
			aliases[k] = v
		}
		aliases["json"] = "longtext"
	}
	f.types = typeComparer{render: f.ColumnType, aliases: aliases, dropArgs: mysqlDisplayWidths}
	return f
}

// IsMariaDB reports whether the server is MariaDB.
func (f *MySQL) IsMariaDB() bool { return f.mariadb }

// Placeholder implements Flavour.
func (f *MySQL) Placeholder(int) string { return "?" }

// TextCastType implements Flavour.
func (f *MySQL) TextCastType() string { return "CHAR" }

// SupportsTransactionalDDL implements Flavour. DDL commits implicitly.
func (f *MySQL) SupportsTransactionalDDL() bool { return false }

// ColumnTypeChange implements diff.Flavour.
func (f *MySQL) ColumnTypeChange(cols migration.Pair[schema.ColumnWalker]) migration.ColumnTypeChange {
	return f.types.change(cols)
}

// TablesToRedefine implements diff.Flavour.
func (f *MySQL) TablesToRedefine(*diff.DifferDatabase) []migration.Pair[schema.TableID] {
	return nil
}

// CheckAlterColumn implements checker.Flavour. Inline enums losing variants
// are judged by the rows still holding those variants, not as a risky cast.
func (f *MySQL) CheckAlterColumn(alter migration.AlterColumn, cols migration.Pair[schema.ColumnWalker], plan *checker.Plan, stepIndex int) {
	prevEnum, okPrev := cols.Previous.Enum()
	nextEnum, okNext := cols.Next.Enum()
	if !okPrev || !okNext {
		f.common.CheckAlterColumn(alter, cols, plan, stepIndex)
		return
	}

	var dropped []string
	for _, v := range prevEnum.Variants() {
		if !nextEnum.HasVariant(v) {
			dropped = append(dropped, v)
		}
	}
	if len(dropped) == 0 {
		f.common.CheckAlterColumn(alter, cols, plan, stepIndex)
		return
	}
	plan.PushWarning(checker.EnumValueRemoval{
		Enum:   nextEnum.Name(),
		Values: dropped,
		Usages: []checker.ColumnRef{checker.ColumnRefOf(cols.Previous)},
	}, stepIndex)
	checker.CheckColumnChange(cols, alter.Changes, migration.SafeCast, plan, stepIndex)
}

// SupportsEnums implements diff.Flavour. Enums are column types here, so
// their changes surface as column changes.
func (f *MySQL) SupportsEnums() bool { return false }

// CanRenameIndex implements diff.Flavour. RENAME INDEX arrived in MySQL 8 and
// MariaDB 10.5.2.
func (f *MySQL) CanRenameIndex() bool {
	if f.mariadb {
		return f.atLeast("10.5.2")
	}
	return f.atLeast("8.0")
}

func (f *MySQL) CanRenameForeignKey() bool { return false }

// TableShouldBeIgnored implements diff.Flavour.
func (f *MySQL) TableShouldBeIgnored(name string) bool {
	return ignoredTable(strings.ToLower(name))
}

func (f *MySQL) ShouldPushForeignKeysFromCreatedTables() bool { return true }
func (f *MySQL) ShouldDropForeignKeysFromDroppedTables() bool { return true }

// ShouldCreateIndexesFromCreatedTables implements diff.Flavour. CREATE TABLE
// carries the indexes.
func (f *MySQL) ShouldCreateIndexesFromCreatedTables() bool { return false }
