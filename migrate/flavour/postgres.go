package flavour

import (
	"github.com/satishbabariya/schema-engine/migrate/diff"
	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
	"github.com/satishbabariya/schema-engine/migrate/sqlgen"
)

// postgisTables are created by the PostGIS extension and never managed here.
var postgisTables = []string{"spatial_ref_sys", "geography_columns", "geometry_columns", "raster_columns", "raster_overviews"}

var postgresAliases = map[string]string{
	"integer":                  "int4",
	"int":                      "int4",
	"serial":                   "int4",
	"serial4":                  "int4",
	"bigint":                   "int8",
	"bigserial":                "int8",
	"serial8":                  "int8",
	"smallint":                 "int2",
	"smallserial":              "int2",
	"doubleprecision":          "float8",
	"real":                     "float4",
	"boolean":                  "bool",
	"decimal":                  "numeric",
	"charactervarying":         "varchar",
	"character":                "bpchar",
	"char":                     "bpchar",
	"timestampwithouttimezone": "timestamp",
	"timestampwithtimezone":    "timestamptz",
	"timewithouttimezone":      "time",
	"timewithtimezone":         "timetz",
}

// Postgres is the PostgreSQL flavour.
type Postgres struct {
	*sqlgen.PostgresRenderer
	common
	types typeComparer
}

func newPostgres(c common) *Postgres {
	f := &Postgres{PostgresRenderer: sqlgen.NewPostgresRenderer(), common: c}
	f.types = typeComparer{render: f.ColumnType, aliases: postgresAliases, namedEnums: true}
	return f
}

// Placeholder implements Flavour.
func (f *Postgres) Placeholder(n int) string { return numberedPlaceholder("$", n) }

// TextCastType implements Flavour.
func (f *Postgres) TextCastType() string { return "text" }

// SupportsTransactionalDDL implements Flavour.
func (f *Postgres) SupportsTransactionalDDL() bool { return true }

// ColumnTypeChange implements diff.Flavour.
func (f *Postgres) ColumnTypeChange(cols migration.Pair[schema.ColumnWalker]) migration.ColumnTypeChange {
	return f.types.change(cols)
}

// TablesToRedefine implements diff.Flavour. PostgreSQL alters everything in place.
func (f *Postgres) TablesToRedefine(*diff.DifferDatabase) []migration.Pair[schema.TableID] {
	return nil
}

func (f *Postgres) SupportsEnums() bool       { return true }
func (f *Postgres) CanRenameIndex() bool      { return true }
func (f *Postgres) CanRenameForeignKey() bool { return true }

// TableShouldBeIgnored implements diff.Flavour.
func (f *Postgres) TableShouldBeIgnored(name string) bool {
	return ignoredTable(name, postgisTables...)
}

func (f *Postgres) ShouldPushForeignKeysFromCreatedTables() bool { return true }
func (f *Postgres) ShouldDropForeignKeysFromDroppedTables() bool { return true }
func (f *Postgres) ShouldCreateIndexesFromCreatedTables() bool   { return true }
