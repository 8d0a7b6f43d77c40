package flavour

import (
	"github.com/satishbabariya/schema-engine/migrate/diff"
	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
	"github.com/satishbabariya/schema-engine/migrate/sqlgen"
)

var cockroachAliases = map[string]string{
	"integer":          "int8",
	"int":              "int8",
	"int64":            "int8",
	"bigint":           "int8",
	"int32":            "int4",
	"smallint":         "int2",
	"int16":            "int2",
	"doubleprecision":  "float8",
	"float":            "float8",
	"real":             "float4",
	"boolean":          "bool",
	"decimal":          "numeric",
	"dec":              "numeric",
	"string":           "text",
	"charactervarying": "varchar",
	"bytes":            "bytea",
	"blob":             "bytea",
	"json":             "jsonb",
}

// CockroachDB is the CockroachDB flavour. It speaks the PostgreSQL dialect but
// cannot change a primary key column in place or alter schema in transactions.
type CockroachDB struct {
	Postgres
}

func newCockroachDB(c common) *CockroachDB {
	f := &CockroachDB{Postgres: Postgres{PostgresRenderer: sqlgen.NewCockroachRenderer().PostgresRenderer, common: c}}
	f.types = typeComparer{render: f.ColumnType, aliases: cockroachAliases, namedEnums: true}
	return f
}

// TextCastType implements Flavour.
func (f *CockroachDB) TextCastType() string { return "STRING" }

// SupportsTransactionalDDL implements Flavour. Schema changes in CockroachDB
// transactions are not atomic, so scripts run statement by statement.
func (f *CockroachDB) SupportsTransactionalDDL() bool { return false }

// ColumnAutoIncrementChanged implements diff.Flavour. unique_rowid() defaults
// and autoincrement are the same thing here.
func (f *CockroachDB) ColumnAutoIncrementChanged(cols migration.Pair[schema.ColumnWalker]) bool {
	autoinc := func(c schema.ColumnWalker) bool {
		d := c.Default()
		return c.IsAutoIncrement() || (d != nil && d.Kind == schema.DefaultUniqueRowID)
	}
	return autoinc(cols.Previous) != autoinc(cols.Next)
}

// TablesToRedefine implements diff.Flavour. Tables whose primary key is
// dropped, or whose key column must be recreated, are rebuilt by copy.
func (f *CockroachDB) TablesToRedefine(db *diff.DifferDatabase) []migration.Pair[schema.TableID] {
	var out []migration.Pair[schema.TableID]
	for _, td := range db.TablePairs() {
		if td.DroppedPrimaryKey() {
			out = append(out, td.IDs)
		}
	}
	return out
}
