package sqlgen

import (
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// CockroachRenderer renders CockroachDB DDL.
// CockroachDB speaks the PostgreSQL dialect, so the PostgreSQL renderer does
// the work with CockroachDB type names, unique_rowid() identities, index
// references written as table@index and enum variants dropped in place.
type CockroachRenderer struct {
	*PostgresRenderer
}

// NewCockroachRenderer creates a CockroachDB renderer.
func NewCockroachRenderer() *CockroachRenderer {
	pg := NewPostgresRenderer()
	pg.cockroach = true
	return &CockroachRenderer{PostgresRenderer: pg}
}

var cockroachTypes = map[schema.ColumnTypeFamily]string{
	schema.FamilyInt:      "INT4",
	schema.FamilyBigInt:   "INT8",
	schema.FamilyFloat:    "FLOAT8",
	schema.FamilyDecimal:  "DECIMAL(65,30)",
	schema.FamilyBoolean:  "BOOL",
	schema.FamilyString:   "STRING",
	schema.FamilyDateTime: "TIMESTAMP(3)",
	schema.FamilyBinary:   "BYTES",
	schema.FamilyJSON:     "JSONB",
	schema.FamilyUUID:     "UUID",
}
