// Package schema provides the normalized, dialect-aware schema model shared by the
// describer, the differ, the checker and the renderers.
//
// A Schema is an arena: tables, columns, indexes, foreign keys, enums and views live in
// flat slices and reference each other through dense integer IDs. Walkers give
// read-only, navigable views over it.
package schema

import "strings"

// Dialect identifies the SQL database family a schema belongs to.
type Dialect string

const (
	Postgres    Dialect = "postgresql"
	MySQL       Dialect = "mysql"
	SQLite      Dialect = "sqlite"
	MSSQL       Dialect = "sqlserver"
	CockroachDB Dialect = "cockroachdb"
)

// ParseDialect normalizes provider spellings used in URLs and config files.
func ParseDialect(s string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgresql", "postgres":
		return Postgres, true
	case "mysql", "mariadb":
		return MySQL, true
	case "sqlite", "sqlite3", "file":
		return SQLite, true
	case "sqlserver", "mssql":
		return MSSQL, true
	case "cockroachdb", "cockroach":
		return CockroachDB, true
	default:
		return "", false
	}
}

// DefaultNamespace returns the namespace tables live in when none is specified.
func (d Dialect) DefaultNamespace() string {
	switch d {
	case Postgres, CockroachDB:
		return "public"
	case MSSQL:
		return "dbo"
	default:
		return ""
	}
}

type (
	TableID      int
	ColumnID     int
	IndexID      int
	ForeignKeyID int
	EnumID       int
	ViewID       int
)

// Schema is the aggregate root of the model. Once built it is never mutated by the
// differ or the checker.
type Schema struct {
	Dialect     Dialect       `json:"dialect"`
	Namespaces  []string      `json:"namespaces,omitempty"`
	Tables      []Table       `json:"tables"`
	Columns     []TableColumn `json:"columns"`
	Indexes     []Index       `json:"indexes"`
	ForeignKeys []ForeignKey  `json:"foreignKeys"`
	Enums       []Enum        `json:"enums"`
	Views       []View        `json:"views"`
}

// Table is a named table inside a namespace.
type Table struct {
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`
	Comment   string `json:"comment,omitempty"`
}

// TableColumn ties a column to the table it belongs to.
type TableColumn struct {
	TableID TableID `json:"tableId"`
	Column  Column  `json:"column"`
}

// IndexType is the kind of an index.
type IndexType int

const (
	IndexNormal IndexType = iota
	IndexUnique
	IndexPrimaryKey
	IndexFulltext
)

func (t IndexType) String() string {
	switch t {
	case IndexUnique:
		return "unique"
	case IndexPrimaryKey:
		return "primary_key"
	case IndexFulltext:
		return "fulltext"
	default:
		return "normal"
	}
}

// IsUnique reports whether the index enforces uniqueness.
func (t IndexType) IsUnique() bool {
	return t == IndexUnique || t == IndexPrimaryKey
}

// SortOrder of an index column.
type SortOrder string

const (
	Asc  SortOrder = "ASC"
	Desc SortOrder = "DESC"
)

// IndexColumn is one column of an index with its per-column options.
type IndexColumn struct {
	ColumnID      ColumnID  `json:"columnId"`
	SortOrder     SortOrder `json:"sortOrder,omitempty"`
	Length        int       `json:"length,omitempty"`
	OperatorClass string    `json:"operatorClass,omitempty"`
}

// Index covers primary keys, unique constraints and secondary indexes.
type Index struct {
	TableID   TableID       `json:"tableId"`
	Name      string        `json:"name"`
	Type      IndexType     `json:"type"`
	Algorithm string        `json:"algorithm,omitempty"`
	Columns   []IndexColumn `json:"columns"`
	Clustered *bool         `json:"clustered,omitempty"`
}

// ReferentialAction is the ON DELETE / ON UPDATE behaviour of a foreign key.
type ReferentialAction string

const (
	NoAction   ReferentialAction = "NO ACTION"
	Restrict   ReferentialAction = "RESTRICT"
	Cascade    ReferentialAction = "CASCADE"
	SetNull    ReferentialAction = "SET NULL"
	SetDefault ReferentialAction = "SET DEFAULT"
)

// ParseReferentialAction accepts the spellings returned by catalogs and PRAGMAs.
func ParseReferentialAction(s string) ReferentialAction {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "_", " ")) {
	case "CASCADE":
		return Cascade
	case "RESTRICT":
		return Restrict
	case "SET NULL":
		return SetNull
	case "SET DEFAULT":
		return SetDefault
	default:
		return NoAction
	}
}

// ForeignKeyColumn pairs a constrained column with the column it references.
type ForeignKeyColumn struct {
	Constrained ColumnID `json:"constrained"`
	Referenced  ColumnID `json:"referenced"`
}

// ForeignKey is a reference from a constrained table to a referenced table.
type ForeignKey struct {
	ConstrainedTable TableID            `json:"constrainedTable"`
	ReferencedTable  TableID            `json:"referencedTable"`
	Columns          []ForeignKeyColumn `json:"columns"`
	OnDelete         ReferentialAction  `json:"onDelete"`
	OnUpdate         ReferentialAction  `json:"onUpdate"`
	ConstraintName   string             `json:"constraintName,omitempty"`
}

// Enum is a named, ordered list of variants.
type Enum struct {
	Namespace string   `json:"namespace,omitempty"`
	Name      string   `json:"name"`
	Variants  []string `json:"variants"`
}

// View is a named view whose definition is kept as opaque text.
type View struct {
	Namespace  string `json:"namespace,omitempty"`
	Name       string `json:"name"`
	Definition string `json:"definition,omitempty"`
}

// FindTable looks up a table by namespace and name. An empty namespace matches any.
func (s *Schema) FindTable(namespace, name string) (TableWalker, bool) {
	for i, t := range s.Tables {
		if t.Name == name && (namespace == "" || t.Namespace == "" || t.Namespace == namespace) {
			return s.Table(TableID(i)), true
		}
	}
	return TableWalker{}, false
}

// FindEnum looks up an enum by namespace and name. An empty namespace matches any.
func (s *Schema) FindEnum(namespace, name string) (EnumWalker, bool) {
	for i, e := range s.Enums {
		if e.Name == name && (namespace == "" || e.Namespace == "" || e.Namespace == namespace) {
			return s.Enum(EnumID(i)), true
		}
	}
	return EnumWalker{}, false
}

// FindView looks up a view by namespace and name.
func (s *Schema) FindView(namespace, name string) (ViewWalker, bool) {
	for i, v := range s.Views {
		if v.Name == name && (namespace == "" || v.Namespace == "" || v.Namespace == namespace) {
			return s.View(ViewID(i)), true
		}
	}
	return ViewWalker{}, false
}

// IsEmpty reports whether the schema has no tables, enums or views.
func (s *Schema) IsEmpty() bool {
	return len(s.Tables) == 0 && len(s.Enums) == 0 && len(s.Views) == 0
}

// Empty returns an empty schema for the dialect.
func Empty(dialect Dialect) *Schema {
	return &Schema{Dialect: dialect}
}
