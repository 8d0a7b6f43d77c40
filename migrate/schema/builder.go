package schema

// Builder assembles a Schema. Describers, the document lowering and tests all go
// through it so that IDs stay dense and references stay consistent.
type Builder struct {
	s *Schema
}

// NewBuilder creates a builder for an empty schema of the given dialect.
func NewBuilder(dialect Dialect) *Builder {
	return &Builder{s: &Schema{Dialect: dialect}}
}

// Dialect returns the dialect of the schema under construction.
func (b *Builder) Dialect() Dialect {
	return b.s.Dialect
}

// AddNamespace records a namespace if it is not already known.
func (b *Builder) AddNamespace(name string) {
	for _, ns := range b.s.Namespaces {
		if ns == name {
			return
		}
	}
	b.s.Namespaces = append(b.s.Namespaces, name)
}

// AddTable appends a table.
func (b *Builder) AddTable(namespace, name string) TableID {
	b.s.Tables = append(b.s.Tables, Table{Namespace: namespace, Name: name})
	return TableID(len(b.s.Tables) - 1)
}

// SetTableComment sets the comment of a table.
func (b *Builder) SetTableComment(t TableID, comment string) {
	b.s.Tables[t].Comment = comment
}

// AddColumn appends a column to a table.
func (b *Builder) AddColumn(t TableID, c Column) ColumnID {
	b.s.Columns = append(b.s.Columns, TableColumn{TableID: t, Column: c})
	return ColumnID(len(b.s.Columns) - 1)
}

// Column returns a mutable pointer to a column for describers that learn
// details in later passes.
func (b *Builder) Column(id ColumnID) *Column {
	return &b.s.Columns[id].Column
}

// FindColumn resolves a column name inside a table.
func (b *Builder) FindColumn(t TableID, name string) (ColumnID, bool) {
	for i, c := range b.s.Columns {
		if c.TableID == t && c.Column.Name == name {
			return ColumnID(i), true
		}
	}
	return 0, false
}

// FindTable resolves a table by namespace and name.
func (b *Builder) FindTable(namespace, name string) (TableID, bool) {
	w, ok := b.s.FindTable(namespace, name)
	return w.ID, ok
}

// AddIndex appends an index on the given columns.
func (b *Builder) AddIndex(t TableID, name string, typ IndexType, columns ...ColumnID) IndexID {
	cols := make([]IndexColumn, len(columns))
	for i, c := range columns {
		cols[i] = IndexColumn{ColumnID: c}
	}
	return b.AddIndexColumns(t, name, typ, cols)
}

// AddIndexColumns appends an index with full per-column options.
func (b *Builder) AddIndexColumns(t TableID, name string, typ IndexType, columns []IndexColumn) IndexID {
	b.s.Indexes = append(b.s.Indexes, Index{TableID: t, Name: name, Type: typ, Columns: columns})
	return IndexID(len(b.s.Indexes) - 1)
}

// SetPrimaryKey is shorthand for a primary key index.
func (b *Builder) SetPrimaryKey(t TableID, name string, columns ...ColumnID) IndexID {
	return b.AddIndex(t, name, IndexPrimaryKey, columns...)
}

// Index returns a mutable pointer to an index.
func (b *Builder) Index(id IndexID) *Index {
	return &b.s.Indexes[id]
}

// AddForeignKey appends a foreign key. constrained and referenced must have equal length.
func (b *Builder) AddForeignKey(from TableID, constrained []ColumnID, to TableID, referenced []ColumnID, onDelete, onUpdate ReferentialAction, name string) ForeignKeyID {
	cols := make([]ForeignKeyColumn, 0, len(constrained))
	for i := range constrained {
		if i >= len(referenced) {
			break
		}
		cols = append(cols, ForeignKeyColumn{Constrained: constrained[i], Referenced: referenced[i]})
	}
	b.s.ForeignKeys = append(b.s.ForeignKeys, ForeignKey{
		ConstrainedTable: from,
		ReferencedTable:  to,
		Columns:          cols,
		OnDelete:         onDelete,
		OnUpdate:         onUpdate,
		ConstraintName:   name,
	})
	return ForeignKeyID(len(b.s.ForeignKeys) - 1)
}

// AddEnum appends an enum.
func (b *Builder) AddEnum(namespace, name string, variants ...string) EnumID {
	b.s.Enums = append(b.s.Enums, Enum{Namespace: namespace, Name: name, Variants: variants})
	return EnumID(len(b.s.Enums) - 1)
}

// AddView appends a view.
func (b *Builder) AddView(namespace, name, definition string) ViewID {
	b.s.Views = append(b.s.Views, View{Namespace: namespace, Name: name, Definition: definition})
	return ViewID(len(b.s.Views) - 1)
}

// Peek gives read access to the schema under construction.
func (b *Builder) Peek() *Schema {
	return b.s
}

// Build returns the finished schema. The builder must not be used afterwards.
func (b *Builder) Build() *Schema {
	s := b.s
	b.s = nil
	return s
}
