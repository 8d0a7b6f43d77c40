package schema

// Table returns a walker for the table.
func (s *Schema) Table(id TableID) TableWalker { return TableWalker{Schema: s, ID: id} }

// Column returns a walker for the column.
func (s *Schema) Column(id ColumnID) ColumnWalker { return ColumnWalker{Schema: s, ID: id} }

// Index returns a walker for the index.
func (s *Schema) Index(id IndexID) IndexWalker { return IndexWalker{Schema: s, ID: id} }

// ForeignKey returns a walker for the foreign key.
func (s *Schema) ForeignKey(id ForeignKeyID) ForeignKeyWalker {
	return ForeignKeyWalker{Schema: s, ID: id}
}

// Enum returns a walker for the enum.
func (s *Schema) Enum(id EnumID) EnumWalker { return EnumWalker{Schema: s, ID: id} }

// View returns a walker for the view.
func (s *Schema) View(id ViewID) ViewWalker { return ViewWalker{Schema: s, ID: id} }

// WalkTables returns walkers over every table in schema order.
func (s *Schema) WalkTables() []TableWalker {
	out := make([]TableWalker, len(s.Tables))
	for i := range s.Tables {
		out[i] = s.Table(TableID(i))
	}
	return out
}

// WalkEnums returns walkers over every enum in schema order.
func (s *Schema) WalkEnums() []EnumWalker {
	out := make([]EnumWalker, len(s.Enums))
	for i := range s.Enums {
		out[i] = s.Enum(EnumID(i))
	}
	return out
}

// WalkViews returns walkers over every view in schema order.
func (s *Schema) WalkViews() []ViewWalker {
	out := make([]ViewWalker, len(s.Views))
	for i := range s.Views {
		out[i] = s.View(ViewID(i))
	}
	return out
}

// WalkForeignKeys returns walkers over every foreign key in schema order.
func (s *Schema) WalkForeignKeys() []ForeignKeyWalker {
	out := make([]ForeignKeyWalker, len(s.ForeignKeys))
	for i := range s.ForeignKeys {
		out[i] = s.ForeignKey(ForeignKeyID(i))
	}
	return out
}

// TableWalker navigates a table.
type TableWalker struct {
	Schema *Schema
	ID     TableID
}

func (t TableWalker) get() *Table { return &t.Schema.Tables[t.ID] }

// Name of the table.
func (t TableWalker) Name() string { return t.get().Name }

// Namespace of the table.
func (t TableWalker) Namespace() string { return t.get().Namespace }

// Comment of the table.
func (t TableWalker) Comment() string { return t.get().Comment }

// QualifiedName returns namespace.name, or name when there is no namespace.
func (t TableWalker) QualifiedName() string {
	if ns := t.Namespace(); ns != "" {
		return ns + "." + t.Name()
	}
	return t.Name()
}

// Columns returns the table's columns in declaration order.
func (t TableWalker) Columns() []ColumnWalker {
	var out []ColumnWalker
	for i, c := range t.Schema.Columns {
		if c.TableID == t.ID {
			out = append(out, t.Schema.Column(ColumnID(i)))
		}
	}
	return out
}

// Column finds a column by name.
func (t TableWalker) Column(name string) (ColumnWalker, bool) {
	for i, c := range t.Schema.Columns {
		if c.TableID == t.ID && c.Column.Name == name {
			return t.Schema.Column(ColumnID(i)), true
		}
	}
	return ColumnWalker{}, false
}

// Indexes returns every index of the table, primary key included.
func (t TableWalker) Indexes() []IndexWalker {
	var out []IndexWalker
	for i, idx := range t.Schema.Indexes {
		if idx.TableID == t.ID {
			out = append(out, t.Schema.Index(IndexID(i)))
		}
	}
	return out
}

// SecondaryIndexes returns every index except the primary key.
func (t TableWalker) SecondaryIndexes() []IndexWalker {
	var out []IndexWalker
	for _, idx := range t.Indexes() {
		if !idx.IsPrimaryKey() {
			out = append(out, idx)
		}
	}
	return out
}

// PrimaryKey returns the primary key index if there is one.
func (t TableWalker) PrimaryKey() (IndexWalker, bool) {
	for _, idx := range t.Indexes() {
		if idx.IsPrimaryKey() {
			return idx, true
		}
	}
	return IndexWalker{}, false
}

// PrimaryKeyColumnNames returns the names of the primary key columns, if any.
func (t TableWalker) PrimaryKeyColumnNames() []string {
	pk, ok := t.PrimaryKey()
	if !ok {
		return nil
	}
	return pk.ColumnNames()
}

// ForeignKeys returns the foreign keys constrained by this table.
func (t TableWalker) ForeignKeys() []ForeignKeyWalker {
	var out []ForeignKeyWalker
	for i, fk := range t.Schema.ForeignKeys {
		if fk.ConstrainedTable == t.ID {
			out = append(out, t.Schema.ForeignKey(ForeignKeyID(i)))
		}
	}
	return out
}

// ReferencingForeignKeys returns the foreign keys from other tables pointing here.
func (t TableWalker) ReferencingForeignKeys() []ForeignKeyWalker {
	var out []ForeignKeyWalker
	for i, fk := range t.Schema.ForeignKeys {
		if fk.ReferencedTable == t.ID && fk.ConstrainedTable != t.ID {
			out = append(out, t.Schema.ForeignKey(ForeignKeyID(i)))
		}
	}
	return out
}

// ColumnWalker navigates a column.
type ColumnWalker struct {
	Schema *Schema
	ID     ColumnID
}

func (c ColumnWalker) get() *TableColumn { return &c.Schema.Columns[c.ID] }

// Column returns a copy of the underlying column.
func (c ColumnWalker) Column() Column { return c.get().Column }

// Name of the column.
func (c ColumnWalker) Name() string { return c.get().Column.Name }

// Table the column belongs to.
func (c ColumnWalker) Table() TableWalker { return c.Schema.Table(c.get().TableID) }

// Type of the column.
func (c ColumnWalker) Type() ColumnType { return c.get().Column.Type }

// Arity of the column.
func (c ColumnWalker) Arity() Arity { return c.get().Column.Type.Arity }

// Default of the column, nil when absent.
func (c ColumnWalker) Default() *ColumnDefault { return c.get().Column.Default }

// IsAutoIncrement reports whether the database generates values for the column.
func (c ColumnWalker) IsAutoIncrement() bool { return c.get().Column.AutoIncrement }

// Enum returns the enum the column's type refers to.
func (c ColumnWalker) Enum() (EnumWalker, bool) {
	t := c.Type()
	if t.Family != FamilyEnum {
		return EnumWalker{}, false
	}
	return c.Schema.FindEnum(c.Table().Namespace(), t.EnumName)
}

// IsPartOfPrimaryKey reports whether the column is covered by the primary key.
func (c ColumnWalker) IsPartOfPrimaryKey() bool {
	pk, ok := c.Table().PrimaryKey()
	if !ok {
		return false
	}
	for _, col := range pk.get().Columns {
		if col.ColumnID == c.ID {
			return true
		}
	}
	return false
}

// IsSinglePrimaryKey reports whether the column alone is the primary key.
func (c ColumnWalker) IsSinglePrimaryKey() bool {
	pk, ok := c.Table().PrimaryKey()
	if !ok {
		return false
	}
	cols := pk.get().Columns
	return len(cols) == 1 && cols[0].ColumnID == c.ID
}

// IndexWalker navigates an index.
type IndexWalker struct {
	Schema *Schema
	ID     IndexID
}

func (i IndexWalker) get() *Index { return &i.Schema.Indexes[i.ID] }

// Index returns a copy of the underlying index.
func (i IndexWalker) Index() Index { return *i.get() }

// Name of the index or constraint.
func (i IndexWalker) Name() string { return i.get().Name }

// Type of the index.
func (i IndexWalker) Type() IndexType { return i.get().Type }

// Algorithm of the index, empty for the dialect default.
func (i IndexWalker) Algorithm() string { return i.get().Algorithm }

// IsPrimaryKey reports whether this is the primary key.
func (i IndexWalker) IsPrimaryKey() bool { return i.get().Type == IndexPrimaryKey }

// IsUnique reports whether this is a unique index (primary keys excluded).
func (i IndexWalker) IsUnique() bool { return i.get().Type == IndexUnique }

// Table the index belongs to.
func (i IndexWalker) Table() TableWalker { return i.Schema.Table(i.get().TableID) }

// IndexColumns returns the raw index column entries.
func (i IndexWalker) IndexColumns() []IndexColumn { return i.get().Columns }

// Columns returns walkers for the indexed columns in index order.
func (i IndexWalker) Columns() []ColumnWalker {
	cols := i.get().Columns
	out := make([]ColumnWalker, len(cols))
	for n, c := range cols {
		out[n] = i.Schema.Column(c.ColumnID)
	}
	return out
}

// ColumnNames returns the names of the indexed columns in index order.
func (i IndexWalker) ColumnNames() []string {
	cols := i.get().Columns
	out := make([]string, len(cols))
	for n, c := range cols {
		out[n] = i.Schema.Columns[c.ColumnID].Column.Name
	}
	return out
}

// ForeignKeyWalker navigates a foreign key.
type ForeignKeyWalker struct {
	Schema *Schema
	ID     ForeignKeyID
}

func (f ForeignKeyWalker) get() *ForeignKey { return &f.Schema.ForeignKeys[f.ID] }

// ForeignKey returns a copy of the underlying foreign key.
func (f ForeignKeyWalker) ForeignKey() ForeignKey { return *f.get() }

// ConstraintName of the foreign key, possibly empty.
func (f ForeignKeyWalker) ConstraintName() string { return f.get().ConstraintName }

// ConstrainedTable is the table holding the foreign key.
func (f ForeignKeyWalker) ConstrainedTable() TableWalker {
	return f.Schema.Table(f.get().ConstrainedTable)
}

// ReferencedTable is the table the foreign key points to.
func (f ForeignKeyWalker) ReferencedTable() TableWalker {
	return f.Schema.Table(f.get().ReferencedTable)
}

// ConstrainedColumns returns the constrained columns in key order.
func (f ForeignKeyWalker) ConstrainedColumns() []ColumnWalker {
	cols := f.get().Columns
	out := make([]ColumnWalker, len(cols))
	for i, c := range cols {
		out[i] = f.Schema.Column(c.Constrained)
	}
	return out
}

// ReferencedColumns returns the referenced columns in key order.
func (f ForeignKeyWalker) ReferencedColumns() []ColumnWalker {
	cols := f.get().Columns
	out := make([]ColumnWalker, len(cols))
	for i, c := range cols {
		out[i] = f.Schema.Column(c.Referenced)
	}
	return out
}

// ConstrainedColumnNames returns the constrained column names in key order.
func (f ForeignKeyWalker) ConstrainedColumnNames() []string {
	return columnNames(f.ConstrainedColumns())
}

// ReferencedColumnNames returns the referenced column names in key order.
func (f ForeignKeyWalker) ReferencedColumnNames() []string {
	return columnNames(f.ReferencedColumns())
}

// OnDelete action.
func (f ForeignKeyWalker) OnDelete() ReferentialAction { return f.get().OnDelete }

// OnUpdate action.
func (f ForeignKeyWalker) OnUpdate() ReferentialAction { return f.get().OnUpdate }

// EnumWalker navigates an enum.
type EnumWalker struct {
	Schema *Schema
	ID     EnumID
}

func (e EnumWalker) get() *Enum { return &e.Schema.Enums[e.ID] }

// Name of the enum.
func (e EnumWalker) Name() string { return e.get().Name }

// Namespace of the enum.
func (e EnumWalker) Namespace() string { return e.get().Namespace }

// Variants in declaration order.
func (e EnumWalker) Variants() []string { return e.get().Variants }

// HasVariant reports whether v is one of the enum's variants.
func (e EnumWalker) HasVariant(v string) bool {
	for _, variant := range e.get().Variants {
		if variant == v {
			return true
		}
	}
	return false
}

// UsedBy returns every column whose type is this enum.
func (e EnumWalker) UsedBy() []ColumnWalker {
	var out []ColumnWalker
	for i, c := range e.Schema.Columns {
		t := c.Column.Type
		if t.Family != FamilyEnum || t.EnumName != e.Name() {
			continue
		}
		col := e.Schema.Column(ColumnID(i))
		if ns := e.Namespace(); ns != "" && col.Table().Namespace() != "" && col.Table().Namespace() != ns {
			continue
		}
		out = append(out, col)
	}
	return out
}

// ViewWalker navigates a view.
type ViewWalker struct {
	Schema *Schema
	ID     ViewID
}

func (v ViewWalker) get() *View { return &v.Schema.Views[v.ID] }

// Name of the view.
func (v ViewWalker) Name() string { return v.get().Name }

// Namespace of the view.
func (v ViewWalker) Namespace() string { return v.get().Namespace }

// Definition is the view's opaque SQL text.
func (v ViewWalker) Definition() string { return v.get().Definition }

func columnNames(cols []ColumnWalker) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name()
	}
	return out
}
