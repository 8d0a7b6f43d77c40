package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/satishbabariya/schema-engine/internal/enginerr"
)

// Document is the nested, hand-editable form of a schema. It is how desired-state
// schemas are written to disk and read back.
type Document struct {
	Provider   string          `json:"provider" yaml:"provider"`
	Namespaces []string        `json:"namespaces,omitempty" yaml:"namespaces,omitempty"`
	Enums      []EnumDocument  `json:"enums,omitempty" yaml:"enums,omitempty"`
	Tables     []TableDocument `json:"tables" yaml:"tables"`
	Views      []ViewDocument  `json:"views,omitempty" yaml:"views,omitempty"`
}

// EnumDocument describes an enum.
type EnumDocument struct {
	Name      string   `json:"name" yaml:"name"`
	Namespace string   `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Values    []string `json:"values" yaml:"values"`
}

// TableDocument describes a table with everything it owns.
type TableDocument struct {
	Name        string               `json:"name" yaml:"name"`
	Namespace   string               `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Comment     string               `json:"comment,omitempty" yaml:"comment,omitempty"`
	Columns     []ColumnDocument     `json:"columns" yaml:"columns"`
	PrimaryKey  *PrimaryKeyDocument  `json:"primaryKey,omitempty" yaml:"primaryKey,omitempty"`
	Indexes     []IndexDocument      `json:"indexes,omitempty" yaml:"indexes,omitempty"`
	ForeignKeys []ForeignKeyDocument `json:"foreignKeys,omitempty" yaml:"foreignKeys,omitempty"`
}

// ColumnDocument describes a column. Type is a family name (Int, String, ...);
// Native optionally pins the database type, e.g. "VarChar(191)".
type ColumnDocument struct {
	Name          string `json:"name" yaml:"name"`
	Type          string `json:"type" yaml:"type"`
	Enum          string `json:"enum,omitempty" yaml:"enum,omitempty"`
	Native        string `json:"native,omitempty" yaml:"native,omitempty"`
	Nullable      bool   `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	List          bool   `json:"list,omitempty" yaml:"list,omitempty"`
	Default       string `json:"default,omitempty" yaml:"default,omitempty"`
	AutoIncrement bool   `json:"autoIncrement,omitempty" yaml:"autoIncrement,omitempty"`
	Description   string `json:"description,omitempty" yaml:"description,omitempty"`
}

// PrimaryKeyDocument describes a primary key.
type PrimaryKeyDocument struct {
	Name    string   `json:"name,omitempty" yaml:"name,omitempty"`
	Columns []string `json:"columns" yaml:"columns"`
}

// IndexDocument describes a secondary index or unique constraint.
type IndexDocument struct {
	Name      string   `json:"name" yaml:"name"`
	Columns   []string `json:"columns" yaml:"columns"`
	Unique    bool     `json:"unique,omitempty" yaml:"unique,omitempty"`
	Fulltext  bool     `json:"fulltext,omitempty" yaml:"fulltext,omitempty"`
	Algorithm string   `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`
}

// ForeignKeyDocument describes a foreign key by table and column names.
type ForeignKeyDocument struct {
	Name                string   `json:"name,omitempty" yaml:"name,omitempty"`
	Columns             []string `json:"columns" yaml:"columns"`
	ReferencedTable     string   `json:"referencedTable" yaml:"referencedTable"`
	ReferencedNamespace string   `json:"referencedNamespace,omitempty" yaml:"referencedNamespace,omitempty"`
	ReferencedColumns   []string `json:"referencedColumns" yaml:"referencedColumns"`
	OnDelete            string   `json:"onDelete,omitempty" yaml:"onDelete,omitempty"`
	OnUpdate            string   `json:"onUpdate,omitempty" yaml:"onUpdate,omitempty"`
}

// ViewDocument describes a view.
type ViewDocument struct {
	Name       string `json:"name" yaml:"name"`
	Namespace  string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Definition string `json:"definition" yaml:"definition"`
}

// Lower turns the document into a validated Schema.
func (d *Document) Lower() (*Schema, error) {
	dialect, ok := ParseDialect(d.Provider)
	if !ok {
		return nil, enginerr.New(enginerr.ValidationError, "unknown provider %q", d.Provider)
	}

	b := NewBuilder(dialect)
	for _, ns := range d.Namespaces {
		b.AddNamespace(ns)
	}
	defaultNS := func(ns string) string {
		if ns != "" {
			return ns
		}
		return dialect.DefaultNamespace()
	}

	for _, e := range d.Enums {
		b.AddEnum(defaultNS(e.Namespace), e.Name, e.Values...)
	}

	// Tables and columns first so foreign keys can reference any table.
	tableIDs := make([]TableID, len(d.Tables))
	for i, t := range d.Tables {
		if _, dup := b.FindTable(defaultNS(t.Namespace), t.Name); dup {
			return nil, enginerr.New(enginerr.ValidationError, "table %q is declared twice", t.Name)
		}
		id := b.AddTable(defaultNS(t.Namespace), t.Name)
		b.SetTableComment(id, t.Comment)
		tableIDs[i] = id

		for _, c := range t.Columns {
			col, err := c.lower()
			if err != nil {
				return nil, enginerr.Wrap(enginerr.ValidationError, err, "invalid column").
					WithTable(t.Namespace, t.Name).With("column", c.Name)
			}
			b.AddColumn(id, col)
		}
	}

	for i, t := range d.Tables {
		id := tableIDs[i]
		resolve := func(names []string) ([]ColumnID, error) {
			ids := make([]ColumnID, len(names))
			for n, name := range names {
				cid, ok := b.FindColumn(id, name)
				if !ok {
					return nil, enginerr.New(enginerr.ValidationError, "unknown column %q in table %q", name, t.Name)
				}
				ids[n] = cid
			}
			return ids, nil
		}

		if t.PrimaryKey != nil {
			cols, err := resolve(t.PrimaryKey.Columns)
			if err != nil {
				return nil, err
			}
			name := t.PrimaryKey.Name
			if name == "" {
				name = t.Name + "_pkey"
			}
			b.SetPrimaryKey(id, name, cols...)
		}

		for _, idx := range t.Indexes {
			cols, err := resolve(idx.Columns)
			if err != nil {
				return nil, err
			}
			typ := IndexNormal
			switch {
			case idx.Unique:
				typ = IndexUnique
			case idx.Fulltext:
				typ = IndexFulltext
			}
			iid := b.AddIndex(id, idx.Name, typ, cols...)
			b.Index(iid).Algorithm = idx.Algorithm
		}

		for _, fk := range t.ForeignKeys {
			constrained, err := resolve(fk.Columns)
			if err != nil {
				return nil, err
			}
			refNS := fk.ReferencedNamespace
			if refNS == "" {
				refNS = defaultNS(t.Namespace)
			}
			refID, ok := b.FindTable(refNS, fk.ReferencedTable)
			if !ok {
				return nil, enginerr.New(enginerr.ValidationError, "foreign key on %q references unknown table %q", t.Name, fk.ReferencedTable)
			}
			if len(fk.Columns) != len(fk.ReferencedColumns) {
				return nil, enginerr.New(enginerr.ValidationError, "foreign key on %q has %d columns but references %d",
					t.Name, len(fk.Columns), len(fk.ReferencedColumns))
			}
			referenced := make([]ColumnID, len(fk.ReferencedColumns))
			for n, name := range fk.ReferencedColumns {
				cid, ok := b.FindColumn(refID, name)
				if !ok {
					return nil, enginerr.New(enginerr.ValidationError, "foreign key on %q references unknown column %s.%s", t.Name, fk.ReferencedTable, name)
				}
				referenced[n] = cid
			}
			name := fk.Name
			if name == "" {
				name = t.Name + "_" + strings.Join(fk.Columns, "_") + "_fkey"
			}
			onDelete := ParseReferentialAction(fk.OnDelete)
			if fk.OnDelete == "" {
				onDelete = Restrict
				for _, cid := range constrained {
					if b.Column(cid).Type.Arity.IsNullable() {
						onDelete = SetNull
						break
					}
				}
			}
			onUpdate := ParseReferentialAction(fk.OnUpdate)
			if fk.OnUpdate == "" {
				onUpdate = Cascade
			}
			b.AddForeignKey(id, constrained, refID, referenced, onDelete, onUpdate, name)
		}
	}

	for _, v := range d.Views {
		b.AddView(defaultNS(v.Namespace), v.Name, v.Definition)
	}

	s := b.Build()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (c ColumnDocument) lower() (Column, error) {
	family, ok := ParseFamily(c.Type)
	if !ok {
		family = FamilyUnsupported
	}
	col := Column{
		Name: c.Name,
		Type: ColumnType{
			Family:   family,
			EnumName: c.Enum,
		},
		AutoIncrement: c.AutoIncrement,
		Description:   c.Description,
	}
	if family == FamilyUnsupported {
		col.Type.FullDataType = c.Type
	}
	if family == FamilyEnum && c.Enum == "" {
		return Column{}, fmt.Errorf("enum column %q needs an enum name", c.Name)
	}
	switch {
	case c.List:
		col.Type.Arity = List
	case c.Nullable:
		col.Type.Arity = Nullable
	default:
		col.Type.Arity = Required
	}
	if c.Native != "" {
		native := ParseNativeType(c.Native)
		col.Type.Native = &native
	}

	switch def := strings.TrimSpace(c.Default); {
	case def == "":
	case def == "autoincrement()":
		col.AutoIncrement = true
	case def == "uuid()" || def == "cuid()" || def == "nanoid()" || def == "ulid()":
		col.VirtualDefault = def
	default:
		d, err := ParseDefault(def, family)
		if err != nil {
			return Column{}, err
		}
		col.Default = d
	}
	return col, nil
}

// ParseNativeType parses "VarChar(191)" into its name and arguments.
func ParseNativeType(s string) NativeType {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return NativeType{Name: s}
	}
	var args []string
	for _, a := range strings.Split(s[open+1:len(s)-1], ",") {
		if a = strings.TrimSpace(a); a != "" {
			args = append(args, a)
		}
	}
	return NativeType{Name: strings.TrimSpace(s[:open]), Args: args}
}

// ParseDefault parses the textual default notation used in documents:
// now(), dbgenerated(expr), sequence(name), 'text', numbers, true/false, null
// and bare enum variants.
func ParseDefault(s string, family ColumnTypeFamily) (*ColumnDefault, error) {
	switch {
	case s == "now()":
		return NowDefault(), nil
	case s == "null":
		return ValueDefault(LiteralNull, ""), nil
	case strings.HasPrefix(s, "dbgenerated(") && strings.HasSuffix(s, ")"):
		return DBGeneratedDefault(unquote(s[len("dbgenerated(") : len(s)-1])), nil
	case strings.HasPrefix(s, "sequence(") && strings.HasSuffix(s, ")"):
		return SequenceDefault(unquote(s[len("sequence(") : len(s)-1])), nil
	case len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'':
		text := strings.ReplaceAll(s[1:len(s)-1], "''", "'")
		switch family {
		case FamilyJSON:
			return ValueDefault(LiteralJSON, text), nil
		case FamilyBinary:
			return ValueDefault(LiteralBytes, text), nil
		default:
			return ValueDefault(LiteralString, text), nil
		}
	case s == "true" || s == "false":
		return ValueDefault(LiteralBoolean, s), nil
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return ValueDefault(LiteralNumber, s), nil
	}
	if family == FamilyEnum {
		return ValueDefault(LiteralEnumVariant, s), nil
	}
	return nil, fmt.Errorf("unrecognized default %q", s)
}

// FormatDefault renders a default in the notation ParseDefault accepts.
func FormatDefault(d *ColumnDefault) string {
	if d == nil {
		return ""
	}
	switch d.Kind {
	case DefaultNow:
		return "now()"
	case DefaultSequence:
		return "sequence(" + d.SequenceName + ")"
	case DefaultUniqueRowID:
		return "dbgenerated(unique_rowid())"
	case DefaultDBGenerated:
		return "dbgenerated(" + d.Expression + ")"
	}
	if d.Value == nil {
		return ""
	}
	switch d.Value.Kind {
	case LiteralString, LiteralJSON, LiteralBytes:
		return "'" + strings.ReplaceAll(d.Value.Text, "'", "''") + "'"
	case LiteralNull:
		return "null"
	default:
		return d.Value.Text
	}
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// FromSchema converts a schema back into its document form.
func FromSchema(s *Schema) *Document {
	d := &Document{Provider: string(s.Dialect), Namespaces: s.Namespaces}

	for _, e := range s.WalkEnums() {
		d.Enums = append(d.Enums, EnumDocument{Name: e.Name(), Namespace: e.Namespace(), Values: e.Variants()})
	}

	for _, t := range s.WalkTables() {
		td := TableDocument{Name: t.Name(), Namespace: t.Namespace(), Comment: t.Comment()}
		for _, c := range t.Columns() {
			col := c.Column()
			cd := ColumnDocument{
				Name:          col.Name,
				Type:          col.Type.Family.String(),
				Enum:          col.Type.EnumName,
				Nullable:      col.Type.Arity.IsNullable(),
				List:          col.Type.Arity.IsList(),
				Default:       FormatDefault(col.Default),
				AutoIncrement: col.AutoIncrement,
				Description:   col.Description,
			}
			if col.Type.IsUnsupported() {
				cd.Type = col.Type.FullDataType
			}
			if col.Type.Native != nil {
				cd.Native = col.Type.Native.String()
			}
			if col.VirtualDefault != "" {
				cd.Default = col.VirtualDefault
			}
			td.Columns = append(td.Columns, cd)
		}
		if pk, ok := t.PrimaryKey(); ok {
			td.PrimaryKey = &PrimaryKeyDocument{Name: pk.Name(), Columns: pk.ColumnNames()}
		}
		for _, idx := range t.SecondaryIndexes() {
			td.Indexes = append(td.Indexes, IndexDocument{
				Name:      idx.Name(),
				Columns:   idx.ColumnNames(),
				Unique:    idx.Type() == IndexUnique,
				Fulltext:  idx.Type() == IndexFulltext,
				Algorithm: idx.Algorithm(),
			})
		}
		for _, fk := range t.ForeignKeys() {
			ref := fk.ReferencedTable()
			fd := ForeignKeyDocument{
				Name:              fk.ConstraintName(),
				Columns:           fk.ConstrainedColumnNames(),
				ReferencedTable:   ref.Name(),
				ReferencedColumns: fk.ReferencedColumnNames(),
				OnDelete:          string(fk.OnDelete()),
				OnUpdate:          string(fk.OnUpdate()),
			}
			if ref.Namespace() != t.Namespace() {
				fd.ReferencedNamespace = ref.Namespace()
			}
			td.ForeignKeys = append(td.ForeignKeys, fd)
		}
		d.Tables = append(d.Tables, td)
	}

	for _, v := range s.WalkViews() {
		d.Views = append(d.Views, ViewDocument{Name: v.Name(), Namespace: v.Namespace(), Definition: v.Definition()})
	}
	return d
}
