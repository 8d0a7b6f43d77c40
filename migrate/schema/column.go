package schema

import (
	"fmt"
	"strings"
)

// ColumnTypeFamily is the dialect-independent category of a column type.
type ColumnTypeFamily int

const (
	FamilyInt ColumnTypeFamily = iota
	FamilyBigInt
	FamilyFloat
	FamilyDecimal
	FamilyBoolean
	FamilyString
	FamilyDateTime
	FamilyBinary
	FamilyJSON
	FamilyUUID
	FamilyEnum
	FamilyUnsupported
)

var familyNames = [...]string{
	FamilyInt:         "Int",
	FamilyBigInt:      "BigInt",
	FamilyFloat:       "Float",
	FamilyDecimal:     "Decimal",
	FamilyBoolean:     "Boolean",
	FamilyString:      "String",
	FamilyDateTime:    "DateTime",
	FamilyBinary:      "Bytes",
	FamilyJSON:        "Json",
	FamilyUUID:        "Uuid",
	FamilyEnum:        "Enum",
	FamilyUnsupported: "Unsupported",
}

func (f ColumnTypeFamily) String() string {
	if int(f) < len(familyNames) {
		return familyNames[f]
	}
	return fmt.Sprintf("ColumnTypeFamily(%d)", int(f))
}

// ParseFamily is the inverse of ColumnTypeFamily.String.
func ParseFamily(s string) (ColumnTypeFamily, bool) {
	for i, name := range familyNames {
		if strings.EqualFold(name, s) {
			return ColumnTypeFamily(i), true
		}
	}
	switch strings.ToLower(s) {
	case "binary":
		return FamilyBinary, true
	case "datetime", "timestamp":
		return FamilyDateTime, true
	}
	return 0, false
}

// Arity describes whether a column is required, nullable or a list.
type Arity int

const (
	Required Arity = iota
	Nullable
	List
)

func (a Arity) String() string {
	switch a {
	case Nullable:
		return "nullable"
	case List:
		return "list"
	default:
		return "required"
	}
}

// IsRequired reports whether the column is NOT NULL and scalar.
func (a Arity) IsRequired() bool { return a == Required }

// IsNullable reports whether the column accepts NULL.
func (a Arity) IsNullable() bool { return a == Nullable }

// IsList reports whether the column is an array.
func (a Arity) IsList() bool { return a == List }

// NativeType is the dialect-specific type name with its arguments, e.g. VarChar(191).
type NativeType struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

func (n NativeType) String() string {
	if len(n.Args) == 0 {
		return n.Name
	}
	return n.Name + "(" + strings.Join(n.Args, ",") + ")"
}

// Equal compares names case-insensitively and arguments exactly.
func (n *NativeType) Equal(o *NativeType) bool {
	if n == nil || o == nil {
		return n == o
	}
	if !strings.EqualFold(n.Name, o.Name) || len(n.Args) != len(o.Args) {
		return false
	}
	for i := range n.Args {
		if n.Args[i] != o.Args[i] {
			return false
		}
	}
	return true
}

// ColumnType is the full type of a column.
type ColumnType struct {
	Family ColumnTypeFamily `json:"family"`
	// EnumName is set when Family is FamilyEnum.
	EnumName string `json:"enum,omitempty"`
	// FullDataType is the raw type text as the database reported it.
	FullDataType string      `json:"fullDataType,omitempty"`
	Native       *NativeType `json:"native,omitempty"`
	Arity        Arity       `json:"arity"`
}

// IsUnsupported reports whether the column type is an unrecognized passthrough.
func (t ColumnType) IsUnsupported() bool {
	return t.Family == FamilyUnsupported
}

// DefaultKind distinguishes the forms a column default can take.
type DefaultKind int

const (
	DefaultValue DefaultKind = iota
	DefaultNow
	DefaultSequence
	DefaultUniqueRowID
	DefaultDBGenerated
)

// LiteralKind is the kind of a literal default value.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBoolean
	LiteralBytes
	LiteralEnumVariant
	LiteralJSON
	LiteralNull
)

// Literal is a constant default value kept in canonical textual form.
type Literal struct {
	Kind LiteralKind `json:"kind"`
	Text string      `json:"text"`
}

// ColumnDefault is the default of a column.
type ColumnDefault struct {
	Kind  DefaultKind `json:"kind"`
	Value *Literal    `json:"value,omitempty"`
	// Expression holds the raw SQL for DefaultDBGenerated defaults.
	Expression     string `json:"expression,omitempty"`
	SequenceName   string `json:"sequence,omitempty"`
	ConstraintName string `json:"constraintName,omitempty"`
}

// ValueDefault builds a literal default.
func ValueDefault(kind LiteralKind, text string) *ColumnDefault {
	return &ColumnDefault{Kind: DefaultValue, Value: &Literal{Kind: kind, Text: text}}
}

// NowDefault builds a current-timestamp default.
func NowDefault() *ColumnDefault {
	return &ColumnDefault{Kind: DefaultNow}
}

// DBGeneratedDefault builds a default from an arbitrary SQL expression.
func DBGeneratedDefault(expr string) *ColumnDefault {
	return &ColumnDefault{Kind: DefaultDBGenerated, Expression: expr}
}

// SequenceDefault builds a nextval-style default.
func SequenceDefault(name string) *ColumnDefault {
	return &ColumnDefault{Kind: DefaultSequence, SequenceName: name}
}

// IsSequence reports whether the default draws from a sequence.
func (d *ColumnDefault) IsSequence() bool {
	return d != nil && d.Kind == DefaultSequence
}

// Column is a single table column.
type Column struct {
	Name          string         `json:"name"`
	Type          ColumnType     `json:"type"`
	Default       *ColumnDefault `json:"default,omitempty"`
	AutoIncrement bool           `json:"autoIncrement,omitempty"`
	Description   string         `json:"description,omitempty"`
	// VirtualDefault names a default generated by the client (uuid(), cuid()).
	// It never exists in the database and describers never set it.
	VirtualDefault string `json:"virtualDefault,omitempty"`
}
