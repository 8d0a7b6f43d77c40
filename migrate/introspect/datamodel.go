package introspect

import (
	"context"
	"fmt"
	"strings"

	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// Warning is a finding about the introspected schema that the data model
// cannot express faithfully.
type Warning struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Affected []string `json:"affected,omitempty"`
}

// Warning codes.
const (
	WarnUnsupportedType  = "unsupported_type"
	WarnNoUniqueIdentity = "no_unique_identifier"
	WarnDanglingFKs      = "dangling_foreign_keys"
)

// ViewDefinition is the query text of a described view.
type ViewDefinition struct {
	Namespace  string `json:"namespace,omitempty"`
	Name       string `json:"name"`
	Definition string `json:"definition"`
}

// IntrospectionResult is the outcome of Introspect.
type IntrospectionResult struct {
	Schema          *schema.Schema   `json:"-"`
	DataModelText   string           `json:"datamodel"`
	IsEmpty         bool             `json:"isEmpty"`
	Warnings        []Warning        `json:"warnings,omitempty"`
	ViewDefinitions []ViewDefinition `json:"views,omitempty"`
}

// Introspect describes the database and renders it as a data model.
func Introspect(ctx context.Context, conn Connection, namespaces []string) (*IntrospectionResult, error) {
	s, purged, err := describe(ctx, conn, namespaces)
	if err != nil {
		return nil, err
	}

	res := &IntrospectionResult{
		Schema:        s,
		DataModelText: RenderDataModel(s),
		IsEmpty:       s.IsEmpty(),
		Warnings:      warningsFor(s),
	}
	if purged > 0 {
		res.Warnings = append(res.Warnings, Warning{
			Code:    WarnDanglingFKs,
			Message: fmt.Sprintf("%d foreign keys referencing tables outside the described namespaces were ignored", purged),
		})
	}
	for _, v := range s.WalkViews() {
		res.ViewDefinitions = append(res.ViewDefinitions, ViewDefinition{
			Namespace:  v.Namespace(),
			Name:       v.Name(),
			Definition: v.Definition(),
		})
	}
	return res, nil
}

func warningsFor(s *schema.Schema) []Warning {
	var warnings []Warning

	var unsupported []string
	for _, t := range s.WalkTables() {
		for _, c := range t.Columns() {
			if c.Type().IsUnsupported() {
				unsupported = append(unsupported, fmt.Sprintf("%s.%s (%s)", t.Name(), c.Name(), c.Type().FullDataType))
			}
		}
	}
	if len(unsupported) > 0 {
		warnings = append(warnings, Warning{
			Code:     WarnUnsupportedType,
			Message:  "These fields are not supported and are rendered as Unsupported",
			Affected: unsupported,
		})
	}

	var unidentified []string
	for _, t := range s.WalkTables() {
		if !hasUniqueIdentifier(t) {
			unidentified = append(unidentified, t.Name())
		}
	}
	if len(unidentified) > 0 {
		warnings = append(warnings, Warning{
			Code:     WarnNoUniqueIdentity,
			Message:  "These tables have no primary key or unique index",
			Affected: unidentified,
		})
	}
	return warnings
}

func hasUniqueIdentifier(t schema.TableWalker) bool {
	for _, idx := range t.Indexes() {
		if idx.Type().IsUnique() {
			return true
		}
	}
	return false
}

// RenderDataModel renders s as a textual data model: one model per table, one
// enum block per enum, with fields aligned in columns.
func RenderDataModel(s *schema.Schema) string {
	var out strings.Builder
	for _, t := range s.WalkTables() {
		renderModel(&out, t)
	}
	for _, e := range s.WalkEnums() {
		fmt.Fprintf(&out, "enum %s {\n", toPascalCase(e.Name()))
		for _, v := range e.Variants() {
			fmt.Fprintf(&out, "  %s\n", v)
		}
		out.WriteString("}\n\n")
	}
	return strings.TrimRight(out.String(), "\n") + "\n"
}

func renderModel(out *strings.Builder, t schema.TableWalker) {
	fmt.Fprintf(out, "model %s {\n", toPascalCase(t.Name()))

	pk, hasPK := t.PrimaryKey()
	singlePK := hasPK && len(pk.IndexColumns()) == 1

	var rows [][]string
	for _, c := range t.Columns() {
		var attrs []string
		if singlePK && pk.ColumnNames()[0] == c.Name() {
			attrs = append(attrs, "@id")
		}
		if c.IsAutoIncrement() {
			attrs = append(attrs, "@default(autoincrement())")
		} else if d := dataModelDefault(c.Default()); d != "" {
			attrs = append(attrs, "@default("+d+")")
		}
		for _, idx := range t.SecondaryIndexes() {
			if idx.IsUnique() && len(idx.IndexColumns()) == 1 && idx.ColumnNames()[0] == c.Name() {
				attrs = append(attrs, "@unique")
				break
			}
		}
		if n := c.Type().Native; n != nil {
			attrs = append(attrs, "@db."+toPascalCase(n.Name)+nativeArgs(n))
		}
		rows = append(rows, []string{c.Name(), fieldType(c), strings.Join(attrs, " ")})
	}

	for _, fk := range t.ForeignKeys() {
		ref := fk.ReferencedTable()
		rel := fmt.Sprintf("@relation(fields: [%s], references: [%s]",
			strings.Join(fk.ConstrainedColumnNames(), ", "), strings.Join(fk.ReferencedColumnNames(), ", "))
		if a := fk.OnDelete(); a != schema.NoAction {
			rel += ", onDelete: " + toPascalCase(strings.ToLower(strings.ReplaceAll(string(a), " ", "_")))
		}
		if a := fk.OnUpdate(); a != schema.NoAction {
			rel += ", onUpdate: " + toPascalCase(strings.ToLower(strings.ReplaceAll(string(a), " ", "_")))
		}
		rel += ")"
		optional := ""
		for _, c := range fk.ConstrainedColumns() {
			if c.Arity().IsNullable() {
				optional = "?"
			}
		}
		rows = append(rows, []string{lowerFirst(toPascalCase(ref.Name())), toPascalCase(ref.Name()) + optional, rel})
	}
	writeAligned(out, rows)

	var blocks []string
	if hasPK && !singlePK {
		blocks = append(blocks, fmt.Sprintf("@@id([%s])", strings.Join(pk.ColumnNames(), ", ")))
	}
	for _, idx := range t.SecondaryIndexes() {
		cols := strings.Join(idx.ColumnNames(), ", ")
		switch {
		case idx.IsUnique() && len(idx.IndexColumns()) > 1:
			blocks = append(blocks, fmt.Sprintf("@@unique([%s])", cols))
		case idx.Type() == schema.IndexNormal:
			blocks = append(blocks, fmt.Sprintf("@@index([%s])", cols))
		case idx.Type() == schema.IndexFulltext:
			blocks = append(blocks, fmt.Sprintf("@@fulltext([%s])", cols))
		}
	}
	if toPascalCase(t.Name()) != t.Name() {
		blocks = append(blocks, fmt.Sprintf("@@map(%q)", t.Name()))
	}
	if t.Namespace() != "" && t.Namespace() != t.Schema.Dialect.DefaultNamespace() {
		blocks = append(blocks, fmt.Sprintf("@@schema(%q)", t.Namespace()))
	}
	if len(blocks) > 0 {
		out.WriteString("\n")
		for _, b := range blocks {
			fmt.Fprintf(out, "  %s\n", b)
		}
	}
	out.WriteString("}\n\n")
}

func fieldType(c schema.ColumnWalker) string {
	t := c.Type()
	var name string
	switch t.Family {
	case schema.FamilyUnsupported:
		name = fmt.Sprintf("Unsupported(%q)", t.FullDataType)
	case schema.FamilyEnum:
		name = toPascalCase(t.EnumName)
	case schema.FamilyUUID:
		name = "String"
	default:
		name = t.Family.String()
	}
	switch t.Arity {
	case schema.Nullable:
		name += "?"
	case schema.List:
		name += "[]"
	}
	return name
}

func dataModelDefault(d *schema.ColumnDefault) string {
	if d == nil {
		return ""
	}
	switch d.Kind {
	case schema.DefaultNow:
		return "now()"
	case schema.DefaultSequence:
		return "autoincrement()"
	case schema.DefaultUniqueRowID:
		return "sequence()"
	case schema.DefaultDBGenerated:
		return fmt.Sprintf("dbgenerated(%q)", d.Expression)
	}
	if d.Value == nil {
		return ""
	}
	switch d.Value.Kind {
	case schema.LiteralString, schema.LiteralJSON, schema.LiteralBytes:
		return fmt.Sprintf("%q", d.Value.Text)
	case schema.LiteralNull:
		return ""
	default:
		return d.Value.Text
	}
}

func nativeArgs(n *schema.NativeType) string {
	if len(n.Args) == 0 {
		return ""
	}
	return "(" + strings.Join(n.Args, ", ") + ")"
}

func writeAligned(out *strings.Builder, rows [][]string) {
	widths := make([]int, 2)
	for _, r := range rows {
		for i := range widths {
			widths[i] = max(widths[i], len(r[i]))
		}
	}
	for _, r := range rows {
		line := fmt.Sprintf("  %-*s %-*s %s", widths[0], r[0], widths[1], r[1], r[2])
		out.WriteString(strings.TrimRight(line, " "))
		out.WriteString("\n")
	}
}

func toPascalCase(s string) string {
	var b strings.Builder
	for _, word := range strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }) {
		b.WriteString(strings.ToUpper(word[:1]) + word[1:])
	}
	return b.String()
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
