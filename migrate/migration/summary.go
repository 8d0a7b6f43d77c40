package migration

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/schema-engine/migrate/schema"
)

type tableSummary struct {
	name  string
	lines []string
}

type summary struct {
	addedEnums, removedEnums   []string
	addedTables, removedTables []string
	addedViews, removedViews   []string
	enums                      []*tableSummary
	tables                     []*tableSummary
	index                      map[string]*tableSummary
}

func (s *summary) table(name string) *tableSummary {
	if t, ok := s.index["t:"+name]; ok {
		return t
	}
	t := &tableSummary{name: name}
	s.index["t:"+name] = t
	s.tables = append(s.tables, t)
	return t
}

func (s *summary) enum(name string) *tableSummary {
	if t, ok := s.index["e:"+name]; ok {
		return t
	}
	t := &tableSummary{name: name}
	s.index["e:"+name] = t
	s.enums = append(s.enums, t)
	return t
}

// Summary renders a human readable description of the steps, in the style of a
// drift report. An empty step list yields "No difference detected.".
func Summary(m *Migration) string {
	if m.IsEmpty() {
		return "No difference detected."
	}

	prev, next := m.Schemas.Previous, m.Schemas.Next
	s := &summary{index: make(map[string]*tableSummary)}

	for _, step := range m.Steps {
		switch st := step.(type) {
		case CreateEnum:
			s.addedEnums = append(s.addedEnums, next.Enum(st.EnumID).Name())
		case DropEnum:
			s.removedEnums = append(s.removedEnums, prev.Enum(st.EnumID).Name())
		case AlterEnum:
			e := s.enum(next.Enum(st.EnumIDs.Next).Name())
			for _, v := range st.CreatedVariants {
				e.lines = append(e.lines, fmt.Sprintf("[+] Added variant `%s`", v))
			}
			for _, v := range st.DroppedVariants {
				e.lines = append(e.lines, fmt.Sprintf("[-] Removed variant `%s`", v))
			}
		case CreateTable:
			s.addedTables = append(s.addedTables, next.Table(st.TableID).Name())
		case DropTable:
			s.removedTables = append(s.removedTables, prev.Table(st.TableID).Name())
		case CreateView:
			s.addedViews = append(s.addedViews, next.View(st.ViewID).Name())
		case DropView:
			s.removedViews = append(s.removedViews, prev.View(st.ViewID).Name())
		case AddColumn:
			t := s.table(next.Table(st.TableIDs.Next).Name())
			t.lines = append(t.lines, fmt.Sprintf("[+] Added column `%s`", next.Column(st.ColumnID).Name()))
		case DropColumn:
			t := s.table(prev.Table(st.TableIDs.Previous).Name())
			t.lines = append(t.lines, fmt.Sprintf("[-] Removed column `%s`", prev.Column(st.ColumnID).Name()))
		case AlterColumn:
			t := s.table(next.Table(st.TableIDs.Next).Name())
			cols := Pair[schema.ColumnWalker]{Previous: prev.Column(st.ColumnIDs.Previous), Next: next.Column(st.ColumnIDs.Next)}
			t.lines = append(t.lines, fmt.Sprintf("[*] Altered column `%s` (%s)", cols.Next.Name(), describeChanges(cols, st.Changes)))
		case DropAndRecreateColumn:
			t := s.table(next.Table(st.TableIDs.Next).Name())
			t.lines = append(t.lines, fmt.Sprintf("[*] Recreated column `%s` (type is not castable)", next.Column(st.ColumnIDs.Next).Name()))
		case AddPrimaryKey:
			t := s.table(next.Table(st.TableIDs.Next).Name())
			t.lines = append(t.lines, fmt.Sprintf("[+] Added primary key on columns (%s)",
				strings.Join(next.Table(st.TableIDs.Next).PrimaryKeyColumnNames(), ", ")))
		case DropPrimaryKey:
			t := s.table(prev.Table(st.TableIDs.Previous).Name())
			t.lines = append(t.lines, "[-] Removed primary key")
		case CreateIndex:
			if st.TableCreated {
				continue
			}
			idx := next.Index(st.IndexID)
			t := s.table(idx.Table().Name())
			t.lines = append(t.lines, fmt.Sprintf("[+] Added %s on columns (%s)", indexNoun(idx), strings.Join(idx.ColumnNames(), ", ")))
		case DropIndex:
			idx := prev.Index(st.IndexID)
			t := s.table(idx.Table().Name())
			t.lines = append(t.lines, fmt.Sprintf("[-] Removed %s on columns (%s)", indexNoun(idx), strings.Join(idx.ColumnNames(), ", ")))
		case RenameIndex:
			idx := next.Index(st.IndexIDs.Next)
			t := s.table(idx.Table().Name())
			t.lines = append(t.lines, fmt.Sprintf("[*] Renamed index `%s` to `%s`", prev.Index(st.IndexIDs.Previous).Name(), idx.Name()))
		case CreateForeignKey:
			fk := next.ForeignKey(st.ForeignKeyID)
			if createdInSameMigration(m, fk.ConstrainedTable().ID) {
				continue
			}
			t := s.table(fk.ConstrainedTable().Name())
			t.lines = append(t.lines, fmt.Sprintf("[+] Added foreign key on columns (%s)", strings.Join(fk.ConstrainedColumnNames(), ", ")))
		case DropForeignKey:
			fk := prev.ForeignKey(st.ForeignKeyID)
			if droppedInSameMigration(m, fk.ConstrainedTable().ID) {
				continue
			}
			t := s.table(fk.ConstrainedTable().Name())
			t.lines = append(t.lines, fmt.Sprintf("[-] Removed foreign key on columns (%s)", strings.Join(fk.ConstrainedColumnNames(), ", ")))
		case RenameForeignKey:
			fk := next.ForeignKey(st.ForeignKeyIDs.Next)
			t := s.table(fk.ConstrainedTable().Name())
			t.lines = append(t.lines, fmt.Sprintf("[*] Renamed foreign key `%s` to `%s`",
				prev.ForeignKey(st.ForeignKeyIDs.Previous).ConstraintName(), fk.ConstraintName()))
		case RedefineTables:
			for _, rt := range st.Tables {
				t := s.table(next.Table(rt.TableIDs.Next).Name())
				for _, c := range rt.AddedColumns {
					t.lines = append(t.lines, fmt.Sprintf("[+] Added column `%s`", next.Column(c).Name()))
				}
				for _, c := range rt.AddedColumnsWithVirtualDefaults {
					t.lines = append(t.lines, fmt.Sprintf("[+] Added column `%s`", next.Column(c).Name()))
				}
				for _, c := range rt.DroppedColumns {
					t.lines = append(t.lines, fmt.Sprintf("[-] Removed column `%s`", prev.Column(c).Name()))
				}
				if rt.DroppedPrimaryKey {
					t.lines = append(t.lines, "[*] Changed primary key")
				}
				for _, cp := range rt.ColumnPairs {
					if !cp.Changes.DiffersInSomething() {
						continue
					}
					cols := Pair[schema.ColumnWalker]{Previous: prev.Column(cp.ColumnIDs.Previous), Next: next.Column(cp.ColumnIDs.Next)}
					t.lines = append(t.lines, fmt.Sprintf("[*] Altered column `%s` (%s)", cols.Next.Name(), describeChanges(cols, cp.Changes)))
				}
				if len(t.lines) == 0 {
					t.lines = append(t.lines, "[*] Redefined table")
				}
			}
		}
	}

	var b strings.Builder
	section := func(header string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s\n", header)
		for _, item := range items {
			fmt.Fprintf(&b, "  - %s\n", item)
		}
	}
	section("[+] Added enums", s.addedEnums)
	section("[-] Removed enums", s.removedEnums)
	section("[+] Added tables", s.addedTables)
	section("[-] Removed tables", s.removedTables)
	section("[+] Added views", s.addedViews)
	section("[-] Removed views", s.removedViews)
	for _, e := range s.enums {
		fmt.Fprintf(&b, "\n[*] Changed the `%s` enum\n", e.name)
		for _, line := range e.lines {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	for _, t := range s.tables {
		fmt.Fprintf(&b, "\n[*] Changed the `%s` table\n", t.name)
		for _, line := range t.lines {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	return strings.TrimLeft(b.String(), "\n")
}

func describeChanges(cols Pair[schema.ColumnWalker], changes ColumnChanges) string {
	var parts []string
	if changes.ArityChanged() {
		parts = append(parts, fmt.Sprintf("arity changed from %s to %s", cols.Previous.Arity(), cols.Next.Arity()))
	}
	if changes.TypeChanged() {
		parts = append(parts, fmt.Sprintf("type changed from `%s` to `%s`", typeName(cols.Previous.Type()), typeName(cols.Next.Type())))
	}
	if changes.DefaultChanged() {
		parts = append(parts, "default changed from `"+defaultOrNone(cols.Previous.Default())+"` to `"+defaultOrNone(cols.Next.Default())+"`")
	}
	if changes.AutoIncrementChanged() {
		parts = append(parts, "autoincrement changed")
	}
	return strings.Join(parts, ", ")
}

func typeName(t schema.ColumnType) string {
	if t.Native != nil {
		return t.Native.String()
	}
	if t.Family == schema.FamilyEnum {
		return t.EnumName
	}
	if t.Family == schema.FamilyUnsupported {
		return t.FullDataType
	}
	return t.Family.String()
}

func defaultOrNone(d *schema.ColumnDefault) string {
	if d == nil {
		return "None"
	}
	return schema.FormatDefault(d)
}

func indexNoun(idx schema.IndexWalker) string {
	switch idx.Type() {
	case schema.IndexUnique:
		return "unique index"
	case schema.IndexFulltext:
		return "fulltext index"
	default:
		return "index"
	}
}

func createdInSameMigration(m *Migration, t schema.TableID) bool {
	for _, step := range m.Steps {
		if ct, ok := step.(CreateTable); ok && ct.TableID == t {
			return true
		}
	}
	return false
}

func droppedInSameMigration(m *Migration, t schema.TableID) bool {
	for _, step := range m.Steps {
		if dt, ok := step.(DropTable); ok && dt.TableID == t {
			return true
		}
	}
	return false
}
