package schema

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/schema-engine/internal/enginerr"
)

// Validate checks the structural invariants of the model and returns a
// ValidationError listing every violation found.
func (s *Schema) Validate() error {
	var problems []string

	seen := make(map[TableID]map[string]bool)
	for _, c := range s.Columns {
		if int(c.TableID) < 0 || int(c.TableID) >= len(s.Tables) {
			problems = append(problems, fmt.Sprintf("column %q references unknown table %d", c.Column.Name, c.TableID))
			continue
		}
		names := seen[c.TableID]
		if names == nil {
			names = make(map[string]bool)
			seen[c.TableID] = names
		}
		if names[c.Column.Name] {
			problems = append(problems, fmt.Sprintf("duplicate column %q in table %q", c.Column.Name, s.Tables[c.TableID].Name))
		}
		names[c.Column.Name] = true
	}

	pks := make(map[TableID]int)
	for i, idx := range s.Indexes {
		table := s.Tables[idx.TableID].Name
		if idx.Type == IndexPrimaryKey {
			pks[idx.TableID]++
			if pks[idx.TableID] > 1 {
				problems = append(problems, fmt.Sprintf("table %q has more than one primary key", table))
			}
		}
		if len(idx.Columns) == 0 {
			problems = append(problems, fmt.Sprintf("index %q on %q has no columns", idx.Name, table))
		}
		for _, c := range idx.Columns {
			if !s.columnInTable(c.ColumnID, idx.TableID) {
				problems = append(problems, fmt.Sprintf("index %d (%q) on %q references a column outside the table", i, idx.Name, table))
			}
		}
	}

	for _, fk := range s.WalkForeignKeys() {
		raw := fk.get()
		table := s.Tables[raw.ConstrainedTable].Name
		if len(raw.Columns) == 0 {
			problems = append(problems, fmt.Sprintf("foreign key on %q has no columns", table))
			continue
		}
		for _, c := range raw.Columns {
			if !s.columnInTable(c.Constrained, raw.ConstrainedTable) {
				problems = append(problems, fmt.Sprintf("foreign key on %q constrains a column outside the table", table))
			}
			if !s.columnInTable(c.Referenced, raw.ReferencedTable) {
				problems = append(problems, fmt.Sprintf("foreign key on %q references a column outside %q", table, s.Tables[raw.ReferencedTable].Name))
			}
		}
		if !s.coveredByUniqueIndex(raw.ReferencedTable, fk.ReferencedColumnNames()) {
			problems = append(problems, fmt.Sprintf("foreign key on %q references columns (%s) of %q that are not unique",
				table, strings.Join(fk.ReferencedColumnNames(), ", "), s.Tables[raw.ReferencedTable].Name))
		}
	}

	for _, c := range s.Columns {
		if c.Column.Type.Family != FamilyEnum || s.Dialect == SQLite || s.Dialect == MSSQL {
			continue
		}
		if _, ok := s.FindEnum(s.Tables[c.TableID].Namespace, c.Column.Type.EnumName); !ok {
			problems = append(problems, fmt.Sprintf("column %q in %q uses unknown enum %q",
				c.Column.Name, s.Tables[c.TableID].Name, c.Column.Type.EnumName))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return enginerr.New(enginerr.ValidationError, "schema is invalid").
		With("problems", strings.Join(problems, "; "))
}

func (s *Schema) columnInTable(c ColumnID, t TableID) bool {
	return int(c) >= 0 && int(c) < len(s.Columns) && s.Columns[c].TableID == t
}

func (s *Schema) coveredByUniqueIndex(t TableID, columns []string) bool {
	for _, idx := range s.Table(t).Indexes() {
		if !idx.Type().IsUnique() {
			continue
		}
		if sameStringSet(idx.ColumnNames(), columns) {
			return true
		}
	}
	return false
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}
