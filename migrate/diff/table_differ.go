package diff

import (
	"strings"

	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// TableDiffer compares the two versions of a table present on both sides.
type TableDiffer struct {
	db     *DifferDatabase
	IDs    migration.Pair[schema.TableID]
	Tables migration.Pair[schema.TableWalker]
}

// ColumnPairs returns the columns present on both sides, in next-schema order.
func (td *TableDiffer) ColumnPairs() []ColumnPair {
	return td.db.columnPairs[td.IDs.Next]
}

// ColumnWalkers resolves a column pair into walkers.
func (td *TableDiffer) ColumnWalkers(cp ColumnPair) migration.Pair[schema.ColumnWalker] {
	return migration.MakePair(td.db.Schemas.Previous.Column(cp.IDs.Previous), td.db.Schemas.Next.Column(cp.IDs.Next))
}

// AddedColumns returns columns only in the next table.
func (td *TableDiffer) AddedColumns() []schema.ColumnWalker {
	ids := td.db.createdColumns[td.IDs.Next]
	out := make([]schema.ColumnWalker, len(ids))
	for i, id := range ids {
		out[i] = td.db.Schemas.Next.Column(id)
	}
	return out
}

// DroppedColumns returns columns only in the previous table.
func (td *TableDiffer) DroppedColumns() []schema.ColumnWalker {
	ids := td.db.droppedColumns[td.IDs.Next]
	out := make([]schema.ColumnWalker, len(ids))
	for i, id := range ids {
		out[i] = td.db.Schemas.Previous.Column(id)
	}
	return out
}

// AnyColumnChanged reports whether some paired column differs.
func (td *TableDiffer) AnyColumnChanged() bool {
	for _, cp := range td.ColumnPairs() {
		if cp.Changes.DiffersInSomething() {
			return true
		}
	}
	return false
}

// PrimaryKeys returns the primary keys on both sides, if present.
func (td *TableDiffer) PrimaryKeys() (prev, next schema.IndexWalker, hasPrev, hasNext bool) {
	prev, hasPrev = td.Tables.Previous.PrimaryKey()
	next, hasNext = td.Tables.Next.PrimaryKey()
	return prev, next, hasPrev, hasNext
}

// PrimaryKeyChanged reports whether the primary key was added, removed, or now
// covers different columns.
func (td *TableDiffer) PrimaryKeyChanged() bool {
	return td.DroppedPrimaryKey() || td.CreatedPrimaryKey()
}

// DroppedPrimaryKey reports whether the previous primary key has to go.
func (td *TableDiffer) DroppedPrimaryKey() bool {
	prev, next, hasPrev, hasNext := td.PrimaryKeys()
	if !hasPrev {
		return false
	}
	return !hasNext || !primaryKeysMatch(prev, next) || td.primaryKeyColumnRecreated()
}

// CreatedPrimaryKey reports whether the next primary key has to be created.
func (td *TableDiffer) CreatedPrimaryKey() bool {
	prev, next, hasPrev, hasNext := td.PrimaryKeys()
	if !hasNext {
		return false
	}
	return !hasPrev || !primaryKeysMatch(prev, next) || td.primaryKeyColumnRecreated()
}

func (td *TableDiffer) primaryKeyColumnRecreated() bool {
	for _, cp := range td.ColumnPairs() {
		if cp.TypeChange == migration.NotCastable && td.db.Schemas.Next.Column(cp.IDs.Next).IsPartOfPrimaryKey() {
			return true
		}
	}
	return false
}

func primaryKeysMatch(a, b schema.IndexWalker) bool {
	return sameColumns(a, b)
}

func sameColumns(a, b schema.IndexWalker) bool {
	ac, bc := a.IndexColumns(), b.IndexColumns()
	if len(ac) != len(bc) {
		return false
	}
	an, bn := a.ColumnNames(), b.ColumnNames()
	for i := range ac {
		if an[i] != bn[i] {
			return false
		}
		if sortOrder(ac[i].SortOrder) != sortOrder(bc[i].SortOrder) || ac[i].Length != bc[i].Length {
			return false
		}
	}
	return true
}

func sortOrder(s schema.SortOrder) schema.SortOrder {
	if s == "" {
		return schema.Asc
	}
	return s
}

// IndexPairs returns secondary indexes matched across both sides: first by name
// when their definitions agree, then by definition for renames. Unmatched indexes
// are returned as created and dropped.
func (td *TableDiffer) IndexPairs() (pairs []migration.Pair[schema.IndexWalker], created, dropped []schema.IndexWalker) {
	prevIdx := td.Tables.Previous.SecondaryIndexes()
	nextIdx := td.Tables.Next.SecondaryIndexes()
	f := td.db.flavour

	prevMatched := make([]bool, len(prevIdx))
	nextMatched := make([]bool, len(nextIdx))
	prevNames := make(map[string]bool, len(prevIdx))
	for _, p := range prevIdx {
		prevNames[p.Name()] = true
	}
	nextNames := make(map[string]bool, len(nextIdx))
	for _, n := range nextIdx {
		nextNames[n.Name()] = true
	}

	for ni, n := range nextIdx {
		for pi, p := range prevIdx {
			if prevMatched[pi] || p.Name() != n.Name() {
				continue
			}
			if f.IndexesMatch(p, n) && !td.indexColumnsRecreated(n) {
				prevMatched[pi], nextMatched[ni] = true, true
				pairs = append(pairs, migration.MakePair(p, n))
			}
			break
		}
	}

	// A rename only takes names that are free on both sides, so two indexes
	// trading names are dropped and recreated rather than renamed in a cycle.
	if f.CanRenameIndex() {
		for ni, n := range nextIdx {
			if nextMatched[ni] || prevNames[n.Name()] {
				continue
			}
			for pi, p := range prevIdx {
				if prevMatched[pi] || nextNames[p.Name()] {
					continue
				}
				if f.IndexesMatch(p, n) && !td.indexColumnsRecreated(n) {
					prevMatched[pi], nextMatched[ni] = true, true
					pairs = append(pairs, migration.MakePair(p, n))
					break
				}
			}
		}
	}

	for ni, n := range nextIdx {
		if !nextMatched[ni] {
			created = append(created, n)
		}
	}
	for pi, p := range prevIdx {
		if !prevMatched[pi] {
			dropped = append(dropped, p)
		}
	}
	return pairs, created, dropped
}

func (td *TableDiffer) indexColumnsRecreated(idx schema.IndexWalker) bool {
	for _, col := range idx.Columns() {
		for _, cp := range td.ColumnPairs() {
			if cp.IDs.Next == col.ID && cp.TypeChange == migration.NotCastable {
				return true
			}
		}
	}
	return false
}

// ForeignKeyPairs matches foreign keys by constrained columns, referenced table,
// referenced columns and actions. Unmatched keys are created or dropped.
func (td *TableDiffer) ForeignKeyPairs() (pairs []migration.Pair[schema.ForeignKeyWalker], created, dropped []schema.ForeignKeyWalker) {
	prevFKs := td.Tables.Previous.ForeignKeys()
	nextFKs := td.Tables.Next.ForeignKeys()
	prevMatched := make([]bool, len(prevFKs))

	for _, n := range nextFKs {
		found := false
		for pi, p := range prevFKs {
			if prevMatched[pi] || !td.foreignKeysMatch(p, n) {
				continue
			}
			prevMatched[pi] = true
			pairs = append(pairs, migration.MakePair(p, n))
			found = true
			break
		}
		if !found {
			created = append(created, n)
		}
	}
	for pi, p := range prevFKs {
		if !prevMatched[pi] {
			dropped = append(dropped, p)
		}
	}
	return pairs, created, dropped
}

// CreatedForeignKeys returns foreign keys only present in the next table.
func (td *TableDiffer) CreatedForeignKeys() []schema.ForeignKeyWalker {
	_, created, _ := td.ForeignKeyPairs()
	return created
}

// DroppedForeignKeys returns foreign keys only present in the previous table.
func (td *TableDiffer) DroppedForeignKeys() []schema.ForeignKeyWalker {
	_, _, dropped := td.ForeignKeyPairs()
	return dropped
}

func (td *TableDiffer) foreignKeysMatch(p, n schema.ForeignKeyWalker) bool {
	prevRef, nextRef := p.ReferencedTable(), n.ReferencedTable()
	if td.db.key(prevRef) != td.db.key(nextRef) {
		return false
	}
	if !equalStrings(p.ConstrainedColumnNames(), n.ConstrainedColumnNames()) ||
		!equalStrings(p.ReferencedColumnNames(), n.ReferencedColumnNames()) {
		return false
	}
	if p.OnDelete() != n.OnDelete() || p.OnUpdate() != n.OnUpdate() {
		return false
	}
	// A referenced or constrained column that gets recreated takes the key with it.
	for _, c := range append(n.ConstrainedColumns(), n.ReferencedColumns()...) {
		if td.db.columnRecreated(c) {
			return false
		}
	}
	return true
}

func (db *DifferDatabase) columnRecreated(c schema.ColumnWalker) bool {
	for _, cp := range db.columnPairs[c.Table().ID] {
		if cp.IDs.Next == c.ID && cp.TypeChange == migration.NotCastable {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IndexesMatchDefault is the structural comparison most flavours use: same
// uniqueness, same algorithm, same columns with the same options.
func IndexesMatchDefault(a, b schema.IndexWalker) bool {
	if a.Type() != b.Type() {
		return false
	}
	if !strings.EqualFold(algorithm(a), algorithm(b)) {
		return false
	}
	if !sameColumns(a, b) {
		return false
	}
	ac, bc := a.IndexColumns(), b.IndexColumns()
	for i := range ac {
		if !strings.EqualFold(ac[i].OperatorClass, bc[i].OperatorClass) {
			return false
		}
	}
	return true
}

func algorithm(i schema.IndexWalker) string {
	if a := i.Algorithm(); a != "" {
		return a
	}
	return "btree"
}
