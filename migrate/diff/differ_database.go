package diff

import (
	"strings"

	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

type tableKey struct {
	namespace string
	name      string
}

// ColumnPair is a column present on both sides of a table pair with its computed changes.
type ColumnPair struct {
	IDs        migration.Pair[schema.ColumnID]
	Changes    migration.ColumnChanges
	TypeChange migration.ColumnTypeChange
}

// DifferDatabase pairs up the elements of two schemas and caches the column comparisons.
type DifferDatabase struct {
	Schemas migration.Schemas
	flavour Flavour

	tablePairs    []migration.Pair[schema.TableID]
	createdTables []schema.TableID
	droppedTables []schema.TableID
	// Keyed by the next table ID of a pair.
	columnPairs      map[schema.TableID][]ColumnPair
	createdColumns   map[schema.TableID][]schema.ColumnID
	droppedColumns   map[schema.TableID][]schema.ColumnID
	tablesToRedefine map[schema.TableID]bool
}

// NewDifferDatabase pairs tables by (namespace, name) and columns by name, then asks
// the flavour which table pairs must be redefined.
func NewDifferDatabase(previous, next *schema.Schema, f Flavour) *DifferDatabase {
	db := &DifferDatabase{
		Schemas:          migration.MakePair(previous, next),
		flavour:          f,
		columnPairs:      make(map[schema.TableID][]ColumnPair),
		createdColumns:   make(map[schema.TableID][]schema.ColumnID),
		droppedColumns:   make(map[schema.TableID][]schema.ColumnID),
		tablesToRedefine: make(map[schema.TableID]bool),
	}

	db.buildTables()
	db.buildColumns()

	for _, pair := range f.TablesToRedefine(db) {
		db.tablesToRedefine[pair.Next] = true
	}
	return db
}

func (db *DifferDatabase) key(t schema.TableWalker) tableKey {
	name := t.Name()
	if db.flavour.LowerCasesTableNames() {
		name = strings.ToLower(name)
	}
	return tableKey{namespace: t.Namespace(), name: name}
}

func (db *DifferDatabase) buildTables() {
	prev := make(map[tableKey]schema.TableID)
	for _, t := range db.Schemas.Previous.WalkTables() {
		if db.flavour.TableShouldBeIgnored(t.Name()) {
			continue
		}
		prev[db.key(t)] = t.ID
	}

	seen := make(map[tableKey]bool)
	for _, t := range db.Schemas.Next.WalkTables() {
		if db.flavour.TableShouldBeIgnored(t.Name()) {
			continue
		}
		k := db.key(t)
		seen[k] = true
		if prevID, ok := prev[k]; ok {
			db.tablePairs = append(db.tablePairs, migration.MakePair(prevID, t.ID))
		} else {
			db.createdTables = append(db.createdTables, t.ID)
		}
	}

	// Dropped tables keep the previous schema's order.
	for _, t := range db.Schemas.Previous.WalkTables() {
		if db.flavour.TableShouldBeIgnored(t.Name()) {
			continue
		}
		if !seen[db.key(t)] {
			db.droppedTables = append(db.droppedTables, t.ID)
		}
	}
}

func (db *DifferDatabase) buildColumns() {
	for _, pair := range db.tablePairs {
		tables := db.tableWalkers(pair)

		prevCols := make(map[string]schema.ColumnWalker)
		for _, c := range tables.Previous.Columns() {
			prevCols[c.Name()] = c
		}

		nextNames := make(map[string]bool)
		for _, c := range tables.Next.Columns() {
			nextNames[c.Name()] = true
			p, ok := prevCols[c.Name()]
			if !ok {
				db.createdColumns[pair.Next] = append(db.createdColumns[pair.Next], c.ID)
				continue
			}
			cols := migration.MakePair(p, c)
			changes, typeChange := columnChanges(cols, db.flavour)
			db.columnPairs[pair.Next] = append(db.columnPairs[pair.Next], ColumnPair{
				IDs:        migration.MakePair(p.ID, c.ID),
				Changes:    changes,
				TypeChange: typeChange,
			})
		}

		for _, c := range tables.Previous.Columns() {
			if !nextNames[c.Name()] {
				db.droppedColumns[pair.Next] = append(db.droppedColumns[pair.Next], c.ID)
			}
		}
	}
}

func (db *DifferDatabase) tableWalkers(pair migration.Pair[schema.TableID]) migration.Pair[schema.TableWalker] {
	return migration.MakePair(db.Schemas.Previous.Table(pair.Previous), db.Schemas.Next.Table(pair.Next))
}

// Flavour returns the flavour the database was built with.
func (db *DifferDatabase) Flavour() Flavour {
	return db.flavour
}

// CreatedTables returns tables only present in the next schema, in next-schema order.
func (db *DifferDatabase) CreatedTables() []schema.TableWalker {
	out := make([]schema.TableWalker, len(db.createdTables))
	for i, id := range db.createdTables {
		out[i] = db.Schemas.Next.Table(id)
	}
	return out
}

// DroppedTables returns tables only present in the previous schema, in previous-schema order.
func (db *DifferDatabase) DroppedTables() []schema.TableWalker {
	out := make([]schema.TableWalker, len(db.droppedTables))
	for i, id := range db.droppedTables {
		out[i] = db.Schemas.Previous.Table(id)
	}
	return out
}

// TablePairs returns a differ for every table present on both sides, in next-schema order.
func (db *DifferDatabase) TablePairs() []*TableDiffer {
	out := make([]*TableDiffer, len(db.tablePairs))
	for i, pair := range db.tablePairs {
		out[i] = &TableDiffer{db: db, IDs: pair, Tables: db.tableWalkers(pair)}
	}
	return out
}

// NonRedefinedTablePairs returns the table pairs that are altered in place.
func (db *DifferDatabase) NonRedefinedTablePairs() []*TableDiffer {
	var out []*TableDiffer
	for _, td := range db.TablePairs() {
		if !db.tablesToRedefine[td.IDs.Next] {
			out = append(out, td)
		}
	}
	return out
}

// RedefinedTablePairs returns the table pairs that must be rebuilt.
func (db *DifferDatabase) RedefinedTablePairs() []*TableDiffer {
	var out []*TableDiffer
	for _, td := range db.TablePairs() {
		if db.tablesToRedefine[td.IDs.Next] {
			out = append(out, td)
		}
	}
	return out
}

// IsRedefined reports whether the next-schema table is rebuilt.
func (db *DifferDatabase) IsRedefined(next schema.TableID) bool {
	return db.tablesToRedefine[next]
}

// TableIsCreated reports whether the next-schema table is new.
func (db *DifferDatabase) TableIsCreated(next schema.TableID) bool {
	for _, id := range db.createdTables {
		if id == next {
			return true
		}
	}
	return false
}

// TableIsDropped reports whether the previous-schema table goes away.
func (db *DifferDatabase) TableIsDropped(prev schema.TableID) bool {
	for _, id := range db.droppedTables {
		if id == prev {
			return true
		}
	}
	return false
}

// EnumPairs matches enums by namespace and name. Created and dropped enums are
// returned separately, in next and previous order respectively.
func (db *DifferDatabase) EnumPairs() (pairs []migration.Pair[schema.EnumWalker], created, dropped []schema.EnumWalker) {
	prev := make(map[tableKey]schema.EnumWalker)
	for _, e := range db.Schemas.Previous.WalkEnums() {
		prev[tableKey{e.Namespace(), e.Name()}] = e
	}
	seen := make(map[tableKey]bool)
	for _, e := range db.Schemas.Next.WalkEnums() {
		k := tableKey{e.Namespace(), e.Name()}
		seen[k] = true
		if p, ok := prev[k]; ok {
			pairs = append(pairs, migration.MakePair(p, e))
		} else {
			created = append(created, e)
		}
	}
	for _, e := range db.Schemas.Previous.WalkEnums() {
		if !seen[tableKey{e.Namespace(), e.Name()}] {
			dropped = append(dropped, e)
		}
	}
	return pairs, created, dropped
}
