// Package diff computes the ordered list of migration steps that turns one
// schema into another.
package diff

import (
	"github.com/satishbabariya/schema-engine/internal/debug"
	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// Diff computes the steps from previous to next. Diffing a schema against
// itself yields no steps.
func Diff(previous, next *schema.Schema, f Flavour) *migration.Migration {
	db := NewDifferDatabase(previous, next, f)
	d := &differ{db: db, flavour: f}

	d.pushEnumSteps()
	d.pushCreatedTables()
	d.pushDroppedTables()
	d.pushAlteredTables()
	d.pushRedefinedTables()
	d.pushViewSteps()

	steps := sortSteps(d.steps, db.Schemas)
	debug.Debug("Computed migration steps", "count", len(steps), "redefined", len(db.RedefinedTablePairs()))
	return &migration.Migration{Schemas: db.Schemas, Steps: steps}
}

type differ struct {
	db      *DifferDatabase
	flavour Flavour
	steps   []migration.Step
}

func (d *differ) push(s migration.Step) {
	d.steps = append(d.steps, s)
}

func (d *differ) pushEnumSteps() {
	if !d.flavour.SupportsEnums() {
		return
	}
	pairs, created, dropped := d.db.EnumPairs()
	for _, e := range created {
		d.push(migration.CreateEnum{EnumID: e.ID})
	}
	for _, pair := range pairs {
		createdVariants := missing(pair.Next.Variants(), pair.Previous.Variants())
		droppedVariants := missing(pair.Previous.Variants(), pair.Next.Variants())
		if len(createdVariants) == 0 && len(droppedVariants) == 0 {
			continue
		}
		d.push(migration.AlterEnum{
			EnumIDs:                 migration.MakePair(pair.Previous.ID, pair.Next.ID),
			CreatedVariants:         createdVariants,
			DroppedVariants:         droppedVariants,
			PreviousUsagesAsDefault: d.enumDefaultUsages(pair.Previous, droppedVariants),
		})
	}
	for _, e := range dropped {
		d.push(migration.DropEnum{EnumID: e.ID})
	}
}

// enumDefaultUsages finds every column of the enum that has a default when
// variants are going away. Moving a column to the shrunk type fails while it
// holds a default of the old type, whichever variant the default names. This
// includes columns of tables and columns the migration drops later.
func (d *differ) enumDefaultUsages(prev schema.EnumWalker, droppedVariants []string) []migration.EnumDefaultUsage {
	if len(droppedVariants) == 0 {
		return nil
	}

	var usages []migration.EnumDefaultUsage
	for _, col := range prev.UsedBy() {
		if col.Default() == nil {
			continue
		}
		usage := migration.EnumDefaultUsage{Previous: col.ID}
		prevTable := col.Table()
		if t, ok := d.db.Schemas.Next.FindTable(prevTable.Namespace(), prevTable.Name()); ok {
			if nextCol, ok := t.Column(col.Name()); ok {
				id := nextCol.ID
				usage.Next = &id
			}
		}
		usages = append(usages, usage)
	}
	return usages
}

func (d *differ) pushCreatedTables() {
	for _, t := range d.db.CreatedTables() {
		d.push(migration.CreateTable{TableID: t.ID})

		if d.flavour.ShouldPushForeignKeysFromCreatedTables() {
			for _, fk := range t.ForeignKeys() {
				d.push(migration.CreateForeignKey{ForeignKeyID: fk.ID})
			}
		}
		if d.flavour.ShouldCreateIndexesFromCreatedTables() {
			for _, idx := range t.SecondaryIndexes() {
				d.push(migration.CreateIndex{IndexID: idx.ID, TableCreated: true})
			}
		}
	}
}

func (d *differ) pushDroppedTables() {
	for _, t := range d.db.DroppedTables() {
		d.push(migration.DropTable{TableID: t.ID})

		if d.flavour.ShouldDropForeignKeysFromDroppedTables() {
			for _, fk := range t.ForeignKeys() {
				d.push(migration.DropForeignKey{ForeignKeyID: fk.ID})
			}
		}
	}
}

func (d *differ) pushAlteredTables() {
	for _, td := range d.db.NonRedefinedTablePairs() {
		d.pushForeignKeySteps(td)

		for _, col := range td.DroppedColumns() {
			d.push(migration.DropColumn{TableIDs: td.IDs, ColumnID: col.ID})
		}
		for _, col := range td.AddedColumns() {
			d.push(migration.AddColumn{
				TableIDs:          td.IDs,
				ColumnID:          col.ID,
				HasVirtualDefault: col.Column().VirtualDefault != "",
			})
		}
		for _, cp := range td.ColumnPairs() {
			if !cp.Changes.DiffersInSomething() {
				continue
			}
			if cp.TypeChange == migration.NotCastable {
				d.push(migration.DropAndRecreateColumn{TableIDs: td.IDs, ColumnIDs: cp.IDs, Changes: cp.Changes})
				continue
			}
			d.push(migration.AlterColumn{TableIDs: td.IDs, ColumnIDs: cp.IDs, Changes: cp.Changes, TypeChange: cp.TypeChange})
		}

		if td.DroppedPrimaryKey() {
			d.push(migration.DropPrimaryKey{TableIDs: td.IDs})
		}
		if td.CreatedPrimaryKey() {
			d.push(migration.AddPrimaryKey{TableIDs: td.IDs})
		}

		pairs, created, dropped := td.IndexPairs()
		for _, idx := range dropped {
			d.push(migration.DropIndex{IndexID: idx.ID})
		}
		for _, idx := range created {
			d.push(migration.CreateIndex{IndexID: idx.ID})
		}
		for _, pair := range pairs {
			if pair.Previous.Name() != pair.Next.Name() {
				d.push(migration.RenameIndex{IndexIDs: migration.MakePair(pair.Previous.ID, pair.Next.ID)})
			}
		}
	}
}

func (d *differ) pushForeignKeySteps(td *TableDiffer) {
	pairs, created, dropped := td.ForeignKeyPairs()
	for _, fk := range dropped {
		d.push(migration.DropForeignKey{ForeignKeyID: fk.ID})
	}
	for _, fk := range created {
		d.push(migration.CreateForeignKey{ForeignKeyID: fk.ID})
	}
	if !d.flavour.CanRenameForeignKey() {
		return
	}
	for _, pair := range pairs {
		prevName, nextName := pair.Previous.ConstraintName(), pair.Next.ConstraintName()
		if prevName != "" && nextName != "" && prevName != nextName {
			d.push(migration.RenameForeignKey{ForeignKeyIDs: migration.MakePair(pair.Previous.ID, pair.Next.ID)})
		}
	}
}

func (d *differ) pushRedefinedTables() {
	redefined := d.db.RedefinedTablePairs()
	if len(redefined) == 0 {
		return
	}

	step := migration.RedefineTables{}
	for _, td := range redefined {
		rt := migration.RedefineTable{
			TableIDs:          td.IDs,
			DroppedPrimaryKey: td.DroppedPrimaryKey(),
		}
		for _, col := range td.AddedColumns() {
			if col.Column().VirtualDefault != "" {
				rt.AddedColumnsWithVirtualDefaults = append(rt.AddedColumnsWithVirtualDefaults, col.ID)
			} else {
				rt.AddedColumns = append(rt.AddedColumns, col.ID)
			}
		}
		for _, col := range td.DroppedColumns() {
			rt.DroppedColumns = append(rt.DroppedColumns, col.ID)
		}
		for _, cp := range td.ColumnPairs() {
			rt.ColumnPairs = append(rt.ColumnPairs, migration.RedefineColumn{
				ColumnIDs:  cp.IDs,
				Changes:    cp.Changes,
				TypeChange: cp.TypeChange,
			})
		}
		step.Tables = append(step.Tables, rt)
	}
	d.push(step)
}

// pushViewSteps replaces views whose definition changed. Views are never altered in place.
func (d *differ) pushViewSteps() {
	prev := make(map[tableKey]schema.ViewWalker)
	for _, v := range d.db.Schemas.Previous.WalkViews() {
		prev[tableKey{v.Namespace(), v.Name()}] = v
	}
	seen := make(map[tableKey]bool)
	for _, v := range d.db.Schemas.Next.WalkViews() {
		k := tableKey{v.Namespace(), v.Name()}
		seen[k] = true
		p, ok := prev[k]
		if !ok {
			d.push(migration.CreateView{ViewID: v.ID})
			continue
		}
		if normalizeExpression(p.Definition()) != normalizeExpression(v.Definition()) {
			d.push(migration.DropView{ViewID: p.ID})
			d.push(migration.CreateView{ViewID: v.ID})
		}
	}
	for _, v := range d.db.Schemas.Previous.WalkViews() {
		if !seen[tableKey{v.Namespace(), v.Name()}] {
			d.push(migration.DropView{ViewID: v.ID})
		}
	}
}

// missing returns the elements of a that are not in b, in a's order.
func missing(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	var out []string
	for _, s := range a {
		if !in[s] {
			out = append(out, s)
		}
	}
	return out
}
