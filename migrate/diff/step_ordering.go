package diff

import (
	"sort"

	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// sortSteps orders steps by kind. The sort is stable, so steps of the same kind
// keep the order they were produced in.
func sortSteps(steps []migration.Step, schemas migration.Schemas) []migration.Step {
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Kind() < steps[j].Kind()
	})
	return moveUniqueDropsAfterPrimaryKeys(steps, schemas)
}

// moveUniqueDropsAfterPrimaryKeys keeps a unique index covering exactly the
// columns of a new primary key until that key exists. Some databases refuse to
// drop the only unique constraint a referencing foreign key relies on.
func moveUniqueDropsAfterPrimaryKeys(steps []migration.Step, schemas migration.Schemas) []migration.Step {
	for i := 0; i < len(steps); i++ {
		drop, ok := steps[i].(migration.DropIndex)
		if !ok {
			continue
		}
		idx := schemas.Previous.Index(drop.IndexID)
		if idx.Type() != schema.IndexUnique {
			continue
		}
		target := -1
		for j := i + 1; j < len(steps); j++ {
			add, ok := steps[j].(migration.AddPrimaryKey)
			if !ok {
				continue
			}
			pk, ok := schemas.Next.Table(add.TableIDs.Next).PrimaryKey()
			if ok && idx.Table().Name() == pk.Table().Name() && equalStrings(idx.ColumnNames(), pk.ColumnNames()) {
				target = j
				break
			}
		}
		if target < 0 {
			continue
		}
		moved := steps[i]
		copy(steps[i:target], steps[i+1:target+1])
		steps[target] = moved
		i--
	}
	return steps
}
