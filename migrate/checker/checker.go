package checker

import (
	"context"
	"fmt"

	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// Flavour holds the dialect specific parts of the checker.
type Flavour interface {
	CheckAlterColumn(alter migration.AlterColumn, columns migration.Pair[schema.ColumnWalker], plan *Plan, stepIndex int)
	CheckDropAndRecreateColumn(columns migration.Pair[schema.ColumnWalker], changes migration.ColumnChanges, plan *Plan, stepIndex int)
}

// CheckMigration plans the checks for the steps of m and evaluates them. With
// a nil inspector it runs offline and every finding assumes the worst.
func CheckMigration(ctx context.Context, m *migration.Migration, f Flavour, inspector Inspector) (*DestructiveChangeDiagnostics, error) {
	plan := BuildPlan(m, f)
	if inspector == nil {
		return plan.PureCheck(), nil
	}
	diagnostics, err := plan.Execute(ctx, inspector)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect database: %w", err)
	}
	return diagnostics, nil
}

// BuildPlan walks the steps and collects the checks they need.
func BuildPlan(m *migration.Migration, f Flavour) *Plan {
	plan := NewPlan()
	prev, next := m.Schemas.Previous, m.Schemas.Next

	for i, step := range m.Steps {
		switch st := step.(type) {
		case migration.DropTable:
			plan.PushWarning(NonEmptyTableDrop{Table: tableRef(prev.Table(st.TableID))}, i)

		case migration.DropColumn:
			plan.PushWarning(NonEmptyColumnDrop{Column: ColumnRefOf(prev.Column(st.ColumnID))}, i)

		case migration.AddColumn:
			checkAddColumn(next.Column(st.ColumnID), st.HasVirtualDefault, plan, i)

		case migration.AlterColumn:
			cols := migration.MakePair(prev.Column(st.ColumnIDs.Previous), next.Column(st.ColumnIDs.Next))
			f.CheckAlterColumn(st, cols, plan, i)

		case migration.DropAndRecreateColumn:
			cols := migration.MakePair(prev.Column(st.ColumnIDs.Previous), next.Column(st.ColumnIDs.Next))
			f.CheckDropAndRecreateColumn(cols, st.Changes, plan, i)

		case migration.DropPrimaryKey:
			plan.PushWarning(PrimaryKeyChange{Table: tableRef(prev.Table(st.TableIDs.Previous))}, i)

		case migration.RedefineTables:
			for _, rt := range st.Tables {
				checkRedefinedTable(rt, m.Schemas, plan, i)
			}

		case migration.CreateIndex:
			if st.TableCreated {
				continue
			}
			idx := next.Index(st.IndexID)
			if idx.IsUnique() {
				plan.PushWarning(UniqueConstraintAddition{Table: tableRef(idx.Table()), Columns: idx.ColumnNames()}, i)
			}

		case migration.AlterEnum:
			if len(st.DroppedVariants) == 0 {
				continue
			}
			prevEnum := prev.Enum(st.EnumIDs.Previous)
			var usages []ColumnRef
			for _, col := range prevEnum.UsedBy() {
				usages = append(usages, ColumnRefOf(col))
			}
			plan.PushWarning(EnumValueRemoval{
				Enum:   next.Enum(st.EnumIDs.Next).Name(),
				Values: st.DroppedVariants,
				Usages: usages,
			}, i)
		}
	}
	return plan
}

// checkAddColumn blocks required columns without a default, since existing rows
// would have no value for them.
func checkAddColumn(col schema.ColumnWalker, hasVirtualDefault bool, plan *Plan, stepIndex int) {
	if !col.Arity().IsRequired() || col.Default() != nil || col.IsAutoIncrement() {
		return
	}
	if hasVirtualDefault {
		plan.PushUnexecutable(AddedRequiredFieldToTableWithDefaultValue{Column: ColumnRefOf(col)}, stepIndex)
		return
	}
	plan.PushUnexecutable(AddedRequiredFieldToTable{Column: ColumnRefOf(col)}, stepIndex)
}

func checkRedefinedTable(rt migration.RedefineTable, schemas migration.Schemas, plan *Plan, stepIndex int) {
	prev, next := schemas.Previous, schemas.Next

	if rt.DroppedPrimaryKey {
		plan.PushWarning(PrimaryKeyChange{Table: tableRef(prev.Table(rt.TableIDs.Previous))}, stepIndex)
	}
	for _, id := range rt.AddedColumns {
		checkAddColumn(next.Column(id), false, plan, stepIndex)
	}
	for _, id := range rt.AddedColumnsWithVirtualDefaults {
		checkAddColumn(next.Column(id), true, plan, stepIndex)
	}
	for _, id := range rt.DroppedColumns {
		plan.PushWarning(NonEmptyColumnDrop{Column: ColumnRefOf(prev.Column(id))}, stepIndex)
	}

	for _, cp := range rt.ColumnPairs {
		cols := migration.MakePair(prev.Column(cp.ColumnIDs.Previous), next.Column(cp.ColumnIDs.Next))
		CheckColumnChange(cols, cp.Changes, cp.TypeChange, plan, stepIndex)
	}
}

// CheckColumnChange is the column check shared by in-place alters and table
// rebuilds: a column made required without a default may meet NULLs, and the
// type change decides between a risky cast and a recreate.
func CheckColumnChange(cols migration.Pair[schema.ColumnWalker], changes migration.ColumnChanges, typeChange migration.ColumnTypeChange, plan *Plan, stepIndex int) {
	madeRequired := cols.Previous.Arity().IsNullable() && cols.Next.Arity().IsRequired()
	if !changes.TypeChanged() && !madeRequired {
		return
	}

	if changes.ArityChanged() && cols.Next.Arity().IsRequired() && cols.Next.Default() == nil {
		plan.PushUnexecutable(MadeOptionalFieldRequired{Column: ColumnRefOf(cols.Previous)}, stepIndex)
	}

	switch typeChange {
	case migration.RiskyCast:
		plan.PushWarning(RiskyCast{
			Column:       ColumnRefOf(cols.Previous),
			PreviousType: TypeName(cols.Previous),
			NextType:     TypeName(cols.Next),
		}, stepIndex)
	case migration.NotCastable:
		plan.PushWarning(NotCastable{
			Column:       ColumnRefOf(cols.Previous),
			PreviousType: TypeName(cols.Previous),
			NextType:     TypeName(cols.Next),
		}, stepIndex)
	}
}

// CheckRecreatedColumn is the usual drop-and-recreate check: a required column
// without a default cannot be recreated on a table with rows, anything else loses data.
func CheckRecreatedColumn(cols migration.Pair[schema.ColumnWalker], plan *Plan, stepIndex int) {
	if cols.Next.Arity().IsRequired() && cols.Next.Default() == nil {
		plan.PushUnexecutable(DropAndRecreateRequiredColumn{Column: ColumnRefOf(cols.Previous)}, stepIndex)
		return
	}
	plan.PushWarning(NotCastable{
		Column:       ColumnRefOf(cols.Previous),
		PreviousType: TypeName(cols.Previous),
		NextType:     TypeName(cols.Next),
	}, stepIndex)
}

// TypeName is how column types appear in messages.
func TypeName(c schema.ColumnWalker) string {
	t := c.Type()
	switch {
	case t.Native != nil:
		return t.Native.String()
	case t.Family == schema.FamilyEnum:
		return t.EnumName
	case t.Family == schema.FamilyUnsupported:
		return t.FullDataType
	default:
		return t.Family.String()
	}
}

func tableRef(t schema.TableWalker) TableRef {
	return TableRef{Namespace: t.Namespace(), Table: t.Name()}
}

// ColumnRefOf returns the reference checks use for c.
func ColumnRefOf(c schema.ColumnWalker) ColumnRef {
	t := c.Table()
	return ColumnRef{Namespace: t.Namespace(), Table: t.Name(), Column: c.Name()}
}
