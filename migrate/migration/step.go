// Package migration defines the migration steps produced by the differ and consumed
// by the checker and the renderers.
package migration

import (
	"fmt"

	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// Pair holds the previous and next version of something that exists in both schemas.
type Pair[T any] struct {
	Previous T
	Next     T
}

// MakePair builds a Pair.
func MakePair[T any](previous, next T) Pair[T] {
	return Pair[T]{Previous: previous, Next: next}
}

// MapPair applies f to both sides of p.
func MapPair[T, U any](p Pair[T], f func(T) U) Pair[U] {
	return Pair[U]{Previous: f(p.Previous), Next: f(p.Next)}
}

// Schemas is the pair of schemas a step list was computed from. Step IDs on the
// "previous" side index Schemas.Previous, and "next" IDs index Schemas.Next.
type Schemas = Pair[*schema.Schema]

// StepKind orders steps. Sorting a step list by kind yields a dependency-safe order.
type StepKind int

const (
	KindDropView StepKind = iota
	KindCreateEnum
	KindAlterEnum
	KindDropForeignKey
	KindDropIndex
	KindDropPrimaryKey
	KindDropColumn
	KindAddColumn
	KindAlterColumn
	KindDropAndRecreateColumn
	KindAddPrimaryKey
	KindDropTable
	KindDropEnum
	KindCreateTable
	KindRedefineTables
	KindCreateIndex
	KindRenameForeignKey
	KindCreateForeignKey
	KindRenameIndex
	KindCreateView
)

var kindNames = map[StepKind]string{
	KindDropView:              "DropView",
	KindCreateEnum:            "CreateEnum",
	KindAlterEnum:             "AlterEnum",
	KindDropForeignKey:        "DropForeignKey",
	KindDropIndex:             "DropIndex",
	KindDropPrimaryKey:        "DropPrimaryKey",
	KindDropColumn:            "DropColumn",
	KindAddColumn:             "AddColumn",
	KindAlterColumn:           "AlterColumn",
	KindDropAndRecreateColumn: "DropAndRecreateColumn",
	KindAddPrimaryKey:         "AddPrimaryKey",
	KindDropTable:             "DropTable",
	KindDropEnum:              "DropEnum",
	KindCreateTable:           "CreateTable",
	KindRedefineTables:        "RedefineTables",
	KindCreateIndex:           "CreateIndex",
	KindRenameForeignKey:      "RenameForeignKey",
	KindCreateForeignKey:      "CreateForeignKey",
	KindRenameIndex:           "RenameIndex",
	KindCreateView:            "CreateView",
}

func (k StepKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("StepKind(%d)", int(k))
}

// Step is one unit of schema change.
type Step interface {
	Kind() StepKind
}

// CreateTable creates a table of the next schema.
type CreateTable struct {
	TableID schema.TableID
}

// DropTable drops a table of the previous schema.
type DropTable struct {
	TableID schema.TableID
}

// RedefineTables rebuilds tables by copy (SQLite, and Cockroach primary key changes).
type RedefineTables struct {
	Tables []RedefineTable
}

// RedefineTable describes one table rebuild.
type RedefineTable struct {
	TableIDs                        Pair[schema.TableID]
	AddedColumns                    []schema.ColumnID
	AddedColumnsWithVirtualDefaults []schema.ColumnID
	DroppedColumns                  []schema.ColumnID
	DroppedPrimaryKey               bool
	ColumnPairs                     []RedefineColumn
}

// RedefineColumn is a column present on both sides of a redefined table.
type RedefineColumn struct {
	ColumnIDs  Pair[schema.ColumnID]
	Changes    ColumnChanges
	TypeChange ColumnTypeChange
}

// AddColumn adds a next-schema column to an existing table.
type AddColumn struct {
	TableIDs          Pair[schema.TableID]
	ColumnID          schema.ColumnID
	HasVirtualDefault bool
}

// DropColumn drops a previous-schema column from an existing table.
type DropColumn struct {
	TableIDs Pair[schema.TableID]
	ColumnID schema.ColumnID
}

// AlterColumn changes a column in place.
type AlterColumn struct {
	TableIDs   Pair[schema.TableID]
	ColumnIDs  Pair[schema.ColumnID]
	Changes    ColumnChanges
	TypeChange ColumnTypeChange
}

// DropAndRecreateColumn replaces a column whose type change cannot be cast.
type DropAndRecreateColumn struct {
	TableIDs  Pair[schema.TableID]
	ColumnIDs Pair[schema.ColumnID]
	Changes   ColumnChanges
}

// AddPrimaryKey adds the next-schema primary key of an existing table.
type AddPrimaryKey struct {
	TableIDs Pair[schema.TableID]
}

// DropPrimaryKey drops the previous-schema primary key of an existing table.
type DropPrimaryKey struct {
	TableIDs Pair[schema.TableID]
}

// CreateIndex creates a next-schema index.
type CreateIndex struct {
	IndexID schema.IndexID
	// TableCreated is set when the index belongs to a table created in the same migration.
	TableCreated bool
}

// DropIndex drops a previous-schema index.
type DropIndex struct {
	IndexID schema.IndexID
}

// RenameIndex renames an index whose definition did not change.
type RenameIndex struct {
	IndexIDs Pair[schema.IndexID]
}

// CreateForeignKey adds a next-schema foreign key.
type CreateForeignKey struct {
	ForeignKeyID schema.ForeignKeyID
}

// DropForeignKey drops a previous-schema foreign key.
type DropForeignKey struct {
	ForeignKeyID schema.ForeignKeyID
}

// RenameForeignKey renames a foreign key constraint whose definition did not change.
type RenameForeignKey struct {
	ForeignKeyIDs Pair[schema.ForeignKeyID]
}

// CreateEnum creates a next-schema enum.
type CreateEnum struct {
	EnumID schema.EnumID
}

// DropEnum drops a previous-schema enum.
type DropEnum struct {
	EnumID schema.EnumID
}

// AlterEnum adds and removes variants of an enum present on both sides.
type AlterEnum struct {
	EnumIDs         Pair[schema.EnumID]
	CreatedVariants []string
	DroppedVariants []string
	// PreviousUsagesAsDefault lists the columns of the enum carrying a default
	// when variants are dropped. Their defaults are dropped before the change
	// and restored afterwards when the next schema still has the column.
	PreviousUsagesAsDefault []EnumDefaultUsage
}

// EnumDefaultUsage is a column defaulting to an enum variant.
type EnumDefaultUsage struct {
	Previous schema.ColumnID
	Next     *schema.ColumnID
}

// DropView drops a previous-schema view.
type DropView struct {
	ViewID schema.ViewID
}

// CreateView creates a next-schema view.
type CreateView struct {
	ViewID schema.ViewID
}

func (CreateTable) Kind() StepKind           { return KindCreateTable }
func (DropTable) Kind() StepKind             { return KindDropTable }
func (RedefineTables) Kind() StepKind        { return KindRedefineTables }
func (AddColumn) Kind() StepKind             { return KindAddColumn }
func (DropColumn) Kind() StepKind            { return KindDropColumn }
func (AlterColumn) Kind() StepKind           { return KindAlterColumn }
func (DropAndRecreateColumn) Kind() StepKind { return KindDropAndRecreateColumn }
func (AddPrimaryKey) Kind() StepKind         { return KindAddPrimaryKey }
func (DropPrimaryKey) Kind() StepKind        { return KindDropPrimaryKey }
func (CreateIndex) Kind() StepKind           { return KindCreateIndex }
func (DropIndex) Kind() StepKind             { return KindDropIndex }
func (RenameIndex) Kind() StepKind           { return KindRenameIndex }
func (CreateForeignKey) Kind() StepKind      { return KindCreateForeignKey }
func (DropForeignKey) Kind() StepKind        { return KindDropForeignKey }
func (RenameForeignKey) Kind() StepKind      { return KindRenameForeignKey }
func (CreateEnum) Kind() StepKind            { return KindCreateEnum }
func (DropEnum) Kind() StepKind              { return KindDropEnum }
func (AlterEnum) Kind() StepKind             { return KindAlterEnum }
func (DropView) Kind() StepKind              { return KindDropView }
func (CreateView) Kind() StepKind            { return KindCreateView }

// ColumnChanges is the set of column properties that differ between two versions.
type ColumnChanges uint8

const (
	ChangedType ColumnChanges = 1 << iota
	ChangedArity
	ChangedDefault
	ChangedAutoIncrement
)

// TypeChanged reports a type difference.
func (c ColumnChanges) TypeChanged() bool { return c&ChangedType != 0 }

// ArityChanged reports a nullability or list difference.
func (c ColumnChanges) ArityChanged() bool { return c&ChangedArity != 0 }

// DefaultChanged reports a default difference.
func (c ColumnChanges) DefaultChanged() bool { return c&ChangedDefault != 0 }

// AutoIncrementChanged reports an autoincrement difference.
func (c ColumnChanges) AutoIncrementChanged() bool { return c&ChangedAutoIncrement != 0 }

// OnlyDefaultChanged reports that nothing but the default differs.
func (c ColumnChanges) OnlyDefaultChanged() bool { return c == ChangedDefault }

// OnlyTypeChanged reports that nothing but the type differs.
func (c ColumnChanges) OnlyTypeChanged() bool { return c == ChangedType }

// DiffersInSomething reports whether any property differs.
func (c ColumnChanges) DiffersInSomething() bool { return c != 0 }

func (c ColumnChanges) String() string {
	var parts []string
	if c.TypeChanged() {
		parts = append(parts, "type")
	}
	if c.ArityChanged() {
		parts = append(parts, "arity")
	}
	if c.DefaultChanged() {
		parts = append(parts, "default")
	}
	if c.AutoIncrementChanged() {
		parts = append(parts, "autoincrement")
	}
	return fmt.Sprint(parts)
}

// ColumnTypeChange classifies how risky a type change is.
type ColumnTypeChange int

const (
	TypeUnchanged ColumnTypeChange = iota
	SafeCast
	RiskyCast
	NotCastable
)

func (c ColumnTypeChange) String() string {
	switch c {
	case SafeCast:
		return "SafeCast"
	case RiskyCast:
		return "RiskyCast"
	case NotCastable:
		return "NotCastable"
	default:
		return "Unchanged"
	}
}

// Migration is a computed step list together with the schemas it refers to.
type Migration struct {
	Schemas Schemas
	Steps   []Step
}

// IsEmpty reports whether there is nothing to do.
func (m *Migration) IsEmpty() bool {
	return len(m.Steps) == 0
}
