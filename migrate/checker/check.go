// Package checker inspects migration steps for data loss and for steps that
// cannot run against the data currently in the database.
package checker

import (
	"fmt"
	"strings"
)

// Outcome is the result of evaluating a check.
type Outcome int

const (
	// Safe means the database holds nothing the step could lose.
	Safe Outcome = iota
	// Warn means the step may lose data and needs confirmation.
	Warn
	// Block means the step cannot succeed.
	Block
)

func (o Outcome) String() string {
	switch o {
	case Warn:
		return "warn"
	case Block:
		return "block"
	default:
		return "safe"
	}
}

// TableRef identifies a table to count rows in.
type TableRef struct {
	Namespace string
	Table     string
}

// ColumnRef identifies a column to count non-null values in.
type ColumnRef struct {
	Namespace string
	Table     string
	Column    string
}

// ValueMatch asks how many rows of a column hold one of Values.
type ValueMatch struct {
	Column ColumnRef
	Values []string
}

func (v ValueMatch) key() string {
	return fmt.Sprintf("%s.%s.%s=%s", v.Column.Namespace, v.Column.Table, v.Column.Column, strings.Join(v.Values, ","))
}

// Check is a single destructive change check. It declares the inspections it
// needs and turns their results into an outcome and a message.
type Check interface {
	NeededTableRowCount() *TableRef
	NeededColumnValueCount() *ColumnRef
	Evaluate(info *DatabaseInfo) (Outcome, string)
}

// ValueMatchCheck is a Check that also needs value match counts.
type ValueMatchCheck interface {
	Check
	NeededValueMatches() []ValueMatch
}

// NonEmptyTableDrop warns about dropping a table with rows.
type NonEmptyTableDrop struct {
	Table TableRef
}

func (c NonEmptyTableDrop) NeededTableRowCount() *TableRef     { return &c.Table }
func (c NonEmptyTableDrop) NeededColumnValueCount() *ColumnRef { return nil }

func (c NonEmptyTableDrop) Evaluate(info *DatabaseInfo) (Outcome, string) {
	rows, ok := info.TableRowCount(c.Table)
	switch {
	case ok && rows == 0:
		return Safe, ""
	case ok:
		return Warn, fmt.Sprintf("You are about to drop the `%s` table, which is not empty (%d rows).", c.Table.Table, rows)
	default:
		return Warn, fmt.Sprintf("You are about to drop the `%s` table. If the table is not empty, all the data it contains will be lost.", c.Table.Table)
	}
}

// NonEmptyColumnDrop warns about dropping a column holding values.
type NonEmptyColumnDrop struct {
	Column ColumnRef
}

func (c NonEmptyColumnDrop) NeededTableRowCount() *TableRef     { return nil }
func (c NonEmptyColumnDrop) NeededColumnValueCount() *ColumnRef { return &c.Column }

func (c NonEmptyColumnDrop) Evaluate(info *DatabaseInfo) (Outcome, string) {
	values, ok := info.ColumnValueCount(c.Column)
	switch {
	case ok && values == 0:
		return Safe, ""
	case ok:
		return Warn, fmt.Sprintf("You are about to drop the column `%s` on the `%s` table, which still contains %d non-null values.",
			c.Column.Column, c.Column.Table, values)
	default:
		return Warn, fmt.Sprintf("You are about to drop the column `%s` on the `%s` table. All the data in the column will be lost.",
			c.Column.Column, c.Column.Table)
	}
}

// PrimaryKeyChange warns about replacing the primary key of a table with rows.
type PrimaryKeyChange struct {
	Table TableRef
}

func (c PrimaryKeyChange) NeededTableRowCount() *TableRef     { return &c.Table }
func (c PrimaryKeyChange) NeededColumnValueCount() *ColumnRef { return nil }

func (c PrimaryKeyChange) Evaluate(info *DatabaseInfo) (Outcome, string) {
	if rows, ok := info.TableRowCount(c.Table); ok && rows == 0 {
		return Safe, ""
	}
	return Warn, fmt.Sprintf("The primary key for the `%s` table will be changed. If it partially fails, the table could be left without primary key constraint.", c.Table.Table)
}

// RiskyCast warns about a type change that may fail or truncate values.
type RiskyCast struct {
	Column       ColumnRef
	PreviousType string
	NextType     string
}

func (c RiskyCast) NeededTableRowCount() *TableRef     { return nil }
func (c RiskyCast) NeededColumnValueCount() *ColumnRef { return &c.Column }

func (c RiskyCast) Evaluate(info *DatabaseInfo) (Outcome, string) {
	values, ok := info.ColumnValueCount(c.Column)
	switch {
	case ok && values == 0:
		return Safe, ""
	case ok:
		return Warn, fmt.Sprintf("You are about to alter the column `%s` on the `%s` table, which contains %d non-null values. The data in that column will be cast from `%s` to `%s`.",
			c.Column.Column, c.Column.Table, values, c.PreviousType, c.NextType)
	default:
		return Warn, fmt.Sprintf("You are about to alter the column `%s` on the `%s` table. The data in that column will be cast from `%s` to `%s`.",
			c.Column.Column, c.Column.Table, c.PreviousType, c.NextType)
	}
}

// NotCastable warns about a column that is dropped and recreated with a new type.
type NotCastable struct {
	Column       ColumnRef
	PreviousType string
	NextType     string
}

func (c NotCastable) NeededTableRowCount() *TableRef     { return nil }
func (c NotCastable) NeededColumnValueCount() *ColumnRef { return &c.Column }

func (c NotCastable) Evaluate(info *DatabaseInfo) (Outcome, string) {
	if values, ok := info.ColumnValueCount(c.Column); ok && values == 0 {
		return Safe, ""
	}
	return Warn, fmt.Sprintf("The `%s` column on the `%s` table would be dropped and recreated. This will lead to data loss.",
		c.Column.Column, c.Column.Table)
}

// UniqueConstraintAddition warns that existing duplicates make a new unique index fail.
type UniqueConstraintAddition struct {
	Table   TableRef
	Columns []string
}

func (c UniqueConstraintAddition) NeededTableRowCount() *TableRef     { return &c.Table }
func (c UniqueConstraintAddition) NeededColumnValueCount() *ColumnRef { return nil }

func (c UniqueConstraintAddition) Evaluate(info *DatabaseInfo) (Outcome, string) {
	if rows, ok := info.TableRowCount(c.Table); ok && rows == 0 {
		return Safe, ""
	}
	return Warn, fmt.Sprintf("A unique constraint covering the columns `[%s]` on the table `%s` will be added. If there are existing duplicate values, this will fail.",
		strings.Join(c.Columns, ","), c.Table.Table)
}

// EnumValueRemoval warns about removing enum variants. Usage confirmed in one of
// the columns of the enum blocks the step instead.
type EnumValueRemoval struct {
	Enum   string
	Values []string
	Usages []ColumnRef
}

func (c EnumValueRemoval) NeededTableRowCount() *TableRef     { return nil }
func (c EnumValueRemoval) NeededColumnValueCount() *ColumnRef { return nil }

func (c EnumValueRemoval) NeededValueMatches() []ValueMatch {
	out := make([]ValueMatch, len(c.Usages))
	for i, u := range c.Usages {
		out[i] = ValueMatch{Column: u, Values: c.Values}
	}
	return out
}

func (c EnumValueRemoval) Evaluate(info *DatabaseInfo) (Outcome, string) {
	values := strings.Join(c.Values, ", ")
	allKnown := true
	var used []string
	for _, vm := range c.NeededValueMatches() {
		n, ok := info.ValueMatchCount(vm)
		if !ok {
			allKnown = false
			continue
		}
		if n > 0 {
			used = append(used, fmt.Sprintf("`%s`.`%s` (%d rows)", vm.Column.Table, vm.Column.Column, n))
		}
	}

	if len(used) > 0 {
		return Block, fmt.Sprintf("The values [%s] on the enum `%s` cannot be removed because they are still used in %s.",
			values, c.Enum, strings.Join(used, ", "))
	}
	if allKnown {
		return Safe, ""
	}

	msg := fmt.Sprintf("The values [%s] on the enum `%s` will be removed. If these variants are still used in the database, this will fail.", values, c.Enum)
	if len(c.Usages) > 0 {
		cols := make([]string, len(c.Usages))
		for i, u := range c.Usages {
			cols[i] = fmt.Sprintf("`%s`.`%s`", u.Table, u.Column)
		}
		msg += " The enum is used by " + strings.Join(cols, ", ") + "."
	}
	return Warn, msg
}

// AddedRequiredFieldToTable blocks adding a required column without a default to a table with rows.
type AddedRequiredFieldToTable struct {
	Column ColumnRef
}

func (c AddedRequiredFieldToTable) NeededTableRowCount() *TableRef {
	return &TableRef{Namespace: c.Column.Namespace, Table: c.Column.Table}
}
func (c AddedRequiredFieldToTable) NeededColumnValueCount() *ColumnRef { return nil }

func (c AddedRequiredFieldToTable) Evaluate(info *DatabaseInfo) (Outcome, string) {
	rows, ok := info.TableRowCount(*c.NeededTableRowCount())
	switch {
	case ok && rows == 0:
		return Safe, ""
	case ok:
		return Block, fmt.Sprintf("Added the required column `%s` to the `%s` table without a default value. There are %d rows in this table, it is not possible to execute this step.",
			c.Column.Column, c.Column.Table, rows)
	default:
		return Block, fmt.Sprintf("Added the required column `%s` to the `%s` table without a default value. This is not possible if the table is not empty.",
			c.Column.Column, c.Column.Table)
	}
}

// AddedRequiredFieldToTableWithDefaultValue blocks adding a required column whose
// default only exists on the client side.
type AddedRequiredFieldToTableWithDefaultValue struct {
	Column ColumnRef
}

func (c AddedRequiredFieldToTableWithDefaultValue) NeededTableRowCount() *TableRef {
	return &TableRef{Namespace: c.Column.Namespace, Table: c.Column.Table}
}
func (c AddedRequiredFieldToTableWithDefaultValue) NeededColumnValueCount() *ColumnRef { return nil }

func (c AddedRequiredFieldToTableWithDefaultValue) Evaluate(info *DatabaseInfo) (Outcome, string) {
	rows, ok := info.TableRowCount(*c.NeededTableRowCount())
	switch {
	case ok && rows == 0:
		return Safe, ""
	case ok:
		return Block, fmt.Sprintf("The required column `%s` was added to the `%s` table with a client-side default value. There are %d rows in this table, it is not possible to execute this step. Please add this column as optional, then populate it before making it required.",
			c.Column.Column, c.Column.Table, rows)
	default:
		return Block, fmt.Sprintf("The required column `%s` was added to the `%s` table with a client-side default value. This is not possible if the table is not empty. Please add this column as optional, then populate it before making it required.",
			c.Column.Column, c.Column.Table)
	}
}

// MadeOptionalFieldRequired blocks making a column required while it holds NULLs.
type MadeOptionalFieldRequired struct {
	Column ColumnRef
}

func (c MadeOptionalFieldRequired) NeededTableRowCount() *TableRef {
	return &TableRef{Namespace: c.Column.Namespace, Table: c.Column.Table}
}
func (c MadeOptionalFieldRequired) NeededColumnValueCount() *ColumnRef { return &c.Column }

func (c MadeOptionalFieldRequired) Evaluate(info *DatabaseInfo) (Outcome, string) {
	rows, rowsOK := info.TableRowCount(*c.NeededTableRowCount())
	values, valuesOK := info.ColumnValueCount(c.Column)
	if rowsOK && valuesOK {
		nulls := rows - values
		if nulls <= 0 {
			return Safe, ""
		}
		return Block, fmt.Sprintf("Made the column `%s` on table `%s` required, but there are %d existing NULL values.",
			c.Column.Column, c.Column.Table, nulls)
	}
	if rowsOK && rows == 0 {
		return Safe, ""
	}
	return Block, fmt.Sprintf("Made the column `%s` on table `%s` required. If there are existing NULL values, the migration will fail.",
		c.Column.Column, c.Column.Table)
}

// DropAndRecreateRequiredColumn blocks recreating a required column without a default.
type DropAndRecreateRequiredColumn struct {
	Column ColumnRef
}

func (c DropAndRecreateRequiredColumn) NeededTableRowCount() *TableRef {
	return &TableRef{Namespace: c.Column.Namespace, Table: c.Column.Table}
}
func (c DropAndRecreateRequiredColumn) NeededColumnValueCount() *ColumnRef { return nil }

func (c DropAndRecreateRequiredColumn) Evaluate(info *DatabaseInfo) (Outcome, string) {
	if rows, ok := info.TableRowCount(*c.NeededTableRowCount()); ok && rows == 0 {
		return Safe, ""
	}
	return Block, fmt.Sprintf("Changed the type of `%s` on the `%s` table. No cast exists, the column would be dropped and recreated, which cannot be done if there is data, since the column is required.",
		c.Column.Column, c.Column.Table)
}
