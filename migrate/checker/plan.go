package checker

import (
	"context"
	"time"

	"github.com/satishbabariya/schema-engine/internal/debug"
)

// Inspector answers the questions checks ask about the live database.
type Inspector interface {
	CountRows(ctx context.Context, table TableRef) (int64, error)
	CountNonNullValues(ctx context.Context, column ColumnRef) (int64, error)
	CountMatchingValues(ctx context.Context, match ValueMatch) (int64, error)
}

// DatabaseInfo holds the inspection results. A missing entry means the value is
// unknown and checks must assume the worst.
type DatabaseInfo struct {
	tableRows    map[TableRef]int64
	columnValues map[ColumnRef]int64
	valueMatches map[string]int64
}

// NewDatabaseInfo returns an empty result set.
func NewDatabaseInfo() *DatabaseInfo {
	return &DatabaseInfo{
		tableRows:    make(map[TableRef]int64),
		columnValues: make(map[ColumnRef]int64),
		valueMatches: make(map[string]int64),
	}
}

// SetTableRowCount records a row count.
func (d *DatabaseInfo) SetTableRowCount(t TableRef, n int64) { d.tableRows[t] = n }

// SetColumnValueCount records a non-null value count.
func (d *DatabaseInfo) SetColumnValueCount(c ColumnRef, n int64) { d.columnValues[c] = n }

// SetValueMatchCount records a value match count.
func (d *DatabaseInfo) SetValueMatchCount(v ValueMatch, n int64) { d.valueMatches[v.key()] = n }

// TableRowCount returns the row count of t, if known.
func (d *DatabaseInfo) TableRowCount(t TableRef) (int64, bool) {
	n, ok := d.tableRows[t]
	return n, ok
}

// ColumnValueCount returns the non-null value count of c, if known.
func (d *DatabaseInfo) ColumnValueCount(c ColumnRef) (int64, bool) {
	n, ok := d.columnValues[c]
	return n, ok
}

// ValueMatchCount returns the number of rows matching v, if known.
func (d *DatabaseInfo) ValueMatchCount(v ValueMatch) (int64, bool) {
	n, ok := d.valueMatches[v.key()]
	return n, ok
}

type plannedCheck struct {
	check     Check
	stepIndex int
}

// Plan is the list of checks for a migration, before any inspection.
type Plan struct {
	warnings      []plannedCheck
	unexecutables []plannedCheck
}

// NewPlan returns an empty plan.
func NewPlan() *Plan {
	return &Plan{}
}

// PushWarning adds a check whose findings are warnings (or a block, when the
// check escalates).
func (p *Plan) PushWarning(c Check, stepIndex int) {
	p.warnings = append(p.warnings, plannedCheck{check: c, stepIndex: stepIndex})
}

// PushUnexecutable adds a check whose findings make the migration unexecutable.
func (p *Plan) PushUnexecutable(c Check, stepIndex int) {
	p.unexecutables = append(p.unexecutables, plannedCheck{check: c, stepIndex: stepIndex})
}

// Len returns the number of planned checks.
func (p *Plan) Len() int {
	return len(p.warnings) + len(p.unexecutables)
}

func (p *Plan) all() []plannedCheck {
	out := make([]plannedCheck, 0, p.Len())
	out = append(out, p.warnings...)
	return append(out, p.unexecutables...)
}

// Execute runs every inspection the plan needs once, then evaluates the checks.
// Failed inspections are logged and leave the value unknown.
func (p *Plan) Execute(ctx context.Context, inspector Inspector) (*DestructiveChangeDiagnostics, error) {
	info := NewDatabaseInfo()
	start := time.Now()

	tables := make(map[TableRef]bool)
	columns := make(map[ColumnRef]bool)
	matches := make(map[string]bool)

	for _, pc := range p.all() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if t := pc.check.NeededTableRowCount(); t != nil && !tables[*t] {
			tables[*t] = true
			if n, err := inspector.CountRows(ctx, *t); err != nil {
				debug.Warn("Failed to count rows", "table", t.Table, "error", err)
			} else {
				info.SetTableRowCount(*t, n)
			}
		}

		if c := pc.check.NeededColumnValueCount(); c != nil && !columns[*c] {
			columns[*c] = true
			if n, err := inspector.CountNonNullValues(ctx, *c); err != nil {
				debug.Warn("Failed to count column values", "table", c.Table, "column", c.Column, "error", err)
			} else {
				info.SetColumnValueCount(*c, n)
			}
		}

		vc, ok := pc.check.(ValueMatchCheck)
		if !ok {
			continue
		}
		for _, vm := range vc.NeededValueMatches() {
			if matches[vm.key()] {
				continue
			}
			matches[vm.key()] = true
			if n, err := inspector.CountMatchingValues(ctx, vm); err != nil {
				debug.Warn("Failed to count matching values", "table", vm.Column.Table, "column", vm.Column.Column, "error", err)
			} else {
				info.SetValueMatchCount(vm, n)
			}
		}
	}

	debug.Debug("Destructive change inspection finished",
		"checks", p.Len(), "tables", len(tables), "columns", len(columns), "duration", time.Since(start))
	return p.evaluate(info), nil
}

// PureCheck evaluates the plan without a database. Every check assumes the worst.
func (p *Plan) PureCheck() *DestructiveChangeDiagnostics {
	return p.evaluate(NewDatabaseInfo())
}

func (p *Plan) evaluate(info *DatabaseInfo) *DestructiveChangeDiagnostics {
	diagnostics := &DestructiveChangeDiagnostics{}
	for _, pc := range p.all() {
		outcome, msg := pc.check.Evaluate(info)
		switch outcome {
		case Warn:
			diagnostics.Warnings = append(diagnostics.Warnings, Warning{Description: msg, StepIndex: pc.stepIndex})
		case Block:
			diagnostics.Unexecutable = append(diagnostics.Unexecutable, Unexecutable{Description: msg, StepIndex: pc.stepIndex})
		}
	}
	return diagnostics
}
