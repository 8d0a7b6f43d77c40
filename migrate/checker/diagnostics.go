package checker

import (
	"strings"

	"github.com/satishbabariya/schema-engine/internal/enginerr"
)

// Warning is a potential data loss the user has to accept.
type Warning struct {
	Description string `json:"description"`
	StepIndex   int    `json:"stepIndex"`
}

// Unexecutable is a step that cannot succeed against the current data.
type Unexecutable struct {
	Description string `json:"description"`
	StepIndex   int    `json:"stepIndex"`
}

// DestructiveChangeDiagnostics is the checker's verdict on a migration.
type DestructiveChangeDiagnostics struct {
	Warnings     []Warning      `json:"warnings"`
	Unexecutable []Unexecutable `json:"unexecutableSteps"`
}

// HasWarnings reports whether any warning was raised.
func (d *DestructiveChangeDiagnostics) HasWarnings() bool {
	return len(d.Warnings) > 0
}

// HasUnexecutable reports whether any step cannot run.
func (d *DestructiveChangeDiagnostics) HasUnexecutable() bool {
	return len(d.Unexecutable) > 0
}

// WarningMessages returns the warning descriptions.
func (d *DestructiveChangeDiagnostics) WarningMessages() []string {
	out := make([]string, len(d.Warnings))
	for i, w := range d.Warnings {
		out[i] = w.Description
	}
	return out
}

// UnexecutableMessages returns the unexecutable step descriptions.
func (d *DestructiveChangeDiagnostics) UnexecutableMessages() []string {
	out := make([]string, len(d.Unexecutable))
	for i, u := range d.Unexecutable {
		out[i] = u.Description
	}
	return out
}

// Err converts the findings to an error. Unexecutable steps always fail;
// warnings only fail when force is false.
func (d *DestructiveChangeDiagnostics) Err(force bool) error {
	if d.HasUnexecutable() {
		return enginerr.New(enginerr.UnexecutableMigration, "the migration cannot be executed").
			With("steps", strings.Join(d.UnexecutableMessages(), "\n"))
	}
	if d.HasWarnings() && !force {
		return enginerr.New(enginerr.DestructiveChangeWarning, "the migration would cause data loss").
			With("warnings", strings.Join(d.WarningMessages(), "\n"))
	}
	return nil
}

// Comment renders the findings as a SQL comment block to prepend to a migration script.
func (d *DestructiveChangeDiagnostics) Comment() string {
	if !d.HasWarnings() && !d.HasUnexecutable() {
		return ""
	}
	var b strings.Builder
	b.WriteString("/*\n")
	if d.HasWarnings() {
		b.WriteString("  Warnings:\n\n")
		for _, w := range d.Warnings {
			b.WriteString("  - " + w.Description + "\n")
		}
		b.WriteString("\n")
	}
	if d.HasUnexecutable() {
		b.WriteString("  Unexecutable steps:\n\n")
		for _, u := range d.Unexecutable {
			b.WriteString("  - " + u.Description + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("*/\n")
	return b.String()
}
