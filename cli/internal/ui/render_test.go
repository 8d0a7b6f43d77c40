package ui

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func withColor(t *testing.T, enabled bool) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = !enabled
	t.Cleanup(func() { color.NoColor = prev })
}

func TestHighlightSQLWithoutColor(t *testing.T) {
	withColor(t, false)
	script := `CREATE TABLE "User" ("name" TEXT DEFAULT 'x');`
	assert.Equal(t, script, HighlightSQL(script))
}

func TestHighlightSQL(t *testing.T) {
	withColor(t, true)
	out := HighlightSQL("-- comment\nCREATE TABLE \"User\" (\"name\" TEXT DEFAULT 'create');")
	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, out, `"User"`)
	assert.Contains(t, out, stringColor.Sprint("'create'"), "keywords inside strings are not recolored")
	assert.Contains(t, out, commentColor.Sprint("-- comment"))
}

func TestSummaryMarkdown(t *testing.T) {
	summary := "[+] Added tables\n  - Post\n\n[*] Changed the `User` table\n  [+] Added column `age`\n"
	want := "### \\[+\\] Added tables\n\n- Post\n\n\n### \\[\\*\\] Changed the `User` table\n\n- \\[+\\] Added column `age`\n"
	assert.Equal(t, want, SummaryMarkdown(summary))
}
