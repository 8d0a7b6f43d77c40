package ui

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// IsInteractive reports whether stdin and stdout are terminals.
func IsInteractive() bool {
	tty := func(fd uintptr) bool { return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) }
	return tty(os.Stdin.Fd()) && tty(os.Stdout.Fd())
}

// Confirm asks a yes/no question. It answers no without asking when the
// session is not interactive.
func Confirm(message string) (bool, error) {
	if !IsInteractive() {
		return false, nil
	}
	ok := false
	if err := survey.AskOne(&survey.Confirm{Message: message, Default: false}, &ok); err != nil {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	return ok, nil
}

var (
	keywordColor = color.New(color.FgCyan, color.Bold)
	stringColor  = color.New(color.FgGreen)
	commentColor = color.New(color.FgHiBlack)

	sqlKeyword = regexp.MustCompile(`(?i)\b(CREATE|ALTER|DROP|TABLE|INDEX|UNIQUE|VIEW|TYPE|ENUM|ADD|COLUMN|CONSTRAINT|PRIMARY|FOREIGN|KEY|REFERENCES|ON|DELETE|UPDATE|CASCADE|RESTRICT|SET|DEFAULT|NOT|NULL|INSERT|INTO|SELECT|FROM|RENAME|TO|AS|IF|EXISTS|PRAGMA|BEGIN|COMMIT)\b`)
	sqlString  = regexp.MustCompile(`'(?:[^']|'')*'`)
)

// HighlightSQL colors a migration script for the terminal. Comment lines are
// dimmed; keywords and string literals of other lines are colored.
func HighlightSQL(script string) string {
	if color.NoColor {
		return script
	}
	lines := strings.Split(script, "\n")
	for i, line := range lines {
		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "--") || strings.HasPrefix(trimmed, "/*") || strings.HasPrefix(trimmed, "*") {
			lines[i] = commentColor.Sprint(line)
			continue
		}
		var b strings.Builder
		last := 0
		for _, loc := range sqlString.FindAllStringIndex(line, -1) {
			b.WriteString(highlightKeywords(line[last:loc[0]]))
			b.WriteString(stringColor.Sprint(line[loc[0]:loc[1]]))
			last = loc[1]
		}
		b.WriteString(highlightKeywords(line[last:]))
		lines[i] = b.String()
	}
	return strings.Join(lines, "\n")
}

func highlightKeywords(s string) string {
	return sqlKeyword.ReplaceAllStringFunc(s, func(k string) string { return keywordColor.Sprint(k) })
}

// PrintSQL prints a highlighted script.
func PrintSQL(script string) {
	fmt.Println(HighlightSQL(strings.TrimRight(script, "\n")))
}

// SummaryMarkdown turns a drift summary into markdown: section lines become
// headings and their items stay list items.
func SummaryMarkdown(summary string) string {
	var b strings.Builder
	for _, line := range strings.Split(summary, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			b.WriteString("\n")
		case strings.HasPrefix(trimmed, "- "):
			b.WriteString("- " + strings.TrimPrefix(trimmed, "- ") + "\n")
		case strings.HasPrefix(line, "  "):
			b.WriteString("- " + escapeMarkdown(trimmed) + "\n")
		default:
			b.WriteString("\n### " + escapeMarkdown(trimmed) + "\n\n")
		}
	}
	return strings.TrimSpace(b.String()) + "\n"
}

func escapeMarkdown(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`, "*", `\*`).Replace(s)
}

// PrintSummary renders a drift summary.
func PrintSummary(summary string) error {
	return PrintMarkdown(SummaryMarkdown(summary))
}
