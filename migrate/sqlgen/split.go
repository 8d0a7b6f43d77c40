package sqlgen

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// scriptLexer tokenizes just enough SQL to find statement boundaries: quoted
// text and comments may contain semicolons that do not end a statement.
var scriptLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "LineComment", Pattern: `--[^\n]*`},
	{Name: "BlockComment", Pattern: `/\*(?:[^*]|\*[^/])*\*/`},
	{Name: "SingleQuoted", Pattern: `'(?:''|[^'])*'`},
	{Name: "DoubleQuoted", Pattern: `"(?:""|[^"])*"`},
	{Name: "Backticked", Pattern: "`(?:``|[^`])*`"},
	{Name: "Bracketed", Pattern: `\[(?:\]\]|[^\]])*\]`},
	{Name: "DollarTag", Pattern: `\$(?:[A-Za-z_][A-Za-z_0-9]*)?\$`},
	{Name: "Semicolon", Pattern: `;`},
	{Name: "Text", Pattern: "[^;'\"`\\[$/-]+"},
	{Name: "Char", Pattern: `[\s\S]`},
})

// SplitStatements splits a script into its statements. Comments are dropped
// and statements are returned without their terminating semicolon.
func SplitStatements(script string) ([]string, error) {
	symbols := scriptLexer.Symbols()
	semicolon := symbols["Semicolon"]
	lineComment := symbols["LineComment"]
	blockComment := symbols["BlockComment"]
	dollarTag := symbols["DollarTag"]

	var stmts []string
	var current strings.Builder
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	// A dollar-quoted body is copied verbatim and lexing resumes after its
	// closing tag, so the body is never tokenized.
	rest := script
lexing:
	for {
		lex, err := scriptLexer.Lex("", strings.NewReader(rest))
		if err != nil {
			return nil, fmt.Errorf("failed to tokenize script: %w", err)
		}
		for {
			tok, err := lex.Next()
			if err != nil {
				return nil, fmt.Errorf("failed to tokenize script: %w", err)
			}
			if tok.EOF() {
				break lexing
			}
			switch {
			case tok.Type == semicolon:
				flush()
			case tok.Type == lineComment, tok.Type == blockComment:
			case tok.Type == dollarTag && !followsIdentifier(rest, tok.Pos.Offset):
				bodyStart := tok.Pos.Offset + len(tok.Value)
				n := strings.Index(rest[bodyStart:], tok.Value)
				if n < 0 {
					return nil, fmt.Errorf("failed to tokenize script: unterminated dollar-quoted string at line %d", tok.Pos.Line)
				}
				end := bodyStart + n + len(tok.Value)
				current.WriteString(rest[tok.Pos.Offset:end])
				rest = rest[end:]
				continue lexing
			default:
				current.WriteString(tok.Value)
			}
		}
	}
	flush()
	return stmts, nil
}

// followsIdentifier reports whether the byte before offset continues an
// identifier, where $ is an ordinary identifier character.
func followsIdentifier(s string, offset int) bool {
	if offset == 0 {
		return false
	}
	c := s[offset-1]
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
