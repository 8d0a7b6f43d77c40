package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "empty",
			script: "  \n-- nothing here\n",
			want:   nil,
		},
		{
			name:   "header comments are dropped",
			script: "-- CreateTable\nCREATE TABLE a (id INT);\n\n-- CreateIndex\nCREATE INDEX i ON a(id);\n",
			want:   []string{"CREATE TABLE a (id INT)", "CREATE INDEX i ON a(id)"},
		},
		{
			name:   "semicolons inside literals",
			script: `INSERT INTO a VALUES ('x;y', "c;d"); SELECT 1`,
			want:   []string{`INSERT INTO a VALUES ('x;y', "c;d")`, "SELECT 1"},
		},
		{
			name:   "escaped quotes",
			script: "SELECT 'it''s; fine';",
			want:   []string{"SELECT 'it''s; fine'"},
		},
		{
			name:   "block comment",
			script: "SELECT /* ; */ 1;",
			want:   []string{"SELECT  1"},
		},
		{
			name:   "dollar quoted body",
			script: "CREATE FUNCTION f() RETURNS int AS $$ SELECT 1; $$ LANGUAGE sql;",
			want:   []string{"CREATE FUNCTION f() RETURNS int AS $$ SELECT 1; $$ LANGUAGE sql"},
		},
		{
			name:   "tagged dollar quoted body",
			script: "CREATE FUNCTION f() RETURNS trigger AS $fn$ BEGIN RAISE NOTICE 'it''s $$; done'; RETURN NEW; END; $fn$ LANGUAGE plpgsql; SELECT 1;",
			want: []string{
				"CREATE FUNCTION f() RETURNS trigger AS $fn$ BEGIN RAISE NOTICE 'it''s $$; done'; RETURN NEW; END; $fn$ LANGUAGE plpgsql",
				"SELECT 1",
			},
		},
		{
			name:   "unbalanced quote inside dollar quoted body",
			script: "DO $$ BEGIN PERFORM 'x; END $$; SELECT 'a;b';",
			want:   []string{"DO $$ BEGIN PERFORM 'x; END $$", "SELECT 'a;b'"},
		},
		{
			name:   "dollar signs outside quoting",
			script: "SELECT $1, a$b$c FROM t; SELECT 2",
			want:   []string{"SELECT $1, a$b$c FROM t", "SELECT 2"},
		},
		{
			name:   "bracketed and backticked identifiers",
			script: "SELECT [a;b] FROM `c;d`; SELECT 2 - 1",
			want:   []string{"SELECT [a;b] FROM `c;d`", "SELECT 2 - 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitStatements(tt.script)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitStatementsUnterminatedDollarQuote(t *testing.T) {
	_, err := SplitStatements("CREATE FUNCTION f() AS $body$ SELECT 1;")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unterminated dollar-quoted string")
}
