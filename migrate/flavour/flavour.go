// Package flavour bundles everything that varies between databases: how the
// differ pairs and classifies changes, how the checker judges them and how
// steps are rendered. Nothing outside this package and sqlgen branches on the
// dialect.
package flavour

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/satishbabariya/schema-engine/internal/debug"
	"github.com/satishbabariya/schema-engine/migrate/checker"
	"github.com/satishbabariya/schema-engine/migrate/diff"
	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
	"github.com/satishbabariya/schema-engine/migrate/sqlgen"
)

// LedgerTable is the table applied migrations are recorded in. Every flavour
// hides it from diffing.
const LedgerTable = "_schema_migrations"

// Flavour is the complete dialect policy of the engine.
type Flavour interface {
	diff.Flavour
	checker.Flavour
	sqlgen.Renderer

	// Placeholder returns the bind parameter for the n-th argument, 1-based.
	Placeholder(n int) string
	// TextCastType is the type values are cast to when compared as text.
	TextCastType() string
	// SupportsTransactionalDDL reports whether a failed script can be rolled back.
	SupportsTransactionalDDL() bool
	// DefaultConstraintName names the constraint holding a column default, or
	// returns an empty string where defaults are not named.
	DefaultConstraintName(table, column string) string
	// PushConnectorData fills in dialect defaults a schema document leaves out.
	PushConnectorData(s *schema.Schema)
	// Version is the server version the flavour was created for, or nil.
	Version() *version.Version
	// PrepareScript splits the session statements a transactional script needs
	// out of stmts. A nil guard means the body runs as is.
	PrepareScript(stmts []string) (body []string, guard *SessionGuard)
}

// SessionGuard holds statements that must run on the connection applying a
// script but outside of its transaction.
type SessionGuard struct {
	// Before runs ahead of BEGIN.
	Before []string
	// Verify runs inside the transaction before COMMIT. Any returned row fails
	// the script.
	Verify string
	// After runs once the transaction ended, committed or not.
	After []string
}

// Option tweaks a flavour at creation.
type Option func(*common)

// WithLowerCaseTableNames makes table names compare case-insensitively, as on
// MySQL servers running with lower_case_table_names.
func WithLowerCaseTableNames() Option {
	return func(c *common) { c.lowerCaseTableNames = true }
}

// New creates the flavour for a dialect. serverVersion may be empty when the
// version is unknown; capabilities then assume a current server.
func New(dialect schema.Dialect, serverVersion string, opts ...Option) (Flavour, error) {
	c := common{rawVersion: serverVersion}
	if serverVersion != "" {
		v, err := parseVersion(serverVersion)
		if err != nil {
			debug.Warn("Could not parse server version", "version", serverVersion, "error", err)
		}
		c.version = v
	}
	for _, opt := range opts {
		opt(&c)
	}

	switch dialect {
	case schema.Postgres:
		return newPostgres(c), nil
	case schema.CockroachDB:
		return newCockroachDB(c), nil
	case schema.MySQL:
		return newMySQL(c), nil
	case schema.SQLite:
		return newSQLite(c), nil
	case schema.MSSQL:
		return newMSSQL(c), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", dialect)
	}
}

var leadingVersion = regexp.MustCompile(`\d+(\.\d+){0,2}`)

// parseVersion reads the leading dotted version out of strings such as
// "10.11.2-MariaDB-1:10.11.2+maria~ubu2204" or "PostgreSQL 16.2 on x86_64".
func parseVersion(s string) (*version.Version, error) {
	match := leadingVersion.FindString(s)
	if match == "" {
		return nil, fmt.Errorf("no version number in %q", s)
	}
	v, err := version.NewVersion(match)
	if err != nil {
		return nil, fmt.Errorf("failed to parse version %q: %w", match, err)
	}
	return v, nil
}

// common holds what every flavour shares.
type common struct {
	version             *version.Version
	rawVersion          string
	lowerCaseTableNames bool
}

// Version implements Flavour.
func (c common) Version() *version.Version { return c.version }

// atLeast reports whether the server is at least v. Unknown versions pass.
func (c common) atLeast(v string) bool {
	if c.version == nil {
		return true
	}
	constraint, err := version.NewConstraint(">= " + v)
	if err != nil {
		return true
	}
	return constraint.Check(c.version)
}

// LowerCasesTableNames implements diff.Flavour.
func (c common) LowerCasesTableNames() bool { return c.lowerCaseTableNames }

// IndexesMatch implements diff.Flavour.
func (c common) IndexesMatch(a, b schema.IndexWalker) bool {
	return diff.IndexesMatchDefault(a, b)
}

// ColumnAutoIncrementChanged implements diff.Flavour.
func (c common) ColumnAutoIncrementChanged(cols migration.Pair[schema.ColumnWalker]) bool {
	return cols.Previous.IsAutoIncrement() != cols.Next.IsAutoIncrement()
}

// CheckAlterColumn implements checker.Flavour.
func (c common) CheckAlterColumn(alter migration.AlterColumn, cols migration.Pair[schema.ColumnWalker], plan *checker.Plan, stepIndex int) {
	checker.CheckColumnChange(cols, alter.Changes, alter.TypeChange, plan, stepIndex)
}

// CheckDropAndRecreateColumn implements checker.Flavour.
func (c common) CheckDropAndRecreateColumn(cols migration.Pair[schema.ColumnWalker], _ migration.ColumnChanges, plan *checker.Plan, stepIndex int) {
	checker.CheckRecreatedColumn(cols, plan, stepIndex)
}

// DefaultConstraintName implements Flavour.
func (c common) DefaultConstraintName(string, string) string { return "" }

// PushConnectorData implements Flavour.
func (c common) PushConnectorData(*schema.Schema) {}

// PrepareScript implements Flavour.
func (c common) PrepareScript(stmts []string) ([]string, *SessionGuard) { return stmts, nil }

// ignoredTable reports whether a table belongs to the engine or to extensions.
func ignoredTable(name string, extra ...string) bool {
	if name == LedgerTable {
		return true
	}
	for _, e := range extra {
		if name == e {
			return true
		}
	}
	return false
}

// typeComparer decides type changes by comparing rendered column types after
// folding dialect aliases, so introspected and declared schemas agree on
// spellings like int4 and INTEGER.
type typeComparer struct {
	render func(schema.ColumnWalker) string
	// aliases maps a lowercased type name without arguments to its canonical name.
	aliases map[string]string
	// dropArgs lists canonical names whose arguments are display hints only.
	dropArgs map[string]bool
	// namedEnums is set where enums are standalone types referenced by name.
	namedEnums bool
}

func (tc typeComparer) normalize(sql string) string {
	s := strings.ToLower(strings.Join(strings.Fields(sql), ""))
	list := ""
	if strings.HasSuffix(s, "[]") {
		s, list = strings.TrimSuffix(s, "[]"), "[]"
	}
	base, args := s, ""
	if i := strings.IndexByte(s, '('); i >= 0 {
		base, args = s[:i], s[i:]
	}
	// Modifiers such as "unsigned" follow the arguments.
	suffix := ""
	if i := strings.IndexByte(args, ')'); i >= 0 && i < len(args)-1 {
		args, suffix = args[:i+1], args[i+1:]
	}
	if alias, ok := tc.aliases[base]; ok {
		base = alias
	}
	if tc.dropArgs[base] {
		args = ""
	}
	// An alias may carry arguments of its own, such as boolean -> tinyint(1).
	if strings.Contains(base, "(") {
		args = ""
	}
	return base + args + suffix + list
}

func (tc typeComparer) change(cols migration.Pair[schema.ColumnWalker]) migration.ColumnTypeChange {
	prev, next := cols.Previous.Type(), cols.Next.Type()

	if prev.Arity.IsList() != next.Arity.IsList() {
		return migration.NotCastable
	}
	if prev.Family == schema.FamilyEnum && next.Family == schema.FamilyEnum {
		return tc.enumChange(cols)
	}
	if tc.normalize(tc.render(cols.Previous)) == tc.normalize(tc.render(cols.Next)) {
		return migration.TypeUnchanged
	}
	if prev.Family == next.Family && prev.Family != schema.FamilyUnsupported {
		if widened(tc.normalize(tc.render(cols.Previous)), tc.normalize(tc.render(cols.Next))) {
			return migration.SafeCast
		}
		return migration.RiskyCast
	}
	return familyChange(prev.Family, next.Family)
}

func (tc typeComparer) enumChange(cols migration.Pair[schema.ColumnWalker]) migration.ColumnTypeChange {
	prev, next := cols.Previous.Type(), cols.Next.Type()
	if tc.namedEnums {
		if prev.EnumName == next.EnumName {
			return migration.TypeUnchanged
		}
		return migration.NotCastable
	}

	// Inline enums change when their variant lists do.
	prevEnum, okPrev := cols.Previous.Enum()
	nextEnum, okNext := cols.Next.Enum()
	if !okPrev || !okNext {
		if tc.normalize(tc.render(cols.Previous)) == tc.normalize(tc.render(cols.Next)) {
			return migration.TypeUnchanged
		}
		return migration.RiskyCast
	}
	prevVariants, nextVariants := prevEnum.Variants(), nextEnum.Variants()
	if strings.Join(prevVariants, "\x00") == strings.Join(nextVariants, "\x00") {
		return migration.TypeUnchanged
	}
	for _, v := range prevVariants {
		if !nextEnum.HasVariant(v) {
			return migration.RiskyCast
		}
	}
	return migration.SafeCast
}

// widened reports whether every numeric type argument grew or stayed, as in
// varchar(10) -> varchar(20). "max" is larger than any number.
func widened(prev, next string) bool {
	pa, na := typeArgs(prev), typeArgs(next)
	if len(pa) == 0 || len(pa) != len(na) || baseName(prev) != baseName(next) {
		return false
	}
	for i := range pa {
		if na[i] == "max" {
			continue
		}
		if pa[i] == "max" {
			return false
		}
		p, errP := strconv.Atoi(pa[i])
		n, errN := strconv.Atoi(na[i])
		if errP != nil || errN != nil || n < p {
			return false
		}
	}
	return true
}

func baseName(t string) string {
	if i := strings.IndexByte(t, '('); i >= 0 {
		return t[:i]
	}
	return t
}

func typeArgs(t string) []string {
	open, close := strings.IndexByte(t, '('), strings.IndexByte(t, ')')
	if open < 0 || close < open {
		return nil
	}
	return strings.Split(t[open+1:close], ",")
}

// familyChange classifies a change between two different type families.
func familyChange(from, to schema.ColumnTypeFamily) migration.ColumnTypeChange {
	if from == schema.FamilyUnsupported || to == schema.FamilyUnsupported {
		return migration.NotCastable
	}
	if to == schema.FamilyString {
		if from == schema.FamilyBinary {
			return migration.RiskyCast
		}
		return migration.SafeCast
	}
	if from == schema.FamilyString {
		if to == schema.FamilyBinary {
			return migration.NotCastable
		}
		return migration.RiskyCast
	}

	numeric := map[schema.ColumnTypeFamily]bool{
		schema.FamilyInt: true, schema.FamilyBigInt: true, schema.FamilyFloat: true, schema.FamilyDecimal: true,
	}
	switch {
	case from == schema.FamilyInt && numeric[to]:
		return migration.SafeCast
	case from == schema.FamilyBigInt && to == schema.FamilyDecimal:
		return migration.SafeCast
	case numeric[from] && numeric[to]:
		return migration.RiskyCast
	case from == schema.FamilyBoolean && numeric[to], numeric[from] && to == schema.FamilyBoolean:
		return migration.RiskyCast
	case from == schema.FamilyEnum || to == schema.FamilyEnum:
		return migration.RiskyCast
	}
	return migration.NotCastable
}

// numberedPlaceholder returns prefix followed by n.
func numberedPlaceholder(prefix string, n int) string {
	return prefix + strconv.Itoa(n)
}
