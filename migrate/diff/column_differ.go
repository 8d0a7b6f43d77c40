package diff

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/satishbabariya/schema-engine/migrate/migration"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// columnChanges detects all changes between two versions of a column.
func columnChanges(cols migration.Pair[schema.ColumnWalker], f Flavour) (migration.ColumnChanges, migration.ColumnTypeChange) {
	var changes migration.ColumnChanges

	typeChange := f.ColumnTypeChange(cols)
	if typeChange != migration.TypeUnchanged {
		changes |= migration.ChangedType
	}

	if cols.Previous.Arity() != cols.Next.Arity() {
		changes |= migration.ChangedArity
	}

	if !defaultsMatch(cols) {
		changes |= migration.ChangedDefault
	}

	if f.ColumnAutoIncrementChanged(cols) {
		changes |= migration.ChangedAutoIncrement
	}

	return changes, typeChange
}

// defaultsMatch compares column defaults after normalizing the forms databases
// report them in.
func defaultsMatch(cols migration.Pair[schema.ColumnWalker]) bool {
	prev, next := cols.Previous.Default(), cols.Next.Default()

	// Sequence defaults are an implementation detail of autoincrement columns.
	if cols.Previous.IsAutoIncrement() && prev.IsSequence() {
		prev = nil
	}
	if cols.Next.IsAutoIncrement() && next.IsSequence() {
		next = nil
	}

	if prev == nil || next == nil {
		return prev == nil && next == nil
	}

	if isNowLike(prev) && isNowLike(next) {
		return true
	}

	if prev.Kind != next.Kind {
		return false
	}

	switch prev.Kind {
	case schema.DefaultNow, schema.DefaultUniqueRowID:
		return true
	case schema.DefaultSequence:
		return prev.SequenceName == next.SequenceName
	case schema.DefaultDBGenerated:
		return normalizeExpression(prev.Expression) == normalizeExpression(next.Expression)
	}

	if prev.Value == nil || next.Value == nil {
		return prev.Value == nil && next.Value == nil
	}
	return literalsMatch(*prev.Value, *next.Value, cols.Next.Type().Family)
}

func literalsMatch(prev, next schema.Literal, family schema.ColumnTypeFamily) bool {
	if prev.Text == next.Text {
		return true
	}

	switch family {
	case schema.FamilyJSON:
		return jsonDefaultsMatch(prev.Text, next.Text)
	case schema.FamilyInt, schema.FamilyBigInt, schema.FamilyFloat, schema.FamilyDecimal:
		a, errA := strconv.ParseFloat(strings.TrimSpace(prev.Text), 64)
		b, errB := strconv.ParseFloat(strings.TrimSpace(next.Text), 64)
		return errA == nil && errB == nil && a == b
	case schema.FamilyBoolean:
		return parseBool(prev.Text) == parseBool(next.Text)
	case schema.FamilyEnum:
		return strings.Trim(prev.Text, `"'`) == strings.Trim(next.Text, `"'`)
	}
	return false
}

// jsonDefaultsMatch compares JSON default values by parsing them.
func jsonDefaultsMatch(prev, next string) bool {
	var a, b any
	if err := json.Unmarshal([]byte(prev), &a); err != nil {
		return prev == next
	}
	if err := json.Unmarshal([]byte(next), &b); err != nil {
		return prev == next
	}
	aBytes, err1 := json.Marshal(a)
	bBytes, err2 := json.Marshal(b)
	return err1 == nil && err2 == nil && string(aBytes) == string(bBytes)
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "t", "b'1'":
		return true
	}
	return false
}

func isNowLike(d *schema.ColumnDefault) bool {
	if d.Kind == schema.DefaultNow {
		return true
	}
	if d.Kind != schema.DefaultDBGenerated {
		return false
	}
	e := normalizeExpression(d.Expression)
	return e == "now()" || strings.HasPrefix(e, "current_timestamp")
}

// normalizeExpression lowercases, strips whitespace, redundant parentheses and
// trailing casts so equivalent expressions compare equal.
func normalizeExpression(expr string) string {
	e := strings.ToLower(strings.Join(strings.Fields(expr), ""))
	for len(e) >= 2 && e[0] == '(' && e[len(e)-1] == ')' && balanced(e[1:len(e)-1]) {
		e = e[1 : len(e)-1]
	}
	if i := strings.LastIndex(e, "::"); i > 0 && !strings.ContainsAny(e[i:], "()'") {
		e = e[:i]
	}
	return e
}

func balanced(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
