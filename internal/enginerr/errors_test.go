package enginerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("relation \"User\" already exists")
	err := Wrap(ApplyError, cause, "failed to apply migration").
		With("migration", "20240101000000_init").
		WithSQL(`CREATE TABLE "User" ()`)

	msg := err.Error()
	assert.Contains(t, msg, "[E3003] failed to apply migration")
	assert.Contains(t, msg, "migration: 20240101000000_init")
	assert.Contains(t, msg, "cause: relation \"User\" already exists")
	assert.Less(t, strings.Index(msg, "migration:"), strings.Index(msg, "sql:"))
}

func TestKindMatching(t *testing.T) {
	inner := Wrap(DescribeError, errors.New("boom"), "failed to describe")
	wrapped := fmt.Errorf("engine: %w", inner)

	assert.True(t, errors.Is(wrapped, Sentinel(DescribeError)))
	assert.False(t, errors.Is(wrapped, Sentinel(ApplyError)))
	assert.True(t, IsKind(wrapped, DescribeError))

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, DescribeError, kind)
	assert.Equal(t, "DescribeError", kind.String())
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(ConnectionError, cause, "failed to connect")
	assert.ErrorIs(t, err, cause)
}

func TestKindOfPlainError(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}
