// Package enginerr defines the error taxonomy of the schema engine.
// Every error carries a stable, machine-readable kind and wraps its cause.
package enginerr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind is a stable, machine-readable error code.
type Kind string

const (
	ConnectionError          Kind = "E1001" // database unreachable or authentication failed
	DescribeError            Kind = "E1002" // schema introspection failed
	ValidationError          Kind = "E2001" // schema input violates a model invariant
	UnexecutableMigration    Kind = "E3001" // the checker determined a step cannot succeed
	DestructiveChangeWarning Kind = "E3002" // warnings present and not forced
	ApplyError               Kind = "E3003" // a DDL statement failed during apply
	PersistenceError         Kind = "E4001" // the migration ledger could not be read or written
	ChecksumMismatch         Kind = "E4002" // an applied migration script was edited on disk
)

var kindNames = map[Kind]string{
	ConnectionError:          "ConnectionError",
	DescribeError:            "DescribeError",
	ValidationError:          "ValidationError",
	UnexecutableMigration:    "UnexecutableMigration",
	DestructiveChangeWarning: "DestructiveChangeWarning",
	ApplyError:               "ApplyError",
	PersistenceError:         "PersistenceError",
	ChecksumMismatch:         "ChecksumMismatch",
}

// String returns the symbolic name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return string(k)
}

// Error is the error type returned across package boundaries of the engine.
type Error struct {
	kind    Kind
	message string
	context map[string]any
	cause   error
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...), cause: cause}
}

// Error returns the formatted error string.
// Format:
//
//	[E3003] failed to apply migration
//	  migration: 20240101000000_init
//	  cause: relation "User" already exists
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", string(e.kind), e.message)

	if len(e.context) > 0 {
		keys := make([]string, 0, len(e.context))
		for k := range e.context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n  %s: %v", k, e.context[k])
		}
	}

	if e.cause != nil {
		fmt.Fprintf(&b, "\n  cause: %v", e.cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.kind == t.kind
	}
	return false
}

// Kind returns the error kind.
func (e *Error) Kind() Kind {
	return e.kind
}

// Message returns the message without context or cause.
func (e *Error) Message() string {
	return e.message
}

// Context returns the structured context attached to the error.
func (e *Error) Context() map[string]any {
	return e.context
}

// With adds a key-value pair to the error context.
func (e *Error) With(key string, value any) *Error {
	if e.context == nil {
		e.context = make(map[string]any)
	}
	e.context[key] = value
	return e
}

// WithTable adds table context, qualified by namespace when present.
func (e *Error) WithTable(namespace, table string) *Error {
	if namespace != "" {
		return e.With("table", namespace+"."+table)
	}
	return e.With("table", table)
}

// WithSQL adds the offending statement to the error context.
func (e *Error) WithSQL(sql string) *Error {
	return e.With("sql", sql)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return "", false
}

// IsKind reports whether any error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.kind == kind {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// Sentinel returns a bare error of the given kind, usable as an errors.Is target.
func Sentinel(kind Kind) error {
	return &Error{kind: kind}
}
