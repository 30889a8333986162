package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies persistence-layer rejections.
type ErrorKind string

const (
	KindIntrospectionUnavailable  ErrorKind = "SCHEMA_INTROSPECTION_UNAVAILABLE"
	KindNoIdentifierColumn        ErrorKind = "NO_IDENTIFIER_COLUMN"
	KindMandatoryColumnUnresolved ErrorKind = "MANDATORY_COLUMN_UNRESOLVED"
	KindValueCoercionFailure      ErrorKind = "VALUE_COERCION_FAILURE"
	KindRemoteProcedureBroken     ErrorKind = "REMOTE_PROCEDURE_BROKEN"
	KindNotFound                  ErrorKind = "NOT_FOUND"
)

// Sentinels for errors.Is. Any *Error with the same Kind matches.
var (
	ErrIntrospectionUnavailable  = &Error{Kind: KindIntrospectionUnavailable}
	ErrNoIdentifierColumn        = &Error{Kind: KindNoIdentifierColumn}
	ErrMandatoryColumnUnresolved = &Error{Kind: KindMandatoryColumnUnresolved}
	ErrValueCoercionFailure      = &Error{Kind: KindValueCoercionFailure}
	ErrRemoteProcedureBroken     = &Error{Kind: KindRemoteProcedureBroken}
	ErrNotFound                  = &Error{Kind: KindNotFound}
)

// Error is a typed rejection carrying the offending table, column and
// logical field.
type Error struct {
	Kind   ErrorKind
	Table  string
	Column string
	Field  string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " ")))
	if e.Table != "" {
		fmt.Fprintf(&b, ": table %s", e.Table)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, ", column %s", e.Column)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ", field %s", e.Field)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func newError(kind ErrorKind, table, column, field string, err error) *Error {
	return &Error{Kind: kind, Table: table, Column: column, Field: field, Err: err}
}

var (
	errNoColumns  = errors.New("no resolvable columns")
	errNoMapping  = errors.New("no field mapping for table")
	errNoKeyValue = errors.New("identifier value missing")
)
