// Package pgerr turns Postgres driver errors into a small, switchable
// classification so callers never match on raw message text.
package pgerr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

type Kind int

const (
	KindOther Kind = iota
	KindUnknownColumn
	KindDuplicateKey
	KindForeignKey
)

func (k Kind) String() string {
	switch k {
	case KindUnknownColumn:
		return "unknown_column"
	case KindDuplicateKey:
		return "duplicate_key"
	case KindForeignKey:
		return "foreign_key"
	default:
		return "other"
	}
}

// SQLSTATE codes we branch on.
const (
	CodeUndefinedColumn     = "42703"
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
)

type Error struct {
	Kind       Kind
	Code       string
	Table      string
	Column     string
	Constraint string
	Err        error
}

func (e *Error) Error() string {
	if e.Code == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("postgres %s (%s): %v", e.Kind, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify never returns nil for a non-nil err. Errors that did not come from
// Postgres are KindOther with an empty Code.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return &Error{Kind: KindOther, Err: err}
	}

	out := &Error{
		Kind:       KindOther,
		Code:       pgErr.Code,
		Table:      pgErr.TableName,
		Column:     pgErr.ColumnName,
		Constraint: pgErr.ConstraintName,
		Err:        err,
	}

	switch pgErr.Code {
	case CodeUndefinedColumn:
		out.Kind = KindUnknownColumn
		if out.Column == "" {
			// postgres leaves ColumnName empty for 42703; the name is quoted in the message
			out.Column = firstQuoted(pgErr.Message)
		}
	case CodeUniqueViolation:
		out.Kind = KindDuplicateKey
	case CodeForeignKeyViolation:
		out.Kind = KindForeignKey
	}

	return out
}

// IsUnknownColumn reports whether err was raised because column does not exist.
func IsUnknownColumn(err error, column string) bool {
	e := Classify(err)
	return e != nil && e.Kind == KindUnknownColumn && strings.EqualFold(e.Column, column)
}

func IsDuplicateKey(err error) bool {
	e := Classify(err)
	return e != nil && e.Kind == KindDuplicateKey
}

func firstQuoted(msg string) string {
	start := strings.IndexByte(msg, '"')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(msg[start+1:], '"')
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
