package provisioning

import (
	"strings"

	"github.com/geocoder89/labshare/internal/domain/user"
)

// ErrDuplicateEmail is returned when the admin email already belongs to a
// user. It is the same sentinel registration uses.
var ErrDuplicateEmail = user.ErrEmailTaken

type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// ValidationError is returned before any transaction is opened.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return "invalid provisioning request: " + strings.Join(names, ", ")
}

// TransactionError wraps a failure that happened after the transaction was
// opened. State is the last state reached. The transaction has already been
// rolled back; RollbackErr is set if that rollback itself failed.
type TransactionError struct {
	State       State
	Err         error
	RollbackErr error
}

func (e *TransactionError) Error() string {
	return "provisioning failed after " + string(e.State) + ": " + e.Err.Error()
}

func (e *TransactionError) Unwrap() error { return e.Err }
