package dbaccess

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by every Gateway operation when the gateway
// has no pool. It signals a wiring mistake, not a data error.
var ErrNotInitialized = errors.New("dbaccess: pool not initialized, open a pool and pass it to dbaccess.New first")

// Error kinds. Match them with errors.Is against an *Error.
var (
	ErrAcquisitionFailed = errors.New("dbaccess: connection acquisition failed")
	ErrBeginFailed       = errors.New("dbaccess: begin transaction failed")
	ErrStatementFailed   = errors.New("dbaccess: statement failed")
	ErrCommitFailed      = errors.New("dbaccess: commit failed")
)

// Op names the step of an execution that failed.
type Op string

const (
	OpAcquire   Op = "acquire"
	OpBegin     Op = "begin"
	OpStatement Op = "statement"
	OpCommit    Op = "commit"
)

// Error describes a failed Execute or Transaction call.
//
// Err is always the error that triggered the failure. When the failure
// happened inside a transaction and the compensating rollback also failed,
// the rollback error is kept in RollbackErr; it is not part of the Unwrap
// chain so errors.Is and errors.As only ever see the triggering error.
type Error struct {
	Op Op
	// Index is the position of the failing statement for OpStatement, -1
	// otherwise.
	Index int
	// Query is the failing statement text for OpStatement.
	Query       string
	Err         error
	RollbackErr error
}

func (e *Error) Error() string {
	if e.Op == OpStatement {
		return fmt.Sprintf("dbaccess: statement %d (%s): %v", e.Index, truncate(e.Query, 80), e.Err)
	}
	return fmt.Sprintf("dbaccess: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's Op.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrAcquisitionFailed:
		return e.Op == OpAcquire
	case ErrBeginFailed:
		return e.Op == OpBegin
	case ErrStatementFailed:
		return e.Op == OpStatement
	case ErrCommitFailed:
		return e.Op == OpCommit
	}
	return false
}

// QuotaError is returned when a gateway slot limit is exceeded.
type QuotaError struct {
	Dimension string
	Limit     int
	Current   int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("DB_BUSY: quota exceeded for %s (limit=%d, current=%d)", e.Dimension, e.Limit, e.Current)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
