package reliablestore

import (
	"errors"
	"fmt"
)

// ErrorCode enumerates the typed failure taxonomy from §7.
type ErrorCode int

const (
	// Unspecified represents an unclassified failure.
	Unspecified ErrorCode = iota
	// InvalidState marks an operation attempted while the transaction is in
	// the wrong state (e.g. commit twice, enlist after commit).
	InvalidState
	// PrepareFailed marks that one or more resources voted not-ready or
	// threw during Phase 1. The transaction ends Failed.
	PrepareFailed
	// CommitFailed marks that one or more resources threw during Phase 2.
	// The transaction ends Failed; backend state may be partially applied.
	CommitFailed
	// RollbackFailed marks that at least one resource's rollback threw.
	RollbackFailed
	// Timeout marks that the transaction's timer fired before commit/rollback completed.
	Timeout
	// Cancelled marks that the caller's cancellation signal fired first.
	Cancelled
	// SavepointMissing marks a rollback to a savepoint not registered for this transaction.
	SavepointMissing
	// SavepointConflict marks creation of a savepoint whose name already exists.
	SavepointConflict
	// WrongTransactionSavepoint marks that a savepoint belongs to a different transaction.
	WrongTransactionSavepoint
	// NoAmbientTransaction marks that an adapter factory was invoked outside an ambient transaction scope.
	NoAmbientTransaction
)

// String renders the error code's conceptual name.
func (c ErrorCode) String() string {
	switch c {
	case InvalidState:
		return "InvalidState"
	case PrepareFailed:
		return "PrepareFailed"
	case CommitFailed:
		return "CommitFailed"
	case RollbackFailed:
		return "RollbackFailed"
	case Timeout:
		return "Timeout"
	case Cancelled:
		return "Cancelled"
	case SavepointMissing:
		return "SavepointMissing"
	case SavepointConflict:
		return "SavepointConflict"
	case WrongTransactionSavepoint:
		return "WrongTransactionSavepoint"
	case NoAmbientTransaction:
		return "NoAmbientTransaction"
	default:
		return "Unspecified"
	}
}

// Error is ReliableStore's typed error. Code classifies the failure kind;
// Err carries the primary underlying cause; Aggregate carries additional
// causes that must never mask Err (e.g. rollback errors collected while
// handling a commit failure).
type Error struct {
	Code      ErrorCode
	Err       error
	Aggregate []error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Aggregate) == 0 {
		return fmt.Sprintf("reliablestore: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("reliablestore: %s: %v (plus %d more)", e.Code, e.Err, len(e.Aggregate))
}

// Unwrap exposes the primary cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError builds a typed Error, preserving aggregate causes if given.
func newError(code ErrorCode, err error, aggregate ...error) *Error {
	return &Error{Code: code, Err: err, Aggregate: aggregate}
}

// CodeOf extracts the ErrorCode of err, if it (or something it wraps) is a *Error.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return Unspecified, false
}

// IsCode reports whether err's typed code equals code.
func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
