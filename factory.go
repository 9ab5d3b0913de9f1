package reliablestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// CreateTransaction builds a new Active transaction per opts. A non-positive
// Timeout is replaced by the default; every other field is used as given, so
// pass DefaultOptions() with the fields you care about overridden to start
// from the documented defaults.
func CreateTransaction(opts Options) *Transaction {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return newTransaction(opts)
}

// ExecuteInTransaction creates a transaction, runs action with it set as the
// ambient transaction for the duration of the call, commits on normal
// return, and rolls back on any error or panic re-raised by action. The
// previous ambient transaction (if any) is always restored before returning
// (§4.5).
func ExecuteInTransaction(ctx context.Context, action func(ctx context.Context, tx *Transaction) error, opts ...Options) (err error) {
	o := DefaultOptions()
	if len(opts) > 0 {
		o = opts[0]
	}

	tx := CreateTransaction(o)
	defer tx.Dispose()

	txCtx := withTransaction(ctx, tx)

	actionErr := runAction(txCtx, tx, action)

	if actionErr != nil {
		if rerr := tx.Rollback(ctx); rerr != nil {
			return newError(Unspecified, actionErr, rerr)
		}
		return actionErr
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	return nil
}

// runAction invokes action, converting a re-raised panic into an error so
// ExecuteInTransaction can still roll back and propagate it, mirroring how
// a checked exception would unwind through the coordinator in other
// runtimes.
func runAction(ctx context.Context, tx *Transaction, action func(context.Context, *Transaction) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in transaction action: %v", r)
		}
	}()
	return action(ctx, tx)
}

// RetryPredicate decides whether an error returned by ExecuteInTransaction
// is worth retrying. The default (DefaultRetryPredicate) retries Timeout
// and Cancelled-during-delay, and deliberately excludes PrepareFailed and
// CommitFailed — they indicate a deterministic conflict or backend fault,
// not a transient one (§7, §9 "Retry storms").
type RetryPredicate func(error) bool

// DefaultRetryPredicate implements the predicate from §7.
func DefaultRetryPredicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	code, ok := CodeOf(err)
	if !ok {
		return false
	}
	switch code {
	case Timeout, Cancelled:
		return true
	default:
		return false
	}
}

// ExecuteWithRetry wraps ExecuteInTransaction in a retry loop (§4.5). On
// each retry it sleeps baseDelay*2^(attempt-1) before trying again.
// Cancellation from the caller-supplied ctx is never retried, even if the
// predicate would otherwise allow it. The last error is returned once
// retries are exhausted.
func ExecuteWithRetry(ctx context.Context, action func(ctx context.Context, tx *Transaction) error, maxRetries int, baseDelay time.Duration, opts ...Options) error {
	return ExecuteWithRetryPredicate(ctx, action, maxRetries, baseDelay, DefaultRetryPredicate, opts...)
}

// ExecuteWithRetryPredicate is ExecuteWithRetry with a caller-supplied
// RetryPredicate, for callers that need a custom retry policy (§7: "Callers
// may customize the predicate").
func ExecuteWithRetryPredicate(ctx context.Context, action func(ctx context.Context, tx *Transaction) error, maxRetries int, baseDelay time.Duration, shouldRetry RetryPredicate, opts ...Options) error {
	if baseDelay <= 0 {
		baseDelay = 10 * time.Millisecond
	}
	backoff, err := retry.NewExponential(baseDelay)
	if err != nil {
		return err
	}
	backoff = retry.WithMaxRetries(uint64(maxRetries), backoff)

	var lastErr error
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		lastErr = ExecuteInTransaction(ctx, action, opts...)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			// Outer cancellation is never retried (§4.5).
			return lastErr
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
		return retry.RetryableError(lastErr)
	})
	if err != nil {
		return lastErr
	}
	return nil
}

// SavepointScope is the handle returned by CreateSavepointScope (§4.5).
type SavepointScope struct {
	tx        *Transaction
	sp        Savepoint
	committed bool
	closed    bool
}

// CreateSavepointScope creates a savepoint inside tx and returns a scope
// handle. Call Commit() when the scoped work succeeded; call Close() in a
// defer regardless — if the scope was never committed, Close rolls back to
// the savepoint, otherwise Close is a no-op (the savepoint's lifecycle just
// continues normally).
func CreateSavepointScope(ctx context.Context, tx *Transaction, name string) (*SavepointScope, error) {
	sp, err := tx.CreateSavepoint(ctx, name)
	if err != nil {
		return nil, err
	}
	return &SavepointScope{tx: tx, sp: sp}, nil
}

// Commit marks the scope as having completed successfully: Close will not
// roll back to the savepoint.
func (s *SavepointScope) Commit() {
	s.committed = true
}

// Savepoint returns the savepoint this scope was created for.
func (s *SavepointScope) Savepoint() Savepoint {
	return s.sp
}

// Close rolls back to the scope's savepoint unless Commit was called first.
// This helper does not itself recover panics from user code; a deferred
// Close still runs while a panic unwinds and, since Commit was not reached,
// rolls back to the savepoint.
func (s *SavepointScope) Close(ctx context.Context) error {
	if s.closed || s.committed {
		s.closed = true
		return nil
	}
	s.closed = true
	return s.tx.RollbackToSavepoint(ctx, s.sp)
}
