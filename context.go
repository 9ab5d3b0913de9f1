package reliablestore

import (
	"context"
	"errors"
)

// ctxKey is an unexported type so this package's context key can never
// collide with another package's.
type ctxKey struct{}

// withTransaction returns a copy of ctx carrying tx as the ambient
// transaction. This is ReliableStore's flow-local slot (§4.2): unlike a
// goroutine-local or global variable, a value attached to a context.Context
// and passed explicitly survives every suspension point (channel receives,
// goroutine handoffs) a caller chooses to thread it through, and can never
// leak into a sibling branch that was not handed the same ctx. See
// SPEC_FULL.md §4.2 for why this is the idiomatic Go instance of the
// documented fallback ("require explicit transaction passing... rather
// than reading a slot").
func withTransaction(ctx context.Context, tx *Transaction) context.Context {
	return context.WithValue(ctx, ctxKey{}, tx)
}

// WithTransaction is the exported form of withTransaction, for callers that
// manage a transaction's lifecycle themselves (outside ExecuteInTransaction)
// and still want to hand it to code that reads the ambient transaction from
// ctx — e.g. tests, or a caller composing several adapters under one
// explicitly-created transaction.
func WithTransaction(ctx context.Context, tx *Transaction) context.Context {
	return withTransaction(ctx, tx)
}

// TransactionFromContext returns the ambient transaction carried by ctx, if
// any. Framework helpers (ExecuteInTransaction, ExecuteWithRetry) are the
// only callers expected to set it; application code should only ever read it.
func TransactionFromContext(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*Transaction)
	return tx, ok
}

// RequireTransactionFromContext returns the ambient transaction or a typed
// NoAmbientTransaction error. Adapter factories call this when asked to
// wrap a repository without an explicit transaction argument (§4.2): "must
// fail loudly if no ambient transaction exists".
func RequireTransactionFromContext(ctx context.Context) (*Transaction, error) {
	tx, ok := TransactionFromContext(ctx)
	if !ok {
		return nil, newError(NoAmbientTransaction, errNoAmbientTransaction)
	}
	return tx, nil
}

var errNoAmbientTransaction = errors.New("reliablestore: no ambient transaction in context; wrap the repository inside ExecuteInTransaction or pass a transaction explicitly")
