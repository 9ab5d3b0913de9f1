package reliablestore

import "context"

// TransactionalResource is the contract every participant in a coordinator's
// two-phase commit honors (§4.3). The coordinator never reaches into a
// resource's internal state; each resource owns its own staged operations
// and savepoint snapshots.
type TransactionalResource interface {
	// ResourceID is a stable identifier, unique within one transaction's enlistment set.
	ResourceID() string

	// Prepare validates every staged operation against current backend
	// state and returns false (or an error) if any cannot safely commit.
	Prepare(ctx context.Context, tx *Transaction) (bool, error)

	// Commit applies staged operations to the backend in timestamp order.
	// It may partially apply on error; the coordinator treats that as Failed.
	Commit(ctx context.Context, tx *Transaction) error

	// Rollback discards all in-memory staged operations and savepoint
	// snapshots tied to tx. It must not error except on programmer error.
	Rollback(ctx context.Context, tx *Transaction) error

	// CreateSavepoint snapshots the resource's current staged-op set for tx,
	// keyed by (tx.ID(), sp.Name).
	CreateSavepoint(ctx context.Context, tx *Transaction, sp Savepoint) error

	// RollbackToSavepoint discards the resource's current staged ops for tx
	// and replaces them with the snapshot keyed by (tx.ID(), sp.Name).
	RollbackToSavepoint(ctx context.Context, tx *Transaction, sp Savepoint) error

	// DiscardSavepointData removes the stored snapshot for (tx.ID(), sp.Name).
	// A missing snapshot is not an error.
	DiscardSavepointData(ctx context.Context, tx *Transaction, sp Savepoint) error
}
