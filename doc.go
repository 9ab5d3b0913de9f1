// Package reliablestore implements the core of ReliableStore: a pluggable,
// transactional key-value persistence layer that layers ACID-like semantics
// over heterogeneous, non-transactional storage backends.
//
// Two subsystems carry the weight of the package: the transaction
// coordinator (a two-phase-commit engine with savepoints, timeouts and
// per-resource prepare/commit/rollback, see Transaction) and the
// transactional repository adapter (a per-resource staging layer that turns
// a plain CRUD-shaped Repository into a TransactionalResource, see
// package adapter).
//
// Concrete backends (in-memory, file, embedded B-tree, clustered registry,
// SQL) live under ./backend and only need to honor the Repository[K, V]
// contract; they are not part of this package's correctness guarantees.
package reliablestore

// Timeout model
//
// Every transaction is armed with a single timeout timer on creation. If it
// fires while the transaction is Active or Preparing, the transaction's
// cancellation token is signaled and rollback is scheduled asynchronously.
// Once a transaction reaches Prepared, the timer firing is ignored — commit
// must run to completion. Callers may additionally pass a context with its
// own deadline/cancellation to any operation; it is linked with the
// transaction's internal token so whichever fires first wins.
