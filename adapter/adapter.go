// Package adapter implements the Transactional Repository Adapter (§4.4):
// it wraps a plain, non-transactional reliablestore.Repository[K, V] and
// turns it into a reliablestore.TransactionalResource, staging every write
// in memory and giving callers read-your-writes isolation until commit.
package adapter

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reliablestore/reliablestore"
)

// entry is the adapter's in-memory staged-op record for one key within one
// transaction (§3 "Operation record", §4.4 coalescing rules). It mirrors
// reliablestore.Operation but keeps Original/Proposed typed as *V instead of
// any, since the adapter already knows its concrete value type; Go's lack of
// variance between `any` and a type parameter means the two can't literally
// share a struct, so StagedOperations (below) projects entry into
// reliablestore.Operation for observability instead.
type entry[K comparable, V any] struct {
	kind      reliablestore.OpKind
	key       K
	original  *V
	proposed  *V
	timestamp time.Time
	seq       int64
}

// coalesce applies a new write onto e, preserving the first-observed
// original. It delegates the actual coalescing rules to
// reliablestore.Operation.Coalesce rather than re-implementing them against
// typed pointers, boxing/unboxing through `any` at the edge since Operation
// lives in the untyped root package (see the entry doc comment above).
func (e *entry[K, V]) coalesce(kind reliablestore.OpKind, value *V, now time.Time) {
	op := reliablestore.Operation{Kind: e.kind, Timestamp: e.timestamp}
	if e.original != nil {
		op.Original = *e.original
	}
	if e.proposed != nil {
		op.Proposed = *e.proposed
	}

	var newValue any
	if value != nil {
		newValue = *value
	}
	op.Coalesce(kind, newValue, now)

	e.kind = op.Kind
	e.timestamp = op.Timestamp
	if op.Proposed == nil {
		e.proposed = nil
		return
	}
	v := op.Proposed.(V)
	e.proposed = &v
}

// Clone deep-copies a value of type V for use in a savepoint snapshot. The
// zero value (nil) falls back to a shallow Go value copy, which is only
// safe when V has no mutable nested state (pointers, slices, maps); supply
// a Clone when V is itself a pointer type or contains one — see the §9
// design note on savepoint snapshot copy depth.
type Clone[V any] func(V) V

// Equal compares two backend values for optimistic-validation purposes
// (§4.4 Prepare contract: "reference equality OR value equality"). The
// zero value (nil) falls back to reflect.DeepEqual.
type Equal[V any] func(a, b V) bool

// Config customizes an Adapter's value-copy and value-comparison behavior.
type Config[K comparable, V any] struct {
	Clone Clone[V]
	Equal Equal[V]
}

// Adapter is a reliablestore.TransactionalResource wrapping one
// reliablestore.Repository[K, V]. A single Adapter instance may be shared
// across transactions — all of its staged state is keyed by transaction id
// and guarded by one adapter-wide mutex, per §4.4's concurrency contract.
type Adapter[K comparable, V any] struct {
	resourceID string
	repo       reliablestore.Repository[K, V]
	clone      Clone[V]
	equal      Equal[V]

	mu        sync.Mutex
	staged    map[reliablestore.UUID]map[K]*entry[K, V]
	snapshots map[reliablestore.UUID]map[string]map[K]*entry[K, V]
	seq       atomic.Int64
}

// New wraps repo as a TransactionalResource identified by resourceID.
// resourceID must be unique within any transaction the adapter is enlisted
// into (§4.3).
func New[K comparable, V any](resourceID string, repo reliablestore.Repository[K, V], cfg ...Config[K, V]) *Adapter[K, V] {
	a := &Adapter[K, V]{
		resourceID: resourceID,
		repo:       repo,
		staged:     make(map[reliablestore.UUID]map[K]*entry[K, V]),
		snapshots:  make(map[reliablestore.UUID]map[string]map[K]*entry[K, V]),
	}
	if len(cfg) > 0 {
		a.clone = cfg[0].Clone
		a.equal = cfg[0].Equal
	}
	return a
}

// ResourceID implements reliablestore.TransactionalResource.
func (a *Adapter[K, V]) ResourceID() string { return a.resourceID }

// Enlist enlists a into tx explicitly, for callers that opt out of ambient
// propagation (the Design Notes' documented fallback for languages without
// a flow-local primitive).
func (a *Adapter[K, V]) Enlist(tx *reliablestore.Transaction) error {
	return tx.EnlistResource(a)
}

// EnlistAmbient enlists a into the transaction carried by ctx. It fails
// loudly with a NoAmbientTransaction error if ctx carries no transaction,
// per §4.2: "adapter factory... must fail loudly if no ambient transaction
// exists and the wrapper is requested within that context".
func (a *Adapter[K, V]) EnlistAmbient(ctx context.Context) error {
	tx, err := reliablestore.RequireTransactionFromContext(ctx)
	if err != nil {
		return err
	}
	return a.Enlist(tx)
}

// requireActiveTx resolves the ambient transaction from ctx and checks it
// is still Active; every CRUD entry point requires this.
func requireActiveTx(ctx context.Context) (*reliablestore.Transaction, error) {
	tx, err := reliablestore.RequireTransactionFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if tx.State() != reliablestore.Active {
		return nil, fmt.Errorf("reliablestore/adapter: transaction %s is %s, not Active", tx.ID(), tx.State())
	}
	return tx, nil
}

// opsFor returns (creating if necessary) the staged-op map for txID. Caller
// must hold a.mu.
func (a *Adapter[K, V]) opsFor(txID reliablestore.UUID) map[K]*entry[K, V] {
	ops, ok := a.staged[txID]
	if !ok {
		ops = make(map[K]*entry[K, V])
		a.staged[txID] = ops
	}
	return ops
}

func (a *Adapter[K, V]) copyValue(v V) V {
	if a.clone != nil {
		return a.clone(v)
	}
	return v
}

func (a *Adapter[K, V]) valuesEqual(x, y V) bool {
	if a.equal != nil {
		return a.equal(x, y)
	}
	return reflect.DeepEqual(x, y)
}

// cloneEntry deep-copies e (including its Original/Proposed values) for use
// in a savepoint snapshot (§9: "savepoint snapshots require value-copying
// the staged-op map plus a structural copy of each op's original/proposed").
func (a *Adapter[K, V]) cloneEntry(e *entry[K, V]) *entry[K, V] {
	out := &entry[K, V]{kind: e.kind, key: e.key, timestamp: e.timestamp, seq: e.seq}
	if e.original != nil {
		v := a.copyValue(*e.original)
		out.original = &v
	}
	if e.proposed != nil {
		v := a.copyValue(*e.proposed)
		out.proposed = &v
	}
	return out
}

// Get implements read-your-writes (§4.4): a staged op for (tx, key), if
// any, is returned without touching the backend; otherwise the backend is
// read and the read is itself staged as an OpRead record.
func (a *Adapter[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var zero V
	tx, err := requireActiveTx(ctx)
	if err != nil {
		return zero, false, err
	}

	a.mu.Lock()
	if e, ok := a.opsFor(tx.ID())[key]; ok {
		defer a.mu.Unlock()
		switch e.kind {
		case reliablestore.OpInsert, reliablestore.OpUpdate:
			return a.copyValue(*e.proposed), true, nil
		case reliablestore.OpDelete:
			return zero, false, nil
		default: // OpRead
			if e.original == nil {
				return zero, false, nil
			}
			return a.copyValue(*e.original), true, nil
		}
	}
	a.mu.Unlock()

	value, existed, err := a.repo.Get(ctx, key)
	if err != nil {
		return zero, false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	ops := a.opsFor(tx.ID())
	if _, ok := ops[key]; !ok {
		var origPtr *V
		if existed {
			v := value
			origPtr = &v
		}
		ops[key] = &entry[K, V]{kind: reliablestore.OpRead, key: key, original: origPtr, timestamp: reliablestore.Now(), seq: a.seq.Add(1)}
	}
	return value, existed, nil
}

// GetAll implements the enumeration contract (§4.4): every backend entry is
// read, staged Insert/Update/Delete ops for tx are overlaid on top, and the
// predicate is applied afterward, in memory.
func (a *Adapter[K, V]) GetAll(ctx context.Context, predicate func(V) bool) ([]reliablestore.KeyValue[K, V], error) {
	tx, err := requireActiveTx(ctx)
	if err != nil {
		return nil, err
	}

	backend, err := a.repo.GetAll(ctx, nil)
	if err != nil {
		return nil, err
	}

	merged := make(map[K]V, len(backend))
	for _, kv := range backend {
		merged[kv.Key] = kv.Value
	}

	a.mu.Lock()
	for k, e := range a.opsFor(tx.ID()) {
		switch e.kind {
		case reliablestore.OpInsert, reliablestore.OpUpdate:
			merged[k] = a.copyValue(*e.proposed)
		case reliablestore.OpDelete:
			delete(merged, k)
		}
	}
	a.mu.Unlock()

	out := make([]reliablestore.KeyValue[K, V], 0, len(merged))
	for k, v := range merged {
		if predicate != nil && !predicate(v) {
			continue
		}
		out = append(out, reliablestore.KeyValue[K, V]{Key: k, Value: v})
	}
	return out, nil
}

// Save stages an upsert for (tx, key), coalescing it with any existing
// staged op for that key (§3, §4.4).
func (a *Adapter[K, V]) Save(ctx context.Context, key K, value V) error {
	tx, err := requireActiveTx(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ops := a.opsFor(tx.ID())
	v := a.copyValue(value)
	now := reliablestore.Now()

	if e, ok := ops[key]; ok {
		e.coalesce(reliablestore.OpUpdate, &v, now)
		return nil
	}

	orig, existed, err := a.repo.Get(ctx, key)
	if err != nil {
		return err
	}
	var origPtr *V
	kind := reliablestore.OpInsert
	if existed {
		o := orig
		origPtr = &o
		kind = reliablestore.OpUpdate
	}
	ops[key] = &entry[K, V]{kind: kind, key: key, original: origPtr, proposed: &v, timestamp: now, seq: a.seq.Add(1)}
	return nil
}

// Delete stages a delete for (tx, key), collapsing any existing staged op
// for that key to Delete while preserving its first-observed original.
func (a *Adapter[K, V]) Delete(ctx context.Context, key K) error {
	tx, err := requireActiveTx(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ops := a.opsFor(tx.ID())
	now := reliablestore.Now()

	if e, ok := ops[key]; ok {
		e.coalesce(reliablestore.OpDelete, nil, now)
		return nil
	}

	orig, existed, err := a.repo.Get(ctx, key)
	if err != nil {
		return err
	}
	var origPtr *V
	if existed {
		o := orig
		origPtr = &o
	}
	ops[key] = &entry[K, V]{kind: reliablestore.OpDelete, key: key, original: origPtr, timestamp: now, seq: a.seq.Add(1)}
	return nil
}

// Prepare implements reliablestore.TransactionalResource: every staged op
// for tx is re-validated against current backend state (§4.4 Prepare
// contract).
func (a *Adapter[K, V]) Prepare(ctx context.Context, tx *reliablestore.Transaction) (bool, error) {
	entries := a.snapshotEntries(tx.ID())

	for _, e := range entries {
		switch e.kind {
		case reliablestore.OpRead:
			continue
		case reliablestore.OpInsert:
			existed, err := a.repo.Exists(ctx, e.key)
			if err != nil {
				return false, err
			}
			if existed {
				return false, nil
			}
		case reliablestore.OpUpdate, reliablestore.OpDelete:
			cur, existed, err := a.repo.Get(ctx, e.key)
			if err != nil {
				return false, err
			}
			if e.original == nil {
				// The first observation of this key was "absent" (e.g. a
				// Delete of a key nothing had written yet). That is still
				// consistent as long as the key remains absent now.
				if existed {
					return false, nil
				}
				continue
			}
			if !existed || !a.valuesEqual(cur, *e.original) {
				return false, nil
			}
		}
	}
	return true, nil
}

// Commit implements reliablestore.TransactionalResource: staged ops are
// applied in ascending timestamp order (ties broken by first-touched
// order), then all per-tx state is discarded (§4.4 Commit contract).
func (a *Adapter[K, V]) Commit(ctx context.Context, tx *reliablestore.Transaction) error {
	entries := a.snapshotEntries(tx.ID())

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].timestamp.Equal(entries[j].timestamp) {
			return entries[i].seq < entries[j].seq
		}
		return entries[i].timestamp.Before(entries[j].timestamp)
	})

	for _, e := range entries {
		switch e.kind {
		case reliablestore.OpRead:
		case reliablestore.OpInsert, reliablestore.OpUpdate:
			if err := a.repo.Save(ctx, e.key, *e.proposed); err != nil {
				return err
			}
		case reliablestore.OpDelete:
			if _, err := a.repo.Delete(ctx, e.key); err != nil {
				return err
			}
		}
	}

	a.mu.Lock()
	delete(a.staged, tx.ID())
	delete(a.snapshots, tx.ID())
	a.mu.Unlock()
	return nil
}

// Rollback implements reliablestore.TransactionalResource: discards every
// staged op and savepoint snapshot tied to tx.
func (a *Adapter[K, V]) Rollback(ctx context.Context, tx *reliablestore.Transaction) error {
	a.mu.Lock()
	delete(a.staged, tx.ID())
	delete(a.snapshots, tx.ID())
	a.mu.Unlock()
	return nil
}

// CreateSavepoint implements reliablestore.TransactionalResource: it
// value-copies the current staged-op set for tx into a snapshot keyed by
// (tx.ID(), sp.Name).
func (a *Adapter[K, V]) CreateSavepoint(ctx context.Context, tx *reliablestore.Transaction, sp reliablestore.Savepoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	ops := a.opsFor(tx.ID())
	snap := make(map[K]*entry[K, V], len(ops))
	for k, e := range ops {
		snap[k] = a.cloneEntry(e)
	}

	if a.snapshots[tx.ID()] == nil {
		a.snapshots[tx.ID()] = make(map[string]map[K]*entry[K, V])
	}
	a.snapshots[tx.ID()][sp.Name] = snap
	return nil
}

// RollbackToSavepoint implements reliablestore.TransactionalResource. Per
// the resolved Open Question in §9, a missing snapshot is a no-op here —
// only the coordinator's savepoint registry is authoritative and fatal on
// a miss; this happens for a resource enlisted after the savepoint was
// created.
func (a *Adapter[K, V]) RollbackToSavepoint(ctx context.Context, tx *reliablestore.Transaction, sp reliablestore.Savepoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	txSnaps, ok := a.snapshots[tx.ID()]
	if !ok {
		return nil
	}
	snap, ok := txSnaps[sp.Name]
	if !ok {
		return nil
	}

	replaced := make(map[K]*entry[K, V], len(snap))
	for k, e := range snap {
		replaced[k] = a.cloneEntry(e)
	}
	a.staged[tx.ID()] = replaced
	return nil
}

// DiscardSavepointData implements reliablestore.TransactionalResource. A
// missing snapshot is not an error.
func (a *Adapter[K, V]) DiscardSavepointData(ctx context.Context, tx *reliablestore.Transaction, sp reliablestore.Savepoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if txSnaps, ok := a.snapshots[tx.ID()]; ok {
		delete(txSnaps, sp.Name)
	}
	return nil
}

// snapshotEntries returns a stable slice of tx's staged entries, taken
// under the adapter lock but safe to range over afterward without holding it.
func (a *Adapter[K, V]) snapshotEntries(txID reliablestore.UUID) []*entry[K, V] {
	a.mu.Lock()
	defer a.mu.Unlock()
	ops := a.opsFor(txID)
	out := make([]*entry[K, V], 0, len(ops))
	for _, e := range ops {
		out = append(out, e)
	}
	return out
}

// StagedOperations projects tx's current staged ops into
// reliablestore.Operation values, for observability and tests — it has no
// role in the adapter's own correctness contract.
func (a *Adapter[K, V]) StagedOperations(tx *reliablestore.Transaction) []reliablestore.Operation {
	entries := a.snapshotEntries(tx.ID())
	out := make([]reliablestore.Operation, 0, len(entries))
	for _, e := range entries {
		op := reliablestore.Operation{
			Kind:          e.kind,
			Key:           e.key,
			Timestamp:     e.timestamp,
			TransactionID: tx.ID(),
		}
		if e.original != nil {
			op.Original = *e.original
		}
		if e.proposed != nil {
			op.Proposed = *e.proposed
		}
		out = append(out, op)
	}
	return out
}
