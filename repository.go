package reliablestore

import "context"

// Repository is the minimal, non-transactional CRUD surface the
// transactional repository adapter consumes from any backend (§4.6). It
// deliberately knows nothing about transactions: durability is per
// operation, and the adapter above it is responsible for atomic-appearing
// behavior across multiple Save/Delete calls.
//
// K must be a valid map key (comparable); V is the entity type.
type Repository[K comparable, V any] interface {
	// Get fetches the value for key. It returns ok=false if the key does not exist.
	Get(ctx context.Context, key K) (value V, ok bool, err error)
	// GetMany fetches values for the given keys. Missing keys are simply absent from the result.
	GetMany(ctx context.Context, keys []K) ([]KeyValue[K, V], error)
	// GetAll returns every entity currently stored that matches predicate.
	// A nil predicate matches everything.
	GetAll(ctx context.Context, predicate func(V) bool) ([]KeyValue[K, V], error)
	// Save upserts a single entity.
	Save(ctx context.Context, key K, value V) error
	// SaveMany upserts a batch of entities.
	SaveMany(ctx context.Context, entries []KeyValue[K, V]) error
	// Delete removes key, reporting whether it existed.
	Delete(ctx context.Context, key K) (existed bool, err error)
	// Exists reports whether key currently exists in the backend.
	Exists(ctx context.Context, key K) (bool, error)
}

// KeyValue pairs a key with its value; used for batch Repository operations
// and adapter enumeration results.
type KeyValue[K comparable, V any] struct {
	Key   K
	Value V
}
