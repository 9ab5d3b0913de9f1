// Package memory is a reliablestore.Repository backed by a plain Go map
// guarded by a mutex, grounded on the teacher's in-memory store idiom
// (in_memory's store/transaction-manager pair, which likewise keeps
// everything in process memory with no external dependency). It is the
// cheapest backend to enlist behind adapter.Adapter for tests and demos.
package memory

import (
	"context"
	"sync"

	"github.com/reliablestore/reliablestore"
)

// Store is a Repository[K, V] holding its data in a plain map.
type Store[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

// New returns an empty Store.
func New[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{data: make(map[K]V)}
}

func (s *Store[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *Store[K, V]) GetMany(ctx context.Context, keys []K) ([]reliablestore.KeyValue[K, V], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]reliablestore.KeyValue[K, V], 0, len(keys))
	for _, k := range keys {
		if v, ok := s.data[k]; ok {
			out = append(out, reliablestore.KeyValue[K, V]{Key: k, Value: v})
		}
	}
	return out, nil
}

func (s *Store[K, V]) GetAll(ctx context.Context, predicate func(V) bool) ([]reliablestore.KeyValue[K, V], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]reliablestore.KeyValue[K, V], 0, len(s.data))
	for k, v := range s.data {
		if predicate != nil && !predicate(v) {
			continue
		}
		out = append(out, reliablestore.KeyValue[K, V]{Key: k, Value: v})
	}
	return out, nil
}

func (s *Store[K, V]) Save(ctx context.Context, key K, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *Store[K, V]) SaveMany(ctx context.Context, entries []reliablestore.KeyValue[K, V]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.data[e.Key] = e.Value
	}
	return nil
}

func (s *Store[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.data[key]
	delete(s.data, key)
	return existed, nil
}

func (s *Store[K, V]) Exists(ctx context.Context, key K) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

var _ reliablestore.Repository[string, any] = (*Store[string, any])(nil)
