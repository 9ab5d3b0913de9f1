// Package lrucache is a read-through LRU decorator for a
// reliablestore.Repository, grounded on estuary-flow's network frontend
// (sniCache, built with lru.New[parsedSNI, resolvedSNI](1024) from
// github.com/hashicorp/golang-lru/v2). It is NOT itself a
// TransactionalResource — see SPEC_FULL.md §6: a cache sitting in front of
// a backend must invalidate eagerly on every write or it would silently
// serve stale reads after a commit, defeating the whole point of wrapping
// it behind the transactional adapter.
package lrucache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/reliablestore/reliablestore"
)

// Store decorates a reliablestore.Repository[K, V] with an LRU read cache.
// Every Save/Delete invalidates the affected key immediately, so a
// transactional adapter built on top of Store never observes a cache entry
// older than the last commit.
type Store[K comparable, V any] struct {
	backend reliablestore.Repository[K, V]
	cache   *lru.Cache[K, V]
}

// New wraps backend with an LRU cache holding up to size entries.
func New[K comparable, V any](backend reliablestore.Repository[K, V], size int) (*Store[K, V], error) {
	c, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	return &Store[K, V]{backend: backend, cache: c}, nil
}

func (s *Store[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	if v, ok := s.cache.Get(key); ok {
		return v, true, nil
	}
	v, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return v, false, err
	}
	if ok {
		s.cache.Add(key, v)
	}
	return v, ok, nil
}

func (s *Store[K, V]) GetMany(ctx context.Context, keys []K) ([]reliablestore.KeyValue[K, V], error) {
	out := make([]reliablestore.KeyValue[K, V], 0, len(keys))
	for _, k := range keys {
		v, ok, err := s.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, reliablestore.KeyValue[K, V]{Key: k, Value: v})
		}
	}
	return out, nil
}

// GetAll always bypasses the cache — the predicate ranges over backend
// truth, not over whatever subset happens to be cached.
func (s *Store[K, V]) GetAll(ctx context.Context, predicate func(V) bool) ([]reliablestore.KeyValue[K, V], error) {
	return s.backend.GetAll(ctx, predicate)
}

func (s *Store[K, V]) Save(ctx context.Context, key K, value V) error {
	if err := s.backend.Save(ctx, key, value); err != nil {
		return err
	}
	s.cache.Remove(key)
	return nil
}

func (s *Store[K, V]) SaveMany(ctx context.Context, entries []reliablestore.KeyValue[K, V]) error {
	if err := s.backend.SaveMany(ctx, entries); err != nil {
		return err
	}
	for _, e := range entries {
		s.cache.Remove(e.Key)
	}
	return nil
}

func (s *Store[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	existed, err := s.backend.Delete(ctx, key)
	if err != nil {
		return false, err
	}
	s.cache.Remove(key)
	return existed, nil
}

func (s *Store[K, V]) Exists(ctx context.Context, key K) (bool, error) {
	if s.cache.Contains(key) {
		return true, nil
	}
	return s.backend.Exists(ctx, key)
}

var _ reliablestore.Repository[string, any] = (*Store[string, any])(nil)
