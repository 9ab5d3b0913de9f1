// Package bboltkv is a reliablestore.Repository backed by an embedded
// go.etcd.io/bbolt database — a single-file, memory-mapped B+tree the
// teacher's own in-process stores (in_memory's B-tree, fs's hashmap index)
// are conceptually kin to, but here provided by a real embedded-KV
// dependency instead of hand-rolled node/page management.
package bboltkv

import (
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/reliablestore/reliablestore"
)

// KeyCodec converts a store's key type to and from the byte slices bbolt
// uses as keys. Generic code cannot assume K is already a []byte or string,
// so callers must supply this.
type KeyCodec[K comparable] struct {
	Encode func(K) []byte
	Decode func([]byte) (K, error)
}

// ValueCodec converts a store's value type to and from the byte slices
// bbolt stores. Open requires both functions; JSONValueCodec builds a
// JSON-based one.
type ValueCodec[V any] struct {
	Encode func(V) ([]byte, error)
	Decode func([]byte) (V, error)
}

// Store is a Repository[K, V] persisted in one bbolt bucket.
type Store[K comparable, V any] struct {
	db     *bolt.DB
	bucket []byte
	keys   KeyCodec[K]
	values ValueCodec[V]
}

// Open opens (creating if necessary) a bbolt database at path and ensures
// bucket exists. keys must be supplied; a nil values codec is rejected —
// use JSONValueCodec for the common case.
func Open[K comparable, V any](path string, bucket string, keys KeyCodec[K], values ValueCodec[V]) (*Store[K, V], error) {
	if keys.Encode == nil || keys.Decode == nil {
		return nil, fmt.Errorf("bboltkv: KeyCodec.Encode and Decode are required")
	}
	if values.Encode == nil || values.Decode == nil {
		return nil, fmt.Errorf("bboltkv: ValueCodec.Encode and Decode are required")
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	name := []byte(bucket)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(name)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Store[K, V]{db: db, bucket: name, keys: keys, values: values}, nil
}

// Close closes the underlying bbolt database.
func (s *Store[K, V]) Close() error { return s.db.Close() }

func (s *Store[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var out V
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(s.bucket).Get(s.keys.Encode(key))
		if raw == nil {
			return nil
		}
		v, err := s.values.Decode(raw)
		if err != nil {
			return err
		}
		out, found = v, true
		return nil
	})
	return out, found, err
}

func (s *Store[K, V]) GetMany(ctx context.Context, keys []K) ([]reliablestore.KeyValue[K, V], error) {
	out := make([]reliablestore.KeyValue[K, V], 0, len(keys))
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for _, k := range keys {
			raw := b.Get(s.keys.Encode(k))
			if raw == nil {
				continue
			}
			v, err := s.values.Decode(raw)
			if err != nil {
				return err
			}
			out = append(out, reliablestore.KeyValue[K, V]{Key: k, Value: v})
		}
		return nil
	})
	return out, err
}

func (s *Store[K, V]) GetAll(ctx context.Context, predicate func(V) bool) ([]reliablestore.KeyValue[K, V], error) {
	var out []reliablestore.KeyValue[K, V]
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(rawKey, rawVal []byte) error {
			v, err := s.values.Decode(rawVal)
			if err != nil {
				return err
			}
			if predicate != nil && !predicate(v) {
				return nil
			}
			k, err := s.keys.Decode(rawKey)
			if err != nil {
				return err
			}
			out = append(out, reliablestore.KeyValue[K, V]{Key: k, Value: v})
			return nil
		})
	})
	return out, err
}

func (s *Store[K, V]) Save(ctx context.Context, key K, value V) error {
	raw, err := s.values.Encode(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put(s.keys.Encode(key), raw)
	})
}

func (s *Store[K, V]) SaveMany(ctx context.Context, entries []reliablestore.KeyValue[K, V]) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for _, e := range entries {
			raw, err := s.values.Encode(e.Value)
			if err != nil {
				return err
			}
			if err := b.Put(s.keys.Encode(e.Key), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	var existed bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		k := s.keys.Encode(key)
		existed = b.Get(k) != nil
		if !existed {
			return nil
		}
		return b.Delete(k)
	})
	return existed, err
}

func (s *Store[K, V]) Exists(ctx context.Context, key K) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(s.bucket).Get(s.keys.Encode(key)) != nil
		return nil
	})
	return ok, err
}

var _ reliablestore.Repository[string, any] = (*Store[string, any])(nil)
