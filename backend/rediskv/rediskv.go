// Package rediskv is a reliablestore.Repository backed by Redis via
// github.com/redis/go-redis/v9, grounded on the teacher's cache.Connection
// (cache/redis.go: redis.NewClient(&redis.Options{Addr, Password, DB}),
// SetStruct/GetStruct via encoding/json). Entities are stored as JSON
// strings under a key prefix; GetAll uses a SCAN cursor rather than KEYS,
// matching production Redis guidance the teacher's own Cache interface
// does not need to restate but that a reference implementation should
// still honor.
package rediskv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/reliablestore/reliablestore"
)

// Options configures the underlying Redis client, mirroring the teacher's
// cache.Options shape.
type Options struct {
	Address  string
	Password string
	DB       int
}

// DefaultOptions targets a local Redis instance on the default port.
func DefaultOptions() Options {
	return Options{Address: "localhost:6379"}
}

// KeyCodec converts a store's key type to and from the string suffix
// appended to the key prefix.
type KeyCodec[K comparable] struct {
	Encode func(K) string
	Decode func(string) (K, error)
}

// StringKeyCodec is the KeyCodec for K = string.
func StringKeyCodec() KeyCodec[string] {
	return KeyCodec[string]{
		Encode: func(k string) string { return k },
		Decode: func(s string) (string, error) { return s, nil },
	}
}

// Store is a Repository[K, V] persisted in Redis, one string key per entity.
type Store[K comparable, V any] struct {
	client *redis.Client
	prefix string
	keys   KeyCodec[K]
}

// New builds a Store using opts to connect to Redis. prefix namespaces
// every key this store touches (e.g. "orders:").
func New[K comparable, V any](opts Options, prefix string, keys KeyCodec[K]) *Store[K, V] {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Store[K, V]{client: client, prefix: prefix, keys: keys}
}

// Close closes the underlying Redis client.
func (s *Store[K, V]) Close() error { return s.client.Close() }

func (s *Store[K, V]) keyFor(key K) string {
	return s.prefix + s.keys.Encode(key)
}

func (s *Store[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var out V
	raw, err := s.client.Get(ctx, s.keyFor(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return out, false, nil
		}
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, err
	}
	return out, true, nil
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

func (s *Store[K, V]) GetAll(ctx context.Context, predicate func(V) bool) ([]reliablestore.KeyValue[K, V], error) {
	var out []reliablestore.KeyValue[K, V]
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, err
		}
		var v V
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("rediskv: decoding %q: %w", iter.Val(), err)
		}
		if predicate != nil && !predicate(v) {
			continue
		}
		suffix := iter.Val()[len(s.prefix):]
		k, err := s.keys.Decode(suffix)
		if err != nil {
			return nil, err
		}
		out = append(out, reliablestore.KeyValue[K, V]{Key: k, Value: v})
	}
	return out, iter.Err()
}

func (s *Store[K, V]) Save(ctx context.Context, key K, value V) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.keyFor(key), raw, 0).Err()
}

func (s *Store[K, V]) SaveMany(ctx context.Context, entries []reliablestore.KeyValue[K, V]) error {
	pipe := s.client.Pipeline()
	for _, e := range entries {
		raw, err := json.Marshal(e.Value)
		if err != nil {
			return err
		}
		pipe.Set(ctx, s.keyFor(e.Key), raw, 0)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	n, err := s.client.Del(ctx, s.keyFor(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store[K, V]) Exists(ctx context.Context, key K) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyFor(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ reliablestore.Repository[string, any] = (*Store[string, any])(nil)
