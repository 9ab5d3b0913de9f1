// Package etcdkv is a reliablestore.Repository backed by an etcd cluster
// via go.etcd.io/etcd/client/v3, grounded on estuary-flow's go/flow/catalog.go
// (NewCatalog(ctx, etcd *clientv3.Client, root string), which likewise
// stores entities under a root prefix and decodes each key's bytes on
// read). Unlike catalog.go's watched, locally-mirrored KeySpace, this
// backend talks to etcd directly per call — appropriate for a reference
// Repository where the transactional adapter layer above already owns
// staging and read-your-writes, and etcd's own watch/mirror machinery
// would be redundant.
//
// Note: this backend stores one entity per etcd key and is a CRUD-level
// Repository only. It does not give ReliableStore distributed two-phase
// commit — combining etcd with a real distributed transaction protocol is
// explicitly out of scope (see the Non-goals carried forward in
// SPEC_FULL.md).
package etcdkv

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/reliablestore/reliablestore"
)

// KeyCodec converts a store's key type to and from the suffix appended to
// root to form an etcd key.
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

// Store is a Repository[K, V] whose entities live under root+"/" in an
// etcd keyspace, JSON-encoded.
type Store[K comparable, V any] struct {
	client *clientv3.Client
	root   string
	keys   KeyCodec[K]
}

// New wraps an already-connected etcd client. root is cleaned to always
// end in exactly one "/".
func New[K comparable, V any](client *clientv3.Client, root string, keys KeyCodec[K]) *Store[K, V] {
	root = strings.TrimRight(root, "/") + "/"
	return &Store[K, V]{client: client, root: root, keys: keys}
}

func (s *Store[K, V]) keyFor(key K) string {
	return s.root + s.keys.Encode(key)
}

func (s *Store[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var out V
	resp, err := s.client.Get(ctx, s.keyFor(key))
	if err != nil {
		return out, false, err
	}
	if len(resp.Kvs) == 0 {
		return out, false, nil
	}
	if err := json.Unmarshal(resp.Kvs[0].Value, &out); err != nil {
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
	resp, err := s.client.Get(ctx, s.root, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	var out []reliablestore.KeyValue[K, V]
	for _, kv := range resp.Kvs {
		var v V
		if err := json.Unmarshal(kv.Value, &v); err != nil {
			return nil, fmt.Errorf("etcdkv: decoding %q: %w", kv.Key, err)
		}
		if predicate != nil && !predicate(v) {
			continue
		}
		suffix := strings.TrimPrefix(string(kv.Key), s.root)
		k, err := s.keys.Decode(suffix)
		if err != nil {
			return nil, err
		}
		out = append(out, reliablestore.KeyValue[K, V]{Key: k, Value: v})
	}
	return out, nil
}

func (s *Store[K, V]) Save(ctx context.Context, key K, value V) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.client.Put(ctx, s.keyFor(key), string(raw))
	return err
}

func (s *Store[K, V]) SaveMany(ctx context.Context, entries []reliablestore.KeyValue[K, V]) error {
	ops := make([]clientv3.Op, 0, len(entries))
	for _, e := range entries {
		raw, err := json.Marshal(e.Value)
		if err != nil {
			return err
		}
		ops = append(ops, clientv3.OpPut(s.keyFor(e.Key), string(raw)))
	}
	_, err := s.client.Txn(ctx).Then(ops...).Commit()
	return err
}

func (s *Store[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	resp, err := s.client.Delete(ctx, s.keyFor(key))
	if err != nil {
		return false, err
	}
	return resp.Deleted > 0, nil
}

func (s *Store[K, V]) Exists(ctx context.Context, key K) (bool, error) {
	resp, err := s.client.Get(ctx, s.keyFor(key), clientv3.WithCountOnly())
	if err != nil {
		return false, err
	}
	return resp.Count > 0, nil
}

var _ reliablestore.Repository[string, any] = (*Store[string, any])(nil)
