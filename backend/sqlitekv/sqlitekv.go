// Package sqlitekv is a reliablestore.Repository backed by a single SQLite
// table, grounded on estuary-flow's catalog.LoadFromSQLite (sql.Open("sqlite3",
// path) against github.com/mattn/go-sqlite3's registration side-effect
// import). Values are stored as JSON blobs; keys are stored as TEXT produced
// by a caller-supplied string codec, since database/sql has no notion of a
// generic key type.
package sqlitekv

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver

	"github.com/reliablestore/reliablestore"
)

// KeyCodec converts a store's key type to and from the TEXT primary key
// column this backend uses.
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

// Store is a Repository[K, V] persisted in one SQLite table
// (key TEXT PRIMARY KEY, value BLOB), values JSON-encoded.
type Store[K comparable, V any] struct {
	db    *sql.DB
	table string
	keys  KeyCodec[K]
}

// Open opens (creating the table if necessary) a SQLite-backed Store at path.
func Open[K comparable, V any](path, table string, keys KeyCodec[K]) (*Store[K, V], error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitekv: opening %s: %w", path, err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value BLOB NOT NULL)`, table)
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitekv: creating table %s: %w", table, err)
	}
	return &Store[K, V]{db: db, table: table, keys: keys}, nil
}

// Close closes the underlying database handle.
func (s *Store[K, V]) Close() error { return s.db.Close() }

func (s *Store[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	var out V
	var raw []byte
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT value FROM %s WHERE key = ?", s.table), s.keys.Encode(key))
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
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
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT key, value FROM %s", s.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reliablestore.KeyValue[K, V]
	for rows.Next() {
		var rawKey string
		var rawVal []byte
		if err := rows.Scan(&rawKey, &rawVal); err != nil {
			return nil, err
		}
		var v V
		if err := json.Unmarshal(rawVal, &v); err != nil {
			return nil, err
		}
		if predicate != nil && !predicate(v) {
			continue
		}
		k, err := s.keys.Decode(rawKey)
		if err != nil {
			return nil, err
		}
		out = append(out, reliablestore.KeyValue[K, V]{Key: k, Value: v})
	}
	return out, rows.Err()
}

func (s *Store[K, V]) Save(ctx context.Context, key K, value V) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", s.table),
		s.keys.Encode(key), raw)
	return err
}

func (s *Store[K, V]) SaveMany(ctx context.Context, entries []reliablestore.KeyValue[K, V]) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("INSERT INTO %s (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", s.table)
	for _, e := range entries {
		raw, err := json.Marshal(e.Value)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt, s.keys.Encode(e.Key), raw); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *Store[K, V]) Delete(ctx context.Context, key K) (bool, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE key = ?", s.table), s.keys.Encode(key))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store[K, V]) Exists(ctx context.Context, key K) (bool, error) {
	var one int
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE key = ?", s.table), s.keys.Encode(key))
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

var _ reliablestore.Repository[string, any] = (*Store[string, any])(nil)
