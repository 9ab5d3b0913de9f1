package rediskv

import (
	"context"
	"os"
	"testing"
)

// These tests talk to a real Redis instance and are skipped unless
// RELIABLESTORE_REDIS_ADDRESS is set, e.g.:
//
//	RELIABLESTORE_REDIS_ADDRESS=localhost:6379 go test ./backend/rediskv/...
func newTestStore(t *testing.T, prefix string) *Store[string, int] {
	t.Helper()
	addr := os.Getenv("RELIABLESTORE_REDIS_ADDRESS")
	if addr == "" {
		t.Skip("RELIABLESTORE_REDIS_ADDRESS not set, skipping redis integration test")
	}
	s := New[string, int](Options{Address: addr}, prefix, StringKeyCodec())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveGetDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "reliablestore-test:roundtrip:")
	t.Cleanup(func() { s.Delete(ctx, "a") })

	if err := s.Save(ctx, "a", 3); err != nil {
		t.Fatalf("save: %v", err)
	}
	v, ok, err := s.Get(ctx, "a")
	if err != nil || !ok || v != 3 {
		t.Fatalf("got (%d, %v, %v), want (3, true, nil)", v, ok, err)
	}

	existed, err := s.Delete(ctx, "a")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	if ok, _ := s.Exists(ctx, "a"); ok {
		t.Fatal("key should be gone after delete")
	}
}

func TestGetAllScansPrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, "reliablestore-test:scan:")
	t.Cleanup(func() {
		s.Delete(ctx, "a")
		s.Delete(ctx, "b")
	})

	for k, v := range map[string]int{"a": 1, "b": 2} {
		if err := s.Save(ctx, k, v); err != nil {
			t.Fatalf("save %s: %v", k, err)
		}
	}

	entries, err := s.GetAll(ctx, nil)
	if err != nil {
		t.Fatalf("getall: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
}
