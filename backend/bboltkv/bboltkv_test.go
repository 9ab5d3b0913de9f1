package bboltkv

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSaveGetDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")

	s, err := Open[string, int](path, "items", StringKeyCodec(), JSONValueCodec[int]())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.Save(ctx, "a", 7); err != nil {
		t.Fatalf("save: %v", err)
	}
	v, ok, err := s.Get(ctx, "a")
	if err != nil || !ok || v != 7 {
		t.Fatalf("got (%d, %v, %v), want (7, true, nil)", v, ok, err)
	}

	existed, err := s.Delete(ctx, "a")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	if ok, _ := s.Exists(ctx, "a"); ok {
		t.Fatal("key should be gone after delete")
	}
}

func TestGetAllDecodesEveryEntry(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := Open[string, int](path, "items", StringKeyCodec(), JSONValueCodec[int]())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

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
