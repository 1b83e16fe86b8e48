package checkpoint

import (
	"context"
	"testing"
)

// exerciseStore runs the Store contract against s.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Load(ctx, "enwiki"); err != nil || ok {
		t.Fatalf("Load() on empty store = ok %v, err %v; want no checkpoint", ok, err)
	}

	for _, save := range []struct{ key, cursor string }{
		{"enwiki", "Foo"},
		{"enwiki", "Bar"},
		{"dewiki", "Baz"},
	} {
		if err := s.Save(ctx, save.key, save.cursor); err != nil {
			t.Fatalf("Save(%q, %q) error: %v", save.key, save.cursor, err)
		}
	}

	// Latest save wins.
	cursor, ok, err := s.Load(ctx, "enwiki")
	if err != nil || !ok || cursor != "Bar" {
		t.Errorf("Load(enwiki) = %q, %v, %v; want Bar", cursor, ok, err)
	}

	// Keys are independent.
	cursor, ok, err = s.Load(ctx, "dewiki")
	if err != nil || !ok || cursor != "Baz" {
		t.Errorf("Load(dewiki) = %q, %v, %v; want Baz", cursor, ok, err)
	}

	if err := s.Delete(ctx, "enwiki"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, ok, err := s.Load(ctx, "enwiki"); err != nil || ok {
		t.Errorf("Load() after Delete = ok %v, err %v; want no checkpoint", ok, err)
	}

	if err := s.Delete(ctx, "never-saved"); err != nil {
		t.Errorf("Delete() of a missing key error: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_EmptyCursor(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Save(ctx, "k", ""); err != nil {
		t.Fatal(err)
	}
	cursor, ok, err := s.Load(ctx, "k")
	if err != nil || !ok || cursor != "" {
		t.Errorf("Load() = %q, %v, %v; want empty cursor present", cursor, ok, err)
	}
}

func TestNop(t *testing.T) {
	var s Store = Nop{}
	ctx := context.Background()

	if err := s.Save(ctx, "k", "cursor"); err != nil {
		t.Errorf("Save() error: %v", err)
	}
	if _, ok, err := s.Load(ctx, "k"); err != nil || ok {
		t.Errorf("Load() = ok %v, err %v; want nothing", ok, err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete() error: %v", err)
	}
}

func TestKey(t *testing.T) {
	if got := Key("enwiki"); got != "wikipurge:checkpoint:enwiki" {
		t.Errorf("Key() = %q", got)
	}
}
