package store

import (
	"context"
	"errors"
	"testing"

	"github.com/relevar/relevar/internal/domain"
)

func memItem(id, scope string) *domain.Item {
	return &domain.Item{
		ID:          id,
		Content:     "content of " + id,
		Embedding:   []float32{1, 2, 3},
		Metadata:    map[string]string{"k": "v"},
		TenantScope: scope,
		Version:     1,
	}
}

func TestMemory_PutGetRoundtrip(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	if err := s.Put(ctx, memItem("it-1", "acme")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := s.Get(ctx, "it-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Content != "content of it-1" || got.TenantScope != "acme" {
		t.Fatalf("unexpected item: %+v", got)
	}
}

func TestMemory_GetClonesStoredItem(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	if err := s.Put(ctx, memItem("it-1", "acme")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, _ := s.Get(ctx, "it-1")
	first.Metadata["k"] = "mutated"
	first.Embedding[0] = 99

	second, _ := s.Get(ctx, "it-1")
	if second.Metadata["k"] != "v" || second.Embedding[0] != 1 {
		t.Fatal("mutation through a returned item leaked into the store")
	}
}

func TestMemory_GetMissing(t *testing.T) {
	s := NewMemory()
	if _, err := s.Get(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_DeleteMissing(t *testing.T) {
	s := NewMemory()
	if err := s.Delete(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_GetMultiKeepsSlotOrder(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_ = s.Put(ctx, memItem("a", "acme"))
	_ = s.Put(ctx, memItem("c", "acme"))

	items, err := s.GetMulti(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items[0] == nil || items[0].ID != "a" {
		t.Fatalf("slot 0 wrong: %+v", items[0])
	}
	if items[1] != nil {
		t.Fatalf("missing id should yield nil slot, got %+v", items[1])
	}
	if items[2] == nil || items[2].ID != "c" {
		t.Fatalf("slot 2 wrong: %+v", items[2])
	}
}

func TestMemory_ScanFiltersByScope(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_ = s.Put(ctx, memItem("a-1", "acme"))
	_ = s.Put(ctx, memItem("a-2", "acme"))
	_ = s.Put(ctx, memItem("g-1", "globex"))

	var seen []string
	err := s.Scan(ctx, "acme", func(it *domain.Item) error {
		seen = append(seen, it.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 acme items, got %v", seen)
	}

	var all []string
	_ = s.Scan(ctx, "", func(it *domain.Item) error {
		all = append(all, it.ID)
		return nil
	})
	if len(all) != 3 {
		t.Fatalf("expected 3 items in full scan, got %v", all)
	}
}

func TestMemory_ScanStopsOnCallbackError(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	_ = s.Put(ctx, memItem("a-1", "acme"))
	_ = s.Put(ctx, memItem("a-2", "acme"))

	boom := errors.New("boom")
	calls := 0
	err := s.Scan(ctx, "", func(*domain.Item) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected scan to stop after first error, got %d calls", calls)
	}
}

func TestMemory_PutAfterClose(t *testing.T) {
	s := NewMemory()
	_ = s.Close()
	err := s.Put(context.Background(), memItem("it-1", "acme"))
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
