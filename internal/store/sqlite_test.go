package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/relevar/relevar/internal/domain"
)

func newSQLiteForTest(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "items.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_PutGetRoundtrip(t *testing.T) {
	s := newSQLiteForTest(t)
	ctx := context.Background()

	in := &domain.Item{
		ID:          "it-1",
		Content:     "Converts currency amounts",
		Embedding:   []float32{0.5, -1},
		Metadata:    map[string]string{"category": "finance"},
		Tags:        []string{"finance"},
		TenantScope: "acme",
		Version:     2,
	}
	if err := s.Put(ctx, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get(ctx, "it-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Content != in.Content || got.TenantScope != "acme" || got.Version != 2 {
		t.Fatalf("unexpected item: %+v", got)
	}
	if len(got.Embedding) != 2 || got.Embedding[0] != 0.5 {
		t.Fatalf("vector not restored: %v", got.Embedding)
	}
}

func TestSQLite_PutReplacesExisting(t *testing.T) {
	s := newSQLiteForTest(t)
	ctx := context.Background()

	_ = s.Put(ctx, &domain.Item{ID: "it-1", Content: "v1", TenantScope: "acme", Version: 1})
	if err := s.Put(ctx, &domain.Item{ID: "it-1", Content: "v2", TenantScope: "acme", Version: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Get(ctx, "it-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Content != "v2" || got.Version != 2 {
		t.Fatalf("expected replacement, got %+v", got)
	}
}

func TestSQLite_GetMissing(t *testing.T) {
	s := newSQLiteForTest(t)
	if _, err := s.Get(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLite_DeleteMissing(t *testing.T) {
	s := newSQLiteForTest(t)
	if err := s.Delete(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLite_GetMultiKeepsSlotOrder(t *testing.T) {
	s := newSQLiteForTest(t)
	ctx := context.Background()
	_ = s.Put(ctx, &domain.Item{ID: "a", Content: "a content", TenantScope: "acme", Version: 1})
	_ = s.Put(ctx, &domain.Item{ID: "c", Content: "c content", TenantScope: "acme", Version: 1})

	items, err := s.GetMulti(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items[0] == nil || items[0].Content != "a content" {
		t.Fatalf("slot 0 wrong: %+v", items[0])
	}
	if items[1] != nil {
		t.Fatalf("missing id should yield nil slot, got %+v", items[1])
	}
	if items[2] == nil || items[2].ID != "c" {
		t.Fatalf("slot 2 wrong: %+v", items[2])
	}
}

func TestSQLite_ScanFiltersByScope(t *testing.T) {
	s := newSQLiteForTest(t)
	ctx := context.Background()
	_ = s.Put(ctx, &domain.Item{ID: "a-1", Content: "x", TenantScope: "acme", Version: 1})
	_ = s.Put(ctx, &domain.Item{ID: "g-1", Content: "y", TenantScope: "globex", Version: 1})

	var seen []string
	err := s.Scan(ctx, "acme", func(it *domain.Item) error {
		seen = append(seen, it.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 1 || seen[0] != "a-1" {
		t.Fatalf("unexpected scoped scan: %v", seen)
	}

	count := 0
	_ = s.Scan(ctx, "", func(*domain.Item) error {
		count++
		return nil
	})
	if count != 2 {
		t.Fatalf("expected 2 items in full scan, got %d", count)
	}
}
