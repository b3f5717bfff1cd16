package store

import (
	"context"
	"sync"
	"time"

	"github.com/relevar/relevar/internal/domain"
)

// Compile-time check: Memory implements Store.
var _ Store = (*Memory)(nil)

// Memory is the in-process backend. Items are cloned on both write and read
// so callers can never alias the stored record.
type Memory struct {
	mu     sync.RWMutex
	items  map[string]*domain.Item
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]*domain.Item)}
}

func (s *Memory) Put(_ context.Context, it *domain.Item) error {
	c := it.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &Error{Op: OpPut, Err: ErrClosed}
	}
	s.items[it.ID] = &c
	return nil
}

func (s *Memory) Get(_ context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	it, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	c := it.Clone()
	return &c, nil
}

func (s *Memory) GetMulti(_ context.Context, ids []string) ([]*domain.Item, error) {
	out := make([]*domain.Item, len(ids))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, id := range ids {
		if it, ok := s.items[id]; ok {
			c := it.Clone()
			out[i] = &c
		}
	}
	return out, nil
}

func (s *Memory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *Memory) Scan(ctx context.Context, scope string, fn func(it *domain.Item) error) error {
	s.mu.RLock()
	snapshot := make([]*domain.Item, 0, len(s.items))
	for _, it := range s.items {
		if scope != "" && it.TenantScope != scope {
			continue
		}
		c := it.Clone()
		snapshot = append(snapshot, &c)
	}
	s.mu.RUnlock()

	for _, it := range snapshot {
		if err := ctx.Err(); err != nil {
			return &Error{Op: OpScan, Err: err}
		}
		if err := fn(it); err != nil {
			return err
		}
	}
	return nil
}

func (s *Memory) Ping(context.Context) error { return nil }

func (s *Memory) WaitForReady(context.Context, time.Duration) error { return nil }

func (s *Memory) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
