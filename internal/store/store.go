// Package store persists item records behind a narrow facade. Three
// backends ship: an in-process map, Redis hashes, and a SQLite file.
// Durability is the backend's concern; callers treat the store as the
// source of truth when rebuilding in-memory indexes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/relevar/relevar/internal/domain"
)

// Sentinel errors for store operations. Callers map ErrNotFound onto the
// domain taxonomy at the usecase boundary.
var (
	ErrNotFound = errors.New("store: item not found")
	ErrClosed   = errors.New("store: closed")
)

// Operation names for error context.
const (
	OpPut    = "put"
	OpGet    = "get"
	OpDelete = "delete"
	OpScan   = "scan"
	OpPing   = "ping"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "store " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Store is the item persistence facade.
type Store interface {
	// Put writes the full item record, replacing any previous version.
	Put(ctx context.Context, it *domain.Item) error
	// Get returns the item by id or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Item, error)
	// GetMulti returns one slot per requested id; missing ids yield nil
	// slots rather than an error.
	GetMulti(ctx context.Context, ids []string) ([]*domain.Item, error)
	// Delete removes the item or returns ErrNotFound.
	Delete(ctx context.Context, id string) error
	// Scan streams every item in scope (all scopes when scope is empty)
	// through fn; a non-nil fn error stops the scan and is returned.
	Scan(ctx context.Context, scope string, fn func(it *domain.Item) error) error
	// Ping checks backend connectivity.
	Ping(ctx context.Context) error
	// WaitForReady polls Ping until the backend responds or timeout expires.
	WaitForReady(ctx context.Context, timeout time.Duration) error
	Close() error
}
