package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing item.
	ErrNotFound = errors.New("item not found")
	// ErrInvalidFilter signals a malformed filter condition.
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrInvalidRequest signals a malformed search or scoring request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidItem signals an item that fails validation.
	ErrInvalidItem = errors.New("invalid item")
	// ErrProviderUnavailable signals an embedding or expansion provider failure.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrAccessDenied signals a tenant isolation violation.
	ErrAccessDenied = errors.New("access denied")
	// ErrCapacityExceeded signals a request exceeding a configured limit.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrVersionConflict signals an optimistic concurrency conflict.
	ErrVersionConflict = errors.New("version conflict")
	// ErrVectorDimMismatch signals an embedding dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEngineClosed signals an operation on a closed engine.
	ErrEngineClosed = errors.New("engine closed")
)

// CapacityError wraps ErrCapacityExceeded with the violated limit.
type CapacityError struct {
	Limit  int
	Actual int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %d exceeds limit %d", ErrCapacityExceeded.Error(), e.Actual, e.Limit)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// NewCapacityError creates a capacity error for a violated limit.
func NewCapacityError(limit, actual int) error {
	return &CapacityError{Limit: limit, Actual: actual}
}

// VersionConflictError wraps ErrVersionConflict with the current item version.
type VersionConflictError struct {
	CurrentVersion int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s: current version is %d", ErrVersionConflict.Error(), e.CurrentVersion)
}

func (e *VersionConflictError) Unwrap() error { return ErrVersionConflict }

// NewVersionConflict creates a version conflict error.
func NewVersionConflict(currentVersion int64) error {
	return &VersionConflictError{CurrentVersion: currentVersion}
}
