package store

import (
	"context"
	"errors"
)

var (
	// ErrNotRunning is returned by operations that need a started store.
	ErrNotRunning = errors.New("store is not running")

	// ErrEmptyRoot is returned by StoreRoot when no root has been set.
	ErrEmptyRoot = errors.New("store root is empty")
)

// Statistics describes the persisted data of a store.
type Statistics struct {
	FileCount       int64 `json:"file_count"`
	LiveDataLength  int64 `json:"live_data_length"`
	TotalDataLength int64 `json:"total_data_length"`
}

// Store is a persisted object graph with a single root. Implementations are
// not required to be safe for concurrent use, except for IsRunning; callers
// serialize access through an execution context.
type Store interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error

	// Root returns the current root. It is never nil; an uninitialized
	// graph reports Root.IsEmpty.
	Root() Root

	// SetRoot replaces the root object and returns it.
	SetRoot(v any) any

	// Store persists v and everything reachable from it, returning its id.
	Store(ctx context.Context, v any) (int64, error)

	// StoreRoot persists the current root and returns its id.
	StoreRoot(ctx context.Context) (int64, error)

	IsRunning() bool
	Statistics(ctx context.Context) (Statistics, error)
}
