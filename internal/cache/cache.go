package cache

import (
	"context"
)

// Store defines the interface for the storage behind a freshness layer.
// The generic type T represents the entry type being stored.
type Store[T any] interface {
	// Get retrieves an entry from the store.
	// Returns the entry, whether it was found, and any error.
	Get(ctx context.Context, key string) (T, bool, error)

	// Set stores an entry, replacing any previous value for the key.
	Set(ctx context.Context, key string, value T) error

	// Invalidate removes an entry from the store.
	Invalidate(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}
