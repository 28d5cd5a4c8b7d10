// Package storage defines the durable key-value port backing the token
// store, with in-memory, bbolt, and Firestore implementations.
//
// The port deliberately mirrors browser storage: flat string keys, opaque
// values, last-writer-wins. Only one auth client instance is expected to
// mutate a given store.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key doesn't exist
var ErrNotFound = errors.New("key not found")

// Store is the persistence capability injected into the token store.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists all stored keys.
	Keys(ctx context.Context) ([]string, error)
}
