// Package kv defines a small key-value store with per-entry TTL that backs
// every piece of process-local state of the server: sessions, access tokens
// and the resolution cache. Swapping the backend (memory, bbolt, redis) does
// not touch the components built on top of it.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired
var ErrNotFound = errors.New("kv: key not found")

// Store is a key-value store with per-entry time to live
type Store interface {
	// Get returns the value stored under key
	// Returns ErrNotFound if the key is missing or its TTL has elapsed
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value
	// ttl <= 0 means the entry never expires
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Close releases resources and stops background sweeping
	Close() error
}
