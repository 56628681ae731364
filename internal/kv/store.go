// Package kv defines the minimal key-value contract the gateway stores its
// attempt records, sessions, and blacklist entries in, with in-memory and
// Redis implementations.
package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key is absent or expired.
	ErrNotFound = errors.New("kv: key not found")
	// ErrUnavailable wraps backend transport failures.
	ErrUnavailable = errors.New("kv: store unavailable")
)

// Store is the backend contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys returns all live keys with the given prefix. Order is undefined.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
