// Package cache provides a small multi-backend cache abstraction.
//
// The broker uses it to record state-nonce consumption for the redirect round
// trip. Backends:
//
//   - memory (in-process, dev/testing)
//   - redis (shared, production)
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Cache is the minimal contract the broker needs. Backend failures surface
// as errors so callers can distinguish an outage from an absent key.
type Cache interface {
	// Get returns the value, or ErrNotFound.
	Get(ctx context.Context, k string) ([]byte, error)

	// Set stores a value with a TTL. ttl <= 0 means no expiry.
	Set(ctx context.Context, k string, v []byte, ttl time.Duration) error

	// Add stores a value only if the key is absent. Returns false when the
	// key already exists. This is the single-use primitive for state nonces.
	Add(ctx context.Context, k string, v []byte, ttl time.Duration) (bool, error)

	// Delete removes a key.
	Delete(ctx context.Context, k string) error
}
