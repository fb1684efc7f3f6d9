// Package cache stores processed G-code keyed by input content and options.
//
// Processing the same file twice with the same settings always yields the
// same output, so both the CLI and the HTTP server can skip the engine on a
// repeat request. Three backends are provided:
//
//   - [FileCache] keeps one JSON entry per key under a directory (CLI)
//   - [RedisCache] shares entries between server instances
//   - [NullCache] disables caching
//
// Keys are produced by a [Keyer] so that callers never build them by hand.
package cache

import (
	"context"
	"time"
)

// TTLs for cached entries.
const (
	// TTLOutput is how long a processed file stays cached. It matches the
	// default retention window of server outputs.
	TTLOutput = 24 * time.Hour

	// TTLForest is how long an inspected nesting forest stays cached.
	TTLForest = 7 * 24 * time.Hour
)

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	// Get returns the value stored under key. A missing or expired entry is
	// reported as (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
