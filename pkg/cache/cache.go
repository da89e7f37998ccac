// Package cache provides pluggable byte caching for expensive pipeline
// stages, primarily resolved dependency graphs.
//
// Three backends are provided:
//   - FileCache: per-user on-disk cache for CLI usage
//   - RedisCache: shared cache for build-farm setups where many hosts
//     resolve against the same recipe repository
//   - NullCache: no-op backend used by --no-cache and in tests
//
// Cache contents are strictly advisory: a cached graph is only reused when
// both the request and the catalog fingerprint match, and --refresh bypasses
// the cache entirely.
package cache

import (
	"context"
	"time"
)

// TTLs for cached pipeline artifacts.
const (
	// TTLGraph is how long a resolved dependency graph stays valid.
	// Graphs are keyed by catalog fingerprint, so a recipe change
	// invalidates them implicitly; the TTL only bounds staleness of the
	// fingerprint inputs themselves.
	TTLGraph = 24 * time.Hour
)

// Cache is the interface for caching binary data with TTL-based expiration.
type Cache interface {
	// Get retrieves data by key. Returns (data, true, nil) on a hit,
	// (nil, false, nil) on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of 0 means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes the entry for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the backend.
	Close() error
}

// GraphKey generates the cache key for a resolved dependency graph.
// The key binds the request (package, constraints, variant) to the exact
// catalog contents via its fingerprint, so any recipe change produces a
// different key.
func GraphKey(requestHash, catalogFingerprint string) string {
	return hashKey("graph", requestHash, catalogFingerprint)
}
