// Package cachemanager provides TTL caches used to memoize scope lookups.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a keyed TTL cache. Lookups are invalidated wholesale on
// membership changes, so there is no per-key removal.
type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Flush(ctx context.Context) error
}
