package cachemanager

import (
	"context"
	"time"
)

// ReadThrough memoizes load in a CacheManager. A nil cache turns it into a
// plain call of load.
//
// Errors from load are returned with its value and nothing is stored, so a
// loader can hand back a result it knows is already stale without it being
// served to later callers.
type ReadThrough[K comparable, V any, I any] struct {
	cache CacheManager[K, V]
	load  func(ctx context.Context, input I) (V, error)
}

// NewReadThrough wraps load with cache.
func NewReadThrough[K comparable, V any, I any](cache CacheManager[K, V], load func(ctx context.Context, input I) (V, error)) *ReadThrough[K, V, I] {
	return &ReadThrough[K, V, I]{cache: cache, load: load}
}

// Enabled reports whether results are memoized.
func (r *ReadThrough[K, V, I]) Enabled() bool { return r.cache != nil }

// Get returns the value cached under key, loading it from input on a miss.
func (r *ReadThrough[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.cache == nil {
		return r.load(ctx, input)
	}
	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	value, err := r.load(ctx, input)
	if err == nil {
		r.cache.Set(ctx, key, value, ttl)
	}
	return value, err
}

// Invalidate drops every memoized value.
func (r *ReadThrough[K, V, I]) Invalidate(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Flush(ctx)
}
