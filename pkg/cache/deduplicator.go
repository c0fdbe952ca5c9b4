package cache

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Deduplicator collapses concurrent calls with the same key into one.
type Deduplicator[V any] struct {
	group        singleflight.Group
	requests     atomic.Int64
	deduplicated atomic.Int64
	cacheHits    atomic.Int64
}

// DedupStats represents deduplication statistics
type DedupStats struct {
	Requests     int64 `json:"requests"`
	Deduplicated int64 `json:"deduplicated"`
	CacheHits    int64 `json:"cache_hits"`
}

// NewDeduplicator creates a new deduplicator
func NewDeduplicator[V any]() *Deduplicator[V] {
	return &Deduplicator[V]{}
}

// Execute runs fn once for all concurrent callers sharing key. The context is
// checked before joining the flight.
func (d *Deduplicator[V]) Execute(ctx context.Context, key CacheKey, fn func() (V, error)) (V, error) {
	var zero V
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	d.requests.Add(1)

	result, err, shared := d.group.Do(string(key), func() (interface{}, error) {
		return fn()
	})
	if shared {
		d.deduplicated.Add(1)
	}
	if err != nil {
		return zero, err
	}
	return result.(V), nil
}

// ExecuteWithCache checks cache first, then runs fn deduplicated and stores
// its result.
func (d *Deduplicator[V]) ExecuteWithCache(
	ctx context.Context,
	key CacheKey,
	cache *LRUCache[V],
	ttl time.Duration,
	fn func() (V, error),
) (V, bool, error) {
	if cache != nil {
		if value, ok := cache.Get(key); ok {
			d.cacheHits.Add(1)
			return value, true, nil
		}
	}

	value, err := d.Execute(ctx, key, func() (V, error) {
		// a flight that finished between the lookup above and Do has stored it
		if cache != nil {
			if v, ok := cache.Get(key); ok {
				return v, nil
			}
		}
		v, err := fn()
		if err != nil {
			return v, err
		}
		if cache != nil {
			cache.Set(key, v, ttl)
		}
		return v, nil
	})
	return value, false, err
}

// Stats returns deduplication statistics
func (d *Deduplicator[V]) Stats() DedupStats {
	return DedupStats{
		Requests:     d.requests.Load(),
		Deduplicated: d.deduplicated.Load(),
		CacheHits:    d.cacheHits.Load(),
	}
}
