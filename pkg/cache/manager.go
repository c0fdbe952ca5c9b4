package cache

import (
	"context"
	"fmt"

	"github.com/snow-ghost/bindopt/pkg/metrics"
)

// CacheManager pairs an LRU cache with a deduplicator under one name and
// reports hits and misses to Prometheus.
type CacheManager[V any] struct {
	name         string
	cache        *LRUCache[V]
	deduplicator *Deduplicator[V]
	config       *CacheConfig
	metrics      *metrics.PrometheusMetrics
}

// NewCacheManager creates a new cache manager. m may be nil.
func NewCacheManager[V any](name string, config *CacheConfig, m *metrics.PrometheusMetrics) (*CacheManager[V], error) {
	if config == nil {
		config = DefaultCacheConfig()
	}
	cache, err := NewLRUCache[V](config)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache %s: %w", name, err)
	}

	return &CacheManager[V]{
		name:         name,
		cache:        cache,
		deduplicator: NewDeduplicator[V](),
		config:       config,
		metrics:      m,
	}, nil
}

// Get looks key up without computing anything.
func (cm *CacheManager[V]) Get(key CacheKey) (V, bool) {
	v, ok := cm.cache.Get(key)
	cm.record(ok)
	return v, ok
}

// Set stores value under key with the default TTL.
func (cm *CacheManager[V]) Set(key CacheKey, value V) {
	cm.cache.Set(key, value, cm.config.DefaultTTL)
}

// GetOrCompute returns the cached value for key or computes it once, even
// when several goroutines ask at the same time.
func (cm *CacheManager[V]) GetOrCompute(ctx context.Context, key CacheKey, fn func() (V, error)) (V, error) {
	v, hit, err := cm.deduplicator.ExecuteWithCache(ctx, key, cm.cache, cm.config.DefaultTTL, fn)
	cm.record(hit)
	return v, err
}

// Stats returns cache statistics
func (cm *CacheManager[V]) Stats() CacheStats {
	return cm.cache.Stats()
}

// DedupStats returns deduplication statistics
func (cm *CacheManager[V]) DedupStats() DedupStats {
	return cm.deduplicator.Stats()
}

// Close releases the cache
func (cm *CacheManager[V]) Close() {
	cm.cache.Close()
}

func (cm *CacheManager[V]) record(hit bool) {
	if hit {
		cm.metrics.RecordCacheHit(cm.name)
	} else {
		cm.metrics.RecordCacheMiss(cm.name)
	}
}
