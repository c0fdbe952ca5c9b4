package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// CacheKey represents a cache key
type CacheKey string

// CacheEntry represents a cached value
type CacheEntry[V any] struct {
	Value        V         `json:"value"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	AccessCount  int       `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
}

// IsExpired reports whether the entry is past its expiry. A zero ExpiresAt
// never expires.
func (e *CacheEntry[V]) IsExpired() bool {
	return !e.ExpiresAt.IsZero() && time.Now().After(e.ExpiresAt)
}

// Touch updates the access time and count
func (e *CacheEntry[V]) Touch() {
	e.LastAccessed = time.Now()
	e.AccessCount++
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	MaxSize         int           `json:"max_size" yaml:"max_size" toml:"max_size"`
	DefaultTTL      time.Duration `json:"default_ttl" yaml:"default_ttl" toml:"default_ttl"`                // 0 means entries never expire
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" toml:"cleanup_interval"` // 0 disables the sweeper
}

// DefaultCacheConfig returns a default cache configuration. Oracle outputs
// are deterministic for a given input, so entries do not expire.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		MaxSize: 100000,
	}
}

// Key hashes the parts into a fixed-size key. Parts are separated so that
// ("AB", "C") and ("A", "BC") differ.
func Key(parts ...string) CacheKey {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return CacheKey(hex.EncodeToString(h.Sum(nil)))
}

// CacheStats represents cache statistics
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	HitRate     float64 `json:"hit_rate"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
}

// CalculateHitRate calculates the hit rate
func (s *CacheStats) CalculateHitRate() {
	total := s.Hits + s.Misses
	if total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	} else {
		s.HitRate = 0.0
	}
}
