package limiter

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per dependency name.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// GetLimiter returns or creates the bucket for name
func (rl *RateLimiter) GetLimiter(name string, policy Policy) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[name]
	rl.mu.RUnlock()
	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, exists := rl.limiters[name]; exists {
		return limiter
	}

	limit := rate.Inf
	if policy.RequestsPerSecond > 0 {
		limit = rate.Limit(policy.RequestsPerSecond)
	}
	burst := policy.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter = rate.NewLimiter(limit, burst)
	rl.limiters[name] = limiter
	return limiter
}

// Wait waits for the rate limiter to allow the request
func (rl *RateLimiter) Wait(ctx context.Context, name string, policy Policy) error {
	if err := rl.GetLimiter(name, policy).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return nil
}

// Allow checks if the request is allowed without waiting
func (rl *RateLimiter) Allow(name string, policy Policy) bool {
	return rl.GetLimiter(name, policy).Allow()
}

// GetStats returns rate limiter statistics for name
func (rl *RateLimiter) GetStats(name string, policy Policy) map[string]interface{} {
	limiter := rl.GetLimiter(name, policy)

	return map[string]interface{}{
		"name":   name,
		"limit":  float64(limiter.Limit()),
		"burst":  limiter.Burst(),
		"tokens": limiter.Tokens(),
	}
}

// Reset drops the bucket for name
func (rl *RateLimiter) Reset(name string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.limiters, name)
}
