package limiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/snow-ghost/bindopt/pkg/metrics"
	"github.com/sony/gobreaker"
)

// ProtectionManager combines rate limiting, retries and a circuit breaker for
// each named remote dependency.
type ProtectionManager struct {
	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreakerManager
	policies       map[string]Policy
	logger         *slog.Logger
	metrics        *metrics.PrometheusMetrics
	mu             sync.RWMutex
}

// NewProtectionManager creates a new protection manager. logger and m may be nil.
func NewProtectionManager(logger *slog.Logger, m *metrics.PrometheusMetrics) *ProtectionManager {
	if logger == nil {
		logger = slog.Default()
	}
	pm := &ProtectionManager{
		rateLimiter: NewRateLimiter(),
		policies:    make(map[string]Policy),
		logger:      logger,
		metrics:     m,
	}
	pm.circuitBreaker = NewCircuitBreakerManager(pm.stateChanged)
	return pm
}

// Register sets the policy for name. It must be called before the first
// Execute for that name to take effect.
func (pm *ProtectionManager) Register(name string, policy Policy) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.policies[name] = policy.withDefaults()
}

// Policy returns the registered policy for name, or DefaultPolicy.
func (pm *ProtectionManager) Policy(name string) Policy {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if p, ok := pm.policies[name]; ok {
		return p
	}
	return DefaultPolicy()
}

// ExecuteWithProtection waits for the rate limiter, then runs fn with retries
// inside the circuit breaker.
func (pm *ProtectionManager) ExecuteWithProtection(
	ctx context.Context,
	name string,
	fn func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	policy := pm.Policy(name)

	if pm.circuitBreaker.IsOpen(name, policy) {
		return nil, fmt.Errorf("circuit breaker is open for %s: %w", name, gobreaker.ErrOpenState)
	}

	if err := pm.rateLimiter.Wait(ctx, name, policy); err != nil {
		return nil, fmt.Errorf("rate limiting failed: %w", err)
	}

	retry := NewRetryManager(&RetryConfig{
		MaxRetries:      policy.MaxRetries,
		BaseDelay:       policy.BaseDelay,
		MaxDelay:        policy.MaxDelay,
		BackoffFactor:   2.0,
		Jitter:          true,
		RetryableErrors: []int{429, 500, 502, 503, 504},
		OnRetry: func(attempt int, err error) {
			pm.logger.Warn("oracle retry", "oracle", name, "attempt", attempt, "error", err)
			pm.metrics.RecordRetry(name, retryReason(err))
		},
	})

	result, err := pm.circuitBreaker.Execute(ctx, name, policy, func() (interface{}, error) {
		return retry.Execute(ctx, fn)
	})
	if err != nil {
		return nil, fmt.Errorf("protected execution failed: %w", err)
	}
	return result, nil
}

// GetStats returns rate limiter and breaker statistics for name
func (pm *ProtectionManager) GetStats(name string) map[string]interface{} {
	policy := pm.Policy(name)
	return map[string]interface{}{
		"name":            name,
		"rate_limiter":    pm.rateLimiter.GetStats(name, policy),
		"circuit_breaker": pm.circuitBreaker.GetStats(name, policy),
		"max_retries":     policy.MaxRetries,
	}
}

func (pm *ProtectionManager) stateChanged(name string, from, to gobreaker.State) {
	pm.logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	pm.metrics.RecordCircuitTransition(name, to.String())
}

func retryReason(err error) string {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Sprintf("http_%d", httpErr.StatusCode)
	}
	return "error"
}
