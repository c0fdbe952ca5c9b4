package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Name        string                             `json:"name"`
	MaxRequests uint32                             `json:"max_requests"`
	Interval    time.Duration                      `json:"interval"`
	Timeout     time.Duration                      `json:"timeout"`
	ReadyToTrip func(counts gobreaker.Counts) bool `json:"-"`
}

// BreakerConfigFor derives the breaker settings of a policy.
func BreakerConfigFor(name string, policy Policy) *CircuitBreakerConfig {
	policy = policy.withDefaults()
	minRequests := policy.BreakerMinRequests
	ratio := policy.BreakerFailureRatio

	return &CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     policy.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= minRequests && float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
	}
}

// StateChangeFunc observes breaker transitions.
type StateChangeFunc func(name string, from, to gobreaker.State)

// CircuitBreakerManager keeps one breaker per dependency name.
type CircuitBreakerManager struct {
	breakers      map[string]*gobreaker.CircuitBreaker
	onStateChange StateChangeFunc
	mu            sync.Mutex
}

// NewCircuitBreakerManager creates a new circuit breaker manager. onStateChange may be nil.
func NewCircuitBreakerManager(onStateChange StateChangeFunc) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		breakers:      make(map[string]*gobreaker.CircuitBreaker),
		onStateChange: onStateChange,
	}
}

// GetBreaker returns or creates the breaker for name
func (cbm *CircuitBreakerManager) GetBreaker(name string, policy Policy) *gobreaker.CircuitBreaker {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if breaker, exists := cbm.breakers[name]; exists {
		return breaker
	}

	cfg := BreakerConfigFor(name, policy)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if cbm.onStateChange != nil {
				cbm.onStateChange(name, from, to)
			}
		},
	})
	cbm.breakers[name] = breaker
	return breaker
}

// Execute executes a function through the circuit breaker
func (cbm *CircuitBreakerManager) Execute(ctx context.Context, name string, policy Policy, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := cbm.GetBreaker(name, policy).Execute(fn)
	if err != nil {
		return nil, fmt.Errorf("circuit breaker %s: %w", name, err)
	}
	return result, nil
}

// GetState returns the current state of the breaker for name
func (cbm *CircuitBreakerManager) GetState(name string, policy Policy) gobreaker.State {
	return cbm.GetBreaker(name, policy).State()
}

// GetStats returns circuit breaker statistics for name
func (cbm *CircuitBreakerManager) GetStats(name string, policy Policy) map[string]interface{} {
	breaker := cbm.GetBreaker(name, policy)
	counts := breaker.Counts()

	return map[string]interface{}{
		"name":                 name,
		"state":                breaker.State().String(),
		"requests":             counts.Requests,
		"total_success":        counts.TotalSuccesses,
		"total_failures":       counts.TotalFailures,
		"consecutive_failures": counts.ConsecutiveFailures,
	}
}

// IsOpen checks if the breaker for name is open
func (cbm *CircuitBreakerManager) IsOpen(name string, policy Policy) bool {
	return cbm.GetState(name, policy) == gobreaker.StateOpen
}
