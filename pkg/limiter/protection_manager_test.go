package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/snow-ghost/bindopt/pkg/metrics"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterUnlimitedByDefault(t *testing.T) {
	rl := NewRateLimiter()
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("http", DefaultPolicy()))
	}
	stats := rl.GetStats("http", DefaultPolicy())
	assert.Equal(t, "http", stats["name"])
}

func TestRateLimiterEnforcesBurst(t *testing.T) {
	rl := NewRateLimiter()
	policy := Policy{RequestsPerSecond: 1, Burst: 2}

	allowed := 0
	for i := 0; i < 10; i++ {
		if rl.Allow("slow", policy) {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)

	rl.Reset("slow")
	assert.True(t, rl.Allow("slow", policy))
}

func TestProtectionManagerRetriesAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewProtectionManager(nil, metrics.NewPrometheusMetrics(reg))
	pm.Register("scorer", Policy{MaxRetries: 2, BaseDelay: time.Millisecond})

	calls := 0
	result, err := pm.ExecuteWithProtection(context.Background(), "scorer", func(ctx context.Context) (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, NewHTTPError(502, "Bad gateway", "")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, calls)

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() == "bindopt_retries_total" {
			found = true
			assert.Equal(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestProtectionManagerOpensBreaker(t *testing.T) {
	var transitions []gobreaker.State
	pm := NewProtectionManager(nil, nil)
	pm.circuitBreaker.onStateChange = func(name string, from, to gobreaker.State) {
		transitions = append(transitions, to)
	}
	pm.Register("flaky", Policy{MaxRetries: 0, BreakerMinRequests: 3, BreakerFailureRatio: 0.5})

	failing := func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("connection refused")
	}
	for i := 0; i < 3; i++ {
		_, err := pm.ExecuteWithProtection(context.Background(), "flaky", failing)
		require.Error(t, err)
	}

	_, err := pm.ExecuteWithProtection(context.Background(), "flaky", failing)
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	stats := pm.GetStats("flaky")
	assert.Equal(t, "open", stats["circuit_breaker"].(map[string]interface{})["state"])
}

func TestPolicyDefaults(t *testing.T) {
	p := Policy{}.withDefaults()
	assert.Equal(t, 1, p.Burst)
	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, DefaultPolicy().BreakerTimeout, p.BreakerTimeout)

	pm := NewProtectionManager(nil, nil)
	assert.Equal(t, DefaultPolicy(), pm.Policy("unregistered"))
}
