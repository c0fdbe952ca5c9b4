package limiter

import "time"

// Policy configures the protection applied to one named remote dependency,
// usually an oracle endpoint.
type Policy struct {
	RequestsPerSecond   float64       `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst               int           `yaml:"burst" toml:"burst"`
	MaxRetries          int           `yaml:"max_retries" toml:"max_retries"`
	BaseDelay           time.Duration `yaml:"base_delay" toml:"base_delay"`
	MaxDelay            time.Duration `yaml:"max_delay" toml:"max_delay"`
	BreakerMinRequests  uint32        `yaml:"breaker_min_requests" toml:"breaker_min_requests"`
	BreakerFailureRatio float64       `yaml:"breaker_failure_ratio" toml:"breaker_failure_ratio"`
	BreakerTimeout      time.Duration `yaml:"breaker_timeout" toml:"breaker_timeout"`
}

// DefaultPolicy returns the policy used for oracles without explicit limits.
// A zero RequestsPerSecond means unlimited.
func DefaultPolicy() Policy {
	return Policy{
		Burst:               1,
		MaxRetries:          3,
		BaseDelay:           200 * time.Millisecond,
		MaxDelay:            10 * time.Second,
		BreakerMinRequests:  5,
		BreakerFailureRatio: 0.5,
		BreakerTimeout:      30 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultPolicy.
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.Burst <= 0 {
		p.Burst = d.Burst
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.BreakerMinRequests == 0 {
		p.BreakerMinRequests = d.BreakerMinRequests
	}
	if p.BreakerFailureRatio <= 0 || p.BreakerFailureRatio > 1 {
		p.BreakerFailureRatio = d.BreakerFailureRatio
	}
	if p.BreakerTimeout <= 0 {
		p.BreakerTimeout = d.BreakerTimeout
	}
	return p
}
