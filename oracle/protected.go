package oracle

import (
	"context"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/pkg/limiter"
)

// Protected runs every call through the protection manager under name: rate
// limit, retries on retryable failures and a circuit breaker.
type Protected struct {
	next       core.FitnessOracle
	name       string
	protection *limiter.ProtectionManager
}

// NewProtected wraps next and registers policy under name.
func NewProtected(next core.FitnessOracle, name string, pm *limiter.ProtectionManager, policy limiter.Policy) *Protected {
	pm.Register(name, policy)
	return &Protected{next: next, name: name, protection: pm}
}

// Score implements core.FitnessOracle
func (p *Protected) Score(ctx context.Context, pairs []core.Pair) ([]float64, error) {
	result, err := p.protection.ExecuteWithProtection(ctx, p.name, func(ctx context.Context) (interface{}, error) {
		return Score(ctx, p.next, pairs)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float64), nil
}
