// Package oracle holds fitness oracle implementations and the decorators that
// add batching, caching, protection and instrumentation around them.
package oracle

import (
	"context"
	"fmt"

	"github.com/snow-ghost/bindopt/core"
)

// Check verifies that an oracle returned exactly one score per pair.
func Check(pairs []core.Pair, scores []float64) error {
	if len(scores) != len(pairs) {
		return fmt.Errorf("%w: sent %d pairs, got %d scores", core.ErrOracleMismatch, len(pairs), len(scores))
	}
	return nil
}

// Score calls o and checks the result shape.
func Score(ctx context.Context, o core.FitnessOracle, pairs []core.Pair) ([]float64, error) {
	scores, err := o.Score(ctx, pairs)
	if err != nil {
		return nil, err
	}
	if err := Check(pairs, scores); err != nil {
		return nil, err
	}
	return scores, nil
}
