package oracle

import (
	"context"
	"fmt"

	"github.com/snow-ghost/bindopt/core"
)

// Batched splits large calls into chunks of at most Size pairs and
// concatenates the results in order.
type Batched struct {
	next core.FitnessOracle
	size int
}

// NewBatched wraps next. A size of zero or less disables chunking.
func NewBatched(next core.FitnessOracle, size int) *Batched {
	return &Batched{next: next, size: size}
}

// Score implements core.FitnessOracle
func (b *Batched) Score(ctx context.Context, pairs []core.Pair) ([]float64, error) {
	if b.size <= 0 || len(pairs) <= b.size {
		return Score(ctx, b.next, pairs)
	}

	out := make([]float64, 0, len(pairs))
	for start := 0; start < len(pairs); start += b.size {
		end := min(start+b.size, len(pairs))
		scores, err := Score(ctx, b.next, pairs[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch [%d:%d]: %w", start, end, err)
		}
		out = append(out, scores...)
	}
	return out, nil
}
