package residue

import (
	"context"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/pkg/cache"
)

// Cached remembers predictions per query sequence. Concurrent single-sequence
// queries for the same sequence share one upstream call, which is the common
// case when many rows start from the same seed.
type Cached struct {
	next  core.ResidueOracle
	cache *cache.CacheManager[[][]float64]
}

// NewCached wraps next with the given cache.
func NewCached(next core.ResidueOracle, c *cache.CacheManager[[][]float64]) *Cached {
	return &Cached{next: next, cache: c}
}

// Vocabulary implements core.ResidueOracle
func (c *Cached) Vocabulary() []string {
	return c.next.Vocabulary()
}

// Predict implements core.ResidueOracle
func (c *Cached) Predict(ctx context.Context, sequences []string) ([][][]float64, error) {
	if len(sequences) == 1 {
		d, err := c.cache.GetOrCompute(ctx, cache.Key(sequences[0]), func() ([][]float64, error) {
			out, err := c.next.Predict(ctx, sequences)
			if err != nil {
				return nil, err
			}
			if err := checkShape(sequences, out, len(c.next.Vocabulary())); err != nil {
				return nil, err
			}
			return out[0], nil
		})
		if err != nil {
			return nil, err
		}
		return [][][]float64{d}, nil
	}

	out := make([][][]float64, len(sequences))
	var (
		misses []string
		slots  = make(map[string][]int)
	)
	for i, seq := range sequences {
		if d, ok := c.cache.Get(cache.Key(seq)); ok {
			out[i] = d
			continue
		}
		if _, pending := slots[seq]; !pending {
			misses = append(misses, seq)
		}
		slots[seq] = append(slots[seq], i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	predicted, err := c.next.Predict(ctx, misses)
	if err != nil {
		return nil, err
	}
	if err := checkShape(misses, predicted, len(c.next.Vocabulary())); err != nil {
		return nil, err
	}
	for j, seq := range misses {
		c.cache.Set(cache.Key(seq), predicted[j])
		for _, i := range slots[seq] {
			out[i] = predicted[j]
		}
	}
	return out, nil
}
