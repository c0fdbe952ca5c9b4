package oracle

import (
	"context"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/pkg/cache"
)

// Cached remembers scores by (candidate, target). Only misses reach the
// wrapped oracle, each distinct pair at most once per call.
type Cached struct {
	next  core.FitnessOracle
	cache *cache.CacheManager[float64]
}

// NewCached wraps next with the given cache.
func NewCached(next core.FitnessOracle, c *cache.CacheManager[float64]) *Cached {
	return &Cached{next: next, cache: c}
}

// Score implements core.FitnessOracle
func (c *Cached) Score(ctx context.Context, pairs []core.Pair) ([]float64, error) {
	out := make([]float64, len(pairs))
	keys := make([]cache.CacheKey, len(pairs))

	var (
		misses []core.Pair
		slots  = make(map[cache.CacheKey][]int)
	)
	for i, p := range pairs {
		keys[i] = cache.Key(p.Candidate, p.Target)
		if v, ok := c.cache.Get(keys[i]); ok {
			out[i] = v
			continue
		}
		if _, pending := slots[keys[i]]; !pending {
			misses = append(misses, p)
		}
		slots[keys[i]] = append(slots[keys[i]], i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	scores, err := Score(ctx, c.next, misses)
	if err != nil {
		return nil, err
	}
	for j, p := range misses {
		key := cache.Key(p.Candidate, p.Target)
		c.cache.Set(key, scores[j])
		for _, i := range slots[key] {
			out[i] = scores[j]
		}
	}
	return out, nil
}
