package worker

import (
	"context"
	"fmt"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/oracle"
)

// SeedPopulation scores seed against target once and replicates it into n
// rows sharing that fitness. Each row gets its own copy of mask.
func SeedPopulation(ctx context.Context, o core.FitnessOracle, seed, target string, mask []bool, n int) (core.Population, error) {
	if n < 1 {
		return nil, fmt.Errorf("number of seeds should be positive, got %d", n)
	}
	if len(mask) != len(seed) {
		return nil, fmt.Errorf("%w: sequence=%d mask=%d", core.ErrMaskLength, len(seed), len(mask))
	}

	scores, err := oracle.Score(ctx, o, []core.Pair{{Candidate: seed, Target: target}})
	if err != nil {
		return nil, fmt.Errorf("score seed: %w", err)
	}

	pop := make(core.Population, n)
	for i := range pop {
		pop[i] = core.Candidate{
			ID:       fmt.Sprintf("row-%d", i),
			Sequence: seed,
			Mask:     append([]bool(nil), mask...),
			Target:   target,
			Fitness:  scores[0],
		}
	}
	if err := pop.Validate(); err != nil {
		return nil, err
	}
	return pop, nil
}

// WindowPopulation builds the mask for the inclusive window [start, end] of
// seed and seeds n rows with it.
func WindowPopulation(ctx context.Context, o core.FitnessOracle, seed, target string, start, end, n int) (core.Population, error) {
	mask, err := core.WindowMask(len(seed), start, end)
	if err != nil {
		return nil, err
	}
	return SeedPopulation(ctx, o, seed, target, mask, n)
}
