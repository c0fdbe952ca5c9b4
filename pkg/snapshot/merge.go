package snapshot

import (
	"fmt"

	"github.com/snow-ghost/bindopt/core"
)

// Unique keeps the first candidate seen for each sequence, in order.
func Unique(pops ...core.Population) core.Population {
	seen := make(map[string]struct{})
	var out core.Population
	for _, pop := range pops {
		for _, c := range pop {
			if _, ok := seen[c.Sequence]; ok {
				continue
			}
			seen[c.Sequence] = struct{}{}
			out = append(out, c.Clone())
		}
	}
	return out
}

// Merge reads every generation snapshot in dir, oldest first, and returns the
// unique candidates by sequence. The earliest occurrence of a sequence wins.
// When limit is positive only generations below limit are read.
func Merge(dir string, limit int) (core.Population, error) {
	gens, err := Generations(dir)
	if err != nil {
		return nil, err
	}
	if len(gens) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoSnapshots)
	}

	var pops []core.Population
	for _, g := range gens {
		if limit > 0 && g >= limit {
			break
		}
		pop, err := ReadPopulationFile(GenerationPath(dir, g))
		if err != nil {
			return nil, err
		}
		pops = append(pops, pop)
	}
	return Unique(pops...), nil
}
