package mutate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/pkg/metrics"
)

// SequentialGenerator writes placeholders for every edit, then resolves them
// one at a time in random order. Each position is predicted from the sequence
// with all earlier positions already filled in, so one proposal costs one
// oracle call per placeholder.
type SequentialGenerator struct {
	editor  *Editor
	oracle  core.ResidueOracle
	sampler *Sampler
}

// NewSequentialGenerator creates the oracle-guided sequential variant.
func NewSequentialGenerator(cfg EditConfig, oracle core.ResidueOracle, logger *slog.Logger, m *metrics.PrometheusMetrics) (*SequentialGenerator, error) {
	editor, err := NewEditor(cfg)
	if err != nil {
		return nil, err
	}
	sampler, err := NewSampler(oracle.Vocabulary(), logger, m)
	if err != nil {
		return nil, err
	}
	return &SequentialGenerator{editor: editor, oracle: oracle, sampler: sampler}, nil
}

var placeholderMarker = marker{
	substitute: func(core.Rand, byte) byte { return core.MaskPlaceholder },
	insert:     func(core.Rand) byte { return core.MaskPlaceholder },
}

// Propose implements core.Generator.
func (g *SequentialGenerator) Propose(ctx context.Context, rng core.Rand, sequence string, mask []bool) (string, []bool, error) {
	draft, outMask, err := g.editor.apply(rng, sequence, mask, placeholderMarker)
	if err != nil {
		return "", nil, err
	}

	var pending []int
	for i, ch := range draft {
		if ch == core.MaskPlaceholder {
			pending = append(pending, i)
		}
	}
	rng.Shuffle(len(pending), func(i, j int) { pending[i], pending[j] = pending[j], pending[i] })

	for _, pos := range pending {
		probs, err := g.oracle.Predict(ctx, []string{string(draft)})
		if err != nil {
			return "", nil, fmt.Errorf("predict position %d: %w", pos, err)
		}
		if len(probs) != 1 || len(probs[0]) != len(draft) {
			return "", nil, fmt.Errorf("%w: residue oracle shape does not match query of length %d", core.ErrOracleMismatch, len(draft))
		}
		r, err := g.sampler.Sample(rng, probs[0][pos], 0)
		if err != nil {
			return "", nil, err
		}
		draft[pos] = r
	}
	return string(draft), outMask, nil
}
