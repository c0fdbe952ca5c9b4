package mutate

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/pkg/metrics"
)

// Sampler draws residues from a residue oracle's per-position weights.
// Only tokens that spell one canonical residue can be drawn.
type Sampler struct {
	vocabSize int
	tokens    []int  // vocabulary index of each drawable residue
	residues  []byte // residue spelled by tokens[i]
	logger    *slog.Logger
	metrics   *metrics.PrometheusMetrics
}

// NewSampler indexes vocab. It fails when vocab spells none of the residues.
func NewSampler(vocab []string, logger *slog.Logger, m *metrics.PrometheusMetrics) (*Sampler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sampler{vocabSize: len(vocab), logger: logger, metrics: m}
	for i, tok := range vocab {
		if len(tok) == 1 && core.IsResidue(tok[0]) {
			s.tokens = append(s.tokens, i)
			s.residues = append(s.residues, tok[0])
		}
	}
	if len(s.tokens) == 0 {
		return nil, fmt.Errorf("residue vocabulary of %d tokens contains no residue", len(vocab))
	}
	return s, nil
}

// Sample draws a residue from weights. forbidden, when non-zero, is excluded.
// If no mass is left after masking it falls back to a uniform draw over all
// residues and logs a warning instead of failing.
func (s *Sampler) Sample(rng core.Rand, weights []float64, forbidden byte) (byte, error) {
	if len(weights) != s.vocabSize {
		return 0, fmt.Errorf("%w: distribution has %d weights, vocabulary has %d", core.ErrOracleMismatch, len(weights), s.vocabSize)
	}

	masked := make([]float64, len(s.tokens))
	for i, idx := range s.tokens {
		w := weights[idx]
		if s.residues[i] == forbidden || w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			continue
		}
		masked[i] = w
	}

	if total(masked) <= 0 {
		s.logger.Warn("degenerate residue distribution, drawing uniformly", "forbidden", string(forbidden))
		s.metrics.RecordResidueFallback()
		return core.Residues[rng.Intn(len(core.Residues))], nil
	}
	return s.residues[pick(rng, masked)], nil
}
