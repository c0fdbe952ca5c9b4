package residue

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// ProfileOracle returns the same residue profile for every position of every
// query. It needs no model and is used for offline runs and tests.
type ProfileOracle struct {
	vocab  []string
	weight []float64
}

// NewProfileOracle builds a profile over vocab from per-token weights. Tokens
// missing from profile get zero weight.
func NewProfileOracle(vocab []string, profile map[string]float64) (*ProfileOracle, error) {
	weight := make([]float64, len(vocab))
	index := make(map[string]int, len(vocab))
	for i, tok := range vocab {
		index[tok] = i
	}
	for tok, w := range profile {
		i, ok := index[tok]
		if !ok {
			return nil, fmt.Errorf("profile token %q is not in the vocabulary", tok)
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("profile weight for %q must be finite and non-negative, got %v", tok, w)
		}
		weight[i] = w
	}
	return &ProfileOracle{vocab: vocab, weight: weight}, nil
}

// UniformProfile spreads equal mass over the single-letter residue tokens of
// vocab.
func UniformProfile(vocab []string, residues string) map[string]float64 {
	profile := make(map[string]float64)
	for _, tok := range vocab {
		if len(tok) == 1 && strings.IndexByte(residues, tok[0]) >= 0 {
			profile[tok] = 1
		}
	}
	return profile
}

// Vocabulary implements core.ResidueOracle
func (o *ProfileOracle) Vocabulary() []string {
	return o.vocab
}

// Predict implements core.ResidueOracle
func (o *ProfileOracle) Predict(ctx context.Context, sequences []string) ([][][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][][]float64, len(sequences))
	for i, seq := range sequences {
		out[i] = make([][]float64, len(seq))
		for pos := range out[i] {
			out[i][pos] = append([]float64(nil), o.weight...)
		}
	}
	return out, nil
}
