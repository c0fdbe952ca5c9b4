package mutate

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/snow-ghost/bindopt/core"
)

// EditConfig is the user-facing edit distribution. Keys are strings so the
// struct loads from YAML, TOML and JSON alike: edit counts are positive
// integers ("1", "2", ...) and edit types use core.ParseEditType labels.
type EditConfig struct {
	EditCounts map[string]float64 `json:"edit_counts" yaml:"edit_counts" toml:"edit_counts"`
	EditTypes  map[string]float64 `json:"edit_types" yaml:"edit_types" toml:"edit_types"`
	MinLength  int                `json:"min_length" yaml:"min_length" toml:"min_length"`
	MaxLength  int                `json:"max_length" yaml:"max_length" toml:"max_length"`
}

// DefaultEditConfig returns counts {1:.5, 2:.3, 3:.2}, types
// {sub:.8, ins:.1, del:.1} and lengths 60..100.
func DefaultEditConfig() EditConfig {
	return EditConfig{
		EditCounts: map[string]float64{"1": 0.5, "2": 0.3, "3": 0.2},
		EditTypes:  map[string]float64{"sub": 0.8, "ins": 0.1, "del": 0.1},
		MinLength:  60,
		MaxLength:  100,
	}
}

// Editor draws and applies point edits. It is immutable after NewEditor and
// safe to share between rows; all randomness comes from the caller's Rand.
type Editor struct {
	counts      []int
	countWeight []float64
	typeWeight  []float64 // indexed like core.EditTypes
	minLength   int
	maxLength   int
}

// NewEditor validates cfg. Unset maps and a zero length range take the
// defaults; an unknown edit type label is an error.
func NewEditor(cfg EditConfig) (*Editor, error) {
	def := DefaultEditConfig()
	if len(cfg.EditCounts) == 0 {
		cfg.EditCounts = def.EditCounts
	}
	if len(cfg.EditTypes) == 0 {
		cfg.EditTypes = def.EditTypes
	}
	if cfg.MinLength == 0 && cfg.MaxLength == 0 {
		cfg.MinLength, cfg.MaxLength = def.MinLength, def.MaxLength
	}
	if cfg.MinLength < 0 || cfg.MaxLength < cfg.MinLength {
		return nil, fmt.Errorf("invalid length range [%d, %d]", cfg.MinLength, cfg.MaxLength)
	}

	e := &Editor{
		typeWeight: make([]float64, len(core.EditTypes)),
		minLength:  cfg.MinLength,
		maxLength:  cfg.MaxLength,
	}

	for key, w := range cfg.EditCounts {
		n, err := strconv.Atoi(key)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("edit count %q should be a positive integer", key)
		}
		if err := checkWeight(w); err != nil {
			return nil, fmt.Errorf("edit count %d: %w", n, err)
		}
		e.counts = append(e.counts, n)
	}
	sort.Ints(e.counts)
	e.countWeight = make([]float64, len(e.counts))
	for i, n := range e.counts {
		e.countWeight[i] = cfg.EditCounts[strconv.Itoa(n)]
	}
	if total(e.countWeight) <= 0 {
		return nil, fmt.Errorf("edit count weights sum to zero")
	}

	for key, w := range cfg.EditTypes {
		typ, err := core.ParseEditType(key)
		if err != nil {
			return nil, err
		}
		if err := checkWeight(w); err != nil {
			return nil, fmt.Errorf("edit type %s: %w", typ, err)
		}
		e.typeWeight[typeIndex(typ)] += w
	}
	if total(e.typeWeight) <= 0 {
		return nil, fmt.Errorf("edit type weights sum to zero")
	}

	return e, nil
}

// MinLength returns the length at which deletions stop.
func (e *Editor) MinLength() int { return e.minLength }

// MaxLength returns the length at which insertions stop.
func (e *Editor) MaxLength() int { return e.maxLength }

func (e *Editor) drawCount(rng core.Rand) int {
	return e.counts[pick(rng, e.countWeight)]
}

// typeWeights applies the length guard and keeps the last editable position
// from being deleted. Weights are not renormalized.
func (e *Editor) typeWeights(length, editable int) []float64 {
	w := append([]float64(nil), e.typeWeight...)
	if length == e.maxLength {
		w[typeIndex(core.Insertion)] = 0
	}
	if length == e.minLength || editable <= 1 {
		w[typeIndex(core.Deletion)] = 0
	}
	return w
}

func (e *Editor) drawType(rng core.Rand, length, editable int) (core.EditType, error) {
	w := e.typeWeights(length, editable)
	if total(w) <= 0 {
		return "", fmt.Errorf("%w: length %d, %d editable", core.ErrNoEditType, length, editable)
	}
	return core.EditTypes[pick(rng, w)], nil
}

// pick draws an index with probability proportional to its weight. It always
// consumes exactly one Float64. The caller guarantees a positive total.
func pick(rng core.Rand, weights []float64) int {
	u := rng.Float64() * total(weights)
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		if u < w {
			return i
		}
		u -= w
	}
	return last
}

func total(weights []float64) float64 {
	var sum float64
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	return sum
}

func checkWeight(w float64) error {
	if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return fmt.Errorf("weight %v should be finite and non-negative", w)
	}
	return nil
}

func typeIndex(t core.EditType) int {
	for i, et := range core.EditTypes {
		if et == t {
			return i
		}
	}
	return -1
}
