package core

import (
	"fmt"
	"strings"
)

// Candidate is one optimization chain: the current accepted sequence, its
// editable positions and its score against a fixed target.
type Candidate struct {
	ID       string  `json:"id"`
	Sequence string  `json:"sequence"`
	Mask     []bool  `json:"mask"`
	Target   string  `json:"target"`
	Fitness  float64 `json:"fitness"`
}

// Editable returns the indices of mask-true positions.
func (c Candidate) Editable() []int {
	return EditablePositions(c.Mask)
}

// Clone returns a deep copy so the mask can be changed independently.
func (c Candidate) Clone() Candidate {
	out := c
	out.Mask = append([]bool(nil), c.Mask...)
	return out
}

// Population is the table of candidate rows. Rows never read each other.
type Population []Candidate

// Validate checks the per-row invariants the generators rely on.
func (p Population) Validate() error {
	if len(p) == 0 {
		return ErrEmptyPopulation
	}
	for i, row := range p {
		if len(row.Mask) != len(row.Sequence) {
			return fmt.Errorf("row %d: %w: sequence=%d mask=%d", i, ErrMaskLength, len(row.Sequence), len(row.Mask))
		}
		if len(row.Editable()) == 0 {
			return fmt.Errorf("row %d: %w", i, ErrNoEditablePosition)
		}
	}
	return nil
}

// Clone deep-copies every row.
func (p Population) Clone() Population {
	out := make(Population, len(p))
	for i, row := range p {
		out[i] = row.Clone()
	}
	return out
}

// Pairs returns the (sequence, target) pairs of the current rows.
func (p Population) Pairs() []Pair {
	pairs := make([]Pair, len(p))
	for i, row := range p {
		pairs[i] = Pair{Candidate: row.Sequence, Target: row.Target}
	}
	return pairs
}

// Proposal holds the per-generation companion fields of a row. It is either
// promoted into the row on acceptance or dropped.
type Proposal struct {
	Sequence string
	Mask     []bool
	Fitness  float64
}

// Pair is one fitness oracle input.
type Pair struct {
	Candidate string `json:"candidate"`
	Target    string `json:"target"`
}

// StepResult is what a selector reports for one generation.
type StepResult struct {
	Accepted       []bool
	AcceptanceRate float64
	Temperature    float64
}

// Objective is the optimization direction of the fitness value.
type Objective string

const (
	Minimize Objective = "min"
	Maximize Objective = "max"
)

// ParseObjective accepts "min"/"minimize" and "max"/"maximize".
func ParseObjective(s string) (Objective, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "min", "minimize", "":
		return Minimize, nil
	case "max", "maximize":
		return Maximize, nil
	default:
		return "", fmt.Errorf("objective should be min or max, got %q", s)
	}
}

// Better reports whether a is strictly better than b.
func (o Objective) Better(a, b float64) bool {
	if o == Maximize {
		return a > b
	}
	return a < b
}

// EditType is a single point edit kind.
type EditType string

const (
	Substitution EditType = "substitution"
	Insertion    EditType = "insertion"
	Deletion     EditType = "deletion"
)

// EditTypes lists edit types in the order weighted draws iterate them.
var EditTypes = []EditType{Substitution, Insertion, Deletion}

// ParseEditType accepts the long names and the short labels sub, ins, del.
func ParseEditType(s string) (EditType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sub", "substitution":
		return Substitution, nil
	case "ins", "insertion":
		return Insertion, nil
	case "del", "deletion":
		return Deletion, nil
	default:
		return "", fmt.Errorf("%w: %q (expected one of sub, ins, del)", ErrInvalidEditType, s)
	}
}

// EditablePositions returns the indices where mask is true.
func EditablePositions(mask []bool) []int {
	positions := make([]int, 0, len(mask))
	for i, ok := range mask {
		if ok {
			positions = append(positions, i)
		}
	}
	return positions
}

// WindowMask builds a mask of the given length whose inclusive window
// [start, end] is editable.
func WindowMask(length, start, end int) ([]bool, error) {
	if start < 0 || end < start || end >= length {
		return nil, fmt.Errorf("invalid mutable window [%d, %d] for length %d", start, end, length)
	}
	mask := make([]bool, length)
	for i := start; i <= end; i++ {
		mask[i] = true
	}
	return mask, nil
}

// FormatMask renders a mask as a string of 1 and 0 characters.
func FormatMask(mask []bool) string {
	var b strings.Builder
	b.Grow(len(mask))
	for _, ok := range mask {
		if ok {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// ParseMask is the inverse of FormatMask.
func ParseMask(s string) ([]bool, error) {
	mask := make([]bool, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '1':
			mask[i] = true
		case '0':
		default:
			return nil, fmt.Errorf("invalid mask character %q at %d", s[i], i)
		}
	}
	return mask, nil
}
