package mutate

import (
	"context"
	"fmt"

	"github.com/snow-ghost/bindopt/core"
)

// marker decides what an edit writes. Variants differ only here.
type marker struct {
	substitute func(rng core.Rand, current byte) byte
	insert     func(rng core.Rand) byte
}

// apply draws k edits and applies them to copies of seq and mask.
func (e *Editor) apply(rng core.Rand, seq string, mask []bool, m marker) ([]byte, []bool, error) {
	if len(mask) != len(seq) {
		return nil, nil, fmt.Errorf("%w: sequence=%d mask=%d", core.ErrMaskLength, len(seq), len(mask))
	}
	out := []byte(seq)
	outMask := append(make([]bool, 0, len(mask)+3), mask...)

	k := e.drawCount(rng)
	for i := 0; i < k; i++ {
		positions := core.EditablePositions(outMask)
		if len(positions) == 0 {
			return nil, nil, core.ErrNoEditablePosition
		}
		typ, err := e.drawType(rng, len(out), len(positions))
		if err != nil {
			return nil, nil, err
		}
		pos := positions[rng.Intn(len(positions))]

		switch typ {
		case core.Substitution:
			out[pos] = m.substitute(rng, out[pos])
		case core.Insertion:
			r := m.insert(rng)
			out = append(out[:pos], append([]byte{r}, out[pos:]...)...)
			outMask = append(outMask[:pos], append([]bool{true}, outMask[pos:]...)...)
		case core.Deletion:
			out = append(out[:pos], out[pos+1:]...)
			outMask = append(outMask[:pos], outMask[pos+1:]...)
		}
	}
	return out, outMask, nil
}

// EditGenerator proposes concrete residues directly, without any oracle.
type EditGenerator struct {
	editor  *Editor
	mutable []byte
}

// NewEditGenerator creates an edit-only generator.
func NewEditGenerator(cfg EditConfig) (*EditGenerator, error) {
	editor, err := NewEditor(cfg)
	if err != nil {
		return nil, err
	}
	return &EditGenerator{editor: editor, mutable: core.MutableResidues()}, nil
}

// Propose implements core.Generator.
func (g *EditGenerator) Propose(_ context.Context, rng core.Rand, sequence string, mask []bool) (string, []bool, error) {
	out, outMask, err := g.editor.apply(rng, sequence, mask, marker{
		substitute: func(rng core.Rand, current byte) byte {
			pool := core.SubstitutionPool(current)
			return pool[rng.Intn(len(pool))]
		},
		insert: func(rng core.Rand) byte {
			return g.mutable[rng.Intn(len(g.mutable))]
		},
	})
	if err != nil {
		return "", nil, err
	}
	return string(out), outMask, nil
}
