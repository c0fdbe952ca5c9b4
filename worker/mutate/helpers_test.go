package mutate

import (
	"context"
	"strings"
	"sync"

	"github.com/snow-ghost/bindopt/core"
)

// scriptedRand replays queued draws and returns zero once a queue runs dry.
type scriptedRand struct {
	floats []float64
	ints   []int
}

func (r *scriptedRand) Float64() float64 {
	if len(r.floats) == 0 {
		return 0
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func (r *scriptedRand) Intn(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v % n
}

func (r *scriptedRand) Shuffle(int, func(i, j int)) {}

var testVocab = append([]string{"<cls>", "<pad>", "<eos>", "<unk>"}, append(strings.Split(core.Residues, ""), "X", "<mask>")...)

// fakeResidueOracle puts all mass on one residue at every position.
type fakeResidueOracle struct {
	residue string
	mu      sync.Mutex
	calls   [][]string
}

func (o *fakeResidueOracle) Vocabulary() []string { return testVocab }

func (o *fakeResidueOracle) Predict(_ context.Context, sequences []string) ([][][]float64, error) {
	o.mu.Lock()
	o.calls = append(o.calls, append([]string(nil), sequences...))
	o.mu.Unlock()

	out := make([][][]float64, len(sequences))
	for i, seq := range sequences {
		out[i] = make([][]float64, len(seq))
		for p := range seq {
			w := make([]float64, len(testVocab))
			for v, tok := range testVocab {
				if tok == o.residue {
					w[v] = 1
				}
			}
			out[i][p] = w
		}
	}
	return out, nil
}

func fixedConfig(length int, types map[string]float64, edits string) EditConfig {
	return EditConfig{
		EditCounts: map[string]float64{edits: 1},
		EditTypes:  types,
		MinLength:  length,
		MaxLength:  length,
	}
}
