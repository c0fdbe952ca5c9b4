package tokens

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResidueEncoder_Count(t *testing.T) {
	encoder := NewResidueEncoder()

	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{name: "empty string", text: "", expected: 1},
		{name: "short peptide", text: "ACDE", expected: 4},
		{name: "binder", text: "MKVLAAGIVGLLLAQ", expected: 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := encoder.Count(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, count)
		})
	}
}

func TestPack(t *testing.T) {
	texts := []string{"AAAA", "CCCC", "DDDDDDDD", "EE", "FFFFFFFFFFFF"}

	batches, total, err := Pack(NewResidueEncoder(), texts, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 30, total)
	assert.Equal(t, [][]int{{0, 1}, {2, 3}, {4}}, batches)

	batches, _, err = Pack(NewResidueEncoder(), texts, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{0, 1}, {2, 3}, {4}}, batches)

	batches, _, err = Pack(NewResidueEncoder(), nil, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

type failingEncoder struct{}

func (failingEncoder) Count(string) (int, error) { return 0, errors.New("no vocab") }

func TestPackPropagatesCountError(t *testing.T) {
	_, _, err := Pack(failingEncoder{}, []string{"A"}, 10, 1)
	require.Error(t, err)
}

func TestForModelFallsBack(t *testing.T) {
	_, ok := ForModel("esm2_t33_650M_UR50D").(*ResidueEncoder)
	assert.True(t, ok)
}
