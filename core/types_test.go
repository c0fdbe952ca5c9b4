package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateJSONRoundTrip(t *testing.T) {
	c := Candidate{
		ID:       "row-0",
		Sequence: "ACDE",
		Mask:     []bool{true, true, false, false},
		Target:   "KKLL",
		Fitness:  -3.5,
	}

	b, err := json.Marshal(c)
	require.NoError(t, err)

	var got Candidate
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, c, got)
}

func TestPopulationValidate(t *testing.T) {
	ok := Population{{Sequence: "ACDE", Mask: []bool{true, false, false, false}}}
	require.NoError(t, ok.Validate())

	require.ErrorIs(t, Population{}.Validate(), ErrEmptyPopulation)

	short := Population{{Sequence: "ACDE", Mask: []bool{true}}}
	require.ErrorIs(t, short.Validate(), ErrMaskLength)

	frozen := Population{{Sequence: "AC", Mask: []bool{false, false}}}
	require.ErrorIs(t, frozen.Validate(), ErrNoEditablePosition)
}

func TestPopulationCloneIsDeep(t *testing.T) {
	p := Population{{Sequence: "AC", Mask: []bool{true, false}}}
	c := p.Clone()
	c[0].Mask[1] = true
	assert.False(t, p[0].Mask[1])
}

func TestParseEditType(t *testing.T) {
	for in, want := range map[string]EditType{
		"sub": Substitution, "ins": Insertion, "del": Deletion,
		"Substitution": Substitution, " deletion ": Deletion,
	} {
		got, err := ParseEditType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseEditType("swap")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidEditType))
}

func TestParseObjective(t *testing.T) {
	o, err := ParseObjective("maximize")
	require.NoError(t, err)
	assert.Equal(t, Maximize, o)
	assert.True(t, o.Better(2, 1))

	o, err = ParseObjective("min")
	require.NoError(t, err)
	assert.True(t, o.Better(1, 2))

	_, err = ParseObjective("sideways")
	require.Error(t, err)
}

func TestWindowMask(t *testing.T) {
	mask, err := WindowMask(6, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, true, true, false, false}, mask)

	_, err = WindowMask(4, 2, 4)
	require.Error(t, err)
	_, err = WindowMask(4, 3, 2)
	require.Error(t, err)
}

func TestMaskFormatting(t *testing.T) {
	mask := []bool{true, false, true}
	s := FormatMask(mask)
	assert.Equal(t, "101", s)

	back, err := ParseMask(s)
	require.NoError(t, err)
	assert.Equal(t, mask, back)

	_, err = ParseMask("1x0")
	require.Error(t, err)
}

func TestSubstitutionPool(t *testing.T) {
	pool := SubstitutionPool('A')
	assert.Len(t, pool, len(Residues)-2)
	assert.NotContains(t, string(pool), "A")
	assert.NotContains(t, string(pool), "C")

	cys := SubstitutionPool('C')
	assert.Len(t, cys, len(Residues)-1)
	assert.NotContains(t, string(cys), "C")

	assert.Equal(t, MutableResidues(), SubstitutionPool('X'))
	assert.True(t, IsResidue('W'))
	assert.False(t, IsResidue('?'))
}

func TestRowRandsAreIndependentAndSeeded(t *testing.T) {
	a := NewRowRands(7, 3)
	b := NewRowRands(7, 3)
	for i := range a {
		assert.Equal(t, a[i].Float64(), b[i].Float64())
	}
	assert.NotEqual(t, NewRowRand(7, 0).Int63(), NewRowRand(7, 1).Int63())
}
