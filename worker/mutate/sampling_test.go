package mutate

import (
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/pkg/logging"
	"github.com/snow-ghost/bindopt/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func weightsFor(assign map[string]float64) []float64 {
	w := make([]float64, len(testVocab))
	for i, tok := range testVocab {
		w[i] = assign[tok]
	}
	return w
}

func TestSamplerIgnoresNonResidueTokens(t *testing.T) {
	s, err := NewSampler(testVocab, nil, nil)
	require.NoError(t, err)
	assert.Len(t, s.tokens, len(core.Residues))

	w := weightsFor(map[string]float64{"<mask>": 100, "X": 50, "K": 1})
	for i := 0; i < 10; i++ {
		r, err := s.Sample(core.NewRowRand(int64(i), 0), w, 0)
		require.NoError(t, err)
		assert.Equal(t, byte('K'), r)
	}
}

func TestSamplerForbiddenAndBadWeights(t *testing.T) {
	s, err := NewSampler(testVocab, nil, nil)
	require.NoError(t, err)

	w := weightsFor(map[string]float64{"A": 10, "G": 1, "L": math.NaN(), "M": math.Inf(1), "P": -3})
	for i := 0; i < 20; i++ {
		r, err := s.Sample(core.NewRowRand(int64(i), 1), w, 'A')
		require.NoError(t, err)
		assert.Equal(t, byte('G'), r)
	}
}

func TestSamplerFallsBackToUniform(t *testing.T) {
	zc, logs := observer.New(zapcore.WarnLevel)
	logger := logging.NewWithCore(zc)
	reg := prometheus.NewRegistry()
	m := metrics.NewPrometheusMetrics(reg)

	s, err := NewSampler(testVocab, logger.GetSlog(), m)
	require.NoError(t, err)

	w := weightsFor(map[string]float64{"A": 1})
	r, err := s.Sample(&scriptedRand{ints: []int{18}}, w, 'A')
	require.NoError(t, err)
	assert.Equal(t, byte('W'), r)
	assert.Equal(t, 1, logs.Len())

	families, err := reg.Gather()
	require.NoError(t, err)
	var fallback float64
	for _, mf := range families {
		if mf.GetName() == "bindopt_residue_fallback_total" {
			fallback = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 1.0, fallback)
}

func TestSamplerShapeErrors(t *testing.T) {
	_, err := NewSampler([]string{"<cls>", "<eos>"}, nil, nil)
	require.Error(t, err)

	s, err := NewSampler(testVocab, nil, nil)
	require.NoError(t, err)
	_, err = s.Sample(&scriptedRand{}, []float64{1, 2}, 0)
	require.ErrorIs(t, err, core.ErrOracleMismatch)
}
