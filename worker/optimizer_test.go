package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/oracle/mock"
	"github.com/snow-ghost/bindopt/pkg/logging"
	"github.com/snow-ghost/bindopt/pkg/metrics"
	"github.com/snow-ghost/bindopt/residue"
	"github.com/snow-ghost/bindopt/worker/mutate"
	"github.com/snow-ghost/bindopt/worker/selector"
	"github.com/snow-ghost/bindopt/worker/telemetry"
)

const testSeed = "MKTAYIAKQR"

func testEdits() mutate.EditConfig {
	return mutate.EditConfig{
		EditCounts: map[string]float64{"1": 0.5, "2": 0.5},
		EditTypes:  map[string]float64{"sub": 0.6, "ins": 0.2, "del": 0.2},
		MinLength:  8,
		MaxLength:  12,
	}
}

func testPopulation(t *testing.T, rows int, fitness float64) core.Population {
	t.Helper()
	mask, err := core.WindowMask(len(testSeed), 3, 6)
	require.NoError(t, err)
	pop := make(core.Population, rows)
	for i := range pop {
		pop[i] = core.Candidate{Sequence: testSeed, Mask: append([]bool(nil), mask...), Target: "KKLL", Fitness: fitness}
	}
	return pop
}

func newOptimizer(t *testing.T, o core.FitnessOracle, sel selector.Config) *Optimizer {
	t.Helper()
	gen, err := mutate.NewEditGenerator(testEdits())
	require.NoError(t, err)
	s, err := selector.NewMetropolis(sel, nil)
	require.NoError(t, err)
	logger := logging.NewNop().GetSlog()
	return &Optimizer{
		Generator: gen,
		Oracle:    o,
		Selector:  s,
		Seed:      42,
		Logger:    logger,
		Telemetry: telemetry.NewTelemetry("test", logger),
	}
}

type recordingStore struct {
	prepareErr error
	saveErr    error
	saved      []int
}

func (s *recordingStore) Prepare() error { return s.prepareErr }

func (s *recordingStore) Save(generation int, rows core.Population) error {
	s.saved = append(s.saved, generation)
	return s.saveErr
}

func TestOptimizeConstantOracleAcceptsEverything(t *testing.T) {
	o := mock.NewConstantOracle(0)
	opt := newOptimizer(t, o, selector.DefaultConfig())
	store := &recordingStore{}
	opt.Snapshots = store

	pop := testPopulation(t, 3, 0)
	res, err := opt.Optimize(context.Background(), pop, 5)
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 1, 1, 1, 1}, res.AcceptanceRates)
	require.Len(t, res.Diagnostics, 5)
	assert.Equal(t, 3, res.Diagnostics[4].Accepted)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, store.saved)
	assert.NotEmpty(t, res.RunID)

	calls, items := o.Calls()
	assert.Equal(t, 5, calls, "one oracle call per generation")
	assert.Equal(t, 15, items)

	for _, row := range res.Population {
		assert.Len(t, row.Mask, len(row.Sequence))
		assert.GreaterOrEqual(t, len(row.Sequence), 8)
		assert.LessOrEqual(t, len(row.Sequence), 12)
		assert.Equal(t, "MKT", row.Sequence[:3], "frozen prefix")
	}
	assert.Equal(t, testSeed, pop[0].Sequence, "input population is not modified")
}

func TestOptimizeZeroTemperatureNeverWorsens(t *testing.T) {
	score := func(c, _ string) float64 {
		n := 0.0
		for i := 0; i < len(c); i++ {
			if c[i] == 'W' {
				n--
			}
		}
		return n
	}
	opt := newOptimizer(t, mock.NewFuncOracle(score), selector.DefaultConfig())

	pop := testPopulation(t, 4, 0)
	res, err := opt.Optimize(context.Background(), pop, 30)
	require.NoError(t, err)

	best := 0.0
	for _, d := range res.Diagnostics {
		assert.LessOrEqual(t, d.BestFitness, best)
		best = d.BestFitness
	}
	for _, row := range res.Population {
		assert.Equal(t, score(row.Sequence, ""), row.Fitness)
		assert.LessOrEqual(t, row.Fitness, 0.0)
	}
}

func TestOptimizeIsDeterministicAcrossWorkerCounts(t *testing.T) {
	run := func(workers int) RunResult {
		opt := newOptimizer(t, mock.NewFuncOracle(mock.Length), selector.Config{Temperature: 1, TemperatureDecay: 0.9})
		opt.Workers = workers
		res, err := opt.Optimize(context.Background(), testPopulation(t, 6, 10), 10)
		require.NoError(t, err)
		return res
	}
	a, b := run(1), run(8)
	assert.Equal(t, a.Population, b.Population)
	assert.Equal(t, a.AcceptanceRates, b.AcceptanceRates)
}

func TestOptimizeBatchGenerator(t *testing.T) {
	vocab := residue.DefaultVocabulary()
	ro, err := residue.NewProfileOracle(vocab, residue.UniformProfile(vocab, core.Residues))
	require.NoError(t, err)
	gen, err := mutate.NewSimultaneousGenerator(testEdits(), ro, 2, logging.NewNop().GetSlog(), nil)
	require.NoError(t, err)

	opt := newOptimizer(t, mock.NewConstantOracle(0), selector.DefaultConfig())
	opt.Generator = gen

	res, err := opt.Optimize(context.Background(), testPopulation(t, 5, 0), 4)
	require.NoError(t, err)
	for _, row := range res.Population {
		assert.Len(t, row.Mask, len(row.Sequence))
		for i := 0; i < len(row.Sequence); i++ {
			assert.True(t, core.IsResidue(row.Sequence[i]), "unresolved marker in %s", row.Sequence)
		}
	}
}

func TestOptimizeSurfacesOracleErrors(t *testing.T) {
	opt := newOptimizer(t, &mock.FailingOracle{After: 2}, selector.DefaultConfig())
	res, err := opt.Optimize(context.Background(), testPopulation(t, 2, 0), 5)
	require.ErrorIs(t, err, mock.ErrUnavailable)
	assert.Contains(t, err.Error(), "generation 2")
	assert.Len(t, res.AcceptanceRates, 2, "finished generations are kept")

	opt = newOptimizer(t, mock.ShortOracle{}, selector.DefaultConfig())
	_, err = opt.Optimize(context.Background(), testPopulation(t, 2, 0), 1)
	require.ErrorIs(t, err, core.ErrOracleMismatch)
}

func TestOptimizeSnapshotFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	opt := newOptimizer(t, mock.NewConstantOracle(0), selector.DefaultConfig())
	opt.Metrics = metrics.NewPrometheusMetrics(reg)
	opt.Snapshots = &recordingStore{saveErr: errors.New("disk full")}

	res, err := opt.Optimize(context.Background(), testPopulation(t, 2, 0), 3)
	require.NoError(t, err, "a failed snapshot write does not stop the run")
	assert.Len(t, res.AcceptanceRates, 3)

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() == "bindopt_snapshot_failures_total" {
			found = true
			assert.Equal(t, 3.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)

	opt.Snapshots = &recordingStore{prepareErr: errors.New("read-only")}
	_, err = opt.Optimize(context.Background(), testPopulation(t, 2, 0), 3)
	require.Error(t, err)
}

func TestOptimizeValidatesInput(t *testing.T) {
	opt := newOptimizer(t, mock.NewConstantOracle(0), selector.DefaultConfig())

	_, err := opt.Optimize(context.Background(), core.Population{}, 1)
	require.ErrorIs(t, err, core.ErrEmptyPopulation)

	_, err = opt.Optimize(context.Background(), testPopulation(t, 1, 0), -1)
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := opt.Optimize(ctx, testPopulation(t, 1, 0), 3)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.AcceptanceRates)
}

func TestOptimizeResumeNumbersGenerations(t *testing.T) {
	opt := newOptimizer(t, mock.NewConstantOracle(0), selector.DefaultConfig())
	store := &recordingStore{}
	opt.Snapshots = store
	opt.StartGeneration = 7

	res, err := opt.Optimize(context.Background(), testPopulation(t, 1, 0), 2)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 8}, store.saved)
	assert.Equal(t, 7, res.Diagnostics[0].Generation)
}

func TestDiagnose(t *testing.T) {
	rows := core.Population{
		{Sequence: "AAAA", Fitness: 1},
		{Sequence: "AAAA", Fitness: 3},
		{Sequence: "CC", Fitness: 5},
	}
	step := core.StepResult{Accepted: []bool{true, false, true}, AcceptanceRate: 2.0 / 3, Temperature: 0.5}

	d := diagnose(4, rows, step, core.Minimize)
	assert.Equal(t, 4, d.Generation)
	assert.Equal(t, 2, d.Accepted)
	assert.Equal(t, 1.0, d.BestFitness)
	assert.Equal(t, 3.0, d.MeanFitness)
	assert.Equal(t, 2.0, d.StdFitness)
	assert.Equal(t, 2, d.UniqueSequences)
	assert.InDelta(t, 10.0/3, d.MeanLength, 1e-12)

	assert.Equal(t, 5.0, diagnose(0, rows, step, core.Maximize).BestFitness)

	single := diagnose(0, rows[:1], core.StepResult{}, core.Minimize)
	assert.Equal(t, 0.0, single.StdFitness)
}

func TestOptimizeResumeContinuesAnnealing(t *testing.T) {
	schedule := selector.Config{Temperature: 8, TemperatureDecay: 0.5}

	full := newOptimizer(t, mock.NewConstantOracle(0), schedule)
	uninterrupted, err := full.Optimize(context.Background(), testPopulation(t, 2, 0), 4)
	require.NoError(t, err)

	resumed := newOptimizer(t, mock.NewConstantOracle(0), schedule)
	resumed.StartGeneration = 3
	tail, err := resumed.Optimize(context.Background(), testPopulation(t, 2, 0), 1)
	require.NoError(t, err)

	require.Len(t, tail.Diagnostics, 1)
	assert.Equal(t, 3, tail.Diagnostics[0].Generation)
	assert.InDelta(t, uninterrupted.Diagnostics[3].Temperature, tail.Diagnostics[0].Temperature, 1e-12)
	assert.InDelta(t, 0.5, tail.Diagnostics[0].Temperature, 1e-12)
}
