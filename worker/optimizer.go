package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/oracle"
	"github.com/snow-ghost/bindopt/pkg/metrics"
	"github.com/snow-ghost/bindopt/pkg/tracing"
	"github.com/snow-ghost/bindopt/worker/telemetry"
)

// Optimizer runs the propose, score, select loop over a population.
type Optimizer struct {
	// RunID tags logs, spans and results. Generated when empty.
	RunID string

	Generator core.Generator
	Oracle    core.FitnessOracle
	Selector  core.Selector
	Snapshots core.SnapshotStore // optional

	// Workers bounds concurrent per-row proposals. Zero means GOMAXPROCS.
	Workers int
	// Seed derives one random stream per row for the whole run.
	Seed int64
	// StartGeneration numbers the first generation, for resumed runs. A
	// selector with an Advance(n) method is moved forward that many
	// generations so its schedule picks up where the interrupted run stopped.
	StartGeneration int
	// Objective orders fitness in diagnostics. When empty it is taken from
	// the selector if the selector reports one, else minimize.
	Objective core.Objective

	Logger    *slog.Logger
	Telemetry *telemetry.Telemetry
	Tracer    *tracing.Tracer
	Metrics   *metrics.PrometheusMetrics
}

// RunResult is the outcome of an optimization run.
type RunResult struct {
	RunID           string                  `json:"run_id"`
	Population      core.Population         `json:"population"`
	AcceptanceRates []float64               `json:"acceptance_rates"`
	Diagnostics     []GenerationDiagnostics `json:"diagnostics"`
}

// Optimize evolves a copy of pop for the given number of generations. The
// input population is not modified. An error from the generator, the oracle
// or the selector stops the run and is returned with the generation it
// happened in; the partial result holds every finished generation.
func (o *Optimizer) Optimize(ctx context.Context, pop core.Population, generations int) (RunResult, error) {
	if generations < 0 {
		return RunResult{}, fmt.Errorf("generations should be non-negative, got %d", generations)
	}
	if err := pop.Validate(); err != nil {
		return RunResult{}, err
	}
	if o.Generator == nil || o.Oracle == nil || o.Selector == nil {
		return RunResult{}, fmt.Errorf("optimizer needs a generator, an oracle and a selector")
	}

	runID := o.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := o.logger().With("run_id", runID)
	if o.Snapshots != nil {
		if err := o.Snapshots.Prepare(); err != nil {
			return RunResult{}, fmt.Errorf("prepare snapshot store: %w", err)
		}
	}

	ctx, span := o.Tracer.StartRunSpan(ctx, runID, len(pop), generations)
	defer span.End()

	if o.StartGeneration > 0 {
		if s, ok := o.Selector.(interface{ Advance(n int) }); ok {
			s.Advance(o.StartGeneration)
		}
	}

	rows := pop.Clone()
	// resumed runs must not replay the streams of the generations before them
	rngs := core.NewRowRands(o.Seed+int64(o.StartGeneration), len(rows))
	result := RunResult{
		RunID:           runID,
		AcceptanceRates: make([]float64, 0, generations),
		Diagnostics:     make([]GenerationDiagnostics, 0, generations),
	}

	start := time.Now()
	if o.Telemetry != nil {
		o.Telemetry.LogRunStart(ctx, runID, len(rows), generations)
	}

	var runErr error
	for i := 0; i < generations; i++ {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		gen := o.StartGeneration + i

		d, err := o.generation(ctx, logger, gen, rows, rngs)
		if err != nil {
			runErr = fmt.Errorf("generation %d: %w", gen, err)
			break
		}
		result.AcceptanceRates = append(result.AcceptanceRates, d.AcceptanceRate)
		result.Diagnostics = append(result.Diagnostics, d)
		if o.Telemetry != nil {
			o.Telemetry.LogGeneration(ctx, runID, gen, d.AcceptanceRate, d.Temperature, d.BestFitness)
		}

		if o.Snapshots != nil {
			if err := o.Snapshots.Save(gen, rows); err != nil {
				logger.Warn("snapshot write failed", "generation", gen, "error", err)
				o.Metrics.RecordSnapshotFailure()
			}
		}
	}

	result.Population = rows
	if o.Telemetry != nil {
		o.Telemetry.LogRunEnd(ctx, runID, len(result.AcceptanceRates), time.Since(start), runErr)
	}
	if runErr != nil {
		tracing.RecordSpanError(span, runErr)
		return result, runErr
	}
	tracing.RecordSpanSuccess(span)
	return result, nil
}

func (o *Optimizer) generation(ctx context.Context, logger *slog.Logger, gen int, rows core.Population, rngs []core.Rand) (GenerationDiagnostics, error) {
	ctx, span := o.Tracer.StartGenerationSpan(ctx, gen)
	defer span.End()
	start := time.Now()

	proposals, err := o.propose(ctx, rows, rngs)
	if err != nil {
		tracing.RecordSpanError(span, err)
		return GenerationDiagnostics{}, fmt.Errorf("propose: %w", err)
	}

	pairs := make([]core.Pair, len(proposals))
	for i, p := range proposals {
		pairs[i] = core.Pair{Candidate: p.Sequence, Target: rows[i].Target}
	}
	scores, err := oracle.Score(ctx, o.Oracle, pairs)
	if err != nil {
		tracing.RecordSpanError(span, err)
		return GenerationDiagnostics{}, fmt.Errorf("score proposals: %w", err)
	}
	for i := range proposals {
		proposals[i].Fitness = scores[i]
	}

	step, err := o.Selector.Step(rows, proposals, rngs)
	if err != nil {
		tracing.RecordSpanError(span, err)
		return GenerationDiagnostics{}, fmt.Errorf("select: %w", err)
	}

	d := diagnose(gen, rows, step, o.objective())
	elapsed := time.Since(start)
	o.Metrics.RecordGeneration(d.AcceptanceRate, d.Temperature, d.BestFitness, d.Accepted, len(rows)-d.Accepted, elapsed)
	logger.Info("generation completed",
		"generation", gen,
		"acceptance_rate", d.AcceptanceRate,
		"temperature", d.Temperature,
		"best_fitness", d.BestFitness,
		"mean_fitness", d.MeanFitness,
		"duration_ms", elapsed.Milliseconds(),
	)
	tracing.AddSpanAttributes(span, map[string]interface{}{
		"generation.acceptance_rate": d.AcceptanceRate,
		"generation.best_fitness":    d.BestFitness,
	})
	tracing.RecordSpanSuccess(span)
	return d, nil
}

// propose builds one proposal per row. Batch generators get the whole
// population in one call; other generators run per row on a bounded pool.
// Each row only ever touches its own random stream.
func (o *Optimizer) propose(ctx context.Context, rows core.Population, rngs []core.Rand) ([]core.Proposal, error) {
	proposals := make([]core.Proposal, len(rows))

	if batch, ok := o.Generator.(core.BatchGenerator); ok {
		seqs := make([]string, len(rows))
		masks := make([][]bool, len(rows))
		for i, row := range rows {
			seqs[i] = row.Sequence
			masks[i] = row.Mask
		}
		outSeqs, outMasks, err := batch.ProposeBatch(ctx, rngs, seqs, masks)
		if err != nil {
			return nil, err
		}
		if len(outSeqs) != len(rows) || len(outMasks) != len(rows) {
			return nil, fmt.Errorf("batch generator returned %d proposals for %d rows", len(outSeqs), len(rows))
		}
		for i := range rows {
			proposals[i] = core.Proposal{Sequence: outSeqs[i], Mask: outMasks[i]}
		}
		return proposals, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers())
	for i := range rows {
		i := i
		g.Go(func() error {
			seq, mask, err := o.Generator.Propose(gctx, rngs[i], rows[i].Sequence, rows[i].Mask)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			proposals[i] = core.Proposal{Sequence: seq, Mask: mask}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return proposals, nil
}

func (o *Optimizer) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (o *Optimizer) objective() core.Objective {
	if o.Objective != "" {
		return o.Objective
	}
	if s, ok := o.Selector.(interface{ Objective() core.Objective }); ok {
		return s.Objective()
	}
	return core.Minimize
}

func (o *Optimizer) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
