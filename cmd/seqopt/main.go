package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/pkg/observability"
	"github.com/snow-ghost/bindopt/pkg/snapshot"
	"github.com/snow-ghost/bindopt/worker"
	"github.com/snow-ghost/bindopt/worker/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seqopt: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", os.Getenv("BINDOPT_CONFIG"), "Path to a YAML or TOML run configuration")
		seedSeq     = flag.String("seed-sequence", "", "Starting binder sequence")
		target      = flag.String("target", "", "Target sequence passed to the fitness oracle")
		windowStart = flag.Int("window-start", 0, "First editable position (inclusive)")
		windowEnd   = flag.Int("window-end", 0, "Last editable position (inclusive)")
		numSeeds    = flag.Int("num-seeds", 0, "Number of population rows")
		generations = flag.Int("generations", 0, "Number of generations")
		seed        = flag.Int64("seed", 0, "Random seed")
		workers     = flag.Int("workers", 0, "Concurrent proposals per generation (0 = GOMAXPROCS)")
		generator   = flag.String("generator", "", "Generator: edit, oracle-sequential, oracle-simultaneous")
		objective   = flag.String("objective", "", "Objective: min or max")
		temperature = flag.Float64("temperature", 0, "Initial Metropolis temperature")
		decay       = flag.Float64("temperature-decay", 0, "Temperature multiplier applied after every generation")
		oracleType  = flag.String("oracle", "", "Fitness oracle: constant, length, http, embedding, wasm")
		snapshotDir = flag.String("snapshot-dir", "", "Directory for per-generation snapshots")
		output      = flag.String("output", "", "Final population CSV")
		acceptance  = flag.String("acceptance-output", "", "Acceptance rate CSV")
		resume      = flag.Bool("resume", false, "Continue from the latest snapshot in -snapshot-dir")
	)
	flag.Parse()

	cfg, err := worker.LoadRunConfig(*configPath)
	if err != nil {
		return err
	}

	// flags only override what was set on the command line
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed-sequence":
			cfg.SeedSequence = strings.ToUpper(*seedSeq)
		case "target":
			cfg.Target = strings.ToUpper(*target)
		case "window-start":
			cfg.WindowStart = *windowStart
		case "window-end":
			cfg.WindowEnd = *windowEnd
		case "num-seeds":
			cfg.NumSeeds = *numSeeds
		case "generations":
			cfg.Generations = *generations
		case "seed":
			cfg.Seed = *seed
		case "workers":
			cfg.Workers = *workers
		case "generator":
			cfg.Generator = *generator
		case "objective":
			cfg.Selection.Objective = core.Objective(*objective)
		case "temperature":
			cfg.Selection.Temperature = *temperature
		case "temperature-decay":
			cfg.Selection.TemperatureDecay = *decay
		case "oracle":
			cfg.Oracle.Type = *oracleType
		case "snapshot-dir":
			cfg.Snapshots.Dir = *snapshotDir
		case "output":
			cfg.Output.Population = *output
		case "acceptance-output":
			cfg.Output.Acceptance = *acceptance
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	serviceName := cfg.Tracing.ServiceName
	if serviceName == "" {
		serviceName = "seqopt"
	}
	obs, err := observability.NewManager(observability.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		MetricsAddr:    cfg.Server.MetricsAddr,
		Logging:        cfg.Logging,
	})
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	obs.ServeMetrics(cfg.Server.MetricsAddr)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(ctx)
	}()
	logger := obs.GetLogger().GetSlog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := worker.Build(ctx, cfg, worker.Deps{
		Logger:    logger,
		Metrics:   obs.GetMetrics(),
		Tracer:    obs.GetTracer(),
		Telemetry: telemetry.NewTelemetry(serviceName, logger),
	})
	if err != nil {
		return err
	}
	defer c.Close()

	pop, start, remaining, err := startingPopulation(ctx, cfg, c, *resume, logger)
	if err != nil {
		return err
	}
	c.Optimizer.StartGeneration = start

	res, runErr := c.Optimizer.Optimize(ctx, pop, remaining)
	if len(res.Population) > 0 {
		if err := snapshot.WritePopulationFile(cfg.Output.Population, res.Population); err != nil {
			return errors.Join(runErr, fmt.Errorf("write population: %w", err))
		}
	}
	if err := snapshot.WriteAcceptance(cfg.Output.Acceptance, start, res.AcceptanceRates); err != nil {
		return errors.Join(runErr, fmt.Errorf("write acceptance rates: %w", err))
	}
	if runErr != nil {
		return runErr
	}

	best := bestRow(res.Population, c.Optimizer)
	logger.Info("optimization finished",
		"run_id", res.RunID,
		"generations", len(res.AcceptanceRates),
		"best_sequence", best.Sequence,
		"best_fitness", best.Fitness,
		"output", cfg.Output.Population,
	)
	return nil
}

// startingPopulation seeds a fresh population, or reloads the latest
// snapshot when resuming. It returns the first generation number and how
// many generations are left.
func startingPopulation(ctx context.Context, cfg worker.RunConfig, c *worker.Components, resume bool, logger *slog.Logger) (core.Population, int, int, error) {
	if resume {
		format := strings.ToLower(cfg.Snapshots.Format)
		if cfg.Snapshots.Dir == "" || (format != "" && format != "csv") {
			return nil, 0, 0, fmt.Errorf("-resume needs csv snapshots in -snapshot-dir")
		}
		last, pop, err := snapshot.LoadLatest(cfg.Snapshots.Dir)
		switch {
		case err == nil:
			start := last + 1
			remaining := max(cfg.Generations-start, 0)
			logger.Info("resuming from snapshot", "generation", last, "rows", len(pop), "remaining", remaining)
			return pop, start, remaining, nil
		case errors.Is(err, snapshot.ErrNoSnapshots), errors.Is(err, fs.ErrNotExist):
			logger.Info("no snapshot to resume from, starting fresh", "dir", cfg.Snapshots.Dir)
		default:
			return nil, 0, 0, err
		}
	}

	pop, err := worker.WindowPopulation(ctx, c.Oracle, cfg.SeedSequence, cfg.Target, cfg.WindowStart, cfg.WindowEnd, cfg.NumSeeds)
	if err != nil {
		return nil, 0, 0, err
	}
	return pop, 0, cfg.Generations, nil
}

func bestRow(pop core.Population, o *worker.Optimizer) core.Candidate {
	objective := core.Minimize
	if m, ok := o.Selector.(interface{ Objective() core.Objective }); ok {
		objective = m.Objective()
	}
	var best core.Candidate
	for i, row := range pop {
		if i == 0 || objective.Better(row.Fitness, best.Fitness) {
			best = row
		}
	}
	return best
}
