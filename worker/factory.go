package worker

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/oracle"
	"github.com/snow-ghost/bindopt/oracle/mock"
	"github.com/snow-ghost/bindopt/pkg/cache"
	"github.com/snow-ghost/bindopt/pkg/limiter"
	"github.com/snow-ghost/bindopt/pkg/metrics"
	"github.com/snow-ghost/bindopt/pkg/snapshot"
	"github.com/snow-ghost/bindopt/pkg/tracing"
	"github.com/snow-ghost/bindopt/residue"
	"github.com/snow-ghost/bindopt/worker/mutate"
	"github.com/snow-ghost/bindopt/worker/selector"
	"github.com/snow-ghost/bindopt/worker/telemetry"
)

// Deps are the shared services components are built with. Any of them may
// be nil.
type Deps struct {
	Logger     *slog.Logger
	Metrics    *metrics.PrometheusMetrics
	Tracer     *tracing.Tracer
	Protection *limiter.ProtectionManager
	Telemetry  *telemetry.Telemetry
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d Deps) protection() *limiter.ProtectionManager {
	if d.Protection != nil {
		return d.Protection
	}
	return limiter.NewProtectionManager(d.Logger, d.Metrics)
}

// Components is a wired optimizer plus the resources it holds.
type Components struct {
	Optimizer *Optimizer
	Oracle    core.FitnessOracle
	closers   []func()
}

// Close releases caches, plugin runtimes and databases.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build wires every component described by cfg.
func Build(ctx context.Context, cfg RunConfig, deps Deps) (*Components, error) {
	if deps.Protection == nil {
		deps.Protection = deps.protection()
	}
	c := &Components{}
	runID := uuid.NewString()

	fitness, err := buildFitnessOracle(ctx, cfg.Oracle, deps, c)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Oracle = fitness

	gen, err := buildGenerator(cfg, deps, c)
	if err != nil {
		c.Close()
		return nil, err
	}

	sel, err := selector.NewMetropolis(cfg.Selection, deps.logger())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("selector: %w", err)
	}

	store, err := buildSnapshotStore(cfg.Snapshots, runID, c)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Optimizer = &Optimizer{
		RunID:     runID,
		Generator: gen,
		Oracle:    fitness,
		Selector:  sel,
		Snapshots: store,
		Workers:   cfg.Workers,
		Seed:      cfg.Seed,
		Logger:    deps.Logger,
		Telemetry: deps.Telemetry,
		Tracer:    deps.Tracer,
		Metrics:   deps.Metrics,
	}
	return c, nil
}

// BuildFitnessOracle wires the configured fitness oracle with its
// protection, batching, caching and instrumentation. The returned function
// releases it.
func BuildFitnessOracle(ctx context.Context, cfg OracleConfig, deps Deps) (core.FitnessOracle, func(), error) {
	if deps.Protection == nil {
		deps.Protection = deps.protection()
	}
	c := &Components{}
	o, err := buildFitnessOracle(ctx, cfg, deps, c)
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	return o, c.Close, nil
}

func buildFitnessOracle(ctx context.Context, cfg OracleConfig, deps Deps, c *Components) (core.FitnessOracle, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Type))

	var (
		base   core.FitnessOracle
		remote bool
	)
	switch name {
	case "constant":
		base = mock.NewConstantOracle(cfg.Constant)
	case "length":
		base = mock.NewFuncOracle(mock.Length)
	case "http":
		o, err := oracle.NewHTTPOracle(cfg.HTTP)
		if err != nil {
			return nil, err
		}
		base, remote = o, true
	case "embedding":
		o, err := oracle.NewEmbeddingOracle(cfg.Embedding, nil, deps.Metrics)
		if err != nil {
			return nil, err
		}
		base, remote = o, true
	case "wasm":
		o, err := oracle.LoadWASMOracle(ctx, cfg.WASM)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() { _ = o.Close(context.Background()) })
		base = o
	default:
		return nil, fmt.Errorf("oracle type must be one of constant, length, http, embedding, wasm, got %q", cfg.Type)
	}

	if remote {
		base = oracle.NewProtected(base, name, deps.Protection, cfg.Policy)
	}
	o := core.FitnessOracle(oracle.NewInstrumented(base, name, deps.Tracer, deps.Metrics, deps.Logger))
	if cfg.BatchSize > 0 {
		o = oracle.NewBatched(o, cfg.BatchSize)
	}
	if cfg.CacheSize > 0 {
		cm, err := cache.NewCacheManager[float64]("fitness", &cache.CacheConfig{MaxSize: cfg.CacheSize}, deps.Metrics)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, cm.Close)
		o = oracle.NewCached(o, cm)
	}
	return o, nil
}

func buildResidueOracle(cfg ResidueConfig, deps Deps, c *Components) (core.ResidueOracle, error) {
	var o core.ResidueOracle
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "http", "":
		deps.Protection.Register("residue", cfg.Policy)
		remote, err := residue.NewHTTPOracle(cfg.HTTP, deps.Protection)
		if err != nil {
			return nil, err
		}
		o = remote
	case "profile":
		vocab := cfg.HTTP.Vocabulary
		if len(vocab) == 0 {
			vocab = residue.DefaultVocabulary()
		}
		profile := cfg.Profile
		if len(profile) == 0 {
			profile = residue.UniformProfile(vocab, core.Residues)
		}
		p, err := residue.NewProfileOracle(vocab, profile)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("residue oracle type must be http or profile, got %q", cfg.Type)
	}

	if cfg.CacheSize > 0 {
		cm, err := cache.NewCacheManager[[][]float64]("residue", &cache.CacheConfig{MaxSize: cfg.CacheSize}, deps.Metrics)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, cm.Close)
		o = residue.NewCached(o, cm)
	}
	return o, nil
}

func buildGenerator(cfg RunConfig, deps Deps, c *Components) (core.Generator, error) {
	kind, err := NormalizeGenerator(cfg.Generator)
	if err != nil {
		return nil, err
	}
	if kind == GeneratorEdit {
		return mutate.NewEditGenerator(cfg.Edits)
	}

	ro, err := buildResidueOracle(cfg.Residue, deps, c)
	if err != nil {
		return nil, fmt.Errorf("residue oracle: %w", err)
	}
	if kind == GeneratorOracleSequential {
		return mutate.NewSequentialGenerator(cfg.Edits, ro, deps.logger(), deps.Metrics)
	}
	return mutate.NewSimultaneousGenerator(cfg.Edits, ro, cfg.BatchSize, deps.logger(), deps.Metrics)
}

func buildSnapshotStore(cfg SnapshotConfig, runID string, c *Components) (core.SnapshotStore, error) {
	switch strings.ToLower(cfg.Format) {
	case "", "csv":
		if cfg.Dir == "" {
			return nil, nil
		}
		return snapshot.NewCSVStore(cfg.Dir), nil
	case "sqlite":
		path := cfg.SQLite
		if path == "" {
			if cfg.Dir == "" {
				return nil, fmt.Errorf("sqlite snapshots need sqlite_path or dir")
			}
			path = filepath.Join(cfg.Dir, "snapshots.db")
		}
		store, err := snapshot.NewSQLiteStore(path, runID)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() { _ = store.Close() })
		return store, nil
	default:
		return nil, fmt.Errorf("snapshot format must be csv or sqlite, got %q", cfg.Format)
	}
}
