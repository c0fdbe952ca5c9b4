package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/snow-ghost/bindopt/core"
)

// ErrInvalidJob is returned for a job whose merged configuration does not
// validate.
var ErrInvalidJob = errors.New("invalid job")

// Job is one optimization request. Zero fields fall back to the service's
// base configuration.
type Job struct {
	SeedSequence     string             `json:"seed_sequence"`
	Target           string             `json:"target"`
	WindowStart      *int               `json:"window_start,omitempty"`
	WindowEnd        *int               `json:"window_end,omitempty"`
	NumSeeds         int                `json:"num_seeds,omitempty"`
	Generations      int                `json:"generations,omitempty"`
	Seed             *int64             `json:"seed,omitempty"`
	Generator        string             `json:"generator,omitempty"`
	Objective        string             `json:"objective,omitempty"`
	Temperature      *float64           `json:"temperature,omitempty"`
	TemperatureDecay *float64           `json:"temperature_decay,omitempty"`
	EditCounts       map[string]float64 `json:"edit_counts,omitempty"`
	EditTypes        map[string]float64 `json:"edit_types,omitempty"`
}

// JobResult is returned for a finished job.
type JobResult struct {
	RunResult
	DurationMS int64 `json:"duration_ms"`
}

// Service runs jobs against a base configuration and shared dependencies.
type Service struct {
	Base RunConfig
	Deps Deps
}

// NewService creates a new optimization service
func NewService(base RunConfig, deps Deps) *Service {
	if deps.Protection == nil {
		deps.Protection = deps.protection()
	}
	return &Service{Base: base, Deps: deps}
}

// Config merges job into the base configuration.
func (s *Service) Config(job Job) RunConfig {
	cfg := s.Base
	if job.SeedSequence != "" {
		cfg.SeedSequence = job.SeedSequence
	}
	if job.Target != "" {
		cfg.Target = job.Target
	}
	if job.WindowStart != nil {
		cfg.WindowStart = *job.WindowStart
	}
	if job.WindowEnd != nil {
		cfg.WindowEnd = *job.WindowEnd
	}
	if job.NumSeeds > 0 {
		cfg.NumSeeds = job.NumSeeds
	}
	if job.Generations > 0 {
		cfg.Generations = job.Generations
	}
	if job.Seed != nil {
		cfg.Seed = *job.Seed
	}
	if job.Generator != "" {
		cfg.Generator = job.Generator
	}
	if job.Objective != "" {
		cfg.Selection.Objective = core.Objective(job.Objective)
	}
	if job.Temperature != nil {
		cfg.Selection.Temperature = *job.Temperature
	}
	if job.TemperatureDecay != nil {
		cfg.Selection.TemperatureDecay = *job.TemperatureDecay
	}
	if len(job.EditCounts) > 0 {
		cfg.Edits.EditCounts = job.EditCounts
	}
	if len(job.EditTypes) > 0 {
		cfg.Edits.EditTypes = job.EditTypes
	}
	// jobs never share the service's snapshot directory
	cfg.Snapshots = SnapshotConfig{}
	return cfg
}

// Run builds the components for job, seeds the population and optimizes it.
func (s *Service) Run(ctx context.Context, job Job) (JobResult, error) {
	cfg := s.Config(job)
	if err := cfg.Validate(); err != nil {
		return JobResult{}, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if s.Base.Server.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Base.Server.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := Run(ctx, cfg, s.Deps)
	return JobResult{RunResult: res, DurationMS: time.Since(start).Milliseconds()}, err
}

// Run wires cfg, seeds the population from the configured window and runs
// all generations.
func Run(ctx context.Context, cfg RunConfig, deps Deps) (RunResult, error) {
	c, err := Build(ctx, cfg, deps)
	if err != nil {
		return RunResult{}, err
	}
	defer c.Close()

	pop, err := WindowPopulation(ctx, c.Oracle, cfg.SeedSequence, cfg.Target, cfg.WindowStart, cfg.WindowEnd, cfg.NumSeeds)
	if err != nil {
		return RunResult{}, err
	}
	return c.Optimizer.Optimize(ctx, pop, cfg.Generations)
}
