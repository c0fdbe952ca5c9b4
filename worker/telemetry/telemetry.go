package telemetry

import (
	"context"
	"expvar"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Telemetry keeps run-level counters for the status endpoint and writes the
// structured run log. Per-generation metrics go to Prometheus instead.
type Telemetry struct {
	mu sync.RWMutex

	RunsTotal          *expvar.Int
	RunsFailed         *expvar.Int
	GenerationsTotal   *expvar.Int
	LastAcceptanceRate *expvar.Float
	AvgRunTime         *expvar.Float

	vars         *expvar.Map
	totalRunTime time.Duration
	service      string

	logger *slog.Logger
}

// NewTelemetry creates a new telemetry instance. The counters are kept in a
// private expvar map so several instances can coexist.
func NewTelemetry(service string, logger *slog.Logger) *Telemetry {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Telemetry{
		RunsTotal:          new(expvar.Int),
		RunsFailed:         new(expvar.Int),
		GenerationsTotal:   new(expvar.Int),
		LastAcceptanceRate: new(expvar.Float),
		AvgRunTime:         new(expvar.Float),
		vars:               new(expvar.Map).Init(),
		service:            service,
		logger:             logger,
	}
	t.vars.Set("runs_total", t.RunsTotal)
	t.vars.Set("runs_failed", t.RunsFailed)
	t.vars.Set("generations_total", t.GenerationsTotal)
	t.vars.Set("last_acceptance_rate", t.LastAcceptanceRate)
	t.vars.Set("avg_run_time_ms", t.AvgRunTime)
	return t
}

// LogRunStart logs the start of an optimization run
func (t *Telemetry) LogRunStart(ctx context.Context, runID string, rows, generations int) {
	t.logger.InfoContext(ctx, "run_started",
		"run_id", runID,
		"rows", rows,
		"generations", generations,
	)
}

// LogGeneration records one finished generation
func (t *Telemetry) LogGeneration(ctx context.Context, runID string, generation int, acceptanceRate, temperature, best float64) {
	t.GenerationsTotal.Add(1)
	t.LastAcceptanceRate.Set(acceptanceRate)

	t.logger.DebugContext(ctx, "generation_finished",
		"run_id", runID,
		"generation", generation,
		"acceptance_rate", acceptanceRate,
		"temperature", temperature,
		"best_fitness", best,
	)
}

// LogRunEnd logs the end of a run. err is nil for a completed run.
func (t *Telemetry) LogRunEnd(ctx context.Context, runID string, generations int, duration time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.RunsTotal.Add(1)
	t.totalRunTime += duration

	if err == nil {
		t.logger.InfoContext(ctx, "run_completed",
			"run_id", runID,
			"duration_ms", duration.Milliseconds(),
			"generations", generations,
		)
	} else {
		t.RunsFailed.Add(1)
		t.logger.WarnContext(ctx, "run_failed",
			"run_id", runID,
			"duration_ms", duration.Milliseconds(),
			"generations", generations,
			"error", err,
		)
	}

	if n := t.RunsTotal.Value(); n > 0 {
		t.AvgRunTime.Set(float64(t.totalRunTime.Milliseconds()) / float64(n))
	}
}

// HealthHandler returns a simple health check
func (t *Telemetry) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"status":"ok","service":%q}`, t.service)
}

// StatsHandler returns the run counters as JSON
func (t *Telemetry) StatsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(t.vars.String()))
}
