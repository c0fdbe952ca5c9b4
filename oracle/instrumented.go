package oracle

import (
	"context"
	"log/slog"
	"time"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/pkg/metrics"
	"github.com/snow-ghost/bindopt/pkg/tracing"
)

// Instrumented records a span, latency and call counters around every call.
type Instrumented struct {
	next    core.FitnessOracle
	name    string
	tracer  *tracing.Tracer
	metrics *metrics.PrometheusMetrics
	logger  *slog.Logger
}

// NewInstrumented wraps next. tracer, m and logger may be nil.
func NewInstrumented(next core.FitnessOracle, name string, tracer *tracing.Tracer, m *metrics.PrometheusMetrics, logger *slog.Logger) *Instrumented {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instrumented{next: next, name: name, tracer: tracer, metrics: m, logger: logger}
}

// Score implements core.FitnessOracle
func (o *Instrumented) Score(ctx context.Context, pairs []core.Pair) ([]float64, error) {
	ctx, span := o.tracer.StartOracleSpan(ctx, o.name, len(pairs))
	defer span.End()

	start := time.Now()
	scores, err := o.next.Score(ctx, pairs)
	elapsed := time.Since(start)
	tracing.RecordSpanDuration(span, elapsed)

	status := "ok"
	if err != nil {
		status = "error"
		tracing.RecordSpanError(span, err)
		o.logger.Error("oracle call failed", "oracle", o.name, "items", len(pairs), "error", err)
	} else {
		tracing.RecordSpanSuccess(span)
		o.logger.Debug("oracle call completed", "oracle", o.name, "items", len(pairs), "duration_ms", elapsed.Milliseconds())
	}
	o.metrics.RecordOracleCall(o.name, status, len(pairs), elapsed)
	return scores, err
}
