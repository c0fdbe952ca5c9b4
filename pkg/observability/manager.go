package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/snow-ghost/bindopt/pkg/logging"
	"github.com/snow-ghost/bindopt/pkg/metrics"
	"github.com/snow-ghost/bindopt/pkg/tracing"
)

// Manager manages all observability components
type Manager struct {
	metrics  *metrics.PrometheusMetrics
	registry *prometheus.Registry
	tracer   *tracing.Tracer
	logger   *logging.Logger
	server   *http.Server
}

// Config holds observability configuration
type Config struct {
	ServiceName    string         `yaml:"service_name" toml:"service_name"`
	ServiceVersion string         `yaml:"service_version" toml:"service_version"`
	Environment    string         `yaml:"environment" toml:"environment"`
	JaegerEndpoint string         `yaml:"jaeger_endpoint" toml:"jaeger_endpoint"`
	MetricsAddr    string         `yaml:"metrics_addr" toml:"metrics_addr"`
	Logging        logging.Config `yaml:"logging" toml:"logging"`
}

// NewManager creates a new observability manager. Every manager owns its own
// Prometheus registry.
func NewManager(config Config) (*Manager, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tracer, err := tracing.NewTracer(tracing.Config{
		ServiceName:    config.ServiceName,
		ServiceVersion: config.ServiceVersion,
		JaegerEndpoint: config.JaegerEndpoint,
		Environment:    config.Environment,
	})
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(config.Logging)
	if err != nil {
		return nil, err
	}

	return &Manager{
		metrics:  metrics.NewPrometheusMetrics(registry),
		registry: registry,
		tracer:   tracer,
		logger:   logger,
	}, nil
}

// GetMetrics returns the metrics instance
func (m *Manager) GetMetrics() *metrics.PrometheusMetrics {
	return m.metrics
}

// GetTracer returns the tracer instance
func (m *Manager) GetTracer() *tracing.Tracer {
	return m.tracer
}

// GetLogger returns the logger instance
func (m *Manager) GetLogger() *logging.Logger {
	return m.logger
}

// MetricsHandler serves the manager's registry in the Prometheus text format.
func (m *Manager) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ServeMetrics starts a background /metrics listener on addr. An empty addr
// does nothing.
func (m *Manager) ServeMetrics(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.MetricsHandler())
	m.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	m.logger.Info("metrics server started", "addr", addr)
}

// Shutdown shuts down all observability components
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.server != nil {
		if err := m.server.Shutdown(ctx); err != nil {
			return err
		}
	}

	if err := m.tracer.Shutdown(ctx); err != nil {
		return err
	}

	// stderr sync returns EINVAL on some platforms
	_ = m.logger.Sync()
	return nil
}
