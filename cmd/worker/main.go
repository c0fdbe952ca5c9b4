package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snow-ghost/bindopt/pkg/limiter"
	"github.com/snow-ghost/bindopt/pkg/observability"
	"github.com/snow-ghost/bindopt/worker"
	"github.com/snow-ghost/bindopt/worker/telemetry"
)

func main() {
	configPath := flag.String("config", os.Getenv("BINDOPT_CONFIG"), "Path to a YAML or TOML base configuration")
	flag.Parse()

	cfg, err := worker.LoadRunConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	serviceName := cfg.Tracing.ServiceName
	if serviceName == "" {
		serviceName = "bindopt-worker"
	}
	obs, err := observability.NewManager(observability.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		Logging:        cfg.Logging,
	})
	if err != nil {
		log.Fatalf("Failed to set up observability: %v", err)
	}
	logger := obs.GetLogger().GetSlog()
	// a separate metrics listener is optional; /metrics is always on the main mux
	obs.ServeMetrics(cfg.Server.MetricsAddr)

	tel := telemetry.NewTelemetry(serviceName, logger)
	svc := worker.NewService(cfg, worker.Deps{
		Logger:     logger,
		Metrics:    obs.GetMetrics(),
		Tracer:     obs.GetTracer(),
		Protection: limiter.NewProtectionManager(logger, obs.GetMetrics()),
		Telemetry:  tel,
	})

	mux := http.NewServeMux()
	mux.Handle("/optimize", worker.NewIngestor(svc.Run))
	mux.HandleFunc("/health", tel.HealthHandler)
	mux.HandleFunc("/stats", tel.StatsHandler)
	mux.Handle("/metrics", obs.MetricsHandler())

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("worker starting", "addr", cfg.Server.Addr, "job_timeout", cfg.Server.JobTimeout)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("worker shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		logger.Error("observability shutdown failed", "error", err)
	}
}
