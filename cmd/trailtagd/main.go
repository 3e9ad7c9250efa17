// Command trailtagd is TrailTag's composition root: it wires the storage
// backend, memory manager, cache facade, job registry, executor, workflow
// driver, progress stream, and HTTP surface into a single running process,
// and serves it with graceful shutdown. Grounded on the teacher's
// internal/daemon/bootstrap.go for the signal-handling/http.Server shape.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sacahan/trailtag/internal/agentpipeline"
	"github.com/sacahan/trailtag/internal/api"
	"github.com/sacahan/trailtag/internal/cache"
	"github.com/sacahan/trailtag/internal/config"
	"github.com/sacahan/trailtag/internal/executor"
	"github.com/sacahan/trailtag/internal/jobs"
	"github.com/sacahan/trailtag/internal/log"
	"github.com/sacahan/trailtag/internal/memory"
	"github.com/sacahan/trailtag/internal/metadatatool"
	"github.com/sacahan/trailtag/internal/ratelimit"
	"github.com/sacahan/trailtag/internal/storage"
	"github.com/sacahan/trailtag/internal/stream"
	"github.com/sacahan/trailtag/internal/workflow"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	log.Configure(log.Config{Level: "info", Service: "trailtag"})
	logger := log.WithComponent("main")

	cfg := config.Load()

	tp, err := newTracerProvider(context.Background(), version)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer provider shutdown error")
		}
	}()

	backend, err := newStorageBackend(context.Background(), cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage backend")
	}

	mm := memory.NewManager(cfg.StorageDir, backend)
	c := cache.New(mm)
	registry := jobs.New(c)
	exec := executor.New(cfg.MaxConcurrentJobs, registry)

	// The real LLM-agent pipeline and YouTube metadata probe are out of
	// scope (spec §1); Stub/metadatatool.Stub stand in so the HTTP surface
	// and executor are fully wired and runnable end to end.
	pipeline := &agentpipeline.Stub{
		Subtitles: "zh-TW",
		Topic:     "trailtag",
		Limiter:   ratelimit.New(),
	}
	subtitles := &metadatatool.Stub{}

	driver := workflow.New(pipeline, c)
	streamer := stream.New(registry, 2*time.Second)

	srv := api.New(registry, exec, driver, c, streamer, subtitles, c.IsDegraded, version)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections are long-lived.
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("trailtagd listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("http server failed")
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
	exec.Shutdown()
	logger.Info().Msg("trailtagd stopped")
}

func newStorageBackend(ctx context.Context, cfg config.Config) (storage.Backend, error) {
	if cfg.StorageBackend == "redis" {
		return storage.NewRedisBackend(ctx, cfg.RedisAddr, "trailtag:storage:")
	}
	return storage.NewFileBackend(cfg.StorageDir), nil
}

// newTracerProvider installs a process-wide SDK tracer provider so the HTTP
// surface's tracing middleware produces real sampled spans instead of the
// otel package's default no-op, grounded on the teacher's
// internal/telemetry/tracer.go. No OTLP exporter is registered: this module
// has no collector endpoint to send spans to, so spans are created and
// sampled but not batched anywhere. Swap in sdktrace.WithBatcher(exporter)
// the day a collector endpoint exists.
func newTracerProvider(ctx context.Context, serviceVersion string) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("trailtag"),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}
