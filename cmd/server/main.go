// Package main is the entrypoint for the voicepipe API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/voicepipe/internal/ai"
	"github.com/kiranshivaraju/voicepipe/internal/analysis"
	"github.com/kiranshivaraju/voicepipe/internal/api"
	"github.com/kiranshivaraju/voicepipe/internal/api/handler"
	mw "github.com/kiranshivaraju/voicepipe/internal/api/middleware"
	"github.com/kiranshivaraju/voicepipe/internal/api/response"
	"github.com/kiranshivaraju/voicepipe/internal/cache"
	"github.com/kiranshivaraju/voicepipe/internal/config"
	"github.com/kiranshivaraju/voicepipe/internal/metrics"
	"github.com/kiranshivaraju/voicepipe/internal/pipeline"
	"github.com/kiranshivaraju/voicepipe/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"docstore", cfg.DocStore.Backend,
		"env", cfg.Server.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Metrics registry
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// 3. Document store
	initial, connector, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	records := store.NewGuarded(initial, connector, cfg.DocStore.HealthInterval, m)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := records.Close(closeCtx); err != nil {
			slog.Warn("document store close failed", "error", err)
		}
	}()
	slog.Info("document store connected", "backend", cfg.DocStore.Backend)

	// 4. Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. AI provider and pipeline
	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	client := ai.NewClient(provider, cfg.AI, m)
	slog.Info("AI provider initialized", "provider", client.Provider())

	orch := pipeline.NewOrchestrator(
		analysis.NewExecutor(client),
		records,
		redisCache,
		pipeline.NewLimiter(cfg.Pipeline.MaxConcurrent),
		cfg.Redis.StatusTTL,
		m,
	)

	// 6. Router
	upload := handler.NewUploadHandler(orch, handler.UploadConfig{
		TempDir:        cfg.Server.TempDir,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, cfg.RateLimit.RequestsPerMinute),
		Metrics:   metrics.NewMiddleware(reg),

		HealthHandler:   healthHandler(records, redisCache, client),
		MetricsHandler:  metrics.Handler(reg),
		UploadHandler:   upload,
		GetRecording:    handler.NewGetRecordingHandler(records),
		RecordingStatus: handler.NewStatusHandler(records, redisCache),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Jobs still between stages are marked failed; in-flight stages finish.
	if err := orch.Shutdown(shutdownCtx); err != nil {
		slog.Warn("pipeline did not drain before timeout", "active_jobs", orch.Active(), "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// openStore opens the configured document store backend and returns the
// connector the Guarded wrapper uses to reconnect.
func openStore(ctx context.Context, cfg *config.Config) (store.RecordStore, store.Connector, error) {
	switch cfg.DocStore.Backend {
	case "postgres":
		if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")

		connect := func(ctx context.Context) (store.RecordStore, error) {
			pool, err := store.Connect(ctx, cfg.Database)
			if err != nil {
				return nil, err
			}
			return store.NewPostgresStore(pool), nil
		}
		initial, err := connect(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		return initial, connect, nil

	case "mongo":
		connect := func(ctx context.Context) (store.RecordStore, error) {
			client, err := store.ConnectMongo(ctx, cfg.Mongo)
			if err != nil {
				return nil, err
			}
			return store.NewMongoStore(client, cfg.Mongo.Database), nil
		}
		initial, err := connect(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		return initial, connect, nil

	case "memory":
		slog.Warn("using in-memory document store, recordings are lost on restart")
		return store.NewMemoryStore(), nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown document store backend %q", cfg.DocStore.Backend)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

type healthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// healthHandler checks document store, cache and AI backend connectivity.
func healthHandler(s pinger, c pinger, a healthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"ai":       "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if !a.HealthCheck(r.Context()) {
			checks["ai"] = "degraded"
		}

		for _, v := range checks {
			if v != "ok" {
				response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
					"One or more services degraded", checks)
				return
			}
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
