// Package main is the entrypoint for the ReviewLens API server.
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

	"github.com/reviewlens/reviewlens/internal/api"
	"github.com/reviewlens/reviewlens/internal/api/handler"
	mw "github.com/reviewlens/reviewlens/internal/api/middleware"
	"github.com/reviewlens/reviewlens/internal/api/response"
	"github.com/reviewlens/reviewlens/internal/cache"
	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/extract"
	"github.com/reviewlens/reviewlens/internal/pipeline"
	"github.com/reviewlens/reviewlens/internal/progress"
	"github.com/reviewlens/reviewlens/internal/reviews"
	"github.com/reviewlens/reviewlens/internal/store"
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
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "extract_provider", cfg.Extract.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Reviews.CacheTTL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create progress broker (separate connection; pub/sub holds it open)
	broker, err := progress.NewRedisBroker(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create progress broker: %w", err)
	}
	defer broker.Close()

	// 6. Review collection
	source := reviews.NewHTTPSource(cfg.Reviews.BaseURL, cfg.Reviews.Timeout)
	collector := reviews.NewCachedCollector(source, redisCache, cfg.Reviews.PerTierLimit)

	// 7. Extraction provider and service
	provider, err := extract.NewProvider(cfg.Extract)
	if err != nil {
		return fmt.Errorf("create extract provider: %w", err)
	}
	extractor := extract.NewService(provider, cfg.Extract.MaxAttempts, cfg.Extract.BaseBackoff)
	slog.Info("extract provider initialized", "provider", provider.Name())

	// 8. Create store and pipeline
	pgStore := store.NewPostgresStore(pool)
	runner := pipeline.NewRunner()
	orchestrator := pipeline.NewOrchestrator(
		pgStore, collector, extractor, broker, runner,
		cfg.Quota.FreeTierJobLimit, cfg.Extract.JobTimeout,
	)

	// 9. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, cfg.Quota.RequestsPerMin)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler:       healthHandler(pgStore, redisCache),
		CreateJobHandler:    handler.NewCreateJobHandler(pgStore, orchestrator),
		GetJobHandler:       handler.NewGetJobHandler(pgStore),
		ListFindingsHandler: handler.NewListFindingsHandler(pgStore),
		JobEventsHandler:    handler.NewJobEventsHandler(pgStore, broker),
		CreateKeyHandler:    handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:     handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler:    handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the events endpoint streams until terminal.
		IdleTimeout: 60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Drain in-flight jobs before releasing the store and broker.
	slog.Info("waiting for in-flight jobs...")
	runner.Wait()

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
