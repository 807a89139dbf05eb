// Package main is the entrypoint for the Alterity dispatch API server.
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

	"github.com/joho/godotenv"

	"github.com/alterity-ai/alterity/internal/api"
	"github.com/alterity-ai/alterity/internal/api/handler"
	"github.com/alterity-ai/alterity/internal/api/response"
	"github.com/alterity-ai/alterity/internal/config"
	"github.com/alterity-ai/alterity/internal/dispatch"
	"github.com/alterity-ai/alterity/internal/queue"
	"github.com/alterity-ai/alterity/internal/results"
	"github.com/alterity-ai/alterity/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

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
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "queue", cfg.Dispatch.QueueName)

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

	// 4. Create job queue
	jobQueue, err := queue.NewRedisQueue(cfg.Redis.URL, cfg.Dispatch.QueueName)
	if err != nil {
		return fmt.Errorf("create job queue: %w", err)
	}
	defer jobQueue.Close()

	if err := jobQueue.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store
	pgStore := store.NewPostgresStore(pool)

	// 6. Start the result event broker on its own notify connection
	broker := results.NewBroker(
		func(ctx context.Context) (results.ResultListener, error) {
			return store.NewListener(ctx, cfg.Database.URL)
		},
		cfg.Stream.ListenRetries,
		cfg.Stream.RetryBackoff,
		slog.Default(),
	)
	go broker.Start(ctx)

	// 7. Build services
	dispatchSvc := dispatch.NewService(pgStore, jobQueue, cfg.Dispatch.DefaultModel)
	resultsSvc := results.NewService(pgStore, broker, slog.Default())

	// 8. Build router with dependencies
	deps := api.Dependencies{
		HealthHandler: healthHandler(pgStore, jobQueue),

		SubmitRun:     handler.NewSubmitRunHandler(dispatchSvc),
		GetRun:        handler.NewGetRunHandler(pgStore),
		GetResults:    handler.NewGetResultsHandler(resultsSvc),
		StreamResults: handler.NewStreamResultsHandler(resultsSvc, cfg.Stream.Keepalive),

		PlatformConfig: handler.NewPlatformConfigHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
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

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and queue connectivity.
func healthHandler(s store.Store, q queue.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"queue":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := q.Ping(r.Context()); err != nil {
			checks["queue"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["queue"] != "ok"
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
