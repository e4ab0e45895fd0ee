// OrderDesk - Food Delivery Support Chat Server
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

	"github.com/ashureev/orderdesk/internal/api"
	"github.com/ashureev/orderdesk/internal/app"
	"github.com/ashureev/orderdesk/internal/config"
	"github.com/ashureev/orderdesk/internal/middleware"
	"github.com/ashureev/orderdesk/internal/stream"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const sessionGaugeInterval = 15 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "llm_provider", cfg.LLM.Provider)

	// Initialize dependencies.
	deps, err := app.New(cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize support service", "error", err)
		os.Exit(1)
	}
	slog.Info("Support service ready", "llm_provider", deps.Provider, "transcripts", cfg.Transcript.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = serve(ctx, cfg, deps, logger)
	stop()
	if err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// serve runs the HTTP server until ctx is done. It owns deps and closes the
// transcript sinks on every return path, since main exits without running
// deferred calls.
func serve(ctx context.Context, cfg *config.Config, deps *app.App, logger *slog.Logger) error {
	defer func() {
		if closeErr := deps.Close(); closeErr != nil {
			slog.Error("Failed to close transcript sinks", "error", closeErr)
		}
	}()

	checks := map[string]api.Pinger{}
	if deps.Audit != nil {
		if err := deps.Audit.Ping(context.Background()); err != nil {
			return fmt.Errorf("transcript database health check: %w", err)
		}
		checks["transcript_db"] = deps.Audit
		slog.Info("Transcript database connected", "path", cfg.Transcript.DBPath)
	}

	// Initialize handlers.
	conns := stream.NewManager()
	healthHandler := api.NewHealthHandler(deps.Store, deps.Provider, checks)
	chatHandler := api.NewChatHandler(deps.Service, deps.Catalog, cfg.MaxRequestBodyBytes, logger)
	if deps.Audit != nil {
		chatHandler.SetTranscriptReader(deps.Audit)
	}
	wsHandler := stream.NewHandler(deps.Service, conns, cfg.AllowedOrigins, cfg.DeferredDelayScale, deps.Metrics, logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	healthHandler.RegisterHealth(r)
	chatHandler.RegisterRoutes(r)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// No WriteTimeout: WebSocket streams stay open across deferred pauses.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(sessionGaugeInterval)
		defer ticker.Stop()
		for {
			deps.Metrics.SetSessions(deps.Store.Len())
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		conns.CloseAll()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
