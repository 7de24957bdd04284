package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	lbhttp "github.com/tidewater/langbridge/internal/adapter/http"
	"github.com/tidewater/langbridge/internal/adapter/memedit"
	"github.com/tidewater/langbridge/internal/config"
	"github.com/tidewater/langbridge/internal/logger"
	"github.com/tidewater/langbridge/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := logger.New(cfg.Logging)
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"lsp_url", cfg.LSP.EndpointURL,
		"languages", cfg.LSP.Languages,
	)

	ctx := context.Background()

	// --- Engine ---
	store := memedit.NewStore()
	registry := service.NewRegistry(log, cfg.LSP, nil, store)

	for _, language := range cfg.LSP.Languages {
		if _, err := registry.Register(language); err != nil {
			return fmt.Errorf("register %s: %w", language, err)
		}
	}

	// Sessions connect in the background; a server that is down at startup
	// lands in the error state and retries on its own schedule.
	go func() {
		if err := registry.ConnectAll(ctx); err != nil {
			slog.Warn("initial connect incomplete", "error", err)
		}
	}()

	// --- HTTP ---
	handlers := lbhttp.NewHandlers(log, registry, store)

	r := chi.NewRouter()

	// Middleware
	r.Use(lbhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(lbhttp.Logger(log))
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// Health endpoint with session status
	r.Get("/health", healthHandler(registry))

	// API routes
	lbhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.LSP.ShutdownTimeout+5*time.Second)
	defer cancel()

	if err := registry.Close(shutdownCtx); err != nil {
		slog.Warn("session shutdown incomplete", "error", err)
	}
	return srv.Shutdown(shutdownCtx)
}

// healthHandler returns an http.HandlerFunc that reports engine health.
func healthHandler(registry *service.Registry) http.HandlerFunc {
	type healthStatus struct {
		Status   string                  `json:"status"`
		Sessions []service.SessionStatus `json:"sessions"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status:   "ok",
			Sessions: registry.Status(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
