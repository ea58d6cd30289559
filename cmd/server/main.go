// Fauxto - content delivery backend for spot-the-fake image games.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashureev/fauxto/internal/activity"
	"github.com/ashureev/fauxto/internal/api"
	"github.com/ashureev/fauxto/internal/catalog"
	"github.com/ashureev/fauxto/internal/config"
	"github.com/ashureev/fauxto/internal/dataset"
	"github.com/ashureev/fauxto/internal/metrics"
	"github.com/ashureev/fauxto/internal/middleware"
	"github.com/ashureev/fauxto/internal/store"
	"github.com/ashureev/fauxto/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	resolver, err := dataset.NewResolver(cfg.ContentDir, cfg.Resolver.CacheSize, cfg.Resolver.CacheTTL)
	if err != nil {
		slog.Error("Failed to initialize dataset resolver", "error", err)
		os.Exit(1)
	}

	// Activity feed: ring buffer, NDJSON journal, and websocket hub behind
	// one recorder.
	journal, err := activity.NewJournal(activity.JournalConfig{
		Enabled:   cfg.ActivityLog.Enabled,
		Path:      cfg.ActivityLog.Path,
		QueueSize: cfg.ActivityLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize activity journal", "error", err)
		os.Exit(1)
	}
	hub := activity.NewHub()
	recorder := activity.NewRecorder(activity.NewRing(cfg.ActivityRingSize), journal, hub)

	m := metrics.MustNew(prometheus.DefaultRegisterer)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, m, recorder)
	healthHandler := api.NewHealthHandler(repo)
	sessionHandler := api.NewSessionHandler(baseHandler)
	contentHandler := api.NewContentHandler(baseHandler)
	datasetHandler := api.NewDatasetHandler(baseHandler, resolver, cfg.PublicBaseURL)
	activityHandler := api.NewActivityHandler(recorder)
	wsHandler := activity.NewWebSocketHandler(recorder, hub, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS([]string{"*"}))

	// API routes.
	healthHandler.RegisterHealth(r)
	sessionHandler.RegisterRoutes(r)
	contentHandler.RegisterRoutes(r)
	datasetHandler.RegisterRoutes(r)
	activityHandler.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	// Content files served read-only when the public base url is a local
	// path. A full CDN url means something else serves them.
	if strings.HasPrefix(cfg.PublicBaseURL, "/") {
		prefix := strings.TrimSuffix(cfg.PublicBaseURL, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix+"/", http.FileServer(http.Dir(cfg.ContentDir))))
	}

	// WebSocket endpoint.
	r.Get("/ws/activity", wsHandler.ServeHTTP)

	// Serve embedded console (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Note: no WriteTimeout, the activity websocket holds connections open.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start catalog sync worker.
	if cfg.CatalogSync.Enabled {
		syncer := catalog.NewSyncer(repo, resolver, cfg.ContentDir, cfg.PublicBaseURL, recorder)
		catalog.StartSyncWorker(ctx, syncer, cfg.CatalogSync.Interval)
		slog.Info("Catalog sync enabled", "interval", cfg.CatalogSync.Interval)
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	hub.CloseAll()
	if err := journal.Close(); err != nil {
		slog.Error("Failed to close activity journal", "error", err)
	}

	slog.Info("Server stopped successfully")
}
