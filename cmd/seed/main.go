// Seed runs one catalog reconciliation between the content tree and the
// store, then exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ashureev/fauxto/internal/catalog"
	"github.com/ashureev/fauxto/internal/config"
	"github.com/ashureev/fauxto/internal/dataset"
	"github.com/ashureev/fauxto/internal/store"
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

	dbPath := flag.String("db", cfg.DBPath, "sqlite database path")
	contentDir := flag.String("content", cfg.ContentDir, "content tree root")
	baseURL := flag.String("base-url", cfg.PublicBaseURL, "public base url for item addresses")
	flag.Parse()

	repo, err := store.NewSQLite(*dbPath)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	resolver, err := dataset.NewResolver(*contentDir, cfg.Resolver.CacheSize, cfg.Resolver.CacheTTL)
	if err != nil {
		slog.Error("Failed to initialize dataset resolver", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncer := catalog.NewSyncer(repo, resolver, *contentDir, *baseURL, nil)
	result, err := syncer.Sync(ctx)
	if err != nil {
		slog.Error("Catalog sync failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("leaves=%d seeded=%d deactivated=%d duration=%s\n",
		result.Leaves, result.Seeded, result.Deactivated, result.Duration)
}
