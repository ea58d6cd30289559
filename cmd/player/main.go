// Player is a terminal bot that plays the spot-the-fake game against a
// running backend (or a local content tree), guessing at random. It exists to
// exercise the whole client stack end to end.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashureev/fauxto/internal/client"
	"github.com/ashureev/fauxto/internal/dataset"
	"github.com/ashureev/fauxto/internal/difficulty"
	"github.com/ashureev/fauxto/internal/feed"
	"github.com/ashureev/fauxto/internal/preload"
)

const warmTimeout = 5 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := flag.String("server", "http://localhost:"+port, "backend address")
	mode := flag.String("mode", "pair", "content mode: pair, single, or local")
	rounds := flag.Int("rounds", 10, "rounds to play")
	leaf := flag.String("leaf", "", "dataset leaf for local mode")
	content := flag.String("content", "./content", "content tree root for local mode")
	baseURL := flag.String("base-url", "/static", "asset base url for local mode")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := buildSource(ctx, *mode, *server, *content, *leaf, *baseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	prober, err := preload.NewHTTPProber(nil, *server)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	warmer := preload.NewScheduler(prober, warmTimeout, difficulty.EffectKeys())

	cache := feed.NewCache(feed.Options{Warmer: warmer})
	cache.SelectSource(src)
	cache.Preload(3)

	correct, played := 0, 0
	for round := 1; round <= *rounds; round++ {
		entry, err := cache.Next(ctx)
		if errors.Is(err, feed.ErrExhausted) {
			fmt.Println("content exhausted, ending run")
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		played++
		if playRound(entry) {
			correct++
		}
	}

	fmt.Printf("final score: %d/%d\n", correct, played)
}

// buildSource wires the content source for the requested mode. Remote modes
// mint a fresh session; local mode reads a leaf of the content tree directly.
func buildSource(ctx context.Context, mode, server, content, leaf, baseURL string) (feed.Source, error) {
	switch mode {
	case "pair", "single":
		cli := client.New(server, client.Options{})
		session, err := cli.CreateSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		fmt.Printf("session %d created\n", session.SessionID)

		if mode == "single" {
			return feed.NewRemoteSingleSource(cli, session.SessionID), nil
		}
		return feed.NewRemotePairSource(cli, session.SessionID), nil

	case "local":
		resolver, err := dataset.NewResolver(content, 16, 30*time.Second)
		if err != nil {
			return nil, fmt.Errorf("open content tree: %w", err)
		}
		return feed.NewLocalPairSource(resolver, leaf, baseURL), nil
	}

	return nil, fmt.Errorf("unknown mode %q (want pair, single, or local)", mode)
}

// playRound guesses at random and reports whether the guess was right.
func playRound(entry feed.Entry) bool {
	if entry.Pair != nil {
		guess := rand.Intn(2)
		hit := guess == entry.Pair.AISlot
		fmt.Printf("round %d [%s] budget %s: guessed slot %d, machine image in slot %d -> %s\n",
			entry.Round, entry.Tier, entry.Budget, guess, entry.Pair.AISlot, verdict(hit))
		return hit
	}

	guess := rand.Intn(2) == 0
	hit := guess == entry.Item.IsAI
	fmt.Printf("round %d [%s] budget %s: guessed ai=%t, actually ai=%t -> %s\n",
		entry.Round, entry.Tier, entry.Budget, guess, entry.Item.IsAI, verdict(hit))
	return hit
}

func verdict(hit bool) string {
	if hit {
		return "correct"
	}
	return "wrong"
}
