// Package catalog reconciles the content_items table with the dataset tree:
// files on disk become active items, vanished files are deactivated.
package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashureev/fauxto/internal/activity"
	"github.com/ashureev/fauxto/internal/dataset"
	"github.com/ashureev/fauxto/internal/domain"
	"github.com/ashureev/fauxto/internal/store"
)

const defaultSyncWorkers = 4

// Result summarizes one reconciliation pass.
type Result struct {
	Leaves      int
	Seeded      int64
	Deactivated int64
	Duration    time.Duration
}

// Syncer reconciles the item catalog against the dataset tree.
type Syncer struct {
	repo     store.Repository
	resolver *dataset.Resolver
	root     string
	baseURL  string
	workers  int
	recorder *activity.Recorder
}

// NewSyncer creates a syncer over the dataset tree rooted at root. Item urls
// are built under baseURL. The recorder may be nil.
func NewSyncer(repo store.Repository, resolver *dataset.Resolver, root, baseURL string, recorder *activity.Recorder) *Syncer {
	return &Syncer{
		repo:     repo,
		resolver: resolver,
		root:     root,
		baseURL:  baseURL,
		workers:  defaultSyncWorkers,
		recorder: recorder,
	}
}

// Sync walks the dataset tree, seeds every discovered file as an active
// item, and deactivates items whose files vanished. Leaves are scanned
// concurrently; the pass is all-or-nothing per leaf but not per run.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	start := time.Now()

	leaves, err := FindLeaves(s.root)
	if err != nil {
		return nil, fmt.Errorf("walk dataset tree: %w", err)
	}

	var mu sync.Mutex
	urlsByCategory := make(map[domain.Category][]string)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, leaf := range leaves {
		g.Go(func() error {
			s.resolver.Invalidate(leaf)
			manifest, err := s.resolver.ListLeaf(gctx, leaf)
			if err != nil {
				return fmt.Errorf("list leaf %q: %w", leaf, err)
			}

			mu.Lock()
			defer mu.Unlock()
			for _, name := range manifest.AIFiles {
				url := dataset.FileURL(s.baseURL, leaf, dataset.AIFolder, name)
				urlsByCategory[domain.CategoryAI] = append(urlsByCategory[domain.CategoryAI], url)
			}
			for _, name := range manifest.HumanFiles {
				url := dataset.FileURL(s.baseURL, leaf, dataset.HumanFolder, name)
				urlsByCategory[domain.CategoryHuman] = append(urlsByCategory[domain.CategoryHuman], url)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{Leaves: len(leaves)}

	for _, category := range []domain.Category{domain.CategoryAI, domain.CategoryHuman} {
		urls := urlsByCategory[category]
		if len(urls) == 0 {
			continue
		}
		sort.Strings(urls)
		seeded, err := s.repo.SeedItems(ctx, category, urls)
		if err != nil {
			return nil, fmt.Errorf("seed %s items: %w", category, err)
		}
		result.Seeded += seeded
	}

	var vanished []string
	for _, category := range []domain.Category{domain.CategoryAI, domain.CategoryHuman} {
		active, err := s.repo.ListActiveURLs(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("list active %s urls: %w", category, err)
		}
		known := make(map[string]bool, len(urlsByCategory[category]))
		for _, url := range urlsByCategory[category] {
			known[url] = true
		}
		for _, url := range active {
			if !known[url] {
				vanished = append(vanished, url)
			}
		}
	}
	if len(vanished) > 0 {
		deactivated, err := s.repo.DeactivateByURL(ctx, vanished)
		if err != nil {
			return nil, fmt.Errorf("deactivate vanished items: %w", err)
		}
		result.Deactivated = deactivated
	}

	result.Duration = time.Since(start)
	slog.Info("Catalog sync completed",
		"leaves", result.Leaves,
		"seeded", result.Seeded,
		"deactivated", result.Deactivated,
		"duration", result.Duration)

	s.recorder.Publish(activity.Event{
		Kind:  activity.KindCatalogSynced,
		Count: int(result.Seeded),
	})

	return result, nil
}

// FindLeaves walks the dataset tree and returns every leaf directory,
// relative to root with slash separators, sorted. A leaf is a directory
// holding an ai or human subfolder; the root itself may be one.
func FindLeaves(root string) ([]string, error) {
	seen := make(map[string]bool)
	var leaves []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() || path == root {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			return fs.SkipDir
		}
		if name != dataset.AIFolder && name != dataset.HumanFolder {
			return nil
		}

		parent, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return err
		}
		leaf := filepath.ToSlash(parent)
		if leaf == "." {
			leaf = ""
		}
		if !seen[leaf] {
			seen[leaf] = true
			leaves = append(leaves, leaf)
		}
		// Category folders hold files, not further leaves.
		return fs.SkipDir
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(leaves)
	return leaves, nil
}

// StartSyncWorker runs a background goroutine that periodically reconciles
// the catalog with the dataset tree.
func StartSyncWorker(ctx context.Context, syncer *Syncer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Catalog sync worker started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				if _, err := syncer.Sync(ctx); err != nil {
					slog.Error("Catalog sync failed", "error", err)
				}
			case <-ctx.Done():
				slog.Info("Catalog sync worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
