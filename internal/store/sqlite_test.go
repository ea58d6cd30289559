package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/fauxto/internal/domain"
	"github.com/ashureev/fauxto/internal/shared"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()

	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("close test store: %v", err)
		}
	})
	return repo
}

func seedCatalog(t *testing.T, repo Repository, category domain.Category, n int) []string {
	t.Helper()

	urls := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		urls = append(urls, fmt.Sprintf("/static/animals/%s/%d.png", category, i))
	}
	added, err := repo.SeedItems(context.Background(), category, urls)
	if err != nil {
		t.Fatalf("seed %s items: %v", category, err)
	}
	if added != int64(n) {
		t.Fatalf("expected %d items seeded, got %d", n, added)
	}
	return urls
}

// reserveWithRetry re-issues a reservation on transient conflicts, the way
// request handlers do. Reservation is all-or-nothing, so a retry after a
// conflict is always safe.
func reserveWithRetry(t *testing.T, repo Repository, sessionID int64, category domain.Category, count int) []domain.ContentItem {
	t.Helper()

	for attempt := 0; attempt < 10; attempt++ {
		items, err := repo.ReserveBatch(context.Background(), sessionID, category, count)
		if err == nil {
			return items
		}
		if shared.IsSQLiteConflictError(err) || shared.IsSQLiteConstraintError(err) {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		t.Fatalf("reserve batch: %v", err)
	}
	t.Fatalf("reserve batch still conflicting after retries")
	return nil
}

func TestCreateSessionAndGet(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	session, err := repo.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.ID <= 0 {
		t.Fatalf("expected positive session id, got %d", session.ID)
	}
	if session.CreatedAt.IsZero() {
		t.Fatal("expected createdAt to be set")
	}

	got, err := repo.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.ID != session.ID {
		t.Errorf("expected id %d, got %d", session.ID, got.ID)
	}
	if !got.CreatedAt.Equal(session.CreatedAt) {
		t.Errorf("expected createdAt %v, got %v", session.CreatedAt, got.CreatedAt)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	repo := newTestStore(t)

	_, err := repo.GetSession(context.Background(), 12345)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestCreateSessionConcurrentMintsUniqueIDs(t *testing.T) {
	repo := newTestStore(t)

	const n = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	ids := make(map[int64]bool)
	errs := make([]error, 0)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session, err := repo.CreateSession(context.Background())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			ids[session.ID] = true
		}()
	}
	wg.Wait()

	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	if len(ids) != n {
		t.Fatalf("expected %d distinct session ids, got %d", n, len(ids))
	}
}

func TestReserveBatchUnknownSession(t *testing.T) {
	repo := newTestStore(t)
	seedCatalog(t, repo, domain.CategoryAI, 3)

	_, err := repo.ReserveBatch(context.Background(), 999, domain.CategoryAI, 5)
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestReserveBatchUntilExhaustion(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	urls := seedCatalog(t, repo, domain.CategoryAI, 6)
	seedCatalog(t, repo, domain.CategoryHuman, 3)

	session, err := repo.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	first, err := repo.ReserveBatch(ctx, session.ID, domain.CategoryAI, 10)
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if len(first) != 6 {
		t.Fatalf("expected 6 items in first batch, got %d", len(first))
	}

	second, err := repo.ReserveBatch(ctx, session.ID, domain.CategoryAI, 10)
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected exhausted second batch, got %d items", len(second))
	}

	seen := make(map[int64]bool)
	gotURLs := make(map[string]bool)
	for _, item := range first {
		if seen[item.ID] {
			t.Errorf("item %d returned twice", item.ID)
		}
		seen[item.ID] = true
		gotURLs[item.URL] = true

		if item.Category != domain.CategoryAI {
			t.Errorf("expected category ai, got %s", item.Category)
		}
	}
	for _, url := range urls {
		if !gotURLs[url] {
			t.Errorf("seeded url %s never returned", url)
		}
	}
}

func TestReserveBatchIsolatesSessions(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	seedCatalog(t, repo, domain.CategoryHuman, 4)

	first, err := repo.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create first session: %v", err)
	}
	second, err := repo.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create second session: %v", err)
	}

	got, err := repo.ReserveBatch(ctx, first.ID, domain.CategoryHuman, 10)
	if err != nil {
		t.Fatalf("reserve for first session: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 items for first session, got %d", len(got))
	}

	got, err = repo.ReserveBatch(ctx, second.ID, domain.CategoryHuman, 10)
	if err != nil {
		t.Fatalf("reserve for second session: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected a fresh session to see the full catalog, got %d items", len(got))
	}
}

func TestReserveOneDrainsCatalogAcrossCategories(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	seedCatalog(t, repo, domain.CategoryAI, 2)
	seedCatalog(t, repo, domain.CategoryHuman, 2)

	session, err := repo.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	seen := make(map[int64]bool)
	for i := 0; i < 4; i++ {
		item, err := repo.ReserveOne(ctx, session.ID)
		if err != nil {
			t.Fatalf("reserve one #%d: %v", i+1, err)
		}
		if item == nil {
			t.Fatalf("unexpected exhaustion after %d reservations", i)
		}
		if seen[item.ID] {
			t.Fatalf("item %d reserved twice", item.ID)
		}
		seen[item.ID] = true
	}

	item, err := repo.ReserveOne(ctx, session.ID)
	if err != nil {
		t.Fatalf("reserve one after exhaustion: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil item on exhaustion, got %+v", item)
	}
}

func TestConcurrentReservationsNeverOverlap(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	seedCatalog(t, repo, domain.CategoryAI, 20)

	session, err := repo.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	const workers = 4
	var wg sync.WaitGroup
	var mu sync.Mutex
	counts := make(map[int64]int)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items := reserveWithRetry(t, repo, session.ID, domain.CategoryAI, 5)
			mu.Lock()
			defer mu.Unlock()
			for _, item := range items {
				counts[item.ID]++
			}
		}()
	}
	wg.Wait()

	total := 0
	for id, n := range counts {
		if n > 1 {
			t.Errorf("item %d reserved by %d concurrent calls", id, n)
		}
		total += n
	}
	if total != workers*5 {
		t.Errorf("expected %d reservations total, got %d", workers*5, total)
	}
}

func TestSeedItemsIsIdempotent(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	urls := []string{"/static/x/ai/1.png", "/static/x/ai/2.png"}

	added, err := repo.SeedItems(ctx, domain.CategoryAI, urls)
	if err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if added != 2 {
		t.Fatalf("expected 2 added, got %d", added)
	}

	added, err = repo.SeedItems(ctx, domain.CategoryAI, urls)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if added != 0 {
		t.Fatalf("expected re-seed to be a no-op, got %d", added)
	}

	count, err := repo.CountActiveItems(ctx, domain.CategoryAI)
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 active items, got %d", count)
	}
}

func TestDeactivateAndReactivate(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	urls := seedCatalog(t, repo, domain.CategoryHuman, 3)

	n, err := repo.DeactivateByURL(ctx, urls[:2])
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deactivated, got %d", n)
	}

	count, err := repo.CountActiveItems(ctx, domain.CategoryHuman)
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 active item, got %d", count)
	}

	session, err := repo.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	items, err := repo.ReserveBatch(ctx, session.ID, domain.CategoryHuman, 10)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected only the active item, got %d", len(items))
	}
	if items[0].URL != urls[2] {
		t.Errorf("expected url %s, got %s", urls[2], items[0].URL)
	}

	// Re-seeding a vanished-then-restored file reactivates the same row.
	added, err := repo.SeedItems(ctx, domain.CategoryHuman, urls[:1])
	if err != nil {
		t.Fatalf("re-seed: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected 1 reactivated, got %d", added)
	}
	count, err = repo.CountActiveItems(ctx, domain.CategoryHuman)
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 active items after reactivation, got %d", count)
	}
}

func TestListActiveURLs(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	urls := seedCatalog(t, repo, domain.CategoryAI, 3)
	seedCatalog(t, repo, domain.CategoryHuman, 2)

	got, err := repo.ListActiveURLs(ctx, domain.CategoryAI)
	if err != nil {
		t.Fatalf("list active urls: %v", err)
	}
	if len(got) != len(urls) {
		t.Fatalf("expected %d urls, got %d", len(urls), len(got))
	}

	want := make(map[string]bool)
	for _, url := range urls {
		want[url] = true
	}
	for _, url := range got {
		if !want[url] {
			t.Errorf("unexpected url %s", url)
		}
	}
}
