package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/fauxto/internal/feed"
)

var _ feed.Reserver = (*Client)(nil)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(srv.URL, Options{
		HTTPClient: srv.Client(),
		MaxRetries: 2,
		RetryBase:  time.Millisecond,
	})
	return c, srv
}

func TestCreateSession(t *testing.T) {
	var gotMethod, gotPath, gotRequestID string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotRequestID = r.Header.Get("X-Request-Id")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sessionId": 1755000000123456, "createdAt": 1755000000123}`))
	}))

	info, err := c.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/sessions" {
		t.Fatalf("expected POST /sessions, got %s %s", gotMethod, gotPath)
	}
	if gotRequestID == "" {
		t.Fatal("expected a request id header")
	}
	if info.SessionID != 1755000000123456 {
		t.Fatalf("unexpected session id %d", info.SessionID)
	}
	if info.CreatedAt != 1755000000123 {
		t.Fatalf("unexpected createdAt %d", info.CreatedAt)
	}
}

func TestReserveBatchSendsParamsAndDecodes(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/content/batch" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("session") != "42" || q.Get("category") != "ai" || q.Get("count") != "3" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":7,"url":"/static/cats/ai/7.png","isAI":true}]}`))
	}))

	items, err := c.ReserveBatch(context.Background(), 42, "ai", 3)
	if err != nil {
		t.Fatalf("reserve batch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	want := feed.Item{ID: 7, URL: "/static/cats/ai/7.png", IsAI: true}
	if items[0] != want {
		t.Fatalf("expected %+v, got %+v", want, items[0])
	}
}

func TestReserveBatchRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	var calls int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n < 3 {
			http.Error(w, `{"error":"database is locked"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[]}`))
	}))

	items, err := c.ReserveBatch(context.Background(), 42, "ai", 1)
	if err != nil {
		t.Fatalf("reserve batch: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty batch, got %d items", len(items))
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestReserveBatchDoesNotRetryValidationErrors(t *testing.T) {
	var mu sync.Mutex
	var calls int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		http.Error(w, `{"error":"invalid category"}`, http.StatusBadRequest)
	}))

	_, err := c.ReserveBatch(context.Background(), 42, "dogs", 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "invalid category" {
		t.Fatalf("expected decoded message, got %q", apiErr.Message)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestReserveBatchGivesUpAfterRetries(t *testing.T) {
	var mu sync.Mutex
	var calls int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		http.Error(w, `{"error":"still broken"}`, http.StatusInternalServerError)
	}))

	_, err := c.ReserveBatch(context.Background(), 42, "ai", 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", apiErr.StatusCode)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestReserveOneNullMeansExhausted(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/content/next" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"item": null}`))
	}))

	item, err := c.ReserveOne(context.Background(), 42)
	if err != nil {
		t.Fatalf("reserve one: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil item, got %+v", item)
	}
}

func TestFetchDataset(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("path"); got != "animals/cats" {
			t.Errorf("unexpected path param %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"path": "animals/cats",
			"folders": [],
			"files": {"ai": ["1.png"], "human": ["1.jpg", "2.webp"]},
			"publicBaseUrl": "/static"
		}`))
	}))

	info, err := c.FetchDataset(context.Background(), "animals/cats")
	if err != nil {
		t.Fatalf("fetch dataset: %v", err)
	}
	if info.Path != "animals/cats" {
		t.Fatalf("unexpected path %q", info.Path)
	}
	if len(info.Files["ai"]) != 1 || len(info.Files["human"]) != 2 {
		t.Fatalf("unexpected files %+v", info.Files)
	}
	if info.PublicBaseURL != "/static" {
		t.Fatalf("unexpected base url %q", info.PublicBaseURL)
	}
}

func TestRetryStopsWhenContextCanceled(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ReserveBatch(ctx, 42, "ai", 1)
	if err == nil {
		t.Fatal("expected an error for a canceled context")
	}
}
