// Package client is a thin typed client for the content delivery API. The
// demo player uses it directly and the remote feed sources consume it
// through the feed.Reserver interface.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/fauxto/internal/feed"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 2
	defaultRetryBase  = 100 * time.Millisecond
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// Options tune a client. Zero values fall back to defaults.
type Options struct {
	// HTTPClient overrides the transport; nil gets a client with a 10s
	// timeout.
	HTTPClient *http.Client
	// MaxRetries is how many extra attempts idempotent calls get after a
	// retryable failure.
	MaxRetries int
	// RetryBase is the first backoff step; it doubles per attempt.
	RetryBase time.Duration
}

// Client talks to one backend instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryBase  time.Duration
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	retryBase := opts.RetryBase
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		maxRetries: maxRetries,
		retryBase:  retryBase,
	}
}

// SessionInfo is the session creation response.
type SessionInfo struct {
	SessionID int64 `json:"sessionId"`
	CreatedAt int64 `json:"createdAt"`
}

// DatasetInfo describes one dataset leaf as the backend resolves it.
type DatasetInfo struct {
	Path          string              `json:"path"`
	Folders       []string            `json:"folders"`
	Files         map[string][]string `json:"files"`
	PublicBaseURL string              `json:"publicBaseUrl"`
}

type wireItem struct {
	ID   int64  `json:"id"`
	URL  string `json:"url"`
	IsAI bool   `json:"isAI"`
}

type batchResponse struct {
	Items []wireItem `json:"items"`
}

type nextResponse struct {
	Item *wireItem `json:"item"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateSession mints a new session. Not retried: a lost response would
// leak a session id the caller never learns.
func (c *Client) CreateSession(ctx context.Context) (*SessionInfo, error) {
	var info SessionInfo
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/sessions", &info); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &info, nil
}

// ReserveBatch reserves up to count unseen items of one category for the
// session. A short or empty result means the catalog is running dry.
func (c *Client) ReserveBatch(ctx context.Context, sessionID int64, category string, count int) ([]feed.Item, error) {
	query := url.Values{}
	query.Set("session", strconv.FormatInt(sessionID, 10))
	query.Set("category", category)
	query.Set("count", strconv.Itoa(count))

	var payload batchResponse
	if err := c.getJSON(ctx, "/content/batch", query, &payload); err != nil {
		return nil, fmt.Errorf("reserve batch: %w", err)
	}

	items := make([]feed.Item, len(payload.Items))
	for i, item := range payload.Items {
		items[i] = feed.Item{ID: item.ID, URL: item.URL, IsAI: item.IsAI}
	}
	return items, nil
}

// ReserveOne reserves the next unseen item for the session, category
// unconstrained. Returns nil without error once the catalog is exhausted.
func (c *Client) ReserveOne(ctx context.Context, sessionID int64) (*feed.Item, error) {
	query := url.Values{}
	query.Set("session", strconv.FormatInt(sessionID, 10))

	var payload nextResponse
	if err := c.getJSON(ctx, "/content/next", query, &payload); err != nil {
		return nil, fmt.Errorf("reserve next: %w", err)
	}
	if payload.Item == nil {
		return nil, nil
	}
	return &feed.Item{ID: payload.Item.ID, URL: payload.Item.URL, IsAI: payload.Item.IsAI}, nil
}

// FetchDataset resolves one dataset leaf.
func (c *Client) FetchDataset(ctx context.Context, leaf string) (*DatasetInfo, error) {
	query := url.Values{}
	query.Set("path", leaf)

	var info DatasetInfo
	if err := c.getJSON(ctx, "/dataset", query, &info); err != nil {
		return nil, fmt.Errorf("fetch dataset: %w", err)
	}
	return &info, nil
}

// getJSON performs an idempotent GET with bounded exponential backoff on
// transport failures and 5xx responses.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.retryBase << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = c.doJSON(ctx, http.MethodGet, endpoint, out)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return apiErr
	}
	var payload errorResponse
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// retryable reports whether a call may be tried again: transport failures
// and 5xx responses qualify, validation rejections and decode errors do not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}

	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
