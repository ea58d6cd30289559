package preload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Prober loads one asset so downstream caches are warm. Implementations must
// honor the context deadline; the scheduler's retry and timeout logic works
// against this interface so it can be tested without a rendering surface.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// HTTPProber warms assets by fetching them and draining the body.
type HTTPProber struct {
	client *http.Client
	base   *url.URL
}

// NewHTTPProber creates a prober. base, when non-empty, is the absolute
// address server-relative asset urls are resolved against; client may be nil
// for http.DefaultClient.
func NewHTTPProber(client *http.Client, base string) (*HTTPProber, error) {
	if client == nil {
		client = http.DefaultClient
	}

	var baseURL *url.URL
	if base != "" {
		parsed, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse prober base url: %w", err)
		}
		baseURL = parsed
	}

	return &HTTPProber{client: client, base: baseURL}, nil
}

// Probe fetches the asset once, bounded by ctx.
func (p *HTTPProber) Probe(ctx context.Context, rawURL string) error {
	target := rawURL
	if p.base != nil {
		ref, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("parse asset url: %w", err)
		}
		target = p.base.ResolveReference(ref).String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", target, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("drain probe body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("probe %s: unexpected status %d", target, resp.StatusCode)
	}
	return nil
}
