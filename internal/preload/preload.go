// Package preload warms asset caches for queued content ahead of display.
// Load failures are soft: they never propagate past the returned outcomes.
package preload

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"
)

const defaultProbeTimeout = 5 * time.Second

// Outcome reports how a single probe settled.
type Outcome struct {
	URL      string
	OK       bool
	Attempts int
	Err      error
}

// Scheduler fans out concurrent asset probes with a bounded per-attempt
// timeout and exactly one degraded retry per failing asset.
type Scheduler struct {
	prober    Prober
	timeout   time.Duration
	stripKeys []string
}

// NewScheduler creates a scheduler probing through prober. Each attempt is
// bounded by timeout; stripKeys are the effect query parameters removed from
// a url before its single retry.
func NewScheduler(prober Prober, timeout time.Duration, stripKeys []string) *Scheduler {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Scheduler{prober: prober, timeout: timeout, stripKeys: stripKeys}
}

// Warm probes every url concurrently and returns once all probes settle,
// regardless of the success/failure mix. A failing probe is retried exactly
// once with the effect parameters stripped, then given up silently. There is
// no early abort: each probe runs to its own timeout.
func (s *Scheduler) Warm(ctx context.Context, urls []string) []Outcome {
	outcomes := make([]Outcome, len(urls))

	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			outcomes[i] = s.warmOne(ctx, u)
		}(i, u)
	}
	wg.Wait()

	return outcomes
}

func (s *Scheduler) warmOne(ctx context.Context, rawURL string) Outcome {
	outcome := Outcome{URL: rawURL, Attempts: 1}

	if err := s.probe(ctx, rawURL); err == nil {
		outcome.OK = true
		return outcome
	}

	// Retry once with the effect parameters stripped.
	outcome.Attempts = 2
	if err := s.probe(ctx, StripEffects(rawURL, s.stripKeys)); err != nil {
		outcome.Err = err
		slog.Debug("asset preload failed", "url", rawURL, "error", err)
		return outcome
	}

	outcome.OK = true
	return outcome
}

func (s *Scheduler) probe(ctx context.Context, u string) error {
	probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.prober.Probe(probeCtx, u)
}

// StripEffects removes the given query parameters from a url. Malformed
// urls are returned unchanged.
func StripEffects(rawURL string, keys []string) string {
	if len(keys) == 0 {
		return rawURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	query := parsed.Query()
	changed := false
	for _, key := range keys {
		if query.Has(key) {
			query.Del(key)
			changed = true
		}
	}
	if !changed {
		return rawURL
	}

	parsed.RawQuery = query.Encode()
	return parsed.String()
}
