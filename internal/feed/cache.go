// Package feed implements the client-side content cache: a queue of
// ready-to-show entries replenished in the background so gameplay never
// stalls waiting on the network.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/ashureev/fauxto/internal/difficulty"
	"github.com/ashureev/fauxto/internal/preload"
)

var (
	// ErrNoSource is returned by Next before a source has been selected.
	ErrNoSource = errors.New("no content source selected")
	// ErrExhausted signals that no unseen content remains. It is a normal
	// terminal result the consumer must act on, not a failure.
	ErrExhausted = errors.New("content exhausted")
)

// State describes the cache lifecycle.
type State int

const (
	// StateUninitialized means no source has been selected yet.
	StateUninitialized State = iota
	// StateReady means the cache can serve or derive entries.
	StateReady
	// StateExhausted means the source reported no unseen content left.
	// A later successful derivation moves the cache back to ready.
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Item is one deliverable image.
type Item struct {
	ID   int64
	URL  string
	IsAI bool
}

// Pair is one round's two-image puzzle. Items[AISlot] is the
// machine-generated side; the slot is resampled per pair.
type Pair struct {
	Items  [2]Item
	AISlot int
}

// Entry is what the cache hands to the rendering layer: a single item or a
// pair, stamped with its round number and pacing.
type Entry struct {
	Item   *Item
	Pair   *Pair
	Round  int
	Tier   difficulty.Tier
	Budget time.Duration
}

// URLs lists the asset addresses an entry needs loaded.
func (e Entry) URLs() []string {
	if e.Item != nil {
		return []string{e.Item.URL}
	}
	if e.Pair != nil {
		return []string{e.Pair.Items[0].URL, e.Pair.Items[1].URL}
	}
	return nil
}

// Options tune a cache instance. Zero values fall back to defaults.
type Options struct {
	// LowWater is the queue length that triggers a background refill.
	LowWater int
	// RefillBatch is how many entries one background refill derives.
	RefillBatch int
	// RefillTimeout bounds one background refill pass, warming included.
	RefillTimeout time.Duration
	// Warmer, when set, preloads the assets of freshly queued entries.
	Warmer *preload.Scheduler
}

const (
	defaultLowWater      = 3
	defaultRefillBatch   = 5
	defaultRefillTimeout = 30 * time.Second
)

// Cache is an explicitly constructed per-consumer instance; callers own it
// and pass it by reference. All methods are safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	source    Source
	state     State
	queue     []Entry
	round     int
	refilling bool

	lowWater      int
	refillBatch   int
	refillTimeout time.Duration
	warmer        *preload.Scheduler

	slotFn func() int
}

// NewCache creates an empty cache. It stays uninitialized until a source is
// selected.
func NewCache(opts Options) *Cache {
	if opts.LowWater <= 0 {
		opts.LowWater = defaultLowWater
	}
	if opts.RefillBatch <= 0 {
		opts.RefillBatch = defaultRefillBatch
	}
	if opts.RefillTimeout <= 0 {
		opts.RefillTimeout = defaultRefillTimeout
	}

	return &Cache{
		state:         StateUninitialized,
		lowWater:      opts.LowWater,
		refillBatch:   opts.RefillBatch,
		refillTimeout: opts.RefillTimeout,
		warmer:        opts.Warmer,
		slotFn:        func() int { return rand.Intn(2) },
	}
}

// SelectSource binds the cache to a content source, clearing any queued
// entries and restarting the round counter. A nil source resets the cache to
// uninitialized.
func (c *Cache) SelectSource(src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.source = src
	c.queue = nil
	c.round = 0
	if src == nil {
		c.state = StateUninitialized
		return
	}
	c.state = StateReady
}

// Reset hard-resets the cache to its uninitialized state.
func (c *Cache) Reset() {
	c.SelectSource(nil)
}

// State reports the cache lifecycle state.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Len reports how many entries are queued.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Next returns the next entry to show: the queue front when one is ready,
// otherwise a synchronously derived entry. Dropping below the low-water mark
// triggers a background refill. Returns ErrNoSource before SelectSource and
// ErrExhausted once the source has nothing unseen left.
func (c *Cache) Next(ctx context.Context) (Entry, error) {
	c.mu.Lock()
	if c.source == nil {
		c.mu.Unlock()
		return Entry{}, ErrNoSource
	}
	if len(c.queue) > 0 {
		entry := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		c.maybeRefill()
		return entry, nil
	}
	src := c.source
	c.mu.Unlock()

	draw, err := src.Draw(ctx)
	if err != nil {
		if errors.Is(err, ErrExhausted) {
			return c.drainOrExhaust()
		}
		return Entry{}, fmt.Errorf("derive entry: %w", err)
	}

	// Route the fresh entry through the queue: a concurrent refill may have
	// queued earlier rounds while the draw was in flight, and rounds must be
	// delivered in order.
	c.mu.Lock()
	c.queue = append(c.queue, c.buildEntryLocked(draw))
	entry := c.queue[0]
	c.queue = c.queue[1:]
	c.mu.Unlock()

	c.maybeRefill()
	return entry, nil
}

// drainOrExhaust serves anything a concurrent refill queued before the
// source ran dry; otherwise it flips the cache to exhausted.
func (c *Cache) drainOrExhaust() (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) > 0 {
		entry := c.queue[0]
		c.queue = c.queue[1:]
		return entry, nil
	}
	c.state = StateExhausted
	return Entry{}, ErrExhausted
}

// Preload asynchronously derives up to n future entries and appends them to
// the queue, warming their assets when a warmer is attached. Individual
// derivation failures are skipped; overlapping calls collapse into the
// refill already in flight.
func (c *Cache) Preload(n int) {
	if n <= 0 {
		return
	}

	c.mu.Lock()
	if c.source == nil || c.refilling {
		c.mu.Unlock()
		return
	}
	c.refilling = true
	src := c.source
	c.mu.Unlock()

	go c.refill(src, n)
}

func (c *Cache) refill(src Source, n int) {
	ctx, cancel := context.WithTimeout(context.Background(), c.refillTimeout)
	defer cancel()
	defer func() {
		c.mu.Lock()
		c.refilling = false
		c.mu.Unlock()
	}()

	var warmURLs []string
	for i := 0; i < n; i++ {
		draw, err := src.Draw(ctx)
		if errors.Is(err, ErrExhausted) {
			c.mu.Lock()
			if len(c.queue) == 0 {
				c.state = StateExhausted
			}
			c.mu.Unlock()
			break
		}
		if err != nil {
			slog.Debug("skipping failed derivation during refill", "error", err)
			continue
		}

		c.mu.Lock()
		entry := c.buildEntryLocked(draw)
		c.queue = append(c.queue, entry)
		c.mu.Unlock()

		warmURLs = append(warmURLs, entry.URLs()...)
	}

	if c.warmer != nil && len(warmURLs) > 0 {
		c.warmer.Warm(ctx, warmURLs)
	}
}

func (c *Cache) maybeRefill() {
	c.mu.Lock()
	trigger := c.source != nil && !c.refilling &&
		c.state != StateExhausted && len(c.queue) < c.lowWater
	c.mu.Unlock()

	if trigger {
		c.Preload(c.refillBatch)
	}
}

// buildEntryLocked stamps the next round number onto a draw and applies the
// round tier's effect parameters to the asset urls. Callers hold c.mu.
func (c *Cache) buildEntryLocked(draw Draw) Entry {
	c.round++
	round := c.round
	tier := difficulty.TierFor(round)

	entry := Entry{
		Round:  round,
		Tier:   tier,
		Budget: difficulty.TimeBudgetFor(round),
	}
	effects := difficulty.EffectParams(tier)

	if draw.Item != nil {
		item := *draw.Item
		item.URL = appendEffects(item.URL, effects)
		entry.Item = &item
	} else {
		ai := *draw.AI
		human := *draw.Human
		ai.URL = appendEffects(ai.URL, effects)
		human.URL = appendEffects(human.URL, effects)

		pair := &Pair{AISlot: c.slotFn()}
		pair.Items[pair.AISlot] = ai
		pair.Items[1-pair.AISlot] = human
		entry.Pair = pair
	}

	c.state = StateReady
	return entry
}

// appendEffects merges effect parameters into a url's query string.
// Malformed urls are passed through unchanged.
func appendEffects(rawURL string, effects url.Values) string {
	if len(effects) == 0 {
		return rawURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	query := parsed.Query()
	for key, values := range effects {
		for _, value := range values {
			query.Set(key, value)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
