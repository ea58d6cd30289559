package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const defaultJournalQueue = 1000

// JournalConfig configures the NDJSON activity journal.
type JournalConfig struct {
	Enabled   bool
	Path      string
	QueueSize int
}

// Journal appends events to an NDJSON file without blocking callers.
// Writes happen on a background goroutine; when the queue is full the
// oldest queued event is dropped to make room.
type Journal struct {
	file    *os.File
	events  chan Event
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *slog.Logger
	dropped atomic.Int64
}

// NewJournal opens the journal file and starts the background writer.
// Returns a nil journal when disabled; all methods are nil-safe.
func NewJournal(cfg JournalConfig, logger *slog.Logger) (*Journal, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultJournalQueue
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal file: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &Journal{
		file:   file,
		events: make(chan Event, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}

	j.wg.Add(1)
	go j.processEvents()

	return j, nil
}

// Record queues an event for the background writer. Never blocks: when the
// queue is full the oldest queued event is dropped to make room.
func (j *Journal) Record(event Event) {
	if j == nil {
		return
	}

	select {
	case j.events <- event:

	case <-j.ctx.Done():
		// Shutting down, ignore.

	default:
		// Queue full - drop the oldest queued event.
		select {
		case <-j.events:
			j.dropped.Add(1)
		default:
		}

		select {
		case j.events <- event:
		case <-j.ctx.Done():
		default:
			j.dropped.Add(1)
		}
	}
}

// processEvents writes queued events in background. On shutdown it flushes
// whatever is already queued before exiting.
func (j *Journal) processEvents() {
	defer j.wg.Done()

	for {
		select {
		case <-j.ctx.Done():
			for {
				select {
				case event := <-j.events:
					j.write(event)
				default:
					return
				}
			}

		case event := <-j.events:
			j.write(event)
		}
	}
}

// journalLine is the on-disk form of one event: the event fields plus a
// unique line id for downstream correlation.
type journalLine struct {
	ID string `json:"id"`
	Event
}

func (j *Journal) write(event Event) {
	data, err := json.Marshal(journalLine{ID: uuid.NewString(), Event: event})
	if err != nil {
		j.logger.Warn("Failed to marshal activity event", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := j.file.Write(data); err != nil {
		j.logger.Warn("Failed to write activity event", "error", err)
	}
}

// Dropped reports how many events were discarded under backpressure.
func (j *Journal) Dropped() int64 {
	if j == nil {
		return 0
	}
	return j.dropped.Load()
}

// Close flushes queued events and closes the journal file.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}

	j.cancel()

	// Wait for the writer to flush with timeout.
	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		j.logger.Warn("Activity journal flush timeout", "queue_remaining", len(j.events))
	}

	if n := j.dropped.Load(); n > 0 {
		j.logger.Warn("Activity journal dropped events", "count", n)
	}

	return j.file.Close()
}
