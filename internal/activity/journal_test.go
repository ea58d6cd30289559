package activity

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestJournalWritesNDJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "activity.ndjson")
	journal, err := NewJournal(JournalConfig{
		Enabled:   true,
		Path:      path,
		QueueSize: 16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}
	defer func() { _ = journal.Close() }()

	journal.Record(Event{
		Kind:      KindItemsReserved,
		SessionID: 42,
		Category:  "ai",
		ItemIDs:   []int64{1, 2},
		Count:     2,
		At:        time.Now().UTC(),
	})

	line := waitForJournalLine(t, path)
	var got journalLine
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal journal line: %v", err)
	}
	if got.ID == "" {
		t.Fatal("expected journal line to carry an id")
	}
	if got.Kind != KindItemsReserved {
		t.Fatalf("unexpected kind: %q", got.Kind)
	}
	if got.SessionID != 42 || got.Count != 2 {
		t.Fatalf("unexpected event payload: %+v", got)
	}
}

func TestJournalCloseFlushesQueue(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "activity.ndjson")
	journal, err := NewJournal(JournalConfig{
		Enabled:   true,
		Path:      path,
		QueueSize: 64,
	}, slog.Default())
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}

	for i := int64(1); i <= 10; i++ {
		journal.Record(Event{Kind: KindSessionCreated, SessionID: i, At: time.Now()})
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 10 {
		t.Fatalf("expected 10 journal lines, got %d", len(lines))
	}
}

func TestJournalDisabledIsNilSafe(t *testing.T) {
	t.Parallel()

	journal, err := NewJournal(JournalConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}
	if journal != nil {
		t.Fatal("expected nil journal when disabled")
	}

	// All methods must tolerate the nil receiver.
	journal.Record(Event{Kind: KindSessionCreated})
	if got := journal.Dropped(); got != 0 {
		t.Fatalf("expected 0 dropped, got %d", got)
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func waitForJournalLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for journal file %s", path)
	return ""
}
