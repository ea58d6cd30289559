package activity

import (
	"testing"
)

func TestRingAppendAndSnapshot(t *testing.T) {
	ring := NewRing(4)

	for i := int64(1); i <= 3; i++ {
		ring.Append(Event{Kind: KindSessionCreated, SessionID: i})
	}

	events := ring.Snapshot()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, event := range events {
		if event.SessionID != int64(i+1) {
			t.Fatalf("expected session %d at index %d, got %d", i+1, i, event.SessionID)
		}
	}
	if got := ring.Len(); got != 3 {
		t.Fatalf("expected len 3, got %d", got)
	}
}

func TestRingOverwritesOldestWhenFull(t *testing.T) {
	ring := NewRing(3)

	for i := int64(1); i <= 5; i++ {
		ring.Append(Event{SessionID: i})
	}

	events := ring.Snapshot()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	want := []int64{3, 4, 5}
	for i, event := range events {
		if event.SessionID != want[i] {
			t.Fatalf("expected session %d at index %d, got %d", want[i], i, event.SessionID)
		}
	}
	if got := ring.Len(); got != 3 {
		t.Fatalf("expected len 3, got %d", got)
	}
}

func TestRingReset(t *testing.T) {
	ring := NewRing(3)
	ring.Append(Event{SessionID: 1})
	ring.Reset()

	if got := ring.Len(); got != 0 {
		t.Fatalf("expected empty ring, got len %d", got)
	}
	if got := len(ring.Snapshot()); got != 0 {
		t.Fatalf("expected empty snapshot, got %d", got)
	}
	if got := ring.Capacity(); got != 3 {
		t.Fatalf("expected capacity 3, got %d", got)
	}
}

func TestRingDefaultCapacity(t *testing.T) {
	ring := NewRing(0)
	if got := ring.Capacity(); got != 256 {
		t.Fatalf("expected default capacity 256, got %d", got)
	}
}
