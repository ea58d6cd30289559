package activity

import (
	"sync"
)

// Ring provides a fixed-size circular buffer of recent events.
// Prevents memory exhaustion on long-running servers: once full, the oldest
// event is overwritten.
type Ring struct {
	buf  []Event
	head int // write position
	full bool
	mu   sync.RWMutex
}

// NewRing creates a new ring with the specified capacity.
// Default capacity is 256 events.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 256
	}
	return &Ring{buf: make([]Event, size)}
}

// Append adds an event, overwriting the oldest one when the ring is full.
func (r *Ring) Append(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.head] = event
	r.head = (r.head + 1) % len(r.buf)
	if r.head == 0 {
		r.full = true
	}
}

// Snapshot returns the buffered events oldest first.
// Returns data in correct order even after the ring has wrapped.
func (r *Ring) Snapshot() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		out := make([]Event, r.head)
		copy(out, r.buf[:r.head])
		return out
	}

	// Wrap-around: head -> end holds the oldest entries.
	out := make([]Event, 0, len(r.buf))
	out = append(out, r.buf[r.head:]...)
	out = append(out, r.buf[:r.head]...)
	return out
}

// Len returns the number of buffered events.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.full {
		return len(r.buf)
	}
	return r.head
}

// Reset clears the ring.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.head = 0
	r.full = false
}

// Capacity returns the maximum number of buffered events.
func (r *Ring) Capacity() int {
	return len(r.buf)
}
