package activity

import "time"

// Recorder composes the ring, journal, and hub behind one publish call.
// Any component may be nil; publishing never blocks the request path.
type Recorder struct {
	ring    *Ring
	journal *Journal
	hub     *Hub
}

// NewRecorder creates a recorder over the given sinks.
func NewRecorder(ring *Ring, journal *Journal, hub *Hub) *Recorder {
	return &Recorder{ring: ring, journal: journal, hub: hub}
}

// Publish stamps an event and distributes it to all sinks.
func (r *Recorder) Publish(event Event) {
	if r == nil {
		return
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	if r.ring != nil {
		r.ring.Append(event)
	}
	r.journal.Record(event)
	if r.hub != nil {
		// Subscriber writes may stall up to their budget each.
		go r.hub.Broadcast(event)
	}
}

// Recent returns up to limit buffered events, oldest first. A non-positive
// limit returns the whole ring.
func (r *Recorder) Recent(limit int) []Event {
	if r == nil || r.ring == nil {
		return nil
	}

	events := r.ring.Snapshot()
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events
}
