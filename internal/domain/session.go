package domain

import (
	"time"
)

// Session is a single playthrough's delivery scope. Content is deduplicated
// per session: once an item has been reserved for a session it is never
// returned to that session again. Sessions are immutable once created and
// are never deleted.
type Session struct {
	ID        int64
	CreatedAt time.Time
}

// SeenRecord marks one item as delivered to one session. The
// (SessionID, ItemID) pair is unique for the lifetime of the store; this is
// the system's sole uniqueness guarantee.
type SeenRecord struct {
	SessionID int64
	ItemID    int64
	SeenAt    time.Time
}
