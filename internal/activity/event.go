// Package activity records and broadcasts delivery events. The feed is
// observational: dropping an event never affects content delivery.
package activity

import "time"

// Event kinds.
const (
	KindSessionCreated = "session_created"
	KindItemsReserved  = "items_reserved"
	KindCatalogSynced  = "catalog_synced"
)

// Event is one observational delivery record.
type Event struct {
	Kind      string    `json:"kind"`
	SessionID int64     `json:"sessionId,omitempty"`
	Category  string    `json:"category,omitempty"`
	ItemIDs   []int64   `json:"itemIds,omitempty"`
	Count     int       `json:"count,omitempty"`
	At        time.Time `json:"at"`
}
