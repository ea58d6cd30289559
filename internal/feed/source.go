package feed

import "context"

// Draw is the raw material for one cache entry: either a single item or the
// two sides of a pair.
type Draw struct {
	Item  *Item
	AI    *Item
	Human *Item
}

// Source derives draws for the cache. Implementations return ErrExhausted
// once no unseen content remains; any other error is treated as transient
// and the failed draw is skipped.
type Source interface {
	Draw(ctx context.Context) (Draw, error)
}

// Reserver is the slice of the backend client the remote sources need.
type Reserver interface {
	ReserveBatch(ctx context.Context, sessionID int64, category string, count int) ([]Item, error)
	ReserveOne(ctx context.Context, sessionID int64) (*Item, error)
}
