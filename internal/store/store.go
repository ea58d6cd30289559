// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/ashureev/fauxto/internal/domain"
)

// ErrSessionNotFound is returned when an operation names a session that was
// never created.
var ErrSessionNotFound = errors.New("session not found")

// Repository defines the interface for persisting sessions, the content
// catalog, and the per-session seen ledger.
type Repository interface {
	// CreateSession mints a new session with an identifier that is unique
	// even under concurrent creation.
	CreateSession(ctx context.Context) (*domain.Session, error)

	// GetSession retrieves a session by id.
	// Returns ErrSessionNotFound if the session does not exist.
	GetSession(ctx context.Context, id int64) (*domain.Session, error)

	// ReserveBatch selects up to count active items of the given category
	// that the session has not seen, marks them seen, and returns them.
	// Selection and marking happen in one transaction; two concurrent calls
	// for the same session never return overlapping items. Returns fewer
	// than count items (possibly none) once the catalog is exhausted for
	// that session; exhaustion is a normal result, not an error.
	ReserveBatch(ctx context.Context, sessionID int64, category domain.Category, count int) ([]domain.ContentItem, error)

	// ReserveOne selects one unseen active item of any category for the
	// session and marks it seen, under the same transactional contract as
	// ReserveBatch. Returns nil without error on exhaustion.
	ReserveOne(ctx context.Context, sessionID int64) (*domain.ContentItem, error)

	// SeedItems inserts catalog items keyed on url, reactivating any that
	// were previously deactivated. Returns the number of rows inserted or
	// reactivated; re-seeding existing active urls is a no-op.
	SeedItems(ctx context.Context, category domain.Category, urls []string) (int64, error)

	// ListActiveURLs returns the urls of all active items in a category.
	ListActiveURLs(ctx context.Context, category domain.Category) ([]string, error)

	// DeactivateByURL soft-deactivates the items with the given urls.
	// Seen-records referencing them are kept.
	DeactivateByURL(ctx context.Context, urls []string) (int64, error)

	// CountActiveItems reports how many active items a category holds.
	CountActiveItems(ctx context.Context, category domain.Category) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
