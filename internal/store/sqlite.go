package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/fauxto/internal/domain"
	"github.com/ashureev/fauxto/internal/shared"
	_ "modernc.org/sqlite"
)

// mintMaxAttempts bounds the session-id collision retry loop.
const mintMaxAttempts = 5

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS content_items (
		id INTEGER PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL CHECK (category IN ('ai', 'human')),
		active INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_items_category_active ON content_items(category, active);

	CREATE TABLE IF NOT EXISTS seen_records (
		session_id INTEGER NOT NULL,
		item_id INTEGER NOT NULL,
		seen_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, item_id)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSession mints a new session. The id carries a millisecond timestamp
// plus a random tie-breaker; on the rare collision the mint retries with a
// fresh tie-breaker, bounded by mintMaxAttempts.
func (s *SQLiteStore) CreateSession(ctx context.Context) (*domain.Session, error) {
	for attempt := 1; attempt <= mintMaxAttempts; attempt++ {
		nowMs := time.Now().UnixMilli()
		id := nowMs*1000 + int64(rand.Intn(1000))

		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, created_at) VALUES (?, ?)`, id, nowMs)
		if err == nil {
			return &domain.Session{ID: id, CreatedAt: time.UnixMilli(nowMs)}, nil
		}
		if shared.IsSQLiteConstraintError(err) {
			slog.Debug("session id collision, re-minting", "id", id, "attempt", attempt)
			continue
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return nil, fmt.Errorf("mint session id: %d consecutive collisions", mintMaxAttempts)
}

// GetSession retrieves a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, id int64) (*domain.Session, error) {
	var createdMs int64
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM sessions WHERE id = ?`, id).Scan(&createdMs)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return &domain.Session{ID: id, CreatedAt: time.UnixMilli(createdMs)}, nil
}

// ReserveBatch selects up to count unseen items of the category and marks
// them seen, all inside one transaction.
func (s *SQLiteStore) ReserveBatch(ctx context.Context, sessionID int64, category domain.Category, count int) ([]domain.ContentItem, error) {
	if count <= 0 {
		return nil, fmt.Errorf("reserve batch: count must be positive, got %d", count)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := sessionExists(ctx, tx, sessionID); err != nil {
		return nil, err
	}

	items, err := selectUnseen(ctx, tx, sessionID, string(category), count)
	if err != nil {
		return nil, err
	}

	if err := markSeen(ctx, tx, sessionID, items); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reservation: %w", err)
	}
	return items, nil
}

// ReserveOne selects one unseen item of any category and marks it seen.
func (s *SQLiteStore) ReserveOne(ctx context.Context, sessionID int64) (*domain.ContentItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := sessionExists(ctx, tx, sessionID); err != nil {
		return nil, err
	}

	items, err := selectUnseen(ctx, tx, sessionID, "", 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit reservation: %w", err)
		}
		return nil, nil
	}

	if err := markSeen(ctx, tx, sessionID, items); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reservation: %w", err)
	}
	return &items[0], nil
}

// sessionExists verifies the session inside the reservation transaction.
func sessionExists(ctx context.Context, tx *sql.Tx, sessionID int64) error {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	return nil
}

// selectUnseen draws up to count random active items the session has not
// seen. An empty category matches all categories.
func selectUnseen(ctx context.Context, tx *sql.Tx, sessionID int64, category string, count int) ([]domain.ContentItem, error) {
	query := `
		SELECT id, url, category FROM content_items
		WHERE active = 1
		  AND id NOT IN (SELECT item_id FROM seen_records WHERE session_id = ?)`
	args := []interface{}{sessionID}

	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY RANDOM() LIMIT ?`
	args = append(args, count)

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select unseen items: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close unseen item rows", "error", closeErr)
		}
	}()

	items := []domain.ContentItem{}
	for rows.Next() {
		var item domain.ContentItem
		var cat string
		if err := rows.Scan(&item.ID, &item.URL, &cat); err != nil {
			return nil, fmt.Errorf("scan item row: %w", err)
		}
		item.Category = domain.Category(cat)
		item.Active = true
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unseen items: %w", err)
	}

	return items, nil
}

// markSeen inserts one seen-record per reserved item. The primary key on
// (session_id, item_id) makes a double-insert impossible; a violation rolls
// the whole reservation back.
func markSeen(ctx context.Context, tx *sql.Tx, sessionID int64, items []domain.ContentItem) error {
	if len(items) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO seen_records (session_id, item_id, seen_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare seen insert: %w", err)
	}
	defer stmt.Close()

	nowMs := time.Now().UnixMilli()
	for _, item := range items {
		if _, err := stmt.ExecContext(ctx, sessionID, item.ID, nowMs); err != nil {
			return fmt.Errorf("insert seen record for item %d: %w", item.ID, err)
		}
	}
	return nil
}

// SeedItems inserts or reactivates catalog items keyed on url.
func (s *SQLiteStore) SeedItems(ctx context.Context, category domain.Category, urls []string) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO content_items (url, category, active) VALUES (?, ?, 1)
		ON CONFLICT(url) DO UPDATE SET active = 1 WHERE content_items.active = 0`)
	if err != nil {
		return 0, fmt.Errorf("prepare seed insert: %w", err)
	}
	defer stmt.Close()

	var added int64
	for _, url := range urls {
		result, err := stmt.ExecContext(ctx, url, string(category))
		if err != nil {
			return 0, fmt.Errorf("seed item %s: %w", url, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("seed rows affected: %w", err)
		}
		added += rows
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return added, nil
}

// ListActiveURLs returns the urls of all active items in a category.
func (s *SQLiteStore) ListActiveURLs(ctx context.Context, category domain.Category) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url FROM content_items WHERE category = ? AND active = 1`, string(category))
	if err != nil {
		return nil, fmt.Errorf("query active urls: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close active url rows", "error", closeErr)
		}
	}()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan url row: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active urls: %w", err)
	}

	return urls, nil
}

// DeactivateByURL soft-deactivates the items with the given urls.
func (s *SQLiteStore) DeactivateByURL(ctx context.Context, urls []string) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(urls)), ",")
	query := fmt.Sprintf(`UPDATE content_items SET active = 0 WHERE url IN (%s)`, placeholders)

	args := make([]interface{}, len(urls))
	for i, url := range urls {
		args[i] = url
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate items: %w", err)
	}
	return result.RowsAffected()
}

// CountActiveItems reports how many active items a category holds.
func (s *SQLiteStore) CountActiveItems(ctx context.Context, category domain.Category) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_items WHERE category = ? AND active = 1`,
		string(category)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active items: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
