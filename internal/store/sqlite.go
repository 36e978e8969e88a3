package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/user/weather-bot-go/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS subscribers (
	subscriber_id INTEGER PRIMARY KEY,
	location      TEXT    NOT NULL DEFAULT '',
	delivery_time TEXT    NOT NULL DEFAULT '',
	display_mode  TEXT    NOT NULL DEFAULT 'standard',
	pending_input TEXT    NOT NULL DEFAULT 'none',
	updated_at    INTEGER NOT NULL
);`

// SQLiteBackend stores subscribers in an embedded SQLite database and
// upserts one row per Save instead of rewriting the table.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// SQLite is a single-writer engine
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Load returns all rows ordered by id
func (b *SQLiteBackend) Load(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT subscriber_id, location, delivery_time, display_mode, pending_input
		FROM subscribers
		ORDER BY subscriber_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}
	defer rows.Close()

	var subs []model.Subscriber
	for rows.Next() {
		var (
			sub     model.Subscriber
			mode    string
			pending string
		)
		if err := rows.Scan(&sub.ID, &sub.Location, &sub.DeliveryTime, &mode, &pending); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		if err := sub.Mode.UnmarshalText([]byte(mode)); err != nil {
			return nil, fmt.Errorf("subscriber %d: %w", sub.ID, err)
		}
		if err := sub.Pending.UnmarshalText([]byte(pending)); err != nil {
			return nil, fmt.Errorf("subscriber %d: %w", sub.ID, err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subscribers: %w", err)
	}
	return subs, nil
}

// Save upserts the changed row
func (b *SQLiteBackend) Save(ctx context.Context, changed model.Subscriber, _ []model.Subscriber) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO subscribers (
			subscriber_id, location, delivery_time, display_mode, pending_input, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(subscriber_id) DO UPDATE SET
			location      = excluded.location,
			delivery_time = excluded.delivery_time,
			display_mode  = excluded.display_mode,
			pending_input = excluded.pending_input,
			updated_at    = excluded.updated_at`,
		changed.ID, changed.Location, changed.DeliveryTime,
		string(changed.Mode), changed.Pending.String(), time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subscriber: %w", err)
	}
	return nil
}

// Ping checks database connectivity
func (b *SQLiteBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close closes the database
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
