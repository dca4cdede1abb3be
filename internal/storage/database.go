package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sqlx.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Get returns the value stored under key. The boolean is false when the key
// has never been set.
func (db *DB) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.conn.GetContext(ctx, &value, `SELECT value FROM kv WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (db *DB) Set(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (db *DB) Remove(ctx context.Context, key string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}
	return nil
}

// Keys lists all keys starting with prefix, in order.
func (db *DB) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := db.conn.SelectContext(ctx, &keys, `
		SELECT key FROM kv WHERE substr(key, 1, length(?)) = ? ORDER BY key
	`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys with prefix %s: %w", prefix, err)
	}
	return keys, nil
}

type reviewRow struct {
	Namespace  string `db:"namespace"`
	CardKey    string `db:"card_key"`
	Grade      int    `db:"grade"`
	Interval   int    `db:"interval"`
	Ease       int    `db:"ease"`
	ReviewedAt int64  `db:"reviewed_at"`
}

// AppendReview records a review event.
func (db *DB) AppendReview(ctx context.Context, log domain.ReviewLog) error {
	row := reviewRow{
		Namespace:  log.Namespace,
		CardKey:    log.CardKey,
		Grade:      log.Grade,
		Interval:   log.Interval,
		Ease:       log.Ease,
		ReviewedAt: log.Timestamp.UnixMilli(),
	}
	_, err := db.conn.NamedExecContext(ctx, `
		INSERT INTO review_log (namespace, card_key, grade, interval, ease, reviewed_at)
		VALUES (:namespace, :card_key, :grade, :interval, :ease, :reviewed_at)
	`, row)
	if err != nil {
		return fmt.Errorf("failed to append review for card %s: %w", log.CardKey, err)
	}
	return nil
}

// ReviewsSince returns the reviews recorded for namespace at or after since,
// oldest first.
func (db *DB) ReviewsSince(ctx context.Context, namespace string, since time.Time) ([]domain.ReviewLog, error) {
	var rows []reviewRow
	err := db.conn.SelectContext(ctx, &rows, `
		SELECT namespace, card_key, grade, interval, ease, reviewed_at
		FROM review_log
		WHERE namespace = ? AND reviewed_at >= ?
		ORDER BY reviewed_at, id
	`, namespace, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to get reviews for namespace %s: %w", namespace, err)
	}

	logs := make([]domain.ReviewLog, 0, len(rows))
	for _, r := range rows {
		logs = append(logs, domain.ReviewLog{
			Namespace: r.Namespace,
			CardKey:   r.CardKey,
			Grade:     r.Grade,
			Interval:  r.Interval,
			Ease:      r.Ease,
			Timestamp: time.UnixMilli(r.ReviewedAt),
		})
	}
	return logs, nil
}

// DeleteReviews removes the review history of a namespace.
func (db *DB) DeleteReviews(ctx context.Context, namespace string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM review_log WHERE namespace = ?`, namespace)
	if err != nil {
		return fmt.Errorf("failed to delete reviews for namespace %s: %w", namespace, err)
	}
	return nil
}
