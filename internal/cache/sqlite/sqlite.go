// Package sqlite implements cache.Backend on a single-file SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/cache"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/database"
	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// Backend stores cache values in the cache_entries table.
type Backend struct {
	db    *sql.DB
	quota int
	now   func() time.Time
}

// Open creates or opens the database at path and applies the schema.
// quota <= 0 means values are unbounded.
func Open(ctx context.Context, path string, quota int) (*Backend, error) {
	db, err := database.NewSQLite(ctx, database.DefaultSQLiteConfig(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite cache schema: %w", err)
	}
	return &Backend{db: db, quota: quota, now: time.Now}, nil
}

// DB exposes the underlying pool for metrics registration.
func (b *Backend) DB() *sql.DB {
	return b.db
}

// Close closes the database.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Ping checks the database connection.
func (b *Backend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Get returns the value stored for key.
func (b *Backend) Get(ctx context.Context, key string) (value []byte, err error) {
	const query = `SELECT value FROM cache_entries WHERE key = ?`
	ctx, end := database.TraceQuery(ctx, "GetEntry", query)
	defer func() { end(err) }()

	err = b.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("cache key", key)
		}
		return nil, fmt.Errorf("select cache entry: %w", err)
	}
	return value, nil
}

// Set inserts or replaces the value for key.
func (b *Backend) Set(ctx context.Context, key string, value []byte) (err error) {
	if b.quota > 0 && len(value) > b.quota {
		return fmt.Errorf("set %s (%d bytes): %w", key, len(value), cache.ErrQuotaExceeded)
	}
	const query = `INSERT INTO cache_entries (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	ctx, end := database.TraceQuery(ctx, "SetEntry", query)
	defer func() { end(err) }()

	_, err = b.db.ExecContext(ctx, query, key, value, b.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// Delete removes key; a missing key is not an error.
func (b *Backend) Delete(ctx context.Context, key string) (err error) {
	const query = `DELETE FROM cache_entries WHERE key = ?`
	ctx, end := database.TraceQuery(ctx, "DeleteEntry", query)
	defer func() { end(err) }()

	if _, err = b.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// Keys lists the stored keys in order.
func (b *Backend) Keys(ctx context.Context) (keys []string, err error) {
	const query = `SELECT key FROM cache_entries ORDER BY key`
	ctx, end := database.TraceQuery(ctx, "ListKeys", query)
	defer func() { end(err) }()

	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list cache keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan cache key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
