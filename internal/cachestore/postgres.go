package cachestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresBackend persists cache entries in the cache_entries table
// (see migrations/001_cache_entries.up.sql).
type PostgresBackend struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresBackend creates a PostgresBackend backed by the given pool.
// The pool is owned by the caller and is not closed by Close.
func NewPostgresBackend(pool *pgxpool.Pool, logger *zap.Logger) *PostgresBackend {
	return &PostgresBackend{pool: pool, logger: logger}
}

// Get implements Backend.
func (p *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM cache_entries WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select cache entry: %w", err)
	}
	return v, nil
}

// Set implements Backend. Entries are upserted inside one transaction.
func (p *PostgresBackend) Set(ctx context.Context, entries ...Entry) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO cache_entries (key, value, updated_at)
			 VALUES ($1, $2, NOW())
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			e.Key, e.Value,
		); err != nil {
			return fmt.Errorf("upsert cache entry %s: %w", e.Key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cache tx: %w", err)
	}
	p.logger.Debug("cache entries written", zap.Int("count", len(entries)))
	return nil
}

// Delete implements Backend.
func (p *PostgresBackend) Delete(ctx context.Context, keys ...string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = ANY($1)`, keys); err != nil {
		return fmt.Errorf("delete cache entries: %w", err)
	}
	return nil
}

// Close implements Backend.
func (p *PostgresBackend) Close() error { return nil }
