package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgxpool.Pool used by PostgresStore.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS travel_cache (
    cache_key  TEXT PRIMARY KEY,
    payload    JSONB NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS travel_cache_expires_at_idx ON travel_cache (expires_at);
`

// PostgresStore keeps cache entries in a single upserted table.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a store on top of an existing pool.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the cache table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("creating travel_cache table: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	const query = `
		SELECT payload
		FROM travel_cache
		WHERE cache_key = $1 AND expires_at > now()
	`
	var payload []byte
	err := s.db.QueryRow(ctx, query, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	return payload, true, nil
}

// Set implements Store.
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	const query = `
		INSERT INTO travel_cache (cache_key, payload, expires_at, updated_at)
		VALUES ($1, $2, now() + make_interval(secs => $3), now())
		ON CONFLICT (cache_key) DO UPDATE SET
			payload = EXCLUDED.payload,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.Exec(ctx, query, key, value, ttl.Seconds()); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// PurgeExpired implements Store.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM travel_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("purging expired cache entries: %w", err)
	}
	return tag.RowsAffected(), nil
}
