package featureflags

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of *pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores overrides in the feature_flags table so every API
// instance sees the same switches.
type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS feature_flags (
	key        TEXT PRIMARY KEY,
	enabled    BOOLEAN NOT NULL,
	updated_by TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureSchema creates the feature_flags table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("creating feature_flags table: %w", err)
	}
	return nil
}

const selectFlags = `SELECT key, enabled, updated_by, updated_at FROM feature_flags`

func scanFlag(row pgx.Row) (*Flag, error) {
	var (
		f       Flag
		enabled bool
	)
	if err := row.Scan(&f.Key, &enabled, &f.UpdatedBy, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.Value = enabled
	return &f, nil
}

func (r *PostgresRepository) Get(ctx context.Context, key string) (*Flag, error) {
	f, err := scanFlag(r.db.QueryRow(ctx, selectFlags+` WHERE key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFlagNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading flag %s: %w", key, err)
	}
	return f, nil
}

func (r *PostgresRepository) List(ctx context.Context) (map[string]*Flag, error) {
	rows, err := r.db.Query(ctx, selectFlags)
	if err != nil {
		return nil, fmt.Errorf("listing flags: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*Flag)
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning flag: %w", err)
		}
		out[f.Key] = f
	}
	return out, rows.Err()
}

// Put upserts an override. Values other than booleans are rejected.
func (r *PostgresRepository) Put(ctx context.Context, flag *Flag) error {
	enabled, ok := flag.Value.(bool)
	if !ok {
		return ErrInvalidValue
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO feature_flags (key, enabled, updated_by, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at`,
		flag.Key, enabled, flag.UpdatedBy)
	if err != nil {
		return fmt.Errorf("storing flag %s: %w", flag.Key, err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, key string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM feature_flags WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("deleting flag %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFlagNotFound
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
