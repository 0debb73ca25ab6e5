package snapshot

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS slide_positions (
    set_id      TEXT PRIMARY KEY,
    slide_index INTEGER NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore persists snapshots in a slide_positions table, one row
// per set.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the snapshot table
// exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure slide_positions table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Load(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT set_id, slide_index FROM slide_positions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query slide positions: %w", err)
	}
	defer rows.Close()

	positions := make(map[string]int)
	for rows.Next() {
		var setID string
		var index int
		if err := rows.Scan(&setID, &index); err != nil {
			return nil, fmt.Errorf("failed to scan slide position: %w", err)
		}
		positions[setID] = index
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read slide positions: %w", err)
	}
	return positions, nil
}

func (s *PostgresStore) Save(ctx context.Context, positions map[string]int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for setID, index := range positions {
		_, err := tx.Exec(ctx, `
			INSERT INTO slide_positions (set_id, slide_index, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (set_id) DO UPDATE
			SET slide_index = EXCLUDED.slide_index, updated_at = now()`,
			setID, index)
		if err != nil {
			return fmt.Errorf("failed to upsert slide position for set %q: %w", setID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit slide positions: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
