package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	id             uuid PRIMARY KEY,
	kind           text NOT NULL,
	mode           text NOT NULL,
	params         jsonb NOT NULL DEFAULT '{}'::jsonb,
	result         text NOT NULL DEFAULT '',
	status         text NOT NULL,
	error          text NOT NULL DEFAULT '',
	total_chunks   integer NOT NULL DEFAULT 0,
	failed_chunks  integer NOT NULL DEFAULT 0,
	processing_ms  bigint NOT NULL DEFAULT 0,
	source_ref     text NOT NULL DEFAULT '',
	created_at     timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS artifacts_created_at_idx ON artifacts (created_at DESC);

CREATE TABLE IF NOT EXISTS artifact_chunk_failures (
	id           uuid PRIMARY KEY,
	artifact_id  uuid NOT NULL REFERENCES artifacts(id) ON DELETE CASCADE,
	chunk_index  integer NOT NULL,
	kind         text NOT NULL,
	retryable    boolean NOT NULL,
	message      text NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS artifact_chunk_failures_artifact_idx ON artifact_chunk_failures (artifact_id);
`

// Migrate creates the artifact tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
