package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/scribe/internal/batch"
	"github.com/MikeSquared-Agency/scribe/internal/llm"
	"github.com/MikeSquared-Agency/scribe/internal/task"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"

	defaultListLimit = 50
	maxListLimit     = 500
)

var ErrNotFound = errors.New("artifact not found")

// Artifact is one generation attempt, successful or not.
type Artifact struct {
	ID           uuid.UUID            `json:"id"`
	Kind         task.Kind            `json:"kind"`
	Mode         string               `json:"mode"`
	Params       task.Params          `json:"params"`
	Result       string               `json:"result,omitempty"`
	Status       string               `json:"status"`
	Error        string               `json:"error,omitempty"`
	TotalChunks  int                  `json:"totalChunks"`
	FailedChunks int                  `json:"failedChunks"`
	ProcessingMs int64                `json:"processingMs"`
	SourceRef    string               `json:"sourceRef,omitempty"`
	CreatedAt    time.Time            `json:"createdAt"`
	Failures     []batch.ChunkFailure `json:"failures,omitempty"`
}

type ListFilter struct {
	Kind   task.Kind
	Status string
	Limit  int
}

// WriteArtifact inserts a and its chunk failures in one transaction and
// returns the new id.
func (s *Store) WriteArtifact(ctx context.Context, a Artifact) (uuid.UUID, error) {
	params, err := json.Marshal(a.Params)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal params: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	id := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO artifacts (id, kind, mode, params, result, status, error, total_chunks, failed_chunks, processing_ms, source_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())`,
		id, string(a.Kind), a.Mode, params, a.Result, a.Status, a.Error, a.TotalChunks, a.FailedChunks, a.ProcessingMs, a.SourceRef,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert artifact: %w", err)
	}

	for _, f := range a.Failures {
		_, err = tx.Exec(ctx, `
			INSERT INTO artifact_chunk_failures (id, artifact_id, chunk_index, kind, retryable, message)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.New(), id, f.Index, string(f.Kind), f.Retryable, f.Message,
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert chunk failure: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// GetArtifact fetches an artifact with its chunk failures.
func (s *Store) GetArtifact(ctx context.Context, id uuid.UUID) (*Artifact, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, kind, mode, params, result, status, error, total_chunks, failed_chunks, processing_ms, source_ref, created_at
		FROM artifacts WHERE id = $1`, id)

	a, err := scanArtifact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT chunk_index, kind, retryable, message
		FROM artifact_chunk_failures WHERE artifact_id = $1
		ORDER BY chunk_index`, id)
	if err != nil {
		return nil, fmt.Errorf("query chunk failures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f batch.ChunkFailure
		var kind string
		if err := rows.Scan(&f.Index, &kind, &f.Retryable, &f.Message); err != nil {
			return nil, fmt.Errorf("scan chunk failure: %w", err)
		}
		f.Kind = llm.ErrorKind(kind)
		a.Failures = append(a.Failures, f)
	}
	return a, rows.Err()
}

// ListArtifacts returns the newest artifacts first, without their text.
func (s *Store) ListArtifacts(ctx context.Context, filter ListFilter) ([]Artifact, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, mode, params, '', status, error, total_chunks, failed_chunks, processing_ms, source_ref, created_at
		FROM artifacts
		WHERE ($1::text = '' OR kind = $1) AND ($2::text = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3`, string(filter.Kind), filter.Status, limit)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanArtifact(row pgx.Row) (*Artifact, error) {
	var a Artifact
	var kind string
	var params []byte
	err := row.Scan(&a.ID, &kind, &a.Mode, &params, &a.Result, &a.Status, &a.Error,
		&a.TotalChunks, &a.FailedChunks, &a.ProcessingMs, &a.SourceRef, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Kind = task.Kind(kind)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &a.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params: %w", err)
		}
	}
	return &a, nil
}
