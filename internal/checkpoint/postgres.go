package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool the store needs; pgxmock satisfies it in
// tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const createCheckpointsTable = `
	CREATE TABLE IF NOT EXISTS step_checkpoints (
		step_id  TEXT PRIMARY KEY,
		snapshot JSONB NOT NULL,
		version  BIGINT NOT NULL,
		saved_at TIMESTAMPTZ NOT NULL
	);
`

// PostgresStore persists snapshots in a step_checkpoints table. The upsert
// makes Save atomic from a reader's perspective.
type PostgresStore struct {
	db    DB
	close func()
}

// NewPostgresStore connects via pgxpool and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	s := &PostgresStore{db: pool, close: pool.Close}
	if _, err := s.db.Exec(ctx, createCheckpointsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure checkpoint schema: %w", err)
	}
	return s, nil
}

// NewPostgresStoreWithDB wraps an existing connection; used by tests.
func NewPostgresStoreWithDB(db DB) *PostgresStore {
	return &PostgresStore{db: db, close: func() {}}
}

// Save upserts the step's snapshot.
func (s *PostgresStore) Save(ctx context.Context, snap Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	query := `
		INSERT INTO step_checkpoints (step_id, snapshot, version, saved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (step_id) DO UPDATE
		SET snapshot = EXCLUDED.snapshot,
		    version = EXCLUDED.version,
		    saved_at = EXCLUDED.saved_at;
	`
	if _, err := s.db.Exec(ctx, query, snap.StepID, raw, snap.Version, snap.SavedAt); err != nil {
		return fmt.Errorf("upsert checkpoint for %s: %w", snap.StepID, err)
	}
	return nil
}

// Load fetches the step's snapshot, or ErrNotFound.
func (s *PostgresStore) Load(ctx context.Context, stepID string) (Snapshot, error) {
	var raw []byte
	query := `SELECT snapshot FROM step_checkpoints WHERE step_id = $1;`
	if err := s.db.QueryRow(ctx, query, stepID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("query checkpoint for %s: %w", stepID, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode checkpoint for %s: %w", stepID, err)
	}
	return snap, nil
}

// Delete removes the step's snapshot.
func (s *PostgresStore) Delete(ctx context.Context, stepID string) error {
	query := `DELETE FROM step_checkpoints WHERE step_id = $1;`
	if _, err := s.db.Exec(ctx, query, stepID); err != nil {
		return fmt.Errorf("delete checkpoint for %s: %w", stepID, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.close()
}
