package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/scout/pkg/graph"
)

// CheckpointStore is the PostgreSQL graph.Checkpointer. The checkpoints
// table is created by migrations; Setup just verifies connectivity.
type CheckpointStore struct {
	pool *pgxpool.Pool
}

// NewCheckpointStore creates a checkpoint store over the pool.
func NewCheckpointStore(pool *pgxpool.Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

func (s *CheckpointStore) Setup(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *CheckpointStore) Put(ctx context.Context, threadID, checkpointID string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO checkpoints (thread_id, checkpoint_id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (thread_id, checkpoint_id) DO UPDATE
			SET data = EXCLUDED.data, created_at = now()`,
		threadID, checkpointID, data)
	if err != nil {
		return fmt.Errorf("put checkpoint %s/%s: %w", threadID, checkpointID, err)
	}
	return nil
}

func (s *CheckpointStore) Get(ctx context.Context, threadID, checkpointID string) ([]byte, error) {
	var (
		row  pgx.Row
		data []byte
	)
	if checkpointID == "" {
		row = s.pool.QueryRow(ctx, `
			SELECT data FROM checkpoints WHERE thread_id = $1
			ORDER BY created_at DESC LIMIT 1`, threadID)
	} else {
		row = s.pool.QueryRow(ctx, `
			SELECT data FROM checkpoints
			WHERE thread_id = $1 AND checkpoint_id = $2`, threadID, checkpointID)
	}
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, graph.ErrNoCheckpoint
		}
		return nil, fmt.Errorf("get checkpoint %s/%s: %w", threadID, checkpointID, err)
	}
	return data, nil
}

func (s *CheckpointStore) List(ctx context.Context, threadID string) ([]graph.CheckpointInfo, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT thread_id, checkpoint_id, created_at FROM checkpoints
		WHERE thread_id = $1 ORDER BY created_at ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints %s: %w", threadID, err)
	}
	defer rows.Close()

	var infos []graph.CheckpointInfo
	for rows.Next() {
		var info graph.CheckpointInfo
		if err := rows.Scan(&info.ThreadID, &info.CheckpointID, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// PruneThread drops all checkpoints for a finished thread.
func (s *CheckpointStore) PruneThread(ctx context.Context, threadID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE thread_id = $1`, threadID)
	if err != nil {
		return fmt.Errorf("prune checkpoints %s: %w", threadID, err)
	}
	return nil
}

// PruneOrphaned deletes checkpoints older than cutoff whose thread has no
// remaining run rows, and returns how many were deleted. Run retention
// deletes the runs first; this sweeps the thread state they leave behind.
func (s *CheckpointStore) PruneOrphaned(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM checkpoints c
		WHERE c.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM runs r WHERE r.thread_id = c.thread_id)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune orphaned checkpoints: %w", err)
	}
	return tag.RowsAffected(), nil
}
