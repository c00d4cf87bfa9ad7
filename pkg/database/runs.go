package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/scout/pkg/models"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `id, thread_id, user_id, status, input, route, final_report,
	error, is_cancelled, revision_count, tool_call_count, trigger_id,
	created_at, started_at, completed_at`

// RunStore persists run records.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a run store over the pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Create inserts a new run record.
func (s *RunStore) Create(ctx context.Context, run *models.Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (id, thread_id, user_id, status, input, route,
			final_report, error, is_cancelled, revision_count,
			tool_call_count, trigger_id, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		run.ID, run.ThreadID, run.UserID, run.Status, run.Input, run.Route,
		run.FinalReport, run.Error, run.IsCancelled, run.RevisionCount,
		run.ToolCallCount, run.TriggerID, run.CreatedAt, run.StartedAt,
		run.CompletedAt)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// Get fetches one run by id.
func (s *RunStore) Get(ctx context.Context, id string) (*models.Run, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM runs WHERE id = $1", runColumns), id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// List returns filtered runs, newest first, plus the unpaginated total.
func (s *RunStore) List(ctx context.Context, filters models.RunFilters) (*models.RunListResponse, error) {
	where, args := runFilterClause(filters)

	var total int
	countQuery := "SELECT count(*) FROM runs" + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT %s FROM runs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		runColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, filters.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*models.Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	return &models.RunListResponse{
		Runs:       runs,
		TotalCount: total,
		Limit:      limit,
		Offset:     filters.Offset,
	}, nil
}

// MarkStarted transitions a run to running and stamps the start time.
func (s *RunStore) MarkStarted(ctx context.Context, id string) error {
	return s.exec(ctx, id, `
		UPDATE runs SET status = $2, started_at = $3 WHERE id = $1`,
		models.RunStatusRunning, time.Now().UTC())
}

// UpdateStatus sets the run status.
func (s *RunStore) UpdateStatus(ctx context.Context, id string, status models.RunStatus) error {
	return s.exec(ctx, id, `UPDATE runs SET status = $2 WHERE id = $1`, status)
}

// Finish records the terminal (or paused) outcome of a run.
func (s *RunStore) Finish(ctx context.Context, run *models.Run) error {
	return s.exec(ctx, run.ID, `
		UPDATE runs SET status = $2, route = $3, final_report = $4, error = $5,
			is_cancelled = $6, revision_count = $7, tool_call_count = $8,
			completed_at = $9
		WHERE id = $1`,
		run.Status, run.Route, run.FinalReport, run.Error, run.IsCancelled,
		run.RevisionCount, run.ToolCallCount, run.CompletedAt)
}

// ListByStatus returns all runs currently in the given status, oldest first.
// Used by orphan recovery at startup.
func (s *RunStore) ListByStatus(ctx context.Context, status models.RunStatus) ([]*models.Run, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf("SELECT %s FROM runs WHERE status = $1 ORDER BY created_at ASC", runColumns),
		status)
	if err != nil {
		return nil, fmt.Errorf("list runs by status %s: %w", status, err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *RunStore) exec(ctx context.Context, id, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func runFilterClause(filters models.RunFilters) (string, []any) {
	var conds []string
	var args []any
	if filters.Status != "" {
		args = append(args, filters.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filters.UserID != "" {
		args = append(args, filters.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanRun(row pgx.Row) (*models.Run, error) {
	var run models.Run
	err := row.Scan(&run.ID, &run.ThreadID, &run.UserID, &run.Status,
		&run.Input, &run.Route, &run.FinalReport, &run.Error,
		&run.IsCancelled, &run.RevisionCount, &run.ToolCallCount,
		&run.TriggerID, &run.CreatedAt, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// DeleteOlderThan removes terminal runs that completed before cutoff and
// returns how many were deleted. Active runs are never touched.
func (s *RunStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM runs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND completed_at IS NOT NULL
		  AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
