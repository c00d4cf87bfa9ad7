package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/scout/pkg/trigger"
)

// TriggerStore is the PostgreSQL trigger.Store. Trigger definitions are
// stored as JSONB documents; the status column is duplicated for filtering.
type TriggerStore struct {
	pool *pgxpool.Pool
}

// NewTriggerStore creates a trigger store over the pool.
func NewTriggerStore(pool *pgxpool.Pool) *TriggerStore {
	return &TriggerStore{pool: pool}
}

func (s *TriggerStore) SaveTrigger(ctx context.Context, tr *trigger.Trigger) error {
	data, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("marshal trigger %s: %w", tr.ID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO triggers (id, data, status, updated_at)
		VALUES ($1, $2, $3, $4)`,
		tr.ID, data, tr.Status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save trigger %s: %w", tr.ID, err)
	}
	return nil
}

func (s *TriggerStore) UpdateTrigger(ctx context.Context, tr *trigger.Trigger) error {
	data, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("marshal trigger %s: %w", tr.ID, err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE triggers SET data = $2, status = $3, updated_at = $4 WHERE id = $1`,
		tr.ID, data, tr.Status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update trigger %s: %w", tr.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return trigger.ErrTriggerNotFound
	}
	return nil
}

func (s *TriggerStore) DeleteTrigger(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM triggers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete trigger %s: %w", id, err)
	}
	return nil
}

func (s *TriggerStore) ListTriggers(ctx context.Context) ([]*trigger.Trigger, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM triggers ORDER BY updated_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()

	var triggers []*trigger.Trigger
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		var tr trigger.Trigger
		if err := json.Unmarshal(data, &tr); err != nil {
			return nil, fmt.Errorf("unmarshal trigger: %w", err)
		}
		triggers = append(triggers, &tr)
	}
	return triggers, rows.Err()
}

func (s *TriggerStore) SaveExecution(ctx context.Context, ex *trigger.Execution) error {
	var params []byte
	if len(ex.TaskParams) > 0 {
		var err error
		params, err = json.Marshal(ex.TaskParams)
		if err != nil {
			return fmt.Errorf("marshal execution params: %w", err)
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trigger_executions (id, trigger_id, started_at,
			completed_at, status, error, retry_attempt, task_params)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ex.ID, ex.TriggerID, ex.StartedAt, ex.CompletedAt, ex.Status,
		ex.Error, ex.RetryAttempt, params)
	if err != nil {
		return fmt.Errorf("save execution %s: %w", ex.ID, err)
	}
	return nil
}

// ListExecutions returns the newest executions of a trigger.
func (s *TriggerStore) ListExecutions(ctx context.Context, triggerID string, limit int) ([]*trigger.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, trigger_id, started_at, completed_at, status, error,
			retry_attempt, task_params
		FROM trigger_executions WHERE trigger_id = $1
		ORDER BY started_at DESC LIMIT $2`, triggerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions %s: %w", triggerID, err)
	}
	defer rows.Close()

	var executions []*trigger.Execution
	for rows.Next() {
		var (
			ex     trigger.Execution
			params []byte
		)
		err := rows.Scan(&ex.ID, &ex.TriggerID, &ex.StartedAt, &ex.CompletedAt,
			&ex.Status, &ex.Error, &ex.RetryAttempt, &params)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &ex.TaskParams); err != nil {
				return nil, fmt.Errorf("unmarshal execution params: %w", err)
			}
		}
		executions = append(executions, &ex)
	}
	return executions, rows.Err()
}
