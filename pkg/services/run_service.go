package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/scout/pkg/database"
	"github.com/codeready-toolchain/scout/pkg/events"
	"github.com/codeready-toolchain/scout/pkg/models"
	"github.com/codeready-toolchain/scout/pkg/queue"
)

// RunStore is the persistence surface the run service needs.
type RunStore interface {
	Create(ctx context.Context, run *models.Run) error
	Get(ctx context.Context, id string) (*models.Run, error)
	List(ctx context.Context, filters models.RunFilters) (*models.RunListResponse, error)
	Finish(ctx context.Context, run *models.Run) error
}

// Dispatcher submits jobs to the worker pool.
type Dispatcher interface {
	Submit(job queue.Job) error
}

// Canceller asserts a run's cancel token. Satisfied by graph.CancelRegistry.
type Canceller interface {
	Cancel(runID string) bool
}

// RunService manages the run lifecycle: creation, listing, cancellation and
// review resumption.
type RunService struct {
	store     RunStore
	queue     Dispatcher
	cancels   Canceller
	publisher *events.Publisher
}

// NewRunService wires a run service.
func NewRunService(store RunStore, dispatcher Dispatcher, cancels Canceller, publisher *events.Publisher) *RunService {
	return &RunService{
		store:     store,
		queue:     dispatcher,
		cancels:   cancels,
		publisher: publisher,
	}
}

// Create validates the request, persists a pending run and enqueues it.
func (s *RunService) Create(ctx context.Context, req models.CreateRunRequest) (*models.Run, error) {
	if strings.TrimSpace(req.Input) == "" {
		return nil, NewValidationError("input", "required")
	}

	runID := uuid.NewString()
	threadID := req.ThreadID
	if threadID == "" {
		threadID = runID
	}
	run := &models.Run{
		ID:        runID,
		ThreadID:  threadID,
		UserID:    req.UserID,
		Status:    models.RunStatusPending,
		Input:     req.Input,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	if err := s.queue.Submit(queue.Job{Run: run, Request: req}); err != nil {
		// Roll the record into a terminal state so it doesn't linger as an
		// orphan waiting for recovery.
		now := time.Now().UTC()
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
		run.CompletedAt = &now
		_ = s.store.Finish(ctx, run)
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrStopped) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("enqueue run: %w", err)
	}

	s.publisher.PublishRunStatus(run)
	return run, nil
}

// CreateFromTrigger creates a run on behalf of a fired trigger. The task text
// becomes the input; params are appended as context lines.
func (s *RunService) CreateFromTrigger(ctx context.Context, triggerID, task string, params map[string]any) (*models.Run, error) {
	input := strings.TrimSpace(task)
	if input == "" {
		return nil, NewValidationError("task", "required")
	}
	if len(params) > 0 {
		var b strings.Builder
		b.WriteString(input)
		b.WriteString("\n\nContext:")
		for k, v := range params {
			fmt.Fprintf(&b, "\n- %s: %v", k, v)
		}
		input = b.String()
	}

	runID := uuid.NewString()
	run := &models.Run{
		ID:        runID,
		ThreadID:  runID,
		Status:    models.RunStatusPending,
		Input:     input,
		TriggerID: triggerID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create triggered run: %w", err)
	}
	if err := s.queue.Submit(queue.Job{Run: run, Request: models.CreateRunRequest{Input: input}}); err != nil {
		now := time.Now().UTC()
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
		run.CompletedAt = &now
		_ = s.store.Finish(ctx, run)
		return nil, fmt.Errorf("enqueue triggered run: %w", err)
	}
	s.publisher.PublishRunStatus(run)
	return run, nil
}

// Get fetches one run.
func (s *RunService) Get(ctx context.Context, id string) (*models.Run, error) {
	run, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List returns filtered runs.
func (s *RunService) List(ctx context.Context, filters models.RunFilters) (*models.RunListResponse, error) {
	return s.store.List(ctx, filters)
}

// Cancel stops a run. Running runs observe the cancel token at the next node
// boundary; pending and paused runs are marked cancelled directly.
func (s *RunService) Cancel(ctx context.Context, id string) (*models.Run, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return nil, ErrNotCancellable
	}

	if run.Status == models.RunStatusRunning {
		s.cancels.Cancel(id)
		return run, nil
	}

	now := time.Now().UTC()
	run.Status = models.RunStatusCancelled
	run.IsCancelled = true
	run.CompletedAt = &now
	if err := s.store.Finish(ctx, run); err != nil {
		return nil, fmt.Errorf("cancel run %s: %w", id, err)
	}
	s.publisher.PublishRunStatus(run)
	return run, nil
}

// Resume re-enters a run paused for human review. reviewed, when non-empty,
// replaces the draft report; empty approves the draft unchanged.
func (s *RunService) Resume(ctx context.Context, id, reviewed string) (*models.Run, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunStatusPaused {
		return nil, ErrNotResumable
	}

	if err := s.queue.Submit(queue.Job{Run: run, Resume: true, Reviewed: reviewed}); err != nil {
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrStopped) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("enqueue resume: %w", err)
	}
	return run, nil
}
