package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/scout/pkg/database"
	"github.com/codeready-toolchain/scout/pkg/events"
	"github.com/codeready-toolchain/scout/pkg/models"
	"github.com/codeready-toolchain/scout/pkg/queue"
)

type fakeStore struct {
	runs map[string]*models.Run
}

func newFakeStore() *fakeStore {
	return &fakeStore{runs: make(map[string]*models.Run)}
}

func (s *fakeStore) Create(_ context.Context, run *models.Run) error {
	clone := *run
	s.runs[run.ID] = &clone
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*models.Run, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, database.ErrRunNotFound
	}
	clone := *run
	return &clone, nil
}

func (s *fakeStore) List(_ context.Context, filters models.RunFilters) (*models.RunListResponse, error) {
	var out []*models.Run
	for _, run := range s.runs {
		if filters.Status != "" && run.Status != filters.Status {
			continue
		}
		clone := *run
		out = append(out, &clone)
	}
	return &models.RunListResponse{Runs: out, TotalCount: len(out)}, nil
}

func (s *fakeStore) Finish(_ context.Context, run *models.Run) error {
	clone := *run
	s.runs[run.ID] = &clone
	return nil
}

type fakeDispatcher struct {
	jobs []queue.Job
	err  error
}

func (d *fakeDispatcher) Submit(job queue.Job) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type fakeCanceller struct {
	cancelled []string
}

func (c *fakeCanceller) Cancel(runID string) bool {
	c.cancelled = append(c.cancelled, runID)
	return true
}

func newService() (*RunService, *fakeStore, *fakeDispatcher, *fakeCanceller) {
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}
	cancels := &fakeCanceller{}
	svc := NewRunService(store, dispatcher, cancels, events.NewPublisher(events.NewBus(nil)))
	return svc, store, dispatcher, cancels
}

func TestCreateRun(t *testing.T) {
	svc, store, dispatcher, _ := newService()

	run, err := svc.Create(context.Background(), models.CreateRunRequest{
		Input:  "compare kafka and rabbitmq",
		UserID: "alice",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, run.ID, run.ThreadID)
	assert.Equal(t, models.RunStatusPending, run.Status)

	stored, err := store.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.UserID)

	require.Len(t, dispatcher.jobs, 1)
	assert.Equal(t, run.ID, dispatcher.jobs[0].Run.ID)
	assert.False(t, dispatcher.jobs[0].Resume)
}

func TestCreateRunValidation(t *testing.T) {
	svc, _, dispatcher, _ := newService()

	_, err := svc.Create(context.Background(), models.CreateRunRequest{Input: "   "})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Empty(t, dispatcher.jobs)
}

func TestCreateRunQueueFull(t *testing.T) {
	svc, store, dispatcher, _ := newService()
	dispatcher.err = queue.ErrQueueFull

	_, err := svc.Create(context.Background(), models.CreateRunRequest{Input: "q"})
	assert.ErrorIs(t, err, ErrBusy)

	// The record is failed, not stuck pending.
	list, err := store.List(context.Background(), models.RunFilters{Status: models.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, list.Runs, 1)
	assert.Contains(t, list.Runs[0].Error, "queue full")
}

func TestCreateFromTrigger(t *testing.T) {
	svc, _, dispatcher, _ := newService()

	run, err := svc.CreateFromTrigger(context.Background(), "t1",
		"summarize the deploy", map[string]any{"env": "prod"})
	require.NoError(t, err)
	assert.Equal(t, "t1", run.TriggerID)
	assert.Contains(t, run.Input, "summarize the deploy")
	assert.Contains(t, run.Input, "env: prod")
	require.Len(t, dispatcher.jobs, 1)
}

func TestGetNotFound(t *testing.T) {
	svc, _, _, _ := newService()
	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelRunningRunAssertsToken(t *testing.T) {
	svc, store, _, cancels := newService()
	require.NoError(t, store.Create(context.Background(), &models.Run{
		ID: "r1", ThreadID: "r1", Status: models.RunStatusRunning, Input: "q",
	}))

	run, err := svc.Cancel(context.Background(), "r1")
	require.NoError(t, err)
	// Still running: the worker observes the token and records the outcome.
	assert.Equal(t, models.RunStatusRunning, run.Status)
	assert.Equal(t, []string{"r1"}, cancels.cancelled)
}

func TestCancelPendingRunMarksCancelled(t *testing.T) {
	svc, store, _, cancels := newService()
	require.NoError(t, store.Create(context.Background(), &models.Run{
		ID: "r1", ThreadID: "r1", Status: models.RunStatusPending, Input: "q",
	}))

	run, err := svc.Cancel(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, run.Status)
	assert.True(t, run.IsCancelled)
	require.NotNil(t, run.CompletedAt)
	assert.Empty(t, cancels.cancelled)
}

func TestCancelTerminalRun(t *testing.T) {
	svc, store, _, _ := newService()
	now := time.Now().UTC()
	require.NoError(t, store.Create(context.Background(), &models.Run{
		ID: "r1", Status: models.RunStatusCompleted, CompletedAt: &now,
	}))

	_, err := svc.Cancel(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrNotCancellable)
}

func TestResumePausedRun(t *testing.T) {
	svc, store, dispatcher, _ := newService()
	require.NoError(t, store.Create(context.Background(), &models.Run{
		ID: "r1", ThreadID: "r1", Status: models.RunStatusPaused, Input: "q",
	}))

	_, err := svc.Resume(context.Background(), "r1", "edited report")
	require.NoError(t, err)

	require.Len(t, dispatcher.jobs, 1)
	assert.True(t, dispatcher.jobs[0].Resume)
	assert.Equal(t, "edited report", dispatcher.jobs[0].Reviewed)
}

func TestResumeNonPausedRun(t *testing.T) {
	svc, store, _, _ := newService()
	require.NoError(t, store.Create(context.Background(), &models.Run{
		ID: "r1", Status: models.RunStatusRunning,
	}))

	_, err := svc.Resume(context.Background(), "r1", "")
	assert.ErrorIs(t, err, ErrNotResumable)
}
