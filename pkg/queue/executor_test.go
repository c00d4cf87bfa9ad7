package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/scout/pkg/events"
	"github.com/codeready-toolchain/scout/pkg/graph"
	"github.com/codeready-toolchain/scout/pkg/models"
	"github.com/codeready-toolchain/scout/pkg/research"
)

type memStore struct {
	mu   sync.Mutex
	runs map[string]*models.Run
}

func newMemStore(runs ...*models.Run) *memStore {
	s := &memStore{runs: make(map[string]*models.Run)}
	for _, r := range runs {
		clone := *r
		s.runs[r.ID] = &clone
	}
	return s
}

func (s *memStore) Get(_ context.Context, id string) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, errors.New("run not found")
	}
	clone := *run
	return &clone, nil
}

func (s *memStore) MarkStarted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return errors.New("run not found")
	}
	now := time.Now().UTC()
	run.Status = models.RunStatusRunning
	run.StartedAt = &now
	return nil
}

func (s *memStore) Finish(_ context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *run
	s.runs[run.ID] = &clone
	return nil
}

func (s *memStore) ListByStatus(_ context.Context, status models.RunStatus) ([]*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Run
	for _, run := range s.runs {
		if run.Status == status {
			clone := *run
			out = append(out, &clone)
		}
	}
	return out, nil
}

type fakeRunner struct {
	outcome *research.Outcome
	err     error

	mu      sync.Mutex
	started []research.StartInput
	resumed []string
}

func (f *fakeRunner) Start(_ context.Context, in research.StartInput) (*research.Outcome, error) {
	f.mu.Lock()
	f.started = append(f.started, in)
	f.mu.Unlock()
	return f.outcome, f.err
}

func (f *fakeRunner) Resume(_ context.Context, _, runID, reviewed string) (*research.Outcome, error) {
	f.mu.Lock()
	f.resumed = append(f.resumed, reviewed)
	f.mu.Unlock()
	return f.outcome, f.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	runs []*models.Run
}

func (n *fakeNotifier) NotifyRunFinished(_ context.Context, run *models.Run) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, run)
}

func pendingRun(id string) *models.Run {
	return &models.Run{
		ID:        id,
		ThreadID:  id,
		Status:    models.RunStatusPending,
		Input:     "why is the deploy slow",
		CreatedAt: time.Now().UTC(),
	}
}

func newExecutor(store RunStore, runner Runner) (*Executor, *events.Bus) {
	bus := events.NewBus(nil)
	return &Executor{
		Store:     store,
		Publisher: events.NewPublisher(bus),
		Factory:   func(research.Config, string) Runner { return runner },
		Resolve:   func(string) (research.Config, error) { return research.DefaultConfig(), nil },
	}, bus
}

func TestExecuteCompletedRun(t *testing.T) {
	store := newMemStore(pendingRun("r1"))
	runner := &fakeRunner{outcome: &research.Outcome{State: &research.State{
		Route:         research.RouteDeep,
		FinalReport:   "# Report",
		RevisionCount: 1,
		ToolCallCount: 4,
		IsComplete:    true,
	}}}
	exec, bus := newExecutor(store, runner)
	notifier := &fakeNotifier{}
	exec.Notifier = notifier

	sub := bus.Subscribe(events.GlobalRunsChannel)
	defer sub.Close()

	run := pendingRun("r1")
	run.TriggerID = "t1"
	store.runs["r1"].TriggerID = "t1"
	exec.Execute(context.Background(), Job{Run: run})

	final, err := store.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, final.Status)
	assert.Equal(t, "# Report", final.FinalReport)
	assert.Equal(t, research.RouteDeep, final.Route)
	assert.Equal(t, 4, final.ToolCallCount)
	require.NotNil(t, final.CompletedAt)
	require.NotNil(t, final.StartedAt)

	// running then completed on the global channel
	first := <-sub.C
	assert.Equal(t, "running", first.Payload["status"])
	second := <-sub.C
	assert.Equal(t, "completed", second.Payload["status"])

	require.Len(t, notifier.runs, 1)
	require.Len(t, runner.started, 1)
	assert.Equal(t, "why is the deploy slow", runner.started[0].Input)
}

func TestExecuteSuspendedRunPauses(t *testing.T) {
	store := newMemStore(pendingRun("r1"))
	runner := &fakeRunner{outcome: &research.Outcome{
		State:   &research.State{Route: research.RouteDeep, DraftReport: "draft"},
		Pending: &graph.Pending{ThreadID: "r1", Node: research.NodeHumanReview},
	}}
	exec, _ := newExecutor(store, runner)

	exec.Execute(context.Background(), Job{Run: pendingRun("r1")})

	final, err := store.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPaused, final.Status)
	assert.Nil(t, final.CompletedAt)
}

func TestExecuteResumeJob(t *testing.T) {
	run := pendingRun("r1")
	run.Status = models.RunStatusPaused
	store := newMemStore(run)
	runner := &fakeRunner{outcome: &research.Outcome{State: &research.State{
		FinalReport: "edited report",
		IsComplete:  true,
	}}}
	exec, _ := newExecutor(store, runner)

	exec.Execute(context.Background(), Job{Run: run, Resume: true, Reviewed: "edited report"})

	require.Equal(t, []string{"edited report"}, runner.resumed)
	final, err := store.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, final.Status)
	assert.Equal(t, "edited report", final.FinalReport)
}

func TestExecuteRunnerErrorFailsRun(t *testing.T) {
	store := newMemStore(pendingRun("r1"))
	runner := &fakeRunner{err: errors.New("llm unreachable")}
	exec, _ := newExecutor(store, runner)

	exec.Execute(context.Background(), Job{Run: pendingRun("r1")})

	final, err := store.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, final.Status)
	assert.Contains(t, final.Error, "llm unreachable")
}

func TestExecuteSkipsCancelledRun(t *testing.T) {
	run := pendingRun("r1")
	run.Status = models.RunStatusCancelled
	store := newMemStore(run)
	runner := &fakeRunner{}
	exec, _ := newExecutor(store, runner)

	exec.Execute(context.Background(), Job{Run: run})

	assert.Empty(t, runner.started)
	final, err := store.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, final.Status)
}

func TestExecuteCancelledState(t *testing.T) {
	store := newMemStore(pendingRun("r1"))
	runner := &fakeRunner{outcome: &research.Outcome{State: &research.State{
		IsCancelled: true,
		Errors:      []string{"run cancelled"},
	}}}
	exec, _ := newExecutor(store, runner)

	exec.Execute(context.Background(), Job{Run: pendingRun("r1")})

	final, err := store.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, final.Status)
	assert.Contains(t, final.Error, "run cancelled")
}

func TestResolveConfigOverrides(t *testing.T) {
	exec := &Executor{
		Resolve: func(profile string) (research.Config, error) {
			cfg := research.DefaultConfig()
			if profile == "incident" {
				cfg.SearchMode = "deep"
			}
			return cfg, nil
		},
	}

	cfg, err := exec.resolveConfig(models.CreateRunRequest{Config: map[string]any{
		"profile":       "incident",
		"max_revisions": float64(5),
		"human_review":  true,
	}})
	require.NoError(t, err)
	assert.Equal(t, "deep", cfg.SearchMode)
	assert.Equal(t, 5, cfg.MaxRevisions)
	assert.True(t, cfg.HumanReview)
	// Untouched baseline fields survive the merge.
	assert.True(t, cfg.EnabledTools.WebSearch)
}

func TestRecoverOrphans(t *testing.T) {
	running := pendingRun("r1")
	running.Status = models.RunStatusRunning
	queued := pendingRun("r2")
	paused := pendingRun("r3")
	paused.Status = models.RunStatusPaused
	store := newMemStore(running, queued, paused)

	bus := events.NewBus(nil)
	require.NoError(t, RecoverOrphans(context.Background(), store, events.NewPublisher(bus), nil))

	r1, _ := store.Get(context.Background(), "r1")
	assert.Equal(t, models.RunStatusFailed, r1.Status)
	assert.Equal(t, orphanError, r1.Error)

	r2, _ := store.Get(context.Background(), "r2")
	assert.Equal(t, models.RunStatusFailed, r2.Status)

	r3, _ := store.Get(context.Background(), "r3")
	assert.Equal(t, models.RunStatusPaused, r3.Status)
	assert.Empty(t, r3.Error)
}
