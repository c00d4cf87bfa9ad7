package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/scout/pkg/models"
	"github.com/codeready-toolchain/scout/pkg/research"
)

// blockingRunner parks in Start until released, so tests can fill the pool.
type blockingRunner struct {
	started chan string
	release chan struct{}
}

func (r *blockingRunner) Start(ctx context.Context, in research.StartInput) (*research.Outcome, error) {
	r.started <- in.RunID
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	return &research.Outcome{State: &research.State{IsComplete: true, FinalReport: "done"}}, nil
}

func (r *blockingRunner) Resume(context.Context, string, string, string) (*research.Outcome, error) {
	return &research.Outcome{State: &research.State{IsComplete: true}}, nil
}

func TestPoolExecutesJobs(t *testing.T) {
	runs := []*models.Run{pendingRun("r1"), pendingRun("r2"), pendingRun("r3")}
	store := newMemStore(runs...)
	runner := &fakeRunner{outcome: &research.Outcome{State: &research.State{
		IsComplete:  true,
		FinalReport: "done",
	}}}
	exec, _ := newExecutor(store, runner)

	pool := NewPool(exec, 2, 8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	for _, run := range runs {
		require.NoError(t, pool.Submit(Job{Run: run}))
	}

	require.Eventually(t, func() bool {
		for _, run := range runs {
			got, err := store.Get(context.Background(), run.ID)
			if err != nil || got.Status != models.RunStatusCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, pool.Health().Workers)
}

func TestPoolBackpressure(t *testing.T) {
	// One worker, buffer of one: the third submit must be rejected while the
	// first job blocks.
	store := newMemStore(pendingRun("r1"), pendingRun("r2"), pendingRun("r3"))
	runner := &blockingRunner{
		started: make(chan string, 3),
		release: make(chan struct{}),
	}
	exec, _ := newExecutor(store, runner)

	pool := NewPool(exec, 1, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	require.NoError(t, pool.Submit(Job{Run: pendingRun("r1")}))
	<-runner.started // worker is now parked in r1

	require.NoError(t, pool.Submit(Job{Run: pendingRun("r2")})) // fills the buffer
	err := pool.Submit(Job{Run: pendingRun("r3")})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(runner.release)
	pool.Stop()
}

func TestPoolStopRejectsSubmits(t *testing.T) {
	store := newMemStore()
	exec, _ := newExecutor(store, &fakeRunner{outcome: &research.Outcome{State: &research.State{}}})
	pool := NewPool(exec, 1, 1, nil)
	pool.Start(context.Background())
	pool.Stop()

	err := pool.Submit(Job{Run: pendingRun("r1")})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestPoolStopWaitsForInflight(t *testing.T) {
	store := newMemStore(pendingRun("r1"))
	runner := &blockingRunner{
		started: make(chan string, 1),
		release: make(chan struct{}),
	}
	exec, _ := newExecutor(store, runner)
	pool := NewPool(exec, 1, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	require.NoError(t, pool.Submit(Job{Run: pendingRun("r1")}))
	<-runner.started

	var wg sync.WaitGroup
	stopped := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		pool.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(runner.release)
	wg.Wait()

	got, err := store.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
}
