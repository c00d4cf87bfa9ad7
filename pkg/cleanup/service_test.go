package cleanup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunPruner struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
	deleted int64
	err     error
}

func (f *fakeRunPruner) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.deleted, f.err
}

func (f *fakeRunPruner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCheckpointPruner struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeCheckpointPruner) PruneOrphaned(_ context.Context, _ time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 0, nil
}

func (f *fakeCheckpointPruner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestServiceSweepsOnStart(t *testing.T) {
	runs := &fakeRunPruner{deleted: 3}
	chkpts := &fakeCheckpointPruner{}

	svc := NewService(30, time.Hour, runs, chkpts)
	svc.Start(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool { return runs.callCount() >= 1 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return chkpts.callCount() >= 1 }, time.Second, 10*time.Millisecond)

	runs.mu.Lock()
	cutoff := runs.cutoffs[0]
	runs.mu.Unlock()
	expected := time.Now().UTC().Add(-30 * 24 * time.Hour)
	assert.WithinDuration(t, expected, cutoff, time.Minute)
}

func TestServiceSkipsCheckpointsOnRunError(t *testing.T) {
	runs := &fakeRunPruner{err: context.DeadlineExceeded}
	chkpts := &fakeCheckpointPruner{}

	svc := NewService(7, time.Hour, runs, chkpts)
	svc.Start(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool { return runs.callCount() >= 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, chkpts.callCount())
}

func TestServiceTicks(t *testing.T) {
	runs := &fakeRunPruner{}
	chkpts := &fakeCheckpointPruner{}

	svc := NewService(1, 20*time.Millisecond, runs, chkpts)
	svc.Start(context.Background())
	defer svc.Stop()

	require.Eventually(t, func() bool { return runs.callCount() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestServiceStopIdempotent(t *testing.T) {
	svc := NewService(1, time.Hour, &fakeRunPruner{}, &fakeCheckpointPruner{})

	// Stop before Start is a no-op.
	svc.Stop()

	svc.Start(context.Background())
	svc.Stop()
}
