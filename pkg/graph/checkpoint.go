package graph

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNoCheckpoint is returned when a thread has no checkpoint to load.
var ErrNoCheckpoint = errors.New("no checkpoint for thread")

// Checkpointer is the pluggable persistence contract. Keys are
// (thread_id, checkpoint_id); values are engine-serialized state. Writes are
// atomic per state transition; Get with an empty checkpoint id returns the
// thread's latest.
type Checkpointer interface {
	// Setup prepares storage. Idempotent.
	Setup(ctx context.Context) error
	Put(ctx context.Context, threadID, checkpointID string, data []byte) error
	Get(ctx context.Context, threadID, checkpointID string) ([]byte, error)
	List(ctx context.Context, threadID string) ([]CheckpointInfo, error)
}

// CheckpointInfo describes one stored checkpoint.
type CheckpointInfo struct {
	ThreadID     string    `json:"thread_id"`
	CheckpointID string    `json:"checkpoint_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// MemoryCheckpointer is the ephemeral in-memory implementation, used by
// tests and for runs that don't need resume across restarts.
type MemoryCheckpointer struct {
	mu      sync.Mutex
	threads map[string][]memCheckpoint
}

type memCheckpoint struct {
	id        string
	data      []byte
	createdAt time.Time
}

// NewMemoryCheckpointer creates an empty in-memory checkpointer.
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{threads: make(map[string][]memCheckpoint)}
}

func (m *MemoryCheckpointer) Setup(context.Context) error { return nil }

func (m *MemoryCheckpointer) Put(_ context.Context, threadID, checkpointID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.threads[threadID] = append(m.threads[threadID], memCheckpoint{
		id:        checkpointID,
		data:      stored,
		createdAt: time.Now().UTC(),
	})
	return nil
}

func (m *MemoryCheckpointer) Get(_ context.Context, threadID, checkpointID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cps := m.threads[threadID]
	if len(cps) == 0 {
		return nil, ErrNoCheckpoint
	}
	if checkpointID == "" {
		return cps[len(cps)-1].data, nil
	}
	for i := len(cps) - 1; i >= 0; i-- {
		if cps[i].id == checkpointID {
			return cps[i].data, nil
		}
	}
	return nil, ErrNoCheckpoint
}

func (m *MemoryCheckpointer) List(_ context.Context, threadID string) ([]CheckpointInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cps := m.threads[threadID]
	infos := make([]CheckpointInfo, 0, len(cps))
	for _, cp := range cps {
		infos = append(infos, CheckpointInfo{
			ThreadID:     threadID,
			CheckpointID: cp.id,
			CreatedAt:    cp.createdAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.Before(infos[j].CreatedAt) })
	return infos, nil
}
