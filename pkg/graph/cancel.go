package graph

import "sync"

// CancelRegistry tracks cancellation tokens keyed by run id. Cancellation is
// cooperative: asserting a token makes the next node-boundary check exit
// with the last successful state.
type CancelRegistry struct {
	mu     sync.Mutex
	tokens map[string]chan struct{}
}

// NewCancelRegistry creates an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{tokens: make(map[string]chan struct{})}
}

// Register creates a token for a run. Registering an existing id returns the
// existing token: a run has at most one.
func (r *CancelRegistry) Register(runID string) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tok, ok := r.tokens[runID]; ok {
		return tok
	}
	tok := make(chan struct{})
	r.tokens[runID] = tok
	return tok
}

// Cancel asserts the token for runID. Safe to call from any goroutine, and
// idempotent. Returns false when the run is unknown.
func (r *CancelRegistry) Cancel(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.tokens[runID]
	if !ok {
		return false
	}
	select {
	case <-tok:
		// already cancelled
	default:
		close(tok)
	}
	return true
}

// Cancelled reports whether the token for runID has been asserted.
func (r *CancelRegistry) Cancelled(runID string) bool {
	r.mu.Lock()
	tok, ok := r.tokens[runID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-tok:
		return true
	default:
		return false
	}
}

// Release removes a completed run's token.
func (r *CancelRegistry) Release(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, runID)
}
