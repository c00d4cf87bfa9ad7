package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Hooks are the state-type-specific callbacks the engine invokes at
// boundaries. All are optional.
type Hooks[S State[S]] struct {
	// OnCancel marks the state cancelled; invoked when a boundary check
	// observes an asserted token.
	OnCancel func(s S) S
	// OnNodeError records a degraded fan-out sibling in the state. The
	// sibling's delta is dropped; only this annotation survives.
	OnNodeError func(s S, node string, err error) S
	// Fatal classifies a fan-out sibling error as run-fatal: the join
	// aborts and the error bubbles out of Run instead of degrading the
	// sibling. Nil treats every sibling error as degradable.
	Fatal func(err error) bool
	// OnNodeStart and OnNodeEnd observe node boundaries, for event streams.
	OnNodeStart func(node string, s S)
	OnNodeEnd   func(node string, s S)
}

// Result is the outcome of Run or Resume: the final state, plus a pending
// handle when the run suspended on an interrupt.
type Result[S State[S]] struct {
	State   S
	Pending *Pending
}

// Pending identifies a suspended run awaiting external input.
type Pending struct {
	ThreadID     string `json:"thread_id"`
	CheckpointID string `json:"checkpoint_id"`
	Node         string `json:"node"`
	Payload      any    `json:"payload,omitempty"`
}

// defaultMaxSteps guards against wiring bugs that would loop a run forever.
const defaultMaxSteps = 100

// Runner executes a compiled graph.
type Runner[S State[S]] struct {
	graph        *Graph[S]
	Checkpointer Checkpointer    // nil = no persistence
	Cancels      *CancelRegistry // nil = not cancellable
	Hooks        Hooks[S]
	MaxParallel  int // fan-out cap; 0 = batch size
	MaxSteps     int // 0 = defaultMaxSteps
	Logger       *slog.Logger
}

func newRunner[S State[S]](g *Graph[S]) *Runner[S] {
	return &Runner[S]{
		graph:  g,
		Logger: slog.Default().With("component", "graph"),
	}
}

// checkpointEnvelope is the serialized form of one state transition.
type checkpointEnvelope struct {
	RunID   string          `json:"run_id"`
	Node    string          `json:"node"` // node that just completed
	Next    string          `json:"next"` // node the run continues at
	Pending bool            `json:"pending"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     int             `json:"seq"`
	State   json.RawMessage `json:"state"`
}

// Run executes the graph from its entry node. When a node interrupts, the
// returned Result carries a Pending handle and the state is checkpointed for
// Resume. The error return is reserved for fatal conditions; cooperative
// cancellation is not an error.
func (r *Runner[S]) Run(ctx context.Context, threadID, runID string, initial S) (*Result[S], error) {
	if r.Cancels != nil {
		r.Cancels.Register(runID)
		defer r.Cancels.Release(runID)
	}
	return r.loop(ctx, threadID, runID, r.graph.entry, initial, 0)
}

// Resume re-enters a suspended run: the supplied delta stands in for the
// interrupted node's return value, and execution continues along that node's
// outgoing edge.
func (r *Runner[S]) Resume(ctx context.Context, threadID string, delta S) (*Result[S], error) {
	if r.Checkpointer == nil {
		return nil, fmt.Errorf("graph: resume requires a checkpointer")
	}
	data, err := r.Checkpointer.Get(ctx, threadID, "")
	if err != nil {
		return nil, fmt.Errorf("graph: load checkpoint for %s: %w", threadID, err)
	}
	var env checkpointEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("graph: decode checkpoint: %w", err)
	}
	if !env.Pending {
		return nil, fmt.Errorf("graph: thread %s is not awaiting input", threadID)
	}
	var state S
	if err := json.Unmarshal(env.State, &state); err != nil {
		return nil, fmt.Errorf("graph: decode state: %w", err)
	}
	state = state.Merge(delta)

	if r.Cancels != nil {
		r.Cancels.Register(env.RunID)
		defer r.Cancels.Release(env.RunID)
	}
	next, err := r.route(env.Node, state)
	if err != nil {
		return nil, err
	}
	if next == End {
		return &Result[S]{State: state}, nil
	}
	return r.loop(ctx, threadID, env.RunID, next, state, env.Seq+1)
}

func (r *Runner[S]) loop(ctx context.Context, threadID, runID, start string, state S, seq int) (*Result[S], error) {
	maxSteps := r.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	node := start
	for step := 0; step < maxSteps; step++ {
		if cancelled, result := r.checkCancel(ctx, threadID, runID, node, state, seq); cancelled {
			return result, nil
		}

		fn := r.graph.nodes[node]
		if r.Hooks.OnNodeStart != nil {
			r.Hooks.OnNodeStart(node, state)
		}
		outcome, err := fn(ctx, state)
		if err != nil {
			return &Result[S]{State: state}, fmt.Errorf("graph: node %s: %w", node, err)
		}
		state = state.Merge(outcome.Delta)

		if len(outcome.FanOut) > 0 {
			state, err = r.fanOut(ctx, runID, state, outcome.FanOut)
			if err != nil {
				return &Result[S]{State: state}, err
			}
		}
		if r.Hooks.OnNodeEnd != nil {
			r.Hooks.OnNodeEnd(node, state)
		}

		if outcome.Interrupt != nil {
			cpID, err := r.checkpoint(ctx, threadID, runID, node, "", state, seq, outcome.Interrupt)
			if err != nil {
				return &Result[S]{State: state}, err
			}
			r.Logger.Info("run suspended on interrupt", "run_id", runID, "node", node)
			return &Result[S]{
				State: state,
				Pending: &Pending{
					ThreadID:     threadID,
					CheckpointID: cpID,
					Node:         node,
					Payload:      outcome.Interrupt.Payload,
				},
			}, nil
		}

		next, err := r.route(node, state)
		if err != nil {
			return &Result[S]{State: state}, err
		}
		if _, err := r.checkpoint(ctx, threadID, runID, node, next, state, seq, nil); err != nil {
			return &Result[S]{State: state}, err
		}
		seq++

		if next == End {
			return &Result[S]{State: state}, nil
		}
		node = next
	}
	return &Result[S]{State: state}, fmt.Errorf("graph: run %s exceeded %d steps", runID, maxSteps)
}

// fanOut schedules the batch with bounded parallelism and joins before
// returning: the writer-after-searchers barrier. Sibling deltas merge in
// batch order regardless of completion order; a failed sibling degrades to
// an OnNodeError annotation instead of bubbling, unless Hooks.Fatal
// classifies the error as run-fatal.
func (r *Runner[S]) fanOut(ctx context.Context, runID string, parent S, tasks []Task[S]) (S, error) {
	limit := r.MaxParallel
	if limit <= 0 || limit > len(tasks) {
		limit = len(tasks)
	}
	sem := make(chan struct{}, limit)

	deltas := make([]S, len(tasks))
	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task[S]) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			fn, ok := r.graph.nodes[task.Node]
			if !ok {
				errs[i] = fmt.Errorf("fan-out to unknown node %q", task.Node)
				return
			}
			outcome, err := fn(ctx, task.State.Clone())
			if err != nil {
				errs[i] = err
				return
			}
			deltas[i] = outcome.Delta
		}(i, task)
	}
	wg.Wait()

	for i := range tasks {
		if errs[i] != nil {
			if r.Hooks.Fatal != nil && r.Hooks.Fatal(errs[i]) {
				r.Logger.Error("fan-out sibling failed fatally",
					"run_id", runID, "node", tasks[i].Node, "error", errs[i])
				return parent, fmt.Errorf("graph: fan-out node %s: %w", tasks[i].Node, errs[i])
			}
			r.Logger.Warn("fan-out sibling degraded",
				"run_id", runID, "node", tasks[i].Node, "error", errs[i])
			if r.Hooks.OnNodeError != nil {
				parent = r.Hooks.OnNodeError(parent, tasks[i].Node, errs[i])
			}
			continue
		}
		parent = parent.Merge(deltas[i])
	}
	return parent, nil
}

// checkCancel is the node-boundary cancellation probe.
func (r *Runner[S]) checkCancel(ctx context.Context, threadID, runID, node string, state S, seq int) (bool, *Result[S]) {
	cancelled := ctx.Err() != nil || (r.Cancels != nil && r.Cancels.Cancelled(runID))
	if !cancelled {
		return false, nil
	}
	if r.Hooks.OnCancel != nil {
		state = r.Hooks.OnCancel(state)
	}
	r.Logger.Info("run cancelled at node boundary", "run_id", runID, "node", node)
	// Best-effort checkpoint of the last successful state; the original ctx
	// may already be dead.
	_, _ = r.checkpoint(context.WithoutCancel(ctx), threadID, runID, node, End, state, seq, nil)
	return true, &Result[S]{State: state}
}

func (r *Runner[S]) route(node string, state S) (string, error) {
	if to, ok := r.graph.edges[node]; ok {
		return to, nil
	}
	router, ok := r.graph.routers[node]
	if !ok {
		return "", fmt.Errorf("graph: node %q has no outgoing edge", node)
	}
	next := router(state)
	if next == End {
		return End, nil
	}
	if _, ok := r.graph.nodes[next]; !ok {
		return "", fmt.Errorf("graph: router on %q selected unknown node %q", node, next)
	}
	return next, nil
}

// checkpoint persists one state transition. A nil checkpointer makes it a
// no-op that still returns a fresh checkpoint id.
func (r *Runner[S]) checkpoint(ctx context.Context, threadID, runID, node, next string, state S, seq int, intr *Interrupt) (string, error) {
	cpID := uuid.NewString()
	if r.Checkpointer == nil {
		return cpID, nil
	}
	stateRaw, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("graph: encode state: %w", err)
	}
	env := checkpointEnvelope{
		RunID:   runID,
		Node:    node,
		Next:    next,
		Pending: intr != nil,
		Seq:     seq,
		State:   stateRaw,
	}
	if intr != nil {
		if payload, err := json.Marshal(intr.Payload); err == nil {
			env.Payload = payload
		}
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("graph: encode checkpoint: %w", err)
	}
	if err := r.Checkpointer.Put(ctx, threadID, cpID, data); err != nil {
		return "", fmt.Errorf("graph: persist checkpoint: %w", err)
	}
	return cpID, nil
}
