// Package graph is the typed state-machine runtime that sequences a run:
// named nodes over a shared state, conditional edges, parallel fan-out with a
// join barrier, durable checkpoints, human-input interrupts, and cooperative
// cancellation keyed by run id.
package graph

import "context"

// State is the contract a graph state type satisfies. Merge applies a
// partial state produced by a node: scalar fields follow last-write-wins,
// list fields append, and capped collections apply their own reducer — the
// state type owns its schema's reducers, the engine just walks transitions.
// Clone returns a deep copy safe to hand to a parallel sibling.
type State[S any] interface {
	Merge(delta S) S
	Clone() S
}

// End is the terminal pseudo-node every run eventually routes to.
const End = "__end__"

// Outcome is what a node returns: a partial state to merge plus, optionally,
// an interrupt request or a fan-out batch.
type Outcome[S any] struct {
	// Delta is merged into the run state via S.Merge. The zero value is a
	// no-op merge.
	Delta S

	// Interrupt, when non-nil, suspends the run: the engine checkpoints and
	// returns a resumable handle carrying the payload.
	Interrupt *Interrupt

	// FanOut, when non-empty, schedules the batch in parallel. All sibling
	// deltas merge into the parent state, in batch order, before the node's
	// outgoing edge is followed.
	FanOut []Task[S]
}

// Interrupt is a node's request for external (human) input.
type Interrupt struct {
	Payload any `json:"payload"`
}

// Task is one parallel sibling of a fan-out: a node name and the sub-state
// it runs against.
type Task[S any] struct {
	Node  string
	State S
}

// NodeFunc is a single node: state in, outcome out. Nodes must not mutate
// the input state; all writes go through the returned delta.
type NodeFunc[S State[S]] func(ctx context.Context, s S) (Outcome[S], error)
