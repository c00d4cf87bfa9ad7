package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeready-toolchain/scout/pkg/agent"
	"github.com/codeready-toolchain/scout/pkg/cache"
	"github.com/codeready-toolchain/scout/pkg/graph"
	"github.com/codeready-toolchain/scout/pkg/models"
	"github.com/codeready-toolchain/scout/pkg/tools"
)

// Event names emitted through OnEvent.
const (
	EventNodeStarted  = "node.started"
	EventNodeFinished = "node.finished"
	EventRunSuspended = "run.suspended"
	EventRunFinished  = "run.finished"
	EventRunCancelled = "run.cancelled"
)

// Outcome is the result of starting or resuming a run.
type Outcome struct {
	State *State
	// Pending is set when the run suspended for human review.
	Pending *graph.Pending
}

// Suspended reports whether the run awaits external input.
func (o *Outcome) Suspended() bool { return o.Pending != nil }

// Orchestrator owns the process-wide pieces of the research pipeline and
// executes runs over them. Node sets, budgets, and runners are per run.
type Orchestrator struct {
	LLM          agent.LLMClient
	Registry     *tools.Registry
	Cache        *cache.SearchCache
	Checkpointer graph.Checkpointer
	Cancels      *graph.CancelRegistry
	Config       Config
	Logger       *slog.Logger

	// OnEvent, when set, observes node and run transitions. Callbacks run
	// on the graph goroutine and must not block.
	OnEvent func(runID, event string, payload any)
}

// NewOrchestrator wires an orchestrator with a fresh cancel registry and an
// in-memory checkpointer; callers wanting persistence swap Checkpointer.
func NewOrchestrator(llm agent.LLMClient, registry *tools.Registry, searchCache *cache.SearchCache, cfg Config) *Orchestrator {
	return &Orchestrator{
		LLM:          llm,
		Registry:     registry,
		Cache:        searchCache,
		Checkpointer: graph.NewMemoryCheckpointer(),
		Cancels:      graph.NewCancelRegistry(),
		Config:       cfg.normalized(),
		Logger:       slog.Default().With("component", "orchestrator"),
	}
}

// StartInput describes a new run.
type StartInput struct {
	RunID    string
	ThreadID string
	UserID   string
	Input    string
	Images   []models.ImageAttachment
}

// Start executes a run from the router until completion, suspension, or
// cancellation.
func (o *Orchestrator) Start(ctx context.Context, in StartInput) (*Outcome, error) {
	if strings.TrimSpace(in.Input) == "" {
		return nil, fmt.Errorf("research: empty input")
	}
	threadID := in.ThreadID
	if threadID == "" {
		threadID = in.RunID
	}

	runner, err := o.runner(in.RunID)
	if err != nil {
		return nil, err
	}

	initial := &State{
		Input:         in.Input,
		Images:        in.Images,
		UserID:        in.UserID,
		ThreadID:      threadID,
		RunID:         in.RunID,
		MaxRevisions:  o.Config.MaxRevisions,
		CancelTokenID: in.RunID,
	}

	start := time.Now()
	result, err := runner.Run(ctx, threadID, in.RunID, initial)
	if err != nil {
		if errors.Is(err, tools.ErrBudgetExceeded) {
			return o.finish(in.RunID, o.budgetStop(in.RunID, result, err), start), nil
		}
		return nil, fmt.Errorf("research: run %s: %w", in.RunID, err)
	}
	return o.finish(in.RunID, result, start), nil
}

// Resume re-enters a run suspended at human review. reviewed, when
// non-empty, replaces the draft as the final report; an empty value approves
// the draft unchanged. Additional context for a clarification-suspended run
// goes through a new Start instead.
func (o *Orchestrator) Resume(ctx context.Context, threadID, runID, reviewed string) (*Outcome, error) {
	runner, err := o.runner(runID)
	if err != nil {
		return nil, err
	}

	delta := &State{IsComplete: true}
	if strings.TrimSpace(reviewed) != "" {
		delta.FinalReport = reviewed
	}

	start := time.Now()
	result, err := runner.Resume(ctx, threadID, delta)
	if err != nil {
		if errors.Is(err, tools.ErrBudgetExceeded) {
			return o.finish(runID, o.budgetStop(runID, result, err), start), nil
		}
		return nil, fmt.Errorf("research: resume %s: %w", runID, err)
	}
	return o.finish(runID, result, start), nil
}

// Cancel asserts the run's cancel token. The run observes it at the next
// node boundary; Cancel returns immediately.
func (o *Orchestrator) Cancel(runID string) bool {
	cancelled := o.Cancels.Cancel(runID)
	if cancelled {
		o.emit(runID, EventRunCancelled, nil)
	}
	return cancelled
}

func (o *Orchestrator) runner(runID string) (*graph.Runner[*State], error) {
	nodes := NewNodes(o.LLM, o.Registry, o.Cache, o.Config, runID)
	runner, err := BuildGraph(nodes)
	if err != nil {
		return nil, fmt.Errorf("research: build graph: %w", err)
	}
	runner.Checkpointer = o.Checkpointer
	runner.Cancels = o.Cancels
	runner.MaxParallel = o.Config.MaxParallelSearches
	runner.Logger = o.Logger.With("run_id", runID)
	runner.Hooks = graph.Hooks[*State]{
		OnCancel: func(s *State) *State {
			return s.Merge(&State{
				IsCancelled: true,
				Errors:      []string{"run cancelled"},
			})
		},
		OnNodeError: func(s *State, node string, err error) *State {
			return s.Merge(&State{
				Errors: []string{fmt.Sprintf("%s: %v", node, err)},
			})
		},
		// A blown budget must stop the run, not degrade one searcher and
		// let the writer work from stale evidence.
		Fatal: func(err error) bool {
			return errors.Is(err, tools.ErrBudgetExceeded)
		},
		OnNodeStart: func(node string, s *State) {
			o.emit(runID, EventNodeStarted, map[string]any{"node": node})
		},
		OnNodeEnd: func(node string, s *State) {
			o.emit(runID, EventNodeFinished, map[string]any{"node": node})
		},
	}
	return runner, nil
}

// budgetStop converts a tool budget breach into a completed run whose final
// report is a diagnostic instead of a research answer. Partial findings
// survive: a draft, when one exists, is carried under the diagnostic.
func (o *Orchestrator) budgetStop(runID string, result *graph.Result[*State], breach error) *graph.Result[*State] {
	s := result.State.Clone()
	s.Errors = append(s.Errors, breach.Error())

	var b strings.Builder
	b.WriteString("# Research Stopped: Tool Call Budget Exhausted\n\n")
	fmt.Fprintf(&b, "The run stopped after %d tool calls: %v.\n", s.ToolCallCount, breach)
	if n := len(s.ResearchPlan); n > 0 {
		fmt.Fprintf(&b, "\n%d of %d planned queries had been dispatched when the limit was hit.\n",
			s.DispatchedQueries, n)
	}
	if s.DraftReport != "" {
		b.WriteString("\n## Partial Draft\n\n")
		b.WriteString(s.DraftReport)
	} else {
		b.WriteString("\nNo draft had been written; raise the tool call limit or narrow the question and rerun.\n")
	}
	s.FinalReport = b.String()
	s.IsComplete = true

	o.Logger.Warn("run stopped on budget breach",
		"run_id", runID, "tool_calls", s.ToolCallCount, "error", breach)
	return &graph.Result[*State]{State: s}
}

// finish normalizes the terminal state: a completed run without an explicit
// final report promotes the draft, and the outcome event fires.
func (o *Orchestrator) finish(runID string, result *graph.Result[*State], start time.Time) *Outcome {
	s := result.State
	if s.IsComplete && s.FinalReport == "" && s.DraftReport != "" {
		// Merge drops writes on completed states, so promote directly.
		s = s.Clone()
		s.FinalReport = s.DraftReport
	}
	out := &Outcome{State: s, Pending: result.Pending}

	switch {
	case out.Suspended():
		o.emit(runID, EventRunSuspended, result.Pending)
		o.Logger.Info("run suspended for review",
			"checkpoint_id", result.Pending.CheckpointID, "node", result.Pending.Node)
	case s.IsCancelled:
		o.Logger.Info("run cancelled", "duration", time.Since(start))
	default:
		o.emit(runID, EventRunFinished, map[string]any{
			"route":      s.Route,
			"revisions":  s.RevisionCount,
			"tool_calls": s.ToolCallCount,
			"errors":     len(s.Errors),
		})
		o.Logger.Info("run finished",
			"route", s.Route, "revisions", s.RevisionCount,
			"tool_calls", s.ToolCallCount, "duration", time.Since(start))
	}
	return out
}

func (o *Orchestrator) emit(runID, event string, payload any) {
	if o.OnEvent != nil {
		o.OnEvent(runID, event, payload)
	}
}
