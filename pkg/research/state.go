// Package research implements the research-run graph: routing,
// clarification, planning, parallel search, writing, evaluation, plan
// refinement, and human review, orchestrated over the graph engine.
package research

import (
	"time"

	"github.com/codeready-toolchain/scout/pkg/agent"
	"github.com/codeready-toolchain/scout/pkg/models"
)

// Routes a run can take.
const (
	RouteDirect  = "direct"
	RouteWeb     = "web"
	RouteDeep    = "deep"
	RouteAgent   = "agent"
	RouteClarify = "clarify"
)

// Evaluator verdicts.
const (
	VerdictPass       = "pass"
	VerdictRevise     = "revise"
	VerdictIncomplete = "incomplete"
)

// messageCap bounds the run's message history; Merge applies it as the
// capped-append reducer.
const messageCap = 60

// CodeResult is one sandboxed-execution output accumulated by the writer.
type CodeResult struct {
	Code      string    `json:"code"`
	Output    string    `json:"output"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the run state persisted at every node boundary. Field reducers
// (applied by Merge): append-concat for ScrapedContent, CodeResults, and
// Errors; capped append for Messages; sticky true for terminal flags;
// last-non-zero-write for everything else.
type State struct {
	Input  string                   `json:"input"`
	Images []models.ImageAttachment `json:"images,omitempty"`

	UserID   string `json:"user_id,omitempty"`
	ThreadID string `json:"thread_id"`
	RunID    string `json:"run_id"`

	Route              string  `json:"route,omitempty"`
	RouteConfidence    float64 `json:"route_confidence,omitempty"`
	NeedsClarification bool    `json:"needs_clarification,omitempty"`

	// ResearchPlan grows across refinement rounds; DispatchedQueries marks
	// how many of its entries have already been fanned out, so a refinement
	// round dispatches only the tail.
	ResearchPlan      []string `json:"research_plan,omitempty"`
	DispatchedQueries int      `json:"dispatched_queries,omitempty"`

	// CurrentQuery is set only on searcher sub-states during a fan-out; it
	// never merges back into the parent.
	CurrentQuery string `json:"current_query,omitempty"`

	ScrapedContent []models.Bag `json:"scraped_content,omitempty"`

	DraftReport string `json:"draft_report,omitempty"`
	FinalReport string `json:"final_report,omitempty"`

	Evaluation       string             `json:"evaluation,omitempty"`
	Verdict          string             `json:"verdict,omitempty"`
	EvalDimensions   map[string]float64 `json:"eval_dimensions,omitempty"`
	MissingTopics    []string           `json:"missing_topics,omitempty"`
	SuggestedQueries []string           `json:"suggested_queries,omitempty"`

	RevisionCount int `json:"revision_count"`
	MaxRevisions  int `json:"max_revisions"`

	Messages    []agent.ConversationMessage `json:"messages,omitempty"`
	CodeResults []CodeResult                `json:"code_results,omitempty"`

	IsComplete    bool   `json:"is_complete"`
	IsCancelled   bool   `json:"is_cancelled"`
	CancelTokenID string `json:"cancel_token_id,omitempty"`

	ToolCallCount int      `json:"tool_call_count"`
	Errors        []string `json:"errors,omitempty"`
}

// Merge applies a partial state. A nil delta is a no-op. Once IsComplete is
// set, only terminal flags may still change; field writes from stragglers
// are dropped.
func (s *State) Merge(delta *State) *State {
	if delta == nil {
		return s
	}
	out := s.Clone()

	if out.IsComplete && !delta.IsCancelled {
		// Completed runs accept no further writes outside explicit resume,
		// which goes through Clone+reopen in the orchestrator.
		return out
	}

	if delta.Route != "" {
		out.Route = delta.Route
	}
	if delta.RouteConfidence != 0 {
		out.RouteConfidence = delta.RouteConfidence
	}
	if delta.NeedsClarification {
		out.NeedsClarification = true
	}
	if len(delta.ResearchPlan) > 0 {
		out.ResearchPlan = append([]string(nil), delta.ResearchPlan...)
	}
	if delta.DispatchedQueries > out.DispatchedQueries {
		out.DispatchedQueries = delta.DispatchedQueries
	}
	out.ScrapedContent = append(out.ScrapedContent, delta.ScrapedContent...)
	if delta.DraftReport != "" {
		out.DraftReport = delta.DraftReport
	}
	if delta.FinalReport != "" {
		out.FinalReport = delta.FinalReport
	}
	if delta.Evaluation != "" {
		out.Evaluation = delta.Evaluation
	}
	if delta.Verdict != "" {
		out.Verdict = delta.Verdict
	}
	if len(delta.EvalDimensions) > 0 {
		out.EvalDimensions = make(map[string]float64, len(delta.EvalDimensions))
		for k, v := range delta.EvalDimensions {
			out.EvalDimensions[k] = v
		}
	}
	if delta.MissingTopics != nil {
		out.MissingTopics = append([]string(nil), delta.MissingTopics...)
	}
	if delta.SuggestedQueries != nil {
		out.SuggestedQueries = append([]string(nil), delta.SuggestedQueries...)
	}
	if delta.RevisionCount > out.RevisionCount {
		out.RevisionCount = delta.RevisionCount
	}
	if delta.MaxRevisions != 0 {
		out.MaxRevisions = delta.MaxRevisions
	}
	out.Messages = agent.CapMessages(append(out.Messages, delta.Messages...), messageCap)
	out.CodeResults = append(out.CodeResults, delta.CodeResults...)
	if delta.IsComplete {
		out.IsComplete = true
	}
	if delta.IsCancelled {
		out.IsCancelled = true
	}
	if delta.ToolCallCount > out.ToolCallCount {
		out.ToolCallCount = delta.ToolCallCount
	}
	out.Errors = append(out.Errors, delta.Errors...)
	return out
}

// Clone returns a deep copy safe for parallel siblings.
func (s *State) Clone() *State {
	out := *s
	out.Images = append([]models.ImageAttachment(nil), s.Images...)
	out.ResearchPlan = append([]string(nil), s.ResearchPlan...)
	out.ScrapedContent = append([]models.Bag(nil), s.ScrapedContent...)
	if s.EvalDimensions != nil {
		out.EvalDimensions = make(map[string]float64, len(s.EvalDimensions))
		for k, v := range s.EvalDimensions {
			out.EvalDimensions[k] = v
		}
	}
	out.MissingTopics = append([]string(nil), s.MissingTopics...)
	out.SuggestedQueries = append([]string(nil), s.SuggestedQueries...)
	out.Messages = append([]agent.ConversationMessage(nil), s.Messages...)
	out.CodeResults = append([]CodeResult(nil), s.CodeResults...)
	out.Errors = append([]string(nil), s.Errors...)
	return &out
}

// PendingQueries returns the plan tail not yet fanned out.
func (s *State) PendingQueries() []string {
	if s.DispatchedQueries >= len(s.ResearchPlan) {
		return nil
	}
	return s.ResearchPlan[s.DispatchedQueries:]
}
