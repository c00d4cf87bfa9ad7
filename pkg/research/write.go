package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codeready-toolchain/scout/pkg/agent"
	"github.com/codeready-toolchain/scout/pkg/agent/controller"
	"github.com/codeready-toolchain/scout/pkg/cache"
	"github.com/codeready-toolchain/scout/pkg/evidence"
	"github.com/codeready-toolchain/scout/pkg/graph"
	"github.com/codeready-toolchain/scout/pkg/verify"
)

// Evidence projection caps handed to the writer.
const (
	writerTier1Max = 8
	writerTier2Max = 5
	writerTier3Max = 2
	writerMaxChars = 24000

	evalPassFloor        = 0.6
	contradictionPenalty = 0.1
)

// Writer drafts the report from the tiered evidence projection. Tool-using
// runs drive a continuation loop so the writer can execute code for charts;
// plain runs are a single call.
func (n *Nodes) Writer(ctx context.Context, s *State) (graph.Outcome[*State], error) {
	agg := evidence.Aggregate(s.ScrapedContent, evidence.Options{})
	block := agg.ToContext(writerTier1Max, writerTier2Max, writerTier3Max, writerMaxChars)

	msgs := []agent.ConversationMessage{
		{Role: agent.RoleSystem, Content: writerSystemPrompt},
		{Role: agent.RoleUser, Content: writerUserPrompt(s.Input, block)},
	}
	if s.DraftReport != "" && s.Evaluation != "" {
		// Revision round: the writer sees its previous draft and the feedback
		// so citation tags survive.
		msgs = append(msgs, agent.ConversationMessage{
			Role:    agent.RoleUser,
			Content: fmt.Sprintf("Previous draft:\n%s\n\nRevise per this feedback:\n%s", s.DraftReport, s.Evaluation),
		})
	}

	if !n.Config.EnabledTools.Python {
		content, err := n.completeText(ctx, NodeWriter, n.Config.Model, msgs)
		if err != nil {
			return graph.Outcome[*State]{}, err
		}
		return graph.Outcome[*State]{Delta: &State{DraftReport: content, Messages: msgs}}, nil
	}

	cont := &controller.Continuation{
		Client:   n.LLM,
		Registry: n.Registry,
		Budget:   n.Budget,
		Policy: controller.Policy{
			ContinueOnToolCalls: true,
			MaxIterations:       n.Config.MaxIterations,
		},
		Logger: n.Logger,
	}
	out, err := cont.Run(ctx, controller.RunInput{
		RunID:    n.runID,
		Node:     NodeWriter,
		Model:    n.Config.Model,
		Messages: msgs,
		Tools:    n.enabledToolDefs(),
	})
	if err != nil {
		return graph.Outcome[*State]{}, err
	}

	delta := &State{
		DraftReport:   out.FinalText,
		Messages:      out.Messages,
		ToolCallCount: n.Budget.Used(),
		Errors:        out.ToolFailures,
	}
	for _, msg := range out.Messages {
		if msg.Role == agent.RoleTool && strings.Contains(msg.ToolName, "python") {
			delta.CodeResults = append(delta.CodeResults, CodeResult{
				Output:    msg.Content,
				Success:   true,
				Timestamp: time.Now().UTC(),
			})
		}
	}
	return graph.Outcome[*State]{Delta: delta}, nil
}

// enabledToolDefs projects the registry through the run's tool switchboard.
func (n *Nodes) enabledToolDefs() []agent.ToolDefinition {
	var defs []agent.ToolDefinition
	for _, d := range n.Registry.List() {
		if !n.toolEnabled(d.Name) {
			continue
		}
		defs = append(defs, agent.ToolDefinition{
			Name:             d.Name,
			Description:      d.Description,
			ParametersSchema: d.Schema,
		})
	}
	return defs
}

func (n *Nodes) toolEnabled(name string) bool {
	e := n.Config.EnabledTools
	switch name {
	case "web_search":
		return e.WebSearch
	case "crawl":
		return e.Crawl
	case "browser":
		return e.Browser
	case "sandbox_browser":
		return e.SandboxBrowser
	case "sandbox_web_search":
		return e.SandboxWebSearch
	case "python":
		return e.Python
	case "task_list":
		return e.TaskList
	case "computer_use":
		return e.ComputerUse
	default:
		// Qualified "server.tool" names come from the MCP bridge.
		if strings.Contains(name, ".") {
			return e.MCP
		}
		return false
	}
}

type evaluatorResponse struct {
	Verdict          string             `json:"verdict"`
	Dimensions       map[string]float64 `json:"dimensions"`
	Feedback         string             `json:"feedback"`
	MissingTopics    []string           `json:"missing_topics"`
	SuggestedQueries []string           `json:"suggested_queries"`
}

// Evaluator grades the draft. Claim verification against tier 1-2 evidence
// runs first and biases accuracy down; a "pass" with a weak dimension or
// open topics is downgraded to "revise".
func (n *Nodes) Evaluator(ctx context.Context, s *State) (graph.Outcome[*State], error) {
	agg := evidence.Aggregate(s.ScrapedContent, evidence.Options{})
	report := verify.VerifyDraft(s.DraftReport, agg.Excerpts(), verify.Options{})

	resp, err := structured[evaluatorResponse](ctx, n, NodeEvaluator, n.Config.ReasoningModel, []agent.ConversationMessage{
		{Role: agent.RoleSystem, Content: evaluatorSystemPrompt},
		{Role: agent.RoleUser, Content: evaluatorUserPrompt(s.Input, s.DraftReport, report.Summary())},
	})
	if err != nil {
		// Grade unavailable: mark incomplete and let the run terminate with
		// the draft rather than looping blind.
		return graph.Outcome[*State]{Delta: &State{
			Verdict:    VerdictIncomplete,
			Evaluation: "evaluation unavailable",
			Errors:     []string{fmt.Sprintf("evaluator: %v (verdict set to incomplete)", err)},
		}}, nil
	}

	dims := resp.Dimensions
	if dims == nil {
		dims = map[string]float64{}
	}
	for _, c := range report.Claims {
		if c.Status == verify.StatusContradicted {
			dims["accuracy"] = maxFloat(0, dims["accuracy"]-contradictionPenalty)
		}
	}

	verdict := strings.ToLower(strings.TrimSpace(resp.Verdict))
	switch verdict {
	case VerdictPass, VerdictRevise, VerdictIncomplete:
	default:
		verdict = VerdictRevise
	}
	if verdict == VerdictPass && (minDimension(dims) < evalPassFloor || len(resp.MissingTopics) > 0) {
		n.Logger.Info("downgrading pass to revise",
			"min_dimension", minDimension(dims), "missing_topics", len(resp.MissingTopics))
		verdict = VerdictRevise
	}

	return graph.Outcome[*State]{Delta: &State{
		Verdict:          verdict,
		Evaluation:       resp.Feedback,
		EvalDimensions:   dims,
		MissingTopics:    resp.MissingTopics,
		SuggestedQueries: resp.SuggestedQueries,
	}}, nil
}

func minDimension(dims map[string]float64) float64 {
	if len(dims) == 0 {
		return 0
	}
	m := 1.0
	for _, v := range dims {
		if v < m {
			m = v
		}
	}
	return m
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

type refineResponse struct {
	Queries []string `json:"queries"`
}

// RefinePlan extends the plan for another research round. Preference order:
// the evaluator's suggested queries, then topics synthesized against the
// original input, then an LLM ask as the last resort. New queries are
// deduplicated against the existing plan; the revision counter advances
// here, bounded by MaxRevisions at the routing layer.
func (n *Nodes) RefinePlan(ctx context.Context, s *State) (graph.Outcome[*State], error) {
	candidates := sanitizeQueries(s.SuggestedQueries, 3)

	if len(candidates) == 0 {
		for _, topic := range s.MissingTopics {
			topic = strings.TrimSpace(topic)
			if topic == "" {
				continue
			}
			candidates = append(candidates, fmt.Sprintf("%s %s", s.Input, topic))
			if len(candidates) == 3 {
				break
			}
		}
	}

	if len(candidates) == 0 {
		resp, err := structured[refineResponse](ctx, n, NodeRefinePlan, n.Config.ReasoningModel, []agent.ConversationMessage{
			{Role: agent.RoleSystem, Content: refineSystemPrompt},
			{Role: agent.RoleUser, Content: fmt.Sprintf("Request:\n%s\n\nFeedback:\n%s", s.Input, s.Evaluation)},
		})
		if err != nil {
			return graph.Outcome[*State]{Delta: &State{
				RevisionCount: s.RevisionCount + 1,
				Errors:        []string{fmt.Sprintf("refine_plan: %v (no follow-up queries)", err)},
			}}, nil
		}
		candidates = sanitizeQueries(resp.Queries, 3)
	}

	// Keep only queries dissimilar from everything already planned.
	fresh := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if !similarToAny(c, s.ResearchPlan) && !similarToAny(c, fresh) {
			fresh = append(fresh, c)
		}
	}

	n.Logger.Info("plan refined", "new_queries", len(fresh), "revision", s.RevisionCount+1)
	return graph.Outcome[*State]{Delta: &State{
		ResearchPlan:  append(append([]string(nil), s.ResearchPlan...), fresh...),
		RevisionCount: s.RevisionCount + 1,
	}}, nil
}

func similarToAny(query string, existing []string) bool {
	for _, e := range existing {
		if cache.Similarity(query, e) >= cache.DefaultSimilarityThreshold {
			return true
		}
	}
	return false
}

// Reviser rewrites the draft per the evaluator feedback without another
// search round, then hands back to the evaluator.
func (n *Nodes) Reviser(ctx context.Context, s *State) (graph.Outcome[*State], error) {
	content, err := n.completeText(ctx, NodeReviser, n.Config.Model, []agent.ConversationMessage{
		{Role: agent.RoleSystem, Content: reviserSystemPrompt},
		{Role: agent.RoleUser, Content: reviserUserPrompt(s.Input, s.DraftReport, s.Evaluation)},
	})
	if err != nil {
		return graph.Outcome[*State]{}, err
	}
	return graph.Outcome[*State]{Delta: &State{
		DraftReport:   content,
		RevisionCount: s.RevisionCount + 1,
	}}, nil
}

// Agent is the interactive tool-using route: the continuation loop drives
// the LLM with every enabled tool until it produces a final answer.
func (n *Nodes) Agent(ctx context.Context, s *State) (graph.Outcome[*State], error) {
	cont := &controller.Continuation{
		Client:   n.LLM,
		Registry: n.Registry,
		Budget:   n.Budget,
		Policy: controller.Policy{
			ContinueOnToolCalls: true,
			MaxIterations:       n.Config.MaxIterations,
			Parallel:            true,
		},
		Logger: n.Logger,
	}
	out, err := cont.Run(ctx, controller.RunInput{
		RunID: n.runID,
		Node:  NodeAgent,
		Model: n.Config.Model,
		Messages: []agent.ConversationMessage{
			{Role: agent.RoleSystem, Content: agentSystemPrompt},
			{Role: agent.RoleUser, Content: s.Input},
		},
		Tools: n.enabledToolDefs(),
	})
	if err != nil {
		return graph.Outcome[*State]{}, err
	}

	delta := &State{
		FinalReport:   out.FinalText,
		IsComplete:    true,
		Messages:      out.Messages,
		ToolCallCount: n.Budget.Used(),
		Errors:        out.ToolFailures,
	}
	if out.Stopped == controller.StopMaxIterations {
		delta.FinalReport = fmt.Sprintf(
			"The agent stopped after reaching its iteration limit (%d). Partial answer:\n\n%s",
			n.Config.MaxIterations, out.FinalText)
	}
	return graph.Outcome[*State]{Delta: delta}, nil
}

// HumanReview is the terminal node. With interrupts enabled it suspends the
// run carrying the draft; the resume value supplies the reviewed content.
// Otherwise it promotes the draft to the final report and completes.
func (n *Nodes) HumanReview(_ context.Context, s *State) (graph.Outcome[*State], error) {
	if s.IsComplete || s.IsCancelled {
		return graph.Outcome[*State]{}, nil
	}
	if n.Config.AllowInterrupts && n.Config.HumanReview {
		return graph.Outcome[*State]{Interrupt: &graph.Interrupt{Payload: map[string]any{
			"draft_report": s.DraftReport,
			"run_id":       s.RunID,
		}}}, nil
	}
	final := s.FinalReport
	if final == "" {
		final = s.DraftReport
	}
	if final == "" {
		final = "No report could be produced. See the run's error list for details."
	}
	return graph.Outcome[*State]{Delta: &State{FinalReport: final, IsComplete: true}}, nil
}
