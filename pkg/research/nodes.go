package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeready-toolchain/scout/pkg/agent"
	"github.com/codeready-toolchain/scout/pkg/cache"
	"github.com/codeready-toolchain/scout/pkg/graph"
	"github.com/codeready-toolchain/scout/pkg/tools"
)

// Node names as wired into the graph.
const (
	NodeRouter       = "router"
	NodeClarify      = "clarify"
	NodeDirectAnswer = "direct_answer"
	NodePlanner      = "planner"
	NodeInitiate     = "initiate_research"
	NodeSearcher     = "searcher"
	NodeWriter       = "writer"
	NodeEvaluator    = "evaluator"
	NodeRefinePlan   = "refine_plan"
	NodeReviser      = "reviser"
	NodeAgent        = "agent"
	NodeHumanReview  = "human_review"
)

// Nodes carries one run's dependencies: they are instantiated per run so the
// budget and configuration stay run-scoped while the cache and registry
// remain process-wide.
type Nodes struct {
	LLM      agent.LLMClient
	Registry *tools.Registry
	Cache    *cache.SearchCache
	Budget   *tools.Budget
	Config   Config
	Logger   *slog.Logger

	runID string
}

// NewNodes builds the node set for a single run.
func NewNodes(llm agent.LLMClient, registry *tools.Registry, searchCache *cache.SearchCache, cfg Config, runID string) *Nodes {
	cfg = cfg.normalized()
	return &Nodes{
		LLM:      llm,
		Registry: registry,
		Cache:    searchCache,
		Budget:   tools.NewBudget(cfg.ToolCallLimit),
		Config:   cfg,
		Logger:   slog.Default().With("component", "research", "run_id", runID),
		runID:    runID,
	}
}

type routerResponse struct {
	Route      string  `json:"route"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Router classifies the input. An explicit search-mode override bypasses the
// classifier; low confidence forces clarification.
func (n *Nodes) Router(ctx context.Context, s *State) (graph.Outcome[*State], error) {
	if override := normalizeRoute(n.Config.SearchMode); override != "" {
		n.Logger.Info("route overridden by config", "route", override)
		return graph.Outcome[*State]{Delta: &State{Route: override, RouteConfidence: 1.0}}, nil
	}

	resp, err := structured[routerResponse](ctx, n, NodeRouter, n.Config.Model, []agent.ConversationMessage{
		{Role: agent.RoleSystem, Content: routerSystemPrompt},
		{Role: agent.RoleUser, Content: s.Input},
	})
	if err != nil {
		// Deterministic fallback: a web search round answers most requests.
		// Both the diagnostic and the fallback are preserved.
		return graph.Outcome[*State]{Delta: &State{
			Route:           RouteWeb,
			RouteConfidence: 0,
			Errors:          []string{fmt.Sprintf("router: %v (fell back to web)", err)},
		}}, nil
	}

	route := normalizeRoute(resp.Route)
	if route == "" {
		route = RouteWeb
	}
	if resp.Confidence < n.Config.RoutingConfidenceThreshold {
		n.Logger.Info("routing confidence below threshold, forcing clarify",
			"route", route, "confidence", resp.Confidence)
		route = RouteClarify
	}
	return graph.Outcome[*State]{Delta: &State{Route: route, RouteConfidence: resp.Confidence}}, nil
}

// ValidSearchMode reports whether mode names a route the router understands,
// including the aliases LLM responses sometimes use.
func ValidSearchMode(mode string) bool {
	return normalizeRoute(mode) != ""
}

func normalizeRoute(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case RouteDirect:
		return RouteDirect
	case RouteWeb, "use_web":
		return RouteWeb
	case RouteDeep, "use_deep_search", "deep_search":
		return RouteDeep
	case RouteAgent, "use_agent":
		return RouteAgent
	case RouteClarify:
		return RouteClarify
	default:
		return ""
	}
}

type clarifyResponse struct {
	NeedClarification bool   `json:"need_clarification"`
	Question          string `json:"question"`
	Verification      string `json:"verification"`
}

// Clarify decides whether to ask the user a question. When it does, the
// question IS the run's output: the run completes and can be resumed with
// additional context.
func (n *Nodes) Clarify(ctx context.Context, s *State) (graph.Outcome[*State], error) {
	resp, err := structured[clarifyResponse](ctx, n, NodeClarify, n.Config.Model, []agent.ConversationMessage{
		{Role: agent.RoleSystem, Content: clarifierSystemPrompt},
		{Role: agent.RoleUser, Content: s.Input},
	})
	if err != nil {
		// Can't decide — proceed with planning rather than blocking the run.
		return graph.Outcome[*State]{Delta: &State{
			Errors: []string{fmt.Sprintf("clarifier: %v (proceeding to planner)", err)},
		}}, nil
	}
	if !resp.NeedClarification {
		return graph.Outcome[*State]{}, nil
	}
	question := strings.TrimSpace(resp.Question)
	if question == "" {
		question = "Could you clarify what exactly you would like researched?"
	}
	return graph.Outcome[*State]{Delta: &State{
		NeedsClarification: true,
		FinalReport:        question,
		IsComplete:         true,
	}}, nil
}

// DirectAnswer is the single-turn path for requests that need no research.
func (n *Nodes) DirectAnswer(ctx context.Context, s *State) (graph.Outcome[*State], error) {
	content, err := n.completeText(ctx, NodeDirectAnswer, n.Config.Model, []agent.ConversationMessage{
		{Role: agent.RoleSystem, Content: directSystemPrompt},
		{Role: agent.RoleUser, Content: s.Input},
	})
	if err != nil {
		return graph.Outcome[*State]{}, err
	}
	return graph.Outcome[*State]{Delta: &State{
		FinalReport: content,
		IsComplete:  true,
	}}, nil
}

type plannerResponse struct {
	Queries   []string `json:"queries"`
	Reasoning string   `json:"reasoning"`
}

// Planner produces the initial research plan: 3..7 queries from the LLM,
// stripped, case-deduplicated, clamped to 6, falling back to the raw input.
func (n *Nodes) Planner(ctx context.Context, s *State) (graph.Outcome[*State], error) {
	resp, err := structured[plannerResponse](ctx, n, NodePlanner, n.Config.ReasoningModel, []agent.ConversationMessage{
		{Role: agent.RoleSystem, Content: plannerSystemPrompt},
		{Role: agent.RoleUser, Content: s.Input},
	})
	if err != nil {
		return graph.Outcome[*State]{Delta: &State{
			ResearchPlan: []string{s.Input},
			Errors:       []string{fmt.Sprintf("planner: %v (fell back to raw input)", err)},
		}}, nil
	}

	queries := sanitizeQueries(resp.Queries, DefaultMaxPlanQueries)
	if len(queries) == 0 {
		return graph.Outcome[*State]{Delta: &State{
			ResearchPlan: []string{s.Input},
			Errors:       []string{"planner: empty plan (fell back to raw input)"},
		}}, nil
	}
	n.Logger.Info("research plan ready", "queries", len(queries))
	return graph.Outcome[*State]{Delta: &State{ResearchPlan: queries}}, nil
}

// sanitizeQueries strips whitespace, drops empties, removes case-insensitive
// duplicates preserving first occurrence, and clamps the list.
func sanitizeQueries(queries []string, max int) []string {
	seen := make(map[string]bool, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
		if len(out) == max {
			break
		}
	}
	return out
}
