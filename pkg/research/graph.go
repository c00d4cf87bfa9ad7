package research

import (
	"github.com/codeready-toolchain/scout/pkg/graph"
)

// BuildGraph wires the research graph for one run's node set:
//
//	router ─┬─ direct_answer ──────────────┐
//	        ├─ agent ──────────────────────┤
//	        ├─ clarify ─┬──────────────────┤
//	        └─ planner ◄┘                  │
//	           planner → initiate_research → writer
//	           writer ─┬ (deep) evaluator ─┬─ refine_plan → initiate_research
//	                   │                   ├─ reviser → evaluator
//	                   └───────────────────┴─ human_review → end
//
// The searcher node only runs as a fan-out sibling of initiate_research; its
// static edge exists to satisfy compilation.
func BuildGraph(n *Nodes) (*graph.Runner[*State], error) {
	g := graph.New[*State](NodeRouter)

	g.AddNode(NodeRouter, n.Router).
		AddNode(NodeClarify, n.Clarify).
		AddNode(NodeDirectAnswer, n.DirectAnswer).
		AddNode(NodePlanner, n.Planner).
		AddNode(NodeInitiate, n.InitiateResearch).
		AddNode(NodeSearcher, n.Searcher).
		AddNode(NodeWriter, n.Writer).
		AddNode(NodeEvaluator, n.Evaluator).
		AddNode(NodeRefinePlan, n.RefinePlan).
		AddNode(NodeReviser, n.Reviser).
		AddNode(NodeAgent, n.Agent).
		AddNode(NodeHumanReview, n.HumanReview)

	g.AddConditional(NodeRouter, func(s *State) string {
		switch s.Route {
		case RouteDirect:
			return NodeDirectAnswer
		case RouteClarify:
			return NodeClarify
		case RouteAgent:
			return NodeAgent
		default:
			return NodePlanner
		}
	})

	// A clarification question ends the run; otherwise the clarifier waved
	// the input through and planning proceeds.
	g.AddConditional(NodeClarify, func(s *State) string {
		if s.NeedsClarification {
			return NodeHumanReview
		}
		return NodePlanner
	})

	g.AddEdge(NodeDirectAnswer, NodeHumanReview)
	g.AddEdge(NodeAgent, NodeHumanReview)
	g.AddEdge(NodePlanner, NodeInitiate)
	g.AddEdge(NodeInitiate, NodeWriter)
	g.AddEdge(NodeSearcher, graph.End)

	// Only deep runs loop through evaluation; web runs take the draft as-is.
	g.AddConditional(NodeWriter, func(s *State) string {
		if s.Route == RouteDeep {
			return NodeEvaluator
		}
		return NodeHumanReview
	})

	g.AddConditional(NodeEvaluator, func(s *State) string {
		if s.Verdict != VerdictRevise || s.RevisionCount >= s.MaxRevisions {
			return NodeHumanReview
		}
		// More searching only helps when the evaluator named gaps; bare
		// quality feedback goes to a rewrite instead.
		if len(s.SuggestedQueries) > 0 || len(s.MissingTopics) > 0 {
			return NodeRefinePlan
		}
		return NodeReviser
	})

	g.AddEdge(NodeRefinePlan, NodeInitiate)
	g.AddEdge(NodeReviser, NodeEvaluator)
	g.AddEdge(NodeHumanReview, graph.End)

	return g.Compile()
}
