package research

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/scout/pkg/cache"
	"github.com/codeready-toolchain/scout/pkg/graph"
	"github.com/codeready-toolchain/scout/pkg/models"
	"github.com/codeready-toolchain/scout/pkg/tools"
)

// InitiateResearch is the fan-out: it deduplicates the plan's undispatched
// tail and emits one searcher task per surviving query. On refinement rounds
// only the new queries are fanned out; dedup also runs against everything
// already dispatched so a refined plan can't re-search old ground.
func (n *Nodes) InitiateResearch(_ context.Context, s *State) (graph.Outcome[*State], error) {
	pending := s.PendingQueries()
	if len(pending) == 0 {
		n.Logger.Warn("initiate_research with no pending queries")
		return graph.Outcome[*State]{Delta: &State{DispatchedQueries: len(s.ResearchPlan)}}, nil
	}

	// Collapse the undispatched tail internally, then drop survivors that
	// re-search already dispatched ground. The dispatched prefix is compared
	// directly: near-duplicates inside it must not shift which tail entries
	// survive.
	dispatched := s.ResearchPlan[:s.DispatchedQueries]
	tailUnique, _ := cache.Deduplicate(pending, cache.DefaultSimilarityThreshold)
	fresh := make([]string, 0, len(tailUnique))
	for _, q := range tailUnique {
		dup := false
		for _, d := range dispatched {
			if cache.Similarity(q, d) >= cache.DefaultSimilarityThreshold {
				dup = true
				break
			}
		}
		if !dup {
			fresh = append(fresh, q)
		}
	}

	if dropped := len(pending) - len(fresh); dropped > 0 {
		n.Logger.Info("plan queries collapsed by dedup",
			"unique", len(fresh), "duplicates", dropped)
	}

	tasks := make([]graph.Task[*State], 0, len(fresh))
	for _, q := range fresh {
		sub := s.Clone()
		sub.CurrentQuery = q
		tasks = append(tasks, graph.Task[*State]{Node: NodeSearcher, State: sub})
	}
	return graph.Outcome[*State]{
		Delta:  &State{DispatchedQueries: len(s.ResearchPlan)},
		FanOut: tasks,
	}, nil
}

// Searcher executes one dispatched query: cancellation check, cache probe,
// search tool on miss, cache write, one bag out. Failures degrade to an
// empty bag with a recorded error — a lost query never sinks the run.
func (n *Nodes) Searcher(ctx context.Context, s *State) (graph.Outcome[*State], error) {
	query := s.CurrentQuery
	if query == "" {
		return graph.Outcome[*State]{}, fmt.Errorf("searcher dispatched without a query")
	}
	if err := ctx.Err(); err != nil {
		return graph.Outcome[*State]{}, err
	}

	if hits, matched, kind := n.Cache.Lookup(query); kind != cache.LookupMiss {
		n.Logger.Debug("search served from cache",
			"query", query, "matched", matched, "similar", kind == cache.LookupSimilar)
		return graph.Outcome[*State]{Delta: &State{
			ScrapedContent: []models.Bag{{
				Query:     query,
				Timestamp: time.Now().UTC(),
				Cached:    true,
				Results:   hits,
			}},
		}}, nil
	}

	result, err := n.Registry.Execute(ctx, tools.WebSearchToolName, map[string]any{
		"query":       query,
		"max_results": tools.DefaultMaxResults,
	}, n.Budget)
	if err != nil {
		// Budget breach and unknown tool are fatal and bubble to the engine.
		return graph.Outcome[*State]{}, err
	}
	if !result.Success {
		return graph.Outcome[*State]{Delta: &State{
			ScrapedContent: []models.Bag{{Query: query, Timestamp: time.Now().UTC()}},
			Errors:         []string{fmt.Sprintf("search %q failed: %s", query, result.Error)},
			ToolCallCount:  n.Budget.Used(),
		}}, nil
	}

	hits := tools.HitsFromResult(result)
	n.Cache.Set(query, hits)
	return graph.Outcome[*State]{Delta: &State{
		ScrapedContent: []models.Bag{{
			Query:     query,
			Timestamp: time.Now().UTC(),
			Results:   hits,
		}},
		ToolCallCount: n.Budget.Used(),
	}}, nil
}
