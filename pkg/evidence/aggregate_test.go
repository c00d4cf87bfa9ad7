package evidence

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/scout/pkg/models"
)

func bag(query string, hits ...models.SearchHit) models.Bag {
	return models.Bag{Query: query, Timestamp: time.Now(), Results: hits}
}

func hit(url, title string, score float64) models.SearchHit {
	return models.SearchHit{URL: url, Title: title, Snippet: "about " + title, Score: score}
}

func TestAggregateURLDedupKeepsHighestScore(t *testing.T) {
	bags := []models.Bag{
		bag("q1", hit("https://example.com/a?utm_source=x", "Alpha study", 0.4)),
		bag("q2", hit("https://example.com/a", "Alpha study", 0.9)),
	}

	agg := Aggregate(bags, Options{})

	assert.Equal(t, 2, agg.TotalBefore)
	assert.Equal(t, 1, agg.TotalAfter)
	require.Len(t, agg.Tier1, 1)
	assert.Equal(t, 0.9, agg.Tier1[0].Score)
	assert.Equal(t, "[S2-1]", agg.Tier1[0].Tag, "the kept duplicate keeps its own tag")
}

func TestAggregateContentDedup(t *testing.T) {
	// Different URLs, near-identical title+snippet: the lower-scoring one
	// must be collapsed.
	bags := []models.Bag{
		bag("q1",
			models.SearchHit{URL: "https://a.example/1", Title: "Lithium ion battery energy density 2024", Snippet: "Energy density of lithium ion cells reached new highs", Score: 0.8},
			models.SearchHit{URL: "https://b.example/2", Title: "Lithium ion battery energy density 2024", Snippet: "Energy density of lithium ion cells reached new highs!", Score: 0.5},
		),
	}

	agg := Aggregate(bags, Options{})

	assert.Equal(t, 1, agg.TotalAfter)
	require.Len(t, agg.Tier1, 1)
	assert.Equal(t, "https://a.example/1", agg.Tier1[0].URL)
}

func TestAggregatePerQueryCap(t *testing.T) {
	bags := []models.Bag{
		bag("q1",
			hit("https://a.example/1", "first topic result", 0.9),
			hit("https://a.example/2", "second unrelated item", 0.8),
			hit("https://a.example/3", "third distinct report", 0.7),
			hit("https://a.example/4", "fourth different story", 0.95),
		),
	}

	agg := Aggregate(bags, Options{MaxPerQuery: 3})

	assert.Equal(t, 3, agg.TotalAfter, "per-query cap keeps the best three")
	// The dropped hit must be the lowest-scoring one.
	for _, h := range agg.Tier1 {
		assert.NotEqual(t, "https://a.example/3", h.URL)
	}
}

func TestAggregateTiering(t *testing.T) {
	bags := []models.Bag{
		bag("q1",
			hit("https://a.example/hi", "completely distinct alpha", 0.85),
			hit("https://a.example/mid", "another topic beta entry", 0.45),
			hit("https://a.example/low", "unrelated gamma material", 0.1),
		),
	}

	agg := Aggregate(bags, Options{})

	require.Len(t, agg.Tier1, 1)
	require.Len(t, agg.Tier2, 1)
	require.Len(t, agg.Tier3, 1)
	assert.Equal(t, "https://a.example/hi", agg.Tier1[0].Canonical)
	assert.Equal(t, "https://a.example/mid", agg.Tier2[0].Canonical)
	assert.Equal(t, "https://a.example/low", agg.Tier3[0].Canonical)

	assert.Equal(t, 1, agg.Tier1Stats.Count)
	assert.InDelta(t, 0.85, agg.Tier1Stats.Mean, 1e-9)
}

func TestAggregateTierBoundariesInclusive(t *testing.T) {
	bags := []models.Bag{
		bag("q1",
			hit("https://a.example/t1", "boundary one distinct", 0.6),
			hit("https://b.example/t2", "boundary two separate", 0.3),
		),
	}

	agg := Aggregate(bags, Options{})

	assert.Len(t, agg.Tier1, 1, "score exactly at tier 1 threshold lands in tier 1")
	assert.Len(t, agg.Tier2, 1, "score exactly at tier 2 threshold lands in tier 2")
	assert.Empty(t, agg.Tier3)
}

func TestAggregateRemovalNeverPromotes(t *testing.T) {
	full := []models.Bag{
		bag("q1",
			hit("https://a.example/1", "alpha report unique", 0.9),
			hit("https://a.example/2", "beta study distinct", 0.5),
		),
		bag("q2",
			hit("https://a.example/3", "gamma analysis other", 0.4),
		),
	}
	aggFull := Aggregate(full, Options{})

	// Remove one hit; every surviving hit must stay in the same-or-lower tier.
	reduced := []models.Bag{
		bag("q1", hit("https://a.example/2", "beta study distinct", 0.5)),
		full[1],
	}
	aggReduced := Aggregate(reduced, Options{})

	tierOf := func(a *Aggregated, url string) int {
		for _, h := range a.Tier1 {
			if h.URL == url {
				return 1
			}
		}
		for _, h := range a.Tier2 {
			if h.URL == url {
				return 2
			}
		}
		for _, h := range a.Tier3 {
			if h.URL == url {
				return 3
			}
		}
		return 0
	}

	for _, url := range []string{"https://a.example/2", "https://a.example/3"} {
		before := tierOf(aggFull, url)
		after := tierOf(aggReduced, url)
		require.NotZero(t, before)
		require.NotZero(t, after)
		assert.GreaterOrEqual(t, after, before, "removal must never promote %s", url)
	}
}

func TestToContext(t *testing.T) {
	bags := []models.Bag{
		bag("q1",
			hit("https://a.example/1", "Alpha unique report", 0.9),
			hit("https://b.example/2", "Beta distinct study", 0.4),
		),
	}
	agg := Aggregate(bags, Options{})

	ctx := agg.ToContext(5, 5, 5, 0)

	assert.Contains(t, ctx, "[S1-1] Alpha unique report")
	assert.Contains(t, ctx, "[S1-2] Beta distinct study")
	assert.Contains(t, ctx, "## Sources")
	assert.Contains(t, ctx, "URL: https://a.example/1")

	// Citation tags match the documented shape.
	assert.Regexp(t, `\[S\d+-\d+\]`, ctx)
}

func TestToContextPerTierLimit(t *testing.T) {
	bags := []models.Bag{
		bag("q1",
			hit("https://a.example/1", "first distinct alpha", 0.9),
			hit("https://b.example/2", "second separate beta", 0.8),
			hit("https://c.example/3", "third unrelated gamma", 0.7),
		),
	}
	agg := Aggregate(bags, Options{})
	require.Len(t, agg.Tier1, 3)

	ctx := agg.ToContext(2, 5, 5, 0)

	assert.Contains(t, ctx, "[S1-1]")
	assert.Contains(t, ctx, "[S1-2]")
	assert.NotContains(t, strings.Split(ctx, "## Sources")[0], "[S1-3]")
}

func TestToContextCharBudget(t *testing.T) {
	bags := []models.Bag{
		bag("q1",
			hit("https://a.example/1", "alpha distinct one", 0.9),
			hit("https://b.example/2", "beta separate two", 0.8),
		),
	}
	agg := Aggregate(bags, Options{})

	full := agg.ToContext(5, 5, 5, 0)
	tight := agg.ToContext(5, 5, 5, 120)

	assert.Less(t, len(tight), len(full))
	assert.Contains(t, tight, "[S1-1]", "highest-ranked hit always fits first")
}

func TestToContextCharBudgetNeverLeavesEmptyHeading(t *testing.T) {
	bags := []models.Bag{
		bag("q1",
			hit("https://a.example/1", "alpha distinct one", 0.9),
			hit("https://b.example/2", "beta separate two", 0.4),
		),
	}
	agg := Aggregate(bags, Options{})
	require.NotEmpty(t, agg.Tier1)
	require.NotEmpty(t, agg.Tier2)

	// Room for the first section and its hit, not for the second tier: the
	// supporting-evidence heading must not appear with nothing under it.
	ctx := agg.ToContext(5, 5, 5, 140)
	assert.Contains(t, ctx, "## High-relevance evidence")
	assert.Contains(t, ctx, "[S1-1]")
	assert.NotContains(t, ctx, "## Supporting evidence")

	// No hit fits at all: no heading survives either.
	assert.Empty(t, agg.ToContext(5, 5, 5, 10))
}

func TestAggregateEmptyInput(t *testing.T) {
	agg := Aggregate(nil, Options{})
	assert.Zero(t, agg.TotalBefore)
	assert.Zero(t, agg.TotalAfter)
	assert.Empty(t, agg.ToContext(3, 3, 3, 0))
}
