package evidence

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/codeready-toolchain/scout/pkg/cache"
	"github.com/codeready-toolchain/scout/pkg/models"
)

// Default aggregation policy. All overridable via Options.
const (
	DefaultMaxPerQuery       = 3
	DefaultTier1Threshold    = 0.6
	DefaultTier2Threshold    = 0.3
	DefaultContentSimilarity = 0.7
)

// Options configures Aggregate. Zero values select the defaults.
type Options struct {
	MaxPerQuery       int
	Tier1Threshold    float64
	Tier2Threshold    float64
	ContentSimilarity float64
}

func (o Options) withDefaults() Options {
	if o.MaxPerQuery <= 0 {
		o.MaxPerQuery = DefaultMaxPerQuery
	}
	if o.Tier1Threshold <= 0 {
		o.Tier1Threshold = DefaultTier1Threshold
	}
	if o.Tier2Threshold <= 0 {
		o.Tier2Threshold = DefaultTier2Threshold
	}
	if o.ContentSimilarity <= 0 {
		o.ContentSimilarity = DefaultContentSimilarity
	}
	return o
}

// RankedHit is a surviving hit with its canonical URL and stable citation tag.
type RankedHit struct {
	models.SearchHit
	Canonical string `json:"canonical"`
	// Tag is the stable citation marker "[Sq-i]": q is the 1-based ordinal of
	// the bag that produced the hit, i the 1-based position within that bag.
	// Bags are append-only across revision rounds, so tags never move.
	Tag string `json:"tag"`

	queryIndex int // 0-based bag ordinal, for the per-query cap
	order      int // flatten order, for stable ranking ties
}

// ScoreStats summarizes the score distribution of one tier.
type ScoreStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
}

// Aggregated is the tiered evidence set handed to the writer.
type Aggregated struct {
	Tier1       []RankedHit `json:"tier_1"`
	Tier2       []RankedHit `json:"tier_2"`
	Tier3       []RankedHit `json:"tier_3"`
	TotalBefore int         `json:"total_before"`
	TotalAfter  int         `json:"total_after"`

	Tier1Stats ScoreStats `json:"tier_1_stats"`
	Tier2Stats ScoreStats `json:"tier_2_stats"`
	Tier3Stats ScoreStats `json:"tier_3_stats"`
}

// Aggregate merges per-query bags into ranked, tiered evidence:
// flatten → canonicalize → dedup by canonical URL (keep highest score) →
// content-similarity dedup on title+snippet → per-query cap → rank by score
// descending (stable on flatten order) → tier.
func Aggregate(bags []models.Bag, opts Options) *Aggregated {
	opts = opts.withDefaults()

	// Flatten, assigning stable citation tags from the original positions.
	flat := make([]RankedHit, 0)
	for qi, bag := range bags {
		for hi, hit := range bag.Results {
			flat = append(flat, RankedHit{
				SearchHit:  hit,
				Canonical:  CanonicalURL(hit.URL),
				Tag:        citationTag(qi, hi),
				queryIndex: qi,
				order:      len(flat),
			})
		}
	}
	totalBefore := len(flat)

	// Dedup by canonical URL, keeping the highest score (earliest wins ties).
	byURL := make(map[string]int, len(flat))
	urlDeduped := make([]RankedHit, 0, len(flat))
	for _, h := range flat {
		if idx, seen := byURL[h.Canonical]; seen {
			if h.Score > urlDeduped[idx].Score {
				urlDeduped[idx] = h
			}
			continue
		}
		byURL[h.Canonical] = len(urlDeduped)
		urlDeduped = append(urlDeduped, h)
	}

	// Content-similarity dedup over the survivors: walk in score order so the
	// highest-scoring representative of each near-duplicate cluster is kept.
	ranked := make([]RankedHit, len(urlDeduped))
	copy(ranked, urlDeduped)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].order < ranked[j].order
	})

	contentDeduped := make([]RankedHit, 0, len(ranked))
	for _, h := range ranked {
		dup := false
		for _, kept := range contentDeduped {
			if cache.Similarity(contentText(h), contentText(kept)) >= opts.ContentSimilarity {
				dup = true
				break
			}
		}
		if !dup {
			contentDeduped = append(contentDeduped, h)
		}
	}

	// Per-query cap: contentDeduped is already in score order, so counting
	// per bag keeps the best MaxPerQuery hits of each query.
	perQuery := make(map[int]int)
	capped := make([]RankedHit, 0, len(contentDeduped))
	for _, h := range contentDeduped {
		if perQuery[h.queryIndex] >= opts.MaxPerQuery {
			continue
		}
		perQuery[h.queryIndex]++
		capped = append(capped, h)
	}

	agg := &Aggregated{
		TotalBefore: totalBefore,
		TotalAfter:  len(capped),
	}
	for _, h := range capped {
		switch {
		case h.Score >= opts.Tier1Threshold:
			agg.Tier1 = append(agg.Tier1, h)
		case h.Score >= opts.Tier2Threshold:
			agg.Tier2 = append(agg.Tier2, h)
		default:
			agg.Tier3 = append(agg.Tier3, h)
		}
	}
	agg.Tier1Stats = scoreStats(agg.Tier1)
	agg.Tier2Stats = scoreStats(agg.Tier2)
	agg.Tier3Stats = scoreStats(agg.Tier3)
	return agg
}

func citationTag(queryIdx, hitIdx int) string {
	return fmt.Sprintf("[S%d-%d]", queryIdx+1, hitIdx+1)
}

func contentText(h RankedHit) string {
	return h.Title + " " + h.Snippet
}

func scoreStats(hits []RankedHit) ScoreStats {
	if len(hits) == 0 {
		return ScoreStats{}
	}
	scores := make(stats.Float64Data, len(hits))
	for i, h := range hits {
		scores[i] = h.Score
	}
	mean, _ := stats.Mean(scores)
	median, _ := stats.Median(scores)
	stddev, _ := stats.StandardDeviation(scores)
	return ScoreStats{Count: len(hits), Mean: mean, Median: median, StdDev: stddev}
}
