// Package models holds the shared domain types exchanged between the cache,
// the aggregator, the graph state, the stores, and the HTTP layer.
package models

import "time"

// SearchHit is a single result returned by a search provider. Missing fields
// default to the zero value; Score is comparable only within a single run.
type SearchHit struct {
	URL           string  `json:"url"`
	Title         string  `json:"title,omitempty"`
	Snippet       string  `json:"snippet,omitempty"`
	Score         float64 `json:"score"`
	Provider      string  `json:"provider,omitempty"`
	PublishedDate string  `json:"published_date,omitempty"`
}

// Bag is one query's result set within a run's scraped content. Bags are
// append-only: once written by a searcher they are never mutated, which is
// what keeps citation tags stable across revision rounds.
type Bag struct {
	Query     string      `json:"query"`
	Timestamp time.Time   `json:"timestamp"`
	Cached    bool        `json:"cached"`
	Results   []SearchHit `json:"results"`
}
