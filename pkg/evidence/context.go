package evidence

import (
	"strings"
)

// tierSection pairs a heading with the hits emitted under it.
type tierSection struct {
	heading string
	hits    []RankedHit
	max     int
}

// ToContext renders the writer-facing evidence block: tier sections with the
// per-tier limits applied, each hit prefixed by its stable citation tag,
// followed by a sources table of every emitted hit. maxChars bounds the body
// (sections stop once the budget is spent; the sources table always lists
// what was emitted). A zero max disables that limit.
func (a *Aggregated) ToContext(max1, max2, max3, maxChars int) string {
	sections := []tierSection{
		{"## High-relevance evidence", a.Tier1, max1},
		{"## Supporting evidence", a.Tier2, max2},
		{"## Background evidence", a.Tier3, max3},
	}

	var b strings.Builder
	var emitted []RankedHit
	budgetSpent := false

	for _, sec := range sections {
		hits := sec.hits
		if sec.max > 0 && len(hits) > sec.max {
			hits = hits[:sec.max]
		}
		if len(hits) == 0 || budgetSpent {
			continue
		}
		// The heading lands only once its first hit is known to fit, so an
		// exhausted budget never leaves an empty section behind.
		header := sec.heading + "\n\n"
		headed := false
		for _, h := range hits {
			block := formatHit(h)
			need := len(block)
			if !headed {
				need += len(header)
			}
			if maxChars > 0 && b.Len()+need > maxChars {
				budgetSpent = true
				break
			}
			if !headed {
				b.WriteString(header)
				headed = true
			}
			b.WriteString(block)
			emitted = append(emitted, h)
		}
	}

	if len(emitted) > 0 {
		b.WriteString("## Sources\n\n")
		for _, h := range emitted {
			b.WriteString(h.Tag)
			b.WriteString(" ")
			if h.Title != "" {
				b.WriteString(h.Title)
				b.WriteString(" — ")
			}
			b.WriteString(h.Canonical)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func formatHit(h RankedHit) string {
	var b strings.Builder
	b.WriteString(h.Tag)
	b.WriteString(" ")
	if h.Title != "" {
		b.WriteString(h.Title)
	} else {
		b.WriteString(h.Canonical)
	}
	b.WriteString("\n")
	if h.Snippet != "" {
		b.WriteString(h.Snippet)
		b.WriteString("\n")
	}
	b.WriteString("URL: ")
	b.WriteString(h.Canonical)
	b.WriteString("\n\n")
	return b.String()
}

// Excerpts returns the tier 1 and tier 2 hits as (url, text) pairs for the
// claim verifier.
func (a *Aggregated) Excerpts() []Excerpt {
	out := make([]Excerpt, 0, len(a.Tier1)+len(a.Tier2))
	for _, h := range append(append([]RankedHit{}, a.Tier1...), a.Tier2...) {
		out = append(out, Excerpt{URL: h.Canonical, Text: h.Title + " " + h.Snippet})
	}
	return out
}

// Excerpt is a single piece of evidence text attributable to a URL.
type Excerpt struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}
