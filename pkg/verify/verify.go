// Package verify cross-checks the factual claims of a draft report against
// the aggregated evidence corpus. It is deliberately lexical: term-bag
// overlap selects relevant excerpts, negation polarity and directional
// markers flag contradictions. The evaluator uses the result to bias its
// accuracy dimension, it never blocks a run on its own.
package verify

import (
	"fmt"

	"github.com/codeready-toolchain/scout/pkg/evidence"
)

// Status labels the verification outcome of a single claim.
type Status string

const (
	StatusVerified     Status = "verified"
	StatusContradicted Status = "contradicted"
	StatusUnsupported  Status = "unsupported"
)

const (
	DefaultMinOverlapTokens = 2
	DefaultMaxEvidenceURLs  = 5
)

// Options configures verification. Zero values select the defaults.
type Options struct {
	MinOverlapTokens int
	MaxEvidenceURLs  int
}

func (o Options) withDefaults() Options {
	if o.MinOverlapTokens <= 0 {
		o.MinOverlapTokens = DefaultMinOverlapTokens
	}
	if o.MaxEvidenceURLs <= 0 {
		o.MaxEvidenceURLs = DefaultMaxEvidenceURLs
	}
	return o
}

// Claim is the verification result of one draft sentence.
type Claim struct {
	Claim        string   `json:"claim"`
	Status       Status   `json:"status"`
	EvidenceURLs []string `json:"evidence_urls,omitempty"`
	Score        int      `json:"score"`
	Notes        string   `json:"notes,omitempty"`
}

// Report is the verification result for a whole draft.
type Report struct {
	Claims       []Claim `json:"claims"`
	Verified     int     `json:"verified"`
	Contradicted int     `json:"contradicted"`
	Unsupported  int     `json:"unsupported"`
}

// HasContradictions reports whether any claim was contradicted by evidence.
func (r *Report) HasContradictions() bool {
	return r.Contradicted > 0
}

// Summary renders a short line for evaluator prompts and logs.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d claims checked: %d verified, %d contradicted, %d unsupported",
		len(r.Claims), r.Verified, r.Contradicted, r.Unsupported)
}

// VerifyDraft extracts the claims of draft and checks each against the
// evidence excerpts.
func VerifyDraft(draft string, excerpts []evidence.Excerpt, opts Options) *Report {
	opts = opts.withDefaults()

	report := &Report{}
	for _, claim := range ExtractClaims(draft) {
		result := verifyClaim(claim, excerpts, opts)
		report.Claims = append(report.Claims, result)
		switch result.Status {
		case StatusVerified:
			report.Verified++
		case StatusContradicted:
			report.Contradicted++
		default:
			report.Unsupported++
		}
	}
	return report
}

func verifyClaim(claim string, excerpts []evidence.Excerpt, opts Options) Claim {
	claimTokens := tokenize(claim)
	claimBag := termBag(claimTokens)
	claimNegated := negated(claimTokens)
	claimDirection := direction(claimTokens)

	result := Claim{Claim: claim, Status: StatusUnsupported}

	var supporting, contradicting []string
	matched := 0
	for _, ex := range excerpts {
		exTokens := tokenize(ex.Text)
		score := overlap(claimBag, termBag(exTokens))
		if score < opts.MinOverlapTokens {
			continue
		}
		matched++
		if score > result.Score {
			result.Score = score
		}

		exDirection := direction(exTokens)
		switch {
		case negated(exTokens) != claimNegated:
			contradicting = append(contradicting, ex.URL)
			result.Notes = "negation polarity differs from evidence"
		case claimDirection != 0 && exDirection != 0 && claimDirection != exDirection:
			contradicting = append(contradicting, ex.URL)
			result.Notes = "directional markers conflict with evidence"
		default:
			supporting = append(supporting, ex.URL)
		}
	}

	switch {
	case len(contradicting) > 0:
		result.Status = StatusContradicted
		result.EvidenceURLs = capURLs(append(contradicting, supporting...), opts.MaxEvidenceURLs)
	case matched > 0:
		result.Status = StatusVerified
		result.EvidenceURLs = capURLs(supporting, opts.MaxEvidenceURLs)
		result.Notes = fmt.Sprintf("supported by %d excerpt(s)", matched)
	}
	return result
}

// capURLs dedups in order and keeps at most max entries.
func capURLs(urls []string, max int) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
		if len(out) == max {
			break
		}
	}
	return out
}
