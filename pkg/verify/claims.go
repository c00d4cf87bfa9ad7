package verify

import (
	"regexp"
	"strings"
	"unicode"
)

// Claim marker heuristics: a sentence is a checkable claim when it cites a
// source kind (study/report/data vocabulary) or carries a numeric pattern
// (multi-digit numbers such as years, or percentages).
var (
	numberPattern  = regexp.MustCompile(`\d{2,4}`)
	percentPattern = regexp.MustCompile(`\d+%`)

	markerWords = map[string]struct{}{
		"study": {}, "studies": {}, "report": {}, "reports": {}, "reported": {},
		"data": {}, "survey": {}, "research": {}, "researchers": {},
		"analysis": {}, "statistics": {}, "findings": {}, "found": {},
		"according": {}, "estimates": {}, "estimated": {}, "measured": {},
	}
)

// ExtractClaims returns the sentences of draft that look like factual claims.
// Sentence order is preserved; duplicates are kept only once.
func ExtractClaims(draft string) []string {
	seen := make(map[string]struct{})
	var claims []string
	for _, sentence := range splitSentences(draft) {
		if !isClaim(sentence) {
			continue
		}
		if _, dup := seen[sentence]; dup {
			continue
		}
		seen[sentence] = struct{}{}
		claims = append(claims, sentence)
	}
	return claims
}

func isClaim(sentence string) bool {
	if numberPattern.MatchString(sentence) || percentPattern.MatchString(sentence) {
		return true
	}
	for _, tok := range tokenize(sentence) {
		if _, ok := markerWords[tok]; ok {
			return true
		}
	}
	return false
}

// splitSentences cuts text on sentence terminators and newlines. Headings and
// list bullets come through as their own fragments and are filtered by length.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		b.Reset()
		// Skip fragments too short to carry a claim.
		if len(s) >= 20 {
			sentences = append(sentences, s)
		}
	}
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			b.WriteRune(r)
			flush()
		case '\n':
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return sentences
}

// tokenize lowercases and splits on any non-letter, non-digit rune.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "if": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "of": {}, "for": {}, "with": {},
	"by": {}, "from": {}, "as": {}, "it": {}, "its": {}, "this": {}, "that": {},
	"these": {}, "those": {}, "there": {}, "their": {}, "they": {}, "we": {},
	"you": {}, "he": {}, "she": {}, "his": {}, "her": {}, "them": {}, "our": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "can": {}, "could": {}, "should": {}, "may": {},
	"might": {}, "than": {}, "then": {}, "which": {}, "what": {}, "when": {},
	"where": {}, "who": {}, "while": {}, "about": {}, "into": {}, "over": {},
	"under": {}, "also": {}, "such": {}, "per": {}, "via": {}, "any": {},
	"all": {}, "each": {}, "more": {}, "most": {}, "some": {}, "not": {},
	"no": {}, "so": {}, "up": {}, "down": {}, "out": {},
}

// termBag reduces tokens to the set of meaningful terms: longer than one
// rune and not a stopword.
func termBag(tokens []string) map[string]struct{} {
	bag := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if len(tok) <= 1 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		bag[tok] = struct{}{}
	}
	return bag
}

func overlap(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for term := range a {
		if _, ok := b[term]; ok {
			n++
		}
	}
	return n
}

var negationMarkers = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "without": {}, "nor": {}, "cannot": {},
	"denied": {}, "denies": {}, "refuted": {}, "disproved": {},
}

// negated reports whether the token stream carries a negation marker.
// It runs on raw tokens, before stopword filtering.
func negated(tokens []string) bool {
	for _, tok := range tokens {
		if _, ok := negationMarkers[tok]; ok {
			return true
		}
	}
	return false
}

var upMarkers = map[string]struct{}{
	"increase": {}, "increases": {}, "increased": {}, "increasing": {},
	"rise": {}, "rises": {}, "rose": {}, "risen": {}, "rising": {},
	"grow": {}, "grows": {}, "grew": {}, "grown": {}, "growing": {}, "growth": {},
	"gain": {}, "gains": {}, "gained": {}, "higher": {}, "surge": {}, "surged": {},
	"climb": {}, "climbs": {}, "climbed": {}, "up": {}, "upward": {},
}

var downMarkers = map[string]struct{}{
	"decrease": {}, "decreases": {}, "decreased": {}, "decreasing": {},
	"fall": {}, "falls": {}, "fell": {}, "fallen": {}, "falling": {},
	"decline": {}, "declines": {}, "declined": {}, "declining": {},
	"drop": {}, "drops": {}, "dropped": {}, "lower": {}, "shrink": {},
	"shrank": {}, "shrunk": {}, "loss": {}, "losses": {}, "lost": {},
	"reduced": {}, "reduction": {}, "down": {}, "downward": {},
}

// direction returns +1 when up markers dominate, -1 when down markers
// dominate, 0 when absent or balanced.
func direction(tokens []string) int {
	up, down := 0, 0
	for _, tok := range tokens {
		if _, ok := upMarkers[tok]; ok {
			up++
		}
		if _, ok := downMarkers[tok]; ok {
			down++
		}
	}
	switch {
	case up > down:
		return 1
	case down > up:
		return -1
	default:
		return 0
	}
}
