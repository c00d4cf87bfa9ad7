package cache

import "strings"

// Normalize lowercases a query and collapses internal whitespace runs to a
// single space. All cache keys and similarity comparisons operate on
// normalized strings, so "AI  Chips" and "ai chips" are the same query.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Similarity returns a [0,1] similarity score between two queries, computed
// on their normalized forms as a blend of character-bigram Dice overlap
// (word-order tolerant) and edit-distance ratio (typo tolerant).
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0.0
	}
	return 0.6*diceCoefficient(na, nb) + 0.4*editRatio(na, nb)
}

// diceCoefficient computes the Sørensen–Dice coefficient over character
// bigram multisets: 2·|A∩B| / (|A|+|B|).
func diceCoefficient(a, b string) float64 {
	ba, bb := bigrams(a), bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		if a == b {
			return 1.0
		}
		return 0.0
	}
	totalA, totalB, shared := 0, 0, 0
	for _, n := range ba {
		totalA += n
	}
	for bg, n := range bb {
		totalB += n
		if m, ok := ba[bg]; ok {
			if m < n {
				shared += m
			} else {
				shared += n
			}
		}
	}
	return 2.0 * float64(shared) / float64(totalA+totalB)
}

func bigrams(s string) map[string]int {
	runes := []rune(s)
	if len(runes) < 2 {
		return nil
	}
	grams := make(map[string]int, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams
}

// editRatio returns 1 − levenshtein(a,b)/max(len(a),len(b)).
func editRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes edit distance with the two-row dynamic program.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
