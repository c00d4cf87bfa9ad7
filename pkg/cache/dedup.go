package cache

// Deduplicate partitions a research plan into (unique, duplicates) with a
// left-to-right scan: a query is a duplicate when its similarity to any
// previously kept query meets the threshold. First occurrences win and
// unique preserves plan order, so every plan entry lands in exactly one of
// the two outputs.
func Deduplicate(queries []string, threshold float64) (unique, duplicates []string) {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	unique = make([]string, 0, len(queries))
	duplicates = make([]string, 0)

	for _, q := range queries {
		isDup := false
		for _, kept := range unique {
			if Similarity(q, kept) >= threshold {
				isDup = true
				break
			}
		}
		if isDup {
			duplicates = append(duplicates, q)
		} else {
			unique = append(unique, q)
		}
	}
	return unique, duplicates
}
