package mood

// Distribution returns the percentage share of each category present in the
// sequence. The returned map contains only categories that occur at least
// once; it is empty for an empty input.
func Distribution(categories []Category) map[Category]float64 {
	if len(categories) == 0 {
		return map[Category]float64{}
	}

	counts := make(map[Category]int)
	for _, c := range categories {
		counts[c]++
	}

	total := float64(len(categories))
	dist := make(map[Category]float64, len(counts))
	for c, n := range counts {
		dist[c] = float64(n) / total * 100
	}
	return dist
}

// Dominant returns the category with the largest share of the distribution.
// Ties are broken by lexical category order so the result is deterministic.
// An empty distribution defaults to Thoughtful.
func Dominant(dist map[Category]float64) Category {
	if len(dist) == 0 {
		return Thoughtful
	}

	var best Category
	bestShare := -1.0
	for c, share := range dist {
		if share > bestShare || (share == bestShare && c < best) {
			best = c
			bestShare = share
		}
	}
	return best
}

// DisplayDistribution converts a distribution to display-name keys for
// API responses.
func DisplayDistribution(dist map[Category]float64) map[string]float64 {
	out := make(map[string]float64, len(dist))
	for c, share := range dist {
		out[c.Display()] = share
	}
	return out
}
