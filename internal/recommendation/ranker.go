package recommendation

import "sort"

// Rank orders matches for presentation: estimated payout descending,
// ties broken by score descending, remaining ties by policy ID
// ascending. The ordering is fully determined by the input, so repeated
// calls over identical matches yield identical output.
//
// Matches scoring below the configured minimum are retained and flagged
// low-confidence rather than dropped, so the caller can still present
// them with a caveat.
func (e *Engine) Rank(matches []Match) []Match {
	ranked := make([]Match, len(matches))
	copy(ranked, matches)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].EstimatedPayout != ranked[j].EstimatedPayout {
			return ranked[i].EstimatedPayout > ranked[j].EstimatedPayout
		}
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].PolicyID < ranked[j].PolicyID
	})

	for i := range ranked {
		ranked[i].LowConfidence = ranked[i].Score < e.minScore
	}

	return ranked
}
