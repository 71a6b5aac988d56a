package retrieval

import "sort"

// FuseRanks merges independently ranked candidate lists with reciprocal rank
// fusion: each list contributes 1/(k + rank + 1) per id, ranks 0-indexed. An
// id absent from a list simply receives no contribution from it, so only rank
// positions matter and the lists' raw score scales never need normalizing.
// Output is sorted by non-increasing fused score, ties by id for determinism.
func FuseRanks(k int, lists ...[]Candidate) []Candidate {
	if k <= 0 {
		k = 60
	}

	totals := make(map[string]float64)
	for _, list := range lists {
		for _, c := range list {
			totals[c.ID] += 1.0 / float64(k+c.Rank+1)
		}
	}
	if len(totals) == 0 {
		return nil
	}

	fused := make([]Candidate, 0, len(totals))
	for id, score := range totals {
		fused = append(fused, Candidate{ID: id, Score: score})
	}
	sort.Slice(fused, func(a, b int) bool {
		if fused[a].Score != fused[b].Score {
			return fused[a].Score > fused[b].Score
		}
		return fused[a].ID < fused[b].ID
	})
	for i := range fused {
		fused[i].Rank = i
	}
	return fused
}
