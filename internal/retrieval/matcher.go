package retrieval

import (
	"math"
	"sort"

	"github.com/tessler/haggle/internal/catalog"
)

// VectorMatcher ranks catalog items by cosine similarity between a query
// embedding and each item's cached embedding. Items without a cached
// embedding are skipped.
type VectorMatcher struct {
	floor float64 // minimum admissible similarity
}

// NewVectorMatcher creates a matcher with the given similarity floor.
// A non-positive floor selects the canonical 0.3.
func NewVectorMatcher(floor float64) *VectorMatcher {
	if floor <= 0 {
		floor = 0.3
	}
	return &VectorMatcher{floor: floor}
}

// Match returns up to limit candidates with similarity >= the floor, sorted
// descending. A nil or zero query embedding yields no candidates.
func (m *VectorMatcher) Match(query []float32, items []catalog.Item, limit int) []Candidate {
	if len(query) == 0 {
		return nil
	}
	qNorm := norm(query)
	if qNorm == 0 {
		return nil
	}

	var hits []Candidate
	for _, it := range items {
		if len(it.Embedding) == 0 {
			continue
		}
		sim := cosine(query, it.Embedding, qNorm)
		if float64(sim) < m.floor {
			continue
		}
		hits = append(hits, Candidate{ID: it.ID, Score: float64(sim)})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	for i := range hits {
		hits[i].Rank = i
	}
	return hits
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes dot(a,b) / (aNorm * bNorm). aNorm is precomputed by the
// caller since the query vector is shared across the whole scan.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}
