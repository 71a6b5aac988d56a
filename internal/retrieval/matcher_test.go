package retrieval

import (
	"math"
	"testing"

	"github.com/tessler/haggle/internal/catalog"
)

func TestVectorMatcherAdmitsAboveFloor(t *testing.T) {
	items := []catalog.Item{
		{ID: "close", Embedding: []float32{1, 0}},
		{ID: "far", Embedding: []float32{0, 1}},
		{ID: "mid", Embedding: []float32{1, 1}},
		{ID: "unembedded"},
	}
	m := NewVectorMatcher(0.3)

	hits := m.Match([]float32{1, 0}, items, 10)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ID != "close" {
		t.Errorf("top hit = %s, want close", hits[0].ID)
	}
	if got, want := hits[1].Score, 1/math.Sqrt2; math.Abs(got-want) > 1e-6 {
		t.Errorf("mid similarity = %g, want %g", got, want)
	}
}

func TestVectorMatcherNilQuery(t *testing.T) {
	m := NewVectorMatcher(0.3)
	if hits := m.Match(nil, []catalog.Item{{ID: "a", Embedding: []float32{1}}}, 5); hits != nil {
		t.Errorf("got %v for nil query, want nil", hits)
	}
}

func TestVectorMatcherLimit(t *testing.T) {
	items := make([]catalog.Item, 5)
	for i := range items {
		items[i] = catalog.Item{ID: string(rune('a' + i)), Embedding: []float32{1, float32(i) * 0.01}}
	}
	m := NewVectorMatcher(0.3)

	hits := m.Match([]float32{1, 0}, items, 2)
	if len(hits) != 2 {
		t.Errorf("got %d hits, want limit 2", len(hits))
	}
}

func TestVectorMatcherDimensionMismatchScoresZero(t *testing.T) {
	items := []catalog.Item{{ID: "bad", Embedding: []float32{1, 2, 3}}}
	m := NewVectorMatcher(0.3)
	if hits := m.Match([]float32{1, 0}, items, 5); len(hits) != 0 {
		t.Errorf("got %d hits for mismatched dimensions, want 0", len(hits))
	}
}
