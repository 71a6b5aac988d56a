package retrieval

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/tessler/haggle/internal/catalog"
)

// fakeEmbedClient returns a canned vector or error.
type fakeEmbedClient struct {
	vec []float32
	err error
}

func (f *fakeEmbedClient) Embed(ctx context.Context, model, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func newTestSearcher(items []catalog.Item, embed EmbedClient) *Searcher {
	snap := catalog.NewSnapshot(items)
	return NewSearcher(snap, NewEmbedder(embed, "test-embed", time.Second), 0.3, 1.5, 0.75, 60, 10)
}

// embeddingWithSimilarity builds a unit-ish 2d vector whose cosine similarity
// to [1, 0] is exactly sim.
func embeddingWithSimilarity(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func TestSearchHybridWhenBothLegsHit(t *testing.T) {
	items := []catalog.Item{
		{ID: "i1", Name: "Denim Jacket", Category: "Outerwear", Price: 120, FloorPrice: 90, Embedding: embeddingWithSimilarity(0.9)},
		{ID: "i2", Name: "Denim Shirt", Category: "Tops", Price: 60, FloorPrice: 40, Embedding: embeddingWithSimilarity(0.5)},
	}
	s := newTestSearcher(items, &fakeEmbedClient{vec: []float32{1, 0}})

	res := s.Search(context.Background(), Query{Text: "denim jacket"})
	if res.Method != MethodHybrid {
		t.Fatalf("method = %s, want hybrid", res.Method)
	}
	if len(res.Items) == 0 || res.Items[0].ID != "i1" {
		t.Errorf("top item = %v, want i1", res.Items)
	}
	if res.KeywordMatches == 0 || res.VectorMatches == 0 {
		t.Errorf("match counts = kw %d vec %d, want both > 0", res.KeywordMatches, res.VectorMatches)
	}
}

func TestSearchVectorOnly(t *testing.T) {
	// Scenario: the query shares no token with any document, but one item is
	// semantically close; a pricier semantic match is excluded by the price cap.
	items := []catalog.Item{
		{ID: "blazer", Name: "Suede Blazer", Category: "Outerwear", Price: 240, FloorPrice: 180, Embedding: embeddingWithSimilarity(0.42)},
		{ID: "overcoat", Name: "Moto Overcoat", Category: "Outerwear", Price: 350, FloorPrice: 260, Embedding: embeddingWithSimilarity(0.6)},
	}
	s := newTestSearcher(items, &fakeEmbedClient{vec: []float32{1, 0}})

	maxPrice := 300.0
	res := s.Search(context.Background(), Query{Text: "leather jacket under budget", MaxPrice: &maxPrice})
	if res.Method != MethodVector {
		t.Fatalf("method = %s, want vector", res.Method)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "blazer" {
		t.Fatalf("items = %v, want only blazer", res.Items)
	}
}

func TestSearchKeywordOnlyWhenEmbedderFails(t *testing.T) {
	items := []catalog.Item{
		{ID: "i1", Name: "Denim Jacket", Category: "Outerwear", Price: 120, FloorPrice: 90},
	}
	s := newTestSearcher(items, &fakeEmbedClient{err: fmt.Errorf("provider down")})

	res := s.Search(context.Background(), Query{Text: "denim jacket"})
	if res.Method != MethodKeyword {
		t.Fatalf("method = %s, want keyword", res.Method)
	}
	if len(res.Items) != 1 {
		t.Errorf("got %d items, want 1", len(res.Items))
	}
}

func TestSearchFallbackSubstring(t *testing.T) {
	// "pro" is too short to survive tokenization, so the keyword leg is empty
	// and there is no embedding; the substring pass still finds the item.
	items := []catalog.Item{
		{ID: "i1", Name: "Pro Racket", Category: "Sports", Price: 90, FloorPrice: 70},
	}
	s := newTestSearcher(items, &fakeEmbedClient{err: fmt.Errorf("provider down")})

	res := s.Search(context.Background(), Query{Text: "pr"})
	if res.Method != MethodFallback {
		t.Fatalf("method = %s, want fallback", res.Method)
	}
	if len(res.Items) != 1 || res.Items[0].ID != "i1" {
		t.Errorf("items = %v, want i1", res.Items)
	}
}

func TestSearchEmptyCatalog(t *testing.T) {
	s := newTestSearcher(nil, &fakeEmbedClient{err: fmt.Errorf("provider down")})

	res := s.Search(context.Background(), Query{Text: "anything"})
	if res.Method != MethodFallback {
		t.Errorf("method = %s, want fallback", res.Method)
	}
	if len(res.Items) != 0 {
		t.Errorf("got %d items from empty catalog, want 0", len(res.Items))
	}
}

func TestSearchCategoryFilterCaseInsensitive(t *testing.T) {
	items := []catalog.Item{
		{ID: "i1", Name: "Denim Jacket", Category: "Outerwear", Price: 120, FloorPrice: 90},
		{ID: "i2", Name: "Denim Cap", Category: "Accessories", Price: 25, FloorPrice: 15},
	}
	s := newTestSearcher(items, &fakeEmbedClient{err: fmt.Errorf("no vectors")})

	res := s.Search(context.Background(), Query{Text: "denim", Category: "OUTERWEAR"})
	if len(res.Items) != 1 || res.Items[0].ID != "i1" {
		t.Errorf("items = %v, want only i1", res.Items)
	}
}

func TestSearchTruncatesToMaxResults(t *testing.T) {
	var items []catalog.Item
	for i := 0; i < 30; i++ {
		items = append(items, catalog.Item{
			ID:    fmt.Sprintf("i%d", i),
			Name:  "Denim Jacket Variant",
			Price: 100, FloorPrice: 80,
		})
	}
	s := newTestSearcher(items, &fakeEmbedClient{err: fmt.Errorf("no vectors")})

	res := s.Search(context.Background(), Query{Text: "denim", MaxResults: 4})
	if len(res.Items) != 4 {
		t.Errorf("got %d items, want 4", len(res.Items))
	}

	res = s.Search(context.Background(), Query{Text: "denim"})
	if len(res.Items) != 10 {
		t.Errorf("got %d items with default cap, want 10", len(res.Items))
	}
}
