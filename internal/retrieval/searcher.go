package retrieval

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tessler/haggle/internal/catalog"
)

// Method records which rung of the retrieval chain produced a result.
type Method string

const (
	MethodHybrid   Method = "hybrid"
	MethodVector   Method = "vector"
	MethodKeyword  Method = "keyword"
	MethodFallback Method = "fallback"
)

// Query is a search request. MaxResults defaults to 10; nil price bounds are
// open; an empty Category disables the category filter.
type Query struct {
	Text       string
	Category   string
	MinPrice   *float64
	MaxPrice   *float64
	MaxResults int
}

// Result is what a search turn hands back. Method reflects any degradation
// that occurred; the caller never sees retrieval errors.
type Result struct {
	Items          []catalog.Item
	Method         Method
	Elapsed        time.Duration
	VectorMatches  int
	KeywordMatches int
}

// Searcher coordinates the keyword ranker, the vector matcher and rank
// fusion over one immutable catalog snapshot, degrading through the chain
// hybrid → vector → keyword → substring fallback. It never returns an error:
// every stage failure collapses to "that stage found nothing".
type Searcher struct {
	snap     *catalog.Snapshot
	index    *KeywordIndex
	matcher  *VectorMatcher
	embedder *Embedder
	fusionK  int
	defaultK int
}

// NewSearcher builds the keyword index over the snapshot. fusionK is the RRF
// constant (canonical 60); defaultK the result cap when a query does not set
// one (canonical 10).
func NewSearcher(snap *catalog.Snapshot, embedder *Embedder, simFloor float64, k1, b float64, fusionK, defaultK int) *Searcher {
	items := snap.Items()
	docs := make([]Document, len(items))
	for i, it := range items {
		docs[i] = Document{ID: it.ID, Text: it.SearchText()}
	}
	if fusionK <= 0 {
		fusionK = 60
	}
	if defaultK <= 0 {
		defaultK = 10
	}
	return &Searcher{
		snap:     snap,
		index:    NewKeywordIndex(docs, k1, b),
		matcher:  NewVectorMatcher(simFloor),
		embedder: embedder,
		fusionK:  fusionK,
		defaultK: defaultK,
	}
}

// Search runs both retrieval legs in parallel, fuses or falls back, applies
// the metadata filters and truncates to the query's result cap.
func (s *Searcher) Search(ctx context.Context, q Query) Result {
	start := time.Now()

	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = s.defaultK
	}
	fetch := 2 * maxResults

	var keywordHits, vectorHits []Candidate
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		keywordHits = safeLeg("keyword", func() []Candidate {
			return s.index.Search(q.Text, fetch)
		})
		return nil
	})
	g.Go(func() error {
		vectorHits = safeLeg("vector", func() []Candidate {
			vec := s.embedder.Embed(gCtx, q.Text)
			if vec == nil {
				return nil
			}
			return s.matcher.Match(vec, s.snap.Items(), fetch)
		})
		return nil
	})
	g.Wait()

	var ranked []Candidate
	var method Method
	switch {
	case len(keywordHits) > 0 && len(vectorHits) > 0:
		ranked = FuseRanks(s.fusionK, keywordHits, vectorHits)
		method = MethodHybrid
	case len(vectorHits) > 0:
		ranked = vectorHits
		method = MethodVector
	case len(keywordHits) > 0:
		ranked = keywordHits
		method = MethodKeyword
	default:
		ranked = safeLeg("fallback", func() []Candidate {
			matches := s.snap.SubstringSearch(q.Text)
			out := make([]Candidate, len(matches))
			for i, m := range matches {
				out[i] = Candidate{ID: m.Item.ID, Rank: i, Score: m.Score}
			}
			return out
		})
		method = MethodFallback
	}

	items := make([]catalog.Item, 0, len(ranked))
	for _, c := range ranked {
		it, err := s.snap.Get(c.ID)
		if err != nil {
			continue
		}
		items = append(items, it)
	}

	items = catalog.FilterCategory(items, q.Category)
	items = catalog.FilterPrice(items, q.MinPrice, q.MaxPrice)
	if len(items) > maxResults {
		items = items[:maxResults]
	}

	return Result{
		Items:          items,
		Method:         method,
		Elapsed:        time.Since(start),
		VectorMatches:  len(vectorHits),
		KeywordMatches: len(keywordHits),
	}
}

// safeLeg runs one retrieval stage, converting a panic into an empty result
// so a bad stage degrades the chain instead of failing the turn.
func safeLeg(name string, fn func() []Candidate) (hits []Candidate) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("retrieval stage panicked, treating as empty", "stage", name, "panic", r)
			hits = nil
		}
	}()
	return fn()
}
