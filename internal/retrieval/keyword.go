package retrieval

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Candidate is a ranked search hit. Rank is 0-indexed within the list that
// produced it; Score is the producing ranker's raw score and is not
// comparable across rankers.
type Candidate struct {
	ID    string
	Rank  int
	Score float64
}

// Document is a unit of indexable text.
type Document struct {
	ID   string
	Text string
}

// KeywordIndex is a BM25 index over the catalog snapshot. It is built once
// per session open and treated as immutable afterwards.
type KeywordIndex struct {
	k1     float64
	b      float64
	ids    []string         // corpus order, used for tie-breaking
	tf     []map[string]int // per-document term frequencies
	lens   []int            // per-document token counts
	idf    map[string]float64
	avgLen float64
}

// NewKeywordIndex tokenizes the documents and precomputes idf and length
// statistics. k1 and b are the usual BM25 knobs; zero values select the
// canonical 1.5 / 0.75.
func NewKeywordIndex(docs []Document, k1, b float64) *KeywordIndex {
	if k1 <= 0 {
		k1 = 1.5
	}
	if b <= 0 {
		b = 0.75
	}

	ix := &KeywordIndex{
		k1:  k1,
		b:   b,
		ids: make([]string, len(docs)),
		tf:  make([]map[string]int, len(docs)),
		lens: make([]int, len(docs)),
		idf: make(map[string]float64),
	}

	df := make(map[string]int)
	var totalLen int
	for i, d := range docs {
		ix.ids[i] = d.ID
		tokens := Tokenize(d.Text)
		freq := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freq[tok]++
		}
		ix.tf[i] = freq
		ix.lens[i] = len(tokens)
		totalLen += len(tokens)
		for tok := range freq {
			df[tok]++
		}
	}

	n := float64(len(docs))
	if len(docs) > 0 {
		ix.avgLen = float64(totalLen) / n
	}
	for tok, d := range df {
		ix.idf[tok] = math.Log((n-float64(d)+0.5)/(float64(d)+0.5) + 1)
	}

	return ix
}

// Search scores every document against the query and returns up to k hits by
// descending BM25 score. Documents sharing no token with the query score
// exactly zero and are excluded. Ties keep corpus order.
func (ix *KeywordIndex) Search(query string, k int) []Candidate {
	terms := Tokenize(query)
	if len(terms) == 0 || len(ix.ids) == 0 {
		return nil
	}

	var hits []Candidate
	for i := range ix.ids {
		score := ix.score(terms, i)
		if score <= 0 {
			continue
		}
		hits = append(hits, Candidate{ID: ix.ids[i], Score: score})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	for i := range hits {
		hits[i].Rank = i
	}
	return hits
}

func (ix *KeywordIndex) score(terms []string, doc int) float64 {
	freq := ix.tf[doc]
	docLen := float64(ix.lens[doc])

	var score float64
	for _, term := range terms {
		tf := float64(freq[term])
		if tf == 0 {
			continue
		}
		idf := ix.idf[term]
		norm := 1 - ix.b + ix.b*(docLen/ix.avgLen)
		score += idf * (tf * (ix.k1 + 1)) / (tf + ix.k1*norm)
	}
	return score
}

// Tokenize lowercases, strips non-word characters, splits on the gaps, and
// discards tokens of length <= 2.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
