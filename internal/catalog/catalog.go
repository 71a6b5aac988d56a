package catalog

import (
	"errors"
	"sort"
	"strings"
)

// ErrNotFound is returned when a requested item does not exist.
var ErrNotFound = errors.New("item not found")

// Item is a catalog entry. The catalog collaborator owns writes; within this
// core items are read-only. FloorPrice is the absolute minimum the item may be
// sold at after any discount, and FloorPrice <= Price always holds for items
// admitted into a Snapshot.
type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	FloorPrice  float64   `json:"floorPrice"`
	Tags        []string  `json:"tags,omitempty"`
	Description string    `json:"description,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"` // cached; nil when the provider has not embedded it yet
}

// SearchText returns the concatenated text the keyword index and the
// substring fallback operate on.
func (it Item) SearchText() string {
	parts := make([]string, 0, 4+len(it.Tags))
	parts = append(parts, it.Name, it.Category)
	parts = append(parts, it.Tags...)
	parts = append(parts, it.Description)
	return strings.Join(parts, " ")
}

// Snapshot is an immutable view of the catalog taken at session open. The
// keyword index is built over the same snapshot, so ranked ids always resolve.
type Snapshot struct {
	items []Item
	byID  map[string]int
}

// NewSnapshot builds a Snapshot preserving corpus order.
func NewSnapshot(items []Item) *Snapshot {
	s := &Snapshot{
		items: make([]Item, len(items)),
		byID:  make(map[string]int, len(items)),
	}
	copy(s.items, items)
	for i, it := range s.items {
		s.byID[it.ID] = i
	}
	return s
}

// Items returns all items in corpus order.
func (s *Snapshot) Items() []Item {
	return s.items
}

// Len returns the number of items in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.items)
}

// Get returns the item with the given id.
func (s *Snapshot) Get(id string) (Item, error) {
	i, ok := s.byID[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return s.items[i], nil
}

// Categories returns the distinct lowercase category names in the snapshot.
func (s *Snapshot) Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, it := range s.items {
		c := strings.ToLower(it.Category)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// HasCategory reports whether the snapshot contains the given category
// (case-insensitive).
func (s *Snapshot) HasCategory(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, it := range s.items {
		if strings.ToLower(it.Category) == name {
			return true
		}
	}
	return false
}

// SubstringMatch is an item matched by the emergency fallback search.
type SubstringMatch struct {
	Item  Item
	Score float64
}

// SubstringSearch is the last rung of the retrieval fallback chain: a plain
// substring pass over name/category/tags/description. A match at position i
// scores 1/(i+1), so earlier matches rank higher. May legitimately return
// nothing.
func (s *Snapshot) SubstringSearch(query string) []SubstringMatch {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var matches []SubstringMatch
	for _, it := range s.items {
		text := strings.ToLower(it.SearchText())
		idx := strings.Index(text, q)
		if idx < 0 {
			continue
		}
		matches = append(matches, SubstringMatch{Item: it, Score: 1.0 / float64(idx+1)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// MatchByName resolves a free-text item reference to a single item for
// add-to-cart. Exact name matches win; otherwise the longest name containment
// wins. References that are only a bare category word are rejected so "shoes"
// does not silently add the first pair of shoes.
func (s *Snapshot) MatchByName(ref string) (Item, bool) {
	q := strings.ToLower(strings.TrimSpace(ref))
	if q == "" {
		return Item{}, false
	}

	// Bare category words are not item references.
	if s.HasCategory(q) {
		return Item{}, false
	}

	var best Item
	bestLen := -1
	for _, it := range s.items {
		name := strings.ToLower(it.Name)
		if name == q {
			return it, true
		}
		if strings.Contains(name, q) || strings.Contains(q, name) {
			if len(name) > bestLen {
				best = it
				bestLen = len(name)
			}
		}
	}
	if bestLen < 0 {
		return Item{}, false
	}
	return best, true
}

// FilterCategory returns the items whose category equals name
// (case-insensitive). An empty name passes everything through.
func FilterCategory(items []Item, name string) []Item {
	if strings.TrimSpace(name) == "" {
		return items
	}
	want := strings.ToLower(strings.TrimSpace(name))
	var out []Item
	for _, it := range items {
		if strings.ToLower(it.Category) == want {
			out = append(out, it)
		}
	}
	return out
}

// FilterPrice keeps items with min <= price <= max. Nil bounds are open.
func FilterPrice(items []Item, min, max *float64) []Item {
	if min == nil && max == nil {
		return items
	}
	var out []Item
	for _, it := range items {
		if min != nil && it.Price < *min {
			continue
		}
		if max != nil && it.Price > *max {
			continue
		}
		out = append(out, it)
	}
	return out
}
