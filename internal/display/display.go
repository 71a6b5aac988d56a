package display

import (
	"sort"
	"strings"
	"sync"

	"github.com/tessler/haggle/internal/catalog"
)

// Sort is a storefront display ordering.
type Sort string

const (
	SortPriceLow  Sort = "price-low"
	SortPriceHigh Sort = "price-high"
	SortRelevance Sort = "relevance"
)

// ParseSort normalizes a sort argument; anything unrecognized falls back to
// relevance rather than erroring, matching the defensive tool contract.
func ParseSort(s string) Sort {
	switch Sort(strings.ToLower(strings.TrimSpace(s))) {
	case SortPriceLow:
		return SortPriceLow
	case SortPriceHigh:
		return SortPriceHigh
	default:
		return SortRelevance
	}
}

// State holds the current display preferences set through chat or the
// update_display tool. It is shared between the HTTP and MCP surfaces, so
// access is synchronized.
type State struct {
	mu       sync.Mutex
	sort     Sort
	category string
}

func NewState() *State {
	return &State{sort: SortRelevance}
}

// Update overwrites whichever fields are non-empty and leaves the rest.
func (s *State) Update(sortBy, category string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sortBy != "" {
		s.sort = ParseSort(sortBy)
	}
	if category != "" {
		s.category = category
	}
}

// Current returns the active sort and category filter.
func (s *State) Current() (Sort, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sort, s.category
}

// Apply orders a copy of items per the active sort. Relevance keeps the
// incoming (retrieval-ranked) order.
func (s *State) Apply(items []catalog.Item) []catalog.Item {
	s.mu.Lock()
	mode := s.sort
	s.mu.Unlock()

	out := make([]catalog.Item, len(items))
	copy(out, items)
	switch mode {
	case SortPriceLow:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	case SortPriceHigh:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	}
	return out
}
