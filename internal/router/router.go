package router

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tessler/haggle/internal/cart"
	"github.com/tessler/haggle/internal/catalog"
	"github.com/tessler/haggle/internal/display"
	"github.com/tessler/haggle/internal/negotiation"
	"github.com/tessler/haggle/internal/reply"
	"github.com/tessler/haggle/internal/retrieval"
)

const historyWindow = 3

// Outcome is the result of routing one message. Handled=false means no
// local classifier matched and the message should go to the upstream model
// through the tool bridge.
type Outcome struct {
	Handled bool
	Intent  reply.Intent
	Reply   string
	Items   []catalog.Item
}

// Searcher is the retrieval surface the router needs.
type Searcher interface {
	Search(ctx context.Context, q retrieval.Query) retrieval.Result
}

// Router classifies user messages with a fixed-priority chain of local
// heuristics. Each classifier either acts (cart mutation, display update,
// scripted reply) and halts, or passes the message down the chain.
type Router struct {
	manager  *negotiation.Manager
	cart     *cart.Cart
	snap     *catalog.Snapshot
	searcher Searcher
	display  *display.State
	phraser  reply.Phraser

	history []string
}

func New(m *negotiation.Manager, c *cart.Cart, snap *catalog.Snapshot, s Searcher, d *display.State, p reply.Phraser) *Router {
	return &Router{manager: m, cart: c, snap: snap, searcher: s, display: d, phraser: p}
}

// Route processes one message. The negotiation manager always sees the
// message first: it scores rudeness on every turn, consumes everything while
// a session is active, and opens a session on discount intent. Only when it
// passes does the rest of the chain run.
func (r *Router) Route(ctx context.Context, msg string) Outcome {
	defer r.remember(msg)
	lower := strings.ToLower(strings.TrimSpace(msg))

	if turn := r.manager.HandleTurn(msg); turn.Handled {
		return Outcome{Handled: true, Intent: turn.Intent, Reply: r.phraser.Phrase(turn.Intent, turn.Args...)}
	}

	switch {
	case matchGreeting(lower):
		return r.scripted(reply.IntentGreeting)
	case matchHelp(lower):
		return r.scripted(reply.IntentHelp)
	case matchShowCart(lower):
		return r.showCart()
	case matchCheckout(lower) && !r.recentDiscountContext():
		return r.checkout()
	}

	if sortBy, category, ok := matchDisplayCommand(lower); ok {
		r.display.Update(sortBy, category)
		return r.scripted(reply.IntentDisplayUpdated)
	}
	if name, ok := matchAddToCart(lower); ok {
		return r.addToCart(name)
	}
	if name, ok := matchRemoveFromCart(lower); ok {
		return r.removeFromCart(name)
	}
	if matchRecommendation(lower) {
		return r.recommend(ctx, msg)
	}
	if hasShoppingMarker(lower) {
		return r.search(ctx, msg)
	}

	return Outcome{}
}

func (r *Router) scripted(intent reply.Intent, args ...any) Outcome {
	return Outcome{Handled: true, Intent: intent, Reply: r.phraser.Phrase(intent, args...)}
}

func (r *Router) remember(msg string) {
	r.history = append(r.history, msg)
	if len(r.history) > historyWindow {
		r.history = r.history[len(r.history)-historyWindow:]
	}
}

// recentDiscountContext blocks checkout while a bargain is, or was just,
// on the table, so a mid-negotiation "buy now" cannot skip the state machine.
func (r *Router) recentDiscountContext() bool {
	if r.manager.Active() {
		return true
	}
	for _, h := range r.history {
		if negotiation.IsDiscountIntent(h) {
			return true
		}
	}
	return false
}

func (r *Router) showCart() Outcome {
	lines := r.cart.Lines()
	if len(lines) == 0 {
		return r.scripted(reply.IntentCartEmpty)
	}
	var sb strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&sb, "%dx %s - $%.2f\n", l.Quantity, l.Name, l.Price*float64(l.Quantity))
	}
	fmt.Fprintf(&sb, "Total: $%.2f", r.cart.DiscountedTotal())
	return r.scripted(reply.IntentCartSummary, sb.String())
}

func (r *Router) checkout() Outcome {
	if r.cart.IsEmpty() {
		return r.scripted(reply.IntentCartEmpty)
	}
	return r.scripted(reply.IntentCheckout, r.cart.DiscountedTotal())
}

func (r *Router) addToCart(name string) Outcome {
	item, ok := r.snap.MatchByName(name)
	if !ok {
		return r.scripted(reply.IntentItemNotFound, name)
	}
	if err := r.cart.Add(item, 1); err != nil {
		return r.scripted(reply.IntentNeedMoreDetail)
	}
	return r.scripted(reply.IntentCartAdded, item.Name)
}

func (r *Router) removeFromCart(name string) Outcome {
	for _, l := range r.cart.Lines() {
		if strings.Contains(strings.ToLower(l.Name), name) {
			if err := r.cart.Remove(l.ItemID); err != nil {
				return r.scripted(reply.IntentNeedMoreDetail)
			}
			return r.scripted(reply.IntentCartRemoved, l.Name)
		}
	}
	return r.scripted(reply.IntentItemNotFound, name)
}

func (r *Router) recommend(ctx context.Context, msg string) Outcome {
	res := r.searcher.Search(ctx, retrieval.Query{Text: msg, MaxResults: 3})
	if len(res.Items) == 0 {
		return r.scripted(reply.IntentNothingAvailable)
	}
	items := r.display.Apply(res.Items)
	return Outcome{
		Handled: true,
		Intent:  reply.IntentRecommendation,
		Reply:   r.phraser.Phrase(reply.IntentRecommendation, formatItems(items)),
		Items:   items,
	}
}

func (r *Router) search(ctx context.Context, msg string) Outcome {
	res := r.searcher.Search(ctx, retrieval.Query{Text: msg})
	if len(res.Items) == 0 {
		return r.scripted(reply.IntentNothingAvailable)
	}
	items := r.display.Apply(res.Items)
	return Outcome{
		Handled: true,
		Intent:  reply.IntentRecommendation,
		Reply:   r.phraser.Phrase(reply.IntentRecommendation, formatItems(items)),
		Items:   items,
	}
}

func formatItems(items []catalog.Item) string {
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s - $%.2f", it.Name, it.Price)
	}
	return sb.String()
}

// --- classifiers ---

var greetingRe = regexp.MustCompile(`^(hi|hey|hello|howdy|good (morning|afternoon|evening))\b`)

func matchGreeting(msg string) bool { return greetingRe.MatchString(msg) }

func matchHelp(msg string) bool {
	return strings.Contains(msg, "help") || strings.Contains(msg, "what can you do")
}

var showCartRe = regexp.MustCompile(`(?:show|view|see|open|what'?s in) (?:me )?(?:my |the )?cart`)

func matchShowCart(msg string) bool { return showCartRe.MatchString(msg) }

func matchCheckout(msg string) bool {
	return strings.Contains(msg, "checkout") ||
		strings.Contains(msg, "check out") ||
		strings.Contains(msg, "buy now") ||
		strings.Contains(msg, "place my order")
}

var sortRe = regexp.MustCompile(`sort(?: by)? (price[- ]?(?:low|high)|relevance|cheapest|priciest)`)

// matchDisplayCommand handles explicit sort/filter phrasing. It returns the
// raw sort and category tokens; normalization happens in the display package.
func matchDisplayCommand(msg string) (sortBy, category string, ok bool) {
	if m := sortRe.FindStringSubmatch(msg); m != nil {
		switch m[1] {
		case "cheapest", "price low", "price-low":
			sortBy = string(display.SortPriceLow)
		case "priciest", "price high", "price-high":
			sortBy = string(display.SortPriceHigh)
		default:
			sortBy = string(display.SortRelevance)
		}
		ok = true
	}
	if strings.Contains(msg, "cheapest first") {
		sortBy, ok = string(display.SortPriceLow), true
	}
	if strings.Contains(msg, "most expensive first") {
		sortBy, ok = string(display.SortPriceHigh), true
	}
	if m := filterRe.FindStringSubmatch(msg); m != nil {
		category, ok = strings.TrimSpace(m[1]), true
	}
	return sortBy, category, ok
}

var filterRe = regexp.MustCompile(`(?:filter(?: by)?|only show(?: me)?) (?:the )?([a-z ]+?)(?: category)?$`)

var addRe = regexp.MustCompile(`(?:add (?:the |a |an )?(.+?) to (?:my |the )?cart|i'?ll take (?:the |a |an )?(.+))$`)

func matchAddToCart(msg string) (string, bool) {
	m := addRe.FindStringSubmatch(msg)
	if m == nil {
		return "", false
	}
	name := m[1]
	if name == "" {
		name = m[2]
	}
	return strings.TrimSpace(name), true
}

var removeRe = regexp.MustCompile(`(?:remove|drop|delete) (?:the |a |an )?(.+?)(?: from (?:my |the )?cart)?$`)

func matchRemoveFromCart(msg string) (string, bool) {
	if !strings.Contains(msg, "remove") && !strings.Contains(msg, "drop") && !strings.Contains(msg, "delete") {
		return "", false
	}
	m := removeRe.FindStringSubmatch(msg)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func matchRecommendation(msg string) bool {
	return strings.Contains(msg, "recommend") ||
		strings.Contains(msg, "suggest") ||
		strings.Contains(msg, "what's popular") ||
		strings.Contains(msg, "what is popular")
}

// hasShoppingMarker gates the general-search fallthrough: only messages
// that clearly want products reach retrieval, everything else goes upstream.
func hasShoppingMarker(msg string) bool {
	markers := []string{
		"looking for", "do you have", "show me", "find me", "find a",
		"i need", "i want", "search for", "in stock",
	}
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
