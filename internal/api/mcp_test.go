package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tessler/haggle/internal/cart"
	"github.com/tessler/haggle/internal/catalog"
	"github.com/tessler/haggle/internal/display"
	"github.com/tessler/haggle/internal/negotiation"
	"github.com/tessler/haggle/internal/retrieval"
)

// --- mocks ---

type mockSearcher struct {
	result  retrieval.Result
	queries []retrieval.Query
}

func (m *mockSearcher) Search(_ context.Context, q retrieval.Query) retrieval.Result {
	m.queries = append(m.queries, q)
	return m.result
}

// --- helpers ---

func apiTestItems() []catalog.Item {
	return []catalog.Item{
		{ID: "1", Name: "Denim Jacket", Category: "jackets", Price: 120, FloorPrice: 90},
		{ID: "2", Name: "Wool Scarf", Category: "accessories", Price: 40, FloorPrice: 30},
	}
}

func newTestMCPDeps(t *testing.T) (MCPDeps, *mockSearcher) {
	t.Helper()
	snap := catalog.NewSnapshot(apiTestItems())
	c := cart.New()
	searcher := &mockSearcher{}
	return MCPDeps{
		Snapshot: snap,
		Searcher: searcher,
		Cart:     c,
		Manager:  negotiation.NewManagerWithClock(c, negotiation.DefaultParams(), time.Now),
		Display:  display.NewState(),
	}, searcher
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// --- tests ---

func TestMCPSearchDefaults(t *testing.T) {
	deps, searcher := newTestMCPDeps(t)
	searcher.result = retrieval.Result{
		Items:   apiTestItems(),
		Method:  retrieval.MethodHybrid,
		Elapsed: 3 * time.Millisecond,
	}

	handler := mcpSearch(deps)
	result, err := handler(context.Background(), makeCallToolRequest("search", map[string]interface{}{
		"query": "warm jacket",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	if len(searcher.queries) != 1 {
		t.Fatalf("searcher called %d times, want 1", len(searcher.queries))
	}
	q := searcher.queries[0]
	if q.MaxResults != 10 {
		t.Errorf("maxResults defaulted to %d, want 10", q.MaxResults)
	}
	if q.MinPrice != nil || q.MaxPrice != nil {
		t.Error("absent price bounds should stay nil")
	}

	var out struct {
		Items  []catalog.Item `json:"items"`
		Method string         `json:"method"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatalf("unmarshalling result: %v", err)
	}
	if out.Method != "hybrid" || len(out.Items) != 2 {
		t.Errorf("result = %+v, want 2 hybrid items", out)
	}
}

func TestMCPSearchMissingQuery(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpSearch(deps)(context.Background(), makeCallToolRequest("search", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("handler returned Go error: %v", err)
	}
	if !result.IsError {
		t.Fatal("missing query did not produce a tool error")
	}
	if !strings.Contains(toolText(t, result), "need more detail") {
		t.Errorf("error text = %q", toolText(t, result))
	}
}

func TestMCPAddToCartByIDAndName(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpAddToCart(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("add_to_cart", map[string]interface{}{
		"itemRef": "1",
	}))
	if result.IsError {
		t.Fatalf("add by id failed: %s", toolText(t, result))
	}

	result, _ = handler(context.Background(), makeCallToolRequest("add_to_cart", map[string]interface{}{
		"itemRef":  "wool scarf",
		"quantity": 2,
	}))
	if result.IsError {
		t.Fatalf("add by name failed: %s", toolText(t, result))
	}

	lines := deps.Cart.Lines()
	if len(lines) != 2 {
		t.Fatalf("got %d cart lines, want 2", len(lines))
	}
	for _, l := range lines {
		if l.ItemID == "2" && l.Quantity != 2 {
			t.Errorf("scarf quantity = %d, want 2", l.Quantity)
		}
	}
}

func TestMCPAddToCartNotFound(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, _ := mcpAddToCart(deps)(context.Background(), makeCallToolRequest("add_to_cart", map[string]interface{}{
		"itemRef": "submarine",
	}))
	if result.IsError {
		t.Error("not-found must be an in-band reply, not a tool error")
	}
	if !strings.Contains(toolText(t, result), "not found") {
		t.Errorf("reply = %q, want not-found text", toolText(t, result))
	}
	if !deps.Cart.IsEmpty() {
		t.Error("cart mutated on not-found")
	}
}

func TestMCPGenerateCouponGated(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Cart.Add(apiTestItems()[0], 1)
	handler := mcpGenerateCoupon(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("generate_coupon", map[string]interface{}{
		"percent": 10,
		"reason":  "birthday",
	}))
	var out struct {
		Accepted bool   `json:"accepted"`
		Message  string `json:"message"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatalf("unmarshalling: %v", err)
	}
	if out.Accepted {
		t.Error("coupon granted without a negotiation")
	}
	if out.Message == "" {
		t.Error("rejection carried no counter-question")
	}
}

func TestMCPGenerateCouponClampedToFloor(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Cart.Add(apiTestItems()[0], 1) // 120 / floor 90 -> ceiling 25

	// Earn the coupon through the state machine first.
	deps.Manager.HandleTurn("any discount?")
	deps.Manager.HandleTurn("I definitely want it, buying today")
	deps.Manager.HandleTurn("yes, deal")

	result, _ := mcpGenerateCoupon(deps)(context.Background(), makeCallToolRequest("generate_coupon", map[string]interface{}{
		"percent": 80,
		"reason":  "student",
	}))
	var out struct {
		Accepted       bool   `json:"accepted"`
		Code           string `json:"code"`
		AppliedPercent int    `json:"appliedPercent"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatalf("unmarshalling: %v", err)
	}
	if !out.Accepted {
		t.Fatal("earned coupon was rejected")
	}
	if out.AppliedPercent > 25 {
		t.Errorf("applied percent %d exceeds the floor-derived ceiling", out.AppliedPercent)
	}
	if !strings.HasPrefix(out.Code, "STUDENT-") {
		t.Errorf("code = %q, want STUDENT- prefix", out.Code)
	}
}

func TestMCPUpdateDisplay(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpUpdateDisplay(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("update_display", map[string]interface{}{}))
	if !result.IsError {
		t.Error("empty update did not ask for more detail")
	}

	result, _ = handler(context.Background(), makeCallToolRequest("update_display", map[string]interface{}{
		"sort":     "price-high",
		"category": "jackets",
	}))
	if result.IsError {
		t.Fatalf("update failed: %s", toolText(t, result))
	}
	if mode, cat := deps.Display.Current(); mode != display.SortPriceHigh || cat != "jackets" {
		t.Errorf("display state = %q/%q", mode, cat)
	}
}
