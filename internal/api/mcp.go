package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tessler/haggle/internal/cart"
	"github.com/tessler/haggle/internal/catalog"
	"github.com/tessler/haggle/internal/display"
	"github.com/tessler/haggle/internal/negotiation"
	"github.com/tessler/haggle/internal/retrieval"
)

// MCPSearcher abstracts catalog retrieval for the MCP layer.
type MCPSearcher interface {
	Search(ctx context.Context, q retrieval.Query) retrieval.Result
}

// MCPDeps holds the collaborators the tool handlers act on.
type MCPDeps struct {
	Snapshot *catalog.Snapshot
	Searcher MCPSearcher
	Cart     *cart.Cart
	Manager  *negotiation.Manager
	Display  *display.State
}

// NewMCPServer creates an MCP server exposing the storefront tools the
// upstream model may call during a conversation.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"haggle",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("haggle: catalog search, cart management, and negotiated coupons for a storefront assistant."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search",
			mcp.WithDescription("Search the product catalog with hybrid keyword/vector retrieval."),
			mcp.WithString("query", mcp.Description("Free-text search query"), mcp.Required()),
			mcp.WithString("category", mcp.Description("Restrict results to a category")),
			mcp.WithNumber("minPrice", mcp.Description("Minimum price, inclusive")),
			mcp.WithNumber("maxPrice", mcp.Description("Maximum price, inclusive")),
			mcp.WithNumber("maxResults", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("add_to_cart",
			mcp.WithDescription("Add a catalog item to the cart by id or fuzzy name."),
			mcp.WithString("itemRef", mcp.Description("Item id or free-text name"), mcp.Required()),
			mcp.WithNumber("quantity", mcp.Description("Quantity to add (default 1)")),
		),
		mcpAddToCart(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_coupon",
			mcp.WithDescription("Issue a discount coupon for the current cart. Only granted after a real negotiation."),
			mcp.WithNumber("percent", mcp.Description("Requested discount percent"), mcp.Required()),
			mcp.WithString("reason", mcp.Description("Reason for the discount, e.g. birthday")),
		),
		mcpGenerateCoupon(deps),
	)

	s.AddTool(
		mcp.NewTool("update_display",
			mcp.WithDescription("Update the storefront display sort order and category filter."),
			mcp.WithString("sort", mcp.Description("One of price-low, price-high, relevance")),
			mcp.WithString("category", mcp.Description("Category to filter the display to")),
		),
		mcpUpdateDisplay(deps),
	)

	return s
}

func mcpSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("need more detail: query is required"), nil
		}

		q := retrieval.Query{
			Text:       query,
			Category:   req.GetString("category", ""),
			MaxResults: req.GetInt("maxResults", 10),
		}
		if q.MaxResults <= 0 {
			q.MaxResults = 10
		}
		if v := req.GetFloat("minPrice", -1); v >= 0 {
			q.MinPrice = &v
		}
		if v := req.GetFloat("maxPrice", -1); v >= 0 {
			q.MaxPrice = &v
		}

		res := deps.Searcher.Search(ctx, q)

		type searchResult struct {
			Items         []catalog.Item `json:"items"`
			Method        string         `json:"method"`
			ElapsedTimeMs int64          `json:"elapsedTimeMs"`
		}
		items := res.Items
		if deps.Display != nil {
			items = deps.Display.Apply(items)
		}
		b, err := json.Marshal(searchResult{
			Items:         items,
			Method:        string(res.Method),
			ElapsedTimeMs: res.Elapsed.Milliseconds(),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddToCart(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ref, err := req.RequireString("itemRef")
		if err != nil {
			return mcpError("need more detail: itemRef is required"), nil
		}
		quantity := req.GetInt("quantity", 1)
		if quantity <= 0 {
			quantity = 1
		}

		item, lookupErr := deps.Snapshot.Get(ref)
		if lookupErr != nil {
			var ok bool
			item, ok = deps.Snapshot.MatchByName(ref)
			if !ok {
				return mcpText(fmt.Sprintf("not found: %s", ref)), nil
			}
		}

		if err := deps.Cart.Add(item, quantity); err != nil {
			return mcpError(fmt.Sprintf("cannot modify cart: %v", err)), nil
		}

		b, err := json.Marshal(item)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal item: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

// mcpGenerateCoupon enforces the negotiation gate: the upstream model cannot
// mint a coupon that the state machine has not earned, and any accepted
// percent is re-clamped to the floor-price ceiling.
func mcpGenerateCoupon(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		percent, err := req.RequireInt("percent")
		if err != nil {
			return mcpError("need more detail: percent is required"), nil
		}
		reason := req.GetString("reason", "")

		type couponResult struct {
			Accepted       bool   `json:"accepted"`
			Code           string `json:"code,omitempty"`
			AppliedPercent int    `json:"appliedPercent,omitempty"`
			Message        string `json:"message,omitempty"`
		}

		accepted, code, applied := deps.Manager.GenerateCoupon(percent, reason)
		out := couponResult{Accepted: accepted, Code: code, AppliedPercent: applied}
		if !accepted {
			out.Message = "not yet. How committed is the customer to buying today?"
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpUpdateDisplay(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sortBy := req.GetString("sort", "")
		category := req.GetString("category", "")
		if sortBy == "" && category == "" {
			return mcpError("need more detail: sort or category is required"), nil
		}
		deps.Display.Update(sortBy, category)

		mode, cat := deps.Display.Current()
		return mcpText(fmt.Sprintf("display updated: sort=%s category=%s", mode, cat)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
