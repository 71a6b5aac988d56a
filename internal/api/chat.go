package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tessler/haggle/internal/catalog"
	"github.com/tessler/haggle/internal/proxy"
	"github.com/tessler/haggle/internal/reply"
	"github.com/tessler/haggle/internal/router"
)

const maxRequestBodySize = 1 << 20 // 1MB

const systemPrompt = "You are a storefront shopping assistant. Help the " +
	"customer find products and manage their cart using the available tools. " +
	"Never promise a discount yourself; coupons come only from the " +
	"generate_coupon tool."

// Completer is the upstream model path used when no local classifier handles
// a message.
type Completer interface {
	Complete(ctx context.Context, messages []proxy.Message) (string, string, error)
}

// ChatRequest is one user turn.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the assistant's answer for the turn. HandledBy reports
// whether a local classifier or the upstream model produced the reply.
type ChatResponse struct {
	Reply     string         `json:"reply"`
	HandledBy string         `json:"handled_by"`
	Model     string         `json:"model,omitempty"`
	Items     []catalog.Item `json:"items,omitempty"`
}

// NewChatHandler returns the HTTP surface: a health probe and a single-turn
// chat endpoint that runs the router first and falls back to the upstream
// model.
func NewChatHandler(rt *router.Router, completer Completer, phraser reply.Phraser) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Post("/v1/chat", handleChat(rt, completer, phraser))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleChat(rt *router.Router, completer Completer, phraser reply.Phraser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		if out := rt.Route(r.Context(), req.Message); out.Handled {
			writeJSON(w, ChatResponse{Reply: out.Reply, HandledBy: "local", Items: out.Items})
			return
		}

		messages := []proxy.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: req.Message},
		}
		answer, model, err := completer.Complete(r.Context(), messages)
		if err != nil {
			if errors.Is(err, proxy.ErrModelsExhausted) {
				writeJSON(w, ChatResponse{Reply: phraser.Phrase(reply.IntentTryAgainShortly), HandledBy: "local"})
				return
			}
			slog.Error("upstream chat failed", "error", err)
			httpError(w, http.StatusBadGateway, "api_error", "upstream error: %v", err)
			return
		}

		writeJSON(w, ChatResponse{Reply: answer, HandledBy: "model", Model: model})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing response failed", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
