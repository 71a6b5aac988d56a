package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// EmbedClient is the slice of the embedding provider this package needs.
type EmbedClient interface {
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

// Embedder produces query embeddings with a hard timeout. The provider being
// slow or down is a degradation, not a failure: Embed returns nil and the
// caller proceeds without vector results.
type Embedder struct {
	client  EmbedClient
	model   string
	timeout time.Duration
}

// NewEmbedder creates an Embedder using the given client and model name.
func NewEmbedder(client EmbedClient, model string, timeout time.Duration) *Embedder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Embedder{client: client, model: model, timeout: timeout}
}

// Embed returns the embedding for text, or nil when the provider errors or
// the timeout fires.
func (e *Embedder) Embed(ctx context.Context, text string) []float32 {
	if e.client == nil || text == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	vec, err := e.client.Embed(ctx, e.model, text)
	if err != nil {
		slog.Debug("query embedding unavailable, degrading to keyword search", "error", err)
		return nil
	}
	return vec
}

// EmbedBatch embeds multiple texts concurrently (bounded). Unlike Embed it
// returns errors: batch embedding is used for offline catalog warm-up where
// silent gaps would be data loss, not degradation.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.client.Embed(gCtx, e.model, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
