package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// ErrModelsExhausted is returned when every model in the fallback list has
// failed. Callers surface this as a "try again shortly" reply; nothing on
// this path may grant a discount.
var ErrModelsExhausted = errors.New("all upstream models exhausted")

// ChatClient is the slice of Client the fallback caller needs.
type ChatClient interface {
	Chat(ctx context.Context, model string, messages []Message) (string, error)
}

// Caller walks an ordered model fallback list with a cursor advanced by
// error kind: rate-limit errors retry the same model with exponential
// backoff, not-found errors skip to the next model immediately, anything
// else aborts the turn.
type Caller struct {
	client     ChatClient
	models     []string
	maxRetries int
	backoff    time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewCaller creates a Caller over the given ordered model list.
func NewCaller(client ChatClient, models []string, maxRetries int, initialBackoff time.Duration) *Caller {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if initialBackoff <= 0 {
		initialBackoff = 500 * time.Millisecond
	}
	return &Caller{
		client:     client,
		models:     models,
		maxRetries: maxRetries,
		backoff:    initialBackoff,
		sleep:      sleepCtx,
	}
}

// Complete sends the conversation upstream, returning the reply and the model
// that produced it.
func (c *Caller) Complete(ctx context.Context, messages []Message) (reply string, model string, err error) {
	if len(c.models) == 0 {
		return "", "", ErrModelsExhausted
	}

	var lastErr error
	for _, m := range c.models {
		reply, err := c.completeWith(ctx, m, messages)
		if err == nil {
			return reply, m, nil
		}
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		if IsModelNotFound(err) {
			slog.Debug("model unavailable upstream, advancing", "model", m)
			lastErr = err
			continue
		}
		if IsRateLimit(err) {
			slog.Warn("model rate limited after retries, advancing", "model", m)
			lastErr = err
			continue
		}
		return "", "", fmt.Errorf("model %s: %w", m, err)
	}

	return "", "", fmt.Errorf("%w: %v", ErrModelsExhausted, lastErr)
}

// completeWith retries a single model on rate-limit errors with exponential
// backoff. Not-found returns immediately so the cursor can advance.
func (c *Caller) completeWith(ctx context.Context, model string, messages []Message) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		reply, err := c.client.Chat(ctx, model, messages)
		if err == nil {
			return reply, nil
		}
		if !IsRateLimit(err) {
			return "", err
		}

		lastErr = err
		if attempt < c.maxRetries-1 {
			backoff := time.Duration(float64(c.backoff) * math.Pow(2, float64(attempt)))
			if err := c.sleep(ctx, backoff); err != nil {
				return "", err
			}
		}
	}
	return "", lastErr
}
