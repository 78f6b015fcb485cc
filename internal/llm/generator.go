// Package llm wraps the text-generation capability behind a small
// interface so the orchestrator can degrade gracefully when the model is
// slow or down, and tests can substitute a deterministic fake.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"
)

// Generator produces a text completion for a prompt. Implementations may
// fail or time out; callers must treat failures as degraded paths, never
// hard errors of the surrounding operation.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// GenerateTimeout bounds a single generation call. The orchestrator never
// holds a store transaction while waiting on this.
const GenerateTimeout = 30 * time.Second

// Client is a Generator backed by a Genkit model.
//
// A rate limiter caps the request rate against the provider; callers
// blocked on the limiter still honor their context deadline.
type Client struct {
	g       *genkit.Genkit
	model   string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a Client for the given provider-qualified model name
// (e.g. "googleai/gemini-2.5-flash"). rps caps generation calls per
// second; zero or negative disables limiting.
func NewClient(g *genkit.Genkit, model string, rps float64, logger *slog.Logger) (*Client, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}

	return &Client{g: g, model: model, limiter: limiter, logger: logger}, nil
}

// Generate runs one completion with GenerateTimeout applied.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limiter: %w", err)
	}

	genCtx, cancel := context.WithTimeout(ctx, GenerateTimeout)
	defer cancel()

	opts := []ai.GenerateOption{
		ai.WithModelName(c.model),
		ai.WithPrompt(prompt),
	}
	if system != "" {
		opts = append(opts, ai.WithSystem(system))
	}

	start := time.Now()
	resp, err := genkit.Generate(genCtx, c.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}

	c.logger.Debug("completion generated",
		"model", c.model,
		"prompt_length", len(prompt),
		"duration", time.Since(start))
	return resp.Text(), nil
}
