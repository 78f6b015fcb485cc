package testutil

import (
	"context"
	"log/slog"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// DiscardLogger returns a logger that drops all output. Use it to keep
// test output quiet; it is the same type as log.Logger.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// SetupEmbedder initializes a plugin-less Genkit instance and registers a
// MockEmbedder of the given dimension on it. Most store tests want exactly
// this pair.
func SetupEmbedder(t *testing.T, dim int) (*MockEmbedder, ai.Embedder) {
	t.Helper()

	g := genkit.Init(context.Background())
	if g == nil {
		t.Fatal("initializing genkit")
	}

	mock := NewMockEmbedder(dim)
	return mock, mock.Register(g)
}
