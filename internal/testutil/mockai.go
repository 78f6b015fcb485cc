package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockGenerator is a deterministic llm.Generator for tests. It matches
// prompts against registered substrings and returns the paired response;
// unmatched prompts get the fallback. Set Err to simulate a model outage.
//
// Thread-safe for concurrent use.
type MockGenerator struct {
	mu        sync.Mutex
	responses []generatorRule
	fallback  string
	calls     []GeneratorCall

	// Err, when non-nil, is returned by every Generate call.
	Err error
}

type generatorRule struct {
	pattern  string
	response string
}

// GeneratorCall records one Generate invocation.
type GeneratorCall struct {
	System string
	Prompt string
}

// NewMockGenerator creates a MockGenerator with the given fallback text.
func NewMockGenerator(fallback string) *MockGenerator {
	return &MockGenerator{fallback: fallback}
}

// AddResponse registers a pattern-response pair. Patterns match
// case-insensitively as substrings of the prompt; first match wins.
func (m *MockGenerator) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, generatorRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// Generate implements llm.Generator.
func (m *MockGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, GeneratorCall{System: system, Prompt: prompt})

	if m.Err != nil {
		return "", fmt.Errorf("mock generator: %w", m.Err)
	}

	lower := strings.ToLower(prompt)
	for _, rule := range m.responses {
		if strings.Contains(lower, rule.pattern) {
			return rule.response, nil
		}
	}
	return m.fallback, nil
}

// Calls returns a copy of all recorded calls.
func (m *MockGenerator) Calls() []GeneratorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]GeneratorCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// MockEmbedder provides deterministic embedding vectors for tests.
//
// By default it derives a unit vector from the SHA-256 of the content, so
// identical text always embeds identically. Explicit vectors can be
// registered for precise cosine similarity control. Set Err to simulate an
// embedder outage.
//
// Thread-safe for concurrent use.
type MockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	dim     int

	// Err, when non-nil, is returned by every Embed call.
	Err error
}

// NewMockEmbedder creates a MockEmbedder producing vectors of dim
// dimensions.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{
		vectors: make(map[string][]float32),
		dim:     dim,
	}
}

// SetVector registers an explicit vector for a content string. Use this to
// control the exact cosine similarity between test inputs.
func (e *MockEmbedder) SetVector(content string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[content] = vec
}

// Register registers the mock as a Genkit embedder named
// "mock/test-embedder".
func (e *MockEmbedder) Register(g *genkit.Genkit) ai.Embedder {
	return genkit.DefineEmbedder(g, "mock/test-embedder", &ai.EmbedderOptions{
		Label:      "Mock Test Embedder",
		Dimensions: e.dim,
	}, e.embed)
}

func (e *MockEmbedder) embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.mu.Lock()
	err := e.Err
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("mock embedder: %w", err)
	}

	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		embeddings[i] = &ai.Embedding{
			Embedding: e.vectorFor(documentText(doc)),
		}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func (e *MockEmbedder) vectorFor(content string) []float32 {
	e.mu.Lock()
	if v, ok := e.vectors[content]; ok {
		e.mu.Unlock()
		return v
	}
	e.mu.Unlock()

	return deterministicVector(content, e.dim)
}

// documentText extracts the text parts of a Document.
func documentText(doc *ai.Document) string {
	var sb strings.Builder
	for _, p := range doc.Content {
		if p.Kind == ai.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// deterministicVector derives a normalized vector from the SHA-256 of
// content. The same content always produces the same vector.
func deterministicVector(content string, dim int) []float32 {
	hash := sha256.Sum256([]byte(content))
	vec := make([]float32, dim)

	for i := range vec {
		idx := (i * 4) % len(hash)
		bits := binary.LittleEndian.Uint32([]byte{
			hash[idx%32],
			hash[(idx+1)%32],
			hash[(idx+2)%32],
			hash[(idx+3)%32],
		})
		vec[i] = (float32(bits)/float32(math.MaxUint32))*2 - 1
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
