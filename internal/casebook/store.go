// Package casebook manages the knowledge base of resolved cases.
//
// Documents are embedded on write and searched by cosine distance with
// pgvector. The `<=>` operator returns 1 - cosine_similarity, a distance in
// [0,2] with 0 meaning identical, so relevance = 1 - d/2 maps it onto [0,1].
//
// Writes are immediately visible to subsequent searches on a single
// PostgreSQL backend. Callers should still treat search-after-persist as
// eventually consistent: a replicated or proxied deployment only provides
// read-your-writes if the backend itself does.
package casebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// EmbedTimeout bounds embedding calls so a slow embedder cannot hold a
// caller (or a pool connection) indefinitely.
const EmbedTimeout = 15 * time.Second

// Store persists and searches knowledge documents in PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines. Persist and
// Search are independently safe under concurrency: both are additive with
// no shared mutable counters.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a Store.
func New(pool *pgxpool.Pool, embedder ai.Embedder, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// embed generates a vector embedding for the given text.
func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	dim := VectorDimension
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}

// Search returns the cases most similar to query, ordered by descending
// relevance with the backend rank as stable tie break. Results below the
// configured minimum relevance are dropped. An empty store yields an empty
// slice without error.
//
// Search returns hard errors; the intake flow is responsible for degrading
// them to "no prior case found" (fail-open) and logging the failure.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]SimilarCase, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	vec, err := s.embed(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("query embedding timeout: %w", err)
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	var (
		sql  string
		args []any
	)
	if cfg.category != "" {
		filterJSON, marshalErr := json.Marshal(map[string]string{"category": cfg.category})
		if marshalErr != nil {
			return nil, fmt.Errorf("marshaling category filter: %w", marshalErr)
		}
		sql = `SELECT id, content, metadata, embedding <=> $1 AS distance
		       FROM documents
		       WHERE metadata @> $2
		       ORDER BY embedding <=> $1
		       LIMIT $3`
		args = []any{vec, filterJSON, cfg.limit}
	} else {
		sql = `SELECT id, content, metadata, embedding <=> $1 AS distance
		       FROM documents
		       ORDER BY embedding <=> $1
		       LIMIT $2`
		args = []any{vec, cfg.limit}
	}

	rows, err := s.pool.Query(queryCtx, sql, args...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var cases []SimilarCase
	rank := 0
	for rows.Next() {
		rank++
		var (
			sc           SimilarCase
			metadataJSON []byte
			distance     float64
		)
		if err := rows.Scan(&sc.ID, &sc.Content, &metadataJSON, &distance); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &sc.Metadata); err != nil {
			s.logger.Warn("failed to parse document metadata", "document_id", sc.ID, "error", err)
		}
		sc.Relevance = relevanceFromDistance(distance)
		sc.Rank = rank

		if sc.Relevance >= cfg.minRelevance {
			cases = append(cases, sc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}

	s.logger.Debug("similarity search",
		"results", len(cases), "scanned", rank, "min_relevance", cfg.minRelevance)
	return cases, nil
}

// relevanceFromDistance maps a cosine distance d in [0,2] to [0,1].
// Out-of-range distances (from float drift) clamp to the valid range.
func relevanceFromDistance(d float64) float64 {
	r := 1 - d/2
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// Persist stores a rendered knowledge document and returns its id.
// When id is empty, one is assigned from the timestamp plus a random
// disambiguator so same-second persists cannot collide. The metadata
// timestamp defaults to now.
func (s *Store) Persist(ctx context.Context, id, content string, meta Metadata) (string, error) {
	if content == "" {
		return "", fmt.Errorf("%w: content must not be empty", ErrValidation)
	}
	if err := meta.validate(); err != nil {
		return "", err
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	if id == "" {
		id = fmt.Sprintf("kb_%s_%s",
			meta.Timestamp.Format("20060102_150405"),
			uuid.NewString()[:8])
	}

	embedCtx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	vec, err := s.embed(embedCtx, content)
	if err != nil {
		return "", fmt.Errorf("embedding document: %w", err)
	}

	metadataJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshaling metadata: %w", err)
	}

	// Upsert keeps re-persisting an incidence idempotent on its fixed id.
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (id, content, embedding, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET content = EXCLUDED.content,
		     embedding = EXCLUDED.embedding,
		     metadata = EXCLUDED.metadata`,
		id, content, vec, metadataJSON, meta.Timestamp)
	if err != nil {
		return "", fmt.Errorf("persisting document %q: %w", id, err)
	}

	s.logger.Debug("persisted knowledge document",
		"id", id, "category", meta.Category, "version", meta.Version,
		"content_length", len(content))
	return id, nil
}

// Count returns the total number of stored knowledge documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}

// CountByCategory returns document counts keyed by category.
func (s *Store) CountByCategory(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT COALESCE(metadata->>'category', ''), COUNT(*)
		 FROM documents
		 GROUP BY metadata->>'category'`)
	if err != nil {
		return nil, fmt.Errorf("counting documents by category: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("scanning category count: %w", err)
		}
		counts[category] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating category counts: %w", err)
	}
	return counts, nil
}
