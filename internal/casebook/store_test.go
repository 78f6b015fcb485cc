package casebook_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/kardexlab/kardex/internal/casebook"
	"github.com/kardexlab/kardex/internal/testutil"
)

// unitVec returns a 768-dim unit vector whose cosine similarity with the
// query axis (first component) is cos.
func unitVec(cos float64) []float32 {
	v := make([]float32, casebook.VectorDimension)
	v[0] = float32(cos)
	v[1] = float32(math.Sqrt(1 - cos*cos))
	return v
}

// queryVec is the axis all test similarities are measured against.
func queryVec() []float32 {
	v := make([]float32, casebook.VectorDimension)
	v[0] = 1
	return v
}

func setupStore(t *testing.T) (*casebook.Store, *testutil.MockEmbedder) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tdb, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	mock, embedder := testutil.SetupEmbedder(t, int(casebook.VectorDimension))

	store, err := casebook.New(tdb.Pool, embedder, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store, mock
}

func TestPersistAndSearch(t *testing.T) {
	store, mock := setupStore(t)
	ctx := context.Background()

	mock.SetVector("query", queryVec())
	mock.SetVector("close case", unitVec(0.9))   // relevance 0.95
	mock.SetVector("mid case", unitVec(0.2))     // relevance 0.60
	mock.SetVector("far case", unitVec(-0.4))    // relevance 0.30, below floor
	mock.SetVector("other topic", unitVec(-0.9)) // relevance 0.05

	meta := func(version string) casebook.Metadata {
		return casebook.Metadata{Category: "SOLDADURA", Version: version}
	}
	for _, doc := range []struct{ id, content, version string }{
		{"d1", "close case", "SOLDADURA_v1.0"},
		{"d2", "mid case", "SOLDADURA_v1.1"},
		{"d3", "far case", "SOLDADURA_v1.2"},
		{"d4", "other topic", "SOLDADURA_v1.3"},
	} {
		if _, err := store.Persist(ctx, doc.id, doc.content, meta(doc.version)); err != nil {
			t.Fatalf("Persist %s: %v", doc.id, err)
		}
	}

	cases, err := store.Search(ctx, "query")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("len(cases) = %d, want 2 (below-floor results dropped)", len(cases))
	}
	if cases[0].ID != "d1" || cases[1].ID != "d2" {
		t.Errorf("order = [%s %s], want [d1 d2]", cases[0].ID, cases[1].ID)
	}
	if cases[0].Relevance < 0.94 || cases[0].Relevance > 0.96 {
		t.Errorf("top relevance = %v, want ~0.95", cases[0].Relevance)
	}
	if cases[0].Rank != 1 || cases[1].Rank != 2 {
		t.Errorf("ranks = %d,%d, want 1,2", cases[0].Rank, cases[1].Rank)
	}
	if cases[0].Metadata.Version != "SOLDADURA_v1.0" {
		t.Errorf("metadata version = %q", cases[0].Metadata.Version)
	}
}

func TestSearchEmptyStore(t *testing.T) {
	store, mock := setupStore(t)
	mock.SetVector("anything", queryVec())

	cases, err := store.Search(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Search on empty store: %v", err)
	}
	if len(cases) != 0 {
		t.Errorf("len(cases) = %d, want 0", len(cases))
	}
}

func TestSearchCategoryFilter(t *testing.T) {
	store, mock := setupStore(t)
	ctx := context.Background()

	mock.SetVector("query", queryVec())
	mock.SetVector("weld doc", unitVec(0.8))
	mock.SetVector("paint doc", unitVec(0.8))

	if _, err := store.Persist(ctx, "w1", "weld doc",
		casebook.Metadata{Category: "SOLDADURA", Version: "SOLDADURA_v1.0"}); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if _, err := store.Persist(ctx, "p1", "paint doc",
		casebook.Metadata{Category: "PINTURA", Version: "PINTURA_v1.0"}); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	cases, err := store.Search(ctx, "query", casebook.WithCategory("PINTURA"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(cases) != 1 || cases[0].ID != "p1" {
		t.Fatalf("filtered search = %+v, want only p1", cases)
	}
}

func TestPersistValidation(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	_, err := store.Persist(ctx, "", "", casebook.Metadata{Category: "X", Version: "X_v1.0"})
	if !errors.Is(err, casebook.ErrValidation) {
		t.Errorf("empty content: err = %v, want ErrValidation", err)
	}

	_, err = store.Persist(ctx, "", "content", casebook.Metadata{Version: "X_v1.0"})
	if !errors.Is(err, casebook.ErrValidation) {
		t.Errorf("missing category: err = %v, want ErrValidation", err)
	}

	_, err = store.Persist(ctx, "", "content", casebook.Metadata{Category: "X"})
	if !errors.Is(err, casebook.ErrValidation) {
		t.Errorf("missing version: err = %v, want ErrValidation", err)
	}
}

func TestPersistUpsertAndAutoID(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	meta := casebook.Metadata{
		Category:  "SOLDADURA",
		Version:   "SOLDADURA_v1.0",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	// Auto-assigned id carries the timestamp prefix.
	id, err := store.Persist(ctx, "", "first body", meta)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if !strings.HasPrefix(id, "kb_20260101_000000_") {
		t.Errorf("auto id = %q, want kb_<timestamp>_<suffix>", id)
	}

	// Re-persisting the same id replaces, never duplicates.
	if _, err := store.Persist(ctx, id, "second body", meta); err != nil {
		t.Fatalf("re-Persist: %v", err)
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("Count = %d, want 1 after upsert", count)
	}
}

func TestCountByCategory(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	for i, cat := range []string{"SOLDADURA", "SOLDADURA", "PINTURA"} {
		meta := casebook.Metadata{Category: cat, Version: cat + "_v1." + string(rune('0'+i))}
		if _, err := store.Persist(ctx, "", "doc body", meta); err != nil {
			t.Fatalf("Persist: %v", err)
		}
	}

	counts, err := store.CountByCategory(ctx)
	if err != nil {
		t.Fatalf("CountByCategory: %v", err)
	}
	if counts["SOLDADURA"] != 2 || counts["PINTURA"] != 1 {
		t.Errorf("counts = %v, want SOLDADURA:2 PINTURA:1", counts)
	}
}

func TestSearchEmbedderDown(t *testing.T) {
	store, mock := setupStore(t)
	mock.Err = errors.New("embedder unavailable")

	if _, err := store.Search(context.Background(), "query"); err == nil {
		t.Fatal("Search with broken embedder should fail")
	}
}
