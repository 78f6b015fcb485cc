package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kardexlab/kardex/internal/ledger"
	"github.com/kardexlab/kardex/internal/testutil"
)

func setupLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	tdb, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	l, err := ledger.New(tdb.Pool, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestAllocateSequence(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	first, err := l.Allocate(ctx, "Soldadura")
	if err != nil {
		t.Fatalf("first Allocate: %v", err)
	}
	if first.VersionStr != "SOLDADURA_v1.0" {
		t.Errorf("first version = %q, want SOLDADURA_v1.0", first.VersionStr)
	}

	second, err := l.Allocate(ctx, "SOLDADURA")
	if err != nil {
		t.Fatalf("second Allocate: %v", err)
	}
	if second.VersionStr != "SOLDADURA_v1.1" {
		t.Errorf("second version = %q, want SOLDADURA_v1.1", second.VersionStr)
	}

	// A different category starts its own sequence.
	other, err := l.Allocate(ctx, "Pintura")
	if err != nil {
		t.Fatalf("Allocate pintura: %v", err)
	}
	if other.VersionStr != "PINTURA_v1.0" {
		t.Errorf("pintura version = %q, want PINTURA_v1.0", other.VersionStr)
	}
}

func TestAllocateMajorBump(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	if _, err := l.Allocate(ctx, "prensa"); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	bumped, err := l.Allocate(ctx, "prensa", ledger.WithMajorBump())
	if err != nil {
		t.Fatalf("Allocate with major bump: %v", err)
	}
	if bumped.VersionStr != "PRENSA_v2.0" {
		t.Errorf("bumped version = %q, want PRENSA_v2.0", bumped.VersionStr)
	}

	// Minor numbering continues from the new major.
	next, err := l.Allocate(ctx, "prensa")
	if err != nil {
		t.Fatalf("Allocate after bump: %v", err)
	}
	if next.VersionStr != "PRENSA_v2.1" {
		t.Errorf("next version = %q, want PRENSA_v2.1", next.VersionStr)
	}
}

func TestAllocateConcurrent(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	const workers = 8

	var wg sync.WaitGroup
	results := make([]ledger.Record, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = l.Allocate(ctx, "montaje")
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			// Losing all retries is acceptable under contention, but the
			// error must be the conflict sentinel.
			if !errors.Is(errs[i], ledger.ErrConflict) {
				t.Fatalf("worker %d: unexpected error: %v", i, errs[i])
			}
			continue
		}
		if seen[results[i].VersionStr] {
			t.Errorf("duplicate version allocated: %s", results[i].VersionStr)
		}
		seen[results[i].VersionStr] = true
	}
	if len(seen) == 0 {
		t.Fatal("no allocation succeeded")
	}
}

func TestHistoryAndGet(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	for range 3 {
		if _, err := l.Allocate(ctx, "corte"); err != nil {
			t.Fatalf("Allocate: %v", err)
		}
	}

	history, err := l.History(ctx, "corte", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(history))
	}
	// Newest pair first.
	if history[0].VersionStr != "CORTE_v1.2" {
		t.Errorf("history[0] = %q, want CORTE_v1.2", history[0].VersionStr)
	}

	rec, err := l.Get(ctx, "CORTE_v1.1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Major != 1 || rec.Minor != 1 {
		t.Errorf("Get returned (%d,%d), want (1,1)", rec.Major, rec.Minor)
	}

	if _, err := l.Get(ctx, "CORTE_v9.9"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Get unknown version: err = %v, want ErrNotFound", err)
	}
}

func TestStats(t *testing.T) {
	l := setupLedger(t)
	ctx := context.Background()

	for range 2 {
		if _, err := l.Allocate(ctx, "soldadura"); err != nil {
			t.Fatalf("Allocate: %v", err)
		}
	}
	if _, err := l.Allocate(ctx, "pintura"); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalVersions != 3 {
		t.Errorf("TotalVersions = %d, want 3", stats.TotalVersions)
	}
	if stats.TotalAreas != 2 {
		t.Errorf("TotalAreas = %d, want 2", stats.TotalAreas)
	}
	if len(stats.PerCategory) == 0 || stats.PerCategory[0].Category != "SOLDADURA" {
		t.Fatalf("PerCategory = %+v, want SOLDADURA first", stats.PerCategory)
	}
	if stats.PerCategory[0].Latest != "SOLDADURA_v1.1" {
		t.Errorf("latest = %q, want SOLDADURA_v1.1", stats.PerCategory[0].Latest)
	}
}
