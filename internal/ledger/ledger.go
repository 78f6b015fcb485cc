// Package ledger allocates and tracks knowledge versions per category.
//
// Every resolved case receives a version string of the form
// {CATEGORY}_v{major}.{minor} (e.g. SOLDADURA_v1.2). For a fixed category
// the (major, minor) pairs are strictly increasing and unique: the
// UNIQUE(category, major, minor) constraint in the database is the single
// source of truth, so allocation is correct across any number of concurrent
// process instances without in-memory locking.
//
// Allocation reads the latest pair inside a transaction, inserts the next
// pair, and retries a bounded number of times when a concurrent allocator
// wins the insert race (SQLSTATE 23505). After exhausting retries it
// surfaces ErrConflict.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrConflict is returned when allocation keeps losing the insert race
// after allocateRetries attempts.
var ErrConflict = errors.New("version allocation conflict")

// ErrNotFound is returned when a requested version does not exist.
var ErrNotFound = errors.New("version not found")

// allocateRetries bounds the read-allocate-insert retry loop.
const allocateRetries = 3

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint errors.
const uniqueViolation = "23505"

// Record is a single allocated version.
type Record struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	Major       int       `json:"major"`
	Minor       int       `json:"minor"`
	VersionStr  string    `json:"version"`
	IncidenceID string    `json:"incidence_id,omitempty"` // empty when not tied to an incidence
	CreatedAt   time.Time `json:"created_at"`
}

// CategoryCount summarizes the versions of one category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
	Latest   string `json:"latest"`
}

// Stats summarizes the whole ledger.
type Stats struct {
	TotalVersions int             `json:"total_versions"`
	TotalAreas    int             `json:"total_areas"`
	PerCategory   []CategoryCount `json:"per_category,omitempty"`
}

// recordCols is the standard SELECT column list for scanRecords.
const recordCols = `id, category, major, minor, version_str,
	COALESCE(incidence_id::text, ''), created_at`

// Ledger allocates versions backed by PostgreSQL.
//
// Ledger is safe for concurrent use by multiple goroutines and multiple
// process instances.
type Ledger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Ledger.
func New(pool *pgxpool.Pool, logger *slog.Logger) (*Ledger, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{pool: pool, logger: logger}, nil
}

// Normalize maps a free-form category name to its canonical ledger key:
// uppercase, every rune outside [A-Z0-9] replaced with '_'. Deterministic
// and total; idempotent by construction.
//
//	Normalize("Soldadura") == "SOLDADURA"
//	Normalize("Línea 3 ")  == "L_NEA_3_"
func Normalize(category string) string {
	upper := strings.ToUpper(category)
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// AllocateOption configures a single allocation.
type AllocateOption func(*allocateConfig)

type allocateConfig struct {
	majorBump   bool
	incidenceID string
}

// WithMajorBump allocates (major+1, 0) instead of (major, minor+1).
// No flow in the resolution path sets this today; every resolution is a
// minor revision. The option exists so "new problem type" can be expressed
// explicitly by a future caller rather than inferred.
func WithMajorBump() AllocateOption {
	return func(c *allocateConfig) { c.majorBump = true }
}

// WithIncidence ties the allocated version to an incidence id.
func WithIncidence(incidenceID string) AllocateOption {
	return func(c *allocateConfig) { c.incidenceID = incidenceID }
}

// Allocate assigns the next version for category and persists the record.
//
// The first allocation of a category yields {CATEGORY}_v1.0; subsequent
// allocations bump minor. The read and insert run in one transaction; on a
// unique violation the whole sequence retries with fresh reads, bounded by
// allocateRetries. Once Allocate returns a version string it is never
// reissued, even if the caller later fails — numbering gaps are tolerated,
// duplicates are not.
func (l *Ledger) Allocate(ctx context.Context, category string, opts ...AllocateOption) (Record, error) {
	cfg := allocateConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	key := Normalize(category)

	var lastErr error
	for attempt := 0; attempt < allocateRetries; attempt++ {
		rec, err := l.tryAllocate(ctx, key, cfg)
		if err == nil {
			l.logger.Debug("version allocated",
				"category", key, "version", rec.VersionStr, "attempt", attempt+1)
			return rec, nil
		}
		if !isUniqueViolation(err) {
			return Record{}, err
		}
		lastErr = err
		l.logger.Debug("allocation lost insert race, retrying",
			"category", key, "attempt", attempt+1)
	}

	return Record{}, fmt.Errorf("%w: category %q after %d attempts: %v",
		ErrConflict, key, allocateRetries, lastErr)
}

// tryAllocate performs one read-allocate-insert round in a transaction.
func (l *Ledger) tryAllocate(ctx context.Context, key string, cfg allocateConfig) (Record, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			l.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	var major, minor int
	err = tx.QueryRow(ctx,
		`SELECT major, minor FROM versions
		 WHERE category = $1
		 ORDER BY major DESC, minor DESC
		 LIMIT 1`, key).Scan(&major, &minor)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		major, minor = 1, 0
	case err != nil:
		return Record{}, fmt.Errorf("reading latest version: %w", err)
	case cfg.majorBump:
		major, minor = major+1, 0
	default:
		minor++
	}

	rec := Record{
		ID:          fmt.Sprintf("%s_%d_%d", key, major, minor),
		Category:    key,
		Major:       major,
		Minor:       minor,
		VersionStr:  fmt.Sprintf("%s_v%d.%d", key, major, minor),
		IncidenceID: cfg.incidenceID,
		CreatedAt:   time.Now().UTC(),
	}

	var incidenceID any
	if rec.IncidenceID != "" {
		incidenceID = rec.IncidenceID
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO versions (id, category, major, minor, version_str, incidence_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Category, rec.Major, rec.Minor, rec.VersionStr, incidenceID, rec.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("inserting version record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("committing allocation: %w", err)
	}
	return rec, nil
}

// History lists version records. With a category, records for that category
// ordered by (major, minor) descending; without, all records by recency.
func (l *Ledger) History(ctx context.Context, category string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows pgx.Rows
	var err error
	if category != "" {
		rows, err = l.pool.Query(ctx,
			`SELECT `+recordCols+` FROM versions
			 WHERE category = $1
			 ORDER BY major DESC, minor DESC
			 LIMIT $2`, Normalize(category), limit)
	} else {
		rows, err = l.pool.Query(ctx,
			`SELECT `+recordCols+` FROM versions
			 ORDER BY created_at DESC
			 LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("querying version history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Get looks up a single version by its version string.
func (l *Ledger) Get(ctx context.Context, versionStr string) (Record, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT `+recordCols+` FROM versions WHERE version_str = $1`, versionStr)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %q", ErrNotFound, versionStr)
	}
	if err != nil {
		return Record{}, fmt.Errorf("querying version %q: %w", versionStr, err)
	}
	return rec, nil
}

// Stats reports totals and per-category counts with the latest version of
// each category.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	var s Stats

	err := l.pool.QueryRow(ctx, `SELECT COUNT(*) FROM versions`).Scan(&s.TotalVersions)
	if err != nil {
		return Stats{}, fmt.Errorf("counting versions: %w", err)
	}

	rows, err := l.pool.Query(ctx,
		`SELECT v.category, COUNT(*),
		        (SELECT version_str FROM versions
		         WHERE category = v.category
		         ORDER BY major DESC, minor DESC LIMIT 1)
		 FROM versions v
		 GROUP BY v.category
		 ORDER BY COUNT(*) DESC, v.category`)
	if err != nil {
		return Stats{}, fmt.Errorf("querying per-category stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count, &cc.Latest); err != nil {
			return Stats{}, fmt.Errorf("scanning category stats: %w", err)
		}
		s.PerCategory = append(s.PerCategory, cc)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterating category stats: %w", err)
	}

	s.TotalAreas = len(s.PerCategory)
	return s, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.Category, &rec.Major, &rec.Minor,
		&rec.VersionStr, &rec.IncidenceID, &rec.CreatedAt)
	return rec, err
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning version record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating version records: %w", err)
	}
	return records, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
