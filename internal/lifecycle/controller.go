// Package lifecycle drives the three-phase incident cycle: intake
// (checkpoint) → tracking (incidence + reports) → resolution.
//
// The controller exclusively owns checkpoint and incidence state. All state
// lives in PostgreSQL so any number of orchestrator instances can run
// concurrently; incidences are independent aggregates and need no
// cross-incidence locking. The resolve-once rule is enforced with a
// conditional UPDATE, not an in-process check.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// checkpointCols is the standard SELECT column list for scanCheckpoint.
const checkpointCols = `id, description, category, reporter, status,
	COALESCE(parent_id::text, ''), closure, created_at`

// incidenceCols is the standard SELECT column list for scanIncidence.
const incidenceCols = `id, title, description, category, reporter, status,
	COALESCE(checkpoint_id::text, ''), COALESCE(solution, ''),
	COALESCE(version_str, ''), created_at, updated_at`

// Controller manages checkpoints, incidences and reports.
//
// Controller is safe for concurrent use by multiple goroutines and multiple
// process instances.
type Controller struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Controller.
func New(pool *pgxpool.Pool, logger *slog.Logger) (*Controller, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{pool: pool, logger: logger}, nil
}

// Open creates a checkpoint for an incoming problem report. parentID links
// a rollback chain and may be empty. Pure record creation: it fails only on
// storage errors.
func (c *Controller) Open(ctx context.Context, description, category, reporter, parentID string) (Checkpoint, error) {
	cp := Checkpoint{
		ID:          uuid.NewString(),
		Description: description,
		Category:    category,
		Reporter:    reporter,
		Status:      CheckpointActive,
		ParentID:    parentID,
		CreatedAt:   time.Now().UTC(),
	}

	var parent any
	if parentID != "" {
		parent = parentID
	}

	_, err := c.pool.Exec(ctx,
		`INSERT INTO checkpoints (id, description, category, reporter, status, parent_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		cp.ID, cp.Description, cp.Category, cp.Reporter, cp.Status, parent, cp.CreatedAt)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("creating checkpoint: %w", err)
	}

	c.logger.Debug("checkpoint opened", "id", cp.ID, "category", category)
	return cp, nil
}

// ensureID rejects ids that cannot be uuid column values. Without the
// guard a malformed id would fail the query with a cast error (SQLSTATE
// 22P02) instead of mapping to ErrNotFound.
func ensureID(kind, id string) error {
	if uuid.Validate(id) != nil {
		return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
	}
	return nil
}

// Checkpoint loads a checkpoint by id.
func (c *Controller) Checkpoint(ctx context.Context, id string) (Checkpoint, error) {
	if err := ensureID("checkpoint", id); err != nil {
		return Checkpoint{}, err
	}
	row := c.pool.QueryRow(ctx,
		`SELECT `+checkpointCols+` FROM checkpoints WHERE id = $1`, id)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Checkpoint{}, fmt.Errorf("%w: checkpoint %q", ErrNotFound, id)
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("loading checkpoint %q: %w", id, err)
	}
	return cp, nil
}

// Rollback marks a checkpoint rolled back and returns the updated record.
func (c *Controller) Rollback(ctx context.Context, id string) (Checkpoint, error) {
	if err := ensureID("checkpoint", id); err != nil {
		return Checkpoint{}, err
	}
	tag, err := c.pool.Exec(ctx,
		`UPDATE checkpoints SET status = $1 WHERE id = $2`,
		CheckpointRolledBack, id)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("rolling back checkpoint %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return Checkpoint{}, fmt.Errorf("%w: checkpoint %q", ErrNotFound, id)
	}

	c.logger.Info("checkpoint rolled back", "id", id)
	return c.Checkpoint(ctx, id)
}

// Close marks a checkpoint resolved and records its closure: the outcome
// plus which knowledge elements were retained or discarded.
func (c *Controller) Close(ctx context.Context, id, outcome string, retained, discarded []string) (Closure, error) {
	if err := ensureID("checkpoint", id); err != nil {
		return Closure{}, err
	}
	closure := Closure{
		Outcome:   outcome,
		Retained:  retained,
		Discarded: discarded,
		ClosedAt:  time.Now().UTC(),
	}

	closureJSON, err := json.Marshal(closure)
	if err != nil {
		return Closure{}, fmt.Errorf("marshaling closure: %w", err)
	}

	tag, err := c.pool.Exec(ctx,
		`UPDATE checkpoints SET status = $1, closure = $2 WHERE id = $3`,
		CheckpointResolved, closureJSON, id)
	if err != nil {
		return Closure{}, fmt.Errorf("closing checkpoint %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return Closure{}, fmt.Errorf("%w: checkpoint %q", ErrNotFound, id)
	}

	c.logger.Debug("checkpoint closed",
		"id", id, "outcome", outcome,
		"retained", len(retained), "discarded", len(discarded))
	return closure, nil
}

// CreateIncidence creates a tracked case record in the given status.
// checkpointID may be empty.
func (c *Controller) CreateIncidence(ctx context.Context, title, description, category, reporter, checkpointID string, status IncidenceStatus) (Incidence, error) {
	now := time.Now().UTC()
	inc := Incidence{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  description,
		Category:     category,
		Reporter:     reporter,
		Status:       status,
		CheckpointID: checkpointID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var checkpoint any
	if checkpointID != "" {
		checkpoint = checkpointID
	}

	_, err := c.pool.Exec(ctx,
		`INSERT INTO incidences (id, title, description, category, reporter, status, checkpoint_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inc.ID, inc.Title, inc.Description, inc.Category, inc.Reporter,
		inc.Status, checkpoint, inc.CreatedAt, inc.UpdatedAt)
	if err != nil {
		return Incidence{}, fmt.Errorf("creating incidence: %w", err)
	}

	c.logger.Debug("incidence created",
		"id", inc.ID, "category", category, "status", status)
	return inc, nil
}

// Incidence loads an incidence by id.
func (c *Controller) Incidence(ctx context.Context, id string) (Incidence, error) {
	if err := ensureID("incidence", id); err != nil {
		return Incidence{}, err
	}
	row := c.pool.QueryRow(ctx,
		`SELECT `+incidenceCols+` FROM incidences WHERE id = $1`, id)
	inc, err := scanIncidence(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Incidence{}, fmt.Errorf("%w: incidence %q", ErrNotFound, id)
	}
	if err != nil {
		return Incidence{}, fmt.Errorf("loading incidence %q: %w", id, err)
	}
	return inc, nil
}

// ListIncidences lists incidences, newest first, optionally filtered by
// status and category.
func (c *Controller) ListIncidences(ctx context.Context, status IncidenceStatus, category string, limit int) ([]Incidence, error) {
	if limit <= 0 {
		limit = 50
	}

	sql := `SELECT ` + incidenceCols + ` FROM incidences WHERE 1=1`
	args := []any{}
	if status != "" {
		args = append(args, status)
		sql += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if category != "" {
		args = append(args, category)
		sql += fmt.Sprintf(" AND category = $%d", len(args))
	}
	args = append(args, limit)
	sql += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing incidences: %w", err)
	}
	defer rows.Close()

	var incidences []Incidence
	for rows.Next() {
		inc, err := scanIncidence(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning incidence: %w", err)
		}
		incidences = append(incidences, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating incidences: %w", err)
	}
	return incidences, nil
}

// AddReport appends a report to an incidence and bumps its update
// timestamp. Reports are append-only.
func (c *Controller) AddReport(ctx context.Context, incidenceID, author, content string) (Report, error) {
	if err := ensureID("incidence", incidenceID); err != nil {
		return Report{}, err
	}
	rep := Report{
		ID:          uuid.NewString(),
		IncidenceID: incidenceID,
		Author:      author,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			c.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	tag, err := tx.Exec(ctx,
		`UPDATE incidences SET updated_at = $1 WHERE id = $2`,
		rep.CreatedAt, incidenceID)
	if err != nil {
		return Report{}, fmt.Errorf("touching incidence %q: %w", incidenceID, err)
	}
	if tag.RowsAffected() == 0 {
		return Report{}, fmt.Errorf("%w: incidence %q", ErrNotFound, incidenceID)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO reports (id, incidence_id, author, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rep.ID, rep.IncidenceID, rep.Author, rep.Content, rep.CreatedAt)
	if err != nil {
		return Report{}, fmt.Errorf("adding report: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Report{}, fmt.Errorf("committing report: %w", err)
	}

	c.logger.Debug("report added", "incidence_id", incidenceID, "report_id", rep.ID)
	return rep, nil
}

// Reports returns the reports of an incidence in insertion order.
func (c *Controller) Reports(ctx context.Context, incidenceID string) ([]Report, error) {
	if err := ensureID("incidence", incidenceID); err != nil {
		return nil, err
	}
	rows, err := c.pool.Query(ctx,
		`SELECT id, incidence_id, author, content, created_at
		 FROM reports
		 WHERE incidence_id = $1
		 ORDER BY created_at, id`, incidenceID)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		var rep Report
		if err := rows.Scan(&rep.ID, &rep.IncidenceID, &rep.Author, &rep.Content, &rep.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		reports = append(reports, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reports: %w", err)
	}
	return reports, nil
}

// Resolve transitions an incidence to resolved exactly once. The
// conditional UPDATE is the concurrency guard: of two racing resolvers only
// one affects a row, the other gets ErrAlreadyResolved.
func (c *Controller) Resolve(ctx context.Context, id, solution, versionStr string) (Incidence, error) {
	if err := ensureID("incidence", id); err != nil {
		return Incidence{}, err
	}
	tag, err := c.pool.Exec(ctx,
		`UPDATE incidences
		 SET status = $1, solution = $2, version_str = $3, updated_at = $4
		 WHERE id = $5 AND status <> $1`,
		IncidenceResolved, solution, versionStr, time.Now().UTC(), id)
	if err != nil {
		return Incidence{}, fmt.Errorf("resolving incidence %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish unknown id from double resolve.
		inc, loadErr := c.Incidence(ctx, id)
		if loadErr != nil {
			return Incidence{}, loadErr
		}
		return Incidence{}, fmt.Errorf("%w: incidence %q resolved as %s",
			ErrAlreadyResolved, id, inc.VersionStr)
	}

	c.logger.Info("incidence resolved", "id", id, "version", versionStr)
	return c.Incidence(ctx, id)
}

// CountByStatus returns incidence counts keyed by status.
func (c *Controller) CountByStatus(ctx context.Context) (map[IncidenceStatus]int, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM incidences GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting incidences: %w", err)
	}
	defer rows.Close()

	counts := make(map[IncidenceStatus]int)
	for rows.Next() {
		var status IncidenceStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning incidence count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating incidence counts: %w", err)
	}
	return counts, nil
}

func scanCheckpoint(row pgx.Row) (Checkpoint, error) {
	var cp Checkpoint
	var closureJSON []byte
	err := row.Scan(&cp.ID, &cp.Description, &cp.Category, &cp.Reporter,
		&cp.Status, &cp.ParentID, &closureJSON, &cp.CreatedAt)
	if err != nil {
		return Checkpoint{}, err
	}
	if len(closureJSON) > 0 {
		var closure Closure
		if err := json.Unmarshal(closureJSON, &closure); err != nil {
			return Checkpoint{}, fmt.Errorf("parsing closure: %w", err)
		}
		cp.Closure = &closure
	}
	return cp, nil
}

func scanIncidence(row pgx.Row) (Incidence, error) {
	var inc Incidence
	err := row.Scan(&inc.ID, &inc.Title, &inc.Description, &inc.Category,
		&inc.Reporter, &inc.Status, &inc.CheckpointID, &inc.Solution,
		&inc.VersionStr, &inc.CreatedAt, &inc.UpdatedAt)
	return inc, err
}
