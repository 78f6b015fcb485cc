package lifecycle

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a checkpoint or incidence id is unknown.
var ErrNotFound = errors.New("not found")

// ErrAlreadyResolved is returned when resolving an incidence twice.
// A second resolution must be rejected, never silently re-run.
var ErrAlreadyResolved = errors.New("incidence already resolved")

// CheckpointStatus enumerates the states of a checkpoint.
// active is the only non-terminal state.
type CheckpointStatus string

const (
	CheckpointActive     CheckpointStatus = "active"
	CheckpointResolved   CheckpointStatus = "resolved"
	CheckpointRolledBack CheckpointStatus = "rolled_back"
)

// IncidenceStatus enumerates the states of an incidence.
type IncidenceStatus string

const (
	IncidenceOpen        IncidenceStatus = "open"
	IncidenceDocumenting IncidenceStatus = "documenting"
	IncidenceResolved    IncidenceStatus = "resolved"
)

// Checkpoint is an immutable snapshot of intake intent. Only its status
// transitions; rows are never deleted (audit trail). ParentID links
// rollback chains.
type Checkpoint struct {
	ID          string           `json:"id"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	Reporter    string           `json:"reporter"`
	Status      CheckpointStatus `json:"status"`
	ParentID    string           `json:"parent_id,omitempty"`
	Closure     *Closure         `json:"closure,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Closure records how a checkpoint was resolved: which prior knowledge
// elements were validated (retained) versus invalidated (discarded).
// Advisory metadata only, never enforced deletion.
type Closure struct {
	Outcome   string    `json:"outcome"`
	Retained  []string  `json:"retained,omitempty"`
	Discarded []string  `json:"discarded,omitempty"`
	ClosedAt  time.Time `json:"closed_at"`
}

// Incidence is the mutable case record. Archived on resolution, never
// destroyed.
type Incidence struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	Reporter     string          `json:"reporter"`
	Status       IncidenceStatus `json:"status"`
	CheckpointID string          `json:"checkpoint_id,omitempty"`
	Solution     string          `json:"solution,omitempty"`
	VersionStr   string          `json:"version,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Report is one append-only free-text contribution to an incidence.
type Report struct {
	ID          string    `json:"id"`
	IncidenceID string    `json:"incidence_id"`
	Author      string    `json:"author,omitempty"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}
