package casebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// VectorDimension is the embedding width stored in the documents table.
// Must match the vector(768) column in the schema.
const VectorDimension int32 = 768

// ErrValidation is returned when a document or its metadata is rejected at
// the store boundary, before any side effect.
var ErrValidation = errors.New("invalid document")

// Metadata is the fixed tagged schema attached to every knowledge document.
// Free-form keys go in Extra; the named fields are validated on Persist and
// used for filtered search.
//
// Metadata serializes to a flat string map in JSONB so the category stays
// filterable with the @> containment operator. Unknown keys round-trip
// through Extra.
type Metadata struct {
	Category    string
	Version     string
	Title       string
	IncidenceID string
	ResolvedBy  string
	Timestamp   time.Time
	Extra       map[string]string
}

// Reserved metadata keys for the named fields.
const (
	metaKeyCategory    = "category"
	metaKeyVersion     = "version"
	metaKeyTitle       = "title"
	metaKeyIncidenceID = "incidence_id"
	metaKeyResolvedBy  = "resolved_by"
	metaKeyTimestamp   = "timestamp"
)

// MarshalJSON flattens Metadata into a single-level string map.
func (m Metadata) MarshalJSON() ([]byte, error) {
	flat := make(map[string]string, len(m.Extra)+6)
	for k, v := range m.Extra {
		flat[k] = v
	}
	flat[metaKeyCategory] = m.Category
	flat[metaKeyVersion] = m.Version
	if !m.Timestamp.IsZero() {
		flat[metaKeyTimestamp] = m.Timestamp.UTC().Format(time.RFC3339)
	}
	if m.Title != "" {
		flat[metaKeyTitle] = m.Title
	}
	if m.IncidenceID != "" {
		flat[metaKeyIncidenceID] = m.IncidenceID
	}
	if m.ResolvedBy != "" {
		flat[metaKeyResolvedBy] = m.ResolvedBy
	}
	return json.Marshal(flat)
}

// UnmarshalJSON restores the named fields from a flat string map; keys that
// are not part of the fixed schema land in Extra.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	*m = Metadata{
		Category:    flat[metaKeyCategory],
		Version:     flat[metaKeyVersion],
		Title:       flat[metaKeyTitle],
		IncidenceID: flat[metaKeyIncidenceID],
		ResolvedBy:  flat[metaKeyResolvedBy],
	}
	if ts := flat[metaKeyTimestamp]; ts != "" {
		// A malformed timestamp degrades to zero time rather than failing
		// the whole result.
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			m.Timestamp = parsed
		}
	}

	for k, v := range flat {
		switch k {
		case metaKeyCategory, metaKeyVersion, metaKeyTitle,
			metaKeyIncidenceID, metaKeyResolvedBy, metaKeyTimestamp:
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]string)
			}
			m.Extra[k] = v
		}
	}
	return nil
}

// validate checks the named fields. Timestamp is defaulted by Persist, not
// here, so validation stays side-effect free.
func (m Metadata) validate() error {
	if m.Category == "" {
		return fmt.Errorf("%w: metadata category is required", ErrValidation)
	}
	if m.Version == "" {
		return fmt.Errorf("%w: metadata version is required", ErrValidation)
	}
	return nil
}

// SimilarCase is a transient search result. Relevance is derived from the
// backend's cosine distance d in [0,2] as 1 - d/2; Rank preserves the
// backend result position as a stable secondary ordering key.
type SimilarCase struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Metadata  Metadata `json:"metadata"`
	Relevance float64  `json:"relevance"`
	Rank      int      `json:"rank"`
}

// SearchOption configures a Search call.
type SearchOption func(*searchConfig)

type searchConfig struct {
	category     string
	limit        int
	minRelevance float64
	timeout      time.Duration
}

// WithCategory restricts results to one category (normalized key).
func WithCategory(category string) SearchOption {
	return func(c *searchConfig) { c.category = category }
}

// WithLimit caps the number of results. Default 5.
func WithLimit(n int) SearchOption {
	return func(c *searchConfig) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithMinRelevance discards results whose relevance falls below min.
// Default 0.5.
func WithMinRelevance(min float64) SearchOption {
	return func(c *searchConfig) { c.minRelevance = min }
}

// WithTimeout bounds the embedding call and the vector query. Default 10s.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) searchConfig {
	cfg := searchConfig{
		limit:        5,
		minRelevance: 0.5,
		timeout:      10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
