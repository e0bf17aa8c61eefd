// Package store is the artifact store of the audit pipeline.
//
// It is a generic keyed record store: every record is addressed by
// (collection, project, step, scope) and carries an opaque JSON payload
// plus an optional JSON sidecar (used for review decisions). The store
// knows nothing about steps or drafts; the uniqueness of a key on Insert
// is the only concurrency primitive the rest of the system relies on.
//
// Design principles:
//   - DIP: Store is an interface; the pipeline depends on the abstraction
//   - OCP: new drivers (memory, sqlite, postgres) plug in through Open
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/apperr"
)

// --- Collections ---

// Collection groups records of one kind.
type Collection string

const (
	CollectionProjects Collection = "projects"
	CollectionDrafts   Collection = "drafts"
	CollectionApproved Collection = "approved"
	CollectionSegments Collection = "segments"
	CollectionPains    Collection = "pains"
)

// validCollections is the set of allowed collections.
var validCollections = map[Collection]bool{
	CollectionProjects: true,
	CollectionDrafts:   true,
	CollectionApproved: true,
	CollectionSegments: true,
	CollectionPains:    true,
}

// ValidateCollection returns an error if the collection is not recognized.
func ValidateCollection(c Collection) error {
	if !validCollections[c] {
		return fmt.Errorf("invalid collection %q: must be one of: projects, drafts, approved, segments, pains", c)
	}
	return nil
}

// --- Errors ---

var (
	// ErrNotFound is returned when no record exists for a key.
	ErrNotFound = apperr.New(apperr.CodeNotFound, "record not found")
	// ErrAlreadyExists is returned by Insert when the key is taken.
	ErrAlreadyExists = apperr.New(apperr.CodeAlreadyExists, "record already exists")
)

// --- Core data structures ---

// Key uniquely addresses a record.
type Key struct {
	Collection Collection `json:"collection"`
	ProjectID  string     `json:"project_id"`
	StepKey    string     `json:"step_key,omitempty"`
	ScopeKey   string     `json:"scope_key,omitempty"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Collection, k.ProjectID, k.StepKey, k.ScopeKey)
}

// Record is the unit of persistence.
type Record struct {
	ID         string          `json:"id"`
	Collection Collection      `json:"collection"`
	ProjectID  string          `json:"project_id"`
	StepKey    string          `json:"step_key,omitempty"`
	ScopeKey   string          `json:"scope_key,omitempty"`
	Version    int             `json:"version"`
	Content    json.RawMessage `json:"content,omitempty"`
	Sidecar    json.RawMessage `json:"sidecar,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	ApprovedAt *time.Time      `json:"approved_at,omitempty"`
}

// Key returns the record's address.
func (r Record) Key() Key {
	return Key{Collection: r.Collection, ProjectID: r.ProjectID, StepKey: r.StepKey, ScopeKey: r.ScopeKey}
}

// Query filters List results. Empty fields match everything except
// Collection, which is required.
type Query struct {
	Collection Collection
	ProjectID  string
	StepKey    string
	ScopeKey   string
}

func (q Query) matches(r Record) bool {
	if r.Collection != q.Collection {
		return false
	}
	if q.ProjectID != "" && r.ProjectID != q.ProjectID {
		return false
	}
	if q.StepKey != "" && r.StepKey != q.StepKey {
		return false
	}
	if q.ScopeKey != "" && r.ScopeKey != q.ScopeKey {
		return false
	}
	return true
}

// Store is the persistence contract of the pipeline.
type Store interface {
	// Get returns the record stored under key or ErrNotFound.
	Get(ctx context.Context, key Key) (Record, error)
	// List returns records matching q ordered by creation time.
	List(ctx context.Context, q Query) ([]Record, error)
	// Insert stores a new record. It fails with ErrAlreadyExists when the
	// key is already taken; the first writer wins.
	Insert(ctx context.Context, rec Record) (Record, error)
	// Update replaces the payload of an existing record or returns ErrNotFound.
	Update(ctx context.Context, rec Record) (Record, error)
	// Upsert inserts or overwrites the record under its key.
	Upsert(ctx context.Context, rec Record) (Record, error)
	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, key Key) error
	// DeleteProject removes every record of a project and returns the count.
	DeleteProject(ctx context.Context, projectID string) (int, error)
	// Close releases the underlying resources.
	Close() error
}

// validateRecord checks the fields every driver requires.
func validateRecord(rec Record) error {
	if err := ValidateCollection(rec.Collection); err != nil {
		return err
	}
	if rec.ProjectID == "" {
		return fmt.Errorf("record in %s: project id is required", rec.Collection)
	}
	if len(rec.Content) > 0 && !json.Valid(rec.Content) {
		return fmt.Errorf("record %s: content is not valid JSON", rec.Key())
	}
	if len(rec.Sidecar) > 0 && !json.Valid(rec.Sidecar) {
		return fmt.Errorf("record %s: sidecar is not valid JSON", rec.Key())
	}
	return nil
}

func notFound(key Key) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}

func alreadyExists(key Key) error {
	return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
}
