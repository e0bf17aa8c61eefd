// Package drafts manages the mutable, versioned drafts of step instances.
//
// A draft is owned by exactly one step instance. It is created once
// (uniqueness enforced by the store), patched field by field with a
// monotonically increasing version, replaced wholesale when the step is
// regenerated, and deleted idempotently. Review drafts also carry the
// human decisions taken on their recommendations. The manager never
// touches approved artifacts.
package drafts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/review"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/store"
)

var (
	// ErrAlreadyExists means a draft for the instance exists already; a
	// concurrent or earlier generation won.
	ErrAlreadyExists = store.ErrAlreadyExists
	// ErrNotFound means the instance has no draft.
	ErrNotFound = store.ErrNotFound
)

// Draft is the working copy of a step instance's content.
type Draft struct {
	ID        string           `json:"id"`
	Instance  steps.Instance   `json:"instance"`
	Version   int              `json:"version"`
	Content   steps.Content    `json:"content"`
	Decisions review.Decisions `json:"decisions,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Manager implements the draft lifecycle on top of a store.
type Manager struct {
	store    store.Store
	registry *steps.Registry
}

// NewManager creates a Manager.
func NewManager(s store.Store, r *steps.Registry) *Manager {
	return &Manager{store: s, registry: r}
}

func key(inst steps.Instance) store.Key {
	return store.Key{
		Collection: store.CollectionDrafts,
		ProjectID:  inst.ProjectID,
		StepKey:    string(inst.Step),
		ScopeKey:   inst.Scope,
	}
}

// Create stores a new draft at version 1. It fails with ErrAlreadyExists
// when the instance already has a draft.
func (m *Manager) Create(ctx context.Context, inst steps.Instance, content steps.Content) (Draft, error) {
	def, err := m.registry.Resolve(inst.Step)
	if err != nil {
		return Draft{}, err
	}
	if err := def.Validate(content); err != nil {
		return Draft{}, err
	}
	data, err := json.Marshal(content)
	if err != nil {
		return Draft{}, fmt.Errorf("encoding %s draft: %w", inst, err)
	}

	rec, err := m.store.Insert(ctx, store.Record{
		Collection: store.CollectionDrafts,
		ProjectID:  inst.ProjectID,
		StepKey:    string(inst.Step),
		ScopeKey:   inst.Scope,
		Version:    1,
		Content:    data,
	})
	if err != nil {
		return Draft{}, fmt.Errorf("creating draft %s: %w", inst, err)
	}
	return fromRecord(rec)
}

// Get returns the draft of inst or ErrNotFound.
func (m *Manager) Get(ctx context.Context, inst steps.Instance) (Draft, error) {
	rec, err := m.store.Get(ctx, key(inst))
	if err != nil {
		return Draft{}, err
	}
	return fromRecord(rec)
}

// Exists reports whether inst has a draft.
func (m *Manager) Exists(ctx context.Context, inst steps.Instance) (bool, error) {
	_, err := m.store.Get(ctx, key(inst))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns the drafts of a step across scopes. An empty step lists
// every draft of the project.
func (m *Manager) List(ctx context.Context, projectID string, step steps.Key) ([]Draft, error) {
	recs, err := m.store.List(ctx, store.Query{
		Collection: store.CollectionDrafts,
		ProjectID:  projectID,
		StepKey:    string(step),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Draft, 0, len(recs))
	for _, rec := range recs {
		d, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// PatchField replaces one top-level field, leaves every other field
// untouched and increments the version.
func (m *Manager) PatchField(ctx context.Context, inst steps.Instance, field string, value any) (Draft, error) {
	def, err := m.registry.Resolve(inst.Step)
	if err != nil {
		return Draft{}, err
	}
	if err := def.ValidateField(field, value); err != nil {
		return Draft{}, err
	}

	rec, err := m.store.Get(ctx, key(inst))
	if err != nil {
		return Draft{}, fmt.Errorf("patching draft %s: %w", inst, err)
	}
	var content steps.Content
	if err := json.Unmarshal(rec.Content, &content); err != nil {
		return Draft{}, fmt.Errorf("decoding draft %s: %w", inst, err)
	}
	if content == nil {
		content = steps.Content{}
	}
	content[field] = value

	data, err := json.Marshal(content)
	if err != nil {
		return Draft{}, fmt.Errorf("encoding draft %s: %w", inst, err)
	}
	rec.Content = data
	rec.Version++

	updated, err := m.store.Update(ctx, rec)
	if err != nil {
		return Draft{}, fmt.Errorf("patching draft %s: %w", inst, err)
	}
	return fromRecord(updated)
}

// ReplaceAll discards the current draft (and its decisions) and stores
// content as a fresh version 1.
func (m *Manager) ReplaceAll(ctx context.Context, inst steps.Instance, content steps.Content) (Draft, error) {
	def, err := m.registry.Resolve(inst.Step)
	if err != nil {
		return Draft{}, err
	}
	if err := def.Validate(content); err != nil {
		return Draft{}, err
	}
	if err := m.Delete(ctx, inst); err != nil {
		return Draft{}, err
	}
	return m.Create(ctx, inst, content)
}

// Delete removes the draft. Deleting a missing draft succeeds.
func (m *Manager) Delete(ctx context.Context, inst steps.Instance) error {
	if err := m.store.Delete(ctx, key(inst)); err != nil {
		return fmt.Errorf("deleting draft %s: %w", inst, err)
	}
	return nil
}

// SetDecision upserts one decision in the draft's decisions side-map.
// The content version is unchanged.
func (m *Manager) SetDecision(ctx context.Context, inst steps.Instance, id string, d review.Decision) (Draft, error) {
	rec, err := m.store.Get(ctx, key(inst))
	if err != nil {
		return Draft{}, fmt.Errorf("recording decision on %s: %w", inst, err)
	}
	decisions, err := review.Decode(rec.Sidecar)
	if err != nil {
		return Draft{}, err
	}
	decisions[id] = d
	if rec.Sidecar, err = decisions.Encode(); err != nil {
		return Draft{}, err
	}
	updated, err := m.store.Update(ctx, rec)
	if err != nil {
		return Draft{}, fmt.Errorf("recording decision on %s: %w", inst, err)
	}
	return fromRecord(updated)
}

func fromRecord(rec store.Record) (Draft, error) {
	d := Draft{
		ID: rec.ID,
		Instance: steps.Instance{
			ProjectID: rec.ProjectID,
			Step:      steps.Key(rec.StepKey),
			Scope:     rec.ScopeKey,
		},
		Version:   rec.Version,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if len(rec.Content) > 0 {
		if err := json.Unmarshal(rec.Content, &d.Content); err != nil {
			return Draft{}, fmt.Errorf("decoding draft %s: %w", d.Instance, err)
		}
	}
	decisions, err := review.Decode(rec.Sidecar)
	if err != nil {
		return Draft{}, err
	}
	d.Decisions = decisions
	return d, nil
}
