package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/status"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/store"
)

// --- Project status enum ---

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
)

// Project is the unit of work: onboarding input plus a pointer to the
// step the user is working on.
type Project struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Onboarding  map[string]string `json:"onboarding"`
	CurrentStep steps.Key         `json:"current_step"`
	Status      ProjectStatus     `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func projectKey(id string) store.Key {
	return store.Key{Collection: store.CollectionProjects, ProjectID: id}
}

// CreateProject registers a new project positioned at the first step.
func (e *Engine) CreateProject(ctx context.Context, name string, onboarding map[string]string) (Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Project{}, invalidf("project name is required")
	}
	if onboarding == nil {
		onboarding = map[string]string{}
	}
	now := timeNow()
	p := Project{
		ID:          uuid.NewString(),
		Name:        name,
		Onboarding:  onboarding,
		CurrentStep: e.registry.Order()[0],
		Status:      ProjectActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.putProject(ctx, p, true); err != nil {
		return Project{}, err
	}
	e.logger.Info("project created", "project", p.ID, "name", p.Name)
	return p, nil
}

// GetProject returns a project or a wrapped store.ErrNotFound.
func (e *Engine) GetProject(ctx context.Context, id string) (Project, error) {
	rec, err := e.store.Get(ctx, projectKey(id))
	if err != nil {
		return Project{}, fmt.Errorf("project %s: %w", id, err)
	}
	var p Project
	if err := json.Unmarshal(rec.Content, &p); err != nil {
		return Project{}, fmt.Errorf("decoding project %s: %w", id, err)
	}
	return p, nil
}

// ListProjects returns every project, oldest first.
func (e *Engine) ListProjects(ctx context.Context) ([]Project, error) {
	recs, err := e.store.List(ctx, store.Query{Collection: store.CollectionProjects})
	if err != nil {
		return nil, err
	}
	out := make([]Project, 0, len(recs))
	for _, rec := range recs {
		var p Project
		if err := json.Unmarshal(rec.Content, &p); err != nil {
			return nil, fmt.Errorf("decoding project %s: %w", rec.ProjectID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// DeleteProject removes the project and everything it owns.
func (e *Engine) DeleteProject(ctx context.Context, id string) (int, error) {
	if _, err := e.GetProject(ctx, id); err != nil {
		return 0, err
	}
	n, err := e.store.DeleteProject(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("deleting project %s: %w", id, err)
	}
	e.logger.Info("project deleted", "project", id, "records", n)
	return n, nil
}

func (e *Engine) putProject(ctx context.Context, p Project, create bool) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding project %s: %w", p.ID, err)
	}
	rec := store.Record{Collection: store.CollectionProjects, ProjectID: p.ID, Content: data}
	if create {
		_, err = e.store.Insert(ctx, rec)
	} else {
		_, err = e.store.Upsert(ctx, rec)
	}
	if err != nil {
		return fmt.Errorf("saving project %s: %w", p.ID, err)
	}
	return nil
}

// advance moves the current-step pointer past an approved step and marks
// the project completed when the terminal step is approved. A fan-out step
// moves it only once every target scope is approved. The pointer never
// moves backwards.
func (e *Engine) advance(ctx context.Context, projectID string, approved steps.Key) error {
	p, err := e.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	order := e.registry.Order()
	index := func(k steps.Key) int {
		for i, o := range order {
			if o == k {
				return i
			}
		}
		return -1
	}

	def, err := e.registry.Resolve(approved)
	if err != nil {
		return err
	}
	if def.Scope.FanOut() {
		reports, err := e.status.ScopeProgress(ctx, projectID, approved)
		if err != nil {
			return err
		}
		for _, r := range reports {
			if r.State != status.StateCompleted {
				return nil
			}
		}
	}

	changed := false
	if approved == e.registry.Terminal() {
		if p.Status != ProjectCompleted {
			p.Status = ProjectCompleted
			p.CurrentStep = approved
			changed = true
		}
	} else if next := e.registry.Next(approved); next != "" && index(next) > index(p.CurrentStep) {
		p.CurrentStep = next
		changed = true
	}
	if !changed {
		return nil
	}
	p.UpdatedAt = timeNow()
	return e.putProject(ctx, p, false)
}
