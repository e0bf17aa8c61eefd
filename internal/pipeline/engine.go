// Package pipeline is the audience-audit workflow engine.
//
// It composes the step registry, the draft manager, the status resolver,
// the retry executor and the batch orchestrator over one artifact store
// and one generation provider. Every public operation is request driven:
// nothing runs in the background, and downstream unlocks are recomputed
// from stored state on demand.
//
// Lifecycle of a step instance:
//
//	locked -> pending -> in_progress (draft) -> completed (approved)
//
// A completed instance never goes back to in_progress; a newer draft on
// it stays a draft until it is approved again.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/batch"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/drafts"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/generation"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/retry"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/review"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/status"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/store"
)

// Metrics receives engine measurements. internal/metrics implements it.
type Metrics interface {
	ObserveGeneration(step, outcome string, d time.Duration)
	ObserveRetry(step string)
	ObserveApproval(step string)
	ObserveBatchItem(step, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveGeneration(string, string, time.Duration) {}
func (nopMetrics) ObserveRetry(string)                              {}
func (nopMetrics) ObserveApproval(string)                           {}
func (nopMetrics) ObserveBatchItem(string, string)                  {}

// ApprovalObserver is notified after an artifact is approved. It's an
// optional dependency: the engine works fine without one, and observer
// failures never undo an approval.
type ApprovalObserver interface {
	OnApproved(ctx context.Context, a Approved)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Store    store.Store
	Provider generation.Provider
	// Registry defaults to steps.Default().
	Registry *steps.Registry
	// Retry defaults to retry.DefaultPolicy() classified by
	// generation.IsTransient.
	Retry *retry.Policy
	// Concurrency is the default batch chunk size.
	Concurrency int
	// MaxTokens caps each generation.
	MaxTokens int
	Logger    *slog.Logger
	Metrics   Metrics
}

// Engine runs the workflow.
type Engine struct {
	store     store.Store
	provider  generation.Provider
	registry  *steps.Registry
	drafts    *drafts.Manager
	status    *status.Resolver
	batch     *batch.Orchestrator
	policy    retry.Policy
	maxTokens int
	logger    *slog.Logger
	metrics   Metrics
	observer  ApprovalObserver
}

// New creates an Engine.
func New(d Deps) (*Engine, error) {
	if d.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if d.Provider == nil {
		return nil, errors.New("pipeline: provider is required")
	}
	e := &Engine{
		store:     d.Store,
		provider:  d.Provider,
		registry:  d.Registry,
		maxTokens: d.MaxTokens,
		logger:    d.Logger,
		metrics:   d.Metrics,
	}
	if e.registry == nil {
		e.registry = steps.Default()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.metrics == nil {
		e.metrics = nopMetrics{}
	}
	if d.Retry != nil {
		e.policy = *d.Retry
	} else {
		e.policy = retry.DefaultPolicy()
	}
	if e.policy.Retryable == nil {
		e.policy.Retryable = generation.IsTransient
	}

	e.drafts = drafts.NewManager(e.store, e.registry)
	e.status = status.NewResolver(e.store, e.registry, scopeCatalog{e: e})
	e.batch = batch.New(batchRunner{e: e},
		batch.WithConcurrency(d.Concurrency),
		batch.WithLogger(e.logger),
		batch.WithObserver(e.metrics.ObserveBatchItem),
	)
	return e, nil
}

// SetObserver injects an optional ApprovalObserver. Nil is safe.
func (e *Engine) SetObserver(obs ApprovalObserver) { e.observer = obs }

// Registry returns the step graph the engine runs.
func (e *Engine) Registry() *steps.Registry { return e.registry }

// --- Status ---

// Status returns the state of one instance.
func (e *Engine) Status(ctx context.Context, inst steps.Instance) (status.Report, error) {
	if _, err := e.GetProject(ctx, inst.ProjectID); err != nil {
		return status.Report{}, err
	}
	return e.status.Status(ctx, inst)
}

// Progress summarizes every step of the project: the advancement signal.
func (e *Engine) Progress(ctx context.Context, projectID string) ([]status.StepSummary, error) {
	if _, err := e.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.status.ProjectMap(ctx, projectID)
}

// ScopeProgress reports every target instance of a fan-out step.
func (e *Engine) ScopeProgress(ctx context.Context, projectID string, step steps.Key) ([]status.Report, error) {
	if _, err := e.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.status.ScopeProgress(ctx, projectID, step)
}

// --- Artifacts ---

// Source says where a resolved artifact came from.
type Source string

const (
	SourceApproved Source = "approved"
	SourceDraft    Source = "draft"
)

// Artifact is the content of an instance as seen by readers.
type Artifact struct {
	Instance  steps.Instance   `json:"instance"`
	Source    Source           `json:"source"`
	Version   int              `json:"version"`
	Content   steps.Content    `json:"content"`
	Decisions review.Decisions `json:"decisions,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Approved is a promoted artifact.
type Approved struct {
	Instance   steps.Instance   `json:"instance"`
	Version    int              `json:"version"`
	Content    steps.Content    `json:"content"`
	Decisions  review.Decisions `json:"decisions,omitempty"`
	ApprovedAt time.Time        `json:"approved_at"`
}

func approvedKey(inst steps.Instance) store.Key {
	return store.Key{
		Collection: store.CollectionApproved,
		ProjectID:  inst.ProjectID,
		StepKey:    string(inst.Step),
		ScopeKey:   inst.Scope,
	}
}

// approved loads the approved artifact of inst or store.ErrNotFound.
func (e *Engine) approved(ctx context.Context, inst steps.Instance) (Approved, error) {
	rec, err := e.store.Get(ctx, approvedKey(inst))
	if err != nil {
		return Approved{}, err
	}
	a := Approved{Instance: inst, Version: rec.Version}
	if rec.ApprovedAt != nil {
		a.ApprovedAt = *rec.ApprovedAt
	}
	if err := json.Unmarshal(rec.Content, &a.Content); err != nil {
		return Approved{}, fmt.Errorf("decoding approved %s: %w", inst, err)
	}
	if a.Decisions, err = review.Decode(rec.Sidecar); err != nil {
		return Approved{}, err
	}
	return a, nil
}

// ResolveArtifact returns the approved artifact of inst, falling back to
// its draft. This is the single fallback policy for every reader.
func (e *Engine) ResolveArtifact(ctx context.Context, inst steps.Instance) (Artifact, error) {
	if _, err := e.registry.Resolve(inst.Step); err != nil {
		return Artifact{}, err
	}
	a, err := e.approved(ctx, inst)
	if err == nil {
		return Artifact{
			Instance: inst, Source: SourceApproved, Version: a.Version,
			Content: a.Content, Decisions: a.Decisions, UpdatedAt: a.ApprovedAt,
		}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Artifact{}, err
	}
	d, err := e.drafts.Get(ctx, inst)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact %s: %w", inst, err)
	}
	return Artifact{
		Instance: inst, Source: SourceDraft, Version: d.Version,
		Content: d.Content, Decisions: d.Decisions, UpdatedAt: d.UpdatedAt,
	}, nil
}

// Draft returns the current draft of inst.
func (e *Engine) Draft(ctx context.Context, inst steps.Instance) (drafts.Draft, error) {
	return e.drafts.Get(ctx, inst)
}

// EditField is a human edit of one draft field; it bumps the version.
func (e *Engine) EditField(ctx context.Context, inst steps.Instance, field string, value any) (drafts.Draft, error) {
	d, err := e.drafts.PatchField(ctx, inst, field, value)
	if err != nil {
		return drafts.Draft{}, err
	}
	e.logger.Info("draft field edited", "instance", inst.String(), "field", field, "version", d.Version)
	return d, nil
}

// checkInstance validates the shape of inst against its step.
func (e *Engine) checkInstance(inst steps.Instance) (steps.Def, error) {
	def, err := e.registry.Resolve(inst.Step)
	if err != nil {
		return steps.Def{}, err
	}
	if def.Scope.FanOut() && inst.Scope == "" {
		return steps.Def{}, invalidf("step %q is %s-scoped: a scope id is required", def.Key, def.Scope)
	}
	if !def.Scope.FanOut() && inst.Scope != "" {
		return steps.Def{}, invalidf("step %q is project-scoped: scope must be empty", def.Key)
	}
	return def, nil
}
