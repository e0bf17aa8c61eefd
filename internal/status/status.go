// Package status derives the state of step instances from what the store
// holds. Nothing here is persisted: an instance is completed when an
// approved artifact exists, in progress when only a draft exists, locked
// while a prerequisite instance is not completed and pending otherwise.
package status

import (
	"context"
	"fmt"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/store"
)

// --- State enum ---

// State is the derived status of a step instance or step.
type State string

const (
	StateLocked     State = "locked"
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
)

// Icon returns the marker used when rendering progress.
func (s State) Icon() string {
	switch s {
	case StateCompleted:
		return "✅"
	case StateInProgress:
		return "🔄"
	case StatePending:
		return "⬜"
	default:
		return "🔒"
	}
}

// --- Scope catalog contract ---

// Scopes resolves the entities fan-out steps instantiate over.
type Scopes interface {
	// Segments returns the project's segment ids in catalog order.
	Segments(ctx context.Context, projectID string) ([]string, error)
	// Pains returns pain ids in catalog order, only top pains when
	// topOnly is set.
	Pains(ctx context.Context, projectID string, topOnly bool) ([]string, error)
	// SegmentOf returns the segment a pain belongs to.
	SegmentOf(ctx context.Context, projectID, painID string) (string, error)
}

// --- Reports ---

// Report is the status of one instance.
type Report struct {
	Instance    steps.Instance   `json:"instance"`
	State       State            `json:"state"`
	HasDraft    bool             `json:"has_draft"`
	HasApproved bool             `json:"has_approved"`
	BlockedBy   []steps.Instance `json:"blocked_by,omitempty"`
}

// CanGenerate reports whether a new draft may be generated.
func (r Report) CanGenerate() bool { return r.State == StatePending }

// StepSummary aggregates a step over its scopes.
type StepSummary struct {
	Step        steps.Key   `json:"step"`
	Title       string      `json:"title"`
	Scope       steps.Scope `json:"scope"`
	State       State       `json:"state"`
	HasDraft    bool        `json:"has_draft"`
	HasApproved bool        `json:"has_approved"`
	Completed   int         `json:"completed"`
	Total       int         `json:"total"`
}

// --- Resolver ---

// Resolver computes instance and step states.
type Resolver struct {
	store    store.Store
	registry *steps.Registry
	scopes   Scopes
}

// NewResolver creates a Resolver.
func NewResolver(s store.Store, r *steps.Registry, scopes Scopes) *Resolver {
	return &Resolver{store: s, registry: r, scopes: scopes}
}

// Targets returns the scope keys step instantiates for in the project.
// Project-scoped steps have the single empty scope.
func (r *Resolver) Targets(ctx context.Context, projectID string, def steps.Def) ([]string, error) {
	switch def.Scope {
	case steps.ScopeSegment:
		return r.scopes.Segments(ctx, projectID)
	case steps.ScopePain:
		return r.scopes.Pains(ctx, projectID, def.TopOnly)
	default:
		return []string{""}, nil
	}
}

// Prerequisites expands the prerequisite edges of inst into concrete
// instances. An All edge over an empty target set yields a single
// placeholder instance with the AllScopes scope, which is never completed.
func (r *Resolver) Prerequisites(ctx context.Context, inst steps.Instance) ([]steps.Instance, error) {
	def, err := r.registry.Resolve(inst.Step)
	if err != nil {
		return nil, err
	}
	var out []steps.Instance
	for _, p := range def.Prerequisites {
		pd, err := r.registry.Resolve(p.Step)
		if err != nil {
			return nil, err
		}
		at := func(scope string) steps.Instance {
			return steps.Instance{ProjectID: inst.ProjectID, Step: p.Step, Scope: scope}
		}

		switch {
		case pd.Scope == steps.ScopeNone:
			out = append(out, at(""))
		case p.All:
			targets, err := r.Targets(ctx, inst.ProjectID, pd)
			if err != nil {
				return nil, err
			}
			if len(targets) == 0 {
				out = append(out, at(steps.AllScopes))
				continue
			}
			for _, t := range targets {
				out = append(out, at(t))
			}
		case pd.Scope == def.Scope:
			out = append(out, at(inst.Scope))
		case def.Scope == steps.ScopePain && pd.Scope == steps.ScopeSegment:
			seg, err := r.scopes.SegmentOf(ctx, inst.ProjectID, inst.Scope)
			if err != nil {
				return nil, err
			}
			out = append(out, at(seg))
		default:
			return nil, fmt.Errorf("step %q: cannot map %s scope onto prerequisite %q", def.Key, def.Scope, pd.Key)
		}
	}
	return out, nil
}

// Status returns the state of one instance.
func (r *Resolver) Status(ctx context.Context, inst steps.Instance) (Report, error) {
	snap, err := r.load(ctx, inst.ProjectID)
	if err != nil {
		return Report{}, err
	}
	return r.status(ctx, snap, inst)
}

// ScopeProgress returns the state of every target instance of a step.
func (r *Resolver) ScopeProgress(ctx context.Context, projectID string, step steps.Key) ([]Report, error) {
	def, err := r.registry.Resolve(step)
	if err != nil {
		return nil, err
	}
	snap, err := r.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	targets, err := r.Targets(ctx, projectID, def)
	if err != nil {
		return nil, err
	}
	out := make([]Report, 0, len(targets))
	for _, t := range targets {
		rep, err := r.status(ctx, snap, steps.Instance{ProjectID: projectID, Step: step, Scope: t})
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, nil
}

// ProjectMap summarizes every step of the project in dependency order.
// Fan-out steps aggregate over their target scopes: completed when every
// target is approved, in progress when any target has work, pending when
// any target is unlocked and locked otherwise (including zero targets).
func (r *Resolver) ProjectMap(ctx context.Context, projectID string) ([]StepSummary, error) {
	snap, err := r.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]StepSummary, 0, len(r.registry.Order()))
	for _, def := range r.registry.Steps() {
		targets, err := r.Targets(ctx, projectID, def)
		if err != nil {
			return nil, err
		}
		sum := StepSummary{Step: def.Key, Title: def.Title, Scope: def.Scope, Total: len(targets)}
		anyPending := false
		for _, t := range targets {
			rep, err := r.status(ctx, snap, steps.Instance{ProjectID: projectID, Step: def.Key, Scope: t})
			if err != nil {
				return nil, err
			}
			sum.HasDraft = sum.HasDraft || rep.HasDraft
			sum.HasApproved = sum.HasApproved || rep.HasApproved
			switch rep.State {
			case StateCompleted:
				sum.Completed++
			case StatePending:
				anyPending = true
			}
		}
		switch {
		case sum.Total > 0 && sum.Completed == sum.Total:
			sum.State = StateCompleted
		case sum.HasDraft || sum.HasApproved:
			sum.State = StateInProgress
		case anyPending:
			sum.State = StatePending
		default:
			sum.State = StateLocked
		}
		out = append(out, sum)
	}
	return out, nil
}

func (r *Resolver) status(ctx context.Context, snap snapshot, inst steps.Instance) (Report, error) {
	rep := Report{
		Instance:    inst,
		HasDraft:    snap.drafts[instKey(inst)],
		HasApproved: snap.approved[instKey(inst)],
	}
	switch {
	case rep.HasApproved:
		rep.State = StateCompleted
		return rep, nil
	case rep.HasDraft:
		rep.State = StateInProgress
		return rep, nil
	}

	blockers, err := r.blockers(ctx, snap, inst)
	if err != nil {
		return Report{}, err
	}
	rep.BlockedBy = blockers
	if len(rep.BlockedBy) > 0 {
		rep.State = StateLocked
	} else {
		rep.State = StatePending
	}
	return rep, nil
}

// Blockers returns the prerequisite instances of inst that are not
// completed, regardless of the state of inst itself.
func (r *Resolver) Blockers(ctx context.Context, inst steps.Instance) ([]steps.Instance, error) {
	snap, err := r.load(ctx, inst.ProjectID)
	if err != nil {
		return nil, err
	}
	return r.blockers(ctx, snap, inst)
}

func (r *Resolver) blockers(ctx context.Context, snap snapshot, inst steps.Instance) ([]steps.Instance, error) {
	prereqs, err := r.Prerequisites(ctx, inst)
	if err != nil {
		return nil, err
	}
	var out []steps.Instance
	for _, p := range prereqs {
		if !snap.approved[instKey(p)] {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- Snapshot ---

type snapshot struct {
	approved map[string]bool
	drafts   map[string]bool
}

func instKey(inst steps.Instance) string {
	return string(inst.Step) + "\x00" + inst.Scope
}

// load reads which instances of the project have drafts and approvals.
func (r *Resolver) load(ctx context.Context, projectID string) (snapshot, error) {
	snap := snapshot{approved: map[string]bool{}, drafts: map[string]bool{}}
	for coll, set := range map[store.Collection]map[string]bool{
		store.CollectionApproved: snap.approved,
		store.CollectionDrafts:   snap.drafts,
	} {
		recs, err := r.store.List(ctx, store.Query{Collection: coll, ProjectID: projectID})
		if err != nil {
			return snapshot{}, fmt.Errorf("loading %s of project %s: %w", coll, projectID, err)
		}
		for _, rec := range recs {
			set[instKey(steps.Instance{Step: steps.Key(rec.StepKey), Scope: rec.ScopeKey})] = true
		}
	}
	return snap, nil
}
