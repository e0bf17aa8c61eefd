package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/review"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/status"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/store"
)

// Approval is the outcome of promoting a draft.
type Approval struct {
	Approved Approved `json:"approved"`
	// Unlocked lists dependent instances that became generatable.
	Unlocked []steps.Instance `json:"unlocked,omitempty"`
	// Orphans lists references the approval could not resolve.
	Orphans          []string `json:"orphans,omitempty"`
	ProjectCompleted bool     `json:"project_completed"`
}

// Approve promotes the draft of inst to the approved artifact. Review
// steps need a decision on every recommendation first. Re-approval
// overwrites the previous artifact.
func (e *Engine) Approve(ctx context.Context, inst steps.Instance) (Approval, error) {
	def, err := e.checkInstance(inst)
	if err != nil {
		return Approval{}, err
	}
	if _, err := e.GetProject(ctx, inst.ProjectID); err != nil {
		return Approval{}, err
	}
	d, err := e.drafts.Get(ctx, inst)
	if err != nil {
		return Approval{}, fmt.Errorf("approving %s: no draft: %w", inst, err)
	}
	if def.Kind == steps.KindReview {
		recs := review.Extract(d.Content, def.ReviewCategories)
		if err := review.Check(recs, d.Decisions); err != nil {
			return Approval{}, err
		}
	}

	a := Approved{
		Instance:   inst,
		Version:    d.Version,
		Content:    d.Content,
		Decisions:  d.Decisions,
		ApprovedAt: timeNow(),
	}
	if err := e.putApproved(ctx, a); err != nil {
		return Approval{}, err
	}

	res := Approval{Approved: a}
	if res.Orphans, err = e.applySideEffects(ctx, inst, a.Content); err != nil {
		return Approval{}, fmt.Errorf("approving %s: %w", inst, err)
	}
	if err := e.advance(ctx, inst.ProjectID, inst.Step); err != nil {
		return Approval{}, err
	}
	if p, err := e.GetProject(ctx, inst.ProjectID); err == nil {
		res.ProjectCompleted = p.Status == ProjectCompleted
	}
	if res.Unlocked, err = e.unlocked(ctx, inst); err != nil {
		return Approval{}, err
	}

	e.metrics.ObserveApproval(string(inst.Step))
	e.logger.Info("artifact approved", "instance", inst.String(), "version", a.Version, "unlocked", len(res.Unlocked))
	notifyObserver(ctx, e.observer, a)
	return res, nil
}

// PatchApproved edits one field of an approved artifact directly, outside
// the draft lifecycle. Catalog side effects are re-applied.
func (e *Engine) PatchApproved(ctx context.Context, inst steps.Instance, field string, value any) (Approved, error) {
	def, err := e.checkInstance(inst)
	if err != nil {
		return Approved{}, err
	}
	if err := def.ValidateField(field, value); err != nil {
		return Approved{}, err
	}
	a, err := e.approved(ctx, inst)
	if err != nil {
		return Approved{}, fmt.Errorf("patching approved %s: %w", inst, err)
	}
	if a.Content == nil {
		a.Content = steps.Content{}
	}
	a.Content[field] = value
	a.Version++
	a.ApprovedAt = timeNow()
	if err := e.putApproved(ctx, a); err != nil {
		return Approved{}, err
	}
	if _, err := e.applySideEffects(ctx, inst, a.Content); err != nil {
		return Approved{}, fmt.Errorf("patching approved %s: %w", inst, err)
	}
	e.logger.Info("approved artifact patched", "instance", inst.String(), "field", field, "version", a.Version)
	notifyObserver(ctx, e.observer, a)
	return a, nil
}

func (e *Engine) putApproved(ctx context.Context, a Approved) error {
	content, err := json.Marshal(a.Content)
	if err != nil {
		return fmt.Errorf("encoding approved %s: %w", a.Instance, err)
	}
	sidecar, err := a.Decisions.Encode()
	if err != nil {
		return err
	}
	at := a.ApprovedAt
	rec := store.Record{
		Collection: store.CollectionApproved,
		ProjectID:  a.Instance.ProjectID,
		StepKey:    string(a.Instance.Step),
		ScopeKey:   a.Instance.Scope,
		Version:    a.Version,
		Content:    content,
		Sidecar:    sidecar,
		ApprovedAt: &at,
	}
	if _, err := e.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("saving approved %s: %w", a.Instance, err)
	}
	return nil
}

// applySideEffects materializes catalogs from the artifacts that define
// them.
func (e *Engine) applySideEffects(ctx context.Context, inst steps.Instance, content steps.Content) ([]string, error) {
	switch inst.Step {
	case steps.StepSegmentsFinal:
		return nil, e.syncSegments(ctx, inst.ProjectID, content)
	case steps.StepPains:
		return nil, e.syncPains(ctx, inst.ProjectID, inst.Scope, content)
	case steps.StepPainsRanking:
		return e.applyRanking(ctx, inst.ProjectID, inst.Scope, content)
	}
	return nil, nil
}

// unlocked recomputes the dependents of inst and returns the instances
// that can now be generated.
func (e *Engine) unlocked(ctx context.Context, inst steps.Instance) ([]steps.Instance, error) {
	var out []steps.Instance
	for _, dep := range e.registry.Dependents(inst.Step) {
		reports, err := e.status.ScopeProgress(ctx, inst.ProjectID, dep)
		if err != nil {
			return nil, err
		}
		for _, r := range reports {
			if r.State == status.StatePending {
				out = append(out, r.Instance)
			}
		}
	}
	return out, nil
}

// notifyObserver is a nil-safe helper; a nil observer is a no-op.
func notifyObserver(ctx context.Context, obs ApprovalObserver, a Approved) {
	if obs == nil {
		return
	}
	obs.OnApproved(ctx, a)
}

// --- Decisions ---

// DecisionView pairs a review's recommendations with their decisions.
type DecisionView struct {
	Instance        steps.Instance          `json:"instance"`
	Source          Source                  `json:"source"`
	Recommendations []review.Recommendation `json:"recommendations"`
	Decisions       review.Decisions        `json:"decisions"`
	Missing         []string                `json:"missing,omitempty"`
	Changes         review.ChangeSet        `json:"changes"`
}

// RecordDecision upserts the human decision on one recommendation of a
// review. The draft is the working copy when one exists; while it still
// holds the approved content the approved sidecar is updated with it, so
// the finalize step reads the same decisions the reviewer sees. Recording
// the same decision twice is harmless.
func (e *Engine) RecordDecision(ctx context.Context, inst steps.Instance, recommendationID string, st review.Status, editedText string) (review.Decision, error) {
	def, err := e.checkInstance(inst)
	if err != nil {
		return review.Decision{}, err
	}
	if def.Kind != steps.KindReview {
		return review.Decision{}, invalidf("step %q is not a review step", def.Key)
	}
	kind, _, err := review.ParseID(recommendationID)
	if err != nil {
		return review.Decision{}, &invalidInput{msg: err.Error()}
	}
	if !slices.Contains(def.ReviewCategories, kind) {
		return review.Decision{}, invalidf("review %s has no %q recommendations", inst, kind)
	}

	d, err := e.drafts.Get(ctx, inst)
	hasDraft := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return review.Decision{}, err
	}
	a, err := e.approved(ctx, inst)
	hasApproved := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return review.Decision{}, err
	}
	if !hasDraft && !hasApproved {
		return review.Decision{}, fmt.Errorf("recording decision on %s: %w", inst, store.ErrNotFound)
	}

	content := a.Content
	if hasDraft {
		content = d.Content
	}
	rec, ok := review.Find(review.Extract(content, def.ReviewCategories), recommendationID)
	if !ok {
		return review.Decision{}, invalidf("review %s has no recommendation %q", inst, recommendationID)
	}
	dec, err := review.Decide(rec, st, editedText, timeNow())
	if err != nil {
		return review.Decision{}, &invalidInput{msg: err.Error()}
	}

	if hasDraft {
		if _, err := e.drafts.SetDecision(ctx, inst, recommendationID, dec); err != nil {
			return review.Decision{}, err
		}
	}
	if hasApproved && (!hasDraft || sameContent(d.Content, a.Content)) {
		if a.Decisions == nil {
			a.Decisions = review.Decisions{}
		}
		a.Decisions[recommendationID] = dec
		if err := e.putApproved(ctx, a); err != nil {
			return review.Decision{}, err
		}
		notifyObserver(ctx, e.observer, a)
		e.logger.Info("decision recorded on approved review", "instance", inst.String(), "recommendation", recommendationID, "status", st)
		return dec, nil
	}
	e.logger.Info("decision recorded", "instance", inst.String(), "recommendation", recommendationID, "status", st)
	return dec, nil
}

// sameContent reports whether a draft still carries the approved content.
func sameContent(a, b steps.Content) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}

// Decisions returns the recommendations of a review with their decisions,
// the undecided ids and the change set of the approved review that a
// finalize step would receive. The draft is read first, matching what
// Approve checks.
func (e *Engine) Decisions(ctx context.Context, inst steps.Instance) (DecisionView, error) {
	def, err := e.checkInstance(inst)
	if err != nil {
		return DecisionView{}, err
	}
	if def.Kind != steps.KindReview {
		return DecisionView{}, invalidf("step %q is not a review step", def.Key)
	}
	view := DecisionView{Instance: inst}
	approved, err := e.approved(ctx, inst)
	hasApproved := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return DecisionView{}, err
	}
	var content steps.Content
	var decisions review.Decisions
	d, err := e.drafts.Get(ctx, inst)
	switch {
	case err == nil:
		view.Source, content, decisions = SourceDraft, d.Content, d.Decisions
	case errors.Is(err, store.ErrNotFound) && hasApproved:
		view.Source, content, decisions = SourceApproved, approved.Content, approved.Decisions
	default:
		return DecisionView{}, fmt.Errorf("decisions %s: %w", inst, err)
	}
	if decisions == nil {
		decisions = review.Decisions{}
	}
	view.Recommendations = review.Extract(content, def.ReviewCategories)
	view.Decisions = decisions
	view.Missing = review.Missing(view.Recommendations, decisions)
	if hasApproved {
		view.Changes = review.Filter(review.Extract(approved.Content, def.ReviewCategories), approved.Decisions)
	} else {
		view.Changes = review.Filter(view.Recommendations, decisions)
	}
	return view, nil
}
