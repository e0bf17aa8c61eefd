package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/drafts"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/generation"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/retry"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/review"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/store"
)

// target is a checked instance with its resolved scope entities.
type target struct {
	inst    steps.Instance
	def     steps.Def
	project Project
	segment *Segment
	pain    *Pain
}

// prepare runs every precondition of a generation call: instance shape,
// scope existence, prerequisite gating and top-set eligibility.
func (e *Engine) prepare(ctx context.Context, inst steps.Instance) (target, error) {
	def, err := e.checkInstance(inst)
	if err != nil {
		return target{}, err
	}
	p, err := e.GetProject(ctx, inst.ProjectID)
	if err != nil {
		return target{}, err
	}
	t := target{inst: inst, def: def, project: p}

	switch def.Scope {
	case steps.ScopeSegment:
		s, err := e.segment(ctx, inst.ProjectID, inst.Scope)
		if errors.Is(err, store.ErrNotFound) {
			return target{}, &OrphanReferenceError{Kind: "segment", ID: inst.Scope, Ref: "not in the segment catalog"}
		}
		if err != nil {
			return target{}, err
		}
		t.segment = &s
	case steps.ScopePain:
		pn, err := e.pain(ctx, inst.ProjectID, inst.Scope)
		if errors.Is(err, store.ErrNotFound) {
			return target{}, &OrphanReferenceError{Kind: "pain", ID: inst.Scope, Ref: "not in the pain catalog"}
		}
		if err != nil {
			return target{}, err
		}
		s, err := e.segment(ctx, inst.ProjectID, pn.SegmentID)
		if errors.Is(err, store.ErrNotFound) {
			return target{}, &OrphanReferenceError{Kind: "pain", ID: pn.ID, Ref: "segment " + pn.SegmentID + " no longer exists"}
		}
		if err != nil {
			return target{}, err
		}
		t.pain, t.segment = &pn, &s
	}

	blockers, err := e.status.Blockers(ctx, inst)
	if err != nil {
		return target{}, err
	}
	if len(blockers) > 0 {
		return target{}, &MissingPrerequisiteError{Instance: inst, Blockers: blockers}
	}

	if def.TopOnly && !t.pain.IsTop {
		return target{}, &NotEligibleError{Instance: inst, Reason: "pain is not marked as a top pain"}
	}
	return t, nil
}

// inputs gathers the approved upstream artifacts of t.
func (e *Engine) inputs(ctx context.Context, t target) (steps.Inputs, error) {
	in := steps.Inputs{ProjectName: t.project.Name, Brief: t.project.Onboarding}
	if t.segment != nil {
		in.Segment = t.segment.ref()
	}
	if t.pain != nil {
		ref := t.pain.ref()
		in.Pain = &ref
	}

	prereqs, err := e.status.Prerequisites(ctx, t.inst)
	if err != nil {
		return steps.Inputs{}, err
	}
	for _, p := range prereqs {
		// The review reaches a finalize step only through its filtered changes.
		if t.def.Kind == steps.KindFinalize && p.Step != t.def.Source {
			continue
		}
		pd, err := e.registry.Resolve(p.Step)
		if err != nil {
			return steps.Inputs{}, err
		}
		a, err := e.approved(ctx, p)
		if err != nil {
			return steps.Inputs{}, fmt.Errorf("loading input %s: %w", p, err)
		}
		in.Artifacts = append(in.Artifacts, steps.ArtifactInput{
			Step:    p.Step,
			Title:   pd.Title,
			Scope:   p.Scope,
			Label:   e.scopeLabel(ctx, pd.Scope, p),
			Content: a.Content,
		})
	}

	if t.def.Kind == steps.KindFinalize {
		cs, err := e.changeSet(ctx, t)
		if err != nil {
			return steps.Inputs{}, err
		}
		in.Changes = &cs
	}

	for _, p := range t.def.Prerequisites {
		if p.Step == steps.StepPains && t.segment != nil {
			pains, err := e.Pains(ctx, t.inst.ProjectID, t.segment.ID)
			if err != nil {
				return steps.Inputs{}, err
			}
			for _, pn := range pains {
				in.Pains = append(in.Pains, pn.ref())
			}
		}
	}
	return in, nil
}

// changeSet filters the approved review feeding a finalize step.
func (e *Engine) changeSet(ctx context.Context, t target) (review.ChangeSet, error) {
	rd, err := e.registry.Resolve(t.def.Review)
	if err != nil {
		return review.ChangeSet{}, err
	}
	rev, err := e.approved(ctx, steps.Instance{ProjectID: t.inst.ProjectID, Step: rd.Key, Scope: t.inst.Scope})
	if err != nil {
		return review.ChangeSet{}, fmt.Errorf("loading approved review %s: %w", rd.Key, err)
	}
	recs := review.Extract(rev.Content, rd.ReviewCategories)
	return review.Filter(recs, rev.Decisions), nil
}

func (e *Engine) scopeLabel(ctx context.Context, scope steps.Scope, inst steps.Instance) string {
	switch scope {
	case steps.ScopeSegment:
		if s, err := e.segment(ctx, inst.ProjectID, inst.Scope); err == nil {
			return s.Name
		}
	case steps.ScopePain:
		if p, err := e.pain(ctx, inst.ProjectID, inst.Scope); err == nil {
			return p.Name
		}
	}
	return inst.Scope
}

// produce calls the provider through the retry executor. Output that does
// not decode or does not match the step schema is malformed and retried.
// With a focus field only that field is returned.
func (e *Engine) produce(ctx context.Context, t target, in steps.Inputs) (steps.Content, error) {
	prompt, err := t.def.Prompt(in, e.maxTokens)
	if err != nil {
		return nil, err
	}
	step := string(t.def.Key)

	policy := e.policy
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		e.metrics.ObserveRetry(step)
		e.logger.Warn("generation attempt failed, retrying",
			"instance", t.inst.String(), "attempt", attempt, "delay", delay, "error", err)
		if e.policy.OnRetry != nil {
			e.policy.OnRetry(attempt, err, delay)
		}
	}

	start := time.Now()
	content, err := retry.Do(ctx, policy, func(ctx context.Context) (steps.Content, error) {
		raw, err := e.provider.Generate(ctx, prompt)
		if err != nil {
			return nil, err
		}
		obj, err := generation.DecodeObject(raw)
		if err != nil {
			return nil, err
		}
		if in.Focus != "" {
			v, ok := obj[in.Focus]
			if !ok {
				return nil, fmt.Errorf("%w: field %q missing from output", generation.ErrMalformedOutput, in.Focus)
			}
			if err := t.def.ValidateField(in.Focus, v); err != nil {
				return nil, fmt.Errorf("%w: %v", generation.ErrMalformedOutput, err)
			}
			return steps.Content{in.Focus: v}, nil
		}
		if err := t.def.Validate(obj); err != nil {
			return nil, fmt.Errorf("%w: %v", generation.ErrMalformedOutput, err)
		}
		return obj, nil
	})

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	e.metrics.ObserveGeneration(step, outcome, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("generating %s: %w", t.inst, err)
	}
	return content, nil
}

// --- Operations ---

// Generate produces the first draft of an instance. A draft that already
// exists yields drafts.ErrAlreadyExists without calling the provider; a
// racing writer that wins during the call yields the same error.
func (e *Engine) Generate(ctx context.Context, inst steps.Instance) (drafts.Draft, error) {
	t, err := e.prepare(ctx, inst)
	if err != nil {
		return drafts.Draft{}, err
	}
	exists, err := e.drafts.Exists(ctx, inst)
	if err != nil {
		return drafts.Draft{}, err
	}
	if exists {
		return drafts.Draft{}, fmt.Errorf("draft %s: %w", inst, drafts.ErrAlreadyExists)
	}

	in, err := e.inputs(ctx, t)
	if err != nil {
		return drafts.Draft{}, err
	}
	content, err := e.produce(ctx, t, in)
	if err != nil {
		return drafts.Draft{}, err
	}
	d, err := e.drafts.Create(ctx, inst, content)
	if err != nil {
		return drafts.Draft{}, err
	}
	e.logger.Info("draft generated", "instance", inst.String())
	return d, nil
}

// Regenerate replaces the whole draft with a fresh generation. The new
// draft starts at version 1 and carries no decisions.
func (e *Engine) Regenerate(ctx context.Context, inst steps.Instance) (drafts.Draft, error) {
	t, err := e.prepare(ctx, inst)
	if err != nil {
		return drafts.Draft{}, err
	}
	in, err := e.inputs(ctx, t)
	if err != nil {
		return drafts.Draft{}, err
	}
	content, err := e.produce(ctx, t, in)
	if err != nil {
		return drafts.Draft{}, err
	}
	d, err := e.drafts.ReplaceAll(ctx, inst, content)
	if err != nil {
		return drafts.Draft{}, err
	}
	e.logger.Info("draft regenerated", "instance", inst.String())
	return d, nil
}

// RegenerateField asks the provider for a new value of one field of the
// existing draft and patches it in, bumping the version.
func (e *Engine) RegenerateField(ctx context.Context, inst steps.Instance, field string) (drafts.Draft, error) {
	t, err := e.prepare(ctx, inst)
	if err != nil {
		return drafts.Draft{}, err
	}
	if _, ok := t.def.Field(field); !ok {
		return drafts.Draft{}, &steps.ContentError{Step: t.def.Key, Field: field, Problem: "is not a field of this step"}
	}
	current, err := e.drafts.Get(ctx, inst)
	if err != nil {
		return drafts.Draft{}, fmt.Errorf("regenerating %s.%s: %w", inst, field, err)
	}

	in, err := e.inputs(ctx, t)
	if err != nil {
		return drafts.Draft{}, err
	}
	in.Focus = field
	in.Current = current.Content

	content, err := e.produce(ctx, t, in)
	if err != nil {
		return drafts.Draft{}, err
	}
	d, err := e.drafts.PatchField(ctx, inst, field, content[field])
	if err != nil {
		return drafts.Draft{}, err
	}
	e.logger.Info("draft field regenerated", "instance", inst.String(), "field", field, "version", d.Version)
	return d, nil
}
