package pipeline

import (
	"context"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/batch"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/store"
)

// RunMissing generates the draft of every target scope of a fan-out step
// that has neither a draft nor an approved artifact. Per-scope failures
// are reported in the result; the batch itself only fails when it cannot
// be planned.
func (e *Engine) RunMissing(ctx context.Context, projectID string, step steps.Key, concurrency int) (batch.Result, error) {
	def, err := e.registry.Resolve(step)
	if err != nil {
		return batch.Result{}, err
	}
	if !def.Scope.FanOut() {
		return batch.Result{}, invalidf("step %q is project-scoped: generate it directly", step)
	}
	if _, err := e.GetProject(ctx, projectID); err != nil {
		return batch.Result{}, err
	}
	return e.batch.RunMissing(ctx, projectID, string(step), concurrency)
}

// batchRunner adapts the engine to batch.Runner.
type batchRunner struct{ e *Engine }

func (r batchRunner) Targets(ctx context.Context, projectID, step string) ([]string, []string, error) {
	def, err := r.e.registry.Resolve(steps.Key(step))
	if err != nil {
		return nil, nil, err
	}
	if def.Scope == steps.ScopePain {
		return r.e.painTargets(ctx, projectID, def.TopOnly)
	}
	targets, err := r.e.status.Targets(ctx, projectID, def)
	return targets, nil, err
}

func (r batchRunner) Existing(ctx context.Context, projectID, step string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, coll := range []store.Collection{store.CollectionDrafts, store.CollectionApproved} {
		recs, err := r.e.store.List(ctx, store.Query{Collection: coll, ProjectID: projectID, StepKey: step})
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			out[rec.ScopeKey] = true
		}
	}
	return out, nil
}

func (r batchRunner) GenerateScope(ctx context.Context, projectID, step, scope string) error {
	_, err := r.e.Generate(ctx, steps.Instance{ProjectID: projectID, Step: steps.Key(step), Scope: scope})
	return err
}
