package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/store"
)

// FindingKind classifies a reconciliation finding.
type FindingKind string

const (
	// FindingOrphanPain is a catalog pain whose segment is gone.
	FindingOrphanPain FindingKind = "orphan_pain"
	// FindingOrphanScope is a draft or approved artifact scoped to a
	// segment or pain that is gone.
	FindingOrphanScope FindingKind = "orphan_scope"
	// FindingOrphanRanking is a ranking entry naming an unknown pain.
	FindingOrphanRanking FindingKind = "orphan_ranking"
	// FindingStaleDraft is a draft of a top-only step for a pain that is
	// no longer in the top-set.
	FindingStaleDraft FindingKind = "stale_draft"
)

// Finding is one integrity problem.
type Finding struct {
	Kind       FindingKind      `json:"kind"`
	Collection store.Collection `json:"collection"`
	Instance   steps.Instance   `json:"instance"`
	Detail     string           `json:"detail"`
	Pruned     bool             `json:"pruned"`
}

// ReconcileReport lists what Reconcile found and removed.
type ReconcileReport struct {
	ProjectID string    `json:"project_id"`
	Findings  []Finding `json:"findings"`
	Pruned    int       `json:"pruned"`
}

// Reconcile checks the project for references that drifted out of sync
// with the catalogs. With prune set, orphaned records and stale drafts
// are deleted; ranking entries are only reported since they live inside
// approved content. Running it twice is safe.
func (e *Engine) Reconcile(ctx context.Context, projectID string, prune bool) (ReconcileReport, error) {
	if _, err := e.GetProject(ctx, projectID); err != nil {
		return ReconcileReport{}, err
	}
	rep := ReconcileReport{ProjectID: projectID, Findings: []Finding{}}

	segs, err := e.Segments(ctx, projectID)
	if err != nil {
		return rep, err
	}
	pains, err := e.Pains(ctx, projectID, "")
	if err != nil {
		return rep, err
	}
	segOK := make(map[string]bool, len(segs))
	for _, s := range segs {
		segOK[s.ID] = true
	}
	painByID := make(map[string]Pain, len(pains))
	for _, p := range pains {
		painByID[p.ID] = p
	}

	add := func(f Finding, key store.Key) error {
		if prune {
			if err := e.store.Delete(ctx, key); err != nil {
				return fmt.Errorf("pruning %s: %w", key, err)
			}
			f.Pruned = true
			rep.Pruned++
		}
		rep.Findings = append(rep.Findings, f)
		return nil
	}

	for _, p := range pains {
		if segOK[p.SegmentID] {
			continue
		}
		key := store.Key{Collection: store.CollectionPains, ProjectID: projectID, ScopeKey: p.ID}
		if err := add(Finding{
			Kind:       FindingOrphanPain,
			Collection: store.CollectionPains,
			Instance:   steps.Instance{ProjectID: projectID, Scope: p.ID},
			Detail:     fmt.Sprintf("pain %q references missing segment %s", p.Name, p.SegmentID),
		}, key); err != nil {
			return rep, err
		}
	}

	for _, coll := range []store.Collection{store.CollectionDrafts, store.CollectionApproved} {
		recs, err := e.store.List(ctx, store.Query{Collection: coll, ProjectID: projectID})
		if err != nil {
			return rep, err
		}
		for _, rec := range recs {
			def, err := e.registry.Resolve(steps.Key(rec.StepKey))
			if err != nil {
				e.logger.Warn("reconcile: record of unknown step", "project", projectID, "step", rec.StepKey)
				continue
			}
			inst := steps.Instance{ProjectID: projectID, Step: def.Key, Scope: rec.ScopeKey}
			f := Finding{Collection: coll, Instance: inst}

			switch def.Scope {
			case steps.ScopeSegment:
				if segOK[rec.ScopeKey] {
					continue
				}
				f.Kind, f.Detail = FindingOrphanScope, "segment "+rec.ScopeKey+" no longer exists"
			case steps.ScopePain:
				p, ok := painByID[rec.ScopeKey]
				switch {
				case !ok || !segOK[p.SegmentID]:
					f.Kind, f.Detail = FindingOrphanScope, "pain "+rec.ScopeKey+" no longer exists"
				case def.TopOnly && !p.IsTop && coll == store.CollectionDrafts:
					f.Kind, f.Detail = FindingStaleDraft, fmt.Sprintf("pain %q is no longer a top pain", p.Name)
				default:
					continue
				}
			default:
				continue
			}
			if err := add(f, rec.Key()); err != nil {
				return rep, err
			}
		}
	}

	for _, s := range segs {
		inst := steps.Instance{ProjectID: projectID, Step: steps.StepPainsRanking, Scope: s.ID}
		a, err := e.approved(ctx, inst)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return rep, err
		}
		for _, item := range objects(a.Content, "rankings") {
			id := stringField(item, "pain_id")
			if p, ok := painByID[id]; ok && p.SegmentID == s.ID {
				continue
			}
			rep.Findings = append(rep.Findings, Finding{
				Kind:       FindingOrphanRanking,
				Collection: store.CollectionApproved,
				Instance:   inst,
				Detail:     "ranking references unknown pain " + id,
			})
		}
	}

	e.logger.Info("reconcile finished", "project", projectID, "findings", len(rep.Findings), "pruned", rep.Pruned)
	return rep, nil
}
