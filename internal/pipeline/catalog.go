package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/store"
)

// --- Scope entities ---
//
// Segments and pains are materialized from approved artifacts so that
// fan-out steps have stable scope keys. Ids survive re-approval as long
// as the entity keeps its name.

// Segment is one audience segment of a project.
type Segment struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Index       int       `json:"index"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Pain is one pain point of a segment.
type Pain struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	SegmentID   string    `json:"segment_id"`
	Index       int       `json:"index"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImpactScore float64   `json:"impact_score"`
	IsTop       bool      `json:"is_top"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s Segment) ref() *steps.SegmentRef {
	return &steps.SegmentRef{ID: s.ID, Index: s.Index, Name: s.Name, Description: s.Description}
}

func (p Pain) ref() steps.PainRef {
	return steps.PainRef{
		ID: p.ID, SegmentID: p.SegmentID, Name: p.Name, Description: p.Description,
		ImpactScore: p.ImpactScore, IsTop: p.IsTop,
	}
}

// --- Reads ---

// Segments returns the project's segments in list order.
func (e *Engine) Segments(ctx context.Context, projectID string) ([]Segment, error) {
	recs, err := e.store.List(ctx, store.Query{Collection: store.CollectionSegments, ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	out := make([]Segment, 0, len(recs))
	for _, rec := range recs {
		var s Segment
		if err := json.Unmarshal(rec.Content, &s); err != nil {
			return nil, fmt.Errorf("decoding segment %s: %w", rec.ScopeKey, err)
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// Pains returns the pains of one segment, or of the whole project when
// segmentID is empty, ordered by segment then pain index. Pains whose
// segment no longer exists sort last.
func (e *Engine) Pains(ctx context.Context, projectID, segmentID string) ([]Pain, error) {
	recs, err := e.store.List(ctx, store.Query{Collection: store.CollectionPains, ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	segs, err := e.Segments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	segIndex := make(map[string]int, len(segs))
	for _, s := range segs {
		segIndex[s.ID] = s.Index
	}

	out := make([]Pain, 0, len(recs))
	for _, rec := range recs {
		var p Pain
		if err := json.Unmarshal(rec.Content, &p); err != nil {
			return nil, fmt.Errorf("decoding pain %s: %w", rec.ScopeKey, err)
		}
		if segmentID != "" && p.SegmentID != segmentID {
			continue
		}
		out = append(out, p)
	}
	rank := func(p Pain) int {
		if i, ok := segIndex[p.SegmentID]; ok {
			return i
		}
		return len(segs) + 1
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func (e *Engine) segment(ctx context.Context, projectID, id string) (Segment, error) {
	rec, err := e.store.Get(ctx, store.Key{Collection: store.CollectionSegments, ProjectID: projectID, ScopeKey: id})
	if err != nil {
		return Segment{}, fmt.Errorf("segment %s: %w", id, err)
	}
	var s Segment
	if err := json.Unmarshal(rec.Content, &s); err != nil {
		return Segment{}, fmt.Errorf("decoding segment %s: %w", id, err)
	}
	return s, nil
}

func (e *Engine) pain(ctx context.Context, projectID, id string) (Pain, error) {
	rec, err := e.store.Get(ctx, store.Key{Collection: store.CollectionPains, ProjectID: projectID, ScopeKey: id})
	if err != nil {
		return Pain{}, fmt.Errorf("pain %s: %w", id, err)
	}
	var p Pain
	if err := json.Unmarshal(rec.Content, &p); err != nil {
		return Pain{}, fmt.Errorf("decoding pain %s: %w", id, err)
	}
	return p, nil
}

// painTargets returns the pains a pain-scoped step instantiates for.
// Pains pointing at a missing segment are reported as orphans instead.
func (e *Engine) painTargets(ctx context.Context, projectID string, topOnly bool) (targets, orphans []string, err error) {
	pains, err := e.Pains(ctx, projectID, "")
	if err != nil {
		return nil, nil, err
	}
	segs, err := e.Segments(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	known := make(map[string]bool, len(segs))
	for _, s := range segs {
		known[s.ID] = true
	}
	targets = []string{}
	for _, p := range pains {
		if topOnly && !p.IsTop {
			continue
		}
		if !known[p.SegmentID] {
			orphans = append(orphans, (&OrphanReferenceError{
				Kind: "pain", ID: p.ID, Ref: "segment " + p.SegmentID + " no longer exists",
			}).Error())
			continue
		}
		targets = append(targets, p.ID)
	}
	return targets, orphans, nil
}

// --- Writes ---

// SetTopPain flags or unflags a pain as top, overriding the ranking.
// Drafts of per-pain steps are left alone; Reconcile reports the ones
// that became stale.
func (e *Engine) SetTopPain(ctx context.Context, projectID, painID string, top bool) (Pain, error) {
	p, err := e.pain(ctx, projectID, painID)
	if err != nil {
		return Pain{}, err
	}
	p.IsTop = top
	if err := e.putPain(ctx, p); err != nil {
		return Pain{}, err
	}
	e.logger.Info("top pain set", "project", projectID, "pain", painID, "top", top)
	return p, nil
}

func (e *Engine) putSegment(ctx context.Context, s Segment) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	_, err = e.store.Upsert(ctx, store.Record{
		Collection: store.CollectionSegments, ProjectID: s.ProjectID, ScopeKey: s.ID, Content: data,
	})
	return err
}

func (e *Engine) putPain(ctx context.Context, p Pain) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = e.store.Upsert(ctx, store.Record{
		Collection: store.CollectionPains, ProjectID: p.ProjectID, ScopeKey: p.ID, Content: data,
	})
	return err
}

// syncSegments materializes the approved final segment list. Segments
// matched by name keep their id; dropped ones leave the catalog and
// their scoped records become orphans for Reconcile.
func (e *Engine) syncSegments(ctx context.Context, projectID string, content steps.Content) error {
	existing, err := e.Segments(ctx, projectID)
	if err != nil {
		return err
	}
	byName := make(map[string]Segment, len(existing))
	for _, s := range existing {
		byName[normalizeName(s.Name)] = s
	}

	keep := map[string]bool{}
	for i, item := range objects(content, "segments") {
		name := stringField(item, "name")
		s, ok := byName[normalizeName(name)]
		if !ok || keep[s.ID] {
			s = Segment{ID: uuid.NewString(), ProjectID: projectID, CreatedAt: timeNow()}
		}
		s.Index = i
		s.Name = name
		s.Description = stringField(item, "description")
		if err := e.putSegment(ctx, s); err != nil {
			return fmt.Errorf("saving segment %q: %w", name, err)
		}
		keep[s.ID] = true
	}
	for _, s := range existing {
		if keep[s.ID] {
			continue
		}
		if err := e.store.Delete(ctx, store.Key{Collection: store.CollectionSegments, ProjectID: projectID, ScopeKey: s.ID}); err != nil {
			return err
		}
		e.logger.Warn("segment dropped from catalog", "project", projectID, "segment", s.ID, "name", s.Name)
	}
	return nil
}

// syncPains materializes a segment's approved pain list. Pains matched
// by name keep their id, score and top flag.
func (e *Engine) syncPains(ctx context.Context, projectID, segmentID string, content steps.Content) error {
	existing, err := e.Pains(ctx, projectID, segmentID)
	if err != nil {
		return err
	}
	byName := make(map[string]Pain, len(existing))
	for _, p := range existing {
		byName[normalizeName(p.Name)] = p
	}

	keep := map[string]bool{}
	for i, item := range objects(content, "pains") {
		name := stringField(item, "name")
		p, ok := byName[normalizeName(name)]
		if !ok || keep[p.ID] {
			p = Pain{ID: uuid.NewString(), ProjectID: projectID, SegmentID: segmentID, CreatedAt: timeNow()}
		}
		p.Index = i
		p.Name = name
		p.Description = stringField(item, "description")
		if err := e.putPain(ctx, p); err != nil {
			return fmt.Errorf("saving pain %q: %w", name, err)
		}
		keep[p.ID] = true
	}
	for _, p := range existing {
		if keep[p.ID] {
			continue
		}
		if err := e.store.Delete(ctx, store.Key{Collection: store.CollectionPains, ProjectID: projectID, ScopeKey: p.ID}); err != nil {
			return err
		}
	}
	return nil
}

// applyRanking copies scores and top flags from an approved ranking onto
// the segment's pains. Pains the ranking omits lose their top flag.
// Rankings naming unknown pains are returned as orphans.
func (e *Engine) applyRanking(ctx context.Context, projectID, segmentID string, content steps.Content) ([]string, error) {
	pains, err := e.Pains(ctx, projectID, segmentID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Pain, len(pains))
	for _, p := range pains {
		p.IsTop = false
		byID[p.ID] = p
	}

	var orphans []string
	for _, item := range objects(content, "rankings") {
		id := stringField(item, "pain_id")
		p, ok := byID[id]
		if !ok {
			orphans = append(orphans, (&OrphanReferenceError{
				Kind: "ranking", ID: id, Ref: "no such pain in segment " + segmentID,
			}).Error())
			continue
		}
		p.ImpactScore = numberField(item, "impact_score")
		p.IsTop, _ = item["is_top_pain"].(bool)
		byID[id] = p
	}
	for _, p := range pains {
		if err := e.putPain(ctx, byID[p.ID]); err != nil {
			return nil, fmt.Errorf("saving ranking of pain %s: %w", p.ID, err)
		}
	}
	for _, o := range orphans {
		e.logger.Warn("ranking references unknown pain", "project", projectID, "segment", segmentID, "orphan", o)
	}
	return orphans, nil
}

// --- status.Scopes adapter ---

type scopeCatalog struct{ e *Engine }

func (c scopeCatalog) Segments(ctx context.Context, projectID string) ([]string, error) {
	segs, err := c.e.Segments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = s.ID
	}
	return out, nil
}

func (c scopeCatalog) Pains(ctx context.Context, projectID string, topOnly bool) ([]string, error) {
	targets, _, err := c.e.painTargets(ctx, projectID, topOnly)
	return targets, err
}

func (c scopeCatalog) SegmentOf(ctx context.Context, projectID, painID string) (string, error) {
	p, err := c.e.pain(ctx, projectID, painID)
	if errors.Is(err, store.ErrNotFound) {
		return "", &OrphanReferenceError{Kind: "pain", ID: painID, Ref: "not in the pain catalog"}
	}
	if err != nil {
		return "", err
	}
	return p.SegmentID, nil
}

// --- Content helpers ---

func objects(content steps.Content, field string) []map[string]any {
	items, _ := content[field].([]any)
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func numberField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
