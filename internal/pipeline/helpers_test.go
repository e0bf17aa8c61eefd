package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/generation"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/retry"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/review"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/store"
)

func init() {
	// Freeze time for deterministic tests.
	timeNow = func() time.Time {
		return time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)
	}
}

// handler answers one step, keyed by step title.
type handler func(prompt string) (string, error)

// fakeProvider answers registered steps and echoes the output example
// for every other step.
type fakeProvider struct {
	mu       sync.Mutex
	handlers map[string]handler
	calls    map[string][]string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{handlers: map[string]handler{}, calls: map[string][]string{}}
}

func (f *fakeProvider) on(title string, h handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[title] = h
}

func (f *fakeProvider) reply(title, text string) {
	f.on(title, func(string) (string, error) { return text, nil })
}

func (f *fakeProvider) Generate(ctx context.Context, p generation.Prompt) (string, error) {
	title := taskTitle(p.User)
	f.mu.Lock()
	f.calls[title] = append(f.calls[title], p.User)
	h := f.handlers[title]
	f.mu.Unlock()
	if h != nil {
		return h(p.User)
	}
	return generation.Echo{}.Generate(ctx, p)
}

func (f *fakeProvider) prompts(title string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls[title]...)
}

func taskTitle(user string) string {
	first, _, _ := strings.Cut(user, "\n")
	return strings.TrimPrefix(first, "# Task: ")
}

// recordingObserver collects approvals.
type recordingObserver struct {
	mu       sync.Mutex
	approved []steps.Instance
}

func (o *recordingObserver) OnApproved(_ context.Context, a Approved) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.approved = append(o.approved, a.Instance)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry() *retry.Policy {
	return &retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func newTestEngine(t *testing.T, p generation.Provider) *Engine {
	t.Helper()
	e, err := New(Deps{
		Store:    store.NewMemoryStore(),
		Provider: p,
		Retry:    fastRetry(),
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	return e
}

func newProject(t *testing.T, e *Engine) Project {
	t.Helper()
	p, err := e.CreateProject(context.Background(), "Yoga studio", map[string]string{
		"product": "online yoga classes",
		"market":  "EU",
	})
	require.NoError(t, err)
	return p
}

func at(p Project, step steps.Key, scope string) steps.Instance {
	return steps.Instance{ProjectID: p.ID, Step: step, Scope: scope}
}

// generateAndApprove runs one instance through generate, decisions and
// approval.
func generateAndApprove(t *testing.T, e *Engine, inst steps.Instance) Approval {
	t.Helper()
	ctx := context.Background()
	_, err := e.Generate(ctx, inst)
	require.NoError(t, err, "generate %s", inst)
	decideAll(t, e, inst, review.StatusApplied)
	res, err := e.Approve(ctx, inst)
	require.NoError(t, err, "approve %s", inst)
	return res
}

// decideAll records status on every undecided recommendation of a review.
func decideAll(t *testing.T, e *Engine, inst steps.Instance, st review.Status) {
	t.Helper()
	def, err := e.registry.Resolve(inst.Step)
	require.NoError(t, err)
	if def.Kind != steps.KindReview {
		return
	}
	view, err := e.Decisions(context.Background(), inst)
	require.NoError(t, err)
	for _, id := range view.Missing {
		_, err := e.RecordDecision(context.Background(), inst, id, st, "")
		require.NoError(t, err)
	}
}

func segmentsJSON(names ...string) string {
	items := make([]map[string]string, len(names))
	for i, n := range names {
		items[i] = map[string]string{"name": n, "description": "people in " + n}
	}
	data, _ := json.Marshal(map[string]any{"segments": items})
	return string(data)
}

// toSegments approves every project step up to the final segment list
// and returns the materialized segments.
func toSegments(t *testing.T, e *Engine, fp *fakeProvider, p Project, names ...string) []Segment {
	t.Helper()
	fp.reply("Final segments", segmentsJSON(names...))
	for _, k := range []steps.Key{
		steps.StepValidation, steps.StepPortrait, steps.StepPortraitReview, steps.StepPortraitFinal,
		steps.StepSegments, steps.StepSegmentsReview, steps.StepSegmentsFinal,
	} {
		generateAndApprove(t, e, at(p, k, ""))
	}
	segs, err := e.Segments(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, segs, len(names))
	return segs
}

// painsFor answers the pains step with n pains named after the segment.
func painsFor(n int) handler {
	return func(prompt string) (string, error) {
		seg := sectionLine(prompt, "## Segment")
		items := make([]map[string]string, n)
		for i := range items {
			items[i] = map[string]string{
				"name":        fmt.Sprintf("%s pain %d", seg, i+1),
				"description": "hurts",
			}
		}
		data, _ := json.Marshal(map[string]any{"pains": items})
		return string(data), nil
	}
}

// rankTop answers the ranking step flagging the first top pains listed.
func rankTop(top int) handler {
	return func(prompt string) (string, error) {
		var rankings []map[string]any
		for _, line := range strings.Split(prompt, "\n") {
			rest, ok := strings.CutPrefix(line, "- id ")
			if !ok {
				continue
			}
			id, _, _ := strings.Cut(rest, ":")
			rankings = append(rankings, map[string]any{
				"pain_id":      id,
				"impact_score": 10 - len(rankings),
				"is_top_pain":  len(rankings) < top,
			})
		}
		data, _ := json.Marshal(map[string]any{"rankings": rankings})
		return string(data), nil
	}
}

// sectionLine returns the first line after a markdown heading.
func sectionLine(prompt, heading string) string {
	_, rest, ok := strings.Cut(prompt, heading+"\n\n")
	if !ok {
		return ""
	}
	line, _, _ := strings.Cut(rest, " (id ")
	return line
}
