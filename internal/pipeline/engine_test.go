package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/apperr"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/drafts"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/generation"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/retry"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/review"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/status"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/store"
)

const validationJSON = `{"what_brand_sells":"yoga","who_needs_it":"office workers","why_they_need_it":"back pain","market_fit":"good"}`

// --- New ---

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{Provider: generation.Echo{}})
	assert.Error(t, err)
	_, err = New(Deps{Store: store.NewMemoryStore()})
	assert.Error(t, err)
}

// --- Projects ---

func TestProjects_Lifecycle(t *testing.T) {
	e := newTestEngine(t, generation.Echo{})
	ctx := context.Background()

	p := newProject(t, e)
	assert.Equal(t, steps.StepValidation, p.CurrentStep)
	assert.Equal(t, ProjectActive, p.Status)
	assert.Equal(t, timeNow(), p.CreatedAt)

	got, err := e.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "online yoga classes", got.Onboarding["product"])

	_, err = e.CreateProject(ctx, "  ", nil)
	assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))

	list, err := e.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	generateAndApprove(t, e, at(p, steps.StepValidation, ""))
	n, err := e.DeleteProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "project, draft and approved artifact")

	_, err = e.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = e.DeleteProject(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Generate ---

func TestGenerate_Gating(t *testing.T) {
	e := newTestEngine(t, generation.Echo{})
	ctx := context.Background()
	p := newProject(t, e)

	_, err := e.Generate(ctx, at(p, steps.StepPortrait, ""))
	var missing *MissingPrerequisiteError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []steps.Instance{at(p, steps.StepValidation, "")}, missing.Blockers)
	assert.Equal(t, apperr.CodeMissingPrerequisite, apperr.CodeOf(err))
	assert.Contains(t, err.Error(), "complete "+p.ID+"/validation first")

	// A draft of the prerequisite is not enough.
	_, err = e.Generate(ctx, at(p, steps.StepValidation, ""))
	require.NoError(t, err)
	_, err = e.Generate(ctx, at(p, steps.StepPortrait, ""))
	require.ErrorAs(t, err, &missing)

	_, err = e.Approve(ctx, at(p, steps.StepValidation, ""))
	require.NoError(t, err)
	_, err = e.Generate(ctx, at(p, steps.StepPortrait, ""))
	assert.NoError(t, err)
}

func TestGenerate_InstanceShape(t *testing.T) {
	e := newTestEngine(t, generation.Echo{})
	ctx := context.Background()
	p := newProject(t, e)

	_, err := e.Generate(ctx, at(p, steps.StepValidation, "seg-1"))
	assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))

	_, err = e.Generate(ctx, at(p, steps.StepJobs, ""))
	assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))

	_, err = e.Generate(ctx, at(p, "horoscope", ""))
	assert.Equal(t, apperr.CodeUnknownStep, apperr.CodeOf(err))

	_, err = e.Generate(ctx, at(p, steps.StepSegmentDetails, "ghost"))
	var orphan *OrphanReferenceError
	require.ErrorAs(t, err, &orphan)
	assert.Equal(t, "segment", orphan.Kind)

	_, err = e.Generate(ctx, steps.Instance{ProjectID: "nope", Step: steps.StepValidation})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGenerate_AlreadyExistsSkipsProvider(t *testing.T) {
	fp := newFakeProvider()
	e := newTestEngine(t, fp)
	ctx := context.Background()
	p := newProject(t, e)

	_, err := e.Generate(ctx, at(p, steps.StepValidation, ""))
	require.NoError(t, err)
	_, err = e.Generate(ctx, at(p, steps.StepValidation, ""))
	assert.ErrorIs(t, err, drafts.ErrAlreadyExists)
	assert.Len(t, fp.prompts("Business validation"), 1)
}

func TestGenerate_RetriesMalformedOutput(t *testing.T) {
	sp := generation.NewScripted(
		generation.Reply{Text: "Sorry, here you go: {not json"},
		generation.Reply{Text: `{"what_brand_sells":"yoga"}`},
		generation.Reply{Text: "```json\n" + validationJSON + "\n```"},
	)
	e := newTestEngine(t, sp)
	p := newProject(t, e)

	d, err := e.Generate(context.Background(), at(p, steps.StepValidation, ""))
	require.NoError(t, err)
	assert.Equal(t, "yoga", d.Content["what_brand_sells"])
	assert.Len(t, sp.Calls(), 3, "decode failure and schema violation are both retried")
}

func TestGenerate_FatalErrorNotRetried(t *testing.T) {
	sp := generation.NewScripted(generation.Reply{Err: &generation.ProviderError{StatusCode: 401, Message: "bad key"}})
	e := newTestEngine(t, sp)
	p := newProject(t, e)

	_, err := e.Generate(context.Background(), at(p, steps.StepValidation, ""))
	require.Error(t, err)
	assert.False(t, errors.Is(err, retry.ErrRetryExhausted))
	assert.Len(t, sp.Calls(), 1)

	exists, err := e.drafts.Exists(context.Background(), at(p, steps.StepValidation, ""))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGenerate_RetryExhausted(t *testing.T) {
	sp := generation.NewScripted(generation.Reply{Err: &generation.ProviderError{StatusCode: 503, Message: "overloaded"}})
	e := newTestEngine(t, sp)
	p := newProject(t, e)

	_, err := e.Generate(context.Background(), at(p, steps.StepValidation, ""))
	require.ErrorIs(t, err, retry.ErrRetryExhausted)
	assert.Equal(t, apperr.CodeRetryExhausted, apperr.CodeOf(err))
	assert.Len(t, sp.Calls(), 3)
}

// --- Regenerate / edit ---

func TestRegenerate_ResetsVersion(t *testing.T) {
	fp := newFakeProvider()
	e := newTestEngine(t, fp)
	ctx := context.Background()
	p := newProject(t, e)
	inst := at(p, steps.StepValidation, "")

	_, err := e.Generate(ctx, inst)
	require.NoError(t, err)
	d, err := e.EditField(ctx, inst, "market_fit", "weak")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Version)

	fp.reply("Business validation", validationJSON)
	d, err = e.Regenerate(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Version)
	assert.Equal(t, "good", d.Content["market_fit"])
}

func TestRegenerateField_PatchesOnlyThatField(t *testing.T) {
	fp := newFakeProvider()
	e := newTestEngine(t, fp)
	ctx := context.Background()
	p := newProject(t, e)
	inst := at(p, steps.StepValidation, "")

	fp.reply("Business validation", validationJSON)
	_, err := e.Generate(ctx, inst)
	require.NoError(t, err)

	fp.reply("Business validation", `{"what_brand_sells":"IGNORED","market_fit":"excellent"}`)
	d, err := e.RegenerateField(ctx, inst, "market_fit")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Version)
	assert.Equal(t, "excellent", d.Content["market_fit"])
	assert.Equal(t, "yoga", d.Content["what_brand_sells"])

	prompts := fp.prompts("Business validation")
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], `Rewrite only the field "market_fit"`)

	_, err = e.RegenerateField(ctx, inst, "horoscope")
	assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))
}

func TestRegenerateField_RequiresDraft(t *testing.T) {
	e := newTestEngine(t, generation.Echo{})
	p := newProject(t, e)
	_, err := e.RegenerateField(context.Background(), at(p, steps.StepValidation, ""), "market_fit")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Approve ---

func TestApprove_AdvancesProjectAndUnlocks(t *testing.T) {
	e := newTestEngine(t, generation.Echo{})
	obs := &recordingObserver{}
	e.SetObserver(obs)
	ctx := context.Background()
	p := newProject(t, e)

	res := generateAndApprove(t, e, at(p, steps.StepValidation, ""))
	assert.Equal(t, timeNow(), res.Approved.ApprovedAt)
	assert.Equal(t, []steps.Instance{at(p, steps.StepPortrait, "")}, res.Unlocked)
	assert.False(t, res.ProjectCompleted)
	assert.Equal(t, []steps.Instance{at(p, steps.StepValidation, "")}, obs.approved)

	got, err := e.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, steps.StepPortrait, got.CurrentStep)

	rep, err := e.Status(ctx, at(p, steps.StepValidation, ""))
	require.NoError(t, err)
	assert.Equal(t, status.StateCompleted, rep.State)
}

func TestApprove_RequiresDraft(t *testing.T) {
	e := newTestEngine(t, generation.Echo{})
	p := newProject(t, e)
	_, err := e.Approve(context.Background(), at(p, steps.StepValidation, ""))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApprove_ReapprovalOverwrites(t *testing.T) {
	fp := newFakeProvider()
	e := newTestEngine(t, fp)
	ctx := context.Background()
	p := newProject(t, e)
	inst := at(p, steps.StepValidation, "")

	generateAndApprove(t, e, inst)
	_, err := e.EditField(ctx, inst, "market_fit", "revised")
	require.NoError(t, err)

	a, err := e.ResolveArtifact(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, SourceApproved, a.Source)
	assert.Equal(t, "...", a.Content["market_fit"], "edits stay in the draft until approved")

	_, err = e.Approve(ctx, inst)
	require.NoError(t, err)
	a, err = e.ResolveArtifact(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, "revised", a.Content["market_fit"])
	assert.Equal(t, 2, a.Version)
}

func TestApprove_TerminalStepCompletesProject(t *testing.T) {
	reg, err := steps.NewRegistry(
		steps.Def{Key: "brief", Title: "Brief", Fields: []steps.Field{{Name: "text", Type: steps.FieldString}}, Example: `{"text":"..."}`},
		steps.Def{Key: "summary", Title: "Summary", Prerequisites: []steps.Prerequisite{{Step: "brief"}},
			Fields: []steps.Field{{Name: "text", Type: steps.FieldString}}, Example: `{"text":"..."}`},
	)
	require.NoError(t, err)
	e, err := New(Deps{Store: store.NewMemoryStore(), Provider: generation.Echo{}, Registry: reg, Logger: quietLogger()})
	require.NoError(t, err)
	p := newProject(t, e)
	assert.Equal(t, steps.Key("brief"), p.CurrentStep)

	generateAndApprove(t, e, at(p, "brief", ""))
	res := generateAndApprove(t, e, at(p, "summary", ""))
	assert.True(t, res.ProjectCompleted)

	got, err := e.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, ProjectCompleted, got.Status)
	assert.Equal(t, steps.Key("summary"), got.CurrentStep)
}

func TestPatchApproved(t *testing.T) {
	e := newTestEngine(t, generation.Echo{})
	ctx := context.Background()
	p := newProject(t, e)
	inst := at(p, steps.StepValidation, "")

	_, err := e.PatchApproved(ctx, inst, "market_fit", "x")
	assert.ErrorIs(t, err, store.ErrNotFound)

	generateAndApprove(t, e, inst)
	a, err := e.PatchApproved(ctx, inst, "market_fit", "strong")
	require.NoError(t, err)
	assert.Equal(t, "strong", a.Content["market_fit"])
	assert.Equal(t, 2, a.Version)

	_, err = e.PatchApproved(ctx, inst, "market_fit", 42.0)
	assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))

	d, err := e.Draft(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, "...", d.Content["market_fit"], "drafts are untouched")
}

// --- Decisions ---

func TestRecordDecision_Validation(t *testing.T) {
	e := newTestEngine(t, generation.Echo{})
	ctx := context.Background()
	p := newProject(t, e)
	generateAndApprove(t, e, at(p, steps.StepValidation, ""))
	generateAndApprove(t, e, at(p, steps.StepPortrait, ""))
	inst := at(p, steps.StepPortraitReview, "")

	_, err := e.RecordDecision(ctx, inst, "changes-0", review.StatusApplied, "")
	assert.ErrorIs(t, err, store.ErrNotFound, "no review yet")

	_, err = e.Generate(ctx, inst)
	require.NoError(t, err)

	_, err = e.RecordDecision(ctx, at(p, steps.StepPortrait, ""), "changes-0", review.StatusApplied, "")
	assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err), "not a review step")

	_, err = e.RecordDecision(ctx, inst, "changes-7", review.StatusApplied, "")
	assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))

	_, err = e.RecordDecision(ctx, inst, "changes-0", review.StatusEdited, "  ")
	assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))

	_, err = e.RecordDecision(ctx, inst, "changes-0", "maybe", "")
	assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))

	dec, err := e.RecordDecision(ctx, inst, "changes-0", review.StatusEdited, "tighter")
	require.NoError(t, err)
	assert.Equal(t, "tighter", dec.EditedText)
	assert.Equal(t, timeNow(), dec.DecidedAt)

	_, err = e.RecordDecision(ctx, inst, "changes-0", review.StatusEdited, "tighter")
	require.NoError(t, err, "idempotent")

	view, err := e.Decisions(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, SourceDraft, view.Source)
	assert.Len(t, view.Recommendations, 3)
	assert.Equal(t, []string{"additions-0", "removals-0"}, view.Missing)
	require.Len(t, view.Changes.Changes, 1)
	assert.Equal(t, "tighter", view.Changes.Changes[0].Text)
}

func TestRecordDecision_OnApprovedReview(t *testing.T) {
	e := newTestEngine(t, generation.Echo{})
	ctx := context.Background()
	p := newProject(t, e)
	for _, k := range []steps.Key{steps.StepValidation, steps.StepPortrait, steps.StepPortraitReview} {
		generateAndApprove(t, e, at(p, k, ""))
	}
	inst := at(p, steps.StepPortraitReview, "")
	require.NoError(t, e.drafts.Delete(ctx, inst))

	_, err := e.RecordDecision(ctx, inst, "removals-0", review.StatusDismissed, "")
	require.NoError(t, err)

	view, err := e.Decisions(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, SourceApproved, view.Source)
	assert.Equal(t, review.StatusDismissed, view.Decisions["removals-0"].Status)
	assert.Len(t, view.Changes.Changes, 2)
}

func TestRecordDecision_AfterApprovalReachesFinalize(t *testing.T) {
	fp := newFakeProvider()
	e := newTestEngine(t, fp)
	obs := &recordingObserver{}
	e.SetObserver(obs)
	ctx := context.Background()
	p := newProject(t, e)
	for _, k := range []steps.Key{steps.StepValidation, steps.StepPortrait, steps.StepPortraitReview} {
		generateAndApprove(t, e, at(p, k, ""))
	}
	inst := at(p, steps.StepPortraitReview, "")
	_, err := e.Draft(ctx, inst)
	require.NoError(t, err, "the draft is kept after approval")

	_, err = e.RecordDecision(ctx, inst, "removals-0", review.StatusDismissed, "")
	require.NoError(t, err)

	view, err := e.Decisions(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, SourceDraft, view.Source)
	assert.Equal(t, review.StatusDismissed, view.Decisions["removals-0"].Status)
	assert.Empty(t, view.Missing)
	assert.Equal(t, []string{"changes", "additions"}, view.Changes.Kinds())

	a, err := e.ResolveArtifact(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, review.StatusDismissed, a.Decisions["removals-0"].Status)
	assert.Len(t, obs.approved, 4, "the approved review changed")

	_, err = e.Generate(ctx, at(p, steps.StepPortraitFinal, ""))
	require.NoError(t, err)
	prompts := fp.prompts("Final portrait")
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "- [changes] ...")
	assert.NotContains(t, prompts[0], "[removals]")
}

func TestDecisions_AfterRegenerateMatchesApprove(t *testing.T) {
	fp := newFakeProvider()
	e := newTestEngine(t, fp)
	ctx := context.Background()
	p := newProject(t, e)
	for _, k := range []steps.Key{steps.StepValidation, steps.StepPortrait, steps.StepPortraitReview} {
		generateAndApprove(t, e, at(p, k, ""))
	}
	inst := at(p, steps.StepPortraitReview, "")

	fp.reply("Portrait review", `{
  "changes": [],
  "additions": [{"field": "psychographics", "text": "values calm", "reasoning": "r"},
                {"field": "psychographics", "text": "avoids gyms", "reasoning": "r"}],
  "removals": []
}`)
	_, err := e.Regenerate(ctx, inst)
	require.NoError(t, err)

	view, err := e.Decisions(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, SourceDraft, view.Source)
	assert.Equal(t, []string{"additions-0", "additions-1"}, view.Missing)
	assert.Len(t, view.Changes.Changes, 3, "finalize still reads the approved review")

	_, err = e.Approve(ctx, inst)
	var incomplete *review.IncompleteDecisionsError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, view.Missing, incomplete.Missing)

	_, err = e.RecordDecision(ctx, inst, "additions-1", review.StatusApplied, "")
	require.NoError(t, err)
	a, err := e.ResolveArtifact(ctx, inst)
	require.NoError(t, err)
	assert.NotContains(t, a.Decisions, "additions-1", "a regenerated draft does not touch the approved review")
}

func TestRecordDecision_MalformedID(t *testing.T) {
	e := newTestEngine(t, generation.Echo{})
	ctx := context.Background()
	p := newProject(t, e)
	generateAndApprove(t, e, at(p, steps.StepValidation, ""))
	generateAndApprove(t, e, at(p, steps.StepPortrait, ""))
	inst := at(p, steps.StepPortraitReview, "")
	_, err := e.Generate(ctx, inst)
	require.NoError(t, err)

	for _, id := range []string{"changes", "changes-x", "-0", "overlaps-0"} {
		_, err := e.RecordDecision(ctx, inst, id, review.StatusApplied, "")
		assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err), id)
	}
}

// --- ResolveArtifact ---

func TestResolveArtifact_Fallback(t *testing.T) {
	e := newTestEngine(t, generation.Echo{})
	ctx := context.Background()
	p := newProject(t, e)
	inst := at(p, steps.StepValidation, "")

	_, err := e.ResolveArtifact(ctx, inst)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = e.Generate(ctx, inst)
	require.NoError(t, err)
	a, err := e.ResolveArtifact(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, SourceDraft, a.Source)

	_, err = e.Approve(ctx, inst)
	require.NoError(t, err)
	a, err = e.ResolveArtifact(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, SourceApproved, a.Source)
}

// --- Progress ---

func TestProgress(t *testing.T) {
	e := newTestEngine(t, generation.Echo{})
	ctx := context.Background()
	p := newProject(t, e)
	generateAndApprove(t, e, at(p, steps.StepValidation, ""))
	_, err := e.Generate(ctx, at(p, steps.StepPortrait, ""))
	require.NoError(t, err)

	m, err := e.Progress(ctx, p.ID)
	require.NoError(t, err)
	require.NotEmpty(t, m)
	assert.Equal(t, status.StateCompleted, m[0].State)
	assert.Equal(t, status.StateInProgress, m[1].State)
	assert.Equal(t, status.StateLocked, m[2].State)

	_, err = e.Progress(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
