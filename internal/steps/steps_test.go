package steps

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/apperr"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/generation"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/review"
)

// --- Default graph ---

func TestDefault_OrderRespectsPrerequisites(t *testing.T) {
	r := Default()
	pos := make(map[Key]int)
	for i, k := range r.Order() {
		pos[k] = i
	}
	require.Len(t, pos, len(defaultDefs))

	for _, d := range r.Steps() {
		for _, p := range d.Prerequisites {
			assert.Less(t, pos[p.Step], pos[d.Key], "%s must come after %s", d.Key, p.Step)
		}
	}
	assert.Equal(t, StepValidation, r.Order()[0])
	assert.Equal(t, StepStrategy, r.Terminal())
}

func TestDefault_ExamplesSatisfySchemas(t *testing.T) {
	for _, d := range Default().Steps() {
		t.Run(string(d.Key), func(t *testing.T) {
			var content map[string]any
			require.NoError(t, json.Unmarshal([]byte(d.Example), &content), "example must be JSON")
			assert.NoError(t, d.Validate(content))
		})
	}
}

func TestDefault_ScopesAndKinds(t *testing.T) {
	r := Default()

	canvas, err := r.Resolve(StepCanvas)
	require.NoError(t, err)
	assert.Equal(t, ScopePain, canvas.Scope)
	assert.True(t, canvas.TopOnly)

	jobs, err := r.Resolve(StepJobs)
	require.NoError(t, err)
	assert.Equal(t, ScopeSegment, jobs.Scope)
	require.Len(t, jobs.Prerequisites, 1)
	assert.True(t, jobs.Prerequisites[0].All)

	review, err := r.Resolve(StepSegmentsReview)
	require.NoError(t, err)
	assert.Equal(t, KindReview, review.Kind)
	assert.Equal(t, []string{"overlaps", "too_broad", "too_narrow", "additions", "removals"}, review.FieldNames())

	final, err := r.Resolve(StepSegmentsFinal)
	require.NoError(t, err)
	assert.Equal(t, KindFinalize, final.Kind)
	assert.Equal(t, StepSegmentsReview, final.Review)
}

func TestResolve_Unknown(t *testing.T) {
	_, err := Default().Resolve("horoscope")
	require.Error(t, err)
	var unknown *UnknownStepError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, Key("horoscope"), unknown.Key)
	assert.Equal(t, apperr.CodeUnknownStep, apperr.CodeOf(err))
}

func TestDependentsAndNext(t *testing.T) {
	r := Default()
	assert.Equal(t, []Key{StepPortraitReview, StepPortraitFinal}, r.Dependents(StepPortrait))
	assert.Equal(t, StepPortrait, r.Next(StepValidation))
	assert.Equal(t, Key(""), r.Next(StepStrategy))
}

// --- Registry validation ---

func gen(key Key, scope Scope, prereqs ...Prerequisite) Def {
	return Def{Key: key, Scope: scope, Prerequisites: prereqs, Fields: []Field{{Name: "x", Type: FieldString}}}
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name    string
		defs    []Def
		wantErr string
	}{
		{
			name: "valid chain",
			defs: []Def{gen("a", ScopeNone), gen("b", ScopeSegment, Prerequisite{Step: "a"})},
		},
		{
			name:    "duplicate",
			defs:    []Def{gen("a", ScopeNone), gen("a", ScopeNone)},
			wantErr: "duplicate",
		},
		{
			name:    "unknown prerequisite",
			defs:    []Def{gen("a", ScopeNone, Prerequisite{Step: "ghost"})},
			wantErr: "unknown step",
		},
		{
			name:    "cycle",
			defs:    []Def{gen("a", ScopeNone, Prerequisite{Step: "b"}), gen("b", ScopeNone, Prerequisite{Step: "a"})},
			wantErr: "cycle",
		},
		{
			name:    "self dependency",
			defs:    []Def{gen("a", ScopeNone, Prerequisite{Step: "a"})},
			wantErr: "itself",
		},
		{
			name:    "project step on fan-out without all",
			defs:    []Def{gen("a", ScopeSegment), gen("b", ScopeNone, Prerequisite{Step: "a"})},
			wantErr: "without all=true",
		},
		{
			name: "project step on fan-out with all",
			defs: []Def{gen("a", ScopeSegment), gen("b", ScopeNone, Prerequisite{Step: "a", All: true})},
		},
		{
			name:    "segment step on pain step",
			defs:    []Def{gen("a", ScopePain), gen("b", ScopeSegment, Prerequisite{Step: "a"})},
			wantErr: "without all=true",
		},
		{
			name: "pain step on segment step",
			defs: []Def{gen("a", ScopeSegment), gen("b", ScopePain, Prerequisite{Step: "a"})},
		},
		{
			name:    "invalid scope",
			defs:    []Def{gen("a", "galaxy")},
			wantErr: "invalid scope",
		},
		{
			name:    "top only on segment",
			defs:    []Def{{Key: "a", Scope: ScopeSegment, TopOnly: true, Fields: []Field{{Name: "x", Type: FieldString}}}},
			wantErr: "top_only",
		},
		{
			name:    "review without source prerequisite",
			defs:    []Def{gen("a", ScopeNone), {Key: "r", Kind: KindReview, Source: "a", ReviewCategories: []string{"c"}}},
			wantErr: "must be a prerequisite",
		},
		{
			name: "finalize pointing at non-review",
			defs: []Def{
				gen("a", ScopeNone),
				gen("b", ScopeNone, Prerequisite{Step: "a"}),
				{Key: "f", Kind: KindFinalize, Source: "a", Review: "b",
					Prerequisites: []Prerequisite{{Step: "a"}, {Step: "b"}},
					Fields:        []Field{{Name: "x", Type: FieldString}}},
			},
			wantErr: "not a review step",
		},
		{
			name:    "generate without fields",
			defs:    []Def{{Key: "a"}},
			wantErr: "no content fields",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.defs...)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// --- Schema validation ---

func TestValidate_Content(t *testing.T) {
	segments, err := Default().Resolve(StepSegments)
	require.NoError(t, err)

	tests := []struct {
		name    string
		content map[string]any
		wantErr string
	}{
		{name: "valid", content: map[string]any{"segments": []any{map[string]any{"name": "A", "description": "a"}}}},
		{name: "nil", content: nil, wantErr: "empty"},
		{name: "missing field", content: map[string]any{}, wantErr: "missing"},
		{name: "wrong type", content: map[string]any{"segments": "A, B"}, wantErr: "must be a list"},
		{name: "item not object", content: map[string]any{"segments": []any{"A"}}, wantErr: "must be an object"},
		{name: "item missing key", content: map[string]any{"segments": []any{map[string]any{"name": "A"}}}, wantErr: `missing "description"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := segments.Validate(tt.content)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, apperr.CodeInvalidInput, apperr.CodeOf(err))
		})
	}
}

func TestValidateField(t *testing.T) {
	portrait, err := Default().Resolve(StepPortrait)
	require.NoError(t, err)

	assert.NoError(t, portrait.ValidateField("psychographics", "curious"))
	assert.Error(t, portrait.ValidateField("psychographics", 42.0))
	assert.Error(t, portrait.ValidateField("horoscope", "x"))

	extended, err := Default().Resolve(StepCanvasExtended)
	require.NoError(t, err)
	assert.NoError(t, extended.ValidateField("customer_journey", map[string]any{}))
	assert.Error(t, extended.ValidateField("customer_journey", []any{}))
}

// --- Prompt building ---

func TestPrompt_Generate(t *testing.T) {
	d, err := Default().Resolve(StepJobs)
	require.NoError(t, err)

	p, err := d.Prompt(Inputs{
		ProjectName: "Acme Yoga",
		Brief:       map[string]string{"product": "online yoga classes", "market": "EU"},
		Segment:     &SegmentRef{ID: "seg-1", Name: "Busy parents", Description: "Parents with toddlers"},
		Artifacts: []ArtifactInput{
			{Step: StepSegmentDetails, Title: "Segment details", Scope: "seg-1", Label: "Busy parents",
				Content: map[string]any{"characteristics": "tired"}},
		},
	}, 1024)
	require.NoError(t, err)

	assert.Equal(t, SystemPrompt, p.System)
	assert.Equal(t, 1024, p.MaxTokens)
	assert.Contains(t, p.User, "# Task: Jobs to be done")
	assert.Contains(t, p.User, "- market: EU\n- product: online yoga classes")
	assert.Contains(t, p.User, "Busy parents (id seg-1)")
	assert.Contains(t, p.User, "### Segment details: Busy parents")
	assert.Contains(t, p.User, `"characteristics": "tired"`)
	assert.True(t, strings.HasSuffix(p.User, d.Example))

	echoed, err := generation.Echo{}.Generate(t.Context(), p)
	require.NoError(t, err)
	content, err := generation.DecodeObject(echoed)
	require.NoError(t, err)
	assert.NoError(t, d.Validate(content))
}

func TestPrompt_FinalizeNeedsChanges(t *testing.T) {
	d, err := Default().Resolve(StepSegmentsFinal)
	require.NoError(t, err)

	_, err = d.Prompt(Inputs{ProjectName: "p"}, 0)
	assert.Error(t, err)

	p, err := d.Prompt(Inputs{ProjectName: "p", Changes: &review.ChangeSet{Changes: []review.Change{
		{ID: "overlaps-0", Kind: "overlaps", Text: "Merge A and B"},
		{ID: "removals-0", Kind: "removals", Text: "Drop E entirely", Edited: true},
		{ID: "overlaps-1", Kind: "overlaps", Text: "Merge C and D"},
	}}}, 0)
	require.NoError(t, err)
	assert.Contains(t, p.User, "### overlaps (2)\n\n- [overlaps] Merge A and B\n- [overlaps] Merge C and D\n")
	assert.Contains(t, p.User, "### removals (1)\n\n- [removals] Drop E entirely (edited by the reviewer)")
	assert.Less(t, strings.Index(p.User, "### overlaps"), strings.Index(p.User, "### removals"))

	p, err = d.Prompt(Inputs{ProjectName: "p", Changes: &review.ChangeSet{}}, 0)
	require.NoError(t, err)
	assert.Contains(t, p.User, "No changes were accepted")
}

func TestPrompt_FocusAndPains(t *testing.T) {
	d, err := Default().Resolve(StepPainsRanking)
	require.NoError(t, err)

	p, err := d.Prompt(Inputs{
		ProjectName: "p",
		Pains:       []PainRef{{ID: "pain-1", Name: "No time", Description: "Too busy"}},
		Focus:       "rankings",
		Current:     map[string]any{"rankings": []any{}},
	}, 0)
	require.NoError(t, err)
	assert.Contains(t, p.User, "- id pain-1: No time. Too busy")
	assert.Contains(t, p.User, `Rewrite only the field "rankings"`)

	_, err = d.Prompt(Inputs{Focus: "nope"}, 0)
	assert.Error(t, err)
}

// --- YAML overrides ---

func TestOverrides(t *testing.T) {
	o, err := ParseOverrides([]byte(`
steps:
  - key: portrait
    title: Customer portrait
    task: Describe the ideal customer.
`))
	require.NoError(t, err)

	r, err := o.Apply(Default())
	require.NoError(t, err)
	d, err := r.Resolve(StepPortrait)
	require.NoError(t, err)
	assert.Equal(t, "Customer portrait", d.Title)
	assert.Equal(t, "Describe the ideal customer.", d.Task)
	assert.NotEmpty(t, d.Example, "empty override fields keep the default")

	bad, err := ParseOverrides([]byte("steps:\n  - key: horoscope\n    title: x\n"))
	require.NoError(t, err)
	_, err = bad.Apply(Default())
	assert.Error(t, err)

	_, err = ParseOverrides([]byte("steps: [unclosed"))
	assert.Error(t, err)
}

func TestInstanceString(t *testing.T) {
	assert.Equal(t, "p1/portrait", Instance{ProjectID: "p1", Step: StepPortrait}.String())
	assert.Equal(t, "p1/jobs[seg-1]", Instance{ProjectID: "p1", Step: StepJobs, Scope: "seg-1"}.String())
}
