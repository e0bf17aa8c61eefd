package tools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/generation"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/report"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/retry"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/store"
)

// --- Test helpers ---

type handlerFunc func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

func newEngine(t *testing.T, p generation.Provider) *pipeline.Engine {
	t.Helper()
	e, err := pipeline.New(pipeline.Deps{
		Store:    store.NewMemoryStore(),
		Provider: p,
		Retry:    &retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return e
}

func call(t *testing.T, h handlerFunc, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	result, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func createProject(t *testing.T, e *pipeline.Engine) string {
	t.Helper()
	p, err := e.CreateProject(context.Background(), "Yoga studio", map[string]string{"product": "yoga classes"})
	require.NoError(t, err)
	return p.ID
}

func inst(pid string, step steps.Key, scope string) map[string]any {
	args := map[string]any{"project_id": pid, "step": string(step)}
	if scope != "" {
		args["scope"] = scope
	}
	return args
}

func with(args map[string]any, kv ...any) map[string]any {
	for i := 0; i+1 < len(kv); i += 2 {
		args[kv[i].(string)] = kv[i+1]
	}
	return args
}

// isErrorResult checks if a tool result is an error.
func isErrorResult(result *mcp.CallToolResult) bool {
	return result != nil && result.IsError
}

// getResultText extracts the text content from a tool result.
func getResultText(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// approve generates and approves a project step, deciding every review
// recommendation as applied.
func approve(t *testing.T, e *pipeline.Engine, pid string, step steps.Key) {
	t.Helper()
	r := call(t, NewStepGenerateTool(e).Handle, inst(pid, step, ""))
	require.False(t, isErrorResult(r), getResultText(r))
	def, err := e.Registry().Resolve(step)
	require.NoError(t, err)
	if def.Kind == steps.KindReview {
		view, err := e.Decisions(context.Background(), steps.Instance{ProjectID: pid, Step: step})
		require.NoError(t, err)
		for _, id := range view.Missing {
			r := call(t, NewDecisionRecordTool(e).Handle, with(inst(pid, step, ""), "recommendation_id", id, "status", "applied"))
			require.False(t, isErrorResult(r), getResultText(r))
		}
	}
	r = call(t, NewStepApproveTool(e).Handle, inst(pid, step, ""))
	require.False(t, isErrorResult(r), getResultText(r))
}

// --- Definitions ---

func TestDefinitions_Names(t *testing.T) {
	e := newEngine(t, generation.Echo{})
	defs := map[string]mcp.Tool{
		"audit_project_create":   NewProjectCreateTool(e).Definition(),
		"audit_project_list":     NewProjectListTool(e).Definition(),
		"audit_project_status":   NewProjectStatusTool(e).Definition(),
		"audit_catalog_list":     NewCatalogListTool(e).Definition(),
		"audit_step_generate":    NewStepGenerateTool(e).Definition(),
		"audit_step_regenerate":  NewStepRegenerateTool(e).Definition(),
		"audit_field_regenerate": NewFieldRegenerateTool(e).Definition(),
		"audit_draft_edit":       NewDraftEditTool(e).Definition(),
		"audit_artifact_get":     NewArtifactGetTool(e).Definition(),
		"audit_decision_record":  NewDecisionRecordTool(e).Definition(),
		"audit_step_approve":     NewStepApproveTool(e).Definition(),
		"audit_batch_run":        NewBatchRunTool(e).Definition(),
		"audit_top_pain_set":     NewTopPainSetTool(e).Definition(),
		"audit_reconcile":        NewReconcileTool(e).Definition(),
		"audit_report":           NewReportTool(report.New(e)).Definition(),
	}
	for name, def := range defs {
		assert.Equal(t, name, def.Name)
		assert.NotEmpty(t, def.Description, name)
	}
	assert.Contains(t, NewStepGenerateTool(e).Definition().InputSchema.Required, "project_id")
	assert.Contains(t, NewStepGenerateTool(e).Definition().InputSchema.Required, "step")
}

// --- Projects ---

func TestProjectCreate(t *testing.T) {
	e := newEngine(t, generation.Echo{})
	tool := NewProjectCreateTool(e)

	r := call(t, tool.Handle, map[string]any{
		"name":       "Yoga studio",
		"onboarding": `{"product": "online yoga", "market": "EU"}`,
	})
	require.False(t, isErrorResult(r), getResultText(r))
	text := getResultText(r)
	assert.Contains(t, text, "Project Created: Yoga studio")
	assert.Contains(t, text, "**market:** EU")
	assert.Contains(t, text, "`validation`")

	projects, err := e.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "online yoga", projects[0].Onboarding["product"])
}

func TestProjectCreate_Errors(t *testing.T) {
	e := newEngine(t, generation.Echo{})
	tool := NewProjectCreateTool(e)

	r := call(t, tool.Handle, map[string]any{"name": ""})
	assert.True(t, isErrorResult(r))
	assert.Contains(t, getResultText(r), "INVALID_INPUT")

	r = call(t, tool.Handle, map[string]any{"name": "x", "onboarding": `{"a": 1}`})
	assert.True(t, isErrorResult(r))
	assert.Contains(t, getResultText(r), "JSON object of strings")
}

func TestParseOnboarding(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{"empty", "  ", nil},
		{"free text", "we sell yoga mats", map[string]string{"brief": "we sell yoga mats"}},
		{"json", `{"product": "mats"}`, map[string]string{"product": "mats"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOnboarding(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProjectList(t *testing.T) {
	e := newEngine(t, generation.Echo{})
	tool := NewProjectListTool(e)

	r := call(t, tool.Handle, nil)
	assert.Contains(t, getResultText(r), "No projects yet")

	pid := createProject(t, e)
	r = call(t, tool.Handle, nil)
	text := getResultText(r)
	assert.Contains(t, text, "Audit Projects (1)")
	assert.Contains(t, text, pid)
}

func TestProjectStatus(t *testing.T) {
	e := newEngine(t, generation.Echo{})
	tool := NewProjectStatusTool(e)
	pid := createProject(t, e)

	r := call(t, tool.Handle, map[string]any{})
	assert.True(t, isErrorResult(r))

	r = call(t, tool.Handle, map[string]any{"project_id": "missing"})
	assert.True(t, isErrorResult(r))
	assert.Contains(t, getResultText(r), "NOT_FOUND")

	approve(t, e, pid, steps.StepValidation)
	r = call(t, tool.Handle, map[string]any{"project_id": pid})
	require.False(t, isErrorResult(r), getResultText(r))
	text := getResultText(r)
	assert.Contains(t, text, "✅ completed")
	assert.Contains(t, text, "**Current step:** `portrait`")
	assert.Contains(t, text, "Work on: `portrait`")

	r = call(t, tool.Handle, map[string]any{"project_id": pid, "step": "segment-details"})
	require.False(t, isErrorResult(r), getResultText(r))
	assert.Contains(t, getResultText(r), "catalog this step fans out over is empty")

	r = call(t, tool.Handle, map[string]any{"project_id": pid, "step": "nope"})
	assert.True(t, isErrorResult(r))
	assert.Contains(t, getResultText(r), "UNKNOWN_STEP")
}

// --- Generation ---

func TestStepGenerate(t *testing.T) {
	e := newEngine(t, generation.Echo{})
	tool := NewStepGenerateTool(e)
	pid := createProject(t, e)

	r := call(t, tool.Handle, map[string]any{"step": "validation"})
	assert.True(t, isErrorResult(r))
	assert.Contains(t, getResultText(r), "'project_id' is required")

	r = call(t, tool.Handle, inst(pid, steps.StepPortrait, ""))
	assert.True(t, isErrorResult(r))
	assert.Contains(t, getResultText(r), "MISSING_PREREQUISITE")
	assert.Contains(t, getResultText(r), "audit_project_status")

	r = call(t, tool.Handle, inst(pid, steps.StepValidation, ""))
	require.False(t, isErrorResult(r), getResultText(r))
	assert.Contains(t, getResultText(r), "Draft Generated")
	assert.Contains(t, getResultText(r), "what_brand_sells")
	assert.Contains(t, getResultText(r), "**Version:** 1")

	r = call(t, tool.Handle, inst(pid, steps.StepValidation, ""))
	assert.True(t, isErrorResult(r))
	assert.Contains(t, getResultText(r), "ALREADY_EXISTS")
}

func TestStepGenerate_ProviderFailure(t *testing.T) {
	fail := generation.NewScripted(generation.Reply{Err: &generation.ProviderError{StatusCode: 503, Err: errors.New("unavailable")}})
	e := newEngine(t, fail)
	pid := createProject(t, e)

	r := call(t, NewStepGenerateTool(e).Handle, inst(pid, steps.StepValidation, ""))
	assert.True(t, isErrorResult(r))
	assert.Contains(t, getResultText(r), "RETRY_EXHAUSTED")
	assert.Len(t, fail.Calls(), 2)
}

func TestStepRegenerate(t *testing.T) {
	e := newEngine(t, generation.Echo{})
	pid := createProject(t, e)

	r := call(t, NewStepRegenerateTool(e).Handle, inst(pid, steps.StepValidation, ""))
	require.False(t, isErrorResult(r), getResultText(r))
	assert.Contains(t, getResultText(r), "Draft Regenerated")
}

func TestFieldRegenerate(t *testing.T) {
	e := newEngine(t, generation.Echo{})
	tool := NewFieldRegenerateTool(e)
	pid := createProject(t, e)

	r := call(t, tool.Handle, inst(pid, steps.StepValidation, ""))
	assert.True(t, isErrorResult(r))
	assert.Contains(t, getResultText(r), "'field' is required")

	r = call(t, tool.Handle, with(inst(pid, steps.StepValidation, ""), "field", "market_fit"))
	assert.True(t, isErrorResult(r), "no draft yet")

	call(t, NewStepGenerateTool(e).Handle, inst(pid, steps.StepValidation, ""))
	r = call(t, tool.Handle, with(inst(pid, steps.StepValidation, ""), "field", "market_fit"))
	require.False(t, isErrorResult(r), getResultText(r))
	assert.Contains(t, getResultText(r), "Field Regenerated (market_fit)")
}

// --- Editing ---

func TestDraftEdit(t *testing.T) {
	e := newEngine(t, generation.Echo{})
	tool := NewDraftEditTool(e)
	pid := createProject(t, e)
	call(t, NewStepGenerateTool(e).Handle, inst(pid, steps.StepValidation, ""))

	r := call(t, tool.Handle, with(inst(pid, steps.StepValidation, ""), "field", "market_fit", "value", "42"))
	require.False(t, isErrorResult(r), getResultText(r))
	assert.Contains(t, getResultText(r), `"market_fit": "42"`)
	assert.Contains(t, getResultText(r), "**Version:** 2")

	r = call(t, tool.Handle, with(inst(pid, steps.StepValidation, ""), "field", "unknown", "value", "x"))
	assert.True(t, isErrorResult(r))
	assert.Contains(t, getResultText(r), "INVALID_INPUT")

	r = call(t, tool.Handle, with(inst(pid, steps.StepValidation, ""), "field", "market_fit"))
	assert.True(t, isErrorResult(r))
	assert.Contains(t, getResultText(r), "'value' is required")
}

func TestDecodeValue(t *testing.T) {
	def := steps.Def{Fields: []steps.Field{
		{Name: "text", Type: steps.FieldString},
		{Name: "items", Type: steps.FieldList},
	}}
	assert.Equal(t, "[1]", decodeValue(def, "text", "[1]"))
	assert.Equal(t, []any{"a", "b"}, decodeValue(def, "items", `["a", "b"]`))
	assert.Equal(t, "not json", decodeValue(def, "items", "not json"))
}

// --- Reviews ---

func TestReviewFlow(t *testing.T) {
	e := newEngine(t, generation.Echo{})
	pid := createProject(t, e)
	approve(t, e, pid, steps.StepValidation)
	approve(t, e, pid, steps.StepPortrait)

	review := inst(pid, steps.StepPortraitReview, "")
	call(t, NewStepGenerateTool(e).Handle, review)

	r := call(t, NewArtifactGetTool(e).Handle, inst(pid, steps.StepPortraitReview, ""))
	require.False(t, isErrorResult(r), getResultText(r))
	text := getResultText(r)
	assert.Contains(t, text, "**Source:** draft")
	assert.Contains(t, text, "`changes-0`")
	assert.Contains(t, text, "⬜ undecided")
	assert.Contains(t, text, "**Undecided:** 3")

	r = call(t, NewStepApproveTool(e).Handle, inst(pid, steps.StepPortraitReview, ""))
	assert.True(t, isErrorResult(r))
	assert.Contains(t, getResultText(r), "INCOMPLETE_DECISIONS")

	record := NewDecisionRecordTool(e)
	r = call(t, record.Handle, with(inst(pid, steps.StepPortraitReview, ""), "recommendation_id", "changes-0", "status", "maybe"))
	assert.True(t, isErrorResult(r))
	assert.Contains(t, getResultText(r), "invalid decision status")

	r = call(t, record.Handle, with(inst(pid, steps.StepPortraitReview, ""), "recommendation_id", "changes-9", "status", "applied"))
	assert.True(t, isErrorResult(r))

	r = call(t, record.Handle, with(inst(pid, steps.StepPortraitReview, ""), "recommendation_id", "changes-0", "status", "applied"))
	require.False(t, isErrorResult(r), getResultText(r))
	assert.Contains(t, getResultText(r), "**Decided:** 1/3")
	assert.Contains(t, getResultText(r), "`additions-0`")

	r = call(t, record.Handle, with(inst(pid, steps.StepPortraitReview, ""),
		"recommendation_id", "additions-0", "status", "edited", "edited_text", "add income bracket"))
	require.False(t, isErrorResult(r), getResultText(r))
	assert.Contains(t, getResultText(r), "**Edited text:** add income bracket")

	r = call(t, record.Handle, with(inst(pid, steps.StepPortraitReview, ""), "recommendation_id", "removals-0", "status", "dismissed"))
	require.False(t, isErrorResult(r), getResultText(r))
	assert.Contains(t, getResultText(r), "Every recommendation is decided")

	r = call(t, NewStepApproveTool(e).Handle, inst(pid, steps.StepPortraitReview, ""))
	require.False(t, isErrorResult(r), getResultText(r))
	assert.Contains(t, getResultText(r), "**Decisions:** 3")
	assert.Contains(t, getResultText(r), pid+"/portrait-final")
}

// --- Approval and fan-out ---

func TestStepApprove(t *testing.T) {
	e := newEngine(t, generation.Echo{})
	pid := createProject(t, e)
	tool := NewStepApproveTool(e)

	r := call(t, tool.Handle, inst(pid, steps.StepValidation, ""))
	assert.True(t, isErrorResult(r))
	assert.Contains(t, getResultText(r), "NOT_FOUND")

	call(t, NewStepGenerateTool(e).Handle, inst(pid, steps.StepValidation, ""))
	r = call(t, tool.Handle, inst(pid, steps.StepValidation, ""))
	require.False(t, isErrorResult(r), getResultText(r))
	assert.Contains(t, getResultText(r), "Approved: "+pid+"/validation")
	assert.Contains(t, getResultText(r), "⬜ "+pid+"/portrait")

	r = call(t, NewArtifactGetTool(e).Handle, inst(pid, steps.StepValidation, ""))
	assert.Contains(t, getResultText(r), "**Source:** approved")
}

func TestBatchRunAndCatalog(t *testing.T) {
	e := newEngine(t, generation.Echo{})
	pid := createProject(t, e)
	for _, k := range []steps.Key{
		steps.StepValidation, steps.StepPortrait, steps.StepPortraitReview, steps.StepPortraitFinal,
		steps.StepSegments, steps.StepSegmentsReview, steps.StepSegmentsFinal,
	} {
		approve(t, e, pid, k)
	}

	r := call(t, NewCatalogListTool(e).Handle, map[string]any{"project_id": pid})
	require.False(t, isErrorResult(r), getResultText(r))
	assert.Contains(t, getResultText(r), "**Segment ID:**")
	assert.Contains(t, getResultText(r), "_No pains yet._")

	tool := NewBatchRunTool(e)
	r = call(t, tool.Handle, map[string]any{"project_id": pid, "step": "segment-details", "concurrency": float64(2)})
	require.False(t, isErrorResult(r), getResultText(r))
	text := getResultText(r)
	assert.Contains(t, text, "✅ Batch: `segment-details`")
	assert.Contains(t, text, "| 1 | 1 | 1 | 0 |")

	r = call(t, tool.Handle, map[string]any{"project_id": pid, "step": "segment-details"})
	require.False(t, isErrorResult(r), getResultText(r))
	assert.Contains(t, getResultText(r), "Skipped (already drafted or approved)")

	r = call(t, tool.Handle, map[string]any{"project_id": pid, "step": "validation"})
	assert.True(t, isErrorResult(r))
	assert.Contains(t, getResultText(r), "project-scoped")

	r = call(t, tool.Handle, map[string]any{"project_id": pid, "step": "segment-details", "concurrency": float64(-1)})
	assert.True(t, isErrorResult(r))
}

func TestTopPainSet_UnknownPain(t *testing.T) {
	e := newEngine(t, generation.Echo{})
	pid := createProject(t, e)

	r := call(t, NewTopPainSetTool(e).Handle, map[string]any{"project_id": pid})
	assert.True(t, isErrorResult(r))

	r = call(t, NewTopPainSetTool(e).Handle, map[string]any{"project_id": pid, "pain_id": "nope", "top": false})
	assert.True(t, isErrorResult(r))
	assert.Contains(t, getResultText(r), "NOT_FOUND")
}

func TestReconcile_Clean(t *testing.T) {
	e := newEngine(t, generation.Echo{})
	pid := createProject(t, e)

	r := call(t, NewReconcileTool(e).Handle, map[string]any{"project_id": pid, "prune": true})
	require.False(t, isErrorResult(r), getResultText(r))
	assert.Contains(t, getResultText(r), "No orphaned or stale records found")
}

// --- Report ---

func TestReport(t *testing.T) {
	e := newEngine(t, generation.Echo{})
	pid := createProject(t, e)
	approve(t, e, pid, steps.StepValidation)
	tool := NewReportTool(report.New(e))

	r := call(t, tool.Handle, map[string]any{"project_id": pid})
	require.False(t, isErrorResult(r), getResultText(r))
	assert.Contains(t, getResultText(r), "# Audience audit: Yoga studio")

	r = call(t, tool.Handle, map[string]any{"project_id": pid, "format": "html"})
	require.False(t, isErrorResult(r), getResultText(r))
	assert.True(t, strings.HasPrefix(getResultText(r), "<!DOCTYPE html>"))

	r = call(t, tool.Handle, map[string]any{"project_id": pid, "format": "pdf"})
	assert.True(t, isErrorResult(r))
}

// --- Error mapping ---

func TestToolError(t *testing.T) {
	r, err := toolError(&steps.UnknownStepError{Key: "x"})
	require.NoError(t, err)
	assert.True(t, isErrorResult(r))
	assert.Contains(t, getResultText(r), "UNKNOWN_STEP: unknown step \"x\"")

	boom := errors.New("disk on fire")
	r, err = toolError(boom)
	assert.Nil(t, r)
	assert.ErrorIs(t, err, boom)

	r, err = toolError(context.Canceled)
	assert.Nil(t, r)
	assert.ErrorIs(t, err, context.Canceled)
}
