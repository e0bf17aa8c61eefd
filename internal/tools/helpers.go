// Package tools implements the MCP tool handlers of the audit pipeline.
//
// Each tool is a struct holding its dependencies, with Definition()
// returning the mcp.Tool schema and Handle() processing a call. One file
// per tool. Caller mistakes (missing prerequisites, undecided reviews,
// unknown ids) come back as tool errors the assistant can act on; only
// infrastructure failures are returned as Go errors.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/apperr"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
)

// hints follow the error message of user-facing failures.
var hints = map[apperr.Code]string{
	apperr.CodeMissingPrerequisite: "Generate and approve the blocking steps first (`audit_project_status` shows what is pending).",
	apperr.CodeAlreadyExists:       "A draft already exists. Review it with `audit_artifact_get` or replace it with `audit_step_regenerate`.",
	apperr.CodeIncompleteDecisions: "Record a decision on each listed recommendation with `audit_decision_record`, then approve again.",
	apperr.CodeNotEligible:         "Only top pains get per-pain steps. Use `audit_top_pain_set` to change the top-set.",
	apperr.CodeOrphanReference:     "The referenced segment or pain no longer exists. Run `audit_reconcile` to clean up.",
	apperr.CodeUnknownStep:         "Use `audit_project_status` to list the step keys.",
	apperr.CodeRetryExhausted:      "The generation provider kept failing. Try again later.",
	apperr.CodeNotFound:            "Check the project id, step and scope.",
}

// toolError maps err to a tool result. User-facing errors become tool
// errors; anything else is returned as a Go error.
func toolError(err error) (*mcp.CallToolResult, error) {
	if errors.Is(err, context.Canceled) || !apperr.UserFacing(err) {
		return nil, err
	}
	code := apperr.CodeOf(err)
	msg := fmt.Sprintf("%s: %v", code, err)
	if hint, ok := hints[code]; ok {
		msg += "\n\n" + hint
	}
	return mcp.NewToolResultError(msg), nil
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// instanceOptions are the schema properties addressing one instance.
func instanceOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id returned by `audit_project_create`."),
		),
		mcp.WithString("step",
			mcp.Required(),
			mcp.Description("Step key, e.g. `validation`, `segment-details`, `canvas`."),
		),
		mcp.WithString("scope",
			mcp.Description("Segment id for segment steps, pain id for pain steps. Omit for project steps."),
		),
	}
}

// instanceArg reads project_id, step and scope. A non-nil result is the
// error to return.
func instanceArg(req mcp.CallToolRequest) (steps.Instance, *mcp.CallToolResult) {
	inst := steps.Instance{
		ProjectID: strings.TrimSpace(req.GetString("project_id", "")),
		Step:      steps.Key(strings.TrimSpace(req.GetString("step", ""))),
		Scope:     strings.TrimSpace(req.GetString("scope", "")),
	}
	if inst.ProjectID == "" {
		return inst, mcp.NewToolResultError("'project_id' is required")
	}
	if inst.Step == "" {
		return inst, mcp.NewToolResultError("'step' is required")
	}
	return inst, nil
}

// jsonBlock renders v as a fenced JSON block.
func jsonBlock(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("```\n%v\n```", v)
	}
	return "```json\n" + string(data) + "\n```"
}

// decodeValue turns the raw value argument into a field value: JSON when
// it parses and matches a non-string field, the raw text otherwise.
func decodeValue(def steps.Def, field, raw string) any {
	f, ok := def.Field(field)
	if ok && f.Type == steps.FieldString {
		return raw
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
