package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
)

// DraftEditTool handles the audit_draft_edit MCP tool.
type DraftEditTool struct {
	engine *pipeline.Engine
}

// NewDraftEditTool creates a DraftEditTool.
func NewDraftEditTool(engine *pipeline.Engine) *DraftEditTool {
	return &DraftEditTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *DraftEditTool) Definition() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription(
			"Replace one field of a draft with a human-written value. " +
				"The value is checked against the step's field type and the draft version is bumped.",
		),
	}, instanceOptions()...)
	opts = append(opts,
		mcp.WithString("field",
			mcp.Required(),
			mcp.Description("Top-level content field to replace."),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("New value. JSON for list, object and number fields "+
				"(e.g. [\"a\", \"b\"]); plain text for string fields."),
		),
	)
	return mcp.NewTool("audit_draft_edit", opts...)
}

// Handle processes the audit_draft_edit tool call.
func (t *DraftEditTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inst, res := instanceArg(req)
	if res != nil {
		return res, nil
	}
	field := strings.TrimSpace(req.GetString("field", ""))
	if field == "" {
		return mcp.NewToolResultError("'field' is required"), nil
	}
	raw, ok := req.GetArguments()["value"]
	if !ok {
		return mcp.NewToolResultError("'value' is required"), nil
	}

	def, err := t.engine.Registry().Resolve(inst.Step)
	if err != nil {
		return toolError(err)
	}
	value := raw
	if s, isString := raw.(string); isString {
		value = decodeValue(def, field, s)
	}

	d, err := t.engine.EditField(ctx, inst, field, value)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(renderDraft("✏️ Draft Edited ("+field+")", d)), nil
}
