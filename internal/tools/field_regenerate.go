package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
)

// FieldRegenerateTool handles the audit_field_regenerate MCP tool.
type FieldRegenerateTool struct {
	engine *pipeline.Engine
}

// NewFieldRegenerateTool creates a FieldRegenerateTool.
func NewFieldRegenerateTool(engine *pipeline.Engine) *FieldRegenerateTool {
	return &FieldRegenerateTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *FieldRegenerateTool) Definition() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription(
			"Ask the provider to rewrite a single field of an existing draft. " +
				"Every other field keeps its current value.",
		),
	}, instanceOptions()...)
	opts = append(opts, mcp.WithString("field",
		mcp.Required(),
		mcp.Description("Top-level content field to rewrite."),
	))
	return mcp.NewTool("audit_field_regenerate", opts...)
}

// Handle processes the audit_field_regenerate tool call.
func (t *FieldRegenerateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inst, res := instanceArg(req)
	if res != nil {
		return res, nil
	}
	field := strings.TrimSpace(req.GetString("field", ""))
	if field == "" {
		return mcp.NewToolResultError("'field' is required"), nil
	}
	d, err := t.engine.RegenerateField(ctx, inst, field)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(renderDraft("🔄 Field Regenerated ("+field+")", d)), nil
}
