package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
)

// StepRegenerateTool handles the audit_step_regenerate MCP tool.
type StepRegenerateTool struct {
	engine *pipeline.Engine
}

// NewStepRegenerateTool creates a StepRegenerateTool.
func NewStepRegenerateTool(engine *pipeline.Engine) *StepRegenerateTool {
	return &StepRegenerateTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *StepRegenerateTool) Definition() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription(
			"Throw away the draft of a step instance and generate a fresh one. " +
				"Edits and review decisions on the old draft are lost; the approved artifact is untouched.",
		),
	}, instanceOptions()...)
	return mcp.NewTool("audit_step_regenerate", opts...)
}

// Handle processes the audit_step_regenerate tool call.
func (t *StepRegenerateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inst, res := instanceArg(req)
	if res != nil {
		return res, nil
	}
	d, err := t.engine.Regenerate(ctx, inst)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(renderDraft("🔄 Draft Regenerated", d)), nil
}
