package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
)

// StepGenerateTool handles the audit_step_generate MCP tool.
type StepGenerateTool struct {
	engine *pipeline.Engine
}

// NewStepGenerateTool creates a StepGenerateTool.
func NewStepGenerateTool(engine *pipeline.Engine) *StepGenerateTool {
	return &StepGenerateTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *StepGenerateTool) Definition() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription(
			"Generate the first draft of a step instance from the approved artifacts it depends on. " +
				"Fails when a prerequisite is not approved yet or a draft already exists. " +
				"Malformed provider output is retried automatically.",
		),
	}, instanceOptions()...)
	return mcp.NewTool("audit_step_generate", opts...)
}

// Handle processes the audit_step_generate tool call.
func (t *StepGenerateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inst, res := instanceArg(req)
	if res != nil {
		return res, nil
	}
	d, err := t.engine.Generate(ctx, inst)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(renderDraft("✅ Draft Generated", d)), nil
}
