package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
)

// StepApproveTool handles the audit_step_approve MCP tool.
type StepApproveTool struct {
	engine *pipeline.Engine
}

// NewStepApproveTool creates a StepApproveTool.
func NewStepApproveTool(engine *pipeline.Engine) *StepApproveTool {
	return &StepApproveTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *StepApproveTool) Definition() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription(
			"Approve the draft of a step instance, making it the input of dependent steps. " +
				"Approving the final segment list or a pain list updates the segment and pain catalogs; " +
				"approving a ranking updates the top pains. Re-approval overwrites the previous artifact.",
		),
	}, instanceOptions()...)
	return mcp.NewTool("audit_step_approve", opts...)
}

// Handle processes the audit_step_approve tool call.
func (t *StepApproveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inst, res := instanceArg(req)
	if res != nil {
		return res, nil
	}
	out, err := t.engine.Approve(ctx, inst)
	if err != nil {
		return toolError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# ✅ Approved: %s\n\n", inst)
	fmt.Fprintf(&b, "**Version:** %d\n", out.Approved.Version)
	if len(out.Approved.Decisions) > 0 {
		fmt.Fprintf(&b, "**Decisions:** %d\n", len(out.Approved.Decisions))
	}
	if len(out.Orphans) > 0 {
		b.WriteString("\n## ⚠️ Unresolved References\n\n")
		for _, o := range out.Orphans {
			fmt.Fprintf(&b, "- %s\n", o)
		}
	}
	if out.ProjectCompleted {
		b.WriteString("\n🎉 **The audit is complete.** Export it with `audit_report`.\n")
		return mcp.NewToolResultText(b.String()), nil
	}
	if len(out.Unlocked) > 0 {
		b.WriteString("\n## Unlocked\n\n")
		for _, u := range out.Unlocked {
			fmt.Fprintf(&b, "- ⬜ %s\n", u)
		}
		b.WriteString("\nGenerate them with `audit_step_generate`, or `audit_batch_run` for per-segment and per-pain steps.\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
