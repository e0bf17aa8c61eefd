package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
)

// ReconcileTool handles the audit_reconcile MCP tool.
type ReconcileTool struct {
	engine *pipeline.Engine
}

// NewReconcileTool creates a ReconcileTool.
func NewReconcileTool(engine *pipeline.Engine) *ReconcileTool {
	return &ReconcileTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *ReconcileTool) Definition() mcp.Tool {
	return mcp.NewTool("audit_reconcile",
		mcp.WithDescription(
			"Check a project for records that point at segments or pains that no longer exist, "+
				"and for drafts of pains that left the top-set. With `prune` they are deleted.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
		mcp.WithBoolean("prune",
			mcp.Description("Delete what is found (default false: report only)."),
		),
	)
}

// Handle processes the audit_reconcile tool call.
func (t *ReconcileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := strings.TrimSpace(req.GetString("project_id", ""))
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}
	rep, err := t.engine.Reconcile(ctx, projectID, boolArg(req, "prune", false))
	if err != nil {
		return toolError(err)
	}

	if len(rep.Findings) == 0 {
		return mcp.NewToolResultText("# ✅ Reconcile\n\nNo orphaned or stale records found."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# 🔍 Reconcile: %d finding(s), %d pruned\n\n", len(rep.Findings), rep.Pruned)
	b.WriteString("| Kind | Collection | Instance | Detail | Pruned |\n")
	b.WriteString("|------|------------|----------|--------|--------|\n")
	for _, f := range rep.Findings {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", f.Kind, f.Collection, f.Instance, cell(f.Detail), yesNo(f.Pruned))
	}
	if rep.Pruned == 0 {
		b.WriteString("\nCall again with `prune: true` to delete them.\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
