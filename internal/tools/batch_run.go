package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/batch"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
)

// BatchRunTool handles the audit_batch_run MCP tool.
type BatchRunTool struct {
	engine *pipeline.Engine
}

// NewBatchRunTool creates a BatchRunTool.
func NewBatchRunTool(engine *pipeline.Engine) *BatchRunTool {
	return &BatchRunTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *BatchRunTool) Definition() mcp.Tool {
	return mcp.NewTool("audit_batch_run",
		mcp.WithDescription(
			"Generate drafts for every segment or pain of a fan-out step that has none yet. "+
				"Scopes with a draft or approved artifact are skipped, so the call can be repeated after failures.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
		mcp.WithString("step",
			mcp.Required(),
			mcp.Description("Per-segment or per-pain step key, e.g. `segment-details` or `canvas`."),
		),
		mcp.WithNumber("concurrency",
			mcp.Description(fmt.Sprintf("Generations run in parallel (default %d).", batch.DefaultConcurrency)),
		),
	)
}

// Handle processes the audit_batch_run tool call.
func (t *BatchRunTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := strings.TrimSpace(req.GetString("project_id", ""))
	step := strings.TrimSpace(req.GetString("step", ""))
	if projectID == "" || step == "" {
		return mcp.NewToolResultError("'project_id' and 'step' are required"), nil
	}
	concurrency := intArg(req, "concurrency", 0)
	if concurrency < 0 {
		return mcp.NewToolResultError("'concurrency' must be positive"), nil
	}

	out, err := t.engine.RunMissing(ctx, projectID, steps.Key(step), concurrency)
	if err != nil {
		return toolError(err)
	}

	var b strings.Builder
	marker := "✅"
	if out.Errored > 0 {
		marker = "⚠️"
	}
	fmt.Fprintf(&b, "# %s Batch: `%s`\n\n", marker, out.Step)
	b.WriteString("| Targets | Missing | Generated | Failed |\n")
	b.WriteString("|---------|---------|-----------|--------|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d |\n", out.Found, out.Requested, out.Generated, out.Errored)

	if len(out.Succeeded) > 0 {
		fmt.Fprintf(&b, "\n**Generated:** %s\n", codeList(out.Succeeded))
	}
	if len(out.Skipped) > 0 {
		fmt.Fprintf(&b, "**Skipped (already drafted or approved):** %s\n", codeList(out.Skipped))
	}
	if len(out.Failed) > 0 {
		b.WriteString("\n## Failures\n\n")
		for _, f := range out.Failed {
			fmt.Fprintf(&b, "- `%s` [%s] %s\n", f.Scope, f.Code, f.Err)
		}
		b.WriteString("\nRun `audit_batch_run` again to retry the failed scopes.\n")
	}
	if len(out.Orphans) > 0 {
		b.WriteString("\n## ⚠️ Orphans\n\n")
		for _, o := range out.Orphans {
			fmt.Fprintf(&b, "- %s\n", o)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func codeList(items []string) string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = "`" + s + "`"
	}
	return strings.Join(out, ", ")
}
