package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/status"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
)

// ProjectStatusTool handles the audit_project_status MCP tool.
// Without a step it shows the project map; with one it shows every scope
// instance of that step and what blocks it.
type ProjectStatusTool struct {
	engine *pipeline.Engine
}

// NewProjectStatusTool creates a ProjectStatusTool.
func NewProjectStatusTool(engine *pipeline.Engine) *ProjectStatusTool {
	return &ProjectStatusTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *ProjectStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("audit_project_status",
		mcp.WithDescription(
			"Show the progress of an audit project: every step with its state "+
				"(locked, pending, in progress, completed) and scope counts. "+
				"Pass `step` to list the per-segment or per-pain instances of one step.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
		mcp.WithString("step",
			mcp.Description("Optional step key to expand."),
		),
	)
}

// Handle processes the audit_project_status tool call.
func (t *ProjectStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := strings.TrimSpace(req.GetString("project_id", ""))
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}
	p, err := t.engine.GetProject(ctx, projectID)
	if err != nil {
		return toolError(err)
	}

	if step := strings.TrimSpace(req.GetString("step", "")); step != "" {
		reports, err := t.engine.ScopeProgress(ctx, projectID, steps.Key(step))
		if err != nil {
			return toolError(err)
		}
		return mcp.NewToolResultText(renderScopes(p, steps.Key(step), reports)), nil
	}

	summaries, err := t.engine.Progress(ctx, projectID)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(renderProgress(p, summaries)), nil
}

func renderProgress(p pipeline.Project, summaries []status.StepSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# 📊 Audit Status: %s\n\n", p.Name)
	fmt.Fprintf(&b, "**Project ID:** `%s`\n", p.ID)
	fmt.Fprintf(&b, "**Status:** %s\n", p.Status)
	fmt.Fprintf(&b, "**Current step:** `%s`\n\n", p.CurrentStep)

	b.WriteString("| Step | Scope | State | Done |\n")
	b.WriteString("|------|-------|-------|------|\n")
	done := 0
	for _, s := range summaries {
		if s.State == status.StateCompleted {
			done++
		}
		fmt.Fprintf(&b, "| `%s` %s | %s | %s %s | %d/%d |\n",
			s.Step, s.Title, s.Scope, s.State.Icon(), s.State, s.Completed, s.Total)
	}
	fmt.Fprintf(&b, "\n**Progress:** %d/%d steps completed\n", done, len(summaries))

	var ready []string
	for _, s := range summaries {
		if s.State == status.StatePending || s.State == status.StateInProgress {
			ready = append(ready, "`"+string(s.Step)+"`")
		}
	}
	if len(ready) > 0 {
		fmt.Fprintf(&b, "\n## Next Steps\n\nWork on: %s\n", strings.Join(ready, ", "))
	}
	return b.String()
}

func renderScopes(p pipeline.Project, step steps.Key, reports []status.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# 📊 %s: `%s`\n\n", p.Name, step)
	if len(reports) == 0 {
		b.WriteString("No instances yet: the catalog this step fans out over is empty.\n")
		return b.String()
	}
	b.WriteString("| Scope | State | Draft | Approved | Blocked by |\n")
	b.WriteString("|-------|-------|-------|----------|------------|\n")
	for _, r := range reports {
		scope := r.Instance.Scope
		if scope == "" {
			scope = "-"
		}
		blockers := make([]string, len(r.BlockedBy))
		for i, bl := range r.BlockedBy {
			blockers[i] = bl.String()
		}
		fmt.Fprintf(&b, "| `%s` | %s %s | %s | %s | %s |\n",
			scope, r.State.Icon(), r.State, yesNo(r.HasDraft), yesNo(r.HasApproved), strings.Join(blockers, ", "))
	}
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
