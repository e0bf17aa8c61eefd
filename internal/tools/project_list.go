package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
)

// ProjectListTool handles the audit_project_list MCP tool.
type ProjectListTool struct {
	engine *pipeline.Engine
}

// NewProjectListTool creates a ProjectListTool.
func NewProjectListTool(engine *pipeline.Engine) *ProjectListTool {
	return &ProjectListTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *ProjectListTool) Definition() mcp.Tool {
	return mcp.NewTool("audit_project_list",
		mcp.WithDescription("List audit projects, newest first, with their current step and status."),
	)
}

// Handle processes the audit_project_list tool call.
func (t *ProjectListTool) Handle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := t.engine.ListProjects(ctx)
	if err != nil {
		return toolError(err)
	}
	if len(projects) == 0 {
		return mcp.NewToolResultText("No projects yet. Create one with `audit_project_create`."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Audit Projects (%d)\n\n", len(projects))
	b.WriteString("| Name | ID | Current step | Status |\n")
	b.WriteString("|------|----|--------------|--------|\n")
	for _, p := range projects {
		marker := "🔄"
		if p.Status == pipeline.ProjectCompleted {
			marker = "✅"
		}
		fmt.Fprintf(&b, "| %s | `%s` | `%s` | %s %s |\n", p.Name, p.ID, p.CurrentStep, marker, p.Status)
	}
	return mcp.NewToolResultText(b.String()), nil
}
