package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/report"
)

// ReportTool handles the audit_report MCP tool.
type ReportTool struct {
	renderer *report.Renderer
}

// NewReportTool creates a ReportTool.
func NewReportTool(renderer *report.Renderer) *ReportTool {
	return &ReportTool{renderer: renderer}
}

// Definition returns the MCP tool definition for registration.
func (t *ReportTool) Definition() mcp.Tool {
	return mcp.NewTool("audit_report",
		mcp.WithDescription(
			"Export the audit as one document: the progress table followed by every approved artifact, "+
				"grouped per segment and pain.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
		mcp.WithString("format",
			mcp.Description("Output format (default markdown)."),
			mcp.Enum(string(report.FormatMarkdown), string(report.FormatHTML)),
		),
		mcp.WithBoolean("include_drafts",
			mcp.Description("Fall back to drafts for steps that are not approved yet."),
		),
		mcp.WithBoolean("include_reviews",
			mcp.Description("Include review steps."),
		),
	)
}

// Handle processes the audit_report tool call.
func (t *ReportTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := strings.TrimSpace(req.GetString("project_id", ""))
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}
	format := report.Format(req.GetString("format", string(report.FormatMarkdown)))
	if format != report.FormatMarkdown && format != report.FormatHTML {
		return mcp.NewToolResultError("'format' must be one of: markdown, html"), nil
	}
	out, err := t.renderer.Render(ctx, projectID, format, report.Options{
		IncludeDrafts:  boolArg(req, "include_drafts", false),
		IncludeReviews: boolArg(req, "include_reviews", false),
	})
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(out), nil
}
