package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
)

// CatalogListTool handles the audit_catalog_list MCP tool. It lists the
// segment and pain ids that per-segment and per-pain steps take as scope.
type CatalogListTool struct {
	engine *pipeline.Engine
}

// NewCatalogListTool creates a CatalogListTool.
func NewCatalogListTool(engine *pipeline.Engine) *CatalogListTool {
	return &CatalogListTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *CatalogListTool) Definition() mcp.Tool {
	return mcp.NewTool("audit_catalog_list",
		mcp.WithDescription(
			"List the segments of a project and their pains, with the ids to pass as `scope`. "+
				"Top pains are marked with ⭐.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
		mcp.WithString("segment_id",
			mcp.Description("Only list this segment's pains."),
		),
	)
}

// Handle processes the audit_catalog_list tool call.
func (t *CatalogListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := strings.TrimSpace(req.GetString("project_id", ""))
	if projectID == "" {
		return mcp.NewToolResultError("'project_id' is required"), nil
	}
	segmentID := strings.TrimSpace(req.GetString("segment_id", ""))

	if _, err := t.engine.GetProject(ctx, projectID); err != nil {
		return toolError(err)
	}
	segs, err := t.engine.Segments(ctx, projectID)
	if err != nil {
		return toolError(err)
	}
	if len(segs) == 0 {
		return mcp.NewToolResultText("No segments yet. They are created when `segments-final` is approved."), nil
	}
	pains, err := t.engine.Pains(ctx, projectID, segmentID)
	if err != nil {
		return toolError(err)
	}
	bySegment := map[string][]pipeline.Pain{}
	for _, p := range pains {
		bySegment[p.SegmentID] = append(bySegment[p.SegmentID], p)
	}

	var b strings.Builder
	b.WriteString("# 🗂️ Segments and Pains\n\n")
	for _, s := range segs {
		if segmentID != "" && s.ID != segmentID {
			continue
		}
		fmt.Fprintf(&b, "## %d. %s\n\n", s.Index+1, s.Name)
		fmt.Fprintf(&b, "**Segment ID:** `%s`\n", s.ID)
		if s.Description != "" {
			fmt.Fprintf(&b, "%s\n", s.Description)
		}
		ps := bySegment[s.ID]
		if len(ps) == 0 {
			b.WriteString("\n_No pains yet._\n\n")
			continue
		}
		b.WriteString("\n| Pain | ID | Impact | Top |\n")
		b.WriteString("|------|----|--------|-----|\n")
		for _, p := range ps {
			star := ""
			if p.IsTop {
				star = "⭐"
			}
			fmt.Fprintf(&b, "| %s | `%s` | %g | %s |\n", cell(p.Name), p.ID, p.ImpactScore, star)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
