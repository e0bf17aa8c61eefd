package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
)

// TopPainSetTool handles the audit_top_pain_set MCP tool.
type TopPainSetTool struct {
	engine *pipeline.Engine
}

// NewTopPainSetTool creates a TopPainSetTool.
func NewTopPainSetTool(engine *pipeline.Engine) *TopPainSetTool {
	return &TopPainSetTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *TopPainSetTool) Definition() mcp.Tool {
	return mcp.NewTool("audit_top_pain_set",
		mcp.WithDescription(
			"Add a pain to the top-set or take it out. Only top pains get the canvas steps. "+
				"Drafts of pains that leave the top-set go stale; `audit_reconcile` reports and prunes them.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project id."),
		),
		mcp.WithString("pain_id",
			mcp.Required(),
			mcp.Description("Pain id."),
		),
		mcp.WithBoolean("top",
			mcp.Description("true to add the pain to the top-set (default), false to remove it."),
		),
	)
}

// Handle processes the audit_top_pain_set tool call.
func (t *TopPainSetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID := strings.TrimSpace(req.GetString("project_id", ""))
	painID := strings.TrimSpace(req.GetString("pain_id", ""))
	if projectID == "" || painID == "" {
		return mcp.NewToolResultError("'project_id' and 'pain_id' are required"), nil
	}
	top := boolArg(req, "top", true)

	p, err := t.engine.SetTopPain(ctx, projectID, painID, top)
	if err != nil {
		return toolError(err)
	}
	verb := "added to"
	if !p.IsTop {
		verb = "removed from"
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"# ✅ Top Pains Updated\n\n**%s** (`%s`) %s the top-set.\n\n**Segment:** `%s`\n**Impact score:** %g\n",
		p.Name, p.ID, verb, p.SegmentID, p.ImpactScore,
	)), nil
}
