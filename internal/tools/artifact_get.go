package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
)

// ArtifactGetTool handles the audit_artifact_get MCP tool. It reads the
// approved artifact and falls back to the draft. For review steps the
// recommendations and their decisions are listed too.
type ArtifactGetTool struct {
	engine *pipeline.Engine
}

// NewArtifactGetTool creates an ArtifactGetTool.
func NewArtifactGetTool(engine *pipeline.Engine) *ArtifactGetTool {
	return &ArtifactGetTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *ArtifactGetTool) Definition() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription(
			"Read the content of a step instance: the approved artifact when there is one, " +
				"the draft otherwise. Review steps also list each recommendation id with its decision.",
		),
	}, instanceOptions()...)
	return mcp.NewTool("audit_artifact_get", opts...)
}

// Handle processes the audit_artifact_get tool call.
func (t *ArtifactGetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inst, res := instanceArg(req)
	if res != nil {
		return res, nil
	}
	a, err := t.engine.ResolveArtifact(ctx, inst)
	if err != nil {
		return toolError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# 📄 %s\n\n", inst)
	fmt.Fprintf(&b, "**Source:** %s\n", a.Source)
	fmt.Fprintf(&b, "**Version:** %d\n", a.Version)
	fmt.Fprintf(&b, "**Updated:** %s\n\n", a.UpdatedAt.Format("2006-01-02 15:04"))
	b.WriteString(jsonBlock(a.Content))
	b.WriteString("\n")

	def, err := t.engine.Registry().Resolve(inst.Step)
	if err != nil {
		return toolError(err)
	}
	if def.Kind == steps.KindReview {
		view, err := t.engine.Decisions(ctx, inst)
		if err != nil {
			return toolError(err)
		}
		b.WriteString("\n## Recommendations\n\n")
		b.WriteString("| ID | Kind | Decision | Text |\n")
		b.WriteString("|----|------|----------|------|\n")
		for _, rec := range view.Recommendations {
			decision := "⬜ undecided"
			if d, ok := view.Decisions[rec.ID]; ok {
				decision = "✅ " + string(d.Status)
			}
			fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", rec.ID, rec.Kind, decision, cell(rec.Text))
		}
		if len(view.Missing) > 0 {
			fmt.Fprintf(&b, "\n**Undecided:** %d. Record them with `audit_decision_record` before approving.\n", len(view.Missing))
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// cell flattens text for a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}
