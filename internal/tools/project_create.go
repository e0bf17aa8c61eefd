package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
)

// ProjectCreateTool handles the audit_project_create MCP tool.
type ProjectCreateTool struct {
	engine *pipeline.Engine
}

// NewProjectCreateTool creates a ProjectCreateTool.
func NewProjectCreateTool(engine *pipeline.Engine) *ProjectCreateTool {
	return &ProjectCreateTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *ProjectCreateTool) Definition() mcp.Tool {
	return mcp.NewTool("audit_project_create",
		mcp.WithDescription(
			"Create an audience audit project from the business onboarding answers. "+
				"The project starts at the `validation` step. "+
				"Returns the project id used by every other audit tool.",
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Project name, usually the product or business name."),
		),
		mcp.WithString("onboarding",
			mcp.Description("Onboarding answers as a JSON object of strings, "+
				"e.g. {\"product\": \"online yoga classes\", \"market\": \"EU\"}. "+
				"Plain text is stored as the `brief` answer."),
		),
	)
}

// Handle processes the audit_project_create tool call.
func (t *ProjectCreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	onboarding, err := parseOnboarding(req.GetString("onboarding", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	p, err := t.engine.CreateProject(ctx, name, onboarding)
	if err != nil {
		return toolError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# ✅ Project Created: %s\n\n", p.Name)
	fmt.Fprintf(&b, "**Project ID:** `%s`\n", p.ID)
	fmt.Fprintf(&b, "**Current step:** `%s`\n\n", p.CurrentStep)
	if len(p.Onboarding) > 0 {
		b.WriteString("## Onboarding\n\n")
		keys := make([]string, 0, len(p.Onboarding))
		for k := range p.Onboarding {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- **%s:** %s\n", k, p.Onboarding[k])
		}
		b.WriteString("\n")
	}
	b.WriteString("## Next Step\n\n")
	fmt.Fprintf(&b, "Call `audit_step_generate` with project_id `%s` and step `%s`.\n", p.ID, p.CurrentStep)
	return mcp.NewToolResultText(b.String()), nil
}

// parseOnboarding accepts a JSON object of strings or free text.
func parseOnboarding(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if !strings.HasPrefix(raw, "{") {
		return map[string]string{"brief": raw}, nil
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("'onboarding' must be a JSON object of strings: %v", err)
	}
	return out, nil
}
