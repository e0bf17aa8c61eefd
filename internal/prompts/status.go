package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the audit-status MCP prompt.
// It instructs the AI to present the state of a project and the next move.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("audit-status",
		mcp.WithPromptDescription(
			"Check where an audience audit stands: completed steps, "+
				"pending reviews and what to do next.",
		),
		mcp.WithArgument("project_id",
			mcp.ArgumentDescription("Project id. If omitted, the AI lists the projects first."),
		),
	)
}

// Handle processes the audit-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	first := "Please run `audit_project_list` and ask me which project I mean, " +
		"then run `audit_project_status` for it."
	if args := req.Params.Arguments; args != nil {
		if id, ok := args["project_id"]; ok && id != "" {
			first = fmt.Sprintf("Please run `audit_project_status` for project `%s`.", id)
		}
	}

	return &mcp.GetPromptResult{
		Description: "Audience audit status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					first + "\n\n" +
						"Then:\n" +
						"1. Show me the step map in a clear, visual format\n" +
						"2. List reviews with undecided recommendations (check them with `audit_artifact_get`)\n" +
						"3. For per-segment and per-pain steps, tell me how many scopes are still missing " +
						"and offer `audit_batch_run`\n" +
						"4. Tell me exactly what I should do next",
				),
			},
		},
	}, nil
}
