// Package prompts implements MCP prompt handlers for the audit pipeline.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the audit-start MCP prompt.
// It guides the AI through onboarding and the first generation.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("audit-start",
		mcp.WithPromptDescription(
			"Start a new audience audit. Collects the business onboarding answers, "+
				"creates the project and generates the business validation draft.",
		),
		mcp.WithArgument("business_name",
			mcp.ArgumentDescription("Name of the business or product to audit"),
		),
	)
}

// Handle processes the audit-start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := "my business"
	if args := req.Params.Arguments; args != nil {
		if n, ok := args["business_name"]; ok && n != "" {
			name = n
		}
	}

	return &mcp.GetPromptResult{
		Description: "Start an audience audit",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want to run an audience audit for **%s**.\n\n"+
						"1. Ask me, one at a time, what we sell, who buys it today, the price range, "+
						"the markets we sell in and our main competitors\n"+
						"2. Call `audit_project_create` with the name and my answers as the onboarding JSON object\n"+
						"3. Call `audit_step_generate` for the `validation` step and show me the draft\n"+
						"4. Let me edit fields (`audit_draft_edit`) or regenerate them (`audit_field_regenerate`) "+
						"until I say it is right, then call `audit_step_approve`\n\n"+
						"Never approve a step without my explicit confirmation.",
					name,
				)),
			},
		},
	}, nil
}
