package prompts

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func promptText(t *testing.T, res *mcp.GetPromptResult) string {
	t.Helper()
	require.Len(t, res.Messages, 1)
	assert.Equal(t, mcp.RoleUser, res.Messages[0].Role)
	tc, ok := res.Messages[0].Content.(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestStartPrompt(t *testing.T) {
	p := NewStartPrompt()
	assert.Equal(t, "audit-start", p.Definition().Name)

	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"business_name": "Sunrise Yoga"}
	res, err := p.Handle(context.Background(), req)
	require.NoError(t, err)
	text := promptText(t, res)
	assert.Contains(t, text, "**Sunrise Yoga**")
	assert.Contains(t, text, "audit_project_create")

	res, err = p.Handle(context.Background(), mcp.GetPromptRequest{})
	require.NoError(t, err)
	assert.Contains(t, promptText(t, res), "**my business**")
}

func TestStatusPrompt(t *testing.T) {
	p := NewStatusPrompt()
	assert.Equal(t, "audit-status", p.Definition().Name)

	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"project_id": "p-1"}
	res, err := p.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, promptText(t, res), "project `p-1`")

	res, err = p.Handle(context.Background(), mcp.GetPromptRequest{})
	require.NoError(t, err)
	assert.Contains(t, promptText(t, res), "audit_project_list")
}
