package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/review"
)

// DecisionRecordTool handles the audit_decision_record MCP tool.
type DecisionRecordTool struct {
	engine *pipeline.Engine
}

// NewDecisionRecordTool creates a DecisionRecordTool.
func NewDecisionRecordTool(engine *pipeline.Engine) *DecisionRecordTool {
	return &DecisionRecordTool{engine: engine}
}

// Definition returns the MCP tool definition for registration.
func (t *DecisionRecordTool) Definition() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription(
			"Record the human decision on one recommendation of a review step. " +
				"Applied and edited recommendations are passed to the finalize step; dismissed ones are dropped. " +
				"Every recommendation needs a decision before the review can be approved.",
		),
	}, instanceOptions()...)
	opts = append(opts,
		mcp.WithString("recommendation_id",
			mcp.Required(),
			mcp.Description("Recommendation id as listed by `audit_artifact_get`, e.g. `changes-0`."),
		),
		mcp.WithString("status",
			mcp.Required(),
			mcp.Description("Decision on the recommendation."),
			mcp.Enum("applied", "edited", "dismissed"),
		),
		mcp.WithString("edited_text",
			mcp.Description("Reworded recommendation. Required when status is `edited`."),
		),
	)
	return mcp.NewTool("audit_decision_record", opts...)
}

// Handle processes the audit_decision_record tool call.
func (t *DecisionRecordTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	inst, res := instanceArg(req)
	if res != nil {
		return res, nil
	}
	recID := strings.TrimSpace(req.GetString("recommendation_id", ""))
	if recID == "" {
		return mcp.NewToolResultError("'recommendation_id' is required"), nil
	}
	st := review.Status(req.GetString("status", ""))
	if err := review.ValidateStatus(st); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	dec, err := t.engine.RecordDecision(ctx, inst, recID, st, req.GetString("edited_text", ""))
	if err != nil {
		return toolError(err)
	}
	view, err := t.engine.Decisions(ctx, inst)
	if err != nil {
		return toolError(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# ✅ Decision Recorded: `%s`\n\n", recID)
	fmt.Fprintf(&b, "**Review:** %s\n", inst)
	fmt.Fprintf(&b, "**Status:** %s\n", dec.Status)
	if dec.EditedText != "" {
		fmt.Fprintf(&b, "**Edited text:** %s\n", dec.EditedText)
	}
	fmt.Fprintf(&b, "\n**Decided:** %d/%d\n", len(view.Recommendations)-len(view.Missing), len(view.Recommendations))
	if len(view.Missing) > 0 {
		ids := make([]string, len(view.Missing))
		for i, id := range view.Missing {
			ids[i] = "`" + id + "`"
		}
		fmt.Fprintf(&b, "**Still undecided:** %s\n", strings.Join(ids, ", "))
	} else {
		b.WriteString("\nEvery recommendation is decided. Call `audit_step_approve` to approve the review.\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
