package tools

import (
	"fmt"
	"strings"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/drafts"
)

// renderDraft formats a draft with a heading and follow-up hints.
func renderDraft(heading string, d drafts.Draft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: %s\n\n", heading, d.Instance)
	fmt.Fprintf(&b, "**Version:** %d\n\n", d.Version)
	b.WriteString(jsonBlock(d.Content))
	b.WriteString("\n\n## Next Steps\n\n")
	b.WriteString("- Edit a field with `audit_draft_edit` or rewrite one with `audit_field_regenerate`\n")
	b.WriteString("- Review steps: decide each recommendation with `audit_decision_record`\n")
	b.WriteString("- When satisfied, call `audit_step_approve`\n")
	return b.String()
}
