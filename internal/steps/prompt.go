package steps

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/generation"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/review"
)

// SystemPrompt is shared by every step.
const SystemPrompt = "You are a senior marketing researcher building an audience audit for a business. " +
	"Write in the language of the business description. " +
	"Return exactly one JSON object and nothing else."

// SegmentRef describes the segment an instance is scoped to.
type SegmentRef struct {
	ID          string
	Index       int
	Name        string
	Description string
}

// PainRef describes a pain point.
type PainRef struct {
	ID          string
	SegmentID   string
	Name        string
	Description string
	ImpactScore float64
	IsTop       bool
}

// ArtifactInput is one approved upstream artifact.
type ArtifactInput struct {
	Step    Key
	Title   string
	Scope   string
	Label   string // human name of the scope, e.g. the segment name
	Content Content
}

// Inputs is everything a prompt may draw on.
type Inputs struct {
	ProjectName string
	Brief       map[string]string
	Segment     *SegmentRef
	Pain        *PainRef
	Artifacts   []ArtifactInput
	// Changes is the filtered review output for finalize steps.
	Changes *review.ChangeSet
	// Pains lists the segment's pains with their ids for ranking steps.
	Pains []PainRef
	// Focus limits regeneration to one field; Current is the draft it
	// belongs to.
	Focus   string
	Current Content
}

// Prompt builds the provider request for d from approved inputs.
func (d Def) Prompt(in Inputs, maxTokens int) (generation.Prompt, error) {
	if d.Kind == KindFinalize && in.Changes == nil {
		return generation.Prompt{}, fmt.Errorf("step %q: finalize prompt requires the filtered change set", d.Key)
	}
	if in.Focus != "" {
		if _, ok := d.Field(in.Focus); !ok {
			return generation.Prompt{}, &ContentError{Step: d.Key, Field: in.Focus, Problem: "is not a field of this step"}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Task: %s\n\n%s\n\n", d.Title, d.Task)

	b.WriteString("## Business\n\n")
	fmt.Fprintf(&b, "Project: %s\n", in.ProjectName)
	keys := make([]string, 0, len(in.Brief))
	for k := range in.Brief {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, in.Brief[k])
	}
	b.WriteString("\n")

	if in.Segment != nil {
		fmt.Fprintf(&b, "## Segment\n\n%s (id %s)\n%s\n\n", in.Segment.Name, in.Segment.ID, in.Segment.Description)
	}
	if in.Pain != nil {
		fmt.Fprintf(&b, "## Pain point\n\n%s (id %s)\n%s\n\n", in.Pain.Name, in.Pain.ID, in.Pain.Description)
	}

	if len(in.Artifacts) > 0 {
		b.WriteString("## Approved inputs\n\n")
		for _, a := range in.Artifacts {
			heading := a.Title
			if a.Label != "" {
				heading += ": " + a.Label
			}
			data, err := json.MarshalIndent(a.Content, "", "  ")
			if err != nil {
				return generation.Prompt{}, fmt.Errorf("encoding %s input: %w", a.Step, err)
			}
			fmt.Fprintf(&b, "### %s\n\n```json\n%s\n```\n\n", heading, data)
		}
	}

	if d.Kind == KindFinalize {
		b.WriteString("## Accepted review changes\n\n")
		if len(in.Changes.Changes) == 0 {
			b.WriteString("No changes were accepted. Return the original unchanged.\n\n")
		}
		groups := in.Changes.ByKind()
		for _, kind := range in.Changes.Kinds() {
			fmt.Fprintf(&b, "### %s (%d)\n\n", kind, len(groups[kind]))
			for _, c := range groups[kind] {
				marker := ""
				if c.Edited {
					marker = " (edited by the reviewer)"
				}
				fmt.Fprintf(&b, "- [%s] %s%s\n", c.Kind, c.Text, marker)
			}
			b.WriteString("\n")
		}
	}

	if len(in.Pains) > 0 {
		b.WriteString("## Pains to rank\n\n")
		for _, p := range in.Pains {
			fmt.Fprintf(&b, "- id %s: %s. %s\n", p.ID, p.Name, p.Description)
		}
		b.WriteString("\n")
	}

	if in.Focus != "" {
		data, err := json.MarshalIndent(in.Current, "", "  ")
		if err != nil {
			return generation.Prompt{}, fmt.Errorf("encoding current draft: %w", err)
		}
		fmt.Fprintf(&b, "## Regenerate one field\n\nCurrent draft:\n\n```json\n%s\n```\n\n"+
			"Rewrite only the field %q so it is better grounded in the inputs. "+
			"Keep the same JSON shape; the other fields are ignored.\n\n", data, in.Focus)
	}

	b.WriteString(generation.OutputMarker)
	b.WriteString("\n")
	b.WriteString(d.Example)

	return generation.Prompt{System: SystemPrompt, User: b.String(), MaxTokens: maxTokens}, nil
}
