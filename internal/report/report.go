// Package report renders a project's audit as Markdown, or as HTML
// through goldmark.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/status"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/store"
)

var timeNow = func() time.Time { return time.Now().UTC() }

// Format is the output format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Options controls what the report includes.
type Options struct {
	// IncludeDrafts renders drafts where nothing is approved yet.
	IncludeDrafts bool
	// IncludeReviews renders review steps.
	IncludeReviews bool
}

// Source is the part of the engine the renderer reads.
type Source interface {
	GetProject(ctx context.Context, id string) (pipeline.Project, error)
	Progress(ctx context.Context, projectID string) ([]status.StepSummary, error)
	ScopeProgress(ctx context.Context, projectID string, step steps.Key) ([]status.Report, error)
	ResolveArtifact(ctx context.Context, inst steps.Instance) (pipeline.Artifact, error)
	Segments(ctx context.Context, projectID string) ([]pipeline.Segment, error)
	Pains(ctx context.Context, projectID, segmentID string) ([]pipeline.Pain, error)
	Registry() *steps.Registry
}

// Renderer builds reports.
type Renderer struct {
	src Source
	md  goldmark.Markdown
}

// New creates a Renderer.
func New(src Source) *Renderer {
	return &Renderer{
		src: src,
		md:  goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Render returns the report of a project in the requested format.
func (r *Renderer) Render(ctx context.Context, projectID string, format Format, opts Options) (string, error) {
	md, err := r.Markdown(ctx, projectID, opts)
	if err != nil {
		return "", err
	}
	switch format {
	case FormatMarkdown, "":
		return md, nil
	case FormatHTML:
		return r.HTML(md)
	}
	return "", fmt.Errorf("invalid report format %q: must be markdown or html", format)
}

// HTML converts a Markdown report to a standalone HTML document.
func (r *Renderer) HTML(md string) (string, error) {
	var body bytes.Buffer
	if err := r.md.Convert([]byte(md), &body); err != nil {
		return "", fmt.Errorf("rendering html: %w", err)
	}
	title := "Audience audit"
	if first, _, _ := strings.Cut(md, "\n"); strings.HasPrefix(first, "# ") {
		title = strings.TrimPrefix(first, "# ")
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", htmlEscape(title))
	b.WriteString("</head>\n<body>\n")
	b.Write(body.Bytes())
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

// Markdown renders the report as Markdown.
func (r *Renderer) Markdown(ctx context.Context, projectID string, opts Options) (string, error) {
	p, err := r.src.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	progress, err := r.src.Progress(ctx, projectID)
	if err != nil {
		return "", err
	}
	labels, err := r.labels(ctx, projectID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Audience audit: %s\n\n", p.Name)
	fmt.Fprintf(&b, "- Status: %s\n- Current step: %s\n- Generated: %s\n\n",
		p.Status, p.CurrentStep, timeNow().Format(time.RFC3339))

	b.WriteString("## Progress\n\n")
	b.WriteString("| Step | State | Done |\n|------|-------|------|\n")
	for _, s := range progress {
		fmt.Fprintf(&b, "| %s | %s %s | %d/%d |\n", s.Title, s.State.Icon(), s.State, s.Completed, s.Total)
	}
	b.WriteString("\n")

	reg := r.src.Registry()
	for _, def := range reg.Steps() {
		if def.Kind == steps.KindReview && !opts.IncludeReviews {
			continue
		}
		section, err := r.stepSection(ctx, projectID, def, labels, opts)
		if err != nil {
			return "", err
		}
		b.WriteString(section)
	}
	return b.String(), nil
}

func (r *Renderer) stepSection(ctx context.Context, projectID string, def steps.Def, labels map[string]string, opts Options) (string, error) {
	reports, err := r.src.ScopeProgress(ctx, projectID, def.Key)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, rep := range reports {
		if !rep.HasApproved && !(opts.IncludeDrafts && rep.HasDraft) {
			continue
		}
		a, err := r.src.ResolveArtifact(ctx, rep.Instance)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}
		if def.Scope.FanOut() {
			label := labels[rep.Instance.Scope]
			if label == "" {
				label = rep.Instance.Scope
			}
			fmt.Fprintf(&b, "### %s%s\n\n", label, draftMarker(a.Source))
		} else if a.Source == pipeline.SourceDraft {
			b.WriteString("_Draft, not yet approved._\n\n")
		}
		writeContent(&b, def, a.Content)
	}
	if b.Len() == 0 {
		return "", nil
	}
	return fmt.Sprintf("## %s\n\n%s", def.Title, b.String()), nil
}

// labels maps segment and pain ids to display names.
func (r *Renderer) labels(ctx context.Context, projectID string) (map[string]string, error) {
	out := map[string]string{}
	segs, err := r.src.Segments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, s := range segs {
		out[s.ID] = s.Name
	}
	pains, err := r.src.Pains(ctx, projectID, "")
	if err != nil {
		return nil, err
	}
	for _, p := range pains {
		if seg, ok := out[p.SegmentID]; ok {
			out[p.ID] = p.Name + " (" + seg + ")"
		} else {
			out[p.ID] = p.Name
		}
	}
	return out, nil
}

func draftMarker(src pipeline.Source) string {
	if src == pipeline.SourceDraft {
		return " (draft)"
	}
	return ""
}

// --- Content rendering ---

func writeContent(b *strings.Builder, def steps.Def, content steps.Content) {
	for _, name := range def.FieldNames() {
		v, ok := content[name]
		if !ok {
			continue
		}
		fmt.Fprintf(b, "**%s**\n\n", humanize(name))
		writeValue(b, v)
		b.WriteString("\n")
	}
}

func writeValue(b *strings.Builder, v any) {
	switch val := v.(type) {
	case string:
		b.WriteString(val + "\n")
	case []any:
		if len(val) == 0 {
			b.WriteString("_none_\n")
		}
		for _, item := range val {
			b.WriteString("- " + itemText(item) + "\n")
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, "- %s: %s\n", humanize(k), itemText(val[k]))
		}
	default:
		fmt.Fprintf(b, "%v\n", val)
	}
}

func itemText(item any) string {
	switch v := item.(type) {
	case string:
		return v
	case map[string]any:
		name, _ := v["name"].(string)
		desc, _ := v["description"].(string)
		if name != "" && desc != "" {
			return fmt.Sprintf("**%s**: %s", name, desc)
		}
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Sprint(item)
	}
	return string(data)
}

// humanize turns a snake_case key into a label.
func humanize(key string) string {
	s := strings.ReplaceAll(key, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

var htmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func htmlEscape(s string) string { return htmlReplacer.Replace(s) }
