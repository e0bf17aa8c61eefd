// Package resources implements MCP resource handlers for audit projects.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (audit://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/report"
)

const (
	projectsURI    = "audit://projects"
	projectsPrefix = projectsURI + "/"
)

// Handler manages audit resource endpoints.
type Handler struct {
	engine   *pipeline.Engine
	renderer *report.Renderer
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(engine *pipeline.Engine, renderer *report.Renderer) *Handler {
	return &Handler{engine: engine, renderer: renderer}
}

// ProjectsResource returns the MCP resource definition for the project list.
func (h *Handler) ProjectsResource() mcp.Resource {
	return mcp.NewResource(
		projectsURI,
		"Audit Projects",
		mcp.WithResourceDescription("Every audit project with its current step and status"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleProjects returns the project list as JSON.
func (h *Handler) HandleProjects(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	projects, err := h.engine.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	return jsonResource(req.Params.URI, projects)
}

// ProgressTemplate returns the MCP resource template for project progress.
func (h *Handler) ProgressTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		projectsPrefix+"{project_id}/progress",
		"Audit Progress",
		mcp.WithTemplateDescription("Per-step state of an audit project, with scope counts for segment and pain steps"),
		mcp.WithTemplateMIMEType("application/json"),
	)
}

// HandleProgress returns the project map of one project as JSON.
func (h *Handler) HandleProgress(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	projectID, ok := projectFromURI(uri, "progress")
	if !ok {
		return errorResource(uri, "expected audit://projects/{project_id}/progress"), nil
	}
	p, err := h.engine.GetProject(ctx, projectID)
	if err != nil {
		return errorResource(uri, err.Error()), nil
	}
	summaries, err := h.engine.Progress(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading progress: %w", err)
	}
	return jsonResource(uri, struct {
		Project pipeline.Project `json:"project"`
		Steps   any              `json:"steps"`
	}{p, summaries})
}

// ReportTemplate returns the MCP resource template for the Markdown report.
func (h *Handler) ReportTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		projectsPrefix+"{project_id}/report",
		"Audit Report",
		mcp.WithTemplateDescription("The approved artifacts of an audit project as one Markdown document"),
		mcp.WithTemplateMIMEType("text/markdown"),
	)
}

// HandleReport renders the Markdown report of one project.
func (h *Handler) HandleReport(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	projectID, ok := projectFromURI(uri, "report")
	if !ok {
		return errorResource(uri, "expected audit://projects/{project_id}/report"), nil
	}
	md, err := h.renderer.Markdown(ctx, projectID, report.Options{})
	if err != nil {
		return errorResource(uri, err.Error()), nil
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "text/markdown", Text: md},
	}, nil
}

// projectFromURI extracts the project id of audit://projects/{id}/{leaf}.
func projectFromURI(uri, leaf string) (string, bool) {
	rest, ok := strings.CutPrefix(uri, projectsPrefix)
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/"+leaf)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
