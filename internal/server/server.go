// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools, prompts and resources. No business logic
// lives here, only wiring.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/server"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/archive"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/config"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/generation"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/metrics"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/prompts"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/report"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/resources"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/retry"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/store"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Server is the wired application: the MCP server plus what the HTTP
// transport exposes next to it.
type Server struct {
	MCP     *server.MCPServer
	Engine  *pipeline.Engine
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// New creates and configures the server with all tools, prompts and
// resources registered. This is the single place where all dependencies
// are resolved.
//
// The returned cleanup function closes the artifact store and must be
// called on shutdown (typically via defer). It is always non-nil.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	// --- Create shared dependencies ---

	st, err := store.Open(ctx, store.Options{
		Driver:      cfg.Storage.Driver,
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("opening %s store: %w", cfg.Storage.Driver, err)
	}
	cleanup := func() {
		if err := st.Close(); err != nil {
			logger.Warn("closing store", "error", err)
		}
	}

	provider, err := newProvider(cfg.Provider)
	if err != nil {
		cleanup()
		return nil, noop, err
	}

	registry, err := loadRegistry(cfg.StepsFile)
	if err != nil {
		cleanup()
		return nil, noop, err
	}

	deps := pipeline.Deps{
		Store:    st,
		Provider: provider,
		Registry: registry,
		Retry: &retry.Policy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			BaseDelay:      cfg.Retry.BaseDelay,
			MaxDelay:       cfg.Retry.MaxDelay,
			Multiplier:     2,
			AttemptTimeout: cfg.Retry.AttemptTimeout,
		},
		Concurrency: cfg.Batch.Concurrency,
		MaxTokens:   cfg.Provider.MaxTokens,
		Logger:      logger,
	}
	var rec *metrics.Recorder
	if cfg.Metrics.Enabled {
		rec = metrics.New()
		deps.Metrics = rec
	}

	engine, err := pipeline.New(deps)
	if err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("creating engine: %w", err)
	}

	// --- Optional archive ---
	// The archive is best effort: if it cannot be opened, approvals still
	// work and nothing is copied out.
	blob, err := archive.Open(ctx, archive.Options{
		Driver: cfg.Archive.Driver,
		Dir:    cfg.Archive.Dir,
		S3: archive.S3Config{
			Bucket:          cfg.Archive.S3.Bucket,
			Region:          cfg.Archive.S3.Region,
			Endpoint:        cfg.Archive.S3.Endpoint,
			PathStyle:       cfg.Archive.S3.PathStyle,
			Prefix:          cfg.Archive.S3.Prefix,
			AccessKeyID:     cfg.Archive.S3.AccessKeyID,
			SecretAccessKey: cfg.Archive.S3.SecretAccessKey,
		},
	})
	switch {
	case err != nil:
		logger.Warn("approval archive disabled", "driver", cfg.Archive.Driver, "error", err)
	case blob != nil:
		engine.SetObserver(archive.New(blob, logger))
		logger.Info("approval archive enabled", "driver", blob.Driver())
	}

	renderer := report.New(engine)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"audience-audit",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	registerTools(s, engine, renderer)

	// --- Register prompts ---

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	// --- Register resources ---

	rh := resources.NewHandler(engine, renderer)
	s.AddResource(rh.ProjectsResource(), rh.HandleProjects)
	s.AddResourceTemplate(rh.ProgressTemplate(), rh.HandleProgress)
	s.AddResourceTemplate(rh.ReportTemplate(), rh.HandleReport)

	logger.Info("server ready",
		"version", Version,
		"storage", cfg.Storage.Driver,
		"provider", cfg.Provider.Name,
		"steps", len(registry.Order()),
	)
	return &Server{MCP: s, Engine: engine, metrics: rec, logger: logger}, cleanup, nil
}

// registerTools registers every audit MCP tool with the server.
func registerTools(s *server.MCPServer, engine *pipeline.Engine, renderer *report.Renderer) {
	projectCreate := tools.NewProjectCreateTool(engine)
	s.AddTool(projectCreate.Definition(), projectCreate.Handle)

	projectList := tools.NewProjectListTool(engine)
	s.AddTool(projectList.Definition(), projectList.Handle)

	projectStatus := tools.NewProjectStatusTool(engine)
	s.AddTool(projectStatus.Definition(), projectStatus.Handle)

	catalogList := tools.NewCatalogListTool(engine)
	s.AddTool(catalogList.Definition(), catalogList.Handle)

	stepGenerate := tools.NewStepGenerateTool(engine)
	s.AddTool(stepGenerate.Definition(), stepGenerate.Handle)

	stepRegenerate := tools.NewStepRegenerateTool(engine)
	s.AddTool(stepRegenerate.Definition(), stepRegenerate.Handle)

	fieldRegenerate := tools.NewFieldRegenerateTool(engine)
	s.AddTool(fieldRegenerate.Definition(), fieldRegenerate.Handle)

	draftEdit := tools.NewDraftEditTool(engine)
	s.AddTool(draftEdit.Definition(), draftEdit.Handle)

	artifactGet := tools.NewArtifactGetTool(engine)
	s.AddTool(artifactGet.Definition(), artifactGet.Handle)

	decisionRecord := tools.NewDecisionRecordTool(engine)
	s.AddTool(decisionRecord.Definition(), decisionRecord.Handle)

	stepApprove := tools.NewStepApproveTool(engine)
	s.AddTool(stepApprove.Definition(), stepApprove.Handle)

	batchRun := tools.NewBatchRunTool(engine)
	s.AddTool(batchRun.Definition(), batchRun.Handle)

	topPainSet := tools.NewTopPainSetTool(engine)
	s.AddTool(topPainSet.Definition(), topPainSet.Handle)

	reconcile := tools.NewReconcileTool(engine)
	s.AddTool(reconcile.Definition(), reconcile.Handle)

	reportTool := tools.NewReportTool(renderer)
	s.AddTool(reportTool.Definition(), reportTool.Handle)
}

// newProvider builds the generation provider named in cfg.
func newProvider(cfg config.ProviderConfig) (generation.Provider, error) {
	switch cfg.Name {
	case "echo":
		return generation.Echo{}, nil
	case "openai", "":
		p, err := generation.NewOpenAI(generation.OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("creating provider: %w", err)
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Name)
}

// loadRegistry returns the default step graph with the optional wording
// overrides applied.
func loadRegistry(path string) (*steps.Registry, error) {
	reg := steps.Default()
	if path == "" {
		return reg, nil
	}
	o, err := steps.LoadOverrides(path)
	if err != nil {
		return nil, err
	}
	return o.Apply(reg)
}

// Handler returns the HTTP surface: the streamable MCP transport at /mcp,
// a liveness check at /healthz and, when enabled, Prometheus metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", server.NewStreamableHTTPServer(s.MCP))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// noop is the cleanup returned when construction fails.
func noop() {}

func serverInstructions() string {
	return `You have access to Audience Audit, an MCP server that builds a marketing
audience audit step by step with a human approving every artifact.

## HOW THE PIPELINE WORKS

Each step produces a JSON draft from the APPROVED artifacts of the steps it
depends on. Nothing moves forward until the user approves the draft.

Project steps, in order:
validation -> portrait -> portrait-review -> portrait-final ->
segments -> segments-review -> segments-final

Approving segments-final creates the segment catalog. From there, steps run
once per segment (segment-details, jobs, preferences, difficulties, triggers,
pains, pains-ranking) and once per TOP pain (canvas, canvas-extended).
strategy closes the audit once every canvas is approved.

## THE LOOP FOR ONE STEP

1. audit_step_generate (or audit_batch_run for per-segment / per-pain steps)
2. Show the draft. Let the user edit (audit_draft_edit) or rewrite a field
   (audit_field_regenerate), or start over (audit_step_regenerate)
3. Review steps: walk through every recommendation with the user and record
   applied / edited / dismissed with audit_decision_record. Only applied and
   edited recommendations reach the finalize step
4. audit_step_approve ONLY after the user explicitly agrees

## RULES

- Never approve on the user's behalf without confirmation
- If a tool says a prerequisite is missing, run audit_project_status and
  follow the blockers it lists
- Use audit_catalog_list to find segment and pain ids for the scope argument
- After the segment list or pain lists change, run audit_reconcile to find
  records that point at removed segments or pains
- audit_report exports the finished audit`
}
