// Package archive keeps a JSON snapshot of every approved artifact in a
// blob store (local directory, S3-compatible bucket or memory).
//
// Archiving is best effort: a failed write is logged and never fails
// the approval that triggered it.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/pipeline"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/steps"
)

// Blob is the minimal write surface the archiver needs. Put overwrites.
type Blob interface {
	Put(ctx context.Context, key string, data []byte) error
	Driver() string
}

// Snapshot is the archived document.
type Snapshot struct {
	ProjectID  string         `json:"project_id"`
	Step       steps.Key      `json:"step"`
	Scope      string         `json:"scope,omitempty"`
	Version    int            `json:"version"`
	Content    map[string]any `json:"content"`
	Decisions  any            `json:"decisions,omitempty"`
	ApprovedAt time.Time      `json:"approved_at"`
}

// Key returns the object key of an instance:
// projects/{project}/{step}/{scope or _}.json
func Key(inst steps.Instance) string {
	scope := inst.Scope
	if scope == "" {
		scope = "_"
	}
	return fmt.Sprintf("projects/%s/%s/%s.json", inst.ProjectID, inst.Step, scope)
}

// Archiver implements pipeline.ApprovalObserver.
type Archiver struct {
	blob    Blob
	logger  *slog.Logger
	timeout time.Duration
}

// New creates an Archiver writing to blob.
func New(blob Blob, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{blob: blob, logger: logger, timeout: 30 * time.Second}
}

// OnApproved writes the snapshot of a. Errors are logged.
func (a *Archiver) OnApproved(ctx context.Context, ap pipeline.Approved) {
	if err := a.Archive(ctx, ap); err != nil {
		a.logger.Warn("archiving approved artifact failed",
			"instance", ap.Instance.String(), "driver", a.blob.Driver(), "error", err)
	}
}

// Archive writes the snapshot of ap and returns any error.
func (a *Archiver) Archive(ctx context.Context, ap pipeline.Approved) error {
	snap := Snapshot{
		ProjectID:  ap.Instance.ProjectID,
		Step:       ap.Instance.Step,
		Scope:      ap.Instance.Scope,
		Version:    ap.Version,
		Content:    ap.Content,
		ApprovedAt: ap.ApprovedAt,
	}
	if len(ap.Decisions) > 0 {
		snap.Decisions = ap.Decisions
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()
	return a.blob.Put(ctx, Key(ap.Instance), data)
}
