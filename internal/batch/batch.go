// Package batch fans a step out over every scope that still lacks work.
//
// RunMissing computes the target scopes of a fan-out step, subtracts the
// ones that already have a draft or an approved artifact and generates
// the rest in FIFO chunks. Items inside a chunk run in parallel; a failing
// item is recorded and its siblings keep going. Running the same batch
// twice generates nothing the second time.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/apperr"
	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/store"
)

// DefaultConcurrency is the chunk size when none is given.
const DefaultConcurrency = 3

// Runner is what the orchestrator needs from the engine.
type Runner interface {
	// Targets returns the scope keys the step instantiates for, plus a
	// description of every reference that was dropped as an orphan.
	Targets(ctx context.Context, projectID, step string) (targets, orphans []string, err error)
	// Existing returns the scopes that already have a draft or an
	// approved artifact.
	Existing(ctx context.Context, projectID, step string) (map[string]bool, error)
	// GenerateScope generates and stores the draft of one scope.
	GenerateScope(ctx context.Context, projectID, step, scope string) error
}

// Failure is one item that could not be generated.
type Failure struct {
	Scope string `json:"scope"`
	Code  string `json:"code"`
	Err   string `json:"error"`
}

// Result reports what a batch did. Counts are always filled in.
type Result struct {
	Step      string    `json:"step"`
	Requested int       `json:"requested"`
	Found     int       `json:"found"`
	Generated int       `json:"generated"`
	Errored   int       `json:"errored"`
	Succeeded []string  `json:"succeeded"`
	Skipped   []string  `json:"skipped"`
	Failed    []Failure `json:"failed"`
	Orphans   []string  `json:"orphans,omitempty"`
}

// Observer is notified of each item outcome. Outcome is one of
// "generated", "skipped" or "failed".
type Observer func(step, outcome string)

// Orchestrator runs batches.
type Orchestrator struct {
	runner      Runner
	concurrency int
	logger      *slog.Logger
	observe     Observer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency sets the default chunk size.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers an item outcome observer.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observe = fn }
}

// New creates an Orchestrator.
func New(r Runner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:      r,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunMissing generates every missing scope of step. concurrency <= 0
// uses the orchestrator default. The returned error is non-nil only when
// the batch could not be planned or the context was canceled; per-item
// failures live in the Result.
func (o *Orchestrator) RunMissing(ctx context.Context, projectID, step string, concurrency int) (Result, error) {
	if concurrency <= 0 {
		concurrency = o.concurrency
	}
	res := Result{Step: step, Succeeded: []string{}, Skipped: []string{}, Failed: []Failure{}}

	targets, orphans, err := o.runner.Targets(ctx, projectID, step)
	if err != nil {
		return res, err
	}
	res.Orphans = orphans
	for _, orphan := range orphans {
		o.logger.Warn("batch skipped orphan reference", "project", projectID, "step", step, "ref", orphan)
	}
	existing, err := o.runner.Existing(ctx, projectID, step)
	if err != nil {
		return res, err
	}
	res.Found = len(targets)

	var missing []string
	for _, t := range targets {
		if existing[t] {
			res.Skipped = append(res.Skipped, t)
			continue
		}
		missing = append(missing, t)
	}
	res.Requested = len(missing)

	o.logger.Info("batch started",
		"project", projectID, "step", step,
		"targets", len(targets), "missing", len(missing), "concurrency", concurrency)

	var mu sync.Mutex
	for start := 0; start < len(missing); start += concurrency {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+concurrency, len(missing))

		g, gctx := errgroup.WithContext(ctx)
		for _, scope := range missing[start:end] {
			g.Go(func() error {
				err := o.runner.GenerateScope(gctx, projectID, step, scope)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					res.Generated++
					res.Succeeded = append(res.Succeeded, scope)
					o.notify(step, "generated")
				case errors.Is(err, store.ErrAlreadyExists):
					res.Skipped = append(res.Skipped, scope)
					o.notify(step, "skipped")
				default:
					res.Errored++
					res.Failed = append(res.Failed, Failure{
						Scope: scope,
						Code:  string(apperr.CodeOf(err)),
						Err:   err.Error(),
					})
					o.notify(step, "failed")
					o.logger.Warn("batch item failed",
						"project", projectID, "step", step, "scope", scope, "error", err)
				}
				// Item failures never cancel siblings.
				return nil
			})
		}
		_ = g.Wait()
	}

	o.logger.Info("batch finished",
		"project", projectID, "step", step,
		"generated", res.Generated, "errored", res.Errored, "skipped", len(res.Skipped))
	return res, ctx.Err()
}

func (o *Orchestrator) notify(step, outcome string) {
	if o.observe != nil {
		o.observe(step, outcome)
	}
}
