// Package jobctx exposes the running job to sync handlers.
package jobctx

import (
	"context"

	"github.com/jdziat/credibility-sync/pkg/core"
	intctx "github.com/jdziat/credibility-sync/pkg/internal/context"
	"github.com/jdziat/credibility-sync/pkg/security"
)

// JobFromContext returns the job being handled, or nil outside a handler.
func JobFromContext(ctx context.Context) *core.Job {
	if r := intctx.From(ctx); r != nil {
		return r.Job
	}
	return nil
}

// JobIDFromContext returns the ID of the job being handled, or "".
func JobIDFromContext(ctx context.Context) string {
	if job := JobFromContext(ctx); job != nil {
		return job.ID
	}
	return ""
}

// WorkerIDFromContext returns the ID of the worker running the job, or "".
func WorkerIDFromContext(ctx context.Context) string {
	if r := intctx.From(ctx); r != nil {
		return r.WorkerID
	}
	return ""
}

// ReportProgress records progress, clamped to 0-100, on the job record so
// it can be polled before the job finishes. It does nothing outside a
// handler.
func ReportProgress(ctx context.Context, pct int) error {
	r := intctx.From(ctx)
	if r == nil || r.Progress == nil {
		return nil
	}
	return r.Progress(ctx, security.ClampScore(pct))
}
