package context

import (
	"context"

	"github.com/jdziat/credibility-sync/pkg/core"
)

type runKey struct{}

// Run describes the job a handler is executing.
type Run struct {
	Job      *core.Job
	WorkerID string
	// Progress persists and broadcasts handler-reported progress.
	Progress func(ctx context.Context, pct int) error
}

// With attaches r to ctx.
func With(ctx context.Context, r *Run) context.Context {
	return context.WithValue(ctx, runKey{}, r)
}

// From returns the Run attached to ctx, or nil outside a handler.
func From(ctx context.Context) *Run {
	r, _ := ctx.Value(runKey{}).(*Run)
	return r
}
