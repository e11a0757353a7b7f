// Package handler provides the job-type routing table used by workers.
package handler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jdziat/credibility-sync/pkg/core"
)

// Func processes one decoded payload and reports the job result.
type Func func(ctx context.Context, p core.Payload) (*core.JobResult, error)

// Handler holds a registered handler and its execution limits.
type Handler struct {
	Type    core.JobType
	Fn      Func
	Timeout time.Duration
}

// Router dispatches jobs to handlers by job type.
type Router struct {
	mu       sync.RWMutex
	handlers map[core.JobType]*Handler
}

// NewRouter creates an empty routing table.
func NewRouter() *Router {
	return &Router{handlers: make(map[core.JobType]*Handler)}
}

// Handle registers fn for a job type, replacing any previous handler.
func (r *Router) Handle(t core.JobType, fn Func, timeout time.Duration) error {
	if fn == nil {
		return fmt.Errorf("handler for %q cannot be nil", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = &Handler{Type: t, Fn: fn, Timeout: timeout}
	return nil
}

// Register adds a handler typed on its payload variant. The job type comes
// from the variant, so a handler can never be routed a different payload.
func Register[P core.Payload](r *Router, fn func(context.Context, P) (*core.JobResult, error), timeout time.Duration) error {
	if fn == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	var zero P
	return r.Handle(zero.JobType(), func(ctx context.Context, p core.Payload) (*core.JobResult, error) {
		typed, ok := p.(P)
		if !ok {
			return nil, core.NoRetry(fmt.Errorf("%w: got %T for %s", core.ErrInvalidPayload, p, zero.JobType()))
		}
		return fn(ctx, typed)
	}, timeout)
}

// Lookup returns the handler for a job type.
func (r *Router) Lookup(t core.JobType) (*Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Types lists the registered job types in sorted order.
func (r *Router) Types() []core.JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]core.JobType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Dispatch decodes the job's payload and runs its handler under the
// handler's timeout. Unknown job types and undecodable payloads are routing
// defects and come back wrapped in core.NoRetry.
func (r *Router) Dispatch(ctx context.Context, job *core.Job) (*core.JobResult, error) {
	h, ok := r.Lookup(job.Type)
	if !ok {
		return nil, core.NoRetry(fmt.Errorf("%w: %q", core.ErrUnknownJobType, job.Type))
	}

	payload, err := core.DecodePayload(job.Type, job.Args)
	if err != nil {
		return nil, core.NoRetry(err)
	}

	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	return h.Fn(ctx, payload)
}
