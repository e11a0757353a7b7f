package queue

import (
	"context"
	"fmt"
)

// Health is the advisory result of CheckHealth. The orchestrator reports
// issues but takes no corrective action.
type Health struct {
	Healthy bool               `json:"healthy"`
	Issues  []string           `json:"issues"`
	Queues  map[string]Metrics `json:"queues"`
}

// CheckHealth inspects every known queue and flags failed counts over the
// failed threshold, waiting counts over the waiting threshold (a bottleneck
// signal) and paused queues that were not declared with ExpectPaused.
func (o *Orchestrator) CheckHealth(ctx context.Context) (Health, error) {
	h := Health{Healthy: true, Issues: []string{}, Queues: make(map[string]Metrics)}

	queues := o.Queues()
	paused, err := o.storage.GetPausedQueues(ctx)
	if err != nil {
		return Health{}, err
	}
	known := make(map[string]bool, len(queues))
	for _, q := range queues {
		known[q] = true
	}
	for _, q := range paused {
		if !known[q] {
			queues = append(queues, q)
			known[q] = true
		}
	}

	o.mu.RLock()
	failedLimit, waitingLimit := o.failedThreshold, o.waitingThreshold
	expected := make(map[string]bool, len(o.expectedPaused))
	for q := range o.expectedPaused {
		expected[q] = true
	}
	o.mu.RUnlock()

	for _, q := range queues {
		m, err := o.GetMetrics(ctx, q)
		if err != nil {
			return Health{}, fmt.Errorf("metrics for %s: %w", q, err)
		}
		h.Queues[q] = m

		if failedLimit > 0 && m.Failed > failedLimit {
			h.Issues = append(h.Issues, fmt.Sprintf("queue %s: %d failed jobs exceeds threshold %d", q, m.Failed, failedLimit))
		}
		if waitingLimit > 0 && m.Waiting > waitingLimit {
			h.Issues = append(h.Issues, fmt.Sprintf("queue %s: %d waiting jobs exceeds threshold %d", q, m.Waiting, waitingLimit))
		}
		if m.Paused && !expected[q] {
			h.Issues = append(h.Issues, fmt.Sprintf("queue %s is paused", q))
		}
	}

	h.Healthy = len(h.Issues) == 0
	return h, nil
}
