// The Orchestrator is constructed with New and passed explicitly to workers
// and API handlers; there is no package-level registry.
//
// Each queue carries a Policy (attempt ceiling, exponential backoff,
// retention, concurrency, lock duration, stall limit). Defaults give the
// sync queue a lower concurrency than the notifications queue so that
// provider rate limits are respected.
//
// Progress, completion and failure are published on Events() channels.
package queue
