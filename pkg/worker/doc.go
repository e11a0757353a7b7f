// Package worker runs the sync worker pool.
//
// A Worker owns a fixed-size goroutine pool per queue. A job is claimed
// only when a goroutine of its queue is free, so a claimed job never waits
// for capacity while its lock runs down. Each active job has a heartbeat
// goroutine extending its lock. Alongside the pools the worker runs a
// stalled-job detector, a retention janitor and, optionally, the scheduler
// for recurring jobs registered on the orchestrator.
//
// Start blocks until its context is cancelled. In-flight jobs are allowed
// to finish; there is no mid-flight cancellation.
package worker
