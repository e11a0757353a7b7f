// Package core provides the fundamental types and interfaces for credibility-sync.
//
// This package contains:
//   - Job (sync job) and queue state models with GORM annotations
//   - The sealed Payload union keyed by job type
//   - Source profile, credibility, skill and career goal models
//   - Storage interfaces for the job queue and the profile store
//   - Event types for queue monitoring
//   - Error types for job processing and record validation
//
// Most users should import the root package github.com/jdziat/credibility-sync
// instead of this package directly.
package core
