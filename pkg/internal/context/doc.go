// Package context carries the running job, the worker ID and the progress
// reporter from the worker into handlers. Handlers read it through jobctx.
package context
