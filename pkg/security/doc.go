// Package security holds the limits and input checks applied before
// anything is written to the job store, and the sanitizer that keeps
// provider credentials out of stored error messages.
package security
