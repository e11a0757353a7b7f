package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validation errors
var (
	ErrInvalidJobType   = errors.New("credsync: invalid job type (must be alphanumeric, start with letter)")
	ErrJobTypeTooLong   = errors.New("credsync: job type too long")
	ErrInvalidQueueName = errors.New("credsync: invalid queue name")
	ErrQueueNameTooLong = errors.New("credsync: queue name too long")
	ErrJobArgsTooLarge  = errors.New("credsync: job payload exceeds size limit")
	ErrUniqueKeyTooLong = errors.New("credsync: unique key exceeds maximum length")
	ErrInvalidPayload   = errors.New("credsync: invalid job payload")
)

// Job lifecycle errors
var (
	ErrJobNotOwned    = errors.New("credsync: job not owned by this worker")
	ErrJobNotFound    = errors.New("credsync: job not found")
	ErrDuplicateJob   = errors.New("credsync: duplicate job with same unique key")
	ErrUnknownJobType = errors.New("credsync: unknown job type")
	ErrUnknownSource  = errors.New("credsync: unknown source")
	ErrNotRetryable   = errors.New("credsync: only failed jobs can be retried")
	ErrNotRemovable   = errors.New("credsync: only waiting or delayed jobs can be removed")
	ErrSourceBusy     = errors.New("credsync: source sync already in flight")
	ErrNotLinked      = errors.New("credsync: source not linked for user")
	ErrGoalNotFound   = errors.New("credsync: career goal not found")
)

// DuplicateJobError reports the job already holding a unique key.
type DuplicateJobError struct {
	ExistingID string
	UniqueKey  string
}

func (e *DuplicateJobError) Error() string {
	return fmt.Sprintf("%v: key %q held by job %s", ErrDuplicateJob, e.UniqueKey, e.ExistingID)
}

func (e *DuplicateJobError) Unwrap() error {
	return ErrDuplicateJob
}

// NoRetryError indicates an error that should not be retried.
type NoRetryError struct {
	Err error
}

func (e *NoRetryError) Error() string {
	return fmt.Sprintf("no retry: %v", e.Err)
}

func (e *NoRetryError) Unwrap() error {
	return e.Err
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return &NoRetryError{Err: err}
}

// RetryAfterError indicates an error that should be retried after a delay.
type RetryAfterError struct {
	Err   error
	Delay time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %v: %v", e.Delay, e.Err)
}

func (e *RetryAfterError) Unwrap() error {
	return e.Err
}

// RetryAfter wraps an error to indicate it should be retried after a delay.
func RetryAfter(d time.Duration, err error) error {
	return &RetryAfterError{Err: err, Delay: d}
}

// FieldError describes one invalid field of a submitted record.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError rejects a submitted record before persistence. It is
// returned synchronously and is never turned into a retryable job.
type ValidationError struct {
	Record string       `json:"record"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("invalid %s record: %s", e.Record, strings.Join(parts, "; "))
}

// Add records a field problem.
func (e *ValidationError) Add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// OrNil returns the error if any field was recorded, otherwise nil.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// IsValidationError reports whether err is a record validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
