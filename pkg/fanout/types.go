package fanout

import (
	"context"
	"fmt"
	"strings"
)

// Strategy decides when a fan-out as a whole has succeeded.
type Strategy string

const (
	StrategyFailFast   Strategy = "fail_fast"
	StrategyCollectAll Strategy = "collect_all"
)

// Task is one unit of work run by Run.
type Task[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Result is the outcome of the task at Index.
type Result[T any] struct {
	Index int
	Name  string
	Value T
	Err   error
}

// Error lists the failed tasks of a run.
type Error struct {
	TotalCount  int
	FailedCount int
	Strategy    Strategy
	Failures    []TaskFailure
}

func (e *Error) Error() string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, f.Name+": "+f.Error)
	}
	return fmt.Sprintf("fan-out failed: %d/%d tasks failed: %s", e.FailedCount, e.TotalCount, strings.Join(names, "; "))
}

// Unwrap exposes the individual task errors to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// TaskFailure is one failed task.
type TaskFailure struct {
	Index int
	Name  string
	Error string
	Err   error `json:"-"`
}
