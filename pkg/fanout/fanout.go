// Package fanout runs independent tasks in parallel and aggregates their
// outcomes under a success strategy.
package fanout

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run executes tasks in parallel and returns one result per task, in task
// order, together with an *Error when the strategy is not satisfied.
//
// Under FailFast the first failure cancels the context of the remaining
// tasks. CollectAll lets every task finish. A panicking task counts as a
// failed task.
func Run[T any](ctx context.Context, tasks []Task[T], opts ...Option) ([]Result[T], error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	cfg := &settings{strategy: StrategyFailFast}
	for _, opt := range opts {
		opt.apply(cfg)
	}

	if cfg.totalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.totalTimeout)
		defer cancel()
	}

	results := make([]Result[T], len(tasks))

	var (
		g    *errgroup.Group
		gCtx context.Context
	)
	if cfg.strategy == StrategyFailFast {
		g, gCtx = errgroup.WithContext(ctx)
	} else {
		g, gCtx = &errgroup.Group{}, ctx
	}
	if cfg.limit > 0 {
		g.SetLimit(cfg.limit)
	}

	for i, task := range tasks {
		results[i] = Result[T]{Index: i, Name: task.Name}
		g.Go(func() error {
			v, err := runTask(gCtx, task, cfg.taskTimeout)
			results[i].Value = v
			results[i].Err = err
			if cfg.strategy == StrategyFailFast {
				return err
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, evaluate(cfg, results)
}

func runTask[T any](ctx context.Context, task Task[T], timeout time.Duration) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return v, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return task.Run(ctx)
}

func evaluate[T any](cfg *settings, results []Result[T]) error {
	fe := &Error{TotalCount: len(results), Strategy: cfg.strategy}
	for _, r := range results {
		if r.Err != nil {
			fe.FailedCount++
			fe.Failures = append(fe.Failures, TaskFailure{Index: r.Index, Name: r.Name, Error: r.Err.Error(), Err: r.Err})
		}
	}
	if fe.FailedCount == 0 {
		return nil
	}
	return fe
}

// Messages formats the failures of results as "name: error".
func Messages[T any](results []Result[T]) []string {
	var msgs []string
	for _, r := range results {
		if r.Err != nil {
			msgs = append(msgs, fmt.Sprintf("%s: %v", r.Name, r.Err))
		}
	}
	return msgs
}
