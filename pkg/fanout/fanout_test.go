package fanout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constTask(name string, v int, err error) Task[int] {
	return Task[int]{Name: name, Run: func(context.Context) (int, error) { return v, err }}
}

func TestRun_EmptyTasks_ReturnsNilNil(t *testing.T) {
	results, err := Run[int](context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, results)
}

func TestRun_AllSucceed(t *testing.T) {
	results, err := Run(context.Background(), []Task[int]{
		constTask("a", 1, nil),
		constTask("b", 2, nil),
		constTask("c", 3, nil),
	})
	require.NoError(t, err)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, i+1, r.Value)
	}
	assert.Empty(t, Messages(results))
}

func TestRun_CollectAllRunsEveryTask(t *testing.T) {
	boom := errors.New("boom")
	var ran atomic.Int32
	tasks := []Task[int]{
		{Name: "a", Run: func(context.Context) (int, error) { ran.Add(1); return 0, boom }},
		{Name: "b", Run: func(context.Context) (int, error) { ran.Add(1); return 2, nil }},
		{Name: "c", Run: func(context.Context) (int, error) { ran.Add(1); return 0, errors.New("other") }},
	}

	results, err := Run(context.Background(), tasks, CollectAll())
	require.Error(t, err)
	assert.Equal(t, int32(3), ran.Load())
	assert.Equal(t, []string{"a: boom", "c: other"}, Messages(results))

	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 3, fe.TotalCount)
	assert.Equal(t, 2, fe.FailedCount)
	assert.Equal(t, StrategyCollectAll, fe.Strategy)
	assert.Equal(t, "a", fe.Failures[0].Name)
	assert.Equal(t, "c", fe.Failures[1].Name)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "2/3 tasks failed")
}

func TestRun_FailFastCancelsSiblings(t *testing.T) {
	tasks := []Task[int]{
		constTask("fails", 0, errors.New("boom")),
		{Name: "slow", Run: func(ctx context.Context) (int, error) {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(5 * time.Second):
				return 1, nil
			}
		}},
	}

	start := time.Now()
	results, err := Run(context.Background(), tasks, FailFast())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.ErrorIs(t, results[1].Err, context.Canceled)
}

func TestRun_DefaultsToFailFast(t *testing.T) {
	tasks := []Task[int]{
		constTask("fails", 0, errors.New("boom")),
		{Name: "slow", Run: func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		}},
	}

	_, err := Run(context.Background(), tasks)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, StrategyFailFast, fe.Strategy)
}

func TestRun_TotalTimeout(t *testing.T) {
	tasks := []Task[int]{{Name: "hang", Run: func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}}}

	results, err := Run(context.Background(), tasks, CollectAll(), WithTimeout(20*time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
}

func TestRun_LimitBoundsParallelism(t *testing.T) {
	var active, peak atomic.Int32
	task := Task[int]{Run: func(context.Context) (int, error) {
		n := active.Add(1)
		for {
			cur := peak.Load()
			if n <= cur || peak.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return 0, nil
	}}
	tasks := []Task[int]{task, task, task, task, task, task}

	_, err := Run(context.Background(), tasks, CollectAll(), WithLimit(2))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_TaskTimeout(t *testing.T) {
	tasks := []Task[int]{{Name: "hang", Run: func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}}}

	results, err := Run(context.Background(), tasks, CollectAll(), WithTaskTimeout(20*time.Millisecond))
	require.Error(t, err)
	assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	tasks := []Task[int]{
		{Name: "panics", Run: func(context.Context) (int, error) { panic("kaboom") }},
		constTask("ok", 1, nil),
	}

	results, err := Run(context.Background(), tasks, CollectAll())
	require.Error(t, err)
	assert.Contains(t, results[0].Err.Error(), "kaboom")
	assert.NoError(t, results[1].Err)
}
