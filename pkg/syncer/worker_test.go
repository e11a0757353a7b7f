package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/worker"
)

func TestSync_EndToEndThroughWorker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id, coalesced, err := f.s.EnqueueSync(ctx, core.RepositorySync{UserID: "u1", Login: "octocat"})
	require.NoError(t, err)
	require.False(t, coalesced)

	w := worker.NewWorker(f.orch, worker.PollInterval(10*time.Millisecond))
	wctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		_ = w.Start(wctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	var job *core.Job
	require.Eventually(t, func() bool {
		j, err := f.orch.GetJob(ctx, id)
		if err != nil {
			return false
		}
		job = j
		return j.Status == core.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 100, job.Progress)

	require.Eventually(t, func() bool { return f.publisher.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	f.publisher.mu.Lock()
	n := f.publisher.sent[0]
	f.publisher.mu.Unlock()
	assert.Equal(t, "u1", n.UserID)
	assert.Equal(t, core.SourceRepository, n.Source)
	assert.Equal(t, id, n.JobID)
	require.NotNil(t, n.Overall)
	assert.True(t, n.Result.Success)

	assert.Equal(t, core.SyncCompleted, f.status(t, "u1", core.SourceRepository).State)
}
