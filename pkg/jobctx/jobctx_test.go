package jobctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/credibility-sync/pkg/core"
	intctx "github.com/jdziat/credibility-sync/pkg/internal/context"
)

func TestJobFromContext_OutsideHandler(t *testing.T) {
	ctx := context.Background()

	assert.Nil(t, JobFromContext(ctx))
	assert.Empty(t, JobIDFromContext(ctx))
	assert.Empty(t, WorkerIDFromContext(ctx))
	assert.NoError(t, ReportProgress(ctx, 50), "no-op outside a job")
}

func TestReportProgress_ClampsAndForwards(t *testing.T) {
	var reported []int
	job := &core.Job{ID: "job-1"}
	ctx := intctx.With(context.Background(), &intctx.Run{
		Job:      job,
		WorkerID: "worker-1",
		Progress: func(_ context.Context, pct int) error {
			reported = append(reported, pct)
			return nil
		},
	})

	require.NoError(t, ReportProgress(ctx, 30))
	require.NoError(t, ReportProgress(ctx, 250))
	require.NoError(t, ReportProgress(ctx, -1))

	assert.Equal(t, []int{30, 100, 0}, reported)
	assert.Equal(t, 0, job.Progress)
	assert.Equal(t, "job-1", JobIDFromContext(ctx))
	assert.Equal(t, "worker-1", WorkerIDFromContext(ctx))
}
