package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/credibility-sync/pkg/core"
)

func TestRegister_RoutesByPayloadVariant(t *testing.T) {
	r := NewRouter()
	var got core.RepositorySync

	err := Register(r, func(_ context.Context, p core.RepositorySync) (*core.JobResult, error) {
		got = p
		return &core.JobResult{Success: true, ItemsSynced: 7}, nil
	}, 0)
	require.NoError(t, err)

	args, err := core.EncodePayload(core.RepositorySync{UserID: "u1", Login: "octocat"})
	require.NoError(t, err)

	res, err := r.Dispatch(context.Background(), &core.Job{Type: core.JobSyncRepository, Args: args})
	require.NoError(t, err)
	assert.Equal(t, 7, res.ItemsSynced)
	assert.Equal(t, "octocat", got.Login)
	assert.Equal(t, []core.JobType{core.JobSyncRepository}, r.Types())
}

func TestDispatch_UnknownTypeIsNotRetryable(t *testing.T) {
	r := NewRouter()

	_, err := r.Dispatch(context.Background(), &core.Job{Type: core.JobSyncSocial, Args: []byte(`{}`)})
	require.Error(t, err)

	var noRetry *core.NoRetryError
	assert.True(t, errors.As(err, &noRetry))
	assert.ErrorIs(t, err, core.ErrUnknownJobType)
}

func TestDispatch_BadPayloadIsNotRetryable(t *testing.T) {
	r := NewRouter()
	require.NoError(t, Register(r, func(context.Context, core.SocialSync) (*core.JobResult, error) {
		t.Fatal("handler must not run")
		return nil, nil
	}, 0))

	_, err := r.Dispatch(context.Background(), &core.Job{Type: core.JobSyncSocial, Args: []byte(`{"userId":`)})
	var noRetry *core.NoRetryError
	assert.True(t, errors.As(err, &noRetry))
	assert.ErrorIs(t, err, core.ErrInvalidPayload)
}

func TestDispatch_AppliesTimeout(t *testing.T) {
	r := NewRouter()
	require.NoError(t, Register(r, func(ctx context.Context, _ core.EducationSync) (*core.JobResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, 20*time.Millisecond))

	_, err := r.Dispatch(context.Background(), &core.Job{Type: core.JobSyncEducation, Args: []byte(`{"userId":"u1"}`)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandle_RejectsNil(t *testing.T) {
	r := NewRouter()
	assert.Error(t, r.Handle(core.JobSyncDue, nil, 0))
	assert.Error(t, Register[core.DueSync](r, nil, 0))
}
