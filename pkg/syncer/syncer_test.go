package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/credibility-sync/pkg/analyzer/repository"
	"github.com/jdziat/credibility-sync/pkg/analyzer/social"
	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/credibility"
	"github.com/jdziat/credibility-sync/pkg/internal/testdb"
	"github.com/jdziat/credibility-sync/pkg/queue"
	"github.com/jdziat/credibility-sync/pkg/storage"
)

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type fakeRepos struct {
	calls atomic.Int32
	err   error
}

func (f *fakeRepos) FetchActivity(_ context.Context, login, _ string) (*repository.Activity, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	var commits []time.Time
	for i := 0; i < 60; i++ {
		commits = append(commits, fixedNow.AddDate(0, 0, -2*i-1))
	}
	return &repository.Activity{
		Login: login,
		Repos: []repository.Repo{
			{Name: "api", Stars: 20, Forks: 3, PushedAt: fixedNow.AddDate(0, 0, -1), Languages: map[string]int64{"Go": 9000, "SQL": 1000}, HasReadme: true, HasTests: true},
		},
		CommitDates:        commits,
		PullRequests:       10,
		MergedPullRequests: 8,
	}, nil
}

type fakeSocial struct {
	err error
}

func (f *fakeSocial) FetchAccount(_ context.Context, platform, handle, _ string) (*social.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	acct := &social.Account{Platform: platform, Handle: handle, Followers: 2000, Following: 100, EngagementAvailable: true}
	for i := 0; i < 20; i++ {
		acct.Posts = append(acct.Posts, social.Post{PublishedAt: fixedNow.AddDate(0, 0, -3*i-1), Likes: 40})
	}
	return acct, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []core.SyncNotification
}

func (p *recordingPublisher) Publish(_ context.Context, n core.SyncNotification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type fixture struct {
	s         *Syncer
	store     *storage.GormStorage
	orch      *queue.Orchestrator
	repos     *fakeRepos
	social    *fakeSocial
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testdb.Storage(t)
	policy := queue.Policy{
		Attempts:     2,
		BackoffBase:  10 * time.Millisecond,
		BackoffCap:   20 * time.Millisecond,
		Concurrency:  2,
		LockDuration: 5 * time.Second,
	}
	orch := queue.New(store,
		queue.WithPolicy(queue.SyncQueue, policy),
		queue.WithPolicy(queue.NotificationsQueue, policy),
	)
	f := &fixture{
		store:     store,
		orch:      orch,
		repos:     &fakeRepos{},
		social:    &fakeSocial{},
		publisher: &recordingPublisher{},
	}
	agg := credibility.NewAggregator(store, credibility.WithClock(clock))
	f.s = New(orch, store, agg,
		WithRepositoryProvider(f.repos),
		WithSocialProvider(f.social),
		WithPublisher(f.publisher),
		WithClock(clock),
	)
	require.NoError(t, f.s.Register())
	return f
}

func (f *fixture) status(t *testing.T, userID string, src core.Source) core.SyncStatus {
	t.Helper()
	rows, err := f.store.ListSyncStatuses(context.Background(), userID)
	require.NoError(t, err)
	for _, r := range rows {
		if r.Source == src {
			return r
		}
	}
	t.Fatalf("no sync status for %s", src)
	return core.SyncStatus{}
}

func TestSyncRepository_PersistsProfileSkillsAndScore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.s.syncRepository(ctx, core.RepositorySync{UserID: "u1", Login: "Octocat"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, fixedNow, res.UpdatedAt)
	require.NotNil(t, res.NextSyncAt)
	assert.Equal(t, fixedNow.Add(DefaultRefreshInterval), *res.NextSyncAt)

	prof, err := f.store.GetProfile(ctx, core.SyncTarget{UserID: "u1", Source: core.SourceRepository, Ref: "octocat"})
	require.NoError(t, err)
	require.NotNil(t, prof)
	assert.Greater(t, prof.Score, 0)
	assert.Contains(t, string(prof.Metrics), `"login":"Octocat"`)

	skills, err := f.store.ListUserSkills(ctx, "u1")
	require.NoError(t, err)
	var names []string
	for _, s := range skills {
		names = append(names, s.SkillName)
		assert.Equal(t, core.SourceRepository, s.Source)
	}
	assert.Contains(t, names, "Go")

	assert.Equal(t, core.SyncCompleted, f.status(t, "u1", core.SourceRepository).State)

	score, err := f.store.GetCredibilityScore(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.Equal(t, prof.Score, score.Experience)

	m, err := f.orch.GetMetrics(ctx, queue.NotificationsQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Waiting)
}

func TestSyncRepository_IdenticalDataWritesIdenticalProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := core.RepositorySync{UserID: "u1", Login: "octocat", ForceRefresh: true}
	target := p.Target()

	_, err := f.s.syncRepository(ctx, p)
	require.NoError(t, err)
	first, err := f.store.GetProfile(ctx, target)
	require.NoError(t, err)

	_, err = f.s.syncRepository(ctx, p)
	require.NoError(t, err)
	second, err := f.store.GetProfile(ctx, target)
	require.NoError(t, err)

	assert.Equal(t, string(first.Metrics), string(second.Metrics))
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, int32(2), f.repos.calls.Load())
}

func TestSyncRepository_FreshProfileIsNotRefetched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := core.RepositorySync{UserID: "u1", Login: "octocat"}

	_, err := f.s.syncRepository(ctx, p)
	require.NoError(t, err)
	res, err := f.s.syncRepository(ctx, p)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Zero(t, res.ItemsSynced)
	assert.Equal(t, int32(1), f.repos.calls.Load())
}

func TestSyncRepository_FailureKeepsPreviousProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := core.RepositorySync{UserID: "u1", Login: "octocat", ForceRefresh: true}

	_, err := f.s.syncRepository(ctx, p)
	require.NoError(t, err)
	before, err := f.store.GetProfile(ctx, p.Target())
	require.NoError(t, err)

	f.repos.err = errors.New("upstream timeout token=ghp_secret")
	_, err = f.s.syncRepository(ctx, p)
	require.Error(t, err)

	after, err := f.store.GetProfile(ctx, p.Target())
	require.NoError(t, err)
	assert.Equal(t, before.Score, after.Score)
	assert.Equal(t, before.LastFetchedAt.Unix(), after.LastFetchedAt.Unix())

	st := f.status(t, "u1", core.SourceRepository)
	assert.Equal(t, core.SyncFailed, st.State)
	assert.Contains(t, st.LastError, "upstream timeout")
	assert.NotContains(t, st.LastError, "ghp_secret")
}

func TestSyncRepository_BusyTargetIsRetriedLater(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := core.RepositorySync{UserID: "u1", Login: "octocat"}

	ok, err := f.store.AcquireSyncLease(ctx, p.Target(), "someone-else", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.s.syncRepository(ctx, p)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSourceBusy)
	var ra *core.RetryAfterError
	require.ErrorAs(t, err, &ra)
	assert.Equal(t, leaseRetryDelay, ra.Delay)
	assert.Zero(t, f.repos.calls.Load())

	// Within a full sync the busy target is skipped instead.
	res, skip, err := f.s.runTarget(ctx, p, true)
	require.NoError(t, err)
	assert.Equal(t, skipBusy, skip)
	assert.True(t, res.Success)
}

func TestSyncSocial_UnsupportedPlatformIsPermanent(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.syncSocial(context.Background(), core.SocialSync{UserID: "u1", Platform: "myspace", Handle: "tom"})
	require.Error(t, err)
	var nr *core.NoRetryError
	assert.ErrorAs(t, err, &nr)
	assert.True(t, core.IsValidationError(err))
}

func TestSyncRepository_UnlinkedCredentialIsPermanent(t *testing.T) {
	f := newFixture(t)
	f.s.creds = StaticCredentials{core.SourceSocial: "tok"}

	_, err := f.s.syncRepository(context.Background(), core.RepositorySync{UserID: "u1", Login: "octocat"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotLinked)
	var nr *core.NoRetryError
	assert.ErrorAs(t, err, &nr)
}

func TestEnqueueSync_CoalescesWhileActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := core.RepositorySync{UserID: "u1", Login: "octocat"}

	id1, coalesced, err := f.s.EnqueueSync(ctx, p)
	require.NoError(t, err)
	assert.False(t, coalesced)

	id2, coalesced, err := f.s.EnqueueSync(ctx, p)
	require.NoError(t, err)
	assert.True(t, coalesced)
	assert.Equal(t, id1, id2)

	st := f.status(t, "u1", core.SourceRepository)
	assert.Equal(t, core.SyncPending, st.State)
	assert.Equal(t, id1, st.JobID)

	m, err := f.orch.GetMetrics(ctx, queue.SyncQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Waiting)
}

func waitingPayload(t *testing.T, f *fixture, id string) core.Payload {
	t.Helper()
	job, err := f.orch.GetJob(context.Background(), id)
	require.NoError(t, err)
	p, err := core.DecodePayload(job.Type, job.Args)
	require.NoError(t, err)
	return p
}

func TestEnqueueSync_ForcedRequestUpgradesWaitingJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id1, _, err := f.s.EnqueueSync(ctx, core.RepositorySync{UserID: "u1", Login: "octocat"})
	require.NoError(t, err)

	id2, coalesced, err := f.s.EnqueueSync(ctx, core.RepositorySync{UserID: "u1", Login: "octocat", ForceRefresh: true})
	require.NoError(t, err)
	assert.True(t, coalesced)
	assert.Equal(t, id1, id2)
	assert.Equal(t, core.RepositorySync{UserID: "u1", Login: "octocat", ForceRefresh: true}, waitingPayload(t, f, id1))

	// A later unforced request does not downgrade it.
	_, _, err = f.s.EnqueueSync(ctx, core.RepositorySync{UserID: "u1", Login: "octocat"})
	require.NoError(t, err)
	assert.Equal(t, core.RepositorySync{UserID: "u1", Login: "octocat", ForceRefresh: true}, waitingPayload(t, f, id1))

	m, err := f.orch.GetMetrics(ctx, queue.SyncQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Waiting)
}

func TestEnqueueSync_ForcedRequestQueuesFollowUpBehindRunningJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	id1, _, err := f.s.EnqueueSync(ctx, core.RepositorySync{UserID: "u1", Login: "octocat"})
	require.NoError(t, err)
	running, err := f.store.Dequeue(ctx, []string{queue.SyncQueue}, "worker-1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, running)
	require.Equal(t, id1, running.ID)

	forced := core.RepositorySync{UserID: "u1", Login: "octocat", ForceRefresh: true}
	id2, coalesced, err := f.s.EnqueueSync(ctx, forced)
	require.NoError(t, err)
	assert.True(t, coalesced)
	assert.NotEqual(t, id1, id2)

	follow, err := f.orch.GetJob(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, core.StatusDelayed, follow.Status)
	assert.Equal(t, forced, waitingPayload(t, f, id2))

	id3, _, err := f.s.EnqueueSync(ctx, forced)
	require.NoError(t, err)
	assert.Equal(t, id2, id3, "forced requests share one follow-up")

	id4, _, err := f.s.EnqueueSync(ctx, core.RepositorySync{UserID: "u1", Login: "octocat"})
	require.NoError(t, err)
	assert.Equal(t, id1, id4)
}

func TestEnqueueSync_RejectsEmptyTarget(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.s.EnqueueSync(context.Background(), core.RepositorySync{UserID: "u1"})
	assert.ErrorIs(t, err, core.ErrInvalidPayload)
}

func TestSyncFull_CollectsErrorsAndKeepsSuccessfulSources(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.repos.err = errors.New("repository provider down")

	res, err := f.s.syncFull(ctx, core.FullSync{
		UserID:     "u1",
		Repository: &core.RepositorySync{Login: "octocat"},
		Social:     []core.SocialSync{{Platform: "twitter", Handle: "jane"}},
		Education:  true,
	})
	require.Error(t, err)
	var nr *core.NoRetryError
	assert.ErrorAs(t, err, &nr)

	require.NotNil(t, res)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "repository provider down")

	soc, err := f.store.GetProfile(ctx, core.SyncTarget{UserID: "u1", Source: core.SourceSocial, Ref: "twitter"})
	require.NoError(t, err)
	require.NotNil(t, soc, "successful source stays persisted")
	edu, err := f.store.GetProfile(ctx, core.SyncTarget{UserID: "u1", Source: core.SourceEducation, Ref: core.RecordsRef})
	require.NoError(t, err)
	require.NotNil(t, edu)

	assert.Equal(t, core.SyncFailed, f.status(t, "u1", core.SourceRepository).State)
	assert.Equal(t, core.SyncCompleted, f.status(t, "u1", core.SourceSocial).State)

	score, err := f.store.GetCredibilityScore(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, score)
	assert.Equal(t, soc.Score, score.Social)
}

func TestSyncFull_RedactsCredentialsInErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.repos.err = errors.New("upstream timeout GET /users/octocat?token=ghp_secret")

	res, err := f.s.syncFull(ctx, core.FullSync{
		UserID:     "u1",
		Repository: &core.RepositorySync{Login: "octocat"},
	})
	require.Error(t, err)
	require.NotNil(t, res)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "token=[REDACTED]")
	assert.NotContains(t, res.Errors[0], "ghp_secret")

	assert.NotContains(t, f.status(t, "u1", core.SourceRepository).LastError, "ghp_secret")
}

func TestSyncFull_EmptyRequestCoversLinkedSources(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.s.syncSocial(ctx, core.SocialSync{UserID: "u1", Platform: "LinkedIn", Handle: "jane"})
	require.NoError(t, err)

	targets, err := f.s.fullTargets(ctx, core.FullSync{UserID: "u1", ForceRefresh: true})
	require.NoError(t, err)
	var keys []string
	for _, tg := range targets {
		keys = append(keys, tg.Target().Key())
	}
	assert.ElementsMatch(t, []string{
		"sync:u1:education:records",
		"sync:u1:certification:records",
		"sync:u1:social:linkedin",
	}, keys)
	for _, tg := range targets {
		assert.True(t, forceRefresh(tg))
	}
}

func TestSyncDue_EnqueuesStaleProfiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)

	require.NoError(t, f.store.UpsertProfile(ctx, &core.SourceProfile{
		UserID: "u1", Source: core.SourceRepository, SourceRef: "octocat", NextSyncAt: &past,
	}, nil))
	require.NoError(t, f.store.UpsertProfile(ctx, &core.SourceProfile{
		UserID: "u2", Source: core.SourceRepository, SourceRef: "hubot", NextSyncAt: &future,
	}, nil))

	res, err := f.s.syncDue(ctx, core.DueSync{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ItemsSynced)

	// A second pass coalesces onto the pending job.
	res, err = f.s.syncDue(ctx, core.DueSync{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ItemsSynced)
}

func TestPayloadFor(t *testing.T) {
	p, err := PayloadFor(&core.SourceProfile{UserID: "u1", Source: core.SourceSocial, SourceRef: "twitter", Metrics: []byte(`{"handle":"jane"}`)})
	require.NoError(t, err)
	assert.Equal(t, core.SocialSync{UserID: "u1", Platform: "twitter", Handle: "jane"}, p)

	_, err = PayloadFor(&core.SourceProfile{UserID: "u1", Source: core.SourceSocial, SourceRef: "twitter", Metrics: []byte(`{}`)})
	assert.Error(t, err)

	_, err = PayloadFor(&core.SourceProfile{Source: "fax"})
	assert.ErrorIs(t, err, core.ErrUnknownSource)
}
