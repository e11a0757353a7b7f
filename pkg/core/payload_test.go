package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayload_RoundTripByJobType(t *testing.T) {
	payloads := []Payload{
		RepositorySync{UserID: "u1", Login: "octocat", ForceRefresh: true},
		SocialSync{UserID: "u1", Platform: "youtube", Handle: "@octo"},
		EducationSync{UserID: "u1"},
		CertificationSync{UserID: "u1"},
		FullSync{UserID: "u1", Repository: &RepositorySync{UserID: "u1", Login: "octocat"}, Education: true},
		DueSync{Limit: 50},
		SyncNotification{UserID: "u1", Source: SourceSocial, JobID: "j1", Result: JobResult{Success: true}},
	}

	for _, p := range payloads {
		args, err := EncodePayload(p)
		require.NoError(t, err)

		decoded, err := DecodePayload(p.JobType(), args)
		require.NoError(t, err, "decode %s", p.JobType())
		assert.Equal(t, p, decoded)
	}
}

func TestDecodePayload_UnknownType(t *testing.T) {
	_, err := DecodePayload("sync.mystery", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownJobType)
}

func TestDecodePayload_Malformed(t *testing.T) {
	_, err := DecodePayload(JobSyncRepository, []byte(`{"userId":`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestSyncTarget_KeysDistinguishSources(t *testing.T) {
	repo := RepositorySync{UserID: "u1", Login: "OctoCat"}.Target()
	social := SocialSync{UserID: "u1", Platform: "Twitter"}.Target()
	edu := EducationSync{UserID: "u1"}.Target()

	assert.Equal(t, "sync:u1:repository:octocat", repo.Key())
	assert.Equal(t, "sync:u1:social:twitter", social.Key())
	assert.Equal(t, "sync:u1:education:records", edu.Key())
}

func TestParseSource(t *testing.T) {
	s, err := ParseSource(" Social ")
	require.NoError(t, err)
	assert.Equal(t, SourceSocial, s)
	assert.Equal(t, JobSyncSocial, s.JobType())

	_, err = ParseSource("fax")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusWaiting.IsTerminal())
	assert.False(t, StatusActive.IsTerminal())
	assert.False(t, StatusDelayed.IsTerminal())
}
