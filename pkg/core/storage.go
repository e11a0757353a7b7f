package core

import (
	"context"
	"time"
)

// Starter is the interface for starting workers.
type Starter interface {
	Start(ctx context.Context) error
}

// Storage defines the persistence layer for jobs. It is the single source of
// truth for job state and must claim jobs atomically.
type Storage interface {
	// Migrate creates the necessary database tables.
	Migrate(ctx context.Context) error

	// Job lifecycle
	Enqueue(ctx context.Context, job *Job) error
	EnqueueUnique(ctx context.Context, job *Job, uniqueKey string) error
	Dequeue(ctx context.Context, queues []string, workerID string, lockFor time.Duration) (*Job, error)
	Complete(ctx context.Context, jobID, workerID string, result []byte) error
	Fail(ctx context.Context, jobID, workerID, errMsg string, retryAt *time.Time, result []byte) error

	// Locking and progress
	Heartbeat(ctx context.Context, jobID, workerID string, lockFor time.Duration) error
	UpdateProgress(ctx context.Context, jobID, workerID string, progress int) error
	ReleaseStalled(ctx context.Context, maxStalls map[string]int) (requeued int64, failed int64, err error)

	// Queries
	GetJob(ctx context.Context, jobID string) (*Job, error)
	GetJobsByStatus(ctx context.Context, queue string, status JobStatus, limit int) ([]*Job, error)
	CountByStatus(ctx context.Context, queue string) (QueueCounts, error)

	// Administration
	RetryJob(ctx context.Context, jobID string) (*Job, error)
	RemoveJob(ctx context.Context, jobID string) error
	AmendJob(ctx context.Context, jobID string, jobType JobType, args []byte) (bool, error)
	PurgeFinished(ctx context.Context, queue string, status JobStatus, olderThan time.Time, keep int) (int64, error)

	// Queue pause operations
	PauseQueue(ctx context.Context, queue, by string) error
	UnpauseQueue(ctx context.Context, queue string) error
	GetPausedQueues(ctx context.Context) ([]string, error)
	IsQueuePaused(ctx context.Context, queue string) (bool, error)
}

// ProfileStore persists sync output and the evidence the analyzers consume.
// Each source is written independently; there is no cross-source transaction.
type ProfileStore interface {
	// Profiles
	UpsertProfile(ctx context.Context, profile *SourceProfile, skills []UserSkill) error
	GetProfile(ctx context.Context, t SyncTarget) (*SourceProfile, error)
	ListProfiles(ctx context.Context, userID string) ([]SourceProfile, error)
	DueProfiles(ctx context.Context, now time.Time, limit int) ([]SourceProfile, error)

	// Sync status and per-target lease
	SetSyncState(ctx context.Context, t SyncTarget, state SyncState, jobID, errMsg string) error
	AcquireSyncLease(ctx context.Context, t SyncTarget, owner string, ttl time.Duration) (bool, error)
	ReleaseSyncLease(ctx context.Context, t SyncTarget, owner string) error
	ListSyncStatuses(ctx context.Context, userID string) ([]SyncStatus, error)

	// Credibility
	SaveCredibilityScore(ctx context.Context, score *CredibilityScore) error
	GetCredibilityScore(ctx context.Context, userID string) (*CredibilityScore, error)

	// Submitted evidence
	CreateEducationRecord(ctx context.Context, rec *EducationRecord) error
	ListEducationRecords(ctx context.Context, userID string) ([]EducationRecord, error)
	CreateCertificationRecord(ctx context.Context, rec *CertificationRecord) error
	ListCertificationRecords(ctx context.Context, userID string) ([]CertificationRecord, error)

	// Skills and goals
	UpsertSkills(ctx context.Context, skills []Skill) error
	ListUserSkills(ctx context.Context, userID string) ([]UserSkill, error)
	SaveCareerGoal(ctx context.Context, goal *CareerGoal) error
	ListCareerGoals(ctx context.Context, userID string) ([]CareerGoal, error)
}
