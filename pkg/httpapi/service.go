// Package httpapi exposes the sync service over HTTP with gin: enqueueing
// syncs, polling jobs, submitting records, reading scores and readiness,
// queue administration and a server-sent event stream of queue events.
package httpapi

import (
	"context"

	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/queue"
	"github.com/jdziat/credibility-sync/pkg/skillgap"
)

// Service is what the HTTP surface needs from the application.
type Service interface {
	EnqueueSync(ctx context.Context, p core.SourceSync) (jobID string, coalesced bool, err error)
	EnqueueFullSync(ctx context.Context, p core.FullSync) (jobID string, coalesced bool, err error)
	SyncStatuses(ctx context.Context, userID string) ([]core.SyncStatus, error)

	GetJob(ctx context.Context, jobID string) (*core.Job, error)
	ListJobs(ctx context.Context, queueName string, status core.JobStatus, limit int) ([]*core.Job, error)
	RetryJob(ctx context.Context, jobID string) error
	RemoveJob(ctx context.Context, jobID string) error

	Credibility(ctx context.Context, userID string) (*core.CredibilityScore, error)
	RefreshCredibility(ctx context.Context, userID string) (*core.CredibilityScore, error)
	Skills(ctx context.Context, userID string) ([]core.UserSkill, error)
	Readiness(ctx context.Context, userID string) (skillgap.Report, error)

	SubmitEducation(ctx context.Context, rec *core.EducationRecord) (jobID string, err error)
	SubmitCertification(ctx context.Context, rec *core.CertificationRecord) (jobID string, err error)
	SaveCareerGoal(ctx context.Context, goal *core.CareerGoal) error

	Queues() []string
	QueueMetrics(ctx context.Context, queueName string) (queue.Metrics, error)
	PauseQueue(ctx context.Context, queueName, by string) error
	ResumeQueue(ctx context.Context, queueName string) error
	Health(ctx context.Context) (queue.Health, error)

	Events() <-chan core.Event
	Unsubscribe(ch <-chan core.Event)
}
