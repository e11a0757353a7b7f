package httpapi

import (
	"time"

	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/security"
)

type syncStatusView struct {
	Source    core.Source    `json:"source"`
	Ref       string         `json:"ref"`
	State     core.SyncState `json:"state"`
	JobID     string         `json:"jobId,omitempty"`
	LastError string         `json:"lastError,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type jobView struct {
	ID          string          `json:"id"`
	Type        core.JobType    `json:"type"`
	Queue       string          `json:"queue"`
	Status      core.JobStatus  `json:"status"`
	Priority    int             `json:"priority"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"maxAttempts"`
	Progress    int             `json:"progress"`
	LastError   string          `json:"lastError,omitempty"`
	Result      *core.JobResult `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	RunAt       *time.Time      `json:"runAt,omitempty"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
}

func newJobView(j *core.Job) jobView {
	v := jobView{
		ID:          j.ID,
		Type:        j.Type,
		Queue:       j.Queue,
		Status:      j.Status,
		Priority:    j.Priority,
		Attempt:     j.Attempt,
		MaxAttempts: j.MaxAttempts,
		Progress:    j.Progress,
		LastError:   j.LastError,
		CreatedAt:   j.CreatedAt,
		RunAt:       j.RunAt,
		StartedAt:   j.StartedAt,
		FinishedAt:  j.FinishedAt,
	}
	if res, err := j.DecodeResult(); err == nil {
		v.Result = res
	}
	return v
}

type eventView struct {
	Type      string     `json:"type"`
	Queue     string     `json:"queue,omitempty"`
	Job       *jobView   `json:"job,omitempty"`
	JobID     string     `json:"jobId,omitempty"`
	Progress  int        `json:"progress,omitempty"`
	Attempt   int        `json:"attempt,omitempty"`
	Error     string     `json:"error,omitempty"`
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

func jobEvent(typ string, j *core.Job, ts time.Time) *eventView {
	v := newJobView(j)
	return &eventView{Type: typ, Queue: j.Queue, Job: &v, JobID: j.ID, Timestamp: ts}
}

// newEventView converts a queue event for the event stream. Unknown events
// yield nil.
func newEventView(e core.Event) *eventView {
	switch ev := e.(type) {
	case *core.JobEnqueued:
		return jobEvent("job.enqueued", ev.Job, ev.Timestamp)
	case *core.JobStarted:
		return jobEvent("job.started", ev.Job, ev.Timestamp)
	case *core.JobProgress:
		return &eventView{Type: "job.progress", Queue: ev.Queue, JobID: ev.JobID, Progress: ev.Progress, Timestamp: ev.Timestamp}
	case *core.JobCompleted:
		return jobEvent("job.completed", ev.Job, ev.Timestamp)
	case *core.JobFailed:
		v := jobEvent("job.failed", ev.Job, ev.Timestamp)
		if ev.Error != nil {
			v.Error = security.SanitizeErrorMessage(ev.Error.Error())
		}
		return v
	case *core.JobRetrying:
		v := jobEvent("job.retrying", ev.Job, ev.Timestamp)
		v.Attempt = ev.Attempt
		next := ev.NextRunAt
		v.NextRunAt = &next
		if ev.Error != nil {
			v.Error = security.SanitizeErrorMessage(ev.Error.Error())
		}
		return v
	case *core.JobsStalled:
		return &eventView{Type: "jobs.stalled", Timestamp: ev.Timestamp}
	case *core.QueuePaused:
		return &eventView{Type: "queue.paused", Queue: ev.Queue, Timestamp: ev.Timestamp}
	case *core.QueueResumed:
		return &eventView{Type: "queue.resumed", Queue: ev.Queue, Timestamp: ev.Timestamp}
	}
	return nil
}
