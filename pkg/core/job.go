package core

import (
	"encoding/json"
	"time"
)

// JobStatus represents the current state of a job.
type JobStatus string

const (
	StatusWaiting   JobStatus = "waiting"   // Ready to be claimed
	StatusActive    JobStatus = "active"    // Claimed and locked by a worker
	StatusCompleted JobStatus = "completed" // Finished successfully
	StatusFailed    JobStatus = "failed"    // Terminal failure
	StatusDelayed   JobStatus = "delayed"   // Waiting for RunAt (delay or retry backoff)
)

// AllStatuses lists every job status in display order.
var AllStatuses = []JobStatus{StatusWaiting, StatusActive, StatusCompleted, StatusFailed, StatusDelayed}

// NonTerminalStatuses are the states in which a job still occupies its unique key.
var NonTerminalStatuses = []JobStatus{StatusWaiting, StatusActive, StatusDelayed}

// IsTerminal reports whether no further processing will happen for the status.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job represents a unit of sync work.
type Job struct {
	ID              string     `gorm:"primaryKey;size:36"`
	Type            JobType    `gorm:"index;size:255;not null"`
	Args            []byte     `gorm:"type:bytes"`
	Queue           string     `gorm:"index;size:255;default:'sync'"`
	Priority        int        `gorm:"index;default:0"`
	Status          JobStatus  `gorm:"index;size:20;default:'waiting'"`
	Attempt         int        `gorm:"default:0"`
	MaxAttempts     int        `gorm:"default:3"`
	LastError       string     `gorm:"type:text"`
	Progress        int        `gorm:"default:0"`
	RunAt           *time.Time `gorm:"index"`
	StartedAt       *time.Time
	FinishedAt      *time.Time `gorm:"index"`
	CreatedAt       time.Time  `gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime"`
	LockedBy        string     `gorm:"size:255"`
	LockedUntil     *time.Time `gorm:"index"`
	LastHeartbeatAt *time.Time
	StallCount      int    `gorm:"default:0"`
	UniqueKey       string `gorm:"index;size:255"`

	// Serialized JobResult, set when the job reaches a terminal state.
	Result []byte `gorm:"type:bytes"`
}

// DecodeResult returns the job's stored result, or nil if none was recorded.
func (j *Job) DecodeResult() (*JobResult, error) {
	if len(j.Result) == 0 {
		return nil, nil
	}
	var r JobResult
	if err := json.Unmarshal(j.Result, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// JobResult is the outcome a sync handler reports back through the job record.
type JobResult struct {
	Success     bool       `json:"success"`
	ItemsSynced int        `json:"itemsSynced"`
	Errors      []string   `json:"errors,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	NextSyncAt  *time.Time `json:"nextSyncAt,omitempty"`
}

// QueueState tracks the pause state of a queue.
type QueueState struct {
	Queue     string `gorm:"primaryKey;size:255"`
	Paused    bool   `gorm:"default:false"`
	PausedAt  *time.Time
	PausedBy  string    `gorm:"size:255"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// QueueCounts holds per-status job counts for a queue.
type QueueCounts struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}
