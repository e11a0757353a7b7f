// Package storage provides the GORM-backed job store and profile store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/security"
)

// DefaultQueue is used when a job is enqueued without a queue name.
const DefaultQueue = "sync"

// GormStorage implements core.Storage and core.ProfileStore using GORM.
type GormStorage struct {
	db  *gorm.DB
	now func() time.Time
}

var (
	_ core.Storage      = (*GormStorage)(nil)
	_ core.ProfileStore = (*GormStorage)(nil)
)

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db, now: time.Now}
}

// DB returns the underlying connection.
func (s *GormStorage) DB() *gorm.DB {
	return s.db
}

// Migrate creates the necessary tables.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&core.Job{},
		&uniqueKeyClaim{},
		&core.QueueState{},
		&core.SourceProfile{},
		&core.SyncStatus{},
		&core.CredibilityScore{},
		&core.EducationRecord{},
		&core.CertificationRecord{},
		&core.Skill{},
		&core.UserSkill{},
		&core.CareerGoal{},
		&core.RequiredSkill{},
	)
}

func (s *GormStorage) prepare(job *core.Job) {
	now := s.now()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Queue == "" {
		job.Queue = DefaultQueue
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 3
	}
	if job.Status == "" {
		job.Status = core.StatusWaiting
		if job.RunAt != nil && job.RunAt.After(now) {
			job.Status = core.StatusDelayed
		}
	}
}

// Enqueue adds a job to the queue.
func (s *GormStorage) Enqueue(ctx context.Context, job *core.Job) error {
	s.prepare(job)
	return s.db.WithContext(ctx).Create(job).Error
}

// EnqueueUnique adds a job only if no non-terminal job holds the same unique
// key. A conflict returns *core.DuplicateJobError naming the holder.
func (s *GormStorage) EnqueueUnique(ctx context.Context, job *core.Job, uniqueKey string) error {
	s.prepare(job)
	job.UniqueKey = uniqueKey

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := claimUniqueKey(tx, uniqueKey, job.ID); err != nil {
			return err
		}
		return tx.Create(job).Error
	})
}

// uniqueKeyClaim records which job currently owns a unique key. Its primary
// key makes concurrent enqueues of the same key contend on one row.
type uniqueKeyClaim struct {
	UniqueKey string `gorm:"primaryKey;size:255"`
	JobID     string `gorm:"size:36;not null"`
}

func (uniqueKeyClaim) TableName() string { return "job_unique_keys" }

// claimUniqueKey points key at jobID. It fails with *core.DuplicateJobError
// while another non-terminal job holds the key.
func claimUniqueKey(tx *gorm.DB, key, jobID string) error {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&uniqueKeyClaim{UniqueKey: key, JobID: jobID})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var claim uniqueKeyClaim
	if err := tx.Take(&claim, "unique_key = ?", key).Error; err != nil {
		return err
	}
	if claim.JobID == jobID {
		return nil
	}
	var holder core.Job
	err := tx.Select("id").
		Where("id = ? AND status IN ?", claim.JobID, core.NonTerminalStatuses).
		Take(&holder).Error
	if err == nil {
		return &core.DuplicateJobError{ExistingID: holder.ID, UniqueKey: key}
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	// The holder finished or was removed; take the key over unless another
	// claimer got there first.
	res = tx.Model(&uniqueKeyClaim{}).
		Where("unique_key = ? AND job_id = ?", key, claim.JobID).
		Update("job_id", jobID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if err := tx.Take(&claim, "unique_key = ?", key).Error; err != nil {
		return err
	}
	return &core.DuplicateJobError{ExistingID: claim.JobID, UniqueKey: key}
}

// Dequeue claims and locks the next runnable job from the given queues.
// Jobs in paused queues, jobs scheduled in the future and jobs that have used
// all their attempts are never claimed. Returns nil when nothing is runnable.
func (s *GormStorage) Dequeue(ctx context.Context, queues []string, workerID string, lockFor time.Duration) (*core.Job, error) {
	var claimed *core.Job
	now := s.now()
	lockUntil := now.Add(lockFor)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		paused := tx.Model(&core.QueueState{}).Select("queue").Where("paused = ?", true)

		var job core.Job
		result := tx.
			Where("queue IN ?", queues).
			Where("queue NOT IN (?)", paused).
			Where("status IN ?", []core.JobStatus{core.StatusWaiting, core.StatusDelayed}).
			Where("(run_at IS NULL OR run_at <= ?)", now).
			Where("attempt < max_attempts").
			Order("priority DESC, created_at ASC").
			First(&job)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return nil
			}
			return result.Error
		}

		// Conditional update so a concurrent claimer on another connection loses.
		update := tx.Model(&core.Job{}).
			Where("id = ? AND status IN ?", job.ID, []core.JobStatus{core.StatusWaiting, core.StatusDelayed}).
			Updates(map[string]any{
				"status":            core.StatusActive,
				"locked_by":         workerID,
				"locked_until":      lockUntil,
				"last_heartbeat_at": now,
				"started_at":        now,
				"attempt":           gorm.Expr("attempt + 1"),
				"progress":          0,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return nil
		}

		job.Status = core.StatusActive
		job.LockedBy = workerID
		job.LockedUntil = &lockUntil
		job.LastHeartbeatAt = &now
		job.StartedAt = &now
		job.Attempt++
		job.Progress = 0
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Complete marks a job as successfully completed and stores its result.
// Validates that the worker owns the job before completing.
func (s *GormStorage) Complete(ctx context.Context, jobID, workerID string, result []byte) error {
	now := s.now()
	res := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ? AND status = ?", jobID, workerID, core.StatusActive).
		Updates(map[string]any{
			"status":       core.StatusCompleted,
			"finished_at":  now,
			"progress":     100,
			"result":       result,
			"locked_by":    "",
			"locked_until": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// Fail records a failed attempt. With a retryAt the job becomes delayed until
// then; without one it is terminal. Error messages are sanitized before storage.
func (s *GormStorage) Fail(ctx context.Context, jobID, workerID, errMsg string, retryAt *time.Time, result []byte) error {
	updates := map[string]any{
		"last_error":   security.SanitizeErrorMessage(errMsg),
		"locked_by":    "",
		"locked_until": nil,
	}
	if result != nil {
		updates["result"] = result
	}
	if retryAt != nil {
		updates["status"] = core.StatusDelayed
		updates["run_at"] = *retryAt
	} else {
		updates["status"] = core.StatusFailed
		updates["finished_at"] = s.now()
	}

	res := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ? AND status = ?", jobID, workerID, core.StatusActive).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// Heartbeat extends the lock on an active job.
func (s *GormStorage) Heartbeat(ctx context.Context, jobID, workerID string, lockFor time.Duration) error {
	now := s.now()
	res := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ? AND status = ?", jobID, workerID, core.StatusActive).
		Updates(map[string]any{
			"locked_until":      now.Add(lockFor),
			"last_heartbeat_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// UpdateProgress stores the handler-reported progress of an active job.
func (s *GormStorage) UpdateProgress(ctx context.Context, jobID, workerID string, progress int) error {
	res := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Where("id = ? AND locked_by = ? AND status = ?", jobID, workerID, core.StatusActive).
		Update("progress", security.ClampScore(progress))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return core.ErrJobNotOwned
	}
	return nil
}

// ReleaseStalled reclaims active jobs whose lock expired without a heartbeat.
// A job is requeued while its stall count is below the queue's limit (default
// 1) and it has attempts left; otherwise it is failed.
func (s *GormStorage) ReleaseStalled(ctx context.Context, maxStalls map[string]int) (int64, int64, error) {
	now := s.now()

	var stalled []core.Job
	err := s.db.WithContext(ctx).
		Where("status = ?", core.StatusActive).
		Where("locked_until < ?", now).
		Find(&stalled).Error
	if err != nil {
		return 0, 0, err
	}

	var requeued, failed int64
	for _, job := range stalled {
		limit, ok := maxStalls[job.Queue]
		if !ok {
			limit = 1
		}

		var updates map[string]any
		if job.StallCount >= limit || job.Attempt >= job.MaxAttempts {
			updates = map[string]any{
				"status":       core.StatusFailed,
				"last_error":   fmt.Sprintf("job stalled %d time(s) without heartbeat", job.StallCount+1),
				"finished_at":  now,
				"stall_count":  job.StallCount + 1,
				"locked_by":    "",
				"locked_until": nil,
			}
		} else {
			updates = map[string]any{
				"status":       core.StatusWaiting,
				"stall_count":  job.StallCount + 1,
				"locked_by":    "",
				"locked_until": nil,
			}
		}

		res := s.db.WithContext(ctx).
			Model(&core.Job{}).
			Where("id = ? AND status = ? AND locked_until < ?", job.ID, core.StatusActive, now).
			Updates(updates)
		if res.Error != nil {
			return requeued, failed, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		if updates["status"] == core.StatusFailed {
			failed++
		} else {
			requeued++
		}
	}
	return requeued, failed, nil
}

// GetJob retrieves a job by ID.
func (s *GormStorage) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJobsByStatus retrieves jobs by status, newest first. An empty queue
// matches every queue.
func (s *GormStorage) GetJobsByStatus(ctx context.Context, queue string, status core.JobStatus, limit int) ([]*core.Job, error) {
	var jobList []*core.Job
	q := s.db.WithContext(ctx).Where("status = ?", status)
	if queue != "" {
		q = q.Where("queue = ?", queue)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Order("created_at DESC").Find(&jobList).Error
	return jobList, err
}

// CountByStatus returns per-status job counts for a queue.
func (s *GormStorage) CountByStatus(ctx context.Context, queue string) (core.QueueCounts, error) {
	var rows []struct {
		Status core.JobStatus
		Count  int64
	}
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Select("status, COUNT(*) AS count").
		Where("queue = ?", queue).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return core.QueueCounts{}, err
	}

	var counts core.QueueCounts
	for _, r := range rows {
		switch r.Status {
		case core.StatusWaiting:
			counts.Waiting = r.Count
		case core.StatusActive:
			counts.Active = r.Count
		case core.StatusCompleted:
			counts.Completed = r.Count
		case core.StatusFailed:
			counts.Failed = r.Count
		case core.StatusDelayed:
			counts.Delayed = r.Count
		}
	}
	return counts, nil
}

// RetryJob resets a failed job to waiting with a fresh attempt budget. It is
// refused while another non-terminal job holds the same unique key.
func (s *GormStorage) RetryJob(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, "id = ?", jobID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrJobNotFound
			}
			return err
		}
		if job.Status != core.StatusFailed {
			return core.ErrNotRetryable
		}
		if job.UniqueKey != "" {
			if err := claimUniqueKey(tx, job.UniqueKey, job.ID); err != nil {
				return err
			}
		}

		job.Status = core.StatusWaiting
		job.Attempt = 0
		job.StallCount = 0
		job.Progress = 0
		job.LastError = ""
		job.RunAt = nil
		job.StartedAt = nil
		job.FinishedAt = nil
		job.Result = nil
		return tx.Model(&core.Job{}).Where("id = ?", job.ID).Updates(map[string]any{
			"status":      job.Status,
			"attempt":     0,
			"stall_count": 0,
			"progress":    0,
			"last_error":  "",
			"run_at":      nil,
			"started_at":  nil,
			"finished_at": nil,
			"result":      nil,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// RemoveJob deletes a job that has not started. Active jobs run to completion.
func (s *GormStorage) RemoveJob(ctx context.Context, jobID string) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND status IN ?", jobID, []core.JobStatus{core.StatusWaiting, core.StatusDelayed}).
		Delete(&core.Job{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return err
	}
	return core.ErrNotRemovable
}

// AmendJob replaces the arguments of a job that no worker has claimed yet.
// It reports false when the job has already started or finished.
func (s *GormStorage) AmendJob(ctx context.Context, jobID string, jobType core.JobType, args []byte) (bool, error) {
	res := s.db.WithContext(ctx).Model(&core.Job{}).
		Where("id = ? AND type = ? AND status IN ?", jobID, jobType, []core.JobStatus{core.StatusWaiting, core.StatusDelayed}).
		Update("args", args)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return false, err
	}
	return false, nil
}

// PurgeFinished deletes terminal jobs of one status that finished before
// olderThan or fall outside the newest keep jobs. keep <= 0 disables the
// count bound.
func (s *GormStorage) PurgeFinished(ctx context.Context, queue string, status core.JobStatus, olderThan time.Time, keep int) (int64, error) {
	if !status.IsTerminal() {
		return 0, fmt.Errorf("purge: status %q is not terminal", status)
	}

	db := s.db.WithContext(ctx)
	scope := db.Where("queue = ? AND status = ?", queue, status)

	if keep <= 0 {
		res := scope.Where("finished_at < ?", olderThan).Delete(&core.Job{})
		return res.RowsAffected, res.Error
	}

	var keepIDs []string
	err := db.Model(&core.Job{}).
		Where("queue = ? AND status = ?", queue, status).
		Order("finished_at DESC").
		Limit(keep).
		Pluck("id", &keepIDs).Error
	if err != nil {
		return 0, err
	}

	q := scope.Where("finished_at < ?", olderThan)
	if len(keepIDs) > 0 {
		q = db.Where("queue = ? AND status = ?", queue, status).
			Where("(finished_at < ? OR id NOT IN ?)", olderThan, keepIDs)
	}
	res := q.Delete(&core.Job{})
	return res.RowsAffected, res.Error
}

// PauseQueue stops workers from claiming jobs in the queue. Active jobs finish.
func (s *GormStorage) PauseQueue(ctx context.Context, queue, by string) error {
	now := s.now()
	state := core.QueueState{Queue: queue, Paused: true, PausedAt: &now, PausedBy: by}
	return s.db.WithContext(ctx).
		Where(core.QueueState{Queue: queue}).
		Assign(map[string]any{"paused": true, "paused_at": now, "paused_by": by}).
		FirstOrCreate(&state).Error
}

// UnpauseQueue resumes a paused queue.
func (s *GormStorage) UnpauseQueue(ctx context.Context, queue string) error {
	return s.db.WithContext(ctx).
		Model(&core.QueueState{}).
		Where("queue = ?", queue).
		Updates(map[string]any{"paused": false, "paused_at": nil, "paused_by": ""}).Error
}

// GetPausedQueues lists every paused queue.
func (s *GormStorage) GetPausedQueues(ctx context.Context) ([]string, error) {
	var queues []string
	err := s.db.WithContext(ctx).
		Model(&core.QueueState{}).
		Where("paused = ?", true).
		Order("queue ASC").
		Pluck("queue", &queues).Error
	return queues, err
}

// IsQueuePaused reports whether the queue is paused.
func (s *GormStorage) IsQueuePaused(ctx context.Context, queue string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&core.QueueState{}).
		Where("queue = ? AND paused = ?", queue, true).
		Count(&count).Error
	return count > 0, err
}
