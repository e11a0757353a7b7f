package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/security"
)

// UpsertProfile replaces the profile row for the profile's target and the
// skill rows that target produced, in one transaction. The row keeps its ID
// and creation time across syncs. Skills the target no longer reports are
// removed; rows from other sources are left alone.
func (s *GormStorage) UpsertProfile(ctx context.Context, profile *core.SourceProfile, skills []core.UserSkill) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing core.SourceProfile
		err := tx.Select("id", "created_at").
			Where("user_id = ? AND source = ? AND source_ref = ?", profile.UserID, profile.Source, profile.SourceRef).
			Take(&existing).Error
		switch {
		case err == nil:
			profile.ID = existing.ID
			profile.CreatedAt = existing.CreatedAt
			if err := tx.Save(profile).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if profile.ID == "" {
				profile.ID = uuid.New().String()
			}
			if err := tx.Create(profile).Error; err != nil {
				return err
			}
		default:
			return err
		}

		err = tx.Where("user_id = ? AND source = ? AND source_ref = ?", profile.UserID, profile.Source, profile.SourceRef).
			Delete(&core.UserSkill{}).Error
		if err != nil {
			return err
		}
		rows := originSkills(profile, skills)
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// originSkills stamps skills with the profile's origin and keeps the most
// proficient record per skill name.
func originSkills(profile *core.SourceProfile, skills []core.UserSkill) []core.UserSkill {
	out := make([]core.UserSkill, 0, len(skills))
	seen := make(map[string]int, len(skills))
	for _, sk := range skills {
		sk.UserID = profile.UserID
		sk.Source = profile.Source
		sk.SourceRef = profile.SourceRef
		if i, ok := seen[sk.SkillName]; ok {
			verified := sk.Verified || out[i].Verified
			if sk.Proficiency > out[i].Proficiency {
				out[i] = sk
			}
			out[i].Verified = verified
			continue
		}
		seen[sk.SkillName] = len(out)
		out = append(out, sk)
	}
	return out
}

// GetProfile returns the profile for a target, or nil if none was written.
func (s *GormStorage) GetProfile(ctx context.Context, t core.SyncTarget) (*core.SourceProfile, error) {
	var p core.SourceProfile
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND source = ? AND source_ref = ?", t.UserID, t.Source, t.Ref).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProfiles returns every profile of a user.
func (s *GormStorage) ListProfiles(ctx context.Context, userID string) ([]core.SourceProfile, error) {
	var profiles []core.SourceProfile
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("source ASC, source_ref ASC").
		Find(&profiles).Error
	return profiles, err
}

// DueProfiles returns profiles whose next sync time is at or before now,
// oldest first.
func (s *GormStorage) DueProfiles(ctx context.Context, now time.Time, limit int) ([]core.SourceProfile, error) {
	var profiles []core.SourceProfile
	q := s.db.WithContext(ctx).
		Where("next_sync_at IS NOT NULL AND next_sync_at <= ?", now).
		Order("next_sync_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&profiles).Error
	return profiles, err
}

// SetSyncState records the user-visible status of a target's latest sync.
// The lease columns are left untouched.
func (s *GormStorage) SetSyncState(ctx context.Context, t core.SyncTarget, state core.SyncState, jobID, errMsg string) error {
	row := core.SyncStatus{
		UserID:    t.UserID,
		Source:    t.Source,
		SourceRef: t.Ref,
		State:     state,
		JobID:     jobID,
		LastError: security.SanitizeErrorMessage(errMsg),
		UpdatedAt: s.now(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "source"}, {Name: "source_ref"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "job_id", "last_error", "updated_at"}),
	}).Create(&row).Error
}

// AcquireSyncLease takes the per-target lease for owner unless another owner
// holds an unexpired one. Re-acquiring an owned lease extends it.
func (s *GormStorage) AcquireSyncLease(ctx context.Context, t core.SyncTarget, owner string, ttl time.Duration) (bool, error) {
	now := s.now()
	db := s.db.WithContext(ctx)

	seed := core.SyncStatus{UserID: t.UserID, Source: t.Source, SourceRef: t.Ref, State: core.SyncPending}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return false, err
	}

	res := db.Model(&core.SyncStatus{}).
		Where("user_id = ? AND source = ? AND source_ref = ?", t.UserID, t.Source, t.Ref).
		Where("(locked_by = '' OR locked_by IS NULL OR locked_by = ? OR locked_until IS NULL OR locked_until < ?)", owner, now).
		Updates(map[string]any{"locked_by": owner, "locked_until": now.Add(ttl)})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseSyncLease drops a lease held by owner.
func (s *GormStorage) ReleaseSyncLease(ctx context.Context, t core.SyncTarget, owner string) error {
	return s.db.WithContext(ctx).
		Model(&core.SyncStatus{}).
		Where("user_id = ? AND source = ? AND source_ref = ? AND locked_by = ?", t.UserID, t.Source, t.Ref, owner).
		Updates(map[string]any{"locked_by": "", "locked_until": nil}).Error
}

// ListSyncStatuses returns the per-source sync status rows of a user.
func (s *GormStorage) ListSyncStatuses(ctx context.Context, userID string) ([]core.SyncStatus, error) {
	var rows []core.SyncStatus
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("source ASC, source_ref ASC").
		Find(&rows).Error
	return rows, err
}

// SaveCredibilityScore replaces the user's score.
func (s *GormStorage) SaveCredibilityScore(ctx context.Context, score *core.CredibilityScore) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(score).Error
}

// GetCredibilityScore returns the user's score, or nil if never computed.
func (s *GormStorage) GetCredibilityScore(ctx context.Context, userID string) (*core.CredibilityScore, error) {
	var score core.CredibilityScore
	err := s.db.WithContext(ctx).Take(&score, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &score, nil
}

// CreateEducationRecord stores a validated education record.
func (s *GormStorage) CreateEducationRecord(ctx context.Context, rec *core.EducationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// ListEducationRecords returns a user's education records in start order.
func (s *GormStorage) ListEducationRecords(ctx context.Context, userID string) ([]core.EducationRecord, error) {
	var recs []core.EducationRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("start_date ASC, id ASC").
		Find(&recs).Error
	return recs, err
}

// CreateCertificationRecord stores a validated certification record.
func (s *GormStorage) CreateCertificationRecord(ctx context.Context, rec *core.CertificationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// ListCertificationRecords returns a user's certifications in issue order.
func (s *GormStorage) ListCertificationRecords(ctx context.Context, userID string) ([]core.CertificationRecord, error) {
	var recs []core.CertificationRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("issue_date ASC, id ASC").
		Find(&recs).Error
	return recs, err
}

// UpsertSkills writes canonical skill rows.
func (s *GormStorage) UpsertSkills(ctx context.Context, skills []core.Skill) error {
	if len(skills) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&skills).Error
}

// ListUserSkills returns a user's skill inventory with one entry per skill.
// The most proficient source record wins and verification from any source is
// kept.
func (s *GormStorage) ListUserSkills(ctx context.Context, userID string) ([]core.UserSkill, error) {
	var rows []core.UserSkill
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("skill_name ASC, proficiency DESC, source ASC, source_ref ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	skills := make([]core.UserSkill, 0, len(rows))
	for _, r := range rows {
		n := len(skills)
		if n == 0 || skills[n-1].SkillName != r.SkillName {
			skills = append(skills, r)
			continue
		}
		cur := &skills[n-1]
		cur.Verified = cur.Verified || r.Verified
		if cur.Category == "" {
			cur.Category = r.Category
		}
		if cur.MarketDemand == 0 {
			cur.MarketDemand = r.MarketDemand
		}
		if r.UpdatedAt.After(cur.UpdatedAt) {
			cur.UpdatedAt = r.UpdatedAt
		}
	}
	return skills, nil
}

// SaveCareerGoal creates or replaces a goal together with its ordered
// required skills. A goal with an ID must already belong to goal.UserID;
// otherwise ErrGoalNotFound is returned and nothing is written.
func (s *GormStorage) SaveCareerGoal(ctx context.Context, goal *core.CareerGoal) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		required := goal.RequiredSkills
		goal.RequiredSkills = nil
		defer func() { goal.RequiredSkills = required }()

		if goal.ID == "" {
			goal.ID = uuid.New().String()
			if err := tx.Create(goal).Error; err != nil {
				return err
			}
		} else {
			var existing core.CareerGoal
			err := tx.Select("id", "created_at").
				Where("id = ? AND user_id = ?", goal.ID, goal.UserID).
				Take(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrGoalNotFound
			}
			if err != nil {
				return err
			}
			goal.CreatedAt = existing.CreatedAt
			if err := tx.Where("goal_id = ?", goal.ID).Delete(&core.RequiredSkill{}).Error; err != nil {
				return err
			}
			if err := tx.Save(goal).Error; err != nil {
				return err
			}
		}

		for i := range required {
			required[i].ID = 0
			required[i].GoalID = goal.ID
			required[i].Position = i
		}
		if len(required) == 0 {
			return nil
		}
		return tx.Create(&required).Error
	})
}

// ListCareerGoals returns a user's goals with required skills in order.
func (s *GormStorage) ListCareerGoals(ctx context.Context, userID string) ([]core.CareerGoal, error) {
	var goals []core.CareerGoal
	err := s.db.WithContext(ctx).
		Preload("RequiredSkills", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&goals).Error
	return goals, err
}
