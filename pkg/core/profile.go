package core

import (
	"time"

	"gorm.io/datatypes"
)

// SourceProfile is the normalized result of one source sync for a user.
// A row is only ever replaced as a whole by a successful sync.
type SourceProfile struct {
	ID            string         `gorm:"primaryKey;size:36"`
	UserID        string         `gorm:"uniqueIndex:idx_profile_target;size:64;not null"`
	Source        Source         `gorm:"uniqueIndex:idx_profile_target;size:32;not null"`
	SourceRef     string         `gorm:"uniqueIndex:idx_profile_target;size:255;not null"`
	Metrics       datatypes.JSON `gorm:"type:json"`
	Score         int            `gorm:"default:0"`
	Verified      bool           `gorm:"default:false"`
	LastFetchedAt time.Time
	NextSyncAt    *time.Time `gorm:"index"`
	CreatedAt     time.Time  `gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime"`
}

// SyncState is the user-visible status of the latest sync of a source.
type SyncState string

const (
	SyncPending    SyncState = "pending"
	SyncProcessing SyncState = "processing"
	SyncCompleted  SyncState = "completed"
	SyncFailed     SyncState = "failed"
)

// SyncStatus is read by the presentation layer to show per-source status and
// offer selective retry. Its lease columns serialize work on one target.
type SyncStatus struct {
	UserID      string    `gorm:"primaryKey;size:64"`
	Source      Source    `gorm:"primaryKey;size:32"`
	SourceRef   string    `gorm:"primaryKey;size:255"`
	State       SyncState `gorm:"size:20;index"`
	JobID       string    `gorm:"size:36"`
	LastError   string    `gorm:"type:text"`
	LockedBy    string    `gorm:"size:255"`
	LockedUntil *time.Time
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// VerificationLevel is the tier derived from the overall credibility score.
type VerificationLevel string

const (
	LevelBasic    VerificationLevel = "basic"
	LevelVerified VerificationLevel = "verified"
	LevelPremium  VerificationLevel = "premium"
	LevelElite    VerificationLevel = "elite"
)

// CredibilityScore is the aggregated trust signal for a user.
type CredibilityScore struct {
	UserID        string            `gorm:"primaryKey;size:64" json:"userId"`
	Education     int               `json:"education"`
	Experience    int               `json:"experience"`
	Technical     int               `json:"technical"`
	Social        int               `json:"social"`
	Certification int               `json:"certification"`
	Overall       int               `json:"overall"`
	Level         VerificationLevel `gorm:"size:20" json:"level"`
	CalculatedAt  time.Time         `json:"calculatedAt"`
}

// DegreeLevel is the ordinal education level of a record.
type DegreeLevel string

const (
	DegreeHighSchool   DegreeLevel = "high_school"
	DegreeDiploma      DegreeLevel = "diploma"
	DegreeAssociate    DegreeLevel = "associate"
	DegreeBachelor     DegreeLevel = "bachelor"
	DegreeMaster       DegreeLevel = "master"
	DegreePhD          DegreeLevel = "phd"
	DegreeProfessional DegreeLevel = "professional"
)

// EducationRecord is a user-submitted education entry.
type EducationRecord struct {
	ID          string      `gorm:"primaryKey;size:36" json:"id"`
	UserID      string      `gorm:"index;size:64;not null" json:"userId" validate:"required"`
	Institution string      `gorm:"size:255" json:"institution" validate:"required,max=255"`
	Degree      DegreeLevel `gorm:"size:32" json:"degree" validate:"required,oneof=high_school diploma associate bachelor master phd professional"`
	Field       string      `gorm:"size:255" json:"field,omitempty" validate:"max=255"`
	StartDate   time.Time   `json:"startDate" validate:"required"`
	EndDate     *time.Time  `json:"endDate,omitempty"`
	GPA         *float64    `json:"gpa,omitempty" validate:"omitempty,gte=0,lte=100"`
	GPAScale    *float64    `json:"gpaScale,omitempty" validate:"omitempty,gt=0,lte=100"`
	DocumentURL string      `gorm:"size:1024" json:"documentUrl,omitempty" validate:"omitempty,url"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"createdAt"`
}

// CertificationRecord is a user-submitted certificate.
type CertificationRecord struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	UserID        string     `gorm:"index;size:64;not null" json:"userId" validate:"required"`
	Name          string     `gorm:"size:255" json:"name" validate:"required,max=255"`
	Issuer        string     `gorm:"size:255" json:"issuer" validate:"required,max=255"`
	Description   string     `gorm:"type:text" json:"description,omitempty"`
	IssueDate     time.Time  `json:"issueDate" validate:"required"`
	ExpiryDate    *time.Time `json:"expiryDate,omitempty"`
	CredentialID  string     `gorm:"size:255" json:"credentialId,omitempty"`
	CredentialURL string     `gorm:"size:1024" json:"credentialUrl,omitempty" validate:"omitempty,url"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

// SkillLevel is the ordinal proficiency level of a skill.
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
	SkillExpert       SkillLevel = "expert"
)

// Skill is the canonical identity of a skill.
type Skill struct {
	Name         string `gorm:"primaryKey;size:128" json:"name"`
	Category     string `gorm:"size:64" json:"category"`
	MarketDemand int    `json:"marketDemand"`
}

// UserSkill is a user's record for one skill. One row is stored per skill
// and source account, so a sync replaces exactly the rows it produced.
type UserSkill struct {
	UserID       string     `gorm:"primaryKey;size:64" json:"userId"`
	SkillName    string     `gorm:"primaryKey;size:128" json:"skill"`
	Source       Source     `gorm:"primaryKey;size:32" json:"source,omitempty"`
	SourceRef    string     `gorm:"primaryKey;size:255" json:"sourceRef,omitempty"`
	Category     string     `gorm:"size:64" json:"category,omitempty"`
	Proficiency  int        `json:"proficiency"`
	Level        SkillLevel `gorm:"size:20" json:"level"`
	Verified     bool       `json:"verified"`
	MarketDemand int        `json:"marketDemand"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Importance is the tier of a required skill within a career goal.
type Importance string

const (
	ImportanceNiceToHave Importance = "nice-to-have"
	ImportanceImportant  Importance = "important"
	ImportanceCritical   Importance = "critical"
	ImportanceMustHave   Importance = "must-have"
)

// CareerGoal names a target role and its required skills.
type CareerGoal struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	UserID         string          `gorm:"index;size:64;not null" json:"userId"`
	TargetRole     string          `gorm:"size:255" json:"targetRole"`
	RequiredSkills []RequiredSkill `gorm:"foreignKey:GoalID;constraint:OnDelete:CASCADE" json:"requiredSkills"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"createdAt"`
}

// RequiredSkill is one entry of a goal's ordered requirement list.
type RequiredSkill struct {
	ID          uint       `gorm:"primaryKey" json:"-"`
	GoalID      string     `gorm:"index;size:36" json:"-"`
	Position    int        `json:"position"`
	SkillName   string     `gorm:"size:128" json:"skill"`
	Importance  Importance `gorm:"size:20" json:"importance"`
	TargetLevel SkillLevel `gorm:"size:20" json:"targetLevel"`
}
