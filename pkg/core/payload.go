package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JobType tags a job with the handler that processes it.
type JobType string

const (
	JobSyncRepository    JobType = "sync.repository"
	JobSyncSocial        JobType = "sync.social"
	JobSyncEducation     JobType = "sync.education"
	JobSyncCertification JobType = "sync.certification"
	JobSyncFull          JobType = "sync.full"
	JobSyncDue           JobType = "sync.due"
	JobNotifySync        JobType = "notify.sync"
)

// Source identifies an evidence source feeding a SourceProfile.
type Source string

const (
	SourceRepository    Source = "repository"
	SourceSocial        Source = "social"
	SourceEducation     Source = "education"
	SourceCertification Source = "certification"
)

// Sources lists all evidence sources.
var Sources = []Source{SourceRepository, SourceSocial, SourceEducation, SourceCertification}

// ParseSource parses a source name.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceRepository:
		return SourceRepository, nil
	case SourceSocial:
		return SourceSocial, nil
	case SourceEducation:
		return SourceEducation, nil
	case SourceCertification:
		return SourceCertification, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// JobType returns the sync job type for the source.
func (s Source) JobType() JobType {
	switch s {
	case SourceRepository:
		return JobSyncRepository
	case SourceSocial:
		return JobSyncSocial
	case SourceEducation:
		return JobSyncEducation
	case SourceCertification:
		return JobSyncCertification
	}
	return ""
}

// Payload is the sealed union of job payloads. Each variant carries its own
// job type so that encoding and dispatch cannot disagree.
type Payload interface {
	JobType() JobType
	payloadMarker()
}

// SourceSync is implemented by payloads that sync one (user, source) pair.
type SourceSync interface {
	Payload
	Target() SyncTarget
}

// SyncTarget names the profile row a single-source sync writes.
type SyncTarget struct {
	UserID string
	Source Source
	Ref    string
}

// Key returns the unique key serializing work on the target.
func (t SyncTarget) Key() string {
	return "sync:" + t.UserID + ":" + string(t.Source) + ":" + t.Ref
}

// RepositorySync syncs repository activity for a user's account.
type RepositorySync struct {
	UserID       string `json:"userId"`
	Login        string `json:"login"`
	ForceRefresh bool   `json:"forceRefresh,omitempty"`
}

func (RepositorySync) JobType() JobType { return JobSyncRepository }
func (RepositorySync) payloadMarker()   {}

// Target implements SourceSync.
func (p RepositorySync) Target() SyncTarget {
	return SyncTarget{UserID: p.UserID, Source: SourceRepository, Ref: strings.ToLower(p.Login)}
}

// SocialSync syncs one social platform account.
type SocialSync struct {
	UserID       string `json:"userId"`
	Platform     string `json:"platform"`
	Handle       string `json:"handle"`
	ForceRefresh bool   `json:"forceRefresh,omitempty"`
}

func (SocialSync) JobType() JobType { return JobSyncSocial }
func (SocialSync) payloadMarker()   {}

// Target implements SourceSync. Each platform instance has its own profile row.
func (p SocialSync) Target() SyncTarget {
	return SyncTarget{UserID: p.UserID, Source: SourceSocial, Ref: strings.ToLower(p.Platform)}
}

// EducationSync rescores a user's submitted education records.
type EducationSync struct {
	UserID       string `json:"userId"`
	ForceRefresh bool   `json:"forceRefresh,omitempty"`
}

func (EducationSync) JobType() JobType { return JobSyncEducation }
func (EducationSync) payloadMarker()   {}

// Target implements SourceSync.
func (p EducationSync) Target() SyncTarget {
	return SyncTarget{UserID: p.UserID, Source: SourceEducation, Ref: RecordsRef}
}

// CertificationSync rescores a user's submitted certifications.
type CertificationSync struct {
	UserID       string `json:"userId"`
	ForceRefresh bool   `json:"forceRefresh,omitempty"`
}

func (CertificationSync) JobType() JobType { return JobSyncCertification }
func (CertificationSync) payloadMarker()   {}

// Target implements SourceSync.
func (p CertificationSync) Target() SyncTarget {
	return SyncTarget{UserID: p.UserID, Source: SourceCertification, Ref: RecordsRef}
}

// RecordsRef is the profile ref used by sources backed by submitted records.
const RecordsRef = "records"

// FullSync syncs every linked source for one user.
type FullSync struct {
	UserID        string          `json:"userId"`
	Repository    *RepositorySync `json:"repository,omitempty"`
	Social        []SocialSync    `json:"social,omitempty"`
	Education     bool            `json:"education,omitempty"`
	Certification bool            `json:"certification,omitempty"`
	ForceRefresh  bool            `json:"forceRefresh,omitempty"`
}

func (FullSync) JobType() JobType { return JobSyncFull }
func (FullSync) payloadMarker()   {}

// DueSync enqueues syncs for profiles whose next sync time has passed.
type DueSync struct {
	Limit int `json:"limit,omitempty"`
}

func (DueSync) JobType() JobType { return JobSyncDue }
func (DueSync) payloadMarker()   {}

// SyncNotification announces a finished sync on the notifications queue.
type SyncNotification struct {
	UserID  string    `json:"userId"`
	Source  Source    `json:"source"`
	Ref     string    `json:"ref,omitempty"`
	JobID   string    `json:"jobId"`
	Result  JobResult `json:"result"`
	Overall *int      `json:"overall,omitempty"`
}

func (SyncNotification) JobType() JobType { return JobNotifySync }
func (SyncNotification) payloadMarker()   {}

// EncodePayload serializes a payload for storage in Job.Args.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}
	return json.Marshal(p)
}

// DecodePayload restores the payload variant for a job type.
func DecodePayload(t JobType, args []byte) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch t {
	case JobSyncRepository:
		p, err = decodeAs[RepositorySync](args)
	case JobSyncSocial:
		p, err = decodeAs[SocialSync](args)
	case JobSyncEducation:
		p, err = decodeAs[EducationSync](args)
	case JobSyncCertification:
		p, err = decodeAs[CertificationSync](args)
	case JobSyncFull:
		p, err = decodeAs[FullSync](args)
	case JobSyncDue:
		p, err = decodeAs[DueSync](args)
	case JobNotifySync:
		p, err = decodeAs[SyncNotification](args)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, t, err)
	}
	return p, nil
}

func decodeAs[T Payload](args []byte) (Payload, error) {
	var v T
	if len(args) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return nil, err
	}
	return v, nil
}
