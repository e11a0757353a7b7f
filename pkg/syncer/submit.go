package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jdziat/credibility-sync/pkg/analyzer/certification"
	"github.com/jdziat/credibility-sync/pkg/analyzer/education"
	"github.com/jdziat/credibility-sync/pkg/core"
)

// SubmitEducation validates and stores an education record, then enqueues
// a rescoring of the user's education profile. An invalid record is
// returned as *core.ValidationError and nothing is stored or enqueued.
func (s *Syncer) SubmitEducation(ctx context.Context, rec *core.EducationRecord) (jobID string, err error) {
	if err := s.check("education", rec); err != nil {
		return "", err
	}
	if err := education.Validate(rec); err != nil {
		return "", err
	}
	if err := s.store.CreateEducationRecord(ctx, rec); err != nil {
		return "", fmt.Errorf("store education record: %w", err)
	}
	jobID, _, err = s.EnqueueSync(ctx, core.EducationSync{UserID: rec.UserID, ForceRefresh: true})
	return jobID, err
}

// SubmitCertification validates and stores a certification, then enqueues
// a rescoring of the user's certification profile.
func (s *Syncer) SubmitCertification(ctx context.Context, rec *core.CertificationRecord) (jobID string, err error) {
	if err := s.check("certification", rec); err != nil {
		return "", err
	}
	if err := certification.Validate(rec); err != nil {
		return "", err
	}
	if err := s.store.CreateCertificationRecord(ctx, rec); err != nil {
		return "", fmt.Errorf("store certification record: %w", err)
	}
	jobID, _, err = s.EnqueueSync(ctx, core.CertificationSync{UserID: rec.UserID, ForceRefresh: true})
	return jobID, err
}

// SaveCareerGoal validates and stores a career goal.
func (s *Syncer) SaveCareerGoal(ctx context.Context, goal *core.CareerGoal) error {
	ve := &core.ValidationError{Record: "career goal"}
	if strings.TrimSpace(goal.UserID) == "" {
		ve.Add("userId", "is required")
	}
	if strings.TrimSpace(goal.TargetRole) == "" {
		ve.Add("targetRole", "is required")
	}
	for i, r := range goal.RequiredSkills {
		field := fmt.Sprintf("requiredSkills[%d]", i)
		if strings.TrimSpace(r.SkillName) == "" {
			ve.Add(field+".skill", "is required")
		}
		switch r.Importance {
		case core.ImportanceNiceToHave, core.ImportanceImportant, core.ImportanceCritical, core.ImportanceMustHave:
		default:
			ve.Add(field+".importance", fmt.Sprintf("unknown importance %q", r.Importance))
		}
		switch r.TargetLevel {
		case core.SkillBeginner, core.SkillIntermediate, core.SkillAdvanced, core.SkillExpert:
		default:
			ve.Add(field+".targetLevel", fmt.Sprintf("unknown level %q", r.TargetLevel))
		}
	}
	if err := ve.OrNil(); err != nil {
		return err
	}
	return s.store.SaveCareerGoal(ctx, goal)
}

// check runs the struct tag rules and converts their failures into a
// validation error keyed by JSON field name.
func (s *Syncer) check(record string, v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return core.NoRetry(err)
	}
	ve := &core.ValidationError{Record: record}
	for _, fe := range verrs {
		ve.Add(jsonName(fe.Field()), ruleMessage(fe))
	}
	return ve
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	if strings.HasSuffix(field, "URL") {
		return strings.ToLower(field[:1]) + field[1:len(field)-3] + "Url"
	}
	if strings.HasSuffix(field, "ID") {
		return strings.ToLower(field[:1]) + field[1:len(field)-2] + "Id"
	}
	if field == "GPA" || field == "GPAScale" {
		return "gpa" + field[3:]
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "url":
		return "must be a URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gte":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	}
	return "failed " + fe.Tag()
}
