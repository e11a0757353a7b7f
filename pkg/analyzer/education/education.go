// Package education scores user-submitted education records against the
// institution trust table.
package education

import (
	"fmt"
	"strings"

	"github.com/jdziat/credibility-sync/pkg/analyzer"
	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/reference"
)

// Point budget, summing to 100.
const (
	degreeBudget       = 40.0
	gpaBudget          = 25.0
	trustBudget        = 20.0
	verificationBudget = 15.0

	// Proficiency credited to a skill named by a field of study.
	fieldSkillProficiency = 45
)

var degreePoints = map[core.DegreeLevel]float64{
	core.DegreeHighSchool:   10,
	core.DegreeDiploma:      15,
	core.DegreeAssociate:    20,
	core.DegreeBachelor:     30,
	core.DegreeMaster:       35,
	core.DegreePhD:          40,
	core.DegreeProfessional: 40,
}

// Metrics is the persisted breakdown of an education score.
type Metrics struct {
	Records          int              `json:"records"`
	VerifiedRecords  int              `json:"verifiedRecords"`
	HighestDegree    core.DegreeLevel `json:"highestDegree,omitempty"`
	GPA              float64          `json:"gpa"`
	InstitutionTrust int              `json:"institutionTrust"`
	Breakdown        Breakdown        `json:"breakdown"`
	Limitations      []string         `json:"limitations,omitempty"`
}

// Breakdown is the points earned per component.
type Breakdown struct {
	Degree       float64 `json:"degree"`
	GPA          float64 `json:"gpa"`
	Trust        float64 `json:"trust"`
	Verification float64 `json:"verification"`
	Score        int     `json:"score"`
}

// Analyzer scores education records.
type Analyzer struct {
	ref *reference.Dataset
}

// New creates an analyzer. A nil dataset uses the embedded one.
func New(ref *reference.Dataset) *Analyzer {
	if ref == nil {
		ref = reference.Default()
	}
	return &Analyzer{ref: ref}
}

// Validate checks one record before it is stored.
func Validate(rec *core.EducationRecord) error {
	ve := &core.ValidationError{Record: "education"}
	if strings.TrimSpace(rec.Institution) == "" {
		ve.Add("institution", "is required")
	}
	if _, ok := degreePoints[rec.Degree]; !ok {
		ve.Add("degree", fmt.Sprintf("unknown degree level %q", rec.Degree))
	}
	if rec.StartDate.IsZero() {
		ve.Add("startDate", "is required")
	}
	if rec.EndDate != nil && rec.EndDate.Before(rec.StartDate) {
		ve.Add("endDate", "is before startDate")
	}
	if rec.GPA != nil {
		if *rec.GPA < 0 {
			ve.Add("gpa", "must not be negative")
		} else if rec.GPAScale != nil && *rec.GPA > *rec.GPAScale {
			ve.Add("gpa", "exceeds gpaScale")
		}
	}
	if rec.GPAScale != nil && *rec.GPAScale <= 0 {
		ve.Add("gpaScale", "must be positive")
	}
	return ve.OrNil()
}

// NormalizeGPA converts a GPA to the 4.0 scale. Without an explicit scale
// the scale is detected from the value: up to 4, up to 10, else 100.
func NormalizeGPA(gpa float64, scale *float64) float64 {
	s := 100.0
	switch {
	case scale != nil && *scale > 0:
		s = *scale
	case gpa <= 4:
		s = 4
	case gpa <= 10:
		s = 10
	}
	return 4 * analyzer.Clamp01(gpa/s)
}

// Verified reports whether a record comes from a recognized institution and
// carries a supporting document.
func (a *Analyzer) Verified(rec *core.EducationRecord) bool {
	_, ok := a.ref.Institution(rec.Institution)
	return ok && strings.TrimSpace(rec.DocumentURL) != ""
}

// Analyze scores every record of a user. Any invalid record rejects the
// whole set.
func (a *Analyzer) Analyze(records []core.EducationRecord) (*analyzer.Result, error) {
	for i := range records {
		if err := Validate(&records[i]); err != nil {
			return nil, err
		}
	}

	var lim analyzer.Limitations
	m := Metrics{Records: len(records)}
	if len(records) == 0 {
		lim.Add("no education records")
		m.Limitations = lim
		return &analyzer.Result{Metrics: m, Limitations: lim}, nil
	}

	var (
		bestDegree float64
		bestGPA    = -1.0
		skills     = make(map[string]analyzer.SkillEvidence)
	)
	for i := range records {
		rec := &records[i]
		if p := degreePoints[rec.Degree]; p > bestDegree {
			bestDegree = p
			m.HighestDegree = rec.Degree
		}
		if rec.GPA != nil {
			if g := NormalizeGPA(*rec.GPA, rec.GPAScale); g > bestGPA {
				bestGPA = g
			}
		}
		if inst, ok := a.ref.Institution(rec.Institution); ok && inst.Trust > m.InstitutionTrust {
			m.InstitutionTrust = inst.Trust
		}
		verified := a.Verified(rec)
		if verified {
			m.VerifiedRecords++
		}

		for _, name := range a.ref.SkillsInText(rec.Field).Sorted() {
			info, _ := a.ref.Skill(name)
			ev := skills[name]
			ev.Name, ev.Category, ev.MarketDemand = info.Name, info.Category, info.MarketDemand
			ev.Proficiency = fieldSkillProficiency
			ev.Verified = ev.Verified || verified
			skills[name] = ev
		}
	}

	if bestGPA < 0 {
		lim.Add("no GPA reported")
		bestGPA = 0
	}
	if m.InstitutionTrust == 0 {
		lim.Add("no recognized institution")
	}
	m.GPA = analyzer.Round2(bestGPA)

	b := Breakdown{
		Degree:       bestDegree,
		GPA:          gpaBudget * bestGPA / 4,
		Trust:        trustBudget * float64(m.InstitutionTrust) / 100,
		Verification: verificationBudget * analyzer.Ratio(float64(m.VerifiedRecords), float64(len(records))),
	}
	b.Score = analyzer.Score(b.Degree + b.GPA + b.Trust + b.Verification)
	b.GPA = analyzer.Round2(b.GPA)
	b.Trust = analyzer.Round2(b.Trust)
	b.Verification = analyzer.Round2(b.Verification)
	m.Breakdown = b
	m.Limitations = lim

	evidence := make([]analyzer.SkillEvidence, 0, len(skills))
	for _, ev := range skills {
		evidence = append(evidence, ev)
	}
	analyzer.SortSkills(evidence)

	return &analyzer.Result{
		Score:       b.Score,
		Verified:    m.VerifiedRecords > 0,
		ItemsSynced: len(records),
		Metrics:     m,
		Skills:      evidence,
		Limitations: lim,
	}, nil
}
