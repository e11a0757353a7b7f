// Package certification scores user-submitted certificates against the
// trusted-issuer table and extracts the skills they attest.
package certification

import (
	"strings"
	"time"

	"github.com/jdziat/credibility-sync/pkg/analyzer"
	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/reference"
)

// Point budget, summing to 100.
const (
	countBudget        = 30.0
	verificationBudget = 30.0
	recencyBudget      = 20.0
	diversityBudget    = 20.0

	countSaturation     = 5
	recentSaturation    = 3
	diversitySaturation = 10
	recentWindowYears   = 2

	expiryWarning = 90 * 24 * time.Hour

	verifiedProficiency   = 70
	unverifiedProficiency = 50
)

// Metrics is the persisted breakdown of a certification score.
type Metrics struct {
	Certifications int       `json:"certifications"`
	Verified       int       `json:"verified"`
	Recent         int       `json:"recent"`
	Expired        int       `json:"expired"`
	ExpiringSoon   int       `json:"expiringSoon"`
	Skills         []string  `json:"skills"`
	Breakdown      Breakdown `json:"breakdown"`
	Limitations    []string  `json:"limitations,omitempty"`
}

// Breakdown is the points earned per component.
type Breakdown struct {
	Count        float64 `json:"count"`
	Verification float64 `json:"verification"`
	Recency      float64 `json:"recency"`
	Diversity    float64 `json:"diversity"`
	Score        int     `json:"score"`
}

// Analyzer scores certifications.
type Analyzer struct {
	ref   *reference.Dataset
	clock analyzer.Clock
}

// New creates an analyzer. A nil dataset uses the embedded one and a nil
// clock the system clock.
func New(ref *reference.Dataset, clock analyzer.Clock) *Analyzer {
	if ref == nil {
		ref = reference.Default()
	}
	if clock == nil {
		clock = analyzer.SystemClock
	}
	return &Analyzer{ref: ref, clock: clock}
}

// Validate checks one record before it is stored.
func Validate(rec *core.CertificationRecord) error {
	ve := &core.ValidationError{Record: "certification"}
	if strings.TrimSpace(rec.Name) == "" {
		ve.Add("name", "is required")
	}
	if strings.TrimSpace(rec.Issuer) == "" {
		ve.Add("issuer", "is required")
	}
	if rec.IssueDate.IsZero() {
		ve.Add("issueDate", "is required")
	}
	if rec.ExpiryDate != nil && rec.ExpiryDate.Before(rec.IssueDate) {
		ve.Add("expiryDate", "is before issueDate")
	}
	return ve.OrNil()
}

// Verified reports whether a certificate comes from a trusted issuer and its
// credential URL is hosted on that issuer's domain.
func (a *Analyzer) Verified(rec *core.CertificationRecord) bool {
	is, ok := a.ref.Issuer(rec.Issuer)
	return ok && is.MatchesIssuerDomain(rec.CredentialURL)
}

// Skills returns the canonical skills named in a certificate.
func (a *Analyzer) Skills(rec *core.CertificationRecord) reference.SkillSet {
	return a.ref.SkillsInText(rec.Name + " " + rec.Description)
}

// Analyze scores every certificate of a user. Any invalid record rejects the
// whole set.
func (a *Analyzer) Analyze(records []core.CertificationRecord) (*analyzer.Result, error) {
	for i := range records {
		if err := Validate(&records[i]); err != nil {
			return nil, err
		}
	}

	now := a.clock()
	recentSince := now.AddDate(-recentWindowYears, 0, 0)

	var lim analyzer.Limitations
	m := Metrics{Certifications: len(records), Skills: []string{}}
	if len(records) == 0 {
		lim.Add("no certifications")
		m.Limitations = lim
		return &analyzer.Result{Metrics: m, Limitations: lim}, nil
	}

	all := make(reference.SkillSet)
	evidence := make(map[string]analyzer.SkillEvidence)
	for i := range records {
		rec := &records[i]
		verified := a.Verified(rec)
		if verified {
			m.Verified++
		}
		if !rec.IssueDate.Before(recentSince) && !rec.IssueDate.After(now) {
			m.Recent++
		}
		if rec.ExpiryDate != nil && rec.ExpiryDate.Before(now) {
			m.Expired++
		}
		if expiresWithin(rec, now, expiryWarning) {
			m.ExpiringSoon++
		}

		for name := range a.Skills(rec) {
			all.Add(name)
			info, _ := a.ref.Skill(name)
			ev := evidence[name]
			ev.Name, ev.Category, ev.MarketDemand = info.Name, info.Category, info.MarketDemand
			p := unverifiedProficiency
			if verified {
				p = verifiedProficiency
			}
			if p > ev.Proficiency {
				ev.Proficiency = p
			}
			ev.Verified = ev.Verified || verified
			evidence[name] = ev
		}
	}
	m.Skills = all.Sorted()

	if m.Verified < len(records) {
		lim.Add("%d of %d certifications unverified", len(records)-m.Verified, len(records))
	}
	if len(all) == 0 {
		lim.Add("no recognizable skills in certifications")
	}

	b := Breakdown{
		Count:        countBudget * float64(min(len(records), countSaturation)) / countSaturation,
		Verification: verificationBudget * analyzer.Ratio(float64(m.Verified), float64(len(records))),
		Recency:      recencyBudget * float64(min(m.Recent, recentSaturation)) / recentSaturation,
		Diversity:    diversityBudget * float64(min(len(all), diversitySaturation)) / diversitySaturation,
	}
	b.Score = analyzer.Score(b.Count + b.Verification + b.Recency + b.Diversity)
	b.Count = analyzer.Round2(b.Count)
	b.Verification = analyzer.Round2(b.Verification)
	b.Recency = analyzer.Round2(b.Recency)
	b.Diversity = analyzer.Round2(b.Diversity)
	m.Breakdown = b
	m.Limitations = lim

	skills := make([]analyzer.SkillEvidence, 0, len(evidence))
	for _, ev := range evidence {
		skills = append(skills, ev)
	}
	analyzer.SortSkills(skills)

	return &analyzer.Result{
		Score:       b.Score,
		Verified:    m.Verified > 0,
		ItemsSynced: len(records),
		Metrics:     m,
		Skills:      skills,
		Limitations: lim,
	}, nil
}

// expiresWithin reports whether rec has not expired yet but will within d.
func expiresWithin(rec *core.CertificationRecord, now time.Time, d time.Duration) bool {
	return rec.ExpiryDate != nil && !rec.ExpiryDate.Before(now) && rec.ExpiryDate.Sub(now) <= d
}
