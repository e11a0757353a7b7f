// Package skillgap compares a user's skill inventory with the required
// skills of their career goals. It produces the gaps to close, ordered by
// what to learn next, and a readiness percentage per goal.
//
// The analysis is pure and deterministic: estimates are linear in the gap
// size rather than model-fit, so every number can be explained.
package skillgap

import (
	"sort"

	"github.com/jdziat/credibility-sync/pkg/analyzer"
	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/reference"
)

// HoursPerPoint is the estimated learning time per point of gap.
const HoursPerPoint = 2

// Priority is the urgency tier of a gap.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	}
	return 0
}

// Match classifies how a current level meets a required one.
type Match string

const (
	MatchExceeds      Match = "exceeds"
	MatchExact        Match = "exact"
	MatchPartial      Match = "partial"
	MatchTransferable Match = "transferable"
	MatchNone         Match = "none"
)

var matchMultiplier = map[Match]float64{
	MatchExceeds:      1.2,
	MatchExact:        1.0,
	MatchPartial:      0.7,
	MatchTransferable: 0.3,
	MatchNone:         0,
}

// LevelScore maps a level to its ordinal score. Unknown levels score 0.
func LevelScore(l core.SkillLevel) int {
	switch l {
	case core.SkillBeginner:
		return 25
	case core.SkillIntermediate:
		return 50
	case core.SkillAdvanced:
		return 75
	case core.SkillExpert:
		return 100
	}
	return 0
}

// ImportanceScore maps an importance tier to 1-4. Unknown tiers count as
// nice-to-have.
func ImportanceScore(i core.Importance) int {
	switch i {
	case core.ImportanceMustHave:
		return 4
	case core.ImportanceCritical:
		return 3
	case core.ImportanceImportant:
		return 2
	}
	return 1
}

// PriorityFor combines importance (1-4) with market demand scaled to 0-4.
func PriorityFor(importance core.Importance, demand int) (Priority, float64) {
	score := float64(ImportanceScore(importance)) + float64(demand)/100*4
	switch {
	case score >= 6:
		return PriorityCritical, score
	case score >= 4:
		return PriorityHigh, score
	case score >= 2.5:
		return PriorityMedium, score
	}
	return PriorityLow, score
}

// Gap is a derived, non-persisted record of one skill to improve.
type Gap struct {
	Skill          string          `json:"skill"`
	Category       string          `json:"category,omitempty"`
	Importance     core.Importance `json:"importance"`
	Current        int             `json:"current"`
	Required       int             `json:"required"`
	Gap            int             `json:"gap"`
	Priority       Priority        `json:"priority"`
	PriorityScore  float64         `json:"priorityScore"`
	EstimatedHours int             `json:"estimatedHours"`
	MarketUrgency  int             `json:"marketUrgency"`
}

// SkillMatch is the readiness contribution of one required skill.
type SkillMatch struct {
	Skill    string  `json:"skill"`
	Match    Match   `json:"match"`
	Weight   int     `json:"weight"`
	Credit   float64 `json:"credit"`
	Current  int     `json:"current"`
	Required int     `json:"required"`
}

// Readiness is the readiness of the user for one goal.
type Readiness struct {
	GoalID     string       `json:"goalId"`
	TargetRole string       `json:"targetRole"`
	Score      int          `json:"score"`
	Matches    []SkillMatch `json:"matches"`
}

// Report is the full analysis.
type Report struct {
	Gaps      []Gap       `json:"gaps"`
	Readiness []Readiness `json:"readiness"`
}

// Analyzer computes skill gaps.
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

// inventory indexes user skills by canonical name and tracks the
// categories the user has any skill in.
type inventory struct {
	skills     map[string]int
	categories map[string]bool
}

func (a *Analyzer) canonical(name string) (string, reference.SkillInfo, bool) {
	if info, ok := a.ref.Skill(name); ok {
		return reference.Normalize(info.Name), info, true
	}
	return reference.Normalize(name), reference.SkillInfo{Name: name}, false
}

func (a *Analyzer) index(skills []core.UserSkill) inventory {
	inv := inventory{skills: make(map[string]int), categories: make(map[string]bool)}
	for _, s := range skills {
		key, info, _ := a.canonical(s.SkillName)
		level := s.Level
		if level == "" {
			level = analyzer.LevelFor(s.Proficiency)
		}
		cat := s.Category
		if cat == "" {
			cat = info.Category
		}
		if score, ok := inv.skills[key]; !ok || LevelScore(level) > score {
			inv.skills[key] = LevelScore(level)
		}
		if cat != "" {
			inv.categories[cat] = true
		}
	}
	return inv
}

// Analyze computes the gaps across all goals and the readiness per goal.
// A skill required by several goals yields one gap at its highest
// requirement and importance.
func (a *Analyzer) Analyze(skills []core.UserSkill, goals []core.CareerGoal) Report {
	inv := a.index(skills)
	gaps := make(map[string]*Gap)
	report := Report{Gaps: []Gap{}, Readiness: make([]Readiness, 0, len(goals))}

	for _, goal := range goals {
		r := Readiness{GoalID: goal.ID, TargetRole: goal.TargetRole, Matches: make([]SkillMatch, 0, len(goal.RequiredSkills))}
		var weighted, total float64

		for _, req := range goal.RequiredSkills {
			key, info, _ := a.canonical(req.SkillName)
			required := LevelScore(req.TargetLevel)
			current, ok := inv.skills[key]

			m := classify(current, required, ok, info.Category != "" && inv.categories[info.Category])
			w := ImportanceScore(req.Importance)
			credit := matchMultiplier[m]
			weighted += float64(w) * credit
			total += float64(w)
			r.Matches = append(r.Matches, SkillMatch{
				Skill: info.Name, Match: m, Weight: w, Credit: credit, Current: current, Required: required,
			})

			if current >= required {
				continue
			}
			prio, pscore := PriorityFor(req.Importance, info.MarketDemand)
			g := Gap{
				Skill:          info.Name,
				Category:       info.Category,
				Importance:     req.Importance,
				Current:        current,
				Required:       required,
				Gap:            required - current,
				Priority:       prio,
				PriorityScore:  analyzer.Round2(pscore),
				EstimatedHours: HoursPerPoint * (required - current),
				MarketUrgency:  info.MarketDemand,
			}
			if prev, ok := gaps[key]; !ok || outranks(g, *prev) {
				gaps[key] = &g
			}
		}

		if total > 0 {
			r.Score = min(analyzer.Score(weighted/total*100), 100)
		}
		report.Readiness = append(report.Readiness, r)
	}

	for _, g := range gaps {
		report.Gaps = append(report.Gaps, *g)
	}
	SortGaps(report.Gaps)
	return report
}

func classify(current, required int, has, sameCategory bool) Match {
	switch {
	case has && current > required:
		return MatchExceeds
	case has && current == required:
		return MatchExact
	case has && current > 0:
		return MatchPartial
	case sameCategory:
		return MatchTransferable
	}
	return MatchNone
}

// outranks decides which of two gaps for the same skill is kept.
func outranks(a, b Gap) bool {
	if a.Required != b.Required {
		return a.Required > b.Required
	}
	return a.PriorityScore > b.PriorityScore
}

// SortGaps orders gaps by priority tier, then market urgency descending,
// then skill name.
func SortGaps(gaps []Gap) {
	sort.SliceStable(gaps, func(i, j int) bool {
		if ri, rj := gaps[i].Priority.rank(), gaps[j].Priority.rank(); ri != rj {
			return ri > rj
		}
		if gaps[i].MarketUrgency != gaps[j].MarketUrgency {
			return gaps[i].MarketUrgency > gaps[j].MarketUrgency
		}
		return gaps[i].Skill < gaps[j].Skill
	})
}
