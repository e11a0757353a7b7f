package skillgap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/credibility-sync/pkg/core"
)

func goal(id string, reqs ...core.RequiredSkill) core.CareerGoal {
	return core.CareerGoal{ID: id, TargetRole: id, RequiredSkills: reqs}
}

func req(skill string, imp core.Importance, level core.SkillLevel) core.RequiredSkill {
	return core.RequiredSkill{SkillName: skill, Importance: imp, TargetLevel: level}
}

func TestPriorityFor(t *testing.T) {
	tests := []struct {
		imp    core.Importance
		demand int
		want   Priority
	}{
		{core.ImportanceCritical, 90, PriorityCritical},    // 3 + 3.6
		{core.ImportanceMustHave, 50, PriorityCritical},    // 4 + 2
		{core.ImportanceImportant, 50, PriorityHigh},       // 2 + 2
		{core.ImportanceNiceToHave, 40, PriorityMedium},    // 1 + 1.6
		{core.ImportanceNiceToHave, 30, PriorityLow},       // 1 + 1.2
		{core.ImportanceImportant, 0, PriorityLow},         // 2
		{core.ImportanceMustHave, 0, PriorityHigh},         // 4
		{core.Importance("unheard-of"), 100, PriorityHigh}, // 1 + 4
	}
	for _, tt := range tests {
		got, _ := PriorityFor(tt.imp, tt.demand)
		assert.Equal(t, tt.want, got, "%s/%d", tt.imp, tt.demand)
	}
}

func TestAnalyze_IntermediateToAdvancedCriticalGap(t *testing.T) {
	a := New(nil)
	skills := []core.UserSkill{{SkillName: "Python", Level: core.SkillIntermediate, Proficiency: 50}}
	report := a.Analyze(skills, []core.CareerGoal{
		goal("ml-engineer", req("python", core.ImportanceCritical, core.SkillAdvanced)),
	})

	require.Len(t, report.Gaps, 1)
	g := report.Gaps[0]
	assert.Equal(t, "Python", g.Skill)
	assert.Equal(t, 50, g.Current)
	assert.Equal(t, 75, g.Required)
	assert.Equal(t, 25, g.Gap)
	assert.Equal(t, PriorityCritical, g.Priority)
	assert.Equal(t, 50, g.EstimatedHours)
	assert.Equal(t, 92, g.MarketUrgency)

	require.Len(t, report.Readiness, 1)
	assert.Equal(t, 70, report.Readiness[0].Score)
	assert.Equal(t, MatchPartial, report.Readiness[0].Matches[0].Match)
}

func TestAnalyze_MatchClassesAndReadiness(t *testing.T) {
	a := New(nil)
	skills := []core.UserSkill{
		{SkillName: "Go", Level: core.SkillExpert},           // exceeds advanced
		{SkillName: "golang-adjacent", Category: "language"}, // level from proficiency 0: beginner
		{SkillName: "SQL", Level: core.SkillAdvanced},        // exact
		{SkillName: "Docker", Level: core.SkillBeginner},     // partial vs advanced
	}
	g := goal("backend",
		req("Go", core.ImportanceMustHave, core.SkillAdvanced),
		req("SQL", core.ImportanceImportant, core.SkillAdvanced),
		req("Docker", core.ImportanceImportant, core.SkillAdvanced),
		req("Rust", core.ImportanceNiceToHave, core.SkillIntermediate), // transferable via Go
		req("Figma", core.ImportanceNiceToHave, core.SkillBeginner),    // unknown skill, no match
	)
	report := a.Analyze(skills, []core.CareerGoal{g})

	require.Len(t, report.Readiness, 1)
	r := report.Readiness[0]
	matches := map[string]Match{}
	for _, m := range r.Matches {
		matches[m.Skill] = m.Match
	}
	assert.Equal(t, map[string]Match{
		"Go": MatchExceeds, "SQL": MatchExact, "Docker": MatchPartial,
		"Rust": MatchTransferable, "Figma": MatchNone,
	}, matches)

	// (4*1.2 + 2*1.0 + 2*0.7 + 1*0.3 + 1*0) / 10
	assert.Equal(t, 85, r.Score)

	var names []string
	for _, gap := range report.Gaps {
		names = append(names, gap.Skill)
	}
	// Docker high (2+3.44), Rust medium (1+2.8), Figma low (1+0).
	assert.Equal(t, []string{"Docker", "Rust", "Figma"}, names)
	assert.Equal(t, 100, report.Gaps[1].EstimatedHours)
}

func TestAnalyze_ReadinessCappedAt100(t *testing.T) {
	a := New(nil)
	skills := []core.UserSkill{{SkillName: "Go", Level: core.SkillExpert}}
	report := a.Analyze(skills, []core.CareerGoal{goal("g", req("Go", core.ImportanceCritical, core.SkillBeginner))})
	assert.Equal(t, 100, report.Readiness[0].Score)
	assert.Empty(t, report.Gaps)
}

func TestAnalyze_SharedSkillAcrossGoalsYieldsOneGap(t *testing.T) {
	a := New(nil)
	report := a.Analyze(nil, []core.CareerGoal{
		goal("a", req("Kubernetes", core.ImportanceImportant, core.SkillIntermediate)),
		goal("b", req("k8s", core.ImportanceCritical, core.SkillExpert)),
	})
	require.Len(t, report.Gaps, 1)
	assert.Equal(t, "Kubernetes", report.Gaps[0].Skill)
	assert.Equal(t, 100, report.Gaps[0].Required)
	assert.Equal(t, core.ImportanceCritical, report.Gaps[0].Importance)
	assert.Len(t, report.Readiness, 2)
	assert.Equal(t, 0, report.Readiness[0].Score)
}

func TestSortGaps_TierThenUrgencyThenName(t *testing.T) {
	gaps := []Gap{
		{Skill: "b", Priority: PriorityHigh, MarketUrgency: 50},
		{Skill: "a", Priority: PriorityHigh, MarketUrgency: 50},
		{Skill: "c", Priority: PriorityLow, MarketUrgency: 99},
		{Skill: "d", Priority: PriorityHigh, MarketUrgency: 80},
		{Skill: "e", Priority: PriorityCritical, MarketUrgency: 10},
	}
	SortGaps(gaps)
	var order []string
	for _, g := range gaps {
		order = append(order, g.Skill)
	}
	assert.Equal(t, []string{"e", "d", "a", "b", "c"}, order)
}

func TestAnalyze_NoGoals(t *testing.T) {
	report := New(nil).Analyze([]core.UserSkill{{SkillName: "Go", Level: core.SkillExpert}}, nil)
	assert.Empty(t, report.Gaps)
	assert.Empty(t, report.Readiness)
}
