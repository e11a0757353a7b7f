// Package repository scores repository activity: how consistently a user
// commits, the quality signals of their work and their overall
// contribution. Detected languages become verified skills.
package repository

import (
	"math"
	"sort"
	"time"

	"github.com/jdziat/credibility-sync/pkg/analyzer"
	"github.com/jdziat/credibility-sync/pkg/reference"
)

// Point budgets. Each sub-score sums to 100.
const (
	coveragePoints   = 40.0
	regularityPoints = 40.0
	stalenessPoints  = 20.0

	prMergePoints    = 30.0
	issuePoints      = 20.0
	reviewPoints     = 20.0
	readmePoints     = 10.0
	testsPoints      = 10.0
	docsPoints       = 10.0
	reviewSaturation = 10.0

	impactPoints       = 25.0
	commitPoints       = 25.0
	consistencyWeight  = 0.20
	qualityWeight      = 0.15
	communityPoints    = 15.0
	contributionShare  = 0.4
	consistencyShare   = 0.3
	qualityShare       = 0.3
	stalenessWindow    = 90.0
	coverageTargetDays = 365.0 / 2
)

// Metrics is the persisted breakdown of a repository score.
type Metrics struct {
	Login           string          `json:"login"`
	Repositories    int             `json:"repositories"`
	OwnedRepos      int             `json:"ownedRepos"`
	Stars           int             `json:"stars"`
	Forks           int             `json:"forks"`
	CommitsLastYear int             `json:"commitsLastYear"`
	ActiveDays      int             `json:"activeDays"`
	DaysSinceCommit *int            `json:"daysSinceCommit,omitempty"`
	Consistency     Consistency     `json:"consistency"`
	Quality         Quality         `json:"quality"`
	Contribution    Contribution    `json:"contribution"`
	Languages       []LanguageShare `json:"languages"`
	Overall         int             `json:"overall"`
	Limitations     []string        `json:"limitations,omitempty"`
}

// Consistency is the commit-regularity breakdown.
type Consistency struct {
	Coverage   float64 `json:"coverage"`
	Regularity float64 `json:"regularity"`
	Staleness  float64 `json:"staleness"`
	GapCV      float64 `json:"gapCv"`
	Score      int     `json:"score"`
}

// Quality is the code-quality breakdown.
type Quality struct {
	PRMerge         float64 `json:"prMerge"`
	IssueResolution float64 `json:"issueResolution"`
	Reviews         float64 `json:"reviews"`
	Readme          float64 `json:"readme"`
	Tests           float64 `json:"tests"`
	Docs            float64 `json:"docs"`
	Score           int     `json:"score"`
}

// Contribution is the contribution breakdown.
type Contribution struct {
	Impact      float64 `json:"impact"`
	Commits     float64 `json:"commits"`
	Consistency float64 `json:"consistency"`
	Quality     float64 `json:"quality"`
	Community   float64 `json:"community"`
	Score       int     `json:"score"`
}

// LanguageShare is one language's share of owned code.
type LanguageShare struct {
	Name  string  `json:"name"`
	Bytes int64   `json:"bytes"`
	Share float64 `json:"share"`
	Repos int     `json:"repos"`
}

// Analyzer scores repository activity.
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

// Analyze scores act. It never fails; thin data lowers the score and is
// listed in the limitations.
func (a *Analyzer) Analyze(act *Activity) *analyzer.Result {
	now := a.clock()
	var lim analyzer.Limitations
	for _, m := range act.Missing {
		lim.Add("unavailable: %s", m)
	}

	m := Metrics{Login: act.Login, Repositories: len(act.Repos)}
	owned := make([]Repo, 0, len(act.Repos))
	for _, r := range act.Repos {
		m.Stars += r.Stars
		m.Forks += r.Forks
		if !r.Fork {
			owned = append(owned, r)
		}
	}
	m.OwnedRepos = len(owned)
	if len(owned) == 0 {
		lim.Add("no owned repositories")
	}

	yearAgo := now.AddDate(-1, 0, 0)
	var commits []time.Time
	for _, t := range act.CommitDates {
		if !t.Before(yearAgo) && !t.After(now) {
			commits = append(commits, t)
		}
	}
	m.CommitsLastYear = len(commits)

	m.Consistency = a.consistency(commits, now, &m, &lim)
	m.Quality = quality(act, owned, &lim)
	m.Contribution = contribution(act, m.Stars, m.Forks, len(commits), m.Consistency.Score, m.Quality.Score)

	m.Overall = analyzer.Score(
		contributionShare*float64(m.Contribution.Score) +
			consistencyShare*float64(m.Consistency.Score) +
			qualityShare*float64(m.Quality.Score))

	var skills []analyzer.SkillEvidence
	m.Languages, skills = a.languages(owned)
	m.Limitations = lim

	return &analyzer.Result{
		Score:       m.Overall,
		Verified:    len(owned) > 0 && len(commits) > 0,
		ItemsSynced: len(act.Repos),
		Metrics:     m,
		Skills:      skills,
		Limitations: lim,
	}
}

// Consistency scores commit dates alone, for callers that only have dates.
func (a *Analyzer) Consistency(commits []time.Time) int {
	var m Metrics
	var lim analyzer.Limitations
	return a.consistency(commits, a.clock(), &m, &lim).Score
}

func (a *Analyzer) consistency(commits []time.Time, now time.Time, m *Metrics, lim *analyzer.Limitations) Consistency {
	var c Consistency
	if len(commits) == 0 {
		lim.Add("no commits in the last year")
		return c
	}

	days := make(map[string]struct{})
	latest := commits[0]
	for _, t := range commits {
		days[t.UTC().Format(time.DateOnly)] = struct{}{}
		if t.After(latest) {
			latest = t
		}
	}
	m.ActiveDays = len(days)
	c.Coverage = coveragePoints * analyzer.Clamp01(float64(len(days))/coverageTargetDays)

	if cv, ok := analyzer.GapVariation(commits); ok {
		c.Regularity = regularityPoints * analyzer.Regularity(cv)
		c.GapCV = analyzer.Round2(cv)
		if math.IsInf(cv, 1) {
			c.GapCV = -1
		}
	} else {
		lim.Add("too few commits to measure regularity")
	}

	since := int(now.Sub(latest).Hours() / 24)
	m.DaysSinceCommit = &since
	c.Staleness = stalenessPoints * math.Max(0, 1-float64(since)/stalenessWindow)

	c.Score = analyzer.Score(c.Coverage + c.Regularity + c.Staleness)
	c.Coverage = analyzer.Round2(c.Coverage)
	c.Regularity = analyzer.Round2(c.Regularity)
	c.Staleness = analyzer.Round2(c.Staleness)
	return c
}

func quality(act *Activity, owned []Repo, lim *analyzer.Limitations) Quality {
	var q Quality
	if act.PullRequests > 0 {
		q.PRMerge = prMergePoints * analyzer.Ratio(float64(act.MergedPullRequests), float64(act.PullRequests))
	} else {
		lim.Add("no pull requests")
	}
	if act.Issues > 0 {
		q.IssueResolution = issuePoints * analyzer.Ratio(float64(act.ClosedIssues), float64(act.Issues))
	}
	q.Reviews = reviewPoints * analyzer.Clamp01(float64(act.Reviews)/reviewSaturation)

	if n := float64(len(owned)); n > 0 {
		var readme, tests, docs float64
		for _, r := range owned {
			if r.HasReadme {
				readme++
			}
			if r.HasTests {
				tests++
			}
			if r.HasDocs {
				docs++
			}
		}
		q.Readme = readmePoints * readme / n
		q.Tests = testsPoints * tests / n
		q.Docs = docsPoints * docs / n
	}

	q.Score = analyzer.Score(q.PRMerge + q.IssueResolution + q.Reviews + q.Readme + q.Tests + q.Docs)
	q.PRMerge = analyzer.Round2(q.PRMerge)
	q.IssueResolution = analyzer.Round2(q.IssueResolution)
	q.Reviews = analyzer.Round2(q.Reviews)
	q.Readme = analyzer.Round2(q.Readme)
	q.Tests = analyzer.Round2(q.Tests)
	q.Docs = analyzer.Round2(q.Docs)
	return q
}

func contribution(act *Activity, stars, forks, commits, consistency, quality int) Contribution {
	c := Contribution{
		Impact:      impactPoints * analyzer.LogScale(float64(stars+2*forks), 3),
		Commits:     commitPoints * analyzer.LogScale(float64(commits), 3),
		Consistency: consistencyWeight * float64(consistency),
		Quality:     qualityWeight * float64(quality),
		Community:   communityPoints * analyzer.LogScale(float64(act.PullRequests+act.Issues), 2),
	}
	c.Score = analyzer.Score(c.Impact + c.Commits + c.Consistency + c.Quality + c.Community)
	c.Impact = analyzer.Round2(c.Impact)
	c.Commits = analyzer.Round2(c.Commits)
	c.Consistency = analyzer.Round2(c.Consistency)
	c.Quality = analyzer.Round2(c.Quality)
	c.Community = analyzer.Round2(c.Community)
	return c
}

// languages aggregates byte counts over owned repositories. A language's
// proficiency grows with its share of the code and the number of
// repositories using it.
func (a *Analyzer) languages(owned []Repo) ([]LanguageShare, []analyzer.SkillEvidence) {
	bytes := make(map[string]int64)
	repos := make(map[string]int)
	var total int64
	for _, r := range owned {
		for lang, n := range r.Languages {
			if n <= 0 {
				continue
			}
			bytes[lang] += n
			repos[lang]++
			total += n
		}
	}
	if total == 0 {
		return []LanguageShare{}, nil
	}

	shares := make([]LanguageShare, 0, len(bytes))
	for lang, n := range bytes {
		shares = append(shares, LanguageShare{
			Name:  lang,
			Bytes: n,
			Share: analyzer.Round2(float64(n) / float64(total)),
			Repos: repos[lang],
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Bytes != shares[j].Bytes {
			return shares[i].Bytes > shares[j].Bytes
		}
		return shares[i].Name < shares[j].Name
	})

	var skills []analyzer.SkillEvidence
	for _, s := range shares {
		share := float64(s.Bytes) / float64(total)
		if share < 0.01 {
			continue
		}
		ev := analyzer.SkillEvidence{
			Name:        s.Name,
			Category:    "language",
			Proficiency: analyzer.Score(30 + 50*share + 20*analyzer.Clamp01(float64(s.Repos)/5)),
			Verified:    true,
		}
		if info, ok := a.ref.Skill(s.Name); ok {
			ev.Name = info.Name
			ev.Category = info.Category
			ev.MarketDemand = info.MarketDemand
		}
		skills = append(skills, ev)
	}
	analyzer.SortSkills(skills)
	return shares, skills
}
