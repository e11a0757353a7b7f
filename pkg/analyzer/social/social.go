// Package social scores a social platform account by audience, engagement
// and posting behavior. The same model serves every supported platform;
// only the ideal posting frequency differs.
package social

import (
	"fmt"
	"math"
	"time"

	"github.com/jdziat/credibility-sync/pkg/analyzer"
	"github.com/jdziat/credibility-sync/pkg/core"
	"github.com/jdziat/credibility-sync/pkg/reference"
)

// Influence point budget, summing to 100.
const (
	audiencePoints    = 30.0
	engagementPoints  = 25.0
	ratioPoints       = 10.0
	consistencyPoints = 15.0
	verifiedBonus     = 6.0
	businessBonus     = 4.0
	frequencyPoints   = 10.0

	// An engagement rate of 6% or more earns the full engagement points.
	engagementSaturation = 6.0
	window               = 90 * 24 * time.Hour
)

// Metrics is the persisted breakdown of a social score.
type Metrics struct {
	Platform       string    `json:"platform"`
	Handle         string    `json:"handle"`
	Followers      int       `json:"followers"`
	Following      int       `json:"following"`
	Posts          int       `json:"posts"`
	PostsPerWeek   float64   `json:"postsPerWeek"`
	IdealPerWeek   float64   `json:"idealPerWeek"`
	EngagementRate float64   `json:"engagementRate"`
	Consistency    int       `json:"consistency"`
	Influence      Influence `json:"influence"`
	Limitations    []string  `json:"limitations,omitempty"`
}

// Influence is the influence score breakdown.
type Influence struct {
	Audience     float64 `json:"audience"`
	Engagement   float64 `json:"engagement"`
	Ratio        float64 `json:"ratio"`
	Consistency  float64 `json:"consistency"`
	AccountBonus float64 `json:"accountBonus"`
	Frequency    float64 `json:"frequency"`
	Score        int     `json:"score"`
}

// Analyzer scores social accounts.
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

// Supports reports whether the platform has a posting-frequency profile.
func (a *Analyzer) Supports(platform string) bool {
	_, ok := a.ref.IdealPostsPerWeek(platform)
	return ok
}

// Analyze scores acct. An unsupported platform is a validation error.
func (a *Analyzer) Analyze(acct *Account) (*analyzer.Result, error) {
	ideal, ok := a.ref.IdealPostsPerWeek(acct.Platform)
	if !ok {
		ve := &core.ValidationError{Record: "social"}
		ve.Add("platform", fmt.Sprintf("unsupported platform %q", acct.Platform))
		return nil, ve
	}

	now := a.clock()
	var lim analyzer.Limitations
	for _, m := range acct.Missing {
		lim.Add("unavailable: %s", m)
	}

	var recent []Post
	for _, p := range acct.Posts {
		if !p.PublishedAt.Before(now.Add(-window)) && !p.PublishedAt.After(now) {
			recent = append(recent, p)
		}
	}

	m := Metrics{
		Platform:     reference.Normalize(acct.Platform),
		Handle:       acct.Handle,
		Followers:    acct.Followers,
		Following:    acct.Following,
		Posts:        len(recent),
		IdealPerWeek: ideal,
	}

	m.EngagementRate = engagementRate(recent, acct.Followers)
	if !acct.EngagementAvailable {
		lim.Add("engagement not scored")
	}
	if acct.Followers == 0 {
		lim.Add("no audience")
	}

	times := make([]time.Time, len(recent))
	for i, p := range recent {
		times[i] = p.PublishedAt
	}
	if cv, ok := analyzer.GapVariation(times); ok {
		m.Consistency = analyzer.Score(100 * analyzer.Regularity(cv))
	} else {
		lim.Add("too few posts to measure consistency")
	}

	weeks := window.Hours() / (24 * 7)
	m.PostsPerWeek = analyzer.Round2(float64(len(recent)) / weeks)

	inf := Influence{
		Audience:    audiencePoints * analyzer.LogScale(float64(acct.Followers), 6),
		Engagement:  engagementPoints * analyzer.Clamp01(m.EngagementRate/engagementSaturation),
		Ratio:       ratioPoints * analyzer.LogScale(float64(acct.Followers)/float64(acct.Following+1), 2),
		Consistency: consistencyPoints * float64(m.Consistency) / 100,
		Frequency:   frequencyPoints * FrequencyFit(float64(len(recent))/weeks, ideal),
	}
	if acct.Verified {
		inf.AccountBonus += verifiedBonus
	}
	if acct.Business {
		inf.AccountBonus += businessBonus
	}
	inf.Score = analyzer.Score(inf.Audience + inf.Engagement + inf.Ratio + inf.Consistency + inf.AccountBonus + inf.Frequency)
	inf.Audience = analyzer.Round2(inf.Audience)
	inf.Engagement = analyzer.Round2(inf.Engagement)
	inf.Ratio = analyzer.Round2(inf.Ratio)
	inf.Consistency = analyzer.Round2(inf.Consistency)
	inf.Frequency = analyzer.Round2(inf.Frequency)
	m.Influence = inf
	m.Limitations = lim

	return &analyzer.Result{
		Score:       inf.Score,
		Verified:    acct.Verified,
		ItemsSynced: len(recent),
		Metrics:     m,
		Limitations: lim,
	}, nil
}

// engagementRate is the average interactions per post as a percentage of
// the audience.
func engagementRate(posts []Post, followers int) float64 {
	if len(posts) == 0 || followers <= 0 {
		return 0
	}
	var total int
	for _, p := range posts {
		total += p.Interactions()
	}
	avg := float64(total) / float64(len(posts))
	return analyzer.Round2(avg / float64(followers) * 100)
}

// FrequencyFit is 1 when posting exactly at the ideal rate and falls off
// symmetrically in log space for posting too little or too much.
func FrequencyFit(perWeek, ideal float64) float64 {
	if perWeek <= 0 || ideal <= 0 {
		return 0
	}
	l := math.Log(perWeek / ideal)
	return math.Exp(-l * l)
}
