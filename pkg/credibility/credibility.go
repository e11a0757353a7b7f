// Package credibility combines the persisted per-source scores of a user
// into one weighted credibility score and verification level. It never
// fetches external data, so recomputing is cheap and idempotent.
package credibility

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/jdziat/credibility-sync/pkg/analyzer"
	"github.com/jdziat/credibility-sync/pkg/analyzer/repository"
	"github.com/jdziat/credibility-sync/pkg/core"
)

// Category weights. They sum to exactly 1.0.
const (
	WeightEducation     = 0.25
	WeightExperience    = 0.30
	WeightTechnical     = 0.20
	WeightSocial        = 0.15
	WeightCertification = 0.10
)

// Level thresholds on the overall score.
const (
	EliteThreshold    = 85
	PremiumThreshold  = 70
	VerifiedThreshold = 50
)

// Technical score blend of repository quality and verified skill depth.
const (
	technicalQualityShare = 0.6
	technicalSkillsShare  = 0.4
	technicalTopSkills    = 5
)

// Categories are the five category scores, each 0-100.
type Categories struct {
	Education     int `json:"education"`
	Experience    int `json:"experience"`
	Technical     int `json:"technical"`
	Social        int `json:"social"`
	Certification int `json:"certification"`
}

// Overall returns the weighted sum rounded to an integer in [0, 100].
func (c Categories) Overall() int {
	sum := float64(c.Education)*WeightEducation +
		float64(c.Experience)*WeightExperience +
		float64(c.Technical)*WeightTechnical +
		float64(c.Social)*WeightSocial +
		float64(c.Certification)*WeightCertification
	return analyzer.Score(math.Round(sum*1e6) / 1e6)
}

// LevelFor classifies an overall score.
func LevelFor(overall int) core.VerificationLevel {
	switch {
	case overall >= EliteThreshold:
		return core.LevelElite
	case overall >= PremiumThreshold:
		return core.LevelPremium
	case overall >= VerifiedThreshold:
		return core.LevelVerified
	default:
		return core.LevelBasic
	}
}

// Compute builds the score record for a user. Categories are clamped
// before weighting, so the stored categories reproduce the stored overall.
func Compute(userID string, c Categories, at time.Time) *core.CredibilityScore {
	c = Categories{
		Education:     clamp(c.Education),
		Experience:    clamp(c.Experience),
		Technical:     clamp(c.Technical),
		Social:        clamp(c.Social),
		Certification: clamp(c.Certification),
	}
	overall := c.Overall()
	return &core.CredibilityScore{
		UserID:        userID,
		Education:     c.Education,
		Experience:    c.Experience,
		Technical:     c.Technical,
		Social:        c.Social,
		Certification: c.Certification,
		Overall:       overall,
		Level:         LevelFor(overall),
		CalculatedAt:  at,
	}
}

func clamp(v int) int {
	return min(max(v, 0), 100)
}

// FromProfiles derives the category scores from persisted profiles and the
// user's skill inventory.
//
// Education and certification come from their single profile. Experience
// and social take the best account when several are linked, so linking a
// weaker account never lowers the score. Technical blends the best
// repository quality score with the mean proficiency of the strongest
// verified skills; either half stands alone when the other is missing.
func FromProfiles(profiles []core.SourceProfile, skills []core.UserSkill) Categories {
	var c Categories
	quality := -1
	for _, p := range profiles {
		switch p.Source {
		case core.SourceEducation:
			c.Education = max(c.Education, p.Score)
		case core.SourceCertification:
			c.Certification = max(c.Certification, p.Score)
		case core.SourceSocial:
			c.Social = max(c.Social, p.Score)
		case core.SourceRepository:
			c.Experience = max(c.Experience, p.Score)
			var m repository.Metrics
			if err := json.Unmarshal(p.Metrics, &m); err == nil {
				quality = max(quality, m.Quality.Score)
			}
		}
	}

	depth := skillDepth(skills)
	switch {
	case quality >= 0 && depth >= 0:
		c.Technical = analyzer.Score(technicalQualityShare*float64(quality) + technicalSkillsShare*depth)
	case quality >= 0:
		c.Technical = quality
	case depth >= 0:
		c.Technical = analyzer.Score(depth)
	}
	return c
}

// skillDepth is the mean proficiency of the top verified skills, or -1 when
// the user has none.
func skillDepth(skills []core.UserSkill) float64 {
	var verified []int
	for _, s := range skills {
		if s.Verified {
			verified = append(verified, s.Proficiency)
		}
	}
	if len(verified) == 0 {
		return -1
	}
	sort.Sort(sort.Reverse(sort.IntSlice(verified)))
	if len(verified) > technicalTopSkills {
		verified = verified[:technicalTopSkills]
	}
	var sum int
	for _, v := range verified {
		sum += v
	}
	return float64(sum) / float64(len(verified))
}

// ScoreCache is an optional read-through cache of computed scores.
type ScoreCache interface {
	Get(ctx context.Context, userID string) (*core.CredibilityScore, bool)
	Set(ctx context.Context, score *core.CredibilityScore)
	Invalidate(ctx context.Context, userID string)
}

// Aggregator recomputes and serves credibility scores.
type Aggregator struct {
	store  core.ProfileStore
	cache  ScoreCache
	clock  analyzer.Clock
	logger *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithCache enables the score cache.
func WithCache(c ScoreCache) Option {
	return func(a *Aggregator) { a.cache = c }
}

// WithClock overrides the calculation timestamp source.
func WithClock(c analyzer.Clock) Option {
	return func(a *Aggregator) { a.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// NewAggregator creates an aggregator over store.
func NewAggregator(store core.ProfileStore, opts ...Option) *Aggregator {
	a := &Aggregator{store: store, clock: analyzer.SystemClock, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Recompute reads the user's persisted profiles and skills, stores the new
// score and refreshes the cache.
func (a *Aggregator) Recompute(ctx context.Context, userID string) (*core.CredibilityScore, error) {
	profiles, err := a.store.ListProfiles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	skills, err := a.store.ListUserSkills(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}

	score := Compute(userID, FromProfiles(profiles, skills), a.clock())
	if err := a.store.SaveCredibilityScore(ctx, score); err != nil {
		return nil, fmt.Errorf("save credibility score: %w", err)
	}
	if a.cache != nil {
		a.cache.Invalidate(ctx, userID)
		a.cache.Set(ctx, score)
	}
	a.logger.Debug("credibility recomputed", "user_id", userID, "overall", score.Overall, "level", score.Level)
	return score, nil
}

// Get returns the stored score, computing it on first request.
func (a *Aggregator) Get(ctx context.Context, userID string) (*core.CredibilityScore, error) {
	if a.cache != nil {
		if s, ok := a.cache.Get(ctx, userID); ok {
			return s, nil
		}
	}
	score, err := a.store.GetCredibilityScore(ctx, userID)
	if err != nil {
		return nil, err
	}
	if score == nil {
		return a.Recompute(ctx, userID)
	}
	if a.cache != nil {
		a.cache.Set(ctx, score)
	}
	return score, nil
}
