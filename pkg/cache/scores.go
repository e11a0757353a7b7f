package cache

import (
	"context"

	"github.com/jdziat/credibility-sync/pkg/core"
)

// Scores caches credibility scores by user.
type Scores struct {
	r *Redis
}

// NewScores creates a score cache over r. A nil r bypasses every call.
func NewScores(r *Redis) *Scores {
	return &Scores{r: r}
}

func scoreKey(userID string) string { return "score:" + userID }

// Get returns the cached score of a user. Cache failures are misses.
func (s *Scores) Get(ctx context.Context, userID string) (*core.CredibilityScore, bool) {
	var score core.CredibilityScore
	ok, err := s.r.GetJSON(ctx, scoreKey(userID), &score)
	if err != nil || !ok {
		return nil, false
	}
	return &score, true
}

// Set caches a score with the default TTL.
func (s *Scores) Set(ctx context.Context, score *core.CredibilityScore) {
	_ = s.r.SetJSON(ctx, scoreKey(score.UserID), score, 0)
}

// Invalidate drops a user's cached score.
func (s *Scores) Invalidate(ctx context.Context, userID string) {
	_ = s.r.Delete(ctx, scoreKey(userID))
}
