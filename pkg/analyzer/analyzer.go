// Package analyzer holds what the four source analyzers share: the result
// shape handed to the sync handlers, score arithmetic and the gap
// regularity measure used for both commits and posts.
//
// Every analyzer validates its input, classifies it against the reference
// dataset and computes a weighted composite in a point budget that sums to
// 100. Missing data lowers the score and is recorded as a limitation; it is
// never an error.
package analyzer

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jdziat/credibility-sync/pkg/core"
)

// Clock returns the current time. Analyzers take it as a dependency so
// that identical input always produces identical output.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }

// Result is the normalized output of one analyzer run.
type Result struct {
	Score       int
	Verified    bool
	ItemsSynced int
	Metrics     any
	Skills      []SkillEvidence
	Limitations []string
}

// EncodeMetrics serializes the metrics for the profile row. Struct fields
// encode in declaration order and map keys sorted, so the bytes are stable.
func (r *Result) EncodeMetrics() ([]byte, error) {
	if r.Metrics == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Metrics)
}

// SkillEvidence is a skill observed by an analyzer.
type SkillEvidence struct {
	Name         string `json:"name"`
	Category     string `json:"category"`
	Proficiency  int    `json:"proficiency"`
	Verified     bool   `json:"verified"`
	MarketDemand int    `json:"marketDemand"`
}

// UserSkills converts evidence into user skill rows attributed to the
// target's source account.
func UserSkills(t core.SyncTarget, evidence []SkillEvidence) []core.UserSkill {
	out := make([]core.UserSkill, 0, len(evidence))
	for _, e := range evidence {
		out = append(out, core.UserSkill{
			UserID:       t.UserID,
			SkillName:    e.Name,
			Category:     e.Category,
			Proficiency:  e.Proficiency,
			Level:        LevelFor(e.Proficiency),
			Verified:     e.Verified,
			Source:       t.Source,
			SourceRef:    t.Ref,
			MarketDemand: e.MarketDemand,
		})
	}
	return out
}

// SortSkills orders evidence by proficiency descending, then name.
func SortSkills(s []SkillEvidence) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Proficiency != s[j].Proficiency {
			return s[i].Proficiency > s[j].Proficiency
		}
		return s[i].Name < s[j].Name
	})
}

// LevelFor maps a proficiency score to its ordinal level.
func LevelFor(proficiency int) core.SkillLevel {
	switch {
	case proficiency >= 90:
		return core.SkillExpert
	case proficiency >= 65:
		return core.SkillAdvanced
	case proficiency >= 40:
		return core.SkillIntermediate
	default:
		return core.SkillBeginner
	}
}

// Limitations collects reasons a score was computed on partial data.
type Limitations []string

// Add records a limitation.
func (l *Limitations) Add(format string, args ...any) {
	*l = append(*l, fmt.Sprintf(format, args...))
}

// Clamp01 bounds x to [0, 1]. NaN becomes 0.
func Clamp01(x float64) float64 {
	switch {
	case math.IsNaN(x) || x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}

// Ratio returns num/den bounded to [0, 1], or 0 when den is not positive.
func Ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return Clamp01(num / den)
}

// LogScale maps v onto [0, 1] logarithmically, reaching 1 at 10^decades - 1.
func LogScale(v, decades float64) float64 {
	if v <= 0 || decades <= 0 {
		return 0
	}
	return Clamp01(math.Log10(1+v) / decades)
}

// Score rounds points to an integer in [0, 100].
func Score(points float64) int {
	if math.IsNaN(points) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, points))))
}

// Round2 rounds to two decimals for stable metric output.
func Round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return math.Round(x*100) / 100
}

// GapVariation returns the coefficient of variation of the gaps between
// consecutive timestamps. It needs at least three timestamps (two gaps);
// ok is false otherwise. Evenly spaced activity has a variation of 0.
func GapVariation(times []time.Time) (cv float64, ok bool) {
	if len(times) < 3 {
		return 0, false
	}
	sorted := append([]time.Time(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	gaps := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i].Sub(sorted[i-1]).Hours())
	}

	var sum float64
	for _, g := range gaps {
		sum += g
	}
	mean := sum / float64(len(gaps))
	if mean <= 0 {
		// Every event at the same instant: maximally bursty.
		return math.Inf(1), true
	}

	var sq float64
	for _, g := range gaps {
		sq += (g - mean) * (g - mean)
	}
	std := math.Sqrt(sq / float64(len(gaps)))
	return std / mean, true
}

// Regularity converts a gap variation into a [0, 1] ratio: 1 for perfectly
// even activity, falling towards 0 as activity gets burstier.
func Regularity(cv float64) float64 {
	if math.IsInf(cv, 1) {
		return 0
	}
	return 1 / (1 + cv)
}
