package curiosity

import (
	"sort"

	"github.com/ignite/perf-brain/internal/pkg/stats"
)

// Scorer turns raw candidate attributes into the four normalized factors
// and the weighted composite. The normalization functions are policy and
// can be swapped without touching the generators.
type Scorer interface {
	Score(candidates []Action) []Action
}

// LinearScorer is the default policy:
//   - impact: expected impact over the largest impact among candidates
//   - confidence: the candidate's own confidence, clamped
//   - urgency: linear in the horizon, DefaultUrgency without one
//   - feasibility: a fixed value per action type
type LinearScorer struct {
	Params Params
}

func (s LinearScorer) Score(candidates []Action) []Action {
	maxImpact := 0.0
	for _, c := range candidates {
		maxImpact = max(maxImpact, c.ExpectedImpact)
	}
	out := make([]Action, len(candidates))
	for i, c := range candidates {
		c.Factors = Factors{
			Impact:      stats.Round(stats.Clamp01(stats.SafeDiv(c.ExpectedImpact, maxImpact)), 6),
			Confidence:  stats.Round(stats.Clamp01(c.Confidence), 6),
			Urgency:     stats.Round(s.urgency(c.HorizonDays), 6),
			Feasibility: s.Params.Feasibility.For(c.Type),
		}
		w := s.Params.Weights
		c.Score = stats.Round(
			w.Impact*c.Factors.Impact+
				w.Confidence*c.Factors.Confidence+
				w.Urgency*c.Factors.Urgency+
				w.Feasibility*c.Factors.Feasibility, 6)
		out[i] = c
	}
	return out
}

func (s LinearScorer) urgency(horizonDays int) float64 {
	if horizonDays <= 0 {
		return s.Params.DefaultUrgency
	}
	span := float64(s.Params.UrgencyHorizonDays - 1)
	return stats.Clamp01(1 - float64(horizonDays-1)/span)
}

// rank orders scored actions by score, then target entity id, then action
// type, then rationale, so equal scores always resolve the same way.
func rank(actions []Action) {
	sort.SliceStable(actions, func(i, j int) bool {
		a, b := actions[i], actions[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TargetEntityID != b.TargetEntityID {
			return a.TargetEntityID < b.TargetEntityID
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Rationale < b.Rationale
	})
}

// selectTop keeps the best action per target entity and truncates to n.
// actions must already be ranked.
func selectTop(actions []Action, n int) (top []Action, duplicates, truncated int) {
	seen := make(map[string]struct{}, len(actions))
	top = []Action{}
	for _, a := range actions {
		if _, dup := seen[a.TargetEntityID]; dup {
			duplicates++
			continue
		}
		seen[a.TargetEntityID] = struct{}{}
		if len(top) == n {
			truncated++
			continue
		}
		top = append(top, a)
	}
	return top, duplicates, truncated
}
