package curiosity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Characterization of the default normalization policy.
func TestLinearScorer_Characterization(t *testing.T) {
	s := LinearScorer{Params: DefaultParams()}
	scored := s.Score([]Action{
		{Type: ActionPauseCreative, TargetEntityID: "cr-1", ExpectedImpact: 1000, Confidence: 0.8, HorizonDays: 8},
		{Type: ActionIncreaseBudget, TargetEntityID: "camp-1", ExpectedImpact: 500, Confidence: 0.5},
		{Type: ActionShiftBudget, TargetEntityID: "camp-2", ExpectedImpact: 0, Confidence: 1.4, HorizonDays: 45},
	})
	require.Len(t, scored, 3)

	pause := scored[0]
	assert.Equal(t, 1.0, pause.Factors.Impact)
	assert.InDelta(t, 0.758621, pause.Factors.Urgency, 1e-6)
	assert.Equal(t, 0.9, pause.Factors.Feasibility)
	assert.InDelta(t, 0.881724, pause.Score, 1e-6)

	inc := scored[1]
	assert.Equal(t, 0.5, inc.Factors.Impact)
	assert.Equal(t, 0.25, inc.Factors.Urgency)
	assert.InDelta(t, 0.46, inc.Score, 1e-9)

	shift := scored[2]
	assert.Equal(t, 0.0, shift.Factors.Impact)
	assert.Equal(t, 1.0, shift.Factors.Confidence, "confidence is clamped")
	assert.Equal(t, 0.0, shift.Factors.Urgency, "horizons past the urgency span floor at zero")
	assert.InDelta(t, 0.37, shift.Score, 1e-9)
}

func TestLinearScorer_UrgencyEndpoints(t *testing.T) {
	s := LinearScorer{Params: DefaultParams()}
	assert.Equal(t, 1.0, s.urgency(1))
	assert.Equal(t, 0.0, s.urgency(30))
	assert.Equal(t, 0.25, s.urgency(0))
}

func TestSelectTop(t *testing.T) {
	ranked := []Action{
		{Type: ActionPauseCreative, TargetEntityID: "a", Score: 0.9},
		{Type: ActionShiftBudget, TargetEntityID: "a", Score: 0.8},
		{Type: ActionShiftBudget, TargetEntityID: "b", Score: 0.7},
		{Type: ActionRetention, TargetEntityID: "c", Score: 0.6},
		{Type: ActionRetention, TargetEntityID: "d", Score: 0.5},
	}
	top, dups, truncated := selectTop(ranked, 3)

	require.Len(t, top, 3)
	assert.Equal(t, ActionPauseCreative, top[0].Type)
	assert.Equal(t, "b", top[1].TargetEntityID)
	assert.Equal(t, 1, dups)
	assert.Equal(t, 1, truncated)

	top, _, _ = selectTop(nil, 3)
	assert.NotNil(t, top)
	assert.Empty(t, top)
}

func TestRank_Deterministic(t *testing.T) {
	actions := []Action{
		{Type: ActionShiftBudget, TargetEntityID: "b", Score: 0.5},
		{Type: ActionRetention, TargetEntityID: "a", Score: 0.5},
		{Type: ActionPauseCreative, TargetEntityID: "a", Score: 0.5},
		{Type: ActionShiftBudget, TargetEntityID: "c", Score: 0.7},
	}
	rank(actions)

	assert.Equal(t, "c", actions[0].TargetEntityID)
	assert.Equal(t, ActionPauseCreative, actions[1].Type)
	assert.Equal(t, ActionRetention, actions[2].Type)
	assert.Equal(t, "b", actions[3].TargetEntityID)
}
