package curiosity_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/engine/curiosity"
	"github.com/ignite/perf-brain/internal/engine/memory"
	"github.com/ignite/perf-brain/internal/engine/oracle"
)

var asOf = time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC)

func row(id string, spend, revenue float64, conversions int64) domain.DailyMetric {
	return domain.DailyMetric{
		EntityID: id, EntityType: domain.EntityCampaign, Date: asOf,
		Spend: spend, Revenue: revenue, Impressions: 50000, Clicks: 1000,
		Conversions: conversions, Frequency: 1.5,
	}
}

func twoWinnersTwoLosers(conversions int64) *memory.Output {
	ds := &domain.Dataset{DailyMetrics: []domain.DailyMetric{
		row("camp-a", 10000, 40000, conversions),
		row("camp-b", 10000, 24000, conversions),
		row("camp-c", 10000, 26000, conversions),
		row("camp-d", 10000, 40000, conversions),
	}}
	return memory.Run(ds, memory.DefaultParams(), asOf)
}

func emptyOracle() *oracle.Output {
	return &oracle.Output{Risks: []oracle.Risk{}, OverallRiskLevel: oracle.LevelGreen, CriticalSeverity: 0.75}
}

func TestCandidates_ShiftBudgetPairs(t *testing.T) {
	mem := twoWinnersTwoLosers(20)
	require.Len(t, mem.Leaderboard.Winners, 2)
	require.Len(t, mem.Leaderboard.Losers, 2)

	cands, err := curiosity.Candidates(context.Background(), mem, emptyOracle(), curiosity.DefaultParams())
	require.NoError(t, err)

	require.Len(t, cands, 4, "one candidate per loser/winner pair")
	first := cands[0]
	assert.Equal(t, curiosity.ActionShiftBudget, first.Type)
	assert.Equal(t, "camp-b", first.TargetEntityID)
	require.NotNil(t, first.Payload.ShiftBudget)
	assert.Equal(t, 2000.0, first.Payload.ShiftBudget.Amount)
	// 2000 moved at marginal 4.0*0.8 instead of 2.4
	assert.InDelta(t, 1600, first.ExpectedImpact, 1e-9)
}

func TestRun_DedupesByTarget(t *testing.T) {
	out, err := curiosity.Run(context.Background(), twoWinnersTwoLosers(20), emptyOracle(), curiosity.DefaultParams())
	require.NoError(t, err)

	require.Len(t, out.TopActions, 2)
	assert.Equal(t, "camp-b", out.TopActions[0].TargetEntityID)
	assert.Equal(t, "camp-c", out.TopActions[1].TargetEntityID)
	assert.Equal(t, 2, out.OpportunitySummary.DuplicatesDropped)
	assert.Equal(t, 4, out.OpportunitySummary.CandidatesConsidered)
	assert.Equal(t, 4, out.OpportunitySummary.CandidatesByType[curiosity.ActionShiftBudget])
	assert.Equal(t, 0, out.OpportunitySummary.CandidatesByType[curiosity.ActionRetention])
}

func TestRun_IncreaseBudgetAndTruncation(t *testing.T) {
	out, err := curiosity.Run(context.Background(), twoWinnersTwoLosers(60), emptyOracle(), curiosity.DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, 2, out.OpportunitySummary.CandidatesByType[curiosity.ActionIncreaseBudget])
	assert.Len(t, out.TopActions, 3, "four distinct targets truncated to three")
	assert.Equal(t, 1, out.OpportunitySummary.Truncated)

	seen := map[string]bool{}
	for _, a := range out.TopActions {
		assert.False(t, seen[a.TargetEntityID], "entity %s repeated", a.TargetEntityID)
		seen[a.TargetEntityID] = true
	}
}

func TestRun_IncreaseBudgetBlockedByDecay(t *testing.T) {
	orc := emptyOracle()
	orc.Risks = []oracle.Risk{{Type: oracle.RiskROIDecay, EntityID: "camp-a", Severity: 0.6, PredictedHorizonDays: 10}}

	cands, err := curiosity.Candidates(context.Background(), twoWinnersTwoLosers(60), orc, curiosity.DefaultParams())
	require.NoError(t, err)

	for _, c := range cands {
		if c.Type == curiosity.ActionIncreaseBudget {
			assert.NotEqual(t, "camp-a", c.TargetEntityID)
		}
	}
}

func TestRun_IncreaseBudgetBlockedByFatigue(t *testing.T) {
	orc := emptyOracle()
	orc.Risks = []oracle.Risk{{Type: oracle.RiskCreativeFatigue, EntityID: "cr-1", CampaignID: "camp-d", Severity: 0.4}}

	cands, err := curiosity.Candidates(context.Background(), twoWinnersTwoLosers(60), orc, curiosity.DefaultParams())
	require.NoError(t, err)

	var targets []string
	for _, c := range cands {
		if c.Type == curiosity.ActionIncreaseBudget {
			targets = append(targets, c.TargetEntityID)
		}
	}
	assert.Equal(t, []string{"camp-a"}, targets)
}

func fatigueRisk(id string, severity float64) oracle.Risk {
	return oracle.Risk{
		Type: oracle.RiskCreativeFatigue, EntityID: id, EntityName: "video " + id,
		Severity: severity, Confidence: 0.9, PredictedHorizonDays: 10,
		ContributingMetrics: map[string]float64{"trailing_daily_spend": 300, "cvr_change_pct": -0.3, "cpa_change_pct": 0.4},
	}
}

func TestPauseCreative_SeverityFloor(t *testing.T) {
	orc := emptyOracle()
	orc.Risks = []oracle.Risk{fatigueRisk("cr-hot", 0.8), fatigueRisk("cr-mild", 0.45)}
	mem := memory.Run(&domain.Dataset{}, memory.DefaultParams(), asOf)

	out, err := curiosity.Run(context.Background(), mem, orc, curiosity.DefaultParams())
	require.NoError(t, err)

	require.Len(t, out.TopActions, 1, "never padded")
	a := out.TopActions[0]
	assert.Equal(t, curiosity.ActionPauseCreative, a.Type)
	assert.Equal(t, "cr-hot", a.TargetEntityID)
	assert.InDelta(t, 3000, a.ExpectedImpact, 1e-9)
	require.NotNil(t, a.Payload.PauseCreative)
	assert.Equal(t, 10, a.Payload.PauseCreative.HorizonDays)
}

func TestRetention_FromLTVDriftExample(t *testing.T) {
	ds := &domain.Dataset{
		Channels: []domain.Channel{{ID: "ch-1", Name: "Meta"}},
		Cohorts: []domain.Cohort{
			{ID: "coh-1", ChannelID: "ch-1", AcquisitionPeriod: asOf.AddDate(0, 0, -300), CustomerCount: 100, RevenueAt90Days: 12000},
			{ID: "coh-2", ChannelID: "ch-1", AcquisitionPeriod: asOf.AddDate(0, 0, -200), CustomerCount: 100, RevenueAt90Days: 12000},
			{ID: "coh-3", ChannelID: "ch-1", AcquisitionPeriod: asOf.AddDate(0, 0, -120), CustomerCount: 100, RevenueAt90Days: 10500},
		},
	}
	mem := memory.Run(ds, memory.DefaultParams(), asOf)
	orc, err := oracle.Run(context.Background(), ds, mem, oracle.DefaultParams(), asOf)
	require.NoError(t, err)
	require.Len(t, orc.Risks, 1)

	cands, err := curiosity.Candidates(context.Background(), mem, orc, curiosity.DefaultParams())
	require.NoError(t, err)

	require.Len(t, cands, 1)
	c := cands[0]
	assert.Equal(t, curiosity.ActionRetention, c.Type)
	assert.Equal(t, "ch-1", c.TargetEntityID)
	require.NotNil(t, c.Payload.Retention)
	assert.Equal(t, "coh-3", c.Payload.Retention.CohortID)
	// 15 per customer, 100 customers, half recovered
	assert.InDelta(t, 750, c.ExpectedImpact, 1e-9)
}

func TestRun_TieBreakByEntityID(t *testing.T) {
	risk := func(channel string) oracle.Risk {
		return oracle.Risk{
			Type: oracle.RiskLTVDrift, EntityID: channel, EntityName: channel,
			Severity: 0.6, Confidence: 0.5, PredictedHorizonDays: 20,
			ContributingMetrics: map[string]float64{"ltv_gap": 10, "customer_count": 100, "decline_pct": 0.2},
		}
	}
	orc := emptyOracle()
	orc.Risks = []oracle.Risk{risk("ch-zeta"), risk("ch-alpha"), risk("ch-mid")}
	mem := memory.Run(&domain.Dataset{}, memory.DefaultParams(), asOf)

	out, err := curiosity.Run(context.Background(), mem, orc, curiosity.DefaultParams())
	require.NoError(t, err)

	require.Len(t, out.TopActions, 3)
	assert.Equal(t, out.TopActions[0].Score, out.TopActions[2].Score)
	assert.Equal(t, "ch-alpha", out.TopActions[0].TargetEntityID)
	assert.Equal(t, "ch-mid", out.TopActions[1].TargetEntityID)
	assert.Equal(t, "ch-zeta", out.TopActions[2].TargetEntityID)
}

func TestRun_BoundedProperty(t *testing.T) {
	mem := memory.Run(&domain.Dataset{}, memory.DefaultParams(), asOf)
	for n := 0; n <= 8; n++ {
		orc := emptyOracle()
		for i := 0; i < n; i++ {
			orc.Risks = append(orc.Risks, fatigueRisk(fmt.Sprintf("cr-%d", i), 0.6))
		}
		out, err := curiosity.Run(context.Background(), mem, orc, curiosity.DefaultParams())
		require.NoError(t, err)
		assert.Len(t, out.TopActions, min(n, 3))
	}
}

func TestRun_CapsUnvalidatedMaxActions(t *testing.T) {
	mem := memory.Run(&domain.Dataset{}, memory.DefaultParams(), asOf)
	orc := emptyOracle()
	for i := 0; i < 6; i++ {
		orc.Risks = append(orc.Risks, fatigueRisk(fmt.Sprintf("cr-%d", i), 0.6))
	}
	p := curiosity.DefaultParams()
	p.MaxActions = 10

	out, err := curiosity.Run(context.Background(), mem, orc, p)
	require.NoError(t, err)
	assert.Len(t, out.TopActions, curiosity.MaxTopActions)
	assert.Equal(t, 3, out.OpportunitySummary.Truncated)
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := curiosity.Run(ctx, twoWinnersTwoLosers(20), emptyOracle(), curiosity.DefaultParams())
	assert.ErrorIs(t, err, context.Canceled)
}
