package curiosity

import (
	"fmt"

	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/engine/memory"
	"github.com/ignite/perf-brain/internal/engine/oracle"
	"github.com/ignite/perf-brain/internal/pkg/stats"
)

// generator produces unscored candidates from the two upstream outputs.
type generator func(mem *memory.Output, orc *oracle.Output, p Params) []Action

var generators = []struct {
	action ActionType
	gen    generator
}{
	{ActionShiftBudget, shiftBudget},
	{ActionPauseCreative, pauseCreative},
	{ActionIncreaseBudget, increaseBudget},
	{ActionRetention, retention},
}

// shiftBudget pairs every loser with every winner and proposes moving a
// fixed share of the loser's spend, valued at the winner's marginal ROAS
// minus what the loser was returning on it.
func shiftBudget(mem *memory.Output, orc *oracle.Output, p Params) []Action {
	var out []Action
	for _, loser := range mem.Leaderboard.Losers {
		amount := loser.Spend * p.ShiftFraction
		if amount <= 0 {
			continue
		}
		horizon := 0
		if decays := orc.RisksFor(oracle.RiskROIDecay, loser.EntityID); len(decays) > 0 {
			horizon = decays[0].PredictedHorizonDays
		}
		for _, winner := range mem.Leaderboard.Winners {
			marginal := winner.Roas
			if in, ok := mem.Insight(winner.EntityID); ok && in.MarginalRoas != nil {
				marginal = *in.MarginalRoas
			}
			impact := amount * (marginal - loser.Roas)
			if impact <= 0 {
				continue
			}
			out = append(out, Action{
				Type:             ActionShiftBudget,
				TargetEntityID:   loser.EntityID,
				TargetEntityType: loser.EntityType,
				TargetName:       loser.Name,
				ExpectedImpact:   stats.Round(impact, 2),
				Rationale: fmt.Sprintf("Move %.2f (%.0f%% of spend) from %s at ROAS %.2f to %s at marginal ROAS %.2f.",
					amount, p.ShiftFraction*100, loser.Name, loser.Roas, winner.Name, marginal),
				Confidence:  spendConfidence(min(loser.Spend, winner.Spend), p),
				HorizonDays: horizon,
				Payload: Payload{ShiftBudget: &ShiftBudgetPayload{
					FromEntityID:   loser.EntityID,
					ToEntityID:     winner.EntityID,
					Amount:         stats.Round(amount, 2),
					FromRoas:       stats.Round(loser.Roas, 4),
					ToMarginalRoas: stats.Round(marginal, 4),
				}},
			})
		}
	}
	return out
}

// pauseCreative turns fatigue risks at or above the severity floor into a
// pause, valued as the spend the creative would burn before it is spent.
func pauseCreative(_ *memory.Output, orc *oracle.Output, p Params) []Action {
	var out []Action
	for _, r := range orc.Risks {
		if r.Type != oracle.RiskCreativeFatigue || r.Severity < p.PauseSeverityFloor {
			continue
		}
		daily := r.Metric("trailing_daily_spend")
		saved := daily * float64(r.PredictedHorizonDays)
		out = append(out, Action{
			Type:             ActionPauseCreative,
			TargetEntityID:   r.EntityID,
			TargetEntityType: domain.EntityCreative,
			TargetName:       r.EntityName,
			ExpectedImpact:   stats.Round(saved, 2),
			Rationale: fmt.Sprintf("Pause %s: CVR changed %.1f%% and CPA %.1f%% week over week; saves about %.2f over %d days.",
				r.EntityName, r.Metric("cvr_change_pct")*100, r.Metric("cpa_change_pct")*100, saved, r.PredictedHorizonDays),
			Confidence:  r.Confidence,
			HorizonDays: r.PredictedHorizonDays,
			Payload: Payload{PauseCreative: &PauseCreativePayload{
				CreativeID:  r.EntityID,
				CampaignID:  r.CampaignID,
				DailySpend:  daily,
				HorizonDays: r.PredictedHorizonDays,
			}},
		})
	}
	return out
}

// increaseBudget scales winners that have enough conversions, headroom on
// frequency, a profitable next dollar and no decay or fatigue signal.
func increaseBudget(mem *memory.Output, orc *oracle.Output, p Params) []Action {
	var out []Action
	for _, w := range mem.Leaderboard.Winners {
		in, ok := mem.Insight(w.EntityID)
		if !ok || in.MarginalRoas == nil || *in.MarginalRoas <= 1 {
			continue
		}
		if in.Conversions < p.MinScaleConversions || in.Frequency >= p.MaxScaleFrequency {
			continue
		}
		if saturated(in, orc) {
			continue
		}
		inc := in.Spend * p.IncreaseFraction
		revenue := inc * *in.MarginalRoas
		conf := spendConfidence(in.Spend, p)
		if in.LTVConfidence != memory.LTVConfidenceHigh {
			conf *= 0.8
		}
		out = append(out, Action{
			Type:             ActionIncreaseBudget,
			TargetEntityID:   in.EntityID,
			TargetEntityType: in.EntityType,
			TargetName:       in.Name,
			ExpectedImpact:   stats.Round(revenue, 2),
			Rationale: fmt.Sprintf("Scale %s by %.2f: ROAS %.2f on %d conversions with no sign of saturation.",
				in.Name, inc, *in.BlendedRoas, in.Conversions),
			Confidence: stats.Round(conf, 4),
			Payload: Payload{IncreaseBudget: &IncreaseBudgetPayload{
				EntityID:         in.EntityID,
				CurrentSpend:     stats.Round(in.Spend, 2),
				IncrementalSpend: stats.Round(inc, 2),
				MarginalRoas:     stats.Round(*in.MarginalRoas, 4),
			}},
		})
	}
	return out
}

func saturated(in memory.EntityInsight, orc *oracle.Output) bool {
	for _, r := range orc.Risks {
		switch r.Type {
		case oracle.RiskROIDecay:
			if r.EntityID == in.EntityID {
				return true
			}
		case oracle.RiskCreativeFatigue:
			if (in.EntityType == domain.EntityCampaign && r.CampaignID == in.EntityID) ||
				(in.EntityType == domain.EntityChannel && r.ChannelID == in.EntityID) {
				return true
			}
		}
	}
	return false
}

// retention answers an LTV drift with a lifecycle program on the channel,
// valued as the share of the per-customer LTV gap expected to be recovered.
func retention(_ *memory.Output, orc *oracle.Output, p Params) []Action {
	var out []Action
	for _, r := range orc.Risks {
		if r.Type != oracle.RiskLTVDrift {
			continue
		}
		gap := r.Metric("ltv_gap")
		customers := int64(r.Metric("customer_count"))
		impact := gap * float64(customers) * p.RetentionRecoveryRate
		out = append(out, Action{
			Type:             ActionRetention,
			TargetEntityID:   r.EntityID,
			TargetEntityType: domain.EntityChannel,
			TargetName:       r.EntityName,
			ExpectedImpact:   stats.Round(impact, 2),
			Rationale: fmt.Sprintf("Launch a retention program for %s customers: projected 90-day LTV fell %.1f%% to %.2f against %.2f.",
				r.EntityName, r.Metric("decline_pct")*100, r.Metric("latest_ltv"), r.Metric("baseline_ltv")),
			Confidence:  r.Confidence,
			HorizonDays: r.PredictedHorizonDays,
			Payload: Payload{Retention: &RetentionPayload{
				ChannelID:    r.EntityID,
				CohortID:     r.CohortID,
				LTVGap:       gap,
				Customers:    customers,
				RecoveryRate: p.RetentionRecoveryRate,
			}},
		})
	}
	return out
}

func spendConfidence(spend float64, p Params) float64 {
	return stats.Round(stats.Saturation(spend, p.ConfidenceSpendHalf), 4)
}
