// Package face assembles the outputs of the memory, oracle and curiosity
// stages into the BrainState snapshot and writes its persona narrative.
// It selects and formats; it does not compute new figures.
package face

import (
	"fmt"
	"time"

	"github.com/ignite/perf-brain/internal/engine/curiosity"
	"github.com/ignite/perf-brain/internal/engine/memory"
	"github.com/ignite/perf-brain/internal/engine/oracle"
)

const (
	severityCritical = "critical"
	severityHigh     = "high"
	severityModerate = "moderate"
)

// Input is everything FACE needs for one snapshot.
type Input struct {
	OrganizationID string
	AsOf           time.Time
	Memory         *memory.Output
	Oracle         *oracle.Output
	Curiosity      *curiosity.Output
	Persona        Persona
	Params         Params
	// DataEmpty is set when the dataset held no metric rows at all.
	DataEmpty     bool
	Stale         bool
	DataFreshness time.Time
}

// Build assembles the snapshot body. The envelope (ID, Version,
// ComputedAt) is left for the caller to set at persist time.
func Build(n *Narrator, in Input) (*BrainState, error) {
	if in.Memory == nil || in.Oracle == nil || in.Curiosity == nil {
		return nil, fmt.Errorf("face: all stage outputs are required")
	}
	persona := in.Persona
	if persona == "" {
		persona = in.Params.Persona
	}

	mem, orc, cur := in.Memory, in.Oracle, in.Curiosity
	st := &BrainState{
		OrganizationID: in.OrganizationID,
		AsOf:           in.AsOf,
		Persona:        persona,
		Stale:          in.Stale,
		DataFreshness:  in.DataFreshness,
		Summary: Summary{
			Spend:            roundTo(mem.TotalSpend, 2),
			Revenue:          roundTo(mem.TotalRevenue, 2),
			OverallRoas:      roundTo(mem.OverallRoas, 2),
			OverallRiskLevel: orc.OverallRiskLevel,
			RankedEntities:   mem.RankedCount,
			Winners:          len(mem.Leaderboard.Winners),
			Losers:           len(mem.Leaderboard.Losers),
			RiskCount:        len(orc.Risks),
			CriticalRisks:    criticalCount(orc),
		},
		Leaderboard: mem.Leaderboard,
		RiskCards:   riskCards(orc, in.Params),
		TopActions:  actionCards(cur),
		Memory:      mem,
		Oracle:      orc,
		Curiosity:   cur,
	}
	st.Summary.SpendText = formatMoney(st.Summary.Spend)
	st.Summary.RevenueText = formatMoney(st.Summary.Revenue)
	st.Summary.RoasText = formatRatio(st.Summary.OverallRoas)
	st.Badges = badges(in)
	st.Degraded = len(st.Badges) > 0

	text, err := n.Render(st, persona)
	if err != nil {
		return nil, err
	}
	st.Narrative = text
	return st, nil
}

func badges(in Input) []Badge {
	mem, orc := in.Memory, in.Oracle
	out := []Badge{}
	if in.DataEmpty || mem.RankedCount == 0 {
		out = append(out, Badge{BadgeInsufficientData, "No spend data in the lookback window; figures are placeholders."})
	} else if mem.LowSampleSize {
		out = append(out, Badge{BadgeLowSampleSize,
			fmt.Sprintf("Only %d ranked %s; winners and losers are not assigned.", mem.RankedCount, plural(mem.RankedCount, "entity", "entities"))})
	} else if mem.ZeroBaseline {
		out = append(out, Badge{BadgeZeroBaseline, "No revenue was attributed in the lookback window; every entity is neutral."})
	}
	if in.Stale {
		out = append(out, Badge{BadgeStaleData, "Data was last refreshed on " + in.DataFreshness.Format("2006-01-02") + "."})
	}
	low := 0
	for _, e := range mem.ChannelInsights {
		if e.Ranked() && e.LTVConfidence == memory.LTVConfidenceLow {
			low++
		}
	}
	if low > 0 {
		out = append(out, Badge{BadgeLTVLowConfidence,
			fmt.Sprintf("%d ranked %s lack cohort history; LTV-adjusted ROAS equals blended ROAS.", low, plural(low, "entity", "entities"))})
	}
	if n := len(mem.Exclusions); n > 0 {
		out = append(out, Badge{BadgeExcludedEntities,
			fmt.Sprintf("%d %s excluded for invalid input.", n, plural(n, "record was", "records were"))})
	}
	if n := len(orc.Abstentions); n > 0 {
		out = append(out, Badge{BadgeDetectorAbstained,
			fmt.Sprintf("Risk detectors abstained on %d %s with too little history or invalid input.", n, plural(n, "entity", "entities"))})
	}
	return out
}

func criticalCount(orc *oracle.Output) int {
	n := 0
	for _, r := range orc.Risks {
		if orc.Critical(r) {
			n++
		}
	}
	return n
}

func riskCards(orc *oracle.Output, p Params) []RiskCard {
	cards := []RiskCard{}
	for _, r := range orc.Risks {
		if len(cards) == p.MaxRiskCards {
			break
		}
		label := severityModerate
		switch {
		case orc.Critical(r):
			label = severityCritical
		case r.Severity >= 0.6:
			label = severityHigh
		}
		cards = append(cards, RiskCard{
			Type:                 r.Type,
			EntityID:             r.EntityID,
			EntityName:           r.EntityName,
			Severity:             roundTo(r.Severity, 2),
			SeverityLabel:        label,
			Confidence:           roundTo(r.Confidence, 2),
			LowConfidence:        r.Confidence < p.LowConfidenceBelow,
			PredictedHorizonDays: r.PredictedHorizonDays,
			Headline:             headline(r),
		})
	}
	return cards
}

func headline(r oracle.Risk) string {
	switch r.Type {
	case oracle.RiskCreativeFatigue:
		if drop := -r.Metric("cvr_change_pct"); drop > 0 {
			return "CVR down " + formatPct(drop) + " week over week"
		}
		if rise := r.Metric("cpa_change_pct"); rise > 0 {
			return "CPA up " + formatPct(rise) + " week over week"
		}
		return "Frequency at " + fmt.Sprintf("%.2f", r.Metric("trailing_frequency"))
	case oracle.RiskROIDecay:
		return fmt.Sprintf("ROAS down %s against its %d-day baseline", formatPct(r.Metric("decline_pct")), int(r.Metric("baseline_days")))
	case oracle.RiskLTVDrift:
		return "Projected 90-day LTV down " + formatPct(r.Metric("decline_pct"))
	}
	return string(r.Type)
}

func actionCards(cur *curiosity.Output) []ActionCard {
	cards := make([]ActionCard, 0, len(cur.TopActions))
	for _, a := range cur.TopActions {
		cards = append(cards, ActionCard{
			ActionID:           a.Key(),
			ActionType:         a.Type,
			TargetEntityID:     a.TargetEntityID,
			TargetName:         a.TargetName,
			ExpectedImpact:     roundTo(a.ExpectedImpact, 2),
			ExpectedImpactText: formatMoney(a.ExpectedImpact),
			Rationale:          a.Rationale,
			Score:              a.Score,
		})
	}
	return cards
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
