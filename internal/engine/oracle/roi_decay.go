package oracle

import (
	"context"
	"math"
	"time"

	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/engine/memory"
	"github.com/ignite/perf-brain/internal/pkg/stats"
)

const decayStage = "oracle.roi_decay"

type entityKey struct {
	id string
	t  domain.EntityType
}

type spendWindow struct {
	days        int
	spend       float64
	revenue     float64
	conversions int64
}

func (w spendWindow) roas() float64 { return stats.SafeDiv(w.revenue, w.spend) }

// detectROIDecay compares each channel and campaign's current-window ROAS
// with its own rolling baseline immediately before it.
func detectROIDecay(ctx context.Context, ds *domain.Dataset, idx *domain.Index, mem *memory.Output, p Params, asOf time.Time) ([]Risk, []domain.EntityError, error) {
	dp := p.ROIDecay
	portfolio := 0.0
	if mem != nil {
		portfolio = mem.OverallRoas
	}

	var risks []Risk
	var abstentions []domain.EntityError
	for _, s := range groupDailyMetrics(ds.DailyMetrics, asOf) {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		id := s.key.id
		if bad := firstInvalidRow(s.rows); bad != "" {
			abstentions = append(abstentions, domain.NewEntityError(domain.ErrComputation, decayStage, id, "%s", bad))
			continue
		}

		end := domain.Day(s.rows[len(s.rows)-1].Date)
		curStart := end.AddDate(0, 0, -(dp.CurrentDays - 1))
		baseStart := curStart.AddDate(0, 0, -dp.BaselineDays)

		var cur, base spendWindow
		for _, r := range s.rows {
			d := domain.Day(r.Date)
			var w *spendWindow
			switch {
			case !d.Before(curStart):
				w = &cur
			case !d.Before(baseStart):
				w = &base
			default:
				continue
			}
			w.days++
			w.spend += r.Spend
			w.revenue += r.Revenue
			w.conversions += r.Conversions
		}

		if cur.days < dp.MinCurrentDays || base.days < dp.MinBaselineDays {
			abstentions = append(abstentions, domain.NewEntityError(domain.ErrInsufficientData, decayStage, id,
				"%d current and %d baseline days, need %d and %d", cur.days, base.days, dp.MinCurrentDays, dp.MinBaselineDays))
			continue
		}
		if cur.spend == 0 || base.spend == 0 || base.revenue == 0 {
			abstentions = append(abstentions, domain.NewEntityError(domain.ErrInsufficientData, decayStage, id,
				"no spend or revenue to compare"))
			continue
		}

		baseRoas, curRoas := base.roas(), cur.roas()
		decline := (baseRoas - curRoas) / baseRoas
		if decline <= dp.DropPct {
			continue
		}

		severity := severityFor(decline / dp.DropPct)
		belowPortfolio := portfolio > 0 && curRoas < portfolio
		if belowPortfolio {
			severity = round4(stats.Clamp01(severity + 0.1))
		}

		// Days until ROAS reaches break-even at the observed rate, measured
		// between the midpoints of the two windows.
		horizon := 1
		gapDays := float64(cur.days+base.days) / 2
		dailyDrop := (baseRoas - curRoas) / gapDays
		if curRoas > 1 {
			horizon = int(math.Ceil((curRoas-1)*gapDays/(baseRoas-curRoas) - 1e-9))
		}
		horizon = int(stats.Clamp(float64(horizon), 1, float64(dp.MaxHorizonDays)))

		coverage := float64(cur.days+base.days) / float64(dp.CurrentDays+dp.BaselineDays)
		confidence := 0.5*stats.Clamp01(coverage) +
			0.5*stats.Saturation(float64(cur.conversions+base.conversions), p.ConfidenceConversionsHalf)

		metrics := map[string]float64{
			"baseline_roas":     round4(baseRoas),
			"current_roas":      round4(curRoas),
			"decline_pct":       round4(decline),
			"baseline_days":     float64(base.days),
			"current_days":      float64(cur.days),
			"current_spend":     stats.Round(cur.spend, 2),
			"current_revenue":   stats.Round(cur.revenue, 2),
			"daily_roas_change": round4(-dailyDrop),
		}
		if portfolio > 0 {
			metrics["portfolio_roas"] = round4(portfolio)
		}

		risks = append(risks, Risk{
			Type:                 RiskROIDecay,
			EntityID:             id,
			EntityType:           s.key.t,
			EntityName:           idx.Name(id, s.key.t),
			ChannelID:            idx.ChannelOf(id, s.key.t),
			Severity:             severity,
			Confidence:           round4(confidence),
			PredictedHorizonDays: horizon,
			ContributingMetrics:  metrics,
		})
	}
	return risks, abstentions, nil
}

type dailySeries struct {
	key  entityKey
	rows []domain.DailyMetric
}

// groupDailyMetrics returns per-entity series on or before asOf ordered by
// entity type, id and date.
func groupDailyMetrics(rows []domain.DailyMetric, asOf time.Time) []dailySeries {
	limit := domain.Day(asOf)
	byKey := make(map[entityKey][]domain.DailyMetric)
	var keys []entityKey
	for _, r := range rows {
		if domain.Day(r.Date).After(limit) {
			continue
		}
		k := entityKey{id: r.EntityID, t: r.EntityType}
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], r)
	}
	sortKeys(keys)

	out := make([]dailySeries, 0, len(keys))
	for _, k := range keys {
		series := byKey[k]
		sortByDate(series, func(r domain.DailyMetric) time.Time { return r.Date })
		out = append(out, dailySeries{key: k, rows: dedupeDays(series, func(r domain.DailyMetric) time.Time { return r.Date })})
	}
	return out
}

func sortKeys(keys []entityKey) {
	sortSlice(keys, func(a, b entityKey) bool {
		if a.t != b.t {
			return a.t < b.t
		}
		return a.id < b.id
	})
}

func firstInvalidRow(rows []domain.DailyMetric) string {
	for _, r := range rows {
		if !stats.IsFinite(r.Spend) || !stats.IsFinite(r.Revenue) || r.Spend < 0 || r.Revenue < 0 {
			return "invalid spend or revenue on " + r.Date.Format("2006-01-02")
		}
	}
	return ""
}
