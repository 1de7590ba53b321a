package oracle

import (
	"context"
	"time"

	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/pkg/stats"
)

const driftStage = "oracle.ltv_drift"

const ltvDay = 90

// detectLTVDrift compares the latest cohort of every channel with the
// cohorts acquired before it. A channel needs MinCohorts comparable cohorts;
// below that the detector abstains for the channel instead of guessing.
func detectLTVDrift(ctx context.Context, ds *domain.Dataset, idx *domain.Index, p Params, asOf time.Time) ([]Risk, []domain.EntityError, error) {
	lp := p.LTVDrift
	var risks []Risk
	var abstentions []domain.EntityError

	for _, group := range groupCohorts(ds.Cohorts, asOf) {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		channelID := group[0].ChannelID

		var comparable []domain.Cohort
		for _, c := range group {
			if msg := c.Problem(); msg != "" {
				abstentions = append(abstentions, domain.NewEntityError(domain.ErrComputation, driftStage, c.ID, "%s", msg))
				continue
			}
			if c.CustomerCount > 0 && (len(c.RevenueTrend) > 0 || c.RevenueAt90Days > 0) {
				comparable = append(comparable, c)
			}
		}
		if len(comparable) < lp.MinCohorts {
			abstentions = append(abstentions, domain.NewEntityError(domain.ErrInsufficientData, driftStage, channelID,
				"insufficient cohorts: %d comparable, need %d", len(comparable), lp.MinCohorts))
			continue
		}

		latest := comparable[len(comparable)-1]
		priors := comparable[:len(comparable)-1]
		if len(priors) > lp.MaxPriorCohorts {
			priors = priors[len(priors)-lp.MaxPriorCohorts:]
		}

		latestLTV, ok := projectLTV(latest, priors, asOf)
		if !ok {
			abstentions = append(abstentions, domain.NewEntityError(domain.ErrInsufficientData, driftStage, channelID,
				"cohort %s has no usable revenue trend", latest.ID))
			continue
		}
		var priorLTVs []float64
		for _, c := range priors {
			if v, ok := projectLTV(c, nil, asOf); ok {
				priorLTVs = append(priorLTVs, v)
			}
		}
		if len(priorLTVs) == 0 {
			abstentions = append(abstentions, domain.NewEntityError(domain.ErrInsufficientData, driftStage, channelID,
				"insufficient cohorts: no prior cohort with a usable revenue trend"))
			continue
		}

		baseline := stats.Mean(priorLTVs)
		if baseline <= 0 {
			continue
		}
		decline := (baseline - latestLTV) / baseline
		if decline <= lp.DropPct {
			continue
		}

		age := latest.AgeDays(asOf)
		horizon := int(stats.Clamp(float64(ltvDay-age), 14, float64(lp.HorizonDays)))
		depth := stats.Clamp01(float64(len(priorLTVs)) / float64(lp.MaxPriorCohorts))
		confidence := stats.Saturation(float64(latest.CustomerCount), p.ConfidenceCustomersHalf) * (0.5 + 0.5*depth)

		risks = append(risks, Risk{
			Type:                 RiskLTVDrift,
			EntityID:             channelID,
			EntityType:           domain.EntityChannel,
			EntityName:           idx.Name(channelID, domain.EntityChannel),
			ChannelID:            channelID,
			CohortID:             latest.ID,
			Severity:             severityFor(decline / lp.DropPct),
			Confidence:           round4(confidence),
			PredictedHorizonDays: horizon,
			ContributingMetrics: map[string]float64{
				"latest_ltv":      stats.Round(latestLTV, 2),
				"baseline_ltv":    stats.Round(baseline, 2),
				"ltv_gap":         stats.Round(baseline-latestLTV, 2),
				"decline_pct":     round4(decline),
				"customer_count":  float64(latest.CustomerCount),
				"prior_cohorts":   float64(len(priorLTVs)),
				"latest_age_days": float64(age),
			},
		})
	}
	return risks, abstentions, nil
}

// projectLTV estimates 90-day revenue per customer. Matured cohorts use
// their observed value. Younger ones scale their latest trend point by how
// much the reference cohorts grew from that day to day 90, or linearly when
// no reference covers that day.
func projectLTV(c domain.Cohort, refs []domain.Cohort, asOf time.Time) (float64, bool) {
	if c.CustomerCount <= 0 {
		return 0, false
	}
	customers := float64(c.CustomerCount)
	if c.RevenueAt90Days > 0 && c.AgeDays(asOf) >= ltvDay {
		return c.RevenueAt90Days / customers, true
	}

	point, ok := c.LatestPoint()
	if !ok {
		if c.RevenueAt90Days > 0 {
			return c.RevenueAt90Days / customers, true
		}
		return 0, false
	}
	if point.Day >= ltvDay {
		v, _ := c.RevenueAt(ltvDay)
		return v / customers, true
	}
	if point.Day <= 0 {
		return 0, false
	}

	var ratios []float64
	for _, r := range refs {
		at90, ok90 := r.RevenueAt(ltvDay)
		atDay, okDay := r.RevenueAt(point.Day)
		if ok90 && okDay && atDay > 0 {
			ratios = append(ratios, at90/atDay)
		}
	}
	if len(ratios) > 0 {
		return point.Revenue * stats.Mean(ratios) / customers, true
	}
	return point.Revenue * float64(ltvDay) / float64(point.Day) / customers, true
}

// groupCohorts returns cohorts acquired on or before asOf grouped by
// channel, each group ordered oldest first.
func groupCohorts(cohorts []domain.Cohort, asOf time.Time) [][]domain.Cohort {
	limit := domain.Day(asOf)
	byChannel := make(map[string][]domain.Cohort)
	var ids []string
	for _, c := range cohorts {
		if domain.Day(c.AcquisitionPeriod).After(limit) {
			continue
		}
		if _, ok := byChannel[c.ChannelID]; !ok {
			ids = append(ids, c.ChannelID)
		}
		byChannel[c.ChannelID] = append(byChannel[c.ChannelID], c)
	}
	sortStrings(ids)

	out := make([][]domain.Cohort, 0, len(ids))
	for _, id := range ids {
		g := byChannel[id]
		sortSlice(g, func(a, b domain.Cohort) bool {
			if !a.AcquisitionPeriod.Equal(b.AcquisitionPeriod) {
				return a.AcquisitionPeriod.Before(b.AcquisitionPeriod)
			}
			return a.ID < b.ID
		})
		out = append(out, g)
	}
	return out
}
