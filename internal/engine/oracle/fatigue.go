package oracle

import (
	"context"
	"time"

	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/pkg/stats"
)

const fatigueStage = "oracle.fatigue"

// creativeWindow aggregates a run of creative days.
type creativeWindow struct {
	days        int
	spend       float64
	impressions int64
	clicks      int64
	conversions int64
	cvr         float64
	cpa         float64
	frequency   float64
	dailyCVR    []float64
}

func summarizeCreative(rows []domain.CreativeDailyMetric) creativeWindow {
	w := creativeWindow{days: len(rows)}
	var rowCVR, rowCPA, rowFreq, freqWeight float64
	var cpaRows int
	for _, r := range rows {
		w.spend += r.Spend
		w.impressions += r.Impressions
		w.clicks += r.Clicks
		w.conversions += r.Conversions
		rowCVR += r.CVR
		if r.CPA > 0 {
			rowCPA += r.CPA
			cpaRows++
		}
		rowFreq += r.Frequency
		freqWeight += r.Frequency * float64(r.Impressions)

		if r.Clicks > 0 {
			w.dailyCVR = append(w.dailyCVR, float64(r.Conversions)/float64(r.Clicks))
		} else {
			w.dailyCVR = append(w.dailyCVR, r.CVR)
		}
	}
	if w.days == 0 {
		return w
	}
	// Prefer rates recomputed from volumes; fall back to the platform
	// reported daily rates when volumes are missing.
	if w.clicks > 0 {
		w.cvr = float64(w.conversions) / float64(w.clicks)
	} else {
		w.cvr = rowCVR / float64(w.days)
	}
	switch {
	case w.conversions > 0:
		w.cpa = w.spend / float64(w.conversions)
	case cpaRows > 0:
		w.cpa = rowCPA / float64(cpaRows)
	}
	if w.impressions > 0 {
		w.frequency = freqWeight / float64(w.impressions)
	} else {
		w.frequency = rowFreq / float64(w.days)
	}
	return w
}

// detectFatigue compares each creative's trailing window with the window
// before it, both ending at the creative's latest observed day.
func detectFatigue(ctx context.Context, ds *domain.Dataset, idx *domain.Index, p Params, asOf time.Time) ([]Risk, []domain.EntityError, error) {
	fp := p.Fatigue
	var risks []Risk
	var abstentions []domain.EntityError

	for _, series := range groupCreativeMetrics(ds.CreativeMetrics, asOf) {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		id := series[0].CreativeID
		if cr, ok := idx.Creatives[id]; ok && cr.Status == domain.CreativeArchived {
			continue
		}
		if msg := firstInvalidCreativeRow(series); msg != "" {
			abstentions = append(abstentions, domain.NewEntityError(domain.ErrComputation, fatigueStage, id, "%s", msg))
			continue
		}
		if len(series) < fp.MinHistoryDays {
			abstentions = append(abstentions, domain.NewEntityError(domain.ErrInsufficientData, fatigueStage, id,
				"%d days of history, need %d", len(series), fp.MinHistoryDays))
			continue
		}

		end := domain.Day(series[len(series)-1].Date)
		trailStart := end.AddDate(0, 0, -(fp.WindowDays - 1))
		priorStart := trailStart.AddDate(0, 0, -fp.WindowDays)
		var trailRows, priorRows []domain.CreativeDailyMetric
		for _, r := range series {
			d := domain.Day(r.Date)
			switch {
			case !d.Before(trailStart):
				trailRows = append(trailRows, r)
			case !d.Before(priorStart):
				priorRows = append(priorRows, r)
			}
		}
		trail := summarizeCreative(trailRows)
		prior := summarizeCreative(priorRows)

		if trail.impressions < fp.MinImpressions || trail.conversions+prior.conversions < fp.MinConversions {
			abstentions = append(abstentions, domain.NewEntityError(domain.ErrInsufficientData, fatigueStage, id,
				"below volume floor: %d impressions, %d conversions", trail.impressions, trail.conversions+prior.conversions))
			continue
		}

		var cvrDrop, cpaRise float64
		if prior.days > 0 && prior.cvr > 0 {
			cvrDrop = (prior.cvr - trail.cvr) / prior.cvr
		}
		if prior.days > 0 && prior.cpa > 0 && trail.cpa > 0 {
			cpaRise = (trail.cpa - prior.cpa) / prior.cpa
		}

		overshoot := 0.0
		if cvrDrop > fp.CVRDropPct {
			overshoot = max(overshoot, cvrDrop/fp.CVRDropPct)
		}
		if cpaRise > fp.CPARisePct {
			overshoot = max(overshoot, cpaRise/fp.CPARisePct)
		}
		if trail.frequency > fp.MaxFrequency {
			overshoot = max(overshoot, trail.frequency/fp.MaxFrequency)
		}
		if overshoot == 0 {
			continue
		}

		// Steepness blends distance past threshold with the in-window CVR
		// trend; a steeper decline means fatigue completes sooner.
		ref := prior.cvr
		if ref == 0 {
			ref = trail.cvr
		}
		trend := 0.0
		if ref > 0 {
			relPerWindow := -stats.Slope(trail.dailyCVR) * float64(fp.WindowDays) / ref
			trend = stats.Clamp01(relPerWindow / fp.CVRDropPct)
		}
		steepness := 0.6*stats.Clamp01((overshoot-1)/2) + 0.4*trend

		totalImpr := float64(trail.impressions + prior.impressions)
		totalConv := float64(trail.conversions + prior.conversions)
		confidence := 0.5*stats.Saturation(totalImpr, p.ConfidenceImpressionsHalf) +
			0.5*stats.Saturation(totalConv, p.ConfidenceConversionsHalf)

		risks = append(risks, Risk{
			Type:                 RiskCreativeFatigue,
			EntityID:             id,
			EntityType:           domain.EntityCreative,
			EntityName:           idx.Name(id, domain.EntityCreative),
			ChannelID:            idx.ChannelOf(id, domain.EntityCreative),
			CampaignID:           idx.Creatives[id].CampaignID,
			Severity:             severityFor(overshoot),
			Confidence:           round4(confidence),
			PredictedHorizonDays: horizonBetween(fp.MinHorizonDays, fp.MaxHorizonDays, steepness),
			ContributingMetrics: map[string]float64{
				"trailing_cvr":         round4(trail.cvr),
				"prior_cvr":            round4(prior.cvr),
				"cvr_change_pct":       round4(-cvrDrop),
				"trailing_cpa":         stats.Round(trail.cpa, 2),
				"prior_cpa":            stats.Round(prior.cpa, 2),
				"cpa_change_pct":       round4(cpaRise),
				"trailing_frequency":   stats.Round(trail.frequency, 2),
				"trailing_impressions": float64(trail.impressions),
				"conversions":          totalConv,
				"trailing_daily_spend": stats.Round(stats.SafeDiv(trail.spend, float64(trail.days)), 2),
				"cvr_trend_per_day":    round4(stats.Slope(trail.dailyCVR)),
				"history_days":         float64(len(series)),
			},
		})
	}
	return risks, abstentions, nil
}

func firstInvalidCreativeRow(rows []domain.CreativeDailyMetric) string {
	for _, r := range rows {
		if msg := r.Problem(); msg != "" {
			return msg
		}
	}
	return ""
}

// groupCreativeMetrics returns per-creative series on or before asOf,
// ordered by creative id and date. Duplicate days keep the first row.
func groupCreativeMetrics(rows []domain.CreativeDailyMetric, asOf time.Time) [][]domain.CreativeDailyMetric {
	limit := domain.Day(asOf)
	byID := make(map[string][]domain.CreativeDailyMetric)
	var ids []string
	for _, r := range rows {
		if domain.Day(r.Date).After(limit) {
			continue
		}
		if _, ok := byID[r.CreativeID]; !ok {
			ids = append(ids, r.CreativeID)
		}
		byID[r.CreativeID] = append(byID[r.CreativeID], r)
	}
	sortStrings(ids)

	out := make([][]domain.CreativeDailyMetric, 0, len(ids))
	for _, id := range ids {
		series := byID[id]
		sortByDate(series, func(r domain.CreativeDailyMetric) time.Time { return r.Date })
		out = append(out, dedupeDays(series, func(r domain.CreativeDailyMetric) time.Time { return r.Date }))
	}
	return out
}
