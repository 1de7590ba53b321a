// Package memory attributes spend and revenue to channels and campaigns,
// adjusts ROAS by cohort lifetime value and ranks entities into winner,
// loser and neutral tiers relative to the portfolio ROAS of the cycle.
package memory

import (
	"sort"
	"time"

	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/pkg/stats"
)

const stage = "memory"

// tierEpsilon absorbs float error at the threshold boundary so that an
// entity sitting exactly on 1.15x or 0.85x lands in the outer tier.
const tierEpsilon = 1e-9

type accumulator struct {
	id          string
	entityType  domain.EntityType
	spend       float64
	revenue     float64
	impressions int64
	clicks      int64
	conversions int64
	freqWeight  float64
	days        int
	seen        map[time.Time]bool
	invalid     *domain.EntityError
}

// Run computes the MEMORY output for the lookback window ending on asOf.
func Run(ds *domain.Dataset, p Params, asOf time.Time) *Output {
	idx := domain.NewIndex(ds)
	window := domain.LookbackWindow(asOf, p.LookbackDays)
	level := rankLevel(ds, window)

	out := &Output{
		RankLevel:         level,
		Window:            window,
		MinRankedEntities: p.MinRankedEntities,
		ChannelInsights:   []EntityInsight{},
		Leaderboard:       emptyLeaderboard(),
		Exclusions:        []domain.EntityError{},
	}

	accs := aggregate(ds, window, level)
	factors, cohortErrs := ltvFactors(ds, p, asOf)
	out.Exclusions = append(out.Exclusions, cohortErrs...)

	var rankedSpend, rankedRevenue float64
	for _, acc := range accs {
		if acc.invalid != nil {
			out.Exclusions = append(out.Exclusions, *acc.invalid)
			continue
		}
		in := EntityInsight{
			EntityID:      acc.id,
			EntityType:    acc.entityType,
			ChannelID:     idx.ChannelOf(acc.id, acc.entityType),
			Name:          idx.Name(acc.id, acc.entityType),
			Spend:         acc.spend,
			Revenue:       acc.revenue,
			Impressions:   acc.impressions,
			Clicks:        acc.clicks,
			Conversions:   acc.conversions,
			Frequency:     stats.SafeDiv(acc.freqWeight, float64(acc.impressions)),
			DaysActive:    acc.days,
			LTVFactor:     1,
			LTVConfidence: LTVConfidenceLow,
			Tier:          TierUnranked,
		}
		out.TotalSpend += acc.spend
		out.TotalRevenue += acc.revenue

		if acc.spend == 0 {
			out.ChannelInsights = append(out.ChannelInsights, in)
			continue
		}

		blended := acc.revenue / acc.spend
		adjusted := blended
		if f, ok := factors[in.ChannelID]; ok {
			in.LTVFactor = f.factor
			in.LTVCohortID = f.cohortID
			in.LTVConfidence = LTVConfidenceHigh
			adjusted = acc.revenue * f.factor / acc.spend
		}
		marginal := blended * p.MarginalRoasDiscount
		in.BlendedRoas = &blended
		in.LTVAdjustedRoas = &adjusted
		in.MarginalRoas = &marginal

		rankedSpend += acc.spend
		rankedRevenue += acc.revenue
		out.RankedCount++
		out.ChannelInsights = append(out.ChannelInsights, in)
	}

	// Spend-weighted mean of per-entity ROAS reduces to total revenue over
	// total spend of the ranked population.
	out.OverallRoas = stats.SafeDiv(rankedRevenue, rankedSpend)
	out.WinnerThreshold = p.WinnerRatio * out.OverallRoas
	out.LoserThreshold = p.LoserRatio * out.OverallRoas

	if out.RankedCount < p.MinRankedEntities {
		out.LowSampleSize = true
		return out
	}

	// With no attributed revenue every threshold is zero and every entity
	// would clear the winner bar; nothing can be told apart.
	out.ZeroBaseline = out.OverallRoas <= 0

	for i := range out.ChannelInsights {
		in := &out.ChannelInsights[i]
		if !in.Ranked() {
			continue
		}
		in.Tier = TierNeutral
		if !out.ZeroBaseline {
			in.Tier = classify(*in.BlendedRoas, out.WinnerThreshold, out.LoserThreshold)
		}
		entry := LeaderboardEntry{
			EntityID:   in.EntityID,
			EntityType: in.EntityType,
			Name:       in.Name,
			Roas:       *in.BlendedRoas,
			Spend:      in.Spend,
			Revenue:    in.Revenue,
		}
		switch in.Tier {
		case TierWinner:
			out.Leaderboard.Winners = append(out.Leaderboard.Winners, entry)
		case TierLoser:
			out.Leaderboard.Losers = append(out.Leaderboard.Losers, entry)
		default:
			out.Leaderboard.Neutral = append(out.Leaderboard.Neutral, entry)
		}
	}
	sortEntries(out.Leaderboard.Winners, true)
	sortEntries(out.Leaderboard.Losers, false)
	sortEntries(out.Leaderboard.Neutral, true)
	return out
}

func classify(roas, winnerAt, loserAt float64) Tier {
	switch {
	case roas >= winnerAt-tierEpsilon:
		return TierWinner
	case roas <= loserAt+tierEpsilon:
		return TierLoser
	default:
		return TierNeutral
	}
}

// rankLevel ranks campaigns when campaign-level rows exist in the window;
// mixing levels would count the same spend twice.
func rankLevel(ds *domain.Dataset, w domain.Window) domain.EntityType {
	for _, m := range ds.DailyMetrics {
		if m.EntityType == domain.EntityCampaign && w.Contains(m.Date) {
			return domain.EntityCampaign
		}
	}
	return domain.EntityChannel
}

// aggregate sums rows per entity and returns accumulators ordered by id.
// A day reported twice counts once: the first row in dataset order wins.
func aggregate(ds *domain.Dataset, w domain.Window, level domain.EntityType) []*accumulator {
	byID := make(map[string]*accumulator)
	for _, m := range ds.DailyMetrics {
		if m.EntityType != level || !w.Contains(m.Date) {
			continue
		}
		acc, ok := byID[m.EntityID]
		if !ok {
			acc = &accumulator{id: m.EntityID, entityType: m.EntityType, seen: make(map[time.Time]bool)}
			byID[m.EntityID] = acc
		}
		day := domain.Day(m.Date)
		if acc.invalid != nil || acc.seen[day] {
			continue
		}
		acc.seen[day] = true
		if err := validateRow(m); err != nil {
			acc.invalid = err
			continue
		}
		acc.spend += m.Spend
		acc.revenue += m.Revenue
		acc.impressions += m.Impressions
		acc.clicks += m.Clicks
		acc.conversions += m.Conversions
		acc.freqWeight += m.Frequency * float64(m.Impressions)
		acc.days++
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*accumulator, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out
}

func validateRow(m domain.DailyMetric) *domain.EntityError {
	day := m.Date.Format("2006-01-02")
	switch {
	case !stats.IsFinite(m.Spend) || !stats.IsFinite(m.Revenue):
		e := domain.NewEntityError(domain.ErrComputation, stage, m.EntityID, "non-finite spend or revenue on %s", day)
		return &e
	case m.Spend < 0:
		e := domain.NewEntityError(domain.ErrComputation, stage, m.EntityID, "negative spend %.2f on %s", m.Spend, day)
		return &e
	case m.Revenue < 0:
		e := domain.NewEntityError(domain.ErrComputation, stage, m.EntityID, "negative revenue %.2f on %s", m.Revenue, day)
		return &e
	case m.Impressions < 0 || m.Clicks < 0 || m.Conversions < 0:
		e := domain.NewEntityError(domain.ErrComputation, stage, m.EntityID, "negative volume counts on %s", day)
		return &e
	}
	return nil
}

type ltvFactor struct {
	factor   float64
	cohortID string
}

// ltvFactors picks, per channel, the most recent cohort that has been
// observed for at least CohortMinAgeDays and derives revenue at 90 days over
// revenue at acquisition. Malformed cohorts are reported and skipped.
func ltvFactors(ds *domain.Dataset, p Params, asOf time.Time) (map[string]ltvFactor, []domain.EntityError) {
	cohorts := append([]domain.Cohort(nil), ds.Cohorts...)
	sort.SliceStable(cohorts, func(i, j int) bool {
		if cohorts[i].ChannelID != cohorts[j].ChannelID {
			return cohorts[i].ChannelID < cohorts[j].ChannelID
		}
		if !cohorts[i].AcquisitionPeriod.Equal(cohorts[j].AcquisitionPeriod) {
			return cohorts[i].AcquisitionPeriod.After(cohorts[j].AcquisitionPeriod)
		}
		return cohorts[i].ID < cohorts[j].ID
	})

	factors := make(map[string]ltvFactor)
	var errs []domain.EntityError
	for _, c := range cohorts {
		if _, done := factors[c.ChannelID]; done {
			continue
		}
		if c.AgeDays(asOf) < p.CohortMinAgeDays {
			continue
		}
		if msg := c.Problem(); msg != "" {
			errs = append(errs, domain.NewEntityError(domain.ErrComputation, stage, c.ID, "%s", msg))
			continue
		}
		if c.RevenueAt90Days <= 0 {
			continue
		}
		initial, ok := c.InitialRevenue()
		if !ok || initial <= 0 {
			errs = append(errs, domain.NewEntityError(domain.ErrComputation, stage, c.ID,
				"cohort ratio undefined: acquisition revenue %.2f", initial))
			continue
		}
		if c.RevenueAt90Days < initial {
			errs = append(errs, domain.NewEntityError(domain.ErrComputation, stage, c.ID,
				"cumulative revenue fell from %.2f to %.2f", initial, c.RevenueAt90Days))
			continue
		}
		factors[c.ChannelID] = ltvFactor{factor: c.RevenueAt90Days / initial, cohortID: c.ID}
	}
	return factors, errs
}

func sortEntries(entries []LeaderboardEntry, desc bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Roas != b.Roas {
			if desc {
				return a.Roas > b.Roas
			}
			return a.Roas < b.Roas
		}
		return a.EntityID < b.EntityID
	})
}

func emptyLeaderboard() Leaderboard {
	return Leaderboard{
		Winners: []LeaderboardEntry{},
		Losers:  []LeaderboardEntry{},
		Neutral: []LeaderboardEntry{},
	}
}
