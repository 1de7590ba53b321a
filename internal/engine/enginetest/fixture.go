// Package enginetest provides datasets for tests of packages built on the
// engine.
package enginetest

import (
	"time"

	"github.com/ignite/perf-brain/internal/domain"
)

// AsOf is the evaluation time the fixtures are built around.
var AsOf = time.Date(2026, 3, 30, 12, 0, 0, 0, time.UTC)

// Dataset returns 30 days of campaign data for orgID. Campaign camp-a
// returns 4.0x, camp-c 2.6x, and camp-b drops from 2.4x to 1.2x over the
// last 7 days, which the ROI decay detector flags as critical.
func Dataset(orgID string) *domain.Dataset {
	ds := &domain.Dataset{
		OrganizationID: orgID,
		SyncedAt:       AsOf.Add(-2 * time.Hour),
		Channels: []domain.Channel{
			{ID: "ch-1", OrganizationID: orgID, Platform: "meta", Name: "Meta"},
		},
		Campaigns: []domain.Campaign{
			{ID: "camp-a", ChannelID: "ch-1", Name: "Prospecting", Status: "active"},
			{ID: "camp-b", ChannelID: "ch-1", Name: "Retargeting", Status: "active"},
			{ID: "camp-c", ChannelID: "ch-1", Name: "Brand", Status: "active"},
		},
	}
	for d := 0; d < 30; d++ {
		date := domain.Day(AsOf).AddDate(0, 0, -d)
		revB := 240.0
		if d < 7 {
			revB = 120
		}
		ds.DailyMetrics = append(ds.DailyMetrics,
			row("camp-a", date, 100, 400),
			row("camp-b", date, 100, revB),
			row("camp-c", date, 100, 260),
		)
	}
	return ds
}

// Shuffled returns a copy of ds with every collection reversed.
func Shuffled(ds *domain.Dataset) *domain.Dataset {
	cp := *ds
	cp.Channels = reversed(ds.Channels)
	cp.Campaigns = reversed(ds.Campaigns)
	cp.Creatives = reversed(ds.Creatives)
	cp.DailyMetrics = reversed(ds.DailyMetrics)
	cp.CreativeMetrics = reversed(ds.CreativeMetrics)
	cp.Cohorts = reversed(ds.Cohorts)
	return &cp
}

func row(id string, date time.Time, spend, revenue float64) domain.DailyMetric {
	return domain.DailyMetric{
		EntityID:    id,
		EntityType:  domain.EntityCampaign,
		Date:        date,
		Spend:       spend,
		Revenue:     revenue,
		Impressions: 5000,
		Clicks:      100,
		Conversions: 10,
		Frequency:   2,
	}
}

func reversed[T any](in []T) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
