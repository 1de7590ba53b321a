package domain

import (
	"sort"
	"time"
)

// Dataset is everything one brain cycle reads for one organization. Loading
// it is the only I/O of a cycle; every stage after that works in memory.
type Dataset struct {
	OrganizationID  string                `json:"organization_id"`
	Window          Window                `json:"window"`
	SyncedAt        time.Time             `json:"synced_at"`
	Channels        []Channel             `json:"channels"`
	Campaigns       []Campaign            `json:"campaigns"`
	Creatives       []Creative            `json:"creatives"`
	DailyMetrics    []DailyMetric         `json:"daily_metrics"`
	CreativeMetrics []CreativeDailyMetric `json:"creative_metrics"`
	Cohorts         []Cohort              `json:"cohorts"`
}

// Normalize sorts every collection into a canonical order so that results
// never depend on the order rows came back from storage. Rows repeating an
// entity and day are ordered by their values; stages keep the first one.
func (d *Dataset) Normalize() {
	sort.SliceStable(d.Channels, func(i, j int) bool { return d.Channels[i].ID < d.Channels[j].ID })
	sort.SliceStable(d.Campaigns, func(i, j int) bool { return d.Campaigns[i].ID < d.Campaigns[j].ID })
	sort.SliceStable(d.Creatives, func(i, j int) bool { return d.Creatives[i].ID < d.Creatives[j].ID })
	sort.SliceStable(d.DailyMetrics, func(i, j int) bool {
		a, b := d.DailyMetrics[i], d.DailyMetrics[j]
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		if a.EntityType != b.EntityType {
			return a.EntityType < b.EntityType
		}
		if !Day(a.Date).Equal(Day(b.Date)) {
			return a.Date.Before(b.Date)
		}
		if a.Spend != b.Spend {
			return a.Spend > b.Spend
		}
		if a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		return a.Impressions > b.Impressions
	})
	sort.SliceStable(d.CreativeMetrics, func(i, j int) bool {
		a, b := d.CreativeMetrics[i], d.CreativeMetrics[j]
		if a.CreativeID != b.CreativeID {
			return a.CreativeID < b.CreativeID
		}
		if !Day(a.Date).Equal(Day(b.Date)) {
			return a.Date.Before(b.Date)
		}
		if a.Spend != b.Spend {
			return a.Spend > b.Spend
		}
		return a.Impressions > b.Impressions
	})
	sort.SliceStable(d.Cohorts, func(i, j int) bool {
		a, b := d.Cohorts[i], d.Cohorts[j]
		if a.ChannelID != b.ChannelID {
			return a.ChannelID < b.ChannelID
		}
		if !a.AcquisitionPeriod.Equal(b.AcquisitionPeriod) {
			return a.AcquisitionPeriod.Before(b.AcquisitionPeriod)
		}
		return a.ID < b.ID
	})
	for i := range d.Cohorts {
		trend := d.Cohorts[i].RevenueTrend
		sort.SliceStable(trend, func(a, b int) bool { return trend[a].Day < trend[b].Day })
	}
}

// Freshness is the later of the last sync time and the newest metric date.
func (d *Dataset) Freshness() time.Time {
	latest := d.SyncedAt
	for _, m := range d.DailyMetrics {
		if m.Date.After(latest) {
			latest = m.Date
		}
	}
	for _, m := range d.CreativeMetrics {
		if m.Date.After(latest) {
			latest = m.Date
		}
	}
	return latest
}

// IsEmpty reports whether there is no metric data at all.
func (d *Dataset) IsEmpty() bool {
	return len(d.DailyMetrics) == 0 && len(d.CreativeMetrics) == 0 && len(d.Cohorts) == 0
}

// Index offers lookups by id over a Dataset.
type Index struct {
	Channels  map[string]Channel
	Campaigns map[string]Campaign
	Creatives map[string]Creative
}

func NewIndex(d *Dataset) *Index {
	idx := &Index{
		Channels:  make(map[string]Channel, len(d.Channels)),
		Campaigns: make(map[string]Campaign, len(d.Campaigns)),
		Creatives: make(map[string]Creative, len(d.Creatives)),
	}
	for _, c := range d.Channels {
		idx.Channels[c.ID] = c
	}
	for _, c := range d.Campaigns {
		idx.Campaigns[c.ID] = c
	}
	for _, c := range d.Creatives {
		idx.Creatives[c.ID] = c
	}
	return idx
}

// ChannelOf resolves the channel an entity rolls up to. Channels map to
// themselves; unknown ids return "".
func (x *Index) ChannelOf(entityID string, t EntityType) string {
	switch t {
	case EntityChannel:
		return entityID
	case EntityCampaign:
		return x.Campaigns[entityID].ChannelID
	case EntityCreative:
		cr, ok := x.Creatives[entityID]
		if !ok {
			return ""
		}
		return x.Campaigns[cr.CampaignID].ChannelID
	}
	return ""
}

// Name returns a display name for an entity, falling back to its id.
func (x *Index) Name(entityID string, t EntityType) string {
	switch t {
	case EntityChannel:
		if c, ok := x.Channels[entityID]; ok && c.Name != "" {
			return c.Name
		}
	case EntityCampaign:
		if c, ok := x.Campaigns[entityID]; ok && c.Name != "" {
			return c.Name
		}
	case EntityCreative:
		if c, ok := x.Creatives[entityID]; ok && c.Format != "" {
			return c.Format + " " + entityID
		}
	}
	return entityID
}
