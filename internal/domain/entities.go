package domain

import (
	"fmt"
	"math"
	"time"
)

// EntityType distinguishes the level a DailyMetric row is keyed at.
type EntityType string

const (
	EntityChannel  EntityType = "channel"
	EntityCampaign EntityType = "campaign"
	EntityCreative EntityType = "creative"
)

// Channel is one connected ad platform account.
type Channel struct {
	ID                string `json:"id"`
	OrganizationID    string `json:"organization_id"`
	Platform          string `json:"platform"`
	ExternalAccountID string `json:"external_account_id"`
	Name              string `json:"name"`
}

type Campaign struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Name      string    `json:"name"`
	Objective string    `json:"objective"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Creative statuses.
const (
	CreativeActive   = "active"
	CreativeArchived = "archived"
)

type Creative struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	Format     string `json:"format"`
	Status     string `json:"status"`
}

// DailyMetric is one closed day of delivery for a channel or campaign.
type DailyMetric struct {
	EntityID    string     `json:"entity_id"`
	EntityType  EntityType `json:"entity_type"`
	Date        time.Time  `json:"date"`
	Spend       float64    `json:"spend"`
	Impressions int64      `json:"impressions"`
	Clicks      int64      `json:"clicks"`
	Conversions int64      `json:"conversions"`
	Revenue     float64    `json:"revenue"`
	Frequency   float64    `json:"frequency"`
}

// CreativeDailyMetric is a DailyMetric keyed by creative that also carries
// the platform-reported CVR and CPA for the day.
type CreativeDailyMetric struct {
	CreativeID  string    `json:"creative_id"`
	Date        time.Time `json:"date"`
	Spend       float64   `json:"spend"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	Conversions int64     `json:"conversions"`
	Revenue     float64   `json:"revenue"`
	CVR         float64   `json:"cvr"`
	CPA         float64   `json:"cpa"`
	Frequency   float64   `json:"frequency"`
}

// Problem describes the first unusable value on the row, or returns "" when
// the row is valid. Money, rates and counts must be finite and non-negative.
func (m CreativeDailyMetric) Problem() string {
	day := m.Date.Format("2006-01-02")
	for _, f := range []struct {
		name string
		v    float64
	}{{"spend", m.Spend}, {"revenue", m.Revenue}, {"cvr", m.CVR}, {"cpa", m.CPA}, {"frequency", m.Frequency}} {
		if !usable(f.v) {
			return fmt.Sprintf("invalid %s %v on %s", f.name, f.v, day)
		}
	}
	if m.Impressions < 0 || m.Clicks < 0 || m.Conversions < 0 {
		return "negative volume counts on " + day
	}
	return ""
}

// RevenuePoint is cumulative cohort revenue Day days after acquisition.
type RevenuePoint struct {
	Day     int     `json:"day"`
	Revenue float64 `json:"revenue"`
}

// Cohort groups customers acquired through one channel in one period.
type Cohort struct {
	ID                string         `json:"cohort_id"`
	OrganizationID    string         `json:"organization_id"`
	ChannelID         string         `json:"channel_id"`
	AcquisitionPeriod time.Time      `json:"acquisition_period"`
	CustomerCount     int64          `json:"customer_count"`
	RevenueAt90Days   float64        `json:"revenue_at_90_days"`
	RevenueTrend      []RevenuePoint `json:"revenue_trend"`
}

// Problem describes the first unusable value of the cohort, or returns ""
// when it is valid.
func (c Cohort) Problem() string {
	if c.CustomerCount < 0 {
		return fmt.Sprintf("negative customer count %d", c.CustomerCount)
	}
	if !usable(c.RevenueAt90Days) {
		return fmt.Sprintf("invalid revenue at 90 days %v", c.RevenueAt90Days)
	}
	for _, p := range c.RevenueTrend {
		if p.Day < 0 || !usable(p.Revenue) {
			return fmt.Sprintf("invalid revenue %v on trend day %d", p.Revenue, p.Day)
		}
	}
	return ""
}

func usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// AgeDays is the number of whole days between acquisition and asOf.
func (c Cohort) AgeDays(asOf time.Time) int {
	return DaysBetween(c.AcquisitionPeriod, asOf)
}

// InitialRevenue is revenue on the earliest trend point, normally day 0.
func (c Cohort) InitialRevenue() (float64, bool) {
	if len(c.RevenueTrend) == 0 {
		return 0, false
	}
	first := c.RevenueTrend[0]
	for _, p := range c.RevenueTrend[1:] {
		if p.Day < first.Day {
			first = p
		}
	}
	return first.Revenue, true
}

// RevenueAt returns cumulative revenue on day, interpolating linearly
// between trend points. It reports false when day lies outside the trend.
func (c Cohort) RevenueAt(day int) (float64, bool) {
	if day == 90 && c.RevenueAt90Days > 0 {
		return c.RevenueAt90Days, true
	}
	var lo, hi *RevenuePoint
	for i := range c.RevenueTrend {
		p := &c.RevenueTrend[i]
		if p.Day == day {
			return p.Revenue, true
		}
		if p.Day < day && (lo == nil || p.Day > lo.Day) {
			lo = p
		}
		if p.Day > day && (hi == nil || p.Day < hi.Day) {
			hi = p
		}
	}
	if lo == nil || hi == nil {
		return 0, false
	}
	frac := float64(day-lo.Day) / float64(hi.Day-lo.Day)
	return lo.Revenue + frac*(hi.Revenue-lo.Revenue), true
}

// LatestPoint is the trend point with the highest day.
func (c Cohort) LatestPoint() (RevenuePoint, bool) {
	if len(c.RevenueTrend) == 0 {
		return RevenuePoint{}, false
	}
	last := c.RevenueTrend[0]
	for _, p := range c.RevenueTrend[1:] {
		if p.Day > last.Day {
			last = p
		}
	}
	return last, true
}
