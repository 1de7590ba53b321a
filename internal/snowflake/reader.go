package snowflake

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/perf-brain/internal/domain"
)

// Reader implements the cycle data reader on the warehouse's
// PERFORMANCE schema.
type Reader struct {
	db *sql.DB
}

func NewReader(db *sql.DB) *Reader { return &Reader{db: db} }

func (r *Reader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Reader) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Reader) Channels(ctx context.Context, orgID string) ([]domain.Channel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ID, ORGANIZATION_ID, PLATFORM, COALESCE(EXTERNAL_ACCOUNT_ID, ''), NAME
		FROM CHANNELS
		WHERE ORGANIZATION_ID = ?
		ORDER BY ID
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	out := []domain.Channel{}
	for rows.Next() {
		var c domain.Channel
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.Platform, &c.ExternalAccountID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Reader) Campaigns(ctx context.Context, orgID string) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT C.ID, C.CHANNEL_ID, C.NAME, COALESCE(C.OBJECTIVE, ''), C.STATUS, C.CREATED_AT
		FROM CAMPAIGNS C
		JOIN CHANNELS CH ON CH.ID = C.CHANNEL_ID
		WHERE CH.ORGANIZATION_ID = ?
		ORDER BY C.ID
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	out := []domain.Campaign{}
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(&c.ID, &c.ChannelID, &c.Name, &c.Objective, &c.Status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Reader) Creatives(ctx context.Context, orgID string) ([]domain.Creative, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT CR.ID, CR.CAMPAIGN_ID, CR.FORMAT, CR.STATUS
		FROM CREATIVES CR
		JOIN CAMPAIGNS C ON C.ID = CR.CAMPAIGN_ID
		JOIN CHANNELS CH ON CH.ID = C.CHANNEL_ID
		WHERE CH.ORGANIZATION_ID = ?
		ORDER BY CR.ID
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query creatives: %w", err)
	}
	defer rows.Close()

	out := []domain.Creative{}
	for rows.Next() {
		var c domain.Creative
		if err := rows.Scan(&c.ID, &c.CampaignID, &c.Format, &c.Status); err != nil {
			return nil, fmt.Errorf("failed to scan creative: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Reader) DailyMetrics(ctx context.Context, orgID string, w domain.Window) ([]domain.DailyMetric, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ENTITY_ID, ENTITY_TYPE, DATE, SPEND, IMPRESSIONS, CLICKS, CONVERSIONS, REVENUE, FREQUENCY
		FROM DAILY_METRICS
		WHERE ORGANIZATION_ID = ? AND DATE BETWEEN ? AND ? AND ENTITY_TYPE IN ('channel', 'campaign')
		ORDER BY ENTITY_TYPE, ENTITY_ID, DATE
	`, orgID, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily metrics: %w", err)
	}
	defer rows.Close()

	out := []domain.DailyMetric{}
	for rows.Next() {
		var m domain.DailyMetric
		if err := rows.Scan(&m.EntityID, &m.EntityType, &m.Date, &m.Spend, &m.Impressions,
			&m.Clicks, &m.Conversions, &m.Revenue, &m.Frequency); err != nil {
			return nil, fmt.Errorf("failed to scan daily metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Reader) CreativeMetrics(ctx context.Context, orgID string, w domain.Window) ([]domain.CreativeDailyMetric, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT CREATIVE_ID, DATE, SPEND, IMPRESSIONS, CLICKS, CONVERSIONS, REVENUE,
		       COALESCE(CVR, 0), COALESCE(CPA, 0), FREQUENCY
		FROM CREATIVE_DAILY_METRICS
		WHERE ORGANIZATION_ID = ? AND DATE BETWEEN ? AND ?
		ORDER BY CREATIVE_ID, DATE
	`, orgID, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("failed to query creative metrics: %w", err)
	}
	defer rows.Close()

	out := []domain.CreativeDailyMetric{}
	for rows.Next() {
		var m domain.CreativeDailyMetric
		if err := rows.Scan(&m.CreativeID, &m.Date, &m.Spend, &m.Impressions, &m.Clicks,
			&m.Conversions, &m.Revenue, &m.CVR, &m.CPA, &m.Frequency); err != nil {
			return nil, fmt.Errorf("failed to scan creative metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Cohorts reads cohort rows; REVENUE_TREND is a VARIANT the driver hands
// back as a JSON string.
func (r *Reader) Cohorts(ctx context.Context, orgID string) ([]domain.Cohort, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ID, ORGANIZATION_ID, CHANNEL_ID, ACQUISITION_PERIOD, CUSTOMER_COUNT,
		       COALESCE(REVENUE_AT_90_DAYS, 0), COALESCE(TO_JSON(REVENUE_TREND), '[]')
		FROM COHORTS
		WHERE ORGANIZATION_ID = ?
		ORDER BY CHANNEL_ID, ACQUISITION_PERIOD, ID
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cohorts: %w", err)
	}
	defer rows.Close()

	out := []domain.Cohort{}
	for rows.Next() {
		var (
			c     domain.Cohort
			trend string
		)
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.ChannelID, &c.AcquisitionPeriod,
			&c.CustomerCount, &c.RevenueAt90Days, &trend); err != nil {
			return nil, fmt.Errorf("failed to scan cohort: %w", err)
		}
		if err := json.Unmarshal([]byte(trend), &c.RevenueTrend); err != nil {
			return nil, fmt.Errorf("failed to decode revenue trend of cohort %s: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Reader) LastSyncedAt(ctx context.Context, orgID string) (time.Time, error) {
	var t sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(COMPLETED_AT) FROM CONNECTOR_SYNCS
		WHERE ORGANIZATION_ID = ? AND STATUS = 'succeeded'
	`, orgID).Scan(&t)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query last sync: %w", err)
	}
	return t.Time, nil
}

// OrganizationIDs lists organizations with at least one connected channel.
func (r *Reader) OrganizationIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT ORGANIZATION_ID FROM CHANNELS ORDER BY ORGANIZATION_ID`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
