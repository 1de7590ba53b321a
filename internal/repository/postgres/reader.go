// Package postgres implements the data reader, the BrainState store and
// the organization lister on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/perf-brain/internal/domain"
)

// rankableTypes are the entity types daily_metrics may hold.
var rankableTypes = []string{string(domain.EntityChannel), string(domain.EntityCampaign)}

// Reader reads connector-synced marketing data for brain cycles.
type Reader struct{ db *sql.DB }

func NewReader(db *sql.DB) *Reader { return &Reader{db: db} }

func (r *Reader) Channels(ctx context.Context, orgID string) ([]domain.Channel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, platform, COALESCE(external_account_id,''), name
		FROM channels
		WHERE organization_id = $1
		ORDER BY id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	out := []domain.Channel{}
	for rows.Next() {
		var c domain.Channel
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.Platform, &c.ExternalAccountID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Reader) Campaigns(ctx context.Context, orgID string) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.channel_id, c.name, COALESCE(c.objective,''), c.status, c.created_at
		FROM campaigns c
		JOIN channels ch ON ch.id = c.channel_id
		WHERE ch.organization_id = $1
		ORDER BY c.id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	out := []domain.Campaign{}
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(&c.ID, &c.ChannelID, &c.Name, &c.Objective, &c.Status, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Reader) Creatives(ctx context.Context, orgID string) ([]domain.Creative, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cr.id, cr.campaign_id, cr.format, cr.status
		FROM creatives cr
		JOIN campaigns c ON c.id = cr.campaign_id
		JOIN channels ch ON ch.id = c.channel_id
		WHERE ch.organization_id = $1
		ORDER BY cr.id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("query creatives: %w", err)
	}
	defer rows.Close()

	out := []domain.Creative{}
	for rows.Next() {
		var c domain.Creative
		if err := rows.Scan(&c.ID, &c.CampaignID, &c.Format, &c.Status); err != nil {
			return nil, fmt.Errorf("scan creative: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Reader) DailyMetrics(ctx context.Context, orgID string, w domain.Window) ([]domain.DailyMetric, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entity_id, entity_type, date, spend, impressions, clicks, conversions, revenue, frequency
		FROM daily_metrics
		WHERE organization_id = $1 AND date BETWEEN $2 AND $3 AND entity_type = ANY($4)
		ORDER BY entity_type, entity_id, date
	`, orgID, w.From, w.To, pq.Array(rankableTypes))
	if err != nil {
		return nil, fmt.Errorf("query daily metrics: %w", err)
	}
	defer rows.Close()

	out := []domain.DailyMetric{}
	for rows.Next() {
		var m domain.DailyMetric
		if err := rows.Scan(&m.EntityID, &m.EntityType, &m.Date, &m.Spend, &m.Impressions,
			&m.Clicks, &m.Conversions, &m.Revenue, &m.Frequency); err != nil {
			return nil, fmt.Errorf("scan daily metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Reader) CreativeMetrics(ctx context.Context, orgID string, w domain.Window) ([]domain.CreativeDailyMetric, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT creative_id, date, spend, impressions, clicks, conversions, revenue,
		       COALESCE(cvr, 0), COALESCE(cpa, 0), frequency
		FROM creative_daily_metrics
		WHERE organization_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY creative_id, date
	`, orgID, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("query creative metrics: %w", err)
	}
	defer rows.Close()

	out := []domain.CreativeDailyMetric{}
	for rows.Next() {
		var m domain.CreativeDailyMetric
		if err := rows.Scan(&m.CreativeID, &m.Date, &m.Spend, &m.Impressions, &m.Clicks,
			&m.Conversions, &m.Revenue, &m.CVR, &m.CPA, &m.Frequency); err != nil {
			return nil, fmt.Errorf("scan creative metric: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Reader) Cohorts(ctx context.Context, orgID string) ([]domain.Cohort, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, organization_id, channel_id, acquisition_period, customer_count,
		       COALESCE(revenue_at_90_days, 0), COALESCE(revenue_trend, '[]'::jsonb)
		FROM cohorts
		WHERE organization_id = $1
		ORDER BY channel_id, acquisition_period, id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("query cohorts: %w", err)
	}
	defer rows.Close()

	out := []domain.Cohort{}
	for rows.Next() {
		var (
			c     domain.Cohort
			trend []byte
		)
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.ChannelID, &c.AcquisitionPeriod,
			&c.CustomerCount, &c.RevenueAt90Days, &trend); err != nil {
			return nil, fmt.Errorf("scan cohort: %w", err)
		}
		if err := json.Unmarshal(trend, &c.RevenueTrend); err != nil {
			return nil, fmt.Errorf("decode revenue trend of cohort %s: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Reader) LastSyncedAt(ctx context.Context, orgID string) (time.Time, error) {
	var t sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(completed_at) FROM connector_syncs
		WHERE organization_id = $1 AND status = 'succeeded'
	`, orgID).Scan(&t)
	if err != nil {
		return time.Time{}, fmt.Errorf("query last sync: %w", err)
	}
	return t.Time, nil
}
