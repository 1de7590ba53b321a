package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/engine/face"
)

const uniqueViolation = "23505"

// StateStore keeps BrainState snapshots in brain_states. Rows are only
// ever inserted.
type StateStore struct{ db *sql.DB }

func NewStateStore(db *sql.DB) *StateStore { return &StateStore{db: db} }

func (s *StateStore) Save(ctx context.Context, st *face.BrainState) error {
	body, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode brain state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO brain_states
			(id, organization_id, version, computed_at, as_of, trigger, config_version,
			 overall_roas, overall_risk_level, stale, degraded, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, st.ID, st.OrganizationID, st.Version, st.ComputedAt, st.AsOf, st.Trigger, st.ConfigVersion,
		st.Summary.OverallRoas, string(st.Summary.OverallRiskLevel), st.Stale, st.Degraded, body)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s version %d", domain.ErrDuplicate, st.OrganizationID, st.Version)
		}
		return fmt.Errorf("insert brain state: %w", err)
	}
	return nil
}

func (s *StateStore) Latest(ctx context.Context, orgID string) (*face.BrainState, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM brain_states
		WHERE organization_id = $1
		ORDER BY version DESC
		LIMIT 1
	`, orgID).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("brain state for %s: %w", orgID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get latest brain state: %w", err)
	}
	var st face.BrainState
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("decode brain state: %w", err)
	}
	return &st, nil
}

func (s *StateStore) History(ctx context.Context, orgID string, limit int) ([]face.StateSummary, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, version, computed_at, trigger, config_version,
		       overall_roas, overall_risk_level, stale, degraded
		FROM brain_states
		WHERE organization_id = $1
		ORDER BY version DESC
		LIMIT $2
	`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("list brain states: %w", err)
	}
	defer rows.Close()

	out := []face.StateSummary{}
	for rows.Next() {
		var sum face.StateSummary
		if err := rows.Scan(&sum.ID, &sum.OrganizationID, &sum.Version, &sum.ComputedAt, &sum.Trigger,
			&sum.ConfigVersion, &sum.OverallRoas, &sum.OverallRiskLevel, &sum.Stale, &sum.Degraded); err != nil {
			return nil, fmt.Errorf("scan brain state: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *StateStore) LatestVersion(ctx context.Context, orgID string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM brain_states WHERE organization_id = $1
	`, orgID).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("get latest version: %w", err)
	}
	return v, nil
}
