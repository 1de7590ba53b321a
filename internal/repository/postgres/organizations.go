package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// OrgLister lists organizations eligible for scheduled cycles.
type OrgLister struct{ db *sql.DB }

func NewOrgLister(db *sql.DB) *OrgLister { return &OrgLister{db: db} }

// OrganizationIDs returns organizations with at least one connected
// channel, ordered by id.
func (l *OrgLister) OrganizationIDs(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT DISTINCT organization_id FROM channels ORDER BY organization_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
