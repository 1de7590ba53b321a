package engine

import (
	"context"
	"time"

	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/engine/face"
)

// DataReader is the inbound data-access contract. Every query is scoped to
// one organization; metric queries are further limited to a window.
// Implementations return empty slices, not errors, when nothing matches.
type DataReader interface {
	Channels(ctx context.Context, orgID string) ([]domain.Channel, error)
	Campaigns(ctx context.Context, orgID string) ([]domain.Campaign, error)
	Creatives(ctx context.Context, orgID string) ([]domain.Creative, error)
	DailyMetrics(ctx context.Context, orgID string, w domain.Window) ([]domain.DailyMetric, error)
	CreativeMetrics(ctx context.Context, orgID string, w domain.Window) ([]domain.CreativeDailyMetric, error)
	Cohorts(ctx context.Context, orgID string) ([]domain.Cohort, error)
	// LastSyncedAt is the time connectors last delivered data for the
	// organization, or the zero time if never.
	LastSyncedAt(ctx context.Context, orgID string) (time.Time, error)
}

// StateStore persists BrainState snapshots. It is append-only: Save never
// replaces an existing snapshot.
type StateStore interface {
	Save(ctx context.Context, st *face.BrainState) error
	// Latest returns domain.ErrNotFound when the organization has no state.
	Latest(ctx context.Context, orgID string) (*face.BrainState, error)
	// History lists up to limit snapshots, newest first.
	History(ctx context.Context, orgID string, limit int) ([]face.StateSummary, error)
	// LatestVersion is 0 when the organization has no state.
	LatestVersion(ctx context.Context, orgID string) (int64, error)
}

// Dispatcher hands recommended actions to the downstream executor.
type Dispatcher interface {
	Dispatch(ctx context.Context, payloads []face.ActionPayload) error
}

// Alerter notifies people about a red snapshot.
type Alerter interface {
	AlertRed(ctx context.Context, st *face.BrainState) error
}
