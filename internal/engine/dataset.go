package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/perf-brain/internal/domain"
)

// LoadDataset reads everything a cycle needs for one organization. The
// queries run concurrently; the result is normalized so stage outputs do
// not depend on the order rows arrive in.
func LoadDataset(ctx context.Context, r DataReader, orgID string, w domain.Window) (*domain.Dataset, error) {
	ds := &domain.Dataset{OrganizationID: orgID, Window: w}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		ds.Channels, err = r.Channels(gctx, orgID)
		return wrapRead("channels", err)
	})
	g.Go(func() (err error) {
		ds.Campaigns, err = r.Campaigns(gctx, orgID)
		return wrapRead("campaigns", err)
	})
	g.Go(func() (err error) {
		ds.Creatives, err = r.Creatives(gctx, orgID)
		return wrapRead("creatives", err)
	})
	g.Go(func() (err error) {
		ds.DailyMetrics, err = r.DailyMetrics(gctx, orgID, w)
		return wrapRead("daily metrics", err)
	})
	g.Go(func() (err error) {
		ds.CreativeMetrics, err = r.CreativeMetrics(gctx, orgID, w)
		return wrapRead("creative metrics", err)
	})
	g.Go(func() (err error) {
		ds.Cohorts, err = r.Cohorts(gctx, orgID)
		return wrapRead("cohorts", err)
	})
	g.Go(func() (err error) {
		ds.SyncedAt, err = r.LastSyncedAt(gctx, orgID)
		return wrapRead("last sync", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ds.Normalize()
	return ds, nil
}

func wrapRead(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("read %s: %w", what, err)
}
