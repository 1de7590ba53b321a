// Package memory holds in-process implementations of the data reader and
// the BrainState store. They back fixture replays, local runs and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ignite/perf-brain/internal/domain"
)

// Reader serves datasets held in memory, one per organization.
type Reader struct {
	mu   sync.RWMutex
	orgs map[string]*domain.Dataset
}

func NewReader(datasets ...*domain.Dataset) *Reader {
	r := &Reader{orgs: make(map[string]*domain.Dataset)}
	for _, ds := range datasets {
		r.Put(ds)
	}
	return r
}

// LoadFixture reads a JSON file holding either one dataset or an array of
// datasets.
func LoadFixture(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var many []*domain.Dataset
	if err := json.Unmarshal(data, &many); err == nil {
		return NewReader(many...), nil
	}
	var one domain.Dataset
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	return NewReader(&one), nil
}

// Put replaces the dataset of ds.OrganizationID.
func (r *Reader) Put(ds *domain.Dataset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orgs[ds.OrganizationID] = ds
}

func (r *Reader) get(orgID string) *domain.Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ds, ok := r.orgs[orgID]; ok {
		return ds
	}
	return &domain.Dataset{}
}

// OrganizationIDs lists organizations that have at least one channel.
func (r *Reader) OrganizationIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.orgs))
	for id, ds := range r.orgs {
		if len(ds.Channels) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Reader) Channels(_ context.Context, orgID string) ([]domain.Channel, error) {
	return append([]domain.Channel{}, r.get(orgID).Channels...), nil
}

func (r *Reader) Campaigns(_ context.Context, orgID string) ([]domain.Campaign, error) {
	return append([]domain.Campaign{}, r.get(orgID).Campaigns...), nil
}

func (r *Reader) Creatives(_ context.Context, orgID string) ([]domain.Creative, error) {
	return append([]domain.Creative{}, r.get(orgID).Creatives...), nil
}

func (r *Reader) DailyMetrics(_ context.Context, orgID string, w domain.Window) ([]domain.DailyMetric, error) {
	out := []domain.DailyMetric{}
	for _, m := range r.get(orgID).DailyMetrics {
		if w.Contains(m.Date) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *Reader) CreativeMetrics(_ context.Context, orgID string, w domain.Window) ([]domain.CreativeDailyMetric, error) {
	out := []domain.CreativeDailyMetric{}
	for _, m := range r.get(orgID).CreativeMetrics {
		if w.Contains(m.Date) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *Reader) Cohorts(_ context.Context, orgID string) ([]domain.Cohort, error) {
	return append([]domain.Cohort{}, r.get(orgID).Cohorts...), nil
}

func (r *Reader) LastSyncedAt(_ context.Context, orgID string) (time.Time, error) {
	return r.get(orgID).SyncedAt, nil
}
