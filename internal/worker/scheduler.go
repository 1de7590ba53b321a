// Package worker runs scheduled brain cycles for every organization.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/engine"
	"github.com/ignite/perf-brain/internal/engine/face"
	"github.com/ignite/perf-brain/internal/pkg/logger"
)

// OrgLister lists organizations that have data to analyze.
type OrgLister interface {
	OrganizationIDs(ctx context.Context) ([]string, error)
}

// CycleRunner runs one brain cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, req engine.CycleRequest) (*face.BrainState, error)
}

// RunStats summarizes one scheduling pass.
type RunStats struct {
	Organizations int `json:"organizations"`
	Succeeded     int `json:"succeeded"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
}

// Scheduler runs a scheduled cycle for every organization each interval,
// at most concurrency at a time. One organization's failure never stops
// the others.
type Scheduler struct {
	orgs        OrgLister
	runner      CycleRunner
	interval    time.Duration
	concurrency int
	now         func() time.Time

	passes int64
	cycles int64
	errors int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewScheduler(orgs OrgLister, runner CycleRunner, interval time.Duration, concurrency int) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		orgs:        orgs,
		runner:      runner,
		interval:    interval,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Start runs one pass immediately and then one per interval until Stop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	logger.Info("scheduler starting", "component", "worker",
		"interval", s.interval.String(), "concurrency", s.concurrency)

	s.wg.Add(1)
	go s.loop()
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	logger.Info("scheduler stopped", "component", "worker",
		"passes", atomic.LoadInt64(&s.passes),
		"cycles", atomic.LoadInt64(&s.cycles),
		"errors", atomic.LoadInt64(&s.errors))
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	s.pass(s.ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.pass(s.ctx)
		}
	}
}

func (s *Scheduler) pass(ctx context.Context) {
	stats, err := s.RunOnce(ctx)
	if err != nil {
		logger.Error("scheduled pass failed", "component", "worker", "error", err)
		return
	}
	logger.Info("scheduled pass complete", "component", "worker",
		"organizations", stats.Organizations,
		"succeeded", stats.Succeeded,
		"skipped", stats.Skipped,
		"failed", stats.Failed)
}

// RunOnce runs one scheduled cycle per organization and waits for all of
// them. Only failing to list organizations is returned as an error.
func (s *Scheduler) RunOnce(ctx context.Context) (RunStats, error) {
	atomic.AddInt64(&s.passes, 1)
	ids, err := s.orgs.OrganizationIDs(ctx)
	if err != nil {
		return RunStats{}, fmt.Errorf("list organizations: %w", err)
	}

	asOf := s.now().UTC()
	var (
		mu    sync.Mutex
		stats = RunStats{Organizations: len(ids)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			_, err := s.runner.RunCycle(gctx, engine.CycleRequest{
				OrganizationID: id,
				Trigger:        engine.TriggerScheduled,
				AsOf:           asOf,
			})
			atomic.AddInt64(&s.cycles, 1)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				stats.Succeeded++
			case errors.Is(err, domain.ErrCycleInProgress):
				// Another replica or a manual request already has it.
				stats.Skipped++
			default:
				stats.Failed++
				atomic.AddInt64(&s.errors, 1)
				logger.Warn("scheduled cycle failed", "component", "worker", "org_id", id, "error", err)
			}
			// Never cancel the group: the remaining organizations still run.
			return nil
		})
	}
	_ = g.Wait()
	return stats, nil
}
