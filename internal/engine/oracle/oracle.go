// Package oracle flags performance risks with three independent detectors:
// creative fatigue, ROI decay and LTV drift. Each detector can run on its
// own; Run fans them out concurrently and merges the results in a fixed
// order so the output does not depend on scheduling.
package oracle

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/engine/memory"
	"github.com/ignite/perf-brain/internal/pkg/stats"
)

// detectorResult is what each detector hands back to Run.
type detectorResult struct {
	risks       []Risk
	abstentions []domain.EntityError
}

// Run executes the three detectors concurrently and rolls up the result.
// It only fails when ctx is done before all detectors finish.
func Run(ctx context.Context, ds *domain.Dataset, mem *memory.Output, p Params, asOf time.Time) (*Output, error) {
	idx := domain.NewIndex(ds)
	results := make([]detectorResult, 3)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		risks, abst, err := detectFatigue(gctx, ds, idx, p, asOf)
		results[0] = detectorResult{risks, abst}
		return err
	})
	g.Go(func() error {
		risks, abst, err := detectROIDecay(gctx, ds, idx, mem, p, asOf)
		results[1] = detectorResult{risks, abst}
		return err
	})
	g.Go(func() error {
		risks, abst, err := detectLTVDrift(gctx, ds, idx, p, asOf)
		results[2] = detectorResult{risks, abst}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Output{
		Risks:            []Risk{},
		CriticalSeverity: p.CriticalSeverity,
		Abstentions:      []domain.EntityError{},
	}
	for _, r := range results {
		out.Risks = append(out.Risks, r.risks...)
		out.Abstentions = append(out.Abstentions, r.abstentions...)
	}
	sortRisks(out.Risks)
	out.OverallRiskLevel = rollup(out.Risks, p.CriticalSeverity)
	return out, nil
}

// DetectFatigue runs only the creative fatigue detector.
func DetectFatigue(ds *domain.Dataset, p Params, asOf time.Time) ([]Risk, []domain.EntityError) {
	risks, abst, _ := detectFatigue(context.Background(), ds, domain.NewIndex(ds), p, asOf)
	return risks, abst
}

// DetectROIDecay runs only the ROI decay detector. mem may be nil, in which
// case no portfolio comparison is made.
func DetectROIDecay(ds *domain.Dataset, mem *memory.Output, p Params, asOf time.Time) ([]Risk, []domain.EntityError) {
	risks, abst, _ := detectROIDecay(context.Background(), ds, domain.NewIndex(ds), mem, p, asOf)
	return risks, abst
}

// DetectLTVDrift runs only the LTV drift detector.
func DetectLTVDrift(ds *domain.Dataset, p Params, asOf time.Time) ([]Risk, []domain.EntityError) {
	risks, abst, _ := detectLTVDrift(context.Background(), ds, domain.NewIndex(ds), p, asOf)
	return risks, abst
}

func rollup(risks []Risk, critical float64) Level {
	if len(risks) == 0 {
		return LevelGreen
	}
	for _, r := range risks {
		if r.Severity >= critical {
			return LevelRed
		}
	}
	return LevelYellow
}

// sortRisks orders by severity, then type, then entity id.
func sortRisks(risks []Risk) {
	sort.SliceStable(risks, func(i, j int) bool {
		a, b := risks[i], risks[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.EntityID < b.EntityID
	})
}

// severityFor maps how far a signal is past its threshold (1 = exactly at
// threshold) onto [0,1]. Twice the threshold lands at 0.75.
func severityFor(overshoot float64) float64 {
	return round4(stats.Clamp01(0.5 + 0.25*(overshoot-1)))
}

func round4(v float64) float64 { return stats.Round(v, 4) }

func horizonBetween(min, max int, steepness float64) int {
	span := float64(max - min)
	return max - int(math.Round(stats.Clamp01(steepness)*span))
}
