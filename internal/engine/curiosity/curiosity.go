// Package curiosity turns profitability tiers and risks into ranked
// recommendations. Four generators propose candidates concurrently; a
// Scorer weighs them, and at most one action per entity survives into the
// top list.
package curiosity

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/perf-brain/internal/engine/memory"
	"github.com/ignite/perf-brain/internal/engine/oracle"
	"github.com/ignite/perf-brain/internal/pkg/stats"
)

// Candidates runs all generators concurrently and returns the unscored
// candidates in generator order.
func Candidates(ctx context.Context, mem *memory.Output, orc *oracle.Output, p Params) ([]Action, error) {
	slots := make([][]Action, len(generators))
	g, gctx := errgroup.WithContext(ctx)
	for i, gen := range generators {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = gen.gen(mem, orc, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Action
	for _, s := range slots {
		all = append(all, s...)
	}
	return all, nil
}

// Run produces the CURIOSITY output with the default LinearScorer.
func Run(ctx context.Context, mem *memory.Output, orc *oracle.Output, p Params) (*Output, error) {
	return RunWithScorer(ctx, mem, orc, p, LinearScorer{Params: p})
}

// RunWithScorer produces the CURIOSITY output with a caller supplied policy.
func RunWithScorer(ctx context.Context, mem *memory.Output, orc *oracle.Output, p Params, s Scorer) (*Output, error) {
	candidates, err := Candidates(ctx, mem, orc, p)
	if err != nil {
		return nil, err
	}

	byType := make(map[ActionType]int, len(ActionTypes))
	for _, t := range ActionTypes {
		byType[t] = 0
	}
	for _, c := range candidates {
		byType[c.Type]++
	}

	scored := s.Score(candidates)
	rank(scored)
	top, dups, truncated := selectTop(scored, min(p.MaxActions, MaxTopActions))

	var total float64
	for _, a := range top {
		total += a.ExpectedImpact
	}
	return &Output{
		TopActions: top,
		OpportunitySummary: OpportunitySummary{
			CandidatesConsidered: len(candidates),
			CandidatesByType:     byType,
			DuplicatesDropped:    dups,
			Truncated:            truncated,
			TotalExpectedImpact:  stats.Round(total, 2),
		},
	}, nil
}
