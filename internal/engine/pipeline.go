// Package engine runs brain cycles. Pipeline.Compute is the pure part: a
// dataset and a configuration in, a BrainState body out. Engine wraps it
// with the per-organization lock, data loading, the timeout, persistence
// and the outbound handoffs.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/perf-brain/internal/config"
	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/engine/curiosity"
	"github.com/ignite/perf-brain/internal/engine/face"
	"github.com/ignite/perf-brain/internal/engine/memory"
	"github.com/ignite/perf-brain/internal/engine/oracle"
)

// Trigger records why a cycle ran.
type Trigger string

const (
	TriggerOnboarding Trigger = "onboarding"
	TriggerScheduled  Trigger = "scheduled"
	TriggerManual     Trigger = "manual"
)

// ParseTrigger maps a string to a Trigger, reporting false when unknown.
func ParseTrigger(s string) (Trigger, bool) {
	switch t := Trigger(s); t {
	case TriggerOnboarding, TriggerScheduled, TriggerManual:
		return t, true
	}
	return "", false
}

// Pipeline computes BrainState bodies. It holds no mutable state and is
// safe for concurrent use.
type Pipeline struct {
	cfg      config.BrainConfig
	narrator *face.Narrator
	scorer   curiosity.Scorer
}

// NewPipeline validates cfg and parses the narrative templates.
func NewPipeline(cfg config.BrainConfig) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n, err := face.NewNarrator()
	if err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, narrator: n, scorer: curiosity.LinearScorer{Params: cfg.Curiosity}}, nil
}

// WithScorer returns a copy of the pipeline that ranks actions with s.
func (p *Pipeline) WithScorer(s curiosity.Scorer) *Pipeline {
	cp := *p
	cp.scorer = s
	return &cp
}

func (p *Pipeline) Config() config.BrainConfig { return p.cfg }

func (p *Pipeline) Narrator() *face.Narrator { return p.narrator }

// ComputeOptions carry the per-cycle inputs besides the dataset.
type ComputeOptions struct {
	AsOf    time.Time
	Persona face.Persona
	Trigger Trigger
}

// Compute runs MEMORY, ORACLE, CURIOSITY and FACE over ds. The same
// dataset, configuration and options always yield the same body; the
// envelope (ID, Version, ComputedAt) is left zero.
func (p *Pipeline) Compute(ctx context.Context, ds *domain.Dataset, opts ComputeOptions) (*face.BrainState, error) {
	asOf := opts.AsOf.UTC()

	mem := memory.Run(ds, p.cfg.Memory, asOf)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	orc, err := oracle.Run(ctx, ds, mem, p.cfg.Oracle, asOf)
	if err != nil {
		return nil, fmt.Errorf("oracle: %w", err)
	}
	cur, err := curiosity.RunWithScorer(ctx, mem, orc, p.cfg.Curiosity, p.scorer)
	if err != nil {
		return nil, fmt.Errorf("curiosity: %w", err)
	}

	freshness := ds.Freshness()
	st, err := face.Build(p.narrator, face.Input{
		OrganizationID: ds.OrganizationID,
		AsOf:           asOf,
		Memory:         mem,
		Oracle:         orc,
		Curiosity:      cur,
		Persona:        opts.Persona,
		Params:         p.cfg.Face,
		DataEmpty:      ds.IsEmpty(),
		Stale:          IsStale(freshness, asOf, p.cfg.StaleAfter()),
		DataFreshness:  freshness,
	})
	if err != nil {
		return nil, fmt.Errorf("face: %w", err)
	}
	st.Trigger = string(opts.Trigger)
	st.ConfigVersion = p.cfg.Fingerprint()
	st.Config = p.cfg.JSON()
	return st, nil
}

// IsStale reports whether data last refreshed at freshness is too old at
// asOf. Organizations that never synced are not stale; they are empty.
func IsStale(freshness, asOf time.Time, staleAfter time.Duration) bool {
	if freshness.IsZero() {
		return false
	}
	return asOf.Sub(freshness) > staleAfter
}
