package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/perf-brain/internal/config"
	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/engine/face"
	"github.com/ignite/perf-brain/internal/engine/oracle"
	"github.com/ignite/perf-brain/internal/pkg/distlock"
	"github.com/ignite/perf-brain/internal/pkg/logger"
)

// CycleRequest asks for one brain cycle.
type CycleRequest struct {
	OrganizationID string
	Trigger        Trigger
	// Persona overrides the configured default narrative persona.
	Persona face.Persona
	// AsOf defaults to the engine clock.
	AsOf time.Time
}

// Engine runs brain cycles and serves the persisted snapshots.
type Engine struct {
	reader   DataReader
	store    StateStore
	locks    distlock.Factory
	pipeline *Pipeline

	dispatcher Dispatcher
	alerter    Alerter
	metrics    *Metrics
	now        func() time.Time
}

type Option func(*Engine)

func WithDispatcher(d Dispatcher) Option { return func(e *Engine) { e.dispatcher = d } }

func WithAlerter(a Alerter) Option { return func(e *Engine) { e.alerter = a } }

func WithMetrics(m *Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithClock replaces time.Now, for tests and offline replays.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithPipeline replaces the pipeline built from the configuration.
func WithPipeline(p *Pipeline) Option { return func(e *Engine) { e.pipeline = p } }

func New(reader DataReader, store StateStore, locks distlock.Factory, cfg config.BrainConfig, opts ...Option) (*Engine, error) {
	e := &Engine{
		reader: reader,
		store:  store,
		locks:  locks,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pipeline == nil {
		p, err := NewPipeline(cfg)
		if err != nil {
			return nil, err
		}
		e.pipeline = p
	}
	return e, nil
}

func lockKey(orgID string) string { return "brain-cycle:" + orgID }

// RunCycle loads the organization's data, computes a snapshot, and appends
// it to the store. At most one cycle per organization runs at a time; a
// concurrent request fails with domain.ErrCycleInProgress. If loading and
// computing exceed the cycle timeout nothing is written and the error
// wraps domain.ErrCycleTimeout. Persisting has its own deadline. Actions
// are handed off after the lock is released.
func (e *Engine) RunCycle(ctx context.Context, req CycleRequest) (*face.BrainState, error) {
	start := e.now()
	if req.Trigger == "" {
		req.Trigger = TriggerManual
	}
	st, err := e.runCycle(ctx, req)
	e.metrics.observeCycle(req.Trigger, err, e.now().Sub(start))
	if err != nil {
		logger.Warn("brain cycle failed",
			"component", "engine",
			"org_id", req.OrganizationID,
			"trigger", string(req.Trigger),
			"error", err,
		)
		return nil, err
	}
	logger.Info("brain cycle complete",
		"component", "engine",
		"org_id", st.OrganizationID,
		"trigger", st.Trigger,
		"version", st.Version,
		"risk_level", string(st.Summary.OverallRiskLevel),
		"actions", len(st.TopActions),
		"stale", st.Stale,
		"duration_ms", e.now().Sub(start).Milliseconds(),
	)
	return st, nil
}

func (e *Engine) runCycle(ctx context.Context, req CycleRequest) (*face.BrainState, error) {
	if req.OrganizationID == "" {
		return nil, errors.New("organization id is required")
	}
	if req.Persona != "" {
		if _, ok := face.ParsePersona(string(req.Persona)); !ok {
			return nil, fmt.Errorf("unknown persona %q", req.Persona)
		}
	}

	st, err := e.lockedCycle(ctx, req)
	if err != nil {
		return nil, err
	}
	e.metrics.observeState(st)
	e.logDiagnostics(st)
	e.handoff(ctx, st)
	return st, nil
}

// lockedCycle computes and persists one snapshot while holding the
// organization's lock. Leases are renewed for as long as the cycle runs; a
// lost lease cancels the cycle before anything more is written.
func (e *Engine) lockedCycle(ctx context.Context, req CycleRequest) (*face.BrainState, error) {
	lock := e.locks.Lock(lockKey(req.OrganizationID))
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire cycle lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", domain.ErrCycleInProgress, req.OrganizationID)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("release cycle lock", "component", "engine", "org_id", req.OrganizationID, "error", err)
		}
	}()

	cycleCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if lease, ok := lock.(distlock.Lease); ok {
		stop := distlock.KeepAlive(cycleCtx, lease, func(err error) {
			logger.Error("cycle lock lost", "component", "engine", "org_id", req.OrganizationID, "error", err)
			cancel(fmt.Errorf("cycle lock lost: %w", err))
		})
		defer stop()
	}

	st, err := e.computeAndPersist(cycleCtx, req)
	if err != nil {
		if cause := context.Cause(cycleCtx); cause != nil && ctx.Err() == nil {
			return nil, cause
		}
		return nil, err
	}
	return st, nil
}

func (e *Engine) computeAndPersist(ctx context.Context, req CycleRequest) (*face.BrainState, error) {
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = e.now()
	}
	st, err := e.compute(ctx, req, asOf)
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithTimeout(ctx, e.pipeline.Config().PersistTimeout())
	defer cancel()
	version, err := e.store.LatestVersion(pctx, req.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("%w: latest version: %w", domain.ErrPersistence, err)
	}
	st.ID = uuid.NewString()
	st.Version = version + 1
	st.ComputedAt = e.now().UTC()
	if err := e.store.Save(pctx, st); err != nil {
		return nil, fmt.Errorf("%w: save state: %w", domain.ErrPersistence, err)
	}
	return st, nil
}

// compute covers everything under the cycle timeout.
func (e *Engine) compute(ctx context.Context, req CycleRequest, asOf time.Time) (*face.BrainState, error) {
	cfg := e.pipeline.Config()
	timeout := cfg.CycleTimeout()
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	window := domain.LookbackWindow(asOf, cfg.LoadDays())
	ds, err := LoadDataset(cctx, e.reader, req.OrganizationID, window)
	if err == nil {
		var st *face.BrainState
		st, err = e.pipeline.Compute(cctx, ds, ComputeOptions{AsOf: asOf, Persona: req.Persona, Trigger: req.Trigger})
		if err == nil {
			return st, nil
		}
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w: exceeded %s", domain.ErrCycleTimeout, timeout)
	}
	return nil, err
}

func (e *Engine) logDiagnostics(st *face.BrainState) {
	for _, x := range st.Memory.Exclusions {
		logger.Warn("entity excluded",
			"component", "memory",
			"org_id", st.OrganizationID,
			"entity_id", x.EntityID,
			"reason", x.Detail,
		)
	}
	for _, x := range st.Oracle.Abstentions {
		logger.Debug("detector abstained",
			"component", "oracle",
			"org_id", st.OrganizationID,
			"entity_id", x.EntityID,
			"reason", x.Detail,
		)
	}
}

// handoff runs after a successful persist. Its failures are logged only;
// the snapshot is already durable.
func (e *Engine) handoff(ctx context.Context, st *face.BrainState) {
	if e.dispatcher != nil && len(st.TopActions) > 0 {
		if err := e.dispatcher.Dispatch(ctx, st.ActionPayloads()); err != nil {
			logger.Error("dispatch actions", "component", "dispatch", "org_id", st.OrganizationID, "state_id", st.ID, "error", err)
		}
	}
	if e.alerter != nil && st.Summary.OverallRiskLevel == oracle.LevelRed {
		if err := e.alerter.AlertRed(ctx, st); err != nil {
			logger.Error("send red alert", "component", "alerting", "org_id", st.OrganizationID, "state_id", st.ID, "error", err)
		}
	}
}

// Latest returns the current snapshot of an organization.
func (e *Engine) Latest(ctx context.Context, orgID string) (*face.BrainState, error) {
	return e.store.Latest(ctx, orgID)
}

// History lists snapshot summaries newest first.
func (e *Engine) History(ctx context.Context, orgID string, limit int) ([]face.StateSummary, error) {
	return e.store.History(ctx, orgID, limit)
}

// Actions returns the executor payloads of the current snapshot.
func (e *Engine) Actions(ctx context.Context, orgID string) ([]face.ActionPayload, error) {
	st, err := e.store.Latest(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return st.ActionPayloads(), nil
}

// Narrative re-renders the current snapshot for another persona. Nothing
// is recomputed, so the figures match the stored snapshot exactly.
func (e *Engine) Narrative(ctx context.Context, orgID string, persona face.Persona) (string, error) {
	st, err := e.store.Latest(ctx, orgID)
	if err != nil {
		return "", err
	}
	return e.pipeline.Narrator().Render(st, persona)
}
