package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/perf-brain/internal/config"
	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/engine"
	"github.com/ignite/perf-brain/internal/engine/curiosity"
	"github.com/ignite/perf-brain/internal/engine/enginetest"
	"github.com/ignite/perf-brain/internal/engine/face"
	"github.com/ignite/perf-brain/internal/engine/oracle"
	"github.com/ignite/perf-brain/internal/pkg/distlock"
	repomem "github.com/ignite/perf-brain/internal/repository/memory"
)

type recordingDispatcher struct {
	mu       sync.Mutex
	payloads []face.ActionPayload
	err      error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, p []face.ActionPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payloads = append(d.payloads, p...)
	return d.err
}

type recordingAlerter struct {
	mu     sync.Mutex
	states []string
}

func (a *recordingAlerter) AlertRed(_ context.Context, st *face.BrainState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.states = append(a.states, st.ID)
	return nil
}

type failingStore struct{ *repomem.Store }

func (failingStore) Save(context.Context, *face.BrainState) error { return errors.New("disk full") }

// blockingReader stalls daily metric reads until the context ends.
type blockingReader struct{ *repomem.Reader }

func (blockingReader) DailyMetrics(ctx context.Context, _ string, _ domain.Window) ([]domain.DailyMetric, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// stallingStore blocks saves until the context ends.
type stallingStore struct{ *repomem.Store }

func (stallingStore) Save(ctx context.Context, _ *face.BrainState) error {
	<-ctx.Done()
	return ctx.Err()
}

// expiringLease wraps a lock whose renewals always fail, as when the lease
// ran out and another worker took the key.
type expiringLease struct{ distlock.DistLock }

func (expiringLease) TTL() time.Duration { return 30 * time.Millisecond }

func (expiringLease) Extend(context.Context, time.Duration) error { return distlock.ErrLockLost }

type expiringFactory struct{ distlock.Factory }

func (f expiringFactory) Lock(key string) distlock.DistLock {
	return expiringLease{f.Factory.Lock(key)}
}

// tickingClock advances one second per call so ComputedAt values differ.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := enginetest.AsOf
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newEngine(t *testing.T, reader engine.DataReader, store engine.StateStore, opts ...engine.Option) *engine.Engine {
	t.Helper()
	opts = append([]engine.Option{engine.WithClock(tickingClock())}, opts...)
	e, err := engine.New(reader, store, distlock.NewLocalFactory(), config.DefaultBrainConfig(), opts...)
	require.NoError(t, err)
	return e
}

func request(org string) engine.CycleRequest {
	return engine.CycleRequest{OrganizationID: org, Trigger: engine.TriggerScheduled, AsOf: enginetest.AsOf}
}

func TestRunCycle_PersistsVersionedState(t *testing.T) {
	ctx := context.Background()
	store := repomem.NewStore()
	dispatcher := &recordingDispatcher{}
	alerter := &recordingAlerter{}
	reg := prometheus.NewRegistry()
	e := newEngine(t, repomem.NewReader(enginetest.Dataset("org-1")), store,
		engine.WithDispatcher(dispatcher),
		engine.WithAlerter(alerter),
		engine.WithMetrics(engine.NewMetrics(reg)),
	)

	first, err := e.RunCycle(ctx, request("org-1"))
	require.NoError(t, err)
	second, err := e.RunCycle(ctx, request("org-1"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Version)
	assert.Equal(t, int64(2), second.Version)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, second.ComputedAt.After(first.ComputedAt))
	assert.Equal(t, "scheduled", second.Trigger)
	assert.Equal(t, config.DefaultBrainConfig().Fingerprint(), second.ConfigVersion)
	assert.False(t, second.Stale)

	latest, err := e.Latest(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	hist, err := e.History(ctx, "org-1", 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, int64(2), hist[0].Version)

	// camp-b's ROAS halves in the last week.
	assert.Equal(t, oracle.LevelRed, second.Summary.OverallRiskLevel)
	require.NotEmpty(t, second.Oracle.RisksFor(oracle.RiskROIDecay, "camp-b"))
	assert.Len(t, alerter.states, 2)

	require.NotEmpty(t, second.TopActions)
	assert.LessOrEqual(t, len(second.TopActions), 3)
	assert.Len(t, dispatcher.payloads, len(first.TopActions)+len(second.TopActions))
	assert.Equal(t, second.ID, dispatcher.payloads[len(dispatcher.payloads)-1].BrainStateID)

	expected := `
# HELP brain_cycles_total Brain cycles by trigger and outcome.
# TYPE brain_cycles_total counter
brain_cycles_total{outcome="success",trigger="scheduled"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "brain_cycles_total"))
}

func TestRunCycle_SameInputsSameBody(t *testing.T) {
	ctx := context.Background()
	ds := enginetest.Dataset("org-1")
	a, err := newEngine(t, repomem.NewReader(ds), repomem.NewStore()).RunCycle(ctx, request("org-1"))
	require.NoError(t, err)
	b, err := newEngine(t, repomem.NewReader(enginetest.Shuffled(ds)), repomem.NewStore()).RunCycle(ctx, request("org-1"))
	require.NoError(t, err)

	a.ID, a.ComputedAt = "", time.Time{}
	b.ID, b.ComputedAt = "", time.Time{}
	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, string(ja), string(jb))
}

func TestRunCycle_InvalidCreativeRowsExcludeOnlyThatCreative(t *testing.T) {
	ctx := context.Background()
	ds := enginetest.Dataset("org-1")
	ds.Creatives = []domain.Creative{
		{ID: "cr-nan", CampaignID: "camp-a", Format: "video", Status: domain.CreativeActive},
		{ID: "cr-neg", CampaignID: "camp-a", Format: "image", Status: domain.CreativeActive},
	}
	for d := 0; d < 14; d++ {
		date := domain.Day(enginetest.AsOf).AddDate(0, 0, -d)
		for _, id := range []string{"cr-nan", "cr-neg"} {
			m := domain.CreativeDailyMetric{
				CreativeID: id, Date: date, Spend: 100, Impressions: 20000,
				Clicks: 1000, Conversions: 40, CVR: 0.04, CPA: 2.5, Frequency: 2,
			}
			if d == 3 && id == "cr-nan" {
				m.Spend = math.NaN()
			}
			if d == 3 && id == "cr-neg" {
				m.Spend = -9000
			}
			ds.CreativeMetrics = append(ds.CreativeMetrics, m)
		}
	}
	store := repomem.NewStore()

	st, err := newEngine(t, repomem.NewReader(ds), store).RunCycle(ctx, request("org-1"))
	require.NoError(t, err)

	_, err = json.Marshal(st)
	require.NoError(t, err)
	assert.Empty(t, st.Oracle.RisksFor(oracle.RiskCreativeFatigue, "cr-nan"))
	assert.Empty(t, st.Oracle.RisksFor(oracle.RiskCreativeFatigue, "cr-neg"))
	for _, a := range st.TopActions {
		assert.GreaterOrEqual(t, a.ExpectedImpact, 0.0, a.ActionID)
	}
	excluded := 0
	for _, a := range st.Oracle.Abstentions {
		if errors.Is(a, domain.ErrComputation) {
			excluded++
		}
	}
	assert.Equal(t, 2, excluded)
	// The campaigns are untouched by the bad creative rows.
	assert.NotEmpty(t, st.Oracle.RisksFor(oracle.RiskROIDecay, "camp-b"))

	latest, err := store.Latest(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, st.ID, latest.ID)
}

func TestRunCycle_InProgress(t *testing.T) {
	ctx := context.Background()
	locks := distlock.NewLocalFactory()
	held := locks.Lock("brain-cycle:org-1")
	ok, err := held.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	e, err := engine.New(repomem.NewReader(enginetest.Dataset("org-1")), repomem.NewStore(), locks, config.DefaultBrainConfig())
	require.NoError(t, err)

	_, err = e.RunCycle(ctx, request("org-1"))
	assert.True(t, errors.Is(err, domain.ErrCycleInProgress))

	// Other organizations are not blocked.
	_, err = e.RunCycle(ctx, request("org-2"))
	assert.NoError(t, err)

	require.NoError(t, held.Release(ctx))
	_, err = e.RunCycle(ctx, request("org-1"))
	assert.NoError(t, err)
}

func TestRunCycle_Timeout(t *testing.T) {
	cfg := config.DefaultBrainConfig()
	cfg.CycleTimeoutSeconds = 1
	store := repomem.NewStore()
	reader := blockingReader{repomem.NewReader(enginetest.Dataset("org-1"))}
	e, err := engine.New(reader, store, distlock.NewLocalFactory(), cfg)
	require.NoError(t, err)

	_, err = e.RunCycle(context.Background(), request("org-1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCycleTimeout))

	v, err := store.LatestVersion(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	// The lock was released.
	e2, err := engine.New(repomem.NewReader(enginetest.Dataset("org-1")), store, distlock.NewLocalFactory(), cfg)
	require.NoError(t, err)
	_, err = e2.RunCycle(context.Background(), request("org-1"))
	assert.NoError(t, err)
}

func TestRunCycle_LostLeaseStopsCycle(t *testing.T) {
	store := repomem.NewStore()
	dispatcher := &recordingDispatcher{}
	reader := blockingReader{repomem.NewReader(enginetest.Dataset("org-1"))}
	locks := expiringFactory{distlock.NewLocalFactory()}
	e, err := engine.New(reader, store, locks, config.DefaultBrainConfig(), engine.WithDispatcher(dispatcher))
	require.NoError(t, err)

	start := time.Now()
	_, err = e.RunCycle(context.Background(), request("org-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, distlock.ErrLockLost)
	assert.False(t, errors.Is(err, domain.ErrCycleTimeout))
	assert.Less(t, time.Since(start), 5*time.Second)

	v, err := store.LatestVersion(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
	assert.Empty(t, dispatcher.payloads)
}

func TestRunCycle_PersistTimeout(t *testing.T) {
	cfg := config.DefaultBrainConfig()
	cfg.PersistTimeoutSeconds = 1
	store := stallingStore{repomem.NewStore()}
	e, err := engine.New(repomem.NewReader(enginetest.Dataset("org-1")), store, distlock.NewLocalFactory(), cfg)
	require.NoError(t, err)

	start := time.Now()
	_, err = e.RunCycle(context.Background(), request("org-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunCycle_PersistenceFailureSkipsHandoff(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	e := newEngine(t, repomem.NewReader(enginetest.Dataset("org-1")), failingStore{repomem.NewStore()},
		engine.WithDispatcher(dispatcher))

	_, err := e.RunCycle(context.Background(), request("org-1"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, dispatcher.payloads)
}

func TestRunCycle_DispatchFailureKeepsState(t *testing.T) {
	store := repomem.NewStore()
	e := newEngine(t, repomem.NewReader(enginetest.Dataset("org-1")), store,
		engine.WithDispatcher(&recordingDispatcher{err: errors.New("queue down")}))

	st, err := e.RunCycle(context.Background(), request("org-1"))
	require.NoError(t, err)
	latest, err := store.Latest(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, st.ID, latest.ID)
}

func TestRunCycle_EmptyOrganization(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	e := newEngine(t, repomem.NewReader(), repomem.NewStore(), engine.WithDispatcher(dispatcher))

	st, err := e.RunCycle(context.Background(), request("org-new"))
	require.NoError(t, err)
	assert.True(t, st.HasBadge(face.BadgeInsufficientData))
	assert.True(t, st.Degraded)
	assert.Empty(t, st.TopActions)
	assert.Equal(t, oracle.LevelGreen, st.Summary.OverallRiskLevel)
	assert.NotEmpty(t, st.Narrative)
	assert.Empty(t, dispatcher.payloads)
}

func TestRunCycle_StaleData(t *testing.T) {
	ds := enginetest.Dataset("org-1")
	req := request("org-1")
	req.AsOf = enginetest.AsOf.Add(72 * time.Hour)

	st, err := newEngine(t, repomem.NewReader(ds), repomem.NewStore()).RunCycle(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, st.Stale)
	assert.True(t, st.HasBadge(face.BadgeStaleData))
	assert.Contains(t, st.Narrative, "Figures are stale")
}

func TestRunCycle_RejectsBadRequests(t *testing.T) {
	e := newEngine(t, repomem.NewReader(), repomem.NewStore())

	_, err := e.RunCycle(context.Background(), engine.CycleRequest{})
	assert.Error(t, err)

	req := request("org-1")
	req.Persona = "cfo"
	_, err = e.RunCycle(context.Background(), req)
	assert.Error(t, err)
}

func TestNarrativeAndActions(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, repomem.NewReader(enginetest.Dataset("org-1")), repomem.NewStore())

	_, err := e.Narrative(ctx, "org-1", face.PersonaAnalyst)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	st, err := e.RunCycle(ctx, request("org-1"))
	require.NoError(t, err)

	text, err := e.Narrative(ctx, "org-1", face.PersonaAnalyst)
	require.NoError(t, err)
	assert.Contains(t, text, st.Summary.RoasText)
	assert.NotEqual(t, st.Narrative, text)

	actions, err := e.Actions(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, actions, len(st.TopActions))
	for _, a := range actions {
		assert.Equal(t, "org-1", a.OrganizationID)
		assert.Equal(t, st.ID, a.BrainStateID)
	}
}

func TestPipeline_CustomScorer(t *testing.T) {
	p, err := engine.NewPipeline(config.DefaultBrainConfig())
	require.NoError(t, err)
	ds := enginetest.Dataset("org-1")
	ds.Normalize()

	flat := p.WithScorer(constantScorer{})
	st, err := flat.Compute(context.Background(), ds, engine.ComputeOptions{AsOf: enginetest.AsOf, Trigger: engine.TriggerManual})
	require.NoError(t, err)
	for _, a := range st.TopActions {
		assert.Equal(t, 0.5, a.Score)
	}
}

type constantScorer struct{}

func (constantScorer) Score(c []curiosity.Action) []curiosity.Action {
	out := append([]curiosity.Action{}, c...)
	for i := range out {
		out[i].Score = 0.5
	}
	return out
}

func TestNewPipeline_InvalidConfig(t *testing.T) {
	cfg := config.DefaultBrainConfig()
	cfg.Curiosity.Weights.Urgency = 0.9
	_, err := engine.NewPipeline(cfg)
	assert.ErrorContains(t, err, "scoring weights must sum to 1")
}

func TestParseTrigger(t *testing.T) {
	tr, ok := engine.ParseTrigger("onboarding")
	assert.True(t, ok)
	assert.Equal(t, engine.TriggerOnboarding, tr)
	_, ok = engine.ParseTrigger("cron")
	assert.False(t, ok)
}

func TestIsStale(t *testing.T) {
	now := enginetest.AsOf
	assert.False(t, engine.IsStale(time.Time{}, now, time.Hour))
	assert.False(t, engine.IsStale(now.Add(-time.Hour), now, time.Hour))
	assert.True(t, engine.IsStale(now.Add(-61*time.Minute), now, time.Hour))
}
