package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ignite/perf-brain/internal/domain"
	"github.com/ignite/perf-brain/internal/engine/face"
)

// Metrics are the cycle counters exported on /metrics.
type Metrics struct {
	cycles   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	risks    *prometheus.CounterVec
	actions  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brain_cycles_total",
			Help: "Brain cycles by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brain_cycle_duration_seconds",
			Help:    "Wall time of brain cycles.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"outcome"}),
		risks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brain_risks_emitted_total",
			Help: "Risks recorded on persisted snapshots.",
		}, []string{"type"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brain_actions_emitted_total",
			Help: "Top actions recorded on persisted snapshots.",
		}, []string{"action_type"}),
	}
	reg.MustRegister(m.cycles, m.duration, m.risks, m.actions)
	return m
}

func (m *Metrics) observeCycle(trigger Trigger, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := outcomeOf(err)
	m.cycles.WithLabelValues(string(trigger), outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) observeState(st *face.BrainState) {
	if m == nil {
		return
	}
	for _, r := range st.Oracle.Risks {
		m.risks.WithLabelValues(string(r.Type)).Inc()
	}
	for _, a := range st.TopActions {
		m.actions.WithLabelValues(string(a.ActionType)).Inc()
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrCycleInProgress):
		return "in_progress"
	case errors.Is(err, domain.ErrCycleTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence_error"
	}
	return "error"
}
