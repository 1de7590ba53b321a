package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ignite/perf-brain/internal/pkg/httputil"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Uptime string                    `json:"uptime"`
	Checks map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// Probe checks one dependency.
type Probe func(ctx context.Context) error

type dependency struct {
	probe    Probe
	critical bool
	slow     time.Duration
}

// HealthChecker pings the configured dependencies concurrently.
type HealthChecker struct {
	deps      map[string]dependency
	startTime time.Time
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{deps: map[string]dependency{}, startTime: time.Now()}
}

// Add registers a dependency. A critical dependency that is down makes the
// service unhealthy; latency above slow marks it degraded.
func (hc *HealthChecker) Add(name string, probe Probe, critical bool, slow time.Duration) *HealthChecker {
	hc.deps[name] = dependency{probe: probe, critical: critical, slow: slow}
	return hc
}

//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks, overall := hc.run(r.Context())
	// Always 200; /health/ready is the probe that fails with 503.
	httputil.OK(w, HealthStatus{
		Status: overall,
		Uptime: time.Since(hc.startTime).Round(time.Second).String(),
		Checks: checks,
	})
}

//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "alive"})
}

//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks, overall := hc.run(r.Context())
	status := http.StatusOK
	if overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]any{
		"ready":  overall != "unhealthy",
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) run(ctx context.Context) (map[string]ComponentCheck, string) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]ComponentCheck, len(hc.deps))
	)
	for name, dep := range hc.deps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := check(ctx, dep)
			mu.Lock()
			checks[name] = c
			mu.Unlock()
		}()
	}
	wg.Wait()

	overall := "healthy"
	for name, c := range checks {
		switch {
		case c.Status == "down" && hc.deps[name].critical:
			return checks, "unhealthy"
		case c.Status != "up":
			overall = "degraded"
		}
	}
	return checks, overall
}

func check(ctx context.Context, dep dependency) ComponentCheck {
	start := time.Now()
	err := dep.probe(ctx)
	latency := time.Since(start)
	if err != nil {
		return ComponentCheck{Status: "down", Latency: latency.String(), Message: fmt.Sprintf("ping failed: %v", err)}
	}
	if dep.slow > 0 && latency > dep.slow {
		return ComponentCheck{Status: "degraded", Latency: latency.String(), Message: fmt.Sprintf("slow response (%s)", latency)}
	}
	return ComponentCheck{Status: "up", Latency: latency.String(), Message: "connected"}
}
