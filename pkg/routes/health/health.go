// Package health serves liveness, readiness and a dependency report.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
)

const checkTimeout = 3 * time.Second

// Check pings one dependency.
type Check func(ctx context.Context) error

type Checker struct {
	checks  map[string]Check
	version string
	started time.Time
	ready   atomic.Bool
}

func NewChecker(version string, checks map[string]Check) *Checker {
	return &Checker{checks: checks, version: version, started: time.Now()}
}

// SetReady flips readiness once startup has finished, and back during shutdown.
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

func (c *Checker) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/health")
	g.GET("", c.Health)
	g.GET("/live", c.Live)
	g.GET("/ready", c.Ready)
}

type HealthStatus struct {
	Status     string                  `json:"status"`
	Version    string                  `json:"version"`
	Uptime     string                  `json:"uptime"`
	Checks     map[string]*CheckResult `json:"checks"`
	ReportedAt time.Time               `json:"reported_at"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// run pings every dependency concurrently.
func (c *Checker) run(ctx context.Context) (map[string]*CheckResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		healthy = true
		results = make(map[string]*CheckResult, len(c.checks))
		g       errgroup.Group
	)
	for name, check := range c.checks {
		g.Go(func() error {
			start := time.Now()
			err := check(ctx)
			result := &CheckResult{Status: "healthy", Latency: time.Since(start).String()}
			if err != nil {
				result = &CheckResult{Status: "unhealthy", Message: err.Error()}
			}

			mu.Lock()
			defer mu.Unlock()
			results[name] = result
			healthy = healthy && err == nil
			return nil
		})
	}
	_ = g.Wait()
	return results, healthy
}

// Health reports every dependency and answers 503 if any is down.
func (c *Checker) Health(ctx echo.Context) error {
	results, healthy := c.run(ctx.Request().Context())
	status := &HealthStatus{
		Status:     "healthy",
		Version:    c.version,
		Uptime:     time.Since(c.started).Round(time.Second).String(),
		Checks:     results,
		ReportedAt: time.Now().UTC(),
	}
	if !healthy {
		status.Status = "unhealthy"
		return ctx.JSON(http.StatusServiceUnavailable, status)
	}
	return ctx.JSON(http.StatusOK, status)
}

func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready needs both the startup flag and healthy dependencies.
func (c *Checker) Ready(ctx echo.Context) error {
	if !c.ready.Load() {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "starting"})
	}
	if _, healthy := c.run(ctx.Request().Context()); !healthy {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
