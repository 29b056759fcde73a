// Package health aggregates component probes for liveness and readiness
// endpoints.
package health

import (
	"context"
	"os"
	"time"
)

// Status is the overall or per-component probe outcome.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of a single component check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response is the liveness payload.
type Response struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse is the readiness payload.
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker probes one component.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager runs registered checkers and aggregates their results.
type Manager struct {
	version  string
	checkers []Checker
}

func NewManager(version string) *Manager {
	return &Manager{version: version}
}

func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// Health is the liveness probe. The process being able to answer is the
// signal; component checks are attached only when verbose is set and never
// flip the status to unhealthy on their own.
func (m *Manager) Health(ctx context.Context, verbose bool) Response {
	resp := Response{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
	}
	if verbose && len(m.checkers) > 0 {
		resp.Checks, resp.Status = m.runChecks(ctx)
	}
	return resp
}

// Ready is the readiness probe. Any unhealthy component makes the whole
// response not ready.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}
	if len(m.checkers) == 0 {
		return resp
	}

	resp.Checks, resp.Status = m.runChecks(ctx)
	if resp.Status == StatusUnhealthy {
		resp.Ready = false
	}
	return resp
}

func (m *Manager) runChecks(ctx context.Context) (map[string]CheckResult, Status) {
	checks := make(map[string]CheckResult, len(m.checkers))
	status := StatusHealthy
	for _, checker := range m.checkers {
		result := checker.Check(ctx)
		checks[checker.Name()] = result

		switch result.Status {
		case StatusUnhealthy:
			status = StatusUnhealthy
		case StatusDegraded:
			if status == StatusHealthy {
				status = StatusDegraded
			}
		}
	}
	return checks, status
}

// DirChecker verifies that a directory exists, for the content repository
// and the public output folder.
type DirChecker struct {
	name string
	path string
}

func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(_ context.Context) CheckResult {
	if c.path == "" {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{Status: StatusUnhealthy, Error: "directory not found", Message: c.path}
		}
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "expected directory, got file"}
	}
	return CheckResult{Status: StatusHealthy, Message: "directory exists"}
}

// PingChecker wraps a connectivity probe, for the question database and the
// redis cache.
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
}

func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if err := c.ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "reachable"}
}

// LastSweepChecker reports on the scheduled lint sweep. A missing or stale
// run degrades readiness without failing it, a failed run is unhealthy.
type LastSweepChecker struct {
	getLastRun func() (time.Time, string)
}

func NewLastSweepChecker(getLastRun func() (time.Time, string)) *LastSweepChecker {
	return &LastSweepChecker{getLastRun: getLastRun}
}

func (c *LastSweepChecker) Name() string { return "last_lint_sweep" }

func (c *LastSweepChecker) Check(_ context.Context) CheckResult {
	lastRun, lastError := c.getLastRun()

	if lastError != "" {
		return CheckResult{Status: StatusUnhealthy, Error: lastError, Message: "last sweep failed"}
	}
	if lastRun.IsZero() {
		return CheckResult{Status: StatusDegraded, Message: "no sweep completed yet"}
	}
	// The sweep runs daily; two missed runs in a row is worth surfacing.
	if time.Since(lastRun) > 48*time.Hour {
		return CheckResult{Status: StatusDegraded, Message: "last successful sweep over 48h ago"}
	}
	return CheckResult{Status: StatusHealthy, Message: "last sweep successful"}
}
