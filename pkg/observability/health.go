package observability

import (
	"context"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                      `json:"status"`
	Timestamp time.Time                   `json:"timestamp"`
	Checks    map[string]DependencyStatus `json:"checks,omitempty"`
}

// DependencyStatus represents the health of a single check
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc probes one dependency. A returned status of "" means healthy.
type CheckFunc func(ctx context.Context) (status, message string)

type namedCheck struct {
	fn       CheckFunc
	optional bool
}

// HealthChecker runs named checks and folds them into one status
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]namedCheck
}

// NewHealthChecker creates an empty health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]namedCheck)}
}

// Register adds a required check. An unhealthy required check makes the whole status unhealthy.
func (h *HealthChecker) Register(name string, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = namedCheck{fn: fn}
}

// RegisterOptional adds a check that can only degrade the overall status
func (h *HealthChecker) RegisterOptional(name string, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = namedCheck{fn: fn, optional: true}
}

// Names returns the registered check names, sorted
func (h *HealthChecker) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every registered check
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := make(map[string]namedCheck, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]DependencyStatus, len(checks)),
	}

	for name, c := range checks {
		dep := runCheck(ctx, c.fn)
		status.Checks[name] = dep

		switch dep.Status {
		case StatusUnhealthy:
			if c.optional {
				if status.Status != StatusUnhealthy {
					status.Status = StatusDegraded
				}
			} else {
				status.Status = StatusUnhealthy
			}
		case StatusDegraded:
			if status.Status != StatusUnhealthy {
				status.Status = StatusDegraded
			}
		}
	}

	return status
}

func runCheck(ctx context.Context, fn CheckFunc) (dep DependencyStatus) {
	start := time.Now()
	dep.Timestamp = start

	defer func() {
		if r := recover(); r != nil {
			dep.Status = StatusUnhealthy
			dep.Message = MustRecover(r).Error()
		}
		dep.Latency = time.Since(start)
	}()

	dep.Status, dep.Message = fn(ctx)
	if dep.Status == "" {
		dep.Status = StatusHealthy
	}
	return dep
}
