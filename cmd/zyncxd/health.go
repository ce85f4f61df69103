// health.go - Health monitoring for the pool daemon.
package main

import (
	"sync"
	"time"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a specific component.
type ComponentHealth struct {
	Name      string       `json:"name"`
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message"`
	LastCheck time.Time    `json:"last_check"`
}

// SystemHealth represents the overall daemon health.
type SystemHealth struct {
	OverallStatus HealthStatus      `json:"overall_status"`
	Timestamp     time.Time         `json:"timestamp"`
	Components    []ComponentHealth `json:"components"`
	Uptime        time.Duration     `json:"uptime"`
	Version       string            `json:"version"`
}

// HealthChecker runs registered component probes on demand.
type HealthChecker struct {
	mu        sync.Mutex
	checkers  map[string]func() error
	startTime time.Time
	version   string
}

// NewHealthChecker creates a health checker.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		checkers:  make(map[string]func() error),
		startTime: time.Now(),
		version:   version,
	}
}

// RegisterComponent registers a probe; a nil error from the probe means the
// component is healthy.
func (hc *HealthChecker) RegisterComponent(name string, checker func() error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkers[name] = checker
}

// CheckHealth runs all probes and aggregates the result.
func (hc *HealthChecker) CheckHealth() *SystemHealth {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	overall := Healthy
	now := time.Now()
	components := make([]ComponentHealth, 0, len(hc.checkers))

	for name, check := range hc.checkers {
		ch := ComponentHealth{Name: name, Status: Healthy, Message: "ok", LastCheck: now}
		if err := check(); err != nil {
			ch.Status = Unhealthy
			ch.Message = err.Error()
			overall = Unhealthy
		}
		components = append(components, ch)
	}

	return &SystemHealth{
		OverallStatus: overall,
		Timestamp:     now,
		Components:    components,
		Uptime:        now.Sub(hc.startTime),
		Version:       hc.version,
	}
}
