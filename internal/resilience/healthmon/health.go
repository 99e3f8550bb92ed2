// Package healthmon probes every dependency on its own schedule and keeps a
// hysteresis-based health status per dependency.
package healthmon

import (
	"context"
	"time"

	"github.com/vietddude/medlingo/internal/core/domain"
)

// Status represents the health state of a dependency or the whole system.
type Status string

const (
	StatusHealthy   Status = "HEALTHY"
	StatusDegraded  Status = "DEGRADED"
	StatusUnhealthy Status = "UNHEALTHY"
	StatusUnknown   Status = "UNKNOWN"
)

// ProbeResult is what a probe reports about its dependency.
type ProbeResult struct {
	Healthy bool           `json:"healthy"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Prober checks one dependency. Returning an error counts as a failed probe.
type Prober interface {
	Probe(ctx context.Context) (ProbeResult, error)
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context) (ProbeResult, error)

// Probe implements Prober.
func (f ProbeFunc) Probe(ctx context.Context) (ProbeResult, error) {
	return f(ctx)
}

// Config is the per-dependency probing configuration.
type Config struct {
	CheckInterval      time.Duration
	Timeout            time.Duration
	HealthyThreshold   int
	UnhealthyThreshold int
	Critical           bool
	HistorySize        int
}

// DefaultConfig probes every 30s with a 5s timeout.
var DefaultConfig = Config{
	CheckInterval:      30 * time.Second,
	Timeout:            5 * time.Second,
	HealthyThreshold:   2,
	UnhealthyThreshold: 3,
	HistorySize:        10,
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultConfig.CheckInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultConfig.Timeout
	}
	if c.HealthyThreshold <= 0 {
		c.HealthyThreshold = DefaultConfig.HealthyThreshold
	}
	if c.UnhealthyThreshold <= 0 {
		c.UnhealthyThreshold = DefaultConfig.UnhealthyThreshold
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultConfig.HistorySize
	}
	return c
}

// CheckResult is one entry of a dependency's probe history.
type CheckResult struct {
	Healthy   bool          `json:"healthy"`
	Message   string        `json:"message"`
	CheckedAt time.Time     `json:"checkedAt"`
	Duration  time.Duration `json:"duration"`
}

// Record is a snapshot of a dependency's health.
type Record struct {
	Dependency           domain.Dependency `json:"dependency"`
	Status               Status            `json:"status"`
	Critical             bool              `json:"critical"`
	ConsecutiveSuccesses int               `json:"consecutiveSuccesses"`
	ConsecutiveFailures  int               `json:"consecutiveFailures"`
	LastCheck            time.Time         `json:"lastCheck,omitempty"`
	LastMessage          string            `json:"lastMessage,omitempty"`
	History              []CheckResult     `json:"history"`
}

// SystemHealth aggregates every dependency.
type SystemHealth struct {
	OverallStatus Status                       `json:"overallStatus"`
	HealthScore   float64                      `json:"healthScore"`
	Services      map[domain.Dependency]Record `json:"services"`
	CheckedAt     time.Time                    `json:"checkedAt"`
}

// Aggregate computes overall status and score from per-dependency records.
// UNHEALTHY if any critical dependency is UNHEALTHY; DEGRADED if any
// dependency is UNHEALTHY or DEGRADED; HEALTHY otherwise.
func Aggregate(records []Record) (Status, float64) {
	if len(records) == 0 {
		return StatusHealthy, 100
	}

	overall := StatusHealthy
	healthy := 0
	for _, r := range records {
		switch r.Status {
		case StatusHealthy:
			healthy++
		case StatusUnhealthy:
			if r.Critical {
				overall = StatusUnhealthy
			} else if overall != StatusUnhealthy {
				overall = StatusDegraded
			}
		case StatusDegraded:
			if overall != StatusUnhealthy {
				overall = StatusDegraded
			}
		}
	}

	return overall, 100 * float64(healthy) / float64(len(records))
}
