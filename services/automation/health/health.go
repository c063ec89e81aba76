// Package health implements the Health Monitor (C11): a registry of named
// probes whose individual ok/warn/fail readings are aggregated into one
// overall status, grounded on the teacher's infrastructure/middleware
// HealthChecker but generalized from a binary healthy/unhealthy result
// into a three-level {healthy, degraded, unhealthy} aggregate, with each
// check carrying its own criticality.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/trackerflow/automation-engine/infrastructure/telemetry"
)

// Level is one check's reading.
type Level string

const (
	LevelOK   Level = "ok"
	LevelWarn Level = "warn"
	LevelFail Level = "fail"
)

func (l Level) numeric() float64 {
	switch l {
	case LevelOK:
		return 1
	case LevelWarn:
		return 0.5
	default:
		return 0
	}
}

// Status is the aggregate report's overall reading.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Probe produces one reading; it must return promptly and respect ctx.
type Probe func(ctx context.Context) (Level, string)

// Check is one registered probe with its scheduling/criticality metadata.
type Check struct {
	Name     string
	Critical bool
	Timeout  time.Duration
	Interval time.Duration
	Probe    Probe
}

// CheckResult is one check's outcome from a single Run.
type CheckResult struct {
	Name       string
	Critical   bool
	Level      Level
	Message    string
	DurationMs int64
}

// Report is the aggregate outcome of running every registered check.
type Report struct {
	Status    Status
	Timestamp time.Time
	Checks    []CheckResult
}

// Monitor holds the registered checks. Run is safe to call concurrently
// and from a periodic scheduler (the CLI's `health` command, or an
// internal ticker); it does not schedule checks itself — each check's
// own Interval is advisory metadata for an external caller, not
// something Monitor drives with a built-in ticker.
type Monitor struct {
	mu        sync.RWMutex
	checks    []Check
	telemetry *telemetry.Collector
}

func New(collector *telemetry.Collector) *Monitor {
	return &Monitor{telemetry: collector}
}

// Register adds a check. Re-registering a name replaces the prior entry.
func (m *Monitor) Register(c Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.checks {
		if existing.Name == c.Name {
			m.checks[i] = c
			return
		}
	}
	m.checks = append(m.checks, c)
}

// Run executes every registered check (each bounded by its own Timeout,
// default 5s if unset) and aggregates: unhealthy if any critical check
// fails, degraded if any non-critical check fails or any check warns,
// else healthy.
func (m *Monitor) Run(ctx context.Context) Report {
	m.mu.RLock()
	checks := append([]Check(nil), m.checks...)
	m.mu.RUnlock()

	results := make([]CheckResult, 0, len(checks))
	anyCriticalFail := false
	anyDegrade := false

	for _, c := range checks {
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		level, msg := c.Probe(checkCtx)
		cancel()
		duration := time.Since(start)

		results = append(results, CheckResult{
			Name: c.Name, Critical: c.Critical, Level: level, Message: msg,
			DurationMs: duration.Milliseconds(),
		})

		if m.telemetry != nil {
			m.telemetry.SetCheckStatus(c.Name, level.numeric())
		}

		switch level {
		case LevelFail:
			if c.Critical {
				anyCriticalFail = true
			} else {
				anyDegrade = true
			}
		case LevelWarn:
			anyDegrade = true
		}
	}

	status := StatusHealthy
	if anyCriticalFail {
		status = StatusUnhealthy
	} else if anyDegrade {
		status = StatusDegraded
	}

	if m.telemetry != nil {
		m.telemetry.SetOverallStatus(status.numeric())
	}

	return Report{Status: status, Timestamp: time.Now().UTC(), Checks: results}
}

func (s Status) numeric() float64 {
	switch s {
	case StatusHealthy:
		return 1
	case StatusDegraded:
		return 0.5
	default:
		return 0
	}
}
