// Package telemetry collects Prometheus metrics for rule executions and
// health checks, the automation engine's analogue of the teacher's
// infrastructure/metrics package.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds every Prometheus collector the engine and health monitor
// report through.
type Collector struct {
	ExecutionTotal      *prometheus.CounterVec
	ExecutionDuration   *prometheus.HistogramVec
	RuleFailuresTotal   *prometheus.CounterVec
	HealthCheckStatus   *prometheus.GaugeVec
	HealthOverallStatus prometheus.Gauge
}

// New registers a Collector against the default Prometheus registerer.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers a Collector against registerer, or leaves its
// collectors unregistered (but still usable) if registerer is nil — used
// by tests that don't want to pollute the default registry.
func NewWithRegistry(registerer prometheus.Registerer) *Collector {
	c := &Collector{
		ExecutionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_execution_count_total",
				Help: "Total number of rule executions, by rule and terminal status.",
			},
			[]string{"rule_id", "status"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "automation_execution_duration_seconds",
				Help:    "Rule execution duration in seconds.",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"rule_id"},
		),
		RuleFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automation_rule_failures_total",
				Help: "Total number of failed executions, by rule and bucketed failure reason.",
			},
			[]string{"rule_id", "reason"},
		),
		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "automation_health_check_status",
				Help: "Per-check health status: 1 ok, 0.5 warn, 0 fail.",
			},
			[]string{"check"},
		),
		HealthOverallStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "automation_health_overall_status",
				Help: "Aggregate health status: 1 healthy, 0.5 degraded, 0 unhealthy.",
			},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			c.ExecutionTotal,
			c.ExecutionDuration,
			c.RuleFailuresTotal,
			c.HealthCheckStatus,
			c.HealthOverallStatus,
		)
	}

	return c
}

// RecordExecution observes one execution's terminal status and duration.
func (c *Collector) RecordExecution(ruleID, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.ExecutionTotal.WithLabelValues(ruleID, status).Inc()
	c.ExecutionDuration.WithLabelValues(ruleID).Observe(duration.Seconds())
}

// RecordFailureReason buckets one failure by its reason string.
func (c *Collector) RecordFailureReason(ruleID, reason string) {
	if c == nil {
		return
	}
	c.RuleFailuresTotal.WithLabelValues(ruleID, reason).Inc()
}

// SetCheckStatus mirrors one health check's numeric level (1/0.5/0).
func (c *Collector) SetCheckStatus(name string, level float64) {
	if c == nil {
		return
	}
	c.HealthCheckStatus.WithLabelValues(name).Set(level)
}

// SetOverallStatus mirrors the aggregate health level.
func (c *Collector) SetOverallStatus(level float64) {
	if c == nil {
		return
	}
	c.HealthOverallStatus.Set(level)
}
