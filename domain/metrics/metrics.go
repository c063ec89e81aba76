// Package metrics holds the per-rule aggregate the Engine maintains
// alongside each execution.
package metrics

import "time"

// Metrics aggregates one rule's execution history.
type Metrics struct {
	RuleID            string
	ExecutionCount    int
	FailureCount      int
	TotalDurationMs   int64 // backing sum for AverageDurationMs
	LastExecution     *time.Time
	FailureReasons    map[string]int
}

func New(ruleID string) *Metrics {
	return &Metrics{RuleID: ruleID, FailureReasons: make(map[string]int)}
}

// SuccessRate implements the precise form:
// (execution_count - failure_count) / execution_count, as a percentage.
func (m *Metrics) SuccessRate() float64 {
	if m.ExecutionCount == 0 {
		return 0
	}
	return float64(m.ExecutionCount-m.FailureCount) / float64(m.ExecutionCount) * 100
}

// AverageDurationMs is the arithmetic mean over all recorded executions.
func (m *Metrics) AverageDurationMs() float64 {
	if m.ExecutionCount == 0 {
		return 0
	}
	return float64(m.TotalDurationMs) / float64(m.ExecutionCount)
}

// RecordSuccess counts a completed execution, including ones skipped for
// unmet conditions — those count as an execution, not a failure.
func (m *Metrics) RecordSuccess(durationMs int64, at time.Time) {
	m.ExecutionCount++
	m.TotalDurationMs += durationMs
	m.LastExecution = &at
}

// RecordFailure counts a failed execution and buckets its error message.
func (m *Metrics) RecordFailure(durationMs int64, at time.Time, reason string) {
	m.ExecutionCount++
	m.FailureCount++
	m.TotalDurationMs += durationMs
	m.LastExecution = &at
	if m.FailureReasons == nil {
		m.FailureReasons = make(map[string]int)
	}
	m.FailureReasons[reason]++
}
