package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector() *Collector {
	return NewWithRegistry(prometheus.NewRegistry())
}

func counterValue(t *testing.T, c *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.WithLabelValues(labels...).Write(m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}

func TestCollector_RecordExecution(t *testing.T) {
	c := newTestCollector()
	c.RecordExecution("rule-1", "COMPLETED", 25*time.Millisecond)
	assert.Equal(t, float64(1), counterValue(t, c.ExecutionTotal, "rule-1", "COMPLETED"))
}

func TestCollector_RecordFailureReason(t *testing.T) {
	c := newTestCollector()
	c.RecordFailureReason("rule-1", "tracker timeout")
	c.RecordFailureReason("rule-1", "tracker timeout")
	assert.Equal(t, float64(2), counterValue(t, c.RuleFailuresTotal, "rule-1", "tracker timeout"))
}

func TestCollector_SetCheckStatusAndOverall(t *testing.T) {
	c := newTestCollector()
	c.SetCheckStatus("heap_usage", 0.5)
	c.SetOverallStatus(0.5)

	got := &dto.Metric{}
	require.NoError(t, c.HealthCheckStatus.WithLabelValues("heap_usage").Write(got))
	assert.Equal(t, 0.5, got.GetGauge().GetValue())
	assert.Equal(t, 0.5, gaugeValue(t, c.HealthOverallStatus))
}

func TestCollector_NilReceiverIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordExecution("rule-1", "COMPLETED", time.Second)
		c.RecordFailureReason("rule-1", "x")
		c.SetCheckStatus("x", 1)
		c.SetOverallStatus(1)
	})
}
