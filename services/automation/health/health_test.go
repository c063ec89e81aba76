package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okProbe(ctx context.Context) (Level, string)   { return LevelOK, "fine" }
func warnProbe(ctx context.Context) (Level, string) { return LevelWarn, "getting there" }
func failProbe(ctx context.Context) (Level, string) { return LevelFail, "broken" }

func TestMonitor_AllOK_Healthy(t *testing.T) {
	m := New(nil)
	m.Register(Check{Name: "a", Probe: okProbe})
	m.Register(Check{Name: "b", Probe: okProbe})

	report := m.Run(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Len(t, report.Checks, 2)
}

func TestMonitor_NonCriticalFail_Degraded(t *testing.T) {
	m := New(nil)
	m.Register(Check{Name: "a", Critical: false, Probe: failProbe})

	report := m.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
}

func TestMonitor_CriticalFail_Unhealthy(t *testing.T) {
	m := New(nil)
	m.Register(Check{Name: "a", Critical: true, Probe: failProbe})
	m.Register(Check{Name: "b", Critical: false, Probe: okProbe})

	report := m.Run(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
}

func TestMonitor_Warn_Degraded(t *testing.T) {
	m := New(nil)
	m.Register(Check{Name: "a", Critical: true, Probe: warnProbe})

	report := m.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
}

func TestMonitor_Register_ReplacesByName(t *testing.T) {
	m := New(nil)
	m.Register(Check{Name: "a", Probe: failProbe, Critical: true})
	m.Register(Check{Name: "a", Probe: okProbe, Critical: true})

	report := m.Run(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Len(t, report.Checks, 1)
}
