package health

import (
	"context"
	"fmt"
	"runtime"
)

// HeapUsageProbe reads runtime.MemStats (as the teacher's RuntimeStats
// helper does) and warns/fails once heap allocation crosses the given
// fraction of the heap's system-reserved size.
func HeapUsageProbe(warnAt, failAt float64) Probe {
	return func(ctx context.Context) (Level, string) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		if m.HeapSys == 0 {
			return LevelOK, "heap stats unavailable"
		}
		ratio := float64(m.HeapAlloc) / float64(m.HeapSys)
		msg := fmt.Sprintf("heap usage %.2f", ratio)
		switch {
		case ratio > failAt:
			return LevelFail, msg
		case ratio > warnAt:
			return LevelWarn, msg
		default:
			return LevelOK, msg
		}
	}
}

// SchedulerLagProbe measures the delay between a scheduled wake time and
// the moment the probe actually runs, via lagFn (supplied by the Trigger
// Manager/Engine's ticker loop, which timestamps its own wake and records
// the observed drift).
func SchedulerLagProbe(warnMs, failMs float64, lagMsFn func() float64) Probe {
	return func(ctx context.Context) (Level, string) {
		lag := lagMsFn()
		msg := fmt.Sprintf("scheduler lag %.1fms", lag)
		switch {
		case lag > failMs:
			return LevelFail, msg
		case lag > warnMs:
			return LevelWarn, msg
		default:
			return LevelOK, msg
		}
	}
}

// ErrorRateProbe reports unresolved/total over whatever window errorRateFn
// computes (e.g. the Engine's own failure-bucketed metrics); only a warn
// threshold is specified by contract, so failAt may be set to 1 (never
// fails) when the caller has no fail threshold of its own.
func ErrorRateProbe(warnAt, failAt float64, errorRateFn func() float64) Probe {
	return func(ctx context.Context) (Level, string) {
		rate := errorRateFn()
		msg := fmt.Sprintf("error rate %.2f", rate)
		switch {
		case rate > failAt:
			return LevelFail, msg
		case rate > warnAt:
			return LevelWarn, msg
		default:
			return LevelOK, msg
		}
	}
}

// CacheHitRateProbe warns when the Field Schema Cache's hit rate drops
// below the given threshold; the contract defines no fail threshold, so
// this probe never returns LevelFail.
func CacheHitRateProbe(warnBelow float64, hitRateFn func() float64) Probe {
	return func(ctx context.Context) (Level, string) {
		rate := hitRateFn()
		msg := fmt.Sprintf("cache hit rate %.2f", rate)
		if rate < warnBelow {
			return LevelWarn, msg
		}
		return LevelOK, msg
	}
}
