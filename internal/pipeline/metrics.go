package pipeline

import (
	"sync/atomic"
	"time"
)

// Metrics tracks pipeline run counters.
type Metrics struct {
	runs      int64
	failures  int64
	latencyNs int64
}

var globalMetrics = &Metrics{}

// GetMetrics returns the current metrics snapshot
func GetMetrics() Metrics {
	return Metrics{
		runs:      atomic.LoadInt64(&globalMetrics.runs),
		failures:  atomic.LoadInt64(&globalMetrics.failures),
		latencyNs: atomic.LoadInt64(&globalMetrics.latencyNs),
	}
}

// ResetMetrics resets all metrics (useful for testing)
func ResetMetrics() {
	atomic.StoreInt64(&globalMetrics.runs, 0)
	atomic.StoreInt64(&globalMetrics.failures, 0)
	atomic.StoreInt64(&globalMetrics.latencyNs, 0)
}

func recordRun(duration time.Duration, success bool) {
	atomic.AddInt64(&globalMetrics.runs, 1)
	atomic.AddInt64(&globalMetrics.latencyNs, duration.Nanoseconds())
	if !success {
		atomic.AddInt64(&globalMetrics.failures, 1)
	}
}

func (m Metrics) Runs() int64     { return m.runs }
func (m Metrics) Failures() int64 { return m.failures }

// AverageLatency returns the mean run duration in milliseconds.
func (m Metrics) AverageLatency() float64 {
	if m.runs == 0 {
		return 0
	}
	return float64(m.latencyNs) / float64(m.runs) / 1e6
}

// FailureRate returns the failure rate as a percentage.
func (m Metrics) FailureRate() float64 {
	if m.runs == 0 {
		return 0
	}
	return float64(m.failures) / float64(m.runs) * 100
}
