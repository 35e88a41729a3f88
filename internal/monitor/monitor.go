// Package monitor watches published metrics snapshots and raises alerts
// when resource usage crosses configured thresholds.
package monitor

import (
	"log"
	"sync"
	"time"

	"github.com/agentapi-dev/agentapi/internal/metrics"
)

// Thresholds are percentages above which an alert fires.
type Thresholds struct {
	CPUPercent    float64
	MemoryPercent float64
	DiskPercent   float64
}

// DefaultThresholds match typical host alerting defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{CPUPercent: 80, MemoryPercent: 85, DiskPercent: 90}
}

// Alert records a single threshold breach.
type Alert struct {
	Resource  string    `json:"resource"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	// retrigger cooldown per resource
	alertCooldown = 5 * time.Minute

	maxAlertHistory  = 1000
	trimAlertHistory = 500
)

// Monitor evaluates snapshots against thresholds and keeps a bounded
// alert history.
type Monitor struct {
	thresholds Thresholds

	mu       sync.Mutex
	history  []Alert
	lastSeen map[string]time.Time
	latest   *metrics.Snapshot
}

func New(thresholds Thresholds) *Monitor {
	return &Monitor{
		thresholds: thresholds,
		lastSeen:   make(map[string]time.Time),
	}
}

// Observe evaluates one snapshot. It is the callback wired to the metrics
// topic subscription.
func (m *Monitor) Observe(payload any) {
	snap, ok := payload.(metrics.Snapshot)
	if !ok {
		if p, ok := payload.(*metrics.Snapshot); ok {
			snap = *p
		} else {
			return
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.latest = &snap
	m.check("cpu", snap.CPUPercent, m.thresholds.CPUPercent, snap.Timestamp)
	m.check("memory", snap.MemoryPercent, m.thresholds.MemoryPercent, snap.Timestamp)
	m.check("disk", snap.DiskPercent, m.thresholds.DiskPercent, snap.Timestamp)
}

// check must be called with m.mu held.
func (m *Monitor) check(resource string, value, threshold float64, at time.Time) {
	if threshold <= 0 || value < threshold {
		return
	}

	if last, ok := m.lastSeen[resource]; ok && at.Sub(last) < alertCooldown {
		return
	}
	m.lastSeen[resource] = at

	alert := Alert{Resource: resource, Value: value, Threshold: threshold, Timestamp: at}
	m.history = append(m.history, alert)
	if len(m.history) > maxAlertHistory {
		m.history = m.history[len(m.history)-trimAlertHistory:]
	}

	log.Printf("ALERT: %s usage %.1f%% exceeds threshold %.1f%%", resource, value, threshold)
}

// Alerts returns alerts raised within the window, newest first.
func (m *Monitor) Alerts(window time.Duration) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-window)
	var out []Alert
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].Timestamp.Before(cutoff) {
			break
		}
		out = append(out, m.history[i])
	}
	return out
}

// Latest returns the most recently observed snapshot, or nil before the
// first tick.
func (m *Monitor) Latest() *metrics.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return nil
	}
	clone := *m.latest
	return &clone
}

// Healthy reports whether no alert fired in the last cooldown window.
func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) == 0 {
		return true
	}
	return time.Since(m.history[len(m.history)-1].Timestamp) >= alertCooldown
}
