package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passingProbe(name string, vital bool) Probe {
	return Probe{
		Name:  name,
		Vital: vital,
		Check: func(ctx context.Context) error { return nil },
	}
}

func failingProbe(name string, vital bool) Probe {
	return Probe{
		Name:  name,
		Vital: vital,
		Check: func(ctx context.Context) error { return errors.New("down") },
	}
}

func TestReportReady(t *testing.T) {
	h := NewHealth("test")
	h.AddProbe(passingProbe("store", true))
	h.AddProbe(passingProbe("bus", true))

	report := h.Report(context.Background())
	assert.Equal(t, StatusReady, report.Status)
	assert.Equal(t, "test", report.Version)
	require.Len(t, report.Probes, 2)
	assert.True(t, report.Probes["store"].OK)
	assert.True(t, report.Probes["bus"].OK)
}

func TestVitalProbeFailureMakesUnready(t *testing.T) {
	h := NewHealth("test")
	h.AddProbe(passingProbe("bus", true))
	h.AddProbe(failingProbe("store", true))

	report := h.Report(context.Background())
	assert.Equal(t, StatusUnready, report.Status)
	assert.False(t, report.Probes["store"].OK)
	assert.Equal(t, "down", report.Probes["store"].Error)
}

func TestNonVitalProbeFailureDegrades(t *testing.T) {
	h := NewHealth("test")
	h.AddProbe(passingProbe("store", true))
	h.AddProbe(failingProbe("cache", false))

	report := h.Report(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
}

func TestProbeTimeout(t *testing.T) {
	h := NewHealth("test")
	h.AddProbe(Probe{
		Name:    "slow",
		Vital:   true,
		Timeout: 10 * time.Millisecond,
		Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	report := h.Report(context.Background())
	assert.Equal(t, StatusUnready, report.Status)
	assert.Contains(t, report.Probes["slow"].Error, "deadline")
}

func TestRuntimeSections(t *testing.T) {
	h := NewHealth("test")
	h.AddStatus("agents", func() any { return []string{"worker-1"} })
	h.AddStatus("monitor", func() any {
		return map[string]any{"healthy": true}
	})

	report := h.Report(context.Background())
	require.Len(t, report.Runtime, 2)
	assert.Equal(t, []string{"worker-1"}, report.Runtime["agents"])

	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"agents":["worker-1"]`)
	assert.Contains(t, string(data), `"healthy":true`)
}

func TestHealthHandlerStatusCodes(t *testing.T) {
	h := NewHealth("test")
	h.AddProbe(passingProbe("store", true))

	rec := httptest.NewRecorder()
	h.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h.AddProbe(failingProbe("bus", true))
	rec = httptest.NewRecorder()
	h.Handler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusUnready, report.Status)
}

func TestReadinessHandler(t *testing.T) {
	h := NewHealth("test")
	h.AddProbe(failingProbe("cache", false))

	// Degraded still counts as ready for traffic.
	rec := httptest.NewRecorder()
	h.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h.AddProbe(failingProbe("store", true))
	rec = httptest.NewRecorder()
	h.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLivenessHandlerAlwaysOK(t *testing.T) {
	h := NewHealth("test")
	h.AddProbe(failingProbe("store", true))

	rec := httptest.NewRecorder()
	h.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBusProbe(t *testing.T) {
	running := false
	p := BusProbe(func() bool { return running })

	assert.ErrorIs(t, p.Check(context.Background()), ErrBusStopped)
	running = true
	assert.NoError(t, p.Check(context.Background()))
}

func TestStoreProbe(t *testing.T) {
	p := StoreProbe(func(ctx context.Context) error { return nil })
	assert.Equal(t, "store", p.Name)
	assert.True(t, p.Vital)
	assert.NoError(t, p.Check(context.Background()))
}
