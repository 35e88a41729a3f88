package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"
)

// Runtime status reported by the health endpoints. A failing vital probe
// makes the runtime unready; a failing non-vital probe only degrades it.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusUnready  = "unready"
)

const defaultProbeTimeout = 5 * time.Second

// ErrBusStopped is reported by the bus probe while the framework is not
// running.
var ErrBusStopped = errors.New("message bus is not running")

// Probe is a named check against one runtime dependency, such as the
// store or the message bus. Vital probes gate readiness.
type Probe struct {
	Name    string
	Vital   bool
	Timeout time.Duration
	Check   func(context.Context) error
}

// ProbeResult is the outcome of one probe run.
type ProbeResult struct {
	OK      bool   `json:"ok"`
	Vital   bool   `json:"vital"`
	Error   string `json:"error,omitempty"`
	Elapsed string `json:"elapsed"`
}

// Report is the full health payload: probe outcomes plus live runtime
// sections contributed by the framework and the resource monitor.
type Report struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Uptime  string                 `json:"uptime"`
	Probes  map[string]ProbeResult `json:"probes"`
	Runtime map[string]any         `json:"runtime,omitempty"`
}

// Health runs registered probes on demand and assembles the report served
// on the observability port.
type Health struct {
	version string
	started time.Time

	mu     sync.RWMutex
	probes []Probe
	status map[string]func() any
}

// NewHealth creates a health reporter with no probes registered.
func NewHealth(version string) *Health {
	return &Health{
		version: version,
		started: time.Now(),
		status:  make(map[string]func() any),
	}
}

// AddProbe registers a probe. Zero timeout means the default.
func (h *Health) AddProbe(p Probe) {
	if p.Timeout <= 0 {
		p.Timeout = defaultProbeTimeout
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes = append(h.probes, p)
}

// AddStatus registers a runtime section for the report. The function is
// called on every report and its value rendered as JSON under the given
// name.
func (h *Health) AddStatus(name string, fn func() any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status[name] = fn
}

// Report runs every probe and collects the runtime sections. Probes run
// sequentially, each under its own timeout.
func (h *Health) Report(ctx context.Context) Report {
	h.mu.RLock()
	probes := make([]Probe, len(h.probes))
	copy(probes, h.probes)
	statusFns := make(map[string]func() any, len(h.status))
	for name, fn := range h.status {
		statusFns[name] = fn
	}
	h.mu.RUnlock()

	status := StatusReady
	results := make(map[string]ProbeResult, len(probes))
	for _, p := range probes {
		res := runProbe(ctx, p)
		results[p.Name] = res

		if res.OK {
			continue
		}
		if p.Vital {
			status = StatusUnready
		} else if status == StatusReady {
			status = StatusDegraded
		}
	}

	var runtimeState map[string]any
	if len(statusFns) > 0 {
		runtimeState = make(map[string]any, len(statusFns))
		for name, fn := range statusFns {
			runtimeState[name] = fn()
		}
	}

	return Report{
		Status:  status,
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Probes:  results,
		Runtime: runtimeState,
	}
}

// runProbe executes one check under its timeout. A check that outlives
// the timeout counts as failed even though its goroutine may linger.
func runProbe(ctx context.Context, p Probe) ProbeResult {
	start := time.Now()

	probeCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- p.Check(probeCtx) }()

	var err error
	select {
	case err = <-errCh:
	case <-probeCtx.Done():
		err = probeCtx.Err()
	}

	res := ProbeResult{
		OK:      err == nil,
		Vital:   p.Vital,
		Elapsed: time.Since(start).Round(time.Microsecond).String(),
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// Handler serves the full report. Unready maps to 503; degraded is still
// 200 so a flaky non-vital dependency does not take the service out of
// rotation.
func (h *Health) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := h.Report(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	}
}

// LivenessHandler answers the liveness probe. The process serving the
// request is alive, so this never fails.
func (h *Health) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadinessHandler answers the readiness probe: 503 while any vital probe
// fails, 200 otherwise.
func (h *Health) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := h.Report(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUnready {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": report.Status})
	}
}

// StoreProbe checks the persistence store via its Ping.
func StoreProbe(ping func(context.Context) error) Probe {
	return Probe{
		Name:  "store",
		Vital: true,
		Check: ping,
	}
}

// BusProbe checks that the framework's message bus is accepting messages.
func BusProbe(running func() bool) Probe {
	return Probe{
		Name:    "bus",
		Vital:   true,
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			if !running() {
				return ErrBusStopped
			}
			return nil
		},
	}
}
