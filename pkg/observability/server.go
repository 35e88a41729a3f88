package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Server serves the operational endpoints, separate from the public API:
// Prometheus metrics on /metrics and the probes the deployment manifests
// point Kubernetes at on /health, /health/live and /health/ready.
type Server struct {
	httpServer *http.Server
}

// NewServer wires the health reporter and the metrics registry into an
// HTTP server listening on the given port.
func NewServer(port int, health *Health) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	mux.HandleFunc("/health", health.Handler())
	mux.HandleFunc("/health/live", health.LivenessHandler())
	mux.HandleFunc("/health/ready", health.ReadinessHandler())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Start blocks serving until Shutdown or a listener error.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
