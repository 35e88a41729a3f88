// Package api is the REST front end: a gin server exposing agent lifecycle,
// messaging, metrics and alert endpoints on top of the framework.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentapi-dev/agentapi/internal/monitor"
	"github.com/agentapi-dev/agentapi/pkg/auth"
	"github.com/agentapi-dev/agentapi/pkg/security"
	"github.com/agentapi-dev/agentapi/pkg/store"

	agentapi "github.com/agentapi-dev/agentapi"
)

// Server exposes the framework over HTTP.
type Server struct {
	fw      *agentapi.Framework
	auth    *auth.Manager
	store   store.Store
	monitor *monitor.Monitor
	limiter *security.RateLimiter

	engine *gin.Engine
	http   *http.Server
}

// NewServer wires handlers and middleware. The monitor may be nil, in which
// case the alerts endpoint returns 404.
func NewServer(cfg agentapi.APIConfig, fw *agentapi.Framework, authMgr *auth.Manager, st store.Store, mon *monitor.Monitor) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		fw:      fw,
		auth:    authMgr,
		store:   st,
		monitor: mon,
		limiter: security.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		engine:  engine,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.POST("/auth/login", s.handleLogin)

	v1 := s.engine.Group("/v1")
	v1.Use(s.metricsMiddleware(), s.rateLimitMiddleware(), s.jwtMiddleware())
	{
		v1.GET("/agents", s.requirePermission("read"), s.handleListAgents)
		v1.POST("/agents", s.requirePermission("write"), s.handleSpawnAgent)
		v1.GET("/agents/:name", s.requirePermission("read"), s.handleGetAgent)
		v1.DELETE("/agents/:name", s.requirePermission("write"), s.handleStopAgent)
		v1.GET("/agents/:name/messages", s.requirePermission("read"), s.handleAgentMessages)

		v1.POST("/messages", s.requirePermission("write"), s.handleSendMessage)

		v1.GET("/metrics", s.requirePermission("read"), s.handleMetrics)
		v1.GET("/metrics/history", s.requirePermission("read"), s.handleMetricsHistory)

		v1.GET("/agent-types", s.requirePermission("read"), s.handleAgentTypes)
		v1.GET("/alerts", s.requirePermission("read"), s.handleAlerts)
	}
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving. It blocks until the server exits.
func (s *Server) Start() error {
	log.Printf("api: listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
