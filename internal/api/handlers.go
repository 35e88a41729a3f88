package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentapi-dev/agentapi/internal/agent"
	"github.com/agentapi-dev/agentapi/pkg/auth"
	"github.com/agentapi-dev/agentapi/pkg/store"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	token, err := s.auth.Authenticate(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	if !s.fw.Running() {
		status = "stopped"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (s *Server) handleListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": s.fw.ListAgents()})
}

type spawnRequest struct {
	Name         string         `json:"name" binding:"required"`
	Role         string         `json:"role" binding:"required"`
	Capabilities []string       `json:"capabilities"`
	Resources    map[string]any `json:"resources"`
}

func (s *Server) handleSpawnAgent(c *gin.Context) {
	var req spawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and role are required"})
		return
	}

	def := agent.Def{
		Name:         req.Name,
		Role:         req.Role,
		Capabilities: req.Capabilities,
		Resources:    req.Resources,
	}

	a, err := s.fw.SpawnAgent(c.Request.Context(), def)
	if err != nil {
		var unknown *agent.UnknownRoleError
		if errors.As(err, &unknown) {
			c.JSON(http.StatusBadRequest, gin.H{"error": unknown.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	info := a.Info()
	rec := &store.AgentRecord{
		Name:         info.Name,
		Role:         info.Role,
		Status:       string(info.Status),
		Capabilities: info.Capabilities,
		Resources:    req.Resources,
	}
	if err := s.store.SaveAgent(c.Request.Context(), rec); err != nil {
		log.Printf("api: persist agent %s: %v", info.Name, err)
	}

	c.JSON(http.StatusCreated, info)
}

func (s *Server) handleGetAgent(c *gin.Context) {
	a, err := s.fw.Agent(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	c.JSON(http.StatusOK, a.Info())
}

func (s *Server) handleStopAgent(c *gin.Context) {
	name := c.Param("name")
	if err := s.fw.StopAgent(c.Request.Context(), name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.DeleteAgent(c.Request.Context(), name); err != nil {
		log.Printf("api: delete agent record %s: %v", name, err)
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAgentMessages(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	msgs, err := s.store.Messages(c.Request.Context(), c.Param("name"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type sendRequest struct {
	Kind       string         `json:"kind"`
	Sender     string         `json:"sender"`
	Receiver   string         `json:"receiver" binding:"required"`
	Capability string         `json:"capability" binding:"required"`
	Payload    map[string]any `json:"payload"`
}

func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiver and capability are required"})
		return
	}

	sender := req.Sender
	if sender == "" {
		if claims := claimsFrom(c); claims != nil {
			sender = "api:" + claims.Username
		}
	}

	kind := agent.Kind(req.Kind)
	if kind == "" {
		kind = agent.KindRequest
	}
	switch kind {
	case agent.KindCommand, agent.KindRequest, agent.KindEvent:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message kind"})
		return
	}

	msg := agent.NewMessage(kind, sender, req.Receiver, req.Capability, req.Payload)
	s.fw.Send(msg)

	if err := s.store.SaveMessage(c.Request.Context(), msg); err != nil {
		log.Printf("api: persist message %s: %v", msg.ID, err)
	}

	c.JSON(http.StatusAccepted, msg)
}

func (s *Server) handleMetrics(c *gin.Context) {
	snap, err := s.fw.Metrics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleMetricsHistory(c *gin.Context) {
	since := time.Time{}
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		since = t
	}

	history, err := s.store.MetricsHistory(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"metrics": history})
}

func (s *Server) handleAgentTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agent_types": s.fw.AgentRoles()})
}

func (s *Server) handleAlerts(c *gin.Context) {
	if s.monitor == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "monitoring is not enabled"})
		return
	}

	window := time.Hour
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window"})
			return
		}
		window = d
	}

	c.JSON(http.StatusOK, gin.H{"alerts": s.monitor.Alerts(window)})
}
