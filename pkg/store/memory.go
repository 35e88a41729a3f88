package store

import (
	"context"
	"sync"
	"time"

	"github.com/agentapi-dev/agentapi/internal/agent"
	"github.com/agentapi-dev/agentapi/internal/metrics"
)

// maxHistoryPerAgent caps the per-agent message history in memory.
const maxHistoryPerAgent = 1000

// maxMetricsHistory caps the retained metrics snapshots. At one snapshot
// per ten-second tick this keeps roughly a day of history.
const maxMetricsHistory = 8640

// MemoryStore is an in-memory Store, the default backend and the one tests
// use.
type MemoryStore struct {
	mu       sync.RWMutex
	agents   map[string]*AgentRecord
	messages map[string][]*agent.Message
	history  []metrics.Snapshot
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:   make(map[string]*AgentRecord),
		messages: make(map[string][]*agent.Message),
	}
}

func (s *MemoryStore) SaveAgent(ctx context.Context, rec *AgentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	clone := *rec
	if existing, ok := s.agents[rec.Name]; ok {
		clone.CreatedAt = existing.CreatedAt
	} else if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	clone.UpdatedAt = time.Now().UTC()
	s.agents[rec.Name] = &clone
	return nil
}

func (s *MemoryStore) LoadAgent(ctx context.Context, name string) (*AgentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rec, ok := s.agents[name]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *MemoryStore) DeleteAgent(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.agents, name)
	return nil
}

func (s *MemoryStore) Agents(ctx context.Context) ([]*AgentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	out := make([]*AgentRecord, 0, len(s.agents))
	for _, rec := range s.agents {
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}

func (s *MemoryStore) SaveMessage(ctx context.Context, msg *agent.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	for _, name := range []string{msg.Sender, msg.Receiver} {
		if name == "" {
			continue
		}
		s.messages[name] = append(s.messages[name], msg)
		if n := len(s.messages[name]); n > maxHistoryPerAgent {
			s.messages[name] = s.messages[name][n-maxHistoryPerAgent:]
		}
	}
	return nil
}

func (s *MemoryStore) Messages(ctx context.Context, agentName string, limit int) ([]*agent.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	history := s.messages[agentName]
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}

	// Newest first.
	out := make([]*agent.Message, 0, limit)
	for i := len(history) - 1; i >= len(history)-limit; i-- {
		out = append(out, history[i])
	}
	return out, nil
}

func (s *MemoryStore) SaveMetrics(ctx context.Context, snap metrics.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.history = append(s.history, snap)
	if n := len(s.history); n > maxMetricsHistory {
		s.history = s.history[n-maxMetricsHistory:]
	}
	return nil
}

func (s *MemoryStore) MetricsHistory(ctx context.Context, since time.Time) ([]metrics.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var out []metrics.Snapshot
	for _, snap := range s.history {
		if !snap.Timestamp.Before(since) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
