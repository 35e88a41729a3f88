// Package store persists agent records, message history and metrics
// snapshots. The runtime itself never depends on the store; front ends and
// the backup manager feed it and read it back.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/agentapi-dev/agentapi/internal/agent"
	"github.com/agentapi-dev/agentapi/internal/metrics"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrStoreClosed is returned after Close.
var ErrStoreClosed = errors.New("store is closed")

// AgentRecord is the persisted view of an agent.
type AgentRecord struct {
	Name         string         `json:"name"`
	Role         string         `json:"role"`
	Status       string         `json:"status"`
	Capabilities []string       `json:"capabilities"`
	Resources    map[string]any `json:"resources,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Store is the persistence interface. Implementations must be safe for
// concurrent use.
type Store interface {
	// SaveAgent creates or updates an agent record.
	SaveAgent(ctx context.Context, rec *AgentRecord) error

	// LoadAgent retrieves an agent record by name. ErrNotFound if absent.
	LoadAgent(ctx context.Context, name string) (*AgentRecord, error)

	// DeleteAgent removes an agent record. A no-op if absent.
	DeleteAgent(ctx context.Context, name string) error

	// Agents returns all agent records.
	Agents(ctx context.Context) ([]*AgentRecord, error)

	// SaveMessage appends a message to the history of its sender and
	// receiver.
	SaveMessage(ctx context.Context, msg *agent.Message) error

	// Messages returns up to limit most recent messages sent to or from
	// the named agent, newest first.
	Messages(ctx context.Context, agentName string, limit int) ([]*agent.Message, error)

	// SaveMetrics appends a metrics snapshot.
	SaveMetrics(ctx context.Context, snap metrics.Snapshot) error

	// MetricsHistory returns snapshots taken at or after since, oldest
	// first.
	MetricsHistory(ctx context.Context, since time.Time) ([]metrics.Snapshot, error)

	// Ping checks the backing connection.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
