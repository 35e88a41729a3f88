package agent

import (
	"context"
	"errors"
	"fmt"
)

// Status represents an agent's lifecycle state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusBusy    Status = "busy"
	StatusError   Status = "error"
	StatusStopped Status = "stopped"
)

// Permission declares an access level a capability requires. Permissions are
// carried on capability definitions and enforced by front ends; the core
// dispatch path does not check them.
type Permission string

const (
	PermissionRead    Permission = "read"
	PermissionWrite   Permission = "write"
	PermissionExecute Permission = "execute"
	PermissionAdmin   Permission = "admin"
)

// Handler is a capability implementation: a pure mapping from a message
// payload to a result. Handlers must not touch the bus or the lease manager;
// the loop owns all coordination around them.
type Handler func(ctx context.Context, payload map[string]any) (any, error)

// Capability is a named operation an agent can perform, invoked by message
// dispatch. The schema is informational (reserved for payload validation by
// front ends) and is not consulted during dispatch.
type Capability struct {
	Name        string
	Handler     Handler
	Schema      map[string]any
	Permissions []Permission
}

// Def describes an agent instance to be created through the role factory.
type Def struct {
	Name         string         `yaml:"name"`
	Role         string         `yaml:"role"`
	Capabilities []string       `yaml:"capabilities,omitempty"`
	Resources    map[string]any `yaml:"resources,omitempty"`
}

// Transport is the slice of the message bus an agent needs: enqueue outgoing
// messages and consume its own mailbox.
type Transport interface {
	// Send routes a message to its receiver's mailbox. Dropped silently if
	// the bus is not running.
	Send(msg *Message)

	// Receive returns the mailbox sequence for the named agent. The channel
	// closes when the bus stops.
	Receive(name string) <-chan *Message
}

// Leases is the slice of the lease manager exposed to agents.
type Leases interface {
	// Acquire attempts to take exclusive ownership of a resource. Non-blocking.
	Acquire(resourceID, owner string) bool

	// Release gives up ownership. A no-op unless owner holds the resource.
	Release(resourceID, owner string)
}

// Info is a point-in-time snapshot of an agent, safe to hand to callers.
type Info struct {
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	Status       Status   `json:"status"`
	Capabilities []string `json:"capabilities"`
}

// ErrAgentNotFound is returned when an agent is not found in the registry.
var ErrAgentNotFound = errors.New("agent not found")

// ErrNotIdle is returned when Start is called on an agent that has already
// been started. Agents are single-use: create a new instance to restart.
var ErrNotIdle = errors.New("agent is not idle")

// UnknownRoleError is returned by the factory for unregistered role names.
type UnknownRoleError struct {
	Role string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown agent role: %s", e.Role)
}
