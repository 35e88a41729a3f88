// Package lease implements advisory exclusive ownership of named resources.
// A lease is held by at most one owner at a time; nothing stops an agent from
// touching a resource without the lease, so correctness depends on all
// participants honoring the protocol.
package lease

import (
	"sync"

	"github.com/agentapi-dev/agentapi/pkg/observability"
)

// Manager maps resource identifiers to their current owner. Lease entries
// are created lazily on first access and live for the lifetime of the
// manager; resource identifiers are expected to be low-cardinality.
type Manager struct {
	mu     sync.Mutex
	owners map[string]string
}

// NewManager creates an empty lease manager.
func NewManager() *Manager {
	return &Manager{owners: make(map[string]string)}
}

// Acquire attempts to take exclusive ownership of a resource. The check and
// the acquisition happen atomically under the manager lock, so concurrent
// callers can never both succeed. Non-blocking: a held resource returns
// false immediately.
func (m *Manager) Acquire(resourceID, owner string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.owners[resourceID]; held {
		observability.RecordLeaseAcquire(false)
		return false
	}
	m.owners[resourceID] = owner
	observability.RecordLeaseAcquire(true)
	return true
}

// Release gives up ownership of a resource. Releasing a resource the caller
// does not own is a no-op, so one agent cannot drop another's lease.
func (m *Manager) Release(resourceID, owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.owners[resourceID] == owner {
		delete(m.owners, resourceID)
	}
}

// Owner returns the current owner of a resource, if any.
func (m *Manager) Owner(resourceID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, held := m.owners[resourceID]
	return owner, held
}

// HeldCount returns the number of currently held leases.
func (m *Manager) HeldCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.owners)
}
