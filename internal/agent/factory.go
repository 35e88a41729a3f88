package agent

import (
	"fmt"
	"sync"
)

// SetupFunc populates a freshly created agent with its capabilities. It runs
// exactly once, before the agent starts.
type SetupFunc func(a *Agent) error

// Roles is a registry of role name -> setup function. The zero value is not
// usable; create instances with NewRoles.
type Roles struct {
	mu     sync.RWMutex
	setups map[string]SetupFunc
}

// NewRoles creates an empty role registry (useful for testing).
func NewRoles() *Roles {
	return &Roles{setups: make(map[string]SetupFunc)}
}

var defaultRoles = NewRoles()

// Register adds a role to the registry, replacing any previous registration.
func (r *Roles) Register(role string, setup SetupFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setups[role] = setup
}

// Setup returns the setup function for a role.
func (r *Roles) Setup(role string) (SetupFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.setups[role]
	return s, ok
}

// List returns the registered role names.
func (r *Roles) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.setups))
	for name := range r.setups {
		names = append(names, name)
	}
	return names
}

// New creates an agent for the def's role and runs its setup.
func (r *Roles) New(def Def, bus Transport, leases Leases) (*Agent, error) {
	setup, ok := r.Setup(def.Role)
	if !ok {
		return nil, &UnknownRoleError{Role: def.Role}
	}

	a := New(def, bus, leases)
	if err := setup(a); err != nil {
		return nil, fmt.Errorf("setup agent %s (role %s): %w", def.Name, def.Role, err)
	}
	return a, nil
}

// RegisterRole registers a role with the default registry. Concrete agent
// packages call this from init().
func RegisterRole(role string, setup SetupFunc) {
	defaultRoles.Register(role, setup)
}

// NewFromRole creates an agent from the default registry.
func NewFromRole(def Def, bus Transport, leases Leases) (*Agent, error) {
	return defaultRoles.New(def, bus, leases)
}

// ListRoles returns the role names known to the default registry.
func ListRoles() []string {
	return defaultRoles.List()
}
