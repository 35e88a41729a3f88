// Package registry owns the set of live agents and serializes their
// lifecycle against concurrent registration.
package registry

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agentapi-dev/agentapi/internal/agent"
	"github.com/agentapi-dev/agentapi/pkg/observability"
)

// Registry maps agent names to live instances. An agent name maps to at most
// one instance at any time, and the live set holds exactly the agents that
// have been started and not yet stopped.
type Registry struct {
	mu     sync.Mutex
	agents map[string]*agent.Agent
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{agents: make(map[string]*agent.Agent)}
}

// Register inserts the agent into the live set and starts it. If an agent
// with the same name already exists it is stopped first, then replaced:
// silently shadowing a running agent would leak its loop.
func (r *Registry) Register(ctx context.Context, a *agent.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if old, exists := r.agents[name]; exists {
		log.Printf("registry: replacing agent %s (stopping previous instance)", name)
		if err := old.Stop(ctx); err != nil {
			return err
		}
		// The old instance is no longer live; drop it now so a failed
		// Start below cannot leave a stopped agent in the set.
		delete(r.agents, name)
		observability.SetActiveAgents(len(r.agents))
	}

	if err := a.Start(ctx); err != nil {
		return err
	}
	r.agents[name] = a
	observability.SetActiveAgents(len(r.agents))
	return nil
}

// Unregister stops the named agent, blocking until its loop has fully
// terminated, and removes it. A no-op if the name is absent.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, exists := r.agents[name]
	if !exists {
		return nil
	}
	if err := a.Stop(ctx); err != nil {
		return err
	}
	delete(r.agents, name)
	observability.SetActiveAgents(len(r.agents))
	return nil
}

// Get retrieves a live agent by name.
func (r *Registry) Get(name string) (*agent.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, exists := r.agents[name]
	if !exists {
		return nil, agent.ErrAgentNotFound
	}
	return a, nil
}

// List returns a value snapshot of every live agent. The guard is released
// before the snapshots are handed out, so a concurrent Unregister never
// blocks on a reader.
func (r *Registry) List() []agent.Info {
	r.mu.Lock()
	agents := make([]*agent.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	r.mu.Unlock()

	infos := make([]agent.Info, 0, len(agents))
	for _, a := range agents {
		infos = append(infos, a.Info())
	}
	return infos
}

// Count returns the number of live agents.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}

// StopAll stops every live agent concurrently, then clears the set.
// Individual failures are logged, not propagated.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	agents := make([]*agent.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	r.agents = make(map[string]*agent.Agent)
	r.mu.Unlock()

	var g errgroup.Group
	for _, a := range agents {
		a := a
		g.Go(func() error {
			if err := a.Stop(ctx); err != nil {
				log.Printf("registry: stopping agent %s: %v", a.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	observability.SetActiveAgents(0)
}
