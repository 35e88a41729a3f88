package agent

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/agentapi-dev/agentapi/pkg/observability"
)

// Agent is a named, stateful unit that consumes its mailbox while running and
// dispatches each message to a capability handler. Agents are single-use:
// once stopped they cannot be restarted.
type Agent struct {
	def    Def
	bus    Transport
	leases Leases

	mu     sync.RWMutex
	status Status
	caps   map[string]Capability

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an agent in the Idle state. Capabilities are added by the role
// setup function before Start.
func New(def Def, bus Transport, leases Leases) *Agent {
	return &Agent{
		def:    def,
		bus:    bus,
		leases: leases,
		status: StatusIdle,
		caps:   make(map[string]Capability),
	}
}

// Name returns the agent's unique name.
func (a *Agent) Name() string { return a.def.Name }

// Role returns the agent's role type.
func (a *Agent) Role() string { return a.def.Role }

// Def returns the definition the agent was created from.
func (a *Agent) Def() Def { return a.def }

// Leases returns the lease manager handle shared with this agent. Handlers
// never use it directly; it is exposed for collaborators that coordinate
// resources on the agent's behalf.
func (a *Agent) Leases() Leases { return a.leases }

// Status returns the agent's current lifecycle state.
func (a *Agent) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// AddCapability registers a capability. Capabilities are registered once
// during initialization and cannot be added after the agent starts.
func (a *Agent) AddCapability(c Capability) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != StatusIdle {
		return fmt.Errorf("agent %s: capabilities are fixed after start", a.def.Name)
	}
	if c.Handler == nil {
		return fmt.Errorf("agent %s: capability %s has no handler", a.def.Name, c.Name)
	}
	a.caps[c.Name] = c
	return nil
}

// Capabilities returns the sorted-insensitive list of capability names.
func (a *Agent) Capabilities() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.caps))
	for name := range a.caps {
		names = append(names, name)
	}
	return names
}

// Info returns a value snapshot of the agent.
func (a *Agent) Info() Info {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.caps))
	for name := range a.caps {
		names = append(names, name)
	}
	return Info{
		Name:         a.def.Name,
		Role:         a.def.Role,
		Status:       a.status,
		Capabilities: names,
	}
}

// Start transitions Idle -> Running and launches the message loop. Starting
// an agent that is not idle returns ErrNotIdle.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.status != StatusIdle {
		a.mu.Unlock()
		return fmt.Errorf("agent %s: %w", a.def.Name, ErrNotIdle)
	}
	a.status = StatusRunning

	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	a.wg.Add(1)
	go a.loop(loopCtx)
	return nil
}

// Stop transitions Running -> Stopped, cancels the loop's blocking wait and
// waits for it to unwind. No capability is invoked after Stop returns.
func (a *Agent) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.status != StatusRunning {
		a.mu.Unlock()
		return nil
	}
	a.status = StatusStopped
	cancel := a.cancel
	a.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("agent %s: stop: %w", a.def.Name, ctx.Err())
	}
}

// loop consumes the agent's mailbox until the context is canceled or the bus
// stops. Handler failures never terminate the loop.
func (a *Agent) loop(ctx context.Context) {
	defer a.wg.Done()

	inbox := a.bus.Receive(a.def.Name)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-inbox:
			if !ok {
				// Bus stopped.
				return
			}
			a.handle(ctx, msg)
		}
	}
}

func (a *Agent) handle(ctx context.Context, msg *Message) {
	a.mu.RLock()
	cap, ok := a.caps[msg.Capability]
	a.mu.RUnlock()

	if !ok {
		log.Printf("agent %s: dropping message %s: unknown capability %q", a.def.Name, msg.ID, msg.Capability)
		observability.RecordUnknownCapability(a.def.Name)
		return
	}

	result, err := invoke(ctx, cap.Handler, msg.Payload)
	if err != nil {
		// No response is sent for a failed request; the caller owns its
		// own timeout if it needs a guaranteed answer.
		log.Printf("agent %s: capability %s failed for message %s: %v", a.def.Name, msg.Capability, msg.ID, err)
		observability.RecordHandlerFailure(a.def.Name, msg.Capability)
		return
	}
	observability.RecordHandlerSuccess(a.def.Name, msg.Capability)

	if msg.Kind == KindRequest {
		a.bus.Send(NewResponse(a.def.Name, msg, result))
	}
}

// invoke runs a handler, converting a panic into an error so one misbehaving
// capability cannot take down the loop.
func invoke(ctx context.Context, h Handler, payload map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, payload)
}
