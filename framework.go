package agentapi

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/agentapi-dev/agentapi/internal/agent"
	"github.com/agentapi-dev/agentapi/internal/bus"
	"github.com/agentapi-dev/agentapi/internal/lease"
	"github.com/agentapi-dev/agentapi/internal/metrics"
	"github.com/agentapi-dev/agentapi/internal/registry"
	"github.com/agentapi-dev/agentapi/pkg/observability"
)

// MetricsTopic is the broadcast topic the framework publishes system metrics
// snapshots on, once per tick.
const MetricsTopic = "system.metrics"

// Framework owns one message bus, one lease manager and one agent registry,
// and runs the periodic metrics-publish tick.
type Framework struct {
	cfg *Config

	bus       *bus.Bus
	leases    *lease.Manager
	registry  *registry.Registry
	collector *metrics.Collector

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a framework from the config. Nil config means defaults.
func New(cfg *Config) *Framework {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	b := bus.NewWithPollInterval(cfg.PollInterval.Duration)
	leases := lease.NewManager()
	reg := registry.New()

	return &Framework{
		cfg:       cfg,
		bus:       b,
		leases:    leases,
		registry:  reg,
		collector: metrics.NewCollector(b.Backlog, reg.Count, leases.HeldCount),
	}
}

// Start starts the bus and launches the metrics tick. Calling Start on a
// running framework is a no-op, and a stopped framework may be started
// again; agents do not survive a stop, so a restart begins with none.
func (f *Framework) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return nil
	}
	f.running = true

	f.bus.Start()

	tickCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.wg.Add(1)
	go f.tickLoop(tickCtx)

	log.Printf("framework: started (tick interval %s)", f.cfg.TickInterval.Duration)
	return nil
}

// Stop cancels the tick, stops the bus and stops every registered agent, in
// that order: agents cannot receive new messages once shutdown begins, but
// the registry is still available for in-flight stops.
func (f *Framework) Stop(ctx context.Context) error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	cancel := f.cancel
	f.mu.Unlock()

	cancel()
	f.wg.Wait()

	f.bus.Stop()
	f.registry.StopAll(ctx)

	log.Printf("framework: stopped")
	return nil
}

// Running reports whether the framework has been started and not stopped.
func (f *Framework) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// tickLoop publishes a metrics snapshot on MetricsTopic every tick interval.
// A failed tick is reported and the loop backs off briefly before retrying.
func (f *Framework) tickLoop(ctx context.Context) {
	defer f.wg.Done()

	interval := f.cfg.TickInterval.Duration
	backoff := f.cfg.TickBackoff.Duration

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		start := time.Now()
		snap, err := f.collector.Collect(ctx)
		if err != nil {
			log.Printf("framework: metrics tick: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			continue
		}

		f.bus.Publish(MetricsTopic, snap)
		observability.RecordTick(time.Since(start))
	}
}

// SpawnAgent creates an agent of the def's role through the role factory,
// registers it and starts it. A duplicate name replaces the old instance
// after stopping it.
func (f *Framework) SpawnAgent(ctx context.Context, def agent.Def) (*agent.Agent, error) {
	a, err := agent.NewFromRole(def, f.bus, f.leases)
	if err != nil {
		return nil, err
	}
	if err := f.registry.Register(ctx, a); err != nil {
		return nil, fmt.Errorf("register agent %s: %w", def.Name, err)
	}
	return a, nil
}

// StopAgent stops and removes the named agent. A no-op if absent.
func (f *Framework) StopAgent(ctx context.Context, name string) error {
	return f.registry.Unregister(ctx, name)
}

// Send routes a message through the bus. Silently dropped if the bus is not
// running.
func (f *Framework) Send(msg *agent.Message) {
	f.bus.Send(msg)
}

// Request builds a request message, sends it and returns it so the caller
// can pair the eventual response by correlation ID.
func (f *Framework) Request(sender, receiver, capability string, payload map[string]any) *agent.Message {
	msg := agent.NewRequest(sender, receiver, capability, payload)
	f.bus.Send(msg)
	return msg
}

// Receive returns the mailbox sequence for an agent name. Front ends use
// this to await responses addressed to them.
func (f *Framework) Receive(name string) <-chan *agent.Message {
	return f.bus.Receive(name)
}

// Subscribe registers a callback for a broadcast topic.
func (f *Framework) Subscribe(topic string, cb bus.EventHandler) {
	f.bus.Subscribe(topic, cb)
}

// Publish fans data out to every subscriber of the topic.
func (f *Framework) Publish(topic string, data any) {
	f.bus.Publish(topic, data)
}

// AcquireResource attempts a non-blocking exclusive lease on a resource.
func (f *Framework) AcquireResource(resourceID, owner string) bool {
	return f.leases.Acquire(resourceID, owner)
}

// ReleaseResource releases a lease if owner holds it.
func (f *Framework) ReleaseResource(resourceID, owner string) {
	f.leases.Release(resourceID, owner)
}

// ListAgents returns a snapshot of every live agent.
func (f *Framework) ListAgents() []agent.Info {
	return f.registry.List()
}

// Agent retrieves a live agent by name.
func (f *Framework) Agent(name string) (*agent.Agent, error) {
	return f.registry.Get(name)
}

// AgentRoles returns the role names the factory can create.
func (f *Framework) AgentRoles() []string {
	return agent.ListRoles()
}

// Metrics produces a current system metrics snapshot.
func (f *Framework) Metrics(ctx context.Context) (metrics.Snapshot, error) {
	return f.collector.Collect(ctx)
}

// Backlog returns the total number of queued messages across all mailboxes.
func (f *Framework) Backlog() int {
	return f.bus.Backlog()
}

// Config returns the framework configuration.
func (f *Framework) Config() *Config {
	return f.cfg
}
