// Package metrics produces point-in-time system snapshots combining host
// figures with runtime counters from the bus, registry and lease manager.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/agentapi-dev/agentapi/pkg/observability"
)

// Snapshot is an immutable metrics value, produced on demand.
type Snapshot struct {
	CPUPercent     float64   `json:"cpu_percent"`
	MemoryPercent  float64   `json:"memory_percent"`
	DiskPercent    float64   `json:"disk_percent"`
	ActiveAgents   int       `json:"active_agents"`
	MailboxBacklog int       `json:"mailbox_backlog"`
	HeldLeases     int       `json:"held_leases"`
	Timestamp      time.Time `json:"timestamp"`
}

// Collector assembles snapshots. The funcs decouple it from the concrete bus,
// registry and lease manager types.
type Collector struct {
	backlog func() int
	agents  func() int
	leases  func() int

	// diskPath is the mount point measured for disk usage.
	diskPath string
}

// NewCollector creates a collector over the given counter sources.
func NewCollector(backlog, agents, leases func() int) *Collector {
	return &Collector{
		backlog:  backlog,
		agents:   agents,
		leases:   leases,
		diskPath: "/",
	}
}

// Collect produces a snapshot. Host figures come from the operating
// environment; a failure reading any of them fails the whole snapshot so a
// tick can report and retry.
func (c *Collector) Collect(ctx context.Context) (Snapshot, error) {
	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Snapshot{}, fmt.Errorf("cpu usage: %w", err)
	}
	var cpuPercent float64
	if len(cpuPercents) > 0 {
		cpuPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("memory usage: %w", err)
	}

	du, err := disk.UsageWithContext(ctx, c.diskPath)
	if err != nil {
		return Snapshot{}, fmt.Errorf("disk usage: %w", err)
	}

	snap := Snapshot{
		CPUPercent:     cpuPercent,
		MemoryPercent:  vm.UsedPercent,
		DiskPercent:    du.UsedPercent,
		ActiveAgents:   c.agents(),
		MailboxBacklog: c.backlog(),
		HeldLeases:     c.leases(),
		Timestamp:      time.Now().UTC(),
	}

	observability.SetActiveAgents(snap.ActiveAgents)
	observability.SetMailboxBacklog(snap.MailboxBacklog)
	observability.SetHeldLeases(snap.HeldLeases)

	return snap, nil
}
