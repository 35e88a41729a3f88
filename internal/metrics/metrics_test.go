package metrics

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestCollect(t *testing.T) {
	c := NewCollector(
		func() int { return 7 },
		func() int { return 3 },
		func() int { return 2 },
	)

	snap, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if snap.MailboxBacklog != 7 || snap.ActiveAgents != 3 || snap.HeldLeases != 2 {
		t.Fatalf("runtime gauges = %+v", snap)
	}
	if snap.CPUPercent < 0 || snap.CPUPercent > 100 {
		t.Fatalf("cpu percent = %f", snap.CPUPercent)
	}
	if snap.MemoryPercent <= 0 || snap.MemoryPercent > 100 {
		t.Fatalf("memory percent = %f", snap.MemoryPercent)
	}
	if snap.DiskPercent < 0 || snap.DiskPercent > 100 {
		t.Fatalf("disk percent = %f", snap.DiskPercent)
	}
	if time.Since(snap.Timestamp) > time.Minute {
		t.Fatalf("timestamp = %s", snap.Timestamp)
	}
}

func TestSnapshotJSONFieldNames(t *testing.T) {
	snap := Snapshot{CPUPercent: 1, Timestamp: time.Now().UTC()}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"cpu_percent", "memory_percent", "disk_percent", "active_agents", "mailbox_backlog", "held_leases", "timestamp"} {
		if _, ok := m[key]; !ok {
			t.Fatalf("missing json key %q in %s", key, data)
		}
	}
}
