package lease

import (
	"fmt"
	"sync"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	m := NewManager()

	if !m.Acquire("gpu-0", "trainer") {
		t.Fatal("first acquire should succeed")
	}
	if owner, ok := m.Owner("gpu-0"); !ok || owner != "trainer" {
		t.Fatalf("owner = %q, %v", owner, ok)
	}

	m.Release("gpu-0", "trainer")
	if _, ok := m.Owner("gpu-0"); ok {
		t.Fatal("lease should be free after release")
	}
}

func TestAcquireHeldResourceFails(t *testing.T) {
	m := NewManager()

	if !m.Acquire("gpu-0", "trainer") {
		t.Fatal("first acquire should succeed")
	}
	if m.Acquire("gpu-0", "evaluator") {
		t.Fatal("second acquire of held resource should fail")
	}

	// Holder keeps the lease.
	if owner, _ := m.Owner("gpu-0"); owner != "trainer" {
		t.Fatalf("owner = %q, want trainer", owner)
	}

	m.Release("gpu-0", "trainer")
	if !m.Acquire("gpu-0", "evaluator") {
		t.Fatal("acquire after release should succeed")
	}
}

func TestReacquireByHolderFails(t *testing.T) {
	m := NewManager()

	m.Acquire("db", "writer")
	if m.Acquire("db", "writer") {
		t.Fatal("holder re-acquiring its own lease should fail")
	}
}

func TestReleaseByNonOwnerIsNoop(t *testing.T) {
	m := NewManager()

	m.Acquire("db", "writer")
	m.Release("db", "reader")

	if owner, _ := m.Owner("db"); owner != "writer" {
		t.Fatalf("owner = %q, want writer after foreign release", owner)
	}
}

func TestReleaseUnheldIsNoop(t *testing.T) {
	m := NewManager()
	m.Release("never-acquired", "anyone")
	if got := m.HeldCount(); got != 0 {
		t.Fatalf("held count = %d, want 0", got)
	}
}

func TestIndependentResources(t *testing.T) {
	m := NewManager()

	if !m.Acquire("gpu-0", "a") || !m.Acquire("gpu-1", "b") {
		t.Fatal("different resources must not conflict")
	}
	if got := m.HeldCount(); got != 2 {
		t.Fatalf("held count = %d, want 2", got)
	}
}

func TestConcurrentAcquireExactlyOneWinner(t *testing.T) {
	m := NewManager()

	const contenders = 32
	var wg sync.WaitGroup
	wins := make(chan string, contenders)

	for i := 0; i < contenders; i++ {
		owner := fmt.Sprintf("agent-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Acquire("shared", owner) {
				wins <- owner
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("winners = %v, want exactly one", winners)
	}
	if owner, _ := m.Owner("shared"); owner != winners[0] {
		t.Fatalf("owner = %q, want %q", owner, winners[0])
	}
}
