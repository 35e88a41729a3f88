package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentapi-dev/agentapi/internal/agent"
)

func newTestBus() *Bus {
	b := NewWithPollInterval(5 * time.Millisecond)
	b.Start()
	return b
}

func TestSendReceiveFIFO(t *testing.T) {
	b := newTestBus()
	defer b.Stop()

	for i := 0; i < 5; i++ {
		msg := agent.NewEvent("sender", "worker", map[string]any{"seq": i})
		b.Send(msg)
	}

	inbox := b.Receive("worker")
	for i := 0; i < 5; i++ {
		select {
		case msg := <-inbox:
			if got := msg.Payload["seq"]; got != i {
				t.Fatalf("message %d: got seq %v", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestSendWhileStoppedIsDropped(t *testing.T) {
	b := NewWithPollInterval(5 * time.Millisecond)

	// Never started: sends are silently dropped.
	b.Send(agent.NewEvent("a", "b", nil))
	if got := b.Backlog(); got != 0 {
		t.Fatalf("backlog = %d, want 0", got)
	}

	b.Start()
	b.Send(agent.NewEvent("a", "b", nil))
	if got := b.Backlog(); got != 1 {
		t.Fatalf("backlog = %d, want 1", got)
	}

	b.Stop()
	b.Send(agent.NewEvent("a", "b", nil))
	if got := b.Backlog(); got != 0 {
		t.Fatalf("backlog after stop = %d, want 0", got)
	}
}

func TestStopClosesReceive(t *testing.T) {
	b := newTestBus()
	inbox := b.Receive("idle-agent")

	done := make(chan struct{})
	go func() {
		// Drains until the channel closes.
		for range inbox {
		}
		close(done)
	}()

	b.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("receiver did not observe stop")
	}
}

func TestStopDiscardsQueued(t *testing.T) {
	b := newTestBus()

	b.Send(agent.NewEvent("a", "worker", nil))
	b.Send(agent.NewEvent("a", "worker", nil))
	b.Stop()

	if got := b.Backlog(); got != 0 {
		t.Fatalf("backlog = %d, want 0 after stop", got)
	}

	inbox := b.Receive("worker")
	select {
	case msg, ok := <-inbox:
		if ok {
			t.Fatalf("received %v from stopped bus", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("receive channel did not close")
	}
}

func TestRestartAfterStop(t *testing.T) {
	b := newTestBus()

	oldInbox := b.Receive("worker")
	b.Stop()

	select {
	case _, ok := <-oldInbox:
		if ok {
			t.Fatal("expected old inbox to be closed, got a message")
		}
	case <-time.After(time.Second):
		t.Fatal("old inbox not closed after stop")
	}

	b.Start()
	defer b.Stop()

	b.Send(agent.NewEvent("sender", "worker", map[string]any{"seq": 0}))
	if got := b.Backlog(); got != 1 {
		t.Fatalf("backlog after restart = %d, want 1", got)
	}

	inbox := b.Receive("worker")
	select {
	case msg := <-inbox:
		if got := msg.Payload["seq"]; got != 0 {
			t.Fatalf("got seq %v, want 0", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message after restart")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	b := newTestBus()
	defer b.Stop()

	var calls int32
	var mu sync.Mutex
	var seen []any

	for i := 0; i < 3; i++ {
		b.Subscribe("metrics", func(data any) {
			atomic.AddInt32(&calls, 1)
			mu.Lock()
			seen = append(seen, data)
			mu.Unlock()
		})
	}

	b.Publish("metrics", "snapshot")

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, d := range seen {
		if d != "snapshot" {
			t.Fatalf("subscriber saw %v", d)
		}
	}
}

func TestPublishIsolatesPanickingSubscriber(t *testing.T) {
	b := newTestBus()
	defer b.Stop()

	var healthy int32
	b.Subscribe("events", func(data any) {
		panic("broken subscriber")
	})
	b.Subscribe("events", func(data any) {
		atomic.AddInt32(&healthy, 1)
	})

	// Must not panic the publisher and must still run the healthy callback.
	b.Publish("events", 42)

	if got := atomic.LoadInt32(&healthy); got != 1 {
		t.Fatalf("healthy subscriber calls = %d, want 1", got)
	}
}

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	b := newTestBus()
	defer b.Stop()

	b.Publish("nobody-listens", "data")
}

func TestReceiveSeparateMailboxes(t *testing.T) {
	b := newTestBus()
	defer b.Stop()

	b.Send(agent.NewEvent("s", "alpha", map[string]any{"to": "alpha"}))
	b.Send(agent.NewEvent("s", "beta", map[string]any{"to": "beta"}))

	alpha := b.Receive("alpha")
	beta := b.Receive("beta")

	select {
	case msg := <-alpha:
		if msg.Payload["to"] != "alpha" {
			t.Fatalf("alpha got %v", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("alpha got nothing")
	}
	select {
	case msg := <-beta:
		if msg.Payload["to"] != "beta" {
			t.Fatalf("beta got %v", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("beta got nothing")
	}
}

func TestConcurrentSenders(t *testing.T) {
	b := newTestBus()
	defer b.Stop()

	const senders = 8
	const perSender = 50

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				b.Send(agent.NewEvent("s", "sink", nil))
			}
		}()
	}
	wg.Wait()

	if got := b.Backlog(); got != senders*perSender {
		t.Fatalf("backlog = %d, want %d", got, senders*perSender)
	}
}
