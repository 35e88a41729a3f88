package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// chanTransport is a minimal in-memory Transport for exercising the loop
// without a full bus.
type chanTransport struct {
	mu     sync.Mutex
	boxes  map[string]chan *Message
	closed bool
}

func newChanTransport() *chanTransport {
	return &chanTransport{boxes: make(map[string]chan *Message)}
}

func (t *chanTransport) box(name string) chan *Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.boxes[name]
	if !ok {
		ch = make(chan *Message, 64)
		t.boxes[name] = ch
	}
	return ch
}

func (t *chanTransport) Send(msg *Message) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.box(msg.Receiver) <- msg
}

func (t *chanTransport) Receive(name string) <-chan *Message {
	return t.box(name)
}

type nopLeases struct{}

func (nopLeases) Acquire(resourceID, owner string) bool { return true }
func (nopLeases) Release(resourceID, owner string)      {}

func newEchoAgent(t *testing.T, tr Transport) *Agent {
	t.Helper()

	a := New(Def{Name: "echo", Role: "test"}, tr, nopLeases{})
	err := a.AddCapability(Capability{
		Name: "ping",
		Handler: func(ctx context.Context, payload map[string]any) (any, error) {
			return map[string]any{"pong": payload["value"]}, nil
		},
	})
	if err != nil {
		t.Fatalf("AddCapability: %v", err)
	}
	return a
}

func TestRequestGetsCorrelatedResponse(t *testing.T) {
	tr := newChanTransport()
	a := newEchoAgent(t, tr)

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(ctx)

	req := NewRequest("caller", "echo", "ping", map[string]any{"value": 5})
	tr.Send(req)

	select {
	case resp := <-tr.Receive("caller"):
		if resp.Kind != KindResponse {
			t.Fatalf("kind = %s, want response", resp.Kind)
		}
		if resp.CorrelationID != req.ID {
			t.Fatalf("correlation = %q, want %q", resp.CorrelationID, req.ID)
		}
		result, ok := resp.Payload["result"].(map[string]any)
		if !ok {
			t.Fatalf("payload = %v, want result map", resp.Payload)
		}
		if result["pong"] != 5 {
			t.Fatalf("pong = %v, want 5", result["pong"])
		}
	case <-time.After(time.Second):
		t.Fatal("no response received")
	}
}

func TestCommandProducesNoResponse(t *testing.T) {
	tr := newChanTransport()
	a := newEchoAgent(t, tr)

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(ctx)

	tr.Send(NewMessage(KindCommand, "caller", "echo", "ping", map[string]any{"value": 1}))

	select {
	case resp := <-tr.Receive("caller"):
		t.Fatalf("unexpected response to command: %v", resp)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestUnknownCapabilityIsDropped(t *testing.T) {
	tr := newChanTransport()
	a := newEchoAgent(t, tr)

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(ctx)

	tr.Send(NewRequest("caller", "echo", "does-not-exist", nil))
	// Known capability still works afterwards.
	tr.Send(NewRequest("caller", "echo", "ping", map[string]any{"value": "ok"}))

	select {
	case resp := <-tr.Receive("caller"):
		result := resp.Payload["result"].(map[string]any)
		if result["pong"] != "ok" {
			t.Fatalf("pong = %v", result["pong"])
		}
	case <-time.After(time.Second):
		t.Fatal("agent stopped processing after unknown capability")
	}
}

func TestHandlerPanicDoesNotKillLoop(t *testing.T) {
	tr := newChanTransport()
	a := New(Def{Name: "flaky", Role: "test"}, tr, nopLeases{})

	if err := a.AddCapability(Capability{
		Name: "explode",
		Handler: func(ctx context.Context, payload map[string]any) (any, error) {
			panic("boom")
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := a.AddCapability(Capability{
		Name: "ok",
		Handler: func(ctx context.Context, payload map[string]any) (any, error) {
			return "fine", nil
		},
	}); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(ctx)

	tr.Send(NewRequest("caller", "flaky", "explode", nil))
	tr.Send(NewRequest("caller", "flaky", "ok", nil))

	select {
	case resp := <-tr.Receive("caller"):
		if resp.Payload["result"] != "fine" {
			t.Fatalf("result = %v", resp.Payload["result"])
		}
	case <-time.After(time.Second):
		t.Fatal("loop died after handler panic")
	}
}

func TestHandlerErrorProducesNoResponse(t *testing.T) {
	tr := newChanTransport()
	a := New(Def{Name: "failing", Role: "test"}, tr, nopLeases{})

	if err := a.AddCapability(Capability{
		Name: "fail",
		Handler: func(ctx context.Context, payload map[string]any) (any, error) {
			return nil, errors.New("nope")
		},
	}); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(ctx)

	tr.Send(NewRequest("caller", "failing", "fail", nil))

	select {
	case resp := <-tr.Receive("caller"):
		t.Fatalf("unexpected response for failed handler: %v", resp)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestLifecycle(t *testing.T) {
	tr := newChanTransport()
	a := newEchoAgent(t, tr)
	ctx := context.Background()

	if got := a.Status(); got != StatusIdle {
		t.Fatalf("status = %s, want idle", got)
	}

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := a.Status(); got != StatusRunning {
		t.Fatalf("status = %s, want running", got)
	}

	// Double start is rejected.
	if err := a.Start(ctx); !errors.Is(err, ErrNotIdle) {
		t.Fatalf("second Start = %v, want ErrNotIdle", err)
	}

	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := a.Status(); got != StatusStopped {
		t.Fatalf("status = %s, want stopped", got)
	}

	// Stop is idempotent.
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	// A stopped agent cannot be restarted.
	if err := a.Start(ctx); !errors.Is(err, ErrNotIdle) {
		t.Fatalf("restart = %v, want ErrNotIdle", err)
	}
}

func TestNoProcessingAfterStop(t *testing.T) {
	tr := newChanTransport()
	a := newEchoAgent(t, tr)
	ctx := context.Background()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	tr.Send(NewRequest("caller", "echo", "ping", map[string]any{"value": 1}))

	select {
	case resp := <-tr.Receive("caller"):
		t.Fatalf("stopped agent produced response: %v", resp)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestAddCapabilityAfterStartFails(t *testing.T) {
	tr := newChanTransport()
	a := newEchoAgent(t, tr)
	ctx := context.Background()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop(ctx)

	err := a.AddCapability(Capability{
		Name:    "late",
		Handler: func(ctx context.Context, payload map[string]any) (any, error) { return nil, nil },
	})
	if err == nil {
		t.Fatal("AddCapability after Start should fail")
	}
}

func TestAddCapabilityRequiresHandler(t *testing.T) {
	a := New(Def{Name: "x", Role: "test"}, newChanTransport(), nopLeases{})
	if err := a.AddCapability(Capability{Name: "broken"}); err == nil {
		t.Fatal("nil handler should be rejected")
	}
}
