// Package bus implements the in-process message bus: one unbounded FIFO
// mailbox per receiver name for point-to-point messages, plus a topic
// subscription table for broadcast events.
package bus

import (
	"log"
	"sync"
	"time"

	"github.com/agentapi-dev/agentapi/internal/agent"
	"github.com/agentapi-dev/agentapi/pkg/observability"
)

// DefaultPollInterval bounds how long a blocked receiver waits before
// re-checking for a stop signal.
const DefaultPollInterval = 100 * time.Millisecond

// EventHandler is a broadcast subscriber callback.
type EventHandler func(data any)

// Bus routes point-to-point messages to per-receiver mailboxes and fans out
// broadcast events to topic subscribers. All methods are safe for concurrent
// use.
type Bus struct {
	mu      sync.Mutex
	boxes   map[string]*mailbox
	subs    map[string][]EventHandler
	running bool
	stopCh  chan struct{}
	poll    time.Duration
}

// mailbox is one receiver's unbounded FIFO queue.
type mailbox struct {
	queue []*agent.Message
}

// New creates a bus. It does not accept messages until Start.
func New() *Bus {
	return NewWithPollInterval(DefaultPollInterval)
}

// NewWithPollInterval creates a bus with a custom receiver poll interval.
// Tests use a short interval to observe stop promptly.
func NewWithPollInterval(poll time.Duration) *Bus {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Bus{
		boxes:  make(map[string]*mailbox),
		subs:   make(map[string][]EventHandler),
		stopCh: make(chan struct{}),
		poll:   poll,
	}
}

// Start marks the bus running. A stopped bus may be started again; it
// resumes with empty mailboxes, and receive channels handed out before the
// stop stay closed.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true
	b.stopCh = make(chan struct{})
}

// Stop marks the bus not-running, discards all queued messages and wakes
// every blocked receiver. Pending messages are not delivered.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}
	b.running = false

	for name, box := range b.boxes {
		if n := len(box.queue); n > 0 {
			log.Printf("bus: discarding %d queued messages for %s", n, name)
		}
		box.queue = nil
	}
	close(b.stopCh)
}

// Running reports whether the bus accepts messages.
func (b *Bus) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Send appends a message to the tail of the receiver's mailbox, creating the
// mailbox on first use. If the bus is not running the message is silently
// dropped; that is documented behavior, not an error. A message to a name no
// agent consumes simply queues under that name.
func (b *Bus) Send(msg *agent.Message) {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		observability.RecordMessageDropped("bus_stopped")
		return
	}
	box := b.box(msg.Receiver)
	box.queue = append(box.queue, msg)
	b.mu.Unlock()

	observability.RecordMessageSent(msg.Receiver, string(msg.Kind))
}

// Receive returns the mailbox sequence for the named agent. Consuming the
// channel blocks until a message arrives or the bus stops; the channel is
// closed once the bus has stopped. Delivery is strict FIFO for this receiver.
func (b *Bus) Receive(name string) <-chan *agent.Message {
	b.mu.Lock()
	stopCh := b.stopCh
	b.mu.Unlock()

	out := make(chan *agent.Message)

	go func() {
		defer close(out)
		for {
			// Bail out before touching the mailbox so a receiver from
			// before a restart cannot consume messages meant for its
			// successor.
			select {
			case <-stopCh:
				return
			default:
			}
			msg, stopped := b.pop(name)
			if stopped {
				return
			}
			if msg == nil {
				// Empty mailbox: bounded wait so a stop signal is
				// observed within one poll interval.
				select {
				case <-stopCh:
					return
				case <-time.After(b.poll):
				}
				continue
			}
			select {
			case out <- msg:
			case <-stopCh:
				return
			}
		}
	}()

	return out
}

// pop removes and returns the head of the mailbox. The second return is true
// once the bus has stopped.
func (b *Bus) pop(name string) (*agent.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return nil, true
	}
	box := b.box(name)
	if len(box.queue) == 0 {
		return nil, false
	}
	msg := box.queue[0]
	box.queue = box.queue[1:]
	return msg, false
}

// Subscribe registers a callback for a broadcast topic. Multiple callbacks
// per topic are kept in registration order; order does not affect delivery
// since callbacks run concurrently.
func (b *Bus) Subscribe(topic string, cb EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], cb)
}

// Publish invokes every callback for the topic concurrently and returns once
// all have completed. A panicking callback is isolated: it neither reaches
// the publisher nor prevents the other callbacks from running.
func (b *Bus) Publish(topic string, data any) {
	b.mu.Lock()
	cbs := make([]EventHandler, len(b.subs[topic]))
	copy(cbs, b.subs[topic])
	b.mu.Unlock()

	observability.RecordEventPublished(topic)

	var wg sync.WaitGroup
	for _, cb := range cbs {
		wg.Add(1)
		go func(cb EventHandler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("bus: subscriber for topic %s panicked: %v", topic, r)
					observability.RecordSubscriberFailure(topic)
				}
			}()
			cb(data)
		}(cb)
	}
	wg.Wait()
}

// Backlog returns the total number of queued messages across all mailboxes.
func (b *Bus) Backlog() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, box := range b.boxes {
		total += len(box.queue)
	}
	return total
}

// box returns the mailbox for a name, creating it lazily. Caller holds b.mu.
func (b *Bus) box(name string) *mailbox {
	box, ok := b.boxes[name]
	if !ok {
		box = &mailbox{}
		b.boxes[name] = box
	}
	return box
}
