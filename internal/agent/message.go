package agent

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the intent of a message.
type Kind string

const (
	KindCommand  Kind = "command"
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindEvent    Kind = "event"
)

// Message is the standard unit of communication between agents. Messages are
// immutable once sent: the payload is owned by the receiver after Send and
// must not be mutated by the sender.
type Message struct {
	// ID is a unique identifier for this message, generated at creation.
	ID string `json:"id"`

	// Kind is the message intent (command, request, response, event).
	Kind Kind `json:"kind"`

	// Sender and Receiver are agent names. Receiver is the mailbox key.
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`

	// Capability names the operation to invoke. Empty for raw events.
	Capability string `json:"capability,omitempty"`

	// Payload carries the message data.
	Payload map[string]any `json:"payload"`

	// Timestamp is the creation time.
	Timestamp time.Time `json:"timestamp"`

	// CorrelationID pairs a response with the request it answers. Set on
	// every response to the originating request's ID, empty otherwise.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// NewMessage creates a message with a generated ID and timestamp.
func NewMessage(kind Kind, sender, receiver, capability string, payload map[string]any) *Message {
	if payload == nil {
		payload = make(map[string]any)
	}
	return &Message{
		ID:         uuid.New().String(),
		Kind:       kind,
		Sender:     sender,
		Receiver:   receiver,
		Capability: capability,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
}

// NewRequest creates a request message.
func NewRequest(sender, receiver, capability string, payload map[string]any) *Message {
	return NewMessage(KindRequest, sender, receiver, capability, payload)
}

// NewResponse creates the response to a request. The result is wrapped under
// the "result" payload key and the correlation ID references the request.
func NewResponse(sender string, request *Message, result any) *Message {
	msg := NewMessage(KindResponse, sender, request.Sender, request.Capability, map[string]any{
		"result": result,
	})
	msg.CorrelationID = request.ID
	return msg
}

// NewEvent creates a raw event message with no capability.
func NewEvent(sender, receiver string, payload map[string]any) *Message {
	return NewMessage(KindEvent, sender, receiver, "", payload)
}

// String returns a compact representation for logs.
func (m *Message) String() string {
	return fmt.Sprintf("Message{ID:%s, Kind:%s, %s->%s, Capability:%s}",
		m.ID, m.Kind, m.Sender, m.Receiver, m.Capability)
}
