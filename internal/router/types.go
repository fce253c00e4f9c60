package router

import (
	"context"
	"fmt"
	"time"

	"github.com/rickgao/socketmode/internal/envelope"
)

// Listener kinds, used in logs, metrics and ListenerError.
const (
	KindMessage = "message"
	KindRequest = "request"
)

// Responder is the handle listeners use to talk back to the gateway.
type Responder interface {
	// Send writes a frame on the active connection.
	Send(ctx context.Context, payload any) error

	// Respond attaches payload to the pending acknowledgment of envelopeID.
	Respond(ctx context.Context, envelopeID string, payload any) error
}

// Message is one inbound frame as seen by message listeners.
type Message struct {
	Raw        []byte             // Frame text as received
	Envelope   *envelope.Envelope // Nil for plain text frames
	Generation uint64             // Connection generation that delivered the frame
	ReceivedAt time.Time          // Local timestamp when the frame was read
}

// MessageListener is invoked for every inbound frame.
type MessageListener func(ctx context.Context, r Responder, msg *Message) error

// RequestListener is invoked for request-shaped envelopes only.
type RequestListener func(ctx context.Context, r Responder, req *envelope.Request) error

// ListenerError wraps a failure from a single listener invocation.
type ListenerError struct {
	Kind       string // KindMessage or KindRequest
	Index      int    // Position in the registration order
	EnvelopeID string
	Err        error
	Panic      any // Recovered value when the listener panicked
}

func (e *ListenerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("%s listener %d panicked: %v", e.Kind, e.Index, e.Panic)
	}
	return fmt.Sprintf("%s listener %d: %v", e.Kind, e.Index, e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}

// Stats contains runtime statistics.
type Stats struct {
	FramesDispatched int64
	MessageListeners int
	RequestListeners int
	ListenerFailures int64
	InFlightDispatch int64
}
