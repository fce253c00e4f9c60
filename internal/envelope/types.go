package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope types sent by the gateway.
const (
	TypeHello         = "hello"
	TypeDisconnect    = "disconnect"
	TypePing          = "ping"
	TypeEventsAPI     = "events_api"
	TypeInteractive   = "interactive"
	TypeSlashCommands = "slash_commands"
)

// Disconnect reasons. Warning and RefreshRequested announce that the socket
// will be dropped shortly; LinkDisabled means the app lost socket mode.
const (
	ReasonWarning          = "warning"
	ReasonRefreshRequested = "refresh_requested"
	ReasonLinkDisabled     = "link_disabled"
)

// ErrDecode is matched by every *DecodeError.
var ErrDecode = errors.New("decode envelope")

// Envelope is one inbound unit of the protocol. It is never mutated after Decode.
type Envelope struct {
	Type                   string          `json:"type"`
	EnvelopeID             string          `json:"envelope_id,omitempty"`
	Payload                json.RawMessage `json:"payload,omitempty"`
	AcceptsResponsePayload bool            `json:"accepts_response_payload,omitempty"`

	// Redelivery metadata, set when the gateway resends an unacknowledged envelope.
	RetryAttempt int    `json:"retry_attempt,omitempty"`
	RetryReason  string `json:"retry_reason,omitempty"`

	// Control fields for hello and disconnect.
	Reason         string          `json:"reason,omitempty"`
	NumConnections int             `json:"num_connections,omitempty"`
	DebugInfo      *DebugInfo      `json:"debug_info,omitempty"`
	ConnectionInfo *ConnectionInfo `json:"connection_info,omitempty"`
}

// DebugInfo is attached to hello and disconnect envelopes.
type DebugInfo struct {
	Host                      string `json:"host,omitempty"`
	BuildNumber               int    `json:"build_number,omitempty"`
	ApproximateConnectionTime int    `json:"approximate_connection_time,omitempty"`
}

// ConnectionInfo identifies the app a hello belongs to.
type ConnectionInfo struct {
	AppID string `json:"app_id,omitempty"`
}

// RequiresAck reports whether the peer expects an acknowledgment.
func (e *Envelope) RequiresAck() bool {
	return e.EnvelopeID != ""
}

// IsRequest reports whether the envelope carries a request for request listeners.
func (e *Envelope) IsRequest() bool {
	switch e.Type {
	case TypeEventsAPI, TypeInteractive, TypeSlashCommands:
		return true
	}
	return false
}

// Request returns the typed request view of a request-shaped envelope.
func (e *Envelope) Request() (*Request, bool) {
	if !e.IsRequest() {
		return nil, false
	}
	return &Request{
		Type:                   e.Type,
		EnvelopeID:             e.EnvelopeID,
		Payload:                e.Payload,
		AcceptsResponsePayload: e.AcceptsResponsePayload,
		RetryAttempt:           e.RetryAttempt,
		RetryReason:            e.RetryReason,
	}, true
}

// Request is the typed view handed to request listeners.
type Request struct {
	Type                   string
	EnvelopeID             string
	Payload                json.RawMessage
	AcceptsResponsePayload bool
	RetryAttempt           int
	RetryReason            string
}

// Ack is the outbound acknowledgment frame.
type Ack struct {
	EnvelopeID string          `json:"envelope_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// DecodeError reports a frame that could not be decoded as an envelope.
type DecodeError struct {
	Frame []byte
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode envelope (%d bytes): %v", len(e.Frame), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrDecode) true for any DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}
