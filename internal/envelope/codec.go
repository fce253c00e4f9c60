package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var errMissingType = errors.New("missing type field")

// Decode parses one inbound frame.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, &DecodeError{Frame: frame, Err: err}
	}
	if env.Type == "" {
		return nil, &DecodeError{Frame: frame, Err: errMissingType}
	}
	return &env, nil
}

// Encode serializes an envelope. It only fails when Payload is not valid JSON.
func Encode(env *Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// EncodeAck builds the acknowledgment frame for envelopeID. A nil payload
// produces {"envelope_id":"..."}.
func EncodeAck(envelopeID string, payload any) ([]byte, error) {
	ack := Ack{EnvelopeID: envelopeID}
	if payload != nil {
		raw, err := marshalPayload(payload)
		if err != nil {
			return nil, fmt.Errorf("encode ack payload: %w", err)
		}
		ack.Payload = raw
	}
	data, err := json.Marshal(ack)
	if err != nil {
		return nil, fmt.Errorf("encode ack: %w", err)
	}
	return data, nil
}

// IsEnvelopeFrame reports whether frame looks like a JSON object. Anything
// else is treated as a plain text message and never decoded.
func IsEnvelopeFrame(frame []byte) bool {
	trimmed := bytes.TrimLeft(frame, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	default:
		return json.Marshal(p)
	}
}
