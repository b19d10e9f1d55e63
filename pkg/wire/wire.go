// Package wire defines the signaling envelope exchanged over the session's
// transport.
//
// Every message on the signaling channel is a JSON Envelope with a type tag,
// an opaque payload, and a timestamp. The outbound heartbeat probe is exactly
// {"type":"ping"} with no payload or timestamp; the matching "pong" response
// is consumed by the connection layer and never surfaced to callers.
package wire

import (
	"encoding/json"
	"time"
)

// Well-known envelope types.
const (
	// TypePing is the heartbeat probe sent while connected.
	TypePing = "ping"

	// TypePong is the heartbeat response. Consumed internally, never
	// surfaced as a received message.
	TypePong = "pong"

	// TypeMessage is an application-level message.
	TypeMessage = "message"

	// TypeKeyExchange carries key-encapsulation material for one
	// participant during a handshake or rotation.
	TypeKeyExchange = "key_exchange"
)

// Envelope wraps every message sent or received on the signaling channel.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// NewEnvelope creates an envelope of the given type, marshaling payload as
// JSON and stamping the current time. A nil payload produces an envelope
// with no payload field.
func NewEnvelope(envType string, payload any) (Envelope, error) {
	if envType == "" {
		return Envelope{}, ErrEmptyType
	}

	env := Envelope{
		Type:      envType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		env.Payload = raw
	}

	return env, nil
}

// Ping returns the heartbeat probe envelope. Its encoding is exactly
// {"type":"ping"}.
func Ping() Envelope {
	return Envelope{Type: TypePing}
}

// Encode serializes the envelope to its JSON wire form.
func (e Envelope) Encode() ([]byte, error) {
	if e.Type == "" {
		return nil, ErrEmptyType
	}
	return json.Marshal(e)
}

// Decode parses an envelope from its JSON wire form.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, ErrEmptyType
	}
	return env, nil
}

// IsPong reports whether the envelope is a heartbeat response.
func (e Envelope) IsPong() bool {
	return e.Type == TypePong
}

// KeyExchangePayload is the payload of a TypeKeyExchange envelope. It
// delivers the encapsulation ciphertext for one participant at one epoch.
type KeyExchangePayload struct {
	ParticipantID string `json:"participantId"`
	Algorithm     string `json:"algorithm"`
	Epoch         uint64 `json:"epoch"`
	Ciphertext    []byte `json:"ciphertext"`
}
