package realtime

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Protocol version advertised in every envelope.
const Version = 1

// Envelope types.
const (
	TypeHelloAck = "hello.ack"
	TypeEvent    = "event"
	TypeError    = "error"
)

// Envelope is the wire frame for all server-to-client traffic.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate checks structural sanity of an inbound envelope.
func (e Envelope) Validate() error {
	if e.V != Version {
		return errors.New("unsupported envelope version")
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing type")
	}
	return nil
}

// HelloAckPayload acknowledges a successful upgrade.
type HelloAckPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
}

// EventPayload carries one published room event.
type EventPayload struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload reports a protocol-level problem to the client.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) Envelope {
	return Envelope{
		V:       Version,
		Type:    typ,
		ID:      NewRandomHex(10),
		TS:      ts,
		Payload: payload,
	}
}
