package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidMessage is returned for frames and payloads that fail boundary
// validation. Such messages never reach the registry.
var ErrInvalidMessage = errors.New("invalid message")

// Message defines the structure for all C2S (Client to Server)
// and S2C (Server to Client) websocket messages.
type Message struct {
	Type string `json:"type"`

	// From is set by the relay only, it tags forwarded negotiation
	// messages with the sender's connection id.
	From string `json:"from,omitempty"`

	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage creates a new Message with the given type and payload.
func NewMessage(t string, payload any) (*Message, error) {
	if payload == nil {
		return &Message{Type: t}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return &Message{Type: t, Payload: b}, nil
}

// Parse decodes a raw websocket frame into an envelope.
func Parse(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}
	return &m, nil
}

// Decode unmarshals the payload into v and validates it.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrInvalidMessage, m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidMessage, m.Type, err)
	}
	if err := Validate(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidMessage, m.Type, err)
	}
	return nil
}

// Forward returns a copy of m tagged with the sender id. The payload bytes
// are shared, not re-encoded.
func (m *Message) Forward(from string) *Message {
	return &Message{Type: m.Type, From: from, Payload: m.Payload}
}

// Frame encodes m for the wire. Type and from are encoded without HTML
// escaping and the payload bytes are copied as they are, so a forwarded
// payload leaves the server exactly as it arrived.
func (m *Message) Frame() ([]byte, error) {
	if len(m.Payload) > 0 && !json.Valid(m.Payload) {
		return nil, fmt.Errorf("%w: %s payload is not valid JSON", ErrInvalidMessage, m.Type)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	str := func(prefix, v string) {
		buf.WriteString(prefix)
		enc.Encode(v)
		buf.Truncate(buf.Len() - 1) // drop the trailing newline
	}

	str(`{"type":`, m.Type)
	if m.From != "" {
		str(`,"from":`, m.From)
	}
	if len(m.Payload) > 0 {
		buf.WriteString(`,"payload":`)
		buf.Write(m.Payload)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
