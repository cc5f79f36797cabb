package msg

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrTypeMismatch = errors.New("message type mismatch")

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Marshal encodes a message as {"type": ..., "data": ...}.
func Marshal(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", m.TypeName(), err)
	}
	return json.Marshal(envelope{Type: m.TypeName(), Data: data})
}

// Unmarshal decodes a payload produced by Marshal. The envelope must name this type.
func (t Type) Unmarshal(payload []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type != t.name {
		return nil, fmt.Errorf("%w: got '%s', expected '%s'", ErrTypeMismatch, env.Type, t.name)
	}
	m := t.New()
	if len(env.Data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(env.Data, m); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", t.name, err)
	}
	return m, nil
}
