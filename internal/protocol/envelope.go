package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is the JSON wire frame. Every message carries an event name
// and a payload; client→server messages may carry an ack handle, which
// obliges the server to send exactly one AckEnvelope with the same handle.
type Envelope struct {
	Event string          `json:"event"`
	Ack   uint32          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AckData is the reply payload for an acked request.
type AckData struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	// Extra carries operation-specific reply fields (roomCode, player, room).
	Extra map[string]any `json:"-"`
}

// MarshalJSON flattens Extra into the top-level ack object.
func (a AckData) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(a.Extra)+2)
	for k, v := range a.Extra {
		m[k] = v
	}
	m["success"] = a.Success
	if a.Error != "" {
		m["error"] = a.Error
	}
	return json.Marshal(m)
}

// Encode serializes an event envelope.
func Encode(event string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		data = b
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// EncodeAck serializes an ack reply envelope for the given handle.
func EncodeAck(ack uint32, data AckData) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal ack payload: %w", err)
	}
	return json.Marshal(Envelope{Event: "ack", Ack: ack, Data: b})
}

// Decode parses an inbound wire frame.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("envelope missing event name")
	}
	return env, nil
}

// Bind parses the envelope payload into dst, rejecting absent payloads.
func (e Envelope) Bind(dst any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s missing payload", e.Event)
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("event %s payload: %w", e.Event, err)
	}
	return nil
}
