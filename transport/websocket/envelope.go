package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
)

// AckEvent names the envelope that answers a client request.
const AckEvent = "ack"

var ErrEmptyEvent = errors.New("envelope has no event")

// Envelope is one frame on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Ack   *int64          `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Ack   *int64 `json:"ack,omitempty"`
	Data  any    `json:"data"`
}

// DecodeEnvelope parses an inbound frame.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, ErrEmptyEvent
	}
	return env, nil
}

func encodeEvent(event string, payload any) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: payload})
}

func encodeAck(ackID int64, payload any) ([]byte, error) {
	return json.Marshal(outbound{Event: AckEvent, Ack: &ackID, Data: payload})
}
