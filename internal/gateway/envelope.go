package gateway

import (
	"encoding/json"
	"errors"
)

// Envelope is the frame used in both directions: {"type": ..., "payload": {...}}.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type authPayload struct {
	Token string `json:"token"`
}

type chatMessagePayload struct {
	Content string `json:"content"`
}

type authSuccessPayload struct {
	UserName string `json:"user_name"`
}

type errorPayload struct {
	Error string `json:"error"`
}

type chatResponsePayload struct {
	Content string `json:"content"`
}

var errMalformed = errors.New("malformed envelope")

// NewEnvelope builds an outbound envelope. payload must marshal to a JSON object.
func NewEnvelope(typ string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: typ, Payload: raw}, nil
}

func mustEnvelope(typ string, payload any) Envelope {
	env, err := NewEnvelope(typ, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// decodeEnvelope parses one inbound frame. A frame without a type is malformed.
func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, errMalformed
	}
	if env.Type == "" {
		return Envelope{}, errMalformed
	}
	return env, nil
}

// decodePayload reads env's payload into v. A missing payload decodes as empty.
func decodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return errMalformed
	}
	return nil
}
