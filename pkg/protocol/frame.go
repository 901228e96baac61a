// Package protocol defines the wire envelope relaybus speaks over a
// duplex connection, per spec.md §6. It owns JSON encode/decode only —
// routing and authorization live in internal/broker and
// internal/validate.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/nextlevelbuilder/relaybus/internal/policy"
	"github.com/nextlevelbuilder/relaybus/internal/validate"
)

// FrameType is the wire-level "type" tag.
type FrameType string

const (
	TypeRequest   FrameType = "request"
	TypeResponse  FrameType = "response"
	TypeBroadcast FrameType = "broadcast"
	TypeListen    FrameType = "listen"
	TypeError     FrameType = "error"
)

// Frame is the envelope for every request/response/broadcast/listen
// frame, inbound or outbound. Payload is left raw so it can be decoded
// against the schema for its (kind, channel) rather than guessed from
// JSON's own numeric ambiguity.
type Frame struct {
	Type    FrameType       `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorFrame is the distinct envelope for server-originated failures
// (spec.md §7): it never carries a payload, only a symbolic reason and
// an optional human-readable message.
type ErrorFrame struct {
	Type    FrameType `json:"type"`
	Channel string    `json:"channel,omitempty"`
	Reason  string    `json:"reason"`
	Message string    `json:"message,omitempty"`
}

// NewErrorFrame builds an outbound error envelope for reason, scoped to
// the channel the offending frame named (empty for decode errors, which
// precede knowing the channel).
func NewErrorFrame(channel string, reason validate.Reason, message string) ErrorFrame {
	return ErrorFrame{Type: TypeError, Channel: channel, Reason: string(reason), Message: message}
}

// ReasonDecodeError is used for malformed JSON or a missing/invalid
// "type" field — the one error category validate.Reason has no symbol
// for, since it never sees a frame that fails to decode.
const ReasonDecodeError = "DecodeError"

func kindOf(t FrameType) (validate.Kind, error) {
	switch t {
	case TypeBroadcast:
		return validate.Broadcast, nil
	case TypeListen:
		return validate.Listen, nil
	case TypeRequest:
		return validate.Request, nil
	case TypeResponse:
		return validate.Response, nil
	default:
		return 0, fmt.Errorf("unknown frame type %q", t)
	}
}

// EncodeDelivery turns a broker-originated delivery into the outbound
// wire envelope for it.
func EncodeDelivery(kind validate.Kind, channel string, payload validate.Payload) ([]byte, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	ft, err := frameTypeOf(kind)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: ft, Channel: channel, Payload: raw})
}

func frameTypeOf(k validate.Kind) (FrameType, error) {
	switch k {
	case validate.Broadcast:
		return TypeBroadcast, nil
	case validate.Listen:
		return TypeListen, nil
	case validate.Request:
		return TypeRequest, nil
	case validate.Response:
		return TypeResponse, nil
	default:
		return "", fmt.Errorf("unknown message kind %v", k)
	}
}

func encodePayload(payload validate.Payload) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	plain := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		plain[k] = v.Any()
	}
	return json.Marshal(plain)
}

// DecodeMessage parses raw bytes into a Frame, then — looking up p's
// schema for the frame's (kind, channel), per the same Listen-maps-to-
// Broadcast rule Validate uses — decodes the payload into a
// validate.Message ready for Validate. An unrecognized channel decodes
// the payload typelessly; the subsequent Validate call is what reports
// InvalidChannel, so decoding never has to duplicate that taxonomy.
func DecodeMessage(raw []byte, p *policy.Policy) (validate.Message, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return validate.Message{}, fmt.Errorf("%s: %w", ReasonDecodeError, err)
	}
	kind, err := kindOf(f.Type)
	if err != nil {
		return validate.Message{}, fmt.Errorf("%s: %w", ReasonDecodeError, err)
	}

	msg := validate.Message{Kind: kind, Channel: f.Channel}
	if kind == validate.Listen || len(f.Payload) == 0 {
		return msg, nil
	}

	lookupKind := kind
	if kind == validate.Listen {
		lookupKind = validate.Broadcast
	}
	var schema *policy.MsgStmt
	if s, ok := p.Schema(lookupKind, f.Channel); ok {
		schema = &s
	}

	payload, err := DecodePayload(schema, f.Payload)
	if err != nil {
		return validate.Message{}, fmt.Errorf("%s: %w", ReasonDecodeError, err)
	}
	msg.Payload = payload
	return msg, nil
}
