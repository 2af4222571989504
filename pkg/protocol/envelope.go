package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// EnvelopeType is the "type" field of a bridge frame.
type EnvelopeType string

const (
	// Sent by clients.
	TypeSend       EnvelopeType = "send"
	TypePublish    EnvelopeType = "publish"
	TypeRegister   EnvelopeType = "register"
	TypeUnregister EnvelopeType = "unregister"
	TypePing       EnvelopeType = "ping"

	// Sent by the server.
	TypeRec EnvelopeType = "rec"
	TypeErr EnvelopeType = "err"
)

// Error bodies carried by "err" envelopes.
const (
	ErrAccessDenied       = "access_denied"
	ErrMaxHandlersReached = "max_handlers_reached"
	ErrInvalidFrame       = "invalid_frame"
	ErrUnknownType        = "unknown_type"
)

// ErrInvalidEnvelope is returned when a bridge frame is not a JSON object
// with a string "type" field.
var ErrInvalidEnvelope = errors.New("invalid envelope")

// Envelope is one bridge frame exchanged with a client.
type Envelope struct {
	Type         EnvelopeType      `json:"type"`
	Address      string            `json:"address,omitempty"`
	ReplyAddress string            `json:"replyAddress,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	// Body is kept as raw JSON, so numbers pass through the bus without
	// losing precision.
	Body json.RawMessage `json:"body,omitempty"`
}

// ErrorEnvelope builds an "err" frame with the given reason.
func ErrorEnvelope(reason, address string) *Envelope {
	return &Envelope{
		Type:    TypeErr,
		Address: address,
		Body:    StringBody(reason),
	}
}

// StringBody returns s as a JSON string body.
func StringBody(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}

// Encode encodes the envelope into JSON
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode decodes JSON into an envelope
func (e *Envelope) Decode(data []byte) error {
	var wire struct {
		Type         *EnvelopeType     `json:"type"`
		Address      string            `json:"address"`
		ReplyAddress string            `json:"replyAddress"`
		Headers      map[string]string `json:"headers"`
		Body         json.RawMessage   `json:"body"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if wire.Type == nil {
		return fmt.Errorf("%w: missing type", ErrInvalidEnvelope)
	}
	*e = Envelope{
		Type:         *wire.Type,
		Address:      wire.Address,
		ReplyAddress: wire.ReplyAddress,
		Headers:      wire.Headers,
		Body:         wire.Body,
	}
	return nil
}

// BodyValue parses a JSON body into a protobuf Value for inspection. Numbers
// become doubles, so the result must not be forwarded in place of the body.
// An empty body yields nil.
func BodyValue(body json.RawMessage) (*structpb.Value, error) {
	if len(body) == 0 {
		return nil, nil
	}
	v := &structpb.Value{}
	if err := protojson.Unmarshal(body, v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return v, nil
}
