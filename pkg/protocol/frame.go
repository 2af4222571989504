// Package protocol implements the SockJS wire framing shared by every transport,
// and the JSON envelopes spoken by the event bus bridge.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FrameType is the leading byte of a SockJS frame.
type FrameType byte

const (
	FrameOpen      FrameType = 'o'
	FrameHeartbeat FrameType = 'h'
	FrameArray     FrameType = 'a'
	FrameClose     FrameType = 'c'
)

// String returns the string representation of FrameType
func (ft FrameType) String() string {
	switch ft {
	case FrameOpen:
		return "OPEN"
	case FrameHeartbeat:
		return "HEARTBEAT"
	case FrameArray:
		return "ARRAY"
	case FrameClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// Close codes understood by SockJS clients.
const (
	CloseGoAway             = 3000
	CloseAnotherConnection  = 2010
	CloseProtocolViolation  = 1002
	ReasonGoAway            = "Go away!"
	ReasonAnotherConnection = "Another connection still open"
	ReasonBrokenJSON        = "Broken JSON encoding"
)

var (
	// ErrEmptyPayload is returned when a send request carries no data.
	ErrEmptyPayload = errors.New("payload expected")
	// ErrBrokenJSON is returned when inbound data is not a JSON array of strings.
	ErrBrokenJSON = errors.New("broken JSON encoding")
)

const (
	OpenFrame      = "o"
	HeartbeatFrame = "h"
)

// ArrayFrame encodes messages as a single "a[...]" frame.
func ArrayFrame(messages []string) string {
	var b strings.Builder
	b.WriteByte(byte(FrameArray))
	writeArray(&b, messages)
	return b.String()
}

// EncodeMessages encodes messages as the JSON array clients post to the
// send endpoints.
func EncodeMessages(messages []string) string {
	var b strings.Builder
	writeArray(&b, messages)
	return b.String()
}

func writeArray(b *strings.Builder, messages []string) {
	b.WriteByte('[')
	for i, m := range messages {
		if i > 0 {
			b.WriteByte(',')
		}
		writeQuoted(b, m)
	}
	b.WriteByte(']')
}

// CloseFrame encodes a "c[code,reason]" frame.
func CloseFrame(code int, reason string) string {
	var b strings.Builder
	b.WriteString("c[")
	b.WriteString(strconv.Itoa(code))
	b.WriteByte(',')
	writeQuoted(&b, reason)
	b.WriteByte(']')
	return b.String()
}

// Quote returns s as a JSON string literal using SockJS escaping rules.
func Quote(s string) string {
	var b strings.Builder
	writeQuoted(&b, s)
	return b.String()
}

func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if needsEscape(r) {
				fmt.Fprintf(b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}

// needsEscape reports characters that some browsers mangle or treat as
// line terminators when they appear unescaped inside a streamed frame.
func needsEscape(r rune) bool {
	switch {
	case r < 0x20, r >= 0x7f && r <= 0x9f:
		return true
	case r == 0xad, r >= 0x600 && r <= 0x604, r == 0x70f:
		return true
	case r == 0x17b4, r == 0x17b5:
		return true
	case r >= 0x200c && r <= 0x200f, r >= 0x2028 && r <= 0x202f, r >= 0x2060 && r <= 0x206f:
		return true
	case r == 0xfeff, r >= 0xfff0 && r <= 0xffff:
		return true
	}
	return false
}

// DecodeMessages parses the body of a send request: a JSON array of strings.
func DecodeMessages(data []byte) ([]string, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, ErrEmptyPayload
	}
	var messages []string
	if err := json.Unmarshal([]byte(trimmed), &messages); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokenJSON, err)
	}
	return messages, nil
}

// DecodeSocketMessages parses one websocket message, which may be either a
// JSON array of strings or a single JSON string. An empty message yields no
// messages and no error.
func DecodeSocketMessages(data []byte) ([]string, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, nil
	}
	if trimmed[0] == '"' {
		var single string
		if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBrokenJSON, err)
		}
		return []string{single}, nil
	}
	return DecodeMessages([]byte(trimmed))
}

// Frame is a decoded server frame, as seen by a client.
type Frame struct {
	Type     FrameType
	Messages []string
	Code     int
	Reason   string
}

// ParseFrame decodes one server frame.
func ParseFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, errors.New("empty frame")
	}
	f := Frame{Type: FrameType(data[0])}
	switch f.Type {
	case FrameOpen, FrameHeartbeat:
		return f, nil
	case FrameArray:
		if err := json.Unmarshal(data[1:], &f.Messages); err != nil {
			return Frame{}, fmt.Errorf("failed to decode array frame: %w", err)
		}
		return f, nil
	case FrameClose:
		var parts []json.RawMessage
		if err := json.Unmarshal(data[1:], &parts); err != nil || len(parts) != 2 {
			return Frame{}, fmt.Errorf("failed to decode close frame %q", data)
		}
		if err := json.Unmarshal(parts[0], &f.Code); err != nil {
			return Frame{}, fmt.Errorf("failed to decode close code: %w", err)
		}
		if err := json.Unmarshal(parts[1], &f.Reason); err != nil {
			return Frame{}, fmt.Errorf("failed to decode close reason: %w", err)
		}
		return f, nil
	default:
		return Frame{}, fmt.Errorf("unknown frame type %q", data[0])
	}
}
