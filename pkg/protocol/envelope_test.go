package protocol_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/omochice/sockjs-server/pkg/protocol"
)

func TestEnvelope_Decode(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    protocol.Envelope
		wantErr bool
	}{
		{
			name: "publish with object body",
			data: `{"type":"publish","address":"news","body":{"title":"hi","n":1}}`,
			want: protocol.Envelope{
				Type:    protocol.TypePublish,
				Address: "news",
				Body:    json.RawMessage(`{"title":"hi","n":1}`),
			},
		},
		{
			name: "send with reply address and headers",
			data: `{"type":"send","address":"echo","replyAddress":"r1","headers":{"k":"v"},"body":"x"}`,
			want: protocol.Envelope{
				Type:         protocol.TypeSend,
				Address:      "echo",
				ReplyAddress: "r1",
				Headers:      map[string]string{"k": "v"},
				Body:         json.RawMessage(`"x"`),
			},
		},
		{
			name: "ping without address",
			data: `{"type":"ping"}`,
			want: protocol.Envelope{Type: protocol.TypePing},
		},
		{name: "missing type", data: `{"address":"a"}`, wantErr: true},
		{name: "null type", data: `{"type":null}`, wantErr: true},
		{name: "numeric type", data: `{"type":1}`, wantErr: true},
		{name: "not an object", data: `["send"]`, wantErr: true},
		{name: "not json", data: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got protocol.Envelope
			err := got.Decode([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Envelope.Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, protocol.ErrInvalidEnvelope) {
					t.Errorf("Envelope.Decode() error = %v, want ErrInvalidEnvelope", err)
				}
				return
			}
			if got.Type != tt.want.Type || got.Address != tt.want.Address || got.ReplyAddress != tt.want.ReplyAddress {
				t.Errorf("Envelope.Decode() = %+v, want %+v", got, tt.want)
			}
			if len(got.Headers) != len(tt.want.Headers) {
				t.Errorf("Envelope.Decode() Headers = %v, want %v", got.Headers, tt.want.Headers)
			}
			for k, v := range tt.want.Headers {
				if got.Headers[k] != v {
					t.Errorf("Envelope.Decode() Headers[%q] = %q, want %q", k, got.Headers[k], v)
				}
			}
			if string(got.Body) != string(tt.want.Body) {
				t.Errorf("Envelope.Decode() Body = %s, want %s", got.Body, tt.want.Body)
			}
		})
	}
}

func TestEnvelope_EncodeDecode(t *testing.T) {
	original := protocol.Envelope{
		Type:    protocol.TypeRec,
		Address: "news",
		Headers: map[string]string{"source": "test"},
		Body:    json.RawMessage(`[true,null]`),
	}

	data, err := original.Encode()
	if err != nil {
		t.Fatalf("Envelope.Encode() error = %v", err)
	}

	var decoded protocol.Envelope
	if err := decoded.Decode(data); err != nil {
		t.Fatalf("Envelope.Decode() error = %v", err)
	}
	if decoded.Type != original.Type || decoded.Address != original.Address {
		t.Errorf("decoded = %+v, want %+v", decoded, original)
	}
	if decoded.Headers["source"] != "test" {
		t.Errorf("decoded Headers = %v", decoded.Headers)
	}
	if string(decoded.Body) != string(original.Body) {
		t.Errorf("decoded Body = %s, want %s", decoded.Body, original.Body)
	}
}

func TestEnvelope_LargeIntegersSurvive(t *testing.T) {
	in := `{"type":"publish","address":"a","body":{"id":9007199254740993}}`

	var env protocol.Envelope
	if err := env.Decode([]byte(in)); err != nil {
		t.Fatalf("Envelope.Decode() error = %v", err)
	}
	env.Type = protocol.TypeRec
	out, err := env.Encode()
	if err != nil {
		t.Fatalf("Envelope.Encode() error = %v", err)
	}
	if !strings.Contains(string(out), `"body":{"id":9007199254740993}`) {
		t.Errorf("Encode() = %s, want the body unchanged", out)
	}
}

func TestEnvelope_EncodeOmitsEmptyFields(t *testing.T) {
	data, err := (&protocol.Envelope{Type: protocol.TypePing}).Encode()
	if err != nil {
		t.Fatalf("Envelope.Encode() error = %v", err)
	}
	if string(data) != `{"type":"ping"}` {
		t.Errorf("Encode() = %s, want {\"type\":\"ping\"}", data)
	}
}

func TestErrorEnvelope(t *testing.T) {
	env := protocol.ErrorEnvelope(protocol.ErrAccessDenied, "secret")

	if env.Type != protocol.TypeErr {
		t.Errorf("Type = %q, want %q", env.Type, protocol.TypeErr)
	}
	if string(env.Body) != `"access_denied"` {
		t.Errorf("Body = %s, want \"access_denied\"", env.Body)
	}
	if env.Address != "secret" {
		t.Errorf("Address = %q, want %q", env.Address, "secret")
	}
}

func TestBodyValue(t *testing.T) {
	v, err := protocol.BodyValue(json.RawMessage(`{"public":true,"n":2}`))
	if err != nil {
		t.Fatalf("BodyValue() error = %v", err)
	}
	fields := v.GetStructValue().GetFields()
	if !fields["public"].GetBoolValue() || fields["n"].GetNumberValue() != 2 {
		t.Errorf("BodyValue() = %v", v)
	}

	if v, err := protocol.BodyValue(nil); v != nil || err != nil {
		t.Errorf("BodyValue(nil) = %v, %v, want nil, nil", v, err)
	}
	if _, err := protocol.BodyValue(json.RawMessage(`{`)); !errors.Is(err, protocol.ErrInvalidEnvelope) {
		t.Errorf("BodyValue() error = %v, want ErrInvalidEnvelope", err)
	}
}
