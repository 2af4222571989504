package bridge

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/omochice/sockjs-server/internal/session"
	"github.com/omochice/sockjs-server/pkg/protocol"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// PermittedOptions matches the messages a client may send or receive.
// Address and AddressRegex are alternatives; with neither set every
// address matches. AddressRegex must match the whole address. Match requires a JSON object body holding each key with
// an equal value.
type PermittedOptions struct {
	Address      string
	AddressRegex string
	Match        map[string]any
}

// EventKind names what a client is trying to do.
type EventKind string

const (
	EventSend       EventKind = "send"
	EventPublish    EventKind = "publish"
	EventReceive    EventKind = "receive"
	EventRegister   EventKind = "register"
	EventUnregister EventKind = "unregister"
)

// Event is passed to Options.Authorize.
type Event struct {
	Kind    EventKind
	Address string
	// Message is nil for register and unregister.
	Message *Message
	Socket  session.Socket
}

// Options configures a Bridge.
type Options struct {
	// Inbound lists what clients may send and publish. Nil denies all.
	Inbound []PermittedOptions
	// Outbound lists what clients may register for and receive. Nil
	// denies all.
	Outbound []PermittedOptions
	// Authorize, if set, is consulted after the permission lists and can
	// veto any event.
	Authorize func(Event) bool
	// MaxHandlersPerSocket caps the registrations of a single socket.
	MaxHandlersPerSocket int
	// PingTimeout closes sockets that stay silent for longer. Zero
	// disables the check.
	PingTimeout time.Duration
}

// DefaultOptions returns options that deny everything until permissions
// are added.
func DefaultOptions() Options {
	return Options{
		MaxHandlersPerSocket: 1000,
		PingTimeout:          10 * time.Second,
	}
}

// matcher is a compiled PermittedOptions.
type matcher struct {
	address string
	regex   *regexp.Regexp
	match   map[string]*structpb.Value
}

func compile(list []PermittedOptions) ([]matcher, error) {
	matchers := make([]matcher, 0, len(list))
	for _, p := range list {
		m := matcher{address: p.Address}
		if p.AddressRegex != "" {
			re, err := regexp.Compile("^(?:" + p.AddressRegex + ")$")
			if err != nil {
				return nil, fmt.Errorf("invalid address regex %q: %w", p.AddressRegex, err)
			}
			m.regex = re
		}
		if len(p.Match) > 0 {
			m.match = make(map[string]*structpb.Value, len(p.Match))
			for k, v := range p.Match {
				value, err := structpb.NewValue(v)
				if err != nil {
					return nil, fmt.Errorf("invalid match value for %q: %w", k, err)
				}
				m.match[k] = value
			}
		}
		matchers = append(matchers, m)
	}
	return matchers, nil
}

func (m matcher) matchesAddress(address string) bool {
	switch {
	case m.address != "":
		return m.address == address
	case m.regex != nil:
		return m.regex.MatchString(address)
	default:
		return true
	}
}

func (m matcher) matchesBody(body *structpb.Value) bool {
	if len(m.match) == 0 {
		return true
	}
	obj := body.GetStructValue()
	if obj == nil {
		return false
	}
	for k, want := range m.match {
		got, ok := obj.Fields[k]
		if !ok || !proto.Equal(got, want) {
			return false
		}
	}
	return true
}

// permitted reports whether some matcher accepts address, and body unless
// addressOnly is set. The body is parsed only if a matcher inspects it.
func permitted(matchers []matcher, address string, body json.RawMessage, addressOnly bool) bool {
	var (
		value  *structpb.Value
		parsed bool
	)
	for _, m := range matchers {
		if !m.matchesAddress(address) {
			continue
		}
		if addressOnly || len(m.match) == 0 {
			return true
		}
		if !parsed {
			value, _ = protocol.BodyValue(body)
			parsed = true
		}
		if m.matchesBody(value) {
			return true
		}
	}
	return false
}
