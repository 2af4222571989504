package bridge

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/omochice/sockjs-server/internal/session"
	"github.com/omochice/sockjs-server/pkg/protocol"
)

// Bridge forwards bridge envelopes between sockets and a Bus.
type Bridge struct {
	bus      Bus
	opts     Options
	inbound  []matcher
	outbound []matcher
}

// New creates a Bridge over bus.
func New(bus Bus, opts Options) (*Bridge, error) {
	inbound, err := compile(opts.Inbound)
	if err != nil {
		return nil, err
	}
	outbound, err := compile(opts.Outbound)
	if err != nil {
		return nil, err
	}
	if opts.MaxHandlersPerSocket <= 0 {
		opts.MaxHandlersPerSocket = DefaultOptions().MaxHandlersPerSocket
	}
	return &Bridge{bus: bus, opts: opts, inbound: inbound, outbound: outbound}, nil
}

// Handle serves one socket. It is a session.Handler.
func (b *Bridge) Handle(sock session.Socket) {
	c := &client{
		bridge:  b,
		sock:    sock,
		subs:    make(map[string]Subscription),
		replies: make(map[Subscription]struct{}),
	}
	if b.opts.PingTimeout > 0 {
		c.ping = time.AfterFunc(b.opts.PingTimeout, c.pingExpired)
	}
	sock.OnData(c.receive)
	sock.OnEnd(c.end)
}

func (b *Bridge) authorize(ev Event) bool {
	if b.opts.Authorize == nil {
		return true
	}
	return b.opts.Authorize(ev)
}

// client is the bridge state of one socket.
type client struct {
	bridge *Bridge
	sock   session.Socket
	ping   *time.Timer

	mu      sync.Mutex
	subs    map[string]Subscription
	replies map[Subscription]struct{}
	ended   bool
}

func (c *client) receive(data []byte) {
	var env protocol.Envelope
	if err := env.Decode(data); err != nil {
		c.sendError(protocol.ErrInvalidFrame, "")
		return
	}

	switch env.Type {
	case protocol.TypePing:
		if c.ping != nil {
			c.ping.Reset(c.bridge.opts.PingTimeout)
		}
	case protocol.TypeSend, protocol.TypePublish:
		c.forward(&env)
	case protocol.TypeRegister:
		c.register(env.Address)
	case protocol.TypeUnregister:
		c.unregister(env.Address)
	default:
		c.sendError(protocol.ErrUnknownType, env.Address)
	}
}

func (c *client) forward(env *protocol.Envelope) {
	if env.Address == "" {
		c.sendError(protocol.ErrInvalidFrame, "")
		return
	}
	msg := Message{
		Address:      env.Address,
		ReplyAddress: env.ReplyAddress,
		Headers:      env.Headers,
		Body:         env.Body,
	}
	kind := EventPublish
	if env.Type == protocol.TypeSend {
		kind = EventSend
	}
	if !permitted(c.bridge.inbound, env.Address, env.Body, false) ||
		!c.bridge.authorize(Event{Kind: kind, Address: env.Address, Message: &msg, Socket: c.sock}) {
		log.Printf("Denied %s to %s from socket %s", kind, env.Address, c.sock.ID())
		c.sendError(protocol.ErrAccessDenied, env.Address)
		return
	}

	if kind == EventPublish {
		if err := c.bridge.bus.Publish(env.Address, msg); err != nil {
			log.Printf("Failed to publish to %s: %v", env.Address, err)
		}
		return
	}
	if msg.ReplyAddress != "" && !c.awaitReply(msg.ReplyAddress) {
		return
	}
	if err := c.bridge.bus.Send(env.Address, msg); err != nil {
		log.Printf("Failed to send to %s: %v", env.Address, err)
	}
}

// awaitReply forwards the first message on address to the client. Replies
// are not subject to the outbound permissions.
func (c *client) awaitReply(address string) bool {
	var (
		once sync.Once
		sub  Subscription
	)
	sub, err := c.bridge.bus.Subscribe(address, func(msg Message) {
		once.Do(func() {
			c.deliver(msg)
			sub.Unsubscribe()
			c.mu.Lock()
			delete(c.replies, sub)
			c.mu.Unlock()
		})
	})
	if err != nil {
		log.Printf("Failed to subscribe to reply address %s: %v", address, err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		sub.Unsubscribe()
		return false
	}
	c.replies[sub] = struct{}{}
	return true
}

func (c *client) register(address string) {
	if address == "" {
		c.sendError(protocol.ErrInvalidFrame, "")
		return
	}
	c.mu.Lock()
	_, exists := c.subs[address]
	full := len(c.subs) >= c.bridge.opts.MaxHandlersPerSocket
	c.mu.Unlock()
	if exists {
		return
	}
	if full {
		c.sendError(protocol.ErrMaxHandlersReached, address)
		return
	}
	if !permitted(c.bridge.outbound, address, nil, true) ||
		!c.bridge.authorize(Event{Kind: EventRegister, Address: address, Socket: c.sock}) {
		log.Printf("Denied register to %s from socket %s", address, c.sock.ID())
		c.sendError(protocol.ErrAccessDenied, address)
		return
	}

	sub, err := c.bridge.bus.Subscribe(address, func(msg Message) {
		if !permitted(c.bridge.outbound, msg.Address, msg.Body, false) ||
			!c.bridge.authorize(Event{Kind: EventReceive, Address: msg.Address, Message: &msg, Socket: c.sock}) {
			return
		}
		c.deliver(msg)
	})
	if err != nil {
		log.Printf("Failed to subscribe to %s: %v", address, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		sub.Unsubscribe()
		return
	}
	c.subs[address] = sub
}

func (c *client) unregister(address string) {
	if !c.bridge.authorize(Event{Kind: EventUnregister, Address: address, Socket: c.sock}) {
		c.sendError(protocol.ErrAccessDenied, address)
		return
	}
	c.mu.Lock()
	sub, ok := c.subs[address]
	delete(c.subs, address)
	c.mu.Unlock()
	if ok {
		sub.Unsubscribe()
	}
}

func (c *client) deliver(msg Message) {
	c.write(&protocol.Envelope{
		Type:         protocol.TypeRec,
		Address:      msg.Address,
		ReplyAddress: msg.ReplyAddress,
		Headers:      msg.Headers,
		Body:         msg.Body,
	})
}

func (c *client) sendError(reason, address string) {
	c.write(protocol.ErrorEnvelope(reason, address))
}

func (c *client) write(env *protocol.Envelope) {
	data, err := env.Encode()
	if err != nil {
		log.Printf("Failed to encode envelope: %v", err)
		return
	}
	if err := c.sock.Write(data); err != nil && !errors.Is(err, session.ErrClosed) {
		log.Printf("Failed to write to socket %s: %v", c.sock.ID(), err)
	}
}

func (c *client) pingExpired() {
	log.Printf("Closing socket %s: no ping in %v", c.sock.ID(), c.bridge.opts.PingTimeout)
	c.sock.Close()
}

// end drops every registration of the socket.
func (c *client) end() {
	if c.ping != nil {
		c.ping.Stop()
	}

	c.mu.Lock()
	c.ended = true
	subs := make([]Subscription, 0, len(c.subs)+len(c.replies))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	for sub := range c.replies {
		subs = append(subs, sub)
	}
	c.subs = make(map[string]Subscription)
	c.replies = make(map[Subscription]struct{})
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
