// Package bridge connects SockJS sockets to a message bus. Clients send
// JSON envelopes to register for addresses and to send or publish
// messages; what they may touch is decided by Options.
package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"maps"
	"sync"
)

// ErrNoHandlers is returned by Send when nothing is subscribed to the
// address.
var ErrNoHandlers = errors.New("no handlers for address")

// Message is what travels over the bus.
type Message struct {
	Address      string
	ReplyAddress string
	Headers      map[string]string
	Body         json.RawMessage
}

// clone returns a deep copy of m, so that every subscriber owns its body.
func (m Message) clone() Message {
	c := m
	c.Headers = maps.Clone(m.Headers)
	c.Body = bytes.Clone(m.Body)
	return c
}

// Subscription is a registered bus handler.
type Subscription interface {
	Unsubscribe()
}

// Bus is the message bus a Bridge forwards to. Publish delivers to every
// subscriber of an address, Send to exactly one.
type Bus interface {
	Subscribe(address string, fn func(Message)) (Subscription, error)
	Publish(address string, msg Message) error
	Send(address string, msg Message) error
}

// LocalBus is an in-process Bus. Handlers run on the caller's goroutine.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[string][]*localSubscription
	next     map[string]int
}

var _ Bus = (*LocalBus)(nil)

// NewLocalBus creates an empty LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{
		handlers: make(map[string][]*localSubscription),
		next:     make(map[string]int),
	}
}

type localSubscription struct {
	bus     *LocalBus
	address string
	fn      func(Message)
	once    sync.Once
}

// Unsubscribe removes the handler. It is safe to call more than once.
func (s *localSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.unsubscribe(s)
	})
}

// Subscribe adds fn as a handler for address.
func (b *LocalBus) Subscribe(address string, fn func(Message)) (Subscription, error) {
	sub := &localSubscription{bus: b, address: address, fn: fn}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[address] = append(b.handlers[address], sub)
	return sub, nil
}

func (b *LocalBus) unsubscribe(sub *localSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[sub.address]
	for i, s := range subs {
		if s == sub {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.handlers, sub.address)
		delete(b.next, sub.address)
		return
	}
	b.handlers[sub.address] = subs
}

// Publish delivers msg to every handler of address.
func (b *LocalBus) Publish(address string, msg Message) error {
	b.mu.RLock()
	subs := append([]*localSubscription(nil), b.handlers[address]...)
	b.mu.RUnlock()

	msg.Address = address
	for _, sub := range subs {
		sub.fn(msg.clone())
	}
	return nil
}

// Send delivers msg to one handler of address, taking turns between them.
func (b *LocalBus) Send(address string, msg Message) error {
	b.mu.Lock()
	subs := b.handlers[address]
	if len(subs) == 0 {
		b.mu.Unlock()
		return ErrNoHandlers
	}
	i := b.next[address] % len(subs)
	b.next[address] = i + 1
	sub := subs[i]
	b.mu.Unlock()

	msg.Address = address
	sub.fn(msg.clone())
	return nil
}

// HandlerCount returns the number of handlers of address.
func (b *LocalBus) HandlerCount(address string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[address])
}
