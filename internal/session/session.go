package session

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/omochice/sockjs-server/pkg/protocol"
)

// State represents the lifecycle state of a session
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

// String returns the string representation of State
func (st State) String() string {
	switch st {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrClosed is returned by operations on a closing or closed session.
	ErrClosed = errors.New("session closed")
	// ErrReceiverAttached is returned when a second connection tries to
	// receive for a session that already has one.
	ErrReceiverAttached = errors.New("session already has an active receiver")
)

// Info describes the request that opened a socket.
type Info struct {
	RemoteAddr string
	URI        string
	Header     http.Header
}

// NewInfo captures the parts of r a socket handler may want to inspect.
func NewInfo(r *http.Request) Info {
	return Info{
		RemoteAddr: r.RemoteAddr,
		URI:        r.RequestURI,
		Header:     r.Header.Clone(),
	}
}

// Socket is what application code sees, regardless of the transport.
type Socket interface {
	// ID is stable across reconnections of polling transports.
	ID() string
	// Write queues data and pushes it out if a connection is attached.
	Write(data []byte) error
	// OnData sets the handler for inbound messages, delivered one at a time in
	// receipt order.
	OnData(fn func(data []byte))
	// OnEnd adds a handler run once when the socket ends.
	OnEnd(fn func())
	// Close ends the socket. It is safe to call more than once.
	Close()
	// Done is closed when the socket has ended.
	Done() <-chan struct{}
	// Info returns details about the request that opened the socket.
	Info() Info
}

// Handler is called once for each new socket.
type Handler func(Socket)

// Session is a logical SockJS connection that survives the physical
// connections serving it.
type Session struct {
	id     string
	info   Info
	onOpen Handler

	// ready is closed once onOpen returned, so inbound data never reaches a
	// socket before the application had a chance to install its handler.
	ready     chan struct{}
	readyOnce sync.Once
	// readMu serializes delivery of inbound messages.
	readMu sync.Mutex

	mu           sync.Mutex
	state        State
	pending      *queue.Queue
	receiver     Receiver
	lastActivity time.Time
	closeFrame   string
	dataHandler  func([]byte)
	endHandlers  []func()

	done    chan struct{}
	endOnce sync.Once

	// heartbeating is set while the monitor has a heartbeat in flight.
	heartbeating atomic.Bool
}

var _ Socket = (*Session)(nil)

// New creates a session in the CONNECTING state. onOpen runs once, right
// after the open frame reaches the first receiver.
func New(id string, info Info, onOpen Handler) *Session {
	return &Session{
		id:           id,
		info:         info,
		onOpen:       onOpen,
		ready:        make(chan struct{}),
		state:        StateConnecting,
		pending:      queue.New(),
		lastActivity: time.Now(),
		done:         make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Info returns details about the request that created the session.
func (s *Session) Info() Info {
	return s.info
}

// Done is closed when the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the number of messages waiting for a receiver.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Length()
}

// HasReceiver reports whether a physical connection is attached.
func (s *Session) HasReceiver() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.receiver != nil
}

// Attach binds r to the session. The first successful attach sends the open
// frame and runs the socket handler; every attach flushes pending messages.
// A closed session answers r with its close frame, and a session that
// already has a receiver turns r away with a 2010 close frame.
func (s *Session) Attach(r Receiver) error {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.writeCloseLocked(r)
		s.mu.Unlock()
		return ErrClosed
	}
	if s.receiver != nil {
		s.mu.Unlock()
		_, _ = r.Send(protocol.CloseFrame(protocol.CloseAnotherConnection, protocol.ReasonAnotherConnection))
		r.Close()
		return ErrReceiverAttached
	}

	s.receiver = r
	s.lastActivity = time.Now()
	first := s.state == StateConnecting
	if first {
		s.state = StateOpen
		s.sendLocked(protocol.OpenFrame)
	}
	s.mu.Unlock()

	if first {
		if s.onOpen != nil {
			s.onOpen(s)
		}
		s.markReady()
	}

	s.mu.Lock()
	s.flushLocked()
	s.mu.Unlock()
	return nil
}

// Detach unbinds r if it is still the attached receiver and closes it. The
// session stays alive so that the client can reconnect.
func (s *Session) Detach(r Receiver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.receiver == r {
		s.detachLocked()
		return
	}
	r.Close()
}

// Write queues data and flushes it if a receiver is attached.
func (s *Session) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosing || s.state == StateClosed {
		return ErrClosed
	}
	s.pending.Add(string(data))
	s.flushLocked()
	return nil
}

// Deliver hands inbound messages to the data handler in order.
func (s *Session) Deliver(messages []string) error {
	<-s.ready

	s.readMu.Lock()
	defer s.readMu.Unlock()

	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.lastActivity = time.Now()
	fn := s.dataHandler
	s.mu.Unlock()

	if fn == nil {
		return nil
	}
	for _, m := range messages {
		fn([]byte(m))
	}
	return nil
}

// OnData sets the inbound message handler.
func (s *Session) OnData(fn func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataHandler = fn
}

// OnEnd adds a handler run once when the session ends. If the session has
// already ended fn runs immediately.
func (s *Session) OnEnd(fn func()) {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		fn()
		return
	default:
	}
	s.endHandlers = append(s.endHandlers, fn)
	s.mu.Unlock()
}

// Close ends the session with the normal "Go away!" close frame.
func (s *Session) Close() {
	s.CloseWith(protocol.CloseGoAway, protocol.ReasonGoAway)
}

// CloseWith ends the session with the given close code and reason. Pending
// messages and the close frame are flushed to the attached receiver; without
// one the session stays CLOSING until the next receiver collects the close
// frame or the session expires.
func (s *Session) CloseWith(code int, reason string) {
	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	s.closeFrame = protocol.CloseFrame(code, reason)
	s.lastActivity = time.Now()
	if s.receiver != nil {
		s.flushLocked()
	}
	if r := s.receiver; r != nil {
		s.writeCloseLocked(r)
		if s.receiver != nil {
			s.detachLocked()
		}
	}
	s.mu.Unlock()

	s.end()
}

// Heartbeat sends a heartbeat frame to the attached receiver of an open
// session. It does not count as client activity.
func (s *Session) Heartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen || s.receiver == nil {
		return
	}
	s.sendLocked(protocol.HeartbeatFrame)
}

// ExpireIfIdle closes the session if it has had no receiver for longer than
// timeout, moving it straight to CLOSED and running its end handlers. A
// session whose lock is held is busy and counts as active.
func (s *Session) ExpireIfIdle(now time.Time, timeout time.Duration) bool {
	if !s.mu.TryLock() {
		return false
	}
	if s.receiver != nil || now.Sub(s.lastActivity) <= timeout {
		s.mu.Unlock()
		return false
	}
	wasClosed := s.state == StateClosing || s.state == StateClosed
	s.state = StateClosed
	if s.closeFrame == "" {
		s.closeFrame = protocol.CloseFrame(protocol.CloseGoAway, protocol.ReasonGoAway)
	}
	s.mu.Unlock()

	if !wasClosed {
		s.end()
	}
	return true
}

func (s *Session) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

func (s *Session) end() {
	s.endOnce.Do(func() {
		s.markReady()

		s.mu.Lock()
		close(s.done)
		handlers := s.endHandlers
		s.endHandlers = nil
		s.mu.Unlock()

		for _, fn := range handlers {
			fn()
		}
	})
}

// writeCloseLocked sends the close frame to r, which is either the attached
// receiver or one that was refused.
func (s *Session) writeCloseLocked(r Receiver) {
	frame := s.closeFrame
	if frame == "" {
		frame = protocol.CloseFrame(protocol.CloseGoAway, protocol.ReasonGoAway)
	}
	if _, err := r.Send(frame); err == nil {
		s.state = StateClosed
	}
	if s.receiver == r {
		s.detachLocked()
		return
	}
	r.Close()
}

// flushLocked sends all pending messages as one array frame. Messages leave
// the queue only once the receiver accepted the frame.
func (s *Session) flushLocked() {
	n := s.pending.Length()
	if s.receiver == nil || n == 0 {
		return
	}
	messages := make([]string, n)
	for i := range messages {
		messages[i] = s.pending.Get(i).(string)
	}
	if !s.sendLocked(protocol.ArrayFrame(messages)) {
		return
	}
	for i := 0; i < n; i++ {
		s.pending.Remove()
	}
	s.lastActivity = time.Now()
}

// sendLocked writes frame to the attached receiver and reports whether it was
// written. The receiver is detached when it fails or asks for no more frames.
func (s *Session) sendLocked(frame string) bool {
	r := s.receiver
	if r == nil {
		return false
	}
	more, err := r.Send(frame)
	if err != nil {
		log.Printf("Failed to write to session %s: %v", s.id, err)
	}
	if err != nil || !more {
		s.detachLocked()
	}
	return err == nil
}

func (s *Session) detachLocked() {
	r := s.receiver
	s.receiver = nil
	s.lastActivity = time.Now()
	if r != nil {
		r.Close()
	}
}
