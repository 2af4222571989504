// Package client provides SockJS clients. The ws package speaks the
// websocket transport and the xhr package the xhr polling transport; both
// share the frame handling in Stream.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/omochice/sockjs-server/pkg/protocol"
)

// Client defines the interface for SockJS clients.
type Client interface {
	Connect(ctx context.Context) error
	Send(messages ...string) error
	Messages() <-chan string
	Done() <-chan struct{}
	Err() error
	Close() error
}

// ErrNotConnected is returned by Send before Connect or after Close.
var ErrNotConnected = errors.New("not connected to server")

// CloseError reports the close frame sent by the server.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("closed by server: %d %s", e.Code, e.Reason)
}

// SessionURL returns base extended with a random server id and session id.
func SessionURL(base string) string {
	return fmt.Sprintf("%s/%03d/%s", strings.TrimRight(base, "/"), rand.Intn(1000), uuid.NewString())
}

// Stream turns server frames into messages.
type Stream struct {
	messages chan string
	opened   chan struct{}
	done     chan struct{}

	openOnce sync.Once
	doneOnce sync.Once
	mu       sync.Mutex
	err      error
}

// NewStream creates a Stream buffering up to buffer messages.
func NewStream(buffer int) *Stream {
	return &Stream{
		messages: make(chan string, buffer),
		opened:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Handle processes one frame. It returns an error for malformed frames and
// once the server closed the session.
func (s *Stream) Handle(data []byte) error {
	frame, err := protocol.ParseFrame(data)
	if err != nil {
		return err
	}
	switch frame.Type {
	case protocol.FrameOpen:
		s.openOnce.Do(func() { close(s.opened) })
	case protocol.FrameArray:
		for _, m := range frame.Messages {
			select {
			case s.messages <- m:
			case <-s.done:
				return s.Err()
			}
		}
	case protocol.FrameClose:
		closeErr := &CloseError{Code: frame.Code, Reason: frame.Reason}
		s.Finish(closeErr)
		return closeErr
	}
	return nil
}

// Finish ends the stream with err, keeping the first error reported.
func (s *Stream) Finish(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// WaitOpen blocks until the open frame arrived, the stream ended or ctx is
// done.
func (s *Stream) WaitOpen(ctx context.Context) error {
	select {
	case <-s.opened:
		return nil
	case <-s.done:
		// A session may open and close before the caller looks.
		select {
		case <-s.opened:
			return nil
		default:
		}
		if err := s.Err(); err != nil {
			return err
		}
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages returns the channel for receiving messages.
func (s *Stream) Messages() <-chan string {
	return s.messages
}

// Done is closed when the stream has ended.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns why the stream ended, or nil while it is running.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
