package session_test

import (
	"errors"
	"sync"

	"github.com/omochice/sockjs-server/internal/session"
)

// mockReceiver is a mock implementation of session.Receiver for testing.
type mockReceiver struct {
	mu       sync.Mutex
	frames   []string
	limit    int // frames accepted before asking to be recycled; 0 means unlimited
	sendErr  error
	closed   bool
	closeCnt int
}

func newMockReceiver() *mockReceiver {
	return &mockReceiver{}
}

// newPollingReceiver accepts a single frame, like xhr or jsonp polling.
func newPollingReceiver() *mockReceiver {
	return &mockReceiver{limit: 1}
}

func (m *mockReceiver) Send(frame string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, errors.New("receiver closed")
	}
	if m.sendErr != nil {
		return false, m.sendErr
	}
	m.frames = append(m.frames, frame)
	return m.limit == 0 || len(m.frames) < m.limit, nil
}

func (m *mockReceiver) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.closeCnt++
}

func (m *mockReceiver) Frames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.frames...)
}

func (m *mockReceiver) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// stalledReceiver accepts the open frame and then blocks every write until
// release is closed, like a client that stopped reading.
type stalledReceiver struct {
	release chan struct{}
	stalled chan struct{}
	once    sync.Once
}

func newStalledReceiver() *stalledReceiver {
	return &stalledReceiver{release: make(chan struct{}), stalled: make(chan struct{})}
}

func (r *stalledReceiver) Send(frame string) (bool, error) {
	if frame == "o" {
		return true, nil
	}
	r.once.Do(func() { close(r.stalled) })
	<-r.release
	return false, errors.New("write timed out")
}

func (r *stalledReceiver) Close() {}

// Compile-time check that mockReceiver implements session.Receiver
var _ session.Receiver = (*mockReceiver)(nil)
