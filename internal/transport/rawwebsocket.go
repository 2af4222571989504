package transport

import (
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/omochice/sockjs-server/internal/session"
	"github.com/omochice/sockjs-server/internal/transport/ws"
)

// rawSocket is a socket over a plain websocket: every message is one
// payload, with no SockJS framing, heartbeats or session registry.
type rawSocket struct {
	id   string
	conn *ws.Conn
	info session.Info

	mu          sync.Mutex
	dataHandler func([]byte)
	endHandlers []func()
	ended       bool
	done        chan struct{}
}

var _ session.Socket = (*rawSocket)(nil)

func newRawSocket(conn *ws.Conn, info session.Info) *rawSocket {
	return &rawSocket{
		id:   uuid.NewString(),
		conn: conn,
		info: info,
		done: make(chan struct{}),
	}
}

func (rs *rawSocket) ID() string            { return rs.id }
func (rs *rawSocket) Info() session.Info    { return rs.info }
func (rs *rawSocket) Done() <-chan struct{} { return rs.done }

func (rs *rawSocket) Write(data []byte) error {
	select {
	case <-rs.done:
		return session.ErrClosed
	default:
	}
	return rs.conn.Write(data)
}

func (rs *rawSocket) OnData(fn func([]byte)) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.dataHandler = fn
}

func (rs *rawSocket) OnEnd(fn func()) {
	rs.mu.Lock()
	if rs.ended {
		rs.mu.Unlock()
		fn()
		return
	}
	rs.endHandlers = append(rs.endHandlers, fn)
	rs.mu.Unlock()
}

func (rs *rawSocket) Close() {
	rs.conn.Close()
	rs.end()
}

func (rs *rawSocket) end() {
	rs.mu.Lock()
	if rs.ended {
		rs.mu.Unlock()
		return
	}
	rs.ended = true
	close(rs.done)
	handlers := rs.endHandlers
	rs.endHandlers = nil
	rs.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

func (rs *rawSocket) deliver(data []byte) {
	rs.mu.Lock()
	fn := rs.dataHandler
	rs.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

func (t *Transports) serveRawWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, ok := upgrade(w, r)
	if !ok {
		return
	}
	sock := newRawSocket(conn, session.NewInfo(r))
	log.Printf("Raw websocket %s opened from %s", sock.id, conn.RemoteAddr())
	if t.cfg.Handler != nil {
		t.cfg.Handler(sock)
	}

	for {
		data, err := conn.Read()
		if err != nil {
			break
		}
		sock.deliver(data)
	}
	sock.Close()
}
