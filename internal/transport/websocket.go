package transport

import (
	"log"
	"net/http"
	"sync"

	"github.com/omochice/sockjs-server/internal/session"
	"github.com/omochice/sockjs-server/internal/transport/ws"
	"github.com/omochice/sockjs-server/pkg/protocol"
)

// socketReceiver writes SockJS frames as websocket text messages.
type socketReceiver struct {
	conn *ws.Conn

	mu     sync.Mutex
	closed bool
}

var _ session.Receiver = (*socketReceiver)(nil)

// Send implements session.Receiver.
func (sr *socketReceiver) Send(frame string) (bool, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.closed {
		return false, errReceiverClosed
	}
	if err := sr.conn.Write([]byte(frame)); err != nil {
		return false, err
	}
	return true, nil
}

// Close implements session.Receiver.
func (sr *socketReceiver) Close() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if !sr.closed {
		sr.closed = true
		sr.conn.Close()
	}
}

// upgrade validates the handshake headers and upgrades the connection.
func upgrade(w http.ResponseWriter, r *http.Request) (*ws.Conn, bool) {
	if err := ws.CheckUpgrade(r); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	conn, err := ws.Upgrade(w, r)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return nil, false
	}
	return conn, true
}

// serveWebSocket runs SockJS framing over a websocket. Unlike the HTTP
// transports, losing the connection ends the session.
func (t *Transports) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, ok := upgrade(w, r)
	if !ok {
		return
	}
	s := t.session(r)
	recv := &socketReceiver{conn: conn}
	if err := s.Attach(recv); err != nil {
		return
	}

	for {
		data, err := conn.Read()
		if err != nil {
			break
		}
		messages, err := protocol.DecodeSocketMessages(data)
		if err != nil {
			log.Printf("Closing session %s: %v", s.ID(), err)
			s.CloseWith(protocol.CloseProtocolViolation, protocol.ReasonBrokenJSON)
			break
		}
		if len(messages) == 0 {
			continue
		}
		if err := s.Deliver(messages); err != nil {
			break
		}
	}

	s.Detach(recv)
	s.Close()
}
