// Package ws adapts connections upgraded with gobwas/ws to the message
// oriented Read/Write calls the SockJS transports need.
package ws

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// DefaultWriteTimeout bounds every write to a client that stopped reading.
const DefaultWriteTimeout = 10 * time.Second

// Conn wraps a server side websocket connection.
type Conn struct {
	conn         net.Conn
	reader       io.Reader
	writeTimeout time.Duration

	// wmu serializes data frames written by Write with control frames
	// (pong, close) written while reading.
	wmu        sync.Mutex
	closeOnce  sync.Once
	peerClosed bool
}

// Upgrade upgrades the HTTP request to a websocket connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	var upgrader ws.HTTPUpgrader
	conn, rw, _, err := upgrader.Upgrade(r, w)
	if err != nil {
		return nil, err
	}
	return newConn(conn, rw), nil
}

// newConn keeps reading through the buffered reader left over by the
// handshake, which may already hold the first client frames.
func newConn(conn net.Conn, rw *bufio.ReadWriter) *Conn {
	var reader io.Reader = conn
	if rw != nil {
		reader = rw.Reader
	}
	return &Conn{conn: conn, reader: reader, writeTimeout: DefaultWriteTimeout}
}

// SetWriteTimeout changes the time a single write may block.
func (c *Conn) SetWriteTimeout(d time.Duration) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.writeTimeout = d
}

// setWriteDeadline must be called with wmu held.
func (c *Conn) setWriteDeadline() {
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
}

// RemoteAddr returns the remote address for logging.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Read returns the payload of the next text or binary message. Ping and close
// frames are answered while reading.
func (c *Conn) Read() ([]byte, error) {
	data, _, err := wsutil.ReadClientData(readWriter{Reader: c.reader, w: c})
	if err != nil {
		var closed wsutil.ClosedError
		if errors.As(err, &closed) {
			c.wmu.Lock()
			c.peerClosed = true
			c.wmu.Unlock()
		}
		return nil, err
	}
	return data, nil
}

// Write sends data as a single text message.
func (c *Conn) Write(data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.setWriteDeadline()
	return wsutil.WriteServerText(c.conn, data)
}

// Close sends a close frame unless the peer already closed, then closes the
// underlying connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		if !c.peerClosed {
			c.setWriteDeadline()
			body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
			_ = ws.WriteFrame(c.conn, ws.NewCloseFrame(body))
		}
		c.wmu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// readWriter routes the control frame replies of wsutil through the write
// lock of the connection.
type readWriter struct {
	io.Reader
	w *Conn
}

func (rw readWriter) Write(p []byte) (int, error) {
	rw.w.wmu.Lock()
	defer rw.w.wmu.Unlock()
	rw.w.setWriteDeadline()
	return rw.w.conn.Write(p)
}
