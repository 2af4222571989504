package server

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/omochice/sockjs-server/internal/session"
	"github.com/omochice/sockjs-server/internal/transport"
)

// Echo writes every message back to its sender.
func Echo(sock session.Socket) {
	sock.OnData(func(data []byte) {
		sock.Write(data)
	})
}

// CloseImmediately closes every socket as soon as it opens.
func CloseImmediately(sock session.Socket) {
	sock.Close()
}

// Ticker writes "tick!" to each socket every interval until it ends.
func Ticker(interval time.Duration) session.Handler {
	return func(sock session.Socket) {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := sock.Write([]byte("tick!")); err != nil {
						return
					}
				case <-sock.Done():
					return
				}
			}
		}()
	}
}

// Amplify answers a message n with a string of 2^n "x" characters. Values
// outside 0..19 count as 1.
func Amplify(sock session.Socket) {
	sock.OnData(func(data []byte) {
		n, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil || n < 0 || n > 19 {
			n = 1
		}
		sock.Write([]byte(strings.Repeat("x", 1<<n)))
	})
}

// Broadcast relays every message to all connected sockets.
type Broadcast struct {
	mu      sync.RWMutex
	sockets map[session.Socket]bool
}

// NewBroadcast creates an empty Broadcast.
func NewBroadcast() *Broadcast {
	return &Broadcast{sockets: make(map[session.Socket]bool)}
}

// Handle registers sock until it ends.
func (b *Broadcast) Handle(sock session.Socket) {
	b.mu.Lock()
	b.sockets[sock] = true
	b.mu.Unlock()

	sock.OnData(b.broadcast)
	sock.OnEnd(func() {
		b.mu.Lock()
		delete(b.sockets, sock)
		b.mu.Unlock()
	})
}

// Len returns the number of connected sockets.
func (b *Broadcast) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sockets)
}

func (b *Broadcast) broadcast(data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sock := range b.sockets {
		sock.Write(data)
	}
}

// DemoApps returns the handlers exercised by the SockJS protocol test
// suite, keyed by prefix.
func DemoApps(opts Options) map[string]*Handler {
	noWebSocket := opts
	noWebSocket.DisabledTransports = append(append([]transport.Kind(nil), opts.DisabledTransports...), transport.KindWebSocket)
	withCookie := opts
	withCookie.InsertJSESSIONID = true

	return map[string]*Handler{
		"/echo":                    NewHandler(opts, Echo),
		"/close":                   NewHandler(opts, CloseImmediately),
		"/disabled_websocket_echo": NewHandler(noWebSocket, Echo),
		"/ticker":                  NewHandler(opts, Ticker(time.Second)),
		"/amplify":                 NewHandler(opts, Amplify),
		"/broadcast":               NewHandler(opts, NewBroadcast().Handle),
		"/cookie_needed_echo":      NewHandler(withCookie, Echo),
	}
}
