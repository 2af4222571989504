package transport

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/pool/pbytes"
	"github.com/omochice/sockjs-server/internal/session"
)

var errReceiverClosed = errors.New("receiver closed")

// writeTimeout bounds every frame written to a client that stopped reading.
const writeTimeout = 10 * time.Second

// httpReceiver writes frames into an HTTP response. Polling transports take
// one frame; streaming ones take frames until maxBytes have been written,
// after which the client opens a fresh request.
type httpReceiver struct {
	w        http.ResponseWriter
	rc       *http.ResponseController
	framer   framer
	maxBytes int

	mu      sync.Mutex
	written int
	closed  bool
	done    chan struct{}
}

var _ session.Receiver = (*httpReceiver)(nil)

func newHTTPReceiver(w http.ResponseWriter, f framer, maxBytes int) *httpReceiver {
	return &httpReceiver{
		w:        w,
		rc:       http.NewResponseController(w),
		framer:   f,
		maxBytes: maxBytes,
		done:     make(chan struct{}),
	}
}

// start sends the response headers and the transport prelude.
func (h *httpReceiver) start() error {
	h.setWriteDeadline()
	h.w.WriteHeader(http.StatusOK)
	if prelude := h.framer.prelude(); len(prelude) > 0 {
		if _, err := h.w.Write(prelude); err != nil {
			return err
		}
	}
	return h.rc.Flush()
}

// Send implements session.Receiver.
func (h *httpReceiver) Send(frame string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false, errReceiverClosed
	}

	h.setWriteDeadline()
	buf := h.framer.appendFrame(pbytes.GetCap(len(frame)+64), frame)
	n, err := h.w.Write(buf)
	pbytes.Put(buf)
	if err == nil {
		err = h.rc.Flush()
	}
	h.written += n
	if err != nil {
		return false, err
	}
	if !h.framer.streaming() {
		return false, nil
	}
	return h.written < h.maxBytes, nil
}

// setWriteDeadline renews the deadline of the connection before a write.
// A keep-alive connection carries the deadline over from the previous
// request, so it is set before the headers too.
func (h *httpReceiver) setWriteDeadline() {
	// Not every ResponseWriter supports deadlines.
	_ = h.rc.SetWriteDeadline(time.Now().Add(writeTimeout))
}

// Close implements session.Receiver. It releases the request handler, which
// is waiting on Done.
func (h *httpReceiver) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
}

// Done is closed once the receiver will write no more.
func (h *httpReceiver) Done() <-chan struct{} {
	return h.done
}
