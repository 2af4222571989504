package transport

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/omochice/sockjs-server/internal/session"
	"github.com/omochice/sockjs-server/pkg/protocol"
)

func (t *Transports) serveXHR(w http.ResponseWriter, r *http.Request) {
	t.xhrHeaders(w, r)
	t.serveReceiver(w, r, xhrFramer{})
}

func (t *Transports) serveXHRStreaming(w http.ResponseWriter, r *http.Request) {
	t.xhrHeaders(w, r)
	t.serveReceiver(w, r, xhrFramer{stream: true})
}

func (t *Transports) xhrHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=UTF-8")
	SetNoCache(w)
	SetJSESSIONID(w, r, t.cfg.InsertJSESSIONID)
	SetCORS(w, r)
}

func (t *Transports) serveXHRSend(w http.ResponseWriter, r *http.Request) {
	SetJSESSIONID(w, r, t.cfg.InsertJSESSIONID)
	SetCORS(w, r)

	s, ok := t.existingSession(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("Failed to read xhr_send body: %v", err)
		return
	}
	if !t.deliver(w, r, s, body) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(http.StatusNoContent)
}

// deliver decodes a send request body and hands the messages to s. It writes
// the error response and reports false when the body is unusable. Broken
// framing closes the session, since the stream cannot be resynchronized.
func (t *Transports) deliver(w http.ResponseWriter, r *http.Request, s *session.Session, body []byte) bool {
	messages, err := protocol.DecodeMessages(body)
	switch {
	case errors.Is(err, protocol.ErrEmptyPayload):
		Error(w, http.StatusInternalServerError, "Payload expected.")
		return false
	case err != nil:
		log.Printf("Closing session %s: %v", s.ID(), err)
		Error(w, http.StatusInternalServerError, "Broken JSON encoding.")
		s.CloseWith(protocol.CloseProtocolViolation, protocol.ReasonBrokenJSON)
		return false
	}
	if err := s.Deliver(messages); err != nil {
		http.NotFound(w, r)
		return false
	}
	return true
}
