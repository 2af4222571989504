// Package transport implements the SockJS transports: the HTTP streaming and
// polling variants, and the two websocket endpoints. Every transport binds
// its physical connection to a session.Session through session.Receiver.
package transport

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/omochice/sockjs-server/internal/session"
)

// Kind names a group of transports that are enabled or disabled together.
type Kind string

const (
	KindWebSocket   Kind = "WEBSOCKET"
	KindEventSource Kind = "EVENT_SOURCE"
	KindHTMLFile    Kind = "HTML_FILE"
	KindJSONP       Kind = "JSON_P"
	KindXHR         Kind = "XHR"
)

// AllKinds lists every transport kind.
func AllKinds() []Kind {
	return []Kind{KindWebSocket, KindEventSource, KindHTMLFile, KindJSONP, KindXHR}
}

// ParseKind parses a transport kind name, ignoring case.
func ParseKind(s string) (Kind, error) {
	for _, k := range AllKinds() {
		if strings.EqualFold(string(k), strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown transport %q", s)
}

// Set is a set of enabled transport kinds.
type Set map[Kind]bool

// Enabled returns every kind except the disabled ones.
func Enabled(disabled []Kind) Set {
	set := make(Set)
	for _, k := range AllKinds() {
		set[k] = true
	}
	for _, k := range disabled {
		delete(set, k)
	}
	return set
}

// Has reports whether k is enabled.
func (s Set) Has(k Kind) bool {
	return s[k]
}

// Config carries what the transports need from the handler.
type Config struct {
	Registry          session.Registry
	Handler           session.Handler
	MaxBytesStreaming int
	InsertJSESSIONID  bool
}

// Transports serves the session endpoints of one SockJS handler.
type Transports struct {
	cfg Config
}

// New creates the transports for cfg.
func New(cfg Config) *Transports {
	return &Transports{cfg: cfg}
}

// sessionPath matches /{server}/{session}/ where neither segment may be
// empty or contain a dot or slash.
const sessionPath = "/{server:[^/.]+}/{session:[^/.]+}/"

// Register mounts the routes of the enabled transports on r.
func (t *Transports) Register(r *mux.Router, enabled Set) {
	if enabled.Has(KindXHR) {
		t.route(r, "xhr", http.MethodPost, t.serveXHR)
		t.route(r, "xhr_streaming", http.MethodPost, t.serveXHRStreaming)
		t.route(r, "xhr_send", http.MethodPost, t.serveXHRSend)
	}
	if enabled.Has(KindEventSource) {
		r.HandleFunc(sessionPath+"eventsource", t.serveEventSource).Methods(http.MethodGet)
	}
	if enabled.Has(KindHTMLFile) {
		r.HandleFunc(sessionPath+"htmlfile", t.serveHTMLFile).Methods(http.MethodGet)
	}
	if enabled.Has(KindJSONP) {
		r.HandleFunc(sessionPath+"jsonp", t.serveJSONP).Methods(http.MethodGet)
		r.HandleFunc(sessionPath+"jsonp_send", t.serveJSONPSend).Methods(http.MethodPost)
	}
	if enabled.Has(KindWebSocket) {
		r.HandleFunc(sessionPath+"websocket", t.serveWebSocket).Methods(http.MethodGet)
		r.HandleFunc("/websocket", t.serveRawWebSocket).Methods(http.MethodGet)
	}
}

// route mounts a POST endpoint together with its CORS preflight.
func (t *Transports) route(r *mux.Router, name, method string, h http.HandlerFunc) {
	r.HandleFunc(sessionPath+name, h).Methods(method)
	r.HandleFunc(sessionPath+name, OptionsHandler(t.cfg.InsertJSESSIONID, "OPTIONS, "+method)).Methods(http.MethodOptions)
}

// session returns the session named in the request path, creating it if
// needed.
func (t *Transports) session(r *http.Request) *session.Session {
	id := mux.Vars(r)["session"]
	s, created := t.cfg.Registry.GetOrCreate(id, func() *session.Session {
		return session.New(id, session.NewInfo(r), t.cfg.Handler)
	})
	if created {
		log.Printf("Session %s opened from %s", id, r.RemoteAddr)
	}
	return s
}

// existingSession returns the session named in the request path if it is
// registered and still accepting data.
func (t *Transports) existingSession(r *http.Request) (*session.Session, bool) {
	s, ok := t.cfg.Registry.Get(mux.Vars(r)["session"])
	if !ok {
		return nil, false
	}
	switch s.State() {
	case session.StateClosing, session.StateClosed:
		return nil, false
	}
	return s, true
}

// serveReceiver attaches an HTTP receiver to the session and blocks until
// the transport is done with the response.
func (t *Transports) serveReceiver(w http.ResponseWriter, r *http.Request, f framer) {
	s := t.session(r)
	recv := newHTTPReceiver(w, f, t.cfg.MaxBytesStreaming)
	if err := recv.start(); err != nil {
		log.Printf("Failed to start %s response: %v", f.name(), err)
		return
	}
	if err := s.Attach(recv); err != nil {
		return
	}

	select {
	case <-recv.Done():
	case <-r.Context().Done():
	}
	s.Detach(recv)
}
