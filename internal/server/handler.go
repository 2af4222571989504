// Package server serves SockJS endpoints over HTTP: a Handler per
// application prefix and a Server that owns the listener.
package server

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/omochice/sockjs-server/internal/session"
	"github.com/omochice/sockjs-server/internal/transport"
)

// Handler serves one SockJS application. It is mounted under a prefix with
// the prefix stripped from request paths.
type Handler struct {
	opts     Options
	enabled  transport.Set
	registry *session.MemoryRegistry
	router   *mux.Router
	cancel   context.CancelFunc

	iframe []byte
	etag   string
}

// NewHandler creates a handler calling fn for every new socket and starts
// its session monitor. Close stops the monitor.
func NewHandler(opts Options, fn session.Handler) *Handler {
	opts = opts.withDefaults()
	h := &Handler{
		opts:     opts,
		enabled:  transport.Enabled(opts.DisabledTransports),
		registry: session.NewMemoryRegistry(16),
		router:   mux.NewRouter(),
	}
	h.iframe = []byte(strings.Replace(iframeTemplate, "{{ sockjs_url }}", opts.LibraryURL, 1))
	sum := md5.Sum(h.iframe)
	h.etag = `"` + hex.EncodeToString(sum[:]) + `"`

	h.router.Use(h.checkOrigin)
	h.router.HandleFunc("/", h.welcome).Methods(http.MethodGet)
	h.router.HandleFunc("/info", h.info).Methods(http.MethodGet)
	h.router.HandleFunc("/info", transport.OptionsHandler(opts.InsertJSESSIONID, "OPTIONS, GET")).Methods(http.MethodOptions)
	h.router.HandleFunc("/iframe{version:(?:-[^/]*)?}.html", h.iframePage).Methods(http.MethodGet)
	h.router.HandleFunc("/chunking_test", h.chunkingTest).Methods(http.MethodPost)
	h.router.HandleFunc("/chunking_test", transport.OptionsHandler(opts.InsertJSESSIONID, "OPTIONS, POST")).Methods(http.MethodOptions)

	transport.New(transport.Config{
		Registry:          h.registry,
		Handler:           fn,
		MaxBytesStreaming: opts.MaxBytesStreaming,
		InsertJSESSIONID:  opts.InsertJSESSIONID,
	}).Register(h.router, h.enabled)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	monitor := session.NewMonitor(h.registry, opts.SessionTimeout, opts.HeartbeatInterval, opts.SweepInterval)
	go monitor.Run(ctx)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// A request for the bare prefix arrives with an empty path.
	if r.URL.Path == "" {
		r.URL.Path = "/"
	}
	h.router.ServeHTTP(w, r)
}

// Close stops the session monitor and closes every session.
func (h *Handler) Close() {
	h.cancel()
	h.registry.Range(func(s *session.Session) bool {
		s.Close()
		return true
	})
}

// SessionCount returns the number of registered sessions.
func (h *Handler) SessionCount() int {
	return h.registry.Len()
}

// checkOrigin rejects requests whose Origin is outside AllowedOrigins.
func (h *Handler) checkOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && !h.originAllowed(origin) {
			log.Printf("Rejected request from origin %s", origin)
			transport.Error(w, http.StatusForbidden, "Origin not allowed")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) originAllowed(origin string) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, pattern := range h.opts.AllowedOrigins {
		if pattern == "*" || pattern == origin {
			return true
		}
		if ok, err := path.Match(pattern, origin); err == nil && ok {
			return true
		}
	}
	return false
}

func (h *Handler) welcome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.Write([]byte("Welcome to SockJS!\n"))
}

type infoResponse struct {
	WebSocket    bool     `json:"websocket"`
	CookieNeeded bool     `json:"cookie_needed"`
	Origins      []string `json:"origins"`
	Entropy      uint32   `json:"entropy"`
	ServerTime   int64    `json:"server_time"`
}

func (h *Handler) info(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	transport.SetNoCache(w)
	transport.SetCORS(w, r)
	json.NewEncoder(w).Encode(infoResponse{
		WebSocket:    h.enabled.Has(transport.KindWebSocket),
		CookieNeeded: h.opts.InsertJSESSIONID,
		Origins:      []string{"*:*"},
		Entropy:      rand.Uint32(),
		ServerTime:   time.Now().UnixMilli(),
	})
}

const iframeTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta http-equiv="X-UA-Compatible" content="IE=edge" />
  <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
  <script>
    document.domain = document.domain;
    _sockjs_onload = function(){SockJS.bootstrap_iframe();};
  </script>
  <script src="{{ sockjs_url }}"></script>
</head>
<body>
  <h2>Don't panic!</h2>
  <p>This is a SockJS hidden iframe. It's used for cross domain magic.</p>
</body>
</html>`

func (h *Handler) iframePage(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("If-None-Match") == h.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	transport.SetCache(w)
	w.Header().Set("ETag", h.etag)
	w.Write(h.iframe)
}

type chunk struct {
	delay   time.Duration
	payload string
}

// chunkingSteps are written in order, each after the given delay.
var chunkingSteps = []chunk{
	{0, "h\n"},
	{time.Millisecond, strings.Repeat(" ", 2048) + "h\n"},
	{5 * time.Millisecond, "h\n"},
	{25 * time.Millisecond, "h\n"},
	{125 * time.Millisecond, "h\n"},
	{625 * time.Millisecond, "h\n"},
	{3125 * time.Millisecond, "h\n"},
}

func (h *Handler) chunkingTest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=UTF-8")
	transport.SetNoCache(w)
	transport.SetCORS(w, r)
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	for _, step := range chunkingSteps {
		select {
		case <-time.After(step.delay):
		case <-r.Context().Done():
			return
		}
		if _, err := w.Write([]byte(step.payload)); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
