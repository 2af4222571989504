package server

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

const writeTimeout = 30 * time.Second

// Server listens on one address and serves SockJS handlers under their
// prefixes.
type Server struct {
	address  string
	listener net.Listener
	server   *http.Server
	router   *mux.Router
	handlers map[string]*Handler
	mu       sync.RWMutex
	quit     chan struct{}
	stopOnce sync.Once
}

// New creates a new Server instance
func New(address string) *Server {
	return &Server{
		address:  address,
		router:   mux.NewRouter(),
		handlers: make(map[string]*Handler),
		quit:     make(chan struct{}),
	}
}

// Mount serves h under prefix, e.g. "/echo". It must be called before
// Start.
func (s *Server) Mount(prefix string, h *Handler) {
	prefix = "/" + strings.Trim(prefix, "/")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[prefix] = h
	stripped := http.StripPrefix(prefix, h)
	s.router.Path(prefix).Handler(stripped)
	s.router.PathPrefix(prefix + "/").Handler(stripped)
}

// Prefixes returns the mounted prefixes in order.
func (s *Server) Prefixes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefixes := make([]string, 0, len(s.handlers))
	for p := range s.handlers {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return prefixes
}

// Start starts the server and blocks until Stop is called
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.server = &http.Server{
		Handler: s.router,
		// Renews the write deadline for every request on a keep-alive
		// connection. Streaming transports extend it per frame.
		WriteTimeout: writeTimeout,
	}
	s.mu.Unlock()

	log.Printf("SockJS server started on %s", listener.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for either error or quit signal
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start server: %w", err)
	case <-s.quit:
		return fmt.Errorf("Server stopped")
	}
}

// Stop closes every session and the listener.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)

		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, h := range s.handlers {
			h.Close()
		}
		if s.server != nil {
			s.server.Close()
		}
	})
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// SessionCount returns the number of sessions across all handlers
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, h := range s.handlers {
		n += h.SessionCount()
	}
	return n
}
