package server

import (
	"time"

	"github.com/omochice/sockjs-server/internal/transport"
)

// Options configures a SockJS handler.
type Options struct {
	// SessionTimeout is how long a session may go without an attached
	// receiver before it is closed and removed.
	SessionTimeout time.Duration
	// HeartbeatInterval is the period of heartbeat frames.
	HeartbeatInterval time.Duration
	// SweepInterval is how often idle sessions are looked for.
	SweepInterval time.Duration
	// MaxBytesStreaming is how many bytes a streaming response carries
	// before the client is asked to open a new one.
	MaxBytesStreaming int
	// LibraryURL is the sockjs-client script loaded by the iframe page.
	LibraryURL string
	// DisabledTransports lists the transports not served.
	DisabledTransports []transport.Kind
	// InsertJSESSIONID sets a JSESSIONID cookie for sticky load balancing.
	InsertJSESSIONID bool
	// AllowedOrigins restricts the Origin header of requests. Patterns use
	// path.Match syntax; "*" or an empty list allows everything.
	AllowedOrigins []string
}

// DefaultOptions returns the default handler options.
func DefaultOptions() Options {
	return Options{
		SessionTimeout:    5 * time.Second,
		HeartbeatInterval: 25 * time.Second,
		SweepInterval:     time.Second,
		MaxBytesStreaming: 128 * 1024,
		LibraryURL:        "https://cdn.jsdelivr.net/sockjs/0.3.4/sockjs.min.js",
	}
}

// withDefaults fills zero values from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = d.SessionTimeout
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = d.HeartbeatInterval
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = d.SweepInterval
	}
	if o.MaxBytesStreaming <= 0 {
		o.MaxBytesStreaming = d.MaxBytesStreaming
	}
	if o.LibraryURL == "" {
		o.LibraryURL = d.LibraryURL
	}
	return o
}
