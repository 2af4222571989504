package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/omochice/sockjs-server/internal/bridge"
	"github.com/omochice/sockjs-server/internal/server"
	"github.com/omochice/sockjs-server/internal/transport"
)

func main() {
	defaults := server.DefaultOptions()

	// Parse command-line flags
	port := flag.String("port", ":8080", "Address to listen on (e.g., :8080)")
	sessionTimeout := flag.Duration("session-timeout", defaults.SessionTimeout, "Close sessions without a connection for this long")
	heartbeat := flag.Duration("heartbeat", defaults.HeartbeatInterval, "Heartbeat interval")
	maxBytes := flag.Int("max-bytes-streaming", defaults.MaxBytesStreaming, "Bytes sent over a streaming response before it is recycled")
	libraryURL := flag.String("library-url", defaults.LibraryURL, "sockjs-client URL loaded by the iframe page")
	disabled := flag.String("disabled-transports", "", "Comma separated transports to disable (WEBSOCKET, EVENT_SOURCE, HTML_FILE, JSON_P, XHR)")
	jsessionid := flag.Bool("jsessionid", false, "Set a JSESSIONID cookie for sticky load balancing")
	origins := flag.String("origins", "", "Comma separated allowed origins, e.g. https://*.example.com")
	flag.Parse()

	opts := defaults
	opts.SessionTimeout = *sessionTimeout
	opts.HeartbeatInterval = *heartbeat
	opts.MaxBytesStreaming = *maxBytes
	opts.LibraryURL = *libraryURL
	opts.InsertJSESSIONID = *jsessionid
	opts.AllowedOrigins = splitList(*origins)
	for _, name := range splitList(*disabled) {
		kind, err := transport.ParseKind(name)
		if err != nil {
			log.Fatalf("Invalid -disabled-transports: %v", err)
		}
		opts.DisabledTransports = append(opts.DisabledTransports, kind)
	}

	srv := server.New(*port)
	for prefix, h := range server.DemoApps(opts) {
		srv.Mount(prefix, h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eventBus, err := newEventBus(ctx)
	if err != nil {
		log.Fatalf("Failed to set up event bus: %v", err)
	}
	srv.Mount("/eventbus", server.NewHandler(opts, eventBus.Handle))

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		log.Printf("Starting SockJS server on %s...", *port)
		log.Printf("  Serving %s", strings.Join(srv.Prefixes(), ", "))
		errChan <- srv.Start()
	}()

	// Wait for either error or shutdown signal
	select {
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down...", sig)
		srv.Stop()
	}

	log.Println("SockJS server stopped")
}

// newEventBus bridges sockets to a local bus with an "echo" service and a
// "time" feed.
func newEventBus(ctx context.Context) (*bridge.Bridge, error) {
	bus := bridge.NewLocalBus()
	if _, err := bridge.ServeEcho(bus, "echo"); err != nil {
		return nil, err
	}
	go bridge.PublishTime(ctx, bus, "time", time.Second)

	opts := bridge.DefaultOptions()
	opts.Inbound = []bridge.PermittedOptions{{Address: "echo"}}
	opts.Outbound = []bridge.PermittedOptions{{Address: "time"}}
	return bridge.New(bus, opts)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
