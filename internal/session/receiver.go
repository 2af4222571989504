// Package session holds the transport-independent state of a SockJS
// connection: the Session itself, the registry that maps ids to sessions, and
// the monitor that sends heartbeats and expires idle sessions.
package session

// Receiver abstracts the physical connection currently serving a session,
// whatever transport it uses. This interface isolates transport details from
// session logic.
type Receiver interface {
	// Send writes a single SockJS frame. It reports whether the connection
	// accepts further frames; polling transports return false after one frame
	// and streaming transports once their byte budget is spent.
	Send(frame string) (more bool, err error)

	// Close ends the physical connection. It must be idempotent.
	Close()
}
