package session

import (
	"context"
	"log"
	"time"
)

// Monitor periodically expires idle sessions and sends heartbeats to the
// ones that have a receiver attached.
type Monitor struct {
	registry          Registry
	timeout           time.Duration
	heartbeatInterval time.Duration
	sweepInterval     time.Duration
}

// NewMonitor creates a Monitor over registry. A session expires once it has
// had no receiver for longer than timeout.
func NewMonitor(registry Registry, timeout, heartbeatInterval, sweepInterval time.Duration) *Monitor {
	return &Monitor{
		registry:          registry,
		timeout:           timeout,
		heartbeatInterval: heartbeatInterval,
		sweepInterval:     sweepInterval,
	}
}

// Run blocks until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	sweep := time.NewTicker(m.sweepInterval)
	defer sweep.Stop()
	heartbeat := time.NewTicker(m.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-sweep.C:
			m.Sweep(now)
		case <-heartbeat.C:
			m.Heartbeat()
		}
	}
}

// Sweep closes and removes every session that expired by now. It returns
// the number of sessions removed.
func (m *Monitor) Sweep(now time.Time) int {
	removed := 0
	m.registry.Range(func(s *Session) bool {
		if !s.ExpireIfIdle(now, m.timeout) {
			return true
		}
		m.registry.Remove(s.ID())
		removed++
		return true
	})
	if removed > 0 {
		log.Printf("Expired %d idle sessions", removed)
	}
	return removed
}

// Heartbeat sends a heartbeat frame to every open session with a receiver.
// Each session is written from its own goroutine, and a session whose
// previous heartbeat is still being written is skipped.
func (m *Monitor) Heartbeat() {
	m.registry.Range(func(s *Session) bool {
		if !s.heartbeating.CompareAndSwap(false, true) {
			return true
		}
		go func() {
			defer s.heartbeating.Store(false)
			s.Heartbeat()
		}()
		return true
	})
}
