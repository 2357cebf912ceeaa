// Package netwatch observes host connectivity and interrupts the in-flight
// transfer when the network drops. The interruption goes through the
// fetcher's abort path, not the user-cancellation path, so the orchestrator
// classifies it as a retryable failure.
package netwatch

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/italolelis/update_fetcher/internal/fetch"
	"github.com/italolelis/update_fetcher/internal/logctx"
	"github.com/italolelis/update_fetcher/internal/update"
)

// ErrConnectivityLost is the cause recorded on a transfer aborted because
// the network went away mid-flight.
var ErrConnectivityLost = errors.New("network connectivity lost")

// Monitor tracks network availability transitions. While a transfer is
// bound, a transition to unavailable aborts it; with nothing bound,
// availability changes are a no-op.
type Monitor struct {
	mu        sync.Mutex
	available bool
	active    update.Transfer
}

// NewMonitor creates a monitor that assumes the network is initially up.
func NewMonitor() *Monitor {
	return &Monitor{available: true}
}

// Bind attaches the transfer currently in flight.
func (m *Monitor) Bind(t update.Transfer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = t
}

// Unbind detaches the current transfer, typically when its attempt ends.
func (m *Monitor) Unbind() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = nil
}

// SetAvailable records a connectivity transition reported by the host
// networking layer. Only a true -> false edge with a bound transfer has any
// effect: the transfer is aborted with a transient error so the
// orchestrator can retry it.
func (m *Monitor) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasAvailable := m.available
	m.available = available

	if !wasAvailable || available || m.active == nil {
		return
	}

	m.active.Abort(&fetch.TransientError{Operation: "connectivity", Err: ErrConnectivityLost})
}

// Available reports the last observed connectivity state.
func (m *Monitor) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.available
}

// Probe reports whether the network currently looks reachable.
type Probe func() bool

// DialProbe returns a probe that considers the network up when a TCP
// connection to addr succeeds within timeout.
func DialProbe(addr string, timeout time.Duration) Probe {
	return func() bool {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return false
		}

		conn.Close()

		return true
	}
}

// Watch polls the probe at the given interval and feeds transitions into
// the monitor until the context is cancelled.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration, probe Probe) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("connectivity watcher shutting down")

			return
		case <-ticker.C:
			available := probe()
			if available != m.Available() {
				logger.Warn("network availability changed", "available", available)
			}

			m.SetAvailable(available)
		}
	}
}
