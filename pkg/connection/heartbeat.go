package connection

import (
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/parleyhq/sessionkit/pkg/wire"
)

// HeartbeatMonitor emits a {"type":"ping"} envelope on a fixed interval
// while the connection is Connected. It performs no timeout detection of
// its own: liveness is inferred from transport-level closure.
//
// The monitor owns its timer exclusively. Start and Stop are idempotent;
// Stop is called on every transition out of Connected.
type HeartbeatMonitor struct {
	interval time.Duration
	send     func(wire.Envelope) error
	log      logging.LeveledLogger

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewHeartbeatMonitor creates a heartbeat monitor. A zero or negative
// interval disables it entirely.
func NewHeartbeatMonitor(interval time.Duration, send func(wire.Envelope) error, log logging.LeveledLogger) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		interval: interval,
		send:     send,
		log:      log,
	}
}

// Start begins periodic ping emission. No-op if already running or if the
// monitor is disabled.
func (h *HeartbeatMonitor) Start() {
	if h.interval <= 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopCh != nil {
		return
	}
	stop := make(chan struct{})
	h.stopCh = stop
	go h.run(stop)
}

// Stop halts ping emission. No-op if not running.
func (h *HeartbeatMonitor) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopCh == nil {
		return
	}
	close(h.stopCh)
	h.stopCh = nil
}

// Running reports whether the monitor is currently emitting pings.
func (h *HeartbeatMonitor) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopCh != nil
}

func (h *HeartbeatMonitor) run(stop chan struct{}) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := h.send(wire.Ping()); err != nil {
				// The manager stops the monitor on disconnect;
				// a failed send here is a benign race with it.
				h.log.Debugf("heartbeat send: %v", err)
			}
		}
	}
}
