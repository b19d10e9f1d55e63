package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/parleyhq/sessionkit/pkg/transport"
	"github.com/parleyhq/sessionkit/pkg/wire"
)

// Default reconnection parameters.
const (
	// DefaultReconnectInterval is the base delay before the first
	// reconnect attempt.
	DefaultReconnectInterval = 1 * time.Second

	// DefaultMaxReconnectAttempts is the reconnect attempt ceiling.
	DefaultMaxReconnectAttempts = 5
)

// ReconnectPolicy bounds reconnection after an unexpected closure.
type ReconnectPolicy struct {
	// Interval is the base delay before a reconnect attempt. Attempts
	// back off exponentially from this base.
	// Default: DefaultReconnectInterval.
	Interval time.Duration

	// MaxAttempts is the attempt ceiling. Once exceeded the connection
	// moves to Closed and ErrReconnectExhausted is surfaced.
	// Default: DefaultMaxReconnectAttempts. Negative disables
	// reconnection entirely (the first unexpected closure is terminal).
	MaxAttempts int
}

// Callbacks provides notification hooks for Manager events. All callbacks
// are invoked serially: state changes are delivered in the exact order the
// transitions occur, and messages in transport delivery order. Callbacks
// must not call back into the Manager synchronously.
type Callbacks struct {
	// OnStateChange is called after every applied state transition.
	OnStateChange func(from, to State)

	// OnMessage is called for every received envelope except "pong",
	// which is consumed by the heartbeat layer.
	OnMessage func(env wire.Envelope)

	// OnError is called for absorbed transport failures and for the
	// terminal ErrReconnectExhausted.
	OnError func(err error)
}

// Config configures a Manager.
type Config struct {
	// Dialer opens transport connections. Required unless Disabled.
	Dialer transport.Dialer

	// Callbacks receive Manager notifications.
	Callbacks Callbacks

	// Reconnect bounds reconnection after unexpected closure.
	Reconnect ReconnectPolicy

	// HeartbeatInterval is the ping emission period while Connected.
	// Zero disables the heartbeat.
	HeartbeatInterval time.Duration

	// Disabled keeps the connection permanently in Disconnected:
	// Connect is a no-op and no network or timer activity occurs.
	Disabled bool

	// LoggerFactory creates the manager's logger.
	// Default: logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.Reconnect.Interval == 0 {
		c.Reconnect.Interval = DefaultReconnectInterval
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = DefaultMaxReconnectAttempts
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
}

// stateChange is one queued state-change notification.
type stateChange struct {
	from, to State
}

// Manager owns one logical signaling connection and its timers.
type Manager struct {
	dialer   transport.Dialer
	cb       Callbacks
	disabled bool
	log      logging.LeveledLogger

	heartbeat *HeartbeatMonitor
	reconnect *ReconnectionScheduler

	mu      sync.Mutex
	state   State
	conn    transport.Conn
	addr    string
	creds   string
	closed  bool // user-initiated teardown
	gen     uint64
	pending []stateChange

	// notifyMu serializes callback delivery so notification order
	// matches transition order.
	notifyMu sync.Mutex
}

// NewManager creates a connection manager. The manager performs no network
// activity until Connect is called.
func NewManager(config Config) (*Manager, error) {
	config.applyDefaults()

	if config.Dialer == nil && !config.Disabled {
		return nil, ErrDialerRequired
	}

	m := &Manager{
		dialer:   config.Dialer,
		cb:       config.Callbacks,
		disabled: config.Disabled,
		log:      config.LoggerFactory.NewLogger("connection"),
		state:    StateIdle,
	}

	if config.Disabled {
		// A disabled connection is permanently Disconnected.
		m.state = StateDisconnected
		return m, nil
	}

	m.heartbeat = NewHeartbeatMonitor(config.HeartbeatInterval, m.Send, m.log)
	m.reconnect = NewReconnectionScheduler(
		config.Reconnect,
		m.log,
		m.beginReconnect,
		m.redial,
		m.reconnectExhausted,
	)

	return m, nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect opens the connection. It is a no-op while Connecting or Connected
// and when the manager is disabled. On handshake failure the state moves to
// Disconnected and reconnection is scheduled.
func (m *Manager) Connect(ctx context.Context, addr, credentials string) error {
	if m.disabled {
		m.log.Debug("connect ignored: connection disabled")
		return nil
	}

	m.mu.Lock()
	if m.state == StateConnecting || m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.closed = false
	m.addr = addr
	m.creds = credentials
	m.mu.Unlock()

	// A manual connect supersedes any pending reconnect timer.
	m.reconnect.Cancel()

	if !m.setState(StateConnecting) {
		return nil
	}
	return m.dial(ctx, addr, credentials)
}

// dial performs the transport handshake and, on success, starts the read
// loop and heartbeat. Shared by Connect and the reconnect path.
func (m *Manager) dial(ctx context.Context, addr, credentials string) error {
	conn, err := m.dialer.Dial(ctx, addr, credentials)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrConnectFailed, err)
		m.log.Warnf("dial %s: %v", addr, err)
		m.notifyError(wrapped)
		if m.setState(StateDisconnected) {
			m.maybeScheduleReconnect()
		}
		return wrapped
	}

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.conn = conn
	m.mu.Unlock()

	if !m.setStateFrom(StateConnecting, StateConnected) {
		// Torn down while the handshake was in flight.
		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		conn.Close()
		return nil
	}

	m.reconnect.Reset()
	m.heartbeat.Start()
	go m.readLoop(conn, gen)

	m.log.Infof("connected to %s", addr)
	return nil
}

// ReconnectAttempts returns the attempt count since the last successful
// connection. Always zero when the manager is disabled.
func (m *Manager) ReconnectAttempts() int {
	if m.reconnect == nil {
		return 0
	}
	return m.reconnect.Attempts()
}

// Send forwards the serialized envelope over the transport. Fails with
// ErrNotConnected unless the state is Connected.
func (m *Manager) Send(env wire.Envelope) error {
	m.mu.Lock()
	if m.state != StateConnected || m.conn == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	conn := m.conn
	m.mu.Unlock()

	data, err := env.Encode()
	if err != nil {
		return err
	}
	return conn.Send(data)
}

// Disconnect tears the connection down. The state moves to Closed from any
// state, all timers stop, and no pending reconnect may fire afterwards.
func (m *Manager) Disconnect() {
	if m.disabled {
		return
	}

	m.mu.Lock()
	if m.closed && m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	m.reconnect.Cancel()
	m.heartbeat.Stop()
	if conn != nil {
		conn.Close()
	}
	m.setState(StateClosed)
	m.log.Info("disconnected")
}

// readLoop surfaces inbound envelopes until the transport closes. gen guards
// against a stale loop of a previous connection reporting closure.
func (m *Manager) readLoop(conn transport.Conn, gen uint64) {
	for {
		data, err := conn.Receive()
		if err != nil {
			m.handleConnClosed(gen)
			return
		}

		env, err := wire.Decode(data)
		if err != nil {
			m.log.Warnf("dropping malformed message: %v", err)
			continue
		}
		if env.IsPong() {
			m.log.Trace("pong received")
			continue
		}
		if m.cb.OnMessage != nil {
			m.cb.OnMessage(env)
		}
	}
}

// handleConnClosed reacts to a transport-initiated closure.
func (m *Manager) handleConnClosed(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.closed {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.mu.Unlock()

	m.heartbeat.Stop()
	m.log.Warn("transport closed unexpectedly")
	if m.setState(StateDisconnected) {
		m.maybeScheduleReconnect()
	}
}

func (m *Manager) maybeScheduleReconnect() {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	m.reconnect.Schedule()
}

// beginReconnect is invoked by the scheduler when the reconnect delay
// elapses. It returns false if the attempt was cancelled in the meantime.
func (m *Manager) beginReconnect() bool {
	return m.setStateFrom(StateDisconnected, StateReconnecting)
}

// redial is invoked by the scheduler after beginReconnect succeeds.
func (m *Manager) redial() {
	m.mu.Lock()
	addr, creds := m.addr, m.creds
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}

	if !m.setStateFrom(StateReconnecting, StateConnecting) {
		return
	}
	// Error already absorbed and rescheduled by dial.
	_ = m.dial(context.Background(), addr, creds)
}

// reconnectExhausted is invoked by the scheduler once the attempt ceiling
// is exceeded.
func (m *Manager) reconnectExhausted() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.log.Error("reconnect attempts exhausted")
	m.setState(StateClosed)
	m.notifyError(ErrReconnectExhausted)
}

// setState applies a transition if its edge is defined, queueing the
// notification. Returns true if the transition was applied.
func (m *Manager) setState(to State) bool {
	m.mu.Lock()
	from := m.state
	if from == to {
		m.mu.Unlock()
		return false
	}
	if !CanTransition(from, to) {
		m.mu.Unlock()
		m.log.Debugf("ignoring illegal transition %s -> %s", from, to)
		return false
	}
	m.state = to
	m.pending = append(m.pending, stateChange{from: from, to: to})
	m.mu.Unlock()

	m.flushNotifications()
	return true
}

// setStateFrom applies the transition only when the current state is from.
// Used on the reconnect path so a concurrent Disconnect cannot be undone.
func (m *Manager) setStateFrom(from, to State) bool {
	m.mu.Lock()
	if m.state != from || !CanTransition(from, to) {
		m.mu.Unlock()
		return false
	}
	m.state = to
	m.pending = append(m.pending, stateChange{from: from, to: to})
	m.mu.Unlock()

	m.flushNotifications()
	return true
}

// flushNotifications drains queued state changes in transition order.
func (m *Manager) flushNotifications() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return
		}
		n := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		if m.cb.OnStateChange != nil {
			m.cb.OnStateChange(n.from, n.to)
		}
	}
}

func (m *Manager) notifyError(err error) {
	if m.cb.OnError != nil {
		m.cb.OnError(err)
	}
}
