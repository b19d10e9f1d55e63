package rtsession

import (
	"runtime"
	"time"

	"github.com/pion/logging"

	"github.com/parleyhq/sessionkit/pkg/connection"
	"github.com/parleyhq/sessionkit/pkg/e2ee"
	"github.com/parleyhq/sessionkit/pkg/identity"
	"github.com/parleyhq/sessionkit/pkg/mediaroom"
	"github.com/parleyhq/sessionkit/pkg/transport"
)

// DefaultHeartbeatInterval is the default ping period on the signaling
// connection.
const DefaultHeartbeatInterval = 30 * time.Second

// Config configures a Session.
type Config struct {
	// Enabled activates the session. A disabled session performs no
	// network or timer activity and reports Disconnected permanently.
	Enabled bool

	// ServerAddr is the signaling server address. Required when Enabled.
	ServerAddr string

	// Credentials is the bearer credential presented at dial time.
	Credentials string

	// Dialer opens signaling connections. Required when Enabled.
	Dialer transport.Dialer

	// Room is the media surface. Optional; media operations fail with
	// ErrNoRoom without one.
	Room mediaroom.Room

	// IdentityStore persists the device identifier. Default: in-memory.
	IdentityStore identity.Store

	// ReconnectInterval is the base reconnect delay.
	// Default: connection.DefaultReconnectInterval.
	ReconnectInterval time.Duration

	// MaxReconnectAttempts bounds reconnection.
	// Default: connection.DefaultMaxReconnectAttempts.
	MaxReconnectAttempts int

	// HeartbeatInterval is the ping period while connected.
	// Default: DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration

	// DisableEncryption turns the end-to-end-encryption layer off. The
	// session still tracks membership; encryption health reports
	// degraded.
	DisableEncryption bool

	// KeyRotationInterval is the period between scheduled re-keys.
	// Default: e2ee.DefaultRotationInterval.
	KeyRotationInterval time.Duration

	// PreferredAlgorithm, when set, leads the advertised capability
	// list.
	PreferredAlgorithm e2ee.Algorithm

	// Platform and Browser describe this client in its capability
	// metadata. Platform defaults to runtime.GOOS.
	Platform string
	Browser  string

	// LoggerFactory creates loggers for the session and its layers.
	// Default: logging.NewDefaultLoggerFactory().
	LoggerFactory logging.LoggerFactory
}

// DefaultConfig returns an enabled configuration with default intervals.
// Callers fill in ServerAddr and Dialer.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		ReconnectInterval:    connection.DefaultReconnectInterval,
		MaxReconnectAttempts: connection.DefaultMaxReconnectAttempts,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		KeyRotationInterval:  e2ee.DefaultRotationInterval,
		Platform:             runtime.GOOS,
	}
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServerAddr == "" {
		return ErrServerAddrRequired
	}
	if c.Dialer == nil {
		return ErrDialerRequired
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = connection.DefaultReconnectInterval
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = connection.DefaultMaxReconnectAttempts
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.KeyRotationInterval == 0 {
		c.KeyRotationInterval = e2ee.DefaultRotationInterval
	}
	if c.Platform == "" {
		c.Platform = runtime.GOOS
	}
	if c.LoggerFactory == nil {
		c.LoggerFactory = logging.NewDefaultLoggerFactory()
	}
}
