package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Default websocket timing parameters.
const (
	// DefaultHandshakeTimeout bounds the websocket upgrade.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultWriteTimeout bounds a single message write.
	DefaultWriteTimeout = 5 * time.Second
)

// WebsocketDialer opens websocket connections to a signaling endpoint.
// Credentials are presented as a bearer token on the upgrade request.
type WebsocketDialer struct {
	// HandshakeTimeout bounds the upgrade handshake.
	// Default: DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each message write.
	// Default: DefaultWriteTimeout.
	WriteTimeout time.Duration
}

// Dial opens a websocket connection to addr (a ws:// or wss:// URL).
func (d *WebsocketDialer) Dial(ctx context.Context, addr, credentials string) (Conn, error) {
	handshakeTimeout := d.HandshakeTimeout
	if handshakeTimeout == 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}
	writeTimeout := d.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = DefaultWriteTimeout
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	var header http.Header
	if credentials != "" {
		header = http.Header{}
		header.Set("Authorization", "Bearer "+credentials)
	}

	ws, _, err := dialer.DialContext(ctx, addr, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDialFailed, err)
	}

	return &websocketConn{
		ws:           ws,
		writeTimeout: writeTimeout,
	}, nil
}

// websocketConn adapts a *websocket.Conn to the Conn interface.
type websocketConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex
	once    sync.Once
}

func (c *websocketConn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("transport: set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

func (c *websocketConn) Receive() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, ErrClosed
	}
	return data, nil
}

func (c *websocketConn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.ws.Close()
	})
	return err
}
