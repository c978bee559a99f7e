package link

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is one open push channel.
type Conn interface {
	// ReadFrame blocks until the next frame arrives. It returns an error once the channel is gone.
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close() error
}

// Transport opens push channels. A Dial error is the "error before open" signal.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

const defaultWriteTimeout = 10 * time.Second

// WebsocketTransport dials websocket endpoints with gorilla/websocket.
type WebsocketTransport struct {
	dialer       *websocket.Dialer
	writeTimeout time.Duration
}

func NewWebsocketTransport(handshakeTimeout time.Duration) *WebsocketTransport {
	return &WebsocketTransport{
		dialer: &websocket.Dialer{ //nolint:exhaustruct // defaults are fine
			HandshakeTimeout: handshakeTimeout,
			Proxy:            websocket.DefaultDialer.Proxy,
		},
		writeTimeout: defaultWriteTimeout,
	}
}

func (t *WebsocketTransport) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := t.dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("Dial: %s: %w", url, err)
	}

	return &websocketConn{conn: conn, writeTimeout: t.writeTimeout, writeMu: sync.Mutex{}}, nil
}

type websocketConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

func (c *websocketConn) ReadFrame() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("ReadFrame: %w", err)
		}
		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *websocketConn) WriteFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("WriteFrame: %w", err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("WriteFrame: %w", err)
	}

	return nil
}

// Close sends a close frame if possible and tears the connection down. The peer may already be
// gone, so a failing close frame is ignored.
func (c *websocketConn) Close() error {
	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()

	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("Close: %w", err)
	}

	return nil
}
