package lsp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
)

// maxFrameSize bounds inbound frames; large completion payloads exceed the
// websocket library default.
const maxFrameSize = 16 << 20

// Conn is a duplex message connection carrying one JSON object per frame.
// The production implementation wraps a WebSocket; tests inject an in-memory
// pipe.
type Conn interface {
	// Read blocks until the next inbound frame or a connection failure.
	Read(ctx context.Context) ([]byte, error)
	// Write sends one frame.
	Write(ctx context.Context, frame []byte) error
	// Close tears the connection down.
	Close() error
}

// Dialer opens a Conn to the given endpoint URL.
type Dialer func(ctx context.Context, endpoint string) (Conn, error)

// Endpoint builds the connection URL for a (language, workspace root) pair.
// Both values travel as query parameters; they route the connection to the
// correct language-server process on the receiving end and are not part of
// the JSON-RPC payload.
func Endpoint(base, language, rootURI string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", base, err)
	}
	q := u.Query()
	q.Set("language", language)
	if rootURI != "" {
		q.Set("rootUri", rootURI)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// WebSocketDialer returns a Dialer backed by a WebSocket client connection.
func WebSocketDialer() Dialer {
	return func(ctx context.Context, endpoint string) (Conn, error) {
		ws, _, err := websocket.Dial(ctx, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", endpoint, err)
		}
		ws.SetReadLimit(maxFrameSize)
		return &wsConn{ws: ws}, nil
	}
}

// wsConn adapts a *websocket.Conn to the Conn interface.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.ws.Read(ctx)
	return data, err
}

func (c *wsConn) Write(ctx context.Context, frame []byte) error {
	return c.ws.Write(ctx, websocket.MessageText, frame)
}

func (c *wsConn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}

// Channel owns a single connection to a language server and pumps inbound
// frames to the session. It does not retry: reconnection policy belongs to
// the session lifecycle.
type Channel struct {
	dialer   Dialer
	endpoint string
	log      *slog.Logger

	onFrame  func(frame []byte)
	onClosed func(err error)

	mu     sync.Mutex
	conn   Conn
	open   atomic.Bool
	closed atomic.Bool // set by Disconnect; suppresses the onClosed callback
	cancel context.CancelFunc
}

// NewChannel creates a channel for one connection attempt. onFrame receives
// every raw inbound frame; onClosed fires once when the read loop ends for
// any reason other than an explicit Disconnect.
func NewChannel(dialer Dialer, endpoint string, log *slog.Logger, onFrame func([]byte), onClosed func(error)) *Channel {
	return &Channel{
		dialer:   dialer,
		endpoint: endpoint,
		log:      log,
		onFrame:  onFrame,
		onClosed: onClosed,
	}
}

// Connect dials the endpoint and starts the read loop. It rejects on dial
// failure and never retries on its own.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("lsp: channel already connected")
	}

	conn, err := c.dialer(ctx, c.endpoint)
	if err != nil {
		return err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.open.Store(true)

	go c.readLoop(readCtx, conn)
	return nil
}

// Send writes one frame. It fails loudly when the channel is not open;
// callers on non-critical paths check IsOpen first.
func (c *Channel) Send(ctx context.Context, frame []byte) error {
	if !c.open.Load() {
		return ErrNotConnected
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Write(ctx, frame); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

// IsOpen reports whether the channel can currently send.
func (c *Channel) IsOpen() bool {
	return c.open.Load()
}

// Disconnect closes the connection and clears internal references. It is
// idempotent; a disconnected channel cannot be reused.
func (c *Channel) Disconnect() {
	if c.closed.Swap(true) {
		return
	}
	c.open.Store(false)

	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

// readLoop delivers inbound frames until the connection fails or the channel
// is disconnected.
func (c *Channel) readLoop(ctx context.Context, conn Conn) {
	for {
		frame, err := conn.Read(ctx)
		if err != nil {
			c.open.Store(false)
			if c.closed.Load() {
				return
			}
			c.log.Debug("lsp channel read loop ended", "error", err)
			if c.onClosed != nil {
				c.onClosed(err)
			}
			c.Disconnect()
			return
		}
		if c.onFrame != nil {
			c.onFrame(frame)
		}
	}
}
