package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"

	"github.com/tidewater/langbridge/internal/config"
	editorport "github.com/tidewater/langbridge/internal/port/editor"
)

// SessionState describes where a client is in its connection lifecycle.
type SessionState string

const (
	// StateDisconnected means no connection exists and none is being made.
	StateDisconnected SessionState = "disconnected"
	// StateConnecting means a dial or handshake is in progress.
	StateConnecting SessionState = "connecting"
	// StateConnected means the handshake completed and features are live.
	StateConnected SessionState = "connected"
	// StateError means the connection failed; automatic reconnection may be
	// pending, or exhausted and waiting for a manual reconnect.
	StateError SessionState = "error"
)

// Client is one language server session. It owns the connection lifecycle,
// the initialize handshake, document sync and the feature bridge for a
// single language. A client survives reconnects; its request ids and open
// document set carry across connections.
type Client struct {
	log      *slog.Logger
	cfg      config.LSP
	language string
	dialer   Dialer
	surface  editorport.Surface

	calls  *Correlator
	docs   *DocumentStore
	sink   *DiagnosticsSink
	bridge *Bridge
	cache  *ristretto.Cache[string, any]

	mu             sync.Mutex
	state          SessionState
	lastErr        error
	channel        *Channel
	caps           CapabilitySet
	serverInfo     *ServerInfo
	sessionID      string
	attempts       int
	reconnectTimer *time.Timer
	closing        bool
}

// NewClient builds a disconnected client for one language. dialer defaults
// to the WebSocket dialer when nil.
func NewClient(log *slog.Logger, cfg config.LSP, language string, dialer Dialer, surface editorport.Surface) (*Client, error) {
	if dialer == nil {
		dialer = WebSocketDialer()
	}
	log = log.With("language", language)

	c := &Client{
		log:      log,
		cfg:      cfg,
		language: language,
		dialer:   dialer,
		surface:  surface,
		state:    StateDisconnected,
	}

	if cfg.Cache.Enabled {
		cache, err := ristretto.NewCache(&ristretto.Config[string, any]{
			NumCounters: cfg.Cache.MaxEntries * 10,
			MaxCost:     cfg.Cache.MaxEntries,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("feature cache: %w", err)
		}
		c.cache = cache
	}

	c.calls = NewCorrelator(log, cfg.RequestTimeout)
	c.docs = NewDocumentStore(log, c.calls)
	c.sink = NewDiagnosticsSink(log, surface, cfg.MaxDiagnostics)
	c.bridge = NewBridge(log, c.calls, c.docs, surface,
		func() bool { return c.State() == StateConnected },
		c.Capabilities,
		c.cache, cfg.Cache.TTL)

	return c, nil
}

// Connect establishes the session: dial, initialize handshake, resync of any
// documents still tracked from a previous connection. Connecting an already
// live session is a no-op. A failed connect leaves the session in the error
// state and starts the automatic retry schedule.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.closing = false
	c.attempts = 0
	c.stopTimerLocked()
	c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		c.scheduleReconnect()
		return err
	}
	return nil
}

// connect performs one connection attempt.
func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.sessionID = uuid.NewString()
	sessionID := c.sessionID
	c.mu.Unlock()

	endpoint, err := Endpoint(c.cfg.EndpointURL, c.language, c.cfg.RootURI)
	if err != nil {
		c.fail(err)
		return err
	}

	ch := NewChannel(c.dialer, endpoint, c.log, c.handleFrame, nil)
	ch.onClosed = func(err error) { c.channelClosed(ch, err) }

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	err = ch.Connect(dialCtx)
	cancel()
	if err != nil {
		c.fail(err)
		return err
	}

	c.mu.Lock()
	c.channel = ch
	c.mu.Unlock()
	c.calls.Bind(ch)

	if err := c.handshake(ctx); err != nil {
		ch.Disconnect()
		c.mu.Lock()
		c.channel = nil
		c.mu.Unlock()
		c.fail(err)
		return err
	}

	c.mu.Lock()
	c.state = StateConnected
	c.attempts = 0
	c.lastErr = nil
	server := c.serverInfo
	c.mu.Unlock()

	serverName := ""
	if server != nil {
		serverName = server.Name
	}
	c.log.Info("language server session established",
		"session_id", sessionID, "server", serverName)

	// The new server starts with no document state; re-announce everything
	// the editor still has open.
	if err := c.docs.Resync(ctx); err != nil {
		c.log.Warn("document resync after connect failed", "error", err)
	}
	return nil
}

// handshake runs initialize and initialized against the fresh connection.
func (c *Client) handshake(ctx context.Context) error {
	hsCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	msg, err := c.calls.Call(hsCtx, "initialize", InitializeParams{
		ProcessID:    os.Getpid(),
		RootURI:      c.cfg.RootURI,
		Capabilities: defaultClientCapabilities(),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	var result InitializeResult
	if err := json.Unmarshal(msg.Result, &result); err != nil {
		return fmt.Errorf("%w: decode result: %v", ErrHandshakeFailed, err)
	}

	c.mu.Lock()
	c.caps = NewCapabilitySet(&result.Capabilities)
	c.serverInfo = result.ServerInfo
	c.mu.Unlock()

	if err := c.calls.Notify(ctx, "initialized", struct{}{}); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	return nil
}

// defaultClientCapabilities advertises what this engine supports.
func defaultClientCapabilities() ClientCapabilities {
	return ClientCapabilities{
		Workspace: &WorkspaceClientCapabilities{
			ApplyEdit:      true,
			ExecuteCommand: true,
		},
		TextDocument: &TextDocumentClientCapabilities{
			Synchronization: &SyncClientCapabilities{DidSave: true},
			Completion: &CompletionClientCapabilities{
				CompletionItem: &CompletionItemCapabilities{SnippetSupport: true},
			},
			PublishDiagnostics: &DiagnosticsClientCapabilities{},
		},
	}
}

// Disconnect ends the session deliberately: shutdown request, exit
// notification, connection close. No automatic reconnection follows; open
// documents stay tracked so a later Connect resyncs them.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	c.closing = true
	c.stopTimerLocked()
	ch := c.channel
	c.channel = nil
	wasConnected := c.state == StateConnected
	c.state = StateDisconnected
	c.lastErr = nil
	c.attempts = 0
	c.mu.Unlock()

	if ch != nil && wasConnected {
		sdCtx, cancel := context.WithTimeout(ctx, c.cfg.ShutdownTimeout)
		if _, err := c.calls.Call(sdCtx, "shutdown", nil); err != nil {
			c.log.Debug("shutdown request failed", "error", err)
		}
		_ = c.calls.Notify(sdCtx, "exit", nil)
		cancel()
	}
	if ch != nil {
		ch.Disconnect()
	}
	c.calls.Drain(ErrConnectionClosed)
	return nil
}

// Reconnect tears the current session down and dials again immediately. It
// is the manual path out of an exhausted retry schedule.
func (c *Client) Reconnect(ctx context.Context) error {
	if err := c.Disconnect(ctx); err != nil {
		return err
	}
	return c.Connect(ctx)
}

// Close releases the client's resources. The client is unusable afterwards.
func (c *Client) Close(ctx context.Context) error {
	err := c.Disconnect(ctx)
	c.docs.CloseAll()
	if c.cache != nil {
		c.cache.Close()
	}
	return err
}

// fail records a failed connection attempt.
func (c *Client) fail(err error) {
	c.mu.Lock()
	c.state = StateError
	c.lastErr = err
	c.mu.Unlock()
	c.log.Warn("connection attempt failed", "error", err)
}

// channelClosed reacts to an unexpected connection loss. Stale channels from
// an earlier connection are ignored.
func (c *Client) channelClosed(ch *Channel, err error) {
	c.mu.Lock()
	if c.closing || c.channel != ch {
		c.mu.Unlock()
		return
	}
	c.channel = nil
	c.state = StateError
	c.lastErr = err
	c.mu.Unlock()

	c.log.Warn("connection to language server lost", "error", err)
	c.calls.Drain(ErrConnectionClosed)
	c.scheduleReconnect()
}

// scheduleReconnect arms the next automatic attempt, or gives up once the
// attempt limit is reached.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return
	}
	if c.attempts >= c.cfg.Backoff.MaxAttempts {
		c.lastErr = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, c.attempts, c.lastErr)
		c.log.Error("reconnect attempts exhausted, manual reconnect required",
			"attempts", c.attempts)
		return
	}
	c.attempts++
	delay := backoffDelay(c.cfg.Backoff, c.attempts)
	c.log.Info("scheduling reconnect", "attempt", c.attempts, "delay", delay)
	c.reconnectTimer = time.AfterFunc(delay, func() {
		if err := c.connect(context.Background()); err != nil {
			c.scheduleReconnect()
		}
	})
}

// backoffDelay computes the delay before the given attempt, growing
// geometrically from the initial delay.
func backoffDelay(b config.Backoff, attempt int) time.Duration {
	return time.Duration(float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt-1)))
}

func (c *Client) stopTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// handleFrame classifies and dispatches one inbound frame.
func (c *Client) handleFrame(raw []byte) {
	msg, err := Decode(raw)
	if err != nil {
		c.log.Warn("dropping malformed frame", "error", err)
		return
	}

	switch msg.Kind() {
	case KindResponse:
		c.calls.Resolve(msg)
	case KindNotification:
		c.handleNotification(msg)
	case KindServerRequest:
		c.handleServerRequest(msg)
	default:
		c.log.Warn("dropping unclassifiable frame")
	}
}

// handleNotification processes server pushes.
func (c *Client) handleNotification(msg *Message) {
	switch msg.Method {
	case "textDocument/publishDiagnostics":
		var params PublishDiagnosticsParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			c.log.Warn("bad publishDiagnostics params", "error", err)
			return
		}
		c.sink.Publish(params)

	case "window/logMessage", "window/showMessage":
		var params LogMessageParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return
		}
		c.log.Log(context.Background(), messageLevel(params.Type),
			"server message", "method", msg.Method, "message", params.Message)

	case "telemetry/event":
		// Intentionally ignored.

	default:
		c.log.Debug("unhandled server notification", "method", msg.Method)
	}
}

// messageLevel maps protocol message types (1 error .. 4 log) to slog levels.
func messageLevel(t int) slog.Level {
	switch t {
	case 1:
		return slog.LevelError
	case 2:
		return slog.LevelWarn
	case 3:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// handleServerRequest answers requests initiated by the server.
func (c *Client) handleServerRequest(msg *Message) {
	switch msg.Method {
	case "workspace/applyEdit":
		var params ApplyWorkspaceEditParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			c.respondError(*msg.ID, CodeInvalidParams, "bad applyEdit params")
			return
		}
		applied := c.surface.ApplyChanges(workspaceEditChanges(params.Edit))
		result := ApplyWorkspaceEditResult{Applied: applied}
		if !applied {
			result.FailureReason = "editor rejected the edit"
		}
		c.respond(*msg.ID, result)

	default:
		c.respondError(*msg.ID, CodeMethodNotFound, fmt.Sprintf("unsupported method %q", msg.Method))
	}
}

func (c *Client) respond(id int64, result any) {
	frame, err := EncodeResponse(id, result)
	if err != nil {
		c.log.Warn("encode response failed", "id", id, "error", err)
		return
	}
	c.sendFrame(frame)
}

func (c *Client) respondError(id int64, code int, message string) {
	frame, err := EncodeErrorResponse(id, code, message)
	if err != nil {
		return
	}
	c.sendFrame(frame)
}

func (c *Client) sendFrame(frame []byte) {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
	defer cancel()
	if err := ch.Send(ctx, frame); err != nil {
		c.log.Warn("send response failed", "error", err)
	}
}

// --- Accessors and document operations ---

// State returns the current lifecycle state.
func (c *Client) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Language returns the language this client serves.
func (c *Client) Language() string { return c.language }

// LastError reports why the session is in the error state. It is
// ErrRetriesExhausted (wrapped around the final dial failure) once the
// automatic schedule has given up, and nil while the session is healthy.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// SessionID returns the id of the current (or last) connection attempt.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Capabilities returns the server capability set from the last handshake.
func (c *Client) Capabilities() CapabilitySet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// ServerName reports the connected server's self-declared name, if any.
func (c *Client) ServerName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.serverInfo == nil {
		return ""
	}
	return c.serverInfo.Name
}

// Pending reports in-flight request count, for the status surface.
func (c *Client) Pending() int { return c.calls.Pending() }

// Features exposes the language feature bridge.
func (c *Client) Features() *Bridge { return c.bridge }

// OpenDocument starts syncing a document. Tracking works even while
// disconnected; the open is announced on the next successful connect.
func (c *Client) OpenDocument(ctx context.Context, uri, text string) error {
	return c.docs.Open(ctx, uri, c.language, text)
}

// ChangeDocument syncs new full content for an open document.
func (c *Client) ChangeDocument(ctx context.Context, uri, text string) error {
	return c.docs.Change(ctx, uri, text)
}

// CloseDocument stops syncing a document and clears its markers.
func (c *Client) CloseDocument(ctx context.Context, uri string) error {
	err := c.docs.Close(ctx, uri)
	c.sink.Clear(uri)
	return err
}

// SaveDocument announces a save of an open document.
func (c *Client) SaveDocument(ctx context.Context, uri string) error {
	return c.docs.Save(ctx, uri)
}

// DocumentVersion reports the sync version of uri, 0 when not open.
func (c *Client) DocumentVersion(uri string) int { return c.docs.Version(uri) }
