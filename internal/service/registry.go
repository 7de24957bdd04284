// Package service coordinates language server sessions above the protocol
// adapter. The registry is the only holder of client instances; nothing in
// the engine lives in package-level state.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tidewater/langbridge/internal/adapter/lsp"
	"github.com/tidewater/langbridge/internal/config"
	editorport "github.com/tidewater/langbridge/internal/port/editor"
)

// Registry owns at most one client per language. All lookups go through it;
// construction of clients is its job alone.
type Registry struct {
	log     *slog.Logger
	cfg     config.LSP
	dialer  lsp.Dialer
	surface editorport.Surface

	mu      sync.RWMutex
	clients map[string]*lsp.Client
}

// NewRegistry builds an empty registry. dialer may be nil to use the default
// WebSocket dialer.
func NewRegistry(log *slog.Logger, cfg config.LSP, dialer lsp.Dialer, surface editorport.Surface) *Registry {
	return &Registry{
		log:     log,
		cfg:     cfg,
		dialer:  dialer,
		surface: surface,
		clients: make(map[string]*lsp.Client),
	}
}

// Register creates the client for a language. Registering a language twice
// returns the existing client.
func (r *Registry) Register(language string) (*lsp.Client, error) {
	if language == "" {
		return nil, fmt.Errorf("service: empty language")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[language]; ok {
		return client, nil
	}
	client, err := lsp.NewClient(r.log, r.cfg, language, r.dialer, r.surface)
	if err != nil {
		return nil, fmt.Errorf("service: client for %s: %w", language, err)
	}
	r.clients[language] = client
	return client, nil
}

// Get returns the client for a language, or false when none is registered.
func (r *Registry) Get(language string) (*lsp.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[language]
	return client, ok
}

// Languages lists registered languages in stable order.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clients))
	for lang := range r.clients {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// ConnectAll connects every registered client concurrently. The first error
// is returned but the remaining connects still run to completion.
func (r *Registry) ConnectAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, client := range r.snapshot() {
		g.Go(func() error {
			if err := client.Connect(ctx); err != nil {
				return fmt.Errorf("connect %s: %w", client.Language(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// DisconnectAll deliberately ends every session.
func (r *Registry) DisconnectAll(ctx context.Context) error {
	g := new(errgroup.Group)
	for _, client := range r.snapshot() {
		g.Go(func() error { return client.Disconnect(ctx) })
	}
	return g.Wait()
}

// Close releases every client. The registry is empty afterwards.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*lsp.Client)
	r.mu.Unlock()

	g := new(errgroup.Group)
	for _, client := range clients {
		g.Go(func() error { return client.Close(ctx) })
	}
	return g.Wait()
}

// Reconnect manually restarts the session for one language, the escape
// hatch once automatic retries have given up.
func (r *Registry) Reconnect(ctx context.Context, language string) error {
	client, ok := r.Get(language)
	if !ok {
		return fmt.Errorf("service: no client for language %q", language)
	}
	return client.Reconnect(ctx)
}

// SessionStatus is one row of the status surface.
type SessionStatus struct {
	Language  string           `json:"language"`
	State     lsp.SessionState `json:"state"`
	SessionID string           `json:"sessionId,omitempty"`
	Server    string           `json:"server,omitempty"`
	Pending   int              `json:"pendingRequests"`
	Error     string           `json:"error,omitempty"`
}

// Status reports the lifecycle state of every registered session.
func (r *Registry) Status() []SessionStatus {
	clients := r.snapshot()
	out := make([]SessionStatus, 0, len(clients))
	for _, client := range clients {
		status := SessionStatus{
			Language:  client.Language(),
			State:     client.State(),
			SessionID: client.SessionID(),
			Server:    client.ServerName(),
			Pending:   client.Pending(),
		}
		if err := client.LastError(); err != nil {
			status.Error = err.Error()
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Language < out[j].Language })
	return out
}

// snapshot copies the client set so callers iterate without the lock.
func (r *Registry) snapshot() []*lsp.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*lsp.Client, 0, len(r.clients))
	for _, client := range r.clients {
		out = append(out, client)
	}
	return out
}
