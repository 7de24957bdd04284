package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tidewater/langbridge/internal/adapter/lsp"
	"github.com/tidewater/langbridge/internal/adapter/memedit"
	"github.com/tidewater/langbridge/internal/domain/editor"
	"github.com/tidewater/langbridge/internal/service"
)

// Handlers carries the dependencies shared by all HTTP handlers.
type Handlers struct {
	log      *slog.Logger
	registry *service.Registry
	store    *memedit.Store
}

// NewHandlers builds the handler set.
func NewHandlers(log *slog.Logger, registry *service.Registry, store *memedit.Store) *Handlers {
	return &Handlers{log: log, registry: registry, store: store}
}

// client resolves the path language into a registered client or writes 404.
func (h *Handlers) client(w http.ResponseWriter, r *http.Request) (*lsp.Client, bool) {
	language := urlParam(r, "language")
	client, ok := h.registry.Get(language)
	if !ok {
		writeError(w, http.StatusNotFound, "no session for language "+language)
		return nil, false
	}
	return client, true
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// ListSessions reports the lifecycle state of every registered session.
func (h *Handlers) ListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Status())
}

// ConnectSession establishes the session for a language.
func (h *Handlers) ConnectSession(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w, r)
	if !ok {
		return
	}
	if err := client.Connect(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     client.State(),
		"sessionId": client.SessionID(),
	})
}

// DisconnectSession deliberately ends the session for a language.
func (h *Handlers) DisconnectSession(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w, r)
	if !ok {
		return
	}
	if err := client.Disconnect(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": client.State()})
}

// ReconnectSession manually restarts a session, the way out of an exhausted
// automatic retry schedule.
func (h *Handlers) ReconnectSession(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w, r)
	if !ok {
		return
	}
	if err := client.Reconnect(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     client.State(),
		"sessionId": client.SessionID(),
	})
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

type documentRequest struct {
	Language string `json:"language"`
	URI      string `json:"uri"`
	Text     string `json:"text"`
}

// OpenDocument registers a document and begins syncing it.
func (h *Handlers) OpenDocument(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[documentRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Language, "language") || !requireField(w, req.URI, "uri") {
		return
	}
	client, ok := h.registry.Get(req.Language)
	if !ok {
		writeError(w, http.StatusNotFound, "no session for language "+req.Language)
		return
	}

	h.store.Open(req.URI, req.Text)
	if err := client.OpenDocument(r.Context(), req.URI, req.Text); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": client.DocumentVersion(req.URI)})
}

// ChangeDocument syncs new full content for an open document.
func (h *Handlers) ChangeDocument(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[documentRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Language, "language") || !requireField(w, req.URI, "uri") {
		return
	}
	client, ok := h.registry.Get(req.Language)
	if !ok {
		writeError(w, http.StatusNotFound, "no session for language "+req.Language)
		return
	}

	h.store.Update(req.URI, req.Text)
	if err := client.ChangeDocument(r.Context(), req.URI, req.Text); err != nil {
		if errors.Is(err, lsp.ErrDocumentNotOpen) {
			writeError(w, http.StatusNotFound, "document not open")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": client.DocumentVersion(req.URI)})
}

// CloseDocument stops syncing a document.
func (h *Handlers) CloseDocument(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[documentRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Language, "language") || !requireField(w, req.URI, "uri") {
		return
	}
	client, ok := h.registry.Get(req.Language)
	if !ok {
		writeError(w, http.StatusNotFound, "no session for language "+req.Language)
		return
	}

	if err := client.CloseDocument(r.Context(), req.URI); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.store.Close(req.URI)
	w.WriteHeader(http.StatusNoContent)
}

// SaveDocument announces a document save.
func (h *Handlers) SaveDocument(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[documentRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Language, "language") || !requireField(w, req.URI, "uri") {
		return
	}
	client, ok := h.registry.Get(req.Language)
	if !ok {
		writeError(w, http.StatusNotFound, "no session for language "+req.Language)
		return
	}

	if err := client.SaveDocument(r.Context(), req.URI); err != nil {
		if errors.Is(err, lsp.ErrDocumentNotOpen) {
			writeError(w, http.StatusNotFound, "document not open")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMarkers returns the current diagnostics markers for a document.
func (h *Handlers) GetMarkers(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if !requireField(w, uri, "uri") {
		return
	}
	if !h.store.IsOpen(uri) {
		writeError(w, http.StatusNotFound, "document not open")
		return
	}
	markers := h.store.Markers(uri)
	if markers == nil {
		markers = []editor.Marker{}
	}
	writeJSON(w, http.StatusOK, markers)
}

// ---------------------------------------------------------------------------
// Features
// ---------------------------------------------------------------------------

type positionRequest struct {
	URI   string       `json:"uri"`
	Caret editor.Caret `json:"caret"`
}

// Hover returns hover content at a caret.
func (h *Handlers) Hover(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[positionRequest](w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, client.Features().Hover(r.Context(), req.URI, req.Caret))
}

// Complete returns completion suggestions at a caret.
func (h *Handlers) Complete(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[positionRequest](w, r)
	if !ok {
		return
	}
	suggestions := client.Features().Complete(r.Context(), req.URI, req.Caret)
	if suggestions == nil {
		suggestions = []editor.Suggestion{}
	}
	writeJSON(w, http.StatusOK, suggestions)
}

// Definition resolves the definition sites of the symbol at a caret.
func (h *Handlers) Definition(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[positionRequest](w, r)
	if !ok {
		return
	}
	refs := client.Features().Definition(r.Context(), req.URI, req.Caret)
	if refs == nil {
		refs = []editor.SymbolRef{}
	}
	writeJSON(w, http.StatusOK, refs)
}

// References lists every reference to the symbol at a caret.
func (h *Handlers) References(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[positionRequest](w, r)
	if !ok {
		return
	}
	refs := client.Features().References(r.Context(), req.URI, req.Caret)
	if refs == nil {
		refs = []editor.SymbolRef{}
	}
	writeJSON(w, http.StatusOK, refs)
}

// SignatureHints returns parameter hints at a caret.
func (h *Handlers) SignatureHints(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[positionRequest](w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, client.Features().SignatureHints(r.Context(), req.URI, req.Caret))
}

type actionsRequest struct {
	URI  string      `json:"uri"`
	Span editor.Span `json:"span"`
}

// Actions returns the code actions available for a span. The document's
// current markers overlapping the span travel as context.
func (h *Handlers) Actions(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[actionsRequest](w, r)
	if !ok {
		return
	}

	var overlapping []editor.Marker
	for _, m := range h.store.Markers(req.URI) {
		if spansOverlap(m.Span, req.Span) {
			overlapping = append(overlapping, m)
		}
	}

	actions := client.Features().Actions(r.Context(), req.URI, req.Span, overlapping)
	if actions == nil {
		actions = []editor.ActionItem{}
	}
	writeJSON(w, http.StatusOK, actions)
}

type commandRequest struct {
	Command   string `json:"command"`
	Arguments []any  `json:"arguments"`
}

// Execute runs a server-side command.
func (h *Handlers) Execute(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[commandRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Command, "command") {
		return
	}
	accepted := client.Features().Execute(r.Context(), req.Command, req.Arguments)
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}

type outlineRequest struct {
	URI string `json:"uri"`
}

// Outline returns the document symbol tree.
func (h *Handlers) Outline(w http.ResponseWriter, r *http.Request) {
	client, ok := h.client(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[outlineRequest](w, r)
	if !ok {
		return
	}
	items := client.Features().Outline(r.Context(), req.URI)
	if items == nil {
		items = []editor.OutlineItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// spansOverlap reports whether two spans share at least one position.
func spansOverlap(a, b editor.Span) bool {
	return !caretBefore(a.End, b.Start) && !caretBefore(b.End, a.Start)
}

func caretBefore(a, b editor.Caret) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Column < b.Column
}
