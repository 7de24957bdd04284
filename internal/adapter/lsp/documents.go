package lsp

import (
	"context"
	"log/slog"
	"sync"
)

// notifier is the outbound seam the document store speaks through; the
// correlator satisfies it in production.
type notifier interface {
	Notify(ctx context.Context, method string, params any) error
}

// trackedDocument is the engine-side record of one open document.
type trackedDocument struct {
	uri        string
	languageID string
	version    int
	text       string
}

// DocumentStore tracks open documents and keeps the server's view of them in
// sync. Versions start at 1 on open, increment by exactly 1 per change, and
// reset to 1 when a document is reopened. Sync is always full-text.
type DocumentStore struct {
	log *slog.Logger
	out notifier

	mu   sync.Mutex
	docs map[string]*trackedDocument
}

// NewDocumentStore creates an empty store sending through out.
func NewDocumentStore(log *slog.Logger, out notifier) *DocumentStore {
	return &DocumentStore{
		log:  log,
		out:  out,
		docs: make(map[string]*trackedDocument),
	}
}

// Open registers a document and announces it with textDocument/didOpen.
// Opening an already-open URI replaces the tracked state and restarts the
// version sequence at 1, exactly as a close followed by an open would.
func (s *DocumentStore) Open(ctx context.Context, uri, languageID, text string) error {
	s.mu.Lock()
	if _, exists := s.docs[uri]; exists {
		s.log.Debug("document reopened, version reset", "uri", uri)
	}
	doc := &trackedDocument{uri: uri, languageID: languageID, version: 1, text: text}
	s.docs[uri] = doc
	s.mu.Unlock()

	return s.out.Notify(ctx, "textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        uri,
			LanguageID: languageID,
			Version:    1,
			Text:       text,
		},
	})
}

// Change records new full content for an open document, bumps its version
// and sends textDocument/didChange. Changes to unknown URIs are rejected.
func (s *DocumentStore) Change(ctx context.Context, uri, text string) error {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	if !ok {
		s.mu.Unlock()
		return ErrDocumentNotOpen
	}
	doc.version++
	doc.text = text
	version := doc.version
	s.mu.Unlock()

	return s.out.Notify(ctx, "textDocument/didChange", DidChangeTextDocumentParams{
		TextDocument: VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: TextDocumentIdentifier{URI: uri},
			Version:                version,
		},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: text}},
	})
}

// Close forgets a document and sends textDocument/didClose. Closing an
// unknown URI is a no-op.
func (s *DocumentStore) Close(ctx context.Context, uri string) error {
	s.mu.Lock()
	_, ok := s.docs[uri]
	if ok {
		delete(s.docs, uri)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return s.out.Notify(ctx, "textDocument/didClose", DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
}

// Save sends textDocument/didSave with the current text for an open document.
func (s *DocumentStore) Save(ctx context.Context, uri string) error {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	var text string
	if ok {
		text = doc.text
	}
	s.mu.Unlock()

	if !ok {
		return ErrDocumentNotOpen
	}
	return s.out.Notify(ctx, "textDocument/didSave", DidSaveTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Text:         text,
	})
}

// IsOpen reports whether uri is tracked.
func (s *DocumentStore) IsOpen(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[uri]
	return ok
}

// Version returns the current sync version of uri, or 0 when not open.
func (s *DocumentStore) Version(uri string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[uri]; ok {
		return doc.version
	}
	return 0
}

// Resync re-announces every tracked document after a reconnect. The new
// server has no document state, so each version restarts at 1.
func (s *DocumentStore) Resync(ctx context.Context) error {
	s.mu.Lock()
	docs := make([]*trackedDocument, 0, len(s.docs))
	for _, doc := range s.docs {
		doc.version = 1
		docs = append(docs, doc)
	}
	s.mu.Unlock()

	for _, doc := range docs {
		err := s.out.Notify(ctx, "textDocument/didOpen", DidOpenTextDocumentParams{
			TextDocument: TextDocumentItem{
				URI:        doc.uri,
				LanguageID: doc.languageID,
				Version:    1,
				Text:       doc.text,
			},
		})
		if err != nil {
			return err
		}
		s.log.Debug("document resynced", "uri", doc.uri)
	}
	return nil
}

// CloseAll drops all tracked state without notifying the server. Used when
// the connection is already gone.
func (s *DocumentStore) CloseAll() {
	s.mu.Lock()
	s.docs = make(map[string]*trackedDocument)
	s.mu.Unlock()
}
