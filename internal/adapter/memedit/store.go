// Package memedit is an in-memory implementation of the editor surface. It
// backs the HTTP surface and tests; an embedding editor supplies its own
// implementation instead.
package memedit

import (
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/tidewater/langbridge/internal/domain/editor"
)

// Store holds document texts and their markers keyed by URI. Columns count
// UTF-16 code units, matching what the protocol adapter sends and receives.
type Store struct {
	mu      sync.RWMutex
	texts   map[string]string
	markers map[string][]editor.Marker
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		texts:   make(map[string]string),
		markers: make(map[string][]editor.Marker),
	}
}

// Open registers a document model. Reopening replaces the text and drops
// existing markers.
func (s *Store) Open(uri, text string) {
	s.mu.Lock()
	s.texts[uri] = text
	delete(s.markers, uri)
	s.mu.Unlock()
}

// Update replaces the text of an open document. Unknown URIs are ignored.
func (s *Store) Update(uri, text string) {
	s.mu.Lock()
	if _, ok := s.texts[uri]; ok {
		s.texts[uri] = text
	}
	s.mu.Unlock()
}

// Close drops a document model and its markers.
func (s *Store) Close(uri string) {
	s.mu.Lock()
	delete(s.texts, uri)
	delete(s.markers, uri)
	s.mu.Unlock()
}

// IsOpen reports whether uri has a model.
func (s *Store) IsOpen(uri string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.texts[uri]
	return ok
}

// ModelText returns the current text of uri.
func (s *Store) ModelText(uri string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.texts[uri]
	return text, ok
}

// SetMarkers replaces the full marker set for uri.
func (s *Store) SetMarkers(uri string, markers []editor.Marker) {
	s.mu.Lock()
	if markers == nil {
		delete(s.markers, uri)
	} else {
		s.markers[uri] = markers
	}
	s.mu.Unlock()
}

// Markers returns the current markers for uri.
func (s *Store) Markers(uri string) []editor.Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.markers[uri]
}

// WordSpanAt returns the span of the identifier word under the caret. False
// when the document is unknown, the caret is out of range, or no word
// character touches it.
func (s *Store) WordSpanAt(uri string, caret editor.Caret) (editor.Span, bool) {
	text, ok := s.ModelText(uri)
	if !ok {
		return editor.Span{}, false
	}
	lines := strings.Split(text, "\n")
	if caret.Line < 1 || caret.Line > len(lines) {
		return editor.Span{}, false
	}

	units := utf16.Encode([]rune(lines[caret.Line-1]))
	col := caret.Column - 1
	if col < 0 || col > len(units) {
		return editor.Span{}, false
	}

	start, end := col, col
	for start > 0 && isWordUnit(units[start-1]) {
		start--
	}
	for end < len(units) && isWordUnit(units[end]) {
		end++
	}
	if start == end {
		return editor.Span{}, false
	}
	return editor.Span{
		Start: editor.Caret{Line: caret.Line, Column: start + 1},
		End:   editor.Caret{Line: caret.Line, Column: end + 1},
	}, true
}

// isWordUnit treats letters, digits and underscore as word characters.
// Surrogate halves count as letters, which keeps spans over astral-plane
// identifiers contiguous.
func isWordUnit(u uint16) bool {
	if u >= 0xD800 && u <= 0xDFFF {
		return true
	}
	r := rune(u)
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ApplyChanges applies a batch of edits atomically. It reports false and
// changes nothing when any edit targets an unknown document or an invalid
// span.
func (s *Store) ApplyChanges(changes []editor.TextChange) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	byURI := make(map[string][]editor.TextChange)
	for _, change := range changes {
		if _, ok := s.texts[change.URI]; !ok {
			return false
		}
		byURI[change.URI] = append(byURI[change.URI], change)
	}

	updated := make(map[string]string, len(byURI))
	for uri, edits := range byURI {
		text, ok := applyEdits(s.texts[uri], edits)
		if !ok {
			return false
		}
		updated[uri] = text
	}
	for uri, text := range updated {
		s.texts[uri] = text
	}
	return true
}

// applyEdits applies edits to one document back to front so earlier spans
// stay valid.
func applyEdits(text string, edits []editor.TextChange) (string, bool) {
	type resolved struct {
		start, end int
		newText    string
	}
	spans := make([]resolved, 0, len(edits))
	for _, edit := range edits {
		start, ok := byteOffset(text, edit.Span.Start)
		if !ok {
			return "", false
		}
		end, ok := byteOffset(text, edit.Span.End)
		if !ok || end < start {
			return "", false
		}
		spans = append(spans, resolved{start: start, end: end, newText: edit.NewText})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start > spans[j].start })
	for _, sp := range spans {
		text = text[:sp.start] + sp.newText + text[sp.end:]
	}
	return text, true
}

// byteOffset resolves a one-based caret to a byte offset, counting columns
// in UTF-16 code units.
func byteOffset(text string, caret editor.Caret) (int, bool) {
	if caret.Line < 1 || caret.Column < 1 {
		return 0, false
	}

	offset := 0
	line := 1
	for line < caret.Line {
		nl := strings.IndexByte(text[offset:], '\n')
		if nl < 0 {
			return 0, false
		}
		offset += nl + 1
		line++
	}

	lineEnd := len(text)
	if nl := strings.IndexByte(text[offset:], '\n'); nl >= 0 {
		lineEnd = offset + nl
	}

	units := caret.Column - 1
	for offset < lineEnd && units > 0 {
		r, size := utf8.DecodeRuneInString(text[offset:lineEnd])
		cost := 1
		if r > 0xFFFF {
			cost = 2
		}
		if cost > units {
			return 0, false
		}
		units -= cost
		offset += size
	}
	if units > 0 {
		return 0, false
	}
	return offset, true
}
