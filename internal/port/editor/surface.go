// Package editor defines the port for the editor capability surface the
// language bridge renders into. The concrete surface (a code editor widget,
// or the in-memory store used by the gateway binary and tests) lives behind
// this interface; the bridge never talks to a widget directly.
package editor

import "github.com/tidewater/langbridge/internal/domain/editor"

// Surface is the editor capability surface consumed by the feature bridge.
// All coordinates crossing this interface are one-based.
type Surface interface {
	// IsOpen reports whether the document is currently open in the editor.
	IsOpen(uri string) bool

	// ModelText returns the current content of an open document.
	ModelText(uri string) (string, bool)

	// SetMarkers replaces the full marker set for a document. It is a
	// wholesale replacement: markers from earlier publications for the same
	// document are discarded.
	SetMarkers(uri string, markers []editor.Marker)

	// WordSpanAt returns the span of the word under the given caret, used as
	// the default completion replacement range. ok is false when the caret
	// does not sit on a word.
	WordSpanAt(uri string, at editor.Caret) (editor.Span, bool)

	// ApplyChanges applies server-initiated edits to open documents.
	// Returns false if any target document is not open.
	ApplyChanges(changes []editor.TextChange) bool
}
