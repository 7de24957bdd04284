package lsp

import "github.com/tidewater/langbridge/internal/domain/editor"

// Editor coordinates are one-based in both line and column; the protocol is
// zero-based. The conversions are pure offset shifts and round-trip exactly.

// toPosition converts an editor caret to a protocol position.
func toPosition(c editor.Caret) Position {
	return Position{Line: c.Line - 1, Character: c.Column - 1}
}

// fromPosition converts a protocol position to an editor caret.
func fromPosition(p Position) editor.Caret {
	return editor.Caret{Line: p.Line + 1, Column: p.Character + 1}
}

// toRange converts an editor span to a protocol range.
func toRange(s editor.Span) Range {
	return Range{Start: toPosition(s.Start), End: toPosition(s.End)}
}

// fromRange converts a protocol range to an editor span.
func fromRange(r Range) editor.Span {
	return editor.Span{Start: fromPosition(r.Start), End: fromPosition(r.End)}
}
