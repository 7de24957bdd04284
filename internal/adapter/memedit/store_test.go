package memedit

import (
	"testing"

	"github.com/tidewater/langbridge/internal/domain/editor"
)

func caret(line, col int) editor.Caret {
	return editor.Caret{Line: line, Column: col}
}

func span(sl, sc, el, ec int) editor.Span {
	return editor.Span{Start: caret(sl, sc), End: caret(el, ec)}
}

func TestOpenUpdateClose(t *testing.T) {
	s := NewStore()
	s.Open("file:///a.go", "package a\n")

	if !s.IsOpen("file:///a.go") {
		t.Fatal("document not open")
	}
	text, ok := s.ModelText("file:///a.go")
	if !ok || text != "package a\n" {
		t.Errorf("text = %q", text)
	}

	s.Update("file:///a.go", "package b\n")
	text, _ = s.ModelText("file:///a.go")
	if text != "package b\n" {
		t.Errorf("text after update = %q", text)
	}

	s.Update("file:///nope.go", "ignored")
	if s.IsOpen("file:///nope.go") {
		t.Error("update must not create documents")
	}

	s.Close("file:///a.go")
	if s.IsOpen("file:///a.go") {
		t.Error("document still open after close")
	}
}

func TestReopenDropsMarkers(t *testing.T) {
	s := NewStore()
	s.Open("file:///a.go", "one")
	s.SetMarkers("file:///a.go", []editor.Marker{{Message: "stale"}})

	s.Open("file:///a.go", "two")
	if got := s.Markers("file:///a.go"); len(got) != 0 {
		t.Errorf("markers after reopen = %+v", got)
	}
}

func TestWordSpanAt(t *testing.T) {
	s := NewStore()
	s.Open("file:///a.go", "func main() {\n\tfmt.Println(answer_42)\n}\n")

	tests := []struct {
		name  string
		caret editor.Caret
		want  editor.Span
		ok    bool
	}{
		{"middle of word", caret(1, 3), span(1, 1, 1, 5), true},
		{"start of word", caret(1, 6), span(1, 6, 1, 10), true},
		{"end of word", caret(1, 10), span(1, 6, 1, 10), true},
		{"identifier with underscore and digits", caret(2, 16), span(2, 14, 2, 23), true},
		{"between punctuation", caret(1, 12), editor.Span{}, false},
		{"line out of range", caret(9, 1), editor.Span{}, false},
		{"column out of range", caret(1, 99), editor.Span{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.WordSpanAt("file:///a.go", tt.caret)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("span = %+v, want %+v", got, tt.want)
			}
		})
	}

	if _, ok := s.WordSpanAt("file:///nope.go", caret(1, 1)); ok {
		t.Error("unknown document must report no span")
	}
}

func TestApplyChanges(t *testing.T) {
	s := NewStore()
	s.Open("file:///a.go", "alpha beta gamma\n")

	ok := s.ApplyChanges([]editor.TextChange{
		{URI: "file:///a.go", Span: span(1, 7, 1, 11), NewText: "BETA"},
		{URI: "file:///a.go", Span: span(1, 1, 1, 6), NewText: "ALPHA"},
	})
	if !ok {
		t.Fatal("apply failed")
	}
	text, _ := s.ModelText("file:///a.go")
	if text != "ALPHA BETA gamma\n" {
		t.Errorf("text = %q", text)
	}
}

func TestApplyChangesAtomic(t *testing.T) {
	s := NewStore()
	s.Open("file:///a.go", "alpha\n")

	ok := s.ApplyChanges([]editor.TextChange{
		{URI: "file:///a.go", Span: span(1, 1, 1, 6), NewText: "beta"},
		{URI: "file:///missing.go", Span: span(1, 1, 1, 1), NewText: "x"},
	})
	if ok {
		t.Fatal("apply with unknown target must fail")
	}
	text, _ := s.ModelText("file:///a.go")
	if text != "alpha\n" {
		t.Errorf("text changed despite failed batch: %q", text)
	}
}

func TestApplyChangesInvalidSpan(t *testing.T) {
	s := NewStore()
	s.Open("file:///a.go", "short\n")

	if s.ApplyChanges([]editor.TextChange{
		{URI: "file:///a.go", Span: span(5, 1, 5, 2), NewText: "x"},
	}) {
		t.Error("out-of-range span must fail")
	}
}

func TestApplyChangesUTF16Columns(t *testing.T) {
	s := NewStore()
	// The emoji occupies two UTF-16 code units.
	s.Open("file:///a.go", "x = \"\U0001F600\" // smile\n")

	// Replace the word "smile": the comment starts after the emoji, so byte
	// and UTF-16 offsets diverge.
	ok := s.ApplyChanges([]editor.TextChange{
		{URI: "file:///a.go", Span: span(1, 13, 1, 18), NewText: "grin"},
	})
	if !ok {
		t.Fatal("apply failed")
	}
	text, _ := s.ModelText("file:///a.go")
	if text != "x = \"\U0001F600\" // grin\n" {
		t.Errorf("text = %q", text)
	}
}
