// Package editor defines the editor-facing data shapes produced and consumed
// by the language bridge. Editor coordinates are one-based (line 1, column 1
// is the first character); the protocol adapter owns the translation to the
// zero-based wire convention, and no zero-based coordinate may cross this
// boundary.
package editor

// Caret is a one-based cursor position in an open editor document.
type Caret struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Span is a one-based range between two carets, start inclusive.
type Span struct {
	Start Caret `json:"start"`
	End   Caret `json:"end"`
}

// MarkerSeverity classifies a marker shown in the editor gutter.
type MarkerSeverity string

const (
	MarkerError   MarkerSeverity = "error"
	MarkerWarning MarkerSeverity = "warning"
	MarkerInfo    MarkerSeverity = "info"
	MarkerHint    MarkerSeverity = "hint"
)

// Marker is a diagnostic rendered in the editor for an open document.
type Marker struct {
	Span     Span           `json:"span"`
	Message  string         `json:"message"`
	Severity MarkerSeverity `json:"severity"`
	Source   string         `json:"source,omitempty"`
	Code     string         `json:"code,omitempty"`
}

// SuggestionKind classifies a completion suggestion for editor rendering.
type SuggestionKind string

const (
	SuggestionText      SuggestionKind = "text"
	SuggestionMethod    SuggestionKind = "method"
	SuggestionFunction  SuggestionKind = "function"
	SuggestionField     SuggestionKind = "field"
	SuggestionVariable  SuggestionKind = "variable"
	SuggestionClass     SuggestionKind = "class"
	SuggestionInterface SuggestionKind = "interface"
	SuggestionModule    SuggestionKind = "module"
	SuggestionProperty  SuggestionKind = "property"
	SuggestionValue     SuggestionKind = "value"
	SuggestionEnum      SuggestionKind = "enum"
	SuggestionKeyword   SuggestionKind = "keyword"
	SuggestionSnippet   SuggestionKind = "snippet"
	SuggestionFile      SuggestionKind = "file"
	SuggestionFolder    SuggestionKind = "folder"
	SuggestionConstant  SuggestionKind = "constant"
	SuggestionStruct    SuggestionKind = "struct"
	SuggestionOperator  SuggestionKind = "operator"
)

// Suggestion is a single completion entry in editor shape. InsertText is the
// text to substitute over Span; when IsSnippet is set the editor expands
// placeholder syntax instead of inserting literally.
type Suggestion struct {
	Label         string         `json:"label"`
	Kind          SuggestionKind `json:"kind"`
	InsertText    string         `json:"insertText"`
	IsSnippet     bool           `json:"isSnippet,omitempty"`
	Span          Span           `json:"span"`
	Detail        string         `json:"detail,omitempty"`
	Documentation string         `json:"documentation,omitempty"`
}

// HoverInfo is hover content anchored at an optional span.
type HoverInfo struct {
	Contents string `json:"contents"` // Markdown
	Span     *Span  `json:"span,omitempty"`
}

// SymbolRef points at a span in a (possibly different) document.
type SymbolRef struct {
	URI  string `json:"uri"`
	Span Span   `json:"span"`
}

// SignatureInfo describes one callable signature for the parameter hint popup.
type SignatureInfo struct {
	Label           string   `json:"label"`
	Documentation   string   `json:"documentation,omitempty"`
	Parameters      []string `json:"parameters,omitempty"`
	ActiveParameter int      `json:"activeParameter"`
}

// SignatureHints is the full signature-help result.
type SignatureHints struct {
	Signatures      []SignatureInfo `json:"signatures"`
	ActiveSignature int             `json:"activeSignature"`
}

// ActionItem is a code action offered at a span.
type ActionItem struct {
	Title       string       `json:"title"`
	Kind        string       `json:"kind,omitempty"`
	IsPreferred bool         `json:"isPreferred,omitempty"`
	Edits       []TextChange `json:"edits,omitempty"`
	Command     string       `json:"command,omitempty"`
	Arguments   []any        `json:"arguments,omitempty"`
}

// OutlineItem is one node of a document outline tree.
type OutlineItem struct {
	Name     string        `json:"name"`
	Detail   string        `json:"detail,omitempty"`
	Kind     string        `json:"kind"`
	Span     Span          `json:"span"`
	Children []OutlineItem `json:"children,omitempty"`
}

// TextChange is a single edit to apply to a document, in editor coordinates.
type TextChange struct {
	URI     string `json:"uri"`
	Span    Span   `json:"span"`
	NewText string `json:"newText"`
}
