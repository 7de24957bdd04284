package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/tidewater/langbridge/internal/domain/editor"
	editorport "github.com/tidewater/langbridge/internal/port/editor"
)

// suggestionKinds maps protocol completion kinds to editor suggestion kinds.
// Unknown kinds fall back to plain text.
var suggestionKinds = map[int]editor.SuggestionKind{
	1:  editor.SuggestionText,
	2:  editor.SuggestionMethod,
	3:  editor.SuggestionFunction,
	4:  editor.SuggestionFunction, // constructor
	5:  editor.SuggestionField,
	6:  editor.SuggestionVariable,
	7:  editor.SuggestionClass,
	8:  editor.SuggestionInterface,
	9:  editor.SuggestionModule,
	10: editor.SuggestionProperty,
	11: editor.SuggestionValue, // unit
	12: editor.SuggestionValue,
	13: editor.SuggestionEnum,
	14: editor.SuggestionKeyword,
	15: editor.SuggestionSnippet,
	16: editor.SuggestionValue, // color
	17: editor.SuggestionFile,
	18: editor.SuggestionValue, // reference
	19: editor.SuggestionFolder,
	20: editor.SuggestionEnum, // enum member
	21: editor.SuggestionConstant,
	22: editor.SuggestionStruct,
	23: editor.SuggestionValue, // event
	24: editor.SuggestionOperator,
	25: editor.SuggestionClass, // type parameter
}

// symbolKinds names protocol document symbol kinds for the outline view.
var symbolKinds = map[int]string{
	1: "file", 2: "module", 3: "namespace", 4: "package", 5: "class",
	6: "method", 7: "property", 8: "field", 9: "constructor", 10: "enum",
	11: "interface", 12: "function", 13: "variable", 14: "constant",
	15: "string", 16: "number", 17: "boolean", 18: "array", 19: "object",
	20: "key", 21: "null", 22: "enumMember", 23: "struct", 24: "event",
	25: "operator", 26: "typeParameter",
}

// Bridge exposes language features in editor shape. Every method degrades to
// an empty result instead of returning an error: a broken feature request
// must never break the editing experience. Failures are logged.
type Bridge struct {
	log     *slog.Logger
	calls   *Correlator
	docs    *DocumentStore
	surface editorport.Surface

	// connected and caps are supplied by the session so the bridge always
	// gates on live state.
	connected func() bool
	caps      func() CapabilitySet

	cache    *ristretto.Cache[string, any]
	cacheTTL time.Duration
}

// NewBridge wires a bridge over the given correlator and document store.
// cache may be nil to disable result caching.
func NewBridge(
	log *slog.Logger,
	calls *Correlator,
	docs *DocumentStore,
	surface editorport.Surface,
	connected func() bool,
	caps func() CapabilitySet,
	cache *ristretto.Cache[string, any],
	cacheTTL time.Duration,
) *Bridge {
	return &Bridge{
		log:       log,
		calls:     calls,
		docs:      docs,
		surface:   surface,
		connected: connected,
		caps:      caps,
		cache:     cache,
		cacheTTL:  cacheTTL,
	}
}

// ready gates a feature on both the connection state and the server's
// advertised capability.
func (b *Bridge) ready(feature string, capable bool) bool {
	if !b.connected() {
		b.log.Debug("feature skipped, not connected", "feature", feature)
		return false
	}
	if !capable {
		b.log.Debug("feature skipped, server lacks capability", "feature", feature)
		return false
	}
	return true
}

// cacheKey identifies a positional result by document version so an edit
// invalidates it naturally.
func (b *Bridge) cacheKey(feature, uri string, c editor.Caret) string {
	return fmt.Sprintf("%s:%s@%d:%d:%d", feature, uri, b.docs.Version(uri), c.Line, c.Column)
}

func (b *Bridge) cached(key string) (any, bool) {
	if b.cache == nil {
		return nil, false
	}
	return b.cache.Get(key)
}

func (b *Bridge) store(key string, v any) {
	if b.cache != nil {
		b.cache.SetWithTTL(key, v, 1, b.cacheTTL)
	}
}

// copyHover clones a hover result. Cached entries are shared between
// callers, so the cache only ever holds and hands out private copies.
func copyHover(info *editor.HoverInfo) *editor.HoverInfo {
	out := *info
	if info.Span != nil {
		span := *info.Span
		out.Span = &span
	}
	return &out
}

func copySuggestions(items []editor.Suggestion) []editor.Suggestion {
	out := make([]editor.Suggestion, len(items))
	copy(out, items)
	return out
}

// logFailure records a feature round trip that produced no usable result.
// Timeouts and server errors land here; they are routine, not fatal.
func (b *Bridge) logFailure(feature string, err error) {
	var rpcErr *RPCError
	switch {
	case errors.As(err, &rpcErr):
		b.log.Warn("language server rejected request",
			"feature", feature, "code", rpcErr.Code, "message", rpcErr.Message)
	case errors.Is(err, ErrTimeout):
		b.log.Warn("feature request timed out", "feature", feature)
	default:
		b.log.Warn("feature request failed", "feature", feature, "error", err)
	}
}

// Hover returns hover content at the caret, or nil when unavailable.
func (b *Bridge) Hover(ctx context.Context, uri string, caret editor.Caret) *editor.HoverInfo {
	if !b.ready("hover", b.caps().Hover) {
		return nil
	}
	key := b.cacheKey("hover", uri, caret)
	if v, ok := b.cached(key); ok {
		if info, ok := v.(*editor.HoverInfo); ok {
			return copyHover(info)
		}
	}

	msg, err := b.calls.Call(ctx, "textDocument/hover", HoverParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
			Position:     toPosition(caret),
		},
	})
	if err != nil {
		b.logFailure("hover", err)
		return nil
	}
	if string(msg.Result) == "null" {
		return nil
	}

	var res HoverResult
	if err := json.Unmarshal(msg.Result, &res); err != nil {
		b.logFailure("hover", err)
		return nil
	}
	contents := extractContents(res.Contents)
	if contents == "" {
		return nil
	}

	info := &editor.HoverInfo{Contents: contents}
	if res.Range != nil {
		span := fromRange(*res.Range)
		info.Span = &span
	}
	b.store(key, copyHover(info))
	return info
}

// Complete returns completion suggestions at the caret. An empty slice means
// no suggestions; the editor shows nothing.
func (b *Bridge) Complete(ctx context.Context, uri string, caret editor.Caret) []editor.Suggestion {
	if !b.ready("completion", b.caps().Completion) {
		return nil
	}
	key := b.cacheKey("completion", uri, caret)
	if v, ok := b.cached(key); ok {
		if items, ok := v.([]editor.Suggestion); ok {
			return copySuggestions(items)
		}
	}

	msg, err := b.calls.Call(ctx, "textDocument/completion", CompletionParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
			Position:     toPosition(caret),
		},
		Context: &CompletionContext{TriggerKind: CompletionTriggerInvoked},
	})
	if err != nil {
		b.logFailure("completion", err)
		return nil
	}

	list, err := parseCompletionList(msg.Result)
	if err != nil {
		b.logFailure("completion", err)
		return nil
	}

	// Default replacement span when the server supplies no text edit: the
	// word under the caret, or the caret itself.
	defaultSpan, ok := b.surface.WordSpanAt(uri, caret)
	if !ok {
		defaultSpan = editor.Span{Start: caret, End: caret}
	}

	suggestions := make([]editor.Suggestion, 0, len(list.Items))
	for _, item := range list.Items {
		suggestions = append(suggestions, translateCompletion(item, defaultSpan))
	}
	if !list.IsIncomplete {
		b.store(key, copySuggestions(suggestions))
	}
	return suggestions
}

// translateCompletion converts one wire completion item to editor shape.
func translateCompletion(item CompletionItem, defaultSpan editor.Span) editor.Suggestion {
	kind, ok := suggestionKinds[item.Kind]
	if !ok {
		kind = editor.SuggestionText
	}

	insert := item.InsertText
	span := defaultSpan
	if item.TextEdit != nil {
		insert = item.TextEdit.NewText
		span = fromRange(item.TextEdit.Range)
	}
	if insert == "" {
		insert = item.Label
	}

	return editor.Suggestion{
		Label:         item.Label,
		Kind:          kind,
		InsertText:    insert,
		IsSnippet:     item.InsertTextFormat == InsertTextFormatSnippet,
		Span:          span,
		Detail:        item.Detail,
		Documentation: extractContents(item.Documentation),
	}
}

// Definition resolves the definition sites of the symbol at the caret.
func (b *Bridge) Definition(ctx context.Context, uri string, caret editor.Caret) []editor.SymbolRef {
	if !b.ready("definition", b.caps().Definition) {
		return nil
	}
	return b.locationFeature(ctx, "definition", "textDocument/definition", TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     toPosition(caret),
	})
}

// References lists every reference to the symbol at the caret, including its
// declaration.
func (b *Bridge) References(ctx context.Context, uri string, caret editor.Caret) []editor.SymbolRef {
	if !b.ready("references", b.caps().References) {
		return nil
	}
	return b.locationFeature(ctx, "references", "textDocument/references", ReferenceParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
			Position:     toPosition(caret),
		},
		Context: ReferenceContext{IncludeDeclaration: true},
	})
}

// locationFeature runs a request whose result is a location union and
// normalizes it to symbol references.
func (b *Bridge) locationFeature(ctx context.Context, feature, method string, params any) []editor.SymbolRef {
	msg, err := b.calls.Call(ctx, method, params)
	if err != nil {
		b.logFailure(feature, err)
		return nil
	}
	locs, err := parseLocations(msg.Result)
	if err != nil {
		b.logFailure(feature, err)
		return nil
	}
	refs := make([]editor.SymbolRef, 0, len(locs))
	for _, loc := range locs {
		refs = append(refs, editor.SymbolRef{URI: loc.URI, Span: fromRange(loc.Range)})
	}
	return refs
}

// SignatureHints returns parameter hints at the caret, or nil.
func (b *Bridge) SignatureHints(ctx context.Context, uri string, caret editor.Caret) *editor.SignatureHints {
	if !b.ready("signatureHelp", b.caps().SignatureHelp) {
		return nil
	}

	msg, err := b.calls.Call(ctx, "textDocument/signatureHelp", SignatureHelpParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
			Position:     toPosition(caret),
		},
	})
	if err != nil {
		b.logFailure("signatureHelp", err)
		return nil
	}
	if string(msg.Result) == "null" {
		return nil
	}

	var help SignatureHelp
	if err := json.Unmarshal(msg.Result, &help); err != nil {
		b.logFailure("signatureHelp", err)
		return nil
	}
	if len(help.Signatures) == 0 {
		return nil
	}

	hints := &editor.SignatureHints{
		Signatures:      make([]editor.SignatureInfo, 0, len(help.Signatures)),
		ActiveSignature: help.ActiveSignature,
	}
	for _, sig := range help.Signatures {
		info := editor.SignatureInfo{
			Label:           sig.Label,
			Documentation:   extractContents(sig.Documentation),
			ActiveParameter: help.ActiveParameter,
		}
		for _, p := range sig.Parameters {
			info.Parameters = append(info.Parameters, parameterLabel(p.Label, sig.Label))
		}
		hints.Signatures = append(hints.Signatures, info)
	}
	if hints.ActiveSignature >= len(hints.Signatures) {
		hints.ActiveSignature = 0
	}
	return hints
}

// parameterLabel resolves the parameter label union (string | [start, end]
// offsets into the signature label).
func parameterLabel(raw json.RawMessage, sigLabel string) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var offsets [2]int
	if err := json.Unmarshal(raw, &offsets); err == nil {
		start, end := offsets[0], offsets[1]
		if start >= 0 && end <= len(sigLabel) && start < end {
			return sigLabel[start:end]
		}
	}
	return ""
}

// Actions returns the code actions available for a span. markers carries the
// editor's current diagnostics overlapping the span, forwarded as context.
func (b *Bridge) Actions(ctx context.Context, uri string, span editor.Span, markers []editor.Marker) []editor.ActionItem {
	if !b.ready("codeAction", b.caps().CodeAction) {
		return nil
	}

	diags := make([]Diagnostic, 0, len(markers))
	for _, m := range markers {
		diags = append(diags, Diagnostic{
			Range:    toRange(m.Span),
			Severity: markerSeverityCode(m.Severity),
			Source:   m.Source,
			Message:  m.Message,
		})
	}

	msg, err := b.calls.Call(ctx, "textDocument/codeAction", CodeActionParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Range:        toRange(span),
		Context:      CodeActionContext{Diagnostics: diags},
	})
	if err != nil {
		b.logFailure("codeAction", err)
		return nil
	}
	if string(msg.Result) == "null" {
		return nil
	}

	var actions []CodeAction
	if err := json.Unmarshal(msg.Result, &actions); err != nil {
		b.logFailure("codeAction", err)
		return nil
	}

	items := make([]editor.ActionItem, 0, len(actions))
	for _, action := range actions {
		item := editor.ActionItem{
			Title:       action.Title,
			Kind:        action.Kind,
			IsPreferred: action.IsPreferred,
		}
		if action.Edit != nil {
			item.Edits = workspaceEditChanges(*action.Edit)
		}
		if action.Command != nil {
			item.Command = action.Command.Command
			item.Arguments = action.Command.Arguments
			if item.Title == "" {
				item.Title = action.Command.Title
			}
		}
		items = append(items, item)
	}
	return items
}

// markerSeverityCode is the inverse of the severity marker table.
func markerSeverityCode(s editor.MarkerSeverity) int {
	switch s {
	case editor.MarkerError:
		return SeverityError
	case editor.MarkerWarning:
		return SeverityWarning
	case editor.MarkerHint:
		return SeverityHint
	default:
		return SeverityInfo
	}
}

// workspaceEditChanges flattens a workspace edit into editor text changes.
func workspaceEditChanges(edit WorkspaceEdit) []editor.TextChange {
	var changes []editor.TextChange
	for uri, edits := range edit.Changes {
		for _, te := range edits {
			changes = append(changes, editor.TextChange{
				URI:     uri,
				Span:    fromRange(te.Range),
				NewText: te.NewText,
			})
		}
	}
	return changes
}

// Execute runs a server-side command, typically from a selected code action.
// It reports whether the command was accepted.
func (b *Bridge) Execute(ctx context.Context, command string, args []any) bool {
	if !b.ready("executeCommand", b.caps().ExecuteCommand) {
		return false
	}
	_, err := b.calls.Call(ctx, "workspace/executeCommand", ExecuteCommandParams{
		Command:   command,
		Arguments: args,
	})
	if err != nil {
		b.logFailure("executeCommand", err)
		return false
	}
	return true
}

// Outline returns the document symbol tree for uri.
func (b *Bridge) Outline(ctx context.Context, uri string) []editor.OutlineItem {
	if !b.ready("documentSymbol", b.caps().DocumentSymbol) {
		return nil
	}

	msg, err := b.calls.Call(ctx, "textDocument/documentSymbol", DocumentSymbolParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
	if err != nil {
		b.logFailure("documentSymbol", err)
		return nil
	}
	if string(msg.Result) == "null" {
		return nil
	}

	var symbols []DocumentSymbol
	if err := json.Unmarshal(msg.Result, &symbols); err != nil {
		b.logFailure("documentSymbol", err)
		return nil
	}
	return translateSymbols(symbols)
}

func translateSymbols(symbols []DocumentSymbol) []editor.OutlineItem {
	items := make([]editor.OutlineItem, 0, len(symbols))
	for _, sym := range symbols {
		kind, ok := symbolKinds[sym.Kind]
		if !ok {
			kind = "unknown"
		}
		items = append(items, editor.OutlineItem{
			Name:     sym.Name,
			Detail:   sym.Detail,
			Kind:     kind,
			Span:     fromRange(sym.Range),
			Children: translateSymbols(sym.Children),
		})
	}
	return items
}
