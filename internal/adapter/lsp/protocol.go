package lsp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Position in a text document, zero-based line and character. Character
// offsets count UTF-16 code units per the protocol convention.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is an ordered pair of positions, start <= end.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location links a document URI to a range.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// TextDocumentIdentifier identifies a text document by URI.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// VersionedTextDocumentIdentifier identifies a specific document version.
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int `json:"version"`
}

// TextDocumentItem transfers a document from client to server.
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

// TextDocumentPositionParams pass a document and a position inside it.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// TextEdit is a textual edit applicable to a document.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// TextDocumentContentChangeEvent describes a content change. With full-text
// sync Range is always nil and Text carries the whole document.
type TextDocumentContentChangeEvent struct {
	Range *Range `json:"range,omitempty"`
	Text  string `json:"text"`
}

// WorkspaceEdit represents changes to many resources in the workspace.
type WorkspaceEdit struct {
	Changes map[string][]TextEdit `json:"changes,omitempty"`
}

// --- Initialize ---

// InitializeParams are the parameters of the initialize request.
type InitializeParams struct {
	ProcessID             int                `json:"processId"`
	RootURI               string             `json:"rootUri,omitempty"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	InitializationOptions any                `json:"initializationOptions,omitempty"`
}

// InitializeResult is the result of the initialize request.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

// ServerInfo identifies the server from initialization.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ClientCapabilities advertises what this client understands. Only the
// portions the engine acts on are declared.
type ClientCapabilities struct {
	Workspace    *WorkspaceClientCapabilities    `json:"workspace,omitempty"`
	TextDocument *TextDocumentClientCapabilities `json:"textDocument,omitempty"`
}

// WorkspaceClientCapabilities covers the workspace-level client features.
type WorkspaceClientCapabilities struct {
	ApplyEdit      bool `json:"applyEdit,omitempty"`
	ExecuteCommand bool `json:"executeCommand,omitempty"`
}

// TextDocumentClientCapabilities covers per-document client features.
type TextDocumentClientCapabilities struct {
	Synchronization    *SyncClientCapabilities        `json:"synchronization,omitempty"`
	Completion         *CompletionClientCapabilities  `json:"completion,omitempty"`
	PublishDiagnostics *DiagnosticsClientCapabilities `json:"publishDiagnostics,omitempty"`
}

// SyncClientCapabilities covers text document sync features.
type SyncClientCapabilities struct {
	DidSave bool `json:"didSave,omitempty"`
}

// CompletionClientCapabilities covers completion features.
type CompletionClientCapabilities struct {
	CompletionItem *CompletionItemCapabilities `json:"completionItem,omitempty"`
}

// CompletionItemCapabilities covers completion item features.
type CompletionItemCapabilities struct {
	SnippetSupport bool `json:"snippetSupport,omitempty"`
}

// DiagnosticsClientCapabilities covers diagnostics features.
type DiagnosticsClientCapabilities struct {
	RelatedInformation bool `json:"relatedInformation,omitempty"`
}

// ServerCapabilities is the raw capability advertisement from initialize.
// Provider fields may be booleans or option objects; the capability gate
// normalizes them into a flag set.
type ServerCapabilities struct {
	TextDocumentSync       any                    `json:"textDocumentSync,omitempty"`
	CompletionProvider     *CompletionOptions     `json:"completionProvider,omitempty"`
	HoverProvider          any                    `json:"hoverProvider,omitempty"`
	DefinitionProvider     any                    `json:"definitionProvider,omitempty"`
	ReferencesProvider     any                    `json:"referencesProvider,omitempty"`
	DocumentSymbolProvider any                    `json:"documentSymbolProvider,omitempty"`
	SignatureHelpProvider  *SignatureHelpOptions  `json:"signatureHelpProvider,omitempty"`
	CodeActionProvider     any                    `json:"codeActionProvider,omitempty"`
	ExecuteCommandProvider *ExecuteCommandOptions `json:"executeCommandProvider,omitempty"`
}

// CompletionOptions are server-declared completion options.
type CompletionOptions struct {
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
	ResolveProvider   bool     `json:"resolveProvider,omitempty"`
}

// SignatureHelpOptions are server-declared signature help options.
type SignatureHelpOptions struct {
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
}

// ExecuteCommandOptions are server-declared command options.
type ExecuteCommandOptions struct {
	Commands []string `json:"commands,omitempty"`
}

// --- Document sync ---

// DidOpenTextDocumentParams are parameters for textDocument/didOpen.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidChangeTextDocumentParams are parameters for textDocument/didChange.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// DidCloseTextDocumentParams are parameters for textDocument/didClose.
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// DidSaveTextDocumentParams are parameters for textDocument/didSave.
type DidSaveTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Text         string                 `json:"text,omitempty"`
}

// --- Completion ---

// CompletionParams are parameters for textDocument/completion.
type CompletionParams struct {
	TextDocumentPositionParams
	Context *CompletionContext `json:"context,omitempty"`
}

// CompletionContext describes how completion was triggered.
type CompletionContext struct {
	TriggerKind      int    `json:"triggerKind"`
	TriggerCharacter string `json:"triggerCharacter,omitempty"`
}

// CompletionTriggerInvoked means completion was explicitly requested.
const CompletionTriggerInvoked = 1

// CompletionList is a collection of completion items.
type CompletionList struct {
	IsIncomplete bool             `json:"isIncomplete"`
	Items        []CompletionItem `json:"items"`
}

// CompletionItem is a single completion suggestion on the wire.
type CompletionItem struct {
	Label            string          `json:"label"`
	Kind             int             `json:"kind,omitempty"`
	Detail           string          `json:"detail,omitempty"`
	Documentation    json.RawMessage `json:"documentation,omitempty"` // string or MarkupContent
	InsertText       string          `json:"insertText,omitempty"`
	InsertTextFormat int             `json:"insertTextFormat,omitempty"`
	TextEdit         *TextEdit       `json:"textEdit,omitempty"`
	FilterText       string          `json:"filterText,omitempty"`
	SortText         string          `json:"sortText,omitempty"`
}

// InsertTextFormatSnippet marks insert text as snippet syntax.
const InsertTextFormatSnippet = 2

// --- Hover ---

// HoverParams are parameters for textDocument/hover.
type HoverParams struct {
	TextDocumentPositionParams
}

// HoverResult is the raw hover response; Contents is a union of string,
// MarkupContent and MarkedString[].
type HoverResult struct {
	Contents json.RawMessage `json:"contents"`
	Range    *Range          `json:"range,omitempty"`
}

// --- References ---

// ReferenceParams are parameters for textDocument/references.
type ReferenceParams struct {
	TextDocumentPositionParams
	Context ReferenceContext `json:"context"`
}

// ReferenceContext controls reference listing.
type ReferenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

// --- Signature help ---

// SignatureHelpParams are parameters for textDocument/signatureHelp.
type SignatureHelpParams struct {
	TextDocumentPositionParams
}

// SignatureHelp is the signature help response.
type SignatureHelp struct {
	Signatures      []SignatureInformation `json:"signatures"`
	ActiveSignature int                    `json:"activeSignature,omitempty"`
	ActiveParameter int                    `json:"activeParameter,omitempty"`
}

// SignatureInformation describes one callable signature.
type SignatureInformation struct {
	Label         string                 `json:"label"`
	Documentation json.RawMessage        `json:"documentation,omitempty"`
	Parameters    []ParameterInformation `json:"parameters,omitempty"`
}

// ParameterInformation describes one parameter of a signature.
type ParameterInformation struct {
	Label         json.RawMessage `json:"label"` // string or [int, int]
	Documentation json.RawMessage `json:"documentation,omitempty"`
}

// --- Code actions ---

// CodeActionParams are parameters for textDocument/codeAction.
type CodeActionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
	Context      CodeActionContext      `json:"context"`
}

// CodeActionContext carries the diagnostics overlapping the action range.
type CodeActionContext struct {
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// CodeAction is a single action offered by the server. Servers may also
// return bare Commands; the bridge normalizes both shapes.
type CodeAction struct {
	Title       string         `json:"title"`
	Kind        string         `json:"kind,omitempty"`
	IsPreferred bool           `json:"isPreferred,omitempty"`
	Edit        *WorkspaceEdit `json:"edit,omitempty"`
	Command     *Command       `json:"command,omitempty"`
}

// Command is a reference to a server-side command.
type Command struct {
	Title     string `json:"title"`
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}

// ExecuteCommandParams are parameters for workspace/executeCommand.
type ExecuteCommandParams struct {
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}

// --- Document symbols ---

// DocumentSymbolParams are parameters for textDocument/documentSymbol.
type DocumentSymbolParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// DocumentSymbol is a symbol in the document outline.
type DocumentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           int              `json:"kind"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selectionRange"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

// --- Diagnostics ---

// PublishDiagnosticsParams are the parameters of
// textDocument/publishDiagnostics.
type PublishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Version     int          `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Diagnostic is a server-reported issue tied to a range.
type Diagnostic struct {
	Range    Range           `json:"range"`
	Severity int             `json:"severity,omitempty"`
	Code     json.RawMessage `json:"code,omitempty"` // string or number
	Source   string          `json:"source,omitempty"`
	Message  string          `json:"message"`
}

// Diagnostic severities per the protocol.
const (
	SeverityError   = 1
	SeverityWarning = 2
	SeverityInfo    = 3
	SeverityHint    = 4
)

// --- Window ---

// LogMessageParams are the parameters of window/logMessage and
// window/showMessage.
type LogMessageParams struct {
	Type    int    `json:"type"`
	Message string `json:"message"`
}

// --- Workspace (server -> client) ---

// ApplyWorkspaceEditParams are the parameters of the inbound
// workspace/applyEdit request.
type ApplyWorkspaceEditParams struct {
	Label string        `json:"label,omitempty"`
	Edit  WorkspaceEdit `json:"edit"`
}

// ApplyWorkspaceEditResult answers a workspace/applyEdit request.
type ApplyWorkspaceEditResult struct {
	Applied       bool   `json:"applied"`
	FailureReason string `json:"failureReason,omitempty"`
}

// --- Union parsing helpers ---

// parseLocations accepts Location | Location[] | LocationLink[] and
// normalizes to a slice of locations.
func parseLocations(raw json.RawMessage) ([]Location, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	// LocationLink[] also unmarshals into []Location with empty URIs,
	// so only accept this shape when the entries carry one.
	var locs []Location
	if err := json.Unmarshal(raw, &locs); err == nil {
		if len(locs) == 0 || locs[0].URI != "" {
			return locs, nil
		}
	}

	var loc Location
	if err := json.Unmarshal(raw, &loc); err == nil && loc.URI != "" {
		return []Location{loc}, nil
	}

	// LocationLink[] uses targetUri/targetRange.
	var links []struct {
		TargetURI   string `json:"targetUri"`
		TargetRange Range  `json:"targetSelectionRange"`
	}
	if err := json.Unmarshal(raw, &links); err == nil && len(links) > 0 && links[0].TargetURI != "" {
		out := make([]Location, 0, len(links))
		for _, l := range links {
			out = append(out, Location{URI: l.TargetURI, Range: l.TargetRange})
		}
		return out, nil
	}

	return nil, fmt.Errorf("unexpected location result shape")
}

// parseCompletionList accepts CompletionList | CompletionItem[] | null.
func parseCompletionList(raw json.RawMessage) (*CompletionList, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return &CompletionList{}, nil
	}

	var list CompletionList
	if err := json.Unmarshal(raw, &list); err == nil && (list.Items != nil || list.IsIncomplete) {
		return &list, nil
	}

	var items []CompletionItem
	if err := json.Unmarshal(raw, &items); err == nil {
		return &CompletionList{Items: items}, nil
	}

	return nil, fmt.Errorf("unexpected completion result shape")
}

// extractContents normalizes the hover/documentation union (string |
// MarkupContent | MarkedString[]) to a markdown string.
func extractContents(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var mc struct {
		Kind  string `json:"kind"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &mc); err == nil && mc.Value != "" {
		return mc.Value
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		var parts []string
		for _, item := range arr {
			var str string
			if err := json.Unmarshal(item, &str); err == nil {
				parts = append(parts, str)
				continue
			}
			var ms struct {
				Language string `json:"language"`
				Value    string `json:"value"`
			}
			if err := json.Unmarshal(item, &ms); err == nil && ms.Value != "" {
				if ms.Language != "" {
					parts = append(parts, fmt.Sprintf("```%s\n%s\n```", ms.Language, ms.Value))
				} else {
					parts = append(parts, ms.Value)
				}
			}
		}
		return strings.Join(parts, "\n\n")
	}

	return string(raw)
}
