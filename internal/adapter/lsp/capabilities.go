package lsp

// CapabilitySet records which features the connected server advertised in
// its initialize result. Absent or false capabilities gate the corresponding
// feature off without a round trip.
type CapabilitySet struct {
	Hover          bool
	Completion     bool
	Definition     bool
	References     bool
	SignatureHelp  bool
	CodeAction     bool
	DocumentSymbol bool
	ExecuteCommand bool
}

// NewCapabilitySet interprets a raw ServerCapabilities value. Providers may
// be advertised as booleans or as option objects; any non-false, non-nil
// value counts as supported.
func NewCapabilitySet(caps *ServerCapabilities) CapabilitySet {
	if caps == nil {
		return CapabilitySet{}
	}
	return CapabilitySet{
		Hover:          enabled(caps.HoverProvider),
		Completion:     caps.CompletionProvider != nil,
		Definition:     enabled(caps.DefinitionProvider),
		References:     enabled(caps.ReferencesProvider),
		SignatureHelp:  caps.SignatureHelpProvider != nil,
		CodeAction:     enabled(caps.CodeActionProvider),
		DocumentSymbol: enabled(caps.DocumentSymbolProvider),
		ExecuteCommand: caps.ExecuteCommandProvider != nil,
	}
}

// enabled treats `true` and any object as supported, `false` and absence as
// not.
func enabled(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	default:
		return true
	}
}
