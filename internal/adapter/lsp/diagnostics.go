package lsp

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/tidewater/langbridge/internal/domain/editor"
	editorport "github.com/tidewater/langbridge/internal/port/editor"
)

// severityMarkers maps protocol severities to editor marker severities.
// Unknown or absent severities fall back to info rather than being dropped.
var severityMarkers = map[int]editor.MarkerSeverity{
	SeverityError:   editor.MarkerError,
	SeverityWarning: editor.MarkerWarning,
	SeverityInfo:    editor.MarkerInfo,
	SeverityHint:    editor.MarkerHint,
}

// DiagnosticsSink turns publishDiagnostics notifications into editor
// markers. Each notification replaces the full marker set for its document;
// notifications for documents the editor does not have open are dropped.
type DiagnosticsSink struct {
	log     *slog.Logger
	surface editorport.Surface
	maxPer  int
}

// NewDiagnosticsSink creates a sink writing markers to surface. maxPer
// bounds markers per document; zero means unbounded.
func NewDiagnosticsSink(log *slog.Logger, surface editorport.Surface, maxPer int) *DiagnosticsSink {
	return &DiagnosticsSink{log: log, surface: surface, maxPer: maxPer}
}

// Publish applies one publishDiagnostics notification. An empty diagnostics
// list clears the document's markers.
func (d *DiagnosticsSink) Publish(params PublishDiagnosticsParams) {
	if !d.surface.IsOpen(params.URI) {
		d.log.Debug("diagnostics dropped, document not open", "uri", params.URI)
		return
	}

	diags := params.Diagnostics
	if d.maxPer > 0 && len(diags) > d.maxPer {
		d.log.Warn("diagnostics truncated",
			"uri", params.URI, "count", len(diags), "max", d.maxPer)
		diags = diags[:d.maxPer]
	}

	markers := make([]editor.Marker, 0, len(diags))
	for _, diag := range diags {
		severity, ok := severityMarkers[diag.Severity]
		if !ok {
			severity = editor.MarkerInfo
		}
		markers = append(markers, editor.Marker{
			Span:     fromRange(diag.Range),
			Message:  diag.Message,
			Severity: severity,
			Source:   diag.Source,
			Code:     codeString(diag.Code),
		})
	}

	d.surface.SetMarkers(params.URI, markers)
}

// Clear removes all markers for uri if it is open.
func (d *DiagnosticsSink) Clear(uri string) {
	if d.surface.IsOpen(uri) {
		d.surface.SetMarkers(uri, nil)
	}
}

// codeString renders the diagnostic code union (string | number) as text.
func codeString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}
