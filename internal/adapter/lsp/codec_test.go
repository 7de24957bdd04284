package lsp

import (
	"encoding/json"
	"testing"
)

func TestMessageKind(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want MessageKind
	}{
		{"response with result", `{"jsonrpc":"2.0","id":1,"result":{}}`, KindResponse},
		{"response with null result", `{"jsonrpc":"2.0","id":2,"result":null}`, KindResponse},
		{"response with error", `{"jsonrpc":"2.0","id":3,"error":{"code":-32601,"message":"nope"}}`, KindResponse},
		{"notification", `{"jsonrpc":"2.0","method":"textDocument/publishDiagnostics","params":{}}`, KindNotification},
		{"server request", `{"jsonrpc":"2.0","id":7,"method":"workspace/applyEdit","params":{}}`, KindServerRequest},
		{"empty object", `{}`, KindInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got := msg.Kind(); got != tt.want {
				t.Errorf("kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for malformed frame")
	}
}

func TestEncodeRequest(t *testing.T) {
	frame, err := EncodeRequest(42, "textDocument/hover", HoverParams{
		TextDocumentPositionParams: TextDocumentPositionParams{
			TextDocument: TextDocumentIdentifier{URI: "file:///a.go"},
			Position:     Position{Line: 4, Character: 9},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(frame, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["jsonrpc"] != "2.0" {
		t.Errorf("jsonrpc = %v", decoded["jsonrpc"])
	}
	if decoded["id"] != float64(42) {
		t.Errorf("id = %v", decoded["id"])
	}
	if decoded["method"] != "textDocument/hover" {
		t.Errorf("method = %v", decoded["method"])
	}
	if _, ok := decoded["result"]; ok {
		t.Error("request must not carry a result member")
	}
}

func TestEncodeNotificationHasNoID(t *testing.T) {
	frame, err := EncodeNotification("initialized", struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(frame, &decoded); err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded["id"]; ok {
		t.Error("notification must not carry an id")
	}
}

func TestEncodeResponses(t *testing.T) {
	frame, err := EncodeResponse(5, ApplyWorkspaceEditResult{Applied: true})
	if err != nil {
		t.Fatal(err)
	}
	msg, err := Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Kind() != KindResponse {
		t.Errorf("kind = %v, want response", msg.Kind())
	}

	frame, err = EncodeErrorResponse(6, CodeMethodNotFound, "unsupported")
	if err != nil {
		t.Fatal(err)
	}
	msg, err = Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Error == nil || msg.Error.Code != CodeMethodNotFound {
		t.Errorf("error = %+v", msg.Error)
	}
}
