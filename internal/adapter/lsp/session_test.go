package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tidewater/langbridge/internal/config"
	"github.com/tidewater/langbridge/internal/domain/editor"
)

const fakeInitializeResult = `{
	"capabilities": {
		"hoverProvider": true,
		"completionProvider": {"triggerCharacters": ["."]},
		"definitionProvider": true,
		"referencesProvider": true,
		"codeActionProvider": true,
		"documentSymbolProvider": true,
		"executeCommandProvider": {"commands": ["fix"]}
	},
	"serverInfo": {"name": "fake-ls", "version": "0.1"}
}`

// fakeServer plays the language server side over fake connections.
type fakeServer struct {
	mu        sync.Mutex
	dials     int
	failDials int
	conns     []*fakeConn
	methods   []string
	responses []*Message
}

func (s *fakeServer) dialer() Dialer {
	return func(_ context.Context, _ string) (Conn, error) {
		s.mu.Lock()
		s.dials++
		fail := s.dials <= s.failDials
		s.mu.Unlock()
		if fail {
			return nil, errors.New("connection refused")
		}

		conn := newFakeConn()
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.serve(conn)
		return conn, nil
	}
}

// serve answers initialize and shutdown; every method seen is recorded.
func (s *fakeServer) serve(conn *fakeConn) {
	for {
		select {
		case frame := <-conn.out:
			msg, err := Decode(frame)
			if err != nil {
				continue
			}
			if msg.Method == "" {
				// A response to a server-initiated request.
				if msg.ID != nil {
					s.mu.Lock()
					s.responses = append(s.responses, msg)
					s.mu.Unlock()
				}
				continue
			}
			s.mu.Lock()
			s.methods = append(s.methods, msg.Method)
			s.mu.Unlock()
			if msg.ID == nil {
				continue
			}
			switch msg.Method {
			case "initialize":
				resp, _ := EncodeResponse(*msg.ID, json.RawMessage(fakeInitializeResult))
				conn.in <- resp
			case "shutdown":
				resp, _ := EncodeResponse(*msg.ID, nil)
				conn.in <- resp
			case "textDocument/hover":
				resp, _ := EncodeResponse(*msg.ID, json.RawMessage(
					`{"contents": "const answer untyped int = 42"}`))
				conn.in <- resp
			}
		case <-conn.closed:
			return
		}
	}
}

func (s *fakeServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *fakeServer) methodCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.methods {
		if m == method {
			n++
		}
	}
	return n
}

func (s *fakeServer) responseFor(id int64) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.responses {
		if msg.ID != nil && *msg.ID == id {
			return msg
		}
	}
	return nil
}

func (s *fakeServer) currentConn() *fakeConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		return nil
	}
	return s.conns[len(s.conns)-1]
}

func testLSPConfig() config.LSP {
	return config.LSP{
		EndpointURL:     "ws://fake:9100/lsp",
		RootURI:         "file:///work",
		ConnectTimeout:  2 * time.Second,
		RequestTimeout:  2 * time.Second,
		ShutdownTimeout: time.Second,
		Backoff: config.Backoff{
			InitialDelay: 10 * time.Millisecond,
			Multiplier:   2.0,
			MaxAttempts:  3,
		},
	}
}

func editorCaret(line, column int) editor.Caret {
	return editor.Caret{Line: line, Column: column}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestClientHandshake(t *testing.T) {
	server := &fakeServer{}
	surface := newFakeSurface()
	client, err := NewClient(testLogger(), testLSPConfig(), "go", server.dialer(), surface)
	if err != nil {
		t.Fatal(err)
	}

	if client.State() != StateDisconnected {
		t.Fatalf("initial state = %v", client.State())
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer client.Close(context.Background())

	if client.State() != StateConnected {
		t.Errorf("state = %v, want connected", client.State())
	}
	if client.ServerName() != "fake-ls" {
		t.Errorf("server = %q", client.ServerName())
	}
	if client.SessionID() == "" {
		t.Error("no session id assigned")
	}

	caps := client.Capabilities()
	if !caps.Hover || !caps.Completion || caps.SignatureHelp {
		t.Errorf("capabilities = %+v", caps)
	}

	waitFor(t, func() bool { return server.methodCount("initialized") == 1 },
		"initialized notification not sent")

	// A second Connect on a live session is a no-op.
	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if server.dialCount() != 1 {
		t.Errorf("dials = %d, want 1", server.dialCount())
	}
}

func TestClientReconnectResyncsDocuments(t *testing.T) {
	server := &fakeServer{}
	surface := newFakeSurface("file:///a.go")
	client, err := NewClient(testLogger(), testLSPConfig(), "go", server.dialer(), surface)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close(context.Background())

	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := client.OpenDocument(context.Background(), "file:///a.go", "package a"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return server.methodCount("textDocument/didOpen") == 1 },
		"didOpen not sent")

	// Drop the connection from the server side.
	server.currentConn().Close()

	waitFor(t, func() bool { return client.State() == StateConnected && server.dialCount() == 2 },
		"client did not reconnect")
	waitFor(t, func() bool { return server.methodCount("textDocument/didOpen") == 2 },
		"document not reopened after reconnect")

	if client.DocumentVersion("file:///a.go") != 1 {
		t.Errorf("version after resync = %d, want 1", client.DocumentVersion("file:///a.go"))
	}
	if server.methodCount("initialize") != 2 {
		t.Errorf("initialize count = %d, want one per connection", server.methodCount("initialize"))
	}
}

func TestClientRetriesExhausted(t *testing.T) {
	server := &fakeServer{failDials: 1000}
	client, err := NewClient(testLogger(), testLSPConfig(), "go", server.dialer(), newFakeSurface())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close(context.Background())

	if err := client.Connect(context.Background()); err == nil {
		t.Fatal("connect against a dead server must fail")
	}

	// One initial attempt plus the bounded retry schedule of three.
	waitFor(t, func() bool { return server.dialCount() == 4 }, "retry schedule did not run")
	time.Sleep(100 * time.Millisecond)
	if got := server.dialCount(); got != 4 {
		t.Errorf("dials = %d, automatic retries must stop at the attempt cap", got)
	}
	if client.State() != StateError {
		t.Errorf("state = %v, want error after exhaustion", client.State())
	}
	waitFor(t, func() bool { return errors.Is(client.LastError(), ErrRetriesExhausted) },
		"last error not marked as exhausted")

	// Only a manual reconnect resumes.
	server.mu.Lock()
	server.failDials = 0
	server.mu.Unlock()
	if err := client.Reconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if client.State() != StateConnected {
		t.Errorf("state after manual reconnect = %v", client.State())
	}
	if err := client.LastError(); err != nil {
		t.Errorf("last error after recovery = %v, want nil", err)
	}
}

func TestClientDisconnectIsFinal(t *testing.T) {
	server := &fakeServer{}
	client, err := NewClient(testLogger(), testLSPConfig(), "go", server.dialer(), newFakeSurface())
	if err != nil {
		t.Fatal(err)
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := client.Disconnect(context.Background()); err != nil {
		t.Fatal(err)
	}

	if client.State() != StateDisconnected {
		t.Errorf("state = %v, want disconnected", client.State())
	}
	waitFor(t, func() bool { return server.methodCount("shutdown") == 1 && server.methodCount("exit") == 1 },
		"graceful shutdown sequence not sent")

	// A deliberate disconnect never triggers the retry schedule.
	time.Sleep(100 * time.Millisecond)
	if server.dialCount() != 1 {
		t.Errorf("dials = %d, want 1", server.dialCount())
	}
}

func TestClientHoverEndToEnd(t *testing.T) {
	server := &fakeServer{}
	surface := newFakeSurface("file:///a.go")
	client, err := NewClient(testLogger(), testLSPConfig(), "go", server.dialer(), surface)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close(context.Background())

	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := client.OpenDocument(context.Background(), "file:///a.go", "answer := 42"); err != nil {
		t.Fatal(err)
	}

	info := client.Features().Hover(context.Background(), "file:///a.go", editorCaret(1, 2))
	if info == nil || info.Contents != "const answer untyped int = 42" {
		t.Errorf("hover = %+v", info)
	}
}

func TestClientDiagnosticsDelivered(t *testing.T) {
	server := &fakeServer{}
	surface := newFakeSurface("file:///a.go")
	cfg := testLSPConfig()
	cfg.MaxDiagnostics = 10
	client, err := NewClient(testLogger(), cfg, "go", server.dialer(), surface)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close(context.Background())

	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	notif, _ := EncodeNotification("textDocument/publishDiagnostics", PublishDiagnosticsParams{
		URI: "file:///a.go",
		Diagnostics: []Diagnostic{
			{Range: Range{Start: Position{Line: 1, Character: 0}, End: Position{Line: 1, Character: 5}},
				Severity: SeverityError, Message: "broken"},
		},
	})
	server.currentConn().in <- notif

	waitFor(t, func() bool { return len(surface.markersFor("file:///a.go")) == 1 },
		"diagnostics not delivered as markers")
}

func TestClientAppliesServerEdit(t *testing.T) {
	server := &fakeServer{}
	surface := newFakeSurface("file:///a.go")
	client, err := NewClient(testLogger(), testLSPConfig(), "go", server.dialer(), surface)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close(context.Background())

	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	id := int64(900)
	params, _ := json.Marshal(ApplyWorkspaceEditParams{
		Edit: WorkspaceEdit{Changes: map[string][]TextEdit{
			"file:///a.go": {{Range: Range{}, NewText: "fixed"}},
		}},
	})
	req, _ := json.Marshal(Message{JSONRPC: "2.0", ID: &id, Method: "workspace/applyEdit", Params: params})
	server.currentConn().in <- req

	// The client must answer the server's request with applied=true.
	waitFor(t, func() bool { return server.responseFor(id) != nil }, "no applyEdit response")
	var result ApplyWorkspaceEditResult
	if err := json.Unmarshal(server.responseFor(id).Result, &result); err != nil {
		t.Fatal(err)
	}
	if !result.Applied {
		t.Errorf("result = %+v", result)
	}

	surface.mu.Lock()
	applied := len(surface.applied)
	surface.mu.Unlock()
	if applied != 1 {
		t.Errorf("surface edits applied = %d, want 1", applied)
	}
}

func TestClientRejectsUnknownServerRequest(t *testing.T) {
	server := &fakeServer{}
	client, err := NewClient(testLogger(), testLSPConfig(), "go", server.dialer(), newFakeSurface())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close(context.Background())

	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	id := int64(901)
	req, _ := json.Marshal(Message{JSONRPC: "2.0", ID: &id, Method: "client/unknownThing"})
	server.currentConn().in <- req

	waitFor(t, func() bool { return server.responseFor(id) != nil }, "no error response")
	msg := server.responseFor(id)
	if msg.Error == nil || msg.Error.Code != CodeMethodNotFound {
		t.Errorf("error = %+v, want method not found", msg.Error)
	}
}

func TestBackoffDelayGrowth(t *testing.T) {
	b := config.Backoff{InitialDelay: time.Second, Multiplier: 2.0, MaxAttempts: 3}
	if got := backoffDelay(b, 1); got != time.Second {
		t.Errorf("attempt 1 = %v", got)
	}
	if got := backoffDelay(b, 2); got != 2*time.Second {
		t.Errorf("attempt 2 = %v", got)
	}
	if got := backoffDelay(b, 3); got != 4*time.Second {
		t.Errorf("attempt 3 = %v", got)
	}
}
