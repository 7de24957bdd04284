package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tidewater/langbridge/internal/adapter/lsp"
	"github.com/tidewater/langbridge/internal/adapter/memedit"
	"github.com/tidewater/langbridge/internal/config"
	"github.com/tidewater/langbridge/internal/domain/editor"
	"github.com/tidewater/langbridge/internal/service"
)

type testEnv struct {
	router   chi.Router
	registry *service.Registry
	store    *memedit.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.LSP{
		EndpointURL:     "ws://fake:9100/lsp",
		ConnectTimeout:  time.Second,
		RequestTimeout:  time.Second,
		ShutdownTimeout: time.Second,
		Backoff:         config.Backoff{InitialDelay: 10 * time.Millisecond, Multiplier: 2.0, MaxAttempts: 0},
	}
	dialer := lsp.Dialer(func(_ context.Context, _ string) (lsp.Conn, error) {
		return nil, errors.New("connection refused")
	})

	store := memedit.NewStore()
	log := slog.New(slog.DiscardHandler)
	registry := service.NewRegistry(log, cfg, dialer, store)
	if _, err := registry.Register("go"); err != nil {
		t.Fatal(err)
	}

	r := chi.NewRouter()
	MountRoutes(r, NewHandlers(log, registry, store))
	return &testEnv{router: r, registry: registry, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/sessions", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status []service.SessionStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if len(status) != 1 || status[0].Language != "go" {
		t.Errorf("status = %+v", status)
	}
	if status[0].State != lsp.StateDisconnected {
		t.Errorf("state = %v, want disconnected", status[0].State)
	}
}

func TestSessionUnknownLanguage(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{
		"/api/v1/sessions/rust/connect",
		"/api/v1/sessions/rust/disconnect",
		"/api/v1/sessions/rust/reconnect",
	} {
		if rec := env.do(t, http.MethodPost, path, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestConnectSessionFailure(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/sessions/go/connect", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestOpenDocumentValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/documents/open", `{"uri": "file:///a.go"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing language: status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/documents/open", `{"language": "rust", "uri": "file:///a.go"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown language: status = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/documents/open", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d, want 400", rec.Code)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	env := newTestEnv(t)

	// Opening works even while disconnected; the sync notification is
	// dropped and the document is announced on the next connect.
	rec := env.do(t, http.MethodPost, "/api/v1/documents/open",
		`{"language": "go", "uri": "file:///a.go", "text": "package a"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("open status = %d: %s", rec.Code, rec.Body.String())
	}
	var opened map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &opened); err != nil {
		t.Fatal(err)
	}
	if opened["version"] != 1 {
		t.Errorf("version = %d, want 1", opened["version"])
	}
	if !env.store.IsOpen("file:///a.go") {
		t.Error("document not in the editor store")
	}

	rec = env.do(t, http.MethodPost, "/api/v1/documents/change",
		`{"language": "go", "uri": "file:///a.go", "text": "package b"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("change status = %d", rec.Code)
	}
	var changed map[string]int
	_ = json.Unmarshal(rec.Body.Bytes(), &changed)
	if changed["version"] != 2 {
		t.Errorf("version = %d, want 2", changed["version"])
	}

	rec = env.do(t, http.MethodPost, "/api/v1/documents/close",
		`{"language": "go", "uri": "file:///a.go"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("close status = %d", rec.Code)
	}
	if env.store.IsOpen("file:///a.go") {
		t.Error("document still in the editor store")
	}
}

func TestChangeUnknownDocument(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/documents/change",
		`{"language": "go", "uri": "file:///nope.go", "text": "x"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetMarkers(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/documents/markers?uri=file:///a.go", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unopened: status = %d, want 404", rec.Code)
	}

	env.store.Open("file:///a.go", "package a")
	env.store.SetMarkers("file:///a.go", []editor.Marker{
		{Message: "broken", Severity: editor.MarkerError},
	})

	rec = env.do(t, http.MethodGet, "/api/v1/documents/markers?uri=file:///a.go", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var markers []editor.Marker
	if err := json.Unmarshal(rec.Body.Bytes(), &markers); err != nil {
		t.Fatal(err)
	}
	if len(markers) != 1 || markers[0].Severity != editor.MarkerError {
		t.Errorf("markers = %+v", markers)
	}
}

func TestFeatureWhileDisconnectedIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/features/go/completion",
		`{"uri": "file:///a.go", "caret": {"line": 1, "column": 1}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %s, want empty array", got)
	}
}

func TestVersionEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "version") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
