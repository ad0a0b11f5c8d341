package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-sorter/internal/config"
	"github.com/kozaktomas/face-sorter/internal/database/mock"
	"github.com/kozaktomas/face-sorter/internal/fileutil"
	"github.com/kozaktomas/face-sorter/internal/labels"
	"github.com/kozaktomas/face-sorter/internal/refcache"
	"github.com/kozaktomas/face-sorter/internal/trash"
	"github.com/kozaktomas/face-sorter/internal/undo"
)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Sort: config.SortConfig{
			Mode:              "best",
			KeepOriginalNames: true,
		},
	}
}

// rebuildRecorder records rebuild requests
type rebuildRecorder struct {
	mu     sync.Mutex
	scopes []refcache.Scope
}

func (r *rebuildRecorder) RequestRebuild(scope refcache.Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopes = append(r.scopes, scope)
}

func (r *rebuildRecorder) Scopes() []refcache.Scope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]refcache.Scope(nil), r.scopes...)
}

type labelsFixture struct {
	root    string
	store   *mock.MockStore
	rebuild *rebuildRecorder
	mgr     *labels.Manager
	handler *LabelsHandler
}

// newLabelsFixture wires a real label manager over the mock store and a temp reference root
func newLabelsFixture(t *testing.T) *labelsFixture {
	t.Helper()
	root := filepath.Join(t.TempDir(), "References")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	stack, err := undo.NewStack(10, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	f := &labelsFixture{
		root:    root,
		store:   mock.NewMockStore(),
		rebuild: &rebuildRecorder{},
	}
	f.mgr = labels.NewManager(f.store, trash.NewLocal(filepath.Join(root, ".trash"), nil), stack, f.rebuild,
		root, fileutil.NewExtensions([]string{".jpg", ".png"}), nil)
	f.handler = NewLabelsHandler(f.mgr)
	return f
}

// writeFile creates a file with content under dir
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// jsonRequest creates a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
