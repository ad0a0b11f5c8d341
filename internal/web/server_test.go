package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-sorter/internal/config"
)

func testServer(token string) *Server {
	cfg := &config.Config{
		Library: config.LibraryConfig{ReferenceRoot: "References"},
		Sort:    config.SortConfig{Mode: "best"},
		Web:     config.WebConfig{Host: "127.0.0.1", Port: 0, APIToken: token},
	}
	return NewServer(cfg, Deps{}, nil)
}

func TestRouter_HealthWithoutToken(t *testing.T) {
	s := testServer("secret")

	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/health", nil))

	if recorder.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
}

func TestRouter_TokenRequired(t *testing.T) {
	s := testServer("secret")

	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/config", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, recorder.Code)
	}

	req := httptest.NewRequest("GET", "/api/v1/config", nil)
	req.Header.Set("Authorization", "Bearer secret")
	recorder = httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
}

func TestRouter_UnknownJob(t *testing.T) {
	s := testServer("")

	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/sort/missing", nil))

	if recorder.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, recorder.Code)
	}
}

func TestRouter_AssignRegistered(t *testing.T) {
	s := testServer("")

	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, httptest.NewRequest("POST", "/api/v1/assign", strings.NewReader(`{"label":"Alice"}`)))

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, recorder.Code)
	}
}

func TestServer_Addr(t *testing.T) {
	s := testServer("")
	if s.httpServer.Addr != "127.0.0.1:0" {
		t.Errorf("expected addr 127.0.0.1:0, got %s", s.httpServer.Addr)
	}
}
