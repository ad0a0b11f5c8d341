package cmd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/database/mock"
	"github.com/kozaktomas/face-sorter/internal/embedding"
	"github.com/kozaktomas/face-sorter/internal/refcache"
)

func TestEnsureCache_ExtractorDown(t *testing.T) {
	var embedCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			embedCalls++
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	store := mock.NewMockStore()
	if err := store.InsertReference(context.Background(), "/refs/alice/1.jpg", "alice"); err != nil {
		t.Fatal(err)
	}
	readFile := func(string) ([]byte, error) { return []byte("jpeg"), nil }

	extractor := embedding.NewClient(srv.URL, time.Second)
	a := &app{
		log:       zap.NewNop(),
		extractor: extractor,
		cache:     refcache.New(store, extractor, nil, refcache.WithReadFile(readFile)),
	}

	err := a.ensureCache(context.Background())
	if !errors.Is(err, embedding.ErrExtractorUnavailable) {
		t.Fatalf("expected ErrExtractorUnavailable, got %v", err)
	}
	if embedCalls != 0 {
		t.Errorf("expected no embedding requests after failed health check, got %d", embedCalls)
	}
	if n := a.cache.Snapshot().Len(); n != 0 {
		t.Errorf("expected empty snapshot, got %d labels", n)
	}
}

func TestEnsureCache_ExtractorHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	extractor := embedding.NewClient(srv.URL, time.Second)
	a := &app{
		log:       zap.NewNop(),
		extractor: extractor,
		cache:     refcache.New(mock.NewMockStore(), extractor, nil),
	}

	// An empty store rebuilds to an empty snapshot without calling /embed
	if err := a.ensureCache(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
