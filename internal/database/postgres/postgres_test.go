//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kozaktomas/face-sorter/internal/config"
	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Store, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	store, err := Open(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open store: %v", err)
	}

	cleanup := func() {
		store.Close()
		container.Terminate(ctx)
	}

	return store, cleanup
}

func TestStore(t *testing.T) {
	store, cleanup := setupTestContainer(t)
	if store == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	dir := t.TempDir()
	present := filepath.Join(dir, "alice1.jpg")
	if err := os.WriteFile(present, []byte("jpg"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Run("LabelsAndThresholds", func(t *testing.T) {
		if err := store.InsertOrUpdateLabel(ctx, "Alice", filepath.Join(dir, "Alice"), 0.3); err != nil {
			t.Fatalf("Failed to insert label: %v", err)
		}
		if err := store.SetThreshold(ctx, "Alice", 0.45); err != nil {
			t.Fatalf("Failed to set threshold: %v", err)
		}
		got, err := store.GetThreshold(ctx, "Alice")
		if err != nil {
			t.Fatalf("Failed to get threshold: %v", err)
		}
		if got != 0.45 {
			t.Errorf("Expected threshold 0.45, got %v", got)
		}
		if _, err := store.GetThreshold(ctx, "Nobody"); !errors.Is(err, database.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("References", func(t *testing.T) {
		if err := store.InsertReference(ctx, present, "Alice"); err != nil {
			t.Fatalf("Failed to insert reference: %v", err)
		}
		if err := store.InsertReference(ctx, filepath.Join(dir, "missing.jpg"), "Alice"); err != nil {
			t.Fatalf("Failed to insert reference: %v", err)
		}

		refs, err := store.ListReferencesByLabel(ctx, "Alice")
		if err != nil {
			t.Fatalf("Failed to list references: %v", err)
		}
		if len(refs) != 2 {
			t.Fatalf("Expected 2 references, got %d", len(refs))
		}

		purged, err := store.PurgeMissingReferences(ctx)
		if err != nil {
			t.Fatalf("Failed to purge: %v", err)
		}
		if purged != 1 {
			t.Errorf("Expected 1 purged reference, got %d", purged)
		}
	})

	t.Run("Centroids", func(t *testing.T) {
		vec := []float32{0.1, 0.2, 0.3}
		if err := store.SaveCentroids(ctx, map[string][]float32{"Alice": vec}); err != nil {
			t.Fatalf("Failed to save centroids: %v", err)
		}
		loaded, err := store.LoadCentroids(ctx)
		if err != nil {
			t.Fatalf("Failed to load centroids: %v", err)
		}
		if len(loaded["Alice"]) != 3 {
			t.Errorf("Expected 3-dim centroid, got %v", loaded["Alice"])
		}
	})

	t.Run("Audit", func(t *testing.T) {
		rec := database.MatchRecord{Filename: "a.jpg", MatchedLabel: "Alice", Confidence: 0.8, Mode: "best", Timestamp: time.Now()}
		if err := store.LogMatch(ctx, rec); err != nil {
			t.Fatalf("Failed to log match: %v", err)
		}
		matches, err := store.ListMatches(ctx)
		if err != nil {
			t.Fatalf("Failed to list matches: %v", err)
		}
		if len(matches) != 1 || matches[0].MatchedLabel != "Alice" {
			t.Errorf("Unexpected matches: %+v", matches)
		}
	})

	t.Run("DeleteLabel", func(t *testing.T) {
		if err := store.DeleteLabel(ctx, "Alice"); err != nil {
			t.Fatalf("Failed to delete label: %v", err)
		}
		refs, err := store.ListReferencesByLabel(ctx, "Alice")
		if err != nil {
			t.Fatalf("Failed to list references: %v", err)
		}
		if len(refs) != 0 {
			t.Errorf("Expected references removed with label, got %d", len(refs))
		}
		centroids, _ := store.LoadCentroids(ctx)
		if _, ok := centroids["Alice"]; ok {
			t.Error("Expected centroid removed with label")
		}
	})
}
