package config

import (
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	defaults := LoadDefaults()

	want := []string{".jpg", ".jpeg", ".png", ".bmp", ".webp"}
	if !slices.Equal(defaults.ImageExtensions, want) {
		t.Errorf("expected extensions %v, got %v", want, defaults.ImageExtensions)
	}
	if defaults.Matching.DefaultThreshold != 0.3 {
		t.Errorf("expected default threshold 0.3, got %v", defaults.Matching.DefaultThreshold)
	}
	if defaults.Thumbnails.BytesPerPixel != 4 {
		t.Errorf("expected 4 bytes per pixel, got %d", defaults.Thumbnails.BytesPerPixel)
	}
	if defaults.Thumbnails.ResizeJumpPixels != 48 {
		t.Errorf("expected resize jump of 48px, got %d", defaults.Thumbnails.ResizeJumpPixels)
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "SQLITE_PATH", "REFERENCE_ROOT", "TRASH_DIR", "UNDO_JOURNAL",
		"UNDO_LIMIT", "REBUILD_DEBOUNCE_MS", "THUMB_CACHE_MAX_BYTES", "THUMB_CACHE_MAX_ITEMS",
		"SORT_MODE", "KEEP_ORIGINAL_NAMES", "PHOTO_ROOTS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Database.UsePostgres() {
		t.Error("expected SQLite backend when DATABASE_URL is empty")
	}
	if cfg.Database.SQLitePath != "reference_data.db" {
		t.Errorf("expected reference_data.db, got %s", cfg.Database.SQLitePath)
	}
	if cfg.Library.ReferenceRoot != "References" {
		t.Errorf("expected References root, got %s", cfg.Library.ReferenceRoot)
	}
	if cfg.Library.TrashDir != filepath.Join("References", ".trash") {
		t.Errorf("unexpected trash dir %s", cfg.Library.TrashDir)
	}
	if cfg.Library.UndoLimit != 50 {
		t.Errorf("expected undo limit 50, got %d", cfg.Library.UndoLimit)
	}
	if cfg.Cache.RebuildDebounce != 200*time.Millisecond {
		t.Errorf("expected 200ms debounce, got %v", cfg.Cache.RebuildDebounce)
	}
	if cfg.Cache.ThumbMaxBytes != 256<<20 {
		t.Errorf("expected 256MiB thumbnail budget, got %d", cfg.Cache.ThumbMaxBytes)
	}
	if cfg.Cache.ThumbMaxItems != 2000 {
		t.Errorf("expected 2000 thumbnail items, got %d", cfg.Cache.ThumbMaxItems)
	}
	if cfg.Sort.Mode != "best" {
		t.Errorf("expected best mode, got %s", cfg.Sort.Mode)
	}
	if !cfg.Sort.KeepOriginalNames {
		t.Error("expected original names to be kept by default")
	}
	if len(cfg.Library.PhotoRoots) != 0 {
		t.Errorf("expected no photo roots, got %v", cfg.Library.PhotoRoots)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/faces")
	t.Setenv("REFERENCE_ROOT", "/data/refs")
	t.Setenv("TRASH_DIR", "")
	t.Setenv("UNDO_LIMIT", "10")
	t.Setenv("REBUILD_DEBOUNCE_MS", "500")
	t.Setenv("SORT_MODE", "multi")
	t.Setenv("KEEP_ORIGINAL_NAMES", "false")
	t.Setenv("PHOTO_ROOTS", "/inbox, ,/output")

	cfg := Load()

	if !cfg.Database.UsePostgres() {
		t.Error("expected PostgreSQL backend")
	}
	if cfg.Library.TrashDir != filepath.Join("/data/refs", ".trash") {
		t.Errorf("expected trash under reference root, got %s", cfg.Library.TrashDir)
	}
	if cfg.Library.UndoLimit != 10 {
		t.Errorf("expected undo limit 10, got %d", cfg.Library.UndoLimit)
	}
	if cfg.Cache.RebuildDebounce != 500*time.Millisecond {
		t.Errorf("expected 500ms debounce, got %v", cfg.Cache.RebuildDebounce)
	}
	if cfg.Sort.Mode != "multi" {
		t.Errorf("expected multi mode, got %s", cfg.Sort.Mode)
	}
	if cfg.Sort.KeepOriginalNames {
		t.Error("expected KEEP_ORIGINAL_NAMES=false to be honored")
	}
	if !slices.Equal(cfg.Library.PhotoRoots, []string{"/inbox", "/output"}) {
		t.Errorf("unexpected photo roots %v", cfg.Library.PhotoRoots)
	}
}

func TestEnvInt_Invalid(t *testing.T) {
	t.Setenv("TEST_ENV_INT", "-3")
	if got := envInt("TEST_ENV_INT", 7); got != 7 {
		t.Errorf("expected fallback 7 for negative value, got %d", got)
	}
	t.Setenv("TEST_ENV_INT", "abc")
	if got := envInt("TEST_ENV_INT", 7); got != 7 {
		t.Errorf("expected fallback 7 for non-numeric value, got %d", got)
	}
}
