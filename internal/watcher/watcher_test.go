package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/goleak"

	"github.com/kozaktomas/face-sorter/internal/fileutil"
	"github.com/kozaktomas/face-sorter/internal/refcache"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var exts = fileutil.NewExtensions([]string{".jpg", ".png"})

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		event      fsnotify.Event
		wantAction Action
		wantFolder string
	}{
		{
			name:       "remove image in label folder",
			event:      fsnotify.Event{Name: "/refs/Alice/p1.jpg", Op: fsnotify.Remove},
			wantAction: ActionRebuild,
			wantFolder: "Alice",
		},
		{
			name:       "rename image in nested folder",
			event:      fsnotify.Event{Name: "/refs/Alice/2023/p1.png", Op: fsnotify.Rename},
			wantAction: ActionRebuild,
			wantFolder: "Alice",
		},
		{
			name:       "write image",
			event:      fsnotify.Event{Name: "/refs/Alice/p1.jpg", Op: fsnotify.Write},
			wantAction: ActionInvalidate,
			wantFolder: "Alice",
		},
		{
			name:       "sidecar ignored",
			event:      fsnotify.Event{Name: "/refs/Alice/metadata.yaml", Op: fsnotify.Remove},
			wantAction: ActionIgnore,
		},
		{
			name:       "trash ignored",
			event:      fsnotify.Event{Name: "/refs/.trash/p1.jpg", Op: fsnotify.Remove},
			wantAction: ActionIgnore,
		},
		{
			name:       "file directly in root ignored",
			event:      fsnotify.Event{Name: "/refs/loose.jpg", Op: fsnotify.Remove},
			wantAction: ActionIgnore,
		},
		{
			name:       "outside root ignored",
			event:      fsnotify.Event{Name: "/elsewhere/Alice/p1.jpg", Op: fsnotify.Remove},
			wantAction: ActionIgnore,
		},
		{
			name:       "chmod ignored",
			event:      fsnotify.Event{Name: "/refs/Alice/p1.jpg", Op: fsnotify.Chmod},
			wantAction: ActionIgnore,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, folder := Classify(tt.event, "/refs", exts)
			if action != tt.wantAction {
				t.Errorf("expected action %d, got %d", tt.wantAction, action)
			}
			if folder != tt.wantFolder {
				t.Errorf("expected folder %q, got %q", tt.wantFolder, folder)
			}
		})
	}
}

type recorder struct {
	mu     sync.Mutex
	scopes []refcache.Scope
	got    chan struct{}
}

func (r *recorder) RequestRebuild(scope refcache.Scope) {
	r.mu.Lock()
	r.scopes = append(r.scopes, scope)
	r.mu.Unlock()
	select {
	case r.got <- struct{}{}:
	default:
	}
}

type pathLog struct {
	mu    sync.Mutex
	paths []string
}

func (p *pathLog) RemovePath(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paths = append(p.paths, path)
	return 1
}

func TestWatcher_RemovalRequestsScopedRebuild(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "Alice", "p1.jpg")
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{got: make(chan struct{}, 1)}
	thumbs := &pathLog{}
	w, err := New(root, exts, rec, nil, WithThumbnails(thumbs))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}

	select {
	case <-rec.got:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a rebuild request")
	}

	cancel()
	<-done
	w.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	names := rec.scopes[0].LabelNames()
	if len(names) != 1 || names[0] != "Alice" {
		t.Errorf("expected rebuild of Alice, got %v", names)
	}
	thumbs.mu.Lock()
	defer thumbs.mu.Unlock()
	if len(thumbs.paths) == 0 || thumbs.paths[0] != file {
		t.Errorf("expected thumbnail invalidation for %s, got %v", file, thumbs.paths)
	}
}

func TestWatcher_SymlinkedRootUsesResolvedPaths(t *testing.T) {
	realRoot, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(realRoot, "Alice", "p1.jpg")
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(t.TempDir(), "refs")
	if err := os.Symlink(realRoot, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	rec := &recorder{got: make(chan struct{}, 1)}
	thumbs := &pathLog{}
	w, err := New(link, exts, rec, nil, WithThumbnails(thumbs))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if err := os.Remove(filepath.Join(link, "Alice", "p1.jpg")); err != nil {
		t.Fatal(err)
	}

	select {
	case <-rec.got:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a rebuild request")
	}

	cancel()
	<-done
	w.Close()

	thumbs.mu.Lock()
	defer thumbs.mu.Unlock()
	if len(thumbs.paths) == 0 || thumbs.paths[0] != file {
		t.Errorf("expected thumbnail invalidation for resolved path %s, got %v", file, thumbs.paths)
	}
}

func TestWatcher_CloseEndsRun(t *testing.T) {
	w, err := New(t.TempDir(), exts, &recorder{got: make(chan struct{}, 1)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	w.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}
