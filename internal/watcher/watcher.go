// Package watcher turns file system changes under the reference root into
// scoped rebuild requests.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/fileutil"
	"github.com/kozaktomas/face-sorter/internal/logger"
	"github.com/kozaktomas/face-sorter/internal/refcache"
)

// RebuildRequester receives scoped rebuild requests
type RebuildRequester interface {
	RequestRebuild(scope refcache.Scope)
}

// PathInvalidator drops cached data for a path (the thumbnail cache)
type PathInvalidator interface {
	RemovePath(path string) int
}

// Action is what an event means for the caches
type Action int

// ActionRebuild means a reference image disappeared or was renamed,
// ActionInvalidate that an image changed in place.
const (
	ActionIgnore Action = iota
	ActionRebuild
	ActionInvalidate
	ActionWatchDir
)

type Watcher struct {
	root    string
	exts    fileutil.Extensions
	rebuild RebuildRequester
	thumbs  PathInvalidator
	resolve func(folder string) string
	fsw     *fsnotify.Watcher
	log     *zap.Logger
}

// Option configures a Watcher
type Option func(*Watcher)

// WithThumbnails invalidates thumbnails of changed files
func WithThumbnails(p PathInvalidator) Option {
	return func(w *Watcher) { w.thumbs = p }
}

// WithLabelResolver maps a label folder name to its label; the default is the name itself
func WithLabelResolver(fn func(folder string) string) Option {
	return func(w *Watcher) { w.resolve = fn }
}

// New watches root and every non-hidden folder below it. A symlinked root is
// resolved first so event paths match the resolved paths thumbnails are cached under.
func New(root string, exts fileutil.Extensions, rebuild RebuildRequester, log *zap.Logger, opts ...Option) (*Watcher, error) {
	root = filepath.Clean(root)
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		root:    root,
		exts:    exts,
		rebuild: rebuild,
		resolve: func(folder string) string { return folder },
		fsw:     fsw,
		log:     logger.OrNop(log).Named("watcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := addWatchDirs(fsw, w.root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("add watch dirs: %w", err)
	}
	return w, nil
}

// Run handles events until ctx is done or the watcher is closed
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("watching reference root", zap.String("root", w.root))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

// Close stops watching; Run returns afterwards
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) handle(event fsnotify.Event) {
	action, folder := Classify(event, w.root, w.exts)
	switch action {
	case ActionRebuild:
		label := w.resolve(folder)
		w.log.Debug("reference changed on disk", zap.String("path", event.Name), zap.String("label", label))
		if w.thumbs != nil {
			w.thumbs.RemovePath(event.Name)
		}
		w.rebuild.RequestRebuild(refcache.Labels(label))
	case ActionInvalidate:
		if w.thumbs != nil {
			w.thumbs.RemovePath(event.Name)
		}
	case ActionWatchDir:
		if err := addWatchDirs(w.fsw, event.Name); err != nil {
			w.log.Warn("failed to watch new folder", zap.String("path", event.Name), zap.Error(err))
		}
	}
}

// Classify decides what an event means. folder is the label folder name (the
// first path element under root) for image events.
func Classify(event fsnotify.Event, root string, exts fileutil.Extensions) (Action, string) {
	rel, err := filepath.Rel(root, event.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ActionIgnore, ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, p := range parts {
		if strings.HasPrefix(p, ".") {
			return ActionIgnore, ""
		}
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			return ActionWatchDir, ""
		}
	}

	if len(parts) < 2 || !exts.Match(event.Name) {
		return ActionIgnore, ""
	}
	folder := parts[0]

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		return ActionRebuild, folder
	case event.Has(fsnotify.Write):
		return ActionInvalidate, folder
	}
	return ActionIgnore, ""
}

func addWatchDirs(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
