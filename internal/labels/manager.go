// Package labels manages label folders and their reference images. Every
// destructive change soft-deletes first, is recorded for undo, and asks for a
// rebuild of the affected labels only.
package labels

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/facematch"
	"github.com/kozaktomas/face-sorter/internal/fileutil"
	"github.com/kozaktomas/face-sorter/internal/logger"
	"github.com/kozaktomas/face-sorter/internal/refcache"
	"github.com/kozaktomas/face-sorter/internal/trash"
	"github.com/kozaktomas/face-sorter/internal/undo"
)

// DefaultThreshold is the threshold given to new labels
const DefaultThreshold = 0.3

var (
	ErrLabelExists      = errors.New("label already exists")
	ErrLabelNotFound    = errors.New("label not found")
	ErrInvalidLabel     = errors.New("invalid label name")
	ErrInvalidThreshold = errors.New("threshold must be between 0 and 1")
)

// Store is the part of the reference store the manager mutates
type Store interface {
	database.ReferenceWriter
	database.LabelWriter
}

// RebuildRequester receives scoped rebuild requests (the rebuild scheduler)
type RebuildRequester interface {
	RequestRebuild(scope refcache.Scope)
}

type Manager struct {
	mu sync.Mutex // serializes mutations

	store            Store
	trash            trash.Trasher
	undo             *undo.Stack
	rebuild          RebuildRequester
	root             string
	exts             fileutil.Extensions
	defaultThreshold float64
	thresholds       *cache.Cache
	now              func() time.Time
	log              *zap.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithDefaultThreshold sets the threshold for new labels
func WithDefaultThreshold(t float64) Option {
	return func(m *Manager) { m.defaultThreshold = t }
}

// WithThresholdTTL sets how long looked-up thresholds are cached
func WithThresholdTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.thresholds = cache.New(ttl, 0) }
}

func NewManager(store Store, tr trash.Trasher, stack *undo.Stack, rebuild RebuildRequester, root string, exts fileutil.Extensions, log *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:            store,
		trash:            tr,
		undo:             stack,
		rebuild:          rebuild,
		root:             root,
		exts:             exts,
		defaultThreshold: DefaultThreshold,
		// No janitor goroutine; expired items are dropped on access.
		thresholds: cache.New(time.Minute, 0),
		now:        time.Now,
		log:        logger.OrNop(log).Named("labels"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Root returns the reference root folder
func (m *Manager) Root() string {
	return m.root
}

// UndoStack exposes the history for listing
func (m *Manager) UndoStack() *undo.Stack {
	return m.undo
}

// Summary is a label with its reference count
type Summary struct {
	database.LabelRecord
	References int
}

// FolderFor returns the folder a label lives in under the reference root
func (m *Manager) FolderFor(label string) string {
	return filepath.Join(m.root, facematch.FolderName(label))
}

// LabelForFolder maps a folder name under the reference root back to its label.
// Unknown folders map to themselves, which is how ScanRoot names them.
func (m *Manager) LabelForFolder(folder string) string {
	records, err := m.store.ListLabels(context.Background())
	if err != nil {
		m.log.Debug("failed to list labels", zap.Error(err))
		return folder
	}
	for _, rec := range records {
		if filepath.Base(rec.FolderPath) == folder {
			return rec.Label
		}
	}
	return folder
}

// CreateLabel registers a new label with the default threshold and creates its folder
func (m *Manager) CreateLabel(ctx context.Context, name string) (*database.LabelRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	if err := m.ensureFree(ctx, name, ""); err != nil {
		return nil, err
	}

	folder := m.FolderFor(name)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create label folder: %w", err)
	}
	if err := m.store.InsertOrUpdateLabel(ctx, name, folder, m.defaultThreshold); err != nil {
		return nil, fmt.Errorf("failed to store label: %w", err)
	}
	m.refreshSidecar(ctx, name)

	m.log.Info("label created", zap.String("label", name), zap.String("folder", folder))
	return &database.LabelRecord{Label: name, FolderPath: folder, Threshold: m.defaultThreshold}, nil
}

// ListLabels returns every label with its reference count, ordered by name
func (m *Manager) ListLabels(ctx context.Context) ([]Summary, error) {
	records, err := m.store.ListLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	refs, err := m.store.ListReferences(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}
	grouped := database.GroupByLabel(refs)

	out := make([]Summary, 0, len(records))
	for _, rec := range records {
		out = append(out, Summary{LabelRecord: rec, References: len(grouped[rec.Label])})
	}
	return out, nil
}

// SetThreshold validates and stores a label's threshold. The cache is not
// rebuilt: thresholds are applied at match time.
func (m *Manager) SetThreshold(ctx context.Context, label string, threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("%v: %w", threshold, ErrInvalidThreshold)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SetThreshold(ctx, label, threshold); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%s: %w", label, ErrLabelNotFound)
		}
		return fmt.Errorf("failed to set threshold: %w", err)
	}
	m.thresholds.Delete(label)
	m.refreshSidecar(ctx, label)

	m.log.Info("threshold updated", zap.String("label", label), zap.Float64("threshold", threshold))
	return nil
}

// Threshold returns the label's threshold, or the default for unknown labels
func (m *Manager) Threshold(ctx context.Context, label string) float64 {
	if v, ok := m.thresholds.Get(label); ok {
		return v.(float64)
	}

	t, err := m.store.GetThreshold(ctx, label)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			m.log.Warn("threshold lookup failed, using default", zap.String("label", label), zap.Error(err))
			return m.defaultThreshold
		}
		t = m.defaultThreshold
	}
	m.thresholds.SetDefault(label, t)
	return t
}

// ensureFree fails when another label already uses name (ignoring case and
// diacritics) or the folder name would resolve to (e.g. "a:b" and "a_b").
// except is a label allowed to match, used by renames.
func (m *Manager) ensureFree(ctx context.Context, name, except string) error {
	records, err := m.store.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list labels: %w", err)
	}
	folder := filepath.Clean(m.FolderFor(name))
	for _, rec := range records {
		if rec.Label == except {
			continue
		}
		if facematch.SameLabel(rec.Label, name) {
			return fmt.Errorf("%s: %w", name, ErrLabelExists)
		}
		if strings.EqualFold(filepath.Clean(rec.FolderPath), folder) {
			return fmt.Errorf("%s: folder %s belongs to %s: %w", name, folder, rec.Label, ErrLabelExists)
		}
	}
	return nil
}

// ensureLabel makes sure a label record exists, creating it with defaults
func (m *Manager) ensureLabel(ctx context.Context, label string) (*database.LabelRecord, error) {
	rec, err := m.store.GetLabel(ctx, label)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}
	folder := m.FolderFor(label)
	if err := m.store.InsertOrUpdateLabel(ctx, label, folder, m.defaultThreshold); err != nil {
		return nil, err
	}
	return &database.LabelRecord{Label: label, FolderPath: folder, Threshold: m.defaultThreshold}, nil
}

func (m *Manager) requestRebuild(scope refcache.Scope) {
	if m.rebuild != nil && !scope.IsEmpty() {
		m.rebuild.RequestRebuild(scope)
	}
}

func (m *Manager) pushUndo(rec undo.Record) {
	if m.undo == nil {
		return
	}
	if err := m.undo.Push(rec); err != nil {
		m.log.Warn("failed to persist undo history", zap.Error(err))
	}
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidLabel)
	}
	return name, nil
}
