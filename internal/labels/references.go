package labels

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/fileutil"
	"github.com/kozaktomas/face-sorter/internal/refcache"
	"github.com/kozaktomas/face-sorter/internal/undo"
)

// AddResult reports what AddReferences did per input path
type AddResult struct {
	Added   []string // paths inside the label folder
	Skipped []string // inputs that are not images
	Errors  []error
}

// AddReferences copies images into the label folder (collision-safe) and stores
// them as references. Files already inside the folder are registered in place.
// The label is created with the default threshold when missing.
func (m *Manager) AddReferences(ctx context.Context, label string, paths []string) (*AddResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	label, err := cleanName(label)
	if err != nil {
		return nil, err
	}
	rec, err := m.ensureLabel(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare label %s: %w", label, err)
	}
	if err := os.MkdirAll(rec.FolderPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create label folder: %w", err)
	}

	result := &AddResult{}
	for _, src := range paths {
		if !m.exts.Match(src) {
			result.Skipped = append(result.Skipped, src)
			continue
		}

		dst := src
		copied := false
		if filepath.Clean(filepath.Dir(src)) != filepath.Clean(rec.FolderPath) {
			dst, err = fileutil.CopyUnique(src, rec.FolderPath, filepath.Base(src))
			if err != nil {
				m.log.Warn("failed to copy reference", zap.String("path", src), zap.Error(err))
				result.Errors = append(result.Errors, err)
				continue
			}
			copied = true
		}

		if err := m.store.InsertReference(ctx, dst, label); err != nil {
			if copied {
				_ = os.Remove(dst)
			}
			m.log.Warn("failed to store reference", zap.String("path", dst), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", src, err))
			continue
		}
		result.Added = append(result.Added, dst)
	}

	if len(result.Added) > 0 {
		m.refreshSidecar(ctx, label)
		m.requestRebuild(refcache.Labels(label))
	}
	m.log.Info("references added",
		zap.String("label", label),
		zap.Int("added", len(result.Added)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Errors)),
	)
	return result, nil
}

// ListReferences returns the references of a label ordered by path
func (m *Manager) ListReferences(ctx context.Context, label string) ([]database.ReferenceEntry, error) {
	refs, err := m.store.ListReferencesByLabel(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}
	return refs, nil
}

// DeleteResult reports what DeleteReferences did per input path
type DeleteResult struct {
	Deleted []string // soft-deleted and recorded for undo
	Missing []string // file was already gone; only the row was removed
	Failed  []string // left untouched
	Errors  []error
	Record  *undo.DeleteRefs
}

// DeleteReferences soft-deletes reference files of one label. A file that cannot
// be moved to the trash keeps both its file and its row and is not recorded.
func (m *Manager) DeleteReferences(ctx context.Context, label string, paths []string) (*DeleteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	refs, err := m.store.ListReferencesByLabel(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}
	known := make(map[string]bool, len(refs))
	for _, r := range refs {
		known[r.Path] = true
	}

	result := &DeleteResult{}
	rec := &undo.DeleteRefs{Label: label, CreatedAt: m.now().UTC()}
	fail := func(path string, err error) {
		m.log.Warn("reference not deleted", zap.String("label", label), zap.String("path", path), zap.Error(err))
		result.Failed = append(result.Failed, path)
		result.Errors = append(result.Errors, fmt.Errorf("%s: %w", path, err))
	}

	for _, path := range paths {
		if !known[path] {
			fail(path, errors.New("not a reference of this label"))
			continue
		}

		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			if err := m.store.DeleteReference(ctx, path); err != nil {
				fail(path, err)
				continue
			}
			result.Missing = append(result.Missing, path)
			continue
		}

		backup, err := m.trash.TrashFile(path)
		if err != nil {
			fail(path, err)
			continue
		}
		if err := m.store.DeleteReference(ctx, path); err != nil {
			// Keep file and row consistent: put the file back.
			if rerr := m.trash.RestoreFile(backup, path); rerr != nil {
				m.log.Error("failed to restore file after store error", zap.String("path", path), zap.Error(rerr))
			}
			fail(path, err)
			continue
		}
		rec.Items = append(rec.Items, undo.RefBackup{Path: path, Backup: backup})
		result.Deleted = append(result.Deleted, path)
	}

	if len(rec.Items) > 0 {
		m.pushUndo(rec)
		result.Record = rec
	}
	if len(result.Deleted)+len(result.Missing) > 0 {
		m.refreshSidecar(ctx, label)
		m.requestRebuild(refcache.Labels(label))
	}

	m.log.Info("references deleted",
		zap.String("label", label),
		zap.Int("deleted", len(result.Deleted)),
		zap.Int("missing", len(result.Missing)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// Purge removes reference rows whose files are gone and schedules a full rebuild
func (m *Manager) Purge(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.store.PurgeMissingReferences(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to purge references: %w", err)
	}
	if n > 0 {
		records, err := m.store.ListLabels(ctx)
		if err == nil {
			for _, rec := range records {
				m.refreshSidecar(ctx, rec.Label)
			}
		}
		m.requestRebuild(refcache.AllLabels())
	}
	m.log.Info("missing references purged", zap.Int("count", n))
	return n, nil
}

// ScanResult reports a reference root import
type ScanResult struct {
	Labels     []string
	References int
}

// ScanRoot registers every sub-folder of the reference root as a label and every
// image inside it as a reference. Existing rows are kept.
func (m *Manager) ScanRoot(ctx context.Context) (*ScanResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference root: %w", err)
	}

	result := &ScanResult{}
	var changed []string
	for _, e := range entries {
		if !e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		label := e.Name()
		if _, err := m.ensureLabel(ctx, label); err != nil {
			return result, fmt.Errorf("failed to prepare label %s: %w", label, err)
		}

		existing, err := m.store.ListReferencesByLabel(ctx, label)
		if err != nil {
			return result, err
		}
		known := make(map[string]bool, len(existing))
		for _, r := range existing {
			known[r.Path] = true
		}

		files, err := fileutil.ListImages(filepath.Join(m.root, e.Name()), m.exts)
		if err != nil {
			m.log.Warn("failed to scan label folder", zap.String("label", label), zap.Error(err))
			continue
		}
		added := 0
		for _, f := range files {
			if known[f] {
				continue
			}
			if err := m.store.InsertReference(ctx, f, label); err != nil {
				m.log.Warn("failed to store reference", zap.String("path", f), zap.Error(err))
				continue
			}
			added++
		}
		result.Labels = append(result.Labels, label)
		result.References += added
		if added > 0 {
			changed = append(changed, label)
		}
		m.refreshSidecar(ctx, label)
	}

	m.requestRebuild(refcache.Labels(changed...))
	return result, nil
}
