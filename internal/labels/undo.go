package labels

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/fileutil"
	"github.com/kozaktomas/face-sorter/internal/refcache"
	"github.com/kozaktomas/face-sorter/internal/trash"
	"github.com/kozaktomas/face-sorter/internal/undo"
)

// ErrUndoConflict marks a revert that changed nothing and can be retried later
var ErrUndoConflict = errors.New("undo conflicts with the current state")

// Undo reverts the most recent record. A record whose revert conflicts with the
// current state stays on the stack; any other outcome consumes it. Partial
// failures are joined into the returned error.
func (m *Manager) Undo(ctx context.Context) (undo.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.undo == nil {
		return nil, undo.ErrEmpty
	}
	rec, err := m.undo.Peek()
	if err != nil {
		return nil, err
	}

	err = m.revert(ctx, rec)
	if errors.Is(err, ErrUndoConflict) {
		return rec, err
	}
	if _, perr := m.undo.Pop(); perr != nil {
		m.log.Warn("failed to pop undo record", zap.Error(perr))
	}
	if err != nil {
		m.log.Warn("undo finished with errors", zap.String("action", rec.Summary()), zap.Error(err))
		return rec, err
	}

	m.log.Info("undo completed", zap.String("action", rec.Summary()))
	return rec, nil
}

func (m *Manager) revert(ctx context.Context, rec undo.Record) error {
	switch r := rec.(type) {
	case *undo.DeleteRefs:
		return m.revertDeleteRefs(ctx, r)
	case *undo.DeleteLabel:
		return m.revertDeleteLabel(ctx, r)
	case *undo.RenameLabel:
		return m.revertRenameLabel(ctx, r)
	default:
		return fmt.Errorf("%T: %w", rec, undo.ErrNotRevertible)
	}
}

// revertDeleteRefs moves each backup back and reinserts its row. Items whose
// backup is gone are skipped.
func (m *Manager) revertDeleteRefs(ctx context.Context, r *undo.DeleteRefs) error {
	if _, err := m.ensureLabel(ctx, r.Label); err != nil {
		return fmt.Errorf("failed to prepare label %s: %w", r.Label, err)
	}

	restored, errs := m.restoreRefs(ctx, r.Label, r.Items)

	m.refreshSidecar(ctx, r.Label)
	m.requestRebuild(refcache.Labels(r.Label))
	m.log.Info("references restored", zap.String("label", r.Label), zap.Int("restored", restored))
	return errors.Join(errs...)
}

// restoreRefs puts trashed reference files back and registers them under label
func (m *Manager) restoreRefs(ctx context.Context, label string, items []undo.RefBackup) (int, []error) {
	var errs []error
	restored := 0
	for _, item := range items {
		err := m.trash.RestoreFile(item.Backup, item.Path)
		switch {
		case errors.Is(err, trash.ErrNotFound):
			m.log.Warn("backup gone, skipping", zap.String("path", item.Path))
			continue
		case errors.Is(err, fileutil.ErrDestinationExists):
			m.log.Warn("file already present, keeping it", zap.String("path", item.Path))
		case err != nil:
			errs = append(errs, fmt.Errorf("restore %s: %w", item.Path, err))
			continue
		}

		if err := m.store.InsertReference(ctx, item.Path, label); err != nil {
			errs = append(errs, fmt.Errorf("reinsert %s: %w", item.Path, err))
			continue
		}
		restored++
	}
	return restored, errs
}

// revertDeleteLabel needs a concrete backup of the folder
func (m *Manager) revertDeleteLabel(ctx context.Context, r *undo.DeleteLabel) error {
	if !r.Backup.Recoverable() {
		return fmt.Errorf("label %q was not captured to a recoverable location: %w", r.Label, undo.ErrNotRevertible)
	}
	if _, err := m.store.GetLabel(ctx, r.Label); err == nil {
		return fmt.Errorf("%s: %w: %w", r.Label, ErrLabelExists, ErrUndoConflict)
	}

	// An empty placeholder folder may have been recreated meanwhile.
	if err := fileutil.RemoveIfEmpty(r.Folder); err != nil {
		return fmt.Errorf("%s: %w", r.Folder, ErrUndoConflict)
	}
	if err := m.trash.RestoreDir(r.Backup, r.Folder); err != nil {
		if errors.Is(err, trash.ErrNotFound) {
			return fmt.Errorf("backup of %q is gone: %w", r.Label, undo.ErrNotRevertible)
		}
		if errors.Is(err, fileutil.ErrDestinationExists) {
			return fmt.Errorf("%s: %w", r.Folder, ErrUndoConflict)
		}
		return fmt.Errorf("failed to restore label folder: %w", err)
	}

	if err := m.store.InsertOrUpdateLabel(ctx, r.Label, r.Folder, r.Threshold); err != nil {
		return fmt.Errorf("failed to restore label record: %w", err)
	}
	m.thresholds.Delete(r.Label)

	var errs []error
	files, err := fileutil.ListImages(r.Folder, m.exts)
	if err != nil {
		errs = append(errs, err)
	}
	for _, f := range files {
		if err := m.store.InsertReference(ctx, f, r.Label); err != nil {
			errs = append(errs, fmt.Errorf("reinsert %s: %w", f, err))
		}
	}

	restored, rerrs := m.restoreRefs(ctx, r.Label, r.Outside)
	errs = append(errs, rerrs...)

	m.refreshSidecar(ctx, r.Label)
	m.requestRebuild(refcache.Labels(r.Label))
	m.log.Info("label restored", zap.String("label", r.Label), zap.Int("references", len(files)+restored))
	return errors.Join(errs...)
}

// revertRenameLabel moves files back, restores the old label and drops the new
// label once nothing references it.
func (m *Manager) revertRenameLabel(ctx context.Context, r *undo.RenameLabel) error {
	if _, err := m.store.GetLabel(ctx, r.OldLabel); err == nil {
		return fmt.Errorf("%s: %w: %w", r.OldLabel, ErrLabelExists, ErrUndoConflict)
	}

	if err := os.MkdirAll(r.OldFolder, 0o755); err != nil {
		return fmt.Errorf("failed to recreate label folder: %w", err)
	}
	if err := m.store.InsertOrUpdateLabel(ctx, r.OldLabel, r.OldFolder, r.Threshold); err != nil {
		return fmt.Errorf("failed to restore label record: %w", err)
	}

	var errs []error
	for _, f := range r.Files {
		if f.From != f.To {
			if err := fileutil.MoveExact(f.From, f.To); err != nil {
				errs = append(errs, err)
				continue
			}
			if err := m.store.DeleteReference(ctx, f.From); err != nil {
				errs = append(errs, err)
			}
		}
		if err := m.store.InsertReference(ctx, f.To, r.OldLabel); err != nil {
			errs = append(errs, fmt.Errorf("reinsert %s: %w", f.To, err))
		}
	}

	remaining, err := m.store.ListReferencesByLabel(ctx, r.NewLabel)
	switch {
	case err != nil:
		errs = append(errs, err)
	case len(remaining) == 0:
		if err := m.store.DeleteLabel(ctx, r.NewLabel); err != nil {
			errs = append(errs, err)
		}
		if filepath.Clean(r.NewFolder) != filepath.Clean(r.OldFolder) {
			removeSidecar(r.NewFolder)
			if err := fileutil.RemoveIfEmpty(r.NewFolder); err != nil {
				m.log.Debug("new label folder kept", zap.String("folder", r.NewFolder), zap.Error(err))
			}
		}
	default:
		m.log.Warn("renamed label still has references, keeping it",
			zap.String("label", r.NewLabel), zap.Int("references", len(remaining)))
		m.refreshSidecar(ctx, r.NewLabel)
	}
	m.thresholds.Delete(r.OldLabel)
	m.thresholds.Delete(r.NewLabel)

	m.refreshSidecar(ctx, r.OldLabel)
	m.requestRebuild(refcache.Labels(r.OldLabel, r.NewLabel))
	return errors.Join(errs...)
}
