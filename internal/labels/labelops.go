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
	"github.com/kozaktomas/face-sorter/internal/trash"
	"github.com/kozaktomas/face-sorter/internal/undo"
)

func (m *Manager) getLabel(ctx context.Context, label string) (*database.LabelRecord, error) {
	rec, err := m.store.GetLabel(ctx, label)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", label, ErrLabelNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load label: %w", err)
	}
	return rec, nil
}

// DeleteLabel soft-deletes the label folder and any reference stored outside
// it, then removes the label and its references from the store. If anything
// cannot be trashed nothing changes.
func (m *Manager) DeleteLabel(ctx context.Context, label string) (*undo.DeleteLabel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.getLabel(ctx, label)
	if err != nil {
		return nil, err
	}

	refs, err := m.store.ListReferencesByLabel(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}
	outside, err := m.trashOutside(refs, rec.FolderPath)
	if err != nil {
		return nil, err
	}

	var backup trash.Backup
	if _, err := os.Stat(rec.FolderPath); err == nil {
		backup, err = m.trash.TrashDir(rec.FolderPath)
		if err != nil {
			m.restoreOutside(outside)
			return nil, fmt.Errorf("failed to move label folder to trash: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		m.restoreOutside(outside)
		return nil, err
	}

	if err := m.store.DeleteLabel(ctx, label); err != nil {
		if backup.Recoverable() {
			if rerr := m.trash.RestoreDir(backup, rec.FolderPath); rerr != nil {
				m.log.Error("failed to restore label folder after store error", zap.String("label", label), zap.Error(rerr))
			}
		}
		m.restoreOutside(outside)
		return nil, fmt.Errorf("failed to delete label: %w", err)
	}
	m.thresholds.Delete(label)

	undoRec := &undo.DeleteLabel{
		Label:     label,
		Folder:    rec.FolderPath,
		Threshold: rec.Threshold,
		Backup:    backup,
		Outside:   outside,
		CreatedAt: m.now().UTC(),
	}
	m.pushUndo(undoRec)
	m.requestRebuild(refcache.Labels(label))

	m.log.Info("label deleted",
		zap.String("label", label),
		zap.String("backup", backup.Path),
		zap.Int("outside_refs", len(outside)),
	)
	return undoRec, nil
}

// trashOutside trashes the references that do not live under folder (left
// behind by a rename that relabeled them in place). Files already gone are
// skipped. On failure everything trashed so far is put back.
func (m *Manager) trashOutside(refs []database.ReferenceEntry, folder string) ([]undo.RefBackup, error) {
	var out []undo.RefBackup
	for _, ref := range refs {
		if fileutil.IsWithin(ref.Path, folder) {
			continue
		}
		if _, err := os.Stat(ref.Path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		backup, err := m.trash.TrashFile(ref.Path)
		if err != nil {
			m.restoreOutside(out)
			return nil, fmt.Errorf("failed to move reference %s to trash: %w", ref.Path, err)
		}
		out = append(out, undo.RefBackup{Path: ref.Path, Backup: backup})
	}
	return out, nil
}

func (m *Manager) restoreOutside(items []undo.RefBackup) {
	for _, item := range items {
		if err := m.trash.RestoreFile(item.Backup, item.Path); err != nil {
			m.log.Error("failed to restore reference", zap.String("path", item.Path), zap.Error(err))
		}
	}
}

// RenameLabel gives a label a new name and folder. References inside the old
// folder move to the new one; references stored elsewhere are relabeled in place.
func (m *Manager) RenameLabel(ctx context.Context, oldLabel, newLabel string) (*undo.RenameLabel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	newLabel, err := cleanName(newLabel)
	if err != nil {
		return nil, err
	}
	if newLabel == oldLabel {
		return nil, fmt.Errorf("%q: %w", newLabel, ErrInvalidLabel)
	}
	rec, err := m.getLabel(ctx, oldLabel)
	if err != nil {
		return nil, err
	}
	if err := m.ensureFree(ctx, newLabel, oldLabel); err != nil {
		return nil, err
	}

	refs, err := m.store.ListReferencesByLabel(ctx, oldLabel)
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}

	newFolder := m.FolderFor(newLabel)
	// "a:b" and "a_b" share a folder; only the label changes then
	sameFolder := filepath.Clean(newFolder) == filepath.Clean(rec.FolderPath)
	if err := os.MkdirAll(newFolder, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create label folder: %w", err)
	}
	if err := m.store.InsertOrUpdateLabel(ctx, newLabel, newFolder, rec.Threshold); err != nil {
		return nil, fmt.Errorf("failed to store label: %w", err)
	}

	undoRec := &undo.RenameLabel{
		OldLabel:  oldLabel,
		NewLabel:  newLabel,
		OldFolder: rec.FolderPath,
		NewFolder: newFolder,
		Threshold: rec.Threshold,
		CreatedAt: m.now().UTC(),
	}

	for _, ref := range refs {
		current := ref.Path
		if !sameFolder && filepath.Clean(filepath.Dir(ref.Path)) == filepath.Clean(rec.FolderPath) {
			moved, err := fileutil.MoveUnique(ref.Path, newFolder, filepath.Base(ref.Path))
			if err != nil {
				m.log.Warn("failed to move reference, relabeling in place", zap.String("path", ref.Path), zap.Error(err))
			} else {
				current = moved
			}
		}

		if current != ref.Path {
			if err := m.store.DeleteReference(ctx, ref.Path); err != nil {
				m.log.Warn("failed to remove old reference row", zap.String("path", ref.Path), zap.Error(err))
			}
		}
		if err := m.store.InsertReference(ctx, current, newLabel); err != nil {
			m.log.Warn("failed to store renamed reference", zap.String("path", current), zap.Error(err))
		}
		undoRec.Files = append(undoRec.Files, undo.MovedFile{From: current, To: ref.Path})
	}

	if err := m.store.DeleteLabel(ctx, oldLabel); err != nil {
		m.log.Warn("failed to delete old label record", zap.String("label", oldLabel), zap.Error(err))
	}
	m.thresholds.Delete(oldLabel)
	m.thresholds.Delete(newLabel)

	if !sameFolder {
		removeSidecar(rec.FolderPath)
		if err := fileutil.RemoveIfEmpty(rec.FolderPath); err != nil {
			m.log.Debug("old label folder kept", zap.String("folder", rec.FolderPath), zap.Error(err))
		}
	}
	m.refreshSidecar(ctx, newLabel)

	m.pushUndo(undoRec)
	m.requestRebuild(refcache.Labels(oldLabel, newLabel))

	m.log.Info("label renamed",
		zap.String("old", oldLabel),
		zap.String("new", newLabel),
		zap.Int("files", len(undoRec.Files)),
	)
	return undoRec, nil
}
