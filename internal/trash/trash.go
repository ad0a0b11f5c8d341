// Package trash soft-deletes reference files and label folders so they can be restored.
package trash

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/fileutil"
	"github.com/kozaktomas/face-sorter/internal/logger"
)

const lockFileName = ".trash.lock"

// ErrNotFound is returned when a backup no longer exists
var ErrNotFound = errors.New("backup not found")

// Backup records where a soft-deleted item went
type Backup struct {
	Original string `yaml:"original" json:"original"`
	// Path is the concrete backup location; empty when the item went somewhere
	// it cannot be recovered from programmatically (e.g. a system recycle bin).
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// Recoverable reports whether the backup can be moved back
func (b Backup) Recoverable() bool {
	return b.Path != ""
}

// Trasher soft-deletes files and folders
type Trasher interface {
	TrashFile(path string) (Backup, error)
	TrashDir(path string) (Backup, error)
	// RestoreFile moves a file backup to dst without replacing anything
	RestoreFile(b Backup, dst string) error
	// RestoreDir moves a folder backup to dst, which must not exist
	RestoreDir(b Backup, dst string) error
}

// LocalTrash keeps soft-deleted items in an application folder. Names follow the
// same collision scheme as sorting (photo.jpg, photo_2.jpg, ...). A file lock on
// the folder serializes processes sharing it.
type LocalTrash struct {
	dir string
	log *zap.Logger
}

func NewLocal(dir string, log *zap.Logger) *LocalTrash {
	return &LocalTrash{dir: dir, log: logger.OrNop(log).Named("trash")}
}

// Dir returns the trash folder
func (t *LocalTrash) Dir() string {
	return t.dir
}

func (t *LocalTrash) lock() (func(), error) {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trash dir: %w", err)
	}
	l := flock.New(filepath.Join(t.dir, lockFileName))
	if err := l.Lock(); err != nil {
		return nil, fmt.Errorf("cannot lock trash dir: %w", err)
	}
	return func() { _ = l.Unlock() }, nil
}

// TrashFile moves a file into the trash
func (t *LocalTrash) TrashFile(path string) (Backup, error) {
	unlock, err := t.lock()
	if err != nil {
		return Backup{}, err
	}
	defer unlock()

	dst, err := fileutil.MoveUnique(path, t.dir, filepath.Base(path))
	if err != nil {
		return Backup{}, fmt.Errorf("failed to trash %s: %w", path, err)
	}
	t.log.Debug("file trashed", zap.String("path", path), zap.String("backup", dst))
	return Backup{Original: path, Path: dst}, nil
}

// TrashDir moves a whole folder into the trash
func (t *LocalTrash) TrashDir(path string) (Backup, error) {
	unlock, err := t.lock()
	if err != nil {
		return Backup{}, err
	}
	defer unlock()

	dst, err := fileutil.MoveDirUnique(path, t.dir, filepath.Base(path))
	if err != nil {
		return Backup{}, fmt.Errorf("failed to trash %s: %w", path, err)
	}
	t.log.Debug("folder trashed", zap.String("path", path), zap.String("backup", dst))
	return Backup{Original: path, Path: dst}, nil
}

// RestoreFile moves a trashed file to dst
func (t *LocalTrash) RestoreFile(b Backup, dst string) error {
	if !b.Recoverable() {
		return fmt.Errorf("%s: %w", b.Original, ErrNotFound)
	}
	if _, err := os.Stat(b.Path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", b.Path, ErrNotFound)
	}
	unlock, err := t.lock()
	if err != nil {
		return err
	}
	defer unlock()

	return fileutil.MoveExact(b.Path, dst)
}

// RestoreDir moves a trashed folder to dst
func (t *LocalTrash) RestoreDir(b Backup, dst string) error {
	if !b.Recoverable() {
		return fmt.Errorf("%s: %w", b.Original, ErrNotFound)
	}
	if _, err := os.Stat(b.Path); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", b.Path, ErrNotFound)
	}
	unlock, err := t.lock()
	if err != nil {
		return err
	}
	defer unlock()

	return fileutil.MoveDir(b.Path, dst)
}

var _ Trasher = (*LocalTrash)(nil)
