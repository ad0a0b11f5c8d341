package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// MoveUnique moves src into dir under name, or name_2, name_3, ... if taken.
// Existing files are never replaced. Returns the final path.
func MoveUnique(src, dir, name string) (string, error) {
	dst, err := placeUnique(dir, name, func(dst string) error { return moveNoReplace(src, dst) })
	if err != nil {
		return "", fmt.Errorf("move %s to %s: %w", src, dir, err)
	}
	return dst, nil
}

// CopyUnique copies src into dir under a collision-safe variant of name.
// The data is written to a temporary file first, so a destination is never half-written.
func CopyUnique(src, dir, name string) (string, error) {
	dst, err := placeUnique(dir, name, func(dst string) error { return copyNoReplace(src, dst) })
	if err != nil {
		return "", fmt.Errorf("copy %s to %s: %w", src, dir, err)
	}
	return dst, nil
}

// MoveExact moves src to dst, failing with ErrDestinationExists instead of replacing
func MoveExact(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", dst, err)
	}
	if Exists(dst) {
		return fmt.Errorf("%s: %w", dst, ErrDestinationExists)
	}
	if err := moveNoReplace(src, dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s: %w", dst, ErrDestinationExists)
		}
		return fmt.Errorf("move %s to %s: %w", src, dst, err)
	}
	return nil
}

// moveNoReplace hard-links src to dst (which fails if dst exists) and removes src.
// Where links are not possible (other device, unsupported filesystem) it copies instead.
func moveNoReplace(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return err
	}

	err := os.Link(src, dst)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrExist):
		return err
	default:
		if err := copyNoReplace(src, dst); err != nil {
			return err
		}
	}

	if err := os.Remove(src); err != nil {
		// Keep exactly one copy: undo the placement and report.
		os.Remove(dst)
		return fmt.Errorf("remove source: %w", err)
	}
	return nil
}

// copyNoReplace writes src into a temp file next to dst and publishes it under dst
func copyNoReplace(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".partial-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		return err
	}

	if err := os.Link(tmpName, dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		// No hard links here; fall back to a checked rename.
		if Exists(dst) {
			return fs.ErrExist
		}
		return os.Rename(tmpName, dst)
	}
	return nil
}

// MoveDir moves a directory tree to dst, which must not exist.
// Falls back to copy and delete across devices.
func MoveDir(src, dst string) error {
	if Exists(dst) {
		return fmt.Errorf("%s: %w", dst, ErrDestinationExists)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", dst, err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("move %s to %s: %w", src, dst, err)
	}

	if err := copyTree(src, dst); err != nil {
		os.RemoveAll(dst)
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := os.RemoveAll(src); err != nil {
		return fmt.Errorf("remove %s after copy: %w", src, err)
	}
	return nil
}

// MoveDirUnique moves src into parent under a collision-safe variant of name
func MoveDirUnique(src, parent, name string) (string, error) {
	dst, err := placeUnique(parent, name, func(dst string) error {
		err := MoveDir(src, dst)
		if errors.Is(err, ErrDestinationExists) {
			return fs.ErrExist
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return dst, nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyNoReplace(path, target)
	})
}

// RemoveIfEmpty deletes dir when it has no entries left; missing dirs are fine
func RemoveIfEmpty(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return nil
	}
	return os.Remove(dir)
}
