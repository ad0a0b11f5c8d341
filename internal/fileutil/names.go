// Package fileutil provides collision-safe file placement shared by the sorter,
// the trash and the label manager.
package fileutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// maxCandidates bounds the name_N search
const maxCandidates = 100000

// ErrDestinationExists is returned when a write would replace an existing file
var ErrDestinationExists = errors.New("destination already exists")

// CandidateName returns the n-th collision-safe variant of name:
// 1 -> "photo.jpg", 2 -> "photo_2.jpg", 3 -> "photo_3.jpg", ...
func CandidateName(name string, n int) string {
	if n <= 1 {
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return base + "_" + strconv.Itoa(n) + ext
}

// Exists reports whether path exists (without following a final symlink)
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// FreePath returns the first candidate path in dir that does not exist yet.
// Placement helpers re-check at write time, so this is advisory.
func FreePath(dir, name string) string {
	for n := 1; n < maxCandidates; n++ {
		p := filepath.Join(dir, CandidateName(name, n))
		if !Exists(p) {
			return p
		}
	}
	return filepath.Join(dir, CandidateName(name, maxCandidates))
}

// placeUnique tries place(dst) for each free candidate until one succeeds
// without hitting an existing destination.
func placeUnique(dir, name string, place func(dst string) error) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	for n := 1; n < maxCandidates; n++ {
		dst := filepath.Join(dir, CandidateName(name, n))
		if Exists(dst) {
			continue
		}
		err := place(dst)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		return dst, nil
	}
	return "", errors.New("no free file name for " + name)
}
