package fileutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extensions is a case-insensitive set of file extensions including the dot
type Extensions map[string]struct{}

// NewExtensions builds a set from a list such as [".jpg", ".png"]
func NewExtensions(exts []string) Extensions {
	set := make(Extensions, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return set
}

// Match reports whether path has one of the extensions
func (e Extensions) Match(path string) bool {
	_, ok := e[strings.ToLower(filepath.Ext(path))]
	return ok
}

// IsWithin reports whether path is dir itself or lies below it (lexically)
func IsWithin(path, dir string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ListImages walks root recursively and returns matching files sorted by path.
// Directories listed in skip (and everything under them) are not descended into.
func ListImages(root string, exts Extensions, skip ...string) ([]string, error) {
	skipSet := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		if s == "" {
			continue
		}
		if abs, err := filepath.Abs(s); err == nil {
			skipSet[abs] = struct{}{}
		}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root {
				if abs, err := filepath.Abs(path); err == nil {
					if _, ok := skipSet[abs]; ok {
						return filepath.SkipDir
					}
				}
			}
			return nil
		}
		if d.Type().IsRegular() && exts.Match(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ListImagesFlat returns matching files directly inside dir, sorted by name
func ListImagesFlat(dir string, exts Extensions) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && exts.Match(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
