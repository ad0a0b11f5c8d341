package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// MissingReferences returns the references whose file no longer exists on disk
func MissingReferences(refs []ReferenceEntry) []ReferenceEntry {
	var missing []ReferenceEntry
	for _, ref := range refs {
		if _, err := os.Stat(ref.Path); errors.Is(err, fs.ErrNotExist) {
			missing = append(missing, ref)
		}
	}
	return missing
}

// PurgeMissing deletes every reference whose file is gone, using the writer's own primitives.
// Backends implement PurgeMissingReferences on top of it.
func PurgeMissing(ctx context.Context, refs []ReferenceEntry, del func(ctx context.Context, path string) error) (int, error) {
	purged := 0
	for _, ref := range MissingReferences(refs) {
		if err := del(ctx, ref.Path); err != nil {
			return purged, fmt.Errorf("delete missing reference %s: %w", ref.Path, err)
		}
		purged++
	}
	return purged, nil
}
