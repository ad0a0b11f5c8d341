package database

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested label or reference does not exist
var ErrNotFound = errors.New("not found")

// ReferenceEntry is one reference image assigned to a label
type ReferenceEntry struct {
	ID        int64
	Label     string
	Path      string
	CreatedAt time.Time
}

// LabelRecord holds the per-label folder and matching threshold
type LabelRecord struct {
	Label      string
	FolderPath string
	Threshold  float64
}

// MatchRecord is one row of the append-only match audit log
type MatchRecord struct {
	ID           int64
	Filename     string
	MatchedLabel string
	Confidence   float64
	Mode         string
	Timestamp    time.Time
}

// GroupByLabel groups reference entries by label, preserving input order within a label
func GroupByLabel(refs []ReferenceEntry) map[string][]ReferenceEntry {
	grouped := make(map[string][]ReferenceEntry)
	for _, ref := range refs {
		grouped[ref.Label] = append(grouped[ref.Label], ref)
	}
	return grouped
}
