package database

import (
	"context"
)

// ReferenceReader provides read-only access to reference rows
type ReferenceReader interface {
	// ListReferences returns every reference ordered by label and path
	ListReferences(ctx context.Context) ([]ReferenceEntry, error)
	// ListReferencesByLabel returns the references of one label ordered by path
	ListReferencesByLabel(ctx context.Context, label string) ([]ReferenceEntry, error)
}

// ReferenceWriter provides write access to reference rows
type ReferenceWriter interface {
	ReferenceReader

	// InsertReference stores a reference, relabeling it when the path already exists
	InsertReference(ctx context.Context, path, label string) error
	// DeleteReference removes the reference with the given path (no-op when absent)
	DeleteReference(ctx context.Context, path string) error
	// PurgeMissingReferences deletes rows whose file no longer exists and returns how many were removed
	PurgeMissingReferences(ctx context.Context) (int, error)
}

// LabelReader provides read-only access to label records
type LabelReader interface {
	// GetLabel returns the label record or ErrNotFound
	GetLabel(ctx context.Context, label string) (*LabelRecord, error)
	// ListLabels returns every label ordered by name
	ListLabels(ctx context.Context) ([]LabelRecord, error)
	// GetThreshold returns the label's threshold or ErrNotFound
	GetThreshold(ctx context.Context, label string) (float64, error)
}

// LabelWriter provides write access to label records
type LabelWriter interface {
	LabelReader

	// SetThreshold updates the threshold of an existing label
	SetThreshold(ctx context.Context, label string, threshold float64) error
	// InsertOrUpdateLabel creates or replaces a label record
	InsertOrUpdateLabel(ctx context.Context, label, folder string, threshold float64) error
	// DeleteLabel removes the label record together with its reference rows
	DeleteLabel(ctx context.Context, label string) error
}

// AuditLog is the append-only match audit log
type AuditLog interface {
	// LogMatch appends one match decision
	LogMatch(ctx context.Context, rec MatchRecord) error
	// ListMatches returns all match decisions in insertion order
	ListMatches(ctx context.Context) ([]MatchRecord, error)
}

// CentroidStore persists per-label mean vectors so the embedding cache can warm start.
// It is optional; backends that cannot store vectors do not implement it.
type CentroidStore interface {
	// SaveCentroids replaces the stored vectors for the given labels
	SaveCentroids(ctx context.Context, centroids map[string][]float32) error
	// DeleteCentroid removes the stored vector for a label
	DeleteCentroid(ctx context.Context, label string) error
	// LoadCentroids returns every stored vector keyed by label
	LoadCentroids(ctx context.Context) (map[string][]float32, error)
}

// Store is the full reference store used by the application
type Store interface {
	ReferenceWriter
	LabelWriter
	AuditLog

	Close() error
}
