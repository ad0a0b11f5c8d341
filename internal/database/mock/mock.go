// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-sorter/internal/database"
)

// MockStore is an in-memory database.Store and database.CentroidStore
type MockStore struct {
	mu         sync.RWMutex
	nextID     int64
	references map[string]database.ReferenceEntry // keyed by path
	labels     map[string]database.LabelRecord
	matches    []database.MatchRecord
	centroids  map[string][]float32

	// Error injection
	ListError         error
	InsertError       error
	DeleteError       error
	LabelError        error
	DeleteLabelError  error
	LogMatchError     error
	SaveCentroidError error

	// InsertErrorFor fails InsertReference only for these paths
	InsertErrorFor map[string]error
}

// NewMockStore creates an empty mock store
func NewMockStore() *MockStore {
	return &MockStore{
		references: make(map[string]database.ReferenceEntry),
		labels:     make(map[string]database.LabelRecord),
		centroids:  make(map[string][]float32),
	}
}

// Close is a no-op
func (m *MockStore) Close() error {
	return nil
}

// ListReferences returns every reference ordered by label and path
func (m *MockStore) ListReferences(ctx context.Context) ([]database.ReferenceEntry, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	refs := make([]database.ReferenceEntry, 0, len(m.references))
	for _, ref := range m.references {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Label != refs[j].Label {
			return refs[i].Label < refs[j].Label
		}
		return refs[i].Path < refs[j].Path
	})
	return refs, nil
}

// ListReferencesByLabel returns the references of one label
func (m *MockStore) ListReferencesByLabel(ctx context.Context, label string) ([]database.ReferenceEntry, error) {
	all, err := m.ListReferences(ctx)
	if err != nil {
		return nil, err
	}
	var refs []database.ReferenceEntry
	for _, ref := range all {
		if ref.Label == label {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// InsertReference stores a reference, relabeling an existing path
func (m *MockStore) InsertReference(ctx context.Context, path, label string) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	if err, ok := m.InsertErrorFor[path]; ok {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if ref, ok := m.references[path]; ok {
		ref.Label = label
		m.references[path] = ref
		return nil
	}
	m.nextID++
	m.references[path] = database.ReferenceEntry{ID: m.nextID, Label: label, Path: path, CreatedAt: time.Now()}
	return nil
}

// DeleteReference removes a reference by path
func (m *MockStore) DeleteReference(ctx context.Context, path string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.references, path)
	return nil
}

// PurgeMissingReferences deletes rows whose file no longer exists
func (m *MockStore) PurgeMissingReferences(ctx context.Context) (int, error) {
	refs, err := m.ListReferences(ctx)
	if err != nil {
		return 0, err
	}
	return database.PurgeMissing(ctx, refs, m.DeleteReference)
}

// GetLabel returns a label record or database.ErrNotFound
func (m *MockStore) GetLabel(ctx context.Context, label string) (*database.LabelRecord, error) {
	if m.LabelError != nil {
		return nil, m.LabelError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.labels[label]
	if !ok {
		return nil, fmt.Errorf("label %s: %w", label, database.ErrNotFound)
	}
	return &rec, nil
}

// ListLabels returns all labels ordered by name
func (m *MockStore) ListLabels(ctx context.Context) ([]database.LabelRecord, error) {
	if m.LabelError != nil {
		return nil, m.LabelError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	labels := make([]database.LabelRecord, 0, len(m.labels))
	for _, rec := range m.labels {
		labels = append(labels, rec)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Label < labels[j].Label })
	return labels, nil
}

// GetThreshold returns a label's threshold or database.ErrNotFound
func (m *MockStore) GetThreshold(ctx context.Context, label string) (float64, error) {
	rec, err := m.GetLabel(ctx, label)
	if err != nil {
		return 0, err
	}
	return rec.Threshold, nil
}

// SetThreshold updates an existing label's threshold
func (m *MockStore) SetThreshold(ctx context.Context, label string, threshold float64) error {
	if m.LabelError != nil {
		return m.LabelError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.labels[label]
	if !ok {
		return fmt.Errorf("label %s: %w", label, database.ErrNotFound)
	}
	rec.Threshold = threshold
	m.labels[label] = rec
	return nil
}

// InsertOrUpdateLabel creates or replaces a label record
func (m *MockStore) InsertOrUpdateLabel(ctx context.Context, label, folder string, threshold float64) error {
	if m.LabelError != nil {
		return m.LabelError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labels[label] = database.LabelRecord{Label: label, FolderPath: folder, Threshold: threshold}
	return nil
}

// DeleteLabel removes a label, its references and its centroid
func (m *MockStore) DeleteLabel(ctx context.Context, label string) error {
	if m.DeleteLabelError != nil {
		return m.DeleteLabelError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.labels, label)
	delete(m.centroids, label)
	for path, ref := range m.references {
		if ref.Label == label {
			delete(m.references, path)
		}
	}
	return nil
}

// LogMatch appends an audit record
func (m *MockStore) LogMatch(ctx context.Context, rec database.MatchRecord) error {
	if m.LogMatchError != nil {
		return m.LogMatchError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = int64(len(m.matches) + 1)
	m.matches = append(m.matches, rec)
	return nil
}

// ListMatches returns audit records in insertion order
func (m *MockStore) ListMatches(ctx context.Context) ([]database.MatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.MatchRecord(nil), m.matches...), nil
}

// SaveCentroids stores copies of the given vectors
func (m *MockStore) SaveCentroids(ctx context.Context, centroids map[string][]float32) error {
	if m.SaveCentroidError != nil {
		return m.SaveCentroidError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for label, vec := range centroids {
		m.centroids[label] = append([]float32(nil), vec...)
	}
	return nil
}

// DeleteCentroid removes a stored vector
func (m *MockStore) DeleteCentroid(ctx context.Context, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.centroids, label)
	return nil
}

// LoadCentroids returns copies of all stored vectors
func (m *MockStore) LoadCentroids(ctx context.Context) (map[string][]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]float32, len(m.centroids))
	for label, vec := range m.centroids {
		out[label] = append([]float32(nil), vec...)
	}
	return out, nil
}

// Paths returns the stored reference paths for a label, sorted
func (m *MockStore) Paths(label string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var paths []string
	for path, ref := range m.references {
		if ref.Label == label {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// Matches returns a copy of the audit records
func (m *MockStore) Matches() []database.MatchRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]database.MatchRecord(nil), m.matches...)
}

var (
	_ database.Store         = (*MockStore)(nil)
	_ database.CentroidStore = (*MockStore)(nil)
)
