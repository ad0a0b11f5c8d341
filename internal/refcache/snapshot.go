package refcache

import "sort"

// Snapshot is an immutable view of the label vectors.
// A rebuild never mutates a published snapshot; it publishes a new one.
type Snapshot struct {
	vectors map[string][]float32
}

func newSnapshot(vectors map[string][]float32) *Snapshot {
	return &Snapshot{vectors: vectors}
}

// NewSnapshot builds a snapshot from a copy of vectors
func NewSnapshot(vectors map[string][]float32) *Snapshot {
	copied := make(map[string][]float32, len(vectors))
	for label, vec := range vectors {
		copied[label] = append([]float32(nil), vec...)
	}
	return newSnapshot(copied)
}

// Vector returns the mean vector for a label. The slice must not be modified.
func (s *Snapshot) Vector(label string) ([]float32, bool) {
	vec, ok := s.vectors[label]
	return vec, ok
}

// Labels returns the cached labels sorted by name
func (s *Snapshot) Labels() []string {
	labels := make([]string, 0, len(s.vectors))
	for label := range s.vectors {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Len returns the number of cached labels
func (s *Snapshot) Len() int {
	return len(s.vectors)
}
