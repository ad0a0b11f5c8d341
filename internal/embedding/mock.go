package embedding

import (
	"context"
	"sync"
)

// StaticExtractor is an Extractor backed by a fixed table keyed by image content.
// It is used by tests and offline tooling.
type StaticExtractor struct {
	mu    sync.Mutex
	faces map[string][]Face
	errs  map[string]error
	calls int

	// Err, when set, is returned for every call
	Err error
}

// NewStaticExtractor creates an empty extractor; unknown images yield no faces
func NewStaticExtractor() *StaticExtractor {
	return &StaticExtractor{
		faces: make(map[string][]Face),
		errs:  make(map[string]error),
	}
}

// Set registers the face vectors returned for images whose bytes equal content
func (s *StaticExtractor) Set(content string, vecs ...[]float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	faces := make([]Face, len(vecs))
	for i, v := range vecs {
		faces[i] = Face{Index: i, Embedding: v, DetScore: 1}
	}
	s.faces[content] = faces
}

// SetError registers an error returned for images whose bytes equal content
func (s *StaticExtractor) SetError(content string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[content] = err
}

// Calls returns how many times DetectFaces was invoked
func (s *StaticExtractor) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// DetectFaces looks up the image content in the table
func (s *StaticExtractor) DetectFaces(ctx context.Context, imageData []byte) ([]Face, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.Err != nil {
		return nil, s.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := string(imageData)
	if err, ok := s.errs[key]; ok {
		return nil, err
	}
	return s.faces[key], nil
}

var _ Extractor = (*StaticExtractor)(nil)
