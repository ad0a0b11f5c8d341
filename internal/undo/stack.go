package undo

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-sorter/internal/logger"
)

// DefaultLimit is how many records the stack keeps
const DefaultLimit = 50

// Journal persists the stack between processes
type Journal interface {
	Load() ([]Record, error)
	Save(records []Record) error
}

// Stack is a bounded LIFO of records; pushing past the limit drops the oldest
type Stack struct {
	mu      sync.Mutex
	records []Record // oldest first
	limit   int
	journal Journal
	log     *zap.Logger
}

// NewStack creates a stack and loads any journaled records. A nil journal keeps
// the stack in memory only.
func NewStack(limit int, journal Journal, log *zap.Logger) (*Stack, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	s := &Stack{
		limit:   limit,
		journal: journal,
		log:     logger.OrNop(log).Named("undo"),
	}
	if journal != nil {
		records, err := journal.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load undo journal: %w", err)
		}
		if len(records) > limit {
			records = records[len(records)-limit:]
		}
		s.records = records
	}
	return s, nil
}

// Push adds a record on top. The record stays in memory even if the journal
// cannot be written; that error is returned for the caller to report.
func (s *Stack) Push(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, r)
	if over := len(s.records) - s.limit; over > 0 {
		s.log.Debug("undo limit reached, dropping oldest", zap.Int("dropped", over))
		s.records = append([]Record(nil), s.records[over:]...)
	}
	return s.save()
}

// Pop removes and returns the newest record
func (s *Stack) Pop() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 {
		return nil, ErrEmpty
	}
	r := s.records[len(s.records)-1]
	s.records = s.records[:len(s.records)-1]
	if err := s.save(); err != nil {
		s.log.Warn("failed to save undo journal", zap.Error(err))
	}
	return r, nil
}

// Peek returns the newest record without removing it
func (s *Stack) Peek() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 {
		return nil, ErrEmpty
	}
	return s.records[len(s.records)-1], nil
}

// List returns the records newest first
func (s *Stack) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, len(s.records))
	for i, r := range s.records {
		out[len(s.records)-1-i] = r
	}
	return out
}

func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Clear forgets every record
func (s *Stack) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return s.save()
}

func (s *Stack) save() error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Save(s.records)
}
