package refcache

import (
	"sort"
	"strings"
)

// Scope selects which labels a rebuild recomputes
type Scope struct {
	all    bool
	labels map[string]struct{}
}

// AllLabels rebuilds the whole cache
func AllLabels() Scope {
	return Scope{all: true}
}

// Labels rebuilds only the given labels
func Labels(labels ...string) Scope {
	s := Scope{labels: make(map[string]struct{}, len(labels))}
	for _, l := range labels {
		s.labels[l] = struct{}{}
	}
	return s
}

// IsAll reports whether the scope covers every label
func (s Scope) IsAll() bool {
	return s.all
}

// IsEmpty reports whether the scope selects nothing
func (s Scope) IsEmpty() bool {
	return !s.all && len(s.labels) == 0
}

// LabelNames returns the selected labels sorted; nil for AllLabels
func (s Scope) LabelNames() []string {
	if s.all {
		return nil
	}
	names := make([]string, 0, len(s.labels))
	for l := range s.labels {
		names = append(names, l)
	}
	sort.Strings(names)
	return names
}

// Contains reports whether the scope covers label
func (s Scope) Contains(label string) bool {
	if s.all {
		return true
	}
	_, ok := s.labels[label]
	return ok
}

// Union merges two scopes. AllLabels absorbs everything.
func (s Scope) Union(o Scope) Scope {
	if s.all || o.all {
		return AllLabels()
	}
	merged := Labels(s.LabelNames()...)
	for l := range o.labels {
		merged.labels[l] = struct{}{}
	}
	return merged
}

func (s Scope) String() string {
	if s.all {
		return "all labels"
	}
	return "labels [" + strings.Join(s.LabelNames(), ", ") + "]"
}
