// Package facematch scores detected faces against the label vectors and
// decides which labels a photo belongs to.
package facematch

import (
	"errors"
	"fmt"
)

// ErrInvalidMode is returned for an unknown mode name
var ErrInvalidMode = errors.New("unknown match mode")

// Mode is the distribution policy for matched photos
type Mode string

const (
	ModeBest   Mode = "best"   // Move to the highest-scoring label
	ModeMulti  Mode = "multi"  // Copy to every other matched label, then move to the best one
	ModeManual Mode = "manual" // Defer to manual triage in the unmatched folder
)

// ParseMode validates a mode name
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeBest, ModeMulti, ModeManual:
		return m, nil
	default:
		return "", fmt.Errorf("%w %q (expected best, multi or manual)", ErrInvalidMode, s)
	}
}

// FaceMatch is the winning label for one detected face
type FaceMatch struct {
	FaceIndex int
	Label     string
	Score     float64
}

// Decision is the per-photo matching outcome
type Decision struct {
	// Faces holds one entry per face that cleared at least one threshold
	Faces []FaceMatch
	// LabelScores is the best qualifying score seen for each label across all faces
	LabelScores map[string]float64
	// MatchedLabels are the labels with at least one qualifying face, sorted
	MatchedLabels []string
	// BestLabel is the argmax of LabelScores; empty when nothing matched
	BestLabel string
}

// Matched reports whether any face qualified
func (d Decision) Matched() bool {
	return d.BestLabel != ""
}

// OtherLabels returns the matched labels except the best one
func (d Decision) OtherLabels() []string {
	others := make([]string, 0, len(d.MatchedLabels))
	for _, l := range d.MatchedLabels {
		if l != d.BestLabel {
			others = append(others, l)
		}
	}
	return others
}
