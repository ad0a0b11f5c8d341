package facematch

import (
	"sort"

	"github.com/kozaktomas/face-sorter/internal/embedding"
)

// References exposes the cached label vectors
type References interface {
	Labels() []string
	Vector(label string) ([]float32, bool)
}

// ThresholdFunc returns the minimum cosine similarity for a label
type ThresholdFunc func(label string) float64

// FixedThreshold applies the same threshold to every label
func FixedThreshold(t float64) ThresholdFunc {
	return func(string) float64 { return t }
}

// Match scores every face against every label. A label is a candidate for a face
// only when its score reaches the label's threshold; each face keeps its single
// highest-scoring candidate. Labels are visited in name order and only a strictly
// higher score replaces the current winner, so ties resolve to the smaller name.
func Match(faces [][]float32, refs References, threshold ThresholdFunc) Decision {
	labels := refs.Labels()
	sort.Strings(labels)

	d := Decision{LabelScores: make(map[string]float64)}

	for i, face := range faces {
		bestLabel := ""
		bestScore := 0.0

		for _, label := range labels {
			vec, ok := refs.Vector(label)
			if !ok {
				continue
			}
			score := embedding.CosineSimilarity(face, vec)
			if score < threshold(label) {
				continue
			}
			if bestLabel == "" || score > bestScore {
				bestLabel = label
				bestScore = score
			}
		}

		if bestLabel == "" {
			continue
		}
		d.Faces = append(d.Faces, FaceMatch{FaceIndex: i, Label: bestLabel, Score: bestScore})
		if prev, ok := d.LabelScores[bestLabel]; !ok || bestScore > prev {
			d.LabelScores[bestLabel] = bestScore
		}
	}

	d.MatchedLabels = make([]string, 0, len(d.LabelScores))
	for label := range d.LabelScores {
		d.MatchedLabels = append(d.MatchedLabels, label)
	}
	sort.Strings(d.MatchedLabels)

	d.BestLabel = BestLabel(d.LabelScores)
	return d
}

// BestLabel returns the label with the highest score, the smaller name on ties
func BestLabel(scores map[string]float64) string {
	best := ""
	bestScore := 0.0
	for label, score := range scores {
		if best == "" || score > bestScore || (score == bestScore && label < best) {
			best = label
			bestScore = score
		}
	}
	return best
}
