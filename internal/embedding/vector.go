package embedding

import (
	"errors"
	"math"
)

// ErrDimensionMismatch is returned when vectors of different lengths are combined
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// CosineSimilarity computes the cosine similarity between two embedding vectors.
// Returns a value between -1 and 1, where 1 means identical; 0 for empty or mismatched input.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to handle floating point errors
	return max(-1, min(1, similarity))
}

// Mean returns the element-wise arithmetic mean of the vectors.
// Accumulates in float64 so long reference lists do not lose precision.
func Mean(vecs [][]float32) ([]float32, error) {
	if len(vecs) == 0 {
		return nil, errors.New("no vectors to average")
	}
	dim := len(vecs[0])
	if dim == 0 {
		return nil, errors.New("empty vector")
	}

	sum := make([]float64, dim)
	for _, v := range vecs {
		if len(v) != dim {
			return nil, ErrDimensionMismatch
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}

	mean := make([]float32, dim)
	n := float64(len(vecs))
	for i, s := range sum {
		mean[i] = float32(s / n)
	}
	return mean, nil
}

// FaceVectors extracts the embeddings of the given faces
func FaceVectors(faces []Face) [][]float32 {
	vecs := make([][]float32, 0, len(faces))
	for _, f := range faces {
		vecs = append(vecs, f.Embedding)
	}
	return vecs
}
