package cluster

import "math"

// CosineSimilarity calculates cosine similarity between two vectors.
// Mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// UpdateCentroid folds a new member vector into a group centroid without
// re-scanning the existing members: new = old + (vec - old) / newCount
func UpdateCentroid(centroid, vector []float64, newCount int) []float64 {
	if len(centroid) == 0 {
		out := make([]float64, len(vector))
		copy(out, vector)
		return out
	}
	if len(vector) != len(centroid) || newCount <= 0 {
		return centroid
	}

	updated := make([]float64, len(centroid))
	n := float64(newCount)
	for i := range centroid {
		updated[i] = centroid[i] + (vector[i]-centroid[i])/n
	}
	return updated
}
