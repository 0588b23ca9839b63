package store

import (
	"math"

	"github.com/minescope/backend/pkg/embed"
)

// Fusion weights for hybrid scoring. Dense similarity dominates; the sparse
// channel boosts exact domain-term overlap.
const (
	denseWeight  = 0.7
	sparseWeight = 0.3
)

// CosineSimilarity returns the cosine similarity of two dense vectors, or 0
// when either has zero norm or the dimensions differ.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// SparseSimilarity returns the cosine similarity of two sparse vectors, or 0
// when either is the zero vector.
func SparseSimilarity(a, b embed.SparseVector) float32 {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 0
	}
	return a.Dot(b) / (na * nb)
}

// FuseScores combines dense and sparse similarities into one ranking score.
func FuseScores(dense, sparse float32) float32 {
	return denseWeight*dense + sparseWeight*sparse
}
