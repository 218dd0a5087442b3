// Package embedding talks to a sentence-embedding inference service and
// provides the vector math the relevance scorer builds on.
package embedding

import (
	"context"
	"math"
)

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

// Client returns one embedding vector per input text. Implementations must
// support batching: a single call with N texts is the performance-critical
// path of the whole engine.
type Client interface {
	GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1]. Mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
