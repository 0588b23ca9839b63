package embed

import (
	"context"
	"fmt"

	"github.com/minescope/backend/pkg/ai"
	"github.com/minescope/backend/pkg/logger"
)

// Embedder wraps an ai.Client and pins the dense embedding dimension.
//
// The dimension is probed once at construction; every later embedding is
// checked against it so a silently swapped model cannot poison the vector
// index with mismatched vectors.
type Embedder struct {
	client ai.Client
	dim    int
}

// NewEmbedder probes the embedding model with a short input to learn its
// output dimension and returns an Embedder bound to it.
func NewEmbedder(ctx context.Context, client ai.Client) (*Embedder, error) {
	probe, err := client.GenerateEmbedding(ctx, []byte("dimension probe"))
	if err != nil {
		return nil, fmt.Errorf("failed to probe embedding model: %w", err)
	}
	if len(probe) == 0 {
		return nil, fmt.Errorf("embedding model returned an empty vector")
	}

	logger.Debug("probed embedding model", "dimensions", len(probe))

	return &Embedder{
		client: client,
		dim:    len(probe),
	}, nil
}

// Dim returns the dense embedding dimension.
func (e *Embedder) Dim() int {
	return e.dim
}

// EmbedDense returns the dense vector for the given text. It fails if the
// model returns a vector whose dimension differs from the probed one.
func (e *Embedder) EmbedDense(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.client.GenerateEmbedding(ctx, []byte(text))
	if err != nil {
		return nil, err
	}
	if len(vec) != e.dim {
		return nil, fmt.Errorf("embedding dimension changed: got %d want %d", len(vec), e.dim)
	}
	return vec, nil
}
