package extract

import (
	"context"

	"github.com/minescope/backend/pkg/common"
	"github.com/minescope/backend/pkg/logger"
	"github.com/minescope/backend/pkg/ontology"
)

// Status tracks a chunk through the extraction state machine.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusExtracting Status = "EXTRACTING"
	StatusExtracted  Status = "EXTRACTED"
	StatusFallback   Status = "FALLBACK"
	StatusFailed     Status = "FAILED"
)

// Result is the outcome of extracting one chunk. Every node and edge
// carries the chunk id it was evidenced by.
type Result struct {
	ChunkID string
	Status  Status
	Nodes   []common.Node
	Edges   []common.Edge
}

// Extractor turns a chunk of text into ontology-conforming nodes and edges.
type Extractor interface {
	Extract(ctx context.Context, chunk common.Chunk, ont *ontology.Ontology) (Result, error)
}

// Pipeline runs the model extractor and degrades to the rule-based fallback
// when the model fails or returns nothing usable. Only when both paths
// produce nothing does the chunk fail.
type Pipeline struct {
	model    Extractor
	fallback Extractor
}

// NewPipeline builds the two-stage extraction pipeline. A nil model makes
// the pipeline fallback-only, used in deployments without a generative
// model configured.
func NewPipeline(model Extractor, fallback Extractor) *Pipeline {
	return &Pipeline{
		model:    model,
		fallback: fallback,
	}
}

// Extract runs the pipeline on one chunk.
func (p *Pipeline) Extract(ctx context.Context, chunk common.Chunk, ont *ontology.Ontology) (Result, error) {
	if p.model != nil {
		res, err := p.model.Extract(ctx, chunk, ont)
		if err == nil {
			res.Status = StatusExtracted
			return res, nil
		}
		if ctx.Err() != nil {
			return Result{ChunkID: chunk.ID, Status: StatusFailed}, err
		}
		logger.Warn("model extraction failed, trying fallback", "chunk", chunk.ID, "error", err)
	}

	res, err := p.fallback.Extract(ctx, chunk, ont)
	if err != nil {
		return Result{ChunkID: chunk.ID, Status: StatusFailed}, err
	}
	res.Status = StatusFallback
	return res, nil
}
