package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/minescope/backend/pkg/common"
	"github.com/minescope/backend/pkg/embed"
)

var (
	// ErrNotFound is returned when a requested entry does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDimensionMismatch is returned when a vector's dimension does not
	// match the index.
	ErrDimensionMismatch = errors.New("store: vector dimension mismatch")
)

// VerifyDimension checks the probed embedding dimension against the index
// dimension. A mismatch is a configuration error; callers refuse to start
// rather than fail upserts chunk by chunk.
func VerifyDimension(indexDim, embedDim int) error {
	if indexDim != embedDim {
		return fmt.Errorf("%w: index expects %d, embedding model produces %d", ErrDimensionMismatch, indexDim, embedDim)
	}
	return nil
}

// VectorEntry is one indexed chunk: its dense and sparse vectors plus the
// metadata needed to render a citation without a second lookup.
type VectorEntry struct {
	ChunkID       string
	DocumentID    string
	Filename      string
	PageStart     int
	PageEnd       int
	SectionPath   string
	Text          string
	Dense         []float32
	Sparse        embed.SparseVector
	SparseVersion string
}

// VectorMatch is a recalled chunk with its fused relevance score.
type VectorMatch struct {
	VectorEntry
	Score       float32
	DenseScore  float32
	SparseScore float32
}

// Filter narrows a vector query by metadata. Zero values leave the
// corresponding field unconstrained.
type Filter struct {
	DocumentID string
}

// VectorStore is the contract for the semantic recall index.
//
// Upsert is idempotent on chunk id: re-submitting the same id overwrites
// the prior entry, never duplicates. Query ranks by a fused dense+sparse
// score; when the stored sparse vocabulary version differs from the query's,
// implementations fall back to dense-only scoring for those entries.
type VectorStore interface {
	Upsert(ctx context.Context, entries []VectorEntry) error
	Query(ctx context.Context, dense []float32, sparse embed.SparseVector, sparseVersion string, topK int, filter Filter) ([]VectorMatch, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// Neighborhood is a bounded subgraph around a set of seed nodes.
type Neighborhood struct {
	Nodes []common.Node
	Edges []common.Edge
}

// GraphStore is the contract for the property graph.
//
// All node and edge writes use merge-on-key semantics so that re-ingesting
// a document yields the same graph, not a doubled one. MergeNode reports
// whether the node was newly created; conflicting scalar properties keep
// the higher-confidence value, with ties keeping the existing one.
type GraphStore interface {
	EnsureDocumentRoot(ctx context.Context, doc common.Document) error
	MergeNode(ctx context.Context, node common.Node) (created bool, err error)
	MergeEdge(ctx context.Context, edge common.Edge) (created bool, err error)

	// LinkEvidence records a MENTIONS edge from the chunk to the node.
	// Idempotent per (chunk, node) pair.
	LinkEvidence(ctx context.Context, chunkID string, nodeKey string) error

	NodesEvidencedBy(ctx context.Context, chunkID string) ([]common.Node, error)
	Expand(ctx context.Context, seedKeys []string, maxHops int, maxNodes int) (Neighborhood, error)

	ListNodes(ctx context.Context, documentID string, nodeType string, limit int, offset int) ([]common.Node, error)
	ListEdges(ctx context.Context, documentID string, edgeType string, limit int, offset int) ([]common.Edge, error)

	DeleteDocument(ctx context.Context, documentID string) error
}

// ChunkRange invokes fn over [start, end) windows of at most chunkSize
// elements, covering total elements in order.
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}
