package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/minescope/backend/internal/util"
	"github.com/minescope/backend/pkg/chunker"
	"github.com/minescope/backend/pkg/common"
	"github.com/minescope/backend/pkg/embed"
	"github.com/minescope/backend/pkg/extract"
	"github.com/minescope/backend/pkg/logger"
	"github.com/minescope/backend/pkg/ontology"
	"github.com/minescope/backend/pkg/store"

	"golang.org/x/sync/errgroup"
)

// Mode selects how ingestion treats prior state of the same document.
type Mode string

const (
	// ModeFull wipes the document's prior entries from both stores before
	// writing, so removed content does not linger.
	ModeFull Mode = "full"

	// ModeIncremental relies on idempotent keys alone; prior entries are
	// overwritten or merged in place.
	ModeIncremental Mode = "incremental"
)

const storeRetries = 3

// Pipeline runs the full ingestion of one document: chunking, dual
// embedding, vector upsert, extraction, and graph loading.
//
// The vector and graph stores are independent systems with no shared
// transaction; consistency comes from shared identifiers (chunk id, node
// natural key) and idempotent writes, with re-ingestion as the repair
// mechanism.
type Pipeline struct {
	chunker   *chunker.Chunker
	embedder  *embed.Embedder
	sparse    *embed.SparseEncoder
	extractor extract.Extractor
	vectors   store.VectorStore
	graph     store.GraphStore
	ont       *ontology.Ontology

	concurrency int
}

// Params configures a new Pipeline.
type Params struct {
	Chunker   *chunker.Chunker
	Embedder  *embed.Embedder
	Sparse    *embed.SparseEncoder
	Extractor extract.Extractor
	Vectors   store.VectorStore
	Graph     store.GraphStore
	Ontology  *ontology.Ontology

	// Concurrency bounds parallel chunk processing. Zero means 4.
	Concurrency int
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(params Params) *Pipeline {
	if params.Concurrency <= 0 {
		params.Concurrency = 4
	}
	return &Pipeline{
		chunker:     params.Chunker,
		embedder:    params.Embedder,
		sparse:      params.Sparse,
		extractor:   params.Extractor,
		vectors:     params.Vectors,
		graph:       params.Graph,
		ont:         params.Ontology,
		concurrency: params.Concurrency,
	}
}

// IngestDocument runs the pipeline on one document's extracted pages.
//
// Chunk-level failures are recorded in the summary instead of aborting the
// run; only context cancellation or a failure to prepare the document at
// all returns an error. Running ingestion twice on identical input yields
// the same stores, not doubled ones.
func (p *Pipeline) IngestDocument(
	ctx context.Context,
	filename string,
	pages []common.Page,
	mode Mode,
) (common.IngestSummary, error) {
	docID := common.DocumentID(filename, pages)
	summary := common.IngestSummary{
		DocumentID: docID,
		Filename:   filename,
	}

	chunks, err := p.chunker.Split(docID, pages)
	if err != nil {
		return summary, fmt.Errorf("failed to chunk document: %w", err)
	}
	if len(chunks) == 0 {
		logger.Info("document produced no chunks", "document", docID, "filename", filename)
		return summary, nil
	}

	logger.Info("ingesting document",
		"document", docID, "filename", filename,
		"pages", len(pages), "chunks", len(chunks), "mode", mode)

	if mode == ModeFull {
		if err := p.wipeDocument(ctx, docID); err != nil {
			return summary, fmt.Errorf("failed to wipe prior document state: %w", err)
		}
	}

	err = util.RetryErrWithContext(ctx, storeRetries, func(ctx context.Context) error {
		return p.graph.EnsureDocumentRoot(ctx, common.Document{
			ID:         docID,
			Filename:   filename,
			IngestedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return summary, fmt.Errorf("failed to create document root: %w", err)
	}

	var mu sync.Mutex
	fail := func(chunkID, stage string, err error) {
		mu.Lock()
		defer mu.Unlock()
		summary.Failures = append(summary.Failures, common.ChunkFailure{
			ChunkID: chunkID,
			Stage:   stage,
			Reason:  err.Error(),
		})
	}

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(p.concurrency)

	for _, chunk := range chunks {
		eg.Go(func() error {
			if indexed := p.indexChunk(ectx, filename, chunk, fail); indexed {
				mu.Lock()
				summary.ChunksIndexed++
				mu.Unlock()
			}

			nodes, edges := p.loadChunkGraph(ectx, chunk, fail)
			mu.Lock()
			summary.NodesCreated += nodes
			summary.EdgesCreated += edges
			mu.Unlock()

			return ectx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return summary, err
	}

	if summary.Partial() {
		logger.Warn("ingestion completed with failures",
			"document", docID, "chunks", len(chunks),
			"indexed", summary.ChunksIndexed, "failures", len(summary.Failures))
	} else {
		logger.Info("ingestion completed",
			"document", docID, "chunks", summary.ChunksIndexed,
			"nodes", summary.NodesCreated, "edges", summary.EdgesCreated)
	}
	return summary, nil
}

// indexChunk embeds the chunk and upserts it into the vector index.
func (p *Pipeline) indexChunk(
	ctx context.Context,
	filename string,
	chunk common.Chunk,
	fail func(chunkID, stage string, err error),
) bool {
	dense, err := util.RetryWithContext(ctx, storeRetries, func(ctx context.Context) ([]float32, error) {
		return p.embedder.EmbedDense(ctx, chunk.Text)
	})
	if err != nil {
		fail(chunk.ID, "embed", err)
		return false
	}

	entry := store.VectorEntry{
		ChunkID:       chunk.ID,
		DocumentID:    chunk.DocumentID,
		Filename:      filename,
		PageStart:     chunk.PageStart,
		PageEnd:       chunk.PageEnd,
		SectionPath:   chunk.SectionPath,
		Text:          chunk.Text,
		Dense:         dense,
		Sparse:        p.sparse.Encode(chunk.Text),
		SparseVersion: p.sparse.Version(),
	}

	err = util.RetryErrWithContext(ctx, storeRetries, func(ctx context.Context) error {
		return p.vectors.Upsert(ctx, []store.VectorEntry{entry})
	})
	if err != nil {
		fail(chunk.ID, "vector_upsert", err)
		return false
	}
	return true
}

// loadChunkGraph extracts the chunk and merges the result into the graph.
// Returns the number of newly created nodes and edges.
func (p *Pipeline) loadChunkGraph(
	ctx context.Context,
	chunk common.Chunk,
	fail func(chunkID, stage string, err error),
) (nodesCreated int, edgesCreated int) {
	res, err := p.extractor.Extract(ctx, chunk, p.ont)
	if err != nil {
		fail(chunk.ID, "extract", err)
		return 0, 0
	}

	for _, node := range res.Nodes {
		created, err := util.RetryWithContext(ctx, storeRetries, func(ctx context.Context) (bool, error) {
			return p.graph.MergeNode(ctx, node)
		})
		if err != nil {
			fail(chunk.ID, "merge_node", err)
			continue
		}
		if created {
			nodesCreated++
		}

		err = util.RetryErrWithContext(ctx, storeRetries, func(ctx context.Context) error {
			return p.graph.LinkEvidence(ctx, chunk.ID, node.Key)
		})
		if err != nil {
			fail(chunk.ID, "link_evidence", err)
		}
	}

	for _, edge := range res.Edges {
		created, err := util.RetryWithContext(ctx, storeRetries, func(ctx context.Context) (bool, error) {
			return p.graph.MergeEdge(ctx, edge)
		})
		if err != nil {
			fail(chunk.ID, "merge_edge", err)
			continue
		}
		if created {
			edgesCreated++
		}
	}

	return nodesCreated, edgesCreated
}

func (p *Pipeline) wipeDocument(ctx context.Context, docID string) error {
	err := util.RetryErrWithContext(ctx, storeRetries, func(ctx context.Context) error {
		return p.vectors.DeleteDocument(ctx, docID)
	})
	if err != nil {
		return err
	}
	return util.RetryErrWithContext(ctx, storeRetries, func(ctx context.Context) error {
		return p.graph.DeleteDocument(ctx, docID)
	})
}
