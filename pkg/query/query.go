package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/minescope/backend/pkg/ai"
	"github.com/minescope/backend/pkg/common"
	"github.com/minescope/backend/pkg/embed"
	"github.com/minescope/backend/pkg/logger"
	"github.com/minescope/backend/pkg/ontology"
	"github.com/minescope/backend/pkg/store"
)

const (
	defaultTopK    = 8
	defaultMaxHops = 2
	maxGraphNodes  = 50
)

// Request is a free-text question with optional scoping filters.
type Request struct {
	Question   string `json:"question"`
	DocumentID string `json:"document_id,omitempty"`
	NodeType   string `json:"node_type,omitempty"`
	TopK       int    `json:"top_k,omitempty"`
	MaxHops    int    `json:"max_hops,omitempty"`
}

// SupportingChunk is one recalled chunk with its citation and score.
type SupportingChunk struct {
	ChunkID     string  `json:"chunk_id"`
	DocumentID  string  `json:"document_id"`
	Citation    string  `json:"citation"`
	SectionPath string  `json:"section_path,omitempty"`
	Text        string  `json:"text"`
	Score       float32 `json:"score"`
}

// Report is the structured answer to a query: ranked supporting chunks,
// the expanded subgraph around them, an optional cost rollup, and an
// optional synthesized answer. A query matching nothing returns a valid
// report with empty collections.
type Report struct {
	Question      string            `json:"question"`
	SchemaVersion string            `json:"schema_version,omitempty"`
	Answer        string            `json:"answer,omitempty"`
	Chunks        []SupportingChunk `json:"chunks"`
	Nodes         []common.Node     `json:"nodes"`
	Edges         []common.Edge     `json:"edges"`
	Costs         []CostRollup      `json:"costs,omitempty"`
}

// Orchestrator fuses vector recall with bounded graph expansion.
type Orchestrator struct {
	embedder *embed.Embedder
	sparse   *embed.SparseEncoder
	vectors  store.VectorStore
	graph    store.GraphStore
	client   ai.Client
	ont      *ontology.Ontology
}

// Params configures a new Orchestrator. Client may be nil, which disables
// answer synthesis; the structured report is returned either way. Ontology
// is only used to stamp reports with the schema version.
type Params struct {
	Embedder *embed.Embedder
	Sparse   *embed.SparseEncoder
	Vectors  store.VectorStore
	Graph    store.GraphStore
	Client   ai.Client
	Ontology *ontology.Ontology
}

// NewOrchestrator creates a retrieval orchestrator.
func NewOrchestrator(params Params) *Orchestrator {
	return &Orchestrator{
		embedder: params.Embedder,
		sparse:   params.Sparse,
		vectors:  params.Vectors,
		graph:    params.Graph,
		client:   params.Client,
		ont:      params.Ontology,
	}
}

// Query answers a question: embed, recall, look up evidenced nodes, expand
// a bounded number of hops, roll up costs, and synthesize an answer.
func (o *Orchestrator) Query(ctx context.Context, req Request) (Report, error) {
	report := Report{
		Question: req.Question,
		Chunks:   []SupportingChunk{},
		Nodes:    []common.Node{},
		Edges:    []common.Edge{},
	}
	if o.ont != nil {
		report.SchemaVersion = o.ont.SchemaVersion
	}

	if strings.TrimSpace(req.Question) == "" {
		return report, fmt.Errorf("question must not be empty")
	}
	if req.TopK <= 0 {
		req.TopK = defaultTopK
	}
	if req.MaxHops <= 0 {
		req.MaxHops = defaultMaxHops
	}

	dense, err := o.embedder.EmbedDense(ctx, req.Question)
	if err != nil {
		return report, fmt.Errorf("failed to embed question: %w", err)
	}
	sparse := o.sparse.Encode(req.Question)

	matches, err := o.vectors.Query(ctx, dense, sparse, o.sparse.Version(), req.TopK, store.Filter{
		DocumentID: req.DocumentID,
	})
	if err != nil {
		return report, fmt.Errorf("vector recall failed: %w", err)
	}
	if len(matches) == 0 {
		logger.Debug("query matched no chunks", "question", req.Question)
		return report, nil
	}

	var seedKeys []string
	seedSeen := make(map[string]bool)
	for _, m := range matches {
		report.Chunks = append(report.Chunks, SupportingChunk{
			ChunkID:    m.ChunkID,
			DocumentID: m.DocumentID,
			Citation: common.Chunk{
				PageStart: m.PageStart,
				PageEnd:   m.PageEnd,
			}.Citation(m.Filename),
			SectionPath: m.SectionPath,
			Text:        m.Text,
			Score:       m.Score,
		})

		nodes, err := o.graph.NodesEvidencedBy(ctx, m.ChunkID)
		if err != nil {
			logger.Warn("evidence lookup failed", "chunk", m.ChunkID, "error", err)
			continue
		}
		for _, node := range nodes {
			if req.NodeType != "" && node.Type != req.NodeType {
				continue
			}
			if !seedSeen[node.Key] {
				seedSeen[node.Key] = true
				seedKeys = append(seedKeys, node.Key)
			}
		}
	}

	if len(seedKeys) > 0 {
		hood, err := o.graph.Expand(ctx, seedKeys, req.MaxHops, maxGraphNodes)
		if err != nil {
			return report, fmt.Errorf("graph expansion failed: %w", err)
		}
		report.Nodes = hood.Nodes
		report.Edges = hood.Edges
		report.Costs = RollupCosts(hood.Nodes)
	}

	if o.client != nil {
		answer, err := o.synthesize(ctx, req.Question, report)
		if err != nil {
			logger.Warn("answer synthesis failed, returning structured report only", "error", err)
		} else {
			report.Answer = answer
		}
	}

	return report, nil
}

const synthesisSystemPrompt = `You answer questions about technical and feasibility documents.
Use only the provided context. Cite sources using the given citations.
If the context does not contain the answer, say so.`

func (o *Orchestrator) synthesize(ctx context.Context, question string, report Report) (string, error) {
	var b strings.Builder
	b.WriteString("Context chunks:\n")
	for _, c := range report.Chunks {
		fmt.Fprintf(&b, "[%s] %s\n", c.Citation, c.Text)
	}
	if len(report.Nodes) > 0 {
		b.WriteString("\nKnown entities:\n")
		for _, n := range report.Nodes {
			fmt.Fprintf(&b, "- %s (%s)", n.Name, n.Type)
			for prop, val := range n.Properties {
				fmt.Fprintf(&b, " %s=%v", prop, val)
			}
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "\nQuestion: %s", question)

	return o.client.GenerateCompletion(ctx, b.String(),
		ai.WithSystemPrompts(synthesisSystemPrompt),
		ai.WithTemperature(0.2),
	)
}
