package query

import (
	"context"
	"hash/fnv"
	"math"
	"testing"

	"github.com/minescope/backend/pkg/ai"
	"github.com/minescope/backend/pkg/common"
	"github.com/minescope/backend/pkg/embed"
	"github.com/minescope/backend/pkg/ontology"
	"github.com/minescope/backend/pkg/store"
	"github.com/minescope/backend/pkg/store/memory"
)

type fakeAIClient struct{}

func (fakeAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "synthesized answer", nil
}

func (fakeAIClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return nil
}

func (fakeAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	vec := make([]float32, 8)
	h := fnv.New32a()
	h.Write(input)
	seed := h.Sum32()
	for i := range vec {
		vec[i] = float32((seed>>uint(i*4))&0xF) / 15.0
	}
	return vec, nil
}

func (fakeAIClient) ResetMetrics()               {}
func (fakeAIClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func seedStores(t *testing.T, enc *embed.SparseEncoder, embedder *embed.Embedder) (*memory.VectorStore, *memory.GraphStore) {
	t.Helper()
	ctx := context.Background()

	vectors := memory.NewVectorStore()
	graph := memory.NewGraphStore()

	texts := map[string]string{
		"doc1:0": "The jaw crusher reduces ore to 150 mm at 500 tph.",
		"doc1:1": "The ball mill grinds stockpile material in closed circuit.",
	}
	for chunkID, text := range texts {
		dense, err := embedder.EmbedDense(ctx, text)
		if err != nil {
			t.Fatal(err)
		}
		vectors.Upsert(ctx, []store.VectorEntry{{
			ChunkID:       chunkID,
			DocumentID:    "doc1",
			Filename:      "study.pdf",
			PageStart:     1,
			PageEnd:       1,
			Text:          text,
			Dense:         dense,
			Sparse:        enc.Encode(text),
			SparseVersion: enc.Version(),
		}})
	}

	crusher := common.Node{
		Key:  common.NodeKey("doc1", "Equipment", "jaw crusher"),
		Type: "Equipment", Name: "jaw crusher",
		Properties: map[string]any{"cost": "250000", "currency": "USD"},
		Confidence: 0.9,
	}
	mill := common.Node{
		Key:  common.NodeKey("doc1", "Equipment", "ball mill"),
		Type: "Equipment", Name: "ball mill",
		Properties: map[string]any{"cost": "1.2M", "currency": "USD"},
		Confidence: 0.9,
	}
	graph.MergeNode(ctx, crusher)
	graph.MergeNode(ctx, mill)
	graph.MergeEdge(ctx, common.Edge{
		SourceKey: crusher.Key, TargetKey: mill.Key, Type: "FEEDS", Confidence: 0.8,
	})
	graph.LinkEvidence(ctx, "doc1:0", crusher.Key)
	graph.LinkEvidence(ctx, "doc1:1", mill.Key)

	return vectors, graph
}

func newOrchestrator(t *testing.T, withClient bool) (*Orchestrator, *embed.SparseEncoder) {
	t.Helper()

	client := fakeAIClient{}
	embedder, err := embed.NewEmbedder(context.Background(), client)
	if err != nil {
		t.Fatal(err)
	}
	enc := embed.NewSparseEncoder([]string{"jaw crusher", "ball mill", "ore"})
	vectors, graph := seedStores(t, enc, embedder)

	params := Params{
		Embedder: embedder,
		Sparse:   enc,
		Vectors:  vectors,
		Graph:    graph,
		Ontology: ontology.Default(),
	}
	if withClient {
		params.Client = client
	}
	return NewOrchestrator(params), enc
}

func TestQueryReturnsChunksAndGraph(t *testing.T) {
	o, _ := newOrchestrator(t, false)

	report, err := o.Query(context.Background(), Request{
		Question: "What is the jaw crusher capacity?",
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(report.Chunks) == 0 {
		t.Fatal("expected supporting chunks")
	}
	if report.Chunks[0].Citation == "" {
		t.Error("chunks must carry citations")
	}
	if len(report.Nodes) == 0 {
		t.Fatal("expected expanded graph nodes")
	}

	// One hop from the crusher reaches the mill over the FEEDS edge.
	names := map[string]bool{}
	for _, n := range report.Nodes {
		names[n.Name] = true
	}
	if !names["jaw crusher"] || !names["ball mill"] {
		t.Errorf("expected both equipment nodes in subgraph, got %v", names)
	}
	if len(report.Edges) == 0 {
		t.Error("expected edges in subgraph")
	}
	if report.SchemaVersion != ontology.Default().SchemaVersion {
		t.Errorf("schema version = %q", report.SchemaVersion)
	}
}

func TestQueryCostRollup(t *testing.T) {
	o, _ := newOrchestrator(t, false)

	report, err := o.Query(context.Background(), Request{
		Question: "What does the jaw crusher cost?",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Costs) != 1 {
		t.Fatalf("expected one currency rollup, got %d", len(report.Costs))
	}
	rollup := report.Costs[0]
	if rollup.Currency != "USD" {
		t.Errorf("currency = %s", rollup.Currency)
	}
	want := 250000.0 + 1.2e6
	if math.Abs(rollup.Total-want) > 1e-6 {
		t.Errorf("total = %f, want %f", rollup.Total, want)
	}
}

func TestQueryEmptyResultShape(t *testing.T) {
	o, _ := newOrchestrator(t, false)

	report, err := o.Query(context.Background(), Request{
		Question:   "anything",
		DocumentID: "no-such-document",
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Chunks == nil || report.Nodes == nil || report.Edges == nil {
		t.Error("empty report must have empty, non-nil collections")
	}
	if len(report.Chunks) != 0 || len(report.Nodes) != 0 {
		t.Error("expected no results for unknown document")
	}
}

func TestQueryRejectsEmptyQuestion(t *testing.T) {
	o, _ := newOrchestrator(t, false)
	if _, err := o.Query(context.Background(), Request{Question: "   "}); err == nil {
		t.Error("expected error for empty question")
	}
}

func TestQueryNodeTypeRestriction(t *testing.T) {
	o, _ := newOrchestrator(t, false)

	report, err := o.Query(context.Background(), Request{
		Question: "jaw crusher",
		NodeType: "Material",
	})
	if err != nil {
		t.Fatal(err)
	}
	// No Material nodes are evidenced, so no seeds and no expansion.
	if len(report.Nodes) != 0 {
		t.Errorf("node-type restriction ignored: %d nodes", len(report.Nodes))
	}
	if len(report.Chunks) == 0 {
		t.Error("chunk recall should be unaffected by node-type restriction")
	}
}

func TestQuerySynthesizesAnswerWhenClientSet(t *testing.T) {
	o, _ := newOrchestrator(t, true)

	report, err := o.Query(context.Background(), Request{Question: "jaw crusher"})
	if err != nil {
		t.Fatal(err)
	}
	if report.Answer != "synthesized answer" {
		t.Errorf("answer = %q", report.Answer)
	}
}

func TestRollupCostsParsing(t *testing.T) {
	nodes := []common.Node{
		{Key: "d|Equipment|a", Name: "a", Type: "Equipment", Properties: map[string]any{"cost": "1,200,000", "currency": "usd"}},
		{Key: "d|Equipment|b", Name: "b", Type: "Equipment", Properties: map[string]any{"cost": "$500k", "currency": "USD"}},
		{Key: "d|Equipment|c", Name: "c", Type: "Equipment", Properties: map[string]any{"cost": "300000", "currency": "EUR"}},
		{Key: "d|Equipment|d", Name: "d", Type: "Equipment", Properties: map[string]any{"cost": "not a number"}},
		{Key: "d|Equipment|e", Name: "e", Type: "Equipment"},
	}

	rollups := RollupCosts(nodes)
	if len(rollups) != 2 {
		t.Fatalf("expected 2 currencies, got %d", len(rollups))
	}

	if rollups[0].Currency != "EUR" || rollups[0].Total != 300000 {
		t.Errorf("EUR rollup = %+v", rollups[0])
	}
	if rollups[1].Currency != "USD" || rollups[1].Total != 1.7e6 {
		t.Errorf("USD rollup = %+v", rollups[1])
	}
	if len(rollups[1].Items) != 2 {
		t.Errorf("USD items = %d", len(rollups[1].Items))
	}
}
