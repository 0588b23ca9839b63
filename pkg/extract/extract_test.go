package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/minescope/backend/pkg/common"
	"github.com/minescope/backend/pkg/ontology"
)

func testChunk(text string) common.Chunk {
	return common.Chunk{
		ID:         "doc1:0",
		DocumentID: "doc1",
		Ordinal:    0,
		PageStart:  1,
		PageEnd:    1,
		Text:       text,
	}
}

type stubExtractor struct {
	result Result
	err    error
	calls  int
}

func (s *stubExtractor) Extract(ctx context.Context, chunk common.Chunk, ont *ontology.Ontology) (Result, error) {
	s.calls++
	return s.result, s.err
}

func TestClipToOntologyDropsUnknownTypes(t *testing.T) {
	ont := ontology.Default()
	chunk := testChunk("irrelevant")

	res := clipToOntology(chunk, extractResponse{
		Entities: []extractEntity{
			{EntityName: "jaw crusher", EntityType: "Equipment", Confidence: 0.9},
			{EntityName: "Bob", EntityType: "Person", Confidence: 0.9},
		},
	}, ont)

	if len(res.Nodes) != 1 {
		t.Fatalf("expected 1 node after clipping, got %d", len(res.Nodes))
	}
	if res.Nodes[0].Name != "jaw crusher" {
		t.Errorf("wrong node survived: %s", res.Nodes[0].Name)
	}
}

func TestClipToOntologyDropsDisallowedProperties(t *testing.T) {
	ont := ontology.Default()
	chunk := testChunk("irrelevant")

	res := clipToOntology(chunk, extractResponse{
		Entities: []extractEntity{
			{
				EntityName: "jaw crusher",
				EntityType: "Equipment",
				Confidence: 0.9,
				Properties: []extractProperty{
					{Name: "capacity", Value: "500 tph"},
					{Name: "favorite_color", Value: "red"},
				},
			},
		},
	}, ont)

	if len(res.Nodes) != 1 {
		t.Fatal("expected 1 node")
	}
	props := res.Nodes[0].Properties
	if props["capacity"] != "500 tph" {
		t.Error("allowed property dropped")
	}
	if _, ok := props["favorite_color"]; ok {
		t.Error("disallowed property kept")
	}
}

func TestClipToOntologyDropsDisallowedEdges(t *testing.T) {
	ont := ontology.Default()
	chunk := testChunk("irrelevant")

	res := clipToOntology(chunk, extractResponse{
		Entities: []extractEntity{
			{EntityName: "crushing", EntityType: "Process", Confidence: 0.9},
			{EntityName: "jaw crusher", EntityType: "Equipment", Confidence: 0.9},
			{EntityName: "gold ore", EntityType: "Material", Confidence: 0.9},
		},
		Relationships: []extractRelationship{
			{SourceEntity: "crushing", TargetEntity: "jaw crusher", RelationshipType: "USES_EQUIPMENT", Confidence: 0.8},
			// USES_EQUIPMENT requires an Equipment target.
			{SourceEntity: "crushing", TargetEntity: "gold ore", RelationshipType: "USES_EQUIPMENT", Confidence: 0.8},
			// Endpoint never extracted.
			{SourceEntity: "crushing", TargetEntity: "ghost", RelationshipType: "RELATES_TO", Confidence: 0.8},
		},
	}, ont)

	if len(res.Edges) != 1 {
		t.Fatalf("expected 1 edge after clipping, got %d", len(res.Edges))
	}
	if res.Edges[0].Type != "USES_EQUIPMENT" {
		t.Errorf("wrong edge survived: %s", res.Edges[0].Type)
	}
	if res.Edges[0].TargetKey != common.NodeKey("doc1", "Equipment", "jaw crusher") {
		t.Errorf("wrong target key: %s", res.Edges[0].TargetKey)
	}
}

func TestClipNodeKeysAreDocumentScoped(t *testing.T) {
	ont := ontology.Default()
	res := clipToOntology(testChunk("x"), extractResponse{
		Entities: []extractEntity{
			{EntityName: "Jaw Crusher", EntityType: "Equipment", Confidence: 0.9},
		},
	}, ont)

	want := common.NodeKey("doc1", "Equipment", "Jaw Crusher")
	if res.Nodes[0].Key != want {
		t.Errorf("key = %q, want %q", res.Nodes[0].Key, want)
	}
	if !strings.HasPrefix(res.Nodes[0].Key, "doc1|") {
		t.Error("node key must be namespaced by document")
	}
	if res.Nodes[0].ChunkID != "doc1:0" {
		t.Error("node must carry its evidencing chunk id")
	}
}

func TestFallbackExtractsVocabularyTerms(t *testing.T) {
	ont := ontology.Default()
	fb := NewFallbackExtractor()

	chunk := testChunk("The jaw crusher operates at 500 tph. Output feeds the ball mill for grinding.")
	res, err := fb.Extract(context.Background(), chunk, ont)
	if err != nil {
		t.Fatal(err)
	}

	byName := map[string]common.Node{}
	for _, n := range res.Nodes {
		byName[n.Name] = n
	}

	crusher, ok := byName["jaw crusher"]
	if !ok {
		t.Fatal("jaw crusher not extracted")
	}
	if crusher.Type != "Equipment" {
		t.Errorf("jaw crusher type = %s", crusher.Type)
	}
	if crusher.Confidence != fallbackConfidence {
		t.Errorf("fallback confidence = %f", crusher.Confidence)
	}
	if crusher.Properties["capacity"] != "500 tph" {
		t.Errorf("capacity = %v", crusher.Properties["capacity"])
	}

	if _, ok := byName["ball mill"]; !ok {
		t.Error("ball mill not extracted")
	}
	if _, ok := byName["grinding"]; !ok {
		t.Error("grinding process not extracted")
	}

	if len(res.Edges) == 0 {
		t.Error("expected co-occurrence edges")
	}
	edgeTypes := map[string]string{}
	for _, e := range res.Edges {
		edgeTypes[e.SourceKey+">"+e.TargetKey] = e.Type
	}
	crusherKey := common.NodeKey("doc1", "Equipment", "jaw crusher")
	millKey := common.NodeKey("doc1", "Equipment", "ball mill")
	grindingKey := common.NodeKey("doc1", "Process", "grinding")
	if edgeTypes[crusherKey+">"+millKey] != "FEEDS" {
		t.Errorf("crusher->mill edge = %q, want FEEDS", edgeTypes[crusherKey+">"+millKey])
	}
	if edgeTypes[millKey+">"+grindingKey] != "RELATES_TO" {
		t.Errorf("mill->grinding edge = %q, want RELATES_TO", edgeTypes[millKey+">"+grindingKey])
	}
}

func TestFallbackTypesFlowEdges(t *testing.T) {
	ont := ontology.Default()
	fb := NewFallbackExtractor()

	res, err := fb.Extract(context.Background(), testChunk("The Jaw Crusher feeds the Ball Mill."), ont)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(res.Nodes))
	}
	for _, n := range res.Nodes {
		if n.Type != "Equipment" {
			t.Errorf("node %s type = %s, want Equipment", n.Name, n.Type)
		}
	}
	if len(res.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(res.Edges))
	}
	edge := res.Edges[0]
	if edge.Type != "FEEDS" {
		t.Errorf("edge type = %s, want FEEDS", edge.Type)
	}
	if edge.SourceKey != common.NodeKey("doc1", "Equipment", "jaw crusher") {
		t.Errorf("wrong source: %s", edge.SourceKey)
	}
	if edge.TargetKey != common.NodeKey("doc1", "Equipment", "ball mill") {
		t.Errorf("wrong target: %s", edge.TargetKey)
	}
}

func TestFallbackCoOccurrenceWithoutCueStaysGeneric(t *testing.T) {
	ont := ontology.Default()
	fb := NewFallbackExtractor()

	res, err := fb.Extract(context.Background(), testChunk("The jaw crusher and the ball mill are installed on site."), ont)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(res.Edges))
	}
	if res.Edges[0].Type != "RELATES_TO" {
		t.Errorf("edge type = %s, want RELATES_TO", res.Edges[0].Type)
	}
}

func TestFallbackNoHits(t *testing.T) {
	ont := ontology.Default()
	fb := NewFallbackExtractor()

	res, err := fb.Extract(context.Background(), testChunk("Nothing relevant appears here."), ont)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Nodes) != 0 || len(res.Edges) != 0 {
		t.Errorf("expected empty result, got %d nodes %d edges", len(res.Nodes), len(res.Edges))
	}
}

func TestPipelineUsesModelFirst(t *testing.T) {
	ont := ontology.Default()
	model := &stubExtractor{result: Result{
		ChunkID: "doc1:0",
		Nodes:   []common.Node{{Key: "doc1|Equipment|x", Type: "Equipment", Name: "x"}},
	}}
	fallback := &stubExtractor{}

	p := NewPipeline(model, fallback)
	res, err := p.Extract(context.Background(), testChunk("x"), ont)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusExtracted {
		t.Errorf("status = %s, want %s", res.Status, StatusExtracted)
	}
	if fallback.calls != 0 {
		t.Error("fallback should not run when model succeeds")
	}
}

func TestPipelineDegradesToFallback(t *testing.T) {
	ont := ontology.Default()
	model := &stubExtractor{err: errors.New("model unavailable")}
	fallback := &stubExtractor{result: Result{
		ChunkID: "doc1:0",
		Nodes:   []common.Node{{Key: "doc1|Equipment|y", Type: "Equipment", Name: "y"}},
	}}

	p := NewPipeline(model, fallback)
	res, err := p.Extract(context.Background(), testChunk("y"), ont)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusFallback {
		t.Errorf("status = %s, want %s", res.Status, StatusFallback)
	}
	if model.calls != 1 || fallback.calls != 1 {
		t.Errorf("calls: model=%d fallback=%d", model.calls, fallback.calls)
	}
}

func TestPipelineFailsWhenBothFail(t *testing.T) {
	ont := ontology.Default()
	model := &stubExtractor{err: errors.New("model unavailable")}
	fallback := &stubExtractor{err: errors.New("bad chunk")}

	p := NewPipeline(model, fallback)
	res, err := p.Extract(context.Background(), testChunk("z"), ont)
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Status != StatusFailed {
		t.Errorf("status = %s, want %s", res.Status, StatusFailed)
	}
}

func TestPipelineWithoutModel(t *testing.T) {
	ont := ontology.Default()
	fallback := &stubExtractor{result: Result{ChunkID: "doc1:0"}}

	p := NewPipeline(nil, fallback)
	res, err := p.Extract(context.Background(), testChunk("w"), ont)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusFallback {
		t.Errorf("status = %s, want %s", res.Status, StatusFallback)
	}
}
