package memory

import (
	"context"
	"testing"

	"github.com/minescope/backend/pkg/common"
)

func testNode(docID, typ, name string, confidence float64, props map[string]any) common.Node {
	return common.Node{
		Key:        common.NodeKey(docID, typ, name),
		Type:       typ,
		Name:       name,
		Properties: props,
		Confidence: confidence,
	}
}

func TestMergeNodeCreatesThenMerges(t *testing.T) {
	ctx := context.Background()
	g := NewGraphStore()

	created, err := g.MergeNode(ctx, testNode("doc1", "Equipment", "jaw crusher", 0.9, map[string]any{
		"capacity": "500 tph",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("first merge should create")
	}

	created, err = g.MergeNode(ctx, testNode("doc1", "Equipment", "jaw crusher", 0.7, map[string]any{
		"supplier": "Metso",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second merge should update, not create")
	}

	nodes, err := g.ListNodes(ctx, "doc1", "Equipment", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node after re-merge, got %d", len(nodes))
	}
	if nodes[0].Properties["capacity"] != "500 tph" {
		t.Error("existing property dropped on merge")
	}
	if nodes[0].Properties["supplier"] != "Metso" {
		t.Error("new property not added on merge")
	}
}

func TestMergeNodeConflictPolicy(t *testing.T) {
	ctx := context.Background()
	g := NewGraphStore()

	g.MergeNode(ctx, testNode("doc1", "Equipment", "ball mill", 0.8, map[string]any{
		"capacity": "100 tph",
	}))

	// Lower confidence must not overwrite.
	g.MergeNode(ctx, testNode("doc1", "Equipment", "ball mill", 0.5, map[string]any{
		"capacity": "90 tph",
	}))
	nodes, _ := g.ListNodes(ctx, "doc1", "", 0, 0)
	if nodes[0].Properties["capacity"] != "100 tph" {
		t.Errorf("low-confidence merge overwrote property: %v", nodes[0].Properties["capacity"])
	}

	// Equal confidence keeps the existing value.
	g.MergeNode(ctx, testNode("doc1", "Equipment", "ball mill", 0.8, map[string]any{
		"capacity": "95 tph",
	}))
	nodes, _ = g.ListNodes(ctx, "doc1", "", 0, 0)
	if nodes[0].Properties["capacity"] != "100 tph" {
		t.Errorf("tie merge overwrote property: %v", nodes[0].Properties["capacity"])
	}

	// Higher confidence wins.
	g.MergeNode(ctx, testNode("doc1", "Equipment", "ball mill", 0.95, map[string]any{
		"capacity": "120 tph",
	}))
	nodes, _ = g.ListNodes(ctx, "doc1", "", 0, 0)
	if nodes[0].Properties["capacity"] != "120 tph" {
		t.Errorf("high-confidence merge did not win: %v", nodes[0].Properties["capacity"])
	}
}

func TestMergeEdgeIncrementsOccurrences(t *testing.T) {
	ctx := context.Background()
	g := NewGraphStore()

	edge := common.Edge{
		SourceKey: common.NodeKey("doc1", "Equipment", "jaw crusher"),
		TargetKey: common.NodeKey("doc1", "Equipment", "ball mill"),
		Type:      "FEEDS",
	}

	created, err := g.MergeEdge(ctx, edge)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("first merge should create")
	}

	for range 2 {
		if created, _ := g.MergeEdge(ctx, edge); created {
			t.Error("re-merge should not create a parallel edge")
		}
	}

	edges, err := g.ListEdges(ctx, "doc1", "FEEDS", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
	if edges[0].Occurrences != 3 {
		t.Errorf("expected 3 occurrences, got %d", edges[0].Occurrences)
	}
}

func TestLinkEvidenceAndLookup(t *testing.T) {
	ctx := context.Background()
	g := NewGraphStore()

	node := testNode("doc1", "Equipment", "jaw crusher", 0.9, nil)
	g.MergeNode(ctx, node)

	if err := g.LinkEvidence(ctx, "doc1:0", node.Key); err != nil {
		t.Fatal(err)
	}
	// Idempotent per pair.
	if err := g.LinkEvidence(ctx, "doc1:0", node.Key); err != nil {
		t.Fatal(err)
	}

	nodes, err := g.NodesEvidencedBy(ctx, "doc1:0")
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || nodes[0].Key != node.Key {
		t.Errorf("unexpected evidenced nodes: %+v", nodes)
	}

	if err := g.LinkEvidence(ctx, "doc1:0", "doc1|Equipment|missing"); err == nil {
		t.Error("expected error linking to unknown node")
	}
}

func TestExpandBoundedHops(t *testing.T) {
	ctx := context.Background()
	g := NewGraphStore()

	// a -FEEDS-> b -FEEDS-> c -FEEDS-> d
	names := []string{"a", "b", "c", "d"}
	for _, n := range names {
		g.MergeNode(ctx, testNode("doc1", "Process", n, 0.9, nil))
	}
	for i := 0; i < len(names)-1; i++ {
		g.MergeEdge(ctx, common.Edge{
			SourceKey: common.NodeKey("doc1", "Process", names[i]),
			TargetKey: common.NodeKey("doc1", "Process", names[i+1]),
			Type:      "FEEDS",
		})
	}

	seed := []string{common.NodeKey("doc1", "Process", "a")}

	hood, err := g.Expand(ctx, seed, 1, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(hood.Nodes) != 2 {
		t.Errorf("1 hop should reach 2 nodes, got %d", len(hood.Nodes))
	}

	hood, err = g.Expand(ctx, seed, 3, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(hood.Nodes) != 4 {
		t.Errorf("3 hops should reach all 4 nodes, got %d", len(hood.Nodes))
	}
	if len(hood.Edges) != 3 {
		t.Errorf("expected 3 edges, got %d", len(hood.Edges))
	}

	hood, err = g.Expand(ctx, seed, 10, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hood.Nodes) > 2 {
		t.Errorf("node cap exceeded: %d", len(hood.Nodes))
	}
}

func TestDeleteDocumentScoped(t *testing.T) {
	ctx := context.Background()
	g := NewGraphStore()

	g.EnsureDocumentRoot(ctx, common.Document{ID: "doc1", Filename: "a.pdf"})
	g.EnsureDocumentRoot(ctx, common.Document{ID: "doc2", Filename: "b.pdf"})

	n1 := testNode("doc1", "Equipment", "jaw crusher", 0.9, nil)
	n2 := testNode("doc2", "Equipment", "ball mill", 0.9, nil)
	g.MergeNode(ctx, n1)
	g.MergeNode(ctx, n2)
	g.LinkEvidence(ctx, "doc1:0", n1.Key)
	g.LinkEvidence(ctx, "doc2:0", n2.Key)

	if err := g.DeleteDocument(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}

	nodes, _ := g.ListNodes(ctx, "doc1", "", 0, 0)
	if len(nodes) != 0 {
		t.Error("doc1 nodes survived deletion")
	}
	nodes, _ = g.ListNodes(ctx, "doc2", "", 0, 0)
	if len(nodes) != 1 {
		t.Error("doc2 nodes should be untouched")
	}
	evidenced, _ := g.NodesEvidencedBy(ctx, "doc1:0")
	if len(evidenced) != 0 {
		t.Error("doc1 evidence survived deletion")
	}
}
