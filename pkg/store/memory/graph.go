package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/minescope/backend/pkg/common"
	"github.com/minescope/backend/pkg/store"
)

type edgeKey struct {
	source string
	target string
	typ    string
}

// GraphStore is an in-memory store.GraphStore used in tests and local
// development. It implements the same merge-on-key semantics as the
// Postgres-backed implementation.
type GraphStore struct {
	mu       sync.RWMutex
	roots    map[string]common.Document
	nodes    map[string]common.Node
	edges    map[edgeKey]common.Edge
	evidence map[string]map[string]bool // chunk id -> node keys
}

// NewGraphStore creates an empty in-memory graph store.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		roots:    make(map[string]common.Document),
		nodes:    make(map[string]common.Node),
		edges:    make(map[edgeKey]common.Edge),
		evidence: make(map[string]map[string]bool),
	}
}

// EnsureDocumentRoot merge-creates the provenance root for the document.
func (s *GraphStore) EnsureDocumentRoot(ctx context.Context, doc common.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roots[doc.ID]; !ok {
		s.roots[doc.ID] = doc
	}
	return nil
}

// MergeNode creates the node or merges it into the existing one with the
// same key. New properties add; conflicting scalar properties keep the
// higher-confidence value, ties keep the existing value.
func (s *GraphStore) MergeNode(ctx context.Context, node common.Node) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.nodes[node.Key]
	if !ok {
		if node.Properties == nil {
			node.Properties = map[string]any{}
		}
		s.nodes[node.Key] = node
		return true, nil
	}

	for prop, val := range node.Properties {
		current, present := existing.Properties[prop]
		if !present {
			existing.Properties[prop] = val
			continue
		}
		if current != val && node.Confidence > existing.Confidence {
			existing.Properties[prop] = val
		}
	}
	if node.Confidence > existing.Confidence {
		existing.Confidence = node.Confidence
	}
	s.nodes[node.Key] = existing
	return false, nil
}

// MergeEdge creates the edge or, when one with the same (source, target,
// type) exists, increments its occurrence counter.
func (s *GraphStore) MergeEdge(ctx context.Context, edge common.Edge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := edgeKey{source: edge.SourceKey, target: edge.TargetKey, typ: edge.Type}
	existing, ok := s.edges[key]
	if !ok {
		if edge.Occurrences <= 0 {
			edge.Occurrences = 1
		}
		if edge.Properties == nil {
			edge.Properties = map[string]any{}
		}
		s.edges[key] = edge
		return true, nil
	}

	existing.Occurrences++
	for prop, val := range edge.Properties {
		if _, present := existing.Properties[prop]; !present {
			existing.Properties[prop] = val
		}
	}
	if edge.Confidence > existing.Confidence {
		existing.Confidence = edge.Confidence
	}
	s.edges[key] = existing
	return false, nil
}

// LinkEvidence records that the chunk evidences the node. Unknown node keys
// return store.ErrNotFound.
func (s *GraphStore) LinkEvidence(ctx context.Context, chunkID string, nodeKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[nodeKey]; !ok {
		return store.ErrNotFound
	}
	if s.evidence[chunkID] == nil {
		s.evidence[chunkID] = make(map[string]bool)
	}
	s.evidence[chunkID][nodeKey] = true
	return nil
}

// NodesEvidencedBy returns the nodes linked to the chunk, sorted by key.
func (s *GraphStore) NodesEvidencedBy(ctx context.Context, chunkID string) ([]common.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.evidence[chunkID]))
	for key := range s.evidence[chunkID] {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	nodes := make([]common.Node, 0, len(keys))
	for _, key := range keys {
		if node, ok := s.nodes[key]; ok {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

// Expand walks outward from the seed nodes up to maxHops relationship hops,
// stopping early once maxNodes nodes are collected. Traversal order is
// deterministic.
func (s *GraphStore) Expand(ctx context.Context, seedKeys []string, maxHops int, maxNodes int) (store.Neighborhood, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out store.Neighborhood
	if maxNodes <= 0 || len(seedKeys) == 0 {
		return out, nil
	}

	visited := make(map[string]bool)
	frontier := make([]string, 0, len(seedKeys))
	for _, key := range seedKeys {
		if _, ok := s.nodes[key]; ok && !visited[key] {
			visited[key] = true
			frontier = append(frontier, key)
		}
	}
	sort.Strings(frontier)

	for _, key := range frontier {
		out.Nodes = append(out.Nodes, s.nodes[key])
	}

	edgeSeen := make(map[edgeKey]bool)
	for hop := 0; hop < maxHops && len(frontier) > 0 && len(out.Nodes) < maxNodes; hop++ {
		var next []string
		for _, ek := range s.sortedEdgeKeys() {
			edge := s.edges[ek]
			for _, key := range frontier {
				var other string
				switch key {
				case edge.SourceKey:
					other = edge.TargetKey
				case edge.TargetKey:
					other = edge.SourceKey
				default:
					continue
				}
				if !edgeSeen[ek] {
					edgeSeen[ek] = true
					out.Edges = append(out.Edges, edge)
				}
				if visited[other] {
					continue
				}
				node, ok := s.nodes[other]
				if !ok || len(out.Nodes) >= maxNodes {
					continue
				}
				visited[other] = true
				out.Nodes = append(out.Nodes, node)
				next = append(next, other)
			}
		}
		sort.Strings(next)
		frontier = next
	}

	return out, nil
}

func (s *GraphStore) sortedEdgeKeys() []edgeKey {
	keys := make([]edgeKey, 0, len(s.edges))
	for k := range s.edges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].source != keys[j].source {
			return keys[i].source < keys[j].source
		}
		if keys[i].target != keys[j].target {
			return keys[i].target < keys[j].target
		}
		return keys[i].typ < keys[j].typ
	})
	return keys
}

// ListNodes returns nodes belonging to the document, optionally filtered by
// type, sorted by key.
func (s *GraphStore) ListNodes(ctx context.Context, documentID string, nodeType string, limit int, offset int) ([]common.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nodes []common.Node
	for _, key := range s.sortedNodeKeys() {
		node := s.nodes[key]
		if documentID != "" && keyDocumentID(key) != documentID {
			continue
		}
		if nodeType != "" && node.Type != nodeType {
			continue
		}
		nodes = append(nodes, node)
	}
	return paginate(nodes, limit, offset), nil
}

// ListEdges returns edges belonging to the document, optionally filtered by
// type, in deterministic order.
func (s *GraphStore) ListEdges(ctx context.Context, documentID string, edgeType string, limit int, offset int) ([]common.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var edges []common.Edge
	for _, ek := range s.sortedEdgeKeys() {
		if documentID != "" && keyDocumentID(ek.source) != documentID {
			continue
		}
		if edgeType != "" && ek.typ != edgeType {
			continue
		}
		edges = append(edges, s.edges[ek])
	}
	return paginate(edges, limit, offset), nil
}

// DeleteDocument removes the document root and every node, edge, and
// evidence link belonging to the document.
func (s *GraphStore) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.roots, documentID)
	for key := range s.nodes {
		if keyDocumentID(key) == documentID {
			delete(s.nodes, key)
		}
	}
	for ek := range s.edges {
		if keyDocumentID(ek.source) == documentID || keyDocumentID(ek.target) == documentID {
			delete(s.edges, ek)
		}
	}
	for chunkID, nodeKeys := range s.evidence {
		for key := range nodeKeys {
			if keyDocumentID(key) == documentID {
				delete(nodeKeys, key)
			}
		}
		if len(nodeKeys) == 0 {
			delete(s.evidence, chunkID)
		}
	}
	return nil
}

func (s *GraphStore) sortedNodeKeys() []string {
	keys := make([]string, 0, len(s.nodes))
	for k := range s.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func keyDocumentID(nodeKey string) string {
	docID, _, _ := strings.Cut(nodeKey, "|")
	return docID
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
