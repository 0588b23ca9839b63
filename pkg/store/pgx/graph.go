package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/minescope/backend/pkg/common"
	"github.com/minescope/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// foreign_key_violation
const pgErrForeignKey = "23503"

// EnsureDocumentRoot merge-creates the provenance root for the document.
func (s *Storage) EnsureDocumentRoot(ctx context.Context, doc common.Document) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO documents (document_id, filename, ingested_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id) DO NOTHING
	`, doc.ID, doc.Filename, doc.IngestedAt)
	return err
}

// MergeNode creates the node or merges it into the existing one with the
// same key. The row is locked for the read-merge-write so concurrent chunk
// workers cannot lose property updates.
func (s *Storage) MergeNode(ctx context.Context, node common.Node) (bool, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var (
		existingJSON       []byte
		existingConfidence float64
	)
	err = tx.QueryRow(ctx, `
		SELECT properties, confidence FROM graph_nodes WHERE key = $1 FOR UPDATE
	`, node.Key).Scan(&existingJSON, &existingConfidence)

	created := false
	switch {
	case errors.Is(err, pgxv5.ErrNoRows):
		created = true
	case err != nil:
		return false, err
	default:
		var existing map[string]any
		if err := json.Unmarshal(existingJSON, &existing); err != nil {
			return false, err
		}
		node.Properties = mergeProperties(existing, existingConfidence, node.Properties, node.Confidence)
		if node.Confidence < existingConfidence {
			node.Confidence = existingConfidence
		}
	}

	propsJSON, err := json.Marshal(node.Properties)
	if err != nil {
		return false, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO graph_nodes (key, document_id, node_type, name, properties, confidence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE SET
			properties = EXCLUDED.properties,
			confidence = EXCLUDED.confidence,
			updated_at = now()
	`, node.Key, keyDocumentID(node.Key), node.Type, node.Name, propsJSON, node.Confidence)
	if err != nil {
		return false, fmt.Errorf("failed to merge node %s: %w", node.Key, err)
	}

	return created, tx.Commit(ctx)
}

// mergeProperties folds incoming properties into existing ones. New keys
// add; a conflicting value wins only with strictly higher confidence.
func mergeProperties(existing map[string]any, existingConf float64, incoming map[string]any, incomingConf float64) map[string]any {
	if existing == nil {
		existing = map[string]any{}
	}
	for prop, val := range incoming {
		current, present := existing[prop]
		if !present {
			existing[prop] = val
			continue
		}
		if current != val && incomingConf > existingConf {
			existing[prop] = val
		}
	}
	return existing
}

// MergeEdge creates the edge or increments the occurrence counter of the
// existing one with the same (source, target, type).
func (s *Storage) MergeEdge(ctx context.Context, edge common.Edge) (bool, error) {
	if edge.Occurrences <= 0 {
		edge.Occurrences = 1
	}
	propsJSON, err := json.Marshal(edge.Properties)
	if err != nil {
		return false, err
	}

	var created bool
	err = s.conn.QueryRow(ctx, `
		INSERT INTO graph_edges (source_key, target_key, edge_type, properties, confidence, occurrences)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_key, target_key, edge_type) DO UPDATE SET
			occurrences = graph_edges.occurrences + 1,
			properties = graph_edges.properties || EXCLUDED.properties,
			confidence = GREATEST(graph_edges.confidence, EXCLUDED.confidence),
			updated_at = now()
		RETURNING (xmax = 0)
	`, edge.SourceKey, edge.TargetKey, edge.Type, propsJSON, edge.Confidence, edge.Occurrences).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("failed to merge edge %s-[%s]->%s: %w", edge.SourceKey, edge.Type, edge.TargetKey, err)
	}
	return created, nil
}

// LinkEvidence records a MENTIONS link from the chunk to the node,
// idempotent per pair. Unknown node keys fail the foreign key and surface
// as store.ErrNotFound.
func (s *Storage) LinkEvidence(ctx context.Context, chunkID string, nodeKey string) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO evidence (chunk_id, node_key)
		VALUES ($1, $2)
		ON CONFLICT (chunk_id, node_key) DO NOTHING
	`, chunkID, nodeKey)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrForeignKey {
			return fmt.Errorf("%w: node %s", store.ErrNotFound, nodeKey)
		}
		return fmt.Errorf("failed to link evidence %s -> %s: %w", chunkID, nodeKey, err)
	}
	return nil
}

// NodesEvidencedBy returns the nodes linked to the chunk.
func (s *Storage) NodesEvidencedBy(ctx context.Context, chunkID string) ([]common.Node, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT n.key, n.node_type, n.name, n.properties, n.confidence
		FROM evidence e
		JOIN graph_nodes n ON n.key = e.node_key
		WHERE e.chunk_id = $1
		ORDER BY n.key
	`, chunkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodes(rows)
}

// Expand walks outward from the seed nodes one hop at a time, stopping at
// maxHops or once maxNodes nodes are collected.
func (s *Storage) Expand(ctx context.Context, seedKeys []string, maxHops int, maxNodes int) (store.Neighborhood, error) {
	var out store.Neighborhood
	if maxNodes <= 0 || len(seedKeys) == 0 {
		return out, nil
	}

	visited := make(map[string]bool)
	frontier := make([]string, 0, len(seedKeys))

	seeds, err := s.nodesByKeys(ctx, seedKeys)
	if err != nil {
		return out, err
	}
	for _, node := range seeds {
		visited[node.Key] = true
		frontier = append(frontier, node.Key)
		out.Nodes = append(out.Nodes, node)
	}

	edgeSeen := make(map[string]bool)
	for hop := 0; hop < maxHops && len(frontier) > 0 && len(out.Nodes) < maxNodes; hop++ {
		rows, err := s.conn.Query(ctx, `
			SELECT source_key, target_key, edge_type, properties, confidence, occurrences
			FROM graph_edges
			WHERE source_key = ANY($1) OR target_key = ANY($1)
			ORDER BY source_key, target_key, edge_type
		`, frontier)
		if err != nil {
			return out, err
		}
		edges, err := scanEdges(rows)
		if err != nil {
			return out, err
		}

		var nextKeys []string
		for _, edge := range edges {
			id := edge.SourceKey + "\x00" + edge.TargetKey + "\x00" + edge.Type
			if !edgeSeen[id] {
				edgeSeen[id] = true
				out.Edges = append(out.Edges, edge)
			}
			for _, other := range []string{edge.SourceKey, edge.TargetKey} {
				if !visited[other] {
					visited[other] = true
					nextKeys = append(nextKeys, other)
				}
			}
		}

		if len(nextKeys) == 0 {
			break
		}
		nodes, err := s.nodesByKeys(ctx, nextKeys)
		if err != nil {
			return out, err
		}
		frontier = frontier[:0]
		for _, node := range nodes {
			if len(out.Nodes) >= maxNodes {
				break
			}
			out.Nodes = append(out.Nodes, node)
			frontier = append(frontier, node.Key)
		}
	}

	return out, nil
}

func (s *Storage) nodesByKeys(ctx context.Context, keys []string) ([]common.Node, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT key, node_type, name, properties, confidence
		FROM graph_nodes
		WHERE key = ANY($1)
		ORDER BY key
	`, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodes(rows)
}

// ListNodes returns nodes of a document, optionally filtered by type.
func (s *Storage) ListNodes(ctx context.Context, documentID string, nodeType string, limit int, offset int) ([]common.Node, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.conn.Query(ctx, `
		SELECT key, node_type, name, properties, confidence
		FROM graph_nodes
		WHERE ($1 = '' OR document_id = $1)
		  AND ($2 = '' OR node_type = $2)
		ORDER BY key
		LIMIT $3 OFFSET $4
	`, documentID, nodeType, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNodes(rows)
}

// ListEdges returns edges of a document, optionally filtered by type.
func (s *Storage) ListEdges(ctx context.Context, documentID string, edgeType string, limit int, offset int) ([]common.Edge, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.conn.Query(ctx, `
		SELECT e.source_key, e.target_key, e.edge_type, e.properties, e.confidence, e.occurrences
		FROM graph_edges e
		JOIN graph_nodes n ON n.key = e.source_key
		WHERE ($1 = '' OR n.document_id = $1)
		  AND ($2 = '' OR e.edge_type = $2)
		ORDER BY e.source_key, e.target_key, e.edge_type
		LIMIT $3 OFFSET $4
	`, documentID, edgeType, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEdges(rows)
}

func (s *Storage) deleteDocumentGraph(ctx context.Context, documentID string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	statements := []string{
		`DELETE FROM evidence WHERE node_key IN (SELECT key FROM graph_nodes WHERE document_id = $1)`,
		`DELETE FROM graph_edges WHERE source_key IN (SELECT key FROM graph_nodes WHERE document_id = $1)
			OR target_key IN (SELECT key FROM graph_nodes WHERE document_id = $1)`,
		`DELETE FROM graph_nodes WHERE document_id = $1`,
		`DELETE FROM documents WHERE document_id = $1`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt, documentID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func scanNodes(rows pgxv5.Rows) ([]common.Node, error) {
	var nodes []common.Node
	for rows.Next() {
		var (
			node      common.Node
			propsJSON []byte
		)
		if err := rows.Scan(&node.Key, &node.Type, &node.Name, &propsJSON, &node.Confidence); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(propsJSON, &node.Properties); err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

func scanEdges(rows pgxv5.Rows) ([]common.Edge, error) {
	defer rows.Close()
	var edges []common.Edge
	for rows.Next() {
		var (
			edge      common.Edge
			propsJSON []byte
		)
		if err := rows.Scan(&edge.SourceKey, &edge.TargetKey, &edge.Type, &propsJSON, &edge.Confidence, &edge.Occurrences); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(propsJSON, &edge.Properties); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

func keyDocumentID(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i]
		}
	}
	return key
}
