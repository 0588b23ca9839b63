package pgx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/minescope/backend/pkg/embed"
	"github.com/minescope/backend/pkg/logger"
	"github.com/minescope/backend/pkg/store"

	"github.com/pgvector/pgvector-go"
)

// candidateMultiplier controls how many dense candidates are pulled from
// the index before sparse re-ranking. Re-ranking happens in process, so the
// window stays small.
const candidateMultiplier = 4

// Upsert writes chunk entries into the vector index in batches, keyed by
// chunk id. Re-submitting an id overwrites the prior entry.
func (s *Storage) Upsert(ctx context.Context, entries []store.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}

	logger.Debug("upserting vector entries", "entries", len(entries))

	return store.ChunkRange(len(entries), 500, func(start, end int) error {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		for _, e := range entries[start:end] {
			sparseJSON, err := json.Marshal(e.Sparse)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO chunks (
					chunk_id, document_id, filename, page_start, page_end,
					section_path, text, dense, sparse, sparse_version
				)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (chunk_id) DO UPDATE SET
					document_id = EXCLUDED.document_id,
					filename = EXCLUDED.filename,
					page_start = EXCLUDED.page_start,
					page_end = EXCLUDED.page_end,
					section_path = EXCLUDED.section_path,
					text = EXCLUDED.text,
					dense = EXCLUDED.dense,
					sparse = EXCLUDED.sparse,
					sparse_version = EXCLUDED.sparse_version,
					updated_at = now()
			`, e.ChunkID, e.DocumentID, e.Filename, e.PageStart, e.PageEnd,
				e.SectionPath, e.Text, pgvector.NewVector(e.Dense), sparseJSON, e.SparseVersion)
			if err != nil {
				return fmt.Errorf("failed to upsert chunk %s: %w", e.ChunkID, err)
			}
		}

		return tx.Commit(ctx)
	})
}

// Query pulls a dense candidate window ordered by cosine distance, then
// re-ranks it with the fused dense+sparse score. Entries indexed under a
// different sparse vocabulary version score dense-only.
func (s *Storage) Query(
	ctx context.Context,
	dense []float32,
	sparse embed.SparseVector,
	sparseVersion string,
	topK int,
	filter store.Filter,
) ([]store.VectorMatch, error) {
	if topK <= 0 {
		return nil, nil
	}

	limit := topK * candidateMultiplier
	args := []any{pgvector.NewVector(dense), limit}
	sql := `
		SELECT chunk_id, document_id, filename, page_start, page_end,
		       section_path, text, dense, sparse, sparse_version,
		       1 - (dense <=> $1) AS dense_score
		FROM chunks
	`
	if filter.DocumentID != "" {
		sql += ` WHERE document_id = $3`
		args = append(args, filter.DocumentID)
	}
	sql += ` ORDER BY dense <=> $1 LIMIT $2`

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []store.VectorMatch
	for rows.Next() {
		var (
			m          store.VectorMatch
			denseVec   pgvector.Vector
			sparseJSON []byte
		)
		if err := rows.Scan(
			&m.ChunkID, &m.DocumentID, &m.Filename, &m.PageStart, &m.PageEnd,
			&m.SectionPath, &m.Text, &denseVec, &sparseJSON, &m.SparseVersion,
			&m.DenseScore,
		); err != nil {
			return nil, err
		}
		m.Dense = denseVec.Slice()
		if err := json.Unmarshal(sparseJSON, &m.Sparse); err != nil {
			return nil, err
		}

		if m.SparseVersion == sparseVersion {
			m.SparseScore = store.SparseSimilarity(sparse, m.Sparse)
		}
		m.Score = store.FuseScores(m.DenseScore, m.SparseScore)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteDocument removes every indexed chunk of the document.
func (s *Storage) DeleteDocument(ctx context.Context, documentID string) error {
	tag, err := s.conn.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return err
	}
	logger.Debug("deleted document chunks", "document", documentID, "chunks", tag.RowsAffected())
	return s.deleteDocumentGraph(ctx, documentID)
}
