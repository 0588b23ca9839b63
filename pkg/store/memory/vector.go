package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/minescope/backend/pkg/embed"
	"github.com/minescope/backend/pkg/store"
)

// VectorStore is an in-memory store.VectorStore used in tests and local
// development. It applies the same fused scoring as the Postgres-backed
// implementation.
type VectorStore struct {
	mu      sync.RWMutex
	entries map[string]store.VectorEntry
}

// NewVectorStore creates an empty in-memory vector store.
func NewVectorStore() *VectorStore {
	return &VectorStore{
		entries: make(map[string]store.VectorEntry),
	}
}

// Upsert stores entries keyed by chunk id, overwriting prior versions.
func (s *VectorStore) Upsert(ctx context.Context, entries []store.VectorEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries[e.ChunkID] = e
	}
	return nil
}

// Query ranks all stored entries by fused dense+sparse score and returns
// the top K passing the filter. Entries whose sparse vocabulary version
// differs from the query's score dense-only.
func (s *VectorStore) Query(
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

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]store.VectorMatch, 0, len(s.entries))
	for _, e := range s.entries {
		if filter.DocumentID != "" && e.DocumentID != filter.DocumentID {
			continue
		}

		denseScore := store.CosineSimilarity(dense, e.Dense)
		var sparseScore float32
		if e.SparseVersion == sparseVersion {
			sparseScore = store.SparseSimilarity(sparse, e.Sparse)
		}

		matches = append(matches, store.VectorMatch{
			VectorEntry: e,
			Score:       store.FuseScores(denseScore, sparseScore),
			DenseScore:  denseScore,
			SparseScore: sparseScore,
		})
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

// DeleteDocument removes all entries belonging to the document.
func (s *VectorStore) DeleteDocument(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.DocumentID == documentID {
			delete(s.entries, id)
		}
	}
	return nil
}

// Len returns the number of stored entries.
func (s *VectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
