package common

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Document is one ingested source. It is created when ingestion starts and is
// immutable afterwards; it acts as the provenance root every extracted graph
// node ultimately traces back to.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Page is a single page of extracted text as delivered by the upstream
// PDF/text extractor.
type Page struct {
	Number int    `json:"page"`
	Text   string `json:"text"`
}

// Chunk is a contiguous span of normalized text from a document. Chunks are
// the unit of embedding and of evidence linking: the vector store entry and
// any graph nodes evidenced by the text both reference the chunk by ID.
//
// Chunk IDs are a deterministic function of document ID and ordinal, so
// re-ingesting identical input produces identical IDs.
type Chunk struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	Ordinal     int    `json:"ordinal"`
	PageStart   int    `json:"page_start"`
	PageEnd     int    `json:"page_end"`
	SectionPath string `json:"section_path,omitempty"`
	Text        string `json:"text"`
	TokenCount  int    `json:"token_count"`
}

// Citation renders the chunk's provenance without a second lookup.
func (c Chunk) Citation(filename string) string {
	if c.PageStart == c.PageEnd {
		return fmt.Sprintf("%s, p. %d", filename, c.PageStart)
	}
	return fmt.Sprintf("%s, pp. %d-%d", filename, c.PageStart, c.PageEnd)
}

// ChunkID derives the stable chunk identifier for a document ordinal.
func ChunkID(docID string, ordinal int) string {
	return fmt.Sprintf("%s:%d", docID, ordinal)
}

// DocumentID derives a stable document identifier from the filename and the
// raw page text. Identical input yields an identical ID, which is what makes
// re-ingestion idempotent across both stores.
func DocumentID(filename string, pages []Page) string {
	h := sha256.New()
	h.Write([]byte(filename))
	for _, p := range pages {
		fmt.Fprintf(h, "\x00%d\x00", p.Number)
		h.Write([]byte(p.Text))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Node is a typed entity extracted from chunk text. Its identity is the
// natural key, not a surrogate ID, so repeated extraction across chunks
// merges instead of duplicating.
type Node struct {
	Key        string         `json:"key"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
	Confidence float64        `json:"confidence"`
	ChunkID    string         `json:"chunk_id"`
}

// Edge is a typed relationship between two nodes, identified by
// (source key, target key, type). Repeated evidence increments Occurrences
// rather than creating a parallel edge.
type Edge struct {
	SourceKey   string         `json:"source_key"`
	TargetKey   string         `json:"target_key"`
	Type        string         `json:"type"`
	Properties  map[string]any `json:"properties,omitempty"`
	Confidence  float64        `json:"confidence"`
	Occurrences int            `json:"occurrences"`
	ChunkID     string         `json:"chunk_id"`
}

// NodeKey builds the natural key for a node. Keys are namespaced by document
// so that entities extracted from different documents never collide.
func NodeKey(docID, nodeType, name string) string {
	return docID + "|" + nodeType + "|" + NormalizeName(name)
}

// NormalizeName canonicalizes an entity name for keying: lowercased,
// whitespace collapsed to single underscores.
func NormalizeName(name string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(name)))
	return strings.Join(fields, "_")
}

// ChunkFailure records a single chunk-level failure inside an otherwise
// successful ingestion run.
type ChunkFailure struct {
	ChunkID string `json:"chunk_id"`
	Stage   string `json:"stage"`
	Reason  string `json:"reason"`
}

// IngestSummary is the user-visible result of one ingestion job. Partial
// success carries an itemized failure list instead of aborting the batch.
type IngestSummary struct {
	DocumentID    string         `json:"document_id"`
	Filename      string         `json:"filename"`
	ChunksIndexed int            `json:"chunks_indexed"`
	NodesCreated  int            `json:"nodes_created"`
	EdgesCreated  int            `json:"edges_created"`
	Failures      []ChunkFailure `json:"failures"`
}

// Partial reports whether the run completed with chunk-level failures.
func (s IngestSummary) Partial() bool {
	return len(s.Failures) > 0
}
