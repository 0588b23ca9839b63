package extract

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/minescope/backend/pkg/common"
	"github.com/minescope/backend/pkg/ontology"
)

// fallbackConfidence marks rule-based results so later model-based
// extraction of the same entities wins property conflicts.
const fallbackConfidence = 0.3

var reNumberWithUnit = regexp.MustCompile(
	`(?i)\b(\d+(?:[.,]\d+)?)\s*(tph|t/h|tpd|t/d|kw|mw|kwh|mwh|mm|cm|km|kg|t|m3|m|l|%|usd|eur|h|hours?|years?)\b`,
)

// reFeedsCue matches the verbs that signal material flow between two
// mentions, e.g. "the crusher feeds the mill". Applied to lowercased text.
var reFeedsCue = regexp.MustCompile(
	`\b(feeds?|feeding|discharges?\s+(?:in)?to|conveys?\s+to)\b`,
)

// FallbackExtractor is the rule-based extraction path used when no model is
// configured or the model fails. It matches ontology vocabulary terms in
// the chunk text and attaches numeric values with units found near a match.
type FallbackExtractor struct{}

// NewFallbackExtractor creates the rule-based extractor.
func NewFallbackExtractor() *FallbackExtractor {
	return &FallbackExtractor{}
}

type termHit struct {
	term   string
	typ    string
	offset int
}

// Extract scans the chunk for vocabulary terms and number-with-unit
// mentions. Found entities become low-confidence nodes; entities
// co-occurring in the chunk are connected with RELATES_TO edges, upgraded
// to FEEDS when a flow verb appears between the two mentions.
func (e *FallbackExtractor) Extract(ctx context.Context, chunk common.Chunk, ont *ontology.Ontology) (Result, error) {
	out := Result{ChunkID: chunk.ID}
	haystack := strings.ToLower(chunk.Text)

	var hits []termHit
	seen := make(map[string]bool)
	for term, typ := range ont.Vocabulary {
		idx := indexWord(haystack, strings.ToLower(term))
		if idx < 0 || seen[term] {
			continue
		}
		seen[term] = true
		hits = append(hits, termHit{term: term, typ: typ, offset: idx})
	}
	if len(hits) == 0 {
		return out, nil
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].offset < hits[j].offset })

	quantities := reNumberWithUnit.FindAllStringSubmatchIndex(chunk.Text, -1)

	for _, hit := range hits {
		props := map[string]any{}
		if value, unit, ok := nearestQuantity(chunk.Text, quantities, hit.offset); ok {
			setQuantityProps(props, ont, hit.typ, value, unit)
		}
		out.Nodes = append(out.Nodes, common.Node{
			Key:        common.NodeKey(chunk.DocumentID, hit.typ, hit.term),
			Type:       hit.typ,
			Name:       hit.term,
			Properties: props,
			Confidence: fallbackConfidence,
			ChunkID:    chunk.ID,
		})
	}

	for i := 0; i < len(hits)-1; i++ {
		a, b := hits[i], hits[i+1]
		edgeType := "RELATES_TO"
		if hasFeedsCue(haystack, a, b) && ont.AllowsEdge("FEEDS", a.typ, b.typ) {
			edgeType = "FEEDS"
		}
		if !ont.AllowsEdge(edgeType, a.typ, b.typ) {
			continue
		}
		out.Edges = append(out.Edges, common.Edge{
			SourceKey:  common.NodeKey(chunk.DocumentID, a.typ, a.term),
			TargetKey:  common.NodeKey(chunk.DocumentID, b.typ, b.term),
			Type:       edgeType,
			Confidence: fallbackConfidence,
			ChunkID:    chunk.ID,
		})
	}

	return out, nil
}

// hasFeedsCue reports whether a flow verb appears in the text between two
// term mentions. Overlapping mentions have no text between them.
func hasFeedsCue(haystack string, a, b termHit) bool {
	start := a.offset + len(a.term)
	if start >= b.offset {
		return false
	}
	return reFeedsCue.MatchString(haystack[start:b.offset])
}

// indexWord finds needle in haystack at a word boundary.
func indexWord(haystack, needle string) int {
	from := 0
	for {
		idx := strings.Index(haystack[from:], needle)
		if idx < 0 {
			return -1
		}
		idx += from
		end := idx + len(needle)
		startOK := idx == 0 || !isWordByte(haystack[idx-1])
		endOK := end >= len(haystack) || !isWordByte(haystack[end])
		if startOK && endOK {
			return idx
		}
		from = idx + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// nearestQuantity returns the number+unit mention closest after the entity
// mention, within a short window.
func nearestQuantity(text string, quantities [][]int, offset int) (string, string, bool) {
	const window = 120
	for _, q := range quantities {
		if q[0] >= offset && q[0]-offset <= window {
			return text[q[2]:q[3]], strings.ToLower(text[q[4]:q[5]]), true
		}
	}
	return "", "", false
}

// setQuantityProps maps a numeric mention onto whichever quantity-like
// property the node type allows.
func setQuantityProps(props map[string]any, ont *ontology.Ontology, typ, value, unit string) {
	switch {
	case ont.AllowsProperty(typ, "capacity"):
		props["capacity"] = value + " " + unit
	case ont.AllowsProperty(typ, "capacity_value"):
		props["capacity_value"] = value
		props["capacity_unit"] = unit
	case ont.AllowsProperty(typ, "quantity"):
		props["quantity"] = value
		props["unit"] = unit
	}
}
