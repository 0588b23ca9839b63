package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/minescope/backend/pkg/common"

	"github.com/pkoukk/tiktoken-go"
)

// Chunker splits extracted page text into overlapping, provenance-tagged
// chunks sized by token count.
//
// Chunking is deterministic: identical input pages always produce identical
// chunk boundaries and chunk IDs, which keeps re-ingestion idempotent.
type Chunker struct {
	encoder       string
	maxTokens     int
	overlapTokens int
}

// Params configures a new Chunker.
//
// Encoder names the tiktoken encoding used for token budgeting.
// MaxTokens caps the size of one chunk; OverlapTokens controls how much
// trailing text is repeated at the start of the next chunk.
type Params struct {
	Encoder       string
	MaxTokens     int
	OverlapTokens int
}

// New creates a Chunker, applying defaults for zero-valued parameters.
func New(params Params) (*Chunker, error) {
	if params.Encoder == "" {
		params.Encoder = "o200k_base"
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = 400
	}
	if params.OverlapTokens < 0 {
		params.OverlapTokens = 0
	}
	if params.OverlapTokens >= params.MaxTokens {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", params.OverlapTokens, params.MaxTokens)
	}

	if _, err := tiktoken.GetEncoding(params.Encoder); err != nil {
		return nil, fmt.Errorf("unknown token encoder %q: %w", params.Encoder, err)
	}

	return &Chunker{
		encoder:       params.Encoder,
		maxTokens:     params.MaxTokens,
		overlapTokens: params.OverlapTokens,
	}, nil
}

// sentence is a text span with the page it came from and the section heading
// in effect where it starts.
type sentence struct {
	text    string
	page    int
	section string
	tokens  int
}

// Split carves the ordered pages of a document into chunks. Pages with
// empty or whitespace-only text contribute nothing but do not break the
// ordinal continuity of later chunks. A chunk spanning a page boundary
// records the full covered page range.
func (c *Chunker) Split(docID string, pages []common.Page) ([]common.Chunk, error) {
	enc, err := tiktoken.GetEncoding(c.encoder)
	if err != nil {
		return nil, err
	}

	sentences := c.collectSentences(enc, pages)
	if len(sentences) == 0 {
		return nil, nil
	}

	var chunks []common.Chunk
	start := 0
	for start < len(sentences) {
		end := start
		total := 0
		for end < len(sentences) {
			next := sentences[end].tokens
			if total+next > c.maxTokens && end > start {
				break
			}
			total += next
			end++
		}

		chunks = append(chunks, c.buildChunk(docID, len(chunks), sentences[start:end], total))

		if end >= len(sentences) {
			break
		}
		start = c.overlapStart(sentences, start, end)
	}

	return chunks, nil
}

func (c *Chunker) buildChunk(docID string, ordinal int, span []sentence, tokens int) common.Chunk {
	var text strings.Builder
	pageStart := span[0].page
	pageEnd := span[0].page
	for i, s := range span {
		if i > 0 {
			text.WriteString(" ")
		}
		text.WriteString(s.text)
		if s.page < pageStart {
			pageStart = s.page
		}
		if s.page > pageEnd {
			pageEnd = s.page
		}
	}

	return common.Chunk{
		ID:          common.ChunkID(docID, ordinal),
		DocumentID:  docID,
		Ordinal:     ordinal,
		PageStart:   pageStart,
		PageEnd:     pageEnd,
		SectionPath: span[0].section,
		Text:        sanitize(text.String()),
		TokenCount:  tokens,
	}
}

// overlapStart walks back from end until roughly overlapTokens worth of
// sentences are repeated, without re-starting at or before the previous
// chunk's first sentence.
func (c *Chunker) overlapStart(sentences []sentence, prevStart, end int) int {
	if c.overlapTokens == 0 {
		return end
	}
	start := end
	carried := 0
	for start > prevStart+1 {
		carried += sentences[start-1].tokens
		if carried > c.overlapTokens {
			break
		}
		start--
	}
	return start
}

var reHeading = regexp.MustCompile(`^(\d+\.?\s*)?[A-Z][A-Z\-\s]{4,}$`)

func (c *Chunker) collectSentences(enc *tiktoken.Tiktoken, pages []common.Page) []sentence {
	var out []sentence
	section := ""

	for _, page := range pages {
		cleaned := sanitize(page.Text)
		if cleaned == "" {
			continue
		}

		for _, line := range strings.Split(cleaned, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if reHeading.MatchString(trimmed) {
				section = trimmed
				continue
			}
			for _, s := range splitLineIntoSentences(trimmed) {
				out = append(out, sentence{
					text:    s,
					page:    page.Number,
					section: section,
					tokens:  len(enc.Encode(s, nil, nil)),
				})
			}
		}
	}

	return out
}

func splitLineIntoSentences(line string) []string {
	var sentences []string
	var current strings.Builder

	for i := 0; i < len(line); i++ {
		current.WriteByte(line[i])

		if line[i] != '.' && line[i] != '!' && line[i] != '?' {
			continue
		}

		// "1. Site prep" style numeric listings are not sentence ends.
		if i > 0 && unicode.IsDigit(rune(line[i-1])) && i+1 < len(line) && line[i+1] == ' ' {
			continue
		}

		j := i + 1
		for j < len(line) && (line[j] == '.' || line[j] == '!' || line[j] == '?') {
			current.WriteByte(line[j])
			j++
		}
		for j < len(line) && (line[j] == '"' || line[j] == '\'' || line[j] == ')' ||
			line[j] == ']' || line[j] == '}') {
			current.WriteByte(line[j])
			j++
		}

		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
		i = j - 1
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
