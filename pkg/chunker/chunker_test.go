package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/minescope/backend/pkg/common"
)

func testPages() []common.Page {
	return []common.Page{
		{Number: 1, Text: "PROCESS OVERVIEW\nThe plant receives run-of-mine ore by truck. The primary jaw crusher reduces feed to 150 mm. Crushed rock is conveyed to the mill stockpile."},
		{Number: 2, Text: "   \n\t"},
		{Number: 3, Text: "The ball mill grinds stockpile material in closed circuit. Cyclone overflow reports to flotation. Concentrate is thickened and filtered before dispatch."},
	}
}

func TestSplitDeterministic(t *testing.T) {
	c, err := New(Params{MaxTokens: 64, OverlapTokens: 8})
	if err != nil {
		t.Fatal(err)
	}

	first, err := c.Split("doc1", testPages())
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Split("doc1", testPages())
	if err != nil {
		t.Fatal(err)
	}

	if len(first) == 0 {
		t.Fatal("expected chunks")
	}
	if len(first) != len(second) {
		t.Fatalf("chunk count differs between runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Text != second[i].Text {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestSplitChunkIDsAndOrdinals(t *testing.T) {
	c, err := New(Params{MaxTokens: 24})
	if err != nil {
		t.Fatal(err)
	}

	chunks, err := c.Split("doc1", testPages())
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i, chunk := range chunks {
		if chunk.Ordinal != i {
			t.Errorf("chunk %d has ordinal %d", i, chunk.Ordinal)
		}
		want := fmt.Sprintf("doc1:%d", i)
		if chunk.ID != want {
			t.Errorf("chunk %d has id %q, want %q", i, chunk.ID, want)
		}
		if chunk.DocumentID != "doc1" {
			t.Errorf("chunk %d has document id %q", i, chunk.DocumentID)
		}
	}
}

func TestSplitSkipsEmptyPagesKeepsPageNumbers(t *testing.T) {
	c, err := New(Params{MaxTokens: 512})
	if err != nil {
		t.Fatal(err)
	}

	chunks, err := c.Split("doc1", testPages())
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected a single chunk, got %d", len(chunks))
	}

	chunk := chunks[0]
	if chunk.PageStart != 1 || chunk.PageEnd != 3 {
		t.Errorf("expected page span 1-3, got %d-%d", chunk.PageStart, chunk.PageEnd)
	}
	if strings.Contains(chunk.Text, "\t") {
		t.Error("whitespace-only page leaked into chunk text")
	}
}

func TestSplitSectionHeading(t *testing.T) {
	c, err := New(Params{MaxTokens: 512})
	if err != nil {
		t.Fatal(err)
	}

	chunks, err := c.Split("doc1", testPages())
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}

	if chunks[0].SectionPath != "PROCESS OVERVIEW" {
		t.Errorf("expected section path %q, got %q", "PROCESS OVERVIEW", chunks[0].SectionPath)
	}
	if strings.Contains(chunks[0].Text, "PROCESS OVERVIEW") {
		t.Error("heading line should not appear in chunk body")
	}
}

func TestSplitOverlapRepeatsTrailingText(t *testing.T) {
	c, err := New(Params{MaxTokens: 24, OverlapTokens: 12})
	if err != nil {
		t.Fatal(err)
	}

	chunks, err := c.Split("doc1", testPages())
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	overlapped := false
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Text
		head := chunks[i].Text
		if idx := strings.Index(head, "."); idx > 0 {
			head = head[:idx+1]
		}
		if strings.Contains(prev, head) {
			overlapped = true
			break
		}
	}
	if !overlapped {
		t.Error("expected at least one chunk to start with text from its predecessor")
	}
}

func TestSplitEmptyInput(t *testing.T) {
	c, err := New(Params{})
	if err != nil {
		t.Fatal(err)
	}

	chunks, err := c.Split("doc1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty input, got %d", len(chunks))
	}

	chunks, err = c.Split("doc1", []common.Page{{Number: 1, Text: "  \n "}})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks for blank pages, got %d", len(chunks))
	}
}

func TestNewRejectsOversizedOverlap(t *testing.T) {
	if _, err := New(Params{MaxTokens: 100, OverlapTokens: 100}); err == nil {
		t.Error("expected error when overlap is not smaller than chunk size")
	}
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"\uFEFFbom​zw", "bomzw"},
		{"“quoted”", `"quoted"`},
		{"a 24\" pipe", "a 24 in pipe"},
		{"a\r\nb\rc", "a\nb\nc"},
		{"too   many    spaces", "too many spaces"},
	}
	for _, tc := range cases {
		if got := sanitize(tc.in); got != tc.want {
			t.Errorf("sanitize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeTruncates(t *testing.T) {
	long := strings.Repeat("x", maxChunkChars+100)
	got := sanitize(long)
	if !strings.HasSuffix(got, "...TRUNCATED...") {
		t.Error("expected truncation marker")
	}
	if len(got) > maxChunkChars+len("\n...TRUNCATED...") {
		t.Errorf("truncated text too long: %d", len(got))
	}
}
