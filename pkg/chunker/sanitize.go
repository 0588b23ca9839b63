package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reInchMark   = regexp.MustCompile(`(\d+)["\x{2033}]`)
	reWhitespace = regexp.MustCompile(`[ \t]{2,}`)
	reBackslash  = regexp.MustCompile(`\\{2,}`)
)

// maxChunkChars caps a single chunk's text so a pathological page cannot
// produce an oversized store entry or model prompt.
const maxChunkChars = 8000

// sanitize normalizes raw extractor text for safe downstream use: control
// characters stripped, typographic quotes standardized, inch marks spelled
// out, line endings and whitespace collapsed.
func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\ufeff', '\u200b':
			return -1
		case '\n', '\t':
			return r
		}
		if r < 0x20 || !unicode.IsGraphic(r) {
			return -1
		}
		return r
	}, s)

	s = strings.NewReplacer(
		"“", `"`,
		"”", `"`,
		"‘", "'",
		"’", "'",
		"\r\n", "\n",
		"\r", "\n",
	).Replace(s)

	s = reInchMark.ReplaceAllString(s, "$1 in")
	s = reBackslash.ReplaceAllString(s, `\`)
	s = reWhitespace.ReplaceAllString(s, " ")

	if len(s) > maxChunkChars {
		s = s[:maxChunkChars] + "\n...TRUNCATED..."
	}

	return strings.TrimSpace(s)
}
