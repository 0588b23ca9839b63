package embed

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"regexp"
	"slices"
	"strings"
)

// SparseVector is a term-weight vector over a fixed vocabulary. Indices
// refer to positions in the encoder's sorted vocabulary and are strictly
// increasing; Values carry the matching log-scaled term frequencies.
type SparseVector struct {
	Indices []int     `json:"indices"`
	Values  []float32 `json:"values"`
}

// IsZero reports whether the vector has no non-zero entries.
func (v SparseVector) IsZero() bool {
	return len(v.Indices) == 0
}

// Dot returns the dot product of two sparse vectors from the same encoder.
func (v SparseVector) Dot(other SparseVector) float32 {
	var sum float32
	i, j := 0, 0
	for i < len(v.Indices) && j < len(other.Indices) {
		switch {
		case v.Indices[i] < other.Indices[j]:
			i++
		case v.Indices[i] > other.Indices[j]:
			j++
		default:
			sum += v.Values[i] * other.Values[j]
			i++
			j++
		}
	}
	return sum
}

// Norm returns the Euclidean norm of the vector.
func (v SparseVector) Norm() float32 {
	var sum float64
	for _, val := range v.Values {
		sum += float64(val) * float64(val)
	}
	return float32(math.Sqrt(sum))
}

// SparseEncoder turns text into sparse term vectors over a fixed, sorted
// vocabulary. Two encoders built from the same terms produce the same
// Version, which is stored alongside indexed vectors so queries can detect
// a vocabulary change.
type SparseEncoder struct {
	terms   []string
	version string
}

var reNonWord = regexp.MustCompile(`[^a-z0-9 ]+`)

// NewSparseEncoder builds an encoder from the given vocabulary terms.
// Terms are normalized and deduplicated; ordering of the input does not
// affect the resulting version.
func NewSparseEncoder(terms []string) *SparseEncoder {
	normalized := make([]string, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		n := normalizeTerm(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		normalized = append(normalized, n)
	}
	slices.Sort(normalized)

	sum := sha256.Sum256([]byte(strings.Join(normalized, "\x00")))

	return &SparseEncoder{
		terms:   normalized,
		version: hex.EncodeToString(sum[:])[:8],
	}
}

// Version identifies the vocabulary this encoder was built from.
func (e *SparseEncoder) Version() string {
	return e.version
}

// VocabularySize returns the number of terms in the vocabulary.
func (e *SparseEncoder) VocabularySize() int {
	return len(e.terms)
}

// Encode counts vocabulary term occurrences in the text and returns their
// log-scaled frequencies. Multi-word terms match as phrases. Text with no
// vocabulary hits encodes to the zero vector.
func (e *SparseEncoder) Encode(text string) SparseVector {
	haystack := " " + normalizeTerm(text) + " "

	var vec SparseVector
	for i, term := range e.terms {
		tf := strings.Count(haystack, " "+term+" ")
		if tf == 0 {
			continue
		}
		vec.Indices = append(vec.Indices, i)
		vec.Values = append(vec.Values, float32(1+math.Log(float64(tf))))
	}
	return vec
}

func normalizeTerm(s string) string {
	s = strings.ToLower(s)
	s = reNonWord.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}
