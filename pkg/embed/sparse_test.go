package embed

import (
	"math"
	"testing"
)

func TestSparseEncoderVersionStable(t *testing.T) {
	a := NewSparseEncoder([]string{"jaw crusher", "ball mill", "ore"})
	b := NewSparseEncoder([]string{"ore", "ball mill", "jaw crusher"})
	if a.Version() != b.Version() {
		t.Errorf("version depends on term order: %q vs %q", a.Version(), b.Version())
	}

	c := NewSparseEncoder([]string{"jaw crusher", "ball mill"})
	if a.Version() == c.Version() {
		t.Error("different vocabularies produced the same version")
	}
}

func TestSparseEncoderDeduplicates(t *testing.T) {
	e := NewSparseEncoder([]string{"Ore", "ore", "  ORE  "})
	if e.VocabularySize() != 1 {
		t.Errorf("expected 1 term after dedupe, got %d", e.VocabularySize())
	}
}

func TestEncodeLogTF(t *testing.T) {
	e := NewSparseEncoder([]string{"jaw crusher", "ore"})

	vec := e.Encode("The jaw crusher receives ore. More ore arrives by truck.")
	if len(vec.Indices) != 2 {
		t.Fatalf("expected 2 matched terms, got %d", len(vec.Indices))
	}

	// "ore" appears twice, weight 1+ln(2); "jaw crusher" once, weight 1.
	for i, idx := range vec.Indices {
		val := float64(vec.Values[i])
		switch idx {
		case 0: // jaw crusher
			if math.Abs(val-1.0) > 1e-6 {
				t.Errorf("jaw crusher weight = %f, want 1.0", val)
			}
		case 1: // ore
			want := 1 + math.Log(2)
			if math.Abs(val-want) > 1e-6 {
				t.Errorf("ore weight = %f, want %f", val, want)
			}
		}
	}
}

func TestEncodePhraseMatching(t *testing.T) {
	e := NewSparseEncoder([]string{"ball mill"})

	if vec := e.Encode("the ball rolled past the mill"); !vec.IsZero() {
		t.Error("split words should not match a phrase term")
	}
	if vec := e.Encode("a BALL MILL grinds the feed"); vec.IsZero() {
		t.Error("phrase should match case-insensitively")
	}
}

func TestEncodeNoHitsIsZero(t *testing.T) {
	e := NewSparseEncoder([]string{"flotation"})
	vec := e.Encode("nothing relevant here")
	if !vec.IsZero() {
		t.Error("expected zero vector")
	}
	if vec.Dot(e.Encode("flotation circuit")) != 0 {
		t.Error("zero vector dot product should be 0")
	}
}

func TestSparseDot(t *testing.T) {
	e := NewSparseEncoder([]string{"crushing", "grinding", "ore"})

	a := e.Encode("crushing and grinding of ore")
	b := e.Encode("grinding circuit")

	got := a.Dot(b)
	if math.Abs(float64(got)-1.0) > 1e-6 {
		t.Errorf("dot = %f, want 1.0", got)
	}
	if a.Dot(b) != b.Dot(a) {
		t.Error("dot product should be symmetric")
	}
}
