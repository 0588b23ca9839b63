package store

import (
	"errors"
	"strings"
	"testing"
)

func TestVerifyDimensionMatch(t *testing.T) {
	if err := VerifyDimension(1024, 1024); err != nil {
		t.Fatalf("matching dimensions must verify, got %v", err)
	}
}

func TestVerifyDimensionMismatch(t *testing.T) {
	err := VerifyDimension(1024, 768)
	if err == nil {
		t.Fatal("expected error for mismatched dimensions")
	}
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "1024") || !strings.Contains(err.Error(), "768") {
		t.Errorf("error should name both dimensions: %v", err)
	}
}
